package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"itsm/internal/common/cache"
	"itsm/internal/common/db"
	pkgrepo "itsm/pkg/repository"
)

const (
	// ResponsiblesCacheKey holds the responsible candidate list.
	ResponsiblesCacheKey = "directory:responsibles"

	defaultDirectoryCacheTTL      = 10 * time.Minute
	defaultDirectoryCacheEmptyTTL = 30 * time.Second
)

var (
	ErrAccountNotFound = fmt.Errorf("account: %w", pkgrepo.ErrNotFound)
	ErrUsernameExists  = fmt.Errorf("username already exists: %w", pkgrepo.ErrConflict)
	ErrUnknownRole     = fmt.Errorf("unknown role: %w", pkgrepo.ErrConflict)
)

// Employee is a person in the organization.
type Employee struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	RoleID   int64  `json:"role_id"`
	RoleName string `json:"role,omitempty"`
}

// Account is a login bound to an employee.
type Account struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Active       bool       `json:"active"`
	EmployeeID   int64      `json:"employee_id"`
	EmployeeName string     `json:"employee_name"`
	RoleID       int64      `json:"role_id"`
	RoleName     string     `json:"role"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

type AccountRepository interface {
	CreateEmployee(ctx context.Context, tx db.Transaction, employee *Employee) (int64, error)
	CreateAccount(ctx context.Context, tx db.Transaction, account *Account) (int64, error)
	GetByID(ctx context.Context, tx db.Transaction, id int64) (*Account, error)
	GetByUsername(ctx context.Context, tx db.Transaction, username string) (*Account, error)
	Delete(ctx context.Context, tx db.Transaction, id int64) error
	TouchLastLogin(ctx context.Context, tx db.Transaction, id int64, at time.Time) error
	ResponsibleCandidates(ctx context.Context) ([]Employee, error)
}

type SQLAccountRepository struct {
	db               db.Database
	cache            cache.Cache
	responsibleRoles []string
	ttl              time.Duration
	emptyTTL         time.Duration
}

// NewAccountRepository creates the repository. responsibleRoles names the
// roles whose employees may own a problem.
func NewAccountRepository(database db.Database, cacheClient cache.Cache, responsibleRoles []string) *SQLAccountRepository {
	return NewAccountRepositoryWithTTL(database, cacheClient, responsibleRoles, defaultDirectoryCacheTTL, defaultDirectoryCacheEmptyTTL)
}

func NewAccountRepositoryWithTTL(database db.Database, cacheClient cache.Cache, responsibleRoles []string, ttl, emptyTTL time.Duration) *SQLAccountRepository {
	if ttl <= 0 {
		ttl = defaultDirectoryCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultDirectoryCacheEmptyTTL
	}
	return &SQLAccountRepository{
		db:               database,
		cache:            cacheClient,
		responsibleRoles: append([]string(nil), responsibleRoles...),
		ttl:              ttl,
		emptyTTL:         emptyTTL,
	}
}

func (r *SQLAccountRepository) CreateEmployee(ctx context.Context, tx db.Transaction, employee *Employee) (int64, error) {
	if employee == nil {
		return 0, errors.New("employee is nil")
	}
	query := "INSERT INTO employee (name, email, role_id) VALUES (?, ?, ?)"
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query, employee.Name, employee.Email, employee.RoleID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return 0, ErrUnknownRole
		}
		return 0, db.Classify(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, db.Classify(err)
	}
	employee.ID = id
	return id, nil
}

func (r *SQLAccountRepository) CreateAccount(ctx context.Context, tx db.Transaction, account *Account) (int64, error) {
	if account == nil {
		return 0, errors.New("account is nil")
	}
	query := "INSERT INTO app_user (username, password_hash, active, employee_id, role_id) VALUES (?, ?, ?, ?, ?)"
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query,
		account.Username, account.PasswordHash, account.Active, account.EmployeeID, account.RoleID)
	if err != nil {
		switch {
		case db.IsUniqueViolation(err):
			return 0, ErrUsernameExists
		case db.IsForeignKeyViolation(err):
			return 0, ErrUnknownRole
		}
		return 0, db.Classify(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, db.Classify(err)
	}
	account.ID = id
	return id, nil
}

const accountSelect = `
	SELECT u.id, u.username, u.password_hash, u.active, u.employee_id, COALESCE(e.name, ''),
		u.role_id, COALESCE(r.name, ''), u.last_login_at
	FROM app_user u
	LEFT JOIN employee e ON e.id = u.employee_id
	LEFT JOIN role r ON r.id = u.role_id`

func (r *SQLAccountRepository) GetByID(ctx context.Context, tx db.Transaction, id int64) (*Account, error) {
	return r.getOne(ctx, tx, accountSelect+"\n\tWHERE u.id = ?", id)
}

func (r *SQLAccountRepository) GetByUsername(ctx context.Context, tx db.Transaction, username string) (*Account, error) {
	return r.getOne(ctx, tx, accountSelect+"\n\tWHERE u.username = ?", username)
}

func (r *SQLAccountRepository) getOne(ctx context.Context, tx db.Transaction, query string, arg interface{}) (*Account, error) {
	account, err := scanAccount(db.GetQuerier(r.db, tx).QueryRow(ctx, query, arg))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrAccountNotFound
		}
		return nil, db.Classify(err)
	}
	return account, nil
}

// Delete removes the account and, when no other account uses it, its
// employee. Records authored by the account block the delete with a conflict.
func (r *SQLAccountRepository) Delete(ctx context.Context, tx db.Transaction, id int64) error {
	if tx == nil {
		return db.Classify(r.db.Transaction(ctx, func(tx db.Transaction) error {
			return r.Delete(ctx, tx, id)
		}))
	}

	var employeeID int64
	if err := tx.QueryRow(ctx, "SELECT employee_id FROM app_user WHERE id = ?", id).Scan(&employeeID); err != nil {
		if db.IsNoRows(err) {
			return ErrAccountNotFound
		}
		return db.Classify(err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM app_user WHERE id = ?", id); err != nil {
		return db.Classify(err)
	}
	query := "DELETE FROM employee WHERE id = ? AND NOT EXISTS (SELECT 1 FROM app_user WHERE employee_id = ?)"
	if _, err := tx.Exec(ctx, query, employeeID, employeeID); err != nil {
		return db.Classify(err)
	}
	return nil
}

func (r *SQLAccountRepository) TouchLastLogin(ctx context.Context, tx db.Transaction, id int64, at time.Time) error {
	if _, err := db.GetQuerier(r.db, tx).Exec(ctx, "UPDATE app_user SET last_login_at = ? WHERE id = ?", at, id); err != nil {
		return db.Classify(err)
	}
	return nil
}

// ResponsibleCandidates lists employees holding one of the responsible roles, by name.
func (r *SQLAccountRepository) ResponsibleCandidates(ctx context.Context) ([]Employee, error) {
	employees, err := cache.GetWithCached[[]Employee](
		ctx,
		r.cache,
		ResponsiblesCacheKey,
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(v []Employee) bool { return len(v) == 0 },
		cache.MarshalJSON[[]Employee],
		cache.UnmarshalJSON[[]Employee],
		r.responsibleCandidatesFromDB,
	)
	if err != nil {
		return nil, err
	}
	if employees == nil {
		employees = make([]Employee, 0)
	}
	return employees, nil
}

func (r *SQLAccountRepository) responsibleCandidatesFromDB(ctx context.Context) ([]Employee, error) {
	employees := make([]Employee, 0)
	if len(r.responsibleRoles) == 0 {
		return employees, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(r.responsibleRoles)), ", ")
	query := `
		SELECT e.id, e.name, e.email, r.id, r.name
		FROM employee e
		JOIN role r ON r.id = e.role_id
		WHERE r.name IN (` + placeholders + `)
		ORDER BY e.name ASC, e.id ASC`
	args := make([]interface{}, 0, len(r.responsibleRoles))
	for _, role := range r.responsibleRoles {
		args = append(args, role)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		var e Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.Email, &e.RoleID, &e.RoleName); err != nil {
			return nil, db.Classify(err)
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return employees, nil
}

func scanAccount(scanner db.Scanner) (*Account, error) {
	var (
		account   Account
		lastLogin sql.NullTime
	)
	if err := scanner.Scan(
		&account.ID, &account.Username, &account.PasswordHash, &account.Active, &account.EmployeeID,
		&account.EmployeeName, &account.RoleID, &account.RoleName, &lastLogin,
	); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		account.LastLoginAt = &t
	}
	return &account, nil
}
