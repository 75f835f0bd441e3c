package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"itsm/internal/auth"
	"itsm/internal/authz"
	"itsm/internal/common/cache"
	"itsm/internal/common/db"
	"itsm/internal/directory/repository"
	pkgerrors "itsm/pkg/errors"
	pkgrepo "itsm/pkg/repository"
	"itsm/pkg/utils/logger"
	"itsm/pkg/utils/validate"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(ac authz.Context) (auth.Token, error)
}

// Authorizer decides whether a caller may proceed and lists what a role holds.
type Authorizer interface {
	Require(ac *authz.Context, permissions ...string) error
	Permissions(role string) []string
}

// AccountService handles login and account administration.
type AccountService struct {
	db       db.Database
	accounts repository.AccountRepository
	tokens   TokenIssuer
	authz    Authorizer
	cache    cache.Cache
	cost     int
	now      func() time.Time
}

// NewAccountService creates a new AccountService. cacheClient may be nil.
func NewAccountService(
	database db.Database,
	accounts repository.AccountRepository,
	tokens TokenIssuer,
	authorizer Authorizer,
	cacheClient cache.Cache,
) *AccountService {
	return &AccountService{
		db:       database,
		accounts: accounts,
		tokens:   tokens,
		authz:    authorizer,
		cache:    cacheClient,
		cost:     bcrypt.DefaultCost,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

// LoginInput represents input for login.
type LoginInput struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

// AccountInfo is the public view of an account.
type AccountInfo struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	EmployeeID   int64  `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	Role         string `json:"role"`
	Active       bool   `json:"active"`
}

// LoginResult is an issued token with the account it belongs to.
type LoginResult struct {
	auth.Token
	Account     AccountInfo `json:"account"`
	Permissions []string    `json:"permissions"`
}

// EmployeeInput describes the employee behind a new account.
type EmployeeInput struct {
	Name   string `json:"name" validate:"required,max=150"`
	Email  string `json:"email" validate:"omitempty,email,max=150"`
	RoleID int64  `json:"role_id" validate:"gt=0"`
}

// CreateAccountInput creates an employee and its login together.
type CreateAccountInput struct {
	Employee EmployeeInput `json:"employee"`
	Username string        `json:"username" validate:"required,min=3,max=64"`
	Password string        `json:"password" validate:"required,min=8,max=72"`
	RoleID   int64         `json:"role_id" validate:"gt=0"`
	Active   *bool         `json:"active"`
}

func toAccountInfo(a *repository.Account) AccountInfo {
	return AccountInfo{
		ID:           a.ID,
		Username:     a.Username,
		EmployeeID:   a.EmployeeID,
		EmployeeName: a.EmployeeName,
		Role:         a.RoleName,
		Active:       a.Active,
	}
}

// Login verifies credentials and issues an access token. Unknown users,
// wrong passwords and inactive accounts all report invalid credentials.
func (s *AccountService) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	input.Username = strings.TrimSpace(input.Username)
	if err := validate.Struct(input); err != nil {
		return LoginResult{}, err
	}

	account, err := s.accounts.GetByUsername(ctx, nil, input.Username)
	if err != nil {
		if stderrors.Is(err, repository.ErrAccountNotFound) {
			return LoginResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
		}
		return LoginResult{}, mapRepoError(err, "get account", pkgerrors.DatabaseError)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(input.Password)); err != nil {
		return LoginResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
	}
	if !account.Active {
		return LoginResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
	}

	token, err := s.tokens.Issue(authz.Context{
		UserID:     account.ID,
		EmployeeID: account.EmployeeID,
		Username:   account.Username,
		Role:       account.RoleName,
	})
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.accounts.TouchLastLogin(ctx, nil, account.ID, s.now()); err != nil {
		logger.Warn(ctx, "record last login failed", zap.Int64("user_id", account.ID), zap.Error(err))
	}
	permissions := s.authz.Permissions(account.RoleName)
	logger.Info(ctx, "account logged in",
		zap.Int64("user_id", account.ID),
		zap.String("role", account.RoleName),
		zap.Strings("permissions", permissions))
	return LoginResult{Token: token, Account: toAccountInfo(account), Permissions: permissions}, nil
}

// CreateAccount inserts the employee and the account in one transaction.
func (s *AccountService) CreateAccount(ctx context.Context, ac *authz.Context, input CreateAccountInput) (AccountInfo, error) {
	if err := s.authz.Require(ac, authz.PermAll); err != nil {
		return AccountInfo{}, err
	}
	input.Username = strings.TrimSpace(input.Username)
	input.Employee.Name = strings.TrimSpace(input.Employee.Name)
	input.Employee.Email = strings.TrimSpace(input.Employee.Email)
	if input.Employee.RoleID == 0 {
		input.Employee.RoleID = input.RoleID
	}
	if err := validate.Struct(input); err != nil {
		return AccountInfo{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cost)
	if err != nil {
		return AccountInfo{}, pkgerrors.Wrap(fmt.Errorf("hash password failed: %w", err), pkgerrors.InternalServerError)
	}
	active := true
	if input.Active != nil {
		active = *input.Active
	}

	var created *repository.Account
	err = cache.InvalidateAfter(ctx, s.cache, func(ctx context.Context) error {
		return s.db.Transaction(ctx, func(tx db.Transaction) error {
			employee := &repository.Employee{
				Name:   input.Employee.Name,
				Email:  input.Employee.Email,
				RoleID: input.Employee.RoleID,
			}
			if _, err := s.accounts.CreateEmployee(ctx, tx, employee); err != nil {
				return err
			}
			account := &repository.Account{
				Username:     input.Username,
				PasswordHash: string(hash),
				Active:       active,
				EmployeeID:   employee.ID,
				RoleID:       input.RoleID,
			}
			if _, err := s.accounts.CreateAccount(ctx, tx, account); err != nil {
				return err
			}
			loaded, err := s.accounts.GetByID(ctx, tx, account.ID)
			if err != nil {
				return err
			}
			created = loaded
			return nil
		})
	}, repository.ResponsiblesCacheKey)
	if err != nil {
		return AccountInfo{}, mapRepoError(err, "create account", pkgerrors.AccountCreateFailed)
	}

	logger.Info(ctx, "account created", zap.Int64("user_id", created.ID), zap.String("username", created.Username))
	return toAccountInfo(created), nil
}

// DeleteAccount removes an account. Accounts that authored problem records
// cannot be removed.
func (s *AccountService) DeleteAccount(ctx context.Context, ac *authz.Context, userID int64) error {
	if err := s.authz.Require(ac, authz.PermAll); err != nil {
		return err
	}
	if userID <= 0 {
		return pkgerrors.New(pkgerrors.InvalidParams)
	}
	if userID == ac.UserID {
		return pkgerrors.BadRequest("cannot delete the account in use")
	}

	err := cache.InvalidateAfter(ctx, s.cache, func(ctx context.Context) error {
		return s.accounts.Delete(ctx, nil, userID)
	}, repository.ResponsiblesCacheKey)
	if err != nil {
		return mapRepoError(err, "delete account", pkgerrors.AccountDeleteFailed)
	}
	logger.Info(ctx, "account deleted", zap.Int64("user_id", userID))
	return nil
}

func mapRepoError(err error, op string, fallback pkgerrors.ErrorCode) error {
	var coded *pkgerrors.Error
	switch {
	case stderrors.As(err, &coded):
		return err
	case stderrors.Is(err, repository.ErrAccountNotFound):
		return pkgerrors.New(pkgerrors.AccountNotFound)
	case stderrors.Is(err, repository.ErrUsernameExists):
		return pkgerrors.New(pkgerrors.AccountAlreadyExists)
	case stderrors.Is(err, repository.ErrUnknownRole):
		return pkgerrors.ValidationError("role_id", "unknown role")
	case stderrors.Is(err, pkgrepo.ErrConflict):
		return pkgerrors.Wrapf(err, pkgerrors.DependencyConflict, "%s: %s", op, pkgerrors.DependencyConflict.Message())
	case stderrors.Is(err, pkgrepo.ErrTimeout), stderrors.Is(err, context.DeadlineExceeded):
		return pkgerrors.Wrapf(err, pkgerrors.DatabaseTimeout, "%s: %s", op, pkgerrors.DatabaseTimeout.Message())
	case stderrors.Is(err, pkgrepo.ErrConnectionFailed):
		return pkgerrors.Wrapf(err, pkgerrors.DatabaseUnavailable, "%s: %s", op, pkgerrors.DatabaseUnavailable.Message())
	default:
		return pkgerrors.Wrap(fmt.Errorf("%s failed: %w", op, err), fallback)
	}
}
