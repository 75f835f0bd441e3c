package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"itsm/internal/common/db"
	pkgrepo "itsm/pkg/repository"
)

var (
	ErrProblemNotFound  = fmt.Errorf("problem: %w", pkgrepo.ErrNotFound)
	ErrIncidentNotFound = fmt.Errorf("incident: %w", pkgrepo.ErrNotFound)
)

// ProblemRepository persists problems and the records they own.
// A nil tx runs the call on the pool.
type ProblemRepository interface {
	List(ctx context.Context, tx db.Transaction, filter ProblemFilter) ([]ProblemDetail, error)
	GetByID(ctx context.Context, tx db.Transaction, problemID int64) (ProblemDetail, bool, error)
	Exists(ctx context.Context, tx db.Transaction, problemID int64) (bool, error)
	Create(ctx context.Context, tx db.Transaction, problem *Problem) (int64, error)
	Update(ctx context.Context, tx db.Transaction, problem *Problem) error
	UpdateStatus(ctx context.Context, tx db.Transaction, problemID, statusID, actorID int64) error
	Delete(ctx context.Context, tx db.Transaction, problemID int64) error

	IncidentExists(ctx context.Context, tx db.Transaction, incidentID int64) (bool, error)
	LinkIncident(ctx context.Context, tx db.Transaction, problemID, incidentID, actorID int64) error
	UnlinkIncident(ctx context.Context, tx db.Transaction, problemID, incidentID int64) error
	ListLinkedIncidents(ctx context.Context, tx db.Transaction, problemID int64) ([]LinkedIncident, error)

	AddComment(ctx context.Context, tx db.Transaction, comment *Comment) (int64, error)
	ListComments(ctx context.Context, tx db.Transaction, problemID int64) ([]Comment, error)
	AddSolution(ctx context.Context, tx db.Transaction, solution *Solution) (int64, error)
	ListSolutions(ctx context.Context, tx db.Transaction, problemID int64) ([]Solution, error)
	AppendStatusChange(ctx context.Context, tx db.Transaction, change *StatusChange) (int64, error)
	ListStatusHistory(ctx context.Context, tx db.Transaction, problemID int64) ([]StatusChange, error)

	Statistics(ctx context.Context, responsibleID *int64) Statistics
}

type SQLProblemRepository struct {
	db  db.Database
	now func() time.Time
}

func NewProblemRepository(database db.Database) *SQLProblemRepository {
	return &SQLProblemRepository{db: database, now: defaultNow}
}

func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

const problemDetailSelect = `
	SELECT p.id, p.title, p.description, p.identified_at, p.resolved_at,
		p.priority_id, p.category_id, p.impact_id, p.status_id, p.responsible_id,
		p.created_by, p.created_at, p.modified_by, p.modified_at,
		pr.description, c.name, im.description, s.description, e.name
	FROM problem p
	LEFT JOIN priority pr ON pr.id = p.priority_id
	LEFT JOIN problem_category c ON c.id = p.category_id
	LEFT JOIN impact im ON im.id = p.impact_id
	LEFT JOIN problem_status s ON s.id = p.status_id
	LEFT JOIN employee e ON e.id = p.responsible_id`

func (r *SQLProblemRepository) List(ctx context.Context, tx db.Transaction, filter ProblemFilter) ([]ProblemDetail, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.StatusID != nil {
		conds = append(conds, "p.status_id = ?")
		args = append(args, *filter.StatusID)
	}
	if filter.PriorityID != nil {
		conds = append(conds, "p.priority_id = ?")
		args = append(args, *filter.PriorityID)
	}
	if filter.CategoryID != nil {
		conds = append(conds, "p.category_id = ?")
		args = append(args, *filter.CategoryID)
	}
	if filter.ResponsibleID != nil {
		conds = append(conds, "p.responsible_id = ?")
		args = append(args, *filter.ResponsibleID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		conds = append(conds, "(p.title LIKE ? ESCAPE '!' OR p.description LIKE ? ESCAPE '!')")
		args = append(args, pattern, pattern)
	}

	query := problemDetailSelect
	if len(conds) > 0 {
		query += "\n\tWHERE " + strings.Join(conds, " AND ")
	}
	query += "\n\tORDER BY p.identified_at DESC, p.id DESC"

	rows, err := db.GetQuerier(r.db, tx).Query(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	problems := make([]ProblemDetail, 0)
	for rows.Next() {
		detail, err := scanProblemDetail(rows)
		if err != nil {
			return nil, db.Classify(err)
		}
		problems = append(problems, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return problems, nil
}

// GetByID reports a missing problem through found rather than an error.
func (r *SQLProblemRepository) GetByID(ctx context.Context, tx db.Transaction, problemID int64) (ProblemDetail, bool, error) {
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, problemDetailSelect+"\n\tWHERE p.id = ?", problemID)
	detail, err := scanProblemDetail(row)
	if err != nil {
		if db.IsNoRows(err) {
			return ProblemDetail{}, false, nil
		}
		return ProblemDetail{}, false, db.Classify(err)
	}
	return detail, true, nil
}

func (r *SQLProblemRepository) Exists(ctx context.Context, tx db.Transaction, problemID int64) (bool, error) {
	return r.exists(ctx, tx, "SELECT 1 FROM problem WHERE id = ?", problemID)
}

func (r *SQLProblemRepository) IncidentExists(ctx context.Context, tx db.Transaction, incidentID int64) (bool, error) {
	return r.exists(ctx, tx, "SELECT 1 FROM incident WHERE id = ?", incidentID)
}

func (r *SQLProblemRepository) exists(ctx context.Context, tx db.Transaction, query string, args ...interface{}) (bool, error) {
	var one int
	err := db.GetQuerier(r.db, tx).QueryRow(ctx, query, args...).Scan(&one)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, db.Classify(err)
	}
	return true, nil
}

// Create stamps identified_at and created_at with the current time and
// fills the generated id back into problem.
func (r *SQLProblemRepository) Create(ctx context.Context, tx db.Transaction, problem *Problem) (int64, error) {
	if problem == nil {
		return 0, errors.New("problem is nil")
	}
	now := r.now()
	problem.IdentifiedAt = now
	problem.CreatedAt = now
	problem.ResolvedAt = nil
	if problem.StatusID == StatusResolved {
		problem.ResolvedAt = &now
	}

	query := `
		INSERT INTO problem (title, description, identified_at, resolved_at, priority_id, category_id,
			impact_id, status_id, responsible_id, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query,
		problem.Title, problem.Description, now, nullTime(problem.ResolvedAt),
		problem.PriorityID, problem.CategoryID, problem.ImpactID, problem.StatusID,
		nullInt64(problem.ResponsibleID), problem.CreatedBy, now,
	)
	if err != nil {
		return 0, db.Classify(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, db.Classify(err)
	}
	problem.ID = id
	return id, nil
}

// resolvedAtAssignment stamps resolved_at whenever the written status is
// RESOLVED and keeps the previous value otherwise, reopening included.
const resolvedAtAssignment = "resolved_at = CASE WHEN ? = 4 THEN ? ELSE resolved_at END"

// Update replaces every editable field. modified_by must be set by the caller.
func (r *SQLProblemRepository) Update(ctx context.Context, tx db.Transaction, problem *Problem) error {
	if problem == nil {
		return errors.New("problem is nil")
	}
	now := r.now()
	query := `
		UPDATE problem SET
			title = ?, description = ?, priority_id = ?, category_id = ?, impact_id = ?,
			` + resolvedAtAssignment + `,
			status_id = ?, responsible_id = ?, modified_by = ?, modified_at = ?
		WHERE id = ?`
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query,
		problem.Title, problem.Description, problem.PriorityID, problem.CategoryID, problem.ImpactID,
		problem.StatusID, now,
		problem.StatusID, nullInt64(problem.ResponsibleID), nullInt64(problem.ModifiedBy), now,
		problem.ID,
	)
	if err != nil {
		return db.Classify(err)
	}
	if err := r.requireAffected(ctx, tx, result, problem.ID); err != nil {
		return err
	}
	problem.ModifiedAt = &now
	return nil
}

func (r *SQLProblemRepository) UpdateStatus(ctx context.Context, tx db.Transaction, problemID, statusID, actorID int64) error {
	now := r.now()
	query := `
		UPDATE problem SET
			` + resolvedAtAssignment + `,
			status_id = ?, modified_by = ?, modified_at = ?
		WHERE id = ?`
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query, statusID, now, statusID, actorID, now, problemID)
	if err != nil {
		return db.Classify(err)
	}
	return r.requireAffected(ctx, tx, result, problemID)
}

// requireAffected maps zero affected rows to ErrProblemNotFound. MySQL reports
// changed rather than matched rows, so zero is confirmed with a lookup.
func (r *SQLProblemRepository) requireAffected(ctx context.Context, tx db.Transaction, result db.Result, problemID int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return db.Classify(err)
	}
	if affected > 0 {
		return nil
	}
	found, err := r.Exists(ctx, tx, problemID)
	if err != nil {
		return err
	}
	if !found {
		return ErrProblemNotFound
	}
	return nil
}

// cascadeTables lists the tables owned by a problem, deleted before the problem row.
var cascadeTables = []string{
	"problem_incident",
	"problem_comment",
	"problem_status_history",
	"problem_solution",
}

// Delete removes the problem and everything it owns atomically. With a nil tx
// it opens its own transaction.
func (r *SQLProblemRepository) Delete(ctx context.Context, tx db.Transaction, problemID int64) error {
	if tx != nil {
		return r.deleteCascade(ctx, tx, problemID)
	}
	err := r.db.Transaction(ctx, func(tx db.Transaction) error {
		return r.deleteCascade(ctx, tx, problemID)
	})
	return db.Classify(err)
}

func (r *SQLProblemRepository) deleteCascade(ctx context.Context, tx db.Transaction, problemID int64) error {
	for _, table := range cascadeTables {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE problem_id = ?", problemID); err != nil {
			return db.Classify(fmt.Errorf("delete from %s: %w", table, err))
		}
	}
	result, err := tx.Exec(ctx, "DELETE FROM problem WHERE id = ?", problemID)
	if err != nil {
		return db.Classify(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return db.Classify(err)
	}
	if affected == 0 {
		return ErrProblemNotFound
	}
	return nil
}

func scanProblemDetail(scanner db.Scanner) (ProblemDetail, error) {
	var (
		detail        ProblemDetail
		resolvedAt    sql.NullTime
		responsibleID sql.NullInt64
		modifiedBy    sql.NullInt64
		modifiedAt    sql.NullTime
		priority      sql.NullString
		category      sql.NullString
		impact        sql.NullString
		status        sql.NullString
		responsible   sql.NullString
	)
	p := &detail.Problem
	if err := scanner.Scan(
		&p.ID, &p.Title, &p.Description, &p.IdentifiedAt, &resolvedAt,
		&p.PriorityID, &p.CategoryID, &p.ImpactID, &p.StatusID, &responsibleID,
		&p.CreatedBy, &p.CreatedAt, &modifiedBy, &modifiedAt,
		&priority, &category, &impact, &status, &responsible,
	); err != nil {
		return ProblemDetail{}, err
	}
	p.IdentifiedAt = p.IdentifiedAt.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	p.ResolvedAt = timePtr(resolvedAt)
	p.ResponsibleID = int64Ptr(responsibleID)
	p.ModifiedBy = int64Ptr(modifiedBy)
	p.ModifiedAt = timePtr(modifiedAt)

	detail.PriorityLabel = labelOr(priority, PlaceholderPriority)
	detail.CategoryLabel = labelOr(category, PlaceholderCategory)
	detail.ImpactLabel = labelOr(impact, PlaceholderImpact)
	detail.StatusLabel = labelOr(status, PlaceholderStatus)
	if responsible.Valid {
		name := responsible.String
		detail.ResponsibleName = &name
	}
	return detail, nil
}

// labelOr returns the joined label, or placeholder when the referenced row is missing.
// likeEscaper makes a search term match literally under ESCAPE '!'.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

func labelOr(label sql.NullString, placeholder string) string {
	if !label.Valid {
		return placeholder
	}
	return label.String
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
