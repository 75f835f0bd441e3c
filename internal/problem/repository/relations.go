package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"itsm/internal/common/db"
)

// LinkIncident links an existing incident to a problem. Linking a pair that
// is already linked succeeds without writing.
func (r *SQLProblemRepository) LinkIncident(ctx context.Context, tx db.Transaction, problemID, incidentID, actorID int64) error {
	found, err := r.IncidentExists(ctx, tx, incidentID)
	if err != nil {
		return err
	}
	if !found {
		return ErrIncidentNotFound
	}

	linked, err := r.exists(ctx, tx,
		"SELECT 1 FROM problem_incident WHERE problem_id = ? AND incident_id = ?", problemID, incidentID)
	if err != nil {
		return err
	}
	if linked {
		return nil
	}

	query := "INSERT INTO problem_incident (problem_id, incident_id, created_by, created_at) VALUES (?, ?, ?, ?)"
	if _, err := db.GetQuerier(r.db, tx).Exec(ctx, query, problemID, incidentID, actorID, r.now()); err != nil {
		// A concurrent request inserted the same pair first.
		if db.IsUniqueViolation(err) {
			return nil
		}
		return db.Classify(err)
	}
	return nil
}

// UnlinkIncident is a no-op when the pair is not linked.
func (r *SQLProblemRepository) UnlinkIncident(ctx context.Context, tx db.Transaction, problemID, incidentID int64) error {
	query := "DELETE FROM problem_incident WHERE problem_id = ? AND incident_id = ?"
	if _, err := db.GetQuerier(r.db, tx).Exec(ctx, query, problemID, incidentID); err != nil {
		return db.Classify(err)
	}
	return nil
}

func (r *SQLProblemRepository) ListLinkedIncidents(ctx context.Context, tx db.Transaction, problemID int64) ([]LinkedIncident, error) {
	query := `
		SELECT i.id, i.description, i.started_at, i.finished_at, i.priority_id, i.status_id,
			i.ci_id, i.technician_id, pr.description, st.description, c.name, e.name,
			pi.created_by, pi.created_at
		FROM problem_incident pi
		JOIN incident i ON i.id = pi.incident_id
		LEFT JOIN priority pr ON pr.id = i.priority_id
		LEFT JOIN incident_status st ON st.id = i.status_id
		LEFT JOIN ci c ON c.id = i.ci_id
		LEFT JOIN employee e ON e.id = i.technician_id
		WHERE pi.problem_id = ?
		ORDER BY pi.created_at DESC, i.id DESC`

	rows, err := db.GetQuerier(r.db, tx).Query(ctx, query, problemID)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	incidents := make([]LinkedIncident, 0)
	for rows.Next() {
		var (
			item         LinkedIncident
			finishedAt   sql.NullTime
			ciID         sql.NullInt64
			technicianID sql.NullInt64
			priority     sql.NullString
			status       sql.NullString
			ciName       sql.NullString
			technician   sql.NullString
		)
		if err := rows.Scan(
			&item.IncidentID, &item.Description, &item.StartedAt, &finishedAt, &item.PriorityID, &item.StatusID,
			&ciID, &technicianID, &priority, &status, &ciName, &technician,
			&item.LinkedBy, &item.LinkedAt,
		); err != nil {
			return nil, db.Classify(err)
		}
		item.StartedAt = item.StartedAt.UTC()
		item.LinkedAt = item.LinkedAt.UTC()
		item.FinishedAt = timePtr(finishedAt)
		item.CIID = int64Ptr(ciID)
		item.TechnicianID = int64Ptr(technicianID)
		item.PriorityLabel = labelOr(priority, PlaceholderPriority)
		item.StatusLabel = labelOr(status, PlaceholderStatus)
		item.CIName = labelOr(ciName, PlaceholderCI)
		item.TechnicianName = labelOr(technician, PlaceholderTechnician)
		incidents = append(incidents, item)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return incidents, nil
}

// AddComment appends a comment; an empty kind is stored as COMMENT.
func (r *SQLProblemRepository) AddComment(ctx context.Context, tx db.Transaction, comment *Comment) (int64, error) {
	if comment == nil {
		return 0, errors.New("comment is nil")
	}
	if comment.Kind == "" {
		comment.Kind = CommentKindDefault
	}
	comment.CreatedAt = r.now()

	query := "INSERT INTO problem_comment (problem_id, user_id, body, kind, created_at) VALUES (?, ?, ?, ?, ?)"
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query,
		comment.ProblemID, comment.UserID, comment.Body, comment.Kind, comment.CreatedAt)
	if err != nil {
		return 0, db.Classify(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, db.Classify(err)
	}
	comment.ID = id
	return id, nil
}

func (r *SQLProblemRepository) ListComments(ctx context.Context, tx db.Transaction, problemID int64) ([]Comment, error) {
	query := `
		SELECT c.id, c.problem_id, c.user_id, c.body, c.kind, c.created_at, e.name
		FROM problem_comment c
		LEFT JOIN app_user u ON u.id = c.user_id
		LEFT JOIN employee e ON e.id = u.employee_id
		WHERE c.problem_id = ?
		ORDER BY c.created_at ASC, c.id ASC`

	rows, err := db.GetQuerier(r.db, tx).Query(ctx, query, problemID)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	comments := make([]Comment, 0)
	for rows.Next() {
		var (
			c      Comment
			author sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.ProblemID, &c.UserID, &c.Body, &c.Kind, &c.CreatedAt, &author); err != nil {
			return nil, db.Classify(err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		c.AuthorName = labelOr(author, PlaceholderUser)
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return comments, nil
}

// AddSolution appends a proposed solution; the type must be WORKAROUND or PERMANENT_FIX.
func (r *SQLProblemRepository) AddSolution(ctx context.Context, tx db.Transaction, solution *Solution) (int64, error) {
	if solution == nil {
		return 0, errors.New("solution is nil")
	}
	if !IsValidSolutionType(solution.SolutionType) {
		return 0, fmt.Errorf("invalid solution type %q", solution.SolutionType)
	}
	solution.CreatedAt = r.now()

	query := `
		INSERT INTO problem_solution (problem_id, title, description, solution_type, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query,
		solution.ProblemID, solution.Title, solution.Description, solution.SolutionType, solution.UserID, solution.CreatedAt)
	if err != nil {
		return 0, db.Classify(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, db.Classify(err)
	}
	solution.ID = id
	return id, nil
}

func (r *SQLProblemRepository) ListSolutions(ctx context.Context, tx db.Transaction, problemID int64) ([]Solution, error) {
	query := `
		SELECT s.id, s.problem_id, s.title, s.description, s.solution_type, s.user_id, s.created_at, e.name
		FROM problem_solution s
		LEFT JOIN app_user u ON u.id = s.user_id
		LEFT JOIN employee e ON e.id = u.employee_id
		WHERE s.problem_id = ?
		ORDER BY s.created_at DESC, s.id DESC`

	rows, err := db.GetQuerier(r.db, tx).Query(ctx, query, problemID)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	solutions := make([]Solution, 0)
	for rows.Next() {
		var (
			s      Solution
			author sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.ProblemID, &s.Title, &s.Description, &s.SolutionType, &s.UserID, &s.CreatedAt, &author); err != nil {
			return nil, db.Classify(err)
		}
		s.CreatedAt = s.CreatedAt.UTC()
		s.AuthorName = labelOr(author, PlaceholderUser)
		solutions = append(solutions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return solutions, nil
}

func (r *SQLProblemRepository) AppendStatusChange(ctx context.Context, tx db.Transaction, change *StatusChange) (int64, error) {
	if change == nil {
		return 0, errors.New("status change is nil")
	}
	change.ChangedAt = r.now()

	query := `
		INSERT INTO problem_status_history (problem_id, previous_status_id, new_status_id, user_id, changed_at)
		VALUES (?, ?, ?, ?, ?)`
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query,
		change.ProblemID, nullInt64(change.PreviousStatusID), change.NewStatusID, change.UserID, change.ChangedAt)
	if err != nil {
		return 0, db.Classify(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, db.Classify(err)
	}
	change.ID = id
	return id, nil
}

// ListStatusHistory returns the audit log oldest first.
func (r *SQLProblemRepository) ListStatusHistory(ctx context.Context, tx db.Transaction, problemID int64) ([]StatusChange, error) {
	query := `
		SELECT h.id, h.problem_id, h.previous_status_id, h.new_status_id, h.user_id, h.changed_at,
			ps.description, ns.description, e.name
		FROM problem_status_history h
		LEFT JOIN problem_status ps ON ps.id = h.previous_status_id
		LEFT JOIN problem_status ns ON ns.id = h.new_status_id
		LEFT JOIN app_user u ON u.id = h.user_id
		LEFT JOIN employee e ON e.id = u.employee_id
		WHERE h.problem_id = ?
		ORDER BY h.changed_at ASC, h.id ASC`

	rows, err := db.GetQuerier(r.db, tx).Query(ctx, query, problemID)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	history := make([]StatusChange, 0)
	for rows.Next() {
		var (
			h          StatusChange
			previousID sql.NullInt64
			previous   sql.NullString
			next       sql.NullString
			user       sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.ProblemID, &previousID, &h.NewStatusID, &h.UserID, &h.ChangedAt,
			&previous, &next, &user); err != nil {
			return nil, db.Classify(err)
		}
		h.ChangedAt = h.ChangedAt.UTC()
		h.PreviousStatusID = int64Ptr(previousID)
		if previousID.Valid {
			label := labelOr(previous, PlaceholderNewStatus)
			h.PreviousStatus = &label
		}
		h.NewStatus = labelOr(next, PlaceholderNewStatus)
		h.UserName = labelOr(user, PlaceholderUser)
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return history, nil
}
