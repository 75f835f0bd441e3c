package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"itsm/internal/authz"
	"itsm/internal/common/db"
	dirrepo "itsm/internal/directory/repository"
	"itsm/internal/problem/model"
	"itsm/internal/problem/repository"
	pkgerrors "itsm/pkg/errors"
	pkgrepo "itsm/pkg/repository"
	"itsm/pkg/utils/logger"
	"itsm/pkg/utils/validate"

	"go.uber.org/zap"
)

const defaultQueryTimeout = 5 * time.Second

var (
	readPermissions  = []string{authz.PermManageProblems, authz.PermReports, authz.PermTechnician}
	writePermissions = []string{authz.PermManageProblems}
	statsPermissions = []string{authz.PermManageProblems, authz.PermReports}
)

// Authorizer decides whether a caller may proceed.
type Authorizer interface {
	Require(ac *authz.Context, permissions ...string) error
}

// CatalogReader lists the reference data used by problem forms.
type CatalogReader interface {
	Categories(ctx context.Context) ([]repository.CatalogItem, error)
	Impacts(ctx context.Context) ([]repository.CatalogItem, error)
	Statuses(ctx context.Context) ([]repository.CatalogItem, error)
	Priorities(ctx context.Context) ([]repository.CatalogItem, error)
}

// ResponsibleDirectory lists employees that can own a problem.
type ResponsibleDirectory interface {
	ResponsibleCandidates(ctx context.Context) ([]dirrepo.Employee, error)
}

// Options tunes ProblemService.
type Options struct {
	// QueryTimeout bounds each service call. Zero means 5s.
	QueryTimeout time.Duration
}

// ProblemService runs the problem workflow: permission checks, validation,
// transactional writes with status history and change events.
type ProblemService struct {
	db        db.Database
	repo      repository.ProblemRepository
	catalogs  CatalogReader
	directory ResponsibleDirectory
	authz     Authorizer
	events    *EventPublisher
	timeout   time.Duration
}

// NewProblemService creates a new ProblemService. events may be nil.
func NewProblemService(
	database db.Database,
	repo repository.ProblemRepository,
	catalogs CatalogReader,
	directory ResponsibleDirectory,
	authorizer Authorizer,
	events *EventPublisher,
	opts Options,
) *ProblemService {
	timeout := opts.QueryTimeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return &ProblemService{
		db:        database,
		repo:      repo,
		catalogs:  catalogs,
		directory: directory,
		authz:     authorizer,
		events:    events,
		timeout:   timeout,
	}
}

// ProblemInput carries the editable fields of a problem.
type ProblemInput struct {
	Title         string `json:"title" validate:"required,max=200"`
	Description   string `json:"description" validate:"required"`
	PriorityID    int64  `json:"priority_id" validate:"gt=0"`
	CategoryID    int64  `json:"category_id" validate:"gt=0"`
	ImpactID      int64  `json:"impact_id" validate:"gt=0"`
	StatusID      int64  `json:"status_id" validate:"min=1,max=4"`
	ResponsibleID *int64 `json:"responsible_id" validate:"omitempty,gt=0"`
}

func (in *ProblemInput) Normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
}

func (in ProblemInput) toProblem() *repository.Problem {
	return &repository.Problem{
		Title:         in.Title,
		Description:   in.Description,
		PriorityID:    in.PriorityID,
		CategoryID:    in.CategoryID,
		ImpactID:      in.ImpactID,
		StatusID:      in.StatusID,
		ResponsibleID: in.ResponsibleID,
	}
}

// CommentInput is a new comment; Kind defaults to COMMENT.
type CommentInput struct {
	Body string `json:"body" validate:"required"`
	Kind string `json:"kind" validate:"max=50"`
}

// SolutionInput is a new proposed solution.
type SolutionInput struct {
	Title        string `json:"title" validate:"required,max=200"`
	Description  string `json:"description" validate:"required"`
	SolutionType string `json:"solution_type" validate:"required"`
}

// ProblemView is a problem with everything it owns.
type ProblemView struct {
	repository.ProblemDetail
	Incidents []repository.LinkedIncident `json:"incidents"`
	Comments  []repository.Comment        `json:"comments"`
	History   []repository.StatusChange   `json:"history"`
	Solutions []repository.Solution       `json:"solutions"`
}

// Catalogs bundles the reference tables for problem forms.
type Catalogs struct {
	Categories []repository.CatalogItem `json:"categories"`
	Impacts    []repository.CatalogItem `json:"impacts"`
	Statuses   []repository.CatalogItem `json:"statuses"`
	Priorities []repository.CatalogItem `json:"priorities"`
}

func (s *ProblemService) List(ctx context.Context, ac *authz.Context, filter repository.ProblemFilter) ([]repository.ProblemDetail, error) {
	if err := s.authz.Require(ac, readPermissions...); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	problems, err := s.repo.List(ctx, nil, filter)
	if err != nil {
		return nil, mapRepoError(err, "list problems", pkgerrors.DatabaseError)
	}
	return problems, nil
}

// Get returns the problem with its linked incidents, comments, history and solutions.
func (s *ProblemService) Get(ctx context.Context, ac *authz.Context, problemID int64) (*ProblemView, error) {
	if err := s.authz.Require(ac, readPermissions...); err != nil {
		return nil, err
	}
	if problemID <= 0 {
		return nil, pkgerrors.New(pkgerrors.InvalidParams)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	detail, found, err := s.repo.GetByID(ctx, nil, problemID)
	if err != nil {
		return nil, mapRepoError(err, "get problem", pkgerrors.DatabaseError)
	}
	if !found {
		return nil, pkgerrors.New(pkgerrors.ProblemNotFound)
	}

	view := &ProblemView{ProblemDetail: detail}
	if view.Incidents, err = s.repo.ListLinkedIncidents(ctx, nil, problemID); err != nil {
		return nil, mapRepoError(err, "list linked incidents", pkgerrors.DatabaseError)
	}
	if view.Comments, err = s.repo.ListComments(ctx, nil, problemID); err != nil {
		return nil, mapRepoError(err, "list comments", pkgerrors.DatabaseError)
	}
	if view.History, err = s.repo.ListStatusHistory(ctx, nil, problemID); err != nil {
		return nil, mapRepoError(err, "list status history", pkgerrors.DatabaseError)
	}
	if view.Solutions, err = s.repo.ListSolutions(ctx, nil, problemID); err != nil {
		return nil, mapRepoError(err, "list solutions", pkgerrors.DatabaseError)
	}
	return view, nil
}

// Create inserts the problem and its initial status history entry in one transaction.
func (s *ProblemService) Create(ctx context.Context, ac *authz.Context, input ProblemInput) (int64, error) {
	if err := s.authz.Require(ac, writePermissions...); err != nil {
		return 0, err
	}
	if input.StatusID == 0 {
		input.StatusID = repository.StatusIdentified
	}
	input.Normalize()
	if err := validate.Struct(input); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	problem := input.toProblem()
	problem.CreatedBy = ac.UserID
	err := s.db.Transaction(ctx, func(tx db.Transaction) error {
		if _, err := s.repo.Create(ctx, tx, problem); err != nil {
			return err
		}
		_, err := s.repo.AppendStatusChange(ctx, tx, &repository.StatusChange{
			ProblemID:   problem.ID,
			NewStatusID: problem.StatusID,
			UserID:      ac.UserID,
		})
		return err
	})
	if err != nil {
		return 0, mapRepoError(err, "create problem", pkgerrors.ProblemCreateFailed)
	}

	status := problem.StatusID
	s.publish(ctx, model.ProblemEvent{
		EventType:   model.ProblemEventCreated,
		ProblemID:   problem.ID,
		NewStatus:   &status,
		ActorUserID: ac.UserID,
	})
	return problem.ID, nil
}

// Update replaces the problem's fields. A status change is logged to the
// history in the same transaction.
func (s *ProblemService) Update(ctx context.Context, ac *authz.Context, problemID int64, input ProblemInput) error {
	if err := s.authz.Require(ac, writePermissions...); err != nil {
		return err
	}
	if problemID <= 0 {
		return pkgerrors.New(pkgerrors.InvalidParams)
	}
	input.Normalize()
	if err := validate.Struct(input); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	problem := input.toProblem()
	problem.ID = problemID
	problem.ModifiedBy = &ac.UserID

	var previous int64
	err := s.db.Transaction(ctx, func(tx db.Transaction) error {
		current, found, err := s.repo.GetByID(ctx, tx, problemID)
		if err != nil {
			return err
		}
		if !found {
			return repository.ErrProblemNotFound
		}
		previous = current.StatusID
		if err := s.repo.Update(ctx, tx, problem); err != nil {
			return err
		}
		if previous == problem.StatusID {
			return nil
		}
		_, err = s.repo.AppendStatusChange(ctx, tx, &repository.StatusChange{
			ProblemID:        problemID,
			PreviousStatusID: &previous,
			NewStatusID:      problem.StatusID,
			UserID:           ac.UserID,
		})
		return err
	})
	if err != nil {
		return mapRepoError(err, "update problem", pkgerrors.ProblemUpdateFailed)
	}

	event := model.ProblemEvent{
		EventType:   model.ProblemEventUpdated,
		ProblemID:   problemID,
		ActorUserID: ac.UserID,
	}
	if previous != problem.StatusID {
		next := problem.StatusID
		event.PreviousStatus = &previous
		event.NewStatus = &next
	}
	s.publish(ctx, event)
	return nil
}

// ChangeStatus moves the problem to status. Any state may follow any other;
// entering RESOLVED stamps the resolution date. Every request is logged to
// the history, including a transition to the current state.
func (s *ProblemService) ChangeStatus(ctx context.Context, ac *authz.Context, problemID, status int64) error {
	if err := s.authz.Require(ac, writePermissions...); err != nil {
		return err
	}
	if problemID <= 0 {
		return pkgerrors.New(pkgerrors.InvalidParams)
	}
	if !repository.IsValidStatus(status) {
		return pkgerrors.Newf(pkgerrors.InvalidStatus, "invalid problem status %d", status).WithDetail("status_id", status)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var previous int64
	err := s.db.Transaction(ctx, func(tx db.Transaction) error {
		current, found, err := s.repo.GetByID(ctx, tx, problemID)
		if err != nil {
			return err
		}
		if !found {
			return repository.ErrProblemNotFound
		}
		previous = current.StatusID
		if err := s.repo.UpdateStatus(ctx, tx, problemID, status, ac.UserID); err != nil {
			return err
		}
		_, err = s.repo.AppendStatusChange(ctx, tx, &repository.StatusChange{
			ProblemID:        problemID,
			PreviousStatusID: &previous,
			NewStatusID:      status,
			UserID:           ac.UserID,
		})
		return err
	})
	if err != nil {
		return mapRepoError(err, "change problem status", pkgerrors.ProblemUpdateFailed)
	}

	s.publish(ctx, model.ProblemEvent{
		EventType:      model.ProblemEventStatusChanged,
		ProblemID:      problemID,
		PreviousStatus: &previous,
		NewStatus:      &status,
		ActorUserID:    ac.UserID,
	})
	return nil
}

// Delete removes the problem with its links, comments, history and solutions.
func (s *ProblemService) Delete(ctx context.Context, ac *authz.Context, problemID int64) error {
	if err := s.authz.Require(ac, writePermissions...); err != nil {
		return err
	}
	if problemID <= 0 {
		return pkgerrors.New(pkgerrors.InvalidParams)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.Delete(ctx, nil, problemID); err != nil {
		return mapRepoError(err, "delete problem", pkgerrors.ProblemDeleteFailed)
	}
	logger.Info(ctx, "problem deleted", zap.Int64("problem_id", problemID))

	s.publish(ctx, model.ProblemEvent{
		EventType:   model.ProblemEventDeleted,
		ProblemID:   problemID,
		ActorUserID: ac.UserID,
	})
	return nil
}

func (s *ProblemService) LinkIncident(ctx context.Context, ac *authz.Context, problemID, incidentID int64) error {
	if err := s.authz.Require(ac, writePermissions...); err != nil {
		return err
	}
	if problemID <= 0 || incidentID <= 0 {
		return pkgerrors.New(pkgerrors.InvalidParams)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.requireProblem(ctx, problemID); err != nil {
		return err
	}
	if err := s.repo.LinkIncident(ctx, nil, problemID, incidentID, ac.UserID); err != nil {
		return mapRepoError(err, "link incident", pkgerrors.IncidentLinkFailed)
	}

	s.publish(ctx, model.ProblemEvent{
		EventType:   model.ProblemEventIncidentLinked,
		ProblemID:   problemID,
		IncidentID:  &incidentID,
		ActorUserID: ac.UserID,
	})
	return nil
}

// UnlinkIncident succeeds when the incident was not linked.
func (s *ProblemService) UnlinkIncident(ctx context.Context, ac *authz.Context, problemID, incidentID int64) error {
	if err := s.authz.Require(ac, writePermissions...); err != nil {
		return err
	}
	if problemID <= 0 || incidentID <= 0 {
		return pkgerrors.New(pkgerrors.InvalidParams)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.requireProblem(ctx, problemID); err != nil {
		return err
	}
	if err := s.repo.UnlinkIncident(ctx, nil, problemID, incidentID); err != nil {
		return mapRepoError(err, "unlink incident", pkgerrors.IncidentUnlinkFailed)
	}

	s.publish(ctx, model.ProblemEvent{
		EventType:   model.ProblemEventIncidentUnlinked,
		ProblemID:   problemID,
		IncidentID:  &incidentID,
		ActorUserID: ac.UserID,
	})
	return nil
}

func (s *ProblemService) ListLinkedIncidents(ctx context.Context, ac *authz.Context, problemID int64) ([]repository.LinkedIncident, error) {
	return listOwned(ctx, s, ac, problemID, "list linked incidents", s.repo.ListLinkedIncidents)
}

func (s *ProblemService) ListComments(ctx context.Context, ac *authz.Context, problemID int64) ([]repository.Comment, error) {
	return listOwned(ctx, s, ac, problemID, "list comments", s.repo.ListComments)
}

func (s *ProblemService) ListSolutions(ctx context.Context, ac *authz.Context, problemID int64) ([]repository.Solution, error) {
	return listOwned(ctx, s, ac, problemID, "list solutions", s.repo.ListSolutions)
}

func (s *ProblemService) ListStatusHistory(ctx context.Context, ac *authz.Context, problemID int64) ([]repository.StatusChange, error) {
	return listOwned(ctx, s, ac, problemID, "list status history", s.repo.ListStatusHistory)
}

func listOwned[T any](
	ctx context.Context,
	s *ProblemService,
	ac *authz.Context,
	problemID int64,
	op string,
	list func(context.Context, db.Transaction, int64) ([]T, error),
) ([]T, error) {
	if err := s.authz.Require(ac, readPermissions...); err != nil {
		return nil, err
	}
	if problemID <= 0 {
		return nil, pkgerrors.New(pkgerrors.InvalidParams)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.requireProblem(ctx, problemID); err != nil {
		return nil, err
	}
	items, err := list(ctx, nil, problemID)
	if err != nil {
		return nil, mapRepoError(err, op, pkgerrors.DatabaseError)
	}
	return items, nil
}

func (s *ProblemService) AddComment(ctx context.Context, ac *authz.Context, problemID int64, input CommentInput) (int64, error) {
	if err := s.authz.Require(ac, writePermissions...); err != nil {
		return 0, err
	}
	if problemID <= 0 {
		return 0, pkgerrors.New(pkgerrors.InvalidParams)
	}
	input.Body = strings.TrimSpace(input.Body)
	input.Kind = strings.ToUpper(strings.TrimSpace(input.Kind))
	if err := validate.Struct(input); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.requireProblem(ctx, problemID); err != nil {
		return 0, err
	}
	id, err := s.repo.AddComment(ctx, nil, &repository.Comment{
		ProblemID: problemID,
		UserID:    ac.UserID,
		Body:      input.Body,
		Kind:      input.Kind,
	})
	if err != nil {
		return 0, mapRepoError(err, "add comment", pkgerrors.CommentCreateFailed)
	}
	return id, nil
}

func (s *ProblemService) AddSolution(ctx context.Context, ac *authz.Context, problemID int64, input SolutionInput) (int64, error) {
	if err := s.authz.Require(ac, writePermissions...); err != nil {
		return 0, err
	}
	if problemID <= 0 {
		return 0, pkgerrors.New(pkgerrors.InvalidParams)
	}
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.SolutionType = strings.ToUpper(strings.TrimSpace(input.SolutionType))
	if err := validate.Struct(input); err != nil {
		return 0, err
	}
	if !repository.IsValidSolutionType(input.SolutionType) {
		return 0, pkgerrors.Newf(pkgerrors.InvalidSolutionType, "invalid solution type %q", input.SolutionType).
			WithDetail("allowed", []string{repository.SolutionWorkaround, repository.SolutionPermanentFix})
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.requireProblem(ctx, problemID); err != nil {
		return 0, err
	}
	id, err := s.repo.AddSolution(ctx, nil, &repository.Solution{
		ProblemID:    problemID,
		Title:        input.Title,
		Description:  input.Description,
		SolutionType: input.SolutionType,
		UserID:       ac.UserID,
	})
	if err != nil {
		return 0, mapRepoError(err, "add solution", pkgerrors.SolutionCreateFailed)
	}
	return id, nil
}

// Statistics never reports storage failures; only authorization can fail.
func (s *ProblemService) Statistics(ctx context.Context, ac *authz.Context, responsibleID *int64) (repository.Statistics, error) {
	if err := s.authz.Require(ac, statsPermissions...); err != nil {
		return repository.EmptyStatistics(), err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.repo.Statistics(ctx, responsibleID), nil
}

func (s *ProblemService) Catalogs(ctx context.Context, ac *authz.Context) (*Catalogs, error) {
	if err := s.authz.Require(ac, readPermissions...); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		out Catalogs
		err error
	)
	if out.Categories, err = s.catalogs.Categories(ctx); err != nil {
		return nil, mapRepoError(err, "list categories", pkgerrors.DatabaseError)
	}
	if out.Impacts, err = s.catalogs.Impacts(ctx); err != nil {
		return nil, mapRepoError(err, "list impacts", pkgerrors.DatabaseError)
	}
	if out.Statuses, err = s.catalogs.Statuses(ctx); err != nil {
		return nil, mapRepoError(err, "list statuses", pkgerrors.DatabaseError)
	}
	if out.Priorities, err = s.catalogs.Priorities(ctx); err != nil {
		return nil, mapRepoError(err, "list priorities", pkgerrors.DatabaseError)
	}
	return &out, nil
}

func (s *ProblemService) ResponsibleCandidates(ctx context.Context, ac *authz.Context) ([]dirrepo.Employee, error) {
	if err := s.authz.Require(ac, readPermissions...); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	employees, err := s.directory.ResponsibleCandidates(ctx)
	if err != nil {
		return nil, mapRepoError(err, "list responsible candidates", pkgerrors.DatabaseError)
	}
	return employees, nil
}

func (s *ProblemService) requireProblem(ctx context.Context, problemID int64) error {
	found, err := s.repo.Exists(ctx, nil, problemID)
	if err != nil {
		return mapRepoError(err, "check problem", pkgerrors.DatabaseError)
	}
	if !found {
		return pkgerrors.New(pkgerrors.ProblemNotFound)
	}
	return nil
}

// publish is best effort: a failure is logged and never fails the request.
func (s *ProblemService) publish(ctx context.Context, event model.ProblemEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		logger.Warn(ctx, "publish problem event failed",
			zap.String("event_type", event.EventType),
			zap.Int64("problem_id", event.ProblemID),
			zap.Error(err))
	}
}

// mapRepoError turns a storage error into a coded error. Errors that already
// carry a code pass through.
func mapRepoError(err error, op string, fallback pkgerrors.ErrorCode) error {
	var coded *pkgerrors.Error
	switch {
	case errors.As(err, &coded):
		return err
	case errors.Is(err, repository.ErrProblemNotFound):
		return pkgerrors.New(pkgerrors.ProblemNotFound)
	case errors.Is(err, repository.ErrIncidentNotFound):
		return pkgerrors.New(pkgerrors.IncidentNotFound)
	case errors.Is(err, pkgrepo.ErrNotFound):
		return pkgerrors.Wrapf(err, pkgerrors.RecordNotFound, "%s: %s", op, pkgerrors.RecordNotFound.Message())
	case errors.Is(err, pkgrepo.ErrConflict):
		return pkgerrors.Wrapf(err, pkgerrors.DependencyConflict, "%s: %s", op, pkgerrors.DependencyConflict.Message())
	case errors.Is(err, pkgrepo.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return pkgerrors.Wrapf(err, pkgerrors.DatabaseTimeout, "%s: %s", op, pkgerrors.DatabaseTimeout.Message())
	case errors.Is(err, pkgrepo.ErrConnectionFailed):
		return pkgerrors.Wrapf(err, pkgerrors.DatabaseUnavailable, "%s: %s", op, pkgerrors.DatabaseUnavailable.Message())
	default:
		return pkgerrors.Wrap(fmt.Errorf("%s failed: %w", op, err), fallback)
	}
}
