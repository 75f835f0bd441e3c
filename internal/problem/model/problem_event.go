package model

import "time"

const (
	ProblemEventCreated          = "problem.created"
	ProblemEventUpdated          = "problem.updated"
	ProblemEventStatusChanged    = "problem.status_changed"
	ProblemEventDeleted          = "problem.deleted"
	ProblemEventIncidentLinked   = "problem.incident_linked"
	ProblemEventIncidentUnlinked = "problem.incident_unlinked"
)

// ProblemEvent is published after a problem change has been committed.
type ProblemEvent struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	ProblemID      int64     `json:"problem_id"`
	PreviousStatus *int64    `json:"previous_status,omitempty"`
	NewStatus      *int64    `json:"new_status,omitempty"`
	IncidentID     *int64    `json:"incident_id,omitempty"`
	ActorUserID    int64     `json:"actor_user_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}
