package repository

import "time"

// Problem status ids, fixed by the problem_status reference table.
const (
	StatusIdentified       int64 = 1
	StatusInAnalysis       int64 = 2
	StatusInImplementation int64 = 3
	StatusResolved         int64 = 4
)

// ImpactHigh is the impact id counted as high impact in statistics.
const ImpactHigh int64 = 1

const (
	SolutionWorkaround   = "WORKAROUND"
	SolutionPermanentFix = "PERMANENT_FIX"
	CommentKindDefault   = "COMMENT"
)

// Labels shown when a referenced row is missing.
const (
	PlaceholderCategory   = "Sin categoría"
	PlaceholderStatus     = "Sin estado"
	PlaceholderImpact     = "Sin impacto"
	PlaceholderPriority   = "Sin prioridad"
	PlaceholderCI         = "Sin CI"
	PlaceholderTechnician = "Sin asignar"
	PlaceholderUser       = "Usuario desconocido"
	PlaceholderNewStatus  = "Estado desconocido"
)

// IsValidStatus reports whether status is one of the four workflow states.
func IsValidStatus(status int64) bool {
	return status >= StatusIdentified && status <= StatusResolved
}

// IsValidSolutionType reports whether t is a known proposed-solution type.
func IsValidSolutionType(t string) bool {
	return t == SolutionWorkaround || t == SolutionPermanentFix
}

// Problem is the root-cause record.
type Problem struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	IdentifiedAt  time.Time  `json:"identified_at"`
	ResolvedAt    *time.Time `json:"resolved_at"`
	PriorityID    int64      `json:"priority_id"`
	CategoryID    int64      `json:"category_id"`
	ImpactID      int64      `json:"impact_id"`
	StatusID      int64      `json:"status_id"`
	ResponsibleID *int64     `json:"responsible_id"`
	CreatedBy     int64      `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	ModifiedBy    *int64     `json:"modified_by"`
	ModifiedAt    *time.Time `json:"modified_at"`
}

// ProblemDetail is a problem with its reference ids resolved to labels.
type ProblemDetail struct {
	Problem
	PriorityLabel   string  `json:"priority"`
	CategoryLabel   string  `json:"category"`
	ImpactLabel     string  `json:"impact"`
	StatusLabel     string  `json:"status"`
	ResponsibleName *string `json:"responsible_name"`
}

// ProblemFilter narrows List. Nil fields and an empty Search are ignored.
type ProblemFilter struct {
	StatusID      *int64
	PriorityID    *int64
	CategoryID    *int64
	ResponsibleID *int64
	Search        string
}

// LinkedIncident is the incident summary shown on a problem.
type LinkedIncident struct {
	IncidentID     int64      `json:"incident_id"`
	Description    string     `json:"description"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
	PriorityID     int64      `json:"priority_id"`
	StatusID       int64      `json:"status_id"`
	CIID           *int64     `json:"ci_id"`
	TechnicianID   *int64     `json:"technician_id"`
	PriorityLabel  string     `json:"priority"`
	StatusLabel    string     `json:"status"`
	CIName         string     `json:"ci_name"`
	TechnicianName string     `json:"technician_name"`
	LinkedBy       int64      `json:"linked_by"`
	LinkedAt       time.Time  `json:"linked_at"`
}

// Comment is an append-only note on a problem.
type Comment struct {
	ID         int64     `json:"id"`
	ProblemID  int64     `json:"problem_id"`
	UserID     int64     `json:"user_id"`
	Body       string    `json:"body"`
	Kind       string    `json:"kind"`
	CreatedAt  time.Time `json:"created_at"`
	AuthorName string    `json:"author_name,omitempty"`
}

// StatusChange is one entry of the status audit log.
type StatusChange struct {
	ID               int64     `json:"id"`
	ProblemID        int64     `json:"problem_id"`
	PreviousStatusID *int64    `json:"previous_status_id"`
	NewStatusID      int64     `json:"new_status_id"`
	UserID           int64     `json:"user_id"`
	ChangedAt        time.Time `json:"changed_at"`
	PreviousStatus   *string   `json:"previous_status,omitempty"`
	NewStatus        string    `json:"new_status,omitempty"`
	UserName         string    `json:"user_name,omitempty"`
}

// Solution is a proposed workaround or permanent fix.
type Solution struct {
	ID           int64     `json:"id"`
	ProblemID    int64     `json:"problem_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	SolutionType string    `json:"solution_type"`
	UserID       int64     `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	AuthorName   string    `json:"author_name,omitempty"`
}

// LabelCount is one bucket of a grouped count.
type LabelCount struct {
	Label string `json:"label"`
	Total int64  `json:"total"`
}

// Statistics aggregates problems, optionally for one responsible employee.
type Statistics struct {
	Total             int64        `json:"total"`
	Open              int64        `json:"abiertos"`
	Resolved          int64        `json:"resueltos"`
	HighImpact        int64        `json:"alto_impacto"`
	ByCategory        []LabelCount `json:"por_categoria"`
	ByStatus          []LabelCount `json:"por_estado"`
	AvgResolutionDays float64      `json:"tiempo_promedio"`
}

// EmptyStatistics is the zero result, with non-nil slices so it encodes as [].
func EmptyStatistics() Statistics {
	return Statistics{ByCategory: []LabelCount{}, ByStatus: []LabelCount{}}
}

// CatalogItem is a reference-table row.
type CatalogItem struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
