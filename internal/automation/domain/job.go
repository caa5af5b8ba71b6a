package domain

import "time"

// Job status constants. The slice below fixes the forward traversal order;
// FAILED and CANCELLED are absorbing from any non-terminal status.
const (
	StatusPending         = "PENDING"
	StatusAnalyzing       = "ANALYZING"
	StatusBrowserStarting = "BROWSER_STARTING"
	StatusLoggingIn       = "LOGGING_IN"
	StatusNavigating      = "NAVIGATING"
	StatusFillingForms    = "FILLING_FORMS"
	StatusSubmitting      = "SUBMITTING"
	StatusVerifying       = "VERIFYING"
	StatusCompleted       = "COMPLETED"
	StatusFailed          = "FAILED"
	StatusCancelled       = "CANCELLED"
)

// PhaseOrder is the happy-path status sequence. A job may skip statuses but
// never move backwards.
var PhaseOrder = []string{
	StatusPending,
	StatusAnalyzing,
	StatusBrowserStarting,
	StatusLoggingIn,
	StatusNavigating,
	StatusFillingForms,
	StatusSubmitting,
	StatusVerifying,
	StatusCompleted,
}

var phaseRank = func() map[string]int {
	m := make(map[string]int, len(PhaseOrder))
	for i, s := range PhaseOrder {
		m[s] = i
	}
	return m
}()

// IsTerminal reports whether a status accepts no further transitions.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusCancelled
}

// CanTransition reports whether a job may move from one status to another.
// Forward moves along PhaseOrder (skips included) are allowed, as are moves
// into FAILED or CANCELLED from any non-terminal status.
func CanTransition(from, to string) bool {
	if IsTerminal(from) {
		return false
	}
	if to == StatusFailed || to == StatusCancelled {
		return true
	}
	fromRank, ok := phaseRank[from]
	if !ok {
		return false
	}
	toRank, ok := phaseRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// PhaseChange is one entry in a job's phase history.
type PhaseChange struct {
	Phase string    `json:"phase"`
	At    time.Time `json:"at"`
}

// ProgressSnapshot is the single authoritative progress record for a job.
// The orchestrator and the engine progress consumer both write it through
// the registry; API responses project it read-only.
type ProgressSnapshot struct {
	Phase           string        `json:"phase"`
	CurrentUnit     int           `json:"current_unit,omitempty"`
	CurrentStep     int           `json:"current_step,omitempty"`
	CompletedSteps  int           `json:"completed_steps"`
	Percentage      float64       `json:"percentage"`
	CurrentCategory string        `json:"current_category,omitempty"`
	Message         string        `json:"message,omitempty"`
	PhaseHistory    []PhaseChange `json:"phase_history,omitempty"`
}

// RecoveryState tracks retry accounting for a job.
type RecoveryState struct {
	RetryCount   int      `json:"retry_count"`
	MaxRetries   int      `json:"max_retries"`
	LastError    string   `json:"last_error,omitempty"`
	ActionsTaken []string `json:"actions_taken,omitempty"`
}

// DefaultMaxRetries is the retry budget a new job starts with.
const DefaultMaxRetries = 3

// Preferences carries per-job user options supplied at creation.
type Preferences struct {
	Headless         bool `json:"headless"`
	NotifyOnComplete bool `json:"notify_on_complete"`
	NotifyOnFailure  bool `json:"notify_on_failure"`
}

// Credentials authenticates the automation session against the portal.
// Storage and retrieval of these is the credential vault's concern; this
// core only passes them through to the engine's login call.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AutomationJob is the orchestration unit: one compiled strategy being driven
// through the portal by one engine session.
type AutomationJob struct {
	JobID       string             `json:"job_id"`
	VisitID     string             `json:"visit_id,omitempty"`
	WorkOrderID string             `json:"work_order_id,omitempty"`
	UserID      string             `json:"user_id"`
	Strategy    *DispenserStrategy `json:"strategy"`
	Site        SiteDescriptor     `json:"site"`
	Preferences Preferences        `json:"preferences"`
	Status      string             `json:"status"`
	SessionID   string             `json:"session_id,omitempty"`
	Progress    ProgressSnapshot   `json:"progress"`
	Recovery    RecoveryState      `json:"recovery"`
	Errors      []string           `json:"errors,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// JobStatusView is the read-only projection served to API callers.
type JobStatusView struct {
	JobID       string           `json:"job_id"`
	VisitID     string           `json:"visit_id,omitempty"`
	WorkOrderID string           `json:"work_order_id,omitempty"`
	UserID      string           `json:"user_id"`
	Status      string           `json:"status"`
	SiteName    string           `json:"site_name"`
	Progress    ProgressSnapshot `json:"progress"`
	Recovery    RecoveryState    `json:"recovery"`
	TotalSteps  int              `json:"total_steps"`
	UnitCount   int              `json:"unit_count"`
	Errors      []string         `json:"errors,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// JobSummary is the condensed row returned by user-scoped listings.
type JobSummary struct {
	JobID      string    `json:"job_id"`
	Status     string    `json:"status"`
	SiteName   string    `json:"site_name"`
	Percentage float64   `json:"percentage"`
	UnitCount  int       `json:"unit_count"`
	CreatedAt  time.Time `json:"created_at"`
}
