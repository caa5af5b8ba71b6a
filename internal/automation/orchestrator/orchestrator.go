// Package orchestrator drives automation jobs end to end: it owns the phase
// sequence, the engine session lifecycle, and the notifications fired at
// terminal transitions. All job state flows through the registry.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/domain"
	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/engine"
	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/notify"
	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/registry"
	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/store"
)

// Phase percentages pinned by the orchestrator at each transition.
const (
	pctAnalyzing       = 2
	pctBrowserStarting = 5
	pctLoggingIn       = 10
	pctNavigating      = 20
	pctFillingForms    = 30
	pctVerifying       = 95
	pctCompleted       = 100
)

const cleanupTimeout = 15 * time.Second

// Config holds orchestrator configuration.
type Config struct {
	Logger *slog.Logger
	// PortalBaseURL roots the target URLs resolved for each run.
	PortalBaseURL string
}

// Orchestrator executes jobs against the automation engine.
type Orchestrator struct {
	registry      *registry.Registry
	engine        engine.Engine
	notifier      notify.Notifier
	mirror        store.Mirror
	logger        *slog.Logger
	portalBaseURL string

	baseCtx context.Context
}

// New creates an orchestrator. Start must be called before jobs are
// launched.
func New(cfg *Config, reg *registry.Registry, eng engine.Engine, notifier notify.Notifier, mirror store.Mirror) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if mirror == nil {
		mirror = store.NopMirror{}
	}

	return &Orchestrator{
		registry:      reg,
		engine:        eng,
		notifier:      notifier,
		mirror:        mirror,
		logger:        logger,
		portalBaseURL: strings.TrimRight(cfg.PortalBaseURL, "/"),
		baseCtx:       context.Background(),
	}
}

// Start binds the orchestrator to the service lifetime context. Job
// executions derive from it, so service shutdown aborts in-flight runs.
func (o *Orchestrator) Start(ctx context.Context) {
	o.baseCtx = ctx
}

// CreateJob compiles the work order, registers the job, mirrors the initial
// snapshot, and launches execution in the background. Compilation errors
// propagate unchanged and nothing is launched.
func (o *Orchestrator) CreateJob(ctx context.Context, userID string, order *domain.WorkOrderRecord, prefs domain.Preferences, creds domain.Credentials) (*domain.AutomationJob, error) {
	job, err := o.registry.CreateJob(userID, order, prefs)
	if err != nil {
		return nil, err
	}

	if err := o.mirror.InsertJob(ctx, job); err != nil {
		o.logger.Error("Failed to mirror job snapshot",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
	}

	go o.Execute(o.baseCtx, job.JobID, creds)

	return job, nil
}

// JobStatus returns the status view for a job, or false when unknown.
func (o *Orchestrator) JobStatus(jobID string) (*domain.JobStatusView, bool) {
	return o.registry.StatusView(jobID)
}

// ListJobs returns a user's job summaries, newest first.
func (o *Orchestrator) ListJobs(userID, statusFilter string, limit int) []domain.JobSummary {
	return o.registry.ListForUser(userID, statusFilter, limit)
}

// CancelJob cancels a job cooperatively: the job's execution context is
// canceled so in-flight engine calls abort, and the engine session, if one
// is bound, is asked to close. Returns whether the job existed.
func (o *Orchestrator) CancelJob(ctx context.Context, jobID string) bool {
	sessionID, existed := o.registry.Cancel(jobID)
	if !existed {
		return false
	}

	if sessionID != "" {
		o.closeSession(sessionID)
	}
	o.mirrorUpdate(jobID)

	return true
}

// Execute drives one job through its phases. It exits silently when the job
// is cancelled underneath it; every other failure lands the job in FAILED
// with the cause retained.
func (o *Orchestrator) Execute(parent context.Context, jobID string, creds domain.Credentials) {
	job, ok := o.registry.Job(jobID)
	if !ok {
		o.logger.Warn("Execution requested for unknown job",
			slog.String("job_id", jobID),
		)
		return
	}

	ctx := o.registry.AttachExecution(parent, jobID)
	start := time.Now()
	sessionID := "session-" + uuid.New().String()

	logger := o.logger.With(
		slog.String("job_id", jobID),
		slog.String("session_id", sessionID),
	)

	if !o.transition(jobID, domain.StatusAnalyzing, pctAnalyzing) {
		return
	}
	units := buildUnitConfigs(job.Strategy)

	// Phase 1: session acquisition.
	if !o.transition(jobID, domain.StatusBrowserStarting, pctBrowserStarting) {
		return
	}
	if err := o.engine.CreateSession(ctx, sessionID); err != nil {
		o.fail(jobID, sessionID, fmt.Errorf("%w: %v", domain.ErrSessionAcquisition, err))
		return
	}
	o.registry.BindSession(jobID, sessionID)

	// Phase 2: portal login.
	if !o.transition(jobID, domain.StatusLoggingIn, pctLoggingIn) {
		return
	}
	loggedIn, err := o.engine.Login(ctx, sessionID, creds)
	if err != nil {
		o.fail(jobID, sessionID, fmt.Errorf("%w: %v", domain.ErrLoginFailed, err))
		return
	}
	if !loggedIn {
		o.fail(jobID, sessionID, domain.ErrLoginFailed)
		return
	}

	// Phase 3: target resolution. Degrades to the dashboard, never fails.
	if !o.transition(jobID, domain.StatusNavigating, pctNavigating) {
		return
	}
	targetURL := o.resolveTargetURL(job)
	logger.Info("Resolved automation target",
		slog.String("target_url", targetURL),
	)

	// Phase 4: the visit run. This is the long call; progress streams in
	// through the progress consumer while it executes.
	if !o.transition(jobID, domain.StatusFillingForms, pctFillingForms) {
		return
	}
	result, err := o.engine.RunVisitAutomation(ctx, sessionID, targetURL, units)
	if err != nil {
		o.fail(jobID, sessionID, fmt.Errorf("%w: %v", domain.ErrEngineFailure, err))
		return
	}
	if !result.Success {
		cause := domain.ErrEngineFailure
		if len(result.Errors) > 0 {
			cause = fmt.Errorf("%w: %s", domain.ErrEngineFailure, strings.Join(result.Errors, "; "))
		}
		o.fail(jobID, sessionID, cause)
		return
	}

	// Phase 5: verification. A unit-count mismatch is logged, not fatal.
	if !o.transition(jobID, domain.StatusVerifying, pctVerifying) {
		return
	}
	expected := job.Strategy.UnitCount()
	if result.UnitsProcessed != expected {
		logger.Warn("Processed unit count differs from plan",
			slog.Int("expected", expected),
			slog.Int("processed", result.UnitsProcessed),
			slog.Int("failed", result.UnitsFailed),
		)
	}

	if !o.transition(jobID, domain.StatusCompleted, pctCompleted) {
		return
	}

	elapsed := time.Since(start)
	logger.Info("Automation job completed",
		slog.Duration("elapsed", elapsed),
		slog.Int("units_processed", result.UnitsProcessed),
	)

	if job.Preferences.NotifyOnComplete {
		o.notifier.Notify(o.baseCtx, job.UserID, notify.TriggerAutomationCompleted, map[string]any{
			"job_id":          jobID,
			"site_name":       job.Site.Name,
			"elapsed_seconds": int(elapsed.Seconds()),
			"units_planned":   expected,
			"units_processed": result.UnitsProcessed,
			"units_failed":    result.UnitsFailed,
		})
	}

	o.closeSession(sessionID)
	o.mirrorUpdate(jobID)
}

// HandleProgress is the engine progress callback: it resolves the session to
// its job and merges the reported fields into the job's progress snapshot.
// Reports for unknown or finished sessions are dropped.
func (o *Orchestrator) HandleProgress(report engine.ProgressReport) {
	jobID, ok := o.registry.ResolveSession(report.SessionID)
	if !ok {
		o.logger.Debug("Progress report for unresolvable session",
			slog.String("session_id", report.SessionID),
		)
		return
	}

	upd := registry.ProgressUpdate{
		Phase:   report.Phase,
		Message: report.Message,
	}
	pct := report.Percentage
	upd.Percentage = &pct
	if report.CurrentUnit > 0 {
		unit := report.CurrentUnit
		upd.CurrentUnit = &unit
	}

	o.registry.UpdateProgress(jobID, upd)
}

// transition applies a status move; a rejection means the job went terminal
// underneath us (cancellation, typically) and execution should stop.
func (o *Orchestrator) transition(jobID, status string, percentage float64) bool {
	if err := o.registry.Transition(jobID, status, percentage); err != nil {
		o.logger.Info("Stopping execution, transition rejected",
			slog.String("job_id", jobID),
			slog.String("status", status),
			slog.String("reason", err.Error()),
		)
		return false
	}
	o.mirrorUpdate(jobID)
	return true
}

// fail lands the job in FAILED (unless already terminal), notifies, and
// releases the session. A job that is already CANCELLED only gets cleanup:
// the aborted engine call's error is not a failure of its own.
func (o *Orchestrator) fail(jobID, sessionID string, cause error) {
	if job, ok := o.registry.Job(jobID); ok && job.Status == domain.StatusCancelled {
		o.logger.Info("Execution aborted by cancellation",
			slog.String("job_id", jobID),
		)
		o.closeSession(sessionID)
		return
	}

	o.registry.RecordFailure(jobID, cause)

	job, ok := o.registry.Job(jobID)
	if ok && job.Preferences.NotifyOnFailure {
		o.notifier.Notify(o.baseCtx, job.UserID, notify.TriggerAutomationFailed, map[string]any{
			"job_id":          jobID,
			"site_name":       job.Site.Name,
			"error":           cause.Error(),
			"percentage":      job.Progress.Percentage,
			"retry_available": job.Recovery.RetryCount < job.Recovery.MaxRetries,
		})
	}

	o.closeSession(sessionID)
	o.mirrorUpdate(jobID)
}

// closeSession releases the engine session on its own timeout, detached from
// the job context, which may already be canceled.
func (o *Orchestrator) closeSession(sessionID string) {
	if sessionID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := o.engine.CloseSession(ctx, sessionID); err != nil {
		o.logger.Warn("Failed to close engine session",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) mirrorUpdate(jobID string) {
	job, ok := o.registry.Job(jobID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := o.mirror.UpdateJob(ctx, job); err != nil {
		o.logger.Error("Failed to mirror job snapshot",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// resolveTargetURL picks the portal entry point for the run: the visit page
// when a visit id is known, the work-order-scoped visit creation page when
// only the work order is, and the dashboard as the last resort.
func (o *Orchestrator) resolveTargetURL(job *domain.AutomationJob) string {
	switch {
	case job.VisitID != "":
		return fmt.Sprintf("%s/visits/%s", o.portalBaseURL, job.VisitID)
	case job.WorkOrderID != "":
		return fmt.Sprintf("%s/workorders/%s/visits/new", o.portalBaseURL, job.WorkOrderID)
	default:
		return o.portalBaseURL + "/dashboard"
	}
}

// buildUnitConfigs translates the compiled strategy into the engine's
// per-dispenser instruction list.
func buildUnitConfigs(plan *domain.DispenserStrategy) []engine.UnitConfig {
	units := make([]engine.UnitConfig, 0, len(plan.UnitNumbers))
	for _, unit := range plan.UnitNumbers {
		units = append(units, engine.UnitConfig{
			UnitNumber:    unit,
			Categories:    plan.CategoriesByUnit[unit],
			Measured:      plan.MeasuredByUnit[unit],
			Unmeasured:    plan.UnmeasuredByUnit[unit],
			Template:      string(plan.Template),
			ProcedureCode: string(plan.ProcedureCode),
		})
	}
	return units
}
