package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/domain"
	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/strategy"
)

// Config holds registry configuration.
type Config struct {
	Logger *slog.Logger
	// MaxJobs bounds the store. Creation fails once the bound is reached
	// and no terminal job can be evicted to make room.
	MaxJobs int
	// Retention is how long a terminal job stays queryable before the
	// sweeper evicts it.
	Retention time.Duration
	// SweepInterval is how often the sweeper runs.
	SweepInterval time.Duration
}

const (
	defaultMaxJobs       = 200
	defaultRetention     = 2 * time.Hour
	defaultSweepInterval = time.Minute
)

// entry pairs a job record with its own mutex so phase transitions and
// progress-callback merges on one job are serialized, and with the cancel
// func for the job's execution context.
type entry struct {
	mu     sync.Mutex
	job    *domain.AutomationJob
	cancel context.CancelFunc
}

// Registry is the process-wide store of automation jobs. It is the only
// writer of job state: the orchestrator and the progress consumer both go
// through its operations. The store is bounded and sweeps terminal jobs
// past retention; it owns no external resources.
type Registry struct {
	logger        *slog.Logger
	maxJobs       int
	retention     time.Duration
	sweepInterval time.Duration

	mu   sync.RWMutex
	jobs map[string]*entry

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a registry. Zero config fields take defaults.
func New(cfg *Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxJobs := cfg.MaxJobs
	if maxJobs <= 0 {
		maxJobs = defaultMaxJobs
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}

	return &Registry{
		logger:        logger,
		maxJobs:       maxJobs,
		retention:     retention,
		sweepInterval: sweepInterval,
		jobs:          make(map[string]*entry),
		stopChan:      make(chan struct{}),
	}
}

// Start launches the eviction sweeper. It returns immediately; the sweeper
// stops when ctx is canceled or Close is called.
func (r *Registry) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.stopChan:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				evicted := r.sweep(time.Now())
				if evicted > 0 {
					r.logger.Debug("Evicted expired jobs",
						slog.Int("count", evicted),
					)
				}
			}
		}
	}()
}

// Close stops the sweeper and waits for it to exit.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()
}

// Clear drops every job. Intended for shutdown and test teardown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = make(map[string]*entry)
}

// Len reports how many jobs the store currently holds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// CreateJob compiles the work order into a strategy and registers a new
// PENDING job for it. Compilation errors propagate unchanged and no job is
// created. No external resource is acquired here.
func (r *Registry) CreateJob(userID string, order *domain.WorkOrderRecord, prefs domain.Preferences) (*domain.AutomationJob, error) {
	plan, err := strategy.Compile(order)
	if err != nil {
		return nil, err
	}

	job := &domain.AutomationJob{
		JobID:       uuid.New().String(),
		VisitID:     order.VisitID,
		WorkOrderID: order.WorkOrderID,
		UserID:      userID,
		Strategy:    plan,
		Site:        order.Site,
		Preferences: prefs,
		Status:      domain.StatusPending,
		Progress: domain.ProgressSnapshot{
			Phase:      "initialized",
			Percentage: 0,
		},
		Recovery: domain.RecoveryState{
			MaxRetries: domain.DefaultMaxRetries,
		},
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.jobs) >= r.maxJobs {
		if !r.evictOneTerminalLocked() {
			return nil, domain.ErrJobLimitReached
		}
	}

	r.jobs[job.JobID] = &entry{job: job}

	r.logger.Info("Automation job created",
		slog.String("job_id", job.JobID),
		slog.String("user_id", userID),
		slog.String("procedure_code", string(plan.ProcedureCode)),
		slog.Int("unit_count", plan.UnitCount()),
		slog.Int("total_steps", plan.TotalSteps),
	)

	return cloneJob(job), nil
}

// Job returns a copy of the full job record, or false when absent.
func (r *Registry) Job(jobID string) (*domain.AutomationJob, bool) {
	e, ok := r.lookup(jobID)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneJob(e.job), true
}

// StatusView returns the read-only status projection for a job, or false
// when the id is unknown. Absence is an ordinary result, never an error.
func (r *Registry) StatusView(jobID string) (*domain.JobStatusView, bool) {
	e, ok := r.lookup(jobID)
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	job := e.job
	view := &domain.JobStatusView{
		JobID:       job.JobID,
		VisitID:     job.VisitID,
		WorkOrderID: job.WorkOrderID,
		UserID:      job.UserID,
		Status:      job.Status,
		SiteName:    job.Site.Name,
		Progress:    cloneProgress(job.Progress),
		Recovery:    cloneRecovery(job.Recovery),
		TotalSteps:  job.Strategy.TotalSteps,
		UnitCount:   job.Strategy.UnitCount(),
		Errors:      append([]string(nil), job.Errors...),
		CreatedAt:   job.CreatedAt,
		StartedAt:   cloneTime(job.StartedAt),
		CompletedAt: cloneTime(job.CompletedAt),
	}
	return view, true
}

// ProgressUpdate carries the fields a progress merge may supply. Nil
// pointers leave the current value untouched.
type ProgressUpdate struct {
	Phase           string
	CurrentUnit     *int
	CurrentStep     *int
	CompletedSteps  *int
	Percentage      *float64
	CurrentCategory string
	Message         string
}

// UpdateProgress merges the supplied fields into the job's progress
// snapshot. Percentage is taken verbatim when supplied, otherwise recomputed
// from completed steps when the strategy has a positive step total; with a
// zero total the percentage keeps its prior value. Unknown ids are a logged
// no-op.
func (r *Registry) UpdateProgress(jobID string, upd ProgressUpdate) {
	e, ok := r.lookup(jobID)
	if !ok {
		r.logger.Warn("Progress update for unknown job",
			slog.String("job_id", jobID),
		)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p := &e.job.Progress
	if upd.Phase != "" && upd.Phase != p.Phase {
		p.Phase = upd.Phase
		p.PhaseHistory = append(p.PhaseHistory, domain.PhaseChange{Phase: upd.Phase, At: time.Now()})
	}
	if upd.CurrentUnit != nil {
		p.CurrentUnit = *upd.CurrentUnit
	}
	if upd.CurrentStep != nil {
		p.CurrentStep = *upd.CurrentStep
	}
	if upd.CompletedSteps != nil {
		p.CompletedSteps = *upd.CompletedSteps
	}
	if upd.CurrentCategory != "" {
		p.CurrentCategory = upd.CurrentCategory
	}
	if upd.Message != "" {
		p.Message = upd.Message
	}

	switch {
	case upd.Percentage != nil:
		p.Percentage = clampPercentage(*upd.Percentage)
	case upd.CompletedSteps != nil && e.job.Strategy.TotalSteps > 0:
		p.Percentage = clampPercentage(float64(p.CompletedSteps) / float64(e.job.Strategy.TotalSteps) * 100)
	}
}

// Transition moves a job to a new status and pins the progress snapshot to
// the phase's percentage. Invalid moves, including any move out of a
// terminal status, return ErrJobNotFound for unknown ids and a transition
// error otherwise.
func (r *Registry) Transition(jobID, status string, percentage float64) error {
	e, ok := r.lookup(jobID)
	if !ok {
		return domain.ErrJobNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	job := e.job
	if !domain.CanTransition(job.Status, status) {
		return &TransitionError{JobID: jobID, From: job.Status, To: status}
	}

	now := time.Now()
	job.Status = status
	if job.StartedAt == nil && status != domain.StatusPending {
		job.StartedAt = &now
	}
	if domain.IsTerminal(status) {
		job.CompletedAt = &now
	}

	job.Progress.Phase = status
	job.Progress.Percentage = clampPercentage(percentage)
	job.Progress.PhaseHistory = append(job.Progress.PhaseHistory, domain.PhaseChange{Phase: status, At: now})

	r.logger.Info("Job status changed",
		slog.String("job_id", jobID),
		slog.String("status", status),
		slog.Float64("percentage", job.Progress.Percentage),
	)

	return nil
}

// RecordFailure moves a job to FAILED, retaining the cause on its error list
// and recovery state. Jobs already terminal are left untouched, so a late
// engine failure never overwrites a cancellation.
func (r *Registry) RecordFailure(jobID string, cause error) {
	e, ok := r.lookup(jobID)
	if !ok {
		r.logger.Warn("Failure recorded for unknown job",
			slog.String("job_id", jobID),
		)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	job := e.job
	job.Errors = append(job.Errors, cause.Error())
	job.Recovery.LastError = cause.Error()

	if domain.IsTerminal(job.Status) {
		return
	}

	now := time.Now()
	job.Status = domain.StatusFailed
	job.CompletedAt = &now
	job.Progress.Phase = domain.StatusFailed
	job.Progress.PhaseHistory = append(job.Progress.PhaseHistory, domain.PhaseChange{Phase: domain.StatusFailed, At: now})

	r.logger.Error("Job failed",
		slog.String("job_id", jobID),
		slog.String("error", cause.Error()),
	)
}

// Cancel moves a job to CANCELLED, stamps completion, and cancels the job's
// execution context so in-flight engine calls abort. It returns the bound
// session id, if any, for the caller to release, and whether the job
// existed. Cancelling an already-terminal job is a no-op that still reports
// existence.
func (r *Registry) Cancel(jobID string) (sessionID string, existed bool) {
	e, ok := r.lookup(jobID)
	if !ok {
		return "", false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	job := e.job
	if domain.IsTerminal(job.Status) {
		return "", true
	}

	now := time.Now()
	job.Status = domain.StatusCancelled
	job.CompletedAt = &now
	job.Progress.Phase = domain.StatusCancelled
	job.Progress.PhaseHistory = append(job.Progress.PhaseHistory, domain.PhaseChange{Phase: domain.StatusCancelled, At: now})

	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}

	r.logger.Info("Job cancelled",
		slog.String("job_id", jobID),
	)

	return job.SessionID, true
}

// AttachExecution binds a cancelable context for the job's run. The
// returned context aborts when the job is cancelled. Unknown ids get a
// pre-canceled context.
func (r *Registry) AttachExecution(parent context.Context, jobID string) context.Context {
	ctx, cancel := context.WithCancel(parent)

	e, ok := r.lookup(jobID)
	if !ok {
		cancel()
		return ctx
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if domain.IsTerminal(e.job.Status) {
		cancel()
		return ctx
	}
	e.cancel = cancel
	return ctx
}

// BindSession records the engine session owned by the job, 1:1.
func (r *Registry) BindSession(jobID, sessionID string) {
	e, ok := r.lookup(jobID)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.job.SessionID = sessionID
}

// ResolveSession maps an engine session id back to its job. Only active
// jobs are considered.
func (r *Registry) ResolveSession(sessionID string) (jobID string, ok bool) {
	if sessionID == "" {
		return "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, e := range r.jobs {
		e.mu.Lock()
		match := e.job.SessionID == sessionID && !domain.IsTerminal(e.job.Status)
		e.mu.Unlock()
		if match {
			return id, true
		}
	}
	return "", false
}

// ListForUser returns summaries of a user's jobs, newest first, optionally
// filtered by status, capped at limit.
func (r *Registry) ListForUser(userID, statusFilter string, limit int) []domain.JobSummary {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.jobs))
	for _, e := range r.jobs {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	summaries := make([]domain.JobSummary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		job := e.job
		if job.UserID == userID && (statusFilter == "" || job.Status == statusFilter) {
			summaries = append(summaries, domain.JobSummary{
				JobID:      job.JobID,
				Status:     job.Status,
				SiteName:   job.Site.Name,
				Percentage: job.Progress.Percentage,
				UnitCount:  job.Strategy.UnitCount(),
				CreatedAt:  job.CreatedAt,
			})
		}
		e.mu.Unlock()
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})

	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}

// sweep evicts terminal jobs whose completion is older than the retention
// window. Returns how many were removed.
func (r *Registry) sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, e := range r.jobs {
		e.mu.Lock()
		expired := domain.IsTerminal(e.job.Status) &&
			e.job.CompletedAt != nil &&
			now.Sub(*e.job.CompletedAt) > r.retention
		e.mu.Unlock()
		if expired {
			delete(r.jobs, id)
			evicted++
		}
	}
	return evicted
}

// evictOneTerminalLocked drops the oldest terminal job to make room for a
// new one. Caller holds r.mu. Returns false when every job is still active.
func (r *Registry) evictOneTerminalLocked() bool {
	var oldestID string
	var oldestAt time.Time

	for id, e := range r.jobs {
		e.mu.Lock()
		job := e.job
		if domain.IsTerminal(job.Status) && job.CompletedAt != nil {
			if oldestID == "" || job.CompletedAt.Before(oldestAt) {
				oldestID = id
				oldestAt = *job.CompletedAt
			}
		}
		e.mu.Unlock()
	}

	if oldestID == "" {
		return false
	}
	delete(r.jobs, oldestID)
	return true
}

func (r *Registry) lookup(jobID string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[jobID]
	return e, ok
}

func clampPercentage(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func cloneJob(job *domain.AutomationJob) *domain.AutomationJob {
	out := *job
	out.Progress = cloneProgress(job.Progress)
	out.Recovery = cloneRecovery(job.Recovery)
	out.Errors = append([]string(nil), job.Errors...)
	out.StartedAt = cloneTime(job.StartedAt)
	out.CompletedAt = cloneTime(job.CompletedAt)
	return &out
}

func cloneProgress(p domain.ProgressSnapshot) domain.ProgressSnapshot {
	out := p
	out.PhaseHistory = append([]domain.PhaseChange(nil), p.PhaseHistory...)
	return out
}

func cloneRecovery(rec domain.RecoveryState) domain.RecoveryState {
	out := rec
	out.ActionsTaken = append([]string(nil), rec.ActionsTaken...)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}
