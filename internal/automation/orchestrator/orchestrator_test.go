package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/domain"
	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/engine"
	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/registry"
)

// fakeEngine scripts the automation engine for orchestrator tests.
type fakeEngine struct {
	mu sync.Mutex

	createErr error
	loginOK   bool
	loginErr  error
	runResult *engine.RunResult
	runErr    error
	blockRun  bool

	runStarted chan struct{}
	sessions   []string
	closed     []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		loginOK:    true,
		runResult:  &engine.RunResult{Success: true, UnitsProcessed: 4},
		runStarted: make(chan struct{}),
	}
}

func (f *fakeEngine) CreateSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.sessions = append(f.sessions, sessionID)
	return nil
}

func (f *fakeEngine) Login(_ context.Context, _ string, _ domain.Credentials) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginOK, f.loginErr
}

func (f *fakeEngine) RunVisitAutomation(ctx context.Context, _, _ string, _ []engine.UnitConfig) (*engine.RunResult, error) {
	f.mu.Lock()
	block := f.blockRun
	result := f.runResult
	runErr := f.runErr
	f.mu.Unlock()

	close(f.runStarted)

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if runErr != nil {
		return nil, runErr
	}
	return result, nil
}

func (f *fakeEngine) CloseSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, sessionID)
	return nil
}

func (f *fakeEngine) closedSessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closed...)
}

// recordingNotifier captures notifications for assertion.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

type notification struct {
	userID  string
	trigger string
	payload map[string]any
}

func (r *recordingNotifier) Notify(_ context.Context, userID, trigger string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, notification{userID: userID, trigger: trigger, payload: payload})
}

func (r *recordingNotifier) all() []notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification(nil), r.events...)
}

func testSetup(t *testing.T, eng engine.Engine) (*Orchestrator, *registry.Registry, *recordingNotifier) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(&registry.Config{Logger: logger})
	t.Cleanup(func() {
		reg.Close()
		reg.Clear()
	})

	notifier := &recordingNotifier{}
	orch := New(&Config{
		Logger:        logger,
		PortalBaseURL: "https://portal.example.com",
	}, reg, eng, notifier, nil)

	return orch, reg, notifier
}

func createTestJob(t *testing.T, reg *registry.Registry) *domain.AutomationJob {
	t.Helper()
	job, err := reg.CreateJob("user-1", &domain.WorkOrderRecord{
		WorkOrderID: "WO-1001",
		VisitID:     "V-2001",
		Services: []domain.ServiceEntry{
			{Type: "Meter Service", Description: "AccuMeasure meter calibration"},
		},
		Site: domain.SiteDescriptor{Name: "Wawa Store #1425"},
	}, domain.Preferences{NotifyOnComplete: true, NotifyOnFailure: true})
	require.NoError(t, err)
	return job
}

func TestExecute_HappyPath(t *testing.T) {
	eng := newFakeEngine()
	orch, reg, notifier := testSetup(t, eng)
	job := createTestJob(t, reg)

	orch.Execute(context.Background(), job.JobID, domain.Credentials{Username: "tech", Password: "pw"})

	view, ok := reg.StatusView(job.JobID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusCompleted, view.Status)
	assert.Equal(t, float64(100), view.Progress.Percentage)
	assert.Empty(t, view.Errors)
	assert.NotNil(t, view.StartedAt)
	assert.NotNil(t, view.CompletedAt)

	// Phase history follows the defined order.
	var phases []string
	for _, change := range view.Progress.PhaseHistory {
		phases = append(phases, change.Phase)
	}
	assert.Equal(t, []string{
		domain.StatusAnalyzing,
		domain.StatusBrowserStarting,
		domain.StatusLoggingIn,
		domain.StatusNavigating,
		domain.StatusFillingForms,
		domain.StatusVerifying,
		domain.StatusCompleted,
	}, phases)

	// Session opened and released.
	require.Len(t, eng.sessions, 1)
	assert.Equal(t, eng.sessions, eng.closedSessions())

	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, "user-1", events[0].userID)
	assert.Equal(t, "automation_completed", events[0].trigger)
	assert.Equal(t, 4, events[0].payload["units_processed"])
}

func TestExecute_SessionAcquisitionFailure(t *testing.T) {
	eng := newFakeEngine()
	eng.createErr = errors.New("no browser slots")
	orch, reg, notifier := testSetup(t, eng)
	job := createTestJob(t, reg)

	orch.Execute(context.Background(), job.JobID, domain.Credentials{})

	view, ok := reg.StatusView(job.JobID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, view.Status)
	require.NotEmpty(t, view.Errors)
	assert.Contains(t, view.Errors[0], domain.ErrSessionAcquisition.Error())
	assert.Contains(t, view.Errors[0], "no browser slots")

	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, "automation_failed", events[0].trigger)
	assert.Equal(t, true, events[0].payload["retry_available"])
}

func TestExecute_LoginRejected(t *testing.T) {
	eng := newFakeEngine()
	eng.loginOK = false
	orch, reg, notifier := testSetup(t, eng)
	job := createTestJob(t, reg)

	orch.Execute(context.Background(), job.JobID, domain.Credentials{})

	view, ok := reg.StatusView(job.JobID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, view.Status)
	require.NotEmpty(t, view.Errors)
	assert.Contains(t, view.Errors[0], domain.ErrLoginFailed.Error())

	// Session was acquired before login, so it must be released.
	assert.Equal(t, eng.sessions, eng.closedSessions())

	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, "automation_failed", events[0].trigger)
}

func TestExecute_EngineReportsFailure(t *testing.T) {
	eng := newFakeEngine()
	eng.runResult = &engine.RunResult{
		Success:        false,
		UnitsProcessed: 1,
		UnitsFailed:    3,
		Errors:         []string{"form selector missing on unit 2"},
	}
	orch, reg, _ := testSetup(t, eng)
	job := createTestJob(t, reg)

	orch.Execute(context.Background(), job.JobID, domain.Credentials{})

	view, ok := reg.StatusView(job.JobID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, view.Status)
	require.NotEmpty(t, view.Errors)
	assert.Contains(t, view.Errors[0], "form selector missing on unit 2")
}

func TestExecute_UnitCountMismatchIsNotFatal(t *testing.T) {
	eng := newFakeEngine()
	eng.runResult = &engine.RunResult{Success: true, UnitsProcessed: 3, UnitsFailed: 1}
	orch, reg, _ := testSetup(t, eng)
	job := createTestJob(t, reg)

	orch.Execute(context.Background(), job.JobID, domain.Credentials{})

	view, ok := reg.StatusView(job.JobID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusCompleted, view.Status)
}

func TestExecute_CancellationAbortsRun(t *testing.T) {
	eng := newFakeEngine()
	eng.blockRun = true
	orch, reg, notifier := testSetup(t, eng)
	job := createTestJob(t, reg)

	done := make(chan struct{})
	go func() {
		defer close(done)
		orch.Execute(context.Background(), job.JobID, domain.Credentials{})
	}()

	select {
	case <-eng.runStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("engine run never started")
	}

	assert.True(t, orch.CancelJob(context.Background(), job.JobID))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("execution did not stop after cancellation")
	}

	view, ok := reg.StatusView(job.JobID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusCancelled, view.Status)
	assert.NotNil(t, view.CompletedAt)

	// No failure notification for a cancelled job.
	for _, event := range notifier.all() {
		assert.NotEqual(t, "automation_failed", event.trigger)
	}

	assert.NotEmpty(t, eng.closedSessions())
}

func TestCancelJob_UnknownID(t *testing.T) {
	orch, _, _ := testSetup(t, newFakeEngine())
	assert.False(t, orch.CancelJob(context.Background(), "no-such-job"))
}

func TestCreateJob_CompilationErrorPropagates(t *testing.T) {
	orch, reg, _ := testSetup(t, newFakeEngine())

	job, err := orch.CreateJob(context.Background(), "user-1", &domain.WorkOrderRecord{}, domain.Preferences{}, domain.Credentials{})

	require.Error(t, err)
	assert.Nil(t, job)
	assert.ErrorIs(t, err, domain.ErrEmptyServiceList)
	assert.Zero(t, reg.Len())
}

func TestHandleProgress(t *testing.T) {
	eng := newFakeEngine()
	orch, reg, _ := testSetup(t, eng)
	job := createTestJob(t, reg)

	reg.BindSession(job.JobID, "session-77")

	orch.HandleProgress(engine.ProgressReport{
		SessionID:   "session-77",
		Phase:       domain.StatusSubmitting,
		Percentage:  64,
		CurrentUnit: 3,
		Message:     "submitting unit 3",
	})

	view, ok := reg.StatusView(job.JobID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusSubmitting, view.Progress.Phase)
	assert.Equal(t, float64(64), view.Progress.Percentage)
	assert.Equal(t, 3, view.Progress.CurrentUnit)
	assert.Equal(t, "submitting unit 3", view.Progress.Message)

	// Unresolvable session ids are silently ignored.
	orch.HandleProgress(engine.ProgressReport{SessionID: "session-unknown", Percentage: 99})
	view, _ = reg.StatusView(job.JobID)
	assert.Equal(t, float64(64), view.Progress.Percentage)
}

func TestResolveTargetURL(t *testing.T) {
	orch, _, _ := testSetup(t, newFakeEngine())

	tests := []struct {
		name string
		job  *domain.AutomationJob
		want string
	}{
		{
			name: "visit id wins",
			job:  &domain.AutomationJob{VisitID: "V-9", WorkOrderID: "WO-1"},
			want: "https://portal.example.com/visits/V-9",
		},
		{
			name: "work order fallback",
			job:  &domain.AutomationJob{WorkOrderID: "WO-1"},
			want: "https://portal.example.com/workorders/WO-1/visits/new",
		},
		{
			name: "dashboard fallback",
			job:  &domain.AutomationJob{},
			want: "https://portal.example.com/dashboard",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, orch.resolveTargetURL(tt.job))
		})
	}
}

func TestBuildUnitConfigs(t *testing.T) {
	plan := &domain.DispenserStrategy{
		ProcedureCode: domain.ProcedureStandardSequential,
		UnitNumbers:   []int{1, 2},
		CategoriesByUnit: map[int][]string{
			1: {"regular", "plus"},
			2: {"diesel"},
		},
		MeasuredByUnit: map[int][]string{
			1: {"regular"},
			2: {"diesel"},
		},
		UnmeasuredByUnit: map[int][]string{
			1: {"plus"},
			2: {},
		},
		Template: domain.TemplateFiveStepMeasured,
	}

	units := buildUnitConfigs(plan)
	require.Len(t, units, 2)

	assert.Equal(t, 1, units[0].UnitNumber)
	assert.Equal(t, []string{"regular", "plus"}, units[0].Categories)
	assert.Equal(t, []string{"regular"}, units[0].Measured)
	assert.Equal(t, []string{"plus"}, units[0].Unmeasured)
	assert.Equal(t, string(domain.TemplateFiveStepMeasured), units[0].Template)
	assert.Equal(t, string(domain.ProcedureStandardSequential), units[0].ProcedureCode)
}
