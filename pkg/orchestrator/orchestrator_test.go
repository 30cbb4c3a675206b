package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/medcopilot/medcopilot/pkg/config"
	"github.com/medcopilot/medcopilot/pkg/events"
	"github.com/medcopilot/medcopilot/pkg/metrics"
	"github.com/medcopilot/medcopilot/pkg/models"
	"github.com/medcopilot/medcopilot/pkg/pipeline"
	"github.com/medcopilot/medcopilot/pkg/session"
	"github.com/medcopilot/medcopilot/pkg/stage"
)

// recordingPublisher keeps every published event per session.
type recordingPublisher struct {
	mu       sync.Mutex
	events   map[string][]events.Event
	detached []string
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{events: make(map[string][]events.Event)}
}

func (p *recordingPublisher) Publish(_ context.Context, id string, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events[id] = append(p.events[id], ev)
	return nil
}

func (p *recordingPublisher) DetachAll(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detached = append(p.detached, id)
}

func (p *recordingPublisher) For(id string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events[id]...)
}

type recordingObserver struct {
	mu       sync.Mutex
	finished []models.Session
}

func (o *recordingObserver) SessionFinished(_ context.Context, s models.Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, s)
}

func (o *recordingObserver) Finished() []models.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.Session(nil), o.finished...)
}

type runnerFunc func(ctx context.Context, desc pipeline.StageDescriptor, sc stage.SessionContext) (models.StageResult, error)

func (f runnerFunc) Run(ctx context.Context, desc pipeline.StageDescriptor, sc stage.SessionContext) (models.StageResult, error) {
	return f(ctx, desc, sc)
}

func okResult(desc pipeline.StageDescriptor) models.StageResult {
	return models.StageResult{
		StageName:   desc.Name,
		Phase:       desc.Phase,
		Confidence:  0.9,
		Summary:     map[string]any{"summary": "done " + desc.Name},
		CompletedAt: time.Now(),
	}
}

var instantRunner = runnerFunc(func(_ context.Context, desc pipeline.StageDescriptor, _ stage.SessionContext) (models.StageResult, error) {
	return okResult(desc), nil
})

type fixture struct {
	orch      *Orchestrator
	registry  *session.Registry
	publisher *recordingPublisher
	observer  *recordingObserver
}

func newFixture(runner StageRunner) *fixture {
	reg := session.NewRegistry()
	pub := newRecordingPublisher()
	obs := &recordingObserver{}
	return &fixture{
		orch:      New(reg, runner, pub, obs),
		registry:  reg,
		publisher: pub,
		observer:  obs,
	}
}

func (f *fixture) waitTerminal(t *testing.T, id string) models.Session {
	t.Helper()
	var s models.Session
	require.Eventually(t, func() bool {
		var err error
		s, err = f.registry.Get(id)
		return err == nil && s.Status.IsTerminal()
	}, 5*time.Second, 2*time.Millisecond)
	require.NoError(t, f.orch.Shutdown(context.Background()))
	return s
}

func TestStartCompletesChestPain(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(instantRunner)
	id, err := f.orch.Start(context.Background(), models.Intake{ChiefComplaint: "chest pain"}, nil)
	require.NoError(t, err)

	s := f.waitTerminal(t, id)
	assert.Equal(t, models.StatusCompleted, s.Status)
	assert.Len(t, s.Pipeline, 14)
	assert.Len(t, s.Results, 14)
	require.NotNil(t, s.Report)
	assert.Equal(t, "chest pain", s.Report.ChiefComplaint)
	assert.Nil(t, s.Failure)

	evs := f.publisher.For(id)
	require.Len(t, evs, 2*14+1)
	for i, name := range s.Pipeline {
		started, completed := evs[2*i], evs[2*i+1]
		assert.Equal(t, events.EventTypeStageStarted, started.Type)
		assert.Equal(t, name, started.StageName)
		assert.Equal(t, events.EventTypeStageCompleted, completed.Type)
		assert.Equal(t, name, completed.StageName)
	}
	last := evs[len(evs)-1]
	assert.Equal(t, events.EventTypeAnalysisComplete, last.Type)
	require.NotNil(t, last.Report)
	assert.Equal(t, "chest pain", last.Report.ChiefComplaint)

	finished := f.observer.Finished()
	require.Len(t, finished, 1)
	assert.Equal(t, models.StatusCompleted, finished[0].Status)
}

func TestStartWithLabValuesAddsLabInterpreter(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(instantRunner)
	id, err := f.orch.Start(context.Background(), models.Intake{ChiefComplaint: "chest pain", LabValues: "Troponin 0.4"}, nil)
	require.NoError(t, err)

	s := f.waitTerminal(t, id)
	assert.Equal(t, models.StatusCompleted, s.Status)
	require.Len(t, s.Pipeline, 15)

	count := 0
	for i, name := range s.Pipeline {
		if name == pipeline.StageLabInterpreter {
			count++
			assert.Equal(t, 7, i)
		}
	}
	assert.Equal(t, 1, count)
	assert.True(t, s.Report.LabsReviewed)
}

func TestStartRejectsBlankChiefComplaint(t *testing.T) {
	f := newFixture(instantRunner)
	_, err := f.orch.Start(context.Background(), models.Intake{ChiefComplaint: "  "}, nil)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "chief_complaint", verr.Field)
	assert.Empty(t, f.registry.List(), "no session is created")
}

func TestThirdStageFailureStopsPipeline(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	calls := 0
	runner := runnerFunc(func(_ context.Context, desc pipeline.StageDescriptor, _ stage.SessionContext) (models.StageResult, error) {
		calls++
		if calls == 3 {
			return models.StageResult{}, &stage.StageError{Stage: desc.Name, Kind: models.ErrorKindStageExecution, Err: errors.New("backend exploded")}
		}
		return okResult(desc), nil
	})
	f := newFixture(runner)

	id, err := f.orch.Start(context.Background(), models.Intake{ChiefComplaint: "dizziness"}, nil)
	require.NoError(t, err)

	s := f.waitTerminal(t, id)
	assert.Equal(t, models.StatusFailed, s.Status)
	assert.Len(t, s.Results, 2)
	assert.Nil(t, s.Report)
	require.NotNil(t, s.Failure)
	assert.Equal(t, s.Pipeline[2], s.Failure.StageName)
	assert.Equal(t, models.ErrorKindStageExecution, s.Failure.Kind)
	assert.Contains(t, s.Failure.Message, "backend exploded")
	assert.Equal(t, 3, calls)

	evs := f.publisher.For(id)
	require.Len(t, evs, 2+2+1+1, "two full stages, a start for the third, then the error")
	for _, ev := range evs {
		for _, later := range s.Pipeline[3:] {
			assert.NotEqual(t, later, ev.StageName)
		}
	}
	last := evs[len(evs)-1]
	assert.Equal(t, events.EventTypeError, last.Type)
	assert.Equal(t, models.ErrorKindStageExecution, last.ErrorKind)
	assert.Equal(t, s.Pipeline[2], last.StageName)
}

func TestStageTimeoutFailsSession(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	backend := stage.NewSimulatedBackend(&config.BackendConfig{SimulatedLatency: time.Hour, SimulatedConfidence: 0.9})
	exec := stage.NewExecutor(backend, &config.PipelineConfig{DefaultStageTimeout: 10 * time.Millisecond})
	f := newFixture(exec)

	id, err := f.orch.Start(context.Background(), models.Intake{ChiefComplaint: "fatigue"}, nil)
	require.NoError(t, err)

	s := f.waitTerminal(t, id)
	assert.Equal(t, models.StatusFailed, s.Status)
	assert.Empty(t, s.Results)
	require.NotNil(t, s.Failure)
	assert.Equal(t, models.ErrorKindStageTimeout, s.Failure.Kind)
	assert.Equal(t, pipeline.StageClinicalCoordinator, s.Failure.StageName)
}

func TestConfidenceAlwaysBounded(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	backend := stage.NewSimulatedBackend(&config.BackendConfig{SimulatedConfidence: 1.4})
	exec := stage.NewExecutor(backend, config.DefaultPipelineConfig())
	f := newFixture(exec)

	id, err := f.orch.Start(context.Background(), models.Intake{ChiefComplaint: "rash"}, []string{"img"})
	require.NoError(t, err)
	s := f.waitTerminal(t, id)
	require.Equal(t, models.StatusCompleted, s.Status)

	n := 0
	for _, ev := range f.publisher.For(id) {
		if ev.Type != events.EventTypeStageCompleted {
			continue
		}
		n++
		require.NotNil(t, ev.Confidence)
		assert.GreaterOrEqual(t, *ev.Confidence, 0.0)
		assert.LessOrEqual(t, *ev.Confidence, 1.0)
	}
	assert.Equal(t, 15, n)
}

// gatedRunner blocks when it reaches stage index gateAt until released.
type gatedRunner struct {
	gateAt  int
	reached chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func newGatedRunner(gateAt int) *gatedRunner {
	return &gatedRunner{gateAt: gateAt, reached: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedRunner) Run(ctx context.Context, desc pipeline.StageDescriptor, _ stage.SessionContext) (models.StageResult, error) {
	g.mu.Lock()
	idx := g.calls
	g.calls++
	g.mu.Unlock()

	if idx == g.gateAt {
		close(g.reached)
		select {
		case <-g.release:
		case <-ctx.Done():
			return models.StageResult{}, ctx.Err()
		}
	}
	return okResult(desc), nil
}

func (g *gatedRunner) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func TestCancelTakesEffectAtNextStageBoundary(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	runner := newGatedRunner(1)
	f := newFixture(runner)

	id, err := f.orch.Start(context.Background(), models.Intake{ChiefComplaint: "back pain"}, nil)
	require.NoError(t, err)
	<-runner.reached

	require.NoError(t, f.orch.Cancel(id))

	mid, err := f.orch.Session(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, mid.Status, "running stage is not interrupted")

	close(runner.release)
	s := f.waitTerminal(t, id)

	assert.Equal(t, models.StatusCancelled, s.Status)
	assert.Len(t, s.Results, 2, "the in-flight stage still completes")
	assert.Nil(t, s.Failure)
	assert.Nil(t, s.Report)
	assert.Equal(t, 2, runner.Calls())

	evs := f.publisher.For(id)
	require.Len(t, evs, 5)
	assert.Equal(t, events.EventTypeStageCompleted, evs[3].Type)
	last := evs[4]
	assert.Equal(t, events.EventTypeError, last.Type)
	assert.Equal(t, models.ErrorKindCancelled, last.ErrorKind)

	errCount := 0
	for _, ev := range evs {
		if ev.Type == events.EventTypeError {
			errCount++
		}
	}
	assert.Equal(t, 1, errCount)

	assert.ErrorIs(t, f.orch.Cancel(id), ErrNotCancellable)
}

func TestCancelUnknownSession(t *testing.T) {
	f := newFixture(instantRunner)
	assert.ErrorIs(t, f.orch.Cancel("nope"), session.ErrSessionNotFound)
}

func TestStatusReflectsProgressMidRun(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	runner := newGatedRunner(2)
	f := newFixture(runner)

	id, err := f.orch.Start(context.Background(), models.Intake{ChiefComplaint: "cough"}, nil)
	require.NoError(t, err)
	<-runner.reached

	s, err := f.orch.Session(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, s.Status)
	assert.Len(t, s.Results, 2)
	assert.Equal(t, 1, f.orch.ActiveSessions())

	close(runner.release)
	done := f.waitTerminal(t, id)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, 0, f.orch.ActiveSessions())
}

func TestShutdownRejectsNewSessions(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(instantRunner)
	require.NoError(t, f.orch.Shutdown(context.Background()))

	_, err := f.orch.Start(context.Background(), models.Intake{ChiefComplaint: "x"}, nil)
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestShutdownDeadlineCancelsRemainingSessions(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	runner := newGatedRunner(0)
	f := newFixture(runner)
	f.orch.SetCancelGrace(20 * time.Millisecond)

	id, err := f.orch.Start(context.Background(), models.Intake{ChiefComplaint: "x"}, nil)
	require.NoError(t, err)
	<-runner.reached

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.orch.Shutdown(ctx), context.DeadlineExceeded)
	assert.Empty(t, f.observer.Finished(), "grace expired while the stage was still running")

	close(runner.release)
	s := f.waitTerminal(t, id)
	assert.Equal(t, models.StatusCancelled, s.Status)
	assert.Len(t, s.Results, 1)
}

func TestShutdownWaitsForCancelledSessionsToFinish(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	slow := runnerFunc(func(_ context.Context, desc pipeline.StageDescriptor, _ stage.SessionContext) (models.StageResult, error) {
		time.Sleep(60 * time.Millisecond)
		return okResult(desc), nil
	})
	f := newFixture(slow)
	f.orch.SetCancelGrace(5 * time.Second)

	id, err := f.orch.Start(context.Background(), models.Intake{ChiefComplaint: "x"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.orch.Shutdown(ctx), context.DeadlineExceeded)

	// Observers such as the archive must have run before Shutdown returns.
	finished := f.observer.Finished()
	require.Len(t, finished, 1)
	assert.Equal(t, id, finished[0].ID)
	assert.Equal(t, models.StatusCancelled, finished[0].Status)
	assert.Len(t, finished[0].Results, 1)
}

func stageObservations(t *testing.T, stageName, outcome string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	obs := metrics.StageDuration.WithLabelValues(stageName, outcome)
	require.NoError(t, obs.(prometheus.Metric).Write(m))
	return m.GetHistogram().GetSampleCount()
}

func TestStageOutcomeRecordedOnceWhenResultIsRejected(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	first := pipeline.Build(models.Intake{ChiefComplaint: "x"}, false)[0].Name
	completedBefore := stageObservations(t, first, metrics.OutcomeCompleted)
	failedBefore := stageObservations(t, first, metrics.OutcomeFailed)

	var reg *session.Registry
	// The session leaves Running while its stage is in flight, so the
	// result cannot be recorded.
	runner := runnerFunc(func(_ context.Context, desc pipeline.StageDescriptor, sc stage.SessionContext) (models.StageResult, error) {
		_, err := reg.SetTerminal(sc.SessionID, models.StatusCancelled, session.Terminal{})
		assert.NoError(t, err)
		return okResult(desc), nil
	})
	f := newFixture(runner)
	reg = f.registry

	id, err := f.orch.Start(context.Background(), models.Intake{ChiefComplaint: "x"}, nil)
	require.NoError(t, err)
	s := f.waitTerminal(t, id)
	assert.Empty(t, s.Results)

	assert.Equal(t, completedBefore, stageObservations(t, first, metrics.OutcomeCompleted))
	assert.Equal(t, failedBefore+1, stageObservations(t, first, metrics.OutcomeFailed))
}

func TestDeleteAndEvict(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(instantRunner)
	a, err := f.orch.Start(context.Background(), models.Intake{ChiefComplaint: "a"}, nil)
	require.NoError(t, err)
	b, err := f.orch.Start(context.Background(), models.Intake{ChiefComplaint: "b"}, nil)
	require.NoError(t, err)
	f.waitTerminal(t, a)
	f.waitTerminal(t, b)

	require.NoError(t, f.orch.Delete(a))
	_, err = f.orch.Session(a)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	assert.Equal(t, 1, f.orch.EvictTerminalBefore(time.Now().Add(time.Minute)))
	assert.Empty(t, f.orch.Sessions())
	assert.ElementsMatch(t, []string{a, b}, f.publisher.detached)
}
