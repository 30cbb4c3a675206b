// Package orchestrator drives analysis sessions through their stage
// pipelines. Each session runs on its own goroutine; stages of one session
// run strictly in order.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/medcopilot/medcopilot/pkg/events"
	"github.com/medcopilot/medcopilot/pkg/metrics"
	"github.com/medcopilot/medcopilot/pkg/models"
	"github.com/medcopilot/medcopilot/pkg/pipeline"
	"github.com/medcopilot/medcopilot/pkg/session"
	"github.com/medcopilot/medcopilot/pkg/stage"
)

// StageRunner executes one stage. Implemented by *stage.Executor.
type StageRunner interface {
	Run(ctx context.Context, desc pipeline.StageDescriptor, sc stage.SessionContext) (models.StageResult, error)
}

// Publisher delivers session events. Implemented by *events.Broadcaster.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, ev events.Event) error
	DetachAll(sessionID string)
}

// Observer is told about every terminal transition, after the final event
// was published. Observers must not block for long.
type Observer interface {
	SessionFinished(ctx context.Context, s models.Session)
}

// Orchestrator owns the lifecycle of analysis sessions.
type Orchestrator struct {
	registry  *session.Registry
	runner    StageRunner
	publisher Publisher
	observers []Observer

	// Session cancel registry: session_id → cancel function
	activeSessions map[string]context.CancelFunc
	mu             sync.RWMutex
	closed         bool
	wg             sync.WaitGroup

	// cancelGrace bounds how long Shutdown waits for cancelled sessions to
	// reach their stage boundary once its context has ended.
	cancelGrace time.Duration

	now    func() time.Time
	logger *slog.Logger
}

const defaultCancelGrace = 2 * time.Minute

// New creates an orchestrator. Observers are called in order.
func New(registry *session.Registry, runner StageRunner, publisher Publisher, observers ...Observer) *Orchestrator {
	return &Orchestrator{
		registry:       registry,
		runner:         runner,
		publisher:      publisher,
		observers:      observers,
		activeSessions: make(map[string]context.CancelFunc),
		cancelGrace:    defaultCancelGrace,
		now:            time.Now,
		logger:         slog.Default().With("component", "orchestrator"),
	}
}

// Start validates the intake, creates a session, and begins running its
// pipeline in the background. It returns the new session id immediately.
func (o *Orchestrator) Start(ctx context.Context, intake models.Intake, imageRefs []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(intake.ChiefComplaint) == "" {
		return "", NewValidationError("chief_complaint", "chief complaint is required")
	}

	stages := pipeline.Build(intake, len(imageRefs) > 0)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", ErrShuttingDown
	}
	s := o.registry.Create(intake, imageRefs, pipeline.Names(stages))
	runCtx, cancel := context.WithCancel(context.Background())
	o.activeSessions[s.ID] = cancel
	o.wg.Add(1)
	o.mu.Unlock()

	metrics.RecordSessionStarted()
	o.logger.Info("Session started",
		"session_id", s.ID,
		"stages", len(stages),
		"images", len(imageRefs),
		"labs", intake.HasLabValues())

	go func() {
		defer o.wg.Done()
		defer o.unregister(s.ID)
		o.run(runCtx, s, stages)
	}()

	return s.ID, nil
}

// Cancel requests cancellation of a session. The request takes effect before
// the next stage starts; a stage already running is allowed to finish.
func (o *Orchestrator) Cancel(sessionID string) error {
	s, err := o.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if s.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrNotCancellable, sessionID, s.Status)
	}

	o.mu.RLock()
	cancel, ok := o.activeSessions[sessionID]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s already finishing", ErrNotCancellable, sessionID)
	}

	cancel()
	o.logger.Info("Session cancellation requested", "session_id", sessionID)
	return nil
}

// Session returns a snapshot of one session.
func (o *Orchestrator) Session(sessionID string) (models.Session, error) {
	return o.registry.Get(sessionID)
}

// Sessions returns snapshots of all sessions, oldest first.
func (o *Orchestrator) Sessions() []models.Session {
	return o.registry.List()
}

// ActiveSessions returns how many sessions have not finished.
func (o *Orchestrator) ActiveSessions() int {
	return o.registry.CountActive()
}

// Delete removes a finished session and closes its subscriber.
func (o *Orchestrator) Delete(sessionID string) error {
	if err := o.registry.Delete(sessionID); err != nil {
		return err
	}
	o.publisher.DetachAll(sessionID)
	o.logger.Info("Session deleted", "session_id", sessionID)
	return nil
}

// EvictTerminalBefore removes sessions that finished before cutoff and
// returns how many were removed.
func (o *Orchestrator) EvictTerminalBefore(cutoff time.Time) int {
	ids := o.registry.EvictTerminalBefore(cutoff)
	for _, id := range ids {
		o.publisher.DetachAll(id)
	}
	return len(ids)
}

// SetCancelGrace sets how long Shutdown keeps waiting after its deadline
// for cancelled sessions to finish. It should cover the longest stage
// deadline, since a running stage is never interrupted.
func (o *Orchestrator) SetCancelGrace(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancelGrace = d
}

// Shutdown stops accepting sessions and waits for running ones to finish.
// If ctx ends first, remaining sessions are cancelled at their next stage
// boundary, Shutdown waits up to the cancel grace for them to record their
// terminal state, and ctx's error is returned.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	grace := o.cancelGrace
	o.mu.Unlock()

	if active := o.activeSessionIDs(); len(active) > 0 {
		o.logger.Info("Waiting for active sessions to complete",
			"count", len(active),
			"session_ids", active)
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.logger.Info("Orchestrator stopped gracefully")
		return nil
	case <-ctx.Done():
	}

	o.mu.RLock()
	for _, cancel := range o.activeSessions {
		cancel()
	}
	o.mu.RUnlock()
	o.logger.Warn("Shutdown deadline reached, cancelling remaining sessions", "grace", grace)

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		o.logger.Info("Cancelled sessions finished")
	case <-timer.C:
		o.logger.Error("Sessions still running after cancel grace",
			"session_ids", o.activeSessionIDs())
	}
	return ctx.Err()
}

func (o *Orchestrator) unregister(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cancel, ok := o.activeSessions[sessionID]; ok {
		cancel()
		delete(o.activeSessions, sessionID)
	}
}

// activeSessionIDs returns IDs of currently running sessions (for logging).
func (o *Orchestrator) activeSessionIDs() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ids := make([]string, 0, len(o.activeSessions))
	for id := range o.activeSessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
