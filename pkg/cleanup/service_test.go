package cleanup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/medcopilot/medcopilot/pkg/config"
	"github.com/medcopilot/medcopilot/pkg/models"
	"github.com/medcopilot/medcopilot/pkg/session"
)

// registryEvictor adapts a registry for tests.
type registryEvictor struct {
	reg *session.Registry

	mu      sync.Mutex
	cutoffs []time.Time
}

func (e *registryEvictor) EvictTerminalBefore(cutoff time.Time) int {
	e.mu.Lock()
	e.cutoffs = append(e.cutoffs, cutoff)
	e.mu.Unlock()
	return len(e.reg.EvictTerminalBefore(cutoff))
}

func (e *registryEvictor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cutoffs)
}

func TestService_EvictsExpiredTerminalSessions(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reg := session.NewRegistry()
	done := reg.Create(models.Intake{ChiefComplaint: "done"}, nil, nil)
	_, err := reg.SetTerminal(done.ID, models.StatusCancelled, session.Terminal{})
	require.NoError(t, err)
	running := reg.Create(models.Intake{ChiefComplaint: "running"}, nil, []string{"a"})
	require.NoError(t, reg.MarkRunning(running.ID))

	ev := &registryEvictor{reg: reg}
	svc := NewService(&config.RetentionConfig{SessionTTL: time.Hour, CleanupInterval: time.Hour}, ev)
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	svc.Start(context.Background())
	require.Eventually(t, func() bool { return ev.Calls() >= 1 }, 5*time.Second, 5*time.Millisecond)
	svc.Stop()

	_, err = reg.Get(done.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	_, err = reg.Get(running.ID)
	assert.NoError(t, err, "running sessions are never evicted")
}

func TestService_KeepsRecentSessions(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reg := session.NewRegistry()
	s := reg.Create(models.Intake{ChiefComplaint: "recent"}, nil, nil)
	_, err := reg.SetTerminal(s.ID, models.StatusCancelled, session.Terminal{})
	require.NoError(t, err)

	ev := &registryEvictor{reg: reg}
	svc := NewService(&config.RetentionConfig{SessionTTL: time.Hour, CleanupInterval: 10 * time.Millisecond}, ev)
	svc.Start(context.Background())
	require.Eventually(t, func() bool { return ev.Calls() >= 2 }, 5*time.Second, 5*time.Millisecond)
	svc.Stop()

	_, err = reg.Get(s.ID)
	assert.NoError(t, err)
}

func TestService_DisabledWithZeroTTL(t *testing.T) {
	ev := &registryEvictor{reg: session.NewRegistry()}
	svc := NewService(&config.RetentionConfig{SessionTTL: 0}, ev)
	svc.Start(context.Background())
	svc.Stop()
	assert.Equal(t, 0, ev.Calls())
}

func TestService_StartTwiceIsNoop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ev := &registryEvictor{reg: session.NewRegistry()}
	svc := NewService(&config.RetentionConfig{SessionTTL: time.Hour, CleanupInterval: time.Hour}, ev)
	svc.Start(context.Background())
	svc.Start(context.Background())
	svc.Stop()
	svc.Stop()
}
