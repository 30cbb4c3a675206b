// Package cleanup evicts finished sessions from memory once their retention
// period has passed.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/medcopilot/medcopilot/pkg/config"
	"github.com/medcopilot/medcopilot/pkg/metrics"
)

// Evictor removes terminal sessions that finished before a cutoff.
// Implemented by *orchestrator.Orchestrator.
type Evictor interface {
	EvictTerminalBefore(cutoff time.Time) int
}

// Service periodically evicts terminal sessions older than the session TTL.
// Running sessions are never touched.
type Service struct {
	config  *config.RetentionConfig
	evictor Evictor
	now     func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, evictor Evictor) *Service {
	return &Service{
		config:  cfg,
		evictor: evictor,
		now:     time.Now,
	}
}

// Start launches the background eviction loop. It does nothing when the
// session TTL is zero.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	if s.config.SessionTTL <= 0 {
		slog.Info("Cleanup service disabled", "session_ttl", s.config.SessionTTL)
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"session_ttl", s.config.SessionTTL,
		"interval", s.config.CleanupInterval)
}

// Stop signals the eviction loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.evictExpired()

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

func (s *Service) evictExpired() {
	cutoff := s.now().Add(-s.config.SessionTTL)
	count := s.evictor.EvictTerminalBefore(cutoff)
	if count > 0 {
		metrics.RecordEvicted(count)
		slog.Info("Retention: evicted finished sessions", "count", count, "cutoff", cutoff)
	}
}
