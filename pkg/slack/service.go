package slack

import (
	"context"
	"log/slog"
	"time"

	"github.com/medcopilot/medcopilot/pkg/models"
)

const postTimeout = 10 * time.Second

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// Service posts one notification per finished session. It is nil-safe and
// fail-open: a nil *Service does nothing and delivery errors are only logged.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService returns nil unless both Token and Channel are set.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return NewServiceWithClient(NewClient(cfg.Token, cfg.Channel), cfg.DashboardURL)
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "slack"),
	}
}

// SessionFinished implements the orchestrator's observer hook.
func (s *Service) SessionFinished(ctx context.Context, sess models.Session) {
	if s == nil {
		return
	}
	ts, err := s.client.PostMessage(ctx, FallbackText(sess), BuildTerminalMessage(sess, s.dashboardURL), postTimeout)
	if err != nil {
		s.logger.Error("Failed to send Slack notification",
			"session_id", sess.ID,
			"status", sess.Status,
			"error", err)
		return
	}
	s.logger.Debug("Slack notification sent", "session_id", sess.ID, "ts", ts)
}
