package api

import (
	"github.com/medcopilot/medcopilot/pkg/models"
	"github.com/medcopilot/medcopilot/pkg/pipeline"
)

// AnalyzeResponse is returned when an analysis is accepted.
type AnalyzeResponse struct {
	SessionID    string   `json:"session_id"`
	Status       string   `json:"status"`
	WebSocketURL string   `json:"websocket_url"`
	ImageRefs    []string `json:"image_refs,omitempty"`
}

// SessionListResponse wraps the session listing.
type SessionListResponse struct {
	Sessions []models.SessionSummary `json:"sessions"`
	Count    int                     `json:"count"`
}

// SessionActionResponse acknowledges cancel and delete requests.
type SessionActionResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// StagesResponse lists the stage catalog.
type StagesResponse struct {
	Stages []pipeline.Metadata `json:"stages"`
	Count  int                 `json:"count"`
}

// HealthCheck is the status of one component.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status         string                 `json:"status"`
	Version        string                 `json:"version"`
	ActiveSessions int                    `json:"active_sessions"`
	Subscribers    int                    `json:"subscribers"`
	Checks         map[string]HealthCheck `json:"checks,omitempty"`
}

// BannerResponse is returned by GET /.
type BannerResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Status  string `json:"status"`
	Stages  int    `json:"stages"`
}
