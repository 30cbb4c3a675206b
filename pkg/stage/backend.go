// Package stage runs a single pipeline stage against a pluggable backend
// under a per-stage deadline.
package stage

import (
	"context"

	"github.com/medcopilot/medcopilot/pkg/models"
)

// Request is everything a backend receives for one stage call.
type Request struct {
	SessionID string
	Stage     string
	Phase     string
	Intake    models.Intake
	ImageRefs []string
	// Prior holds the results of the stages that already ran in this session.
	Prior []models.StageResult
}

// Response is a backend's raw answer. Confidence is clamped by the Executor.
type Response struct {
	Confidence float64
	Summary    map[string]any
}

// Backend performs the analysis for one stage. Implementations must return
// promptly once ctx is done.
type Backend interface {
	RunStage(ctx context.Context, req Request) (Response, error)
}
