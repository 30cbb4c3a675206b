package stage

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/medcopilot/medcopilot/pkg/config"
	"github.com/medcopilot/medcopilot/pkg/models"
	"github.com/medcopilot/medcopilot/pkg/pipeline"
)

// SessionContext is the session state a stage can see.
type SessionContext struct {
	SessionID string
	Intake    models.Intake
	ImageRefs []string
	Prior     []models.StageResult
}

// Executor invokes a Backend for one stage and normalizes the outcome.
// It never retries: every Run call reaches the backend at most once.
type Executor struct {
	backend  Backend
	pipeline *config.PipelineConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewExecutor creates an executor using the deadlines from cfg.
func NewExecutor(backend Backend, cfg *config.PipelineConfig) *Executor {
	if cfg == nil {
		cfg = config.DefaultPipelineConfig()
	}
	return &Executor{
		backend:  backend,
		pipeline: cfg,
		now:      time.Now,
		logger:   slog.Default().With("component", "stage-executor"),
	}
}

// Timeout returns the deadline applied to the named stage.
func (e *Executor) Timeout(stage string) time.Duration {
	return e.pipeline.StageTimeout(stage)
}

type outcome struct {
	resp Response
	err  error
}

// Run executes desc and returns exactly one of a result or a *StageError.
// The call returns no later than the stage deadline even if the backend
// ignores its context.
func (e *Executor) Run(ctx context.Context, desc pipeline.StageDescriptor, sc SessionContext) (models.StageResult, error) {
	timeout := e.Timeout(desc.Name)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := Request{
		SessionID: sc.SessionID,
		Stage:     desc.Name,
		Phase:     desc.Phase,
		Intake:    sc.Intake.Clone(),
		ImageRefs: append([]string(nil), sc.ImageRefs...),
		Prior:     clonePrior(sc.Prior),
	}

	done := make(chan outcome, 1)
	go func() {
		resp, err := e.backend.RunStage(ctx, req)
		done <- outcome{resp: resp, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = outcome{err: ctx.Err()}
	}

	if out.err != nil {
		serr := classify(ctx, desc.Name, out.err)
		e.logger.Warn("Stage failed",
			"session_id", sc.SessionID,
			"stage", desc.Name,
			"kind", serr.Kind,
			"timeout", timeout,
			"error", out.err)
		return models.StageResult{}, serr
	}

	return models.StageResult{
		StageName:   desc.Name,
		Phase:       desc.Phase,
		Confidence:  ClampConfidence(out.resp.Confidence),
		Summary:     out.resp.Summary,
		CompletedAt: e.now(),
	}, nil
}

func classify(ctx context.Context, stage string, err error) *StageError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newTimeoutError(stage, err)
	}
	return newExecutionError(stage, err)
}

// ClampConfidence bounds c to [0,1]; NaN maps to 0.
func ClampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c), c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

func clonePrior(in []models.StageResult) []models.StageResult {
	out := make([]models.StageResult, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
