package stage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/medcopilot/medcopilot/pkg/config"
	"github.com/medcopilot/medcopilot/pkg/pipeline"
)

// SimulatedBackend produces canned, stage-shaped results after a fixed
// latency. It is the development backend and the default.
type SimulatedBackend struct {
	latency    time.Duration
	confidence float64

	mu       sync.RWMutex
	failures map[string]error
}

// NewSimulatedBackend creates a simulated backend from cfg.
func NewSimulatedBackend(cfg *config.BackendConfig) *SimulatedBackend {
	if cfg == nil {
		cfg = config.DefaultBackendConfig()
	}
	return &SimulatedBackend{
		latency:    cfg.SimulatedLatency,
		confidence: cfg.SimulatedConfidence,
		failures:   make(map[string]error),
	}
}

// FailStage makes every later call for stage return err. A nil err clears it.
func (b *SimulatedBackend) FailStage(stage string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, stage)
		return
	}
	b.failures[stage] = err
}

// RunStage implements Backend.
func (b *SimulatedBackend) RunStage(ctx context.Context, req Request) (Response, error) {
	if b.latency > 0 {
		timer := time.NewTimer(b.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}

	b.mu.RLock()
	injected := b.failures[req.Stage]
	b.mu.RUnlock()
	if injected != nil {
		return Response{}, injected
	}

	return Response{
		Confidence: b.confidence,
		Summary:    simulatedSummary(req),
	}, nil
}

// simulatedSummary builds the summary map the report aggregator understands.
// Values use []any and map[string]any so they match what a JSON or protobuf
// Struct round trip yields from a remote backend.
func simulatedSummary(req Request) map[string]any {
	s := map[string]any{
		"summary":  fmt.Sprintf("Completed analysis by %s", req.Stage),
		"findings": []any{},
	}

	switch req.Stage {
	case pipeline.StageDifferentialDiagnosis:
		s["diagnoses"] = []any{
			map[string]any{
				"diagnosis":   "Condition based on symptoms",
				"icd11_code":  "XX00.0",
				"probability": "high",
				"supporting":  []any{"Symptom pattern matches", "Risk factors present"},
				"next_steps":  []any{"Diagnostic test A", "Consider consultation"},
			},
		}
	case pipeline.StageRiskStratification:
		s["risk_scores"] = []any{
			map[string]any{
				"name":           "Clinical Risk Score",
				"value":          "Moderate",
				"interpretation": "Follow-up within 48-72 hours recommended",
			},
		}
		s["urgency"] = "semi-urgent"
	case pipeline.StageMedicalWriter:
		s["recommendations"] = map[string]any{
			"diagnostic": []any{"Laboratory studies as indicated", "Imaging if symptoms persist"},
			"treatment":  []any{"Conservative management initially", "Monitor response to therapy"},
			"monitoring": []any{"Follow-up in 1 week", "Return if symptoms worsen"},
			"referral":   "Consider specialist consultation if no improvement",
		}
	case pipeline.StageSafetyGuardian:
		s["red_flags"] = []any{"Severe symptom escalation", "Development of new concerning symptoms"}
	case pipeline.StageVisualDiagnostics:
		s["findings"] = []any{fmt.Sprintf("%d image(s) reviewed", len(req.ImageRefs))}
	case pipeline.StageLabInterpreter:
		s["findings"] = []any{"Laboratory values reviewed"}
	}
	return s
}
