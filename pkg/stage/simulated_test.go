package stage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcopilot/medcopilot/pkg/config"
	"github.com/medcopilot/medcopilot/pkg/pipeline"
)

func instantBackend() *SimulatedBackend {
	return NewSimulatedBackend(&config.BackendConfig{SimulatedConfidence: 0.9})
}

func TestSimulatedBackendDefaults(t *testing.T) {
	b := NewSimulatedBackend(nil)
	assert.Equal(t, 500*time.Millisecond, b.latency)
	assert.Equal(t, 0.9, b.confidence)
}

func TestSimulatedBackendSummaries(t *testing.T) {
	b := instantBackend()
	ctx := context.Background()

	resp, err := b.RunStage(ctx, Request{Stage: pipeline.StageSymptomAnalyzer})
	require.NoError(t, err)
	assert.Equal(t, 0.9, resp.Confidence)
	assert.Equal(t, "Completed analysis by symptom_analyzer", resp.Summary["summary"])
	assert.Equal(t, []any{}, resp.Summary["findings"])

	resp, err = b.RunStage(ctx, Request{Stage: pipeline.StageDifferentialDiagnosis})
	require.NoError(t, err)
	require.Contains(t, resp.Summary, "diagnoses")

	resp, err = b.RunStage(ctx, Request{Stage: pipeline.StageRiskStratification})
	require.NoError(t, err)
	assert.Equal(t, "semi-urgent", resp.Summary["urgency"])

	resp, err = b.RunStage(ctx, Request{Stage: pipeline.StageVisualDiagnostics, ImageRefs: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"2 image(s) reviewed"}, resp.Summary["findings"])
}

func TestSimulatedBackendInjectedFailure(t *testing.T) {
	b := instantBackend()
	boom := errors.New("injected")
	b.FailStage(pipeline.StageLabInterpreter, boom)

	_, err := b.RunStage(context.Background(), Request{Stage: pipeline.StageLabInterpreter})
	assert.ErrorIs(t, err, boom)

	b.FailStage(pipeline.StageLabInterpreter, nil)
	_, err = b.RunStage(context.Background(), Request{Stage: pipeline.StageLabInterpreter})
	assert.NoError(t, err)
}

func TestSimulatedBackendLatencyHonoursContext(t *testing.T) {
	b := NewSimulatedBackend(&config.BackendConfig{SimulatedLatency: time.Hour, SimulatedConfidence: 0.9})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := b.RunStage(ctx, Request{Stage: pipeline.StageMedicalWriter})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
