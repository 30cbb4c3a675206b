package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcopilot/medcopilot/pkg/models"
)

func newTestRegistry(now time.Time) *Registry {
	r := NewRegistry()
	r.now = func() time.Time { return now }
	return r
}

func result(name string) models.StageResult {
	return models.StageResult{StageName: name, Confidence: 0.9, Summary: map[string]any{"summary": name}}
}

func TestRegistryCreateAndGet(t *testing.T) {
	r := NewRegistry()
	intake := models.Intake{ChiefComplaint: "headache", Vitals: &models.Vitals{HR: "80"}}

	s := r.Create(intake, []string{"img"}, []string{"a", "b"})
	require.NotEmpty(t, s.ID)
	assert.Equal(t, models.StatusInitialized, s.Status)
	assert.Equal(t, []string{"a", "b"}, s.Pipeline)
	assert.Empty(t, s.Results)
	assert.Nil(t, s.Report)
	assert.Nil(t, s.Failure)

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "headache", got.Intake.ChiefComplaint)

	other := r.Create(intake, nil, nil)
	assert.NotEqual(t, s.ID, other.ID)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistrySnapshotsAreCopies(t *testing.T) {
	r := NewRegistry()
	s := r.Create(models.Intake{ChiefComplaint: "cough", Vitals: &models.Vitals{SpO2: "97%"}}, nil, []string{"a"})
	require.NoError(t, r.MarkRunning(s.ID))
	require.NoError(t, r.AppendResult(s.ID, result("a")))

	snap, err := r.Get(s.ID)
	require.NoError(t, err)
	snap.Intake.Vitals.SpO2 = "50%"
	snap.Results[0].Summary["summary"] = "mutated"
	snap.Pipeline[0] = "zzz"

	fresh, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "97%", fresh.Intake.Vitals.SpO2)
	assert.Equal(t, "a", fresh.Results[0].Summary["summary"])
	assert.Equal(t, "a", fresh.Pipeline[0])
}

func TestRegistrySnapshotsCopyNestedSummaries(t *testing.T) {
	r := NewRegistry()
	s := r.Create(models.Intake{ChiefComplaint: "chest pain"}, nil, []string{"a"})
	require.NoError(t, r.MarkRunning(s.ID))

	res := models.StageResult{StageName: "a", Summary: map[string]any{
		"diagnoses": []any{map[string]any{"diagnosis": "orig"}},
	}}
	require.NoError(t, r.AppendResult(s.ID, res))
	res.Summary["diagnoses"].([]any)[0].(map[string]any)["diagnosis"] = "caller"

	snap, err := r.Get(s.ID)
	require.NoError(t, err)
	snap.Results[0].Summary["diagnoses"].([]any)[0].(map[string]any)["diagnosis"] = "snapshot"

	fresh, err := r.Get(s.ID)
	require.NoError(t, err)
	diag := fresh.Results[0].Summary["diagnoses"].([]any)[0].(map[string]any)
	assert.Equal(t, "orig", diag["diagnosis"])
}

func TestRegistryAppendResult(t *testing.T) {
	r := NewRegistry()
	s := r.Create(models.Intake{ChiefComplaint: "x"}, nil, []string{"a", "b"})

	err := r.AppendResult(s.ID, result("a"))
	assert.ErrorIs(t, err, ErrNotRunning, "initialized sessions reject results")

	require.NoError(t, r.MarkRunning(s.ID))
	require.NoError(t, r.MarkRunning(s.ID), "marking running twice is a no-op")
	require.NoError(t, r.AppendResult(s.ID, result("a")))
	require.NoError(t, r.AppendResult(s.ID, result("b")))

	err = r.AppendResult(s.ID, result("c"))
	assert.ErrorIs(t, err, ErrPipelineOverflow)

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Len(t, got.Results, 2)
	assert.Equal(t, models.StatusRunning, got.Status)

	assert.ErrorIs(t, r.AppendResult("missing", result("a")), ErrSessionNotFound)
}

func TestRegistrySetTerminalOnce(t *testing.T) {
	r := NewRegistry()
	s := r.Create(models.Intake{ChiefComplaint: "x"}, nil, []string{"a"})
	require.NoError(t, r.MarkRunning(s.ID))

	failure := &models.Failure{StageName: "a", Kind: models.ErrorKindStageTimeout, Message: "deadline"}
	done, err := r.SetTerminal(s.ID, models.StatusFailed, Terminal{Failure: failure})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, done.Status)
	require.NotNil(t, done.CompletedAt)
	require.NotNil(t, done.Failure)
	assert.Equal(t, models.ErrorKindStageTimeout, done.Failure.Kind)

	_, err = r.SetTerminal(s.ID, models.StatusCompleted, Terminal{Report: &models.Report{}})
	assert.ErrorIs(t, err, ErrAlreadyTerminal)

	_, err = r.SetTerminal(s.ID, models.StatusCancelled, Terminal{})
	assert.ErrorIs(t, err, ErrAlreadyTerminal)

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status, "state unchanged after rejected transition")
	assert.Nil(t, got.Report)

	assert.ErrorIs(t, r.MarkRunning(s.ID), ErrAlreadyTerminal)
	assert.ErrorIs(t, r.AppendResult(s.ID, result("a")), ErrNotRunning)
}

func TestRegistrySetTerminalValidatesPayload(t *testing.T) {
	tests := []struct {
		name   string
		status models.SessionStatus
		term   Terminal
	}{
		{"completed without report", models.StatusCompleted, Terminal{}},
		{"failed without failure", models.StatusFailed, Terminal{}},
		{"cancelled with report", models.StatusCancelled, Terminal{Report: &models.Report{}}},
		{"non-terminal status", models.StatusRunning, Terminal{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			s := r.Create(models.Intake{ChiefComplaint: "x"}, nil, nil)
			_, err := r.SetTerminal(s.ID, tt.status, tt.term)
			assert.ErrorIs(t, err, ErrInvalidTerminal)

			got, err := r.Get(s.ID)
			require.NoError(t, err)
			assert.Equal(t, models.StatusInitialized, got.Status)
		})
	}
}

func TestRegistryConcurrentSetTerminal(t *testing.T) {
	r := NewRegistry()
	s := r.Create(models.Intake{ChiefComplaint: "x"}, nil, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.SetTerminal(s.ID, models.StatusCancelled, Terminal{}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRegistryConcurrentSessions(t *testing.T) {
	r := NewRegistry()
	pipeline := []string{"a", "b", "c", "d"}

	ids := make([]string, 10)
	for i := range ids {
		ids[i] = r.Create(models.Intake{ChiefComplaint: "x"}, nil, pipeline).ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = r.MarkRunning(id)
			for _, name := range pipeline {
				_ = r.AppendResult(id, result(name))
				_ = r.List()
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		got, err := r.Get(id)
		require.NoError(t, err)
		assert.Len(t, got.Results, len(pipeline))
	}
	assert.Equal(t, 10, r.CountActive())
}

func TestRegistryListOrdered(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var want []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		r.now = func() time.Time { return at }
		want = append(want, r.Create(models.Intake{ChiefComplaint: "x"}, nil, nil).ID)
	}

	var got []string
	for _, s := range r.List() {
		got = append(got, s.ID)
	}
	assert.Equal(t, want, got)
}

func TestRegistryDelete(t *testing.T) {
	r := NewRegistry()
	s := r.Create(models.Intake{ChiefComplaint: "x"}, nil, nil)

	assert.ErrorIs(t, r.Delete(s.ID), ErrSessionActive)

	_, err := r.SetTerminal(s.ID, models.StatusCancelled, Terminal{})
	require.NoError(t, err)
	require.NoError(t, r.Delete(s.ID))

	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, r.Delete(s.ID), ErrSessionNotFound)
}

func TestRegistryEvictTerminalBefore(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRegistry(base)

	old := r.Create(models.Intake{ChiefComplaint: "old"}, nil, nil)
	_, err := r.SetTerminal(old.ID, models.StatusCancelled, Terminal{})
	require.NoError(t, err)

	active := r.Create(models.Intake{ChiefComplaint: "active"}, nil, nil)

	r.now = func() time.Time { return base.Add(time.Hour) }
	recent := r.Create(models.Intake{ChiefComplaint: "recent"}, nil, nil)
	_, err = r.SetTerminal(recent.ID, models.StatusCancelled, Terminal{})
	require.NoError(t, err)

	evicted := r.EvictTerminalBefore(base.Add(30 * time.Minute))
	assert.Equal(t, []string{old.ID}, evicted)

	_, err = r.Get(old.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = r.Get(active.ID)
	assert.NoError(t, err)
	_, err = r.Get(recent.ID)
	assert.NoError(t, err)
}
