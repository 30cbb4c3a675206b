// Package session holds the in-memory registry of analysis sessions.
//
// The registry map is guarded by an RWMutex and each session has its own
// mutex, so writers on one session never block readers or writers of another.
// Every value handed out is a deep copy.
package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medcopilot/medcopilot/pkg/models"
)

// Registry manages sessions in memory
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*record
	now      func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*record),
		now:      time.Now,
	}
}

// Create registers a new Initialized session and returns its snapshot.
func (r *Registry) Create(intake models.Intake, imageRefs []string, pipeline []string) models.Session {
	now := r.now()
	rec := &record{data: models.Session{
		ID:        uuid.New().String(),
		Status:    models.StatusInitialized,
		Intake:    intake.Clone(),
		ImageRefs: append([]string{}, imageRefs...),
		Pipeline:  append([]string{}, pipeline...),
		Results:   make([]models.StageResult, 0, len(pipeline)),
		CreatedAt: now,
		UpdatedAt: now,
	}}

	r.mu.Lock()
	r.sessions[rec.data.ID] = rec
	r.mu.Unlock()

	return rec.snapshot()
}

func (r *Registry) lookup(id string) (*record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return rec, nil
}

// Get returns a snapshot of the session.
func (r *Registry) Get(id string) (models.Session, error) {
	rec, err := r.lookup(id)
	if err != nil {
		return models.Session{}, err
	}
	return rec.snapshot(), nil
}

// MarkRunning moves an Initialized session to Running. It is a no-op for a
// session that is already Running.
func (r *Registry) MarkRunning(id string) error {
	rec, err := r.lookup(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	switch {
	case rec.data.Status.IsTerminal():
		return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, rec.data.Status)
	case rec.data.Status == models.StatusRunning:
		return nil
	}
	rec.data.Status = models.StatusRunning
	rec.data.UpdatedAt = r.now()
	return nil
}

// AppendResult records a completed stage. It is rejected when the session is
// not Running or when it would grow Results past the pipeline length.
func (r *Registry) AppendResult(id string, result models.StageResult) error {
	rec, err := r.lookup(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.data.Status != models.StatusRunning {
		return fmt.Errorf("%w: %s is %s", ErrNotRunning, id, rec.data.Status)
	}
	if len(rec.data.Results) >= len(rec.data.Pipeline) {
		return fmt.Errorf("%w: %s has %d of %d", ErrPipelineOverflow, id, len(rec.data.Results), len(rec.data.Pipeline))
	}
	rec.data.Results = append(rec.data.Results, result.Clone())
	rec.data.UpdatedAt = r.now()
	return nil
}

// SetTerminal performs the one terminal transition of a session. A second
// call returns ErrAlreadyTerminal and changes nothing.
func (r *Registry) SetTerminal(id string, status models.SessionStatus, t Terminal) (models.Session, error) {
	if err := validateTerminal(status, t); err != nil {
		return models.Session{}, fmt.Errorf("%w: status %s", err, status)
	}

	rec, err := r.lookup(id)
	if err != nil {
		return models.Session{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.data.Status.IsTerminal() {
		return models.Session{}, fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, rec.data.Status)
	}

	now := r.now()
	rec.data.Status = status
	rec.data.UpdatedAt = now
	rec.data.CompletedAt = &now
	if t.Report != nil {
		rep := t.Report.Clone()
		rec.data.Report = &rep
	}
	if t.Failure != nil {
		f := *t.Failure
		rec.data.Failure = &f
	}
	return rec.data.Clone(), nil
}

// List returns snapshots of all sessions, oldest first.
func (r *Registry) List() []models.Session {
	r.mu.RLock()
	recs := make([]*record, 0, len(r.sessions))
	for _, rec := range r.sessions {
		recs = append(recs, rec)
	}
	r.mu.RUnlock()

	out := make([]models.Session, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CountActive returns how many sessions have not reached a terminal status.
func (r *Registry) CountActive() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rec := range r.sessions {
		rec.mu.Lock()
		if !rec.data.Status.IsTerminal() {
			n++
		}
		rec.mu.Unlock()
	}
	return n
}

// Delete removes a terminal session.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	rec.mu.Lock()
	status := rec.data.Status
	rec.mu.Unlock()
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrSessionActive, id, status)
	}

	delete(r.sessions, id)
	return nil
}

// EvictTerminalBefore removes every terminal session that completed before
// cutoff and returns the evicted ids.
func (r *Registry) EvictTerminalBefore(cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []string
	for id, rec := range r.sessions {
		rec.mu.Lock()
		expired := rec.data.Status.IsTerminal() &&
			rec.data.CompletedAt != nil &&
			rec.data.CompletedAt.Before(cutoff)
		rec.mu.Unlock()

		if expired {
			delete(r.sessions, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}
