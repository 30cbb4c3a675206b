package session

import (
	"sync"

	"github.com/medcopilot/medcopilot/pkg/models"
)

// Terminal is the payload of a terminal transition.
type Terminal struct {
	Report  *models.Report
	Failure *models.Failure
}

// record is the registry-owned session state. All access goes through mu.
type record struct {
	mu   sync.Mutex
	data models.Session
}

func (r *record) snapshot() models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data.Clone()
}

func validateTerminal(status models.SessionStatus, t Terminal) error {
	switch status {
	case models.StatusCompleted:
		if t.Report == nil || t.Failure != nil {
			return ErrInvalidTerminal
		}
	case models.StatusFailed:
		if t.Failure == nil || t.Report != nil {
			return ErrInvalidTerminal
		}
	case models.StatusCancelled:
		if t.Report != nil || t.Failure != nil {
			return ErrInvalidTerminal
		}
	default:
		return ErrInvalidTerminal
	}
	return nil
}
