// Package events delivers per-session progress events to the one live
// subscriber of each session.
//
// Delivery is best-effort and live only. There is no buffering and no replay:
// an event published while a session has no subscriber is dropped, and a
// subscriber that attaches late sees only what is published after it attached.
//
// Event order for a session that runs to completion:
//
//	stage_started, stage_completed   (once per pipeline stage, in order)
//	analysis_complete                (carries the final report)
//
// A session that stops early emits a single error event instead of the
// remaining stages. Its error_kind is stage_execution_error, stage_timeout
// or cancelled.
package events

import (
	"time"

	"github.com/medcopilot/medcopilot/pkg/models"
)

// Event types.
const (
	EventTypeStageStarted     = "stage_started"
	EventTypeStageCompleted   = "stage_completed"
	EventTypeAnalysisComplete = "analysis_complete"
	EventTypeError            = "error"
)

// Event is the JSON message sent to a session subscriber.
type Event struct {
	Type       string           `json:"type"`
	SessionID  string           `json:"session_id"`
	StageName  string           `json:"stage_name,omitempty"`
	Phase      string           `json:"phase,omitempty"`
	Confidence *float64         `json:"confidence,omitempty"`
	Summary    map[string]any   `json:"summary,omitempty"`
	Report     *models.Report   `json:"report,omitempty"`
	ErrorKind  models.ErrorKind `json:"error_kind,omitempty"`
	Message    string           `json:"message,omitempty"`
	Timestamp  string           `json:"timestamp"` // RFC3339Nano
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action string `json:"action"` // "ping"
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
