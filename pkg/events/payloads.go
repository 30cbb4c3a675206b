package events

import (
	"time"

	"github.com/medcopilot/medcopilot/pkg/models"
)

// StageStarted builds the event published before a stage runs.
func StageStarted(sessionID, stage, phase string, at time.Time) Event {
	return Event{
		Type:      EventTypeStageStarted,
		SessionID: sessionID,
		StageName: stage,
		Phase:     phase,
		Timestamp: timestamp(at),
	}
}

// StageCompleted builds the event published after a stage result is recorded.
func StageCompleted(sessionID string, r models.StageResult) Event {
	conf := r.Confidence
	return Event{
		Type:       EventTypeStageCompleted,
		SessionID:  sessionID,
		StageName:  r.StageName,
		Phase:      r.Phase,
		Confidence: &conf,
		Summary:    r.Clone().Summary,
		Timestamp:  timestamp(r.CompletedAt),
	}
}

// AnalysisComplete builds the final event of a completed session.
func AnalysisComplete(sessionID string, report models.Report, at time.Time) Event {
	rep := report.Clone()
	return Event{
		Type:      EventTypeAnalysisComplete,
		SessionID: sessionID,
		Report:    &rep,
		Timestamp: timestamp(at),
	}
}

// Error builds the single event of a session that stopped early. stage is
// empty for a cancellation observed before any stage started.
func Error(sessionID, stage string, kind models.ErrorKind, message string, at time.Time) Event {
	return Event{
		Type:      EventTypeError,
		SessionID: sessionID,
		StageName: stage,
		ErrorKind: kind,
		Message:   message,
		Timestamp: timestamp(at),
	}
}
