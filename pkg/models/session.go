package models

import "time"

// SessionStatus represents the lifecycle state of an analysis session.
type SessionStatus string

const (
	StatusInitialized SessionStatus = "initialized"
	StatusRunning     SessionStatus = "running"
	StatusCompleted   SessionStatus = "completed"
	StatusFailed      SessionStatus = "failed"
	StatusCancelled   SessionStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ErrorKind classifies why a stage (and therefore its session) stopped.
type ErrorKind string

const (
	ErrorKindStageExecution ErrorKind = "stage_execution_error"
	ErrorKindStageTimeout   ErrorKind = "stage_timeout"
	ErrorKindCancelled      ErrorKind = "cancelled"
)

// Failure records the stage that aborted a Failed session.
type Failure struct {
	StageName string    `json:"stage_name"`
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
}

// Session is a point-in-time snapshot of one analysis session.
// Report is set iff Status is completed; Failure is set iff Status is failed.
type Session struct {
	ID          string        `json:"id"`
	Status      SessionStatus `json:"status"`
	Intake      Intake        `json:"intake"`
	ImageRefs   []string      `json:"image_refs"`
	Pipeline    []string      `json:"pipeline"`
	Results     []StageResult `json:"results"`
	Report      *Report       `json:"report,omitempty"`
	Failure     *Failure      `json:"failure,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the snapshot.
func (s Session) Clone() Session {
	out := s
	out.Intake = s.Intake.Clone()
	out.ImageRefs = cloneStrings(s.ImageRefs)
	out.Pipeline = cloneStrings(s.Pipeline)
	out.Results = make([]StageResult, len(s.Results))
	for i, r := range s.Results {
		out.Results[i] = r.Clone()
	}
	if s.Report != nil {
		r := s.Report.Clone()
		out.Report = &r
	}
	if s.Failure != nil {
		f := *s.Failure
		out.Failure = &f
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// SessionSummary is the compact listing form of a session.
type SessionSummary struct {
	ID              string        `json:"id"`
	Status          SessionStatus `json:"status"`
	ChiefComplaint  string        `json:"chief_complaint"`
	StagesTotal     int           `json:"stages_total"`
	StagesCompleted int           `json:"stages_completed"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Summary returns the listing form of the snapshot.
func (s Session) Summary() SessionSummary {
	return SessionSummary{
		ID:              s.ID,
		Status:          s.Status,
		ChiefComplaint:  s.Intake.ChiefComplaint,
		StagesTotal:     len(s.Pipeline),
		StagesCompleted: len(s.Results),
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}
