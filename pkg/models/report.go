package models

import "time"

// Urgency levels assigned to a report, most severe first.
const (
	UrgencyEmergent   = "emergent"
	UrgencyUrgent     = "urgent"
	UrgencySemiUrgent = "semi-urgent"
	UrgencyRoutine    = "routine"
)

// StageSummary is the per-stage digest embedded in a report.
type StageSummary struct {
	StageName  string         `json:"stage_name"`
	Phase      string         `json:"phase"`
	Confidence float64        `json:"confidence"`
	Summary    map[string]any `json:"summary,omitempty"`
	Findings   []string       `json:"findings,omitempty"`
}

// Diagnosis is one entry of the differential.
type Diagnosis struct {
	Diagnosis   string   `json:"diagnosis"`
	ICD11Code   string   `json:"icd11_code,omitempty"`
	Probability string   `json:"probability,omitempty"`
	Supporting  []string `json:"supporting,omitempty"`
	NextSteps   []string `json:"next_steps,omitempty"`
}

// RiskScore is a named clinical risk assessment.
type RiskScore struct {
	Name           string `json:"name"`
	Value          string `json:"value"`
	Interpretation string `json:"interpretation,omitempty"`
}

// Recommendations groups the suggested next actions.
type Recommendations struct {
	Diagnostic []string `json:"diagnostic"`
	Treatment  []string `json:"treatment"`
	Monitoring []string `json:"monitoring"`
	Referral   string   `json:"referral,omitempty"`
}

// Report is the final aggregated output of a completed session.
type Report struct {
	ChiefComplaint        string          `json:"chief_complaint"`
	Urgency               string          `json:"urgency"`
	OverallConfidence     float64         `json:"overall_confidence"`
	StagesCompleted       int             `json:"stages_completed"`
	StageSummaries        []StageSummary  `json:"stage_summaries"`
	DifferentialDiagnosis []Diagnosis     `json:"differential_diagnosis"`
	RiskScores            []RiskScore     `json:"risk_scores"`
	Recommendations       Recommendations `json:"recommendations"`
	RedFlags              []string        `json:"red_flags"`
	ImagingReviewed       bool            `json:"imaging_reviewed"`
	LabsReviewed          bool            `json:"labs_reviewed"`
	GeneratedAt           time.Time       `json:"generated_at"`
}

// PartialReport is the best-effort audit digest of a session that did not
// complete. It is never attached to a session as its report.
type PartialReport struct {
	Partial           bool           `json:"partial"`
	ChiefComplaint    string         `json:"chief_complaint"`
	StagesCompleted   int            `json:"stages_completed"`
	OverallConfidence float64        `json:"overall_confidence"`
	StageSummaries    []StageSummary `json:"stage_summaries"`
	RedFlags          []string       `json:"red_flags"`
	FailedStage       string         `json:"failed_stage,omitempty"`
	FailureKind       ErrorKind      `json:"failure_kind,omitempty"`
	FailureMessage    string         `json:"failure_message,omitempty"`
}

// Clone returns a deep copy of the report.
func (r Report) Clone() Report {
	out := r
	out.StageSummaries = cloneStageSummaries(r.StageSummaries)
	out.DifferentialDiagnosis = make([]Diagnosis, len(r.DifferentialDiagnosis))
	for i, d := range r.DifferentialDiagnosis {
		d.Supporting = cloneStrings(d.Supporting)
		d.NextSteps = cloneStrings(d.NextSteps)
		out.DifferentialDiagnosis[i] = d
	}
	out.RiskScores = cloneRiskScores(r.RiskScores)
	out.Recommendations = Recommendations{
		Diagnostic: cloneStrings(r.Recommendations.Diagnostic),
		Treatment:  cloneStrings(r.Recommendations.Treatment),
		Monitoring: cloneStrings(r.Recommendations.Monitoring),
		Referral:   r.Recommendations.Referral,
	}
	out.RedFlags = cloneStrings(r.RedFlags)
	return out
}

func cloneStageSummaries(in []StageSummary) []StageSummary {
	out := make([]StageSummary, len(in))
	for i, s := range in {
		s.Summary = cloneMap(s.Summary)
		s.Findings = cloneStrings(s.Findings)
		out[i] = s
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRiskScores(in []RiskScore) []RiskScore {
	if in == nil {
		return nil
	}
	out := make([]RiskScore, len(in))
	copy(out, in)
	return out
}
