// Package report folds the ordered stage results of a session into its
// final clinical report. Aggregation is pure: the same inputs always give
// the same report.
package report

import (
	"github.com/medcopilot/medcopilot/pkg/models"
	"github.com/medcopilot/medcopilot/pkg/pipeline"
)

// Summary keys read from stage results.
const (
	keyFindings        = "findings"
	keyDiagnoses       = "diagnoses"
	keyRiskScores      = "risk_scores"
	keyUrgency         = "urgency"
	keyRecommendations = "recommendations"
	keyRedFlags        = "red_flags"
)

// Aggregate builds the report of a completed session. Conditional stages
// that did not run are simply absent from results.
func Aggregate(intake models.Intake, results []models.StageResult) models.Report {
	rep := models.Report{
		ChiefComplaint:        intake.ChiefComplaint,
		OverallConfidence:     meanConfidence(results),
		StagesCompleted:       len(results),
		StageSummaries:        stageSummaries(results),
		DifferentialDiagnosis: []models.Diagnosis{},
		RiskScores:            []models.RiskScore{},
		Recommendations:       emptyRecommendations(),
		RedFlags:              redFlags(intake, results),
	}

	byStage := make(map[string]models.StageResult, len(results))
	for _, r := range results {
		byStage[r.StageName] = r
	}

	if r, ok := byStage[pipeline.StageDifferentialDiagnosis]; ok {
		var dx []models.Diagnosis
		if decodeInto(r.Summary[keyDiagnoses], &dx) && dx != nil {
			rep.DifferentialDiagnosis = dx
		}
	}

	declared := ""
	if r, ok := byStage[pipeline.StageRiskStratification]; ok {
		var scores []models.RiskScore
		if decodeInto(r.Summary[keyRiskScores], &scores) && scores != nil {
			rep.RiskScores = scores
		}
		declared, _ = r.Summary[keyUrgency].(string)
	}

	for _, name := range []string{pipeline.StageMedicalWriter, pipeline.StageClinicalGuidelines} {
		r, ok := byStage[name]
		if !ok {
			continue
		}
		var recs models.Recommendations
		if decodeInto(r.Summary[keyRecommendations], &recs) {
			rep.Recommendations = normalizeRecommendations(recs)
			break
		}
	}

	_, rep.ImagingReviewed = byStage[pipeline.StageVisualDiagnostics]
	_, rep.LabsReviewed = byStage[pipeline.StageLabInterpreter]

	rep.Urgency = Urgency(intake.Vitals, results, declared)

	if n := len(results); n > 0 {
		rep.GeneratedAt = results[n-1].CompletedAt
	}
	return rep
}

// AggregatePartial builds the audit digest of a session that stopped before
// finishing its pipeline.
func AggregatePartial(intake models.Intake, results []models.StageResult, failure *models.Failure) models.PartialReport {
	p := models.PartialReport{
		Partial:           true,
		ChiefComplaint:    intake.ChiefComplaint,
		StagesCompleted:   len(results),
		OverallConfidence: meanConfidence(results),
		StageSummaries:    stageSummaries(results),
		RedFlags:          redFlags(intake, results),
	}
	if failure != nil {
		p.FailedStage = failure.StageName
		p.FailureKind = failure.Kind
		p.FailureMessage = failure.Message
	}
	return p
}

func meanConfidence(results []models.StageResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Confidence
	}
	return sum / float64(len(results))
}

func stageSummaries(results []models.StageResult) []models.StageSummary {
	out := make([]models.StageSummary, 0, len(results))
	for _, r := range results {
		c := r.Clone()
		out = append(out, models.StageSummary{
			StageName:  c.StageName,
			Phase:      c.Phase,
			Confidence: c.Confidence,
			Summary:    c.Summary,
			Findings:   toStrings(c.Summary[keyFindings]),
		})
	}
	return out
}

func redFlags(intake models.Intake, results []models.StageResult) []string {
	seen := make(map[string]bool)
	flags := []string{}
	add := func(f string) {
		if f == "" || seen[f] {
			return
		}
		seen[f] = true
		flags = append(flags, f)
	}

	for _, f := range vitalsRedFlags(intake.Vitals) {
		add(f)
	}
	for _, r := range results {
		for _, f := range toStrings(r.Summary[keyRedFlags]) {
			add(f)
		}
	}
	return flags
}

func emptyRecommendations() models.Recommendations {
	return models.Recommendations{
		Diagnostic: []string{},
		Treatment:  []string{},
		Monitoring: []string{},
	}
}

func normalizeRecommendations(r models.Recommendations) models.Recommendations {
	if r.Diagnostic == nil {
		r.Diagnostic = []string{}
	}
	if r.Treatment == nil {
		r.Treatment = []string{}
	}
	if r.Monitoring == nil {
		r.Monitoring = []string{}
	}
	return r
}
