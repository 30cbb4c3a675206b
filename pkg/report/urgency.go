package report

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/medcopilot/medcopilot/pkg/models"
)

// Vital-sign thresholds that make a case emergent.
const (
	minSafeSpO2 = 92.0
	maxSafeHR   = 120.0
)

// Confidence thresholds below which the case is escalated for review.
const (
	urgentConfidence     = 0.5
	semiUrgentConfidence = 0.7
)

var severity = map[string]int{
	models.UrgencyRoutine:    0,
	models.UrgencySemiUrgent: 1,
	models.UrgencyUrgent:     2,
	models.UrgencyEmergent:   3,
}

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// Urgency returns the most severe of: emergent when vitals breach a safety
// threshold, the level implied by the lowest stage confidence, and the level
// declared by the risk stage (ignored when not a known level).
func Urgency(vitals *models.Vitals, results []models.StageResult, declared string) string {
	if len(vitalsRedFlags(vitals)) > 0 {
		return models.UrgencyEmergent
	}

	level := models.UrgencyRoutine
	if len(results) > 0 {
		lowest := results[0].Confidence
		for _, r := range results[1:] {
			if r.Confidence < lowest {
				lowest = r.Confidence
			}
		}
		switch {
		case lowest < urgentConfidence:
			level = models.UrgencyUrgent
		case lowest < semiUrgentConfidence:
			level = models.UrgencySemiUrgent
		}
	}

	if s, ok := severity[declared]; ok && s > severity[level] {
		level = declared
	}
	return level
}

func vitalsRedFlags(v *models.Vitals) []string {
	if v == nil {
		return nil
	}
	var flags []string
	if spo2, ok := parseVital(v.SpO2); ok && spo2 < minSafeSpO2 {
		flags = append(flags, fmt.Sprintf("Hypoxemia: SpO2 %s", v.SpO2))
	}
	if hr, ok := parseVital(v.HR); ok && hr > maxSafeHR {
		flags = append(flags, fmt.Sprintf("Tachycardia: HR %s", v.HR))
	}
	return flags
}

// parseVital extracts the first number of a free-text vital ("91%", "130 bpm").
func parseVital(s string) (float64, bool) {
	m := numberPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
