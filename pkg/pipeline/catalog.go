// Package pipeline holds the static stage catalog and builds the concrete
// stage sequence for a session from its input conditions.
package pipeline

import "github.com/medcopilot/medcopilot/pkg/models"

// Stage names. Catalog order below is the canonical execution order.
const (
	StageClinicalCoordinator   = "clinical_coordinator"
	StageIntakeSpecialist      = "intake_specialist"
	StageSymptomAnalyzer       = "symptom_analyzer"
	StageVisualDiagnostics     = "visual_diagnostics_agent"
	StageDifferentialDiagnosis = "differential_diagnosis_agent"
	StageMedicalLiterature     = "medical_literature_agent"
	StageDrugInteraction       = "drug_interaction_checker"
	StageClinicalGuidelines    = "clinical_guidelines_agent"
	StageLabInterpreter        = "lab_interpreter"
	StageEvidenceSynthesizer   = "evidence_synthesizer"
	StageClinicalReasoning     = "clinical_reasoning_agent"
	StageRiskStratification    = "risk_stratification_agent"
	StageMedicalFactChecker    = "medical_fact_checker"
	StageSafetyGuardian        = "safety_guardian"
	StageEthicsReviewer        = "ethics_reviewer"
	StageMedicalWriter         = "medical_writer"
)

// Predicate decides whether a stage joins a session's pipeline.
type Predicate func(models.Conditions) bool

// StageDescriptor is an immutable catalog entry.
type StageDescriptor struct {
	Name        string
	Phase       string
	Description string
	// Conditional is true when Include is not always true. Exposed for listing.
	Conditional bool
	Include     Predicate
}

// Metadata is the read-only listing form of a descriptor.
type Metadata struct {
	Position    int    `json:"position"`
	Name        string `json:"name"`
	Phase       string `json:"phase"`
	Description string `json:"description"`
	Conditional bool   `json:"conditional"`
	Condition   string `json:"condition,omitempty"`
}

func always(models.Conditions) bool { return true }

func withImages(c models.Conditions) bool { return c.HasImages }

func withLabValues(c models.Conditions) bool { return c.HasLabValues }

var catalog = []StageDescriptor{
	{Name: StageClinicalCoordinator, Phase: "Orchestration", Description: "Root orchestrator for multi-agent coordination", Include: always},
	{Name: StageIntakeSpecialist, Phase: "Data Collection", Description: "Structured clinical data extraction", Include: always},
	{Name: StageSymptomAnalyzer, Phase: "Clinical Analysis", Description: "Advanced symptom pattern recognition", Include: always},
	{Name: StageVisualDiagnostics, Phase: "Imaging Analysis", Description: "Medical image analysis (dermatology, radiology, pathology)", Conditional: true, Include: withImages},
	{Name: StageDifferentialDiagnosis, Phase: "Diagnostic Reasoning", Description: "Bayesian diagnostic reasoning", Include: always},
	{Name: StageMedicalLiterature, Phase: "Evidence Synthesis", Description: "Evidence-based medicine research", Include: always},
	{Name: StageDrugInteraction, Phase: "Medication Safety", Description: "Comprehensive medication safety", Include: always},
	{Name: StageClinicalGuidelines, Phase: "Guideline Application", Description: "Clinical practice guideline synthesis", Include: always},
	{Name: StageLabInterpreter, Phase: "Laboratory Interpretation", Description: "Laboratory test interpretation", Conditional: true, Include: withLabValues},
	{Name: StageEvidenceSynthesizer, Phase: "Integration", Description: "Master evidence integrator", Include: always},
	{Name: StageClinicalReasoning, Phase: "Clinical Reasoning", Description: "Expert clinical reasoning frameworks", Include: always},
	{Name: StageRiskStratification, Phase: "Risk Assessment", Description: "Clinical risk assessment and urgency", Include: always},
	{Name: StageMedicalFactChecker, Phase: "Quality Assurance", Description: "Medical accuracy validation", Include: always},
	{Name: StageSafetyGuardian, Phase: "Safety Review", Description: "Patient safety and harm prevention", Include: always},
	{Name: StageEthicsReviewer, Phase: "Ethics Review", Description: "Medical ethics and bias detection", Include: always},
	{Name: StageMedicalWriter, Phase: "Report Generation", Description: "Professional medical report generation", Include: always},
}

var conditionLabels = map[string]string{
	StageVisualDiagnostics: "images present",
	StageLabInterpreter:    "lab values present",
}

// Catalog returns a copy of the full ordered catalog.
func Catalog() []StageDescriptor {
	out := make([]StageDescriptor, len(catalog))
	copy(out, catalog)
	return out
}

// Len returns the number of catalog entries.
func Len() int {
	return len(catalog)
}

// Lookup returns the descriptor with the given name.
func Lookup(name string) (StageDescriptor, bool) {
	for _, d := range catalog {
		if d.Name == name {
			return d, true
		}
	}
	return StageDescriptor{}, false
}

// ListStages returns catalog metadata in canonical order.
func ListStages() []Metadata {
	out := make([]Metadata, len(catalog))
	for i, d := range catalog {
		out[i] = Metadata{
			Position:    i + 1,
			Name:        d.Name,
			Phase:       d.Phase,
			Description: d.Description,
			Conditional: d.Conditional,
			Condition:   conditionLabels[d.Name],
		}
	}
	return out
}
