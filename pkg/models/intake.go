package models

import "strings"

// Vitals holds the vital signs captured at intake. All values are free text
// as entered by the clinician (e.g. "120/80", "98%").
type Vitals struct {
	BP   string `json:"bp,omitempty"`
	HR   string `json:"hr,omitempty"`
	RR   string `json:"rr,omitempty"`
	Temp string `json:"temp,omitempty"`
	SpO2 string `json:"spo2,omitempty"`
}

// Intake is the structured clinical input that starts an analysis session.
type Intake struct {
	ChiefComplaint string  `json:"chief_complaint"`
	HPI            string  `json:"hpi,omitempty"`
	PMH            string  `json:"pmh,omitempty"`
	Medications    string  `json:"medications,omitempty"`
	Allergies      string  `json:"allergies,omitempty"`
	Vitals         *Vitals `json:"vitals,omitempty"`
	LabValues      string  `json:"lab_values,omitempty"`
}

// HasLabValues reports whether the intake carries laboratory values.
func (i Intake) HasLabValues() bool {
	return strings.TrimSpace(i.LabValues) != ""
}

// Clone returns a copy that shares no memory with the receiver.
func (i Intake) Clone() Intake {
	out := i
	if i.Vitals != nil {
		v := *i.Vitals
		out.Vitals = &v
	}
	return out
}
