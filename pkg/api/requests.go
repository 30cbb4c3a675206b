package api

import "github.com/medcopilot/medcopilot/pkg/models"

// AnalyzeRequest is the JSON body of POST /api/v1/analyze. Multipart
// requests carry the same intake as a JSON "intake" form field.
type AnalyzeRequest struct {
	Intake    models.Intake `json:"intake"`
	ImageRefs []string      `json:"image_refs,omitempty"`
}
