package models

import "time"

// Conditions are the facts derived from a session's input that decide which
// conditional stages join its pipeline.
type Conditions struct {
	HasImages    bool
	HasLabValues bool
}

// StageResult is the outcome of one successfully executed stage.
type StageResult struct {
	StageName   string         `json:"stage_name"`
	Phase       string         `json:"phase"`
	Confidence  float64        `json:"confidence"`
	Summary     map[string]any `json:"summary,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`
}

// Clone returns a copy of the result with its own summary map.
func (r StageResult) Clone() StageResult {
	out := r
	out.Summary = cloneMap(r.Summary)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue deep-copies the container shapes JSON and protobuf decoding
// produce. Other values are returned as is.
func cloneValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return cloneMap(tv)
	case []any:
		if tv == nil {
			return tv
		}
		cp := make([]any, len(tv))
		for i, e := range tv {
			cp[i] = cloneValue(e)
		}
		return cp
	case []map[string]any:
		if tv == nil {
			return tv
		}
		cp := make([]map[string]any, len(tv))
		for i, e := range tv {
			cp[i] = cloneMap(e)
		}
		return cp
	case []string:
		return cloneStrings(tv)
	default:
		return v
	}
}
