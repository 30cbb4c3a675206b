package report

import (
	"encoding/json"
	"strings"
)

// decodeInto converts a loosely typed summary value into out through JSON.
// It reports false when v is absent or has the wrong shape.
func decodeInto(v any, out any) bool {
	if v == nil {
		return false
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// toStrings returns the non-blank string elements of v.
func toStrings(v any) []string {
	var out []string
	switch tv := v.(type) {
	case []string:
		for _, s := range tv {
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, e := range tv {
			if s, ok := e.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
