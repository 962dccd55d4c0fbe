package oracle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/amishk599/jobsweep/internal/model"
)

var (
	seniorities = []string{"intern", "junior", "mid", "senior", "staff", "principal", "lead", "manager", "director", "executive", "unknown"}
	tracks      = []string{"ic", "management", "unknown"}
	arrangement = []string{"remote", "hybrid", "onsite", "unknown"}
	periods     = []string{"year", "month", "hour"}
)

var requiredFields = []string{"job_subfamily", "seniority", "track", "working_arrangement", "skills", "summary"}

// classificationSchema is sent to providers that enforce structured output.
// parseResult validates the same rules for providers that do not.
var classificationSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"job_subfamily":       map[string]any{"type": "string"},
		"seniority":           map[string]any{"type": "string", "enum": seniorities},
		"track":               map[string]any{"type": "string", "enum": tracks},
		"working_arrangement": map[string]any{"type": "string", "enum": arrangement},
		"skills": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"compensation": map[string]any{
			"type":                 []string{"object", "null"},
			"additionalProperties": false,
			"properties": map[string]any{
				"min":      map[string]any{"type": "number"},
				"max":      map[string]any{"type": "number"},
				"currency": map[string]any{"type": "string"},
				"period":   map[string]any{"type": "string", "enum": periods},
			},
			"required": []string{"min", "max", "currency", "period"},
		},
		"summary": map[string]any{"type": "string"},
	},
	"required": append(append([]string{}, requiredFields...), "compensation"),
}

// parseResult decodes and validates a reply. Any failure wraps ErrMalformed.
// working_arrangement is passed through as given; blank or unrecognized
// values are resolved to unknown by taxonomy.NormalizeArrangement.
func parseResult(raw string) (model.ClassificationResult, error) {
	body := stripFences(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return model.ClassificationResult{}, fmt.Errorf("%w: not a JSON object: %v", ErrMalformed, err)
	}
	for _, f := range requiredFields {
		if _, ok := fields[f]; !ok {
			return model.ClassificationResult{}, fmt.Errorf("%w: missing field %q", ErrMalformed, f)
		}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	var res model.ClassificationResult
	if err := dec.Decode(&res); err != nil {
		return model.ClassificationResult{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	res.Seniority = strings.ToLower(strings.TrimSpace(res.Seniority))
	res.Track = strings.ToLower(strings.TrimSpace(res.Track))
	res.WorkingArrangement = strings.ToLower(strings.TrimSpace(res.WorkingArrangement))
	res.JobSubfamily = strings.ToLower(strings.TrimSpace(res.JobSubfamily))

	if !oneOf(res.Seniority, seniorities) {
		return model.ClassificationResult{}, fmt.Errorf("%w: seniority %q", ErrMalformed, res.Seniority)
	}
	if !oneOf(res.Track, tracks) {
		return model.ClassificationResult{}, fmt.Errorf("%w: track %q", ErrMalformed, res.Track)
	}
	if c := res.Compensation; c != nil {
		if c.Min < 0 || c.Max < 0 || (c.Max > 0 && c.Min > c.Max) {
			return model.ClassificationResult{}, fmt.Errorf("%w: compensation range %v-%v", ErrMalformed, c.Min, c.Max)
		}
		if c.Period != "" && !oneOf(c.Period, periods) {
			return model.ClassificationResult{}, fmt.Errorf("%w: compensation period %q", ErrMalformed, c.Period)
		}
		if c.Min == 0 && c.Max == 0 {
			res.Compensation = nil
		}
	}
	return res, nil
}

// stripFences removes a surrounding ```json fence, which some models add
// even when told not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
