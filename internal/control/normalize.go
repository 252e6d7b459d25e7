package control

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Raw is a loosely-shaped control as decoded from JSON. Drafts of the
// remote service disagree on key names and enum spellings, so nothing
// about it is trusted until Normalize runs.
type Raw map[string]any

var (
	idKeys          = []string{"control_id", "id", "controlId"}
	descriptionKeys = []string{"control_description", "description", "controlDescription", "name"}
	areaKeys        = []string{"control_area", "area", "controlArea"}
	typeKeys        = []string{"control_type", "type", "controlType"}
	riskKeys        = []string{"risk_rating", "risk_level", "riskRating", "riskLevel"}
	designKeys      = []string{"test_of_design", "testOfDesign"}
	effectKeys      = []string{"test_of_effectiveness", "testOfEffectiveness"}
	customKeys      = []string{"custom_testing_steps", "customTestingSteps"}
	createdKeys     = []string{"created_date", "created_at", "createdAt"}
)

// Normalize converts a raw record into a Control. It never fails: missing
// or unknown values are replaced with the package defaults.
func Normalize(raw Raw) Control {
	c := Control{
		ID:            raw.str(idKeys...),
		Description:   raw.str(descriptionKeys...),
		Area:          raw.str(areaKeys...),
		RiskStatement: raw.riskStatement(),
		Framework:     raw.str("framework"),
		Status:        DefaultStatus,
		Risk:          DefaultRisk,
		Type:          DefaultType,
	}

	if st, err := ParseStatus(raw.str("status")); err == nil {
		c.Status = st
	}
	if r, err := ParseRisk(raw.str(riskKeys...)); err == nil {
		c.Risk = r
	} else if r, err := ParseRisk(raw.str("risk")); err == nil {
		// Older drafts put the rating itself under "risk".
		c.Risk = r
	}
	if t, err := ParseType(raw.str(typeKeys...)); err == nil {
		c.Type = t
	}

	c.Progress = clampProgress(raw.number("progress"))
	c.TestOfDesign = toTestPlan(raw.first(designKeys...))
	c.TestOfEffectiveness = toTestPlan(raw.first(effectKeys...))
	c.CustomTestingSteps = toCustomSteps(raw.first(customKeys...))

	if s := raw.str(createdKeys...); s != "" {
		if t, err := parseTime(s); err == nil {
			c.CreatedAt = &t
		}
	}
	return c
}

// NormalizeAll normalizes a batch. Records without an id are given
// CTRL-<position>; later records repeating an id already seen are dropped
// and counted in the second return value.
func NormalizeAll(raws []Raw) ([]Control, int) {
	out := make([]Control, 0, len(raws))
	seen := make(map[string]bool, len(raws))
	dropped := 0
	for i, raw := range raws {
		c := Normalize(raw)
		if c.ID == "" {
			c.ID = fmt.Sprintf("CTRL-%d", i+1)
		}
		if seen[c.ID] {
			dropped++
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out, dropped
}

// ToRaw converts a typed control back into its wire shape.
func ToRaw(c Control) Raw {
	data, err := json.Marshal(c)
	if err != nil {
		return Raw{"control_id": c.ID}
	}
	var r Raw
	if err := json.Unmarshal(data, &r); err != nil {
		return Raw{"control_id": c.ID}
	}
	return r
}

func (r Raw) first(keys ...string) any {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func (r Raw) str(keys ...string) string {
	for _, k := range keys {
		switch v := r[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// riskStatement returns the free-text "risk" field unless it is just a rating.
func (r Raw) riskStatement() string {
	s := r.str("risk")
	if _, err := ParseRisk(s); err == nil {
		return ""
	}
	return s
}

func (r Raw) number(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v), "%"), 64)
		if err == nil {
			return f
		}
	}
	return 0
}

func clampProgress(f float64) int {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= 100 {
		return 100
	}
	return int(math.Round(f))
}

func toStrings(v any) []string {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if list == "" {
			return nil
		}
		return []string{list}
	}
	return nil
}

func toTestPlan(v any) TestPlan {
	m, ok := v.(map[string]any)
	if !ok {
		return TestPlan{}
	}
	return TestPlan{
		Steps:    toStrings(m["steps"]),
		Evidence: toStrings(m["evidence"]),
	}
}

func toCustomSteps(v any) []CustomTestingStep {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	out := make([]CustomTestingStep, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		step := CustomTestingStep{
			Technology: Raw(m).str("technology"),
			Steps:      strings.Join(toStrings(m["steps"]), "\n"),
		}
		artifact, _ := Raw(m).first("automation_artifact", "automationArtifact").(map[string]any)
		if artifact != nil {
			step.AutomationArtifact = AutomationArtifact{
				Description: Raw(artifact).str("description"),
				Snippet:     Raw(artifact).str("snippet"),
			}
		}
		out = append(out, step)
	}
	return out
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
