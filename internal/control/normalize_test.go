package control

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeRaw(t *testing.T, s string) Raw {
	t.Helper()
	var r Raw
	require.NoError(t, json.Unmarshal([]byte(s), &r))
	return r
}

func TestNormalize_FullRecord(t *testing.T) {
	raw := decodeRaw(t, `{
		"control_id": "SOC2-1",
		"control_description": "Firewall rules are reviewed",
		"control_area": "Network Security",
		"control_type": "Automatic",
		"risk_rating": "High",
		"risk": "Unauthorized inbound traffic",
		"status": "In Progress",
		"progress": 40,
		"framework": "SOC 2",
		"test_of_design": {"steps": ["Inspect policy"], "evidence": ["Policy PDF"]},
		"test_of_effectiveness": {"steps": ["Sample changes"], "evidence": ["Tickets"]},
		"custom_testing_steps": [{
			"technology": "AWS",
			"steps": "List security groups",
			"automation_artifact": {"description": "CLI", "snippet": "aws ec2 describe-security-groups"}
		}],
		"created_date": "2025-03-14T10:00:00Z"
	}`)

	c := Normalize(raw)
	assert.Equal(t, "SOC2-1", c.ID)
	assert.Equal(t, "Network Security", c.Area)
	assert.Equal(t, TypeAutomatic, c.Type)
	assert.Equal(t, RiskHigh, c.Risk)
	assert.Equal(t, "Unauthorized inbound traffic", c.RiskStatement)
	assert.Equal(t, StatusInProgress, c.Status)
	assert.Equal(t, 40, c.Progress)
	assert.Equal(t, []string{"Inspect policy"}, c.TestOfDesign.Steps)
	assert.Equal(t, []string{"Tickets"}, c.TestOfEffectiveness.Evidence)
	require.Len(t, c.CustomTestingSteps, 1)
	assert.Equal(t, "aws ec2 describe-security-groups", c.CustomTestingSteps[0].AutomationArtifact.Snippet)
	require.NotNil(t, c.CreatedAt)
	assert.Equal(t, "2025-03", c.CreatedAt.Format("2006-01"))
}

func TestNormalize_MissingFieldsGetDefaults(t *testing.T) {
	c := Normalize(Raw{"control_id": "X-1"})
	assert.Equal(t, StatusNotStarted, c.Status)
	assert.Equal(t, 0, c.Progress)
	assert.Equal(t, DefaultRisk, c.Risk)
	assert.Equal(t, DefaultType, c.Type)
	assert.Nil(t, c.CustomTestingSteps)
	assert.Nil(t, c.CreatedAt)
}

func TestNormalize_UnknownEnumsDegrade(t *testing.T) {
	c := Normalize(Raw{
		"control_id":   "X-2",
		"status":       "archived",
		"risk_rating":  "extreme",
		"control_type": "robotic",
		"progress":     "n/a",
	})
	assert.Equal(t, DefaultStatus, c.Status)
	assert.Equal(t, DefaultRisk, c.Risk)
	assert.Equal(t, DefaultType, c.Type)
	assert.Equal(t, 0, c.Progress)
}

func TestNormalize_Spellings(t *testing.T) {
	tests := []struct {
		status string
		want   Status
	}{
		{"not_started", StatusNotStarted},
		{"NotStarted", StatusNotStarted},
		{"in_progress", StatusInProgress},
		{"pending review", StatusPendingReview},
		{"PENDING-REVIEW", StatusPendingReview},
		{"completed", StatusApproved},
		{"Implemented", StatusApproved},
	}
	for _, tt := range tests {
		c := Normalize(Raw{"status": tt.status})
		if c.Status != tt.want {
			t.Errorf("status %q => %q, want %q", tt.status, c.Status, tt.want)
		}
	}
}

func TestNormalize_FieldAliases(t *testing.T) {
	raw := decodeRaw(t, `{"id":"C9","description":"Backups","area":"Resilience","type":"manual","risk_level":"low","progress":"75%"}`)
	c := Normalize(raw)
	assert.Equal(t, "C9", c.ID)
	assert.Equal(t, "Backups", c.Description)
	assert.Equal(t, "Resilience", c.Area)
	assert.Equal(t, TypeManual, c.Type)
	assert.Equal(t, RiskLow, c.Risk)
	assert.Equal(t, 75, c.Progress)
}

func TestNormalize_LegacyRiskField(t *testing.T) {
	c := Normalize(Raw{"control_id": "L1", "risk": "High"})
	assert.Equal(t, RiskHigh, c.Risk)
	assert.Empty(t, c.RiskStatement)
}

func TestNormalize_ProgressClamped(t *testing.T) {
	assert.Equal(t, 100, Normalize(Raw{"progress": 250.0}).Progress)
	assert.Equal(t, 0, Normalize(Raw{"progress": -5.0}).Progress)
	assert.Equal(t, 33, Normalize(Raw{"progress": 33.4}).Progress)
}

func TestNormalizeAll_DedupAndMissingIDs(t *testing.T) {
	raws := []Raw{
		{"control_id": "A", "control_area": "first"},
		{"control_area": "no id"},
		{"control_id": "A", "control_area": "duplicate"},
	}
	controls, dropped := NormalizeAll(raws)
	require.Len(t, controls, 2)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, "first", controls[0].Area)
	assert.Equal(t, "CTRL-2", controls[1].ID)
}

func TestToRaw_RoundTripsThroughNormalize(t *testing.T) {
	orig := Control{
		ID:       "R-1",
		Area:     "Access",
		Type:     TypeHybrid,
		Risk:     RiskLow,
		Status:   StatusPendingReview,
		Progress: 50,
		TestOfDesign: TestPlan{
			Steps:    []string{"a", "b"},
			Evidence: []string{"c"},
		},
	}
	got := Normalize(ToRaw(orig))
	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, orig.Status, got.Status)
	assert.Equal(t, orig.Type, got.Type)
	assert.Equal(t, orig.TestOfDesign, got.TestOfDesign)
}

func TestClone_DoesNotAlias(t *testing.T) {
	orig := Control{ID: "C", TestOfDesign: TestPlan{Steps: []string{"one"}}}
	cp := orig.Clone()
	cp.TestOfDesign.Steps[0] = "changed"
	assert.Equal(t, "one", orig.TestOfDesign.Steps[0])
}

func TestBadgeClasses_UnknownIsNeutral(t *testing.T) {
	assert.Equal(t, "badge-red", RiskHigh.Class())
	assert.Equal(t, neutralClass, Risk("Severe").Class())
	assert.Equal(t, neutralClass, Status("Archived").Class())
	assert.Equal(t, neutralClass, Type("").Class())
}
