package backend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/controldesk/controldesk/internal/control"
	"github.com/controldesk/controldesk/internal/remote"
)

var fixedNow = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func TestGenerateControls_GenericOnly(t *testing.T) {
	plan, controls := GenerateControls(remote.PlanRequest{Framework: "SOC 2"}, fixedNow)

	require.Len(t, controls, 2)
	assert.Equal(t, "SOC2-1", controls[0].ID)
	assert.Equal(t, "Security Awareness", controls[0].Area)
	assert.Equal(t, "SOC2-2", controls[1].ID)
	assert.Equal(t, "Incident Response", controls[1].Area)
	assert.Equal(t, "SOC 2", plan.Framework)
	assert.Contains(t, plan.Summary, "2 SOC 2 controls, 1 high risk")
}

func TestGenerateControls_TechStack(t *testing.T) {
	req := remote.PlanRequest{
		Framework: "ISO 27001",
		Industry:  "Fintech",
		TechStack: []string{"AWS", "aws", "PostgreSQL", "Kubernetes", "GitHub", "Palo Alto firewall"},
	}
	plan, controls := GenerateControls(req, fixedNow)

	assert.Equal(t, []string{"AWS", "PostgreSQL", "Kubernetes", "GitHub", "Palo Alto firewall"}, plan.TechStack)
	assert.Contains(t, plan.Summary, "Fintech")

	areas := make([]string, len(controls))
	for i, c := range controls {
		areas[i] = c.Area
		assert.Equal(t, control.StatusNotStarted, c.Status, c.ID)
		assert.Equal(t, 0, c.Progress)
		assert.Equal(t, "ISO 27001", c.Framework)
		require.NotNil(t, c.CreatedAt)
		assert.NotEmpty(t, c.TestOfDesign.Steps)
		assert.NotEmpty(t, c.TestOfEffectiveness.Evidence)
	}
	assert.Equal(t, []string{
		"Network Security", "Cloud Security", "Database Security", "Container Security",
		"Change Management", "Security Awareness", "Incident Response",
	}, areas)
	assert.Equal(t, "ISO27001-7", controls[6].ID)

	cloud := controls[1]
	require.Len(t, cloud.CustomTestingSteps, 1)
	assert.Equal(t, "AWS", cloud.CustomTestingSteps[0].Technology)
	assert.Contains(t, cloud.CustomTestingSteps[0].AutomationArtifact.Snippet, "guardduty")

	assert.Equal(t, "PostgreSQL", controls[2].CustomTestingSteps[0].Technology)
	assert.Equal(t, "Kubernetes", controls[3].CustomTestingSteps[0].Technology)
	assert.Equal(t, "GitHub", controls[4].CustomTestingSteps[0].Technology)
	assert.Empty(t, controls[0].CustomTestingSteps)
}

func TestGenerateControls_DoesNotAliasCatalog(t *testing.T) {
	_, a := GenerateControls(remote.PlanRequest{Framework: "HIPAA"}, fixedNow)
	a[0].TestOfDesign.Steps[0] = "changed"
	_, b := GenerateControls(remote.PlanRequest{Framework: "HIPAA"}, fixedNow)
	assert.NotEqual(t, "changed", b[0].TestOfDesign.Steps[0])
}

func TestIDPrefix(t *testing.T) {
	tests := map[string]string{
		"SOC 2":     "SOC2",
		"iso 27001": "ISO27001",
		"PCI-DSS":   "PCIDSS",
		"":          "CTRL",
		"---":       "CTRL",
	}
	for in, want := range tests {
		assert.Equal(t, want, idPrefix(in), in)
	}
}
