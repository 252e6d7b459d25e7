package control

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize_Example(t *testing.T) {
	controls := []Control{
		{ID: "1", Risk: RiskHigh, Status: StatusNotStarted},
		{ID: "2", Risk: RiskMedium, Status: StatusApproved},
		{ID: "3", Risk: RiskHigh, Status: StatusInProgress},
	}
	got := Summarize(controls)
	assert.Equal(t, Summary{Total: 3, HighRisk: 2, Completed: 1, InProgress: 1, NotStarted: 1}, got)
}

func TestSummarize_BucketsPartitionTotal(t *testing.T) {
	var controls []Control
	for i, st := range []Status{StatusNotStarted, StatusInProgress, StatusPendingReview, StatusApproved, StatusPendingReview} {
		controls = append(controls, Control{ID: string(rune('a' + i)), Status: st, Risk: Risks[i%len(Risks)]})
	}
	s := Summarize(controls)
	assert.Equal(t, s.Total, s.Completed+s.InProgress+s.NotStarted)
	assert.Equal(t, 3, s.InProgress, "pending review counts as in progress")
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestAdvance_NeverSkips(t *testing.T) {
	c := Control{ID: "W1", Status: StatusNotStarted}
	require.NoError(t, Advance(&c))
	require.NoError(t, Advance(&c))
	assert.Equal(t, StatusPendingReview, c.Status)
	assert.Equal(t, 50, c.Progress)

	require.NoError(t, Advance(&c))
	assert.Equal(t, StatusApproved, c.Status)
	assert.Equal(t, 100, c.Progress)

	err := Advance(&c)
	assert.True(t, errors.Is(err, ErrTerminal))
	assert.Equal(t, StatusApproved, c.Status)
}

func TestAdvance_KeepsHigherProgress(t *testing.T) {
	c := Control{ID: "W2", Status: StatusNotStarted, Progress: 80}
	require.NoError(t, Advance(&c))
	assert.Equal(t, 80, c.Progress)
}

func TestSetProgress_ForwardOnly(t *testing.T) {
	c := Control{ID: "P1", Status: StatusInProgress, Progress: 50}
	require.NoError(t, SetProgress(&c, 70))
	assert.Equal(t, 70, c.Progress)
	assert.Equal(t, StatusInProgress, c.Status)

	require.NoError(t, SetProgress(&c, 70), "same value is a no-op")

	for _, pct := range []int{60, -1, 101, 100} {
		err := SetProgress(&c, pct)
		assert.ErrorIs(t, err, ErrProgress, "pct %d", pct)
	}
	assert.Equal(t, 70, c.Progress)
	assert.Equal(t, StatusInProgress, c.Status)

	done := Control{ID: "P2", Status: StatusApproved, Progress: 90}
	require.NoError(t, SetProgress(&done, 100))
	assert.Equal(t, StatusApproved, done.Status)
}

func TestStatusActions(t *testing.T) {
	assert.Equal(t, "Start Working", StatusNotStarted.Action())
	assert.Equal(t, "Submit for Review", StatusInProgress.Action())
	assert.Equal(t, "Approve", StatusPendingReview.Action())
	assert.Empty(t, StatusApproved.Action())

	_, ok := Status("bogus").Next()
	assert.False(t, ok)
}

func TestProject(t *testing.T) {
	rows := Project(sampleControls())
	require.Len(t, rows, 4)
	assert.Equal(t, "C1", rows[0].ID)
	assert.Equal(t, "badge-red", rows[0].RiskClass)
	assert.Equal(t, "Start Working", rows[0].Action)
	assert.Empty(t, rows[1].Action)
	assert.Equal(t, "badge-purple", rows[2].TypeClass)
}

func TestAnalyze(t *testing.T) {
	jan := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	controls := []Control{
		{ID: "1", Area: "Access", Framework: "SOC 2", Risk: RiskHigh, Status: StatusApproved, CreatedAt: &jan},
		{ID: "2", Area: "Access", Framework: "SOC 2", Risk: RiskMedium, Status: StatusInProgress, CreatedAt: &jan},
		{ID: "3", Area: "Network", Framework: "HIPAA", Risk: RiskLow, Status: StatusNotStarted, CreatedAt: &feb},
	}
	a := Analyze(controls)
	assert.Equal(t, 33.3, a.ComplianceScore)
	assert.Equal(t, 3, a.Total)
	assert.Equal(t, 1, a.RiskCounts[RiskHigh])
	assert.Equal(t, 33.3, a.RiskPercentages[RiskLow])

	require.Len(t, a.ByArea, 2)
	assert.Equal(t, GroupScore{Name: "Access", Total: 2, Approved: 1, Score: 50}, a.ByArea[0])
	require.Len(t, a.ByFramework, 2)

	require.Len(t, a.Timeline, 2)
	assert.Equal(t, TimelineBucket{Month: "2025-01", Total: 2, Approved: 1}, a.Timeline[0])
	assert.Equal(t, "2025-02", a.Timeline[1].Month)
}

func TestAnalyze_Empty(t *testing.T) {
	a := Analyze(nil)
	assert.Zero(t, a.ComplianceScore)
	assert.Zero(t, a.RiskPercentages[RiskHigh])
	assert.Nil(t, a.ByArea)
}

func TestGaps(t *testing.T) {
	gaps := Gaps(sampleControls(), 0)
	require.Len(t, gaps, 3)
	assert.Equal(t, "C1", gaps[0].ID)
	assert.Equal(t, "C3", gaps[1].ID)

	gaps = Gaps(sampleControls(), 1)
	assert.Len(t, gaps, 1)
}
