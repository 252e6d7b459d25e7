package control

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEvidenceStatus(t *testing.T) {
	tests := map[string]EvidenceStatus{
		"pending_review": EvidencePending,
		"Pending Review": EvidencePending,
		"pending":        EvidencePending,
		"APPROVED":       EvidenceApproved,
		"rejected":       EvidenceRejected,
	}
	for in, want := range tests {
		got, err := ParseEvidenceStatus(in)
		if err != nil || got != want {
			t.Errorf("ParseEvidenceStatus(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseEvidenceStatus("lost"); !errors.Is(err, ErrUnknownValue) {
		t.Errorf("err = %v, want ErrUnknownValue", err)
	}
}

func TestSummarizeEvidence(t *testing.T) {
	st := SummarizeEvidence([]Evidence{
		{Status: EvidenceApproved},
		{Status: EvidenceApproved},
		{Status: EvidencePending},
		{Status: EvidenceRejected},
		{Status: EvidenceApproved},
		{Status: EvidencePending},
	})
	assert.Equal(t, EvidenceStats{Total: 6, Approved: 3, Pending: 2, Rejected: 1, ApprovalRate: 50}, st)

	st = SummarizeEvidence([]Evidence{{Status: EvidenceApproved}, {Status: EvidencePending}, {Status: EvidencePending}})
	assert.Equal(t, 33.3, st.ApprovalRate)
}

func TestSummarizeEvidence_Empty(t *testing.T) {
	assert.Equal(t, EvidenceStats{}, SummarizeEvidence(nil))
}

func TestEvidenceStatsFromCounts_UnknownCountsTowardTotal(t *testing.T) {
	st := EvidenceStatsFromCounts(map[EvidenceStatus]int{EvidenceApproved: 1, "archived": 1})
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 50.0, st.ApprovalRate)
}

func TestCleanFilename(t *testing.T) {
	assert.Equal(t, "report.pdf", CleanFilename("../../etc/report.pdf"))
	assert.Equal(t, "scan.png", CleanFilename(`C:\Users\me\scan.png`))
	assert.Equal(t, "", CleanFilename(".."))
	assert.Equal(t, "", CleanFilename("  "))
}

func TestEvidenceStatus_Display(t *testing.T) {
	assert.Equal(t, "Pending Review", EvidencePending.Label())
	assert.Equal(t, "badge-green", EvidenceApproved.Class())
	assert.Equal(t, neutralClass, EvidenceStatus("other").Class())
}
