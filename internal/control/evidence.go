package control

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// MaxEvidenceBytes caps the size of one uploaded evidence file.
const MaxEvidenceBytes = 5 << 20

// EvidenceStatus is the review state of an evidence record.
type EvidenceStatus string

const (
	EvidencePending  EvidenceStatus = "pending_review"
	EvidenceApproved EvidenceStatus = "approved"
	EvidenceRejected EvidenceStatus = "rejected"
)

// EvidenceStatuses lists the review states in workflow order.
var EvidenceStatuses = []EvidenceStatus{EvidencePending, EvidenceApproved, EvidenceRejected}

// ParseEvidenceStatus accepts the wire names and the same loose spellings
// as the control enums ("Pending Review", "pending").
func ParseEvidenceStatus(s string) (EvidenceStatus, error) {
	switch canonical(s) {
	case "pendingreview", "pending", "review":
		return EvidencePending, nil
	case "approved", "approve", "accepted":
		return EvidenceApproved, nil
	case "rejected", "reject", "declined":
		return EvidenceRejected, nil
	}
	return "", fmt.Errorf("evidence status %q: %w", s, ErrUnknownValue)
}

// Label is the display form of the status.
func (s EvidenceStatus) Label() string {
	switch s {
	case EvidencePending:
		return "Pending Review"
	case EvidenceApproved:
		return "Approved"
	case EvidenceRejected:
		return "Rejected"
	}
	return string(s)
}

// Class returns the badge class for the status.
func (s EvidenceStatus) Class() string {
	switch s {
	case EvidencePending:
		return "badge-blue"
	case EvidenceApproved:
		return "badge-green"
	case EvidenceRejected:
		return "badge-red"
	}
	return neutralClass
}

// Evidence is a file attached to a control to support its test plans.
// The file body itself stays with the Remote Control Service.
type Evidence struct {
	ID          string         `json:"id"`
	ControlID   string         `json:"control_id"`
	Filename    string         `json:"filename"`
	FileType    string         `json:"file_type,omitempty"`
	Size        int64          `json:"size"`
	SHA256      string         `json:"sha256,omitempty"`
	Description string         `json:"description,omitempty"`
	UploadedBy  string         `json:"uploaded_by,omitempty"`
	Status      EvidenceStatus `json:"status"`
	UploadDate  time.Time      `json:"upload_date"`
	ReviewDate  *time.Time     `json:"review_date,omitempty"`
}

// EvidenceStats summarizes evidence review progress.
type EvidenceStats struct {
	Total        int     `json:"total_evidence"`
	Approved     int     `json:"approved_evidence"`
	Pending      int     `json:"pending_evidence"`
	Rejected     int     `json:"rejected_evidence"`
	ApprovalRate float64 `json:"approval_rate"`
}

// EvidenceStatsFromCounts builds stats from per-status counts. Unknown
// statuses still count toward the total.
func EvidenceStatsFromCounts(counts map[EvidenceStatus]int) EvidenceStats {
	var st EvidenceStats
	for status, n := range counts {
		st.Total += n
		switch status {
		case EvidenceApproved:
			st.Approved += n
		case EvidencePending:
			st.Pending += n
		case EvidenceRejected:
			st.Rejected += n
		}
	}
	if st.Total > 0 {
		st.ApprovalRate = math.Round(float64(st.Approved)/float64(st.Total)*1000) / 10
	}
	return st
}

// SummarizeEvidence counts records by status.
func SummarizeEvidence(records []Evidence) EvidenceStats {
	counts := map[EvidenceStatus]int{}
	for _, e := range records {
		counts[e.Status]++
	}
	return EvidenceStatsFromCounts(counts)
}

// CleanFilename reduces a client-supplied name to its base name.
func CleanFilename(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "." || name == ".." {
		return ""
	}
	return name
}
