// Package remote implements the JSON contract of the Remote Control Service
// and a client for it. The same types are served by internal/backend.
package remote

import (
	"strings"

	"github.com/controldesk/controldesk/internal/control"
)

// API paths.
const (
	PathGetData           = "/api/get-data"
	PathSaveControl       = "/api/save-control"
	PathGeneratePlan      = "/api/generate-plan"
	PathGeneratePolicy    = "/api/generate-policy"
	PathGenerateProcedure = "/api/generate-procedure"
	PathSavePolicy        = "/api/save-policy"
	PathUploadEvidence    = "/api/upload-evidence"
	PathEvidence          = "/api/evidence"
	PathReviewEvidence    = "/api/evidence/review"
	PathEvidenceStats     = "/api/evidence/stats"
	PathHealth            = "/health"
)

// Envelope is the common response wrapper. Success false carries Error.
type Envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ControlsResponse is returned by GET /api/get-data?type=controls.
type ControlsResponse struct {
	Envelope
	Data []control.Raw `json:"data"`
}

// PlanRequest asks the service for a control set.
type PlanRequest struct {
	Framework string   `json:"framework"`
	Industry  string   `json:"industry"`
	TechStack []string `json:"tech_stack"`
}

// Plan describes the framework a control set was generated for.
type Plan struct {
	Framework string   `json:"framework"`
	Industry  string   `json:"industry"`
	TechStack []string `json:"tech_stack"`
	Summary   string   `json:"summary,omitempty"`
}

// PlanResponse is returned by POST /api/generate-plan.
type PlanResponse struct {
	Envelope
	Plan     Plan          `json:"plan"`
	Controls []control.Raw `json:"controls"`
}

// DocumentKind selects the generated document.
type DocumentKind string

const (
	KindPolicy    DocumentKind = "policy"
	KindProcedure DocumentKind = "procedure"
)

// ParseDocumentKind accepts "policy" or "procedure" in any case.
func ParseDocumentKind(s string) (DocumentKind, bool) {
	switch DocumentKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindPolicy:
		return KindPolicy, true
	case KindProcedure:
		return KindProcedure, true
	}
	return "", false
}

// Title is the human name of the kind: "Policy" or "Procedure".
func (k DocumentKind) Title() string {
	if k == KindProcedure {
		return "Procedure"
	}
	return "Policy"
}

func (k DocumentKind) path() string {
	if k == KindProcedure {
		return PathGenerateProcedure
	}
	return PathGeneratePolicy
}

// DocumentRequest is the body of the generate-policy/procedure calls.
type DocumentRequest struct {
	ControlArea string   `json:"control_area"`
	TechStack   []string `json:"tech_stack"`
}

// DocumentResponse carries generated markdown.
type DocumentResponse struct {
	Envelope
	Content string `json:"content"`
}

// SaveDocumentRequest is the body of POST /api/save-policy.
type SaveDocumentRequest struct {
	Title     string       `json:"title"`
	Content   string       `json:"content"`
	Type      DocumentKind `json:"type"`
	ControlID string       `json:"control_id"`
}

// UploadEvidenceRequest is the body of POST /api/upload-evidence. Content
// is base64 on the wire.
type UploadEvidenceRequest struct {
	ControlID   string `json:"control_id"`
	Filename    string `json:"filename"`
	FileType    string `json:"file_type,omitempty"`
	Description string `json:"description,omitempty"`
	UploadedBy  string `json:"uploaded_by,omitempty"`
	Content     []byte `json:"content"`
}

// EvidenceResponse carries one evidence record.
type EvidenceResponse struct {
	Envelope
	Evidence control.Evidence `json:"evidence"`
}

// EvidenceListResponse is returned by GET /api/evidence?control_id=.
type EvidenceListResponse struct {
	Envelope
	Evidence []control.Evidence `json:"evidence"`
}

// ReviewEvidenceRequest is the body of POST /api/evidence/review.
type ReviewEvidenceRequest struct {
	ControlID  string                 `json:"control_id"`
	EvidenceID string                 `json:"evidence_id"`
	Status     control.EvidenceStatus `json:"status"`
}

// EvidenceStatsResponse is returned by GET /api/evidence/stats.
type EvidenceStatsResponse struct {
	Envelope
	Stats control.EvidenceStats `json:"stats"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// DedupeStack trims entries, drops blanks and removes case-insensitive
// duplicates, keeping first occurrence order.
func DedupeStack(stack []string) []string {
	if len(stack) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(stack))
	out := make([]string, 0, len(stack))
	for _, s := range stack {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
