package backend

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/controldesk/controldesk/internal/control"
	"github.com/controldesk/controldesk/internal/remote"
)

const maxBodyBytes = 1 << 20

// maxEvidenceBodyBytes leaves room for base64 expansion of the file body.
const maxEvidenceBodyBytes = control.MaxEvidenceBytes/3*4 + maxBodyBytes

// Service serves the Remote Control Service API over a Store.
type Service struct {
	store   Store
	writer  *Writer
	logger  *slog.Logger
	version string
	now     func() time.Time
}

// NewService creates the service.
func NewService(store Store, writer *Writer, version string, logger *slog.Logger) *Service {
	return &Service{store: store, writer: writer, logger: logger, version: version, now: time.Now}
}

// Handler returns the HTTP handler for every contract endpoint.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+remote.PathHealth, s.handleHealth)
	mux.HandleFunc("GET "+remote.PathGetData, s.handleGetData)
	mux.HandleFunc("POST "+remote.PathSaveControl, s.handleSaveControl)
	mux.HandleFunc("POST "+remote.PathGeneratePlan, s.handleGeneratePlan)
	mux.HandleFunc("POST "+remote.PathGeneratePolicy, s.handleGenerateDocument(remote.KindPolicy))
	mux.HandleFunc("POST "+remote.PathGenerateProcedure, s.handleGenerateDocument(remote.KindProcedure))
	mux.HandleFunc("POST "+remote.PathSavePolicy, s.handleSaveDocument)
	mux.HandleFunc("GET /api/documents", s.handleDocuments)
	mux.HandleFunc("POST "+remote.PathUploadEvidence, s.handleUploadEvidence)
	mux.HandleFunc("GET "+remote.PathEvidence, s.handleListEvidence)
	mux.HandleFunc("POST "+remote.PathReviewEvidence, s.handleReviewEvidence)
	mux.HandleFunc("GET "+remote.PathEvidenceStats, s.handleEvidenceStats)
	mux.HandleFunc("GET "+remote.PathEvidence+"/{id}/content", s.handleEvidenceContent)
	return mux
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, remote.HealthResponse{Status: "ok", Version: s.version})
}

func (s *Service) handleGetData(w http.ResponseWriter, r *http.Request) {
	if t := r.URL.Query().Get("type"); t != "" && t != "controls" {
		writeFailure(w, http.StatusBadRequest, "unsupported data type "+t)
		return
	}
	controls, err := s.store.Controls(r.Context())
	if err != nil {
		s.logger.Error("loading controls", "error", err)
		writeFailure(w, http.StatusInternalServerError, "failed to load controls")
		return
	}
	data := make([]control.Raw, 0, len(controls))
	for _, c := range controls {
		data = append(data, control.ToRaw(c))
	}
	writeJSON(w, http.StatusOK, remote.ControlsResponse{Envelope: success(), Data: data})
}

func (s *Service) handleSaveControl(w http.ResponseWriter, r *http.Request) {
	var raw control.Raw
	if !decode(w, r, &raw) {
		return
	}
	c := control.Normalize(raw)
	if c.ID == "" {
		writeFailure(w, http.StatusBadRequest, "control_id is required")
		return
	}
	if err := s.store.SaveControl(r.Context(), c); err != nil {
		s.logger.Error("saving control", "control_id", c.ID, "error", err)
		writeFailure(w, http.StatusInternalServerError, "failed to save control")
		return
	}
	s.logger.Info("control saved", "control_id", c.ID, "status", c.Status, "progress", c.Progress)
	writeJSON(w, http.StatusOK, success())
}

func (s *Service) handleGeneratePlan(w http.ResponseWriter, r *http.Request) {
	var req remote.PlanRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Framework) == "" {
		writeFailure(w, http.StatusBadRequest, "framework is required")
		return
	}
	plan, controls := GenerateControls(req, s.now())
	if err := s.store.ReplaceFramework(r.Context(), plan.Framework, controls); err != nil {
		s.logger.Error("storing generated controls", "framework", plan.Framework, "error", err)
		writeFailure(w, http.StatusInternalServerError, "failed to store generated controls")
		return
	}
	raws := make([]control.Raw, 0, len(controls))
	for _, c := range controls {
		raws = append(raws, control.ToRaw(c))
	}
	s.logger.Info("plan generated", "framework", plan.Framework, "controls", len(controls), "tech_stack", strings.Join(plan.TechStack, ","))
	writeJSON(w, http.StatusOK, remote.PlanResponse{Envelope: success(), Plan: plan, Controls: raws})
}

func (s *Service) handleGenerateDocument(kind remote.DocumentKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req remote.DocumentRequest
		if !decode(w, r, &req) {
			return
		}
		content := s.writer.Write(r.Context(), kind, req.ControlArea, req.TechStack)
		writeJSON(w, http.StatusOK, remote.DocumentResponse{Envelope: success(), Content: content})
	}
}

func (s *Service) handleSaveDocument(w http.ResponseWriter, r *http.Request) {
	var req remote.SaveDocumentRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ControlID == "" || strings.TrimSpace(req.Content) == "" {
		writeFailure(w, http.StatusBadRequest, "control_id and content are required")
		return
	}
	kind, ok := remote.ParseDocumentKind(string(req.Type))
	if !ok {
		kind = remote.KindPolicy
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = kind.Title()
	}
	id, err := s.store.SaveDocument(r.Context(), Document{
		ControlID: req.ControlID,
		Type:      kind,
		Title:     title,
		Content:   req.Content,
		CreatedAt: s.now(),
	})
	if errors.Is(err, ErrNotFound) {
		writeFailure(w, http.StatusNotFound, "control "+req.ControlID+" not found")
		return
	}
	if err != nil {
		s.logger.Error("saving document", "control_id", req.ControlID, "error", err)
		writeFailure(w, http.StatusInternalServerError, "failed to save document")
		return
	}
	s.logger.Info("document saved", "control_id", req.ControlID, "type", kind, "id", id)
	writeJSON(w, http.StatusOK, success())
}

type documentsResponse struct {
	remote.Envelope
	Documents []Document `json:"documents"`
}

func (s *Service) handleDocuments(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("control_id")
	if id == "" {
		writeFailure(w, http.StatusBadRequest, "control_id is required")
		return
	}
	docs, err := s.store.Documents(r.Context(), id)
	if err != nil {
		s.logger.Error("listing documents", "control_id", id, "error", err)
		writeFailure(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	if docs == nil {
		docs = []Document{}
	}
	writeJSON(w, http.StatusOK, documentsResponse{Envelope: success(), Documents: docs})
}

func (s *Service) handleUploadEvidence(w http.ResponseWriter, r *http.Request) {
	var req remote.UploadEvidenceRequest
	if !decodeLimit(w, r, &req, maxEvidenceBodyBytes) {
		return
	}
	name := control.CleanFilename(req.Filename)
	switch {
	case req.ControlID == "" || name == "":
		writeFailure(w, http.StatusBadRequest, "control_id and filename are required")
		return
	case len(req.Content) == 0:
		writeFailure(w, http.StatusBadRequest, "evidence file is empty")
		return
	case len(req.Content) > control.MaxEvidenceBytes:
		writeFailure(w, http.StatusRequestEntityTooLarge, "evidence file exceeds "+strconv.Itoa(control.MaxEvidenceBytes>>20)+" MiB")
		return
	}

	sum := sha256.Sum256(req.Content)
	fileType := strings.TrimSpace(req.FileType)
	if fileType == "" {
		fileType = http.DetectContentType(req.Content)
	}
	e := control.Evidence{
		ID:          "EV-" + uuid.NewString(),
		ControlID:   req.ControlID,
		Filename:    name,
		FileType:    fileType,
		Size:        int64(len(req.Content)),
		SHA256:      hex.EncodeToString(sum[:]),
		Description: strings.TrimSpace(req.Description),
		UploadedBy:  strings.TrimSpace(req.UploadedBy),
		Status:      control.EvidencePending,
		UploadDate:  s.now().UTC(),
	}
	err := s.store.AddEvidence(r.Context(), e, req.Content)
	if errors.Is(err, ErrNotFound) {
		writeFailure(w, http.StatusNotFound, "control "+req.ControlID+" not found")
		return
	}
	if err != nil {
		s.logger.Error("saving evidence", "control_id", req.ControlID, "error", err)
		writeFailure(w, http.StatusInternalServerError, "failed to save evidence")
		return
	}
	s.logger.Info("evidence uploaded", "control_id", e.ControlID, "evidence_id", e.ID, "size", e.Size)
	writeJSON(w, http.StatusOK, remote.EvidenceResponse{Envelope: success(), Evidence: e})
}

func (s *Service) handleListEvidence(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("control_id")
	if id == "" {
		writeFailure(w, http.StatusBadRequest, "control_id is required")
		return
	}
	records, err := s.store.Evidence(r.Context(), id)
	if err != nil {
		s.logger.Error("listing evidence", "control_id", id, "error", err)
		writeFailure(w, http.StatusInternalServerError, "failed to list evidence")
		return
	}
	if records == nil {
		records = []control.Evidence{}
	}
	writeJSON(w, http.StatusOK, remote.EvidenceListResponse{Envelope: success(), Evidence: records})
}

func (s *Service) handleReviewEvidence(w http.ResponseWriter, r *http.Request) {
	var req remote.ReviewEvidenceRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ControlID == "" || req.EvidenceID == "" {
		writeFailure(w, http.StatusBadRequest, "control_id and evidence_id are required")
		return
	}
	status, err := control.ParseEvidenceStatus(string(req.Status))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	e, err := s.store.ReviewEvidence(r.Context(), req.ControlID, req.EvidenceID, status, s.now())
	if errors.Is(err, ErrNotFound) {
		writeFailure(w, http.StatusNotFound, "evidence "+req.EvidenceID+" not found for control "+req.ControlID)
		return
	}
	if err != nil {
		s.logger.Error("reviewing evidence", "evidence_id", req.EvidenceID, "error", err)
		writeFailure(w, http.StatusInternalServerError, "failed to update evidence")
		return
	}
	s.logger.Info("evidence reviewed", "control_id", req.ControlID, "evidence_id", req.EvidenceID, "status", status)
	writeJSON(w, http.StatusOK, remote.EvidenceResponse{Envelope: success(), Evidence: e})
}

func (s *Service) handleEvidenceStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.EvidenceCounts(r.Context())
	if err != nil {
		s.logger.Error("counting evidence", "error", err)
		writeFailure(w, http.StatusInternalServerError, "failed to count evidence")
		return
	}
	writeJSON(w, http.StatusOK, remote.EvidenceStatsResponse{Envelope: success(), Stats: control.EvidenceStatsFromCounts(counts)})
}

func (s *Service) handleEvidenceContent(w http.ResponseWriter, r *http.Request) {
	e, content, err := s.store.EvidenceContent(r.Context(), r.PathValue("id"))
	if errors.Is(err, ErrNotFound) {
		writeFailure(w, http.StatusNotFound, "evidence not found")
		return
	}
	if err != nil {
		s.logger.Error("loading evidence", "evidence_id", r.PathValue("id"), "error", err)
		writeFailure(w, http.StatusInternalServerError, "failed to load evidence")
		return
	}
	w.Header().Set("Content-Type", e.FileType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": e.Filename}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write(content)
}

func success() remote.Envelope { return remote.Envelope{Success: true} }

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeLimit(w, r, v, maxBodyBytes)
}

func decodeLimit(w http.ResponseWriter, r *http.Request, v any, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, remote.Envelope{Success: false, Error: msg})
}
