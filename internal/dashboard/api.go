package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/controldesk/controldesk/internal/audit"
	"github.com/controldesk/controldesk/internal/board"
	"github.com/controldesk/controldesk/internal/control"
	"github.com/controldesk/controldesk/internal/remote"
)

const (
	maxBodyBytes        = 1 << 20
	maxUploadBytes      = control.MaxEvidenceBytes + maxBodyBytes
	uploadMemoryBytes   = 8 << 20
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

type controlsResponse struct {
	Filter  control.FilterState `json:"filter"`
	Total   int                 `json:"total"`
	Visible int                 `json:"visible"`
	Rows    []control.Row       `json:"rows"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// resultStatus maps a board result to an HTTP status code.
func resultStatus(res board.Result) int {
	if res.OK {
		return http.StatusOK
	}
	switch res.Kind {
	case board.KindNotFound:
		return http.StatusNotFound
	case board.KindInvalid:
		return http.StatusBadRequest
	case board.KindRejected:
		return http.StatusUnprocessableEntity
	case board.KindNetworkFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeResult(w http.ResponseWriter, res board.Result) {
	writeJSON(w, resultStatus(res), res)
}

func (s *Server) handleAPIControls(w http.ResponseWriter, r *http.Request) {
	rows := s.board.Rows()
	writeJSON(w, http.StatusOK, controlsResponse{
		Filter:  s.board.FilterState(),
		Total:   s.board.SummaryCounts().Total,
		Visible: len(rows),
		Rows:    rows,
	})
}

func (s *Server) handleAPIControl(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, ok := s.board.Control(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("control %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleAPIAdvance(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.board.AdvanceStatus(r.Context(), r.PathValue("id")))
}

func (s *Server) handleAPIGenerateDocument(w http.ResponseWriter, r *http.Request) {
	kind, ok := remote.ParseDocumentKind(r.PathValue("kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, "document kind must be policy or procedure")
		return
	}
	writeResult(w, s.board.GenerateDocument(r.Context(), r.PathValue("id"), kind))
}

type saveDocumentRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleAPISaveDocument(w http.ResponseWriter, r *http.Request) {
	kind, ok := remote.ParseDocumentKind(r.PathValue("kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, "document kind must be policy or procedure")
		return
	}
	var req saveDocumentRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeResult(w, s.board.SaveDocument(r.Context(), r.PathValue("id"), kind, req.Content))
}

type progressRequest struct {
	Progress *int `json:"progress"`
}

func (s *Server) handleAPISetProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Progress == nil {
		writeError(w, http.StatusBadRequest, "progress is required")
		return
	}
	writeResult(w, s.board.SetProgress(r.Context(), r.PathValue("id"), *req.Progress))
}

// readUpload reads the multipart "file" part plus its description and
// uploaded_by fields.
func readUpload(w http.ResponseWriter, r *http.Request) (board.EvidenceUpload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(uploadMemoryBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return board.EvidenceUpload{}, errUploadTooLarge
		}
		return board.EvidenceUpload{}, fmt.Errorf("invalid upload: %w", err)
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return board.EvidenceUpload{}, errors.New("a file is required")
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, control.MaxEvidenceBytes+1))
	if err != nil {
		return board.EvidenceUpload{}, fmt.Errorf("reading upload: %w", err)
	}
	return board.EvidenceUpload{
		Filename:    hdr.Filename,
		FileType:    hdr.Header.Get("Content-Type"),
		Description: r.FormValue("description"),
		UploadedBy:  r.FormValue("uploaded_by"),
		Content:     content,
	}, nil
}

var errUploadTooLarge = fmt.Errorf("upload exceeds %d MB", control.MaxEvidenceBytes>>20)

func (s *Server) handleAPIEvidence(w http.ResponseWriter, r *http.Request) {
	list, res := s.board.Evidence(r.Context(), r.PathValue("id"))
	if !res.OK {
		writeResult(w, res)
		return
	}
	if list == nil {
		list = []control.Evidence{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAPIAddEvidence(w http.ResponseWriter, r *http.Request) {
	up, err := readUpload(w, r)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errUploadTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, err.Error())
		return
	}
	res := s.board.AddEvidence(r.Context(), r.PathValue("id"), up)
	if res.OK {
		writeJSON(w, http.StatusCreated, res)
		return
	}
	writeResult(w, res)
}

type reviewEvidenceRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleAPIReviewEvidence(w http.ResponseWriter, r *http.Request) {
	var req reviewEvidenceRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeResult(w, s.board.ReviewEvidence(r.Context(), r.PathValue("id"), r.PathValue("eid"), req.Status))
}

func (s *Server) handleAPIEvidenceStats(w http.ResponseWriter, r *http.Request) {
	st, res := s.board.EvidenceStats(r.Context())
	if !res.OK {
		writeResult(w, res)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleAPISummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.board.SummaryCounts())
}

func (s *Server) handleAPIAnalytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.board.Analytics())
}

func (s *Server) handleAPIGaps(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", control.DefaultGapLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	gaps := s.board.Gaps(limit)
	if gaps == nil {
		gaps = []control.Gap{}
	}
	writeJSON(w, http.StatusOK, gaps)
}

func (s *Server) handleAPIFilter(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.board.FilterState())
}

// filterPatchRequest is the wire form of a filter patch. Values use any
// spelling ParseStatus/ParseRisk/ParseType accept; an empty string clears
// the constraint and an absent field leaves it alone.
type filterPatchRequest struct {
	Status *string `json:"status"`
	Risk   *string `json:"risk"`
	Type      *string `json:"type"`
	Search    *string `json:"search"`
	Framework *string `json:"framework"`
}

func (p filterPatchRequest) parse() (control.FilterPatch, error) {
	var out control.FilterPatch
	if p.Status != nil {
		st := control.Status("")
		if *p.Status != "" {
			v, err := control.ParseStatus(*p.Status)
			if err != nil {
				return out, err
			}
			st = v
		}
		out.Status = &st
	}
	if p.Risk != nil {
		rk := control.Risk("")
		if *p.Risk != "" {
			v, err := control.ParseRisk(*p.Risk)
			if err != nil {
				return out, err
			}
			rk = v
		}
		out.Risk = &rk
	}
	if p.Type != nil {
		t := control.Type("")
		if *p.Type != "" {
			v, err := control.ParseType(*p.Type)
			if err != nil {
				return out, err
			}
			t = v
		}
		out.Type = &t
	}
	out.Search = p.Search
	out.Framework = p.Framework
	return out, nil
}

func (s *Server) handleAPIPatchFilter(w http.ResponseWriter, r *http.Request) {
	var req filterPatchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	patch, err := req.parse()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.board.SetFilterState(patch))
}

func (s *Server) handleAPIClearFilter(w http.ResponseWriter, r *http.Request) {
	s.board.ClearFilter()
	writeJSON(w, http.StatusOK, s.board.FilterState())
}

func (s *Server) handleAPIPresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.board.Presets())
}

type savePresetRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleAPISavePreset(w http.ResponseWriter, r *http.Request) {
	var req savePresetRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.board.SavePreset(req.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.persistPresets()
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleAPIApplyPreset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	f, ok := s.board.ApplyPreset(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("preset %q not found", name))
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleAPIDeletePreset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.board.DeletePreset(name) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("preset %q not found", name))
		return
	}
	s.persistPresets()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAPIPlan(w http.ResponseWriter, r *http.Request) {
	p, ok := s.board.Plan()
	if !ok {
		writeError(w, http.StatusNotFound, "no plan generated yet")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAPIGeneratePlan(w http.ResponseWriter, r *http.Request) {
	var req remote.PlanRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeResult(w, s.board.GeneratePlan(r.Context(), req))
}

func (s *Server) handleAPIReload(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.board.Reload(r.Context()))
}

func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}
	opts, err := historyOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.journal.Query(opts)
	if err != nil {
		s.logger.Error("query journal", "error", err)
		writeError(w, http.StatusInternalServerError, "journal query failed")
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func historyOpts(r *http.Request) (audit.QueryOpts, error) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil {
		return audit.QueryOpts{}, err
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return audit.QueryOpts{
		Type:      q.Get("type"),
		ControlID: q.Get("control"),
		Since:     q.Get("since"),
		Search:    q.Get("q"),
		Limit:     limit,
	}, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}
