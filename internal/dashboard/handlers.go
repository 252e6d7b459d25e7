package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/controldesk/controldesk/internal/audit"
	"github.com/controldesk/controldesk/internal/board"
	"github.com/controldesk/controldesk/internal/control"
	"github.com/controldesk/controldesk/internal/remote"
)

const recentLimit = 8

// toast is the notification rendered at the top of a page.
type toast struct {
	Message string
	OK      bool
}

func toastFromQuery(r *http.Request) *toast {
	msg := r.URL.Query().Get("toast")
	if msg == "" {
		return nil
	}
	return &toast{Message: msg, OK: r.URL.Query().Get("ok") == "1"}
}

func toastFromResult(res board.Result) *toast {
	return &toast{Message: res.Message, OK: res.OK}
}

// redirectWithToast sends the browser back to path with a notification.
func redirectWithToast(w http.ResponseWriter, r *http.Request, path, msg string, ok bool) {
	q := url.Values{"toast": {msg}}
	if ok {
		q.Set("ok", "1")
	}
	http.Redirect(w, r, path+"?"+q.Encode(), http.StatusSeeOther)
}

func renderHTML(w http.ResponseWriter, status int, exec func(w http.ResponseWriter) error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = exec(w)
}

// --- Pages ---

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	plan, hasPlan := s.board.Plan()
	data := map[string]any{
		"Active":     "overview",
		"Summary":    s.board.SummaryCounts(),
		"Filter":     s.board.FilterState(),
		"Rows":       s.board.Rows(),
		"Presets":    s.board.Presets(),
		"Plan":       plan,
		"HasPlan":    hasPlan,
		"Statuses":   control.Statuses,
		"Risks":      control.Risks,
		"Types":      control.Types,
		"Frameworks": s.board.Frameworks(),
		"Toast":      toastFromQuery(r),
		"Journal":    s.journal != nil,
		"Recent":     s.recentEntries(audit.QueryOpts{Limit: recentLimit}),
	}
	renderHTML(w, http.StatusOK, func(w http.ResponseWriter) error { return overviewTmpl.Execute(w, data) })
}

func (s *Server) handleControlDetail(w http.ResponseWriter, r *http.Request) {
	s.renderControl(w, r, r.PathValue("id"), toastFromQuery(r), "", "")
}

// renderControl renders the detail page. doc and kind carry a generated or
// rejected document back into the editor.
func (s *Server) renderControl(w http.ResponseWriter, r *http.Request, id string, t *toast, kind remote.DocumentKind, doc string) {
	c, ok := s.board.Control(id)
	if !ok {
		renderHTML(w, http.StatusNotFound, func(w http.ResponseWriter) error {
			return notFoundTmpl.Execute(w, map[string]any{"Active": "overview", "ID": id})
		})
		return
	}
	evidence, res := s.board.Evidence(r.Context(), id)
	evidenceErr := ""
	if !res.OK {
		evidenceErr = res.Message
	}
	data := map[string]any{
		"Active":        "overview",
		"Control":       c,
		"Action":        c.Status.Action(),
		"Toast":         t,
		"DocKind":       string(kind),
		"DocTitle":      kind.Title(),
		"Document":      doc,
		"Evidence":      evidence,
		"EvidenceError": evidenceErr,
		"Journal":       s.journal != nil,
		"Activity":      s.recentEntries(audit.QueryOpts{ControlID: id, Limit: 20}),
	}
	renderHTML(w, http.StatusOK, func(w http.ResponseWriter) error { return controlTmpl.Execute(w, data) })
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "journal disabled", http.StatusServiceUnavailable)
		return
	}
	opts, err := historyOpts(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entries, err := s.journal.Query(opts)
	if err != nil {
		s.logger.Error("query journal", "error", err)
	}
	stats, err := s.journal.QueryStats()
	if err != nil {
		s.logger.Error("query journal stats", "error", err)
	}
	activity, err := s.journal.QueryControlActivity(10)
	if err != nil {
		s.logger.Error("query control activity", "error", err)
	}
	data := map[string]any{
		"Active":     "history",
		"Entries":    entries,
		"Stats":      stats,
		"Activity":   activity,
		"Query":      opts,
		"EventTypes": board.EventTypes,
		"Journal":    true,
	}
	renderHTML(w, http.StatusOK, func(w http.ResponseWriter) error { return historyTmpl.Execute(w, data) })
}

func (s *Server) recentEntries(opts audit.QueryOpts) []audit.Entry {
	if s.journal == nil {
		return nil
	}
	entries, err := s.journal.Query(opts)
	if err != nil {
		s.logger.Error("query journal", "error", err)
		return nil
	}
	return entries
}

// --- Form actions ---

func (s *Server) handleFilterForm(w http.ResponseWriter, r *http.Request) {
	f, err := control.ParseFilter(r.FormValue("status"), r.FormValue("risk"), r.FormValue("type"), r.FormValue("search"))
	if err != nil {
		redirectWithToast(w, r, "/dashboard", err.Error(), false)
		return
	}
	f.Framework = r.FormValue("framework")
	s.board.SetFilterState(f.Patch())
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleFilterClear(w http.ResponseWriter, r *http.Request) {
	s.board.ClearFilter()
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handlePresetSaveForm(w http.ResponseWriter, r *http.Request) {
	p, err := s.board.SavePreset(r.FormValue("name"))
	if err != nil {
		redirectWithToast(w, r, "/dashboard", err.Error(), false)
		return
	}
	s.persistPresets()
	redirectWithToast(w, r, "/dashboard", fmt.Sprintf("Preset %q saved", p.Name), true)
}

func (s *Server) handlePresetApplyForm(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := s.board.ApplyPreset(name); !ok {
		redirectWithToast(w, r, "/dashboard", fmt.Sprintf("Preset %q not found", name), false)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handlePresetDeleteForm(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.board.DeletePreset(name) {
		redirectWithToast(w, r, "/dashboard", fmt.Sprintf("Preset %q not found", name), false)
		return
	}
	s.persistPresets()
	redirectWithToast(w, r, "/dashboard", fmt.Sprintf("Preset %q deleted", name), true)
}

func (s *Server) handleReloadForm(w http.ResponseWriter, r *http.Request) {
	res := s.board.Reload(r.Context())
	redirectWithToast(w, r, "/dashboard", res.Message, res.OK)
}

func (s *Server) handlePlanForm(w http.ResponseWriter, r *http.Request) {
	req := remote.PlanRequest{
		Framework: r.FormValue("framework"),
		Industry:  r.FormValue("industry"),
		TechStack: strings.Split(r.FormValue("tech_stack"), ","),
	}
	res := s.board.GeneratePlan(r.Context(), req)
	redirectWithToast(w, r, "/dashboard", res.Message, res.OK)
}

func (s *Server) handleAdvanceForm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res := s.board.AdvanceStatus(r.Context(), id)
	back := "/dashboard"
	if r.FormValue("from") == "detail" {
		back = "/dashboard/controls/" + url.PathEscape(id)
	}
	redirectWithToast(w, r, back, res.Message, res.OK)
}

func (s *Server) handleGenerateDocumentForm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	kind, ok := remote.ParseDocumentKind(r.PathValue("kind"))
	if !ok {
		http.Error(w, "document kind must be policy or procedure", http.StatusBadRequest)
		return
	}
	res := s.board.GenerateDocument(r.Context(), id, kind)
	if !res.OK {
		s.renderControl(w, r, id, toastFromResult(res), "", "")
		return
	}
	s.renderControl(w, r, id, toastFromResult(res), kind, res.Content)
}

func (s *Server) handleSaveDocumentForm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	kind, ok := remote.ParseDocumentKind(r.PathValue("kind"))
	if !ok {
		http.Error(w, "document kind must be policy or procedure", http.StatusBadRequest)
		return
	}
	content := r.FormValue("content")
	res := s.board.SaveDocument(r.Context(), id, kind, content)
	if !res.OK {
		// Keep the text in the editor so it can be fixed and resubmitted.
		s.renderControl(w, r, id, toastFromResult(res), kind, content)
		return
	}
	redirectWithToast(w, r, "/dashboard/controls/"+url.PathEscape(id), res.Message, true)
}

func (s *Server) handleProgressForm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	back := "/dashboard/controls/" + url.PathEscape(id)
	pct, err := strconv.Atoi(strings.TrimSpace(r.FormValue("progress")))
	if err != nil {
		redirectWithToast(w, r, back, "Progress must be a whole number", false)
		return
	}
	res := s.board.SetProgress(r.Context(), id, pct)
	redirectWithToast(w, r, back, res.Message, res.OK)
}

func (s *Server) handleEvidenceForm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	back := "/dashboard/controls/" + url.PathEscape(id)
	up, err := readUpload(w, r)
	if err != nil {
		redirectWithToast(w, r, back, err.Error(), false)
		return
	}
	res := s.board.AddEvidence(r.Context(), id, up)
	redirectWithToast(w, r, back, res.Message, res.OK)
}

func (s *Server) handleReviewEvidenceForm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res := s.board.ReviewEvidence(r.Context(), id, r.PathValue("eid"), r.FormValue("status"))
	redirectWithToast(w, r, "/dashboard/controls/"+url.PathEscape(id), res.Message, res.OK)
}

// --- SSE handler ---

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "journal disabled", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Extend write deadline so the SSE connection stays open
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	flusher.Flush()

	ch := s.journal.Hub.Subscribe()
	defer s.journal.Hub.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			data, _ := json.Marshal(entry)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
