package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/controldesk/controldesk/internal/audit"
	"github.com/controldesk/controldesk/internal/board"
)

// PresetStore persists the preset list after it is changed from the UI.
type PresetStore func([]board.Preset) error

// Server serves the controls dashboard and its JSON API.
type Server struct {
	board   *board.State
	journal *audit.Store
	presets PresetStore
	logger  *slog.Logger
	mux     *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithJournal enables the history page, the history API and the live
// event stream.
func WithJournal(j *audit.Store) Option {
	return func(s *Server) { s.journal = j }
}

// WithPresetStore persists presets saved or deleted from the dashboard.
func WithPresetStore(fn PresetStore) Option {
	return func(s *Server) { s.presets = fn }
}

// NewServer creates a dashboard server over b.
func NewServer(b *board.State, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		board:  b,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Handler returns the dashboard HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /dashboard", s.handleOverview)
	s.mux.HandleFunc("GET /dashboard/controls/{id}", s.handleControlDetail)
	s.mux.HandleFunc("GET /dashboard/history", s.handleHistory)

	// Form actions (POST, redirect back with a toast)
	s.mux.HandleFunc("POST /dashboard/filter", s.handleFilterForm)
	s.mux.HandleFunc("POST /dashboard/filter/clear", s.handleFilterClear)
	s.mux.HandleFunc("POST /dashboard/presets", s.handlePresetSaveForm)
	s.mux.HandleFunc("POST /dashboard/presets/{name}/apply", s.handlePresetApplyForm)
	s.mux.HandleFunc("POST /dashboard/presets/{name}/delete", s.handlePresetDeleteForm)
	s.mux.HandleFunc("POST /dashboard/reload", s.handleReloadForm)
	s.mux.HandleFunc("POST /dashboard/plan", s.handlePlanForm)
	s.mux.HandleFunc("POST /dashboard/controls/{id}/advance", s.handleAdvanceForm)
	s.mux.HandleFunc("POST /dashboard/controls/{id}/progress", s.handleProgressForm)
	s.mux.HandleFunc("POST /dashboard/controls/{id}/evidence", s.handleEvidenceForm)
	s.mux.HandleFunc("POST /dashboard/controls/{id}/evidence/{eid}/review", s.handleReviewEvidenceForm)
	s.mux.HandleFunc("POST /dashboard/controls/{id}/documents/{kind}", s.handleGenerateDocumentForm)
	s.mux.HandleFunc("POST /dashboard/controls/{id}/documents/{kind}/save", s.handleSaveDocumentForm)

	// JSON API
	s.mux.HandleFunc("GET /dashboard/api/controls", s.handleAPIControls)
	s.mux.HandleFunc("GET /dashboard/api/controls/{id}", s.handleAPIControl)
	s.mux.HandleFunc("POST /dashboard/api/controls/{id}/advance", s.handleAPIAdvance)
	s.mux.HandleFunc("PUT /dashboard/api/controls/{id}/progress", s.handleAPISetProgress)
	s.mux.HandleFunc("GET /dashboard/api/controls/{id}/evidence", s.handleAPIEvidence)
	s.mux.HandleFunc("POST /dashboard/api/controls/{id}/evidence", s.handleAPIAddEvidence)
	s.mux.HandleFunc("POST /dashboard/api/controls/{id}/evidence/{eid}/review", s.handleAPIReviewEvidence)
	s.mux.HandleFunc("GET /dashboard/api/evidence/stats", s.handleAPIEvidenceStats)
	s.mux.HandleFunc("POST /dashboard/api/controls/{id}/documents/{kind}", s.handleAPIGenerateDocument)
	s.mux.HandleFunc("PUT /dashboard/api/controls/{id}/documents/{kind}", s.handleAPISaveDocument)
	s.mux.HandleFunc("GET /dashboard/api/summary", s.handleAPISummary)
	s.mux.HandleFunc("GET /dashboard/api/analytics", s.handleAPIAnalytics)
	s.mux.HandleFunc("GET /dashboard/api/gaps", s.handleAPIGaps)
	s.mux.HandleFunc("GET /dashboard/api/filter", s.handleAPIFilter)
	s.mux.HandleFunc("PATCH /dashboard/api/filter", s.handleAPIPatchFilter)
	s.mux.HandleFunc("DELETE /dashboard/api/filter", s.handleAPIClearFilter)
	s.mux.HandleFunc("GET /dashboard/api/presets", s.handleAPIPresets)
	s.mux.HandleFunc("POST /dashboard/api/presets", s.handleAPISavePreset)
	s.mux.HandleFunc("POST /dashboard/api/presets/{name}/apply", s.handleAPIApplyPreset)
	s.mux.HandleFunc("DELETE /dashboard/api/presets/{name}", s.handleAPIDeletePreset)
	s.mux.HandleFunc("GET /dashboard/api/plan", s.handleAPIPlan)
	s.mux.HandleFunc("POST /dashboard/api/plan", s.handleAPIGeneratePlan)
	s.mux.HandleFunc("POST /dashboard/api/reload", s.handleAPIReload)
	s.mux.HandleFunc("GET /dashboard/api/history", s.handleAPIHistory)

	// SSE
	s.mux.HandleFunc("GET /dashboard/api/events", s.handleSSE)
}

// persistPresets hands the current preset list to the preset store.
func (s *Server) persistPresets() {
	if s.presets == nil {
		return
	}
	if err := s.presets(s.board.Presets()); err != nil {
		s.logger.Error("persist presets", "error", err)
	}
}
