// Package board holds the Controls Dashboard State: the in-memory control
// collection, the active filter, and the operations the UI layer calls.
// Renderers (web dashboard, TUI, MCP, CLI) receive a *State from the
// composition root; there is no package-level instance.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/controldesk/controldesk/internal/control"
	"github.com/controldesk/controldesk/internal/remote"
	"github.com/controldesk/controldesk/internal/scan"
)

// Service is the Remote Control Service as the board uses it.
// *remote.Client implements it.
type Service interface {
	FetchControls(ctx context.Context) ([]control.Raw, error)
	SaveControl(ctx context.Context, c control.Control) error
	GeneratePlan(ctx context.Context, req remote.PlanRequest) (*remote.PlanResponse, error)
	GenerateDocument(ctx context.Context, kind remote.DocumentKind, req remote.DocumentRequest) (string, error)
	SaveDocument(ctx context.Context, req remote.SaveDocumentRequest) error
	UploadEvidence(ctx context.Context, req remote.UploadEvidenceRequest) (*control.Evidence, error)
	ListEvidence(ctx context.Context, controlID string) ([]control.Evidence, error)
	ReviewEvidence(ctx context.Context, req remote.ReviewEvidenceRequest) (*control.Evidence, error)
	EvidenceStats(ctx context.Context) (*control.EvidenceStats, error)
}

// DocumentCache stores generated documents. A miss returns ok=false and a
// nil error.
type DocumentCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Scanner inspects a document before it is saved. *scan.Scanner
// implements it.
type Scanner interface {
	Scan(ctx context.Context, content string) (*scan.Outcome, error)
}

// Preset is a named filter.
type Preset struct {
	Name   string              `json:"name" yaml:"name"`
	Filter control.FilterState `json:"filter" yaml:"filter"`
}

// State is the dashboard state. All methods are safe for concurrent use.
type State struct {
	mu       sync.RWMutex
	controls []control.Control
	index    map[string]int
	filter   control.FilterState
	plan     *remote.Plan
	presets  []Preset

	svc       Service
	cache     DocumentCache
	scanner   Scanner
	logger    *slog.Logger
	tracer    trace.Tracer
	observers []Observer
	writes    *keyLock
	now       func() time.Time
}

// Option configures a State.
type Option func(*State)

// WithCache enables document caching.
func WithCache(c DocumentCache) Option {
	return func(s *State) { s.cache = c }
}

// WithScanner scans documents before SaveDocument forwards them.
func WithScanner(sc Scanner) Option {
	return func(s *State) { s.scanner = sc }
}

// WithObserver registers an event observer.
func WithObserver(o Observer) Option {
	return func(s *State) { s.observers = append(s.observers, o) }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *State) { s.tracer = t }
}

// WithClock overrides time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// New creates an empty board backed by svc.
func New(svc Service, logger *slog.Logger, opts ...Option) *State {
	if logger == nil {
		logger = slog.Default()
	}
	s := &State{
		index:  map[string]int{},
		svc:    svc,
		logger: logger,
		tracer: otel.Tracer("github.com/controldesk/controldesk/internal/board"),
		writes: newKeyLock(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadControls replaces the collection wholesale. The active filter is
// kept. It returns the number of records loaded.
func (s *State) LoadControls(raws []control.Raw) int {
	controls, dropped := control.NormalizeAll(raws)
	if dropped > 0 {
		s.logger.Warn("duplicate control ids dropped", "dropped", dropped)
	}
	s.replace(controls)

	msg := fmt.Sprintf("loaded %d controls", len(controls))
	if dropped > 0 {
		msg += fmt.Sprintf(" (%d duplicates dropped)", dropped)
	}
	s.emit(Event{Type: EventControlsLoaded, Message: msg, OK: true})
	return len(controls)
}

func (s *State) replace(controls []control.Control) {
	index := make(map[string]int, len(controls))
	for i, c := range controls {
		index[c.ID] = i
	}
	s.mu.Lock()
	s.controls = controls
	s.index = index
	s.mu.Unlock()
}

// Reload fetches the full collection from the remote service. On failure
// the current collection is left untouched.
func (s *State) Reload(ctx context.Context) Result {
	ctx, span := s.tracer.Start(ctx, "board.Reload")
	defer span.End()

	raws, err := s.svc.FetchControls(ctx)
	if err != nil {
		s.logger.Error("reload controls", "error", err)
		recordErr(span, err)
		return fail(KindNetworkFailure, err, "Could not load controls: %s", describe(err))
	}
	n := s.LoadControls(raws)
	span.SetAttributes(attribute.Int("controls.count", n))
	return ok(fmt.Sprintf("Loaded %d controls", n), nil)
}

// SetFilterState merges patch into the active filter and returns the result.
func (s *State) SetFilterState(patch control.FilterPatch) control.FilterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = s.filter.Apply(patch)
	return s.filter
}

// FilterState returns the active filter.
func (s *State) FilterState() control.FilterState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// ClearFilter removes every constraint.
func (s *State) ClearFilter() {
	s.mu.Lock()
	s.filter = control.FilterState{}
	s.mu.Unlock()
}

// Controls returns a copy of the full collection.
func (s *State) Controls() []control.Control {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return control.CloneAll(s.controls)
}

// VisibleControls returns copies of the controls passing the active filter.
func (s *State) VisibleControls() []control.Control {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return control.CloneAll(control.Filter(s.controls, s.filter))
}

// SummaryCounts returns the counters over the full, unfiltered collection.
func (s *State) SummaryCounts() control.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return control.Summarize(s.controls)
}

// Rows projects the visible controls for display.
func (s *State) Rows() []control.Row {
	return control.Project(s.VisibleControls())
}

// Control looks up a control by id.
func (s *State) Control(id string) (control.Control, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, found := s.index[id]
	if !found {
		return control.Control{}, false
	}
	return s.controls[i].Clone(), true
}

// Frameworks lists the distinct frameworks in the collection.
func (s *State) Frameworks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return control.Frameworks(s.controls)
}

// Analytics computes analytics over the full collection.
func (s *State) Analytics() control.Analytics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return control.Analyze(s.controls)
}

// Gaps lists up to limit controls that are not yet approved.
func (s *State) Gaps(limit int) []control.Gap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return control.Gaps(s.controls, limit)
}

// Plan returns the plan the collection was generated from, if any.
func (s *State) Plan() (remote.Plan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.plan == nil {
		return remote.Plan{}, false
	}
	p := *s.plan
	p.TechStack = append([]string(nil), s.plan.TechStack...)
	return p, true
}

// AdvanceStatus moves a control one step along the workflow and persists
// it. The in-memory change is kept when persisting fails; the result then
// carries KindNetworkFailure and the updated control. Calls for the same id
// are applied one at a time.
func (s *State) AdvanceStatus(ctx context.Context, id string) Result {
	ctx, span := s.tracer.Start(ctx, "board.AdvanceStatus",
		trace.WithAttributes(attribute.String("control.id", id)))
	defer span.End()

	unlock := s.writes.lock(id)
	defer unlock()

	s.mu.Lock()
	i, found := s.index[id]
	if !found {
		s.mu.Unlock()
		span.SetStatus(codes.Error, "not found")
		return fail(KindNotFound, nil, "Control %s not found", id)
	}
	c := &s.controls[i]
	from := c.Status
	if err := control.Advance(c); err != nil {
		s.mu.Unlock()
		recordErr(span, err)
		if errors.Is(err, control.ErrTerminal) {
			return fail(KindInvalid, err, "Control %s is already approved", id)
		}
		return fail(KindInvalid, err, "Control %s cannot advance from %q", id, from)
	}
	updated := c.Clone()
	s.mu.Unlock()

	span.SetAttributes(attribute.String("status.from", string(from)), attribute.String("status.to", string(updated.Status)))
	s.logger.Info("status advanced", "control_id", id, "from", from, "to", updated.Status)
	s.emit(Event{Type: EventStatusAdvanced, ControlID: id, From: from, To: updated.Status, OK: true})

	if res, failed := s.persist(ctx, span, updated, from,
		fmt.Sprintf("Status changed to %s", updated.Status)); failed {
		return res
	}
	return ok(fmt.Sprintf("%s moved to %s", id, updated.Status), &updated)
}

// SetProgress raises a control's completion percentage without changing
// its status. Lowering it, leaving 0..100, or reaching 100 before approval
// is KindInvalid. Like AdvanceStatus, the change is kept in memory when
// persisting fails.
func (s *State) SetProgress(ctx context.Context, id string, pct int) Result {
	ctx, span := s.tracer.Start(ctx, "board.SetProgress",
		trace.WithAttributes(attribute.String("control.id", id), attribute.Int("progress", pct)))
	defer span.End()

	unlock := s.writes.lock(id)
	defer unlock()

	s.mu.Lock()
	i, found := s.index[id]
	if !found {
		s.mu.Unlock()
		span.SetStatus(codes.Error, "not found")
		return fail(KindNotFound, nil, "Control %s not found", id)
	}
	c := &s.controls[i]
	prev := c.Progress
	if err := control.SetProgress(c, pct); err != nil {
		s.mu.Unlock()
		recordErr(span, err)
		return fail(KindInvalid, err, "Cannot set %s progress to %d%%: %s", id, pct, strings.TrimPrefix(err.Error(), control.ErrProgress.Error()+": "))
	}
	updated := c.Clone()
	s.mu.Unlock()

	if prev == pct {
		return ok(fmt.Sprintf("%s already at %d%%", id, pct), &updated)
	}
	s.logger.Info("progress updated", "control_id", id, "from", prev, "to", pct)
	s.emit(Event{Type: EventProgressUpdated, ControlID: id, From: updated.Status, To: updated.Status,
		Message: fmt.Sprintf("%s progress %d%% -> %d%%", id, prev, pct), OK: true})

	if res, failed := s.persist(ctx, span, updated, updated.Status,
		fmt.Sprintf("Progress changed to %d%%", pct)); failed {
		return res
	}
	return ok(fmt.Sprintf("%s progress set to %d%%", id, pct), &updated)
}

// persist saves an already applied change. On failure it emits
// persist_failed and returns the KindNetworkFailure result.
func (s *State) persist(ctx context.Context, span trace.Span, updated control.Control, from control.Status, change string) (Result, bool) {
	err := s.svc.SaveControl(ctx, updated)
	if err == nil {
		return Result{}, false
	}
	s.logger.Error("persist control", "control_id", updated.ID, "error", err)
	recordErr(span, err)
	msg := fmt.Sprintf("%s but could not be saved: %s", change, describe(err))
	s.emit(Event{Type: EventPersistFailed, ControlID: updated.ID, From: from, To: updated.Status, Message: msg})
	return Result{Kind: KindNetworkFailure, Message: msg, Control: &updated, Err: err}, true
}

// GeneratePlan asks the remote service for a control set and replaces the
// collection with it.
func (s *State) GeneratePlan(ctx context.Context, req remote.PlanRequest) Result {
	ctx, span := s.tracer.Start(ctx, "board.GeneratePlan",
		trace.WithAttributes(attribute.String("plan.framework", req.Framework)))
	defer span.End()

	req.Framework = strings.TrimSpace(req.Framework)
	req.Industry = strings.TrimSpace(req.Industry)
	req.TechStack = remote.DedupeStack(req.TechStack)
	if req.Framework == "" {
		return fail(KindInvalid, nil, "A framework is required")
	}

	resp, err := s.svc.GeneratePlan(ctx, req)
	if err != nil {
		s.logger.Error("generate plan", "framework", req.Framework, "error", err)
		recordErr(span, err)
		return fail(KindNetworkFailure, err, "Could not generate plan: %s", describe(err))
	}

	plan := resp.Plan
	if plan.Framework == "" {
		plan.Framework = req.Framework
	}
	if plan.Industry == "" {
		plan.Industry = req.Industry
	}
	if len(plan.TechStack) == 0 {
		plan.TechStack = req.TechStack
	}
	s.mu.Lock()
	s.plan = &plan
	s.mu.Unlock()

	n := s.LoadControls(resp.Controls)
	msg := fmt.Sprintf("Generated %d controls for %s", n, plan.Framework)
	s.emit(Event{Type: EventPlanGenerated, Message: msg, OK: true})
	return ok(msg, nil)
}

// GenerateDocument returns a policy or procedure for the control's area,
// from the cache when available.
func (s *State) GenerateDocument(ctx context.Context, id string, kind remote.DocumentKind) Result {
	ctx, span := s.tracer.Start(ctx, "board.GenerateDocument",
		trace.WithAttributes(attribute.String("control.id", id), attribute.String("document.kind", string(kind))))
	defer span.End()

	c, found := s.Control(id)
	if !found {
		return fail(KindNotFound, nil, "Control %s not found", id)
	}
	stack := s.techStack()
	req := remote.DocumentRequest{ControlArea: c.Area, TechStack: stack}
	key := cacheKey(kind, c.Area, stack)

	if s.cache != nil {
		content, hit, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("document cache get", "key", key, "error", err)
		}
		if hit {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			res := ok(fmt.Sprintf("%s loaded from cache", kind.Title()), &c)
			res.Content = content
			return res
		}
	}

	content, err := s.svc.GenerateDocument(ctx, kind, req)
	if err != nil {
		s.logger.Error("generate document", "control_id", id, "kind", kind, "error", err)
		recordErr(span, err)
		return fail(KindNetworkFailure, err, "Could not generate %s: %s", kind, describe(err))
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, content); err != nil {
			s.logger.Warn("document cache set", "key", key, "error", err)
		}
	}

	msg := fmt.Sprintf("%s generated for %s", kind.Title(), c.Area)
	s.emit(Event{Type: EventDocumentGenerated, ControlID: id, Message: msg, OK: true})
	res := ok(msg, &c)
	res.Content = content
	return res
}

// SaveDocument scans content and, unless blocked, stores it against the
// control as "<area> Policy" or "<area> Procedure".
func (s *State) SaveDocument(ctx context.Context, id string, kind remote.DocumentKind, content string) Result {
	ctx, span := s.tracer.Start(ctx, "board.SaveDocument",
		trace.WithAttributes(attribute.String("control.id", id), attribute.String("document.kind", string(kind))))
	defer span.End()

	c, found := s.Control(id)
	if !found {
		return fail(KindNotFound, nil, "Control %s not found", id)
	}
	if strings.TrimSpace(content) == "" {
		return fail(KindInvalid, nil, "Document is empty")
	}

	if s.scanner != nil {
		outcome, err := s.scanner.Scan(ctx, content)
		if err != nil {
			// Scanner failures do not block saving.
			s.logger.Warn("document scan failed", "control_id", id, "error", err)
		} else if outcome.Blocked() {
			msg := fmt.Sprintf("%s rejected by content scan: %s", kind.Title(), strings.Join(outcome.RuleIDs(), ", "))
			s.logger.Warn("document rejected", "control_id", id, "rules", outcome.RuleIDs())
			span.SetStatus(codes.Error, "rejected")
			s.emit(Event{Type: EventDocumentRejected, ControlID: id, Message: msg})
			return Result{Kind: KindRejected, Message: msg, Control: &c}
		} else if outcome.Verdict == scan.VerdictFlag {
			s.logger.Info("document flagged", "control_id", id, "rules", outcome.RuleIDs())
		}
	}

	req := remote.SaveDocumentRequest{
		Title:     fmt.Sprintf("%s %s", c.Area, kind.Title()),
		Content:   content,
		Type:      kind,
		ControlID: id,
	}
	if err := s.svc.SaveDocument(ctx, req); err != nil {
		s.logger.Error("save document", "control_id", id, "error", err)
		recordErr(span, err)
		return fail(KindNetworkFailure, err, "Could not save %s: %s", kind, describe(err))
	}

	msg := fmt.Sprintf("%s saved", req.Title)
	s.emit(Event{Type: EventDocumentSaved, ControlID: id, Message: msg, OK: true})
	return ok(msg, &c)
}

// SavePreset stores the active filter under name, replacing any preset
// with the same name.
func (s *State) SavePreset(name string) (Preset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Preset{}, errors.New("preset name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Preset{Name: name, Filter: s.filter}
	for i := range s.presets {
		if strings.EqualFold(s.presets[i].Name, name) {
			s.presets[i] = p
			return p, nil
		}
	}
	s.presets = append(s.presets, p)
	return p, nil
}

// ApplyPreset makes the named preset the active filter.
func (s *State) ApplyPreset(name string) (control.FilterState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.presets {
		if strings.EqualFold(p.Name, name) {
			s.filter = p.Filter
			return s.filter, true
		}
	}
	return s.filter, false
}

// DeletePreset removes the named preset.
func (s *State) DeletePreset(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.presets {
		if strings.EqualFold(p.Name, name) {
			s.presets = append(s.presets[:i], s.presets[i+1:]...)
			return true
		}
	}
	return false
}

// Presets returns the saved presets sorted by name.
func (s *State) Presets() []Preset {
	s.mu.RLock()
	out := append([]Preset(nil), s.presets...)
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetPresets replaces all presets.
func (s *State) SetPresets(presets []Preset) {
	s.mu.Lock()
	s.presets = append([]Preset(nil), presets...)
	s.mu.Unlock()
}

func (s *State) techStack() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.plan == nil {
		return nil
	}
	return append([]string(nil), s.plan.TechStack...)
}

func (s *State) emit(e Event) {
	e.Time = s.now().UTC()
	for _, o := range s.observers {
		o.OnEvent(e)
	}
}

func cacheKey(kind remote.DocumentKind, area string, stack []string) string {
	sorted := make([]string, len(stack))
	for i, t := range stack {
		sorted[i] = strings.ToLower(t)
	}
	sort.Strings(sorted)
	return fmt.Sprintf("doc:%s:%s:%s", kind, strings.ToLower(area), strings.Join(sorted, ","))
}

func recordErr(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// describe turns a remote error into a short user-facing reason.
func describe(err error) string {
	var apiErr *remote.APIError
	switch {
	case errors.Is(err, remote.ErrUnavailable):
		return "service unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	case errors.As(err, &apiErr):
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fmt.Sprintf("service returned HTTP %d", apiErr.StatusCode)
	}
	return err.Error()
}
