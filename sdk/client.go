// Package sdk provides a Go client for the controldesk dashboard API.
//
// Basic usage:
//
//	c := sdk.NewClient("http://localhost:8080")
//	page, err := c.Controls(ctx)
//	res, err := c.Advance(ctx, "SOC2-3")
//
// Operations that return a board result fail with a *ResultError when the
// result is not OK; the result is still returned alongside the error.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const apiPrefix = "/dashboard/api"

// Row is a control as shown in the dashboard table.
type Row struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Area        string `json:"area"`
	Type        string `json:"type"`
	Risk        string `json:"risk"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Action      string `json:"action,omitempty"`
}

// Filter is the dashboard's active filter.
type Filter struct {
	Status    string `json:"status,omitempty"`
	Risk      string `json:"risk,omitempty"`
	Type      string `json:"type,omitempty"`
	Search    string `json:"search,omitempty"`
	Framework string `json:"framework,omitempty"`
}

// FilterPatch changes some filter fields. Nil fields are left alone; a
// pointer to "" clears the field.
type FilterPatch struct {
	Status    *string `json:"status,omitempty"`
	Risk      *string `json:"risk,omitempty"`
	Type      *string `json:"type,omitempty"`
	Search    *string `json:"search,omitempty"`
	Framework *string `json:"framework,omitempty"`
}

// ControlsPage is returned by GET /dashboard/api/controls.
type ControlsPage struct {
	Filter  Filter `json:"filter"`
	Total   int    `json:"total"`
	Visible int    `json:"visible"`
	Rows    []Row  `json:"rows"`
}

// TestPlan is a test of design or test of effectiveness.
type TestPlan struct {
	Steps    []string `json:"steps"`
	Evidence []string `json:"evidence"`
}

// CustomTestingStep is a technology-specific testing step.
type CustomTestingStep struct {
	Technology         string `json:"technology"`
	Steps              string `json:"steps"`
	AutomationArtifact struct {
		Description string `json:"description"`
		Snippet     string `json:"snippet"`
	} `json:"automation_artifact"`
}

// Control is the full control record.
type Control struct {
	ID                  string              `json:"control_id"`
	Description         string              `json:"control_description"`
	Area                string              `json:"control_area"`
	Type                string              `json:"control_type"`
	Risk                string              `json:"risk_rating"`
	RiskStatement       string              `json:"risk,omitempty"`
	Status              string              `json:"status"`
	Progress            int                 `json:"progress"`
	Framework           string              `json:"framework,omitempty"`
	TestOfDesign        TestPlan            `json:"test_of_design"`
	TestOfEffectiveness TestPlan            `json:"test_of_effectiveness"`
	CustomTestingSteps  []CustomTestingStep `json:"custom_testing_steps,omitempty"`
	CreatedAt           *time.Time          `json:"created_date,omitempty"`
}

// Summary holds the dashboard counters over all controls.
type Summary struct {
	Total      int `json:"total"`
	HighRisk   int `json:"high_risk"`
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	NotStarted int `json:"not_started"`
}

// Result is the outcome of a dashboard action.
type Result struct {
	OK      bool     `json:"ok"`
	Kind    string   `json:"kind"` // none, validation_default, network_failure, not_found, invalid, rejected
	Message string   `json:"message,omitempty"`
	Control *Control `json:"control,omitempty"`
	Content string   `json:"content,omitempty"`
	// Evidence is set by evidence uploads and reviews.
	Evidence *Evidence `json:"evidence,omitempty"`
}

// Evidence is a file attached to a control.
type Evidence struct {
	ID          string     `json:"id"`
	ControlID   string     `json:"control_id"`
	Filename    string     `json:"filename"`
	FileType    string     `json:"file_type,omitempty"`
	Size        int64      `json:"size"`
	SHA256      string     `json:"sha256,omitempty"`
	Description string     `json:"description,omitempty"`
	UploadedBy  string     `json:"uploaded_by,omitempty"`
	Status      string     `json:"status"` // pending_review, approved, rejected
	UploadDate  time.Time  `json:"upload_date"`
	ReviewDate  *time.Time `json:"review_date,omitempty"`
}

// EvidenceStats summarizes evidence review across all controls.
type EvidenceStats struct {
	Total        int     `json:"total_evidence"`
	Approved     int     `json:"approved_evidence"`
	Pending      int     `json:"pending_evidence"`
	Rejected     int     `json:"rejected_evidence"`
	ApprovalRate float64 `json:"approval_rate"`
}

// EvidenceUpload describes a file to attach.
type EvidenceUpload struct {
	Filename    string
	Description string
	UploadedBy  string
	Content     io.Reader
}

// Preset is a named filter.
type Preset struct {
	Name   string `json:"name"`
	Filter Filter `json:"filter"`
}

// PlanRequest asks for a generated control set.
type PlanRequest struct {
	Framework string   `json:"framework"`
	Industry  string   `json:"industry"`
	TechStack []string `json:"tech_stack"`
}

// Plan describes the last generated control set.
type Plan struct {
	Framework string   `json:"framework"`
	Industry  string   `json:"industry"`
	TechStack []string `json:"tech_stack"`
	Summary   string   `json:"summary,omitempty"`
}

// HistoryEntry is one activity journal record.
type HistoryEntry struct {
	ID         string `json:"id"`
	Timestamp  string `json:"timestamp"`
	Type       string `json:"type"`
	ControlID  string `json:"control_id,omitempty"`
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status,omitempty"`
	Message    string `json:"message,omitempty"`
	OK         bool   `json:"ok"`
}

// HistoryQuery filters History. Zero fields are ignored.
type HistoryQuery struct {
	Type      string
	ControlID string
	Since     string
	Search    string
	Limit     int
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Controls int    `json:"controls"`
	Remote   string `json:"remote"`
}

// APIError is returned for non-2xx responses that carry no result.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("controldesk: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("controldesk: %s (HTTP %d)", e.Message, e.StatusCode)
}

// ResultError is returned when an action result is not OK.
type ResultError struct {
	StatusCode int
	Result     Result
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("controldesk: %s (HTTP %d, kind=%s)", e.Result.Message, e.StatusCode, e.Result.Kind)
}

// IsNotFound reports whether err is a 404 from the dashboard.
func IsNotFound(err error) bool {
	var apiErr *APIError
	var resErr *ResultError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.StatusCode == http.StatusNotFound
	case errors.As(err, &resErr):
		return resErr.StatusCode == http.StatusNotFound
	}
	return false
}

// Client talks to a controldesk dashboard.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the dashboard at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Health checks the server health endpoint.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Controls returns the rows visible under the active filter.
func (c *Client) Controls(ctx context.Context) (*ControlsPage, error) {
	var page ControlsPage
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/controls", nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Control returns one control by id.
func (c *Client) Control(ctx context.Context, id string) (*Control, error) {
	var ctl Control
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/controls/"+url.PathEscape(id), nil, &ctl); err != nil {
		return nil, err
	}
	return &ctl, nil
}

// Summary returns the dashboard counters.
func (c *Client) Summary(ctx context.Context) (*Summary, error) {
	var s Summary
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/summary", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Filter returns the active filter.
func (c *Client) Filter(ctx context.Context) (*Filter, error) {
	var f Filter
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/filter", nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// SetFilter applies a partial filter update and returns the new filter.
func (c *Client) SetFilter(ctx context.Context, patch FilterPatch) (*Filter, error) {
	var f Filter
	if err := c.do(ctx, http.MethodPatch, apiPrefix+"/filter", patch, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// ClearFilter removes every filter constraint.
func (c *Client) ClearFilter(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, apiPrefix+"/filter", nil, &Filter{})
}

// Presets lists the saved filter presets.
func (c *Client) Presets(ctx context.Context) ([]Preset, error) {
	var p []Preset
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/presets", nil, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// SavePreset stores the active filter under name.
func (c *Client) SavePreset(ctx context.Context, name string) (*Preset, error) {
	var p Preset
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/presets", map[string]string{"name": name}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ApplyPreset makes the named preset the active filter.
func (c *Client) ApplyPreset(ctx context.Context, name string) (*Filter, error) {
	var f Filter
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/presets/"+url.PathEscape(name)+"/apply", nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// DeletePreset removes the named preset.
func (c *Client) DeletePreset(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, apiPrefix+"/presets/"+url.PathEscape(name), nil, nil)
}

// Advance moves a control to its next workflow status.
func (c *Client) Advance(ctx context.Context, id string) (*Result, error) {
	return c.result(ctx, http.MethodPost, apiPrefix+"/controls/"+url.PathEscape(id)+"/advance", nil)
}

// SetProgress raises a control's completion percentage. The status is
// unchanged; lowering progress fails with a *ResultError.
func (c *Client) SetProgress(ctx context.Context, id string, pct int) (*Result, error) {
	return c.result(ctx, http.MethodPut, apiPrefix+"/controls/"+url.PathEscape(id)+"/progress", map[string]int{"progress": pct})
}

// Evidence lists the files attached to a control.
func (c *Client) Evidence(ctx context.Context, id string) ([]Evidence, error) {
	var list []Evidence
	if err := c.do(ctx, http.MethodGet, c.evidencePath(id), nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// UploadEvidence attaches a file to a control. New evidence is pending
// review; the record is in Result.Evidence.
func (c *Client) UploadEvidence(ctx context.Context, id string, up EvidenceUpload) (*Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range map[string]string{"description": up.Description, "uploaded_by": up.UploadedBy} {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("encoding upload: %w", err)
		}
	}
	part, err := mw.CreateFormFile("file", up.Filename)
	if err != nil {
		return nil, fmt.Errorf("encoding upload: %w", err)
	}
	if _, err := io.Copy(part, up.Content); err != nil {
		return nil, fmt.Errorf("reading %s: %w", up.Filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("encoding upload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.evidencePath(id), &body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	return readResult(httpResp)
}

// ReviewEvidence sets an evidence record's status ("approved", "rejected",
// "pending_review").
func (c *Client) ReviewEvidence(ctx context.Context, id, evidenceID, status string) (*Result, error) {
	return c.result(ctx, http.MethodPost, c.evidencePath(id)+"/"+url.PathEscape(evidenceID)+"/review", map[string]string{"status": status})
}

// EvidenceStats returns review counts across all controls.
func (c *Client) EvidenceStats(ctx context.Context) (*EvidenceStats, error) {
	var st EvidenceStats
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/evidence/stats", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// GenerateDocument asks for a policy or procedure ("policy", "procedure")
// for the control's area. The markdown is in Result.Content.
func (c *Client) GenerateDocument(ctx context.Context, id, kind string) (*Result, error) {
	return c.result(ctx, http.MethodPost, c.documentPath(id, kind), nil)
}

// SaveDocument stores a document against the control.
func (c *Client) SaveDocument(ctx context.Context, id, kind, content string) (*Result, error) {
	return c.result(ctx, http.MethodPut, c.documentPath(id, kind), map[string]string{"content": content})
}

// GeneratePlan replaces the board's controls with a generated set.
func (c *Client) GeneratePlan(ctx context.Context, req PlanRequest) (*Result, error) {
	return c.result(ctx, http.MethodPost, apiPrefix+"/plan", req)
}

// Plan returns the last generated plan.
func (c *Client) Plan(ctx context.Context) (*Plan, error) {
	var p Plan
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/plan", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Reload refetches controls from the remote service.
func (c *Client) Reload(ctx context.Context) (*Result, error) {
	return c.result(ctx, http.MethodPost, apiPrefix+"/reload", nil)
}

// History queries the activity journal, newest first.
func (c *Client) History(ctx context.Context, q HistoryQuery) ([]HistoryEntry, error) {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("type", q.Type)
	set("control", q.ControlID)
	set("since", q.Since)
	set("q", q.Search)
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	path := apiPrefix + "/history"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var entries []HistoryEntry
	if err := c.do(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) evidencePath(id string) string {
	return apiPrefix + "/controls/" + url.PathEscape(id) + "/evidence"
}

func (c *Client) documentPath(id, kind string) string {
	return apiPrefix + "/controls/" + url.PathEscape(id) + "/documents/" + url.PathEscape(kind)
}

// result performs an action endpoint. Non-OK results come back with a
// *ResultError.
func (c *Client) result(ctx context.Context, method, path string, body any) (*Result, error) {
	httpResp, err := c.send(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	return readResult(httpResp)
}

func readResult(httpResp *http.Response) (*Result, error) {
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil || res.Kind == "" {
		return nil, apiError(httpResp.StatusCode, data)
	}
	if !res.OK {
		return &res, &ResultError{StatusCode: httpResp.StatusCode, Result: res}
	}
	return &res, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	httpResp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return apiError(httpResp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response (HTTP %d): %w", httpResp.StatusCode, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	return httpResp, nil
}

func apiError(status int, data []byte) error {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(data, &e)
	if e.Error == "" {
		// Board results carry their reason in "message".
		e.Error = e.Message
	}
	return &APIError{StatusCode: status, Message: e.Error}
}
