package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/controldesk/controldesk/internal/control"
)

// ErrUnavailable wraps transport failures: the service could not be reached
// or did not answer before the deadline.
var ErrUnavailable = errors.New("remote control service unavailable")

// maxResponseBytes bounds a decoded response body.
const maxResponseBytes = 16 << 20

// APIError is returned when the service answers with a non-2xx status or
// with success=false.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("remote: %s (HTTP %d)", e.Message, e.StatusCode)
}

// CallObserver is told about every completed call.
type CallObserver func(endpoint string, elapsed time.Duration, err error)

// Client talks to a Remote Control Service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	observe    CallObserver
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default traced HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithCallObserver registers a callback for call metrics.
func WithCallObserver(fn CallObserver) Option {
	return func(c *Client) { c.observe = fn }
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service root the client was created with.
func (c *Client) BaseURL() string { return c.baseURL }

// FetchControls returns every control the service holds, unnormalized.
func (c *Client) FetchControls(ctx context.Context) ([]control.Raw, error) {
	var resp ControlsResponse
	q := url.Values{"type": {"controls"}}
	if err := c.do(ctx, http.MethodGet, PathGetData+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// SaveControl persists the full control record.
func (c *Client) SaveControl(ctx context.Context, ctl control.Control) error {
	var resp Envelope
	return c.do(ctx, http.MethodPost, PathSaveControl, ctl, &resp)
}

// GeneratePlan asks the service to generate controls for a framework.
func (c *Client) GeneratePlan(ctx context.Context, req PlanRequest) (*PlanResponse, error) {
	req.TechStack = DedupeStack(req.TechStack)
	var resp PlanResponse
	if err := c.do(ctx, http.MethodPost, PathGeneratePlan, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateDocument asks the service for a policy or procedure.
func (c *Client) GenerateDocument(ctx context.Context, kind DocumentKind, req DocumentRequest) (string, error) {
	req.TechStack = DedupeStack(req.TechStack)
	var resp DocumentResponse
	if err := c.do(ctx, http.MethodPost, kind.path(), req, &resp); err != nil {
		return "", err
	}
	return resp.Content, nil
}

// SaveDocument stores a generated document against a control.
func (c *Client) SaveDocument(ctx context.Context, req SaveDocumentRequest) error {
	var resp Envelope
	return c.do(ctx, http.MethodPost, PathSavePolicy, req, &resp)
}

// UploadEvidence attaches a file to a control.
func (c *Client) UploadEvidence(ctx context.Context, req UploadEvidenceRequest) (*control.Evidence, error) {
	var resp EvidenceResponse
	if err := c.do(ctx, http.MethodPost, PathUploadEvidence, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Evidence, nil
}

// ListEvidence returns the evidence records of one control, oldest first.
func (c *Client) ListEvidence(ctx context.Context, controlID string) ([]control.Evidence, error) {
	var resp EvidenceListResponse
	path := PathEvidence + "?control_id=" + url.QueryEscape(controlID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Evidence, nil
}

// ReviewEvidence sets the review status of an evidence record.
func (c *Client) ReviewEvidence(ctx context.Context, req ReviewEvidenceRequest) (*control.Evidence, error) {
	var resp EvidenceResponse
	if err := c.do(ctx, http.MethodPost, PathReviewEvidence, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Evidence, nil
}

// EvidenceStats returns review counts over all evidence.
func (c *Client) EvidenceStats(ctx context.Context) (*control.EvidenceStats, error) {
	var resp EvidenceStatsResponse
	if err := c.do(ctx, http.MethodGet, PathEvidenceStats, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Stats, nil
}

// Health checks the service health endpoint.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+PathHealth, nil)
	if err != nil {
		return nil, err
	}
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("health check: %w: %w", ErrUnavailable, err)
	}
	defer httpResp.Body.Close()

	var resp struct {
		HealthResponse
		Error string `json:"error"`
	}
	decodeErr := json.NewDecoder(io.LimitReader(httpResp.Body, maxResponseBytes)).Decode(&resp)
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: httpResp.StatusCode}
		if decodeErr == nil {
			apiErr.Message = resp.Error
			if apiErr.Message == "" {
				apiErr.Message = resp.Status
			}
		}
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decoding health: %w", decodeErr)
	}
	return &resp.HealthResponse, nil
}

// enveloped is implemented by every response type through Envelope.
type enveloped interface {
	envelope() Envelope
}

func (e Envelope) envelope() Envelope { return e }

func (c *Client) do(ctx context.Context, method, path string, body any, out enveloped) (err error) {
	start := time.Now()
	endpoint := path
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	defer func() {
		if c.observe != nil {
			c.observe(endpoint, time.Since(start), err)
		}
	}()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, endpoint, ErrUnavailable, err)
	}
	defer httpResp.Body.Close()

	decodeErr := json.NewDecoder(io.LimitReader(httpResp.Body, maxResponseBytes)).Decode(out)
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: httpResp.StatusCode}
		if decodeErr == nil {
			apiErr.Message = out.envelope().Error
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decoding %s response (HTTP %d): %w", endpoint, httpResp.StatusCode, decodeErr)
	}
	if env := out.envelope(); !env.Success {
		return &APIError{StatusCode: httpResp.StatusCode, Message: env.Error}
	}
	return nil
}
