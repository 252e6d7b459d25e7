package notify

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/controldesk/controldesk/internal/board"
	"github.com/controldesk/controldesk/internal/config"
	"github.com/controldesk/controldesk/internal/control"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type capture struct {
	mu     sync.Mutex
	bodies []string
	ctypes []string
}

func (c *capture) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, string(b))
		c.ctypes = append(c.ctypes, r.Header.Get("Content-Type"))
		c.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
}

// newLoopbackNotifier bypasses URL validation so httptest servers on
// 127.0.0.1 can receive deliveries.
func newLoopbackNotifier(hooks []config.Webhook) *Notifier {
	n := NewNotifier(nil, testLogger())
	n.client = &http.Client{Timeout: 2 * time.Second}
	n.webhooks = hooks
	return n
}

var sampleEvent = board.Event{
	Type:      board.EventPersistFailed,
	ControlID: "SOC2-3",
	From:      control.StatusInProgress,
	To:        control.StatusPendingReview,
	Message:   "service unavailable",
	Time:      time.Date(2026, 2, 24, 10, 0, 0, 0, time.UTC),
}

func TestOnEvent_DefaultJSON(t *testing.T) {
	c := &capture{}
	ts := httptest.NewServer(c.handler())
	defer ts.Close()

	n := newLoopbackNotifier([]config.Webhook{{URL: ts.URL}})
	n.OnEvent(sampleEvent)
	n.Wait()

	if len(c.bodies) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(c.bodies))
	}
	if c.ctypes[0] != "application/json" {
		t.Errorf("content-type = %q", c.ctypes[0])
	}
	var p Payload
	if err := json.Unmarshal([]byte(c.bodies[0]), &p); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if p.Event != "persist_failed" || p.ControlID != "SOC2-3" || p.To != "Pending Review" {
		t.Errorf("payload = %+v", p)
	}
	if p.Timestamp != "2026-02-24T10:00:00Z" {
		t.Errorf("timestamp = %q", p.Timestamp)
	}
}

func TestOnEvent_TemplateAndFiltering(t *testing.T) {
	c := &capture{}
	ts := httptest.NewServer(c.handler())
	defer ts.Close()

	n := newLoopbackNotifier([]config.Webhook{
		{URL: ts.URL, Events: []string{"persist_failed"}, Template: "{{EVENT}} on {{CONTROL}}: {{MESSAGE}}"},
		{URL: ts.URL, Events: []string{"document_rejected"}},
	})
	n.OnEvent(sampleEvent)
	n.Wait()

	if len(c.bodies) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(c.bodies))
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(c.bodies[0]), &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if want := "persist_failed on SOC2-3: service unavailable"; payload["text"] != want {
		t.Errorf("text = %q, want %q", payload["text"], want)
	}
}

func TestRenderTemplate_AllTags(t *testing.T) {
	p := PayloadFromEvent(sampleEvent)
	out := RenderTemplate("{{EVENT}} {{CONTROL}} {{FROM}} {{TO}} {{MESSAGE}} {{TIMESTAMP}}", p)

	var payload map[string]string
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("not valid JSON: %v", err)
	}
	want := "persist_failed SOC2-3 In Progress Pending Review service unavailable 2026-02-24T10:00:00Z"
	if payload["text"] != want {
		t.Errorf("text = %q, want %q", payload["text"], want)
	}
}

func TestDefaultTemplate(t *testing.T) {
	out := RenderTemplate(DefaultTemplate, PayloadFromEvent(sampleEvent))
	if !strings.Contains(out, "*persist_failed* SOC2-3") {
		t.Errorf("rendered = %s", out)
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://hooks.slack.com/services/T00/B00/xxx", false},
		{"http://example.com/webhook", false},
		{"https://8.8.8.8/hook", false},
		{"ftp://example.com/file", true},
		{"https://127.0.0.1/webhook", true},
		{"https://10.0.0.1/webhook", true},
		{"https://169.254.169.254/latest/meta-data", true},
		{"https://[::1]/hook", true},
		{"https://0x7f000001/hook", true},
		{"https://2130706433/hook", true},
		{"https://0177.0.0.1/hook", true},
		{"https:///nohost", true},
		{"not-a-url", true},
	}
	for _, tc := range tests {
		err := ValidateURL(tc.url)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateURL(%q) err=%v, wantErr=%v", tc.url, err, tc.wantErr)
		}
	}
}

func TestNewNotifier_SkipsInvalidURLs(t *testing.T) {
	n := NewNotifier([]config.Webhook{
		{URL: "https://valid.example.com/hook"},
		{URL: "https://127.0.0.1/bad"},
		{URL: "https://also-valid.example.com/hook", Events: []string{"plan_generated"}},
	}, testLogger())
	if n.Count() != 2 {
		t.Errorf("expected 2 valid webhooks, got %d", n.Count())
	}
	n.SetWebhooks(nil)
	if n.Count() != 0 {
		t.Errorf("expected 0 webhooks after reset, got %d", n.Count())
	}
}

func TestMatchesEvent(t *testing.T) {
	tests := []struct {
		configured []string
		event      string
		want       bool
	}{
		{nil, "status_advanced", true},
		{[]string{"status_advanced"}, "status_advanced", true},
		{[]string{"document_saved"}, "status_advanced", false},
	}
	for _, tc := range tests {
		if got := matchesEvent(tc.configured, tc.event); got != tc.want {
			t.Errorf("matchesEvent(%v, %q) = %v, want %v", tc.configured, tc.event, got, tc.want)
		}
	}
}
