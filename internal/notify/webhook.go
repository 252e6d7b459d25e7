// Package notify delivers board events to external webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/controldesk/controldesk/internal/board"
	"github.com/controldesk/controldesk/internal/config"
)

// Payload is the JSON body sent to webhook endpoints without a template.
type Payload struct {
	Event     string `json:"event"`
	ControlID string `json:"control_id,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Message   string `json:"message,omitempty"`
	OK        bool   `json:"ok"`
	Timestamp string `json:"timestamp"`
}

// PayloadFromEvent converts a board event.
func PayloadFromEvent(e board.Event) Payload {
	return Payload{
		Event:     string(e.Type),
		ControlID: e.ControlID,
		From:      string(e.From),
		To:        string(e.To),
		Message:   e.Message,
		OK:        e.OK,
		Timestamp: e.Time.UTC().Format(time.RFC3339),
	}
}

// DefaultTemplate is a Slack-friendly rendering of an event.
const DefaultTemplate = "*{{EVENT}}* {{CONTROL}}\n• {{FROM}} → {{TO}}\n• {{MESSAGE}}"

// Notifier sends events to configured webhooks. It implements board.Observer.
type Notifier struct {
	mu       sync.RWMutex
	webhooks []config.Webhook
	client   *http.Client
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewNotifier creates a notifier. Webhooks with invalid URLs (private
// ranges, non-HTTP schemes) are logged and skipped.
func NewNotifier(webhooks []config.Webhook, logger *slog.Logger) *Notifier {
	n := &Notifier{
		client: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				DialContext: safeDialContext,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 2 {
					return errors.New("too many redirects")
				}
				if err := ValidateURL(req.URL.String()); err != nil {
					return fmt.Errorf("redirect to blocked URL: %w", err)
				}
				return nil
			},
		},
		logger: logger,
	}
	n.SetWebhooks(webhooks)
	return n
}

// SetWebhooks replaces the webhook list, applying the same validation as
// NewNotifier.
func (n *Notifier) SetWebhooks(webhooks []config.Webhook) {
	var valid []config.Webhook
	for _, wh := range webhooks {
		if err := ValidateURL(wh.URL); err != nil {
			n.logger.Warn("skipping invalid webhook URL", "url", wh.URL, "error", err)
			continue
		}
		valid = append(valid, wh)
	}
	n.mu.Lock()
	n.webhooks = valid
	n.mu.Unlock()
}

// Count returns the number of active webhooks.
func (n *Notifier) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.webhooks)
}

// OnEvent sends e to every matching webhook without blocking the caller.
func (n *Notifier) OnEvent(e board.Event) {
	payload := PayloadFromEvent(e)
	n.mu.RLock()
	hooks := append([]config.Webhook(nil), n.webhooks...)
	n.mu.RUnlock()

	for _, wh := range hooks {
		if !matchesEvent(wh.Events, payload.Event) {
			continue
		}
		body, err := render(wh.Template, payload)
		if err != nil {
			n.logger.Error("webhook marshal failed", "error", err)
			continue
		}
		n.wg.Add(1)
		go func(url string) {
			defer n.wg.Done()
			n.deliver(context.Background(), url, body)
		}(wh.URL)
	}
}

// Wait blocks until in-flight deliveries finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// RenderTemplate replaces {{TAG}} placeholders in a plain-text template
// and wraps the result as Slack JSON: {"text": "..."}.
func RenderTemplate(tmpl string, p Payload) string {
	r := strings.NewReplacer(
		"{{EVENT}}", p.Event,
		"{{CONTROL}}", p.ControlID,
		"{{FROM}}", p.From,
		"{{TO}}", p.To,
		"{{MESSAGE}}", p.Message,
		"{{TIMESTAMP}}", p.Timestamp,
	)
	payload, _ := json.Marshal(map[string]string{"text": r.Replace(tmpl)})
	return string(payload)
}

func render(tmpl string, p Payload) ([]byte, error) {
	if tmpl != "" {
		return []byte(RenderTemplate(tmpl, p)), nil
	}
	return json.Marshal(p)
}

func (n *Notifier) deliver(ctx context.Context, url string, body []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("webhook request failed", "url", url, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed", "url", url, "error", err)
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		n.logger.Warn("webhook returned error", "url", url, "status", resp.StatusCode)
	}
}

func matchesEvent(configured []string, event string) bool {
	if len(configured) == 0 {
		return true // no filter = all events
	}
	for _, e := range configured {
		if e == event {
			return true
		}
	}
	return false
}
