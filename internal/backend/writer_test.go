package backend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/controldesk/controldesk/internal/remote"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriter_TemplatePolicy(t *testing.T) {
	w := NewWriter(WriterConfig{}, quietLogger())
	assert.False(t, w.AI())

	doc := w.Write(context.Background(), remote.KindPolicy, "Network Security", []string{"AWS", " aws ", "Cisco"})
	assert.Contains(t, doc, "# Network Security Policy")
	assert.Contains(t, doc, "AWS, Cisco")
	assert.Contains(t, doc, "## Policy Requirements")
	assert.NotContains(t, doc, "## Procedure")
}

func TestWriter_TemplateProcedure(t *testing.T) {
	w := NewWriter(WriterConfig{}, quietLogger())
	doc := w.Write(context.Background(), remote.KindProcedure, "", []string{"Kubernetes"})
	assert.Contains(t, doc, "# Information Security Procedure")
	assert.Contains(t, doc, "3. Apply the Kubernetes-specific checks")
	assert.Contains(t, doc, "4. Record exceptions")
}

type chatRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func fakeOpenAI(t *testing.T, status int, content string, got *chatRequest) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got != nil {
			_ = json.NewDecoder(r.Body).Decode(got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-3.5-turbo",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestWriter_OpenAI(t *testing.T) {
	var got chatRequest
	ts := fakeOpenAI(t, http.StatusOK, "# Generated Policy", &got)
	w := NewWriter(WriterConfig{APIKey: "sk-test", BaseURL: ts.URL + "/v1", MaxTokens: 800}, quietLogger())
	require.True(t, w.AI())

	doc := w.Write(context.Background(), remote.KindPolicy, "Access Control", []string{"Okta"})
	assert.Equal(t, "# Generated Policy", doc)
	assert.Equal(t, "gpt-3.5-turbo", got.Model)
	assert.Equal(t, 800, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[1].Content, "Access Control policy")
	assert.Contains(t, got.Messages[1].Content, "Okta")
}

func TestWriter_OpenAIFailureFallsBack(t *testing.T) {
	ts := fakeOpenAI(t, http.StatusTooManyRequests, "", nil)
	w := NewWriter(WriterConfig{APIKey: "sk-test", BaseURL: ts.URL + "/v1"}, quietLogger())

	doc := w.Write(context.Background(), remote.KindProcedure, "Incident Response", nil)
	assert.Contains(t, doc, "# Incident Response Procedure")
}

func TestWriter_EmptyCompletionFallsBack(t *testing.T) {
	ts := fakeOpenAI(t, http.StatusOK, "   ", nil)
	w := NewWriter(WriterConfig{APIKey: "sk-test", BaseURL: ts.URL + "/v1"}, quietLogger())
	doc := w.Write(context.Background(), remote.KindPolicy, "Cloud Security", nil)
	assert.Contains(t, doc, "# Cloud Security Policy")
}
