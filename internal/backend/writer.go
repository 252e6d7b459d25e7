package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/controldesk/controldesk/internal/remote"
)

// WriterConfig configures document generation.
type WriterConfig struct {
	APIKey      string // empty selects the template writer
	BaseURL     string // optional OpenAI-compatible endpoint
	Model       string
	MaxTokens   int
	Temperature float32
}

// Writer produces policy and procedure documents. With an API key it asks
// an OpenAI chat model; without one, or when the model call fails, it
// falls back to a deterministic template.
type Writer struct {
	client *openai.Client
	cfg    WriterConfig
	logger *slog.Logger
}

// NewWriter creates a writer.
func NewWriter(cfg WriterConfig, logger *slog.Logger) *Writer {
	if cfg.Model == "" {
		cfg.Model = openai.GPT3Dot5Turbo
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1500
	}
	w := &Writer{cfg: cfg, logger: logger}
	if cfg.APIKey != "" {
		oc := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		w.client = openai.NewClientWithConfig(oc)
	}
	return w
}

// AI reports whether documents come from a model.
func (w *Writer) AI() bool { return w.client != nil }

// Write returns a markdown document of the given kind for a control area.
func (w *Writer) Write(ctx context.Context, kind remote.DocumentKind, area string, stack []string) string {
	area = strings.TrimSpace(area)
	if area == "" {
		area = "Information Security"
	}
	stack = remote.DedupeStack(stack)
	if w.client != nil {
		content, err := w.complete(ctx, prompt(kind, area, stack))
		if err == nil {
			return content
		}
		w.logger.Warn("document generation failed, using template", "kind", kind, "area", area, "error", err)
	}
	return templateDocument(kind, area, stack)
}

func (w *Writer) complete(ctx context.Context, text string) (string, error) {
	resp, err := w.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       w.cfg.Model,
		MaxTokens:   w.cfg.MaxTokens,
		Temperature: w.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a compliance expert writing clear, actionable security documentation in markdown."},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", errors.New("chat completion returned no content")
	}
	return resp.Choices[0].Message.Content, nil
}

func prompt(kind remote.DocumentKind, area string, stack []string) string {
	tech := "a typical technology stack"
	if len(stack) > 0 {
		tech = strings.Join(stack, ", ")
	}
	if kind == remote.KindProcedure {
		return fmt.Sprintf(`Write an operational %s procedure for an organization running %s.

Include:
1. Purpose and scope
2. Roles and responsibilities
3. Step-by-step procedure, with technology-specific steps where relevant
4. Evidence to retain for auditors
5. Review frequency`, area, tech)
	}
	return fmt.Sprintf(`Write a %s policy for an organization running %s.

Include:
1. Policy statement and purpose
2. Scope and applicability
3. Roles and responsibilities
4. Policy requirements
5. Compliance and enforcement
6. Review and revision schedule`, area, tech)
}

func templateDocument(kind remote.DocumentKind, area string, stack []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s %s\n\n", area, kind.Title())

	b.WriteString("## Purpose\n\n")
	fmt.Fprintf(&b, "This %s defines how the organization manages %s risks.\n\n", strings.ToLower(kind.Title()), strings.ToLower(area))

	b.WriteString("## Scope\n\n")
	if len(stack) > 0 {
		fmt.Fprintf(&b, "It applies to all personnel and to systems built on: %s.\n\n", strings.Join(stack, ", "))
	} else {
		b.WriteString("It applies to all personnel and production systems.\n\n")
	}

	b.WriteString("## Roles and Responsibilities\n\n")
	b.WriteString("- **Control owner**: operates the control and retains evidence.\n")
	b.WriteString("- **Security team**: reviews the control and tracks exceptions.\n")
	b.WriteString("- **Management**: approves this document and accepts residual risk.\n\n")

	if kind == remote.KindProcedure {
		b.WriteString("## Procedure\n\n")
		b.WriteString("1. Identify the systems in scope and their owners.\n")
		b.WriteString("2. Perform the control activity on the defined schedule.\n")
		for i, tech := range stack {
			fmt.Fprintf(&b, "%d. Apply the %s-specific checks and record the output.\n", i+3, tech)
		}
		fmt.Fprintf(&b, "%d. Record exceptions and remediation owners.\n", len(stack)+3)
		fmt.Fprintf(&b, "%d. Retain evidence for the audit period.\n\n", len(stack)+4)
	} else {
		b.WriteString("## Policy Requirements\n\n")
		fmt.Fprintf(&b, "- %s controls are documented, owned and reviewed at least annually.\n", area)
		b.WriteString("- Changes to in-scope systems follow the change management process.\n")
		b.WriteString("- Exceptions are approved by the security team and time limited.\n\n")
		b.WriteString("## Compliance and Enforcement\n\n")
		b.WriteString("Violations are handled under the disciplinary process.\n\n")
	}

	b.WriteString("## Review\n\n")
	b.WriteString("This document is reviewed annually or after a significant change.\n")
	return b.String()
}
