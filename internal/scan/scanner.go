// Package scan checks generated compliance documents for content that must
// not be stored: leaked credentials, prompt injection echoed back by the
// model, exfiltration instructions.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/garagon/aguara"

	"github.com/controldesk/controldesk/rules"
)

// Verdict is the decision for a scanned document.
type Verdict string

const (
	VerdictClean Verdict = "clean"
	VerdictFlag  Verdict = "flag"
	VerdictBlock Verdict = "block"
)

// Finding is a triggered detection rule.
type Finding struct {
	RuleID   string `json:"rule_id"`
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Match    string `json:"match,omitempty"`
}

// Outcome holds the result of scanning one document.
type Outcome struct {
	Verdict  Verdict   `json:"verdict"`
	Findings []Finding `json:"findings,omitempty"`
}

// Blocked reports whether the document must be rejected.
func (o *Outcome) Blocked() bool {
	return o != nil && o.Verdict == VerdictBlock
}

// RuleIDs returns the ids of the triggered rules.
func (o *Outcome) RuleIDs() []string {
	ids := make([]string, 0, len(o.Findings))
	for _, f := range o.Findings {
		ids = append(ids, f.RuleID)
	}
	return ids
}

// Scanner wraps the Aguara engine for in-process document scanning.
type Scanner struct {
	opts       []aguara.Option
	blockLevel aguara.Severity
	rulesDir   string // extracted document rules, removed by Close
}

// ParseSeverity maps a config value to the minimum severity that blocks.
// Empty means high.
func ParseSeverity(s string) (aguara.Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "high":
		return aguara.SeverityHigh, nil
	case "critical":
		return aguara.SeverityCritical, nil
	case "medium":
		return aguara.SeverityMedium, nil
	}
	return 0, fmt.Errorf("unknown severity %q (want critical, high or medium)", s)
}

// NewScanner creates a scanner with Aguara's built-in rules plus the
// embedded document rules. Findings at or above blockLevel block the
// document; medium findings below it flag. If customRulesDir is non-empty,
// rules from that directory are also loaded.
func NewScanner(customRulesDir string, blockLevel aguara.Severity, extraOpts ...aguara.Option) *Scanner {
	s := &Scanner{blockLevel: blockLevel}
	if dir, err := extractRules(); err == nil {
		s.rulesDir = dir
		s.opts = append(s.opts, aguara.WithCustomRules(dir))
	}
	if customRulesDir != "" {
		s.opts = append(s.opts, aguara.WithCustomRules(customRulesDir))
	}
	s.opts = append(s.opts, extraOpts...)
	return s
}

// Scan scans a markdown document and returns a verdict.
func (s *Scanner) Scan(ctx context.Context, content string) (*Outcome, error) {
	result, err := aguara.ScanContent(ctx, content, "document.md", s.opts...)
	if err != nil {
		return nil, fmt.Errorf("aguara scan: %w", err)
	}

	outcome := &Outcome{Verdict: VerdictClean}
	for _, f := range result.Findings {
		outcome.Findings = append(outcome.Findings, Finding{
			RuleID:   f.RuleID,
			Name:     f.RuleName,
			Severity: f.Severity.String(),
			Match:    truncate(f.MatchedText, 200),
		})

		switch {
		case f.Severity >= s.blockLevel:
			outcome.Verdict = VerdictBlock
		case f.Severity >= aguara.SeverityMedium && outcome.Verdict == VerdictClean:
			outcome.Verdict = VerdictFlag
		}
	}
	return outcome, nil
}

// ListRules returns metadata for all loaded rules.
func (s *Scanner) ListRules() []aguara.RuleInfo {
	return aguara.ListRules(s.opts...)
}

// ExplainRule returns detailed information about a specific rule by ID.
func (s *Scanner) ExplainRule(id string) (*aguara.RuleDetail, error) {
	return aguara.ExplainRule(id, s.opts...)
}

// Close removes the extracted rule files.
func (s *Scanner) Close() error {
	if s.rulesDir == "" {
		return nil
	}
	return os.RemoveAll(s.rulesDir)
}

// extractRules writes the embedded rule files to a temp directory, since
// Aguara loads custom rules from disk.
func extractRules() (string, error) {
	dir, err := os.MkdirTemp("", "controldesk-rules-*")
	if err != nil {
		return "", err
	}

	embedded := rules.FS()
	err = fs.WalkDir(embedded, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if ext := filepath.Ext(path); ext != ".yaml" && ext != ".yml" {
			return nil
		}
		data, err := fs.ReadFile(embedded, path)
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, filepath.Base(path)), data, 0o644)
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}
	return dir, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
