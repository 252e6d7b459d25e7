// Package auditcheck reviews a controldesk configuration for risky
// settings. The CLI audit and status commands use it.
package auditcheck

import (
	"github.com/controldesk/controldesk/internal/config"
)

// Severity ranks a finding. Higher is worse.
type Severity int

const (
	Info Severity = iota
	Low
	Medium
	High
	Critical
)

var severityNames = [...]string{"INFO", "LOW", "MEDIUM", "HIGH", "CRITICAL"}

// penalty is the score deducted per finding of each severity.
var penalty = [...]int{Info: 0, Low: 2, Medium: 5, High: 15, Critical: 25}

func (s Severity) String() string {
	if s < Info || s > Critical {
		return "UNKNOWN"
	}
	return severityNames[s]
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Finding is a single issue found during the audit.
type Finding struct {
	Severity    Severity `json:"severity"`
	CheckID     string   `json:"check_id"`
	Title       string   `json:"title"`
	Detail      string   `json:"detail"`
	ConfigPath  string   `json:"config_path,omitempty"`
	Remediation string   `json:"remediation,omitempty"`
}

// Summary holds aggregate counts by severity level.
type Summary struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// Env looks up environment variables; os.LookupEnv in production.
type Env func(key string) (string, bool)

type checkFunc func(*config.Config, Env) []Finding

var checks = []checkFunc{
	checkDashboardExposure,
	checkBackendExposure,
	checkRemoteTransport,
	checkScanDisabled,
	checkScanThreshold,
	checkRateLimitDisabled,
	checkJournalDisabled,
	checkRetentionDays,
	checkWebhookTransport,
	checkDatabaseCredentials,
	checkModelKey,
}

// RunChecks executes all checks against cfg. configPath, when non-empty, is
// recorded on each finding and its file permissions are checked too.
func RunChecks(cfg *config.Config, configPath string, env Env) []Finding {
	var findings []Finding
	for _, check := range checks {
		findings = append(findings, check(cfg, env)...)
	}
	if configPath != "" {
		findings = append(findings, checkConfigPermissions(configPath)...)
		for i := range findings {
			if findings[i].ConfigPath == "" {
				findings[i].ConfigPath = configPath
			}
		}
	}
	return findings
}

// grades maps a minimum score to a letter, best first.
var grades = []struct {
	min   int
	grade string
}{
	{90, "A"},
	{75, "B"},
	{60, "C"},
	{40, "D"},
	{0, "F"},
}

// ComputeHealthScore turns findings into a 0-100 score and a letter grade.
func ComputeHealthScore(findings []Finding) (int, string) {
	score := 100
	for _, f := range findings {
		if f.Severity >= Info && f.Severity <= Critical {
			score -= penalty[f.Severity]
		}
	}
	score = max(score, 0)
	for _, g := range grades {
		if score >= g.min {
			return score, g.grade
		}
	}
	return score, "F"
}

// Summarize counts findings per severity.
func Summarize(findings []Finding) Summary {
	var counts [Critical + 1]int
	for _, f := range findings {
		if f.Severity >= Info && f.Severity <= Critical {
			counts[f.Severity]++
		}
	}
	return Summary{
		Critical: counts[Critical],
		High:     counts[High],
		Medium:   counts[Medium],
		Low:      counts[Low],
		Info:     counts[Info],
	}
}
