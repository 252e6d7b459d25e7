package auditcheck

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/controldesk/controldesk/internal/config"
)

func wildcard(bind string) bool {
	return bind == "0.0.0.0" || bind == "::" || bind == "[::]"
}

func checkDashboardExposure(cfg *config.Config, _ Env) []Finding {
	if wildcard(cfg.Server.Bind) {
		return []Finding{{
			Severity:    Critical,
			CheckID:     "NET-001",
			Title:       "Dashboard exposed to all network interfaces",
			Detail:      fmt.Sprintf("server.bind is %q and the dashboard has no login: anyone who can reach the port can advance controls and save documents.", cfg.Server.Bind),
			Remediation: `Set server.bind: "127.0.0.1" and publish through an authenticating proxy`,
		}}
	}
	return nil
}

func checkBackendExposure(cfg *config.Config, _ Env) []Finding {
	if wildcard(cfg.Backend.Bind) {
		return []Finding{{
			Severity:    High,
			CheckID:     "NET-002",
			Title:       "Remote control service exposed to all network interfaces",
			Detail:      fmt.Sprintf("backend.bind is %q: the get-data and save-control endpoints are unauthenticated.", cfg.Backend.Bind),
			Remediation: `Set backend.bind: "127.0.0.1"`,
		}}
	}
	return nil
}

func checkRemoteTransport(cfg *config.Config, _ Env) []Finding {
	u, err := url.Parse(cfg.Remote.URL)
	if err != nil || u.Scheme != "http" {
		return nil
	}
	host := u.Hostname()
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return []Finding{{
		Severity:    Medium,
		CheckID:     "TLS-001",
		Title:       "Remote control service reached over plain HTTP",
		Detail:      fmt.Sprintf("remote.url %s is not loopback; control records and generated policies cross the network unencrypted.", cfg.Remote.URL),
		Remediation: "Use an https:// remote.url",
	}}
}

func checkScanDisabled(cfg *config.Config, _ Env) []Finding {
	if !cfg.Scan.Enabled {
		return []Finding{{
			Severity:    High,
			CheckID:     "SCN-001",
			Title:       "Document scanning disabled",
			Detail:      "Generated policies and procedures are saved without checking for leaked credentials or injected instructions.",
			Remediation: "Set scan.enabled: true",
		}}
	}
	return nil
}

func checkScanThreshold(cfg *config.Config, _ Env) []Finding {
	if cfg.Scan.Enabled && strings.EqualFold(cfg.Scan.BlockSeverity, "critical") {
		return []Finding{{
			Severity:    Low,
			CheckID:     "SCN-002",
			Title:       "Only critical findings block document saves",
			Detail:      "High severity findings such as private keys in a document are flagged but still saved.",
			Remediation: "Set scan.block_severity: high",
		}}
	}
	return nil
}

func checkRateLimitDisabled(cfg *config.Config, _ Env) []Finding {
	if cfg.Server.RateLimit == 0 {
		return []Finding{{
			Severity:    Medium,
			CheckID:     "RL-001",
			Title:       "Generation requests are not rate limited",
			Detail:      "server.rate_limit is 0; a single client can trigger unbounded plan and document generation against the model.",
			Remediation: "Set server.rate_limit to a per-minute budget, e.g. 30",
		}}
	}
	return nil
}

func checkJournalDisabled(cfg *config.Config, _ Env) []Finding {
	if cfg.Journal.Path == "" {
		return []Finding{{
			Severity:    Medium,
			CheckID:     "JRN-001",
			Title:       "Activity journal disabled",
			Detail:      "Status changes and failed saves are not recorded, so there is no trail for auditors.",
			Remediation: "Set journal.path",
		}}
	}
	return nil
}

func checkRetentionDays(cfg *config.Config, _ Env) []Finding {
	if cfg.Journal.Path != "" && cfg.Journal.RetentionDays == 0 {
		return []Finding{{
			Severity:    Low,
			CheckID:     "JRN-002",
			Title:       "Journal kept forever",
			Detail:      "journal.retention_days is 0; the journal database grows without bound.",
			Remediation: "Set journal.retention_days, e.g. 365",
		}}
	}
	return nil
}

func checkWebhookTransport(cfg *config.Config, _ Env) []Finding {
	var findings []Finding
	for _, wh := range cfg.Webhooks {
		if strings.HasPrefix(strings.ToLower(wh.URL), "http://") {
			findings = append(findings, Finding{
				Severity:    Medium,
				CheckID:     "WH-001",
				Title:       "Webhook uses plain HTTP",
				Detail:      fmt.Sprintf("Webhook %s receives control ids and failure messages unencrypted.", wh.URL),
				Remediation: "Use an https:// webhook URL",
			})
		}
	}
	return findings
}

func checkDatabaseCredentials(cfg *config.Config, _ Env) []Finding {
	u, err := url.Parse(cfg.Backend.Database)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") || u.User == nil {
		return nil
	}
	if _, ok := u.User.Password(); !ok {
		return nil
	}
	return []Finding{{
		Severity:    Medium,
		CheckID:     "DB-001",
		Title:       "Database password stored in config",
		Detail:      "backend.database embeds a password; anyone who can read the config can reach the control database.",
		Remediation: "Drop the password from the DSN and use PGPASSWORD or a .pgpass file",
	}}
}

func checkModelKey(cfg *config.Config, env Env) []Finding {
	if cfg.Backend.APIKeyEnv == "" || env == nil {
		return nil
	}
	if v, ok := env(cfg.Backend.APIKeyEnv); ok && v != "" {
		return nil
	}
	return []Finding{{
		Severity:    Info,
		CheckID:     "AI-001",
		Title:       "No model API key",
		Detail:      fmt.Sprintf("%s is not set; the reference backend writes documents from built-in templates.", cfg.Backend.APIKeyEnv),
		Remediation: fmt.Sprintf("Export %s before running controldesk backend", cfg.Backend.APIKeyEnv),
	}}
}

func checkConfigPermissions(path string) []Finding {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if info.Mode().Perm()&0o002 != 0 {
		return []Finding{{
			Severity:    High,
			CheckID:     "CFG-001",
			Title:       "Config file is world-writable",
			Detail:      fmt.Sprintf("%s has mode %s; any local user can change the remote URL or webhooks.", path, info.Mode().Perm()),
			Remediation: fmt.Sprintf("chmod 644 %s", path),
		}}
	}
	return nil
}
