// Package backend is a local implementation of the Remote Control Service:
// it generates control sets and documents and stores them in SQLite or
// PostgreSQL.
package backend

import (
	"fmt"
	"strings"
	"time"

	"github.com/controldesk/controldesk/internal/control"
	"github.com/controldesk/controldesk/internal/remote"
)

// component is a catalog entry that becomes one control when its
// technologies appear in the tech stack.
type component struct {
	key         string
	matches     []string // lowercase substrings of a tech stack entry; empty = always
	area        string
	description string
	risk        control.Risk
	typ         control.Type
	statement   string
	design      control.TestPlan
	effect      control.TestPlan
}

var catalog = []component{
	{
		key:         "firewall",
		matches:     []string{"firewall", "network", "vpn", "waf"},
		area:        "Network Security",
		description: "Firewall rules are documented, reviewed and monitored for unauthorized changes.",
		risk:        control.RiskHigh,
		typ:         control.TypeAutomatic,
		statement:   "Unreviewed firewall rules can expose internal services to the internet.",
		design: control.TestPlan{
			Steps:    []string{"Obtain the firewall rule review procedure", "Confirm rule changes require an approved ticket"},
			Evidence: []string{"Firewall management policy", "Sample of approved change tickets"},
		},
		effect: control.TestPlan{
			Steps:    []string{"Export the current rule set", "Compare a sample of rules against approved tickets", "Verify the last quarterly review was completed"},
			Evidence: []string{"Rule set export", "Quarterly review sign-off"},
		},
	},
	{
		key:         "cloud",
		matches:     []string{"aws", "azure", "gcp", "google cloud", "cloud"},
		area:        "Cloud Security",
		description: "Cloud infrastructure is monitored for security events and misconfigurations.",
		risk:        control.RiskHigh,
		typ:         control.TypeAutomatic,
		statement:   "Misconfigured cloud resources are a common cause of data exposure.",
		design: control.TestPlan{
			Steps:    []string{"Review the cloud security monitoring design", "Confirm alerts are routed to an owned queue"},
			Evidence: []string{"Monitoring architecture diagram", "Alert routing configuration"},
		},
		effect: control.TestPlan{
			Steps:    []string{"Select a sample of alerts from the period", "Verify each was triaged within the defined SLA"},
			Evidence: []string{"Alert history export", "Triage tickets"},
		},
	},
	{
		key:         "database",
		matches:     []string{"postgres", "mysql", "mariadb", "mongo", "sql", "database", "redis"},
		area:        "Database Security",
		description: "Database access is role based and privileged access is reviewed.",
		risk:        control.RiskMedium,
		typ:         control.TypeManual,
		statement:   "Excessive database privileges allow unauthorized reading or changing of records.",
		design: control.TestPlan{
			Steps:    []string{"Review the database access provisioning procedure", "Confirm roles are defined per job function"},
			Evidence: []string{"Access control policy", "Role definitions"},
		},
		effect: control.TestPlan{
			Steps:    []string{"List accounts with administrative roles", "Trace a sample to approved access requests"},
			Evidence: []string{"Database role export", "Access request approvals"},
		},
	},
	{
		key:         "kubernetes",
		matches:     []string{"kubernetes", "k8s", "eks", "aks", "gke", "openshift"},
		area:        "Container Security",
		description: "Cluster workloads run with least privilege and admission policies are enforced.",
		risk:        control.RiskHigh,
		typ:         control.TypeAutomatic,
		statement:   "Privileged containers can be used to escape to the node and the wider cluster.",
		design: control.TestPlan{
			Steps:    []string{"Review the admission policy set", "Confirm privileged pods are denied by default"},
			Evidence: []string{"Admission controller configuration", "Pod security standard"},
		},
		effect: control.TestPlan{
			Steps:    []string{"List running pods with privileged security contexts", "Verify each has a documented exception"},
			Evidence: []string{"Pod inventory export", "Exception register"},
		},
	},
	{
		key:         "change",
		matches:     []string{"github", "gitlab", "bitbucket", "git"},
		area:        "Change Management",
		description: "Code changes are peer reviewed and merged only through protected branches.",
		risk:        control.RiskMedium,
		typ:         control.TypeAutomatic,
		statement:   "Unreviewed changes can introduce vulnerabilities into production.",
		design: control.TestPlan{
			Steps:    []string{"Review branch protection settings", "Confirm required reviewers are configured"},
			Evidence: []string{"Branch protection configuration"},
		},
		effect: control.TestPlan{
			Steps:    []string{"Select a sample of merged changes", "Verify each had an approving review before merge"},
			Evidence: []string{"Pull request history export"},
		},
	},
	{
		key:         "awareness",
		area:        "Security Awareness",
		description: "Employees complete security awareness training at onboarding and annually.",
		risk:        control.RiskMedium,
		typ:         control.TypeManual,
		statement:   "Untrained staff are more likely to fall for phishing and social engineering.",
		design: control.TestPlan{
			Steps:    []string{"Review the training program and its content", "Confirm completion is tracked"},
			Evidence: []string{"Training policy", "Course materials"},
		},
		effect: control.TestPlan{
			Steps:    []string{"Select a sample of employees", "Verify completion records for the period"},
			Evidence: []string{"Training completion report"},
		},
	},
	{
		key:         "incident",
		area:        "Incident Response",
		description: "An incident response plan is maintained and tested at least annually.",
		risk:        control.RiskHigh,
		typ:         control.TypeManual,
		statement:   "Without a tested plan, incidents take longer to contain and report.",
		design: control.TestPlan{
			Steps:    []string{"Review the incident response plan", "Confirm roles and escalation paths are defined"},
			Evidence: []string{"Incident response plan", "On-call roster"},
		},
		effect: control.TestPlan{
			Steps:    []string{"Obtain the most recent tabletop exercise report", "Verify follow-up actions were tracked to closure"},
			Evidence: []string{"Exercise report", "Action tracker"},
		},
	},
}

// techStep is a technology-specific testing step attached to the
// component it belongs to.
type techStep struct {
	name      string
	matches   []string
	component string
	steps     string
	artifact  control.AutomationArtifact
}

var techSteps = []techStep{
	{
		name: "AWS", matches: []string{"aws"}, component: "cloud",
		steps: "Confirm GuardDuty and CloudTrail are enabled in every region and findings feed the alert queue.",
		artifact: control.AutomationArtifact{
			Description: "List regions where GuardDuty is not enabled",
			Snippet:     "for r in $(aws ec2 describe-regions --query 'Regions[].RegionName' --output text); do\n  aws guardduty list-detectors --region \"$r\" --query 'DetectorIds' --output text | grep -q . || echo \"$r\"\ndone",
		},
	},
	{
		name: "Azure", matches: []string{"azure"}, component: "cloud",
		steps: "Confirm Microsoft Defender for Cloud is enabled on every subscription.",
		artifact: control.AutomationArtifact{
			Description: "Show Defender pricing tiers per resource type",
			Snippet:     "az security pricing list --query '[].{name:name, tier:pricingTier}' -o table",
		},
	},
	{
		name: "GCP", matches: []string{"gcp", "google cloud"}, component: "cloud",
		steps: "Confirm Security Command Center is active and audit logs are retained.",
		artifact: control.AutomationArtifact{
			Description: "List active Security Command Center findings",
			Snippet:     "gcloud scc findings list \"$ORG_ID\" --filter='state=\"ACTIVE\"' --format='table(category,resourceName)'",
		},
	},
	{
		name: "Kubernetes", matches: []string{"kubernetes", "k8s", "eks", "aks", "gke"}, component: "kubernetes",
		steps: "List privileged pods and compare them with the exception register.",
		artifact: control.AutomationArtifact{
			Description: "Find containers running privileged",
			Snippet:     "kubectl get pods -A -o json | jq -r '.items[] | select(any(.spec.containers[]; .securityContext.privileged == true)) | \"\\(.metadata.namespace)/\\(.metadata.name)\"'",
		},
	},
	{
		name: "PostgreSQL", matches: []string{"postgres"}, component: "database",
		steps: "List superuser and login roles and trace them to approved requests.",
		artifact: control.AutomationArtifact{
			Description: "List privileged PostgreSQL roles",
			Snippet:     "SELECT rolname, rolsuper, rolcreaterole, rolcanlogin FROM pg_roles WHERE rolsuper OR rolcreaterole ORDER BY rolname;",
		},
	},
	{
		name: "GitHub", matches: []string{"github"}, component: "change",
		steps: "Verify branch protection requires reviews on the default branch of every repository.",
		artifact: control.AutomationArtifact{
			Description: "Show review requirements on the default branch",
			Snippet:     "gh api repos/$OWNER/$REPO/branches/$(gh repo view $OWNER/$REPO --json defaultBranchRef -q .defaultBranchRef.name)/protection --jq '.required_pull_request_reviews'",
		},
	},
}

// GenerateControls builds the control set for a plan request. Controls
// are numbered <FRAMEWORK>-<n> in catalog order and all start Not Started.
func GenerateControls(req remote.PlanRequest, now time.Time) (remote.Plan, []control.Control) {
	framework := strings.TrimSpace(req.Framework)
	stack := remote.DedupeStack(req.TechStack)
	prefix := idPrefix(framework)
	created := now.UTC()

	var controls []control.Control
	for _, comp := range catalog {
		if !comp.selected(stack) {
			continue
		}
		c := control.Control{
			ID:                  fmt.Sprintf("%s-%d", prefix, len(controls)+1),
			Description:         comp.description,
			Area:                comp.area,
			Type:                comp.typ,
			Risk:                comp.risk,
			RiskStatement:       comp.statement,
			Status:              control.StatusNotStarted,
			Framework:           framework,
			TestOfDesign:        comp.design,
			TestOfEffectiveness: comp.effect,
			CreatedAt:           &created,
		}
		for _, ts := range techSteps {
			if ts.component == comp.key && matchesAny(stack, ts.matches) {
				c.CustomTestingSteps = append(c.CustomTestingSteps, control.CustomTestingStep{
					Technology:         ts.name,
					Steps:              ts.steps,
					AutomationArtifact: ts.artifact,
				})
			}
		}
		controls = append(controls, c.Clone())
	}

	plan := remote.Plan{
		Framework: framework,
		Industry:  strings.TrimSpace(req.Industry),
		TechStack: stack,
		Summary:   planSummary(framework, req.Industry, controls),
	}
	return plan, controls
}

func (c component) selected(stack []string) bool {
	return len(c.matches) == 0 || matchesAny(stack, c.matches)
}

func matchesAny(stack, needles []string) bool {
	for _, s := range stack {
		ls := strings.ToLower(s)
		for _, n := range needles {
			if strings.Contains(ls, n) {
				return true
			}
		}
	}
	return false
}

// idPrefix turns "SOC 2" into "SOC2" and "iso 27001" into "ISO27001".
func idPrefix(framework string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(framework) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "CTRL"
	}
	return b.String()
}

func planSummary(framework, industry string, controls []control.Control) string {
	high := 0
	for _, c := range controls {
		if c.Risk == control.RiskHigh {
			high++
		}
	}
	s := fmt.Sprintf("%d %s controls, %d high risk", len(controls), framework, high)
	if industry = strings.TrimSpace(industry); industry != "" {
		s += " for the " + industry + " industry"
	}
	return s + "."
}
