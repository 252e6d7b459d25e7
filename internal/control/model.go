// Package control defines the compliance Control record and the pure
// functions the dashboard is built from: normalization, the status
// workflow, filtering, summary counters, row projection and analytics.
// Nothing in this package performs I/O.
package control

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownValue is returned when a string does not name an enumerated value.
var ErrUnknownValue = errors.New("unknown value")

// Risk is the ordered risk rating of a control.
type Risk string

const (
	RiskLow    Risk = "Low"
	RiskMedium Risk = "Medium"
	RiskHigh   Risk = "High"
)

// Risks lists the ratings in ascending order.
var Risks = []Risk{RiskLow, RiskMedium, RiskHigh}

// Status is the workflow state of a control.
type Status string

const (
	StatusNotStarted    Status = "Not Started"
	StatusInProgress    Status = "In Progress"
	StatusPendingReview Status = "Pending Review"
	StatusApproved      Status = "Approved"
)

// Statuses lists the workflow states in order.
var Statuses = []Status{StatusNotStarted, StatusInProgress, StatusPendingReview, StatusApproved}

// Type describes how a control is tested.
type Type string

const (
	TypeAutomatic Type = "Automatic"
	TypeManual    Type = "Manual"
	TypeHybrid    Type = "Hybrid"
)

// Types lists the control types.
var Types = []Type{TypeAutomatic, TypeManual, TypeHybrid}

// Defaults applied when an ingested value is missing or unknown.
const (
	DefaultStatus = StatusNotStarted
	DefaultRisk   = RiskMedium
	DefaultType   = TypeManual
)

// TestPlan is a test of design or test of effectiveness.
type TestPlan struct {
	Steps    []string `json:"steps"`
	Evidence []string `json:"evidence"`
}

// AutomationArtifact is a snippet that automates a testing step.
type AutomationArtifact struct {
	Description string `json:"description"`
	Snippet     string `json:"snippet"`
}

// CustomTestingStep is a technology-specific testing step.
type CustomTestingStep struct {
	Technology         string             `json:"technology"`
	Steps              string             `json:"steps"`
	AutomationArtifact AutomationArtifact `json:"automation_artifact"`
}

// Control is a single compliance requirement.
type Control struct {
	ID                  string              `json:"control_id"`
	Description         string              `json:"control_description"`
	Area                string              `json:"control_area"`
	Type                Type                `json:"control_type"`
	Risk                Risk                `json:"risk_rating"`
	RiskStatement       string              `json:"risk,omitempty"`
	Status              Status              `json:"status"`
	Progress            int                 `json:"progress"`
	Framework           string              `json:"framework,omitempty"`
	TestOfDesign        TestPlan            `json:"test_of_design"`
	TestOfEffectiveness TestPlan            `json:"test_of_effectiveness"`
	CustomTestingSteps  []CustomTestingStep `json:"custom_testing_steps,omitempty"`
	CreatedAt           *time.Time          `json:"created_date,omitempty"`
}

// Clone returns a deep copy so callers can never alias the owner's slices.
func (c Control) Clone() Control {
	out := c
	out.TestOfDesign = c.TestOfDesign.clone()
	out.TestOfEffectiveness = c.TestOfEffectiveness.clone()
	if c.CustomTestingSteps != nil {
		out.CustomTestingSteps = append([]CustomTestingStep(nil), c.CustomTestingSteps...)
	}
	if c.CreatedAt != nil {
		t := *c.CreatedAt
		out.CreatedAt = &t
	}
	return out
}

func (p TestPlan) clone() TestPlan {
	var out TestPlan
	if p.Steps != nil {
		out.Steps = append([]string(nil), p.Steps...)
	}
	if p.Evidence != nil {
		out.Evidence = append([]string(nil), p.Evidence...)
	}
	return out
}

// CloneAll deep-copies a collection.
func CloneAll(controls []Control) []Control {
	if controls == nil {
		return nil
	}
	out := make([]Control, len(controls))
	for i := range controls {
		out[i] = controls[i].Clone()
	}
	return out
}

// canonical folds an enum spelling: lower case, no spaces, dashes or underscores.
func canonical(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch r {
		case ' ', '_', '-':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var riskAliases = map[string]Risk{
	"low":      RiskLow,
	"medium":   RiskMedium,
	"moderate": RiskMedium,
	"high":     RiskHigh,
	"critical": RiskHigh,
}

var statusAliases = map[string]Status{
	"notstarted":    StatusNotStarted,
	"todo":          StatusNotStarted,
	"inprogress":    StatusInProgress,
	"started":       StatusInProgress,
	"pendingreview": StatusPendingReview,
	"pending":       StatusPendingReview,
	"review":        StatusPendingReview,
	"approved":      StatusApproved,
	"completed":     StatusApproved,
	"complete":      StatusApproved,
	"implemented":   StatusApproved,
	"done":          StatusApproved,
}

var typeAliases = map[string]Type{
	"automatic": TypeAutomatic,
	"automated": TypeAutomatic,
	"manual":    TypeManual,
	"hybrid":    TypeHybrid,
}

// ParseRisk parses a risk rating in any common spelling.
func ParseRisk(s string) (Risk, error) {
	if r, ok := riskAliases[canonical(s)]; ok {
		return r, nil
	}
	return "", fmt.Errorf("risk %q: %w", s, ErrUnknownValue)
}

// ParseStatus parses a workflow status in any common spelling.
func ParseStatus(s string) (Status, error) {
	if st, ok := statusAliases[canonical(s)]; ok {
		return st, nil
	}
	return "", fmt.Errorf("status %q: %w", s, ErrUnknownValue)
}

// ParseType parses a control type in any common spelling.
func ParseType(s string) (Type, error) {
	if t, ok := typeAliases[canonical(s)]; ok {
		return t, nil
	}
	return "", fmt.Errorf("type %q: %w", s, ErrUnknownValue)
}

// Valid reports whether r is one of the defined ratings.
func (r Risk) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// Rank orders ratings: Low=1, Medium=2, High=3, unknown=0.
func (r Risk) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	}
	return 0
}

// Valid reports whether s is one of the workflow states.
func (s Status) Valid() bool {
	return s.index() >= 0
}

func (s Status) index() int {
	for i, st := range Statuses {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether t is one of the defined types.
func (t Type) Valid() bool {
	return t == TypeAutomatic || t == TypeManual || t == TypeHybrid
}

const neutralClass = "badge-neutral"

// Class returns the badge class used to render the rating.
func (r Risk) Class() string {
	switch r {
	case RiskHigh:
		return "badge-red"
	case RiskMedium:
		return "badge-yellow"
	case RiskLow:
		return "badge-green"
	}
	return neutralClass
}

// Class returns the badge class used to render the status.
func (s Status) Class() string {
	switch s {
	case StatusNotStarted:
		return "badge-gray"
	case StatusInProgress:
		return "badge-yellow"
	case StatusPendingReview:
		return "badge-blue"
	case StatusApproved:
		return "badge-green"
	}
	return neutralClass
}

// Class returns the badge class used to render the type.
func (t Type) Class() string {
	switch t {
	case TypeAutomatic:
		return "badge-green"
	case TypeManual:
		return "badge-blue"
	case TypeHybrid:
		return "badge-purple"
	}
	return neutralClass
}
