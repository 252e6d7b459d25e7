package control

import (
	"sort"
	"strings"
)

// FilterState is the set of active display constraints. A zero field
// places no constraint on that attribute.
type FilterState struct {
	Status    Status `json:"status,omitempty" yaml:"status,omitempty"`
	Risk      Risk   `json:"risk,omitempty" yaml:"risk,omitempty"`
	Type      Type   `json:"type,omitempty" yaml:"type,omitempty"`
	Search    string `json:"search,omitempty" yaml:"search,omitempty"`
	Framework string `json:"framework,omitempty" yaml:"framework,omitempty"` // exact, case-insensitive
}

// FilterPatch is a partial update of a FilterState. Nil fields are left
// alone; a pointer to the zero value clears the constraint.
type FilterPatch struct {
	Status    *Status `json:"status,omitempty"`
	Risk      *Risk   `json:"risk,omitempty"`
	Type      *Type   `json:"type,omitempty"`
	Search    *string `json:"search,omitempty"`
	Framework *string `json:"framework,omitempty"`
}

// Empty reports whether the state constrains nothing.
func (f FilterState) Empty() bool {
	return f.Status == "" && f.Risk == "" && f.Type == "" &&
		strings.TrimSpace(f.Search) == "" && strings.TrimSpace(f.Framework) == ""
}

// Apply returns f with the non-nil fields of p written over it.
func (f FilterState) Apply(p FilterPatch) FilterState {
	if p.Status != nil {
		f.Status = *p.Status
	}
	if p.Risk != nil {
		f.Risk = *p.Risk
	}
	if p.Type != nil {
		f.Type = *p.Type
	}
	if p.Search != nil {
		f.Search = *p.Search
	}
	if p.Framework != nil {
		f.Framework = strings.TrimSpace(*p.Framework)
	}
	return f
}

// ParseFilter builds a FilterState from UI strings. Empty strings mean no
// constraint; anything else must name an enumerated value.
func ParseFilter(status, risk, typ, search string) (FilterState, error) {
	f := FilterState{Search: search}
	var err error
	if strings.TrimSpace(status) != "" {
		if f.Status, err = ParseStatus(status); err != nil {
			return FilterState{}, err
		}
	}
	if strings.TrimSpace(risk) != "" {
		if f.Risk, err = ParseRisk(risk); err != nil {
			return FilterState{}, err
		}
	}
	if strings.TrimSpace(typ) != "" {
		if f.Type, err = ParseType(typ); err != nil {
			return FilterState{}, err
		}
	}
	return f, nil
}

// Patch converts f into a patch that sets every field, including empty ones.
func (f FilterState) Patch() FilterPatch {
	st, r, t, s, fw := f.Status, f.Risk, f.Type, f.Search, f.Framework
	return FilterPatch{Status: &st, Risk: &r, Type: &t, Search: &s, Framework: &fw}
}

// Matches reports whether c satisfies every active constraint in f.
func (f FilterState) Matches(c Control) bool {
	return f.matcher()(c)
}

func (f FilterState) matcher() func(Control) bool {
	needle := strings.ToLower(strings.TrimSpace(f.Search))
	framework := strings.TrimSpace(f.Framework)
	return func(c Control) bool {
		if f.Status != "" && c.Status != f.Status {
			return false
		}
		if f.Risk != "" && c.Risk != f.Risk {
			return false
		}
		if f.Type != "" && c.Type != f.Type {
			return false
		}
		if framework != "" && !strings.EqualFold(strings.TrimSpace(c.Framework), framework) {
			return false
		}
		if needle == "" {
			return true
		}
		return strings.Contains(strings.ToLower(c.ID), needle) ||
			strings.Contains(strings.ToLower(c.Description), needle) ||
			strings.Contains(strings.ToLower(c.Area), needle)
	}
}

// Filter returns the controls that satisfy f, in their original order.
// The input slice is not modified; the result shares no backing array
// with it.
func Filter(controls []Control, f FilterState) []Control {
	match := f.matcher()
	out := make([]Control, 0, len(controls))
	for _, c := range controls {
		if match(c) {
			out = append(out, c)
		}
	}
	return out
}

// Frameworks returns the distinct non-empty frameworks in controls, sorted.
func Frameworks(controls []Control) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range controls {
		fw := strings.TrimSpace(c.Framework)
		if fw == "" || seen[strings.ToLower(fw)] {
			continue
		}
		seen[strings.ToLower(fw)] = true
		out = append(out, fw)
	}
	sort.Strings(out)
	return out
}
