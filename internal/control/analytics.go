package control

import (
	"math"
	"sort"
)

// Analytics summarizes implementation progress across a collection.
type Analytics struct {
	ComplianceScore float64          `json:"compliance_score"`
	Total           int              `json:"total_controls"`
	Approved        int              `json:"approved_controls"`
	RiskCounts      map[Risk]int     `json:"risk_counts"`
	RiskPercentages map[Risk]float64 `json:"risk_percentages"`
	ByArea          []GroupScore     `json:"by_area"`
	ByFramework     []GroupScore     `json:"by_framework,omitempty"`
	Timeline        []TimelineBucket `json:"timeline,omitempty"`
	StatusCounts    map[Status]int   `json:"status_counts"`
}

// GroupScore is the approval rate of one area or framework.
type GroupScore struct {
	Name     string  `json:"name"`
	Total    int     `json:"total"`
	Approved int     `json:"approved"`
	Score    float64 `json:"score"`
}

// TimelineBucket counts controls created in one month.
type TimelineBucket struct {
	Month    string `json:"month"` // YYYY-MM
	Total    int    `json:"total"`
	Approved int    `json:"approved"`
}

// Gap is a control that is not yet approved.
type Gap struct {
	ID          string `json:"control_id"`
	Area        string `json:"control_area"`
	Description string `json:"control_description"`
	Framework   string `json:"framework,omitempty"`
	Risk        Risk   `json:"risk_rating"`
	Status      Status `json:"status"`
}

// DefaultGapLimit is the number of gaps reported when no limit is given.
const DefaultGapLimit = 10

// Analyze computes the analytics for controls.
func Analyze(controls []Control) Analytics {
	a := Analytics{
		RiskCounts:      map[Risk]int{RiskHigh: 0, RiskMedium: 0, RiskLow: 0},
		RiskPercentages: map[Risk]float64{RiskHigh: 0, RiskMedium: 0, RiskLow: 0},
		StatusCounts:    make(map[Status]int, len(Statuses)),
	}
	areas := newGrouper()
	frameworks := newGrouper()
	months := map[string]*TimelineBucket{}

	for _, c := range controls {
		a.Total++
		approved := c.Status == StatusApproved
		if approved {
			a.Approved++
		}
		if _, ok := a.RiskCounts[c.Risk]; ok {
			a.RiskCounts[c.Risk]++
		}
		a.StatusCounts[c.Status]++
		areas.add(c.Area, approved)
		if c.Framework != "" {
			frameworks.add(c.Framework, approved)
		}
		if c.CreatedAt != nil {
			key := c.CreatedAt.Format("2006-01")
			b, ok := months[key]
			if !ok {
				b = &TimelineBucket{Month: key}
				months[key] = b
			}
			b.Total++
			if approved {
				b.Approved++
			}
		}
	}

	a.ComplianceScore = percent(a.Approved, a.Total)
	assessed := 0
	for _, n := range a.RiskCounts {
		assessed += n
	}
	for r, n := range a.RiskCounts {
		a.RiskPercentages[r] = percent(n, assessed)
	}
	a.ByArea = areas.scores()
	a.ByFramework = frameworks.scores()

	for _, b := range months {
		a.Timeline = append(a.Timeline, *b)
	}
	sort.Slice(a.Timeline, func(i, j int) bool { return a.Timeline[i].Month < a.Timeline[j].Month })
	return a
}

// Gaps returns up to limit controls that are not Approved, in collection
// order. A limit <= 0 uses DefaultGapLimit.
func Gaps(controls []Control, limit int) []Gap {
	if limit <= 0 {
		limit = DefaultGapLimit
	}
	var gaps []Gap
	for _, c := range controls {
		if c.Status == StatusApproved {
			continue
		}
		gaps = append(gaps, Gap{
			ID:          c.ID,
			Area:        c.Area,
			Description: c.Description,
			Framework:   c.Framework,
			Risk:        c.Risk,
			Status:      c.Status,
		})
		if len(gaps) == limit {
			break
		}
	}
	return gaps
}

// percent returns n/total as a percentage rounded to one decimal.
func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}

type grouper struct {
	order  []string
	groups map[string]*GroupScore
}

func newGrouper() *grouper {
	return &grouper{groups: map[string]*GroupScore{}}
}

func (g *grouper) add(name string, approved bool) {
	if name == "" {
		name = "Unassigned"
	}
	gs, ok := g.groups[name]
	if !ok {
		gs = &GroupScore{Name: name}
		g.groups[name] = gs
		g.order = append(g.order, name)
	}
	gs.Total++
	if approved {
		gs.Approved++
	}
}

func (g *grouper) scores() []GroupScore {
	if len(g.order) == 0 {
		return nil
	}
	out := make([]GroupScore, 0, len(g.order))
	for _, name := range g.order {
		gs := *g.groups[name]
		gs.Score = percent(gs.Approved, gs.Total)
		out = append(out, gs)
	}
	return out
}
