package control

// Summary holds the dashboard counters.
type Summary struct {
	Total      int `json:"total"`
	HighRisk   int `json:"high_risk"`
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	NotStarted int `json:"not_started"`
}

// Summarize counts controls in a single pass. Callers pass the full
// collection: the counters describe the whole set, not the filtered view.
func Summarize(controls []Control) Summary {
	var s Summary
	for _, c := range controls {
		s.Total++
		if c.Risk == RiskHigh {
			s.HighRisk++
		}
		switch c.Status {
		case StatusApproved:
			s.Completed++
		case StatusInProgress, StatusPendingReview:
			s.InProgress++
		default:
			s.NotStarted++
		}
	}
	return s
}

// Row is a control projected for display.
type Row struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Area        string `json:"area"`
	Type        Type   `json:"type"`
	Risk        Risk   `json:"risk"`
	Status      Status `json:"status"`
	Progress    int    `json:"progress"`
	TypeClass   string `json:"type_class"`
	RiskClass   string `json:"risk_class"`
	StatusClass string `json:"status_class"`
	Action      string `json:"action,omitempty"`
}

// Project maps controls to display rows in the same order.
func Project(controls []Control) []Row {
	rows := make([]Row, len(controls))
	for i, c := range controls {
		rows[i] = Row{
			ID:          c.ID,
			Description: c.Description,
			Area:        c.Area,
			Type:        c.Type,
			Risk:        c.Risk,
			Status:      c.Status,
			Progress:    c.Progress,
			TypeClass:   c.Type.Class(),
			RiskClass:   c.Risk.Class(),
			StatusClass: c.Status.Class(),
			Action:      c.Status.Action(),
		}
	}
	return rows
}
