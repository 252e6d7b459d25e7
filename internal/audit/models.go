package audit

// Entry is one journal record of a board event.
type Entry struct {
	ID         string `json:"id"`
	Timestamp  string `json:"timestamp"`
	Type       string `json:"type"`
	ControlID  string `json:"control_id,omitempty"`
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status,omitempty"`
	Message    string `json:"message,omitempty"`
	OK         bool   `json:"ok"`
}

// TypeStat counts journal entries of one event type.
type TypeStat struct {
	Type   string `json:"type"`
	Count  int    `json:"count"`
	Failed int    `json:"failed"`
}

// ControlActivity summarizes the journal for one control.
type ControlActivity struct {
	ControlID  string `json:"control_id"`
	Events     int    `json:"events"`
	Advances   int    `json:"advances"`
	Failures   int    `json:"failures"`
	LastChange string `json:"last_change"`
}
