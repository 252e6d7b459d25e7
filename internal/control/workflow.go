package control

import (
	"errors"
	"fmt"
)

// ErrTerminal is returned when advancing a control that is already Approved.
var ErrTerminal = errors.New("control is already approved")

// ErrProgress is returned for a progress update that would leave 0..100,
// lower the current value, or claim completion before approval.
var ErrProgress = errors.New("invalid progress")

// Next returns the state that follows s. The second result is false for
// Approved and for values outside the workflow.
func (s Status) Next() (Status, bool) {
	i := s.index()
	if i < 0 || i == len(Statuses)-1 {
		return "", false
	}
	return Statuses[i+1], true
}

// Action is the label of the single user action available in state s.
func (s Status) Action() string {
	switch s {
	case StatusNotStarted:
		return "Start Working"
	case StatusInProgress:
		return "Submit for Review"
	case StatusPendingReview:
		return "Approve"
	}
	return ""
}

// progressFloor is the minimum progress implied by reaching a state.
func (s Status) progressFloor() int {
	switch s {
	case StatusInProgress, StatusPendingReview:
		return 50
	case StatusApproved:
		return 100
	}
	return 0
}

// Advance moves c exactly one step along the workflow and raises its
// progress to the floor of the new state. Progress is never lowered.
func Advance(c *Control) error {
	next, ok := c.Status.Next()
	if !ok {
		if c.Status == StatusApproved {
			return ErrTerminal
		}
		return fmt.Errorf("advance %s: status %q: %w", c.ID, c.Status, ErrUnknownValue)
	}
	c.Status = next
	if floor := next.progressFloor(); c.Progress < floor {
		c.Progress = floor
	}
	return nil
}

// SetProgress raises c's progress to pct without touching its status.
// Only Approved controls may sit at 100.
func SetProgress(c *Control, pct int) error {
	switch {
	case pct < 0 || pct > 100:
		return fmt.Errorf("%w: %d is outside 0..100", ErrProgress, pct)
	case pct < c.Progress:
		return fmt.Errorf("%w: %d is below current %d", ErrProgress, pct, c.Progress)
	case pct == 100 && c.Status != StatusApproved:
		return fmt.Errorf("%w: 100 requires approval", ErrProgress)
	}
	c.Progress = pct
	return nil
}
