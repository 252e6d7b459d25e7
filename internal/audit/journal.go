package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/controldesk/controldesk/internal/board"
)

// OnEvent records a board event. It implements board.Observer.
func (s *Store) OnEvent(e board.Event) {
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	s.Log(Entry{
		ID:         uuid.NewString(),
		Timestamp:  ts.UTC().Format(TimeLayout),
		Type:       string(e.Type),
		ControlID:  e.ControlID,
		FromStatus: string(e.From),
		ToStatus:   string(e.To),
		Message:    e.Message,
		OK:         e.OK,
	})
}
