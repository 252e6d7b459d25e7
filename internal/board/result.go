package board

import (
	"fmt"
	"time"

	"github.com/controldesk/controldesk/internal/control"
)

// Kind classifies the outcome of a board operation.
type Kind int

const (
	KindNone Kind = iota
	// KindValidationDefault marks a value replaced by a default during
	// normalization. It is recorded in logs and never returned to callers.
	KindValidationDefault
	KindNetworkFailure
	KindNotFound
	KindInvalid
	KindRejected
)

var kindNames = map[Kind]string{
	KindNone:              "none",
	KindValidationDefault: "validation_default",
	KindNetworkFailure:    "network_failure",
	KindNotFound:          "not_found",
	KindInvalid:           "invalid",
	KindRejected:          "rejected",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Result is what every mutating operation hands back to the UI layer.
// Errors from the remote service never escape the board as panics or bare
// errors; they arrive here with a Kind the renderer can turn into a toast.
type Result struct {
	OK      bool             `json:"ok"`
	Kind    Kind             `json:"kind"`
	Message string           `json:"message,omitempty"`
	Control *control.Control `json:"control,omitempty"`
	Content string           `json:"content,omitempty"`
	// Evidence is set by evidence uploads and reviews.
	Evidence *control.Evidence `json:"evidence,omitempty"`
	Err     error            `json:"-"`
}

func ok(msg string, c *control.Control) Result {
	return Result{OK: true, Kind: KindNone, Message: msg, Control: c}
}

func fail(kind Kind, err error, format string, args ...any) Result {
	return Result{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// EventType names a board state change.
type EventType string

const (
	EventControlsLoaded    EventType = "controls_loaded"
	EventStatusAdvanced    EventType = "status_advanced"
	EventPersistFailed     EventType = "persist_failed"
	EventPlanGenerated     EventType = "plan_generated"
	EventDocumentGenerated EventType = "document_generated"
	EventDocumentSaved     EventType = "document_saved"
	EventDocumentRejected  EventType = "document_rejected"
	EventProgressUpdated   EventType = "progress_updated"
	EventEvidenceAdded     EventType = "evidence_added"
	EventEvidenceReviewed  EventType = "evidence_reviewed"
	EventEvidenceRejected  EventType = "evidence_rejected"
)

// EventTypes lists every event type in emission order of a typical session.
var EventTypes = []EventType{
	EventControlsLoaded,
	EventPlanGenerated,
	EventStatusAdvanced,
	EventPersistFailed,
	EventDocumentGenerated,
	EventDocumentSaved,
	EventDocumentRejected,
	EventProgressUpdated,
	EventEvidenceAdded,
	EventEvidenceReviewed,
	EventEvidenceRejected,
}

// Event describes one change to the board.
type Event struct {
	Type      EventType      `json:"type"`
	ControlID string         `json:"control_id,omitempty"`
	From      control.Status `json:"from,omitempty"`
	To        control.Status `json:"to,omitempty"`
	Message   string         `json:"message,omitempty"`
	OK        bool           `json:"ok"`
	Time      time.Time      `json:"time"`
}

// Observer receives board events. OnEvent is called synchronously after
// the board lock is released and must not block for long.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent calls f(e).
func (f ObserverFunc) OnEvent(e Event) { f(e) }
