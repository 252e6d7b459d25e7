package backend

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/controldesk/controldesk/internal/control"
	"github.com/controldesk/controldesk/internal/remote"
)

// ErrNotFound is returned when a control id is not stored.
var ErrNotFound = errors.New("not found")

// Document is a saved policy or procedure.
type Document struct {
	ID        int64               `json:"id"`
	ControlID string              `json:"control_id"`
	Type      remote.DocumentKind `json:"type"`
	Title     string              `json:"title"`
	Content   string              `json:"content"`
	CreatedAt time.Time           `json:"created_at"`
}

// Store persists controls and documents. Controls are kept in insertion
// order.
type Store interface {
	Controls(ctx context.Context) ([]control.Control, error)
	// SaveControl updates an existing control, or inserts it when new.
	SaveControl(ctx context.Context, c control.Control) error
	// ReplaceFramework drops every control of framework and stores controls.
	ReplaceFramework(ctx context.Context, framework string, controls []control.Control) error
	SaveDocument(ctx context.Context, d Document) (int64, error)
	Documents(ctx context.Context, controlID string) ([]Document, error)
	// AddEvidence stores a record and its file body. The control must exist.
	AddEvidence(ctx context.Context, e control.Evidence, content []byte) error
	Evidence(ctx context.Context, controlID string) ([]control.Evidence, error)
	// EvidenceContent returns the record and file body of one evidence id.
	EvidenceContent(ctx context.Context, evidenceID string) (control.Evidence, []byte, error)
	// ReviewEvidence sets the status and review date of a record of controlID.
	ReviewEvidence(ctx context.Context, controlID, evidenceID string, status control.EvidenceStatus, at time.Time) (control.Evidence, error)
	EvidenceCounts(ctx context.Context) (map[control.EvidenceStatus]int, error)
	Close() error
}

// OpenStore opens PostgreSQL when dsn is a postgres:// or postgresql://
// URL and SQLite otherwise.
func OpenStore(ctx context.Context, dsn string) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgresStore(ctx, dsn)
	}
	return NewSQLiteStore(dsn)
}
