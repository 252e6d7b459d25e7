package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/controldesk/controldesk/internal/control"
	"github.com/controldesk/controldesk/internal/remote"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS controls (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	framework TEXT NOT NULL DEFAULT '',
	data JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
	id BIGSERIAL PRIMARY KEY,
	control_id TEXT NOT NULL,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS evidence (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	control_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	file_type TEXT NOT NULL DEFAULT '',
	size BIGINT NOT NULL,
	sha256 TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	uploaded_by TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	upload_date TIMESTAMPTZ NOT NULL,
	review_date TIMESTAMPTZ,
	content BYTEA NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_controls_framework ON controls(framework);
CREATE INDEX IF NOT EXISTS idx_documents_control ON documents(control_id);
CREATE INDEX IF NOT EXISTS idx_evidence_control ON evidence(control_id);
`

const pgEvidenceColumns = "id, control_id, filename, file_type, size, sha256, description, uploaded_by, status, upload_date, review_date"

const upsertControl = `INSERT INTO controls (id, framework, data) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET framework = EXCLUDED.framework, data = EXCLUDED.data, updated_at = now()`

// PostgresStore keeps controls as JSONB rows in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and creates the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Controls(ctx context.Context) ([]control.Control, error) {
	rows, err := s.pool.Query(ctx, "SELECT data FROM controls ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("querying controls: %w", err)
	}
	defer rows.Close()

	var out []control.Control
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning control: %w", err)
		}
		var c control.Control
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decoding control: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveControl(ctx context.Context, c control.Control) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding control: %w", err)
	}
	if _, err := s.pool.Exec(ctx, upsertControl, c.ID, c.Framework, data); err != nil {
		return fmt.Errorf("saving control %s: %w", c.ID, err)
	}
	return nil
}

func (s *PostgresStore) ReplaceFramework(ctx context.Context, framework string, controls []control.Control) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM controls WHERE framework = $1", framework); err != nil {
			return fmt.Errorf("clearing framework %s: %w", framework, err)
		}
		batch := &pgx.Batch{}
		for _, c := range controls {
			data, err := json.Marshal(c)
			if err != nil {
				return fmt.Errorf("encoding control: %w", err)
			}
			batch.Queue(upsertControl, c.ID, c.Framework, data)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (s *PostgresStore) controlExists(ctx context.Context, id string) error {
	var exists int
	err := s.pool.QueryRow(ctx, "SELECT 1 FROM controls WHERE id = $1", id).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("control %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("looking up control: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveDocument(ctx context.Context, d Document) (int64, error) {
	if err := s.controlExists(ctx, d.ControlID); err != nil {
		return 0, err
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		"INSERT INTO documents (control_id, type, title, content) VALUES ($1, $2, $3, $4) RETURNING id",
		d.ControlID, string(d.Type), d.Title, d.Content).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("saving document: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Documents(ctx context.Context, controlID string) ([]Document, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, control_id, type, title, content, created_at FROM documents WHERE control_id = $1 ORDER BY id", controlID)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		var typ string
		if err := rows.Scan(&d.ID, &d.ControlID, &typ, &d.Title, &d.Content, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		d.Type = remoteKind(typ)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddEvidence(ctx context.Context, e control.Evidence, content []byte) error {
	if err := s.controlExists(ctx, e.ControlID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO evidence (`+pgEvidenceColumns+`, content) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL, $11)`,
		e.ID, e.ControlID, e.Filename, e.FileType, e.Size, e.SHA256, e.Description, e.UploadedBy,
		string(e.Status), e.UploadDate, content)
	if err != nil {
		return fmt.Errorf("saving evidence: %w", err)
	}
	return nil
}

func (s *PostgresStore) Evidence(ctx context.Context, controlID string) ([]control.Evidence, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+pgEvidenceColumns+" FROM evidence WHERE control_id = $1 ORDER BY seq", controlID)
	if err != nil {
		return nil, fmt.Errorf("querying evidence: %w", err)
	}
	defer rows.Close()

	var out []control.Evidence
	for rows.Next() {
		e, err := scanPgEvidence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) EvidenceContent(ctx context.Context, evidenceID string) (control.Evidence, []byte, error) {
	var content []byte
	row := s.pool.QueryRow(ctx, "SELECT "+pgEvidenceColumns+", content FROM evidence WHERE id = $1", evidenceID)
	e, err := scanPgEvidence(row, &content)
	if errors.Is(err, pgx.ErrNoRows) {
		return control.Evidence{}, nil, fmt.Errorf("evidence %s: %w", evidenceID, ErrNotFound)
	}
	if err != nil {
		return control.Evidence{}, nil, err
	}
	return e, content, nil
}

func (s *PostgresStore) ReviewEvidence(ctx context.Context, controlID, evidenceID string, status control.EvidenceStatus, at time.Time) (control.Evidence, error) {
	row := s.pool.QueryRow(ctx,
		"UPDATE evidence SET status = $1, review_date = $2 WHERE id = $3 AND control_id = $4 RETURNING "+pgEvidenceColumns,
		string(status), at, evidenceID, controlID)
	e, err := scanPgEvidence(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return control.Evidence{}, fmt.Errorf("evidence %s of %s: %w", evidenceID, controlID, ErrNotFound)
	}
	return e, err
}

func (s *PostgresStore) EvidenceCounts(ctx context.Context) (map[control.EvidenceStatus]int, error) {
	rows, err := s.pool.Query(ctx, "SELECT status, COUNT(*) FROM evidence GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("counting evidence: %w", err)
	}
	defer rows.Close()

	counts := map[control.EvidenceStatus]int{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning evidence count: %w", err)
		}
		counts[control.EvidenceStatus(status)] = int(n)
	}
	return counts, rows.Err()
}

// scanPgEvidence reads pgEvidenceColumns followed by extra.
func scanPgEvidence(row pgx.Row, extra ...any) (control.Evidence, error) {
	var e control.Evidence
	var status string
	dest := append([]any{&e.ID, &e.ControlID, &e.Filename, &e.FileType, &e.Size, &e.SHA256,
		&e.Description, &e.UploadedBy, &status, &e.UploadDate, &e.ReviewDate}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("scanning evidence: %w", err)
	}
	e.Status = control.EvidenceStatus(status)
	return e, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func remoteKind(s string) remote.DocumentKind {
	k, ok := remote.ParseDocumentKind(s)
	if !ok {
		return remote.KindPolicy
	}
	return k
}
