package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/controldesk/controldesk/internal/control"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS controls (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	framework TEXT NOT NULL DEFAULT '',
	data TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	control_id TEXT NOT NULL,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS evidence (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	control_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	file_type TEXT NOT NULL DEFAULT '',
	size INTEGER NOT NULL,
	sha256 TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	uploaded_by TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	upload_date TEXT NOT NULL,
	review_date TEXT,
	content BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_controls_framework ON controls(framework);
CREATE INDEX IF NOT EXISTS idx_documents_control ON documents(control_id);
CREATE INDEX IF NOT EXISTS idx_evidence_control ON evidence(control_id);
`

const sqliteEvidenceColumns = "id, control_id, filename, file_type, size, sha256, description, uploaded_by, status, upload_date, review_date"

// SQLiteStore keeps controls as JSON rows in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening backend db: %w", err)
	}
	// One connection serializes writers; SQLite would otherwise return SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Controls(ctx context.Context) ([]control.Control, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM controls ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("querying controls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []control.Control
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning control: %w", err)
		}
		var c control.Control
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("decoding control: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveControl(ctx context.Context, c control.Control) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding control: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO controls (id, framework, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET framework = excluded.framework, data = excluded.data, updated_at = excluded.updated_at`,
		c.ID, c.Framework, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving control %s: %w", c.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ReplaceFramework(ctx context.Context, framework string, controls []control.Control) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM controls WHERE framework = ?", framework); err != nil {
		return fmt.Errorf("clearing framework %s: %w", framework, err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, c := range controls {
		data, merr := json.Marshal(c)
		if merr != nil {
			return fmt.Errorf("encoding control: %w", merr)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO controls (id, framework, data, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET framework = excluded.framework, data = excluded.data, updated_at = excluded.updated_at`,
			c.ID, c.Framework, string(data), now); err != nil {
			return fmt.Errorf("inserting control %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) controlExists(ctx context.Context, id string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM controls WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("control %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("looking up control: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveDocument(ctx context.Context, d Document) (int64, error) {
	if err := s.controlExists(ctx, d.ControlID); err != nil {
		return 0, err
	}

	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO documents (control_id, type, title, content, created_at) VALUES (?, ?, ?, ?, ?)",
		d.ControlID, string(d.Type), d.Title, d.Content, d.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("saving document: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) Documents(ctx context.Context, controlID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, control_id, type, title, content, created_at FROM documents WHERE control_id = ? ORDER BY id", controlID)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Document
	for rows.Next() {
		var d Document
		var typ, created string
		if err := rows.Scan(&d.ID, &d.ControlID, &typ, &d.Title, &d.Content, &created); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		d.Type = remoteKind(typ)
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddEvidence(ctx context.Context, e control.Evidence, content []byte) error {
	if err := s.controlExists(ctx, e.ControlID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evidence (`+sqliteEvidenceColumns+`, content) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)`,
		e.ID, e.ControlID, e.Filename, e.FileType, e.Size, e.SHA256, e.Description, e.UploadedBy,
		string(e.Status), e.UploadDate.UTC().Format(time.RFC3339Nano), content)
	if err != nil {
		return fmt.Errorf("saving evidence: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Evidence(ctx context.Context, controlID string) ([]control.Evidence, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sqliteEvidenceColumns+" FROM evidence WHERE control_id = ? ORDER BY seq", controlID)
	if err != nil {
		return nil, fmt.Errorf("querying evidence: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []control.Evidence
	for rows.Next() {
		e, err := scanSQLiteEvidence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) EvidenceContent(ctx context.Context, evidenceID string) (control.Evidence, []byte, error) {
	var content []byte
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sqliteEvidenceColumns+", content FROM evidence WHERE id = ?", evidenceID)
	e, err := scanSQLiteEvidence(row, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return control.Evidence{}, nil, fmt.Errorf("evidence %s: %w", evidenceID, ErrNotFound)
	}
	if err != nil {
		return control.Evidence{}, nil, err
	}
	return e, content, nil
}

func (s *SQLiteStore) ReviewEvidence(ctx context.Context, controlID, evidenceID string, status control.EvidenceStatus, at time.Time) (control.Evidence, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE evidence SET status = ?, review_date = ? WHERE id = ? AND control_id = ?",
		string(status), at.UTC().Format(time.RFC3339Nano), evidenceID, controlID)
	if err != nil {
		return control.Evidence{}, fmt.Errorf("updating evidence: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return control.Evidence{}, fmt.Errorf("evidence %s of %s: %w", evidenceID, controlID, ErrNotFound)
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+sqliteEvidenceColumns+" FROM evidence WHERE id = ?", evidenceID)
	return scanSQLiteEvidence(row)
}

func (s *SQLiteStore) EvidenceCounts(ctx context.Context) (map[control.EvidenceStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM evidence GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("counting evidence: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := map[control.EvidenceStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning evidence count: %w", err)
		}
		counts[control.EvidenceStatus(status)] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSQLiteEvidence reads sqliteEvidenceColumns followed by extra.
func scanSQLiteEvidence(row rowScanner, extra ...any) (control.Evidence, error) {
	var e control.Evidence
	var status, uploaded string
	var reviewed sql.NullString
	dest := append([]any{&e.ID, &e.ControlID, &e.Filename, &e.FileType, &e.Size, &e.SHA256,
		&e.Description, &e.UploadedBy, &status, &uploaded, &reviewed}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("scanning evidence: %w", err)
	}
	e.Status = control.EvidenceStatus(status)
	e.UploadDate, _ = time.Parse(time.RFC3339Nano, uploaded)
	if reviewed.Valid {
		if t, err := time.Parse(time.RFC3339Nano, reviewed.String); err == nil {
			e.ReviewDate = &t
		}
	}
	return e, nil
}
