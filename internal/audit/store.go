package audit

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS journal (
	id TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	type TEXT NOT NULL,
	control_id TEXT,
	from_status TEXT,
	to_status TEXT,
	message TEXT,
	ok INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_journal_type ON journal(type);
CREATE INDEX IF NOT EXISTS idx_journal_control ON journal(control_id);
CREATE INDEX IF NOT EXISTS idx_journal_timestamp ON journal(timestamp);
`

// TimeLayout is the fixed-width UTC layout of Entry.Timestamp, so string
// comparison in SQL matches time order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// writeReq is either an entry to insert or a flush marker.
type writeReq struct {
	entry   Entry
	flushed chan struct{}
}

// Store manages the SQLite activity journal.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex // guards closed and sends on writes
	closed bool
	writes chan writeReq
	done   chan struct{}
	logger *slog.Logger

	// Hub receives every entry after it is written.
	Hub *Hub
}

// NewStore opens (or creates) the SQLite journal database.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %w", err)
	}

	// WAL keeps dashboard reads from blocking on the write loop.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("setting WAL mode: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("creating schema: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &Store{
		db:     db,
		writes: make(chan writeReq, 256),
		done:   make(chan struct{}),
		logger: logger,
		Hub:    NewHub(),
	}

	go s.writeLoop()
	return s, nil
}

// Log enqueues an entry for async writing. Entries logged after Close
// are dropped.
func (s *Store) Log(entry Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn("journal closed, dropping entry", "id", entry.ID, "type", entry.Type)
		return
	}
	select {
	case s.writes <- writeReq{entry: entry}:
	default:
		s.logger.Warn("journal write buffer full, dropping entry", "id", entry.ID, "type", entry.Type)
	}
}

// Flush blocks until every entry logged before the call is written.
func (s *Store) Flush() {
	ch := make(chan struct{})
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	s.writes <- writeReq{flushed: ch}
	s.mu.RUnlock()
	<-ch
}

// QueryOpts holds filters for journal queries.
type QueryOpts struct {
	Type      string
	ControlID string
	Since     string // TimeLayout or any prefix of it
	Search    string
	Limit     int
}

// Query returns entries matching the given filters, newest first.
func (s *Store) Query(opts QueryOpts) ([]Entry, error) {
	query := "SELECT id, timestamp, type, control_id, from_status, to_status, message, ok FROM journal WHERE 1=1"
	var args []any

	if opts.Type != "" {
		query += " AND type = ?"
		args = append(args, opts.Type)
	}
	if opts.ControlID != "" {
		query += " AND control_id = ?"
		args = append(args, opts.ControlID)
	}
	if opts.Since != "" {
		query += " AND timestamp >= ?"
		args = append(args, opts.Since)
	}
	if opts.Search != "" {
		like := "%" + opts.Search + "%"
		query += " AND (control_id LIKE ? OR message LIKE ? OR type LIKE ?)"
		args = append(args, like, like, like)
	}

	query += " ORDER BY timestamp DESC, rowid DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	} else {
		query += " LIMIT 50"
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var controlID, from, to, msg sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Type, &controlID, &from, &to, &msg, &e.OK); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		e.ControlID = controlID.String
		e.FromStatus = from.String
		e.ToStatus = to.String
		e.Message = msg.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// QueryStats counts entries per event type.
func (s *Store) QueryStats() ([]TypeStat, error) {
	rows, err := s.db.Query(`SELECT type, COUNT(*), SUM(CASE WHEN ok = 0 THEN 1 ELSE 0 END)
		FROM journal GROUP BY type ORDER BY COUNT(*) DESC, type`)
	if err != nil {
		return nil, fmt.Errorf("querying journal stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []TypeStat
	for rows.Next() {
		var st TypeStat
		if err := rows.Scan(&st.Type, &st.Count, &st.Failed); err != nil {
			return nil, fmt.Errorf("scanning stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// QueryControlActivity returns per-control activity, most recently
// changed first.
func (s *Store) QueryControlActivity(limit int) ([]ControlActivity, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT control_id, COUNT(*),
			SUM(CASE WHEN type = 'status_advanced' THEN 1 ELSE 0 END),
			SUM(CASE WHEN ok = 0 THEN 1 ELSE 0 END),
			MAX(timestamp)
		FROM journal
		WHERE control_id IS NOT NULL AND control_id != ''
		GROUP BY control_id
		ORDER BY MAX(timestamp) DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying control activity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ControlActivity
	for rows.Next() {
		var a ControlActivity
		if err := rows.Scan(&a.ControlID, &a.Events, &a.Advances, &a.Failures, &a.LastChange); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Purge deletes entries older than the cutoff and returns how many were removed.
func (s *Store) Purge(before time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM journal WHERE timestamp < ?", before.UTC().Format(TimeLayout))
	if err != nil {
		return 0, fmt.Errorf("purging journal: %w", err)
	}
	return res.RowsAffected()
}

// Close flushes pending writes and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.writes)
	s.mu.Unlock()
	<-s.done
	s.Hub.Close()
	return s.db.Close()
}

func (s *Store) writeLoop() {
	defer close(s.done)
	for req := range s.writes {
		if req.flushed != nil {
			close(req.flushed)
			continue
		}
		entry := req.entry
		_, err := s.db.Exec(
			`INSERT INTO journal (id, timestamp, type, control_id, from_status, to_status, message, ok) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.Timestamp, entry.Type, entry.ControlID, entry.FromStatus, entry.ToStatus, entry.Message, entry.OK,
		)
		if err != nil {
			s.logger.Error("journal write failed", "id", entry.ID, "error", err)
			continue
		}
		s.Hub.Broadcast(entry)
	}
}
