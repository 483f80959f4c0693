// Package sqlite persists chat threads and applied simulation snapshots.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/flood-atlas-service/internal/domain"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a stored simulation does not exist.
var ErrNotFound = errors.New("record not found")

// SimulationRecord is an applied snapshot as stored.
type SimulationRecord struct {
	ID       int64           `json:"id"`
	Snapshot domain.Snapshot `json:"snapshot"`
}

// Store is a SQLite-backed chat history and simulation log.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens (or creates) the database at path and applies the schema.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chat_sessions (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS chat_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (session_id) REFERENCES chat_sessions(id)
		);

		CREATE TABLE IF NOT EXISTS simulations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			seq INTEGER NOT NULL,
			location TEXT NOT NULL,
			year INTEGER NOT NULL,
			rise_meters REAL NOT NULL,
			source TEXT NOT NULL,
			applied_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_chat_messages_session_id ON chat_messages(session_id);
		CREATE INDEX IF NOT EXISTS idx_simulations_location ON simulations(location);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite not reachable: %w", err)
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO chat_sessions (id, created_at) VALUES (?, ?)`,
		id, domain.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("insert chat session: %w", err)
	}
	return nil
}

func (s *Store) SessionExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM chat_sessions WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query chat session: %w", err)
	}
	return n > 0, nil
}

func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg domain.ChatMessage) error {
	exists, err := s.SessionExists(ctx, sessionID)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrSessionNotFound
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (session_id, role, text, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, string(msg.Role), msg.Text, msg.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

// Messages returns a thread in append order.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	exists, err := s.SessionExists(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrSessionNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, text, created_at FROM chat_messages WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	msgs := []domain.ChatMessage{}
	for rows.Next() {
		var (
			role string
			msg  domain.ChatMessage
			at   int64
		)
		if err := rows.Scan(&role, &msg.Text, &at); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msg.Role = domain.Role(role)
		msg.Timestamp = time.Unix(0, at).UTC()
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// SaveSnapshot appends an applied snapshot and returns its record id.
func (s *Store) SaveSnapshot(ctx context.Context, snap domain.Snapshot) (int64, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO simulations (seq, location, year, rise_meters, source, applied_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.Seq, snap.Inputs.Location, snap.Inputs.Year, snap.Rise, string(snap.Source),
		snap.AppliedAt.UnixNano(), payload)
	if err != nil {
		return 0, fmt.Errorf("insert simulation: %w", err)
	}
	return res.LastInsertId()
}

// OnSnapshot records every applied snapshot. Failures are logged; history is
// best effort and must not block the scene.
func (s *Store) OnSnapshot(ctx context.Context, snap domain.Snapshot) {
	if _, err := s.SaveSnapshot(context.WithoutCancel(ctx), snap); err != nil {
		s.logger.Error("failed to record simulation", "seq", snap.Seq, "error", err)
	}
}

// ListSnapshots returns up to limit records, newest first.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]SimulationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload FROM simulations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query simulations: %w", err)
	}
	defer rows.Close()

	records := []SimulationRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetSnapshot returns a single record by id.
func (s *Store) GetSnapshot(ctx context.Context, id int64) (SimulationRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, payload FROM simulations WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SimulationRecord{}, ErrNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (SimulationRecord, error) {
	var (
		rec     SimulationRecord
		payload []byte
	)
	if err := sc.Scan(&rec.ID, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan simulation: %w", err)
	}
	if err := json.Unmarshal(payload, &rec.Snapshot); err != nil {
		return rec, fmt.Errorf("decode simulation %d: %w", rec.ID, err)
	}
	return rec, nil
}
