// Package store is the durable room store backed by SQLite. It owns the
// room records and the append-only snapshot log; the in-memory registry
// is only a cache on top of it.
package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/pairpad/pairpad/internal/logging"
)

// ErrNotFound is returned when a room id is unknown to the store.
var ErrNotFound = errors.New("room not found")

type Store struct {
	db *sql.DB
}

// Room is the durable record of a collaborative session.
type Room struct {
	ID        string
	Code      string
	Language  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot is one entry in the append-only code history log.
type Snapshot struct {
	ID        int64
	RoomID    string
	Code      string
	CreatedAt time.Time
}

func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	logging.Info().Str("path", dbPath).Msg("store initialized")
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT 'python',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS code_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		code TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_code_snapshots_room_id ON code_snapshots(room_id, id DESC);
	`

	_, err := db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the store is reachable. The server must not start without it.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// Create makes a new room with a generated id and the default code
// template for the language.
func (s *Store) Create(language string) (*Room, error) {
	language = strings.TrimSpace(language)
	if language == "" {
		language = "python"
	}

	// Short ids are easier to share in a URL.
	id := uuid.New().String()[:8]
	now := time.Now().UTC()

	room := &Room{
		ID:        id,
		Code:      DefaultCode(language),
		Language:  language,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.Exec(
		"INSERT INTO rooms (id, code, language, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		room.ID, room.Code, room.Language, room.CreatedAt, room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	logging.Info().Str("room", room.ID).Str("language", room.Language).Msg("room created")
	return room, nil
}

// Load retrieves a room by id. Returns ErrNotFound when the id is unknown.
func (s *Store) Load(id string) (*Room, error) {
	row := s.db.QueryRow(
		"SELECT id, code, language, created_at, updated_at FROM rooms WHERE id = ?",
		id,
	)

	var room Room
	err := row.Scan(&room.ID, &room.Code, &room.Language, &room.CreatedAt, &room.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// Save upserts the mutable fields of a room. Calling it repeatedly with
// the same code is idempotent.
func (s *Store) Save(id, code string) error {
	res, err := s.db.Exec(
		"UPDATE rooms SET code = ?, updated_at = ? WHERE id = ?",
		code, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendSnapshot records one point-in-time code state. The log is
// append-only and never truncated here.
func (s *Store) AppendSnapshot(roomID, code string, ts time.Time) error {
	_, err := s.db.Exec(
		"INSERT INTO code_snapshots (room_id, code, created_at) VALUES (?, ?, ?)",
		roomID, code, ts.UTC(),
	)
	return err
}

// ListSnapshots returns the most recent snapshots for a room, newest first.
func (s *Store) ListSnapshots(roomID string, limit int) ([]Snapshot, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := s.db.Query(
		"SELECT id, room_id, code, created_at FROM code_snapshots WHERE room_id = ? ORDER BY id DESC LIMIT ?",
		roomID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.RoomID, &snap.Code, &snap.CreatedAt); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// Delete removes a room and its snapshot history.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec("DELETE FROM rooms WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	logging.Info().Str("room", id).Msg("room deleted")
	return nil
}

// Stats returns aggregate counts for the stats endpoint.
func (s *Store) Stats() (roomCount, snapshotCount int, err error) {
	if err = s.db.QueryRow("SELECT COUNT(*) FROM rooms").Scan(&roomCount); err != nil {
		return 0, 0, err
	}
	if err = s.db.QueryRow("SELECT COUNT(*) FROM code_snapshots").Scan(&snapshotCount); err != nil {
		return 0, 0, err
	}
	return roomCount, snapshotCount, nil
}
