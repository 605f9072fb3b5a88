// Package history provides the durable per-user conversation log. The
// log is append-only: turns are never mutated after creation, and a
// user's turns are totally ordered by insertion. Reads return a bounded
// suffix of the log, oldest first, which is exactly the shape the
// orchestrator needs for context assembly.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/vanilka-ai/bento-assistant/internal/model"
)

// ErrStorageUnavailable indicates the underlying database failed. The
// orchestrator treats it as fatal for the current turn.
var ErrStorageUnavailable = errors.New("turn storage unavailable")

// timeLayout is fixed-width (nanoseconds always padded) so stored
// timestamps compare lexicographically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a SQLite-backed turn store. All public methods are safe for
// concurrent use (SQLite serializes writes; appends for different users
// are independent).
type Store struct {
	db       *sql.DB
	maxTurns int
}

// NewStore opens (or creates) the turn store at the given database
// path. maxTurns bounds how many turns are retained per user; older
// turns are trimmed on append.
func NewStore(dbPath string, maxTurns int) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, maxTurns: maxTurns}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		user_id    TEXT PRIMARY KEY,
		username   TEXT,
		first_seen TEXT NOT NULL,
		last_seen  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turns (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		turn_id    TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		role       TEXT NOT NULL CHECK(role IN ('user', 'assistant')),
		content    TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_turns_user_id ON turns(user_id);
	CREATE INDEX IF NOT EXISTS idx_turns_created_at ON turns(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertUser registers or refreshes a user record. Called on every
// inbound message so the broadcast list stays current.
func (s *Store) UpsertUser(userID, username string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(
		`INSERT INTO users (user_id, username, first_seen, last_seen)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE
		 SET username  = CASE WHEN excluded.username != '' THEN excluded.username ELSE users.username END,
		     last_seen = excluded.last_seen`,
		userID, username, now, now,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert user %s: %v", ErrStorageUnavailable, userID, err)
	}
	return nil
}

// Append persists one turn and trims entries beyond the retention
// window. Fails with ErrStorageUnavailable if the database is down.
func (s *Store) Append(userID string, role model.Role, content string) (model.Turn, error) {
	turn := model.Turn{
		ID:        uuid.New().String(),
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO turns (turn_id, user_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		turn.ID, turn.UserID, string(turn.Role), turn.Content, turn.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return model.Turn{}, fmt.Errorf("%w: append for %s: %v", ErrStorageUnavailable, userID, err)
	}

	// Trim: keep only the last maxTurns turns per user.
	_, err = s.db.Exec(
		`DELETE FROM turns
		 WHERE user_id = ? AND id NOT IN (
			SELECT id FROM turns
			WHERE user_id = ?
			ORDER BY id DESC
			LIMIT ?
		 )`,
		userID, userID, s.maxTurns,
	)
	if err != nil {
		return model.Turn{}, fmt.Errorf("%w: trim for %s: %v", ErrStorageUnavailable, userID, err)
	}

	return turn, nil
}

// RecentTurns returns up to limit most recent turns for a user, oldest
// first. An unknown user yields an empty slice, not an error.
func (s *Store) RecentTurns(userID string, limit int) ([]model.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.Query(
		`SELECT turn_id, user_id, role, content, created_at FROM turns
		 WHERE user_id = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: recent turns for %s: %v", ErrStorageUnavailable, userID, err)
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		var t model.Turn
		var role, createdAt string
		if err := rows.Scan(&t.ID, &t.UserID, &role, &t.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan turn: %v", ErrStorageUnavailable, err)
		}
		t.Role = model.Role(role)
		t.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate turns: %v", ErrStorageUnavailable, err)
	}

	// Rows came back newest first; callers want oldest first.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}

	return turns, nil
}

// ResetHistory deletes all turns for a user. Idempotent; the user
// record itself is kept so broadcasts still reach them.
func (s *Store) ResetHistory(userID string) error {
	_, err := s.db.Exec(`DELETE FROM turns WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("%w: reset history for %s: %v", ErrStorageUnavailable, userID, err)
	}
	return nil
}

// UserIDs returns all known user IDs, for the broadcast command.
func (s *Store) UserIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT user_id FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list users: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan user: %v", ErrStorageUnavailable, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats returns aggregate counts for the admin stats command.
func (s *Store) Stats() (model.Stats, error) {
	var stats model.Stats

	queries := []struct {
		sql  string
		dest *int
	}{
		{`SELECT COUNT(*) FROM users`, &stats.TotalUsers},
		{`SELECT COUNT(*) FROM turns`, &stats.TotalTurns},
		{`SELECT COUNT(*) FROM turns WHERE role = 'user'`, &stats.UserTurns},
		{`SELECT COUNT(DISTINCT user_id) FROM turns WHERE created_at >= ?`, &stats.ActiveToday},
	}

	today := time.Now().UTC().Truncate(24 * time.Hour).Format(timeLayout)
	for _, q := range queries {
		var row *sql.Row
		if q.dest == &stats.ActiveToday {
			row = s.db.QueryRow(q.sql, today)
		} else {
			row = s.db.QueryRow(q.sql)
		}
		if err := row.Scan(q.dest); err != nil {
			return model.Stats{}, fmt.Errorf("%w: stats: %v", ErrStorageUnavailable, err)
		}
	}

	return stats, nil
}
