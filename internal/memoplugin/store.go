package memoplugin

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store handles memo, user, and role persistence. Grounded on
// internal/scheduler/store.go's sql.Open/migrate shape and
// internal/memory/sqlite.go's schema style.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if necessary) a SQLite database at dbPath and
// runs its schema migration.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memos (
		id TEXT PRIMARY KEY,
		owner_user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		remind_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_memos_owner ON memos(owner_user_id);
	CREATE INDEX IF NOT EXISTS idx_memos_remind_at ON memos(remind_at);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		platform TEXT NOT NULL,
		platform_user_id TEXT NOT NULL,
		UNIQUE(platform, platform_user_id)
	);

	CREATE TABLE IF NOT EXISTS user_roles (
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		PRIMARY KEY (user_id, role),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// newID generates a fresh UUIDv7, falling back to v4 if the clock-based
// generator is unavailable.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

func timeToSQL(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func timeFromSQL(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

// CreateMemo inserts m, assigning an ID and timestamps if unset.
func (s *Store) CreateMemo(m *Memo) error {
	if m.ID == "" {
		m.ID = newID()
	}
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.Status == "" {
		m.Status = MemoStatusOpen
	}

	var remindAt any
	if m.RemindAt != nil {
		remindAt = timeToSQL(*m.RemindAt)
	}

	_, err := s.db.Exec(
		`INSERT INTO memos (id, owner_user_id, title, body, status, remind_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.OwnerUserID, m.Title, m.Body, string(m.Status), remindAt,
		timeToSQL(m.CreatedAt), timeToSQL(m.UpdatedAt),
	)
	return err
}

// UpdateMemo applies a partial update to an existing memo.
func (s *Store) UpdateMemo(req UpdateMemoRequest) (*Memo, error) {
	m, err := s.GetMemo(req.ID)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		m.Title = *req.Title
	}
	if req.Body != nil {
		m.Body = *req.Body
	}
	if req.RemindAt != nil {
		m.RemindAt = req.RemindAt
	}
	m.UpdatedAt = time.Now()

	var remindAt any
	if m.RemindAt != nil {
		remindAt = timeToSQL(*m.RemindAt)
	}

	_, err = s.db.Exec(
		`UPDATE memos SET title = ?, body = ?, remind_at = ?, updated_at = ? WHERE id = ?`,
		m.Title, m.Body, remindAt, timeToSQL(m.UpdatedAt), m.ID,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CompleteMemo marks a memo completed.
func (s *Store) CompleteMemo(id string) (*Memo, error) {
	now := time.Now()
	_, err := s.db.Exec(
		`UPDATE memos SET status = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		string(MemoStatusCompleted), timeToSQL(now), timeToSQL(now), id,
	)
	if err != nil {
		return nil, err
	}
	return s.GetMemo(id)
}

// DeleteMemo removes a memo permanently.
func (s *Store) DeleteMemo(id string) error {
	_, err := s.db.Exec(`DELETE FROM memos WHERE id = ?`, id)
	return err
}

// GetMemo fetches a single memo by ID.
func (s *Store) GetMemo(id string) (*Memo, error) {
	row := s.db.QueryRow(
		`SELECT id, owner_user_id, title, body, status, remind_at, created_at, updated_at, completed_at
		 FROM memos WHERE id = ?`, id)
	return scanMemo(row)
}

// ListMemos returns every memo owned by ownerUserID, optionally
// including completed ones.
func (s *Store) ListMemos(ownerUserID string, includeDone bool) ([]*Memo, error) {
	query := `SELECT id, owner_user_id, title, body, status, remind_at, created_at, updated_at, completed_at
	          FROM memos WHERE owner_user_id = ?`
	if !includeDone {
		query += ` AND status != 'completed'`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.Query(query, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memos []*Memo
	for rows.Next() {
		m, err := scanMemoRows(rows)
		if err != nil {
			return nil, err
		}
		memos = append(memos, m)
	}
	return memos, rows.Err()
}

// DueMemos returns open memos whose remind_at has passed asOf, for the
// scheduler's reminder sweep.
func (s *Store) DueMemos(asOf time.Time) ([]*Memo, error) {
	rows, err := s.db.Query(
		`SELECT id, owner_user_id, title, body, status, remind_at, created_at, updated_at, completed_at
		 FROM memos WHERE status = 'open' AND remind_at IS NOT NULL AND remind_at <= ?`,
		timeToSQL(asOf),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memos []*Memo
	for rows.Next() {
		m, err := scanMemoRows(rows)
		if err != nil {
			return nil, err
		}
		memos = append(memos, m)
	}
	return memos, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemo(row *sql.Row) (*Memo, error) {
	return scanMemoGeneric(row)
}

func scanMemoRows(rows *sql.Rows) (*Memo, error) {
	return scanMemoGeneric(rows)
}

func scanMemoGeneric(s rowScanner) (*Memo, error) {
	var (
		m                        Memo
		status                   string
		remindAt, completedAt    sql.NullString
		createdAt, updatedAt     string
	)
	if err := s.Scan(&m.ID, &m.OwnerUserID, &m.Title, &m.Body, &status, &remindAt,
		&createdAt, &updatedAt, &completedAt); err != nil {
		return nil, err
	}
	m.Status = MemoStatus(status)

	var err error
	m.CreatedAt, err = timeFromSQL(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	m.UpdatedAt, err = timeFromSQL(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if remindAt.Valid {
		t, err := timeFromSQL(remindAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse remind_at: %w", err)
		}
		m.RemindAt = &t
	}
	if completedAt.Valid {
		t, err := timeFromSQL(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		m.CompletedAt = &t
	}
	return &m, nil
}

// ResolveUser looks up a user by (platform, platform_user_id), creating
// one if it doesn't exist yet.
func (s *Store) ResolveUser(platform, platformUserID, name string) (*User, error) {
	row := s.db.QueryRow(
		`SELECT id, name, platform, platform_user_id FROM users WHERE platform = ? AND platform_user_id = ?`,
		platform, platformUserID,
	)
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Platform, &u.PlatformUserID)
	if err == nil {
		return &u, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	u = User{ID: newID(), Name: name, Platform: platform, PlatformUserID: platformUserID}
	_, err = s.db.Exec(
		`INSERT INTO users (id, name, platform, platform_user_id) VALUES (?, ?, ?, ?)`,
		u.ID, u.Name, u.Platform, u.PlatformUserID,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GrantRole records role on userID, idempotently.
func (s *Store) GrantRole(userID, role string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO user_roles (user_id, role) VALUES (?, ?)`,
		userID, role,
	)
	return err
}

// RolesForUser returns every role granted to userID.
func (s *Store) RolesForUser(userID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT role FROM user_roles WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
