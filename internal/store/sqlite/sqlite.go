package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/alphabot-ai/hackorsnooze/internal/model"
	"github.com/alphabot-ai/hackorsnooze/internal/store"

	_ "modernc.org/sqlite"
)

const currentUserKey = "current_user"

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	// Migration 1: credentials and settings
	`
CREATE TABLE IF NOT EXISTS credentials (
	username TEXT PRIMARY KEY,
	name TEXT,
	token TEXT NOT NULL,
	base_url TEXT,
	saved_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`,
	// Migration 2: story cache for offline reading
	`
CREATE TABLE IF NOT EXISTS story_cache (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	author TEXT,
	url TEXT,
	username TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	cached_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_story_cache_created_at ON story_cache(created_at DESC);
`,
	// Migration 3: nullable story timestamps; the API may omit updatedAt
	`
DROP TABLE IF EXISTS story_cache;
CREATE TABLE story_cache (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	author TEXT,
	url TEXT,
	username TEXT,
	created_at INTEGER,
	updated_at INTEGER,
	cached_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_story_cache_created_at ON story_cache(created_at DESC);
`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

func (s *Store) SaveCredentials(ctx context.Context, creds store.Credentials) error {
	if strings.TrimSpace(creds.Username) == "" || creds.Token == "" {
		return errors.New("credentials need a username and a token")
	}
	if creds.SavedAt.IsZero() {
		creds.SavedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO credentials (username, name, token, base_url, saved_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(username) DO UPDATE SET
	name = excluded.name,
	token = excluded.token,
	base_url = excluded.base_url,
	saved_at = excluded.saved_at
`, creds.Username, nullIfEmpty(creds.Name), creds.Token, nullIfEmpty(creds.BaseURL), creds.SavedAt.Unix())
	return err
}

func (s *Store) GetCredentials(ctx context.Context, username string) (store.Credentials, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT username, name, token, base_url, saved_at
FROM credentials
WHERE username = ?
`, username)
	return scanCredentials(row)
}

func (s *Store) ListCredentials(ctx context.Context) ([]store.Credentials, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT username, name, token, base_url, saved_at
FROM credentials
ORDER BY username
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Credentials
	for rows.Next() {
		creds, err := scanCredentials(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, creds)
	}
	return out, rows.Err()
}

func (s *Store) DeleteCredentials(ctx context.Context, username string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE username = ?`, username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM settings WHERE key = ? AND value = ?`, currentUserKey, username); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) CurrentCredentials(ctx context.Context) (store.Credentials, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT c.username, c.name, c.token, c.base_url, c.saved_at
FROM settings st
JOIN credentials c ON c.username = st.value
WHERE st.key = ?
`, currentUserKey)
	return scanCredentials(row)
}

func (s *Store) SetCurrent(ctx context.Context, username string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM credentials WHERE username = ?`, username).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO settings (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value
`, currentUserKey, username)
	return err
}

func (s *Store) ClearCurrent(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, currentUserKey)
	return err
}

var storyColumns = []string{"id", "title", "author", "url", "username", "created_at", "updated_at"}

// CacheStories upserts stories by id.
func (s *Store) CacheStories(ctx context.Context, stories []model.Story) error {
	if len(stories) == 0 {
		return nil
	}
	now := time.Now().UnixNano()
	q := sq.Insert("story_cache").Columns(append(storyColumns, "cached_at")...)
	for _, st := range model.Dedupe(stories) {
		q = q.Values(st.ID, st.Title, nullIfEmpty(st.Author), nullIfEmpty(st.URL), nullIfEmpty(st.Username),
			nullIfZero(st.CreatedAt), nullIfZero(st.UpdatedAt), now)
	}
	q = q.Suffix(`ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	author = excluded.author,
	url = excluded.url,
	username = excluded.username,
	created_at = excluded.created_at,
	updated_at = excluded.updated_at,
	cached_at = excluded.cached_at`)

	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// ListCachedStories returns cached stories newest first. limit <= 0 returns
// all of them.
func (s *Store) ListCachedStories(ctx context.Context, limit int) ([]model.Story, error) {
	q := sq.Select(storyColumns...).From("story_cache").OrderBy("created_at DESC", "id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Story
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) GetCachedStory(ctx context.Context, id string) (model.Story, error) {
	query, args, err := sq.Select(storyColumns...).From("story_cache").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return model.Story{}, err
	}
	return scanStory(s.db.QueryRowContext(ctx, query, args...))
}

func (s *Store) DeleteCachedStory(ctx context.Context, id string) error {
	query, args, err := sq.Delete("story_cache").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

type scanner interface{ Scan(dest ...any) error }

func scanCredentials(row scanner) (store.Credentials, error) {
	var c store.Credentials
	var name, baseURL sql.NullString
	var saved int64
	if err := row.Scan(&c.Username, &name, &c.Token, &baseURL, &saved); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Credentials{}, store.ErrNotFound
		}
		return store.Credentials{}, err
	}
	c.Name = name.String
	c.BaseURL = baseURL.String
	c.SavedAt = time.Unix(saved, 0)
	return c, nil
}

func scanStory(row scanner) (model.Story, error) {
	var s model.Story
	var author, url, username sql.NullString
	var created, updated sql.NullInt64
	if err := row.Scan(&s.ID, &s.Title, &author, &url, &username, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Story{}, store.ErrNotFound
		}
		return model.Story{}, err
	}
	s.Author = author.String
	s.URL = url.String
	s.Username = username.String
	s.CreatedAt = timeFromNull(created)
	s.UpdatedAt = timeFromNull(updated)
	return s, nil
}

// nullIfZero stores t as unix nanoseconds, or NULL for the zero time.
func nullIfZero(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixNano()
}

func timeFromNull(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(0, v.Int64).UTC()
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
