package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agusx1211/hitlctl/model"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps thread metadata and conversation entries. It also serves
// as a session recorder.
type SQLiteStore struct {
	db      *sql.DB
	now     func() time.Time
	Threads ThreadStore
	Entries EntryStore
}

type sqliteThreadStore struct {
	db *sql.DB
}

type sqliteEntryStore struct {
	db *sql.DB
}

var _ ThreadStore = (*sqliteThreadStore)(nil)
var _ EntryStore = (*sqliteEntryStore)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	must(path != "", "sqlite path must not be empty")
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	s := &SQLiteStore{db: db, now: time.Now}
	s.Threads = &sqliteThreadStore{db: db}
	s.Entries = &sqliteEntryStore{db: db}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveEntries replaces the stored conversation of a thread and refreshes its
// metadata in one transaction. An empty title keeps the stored one.
func (s *SQLiteStore) SaveEntries(ctx context.Context, threadID, title string, entries []model.Entry) error {
	must(threadID != "", "thread id must not be empty")
	now := timeToDB(s.now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO threads (id, title, entry_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = CASE WHEN excluded.title = '' THEN threads.title ELSE excluded.title END,
			entry_count = excluded.entry_count,
			updated_at = excluded.updated_at`,
		threadID, title, len(entries), now, now,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert thread: %w", err)
	}
	if err := replaceEntries(ctx, tx, threadID, entries); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadEntries(ctx context.Context, threadID string) ([]model.Entry, error) {
	return s.Entries.ListByThread(ctx, threadID)
}

func initSchema(db *sql.DB) error {
	for _, stmt := range []string{
		"PRAGMA foreign_keys = ON",
		schemaThreads,
		schemaEntries,
		schemaEntriesIndex,
	} {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const schemaThreads = `
CREATE TABLE IF NOT EXISTS threads (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	entry_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME,
	updated_at DATETIME
)`

const schemaEntries = `
CREATE TABLE IF NOT EXISTS entries (
	id TEXT NOT NULL,
	thread_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	agent_name TEXT NOT NULL DEFAULT '',
	tool_name TEXT NOT NULL DEFAULT '',
	tool_calls_json TEXT NOT NULL DEFAULT '',
	timestamp INTEGER NOT NULL,
	PRIMARY KEY(thread_id, seq),
	FOREIGN KEY(thread_id) REFERENCES threads(id) ON DELETE CASCADE
)`

const schemaEntriesIndex = `
CREATE INDEX IF NOT EXISTS idx_entries_thread ON entries(thread_id, seq)`

func (s *sqliteThreadStore) Upsert(ctx context.Context, t *model.Thread) error {
	must(t != nil && t.ID != "", "thread must have an id")
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (id, title, entry_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			entry_count = excluded.entry_count,
			updated_at = excluded.updated_at`,
		t.ID,
		t.Title,
		t.Entries,
		timeToDB(time.UnixMilli(t.CreatedAt)),
		timeToDB(time.UnixMilli(t.UpdatedAt)),
	)
	return err
}

func (s *sqliteThreadStore) Get(ctx context.Context, id string) (*model.Thread, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, entry_count, created_at, updated_at FROM threads WHERE id = ?`,
		id,
	)
	t, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}
	return t, err
}

// List returns threads, most recently updated first.
func (s *sqliteThreadStore) List(ctx context.Context, limit, offset int) ([]*model.Thread, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, entry_count, created_at, updated_at
		 FROM threads ORDER BY updated_at DESC, id LIMIT ? OFFSET ?`,
		limit,
		offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*model.Thread, 0)
	for rows.Next() {
		v, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *sqliteThreadStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, id)
	return err
}

func (s *sqliteEntryStore) ListByThread(ctx context.Context, threadID string) ([]model.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, agent_name, tool_name, tool_calls_json, timestamp
		 FROM entries WHERE thread_id = ? ORDER BY seq`,
		threadID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Entry, 0)
	for rows.Next() {
		v, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *sqliteEntryStore) CountByThread(ctx context.Context, threadID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE thread_id = ?`, threadID).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ReplaceThreadEntries requires the thread row to exist.
func (s *sqliteEntryStore) ReplaceThreadEntries(ctx context.Context, threadID string, entries []model.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := replaceEntries(ctx, tx, threadID, entries); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return err
	}
	return nil
}

func replaceEntries(ctx context.Context, db execer, threadID string, entries []model.Entry) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM entries WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}
	for i, e := range entries {
		calls, err := e.MarshalToolCalls()
		if err != nil {
			return err
		}
		_, err = db.ExecContext(ctx,
			`INSERT INTO entries (id, thread_id, seq, role, content, agent_name, tool_name, tool_calls_json, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID,
			threadID,
			i,
			string(e.Role),
			e.Content,
			e.AgentName,
			e.ToolName,
			calls,
			e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert entry %d: %w", i, err)
		}
	}
	return nil
}

func scanThread(r rowScanner) (*model.Thread, error) {
	v := &model.Thread{}
	var createdAt string
	var updatedAt string
	if err := r.Scan(&v.ID, &v.Title, &v.Entries, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	created, err := timeFromDB(createdAt)
	if err != nil {
		return nil, err
	}
	updated, err := timeFromDB(updatedAt)
	if err != nil {
		return nil, err
	}
	v.CreatedAt = created.UnixMilli()
	v.UpdatedAt = updated.UnixMilli()
	return v, nil
}

func scanEntry(r rowScanner) (model.Entry, error) {
	var v model.Entry
	var role string
	var calls string
	if err := r.Scan(&v.ID, &role, &v.Content, &v.AgentName, &v.ToolName, &calls, &v.Timestamp); err != nil {
		return model.Entry{}, err
	}
	v.Role = model.Role(role)
	tc, err := model.UnmarshalToolCalls(calls)
	if err != nil {
		return model.Entry{}, err
	}
	v.ToolCalls = tc
	return v, nil
}

// dbTimeLayout is fixed width so stored times sort lexically.
const dbTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func timeToDB(v time.Time) string {
	return v.UTC().Format(dbTimeLayout)
}

func timeFromDB(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
