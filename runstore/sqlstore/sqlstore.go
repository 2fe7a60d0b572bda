// Package sqlstore implements runstore.Store on database/sql. PostgreSQL
// (lib/pq) and SQLite (modernc.org/sqlite, pure Go) are supported.
//
// Two tables are created on open: <prefix>_runs and <prefix>_turns.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/internal/util"
	"github.com/hupe1980/assistmesh/runstore"
)

// Supported dialects.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Options configures the store.
type Options struct {
	// Dialect is "postgres" or "sqlite".
	Dialect string

	// DSN is the driver connection string; for sqlite a file path or ":memory:".
	DSN string

	// DB reuses an existing pool; Dialect must still be set.
	DB *sql.DB

	// TablePrefix is sanitized to [a-z0-9_] (default "assistmesh").
	TablePrefix string
}

// Store is a SQL backed runstore.Store.
type Store struct {
	db      *sql.DB
	dialect string
	runs    string
	turns   string
	owned   bool

	// appends are serialized so sequence numbers stay gap free
	mu sync.Mutex
}

// Open connects and creates the schema.
func Open(ctx context.Context, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{
		Dialect:     DialectSQLite,
		TablePrefix: "assistmesh",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	switch opts.Dialect {
	case DialectPostgres, DialectSQLite:
	default:
		return nil, fmt.Errorf("sqlstore: unsupported dialect %q (supported: postgres, sqlite)", opts.Dialect)
	}

	db, owned := opts.DB, false
	if db == nil {
		if opts.DSN == "" {
			return nil, fmt.Errorf("sqlstore: dsn is required")
		}

		var err error
		db, err = sql.Open(opts.Dialect, opts.DSN)
		if err != nil {
			return nil, runstore.Unavailable("open", err)
		}
		owned = true

		if opts.Dialect == DialectSQLite {
			// A single writer connection avoids SQLITE_BUSY under concurrent turns.
			db.SetMaxOpenConns(1)
		}
	}

	prefix := util.SanitizeIdentifier(opts.TablePrefix, "t_")
	s := &Store{
		db:      db,
		dialect: opts.Dialect,
		runs:    prefix + "_runs",
		turns:   prefix + "_turns",
		owned:   owned,
	}

	if err := s.initSchema(ctx); err != nil {
		if owned {
			_ = db.Close()
		}
		return nil, err
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id VARCHAR(255) PRIMARY KEY,
    user_id VARCHAR(255) NOT NULL DEFAULT '',
    agent_name VARCHAR(255) NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL
)`, s.runs),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_user ON %s(user_id, created_at)`, s.runs, s.runs),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    run_id VARCHAR(255) NOT NULL,
    seq BIGINT NOT NULL,
    role VARCHAR(32) NOT NULL,
    content TEXT NOT NULL,
    name VARCHAR(255) NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL,
    PRIMARY KEY (run_id, seq)
)`, s.turns),
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return runstore.Unavailable("init schema", err)
		}
	}

	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}

	var (
		b strings.Builder
		n int
	)
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insertRun(ctx context.Context, ex execer, run core.Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err := ex.ExecContext(ctx, s.rebind(fmt.Sprintf(
		`INSERT INTO %s (id, user_id, agent_name, created_at) VALUES (?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`, s.runs)),
		run.ID, run.UserID, run.AgentName, run.CreatedAt.UnixNano())
	return err
}

// CreateRun implements runstore.Store.
func (s *Store) CreateRun(ctx context.Context, run core.Run) error {
	if err := s.insertRun(ctx, s.db, run); err != nil {
		return runstore.Unavailable("create run", err)
	}
	return nil
}

// GetRun implements runstore.Store.
func (s *Store) GetRun(ctx context.Context, runID string) (core.Run, error) {
	var (
		run     core.Run
		created int64
	)

	err := s.db.QueryRowContext(ctx, s.rebind(fmt.Sprintf(
		`SELECT id, user_id, agent_name, created_at FROM %s WHERE id = ?`, s.runs)), runID).
		Scan(&run.ID, &run.UserID, &run.AgentName, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Run{}, runstore.ErrRunNotFound
	}
	if err != nil {
		return core.Run{}, runstore.Unavailable("get run", err)
	}

	run.CreatedAt = time.Unix(0, created).UTC()
	return run, nil
}

// AppendTurn implements runstore.Store. Unknown runs are created lazily.
func (s *Store) AppendTurn(ctx context.Context, runID string, turn core.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return runstore.Unavailable("append", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.insertRun(ctx, tx, core.Run{ID: runID}); err != nil {
		return runstore.Unavailable("append", err)
	}

	var next int64
	if err := tx.QueryRowContext(ctx, s.rebind(fmt.Sprintf(
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM %s WHERE run_id = ?`, s.turns)), runID).Scan(&next); err != nil {
		return runstore.Unavailable("append", err)
	}

	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx, s.rebind(fmt.Sprintf(
		`INSERT INTO %s (run_id, seq, role, content, name, created_at) VALUES (?, ?, ?, ?, ?, ?)`, s.turns)),
		runID, next, turn.Role, turn.Content, turn.Name, ts.UnixNano()); err != nil {
		return runstore.Unavailable("append", err)
	}

	if err := tx.Commit(); err != nil {
		return runstore.Unavailable("append", err)
	}

	return nil
}

// History implements runstore.Store.
func (s *Store) History(ctx context.Context, runID string) ([]core.Turn, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(fmt.Sprintf(
		`SELECT role, content, name, created_at FROM %s WHERE run_id = ? ORDER BY seq`, s.turns)), runID)
	if err != nil {
		return nil, runstore.Unavailable("history", err)
	}
	defer rows.Close()

	turns := []core.Turn{}
	for rows.Next() {
		var (
			t  core.Turn
			ts int64
		)
		if err := rows.Scan(&t.Role, &t.Content, &t.Name, &ts); err != nil {
			return nil, runstore.Unavailable("history", err)
		}
		t.Timestamp = time.Unix(0, ts).UTC()
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, runstore.Unavailable("history", err)
	}

	return turns, nil
}

// ListRunIDs implements runstore.Store.
func (s *Store) ListRunIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(fmt.Sprintf(
		`SELECT id FROM %s WHERE user_id = ? ORDER BY created_at, id`, s.runs)), userID)
	if err != nil {
		return nil, runstore.Unavailable("list runs", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, runstore.Unavailable("list runs", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, runstore.Unavailable("list runs", err)
	}

	return ids, nil
}

// Close implements runstore.Store. Pools passed in through Options.DB stay open.
func (s *Store) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}
