// Package pgvector implements vector.Store on PostgreSQL with the pgvector
// extension. Each collection is a table.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/hupe1980/assistmesh/internal/util"
	"github.com/hupe1980/assistmesh/vector"
)

// Options configures the store.
type Options struct {
	// DSN is a lib/pq connection string.
	DSN string

	// DB reuses an existing pool instead of opening DSN.
	DB *sql.DB

	// Schema holds the collection tables (default public).
	Schema string
}

// Store is a PostgreSQL + pgvector backed vector store.
type Store struct {
	db     *sql.DB
	schema string
	owned  bool
}

// New opens the connection pool. sql.Open does not dial, so New performs no
// network I/O.
func New(optFns ...func(o *Options)) (*Store, error) {
	opts := Options{Schema: "public"}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.DB != nil {
		return &Store{db: opts.DB, schema: opts.Schema}, nil
	}

	if opts.DSN == "" {
		return nil, fmt.Errorf("pgvector: dsn is required")
	}

	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgvector: open: %w", err)
	}

	return &Store{db: db, schema: opts.Schema, owned: true}, nil
}

// TableName sanitizes a collection name into a safe SQL identifier.
func TableName(collection string) string {
	return util.SanitizeIdentifier(collection, "c_")
}

func (s *Store) table(collection string) string {
	return pq.QuoteIdentifier(s.schema) + "." + pq.QuoteIdentifier(TableName(collection))
}

// EnsureCollection implements vector.Store.
func (s *Store) EnsureCollection(ctx context.Context, collection string, dimensions int) error {
	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("pgvector: create extension: %w", err)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id         TEXT PRIMARY KEY,
		embedding  vector(%d) NOT NULL,
		content    TEXT NOT NULL DEFAULT '',
		source     TEXT NOT NULL DEFAULT '',
		metadata   JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`, s.table(collection), dimensions)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("pgvector: create table: %w", err)
	}

	return nil
}

// Upsert implements vector.Store.
func (s *Store) Upsert(ctx context.Context, collection string, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgvector: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := fmt.Sprintf(`INSERT INTO %s (id, embedding, content, source, metadata)
		VALUES ($1, $2::vector, $3, $4, $5::jsonb)
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			content   = EXCLUDED.content,
			source    = EXCLUDED.source,
			metadata  = EXCLUDED.metadata`, s.table(collection))

	for _, r := range records {
		metadata := r.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		meta, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("pgvector: metadata for %s: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx, q, r.ID, VectorLiteral(r.Vector), r.Text, r.Source, string(meta)); err != nil {
			return fmt.Errorf("pgvector: upsert %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgvector: commit: %w", err)
	}

	return nil
}

// Search implements vector.Store using cosine distance.
func (s *Store) Search(ctx context.Context, collection string, vec []float32, k int) ([]vector.Match, error) {
	if k <= 0 {
		return []vector.Match{}, nil
	}

	q := fmt.Sprintf(`SELECT id, content, source, metadata, 1 - (embedding <=> $1::vector) AS score
		FROM %s
		ORDER BY embedding <=> $1::vector
		LIMIT $2`, s.table(collection))

	rows, err := s.db.QueryContext(ctx, q, VectorLiteral(vec), k)
	if err != nil {
		if IsUndefinedTable(err) {
			return []vector.Match{}, nil
		}
		return nil, fmt.Errorf("pgvector: query: %w", err)
	}
	defer rows.Close()

	matches := []vector.Match{}
	for rows.Next() {
		var (
			m        vector.Match
			metaJSON []byte
		)
		if err := rows.Scan(&m.ID, &m.Text, &m.Source, &metaJSON, &m.Score); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		m.Metadata = map[string]any{}
		_ = json.Unmarshal(metaJSON, &m.Metadata)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: rows: %w", err)
	}

	return matches, nil
}

// Exists implements vector.Store.
func (s *Store) Exists(ctx context.Context, collection string, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	ok, err := s.tableExists(ctx, collection)
	if err != nil || !ok {
		return out, err
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE id = ANY($1)`, s.table(collection)), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("pgvector: exists: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		out[id] = true
	}

	return out, rows.Err()
}

// Count implements vector.Store.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	ok, err := s.tableExists(ctx, collection)
	if err != nil || !ok {
		return 0, err
	}

	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table(collection))).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgvector: count: %w", err)
	}

	return n, nil
}

// DeleteBySource implements vector.Store.
func (s *Store) DeleteBySource(ctx context.Context, collection, source string) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE source = $1`, s.table(collection))
	if _, err := s.db.ExecContext(ctx, q, source); err != nil {
		if IsUndefinedTable(err) {
			return nil
		}
		return fmt.Errorf("pgvector: delete source %s: %w", source, err)
	}
	return nil
}

// DeleteCollection implements vector.Store.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.table(collection))); err != nil {
		return fmt.Errorf("pgvector: drop table: %w", err)
	}
	return nil
}

// Close implements vector.Store. Pools passed in through Options.DB stay open.
func (s *Store) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// IsUndefinedTable reports whether err is PostgreSQL's undefined_table (42P01).
func IsUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42P01"
}

func (s *Store) tableExists(ctx context.Context, collection string) (bool, error) {
	var name sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT to_regclass($1)::text`, s.table(collection)).Scan(&name)
	if err != nil {
		return false, fmt.Errorf("pgvector: lookup table: %w", err)
	}
	return name.Valid, nil
}

// VectorLiteral formats vec in pgvector's text representation.
func VectorLiteral(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
