// Package chromem implements vector.Store with the embedded chromem-go
// database. It is the default local store and needs no external service.
package chromem

import (
	"context"
	"errors"
	"fmt"

	"github.com/philippgille/chromem-go"

	"github.com/hupe1980/assistmesh/vector"
)

// Options configures the store.
type Options struct {
	// Path enables persistence to a directory. Empty keeps data in memory.
	Path string

	// Compress gzips persisted files.
	Compress bool

	// Concurrency bounds parallel document writes.
	Concurrency int
}

// Store is a chromem-go backed vector store.
type Store struct {
	db   *chromem.DB
	opts Options
}

var errNoEmbedding = errors.New("chromem: documents must carry precomputed embeddings")

// New opens an in-memory or persistent chromem database.
func New(optFns ...func(o *Options)) (*Store, error) {
	opts := Options{Concurrency: 4}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Path == "" {
		return &Store{db: chromem.NewDB(), opts: opts}, nil
	}

	db, err := chromem.NewPersistentDB(opts.Path, opts.Compress)
	if err != nil {
		return nil, fmt.Errorf("chromem: open %s: %w", opts.Path, err)
	}

	return &Store{db: db, opts: opts}, nil
}

// embeddingFunc guards against chromem computing embeddings on its own.
func embeddingFunc(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

// EnsureCollection implements vector.Store. chromem infers dimensions from the
// first document.
func (s *Store) EnsureCollection(_ context.Context, collection string, _ int) error {
	if _, err := s.db.GetOrCreateCollection(collection, nil, embeddingFunc); err != nil {
		return fmt.Errorf("chromem: ensure collection %s: %w", collection, err)
	}
	return nil
}

// Upsert implements vector.Store.
func (s *Store) Upsert(ctx context.Context, collection string, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	col, err := s.db.GetOrCreateCollection(collection, nil, embeddingFunc)
	if err != nil {
		return fmt.Errorf("chromem: collection %s: %w", collection, err)
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.ID,
			Metadata:  vector.StringMetadata(r.Payload()),
			Embedding: r.Vector,
			Content:   r.Text,
		}
	}

	if err := col.AddDocuments(ctx, docs, s.opts.Concurrency); err != nil {
		return fmt.Errorf("chromem: upsert: %w", err)
	}

	return nil
}

// Search implements vector.Store.
func (s *Store) Search(ctx context.Context, collection string, vec []float32, k int) ([]vector.Match, error) {
	col := s.db.GetCollection(collection, embeddingFunc)
	if col == nil || k <= 0 {
		return []vector.Match{}, nil
	}

	// chromem rejects result counts above the collection size.
	n := min(k, col.Count())
	if n == 0 {
		return []vector.Match{}, nil
	}

	results, err := col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}

	matches := make([]vector.Match, 0, len(results))
	for _, r := range results {
		payload := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			payload[k] = v
		}
		m := vector.MatchFromPayload(r.ID, float64(r.Similarity), payload)
		if m.Text == "" {
			m.Text = r.Content
		}
		matches = append(matches, m)
	}
	vector.SortMatches(matches)

	return matches, nil
}

// Exists implements vector.Store.
func (s *Store) Exists(ctx context.Context, collection string, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))

	col := s.db.GetCollection(collection, embeddingFunc)
	if col == nil {
		return out, nil
	}

	for _, id := range ids {
		if _, err := col.GetByID(ctx, id); err == nil {
			out[id] = true
		}
	}

	return out, nil
}

// Count implements vector.Store.
func (s *Store) Count(_ context.Context, collection string) (int, error) {
	col := s.db.GetCollection(collection, embeddingFunc)
	if col == nil {
		return 0, nil
	}
	return col.Count(), nil
}

// DeleteBySource implements vector.Store by filtering on the source metadata.
func (s *Store) DeleteBySource(ctx context.Context, collection, source string) error {
	col := s.db.GetCollection(collection, embeddingFunc)
	if col == nil {
		return nil
	}

	if err := col.Delete(ctx, map[string]string{vector.PayloadSource: source}, nil); err != nil {
		return fmt.Errorf("chromem: delete source %s: %w", source, err)
	}
	return nil
}

// DeleteCollection implements vector.Store.
func (s *Store) DeleteCollection(_ context.Context, collection string) error {
	if err := s.db.DeleteCollection(collection); err != nil {
		return fmt.Errorf("chromem: delete collection %s: %w", collection, err)
	}
	return nil
}

// Close implements vector.Store.
func (s *Store) Close() error { return nil }
