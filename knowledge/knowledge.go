// Package knowledge implements the vector-backed knowledge base agents
// search for references. A Base pairs an embedder with a vector store and
// owns one collection.
//
// Every embedder or vector store failure surfaces wrapped with
// core.ErrKnowledgeBaseUnavailable so agents can degrade instead of aborting.
package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/embedder"
	"github.com/hupe1980/assistmesh/internal/util"
	"github.com/hupe1980/assistmesh/logging"
	"github.com/hupe1980/assistmesh/vector"
)

// recordNamespace seeds the name-based record ids.
var recordNamespace = uuid.MustParse("6f1c3c52-8f0e-4c6b-9a43-0b7d2f0e5a11")

// Metadata keys added to every chunk.
const (
	MetaChunk  = "chunk"
	MetaChunks = "chunks"
)

// Options configures a Base.
type Options struct {
	// Collection is the vector store collection (default "assistmesh_documents").
	Collection string

	// ChunkSize is the maximum chunk length in runes (default 3000).
	ChunkSize int

	// Concurrency bounds parallel embedding calls during ingest (default 4).
	Concurrency int

	Logger logging.Logger
}

// Base is a knowledge base over one vector store collection.
type Base struct {
	embedder embedder.Embedder
	store    vector.Store
	opts     Options
	logger   logging.Logger
}

// New creates a Base. No I/O happens until the first operation.
func New(emb embedder.Embedder, store vector.Store, optFns ...func(o *Options)) *Base {
	opts := Options{
		Collection:  "assistmesh_documents",
		ChunkSize:   DefaultChunkSize,
		Concurrency: 4,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	return &Base{embedder: emb, store: store, opts: opts, logger: logger}
}

// CollectionName derives the collection used for an llm/embedder/vector store
// combination, sanitized to [a-z0-9_].
func CollectionName(llm, emb, vectorStore string) string {
	return util.SanitizeIdentifier(fmt.Sprintf("auto_rag_documents_%s_%s_%s", llm, emb, vectorStore), "c_")
}

// Collection returns the active collection name.
func (b *Base) Collection() string { return b.opts.Collection }

// RecordID derives the stable id of chunk i of source.
func RecordID(source string, chunk int) string {
	return uuid.NewSHA1(recordNamespace, []byte(source+"#"+strconv.Itoa(chunk))).String()
}

// SourceKey returns the document's idempotency key: its Source, or a
// content hash when Source is empty.
func SourceKey(doc core.Document) string {
	if doc.Source != "" {
		return doc.Source
	}
	sum := sha256.Sum256([]byte(doc.Text))
	return "sha256:" + hex.EncodeToString(sum[:8])
}

func unavailable(op string, err error) error {
	return fmt.Errorf("knowledge %s: %w: %w", op, core.ErrKnowledgeBaseUnavailable, err)
}

// Ingest embeds and stores docs and returns the number of documents written.
// Record ids derive from the source key. With upsert=true the previous records
// of every ingested source are removed first, so a shrinking document leaves no
// stale chunks. With upsert=false sources already present are skipped.
func (b *Base) Ingest(ctx context.Context, docs []core.Document, upsert bool) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	if err := b.store.EnsureCollection(ctx, b.opts.Collection, b.embedder.Dimensions()); err != nil {
		return 0, unavailable("ingest", err)
	}

	pending := docs
	if upsert {
		pending = latestPerSource(docs)
	} else {
		var err error
		if pending, err = b.skipExisting(ctx, docs); err != nil {
			return 0, err
		}
	}

	var records []vector.Record
	for _, doc := range pending {
		source := SourceKey(doc)
		chunks := Chunk(doc.Text, b.opts.ChunkSize)
		for i, text := range chunks {
			metadata := make(map[string]any, len(doc.Metadata)+2)
			for k, v := range doc.Metadata {
				metadata[k] = v
			}
			metadata[MetaChunk] = i
			metadata[MetaChunks] = len(chunks)

			records = append(records, vector.Record{
				ID:       RecordID(source, i),
				Text:     text,
				Source:   source,
				Metadata: metadata,
			})
		}
	}

	if len(records) == 0 {
		return 0, nil
	}

	if err := b.embedRecords(ctx, records); err != nil {
		return 0, err
	}

	if upsert {
		for _, doc := range pending {
			if err := b.store.DeleteBySource(ctx, b.opts.Collection, SourceKey(doc)); err != nil {
				return 0, unavailable("ingest", err)
			}
		}
	}

	if err := b.store.Upsert(ctx, b.opts.Collection, records); err != nil {
		return 0, unavailable("ingest", err)
	}

	b.logger.Info("knowledge.ingest.complete",
		"collection", b.opts.Collection,
		"documents", len(pending),
		"skipped", len(docs)-len(pending),
		"records", len(records),
	)

	return len(pending), nil
}

// latestPerSource keeps the last document of each source key, in order.
func latestPerSource(docs []core.Document) []core.Document {
	last := make(map[string]int, len(docs))
	for i, doc := range docs {
		last[SourceKey(doc)] = i
	}

	out := make([]core.Document, 0, len(last))
	for i, doc := range docs {
		if last[SourceKey(doc)] == i {
			out = append(out, doc)
		}
	}
	return out
}

// skipExisting drops documents whose first chunk is already stored.
func (b *Base) skipExisting(ctx context.Context, docs []core.Document) ([]core.Document, error) {
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = RecordID(SourceKey(doc), 0)
	}

	exists, err := b.store.Exists(ctx, b.opts.Collection, ids)
	if err != nil {
		return nil, unavailable("ingest", err)
	}

	out := make([]core.Document, 0, len(docs))
	seen := make(map[string]bool, len(docs))
	for i, doc := range docs {
		if exists[ids[i]] || seen[ids[i]] {
			continue
		}
		seen[ids[i]] = true
		out = append(out, doc)
	}

	return out, nil
}

// embedRecords fills record vectors with bounded concurrency.
func (b *Base) embedRecords(ctx context.Context, records []vector.Record) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, b.opts.Concurrency))

	for i := range records {
		g.Go(func() error {
			vec, err := b.embedder.Embed(gctx, records[i].Text)
			if err != nil {
				return err
			}
			if err := embedder.CheckDimensions(vec, b.embedder.Dimensions()); err != nil {
				return err
			}
			records[i].Vector = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return unavailable("embed", err)
	}

	return nil
}

// Search returns up to k passages ordered by descending score.
func (b *Base) Search(ctx context.Context, query string, k int) ([]core.Passage, error) {
	if k <= 0 {
		return []core.Passage{}, nil
	}

	vec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, unavailable("search", err)
	}

	matches, err := b.store.Search(ctx, b.opts.Collection, vec, k)
	if err != nil {
		return nil, unavailable("search", err)
	}

	vector.SortMatches(matches)

	passages := make([]core.Passage, 0, len(matches))
	for _, m := range matches {
		passages = append(passages, core.Passage{
			Text:     m.Text,
			Score:    m.Score,
			Source:   m.Source,
			Metadata: m.Metadata,
		})
	}

	return passages, nil
}

// Count returns the number of stored records.
func (b *Base) Count(ctx context.Context) (int, error) {
	n, err := b.store.Count(ctx, b.opts.Collection)
	if err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

// Clear drops the collection. This cannot be undone.
func (b *Base) Clear(ctx context.Context) error {
	if err := b.store.DeleteCollection(ctx, b.opts.Collection); err != nil {
		return unavailable("clear", err)
	}
	b.logger.Warn("knowledge.clear", "collection", b.opts.Collection)
	return nil
}

// Close releases the vector store.
func (b *Base) Close() error { return b.store.Close() }
