// Package pinecone implements vector.Store on a Pinecone index. Collections
// map to namespaces inside one index; the index itself is provisioned out of
// band.
package pinecone

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hupe1980/assistmesh/vector"
)

// Options configures the store.
type Options struct {
	APIKey string

	// IndexName is resolved to its data-plane host on first use.
	IndexName string

	// IndexHost skips the DescribeIndex lookup when set.
	IndexHost string

	// ControlHost overrides the control-plane API host.
	ControlHost string
}

// Store is a Pinecone backed vector store.
type Store struct {
	client *pinecone.Client
	opts   Options

	mu    sync.Mutex
	host  string
	conns map[string]*pinecone.IndexConnection
}

// New creates a client without contacting Pinecone.
func New(optFns ...func(o *Options)) (*Store, error) {
	opts := Options{IndexName: "assistmesh"}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.APIKey == "" {
		return nil, errors.New("pinecone: api key is required")
	}

	params := pinecone.NewClientParams{ApiKey: opts.APIKey}
	if opts.ControlHost != "" {
		params.Host = opts.ControlHost
	}

	client, err := pinecone.NewClient(params)
	if err != nil {
		return nil, fmt.Errorf("pinecone: create client: %w", err)
	}

	return &Store{
		client: client,
		opts:   opts,
		host:   opts.IndexHost,
		conns:  make(map[string]*pinecone.IndexConnection),
	}, nil
}

// conn returns the cached connection for a namespace, resolving the index
// host on first use.
func (s *Store) conn(ctx context.Context, namespace string) (*pinecone.IndexConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.conns[namespace]; ok {
		return c, nil
	}

	if s.host == "" {
		idx, err := s.client.DescribeIndex(ctx, s.opts.IndexName)
		if err != nil {
			return nil, fmt.Errorf("pinecone: describe index %s: %w", s.opts.IndexName, err)
		}
		s.host = idx.Host
	}

	c, err := s.client.Index(pinecone.NewIndexConnParams{Host: s.host, Namespace: namespace})
	if err != nil {
		return nil, fmt.Errorf("pinecone: connect index: %w", err)
	}
	s.conns[namespace] = c

	return c, nil
}

// EnsureCollection implements vector.Store. Namespaces are implicit; this
// only verifies the index is reachable.
func (s *Store) EnsureCollection(ctx context.Context, collection string, _ int) error {
	_, err := s.conn(ctx, collection)
	return err
}

// Upsert implements vector.Store.
func (s *Store) Upsert(ctx context.Context, collection string, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	c, err := s.conn(ctx, collection)
	if err != nil {
		return err
	}

	vectors := make([]*pinecone.Vector, len(records))
	for i, r := range records {
		metadata, err := toMetadata(r.Payload())
		if err != nil {
			return fmt.Errorf("pinecone: metadata for %s: %w", r.ID, err)
		}
		vectors[i] = &pinecone.Vector{Id: r.ID, Values: r.Vector, Metadata: metadata}
	}

	if _, err := c.UpsertVectors(ctx, vectors); err != nil {
		return fmt.Errorf("pinecone: upsert: %w", err)
	}

	return nil
}

// Search implements vector.Store.
func (s *Store) Search(ctx context.Context, collection string, vec []float32, k int) ([]vector.Match, error) {
	if k <= 0 {
		return []vector.Match{}, nil
	}

	c, err := s.conn(ctx, collection)
	if err != nil {
		return nil, err
	}

	resp, err := c.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vec,
		TopK:            uint32(k),
		IncludeMetadata: true,
	})
	if err != nil {
		// Namespaces appear with their first vector; one that was never written
		// is an empty collection, not an outage.
		if missing, _ := s.namespaceMissing(ctx, c, collection); missing {
			return []vector.Match{}, nil
		}
		return nil, fmt.Errorf("pinecone: query: %w", err)
	}

	matches := make([]vector.Match, 0, len(resp.Matches))
	for _, sv := range resp.Matches {
		if sv == nil || sv.Vector == nil {
			continue
		}
		matches = append(matches, vector.MatchFromPayload(sv.Vector.Id, float64(sv.Score), fromMetadata(sv.Vector.Metadata)))
	}
	vector.SortMatches(matches)

	return matches, nil
}

// Exists implements vector.Store.
func (s *Store) Exists(ctx context.Context, collection string, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	c, err := s.conn(ctx, collection)
	if err != nil {
		return nil, err
	}

	resp, err := c.FetchVectors(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("pinecone: fetch: %w", err)
	}
	for id := range resp.Vectors {
		out[id] = true
	}

	return out, nil
}

// Count implements vector.Store.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	c, err := s.conn(ctx, collection)
	if err != nil {
		return 0, err
	}

	stats, err := c.DescribeIndexStats(ctx)
	if err != nil {
		return 0, fmt.Errorf("pinecone: describe index stats: %w", err)
	}

	n, _ := namespaceCount(stats, collection)
	return n, nil
}

// DeleteBySource implements vector.Store with a metadata filter on the source.
func (s *Store) DeleteBySource(ctx context.Context, collection, source string) error {
	c, err := s.conn(ctx, collection)
	if err != nil {
		return err
	}

	filter, err := SourceFilter(source)
	if err != nil {
		return fmt.Errorf("pinecone: source filter: %w", err)
	}

	if err := c.DeleteVectorsByFilter(ctx, filter); err != nil {
		if missing, _ := s.namespaceMissing(ctx, c, collection); missing {
			return nil
		}
		return fmt.Errorf("pinecone: delete source %s: %w", source, err)
	}

	return nil
}

// SourceFilter matches vectors whose source metadata equals source.
func SourceFilter(source string) (*pinecone.MetadataFilter, error) {
	return structpb.NewStruct(map[string]any{
		vector.PayloadSource: map[string]any{"$eq": source},
	})
}

func (s *Store) namespaceMissing(ctx context.Context, c *pinecone.IndexConnection, namespace string) (bool, error) {
	stats, err := c.DescribeIndexStats(ctx)
	if err != nil {
		return false, err
	}
	_, ok := namespaceCount(stats, namespace)
	return !ok, nil
}

// namespaceCount returns the vector count of namespace and whether it exists.
func namespaceCount(stats *pinecone.DescribeIndexStatsResponse, namespace string) (int, bool) {
	if stats == nil {
		return 0, false
	}
	ns, ok := stats.Namespaces[namespace]
	if !ok || ns == nil {
		return 0, false
	}
	return int(ns.VectorCount), true
}

// DeleteCollection implements vector.Store by clearing the namespace.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	c, err := s.conn(ctx, collection)
	if err != nil {
		return err
	}

	if err := c.DeleteAllVectorsInNamespace(ctx); err != nil {
		return fmt.Errorf("pinecone: delete namespace %s: %w", collection, err)
	}

	return nil
}

// Close implements vector.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for ns, c := range s.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.conns, ns)
	}

	return errors.Join(errs...)
}

func toMetadata(payload map[string]any) (*pinecone.Metadata, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	return structpb.NewStruct(payload)
}

func fromMetadata(md *pinecone.Metadata) map[string]any {
	if md == nil {
		return map[string]any{}
	}
	return md.AsMap()
}
