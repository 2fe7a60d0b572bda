// Package qdrant implements vector.Store with the Qdrant gRPC client.
package qdrant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/hupe1980/assistmesh/vector"
)

// payloadRecordID keeps the caller's id when it is not a UUID.
const payloadRecordID = "record_id"

// Options configures the Qdrant connection.
type Options struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool

	// Distance used for new collections (default cosine).
	Distance qdrant.Distance
}

// Store is a Qdrant backed vector store.
type Store struct {
	client *qdrant.Client
	opts   Options
}

// New builds a client. The gRPC connection is established lazily, so New
// performs no network I/O.
func New(optFns ...func(o *Options)) (*Store, error) {
	opts := Options{
		Host:     "localhost",
		Port:     6334,
		Distance: qdrant.Distance_Cosine,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   opts.Host,
		Port:                   opts.Port,
		APIKey:                 opts.APIKey,
		UseTLS:                 opts.UseTLS,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: create client: %w", err)
	}

	return &Store{client: client, opts: opts}, nil
}

// EnsureCollection implements vector.Store.
func (s *Store) EnsureCollection(ctx context.Context, collection string, dimensions int) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("qdrant: check collection %s: %w", collection, err)
	}
	if exists {
		return nil
	}

	if err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimensions),
			Distance: s.opts.Distance,
		}),
	}); err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", collection, err)
	}

	return nil
}

// Upsert implements vector.Store.
func (s *Store) Upsert(ctx context.Context, collection string, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		payload := r.Payload()
		payload[payloadRecordID] = r.ID

		values, err := qdrant.TryValueMap(payload)
		if err != nil {
			return fmt.Errorf("qdrant: payload for %s: %w", r.ID, err)
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(r.ID)),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: values,
		}
	}

	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	}); err != nil {
		return fmt.Errorf("qdrant: upsert: %w", err)
	}

	return nil
}

// Search implements vector.Store.
func (s *Store) Search(ctx context.Context, collection string, vec []float32, k int) ([]vector.Match, error) {
	if k <= 0 {
		return []vector.Match{}, nil
	}

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("qdrant: check collection %s: %w", collection, err)
	}
	if !exists {
		return []vector.Match{}, nil
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: query: %w", err)
	}

	matches := make([]vector.Match, 0, len(points))
	for _, p := range points {
		payload := decodePayload(p.GetPayload())
		id := p.GetId().GetUuid()
		if rid, ok := payload[payloadRecordID].(string); ok && rid != "" {
			id = rid
		}
		delete(payload, payloadRecordID)
		matches = append(matches, vector.MatchFromPayload(id, float64(p.GetScore()), payload))
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

	byPoint := make(map[string]string, len(ids))
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pid := PointID(id)
		byPoint[pid] = id
		pointIDs[i] = qdrant.NewID(pid)
	}

	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: get points: %w", err)
	}

	for _, p := range points {
		if id, ok := byPoint[p.GetId().GetUuid()]; ok {
			out[id] = true
		}
	}

	return out, nil
}

// Count implements vector.Store.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("qdrant: check collection %s: %w", collection, err)
	}
	if !exists {
		return 0, nil
	}

	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count: %w", err)
	}

	return int(n), nil
}

// DeleteBySource implements vector.Store with a payload filter on the source.
func (s *Store) DeleteBySource(ctx context.Context, collection, source string) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("qdrant: check collection %s: %w", collection, err)
	}
	if !exists {
		return nil
	}

	if _, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: SourceFilter(source)},
		},
	}); err != nil {
		return fmt.Errorf("qdrant: delete source %s: %w", source, err)
	}

	return nil
}

// SourceFilter matches points whose source payload equals source.
func SourceFilter(source string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: vector.PayloadSource,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: source},
					},
				},
			},
		}},
	}
}

// DeleteCollection implements vector.Store.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	if err := s.client.DeleteCollection(ctx, collection); err != nil {
		return fmt.Errorf("qdrant: delete collection %s: %w", collection, err)
	}
	return nil
}

// Close implements vector.Store.
func (s *Store) Close() error { return s.client.Close() }

// PointID maps a record id to a Qdrant point UUID. UUIDs pass through;
// other ids are hashed to a stable name-based UUID.
func PointID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func decodePayload(in map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = decodeValue(v)
	}
	return out
}

func decodeValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return nil
	}
}
