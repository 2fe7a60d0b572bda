// Package vector defines the vector store capability consumed by the
// knowledge base. Concrete adapters live in the chromem, qdrant, pinecone and
// pgvector subpackages.
//
// Stores are addressed by collection name and keyed by caller-chosen record
// ids, so writing a record with an existing id replaces it.
package vector

import (
	"context"
	"fmt"
	"sort"
	"strconv"
)

// Payload keys every adapter stores next to the vector.
const (
	PayloadText   = "text"
	PayloadSource = "source"
)

// Record is a vector with its payload.
type Record struct {
	ID       string
	Vector   []float32
	Text     string
	Source   string
	Metadata map[string]any
}

// Match is a search hit. Higher scores are more similar.
type Match struct {
	ID       string
	Score    float64
	Text     string
	Source   string
	Metadata map[string]any
}

// Store is implemented by every vector backend.
type Store interface {
	// EnsureCollection creates the collection when missing.
	EnsureCollection(ctx context.Context, collection string, dimensions int) error

	// Upsert writes records, replacing existing ids.
	Upsert(ctx context.Context, collection string, records []Record) error

	// Search returns up to k matches ordered by descending score (empty when
	// the collection is missing).
	Search(ctx context.Context, collection string, vec []float32, k int) ([]Match, error)

	// Exists reports which of ids are stored.
	Exists(ctx context.Context, collection string, ids []string) (map[string]bool, error)

	// Count returns the number of records in the collection (0 when missing).
	Count(ctx context.Context, collection string) (int, error)

	// DeleteBySource removes every record stored under source. A missing
	// collection is not an error.
	DeleteBySource(ctx context.Context, collection, source string) error

	// DeleteCollection drops the collection and all its records.
	DeleteCollection(ctx context.Context, collection string) error

	// Close releases client resources.
	Close() error
}

// Payload flattens a record into the map adapters persist.
func (r Record) Payload() map[string]any {
	payload := make(map[string]any, len(r.Metadata)+2)
	for k, v := range r.Metadata {
		payload[k] = ScalarValue(v)
	}
	payload[PayloadText] = r.Text
	payload[PayloadSource] = r.Source
	return payload
}

// MatchFromPayload rebuilds a match from a persisted payload.
func MatchFromPayload(id string, score float64, payload map[string]any) Match {
	m := Match{ID: id, Score: score, Metadata: map[string]any{}}
	for k, v := range payload {
		switch k {
		case PayloadText:
			m.Text, _ = v.(string)
		case PayloadSource:
			m.Source, _ = v.(string)
		default:
			m.Metadata[k] = v
		}
	}
	return m
}

// ScalarValue reduces v to a string, bool, int64 or float64 so that every
// backend can store it.
func ScalarValue(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case string, bool, int64, float64:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return fmt.Sprint(x)
	}
}

// StringMetadata renders a payload as map[string]string for stores that only
// keep string metadata.
func StringMetadata(payload map[string]any) map[string]string {
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		switch x := v.(type) {
		case string:
			out[k] = x
		case bool:
			out[k] = strconv.FormatBool(x)
		case int64:
			out[k] = strconv.FormatInt(x, 10)
		case float64:
			out[k] = strconv.FormatFloat(x, 'g', -1, 64)
		default:
			out[k] = fmt.Sprint(x)
		}
	}
	return out
}

// SortMatches orders matches by descending score, breaking ties by id.
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
}
