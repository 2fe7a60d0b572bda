// Package backend maps configured names to concrete language model,
// embedder and vector store implementations.
//
// Each kind keeps an ordered list of entries. An entry matches when the
// lower-cased name contains one of its keywords, and the first match wins.
// Resolution only builds clients; connectivity is checked on first use.
package backend

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/embedder"
	"github.com/hupe1980/assistmesh/logging"
	"github.com/hupe1980/assistmesh/model"
	"github.com/hupe1980/assistmesh/vector"
)

// Kind is a category of backend.
type Kind string

const (
	KindLanguageModel Kind = "llm"
	KindEmbedder      Kind = "embedder"
	KindVectorStore   Kind = "vector_store"
)

// Kinds lists all kinds in display order.
var Kinds = []Kind{KindLanguageModel, KindEmbedder, KindVectorStore}

// Factory constructs a backend for the configured name.
type Factory func(name string, p Params) (any, error)

// Entry is one row of a priority list.
type Entry struct {
	// Backend identifies the implementation, e.g. "openai".
	Backend string

	// Keywords are matched as substrings of the lower-cased name.
	Keywords []string

	Description string

	New Factory
}

// Matches reports whether name selects this entry.
func (e Entry) Matches(name string) bool {
	name = strings.ToLower(name)
	for _, kw := range e.Keywords {
		if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Descriptor documents an entry without its factory.
type Descriptor struct {
	Kind        Kind     `json:"kind" yaml:"kind"`
	Priority    int      `json:"priority" yaml:"priority"`
	Backend     string   `json:"backend" yaml:"backend"`
	Keywords    []string `json:"keywords" yaml:"keywords"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// Options configures a Registry.
type Options struct {
	Logger logging.Logger

	// OnResolve is called after every Resolve. backendName is empty when
	// nothing matched.
	OnResolve func(kind Kind, backendName string, err error)
}

// Registry holds the priority lists. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[Kind][]Entry
	opts    Options
}

// New creates an empty registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Registry{entries: make(map[Kind][]Entry), opts: opts}
}

// Register appends entry to the priority list of kind.
func (r *Registry) Register(kind Kind, entry Entry) error {
	if entry.Backend == "" {
		return fmt.Errorf("backend: %s entry requires a backend name", kind)
	}
	if len(entry.Keywords) == 0 {
		return fmt.Errorf("backend: %s entry %q requires keywords", kind, entry.Backend)
	}
	if entry.New == nil {
		return fmt.Errorf("backend: %s entry %q requires a factory", kind, entry.Backend)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[kind] = append(r.entries[kind], entry)
	return nil
}

// Entries returns the priority list of kind.
func (r *Registry) Entries(kind Kind) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.entries[kind]))
	for i, e := range r.entries[kind] {
		out = append(out, Descriptor{
			Kind:        kind,
			Priority:    i + 1,
			Backend:     e.Backend,
			Keywords:    append([]string(nil), e.Keywords...),
			Description: e.Description,
		})
	}
	return out
}

// Select returns the backend chosen for name without constructing it.
func (r *Registry) Select(kind Kind, name string) (string, error) {
	e, err := r.lookup(kind, name)
	if err != nil {
		return "", err
	}
	return e.Backend, nil
}

// Resolve constructs the backend chosen for name.
func (r *Registry) Resolve(kind Kind, name string, p Params) (any, error) {
	e, err := r.lookup(kind, name)
	if err != nil {
		r.report(kind, "", err)
		return nil, err
	}

	h, err := e.New(name, p)
	if err != nil {
		err = fmt.Errorf("backend: %s %s for %q: %w", kind, e.Backend, name, err)
		r.report(kind, e.Backend, err)
		return nil, err
	}

	r.opts.Logger.Debug("backend.resolve", "kind", string(kind), "name", name, "backend", e.Backend)
	r.report(kind, e.Backend, nil)

	return h, nil
}

// ResolveModel resolves a language model.
func (r *Registry) ResolveModel(name string, p Params) (model.Model, error) {
	return resolveAs[model.Model](r, KindLanguageModel, name, p)
}

// ResolveEmbedder resolves an embedder.
func (r *Registry) ResolveEmbedder(name string, p Params) (embedder.Embedder, error) {
	return resolveAs[embedder.Embedder](r, KindEmbedder, name, p)
}

// ResolveVectorStore resolves a vector store.
func (r *Registry) ResolveVectorStore(name string, p Params) (vector.Store, error) {
	return resolveAs[vector.Store](r, KindVectorStore, name, p)
}

func resolveAs[T any](r *Registry, kind Kind, name string, p Params) (T, error) {
	var zero T

	h, err := r.Resolve(kind, name, p)
	if err != nil {
		return zero, err
	}

	t, ok := h.(T)
	if !ok {
		return zero, fmt.Errorf("backend: %s factory for %q returned %T", kind, name, h)
	}
	return t, nil
}

func (r *Registry) lookup(kind Kind, name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries[kind] {
		if e.Matches(name) {
			return e, nil
		}
	}

	return Entry{}, &core.UnsupportedBackendError{Kind: string(kind), Name: name}
}

func (r *Registry) report(kind Kind, backendName string, err error) {
	if r.opts.OnResolve != nil {
		r.opts.OnResolve(kind, backendName, err)
	}
}
