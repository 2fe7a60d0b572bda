// Package websearch provides the duckduckgo_search tool backed by the
// DuckDuckGo instant answer API.
package websearch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/tool"
)

// Name is the tool name.
const Name = "duckduckgo_search"

// DefaultBaseURL is the DuckDuckGo instant answer endpoint.
const DefaultBaseURL = "https://api.duckduckgo.com/"

// Options configures the search tool.
type Options struct {
	BaseURL string

	// FixedMaxResults caps results regardless of what the model asks for.
	FixedMaxResults int

	Timeout    time.Duration
	HTTPClient *http.Client
}

// Hit is one search result.
type Hit struct {
	Title string `json:"title"`
	Href  string `json:"href"`
	Body  string `json:"body"`
}

type searchArgs struct {
	Query      string `json:"query" jsonschema:"description=The query to search for"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=The maximum number of results to return,default=5"`
}

type searcher struct {
	opts   Options
	client *http.Client
}

// New returns the duckduckgo_search tool.
func New(optFns ...func(o *Options)) tool.Tool {
	opts := Options{
		BaseURL:         DefaultBaseURL,
		FixedMaxResults: 3,
		Timeout:         10 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	s := &searcher{opts: opts, client: client}

	return tool.NewTypedTool(Name, "Use this function to search DuckDuckGo for a query. Returns JSON formatted search results.", s.search)
}

func (s *searcher) search(tc *core.ToolContext, args searchArgs) (any, error) {
	if strings.TrimSpace(args.Query) == "" {
		return nil, &tool.ToolArgumentError{Tool: Name, Message: "query must not be empty"}
	}

	limit := args.MaxResults
	if limit <= 0 {
		limit = 5
	}
	if s.opts.FixedMaxResults > 0 {
		limit = s.opts.FixedMaxResults
	}

	tc.LogDebug("tool.websearch.query", "query", args.Query, "max_results", limit)

	q := url.Values{}
	q.Set("q", args.Query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(tc.Context(), http.MethodGet, s.opts.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo returned status %d", resp.StatusCode)
	}

	var payload instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode duckduckgo response: %w", err)
	}

	return payload.hits(limit), nil
}

type topic struct {
	Text     string  `json:"Text"`
	FirstURL string  `json:"FirstURL"`
	Name     string  `json:"Name"`
	Topics   []topic `json:"Topics"`
}

type instantAnswer struct {
	Heading       string  `json:"Heading"`
	AbstractText  string  `json:"AbstractText"`
	AbstractURL   string  `json:"AbstractURL"`
	Answer        string  `json:"Answer"`
	Results       []topic `json:"Results"`
	RelatedTopics []topic `json:"RelatedTopics"`
}

func (a instantAnswer) hits(limit int) []Hit {
	hits := make([]Hit, 0, limit)
	add := func(h Hit) bool {
		if len(hits) >= limit {
			return false
		}
		hits = append(hits, h)
		return true
	}

	if a.Answer != "" {
		add(Hit{Title: a.Heading, Body: a.Answer})
	}
	if a.AbstractText != "" {
		add(Hit{Title: a.Heading, Href: a.AbstractURL, Body: a.AbstractText})
	}

	var walk func(ts []topic) bool
	walk = func(ts []topic) bool {
		for _, t := range ts {
			if len(t.Topics) > 0 {
				if !walk(t.Topics) {
					return false
				}
				continue
			}
			if t.Text == "" {
				continue
			}
			if !add(Hit{Title: title(t.Text), Href: t.FirstURL, Body: t.Text}) {
				return false
			}
		}
		return true
	}

	if walk(a.Results) {
		walk(a.RelatedTopics)
	}

	return hits
}

// title uses the text before the first " - " as the result title.
func title(text string) string {
	if i := strings.Index(text, " - "); i > 0 {
		return text[:i]
	}
	return text
}
