// Package search enriches a chat turn with web search results.
package search

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/break1145/GraphDo/pkg/errx"
	"github.com/break1145/GraphDo/pkg/metrics"
	"github.com/goccy/go-json"
	"github.com/patrickmn/go-cache"
)

const (
	DefaultURL        = "https://api.tavily.com/search"
	DefaultMaxResults = 3
	maxResultsLimit   = 20

	contextHeader    = "这是结合网络搜索给出的建议，请结合这些信息进行回答："
	referencesHeader = "参考来源："
)

// Searcher turns a user query into a context block for the model.
// An empty string with a nil error means nothing useful was found.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

var ErrRegistry = errx.NewRegistry("SEARCH")

var (
	CodeInvalidQuery = ErrRegistry.Register("INVALID_QUERY", errx.TypeValidation, http.StatusBadRequest, "Search query is empty")
	CodeUpstream     = ErrRegistry.Register("UPSTREAM_FAILED", errx.TypeExternal, http.StatusBadGateway, "Search provider request failed")
)

func ErrInvalidQuery() *errx.Error {
	return ErrRegistry.New(CodeInvalidQuery)
}

func ErrUpstream() *errx.Error {
	return ErrRegistry.New(CodeUpstream)
}

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type tavilyResponse struct {
	Query        string         `json:"query"`
	Results      []tavilyResult `json:"results"`
	ResponseTime float64        `json:"response_time"`
}

// Option configures a TavilySearcher
type Option func(*TavilySearcher)

func WithURL(url string) Option {
	return func(s *TavilySearcher) {
		if url != "" {
			s.url = url
		}
	}
}

func WithMaxResults(n int) Option {
	return func(s *TavilySearcher) {
		if n > 0 {
			s.maxResults = min(n, maxResultsLimit)
		}
	}
}

// WithCacheTTL caches formatted results per query. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *TavilySearcher) {
		if ttl <= 0 {
			s.cache = nil
			return
		}
		s.cache = cache.New(ttl, 2*ttl)
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *TavilySearcher) {
		if c != nil {
			s.client = c
		}
	}
}

// TavilySearcher queries the Tavily search API
type TavilySearcher struct {
	apiKey     string
	url        string
	maxResults int
	client     *http.Client
	cache      *cache.Cache
}

func NewTavilySearcher(apiKey string, opts ...Option) *TavilySearcher {
	s := &TavilySearcher{
		apiKey:     apiKey,
		url:        DefaultURL,
		maxResults: DefaultMaxResults,
		client:     &http.Client{Timeout: 15 * time.Second},
		cache:      cache.New(10*time.Minute, 20*time.Minute),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TavilySearcher) Search(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrInvalidQuery()
	}

	if s.cache != nil {
		if v, ok := s.cache.Get(query); ok {
			metrics.SearchRequests.WithLabelValues("hit").Inc()
			return v.(string), nil
		}
	}

	resp, err := s.fetch(ctx, query)
	if err != nil {
		metrics.SearchRequests.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.SearchRequests.WithLabelValues("miss").Inc()

	out := format(resp.Results)
	if s.cache != nil {
		s.cache.SetDefault(query, out)
	}
	return out, nil
}

func (s *TavilySearcher) fetch(ctx context.Context, query string) (*tavilyResponse, error) {
	body, err := json.Marshal(tavilyRequest{
		APIKey:      s.apiKey,
		Query:       query,
		MaxResults:  s.maxResults,
		SearchDepth: "basic",
	})
	if err != nil {
		return nil, errx.Wrap(err, "failed to encode search request", errx.TypeInternal)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, errx.Wrap(err, "failed to build search request", errx.TypeInternal)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return nil, ErrUpstream().WithError(err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, ErrUpstream().WithError(err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, ErrUpstream().
			WithDetail("status", res.StatusCode).
			WithDetail("body", truncate(string(raw), 200))
	}

	var out tavilyResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, ErrUpstream().WithError(err).WithDetail("reason", "malformed response")
	}
	return &out, nil
}

// format renders results as the context block handed to the model.
// Results without content are skipped; no usable result gives "".
func format(results []tavilyResult) string {
	var suggestions, refs []string
	for _, r := range results {
		content := strings.TrimSpace(r.Content)
		if content == "" {
			continue
		}
		suggestions = append(suggestions, "- "+content)
		if r.URL != "" {
			refs = append(refs, fmt.Sprintf("%d. %s", len(refs)+1, r.URL))
		}
	}
	if len(suggestions) == 0 {
		return ""
	}
	return contextHeader + "\n\n" + strings.Join(suggestions, "\n\n") + "\n\n" + referencesHeader + strings.Join(refs, "；")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
