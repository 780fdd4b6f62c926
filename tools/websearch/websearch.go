package websearch

import (
	"context"
	"errors"
	"time"

	"github.com/scour-research/scour/config"
	"github.com/scour-research/scour/internal/research"
	"github.com/scour-research/scour/tools/websearch/brave"
	"github.com/scour-research/scour/tools/websearch/models"
	"github.com/scour-research/scour/tools/websearch/serper"
)

// WebSearcher is the provider-level search interface.
type WebSearcher interface {
	Discover(ctx context.Context, q string, k int, sites []string, locale string) ([]models.Result, error)
}

// Provider names.
const (
	SerperProvider = "serper"
	BraveProvider  = "brave"
)

var ErrUnsupportedProvider = errors.New("unsupported search provider")

// Searcher adapts a WebSearcher to the pipeline's SearchProvider capability,
// enforcing a per-call deadline and adding ranks.
type Searcher struct {
	client  WebSearcher
	timeout time.Duration
	locale  string
}

// New builds a Searcher from config.
func New(cfg config.SearchConfig) (*Searcher, error) {
	var client WebSearcher
	switch cfg.Provider {
	case SerperProvider:
		client = serper.Search{ApiKey: cfg.SerperAPIKey}
	case BraveProvider:
		client = brave.Search{ApiKey: cfg.BraveAPIKey}
	default:
		return nil, ErrUnsupportedProvider
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Searcher{client: client, timeout: timeout, locale: cfg.Locale}, nil
}

func (s *Searcher) Search(ctx context.Context, query string, limit int, sites []string) ([]research.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	results, err := s.client.Discover(ctx, query, limit, sites, s.locale)
	if err != nil {
		return nil, err
	}
	out := make([]research.SearchResult, 0, len(results))
	for i, r := range results {
		out = append(out, research.SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Snippet, Rank: i})
	}
	return out, nil
}
