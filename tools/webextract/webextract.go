package webextract

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/scour-research/scour/config"
	"github.com/scour-research/scour/internal/research"
	cdp "github.com/scour-research/scour/tools/webextract/chromedp"
	"github.com/scour-research/scour/tools/webextract/models"
	"github.com/scour-research/scour/tools/webextract/readability"
)

// Fetcher names.
const (
	HTTPFetcher     = "http"
	ChromedpFetcher = "chromedp"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxChars    = 20000
	DefaultParallelism = 4
)

var ErrUnsupportedFetcher = errors.New("unsupported fetcher type")

// WebFetcher extracts the readable text of one URL.
type WebFetcher interface {
	Exec(ctx context.Context, url string) (models.Result, error)
}

// Extractor adapts a WebFetcher to the pipeline's batched ExtractProvider
// capability, fetching a batch with bounded parallelism. Per-URL failures
// produce missing entries, never a batch error.
type Extractor struct {
	fetcher     WebFetcher
	parallelism int
	logger      *log.Logger
}

// New builds an Extractor from config.
func New(cfg config.ExtractConfig) (*Extractor, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	var fetcher WebFetcher
	switch cfg.Fetcher {
	case HTTPFetcher:
		fetcher = readability.Fetch{Timeout: timeout, MaxChars: maxChars}
	case ChromedpFetcher:
		fetcher = cdp.Fetch{Timeout: timeout, MaxChars: maxChars}
	default:
		return nil, ErrUnsupportedFetcher
	}
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	return &Extractor{
		fetcher:     fetcher,
		parallelism: parallelism,
		logger:      log.New(log.Writer(), "[EXTRACT] ", log.LstdFlags),
	}, nil
}

// NewWithFetcher wraps an explicit fetcher, for tests.
func NewWithFetcher(fetcher WebFetcher, parallelism int) *Extractor {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	return &Extractor{
		fetcher:     fetcher,
		parallelism: parallelism,
		logger:      log.New(log.Writer(), "[EXTRACT] ", log.LstdFlags),
	}
}

func (e *Extractor) Extract(ctx context.Context, urls []string) ([]research.Extraction, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		out []research.Extraction
	)
	sem := make(chan struct{}, e.parallelism)
	for _, target := range urls {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			result, err := e.fetcher.Exec(ctx, target)
			if err != nil {
				e.logger.Printf("fetch failed for %s: %v", target, err)
				return
			}
			if result.Text == "" {
				return
			}
			mu.Lock()
			out = append(out, research.Extraction{URL: target, Content: result.Text})
			mu.Unlock()
		}(target)
	}
	wg.Wait()
	return out, nil
}
