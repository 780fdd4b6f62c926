package webextract

import (
	"context"
	"errors"
	"testing"

	"github.com/scour-research/scour/config"
	"github.com/scour-research/scour/tools/webextract/models"
)

type fetchFunc func(ctx context.Context, url string) (models.Result, error)

func (f fetchFunc) Exec(ctx context.Context, url string) (models.Result, error) {
	return f(ctx, url)
}

func TestNewSelectsFetcher(t *testing.T) {
	if _, err := New(config.ExtractConfig{Fetcher: "http"}); err != nil {
		t.Fatalf("http: %v", err)
	}
	if _, err := New(config.ExtractConfig{Fetcher: "chromedp"}); err != nil {
		t.Fatalf("chromedp: %v", err)
	}
	if _, err := New(config.ExtractConfig{Fetcher: "wget"}); !errors.Is(err, ErrUnsupportedFetcher) {
		t.Fatalf("expected ErrUnsupportedFetcher, got %v", err)
	}
}

func TestExtractSkipsFailuresAndEmptyPages(t *testing.T) {
	fetcher := fetchFunc(func(_ context.Context, url string) (models.Result, error) {
		switch url {
		case "https://example.com/good":
			return models.Result{URL: url, Text: "article body", Status: 200}, nil
		case "https://example.com/empty":
			return models.Result{URL: url, Status: 200}, nil
		default:
			return models.Result{}, errors.New("connection refused")
		}
	})
	ex := NewWithFetcher(fetcher, 2)

	out, err := ex.Extract(context.Background(), []string{
		"https://example.com/good",
		"https://example.com/empty",
		"https://example.com/broken",
	})
	if err != nil {
		t.Fatalf("per-url failures must not become a batch error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected one extraction, got %d: %+v", len(out), out)
	}
	if out[0].URL != "https://example.com/good" || out[0].Content != "article body" {
		t.Fatalf("unexpected extraction: %+v", out[0])
	}
}

func TestExtractEmptyBatch(t *testing.T) {
	ex := NewWithFetcher(fetchFunc(func(context.Context, string) (models.Result, error) {
		t.Fatal("fetcher must not be called")
		return models.Result{}, nil
	}), 1)
	out, err := ex.Extract(context.Background(), nil)
	if err != nil || out != nil {
		t.Fatalf("empty batch: %v, %v", out, err)
	}
}
