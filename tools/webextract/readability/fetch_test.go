package readability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const articleHTML = `<html><head><title>The Article</title></head><body>
<article>
<h1>The Article</h1>
<p>First paragraph of the readable body, long enough to be picked up by the readability pass without being discarded as boilerplate.</p>
<p>Second paragraph with more substance, also intentionally long enough that extraction treats it as real article content rather than navigation.</p>
</article>
</body></html>`

func TestExecExtractsArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	f := Fetch{Timeout: 5 * time.Second, MaxChars: 20000}
	result, err := f.Exec(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if result.Status != http.StatusOK {
		t.Fatalf("status: %d", result.Status)
	}
	if !strings.Contains(result.Text, "First paragraph") {
		t.Fatalf("readable text not extracted: %q", result.Text)
	}
}

func TestExecTruncatesText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	f := Fetch{Timeout: 5 * time.Second, MaxChars: 10}
	result, err := f.Exec(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if len(result.Text) > 10 {
		t.Fatalf("text not truncated: %d chars", len(result.Text))
	}
}

func TestExecSoftFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := Fetch{Timeout: 5 * time.Second}
	result, err := f.Exec(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("non-200 must be a soft failure: %v", err)
	}
	if result.Status != http.StatusNotFound || result.Text != "" {
		t.Fatalf("unexpected result: %+v", result)
	}

	// Unreachable host is also soft: status 599, no error.
	result, err = f.Exec(context.Background(), "http://127.0.0.1:1/never")
	if err != nil {
		t.Fatalf("connection failure must be soft: %v", err)
	}
	if result.Status != 599 {
		t.Fatalf("expected synthetic 599 status, got %d", result.Status)
	}

	if _, err := f.Exec(context.Background(), "  "); err == nil {
		t.Fatal("blank url must be rejected")
	}
}
