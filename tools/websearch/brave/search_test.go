package brave

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDiscover(t *testing.T) {
	var gotQuery, gotCountry, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotCountry = r.URL.Query().Get("country")
		gotToken = r.Header.Get("X-Subscription-Token")
		w.Write([]byte(`{"web":{"results":[
			{"title":"A","url":"https://example.com/a","description":"da"},
			{"title":"B","url":"https://example.com/b","description":"db"}
		]}}`))
	}))
	defer srv.Close()

	s := Search{ApiKey: "token-1", Endpoint: srv.URL}
	results, err := s.Discover(context.Background(), "rust async", 5, []string{"docs.rs"}, "en-GB")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if gotToken != "token-1" {
		t.Fatalf("subscription token: %q", gotToken)
	}
	if !strings.HasPrefix(gotQuery, "rust async") || !strings.Contains(gotQuery, "site:docs.rs") {
		t.Fatalf("site filter not folded into query: %q", gotQuery)
	}
	if gotCountry != "GB" {
		t.Fatalf("country: %q", gotCountry)
	}
	if len(results) != 2 || results[1].Snippet != "db" {
		t.Fatalf("results: %+v", results)
	}
}

func TestDiscoverNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := Search{ApiKey: "k", Endpoint: srv.URL}
	if _, err := s.Discover(context.Background(), "q", 3, nil, ""); err == nil {
		t.Fatal("non-200 must be an error")
	}
}
