package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"generated text"}}]}`))
	}))
	defer srv.Close()

	c := NewClient("sk-test", srv.URL, "gpt-5-mini", 0.3, 10*time.Second)
	out, err := c.Generate(context.Background(), "say something", 256)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "generated text" {
		t.Fatalf("output: %q", out)
	}
	if gotPath != "/chat/completions" {
		t.Fatalf("path: %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("auth header: %q", gotAuth)
	}
	if gotReq.Model != "gpt-5-mini" || gotReq.MaxTokens != 256 {
		t.Fatalf("request: %+v", gotReq)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Fatalf("messages: %+v", gotReq.Messages)
	}
}

func TestGenerateErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("sk-test", srv.URL, "gpt-5-mini", 0.3, 10*time.Second)
	if _, err := c.Generate(context.Background(), "p", 0); err == nil {
		t.Fatal("non-200 must be an error")
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer empty.Close()

	c = NewClient("sk-test", empty.URL, "gpt-5-mini", 0.3, 10*time.Second)
	if _, err := c.Generate(context.Background(), "p", 0); err == nil {
		t.Fatal("empty choices must be an error")
	}
}
