package signer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sign" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req signRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.LifetimeSeconds != 3600 {
			t.Errorf("expected 3600s lifetime, got %d", req.LifetimeSeconds)
		}
		n := atomic.AddInt32(calls, 1)
		_ = json.NewEncoder(w).Encode(signResponse{URL: fmt.Sprintf("https://cdn.example/%s?sig=%d", req.Path, n)})
	}))
}

func TestResolveURLCaches(t *testing.T) {
	var calls int32
	server := newTestServer(t, &calls)
	defer server.Close()

	client, err := New(Options{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	first, err := client.ResolveURL(context.Background(), "media/t1.mp3")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := client.ResolveURL(context.Background(), "media/t1.mp3")
	if err != nil {
		t.Fatalf("resolve cached: %v", err)
	}
	if first != second {
		t.Fatalf("expected cached url, got %s then %s", first, second)
	}
	if calls != 1 {
		t.Fatalf("expected 1 fetch, got %d", calls)
	}
}

func TestResolveURLRenewsAfterThreshold(t *testing.T) {
	var calls int32
	server := newTestServer(t, &calls)
	defer server.Close()

	client, err := New(Options{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	now := time.Now()
	client.now = func() time.Time { return now }

	if _, err := client.ResolveURL(context.Background(), "media/t1.mp3"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if client.NeedsRenewal("media/t1.mp3") {
		t.Fatalf("fresh entry should not need renewal")
	}

	// Past 50 minutes the entry must not be served without a renewal attempt.
	now = now.Add(51 * time.Minute)
	if !client.NeedsRenewal("media/t1.mp3") {
		t.Fatalf("aged entry should need renewal")
	}
	if _, err := client.ResolveURL(context.Background(), "media/t1.mp3"); err != nil {
		t.Fatalf("resolve after threshold: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected renewal fetch, got %d calls", calls)
	}
}

func TestResolveURLPassThrough(t *testing.T) {
	client, err := New(Options{BaseURL: "http://unused"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	url, err := client.ResolveURL(context.Background(), "https://feeds.example/announce.mp3")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if url != "https://feeds.example/announce.mp3" {
		t.Fatalf("expected pass-through, got %s", url)
	}
}

func TestResolveURLServesStaleOnFailure(t *testing.T) {
	var calls int32
	var failing atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode(signResponse{URL: "https://cdn.example/t1"})
	}))
	defer server.Close()

	client, err := New(Options{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	now := time.Now()
	client.now = func() time.Time { return now }

	if _, err := client.ResolveURL(context.Background(), "media/t1.mp3"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	failing.Store(true)
	now = now.Add(55 * time.Minute)
	url, err := client.ResolveURL(context.Background(), "media/t1.mp3")
	if err != nil {
		t.Fatalf("expected stale entry, got error: %v", err)
	}
	if url != "https://cdn.example/t1" {
		t.Fatalf("unexpected url %s", url)
	}

	// Past the full lifetime the stale entry is no longer acceptable.
	now = now.Add(10 * time.Minute)
	if _, err := client.ResolveURL(context.Background(), "media/t1.mp3"); err == nil {
		t.Fatalf("expected error past lifetime")
	}
}

func TestPrefetchWarmsCache(t *testing.T) {
	var calls int32
	server := newTestServer(t, &calls)
	defer server.Close()

	client, err := New(Options{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	client.Prefetch(context.Background(), "media/next.mp3")
	if calls != 1 {
		t.Fatalf("expected prefetch fetch, got %d", calls)
	}
	if _, err := client.ResolveURL(context.Background(), "media/next.mp3"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected cache hit after prefetch, got %d calls", calls)
	}
}
