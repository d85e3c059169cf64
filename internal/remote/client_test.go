package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestUpdateProgress(t *testing.T) {
	var got ProgressUpdate
	var gotAuth, gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-token")
	err := c.UpdateProgress(context.Background(), ProgressUpdate{
		ContentID:       "1399",
		MediaKind:       "tv",
		ProgressPercent: 42.5,
		CurrentTime:     1530,
		Duration:        3600,
		Title:           "Game of Thrones",
		Season:          1,
		Episode:         3,
	})
	if err != nil {
		t.Fatalf("update progress: %v", err)
	}

	if gotPath != "/progress" {
		t.Fatalf("expected /progress, got %q", gotPath)
	}
	if gotAuth != "Bearer secret-token" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if got.ContentID != "1399" || got.Season != 1 || got.Episode != 3 {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if got.CurrentTime != 1530 || got.Duration != 3600 {
		t.Fatalf("unexpected times: %+v", got)
	}
}

func TestUpdateProgress_NoTokenOmitsAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h := r.Header.Get("Authorization"); h != "" {
			t.Errorf("expected no auth header, got %q", h)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	if err := c.UpdateProgress(context.Background(), ProgressUpdate{ContentID: "603", MediaKind: "movie"}); err != nil {
		t.Fatalf("update progress: %v", err)
	}
}

func TestUpdateProgress_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	err := c.UpdateProgress(context.Background(), ProgressUpdate{ContentID: "603", MediaKind: "movie"})
	if err == nil {
		t.Fatal("expected error on 502")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestUpdateProgress_NetworkErrorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL, "tok")
	if err := c.UpdateProgress(context.Background(), ProgressUpdate{ContentID: "603", MediaKind: "movie"}); err == nil {
		t.Fatal("expected error when server is unreachable")
	}
}
