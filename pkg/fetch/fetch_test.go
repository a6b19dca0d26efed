package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/packforge/packforge/pkg/manifest"
)

func TestFetchDownloadsAndCaches(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/runtime/1.0.0" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		_, _ = w.Write([]byte("artifact-bytes"))
	}))
	defer server.Close()

	f, err := NewHTTPFetcher(Config{FeedURL: server.URL, CacheDir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}

	ctx := context.Background()
	pkg := manifest.ConcretePackage{ID: "runtime", Version: "1.0.0"}

	path, err := f.Fetch(ctx, pkg, "")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read artifact: %v", err)
	}
	if string(content) != "artifact-bytes" {
		t.Errorf("artifact corrupted: %q", content)
	}

	// Second fetch is served from cache without touching the feed.
	if _, err := f.Fetch(ctx, pkg, ""); err != nil {
		t.Fatalf("cached fetch failed: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 feed hit, got %d", hits.Load())
	}
}

func TestFetchNotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	f, err := NewHTTPFetcher(Config{FeedURL: server.URL, CacheDir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}

	_, err = f.Fetch(context.Background(), manifest.ConcretePackage{ID: "ghost", Version: "1"}, "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchOfflineOnlyConsultsSeededCache(t *testing.T) {
	// The feed would serve the package, but offline mode must not reach it.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("offline fetch reached the network")
		_, _ = w.Write([]byte("x"))
	}))
	defer server.Close()

	f, err := NewHTTPFetcher(Config{FeedURL: server.URL, CacheDir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}

	ctx := context.Background()
	offline := t.TempDir()
	pkg := manifest.ConcretePackage{ID: "runtime", Version: "1.0.0"}

	_, err = f.Fetch(ctx, pkg, offline)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on cache miss, got %v", err)
	}

	seeded := filepath.Join(offline, artifactName(pkg))
	if err := os.WriteFile(seeded, []byte("seeded"), 0o644); err != nil {
		t.Fatalf("failed to seed cache: %v", err)
	}
	path, err := f.Fetch(ctx, pkg, offline)
	if err != nil {
		t.Fatalf("offline fetch failed: %v", err)
	}
	if path != seeded {
		t.Errorf("expected seeded path %s, got %s", seeded, path)
	}
}

func TestFetchConfigValidation(t *testing.T) {
	if _, err := NewHTTPFetcher(Config{FeedURL: "not a url", CacheDir: t.TempDir()}, nil); err == nil {
		t.Error("expected invalid feed URL to be rejected")
	}
	if _, err := NewHTTPFetcher(Config{FeedURL: "https://feed.example", CacheDir: ""}, nil); err == nil {
		t.Error("expected missing cache dir to be rejected")
	}
}

func TestManifestSourceGetLatest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/manifests/9.0.100/core/latest", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("3"))
	})
	mux.HandleFunc("/manifests/9.0.100/core/3", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("id: core\nversion: 3\n"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	src, err := NewHTTPManifestSource(Config{FeedURL: server.URL, CacheDir: "unused"}, nil)
	if err != nil {
		t.Fatalf("failed to create source: %v", err)
	}

	version, doc, err := src.GetLatest(context.Background(), "core", "9.0.100")
	if err != nil {
		t.Fatalf("get latest failed: %v", err)
	}
	if version != 3 {
		t.Errorf("expected version 3, got %d", version)
	}
	if string(doc) != "id: core\nversion: 3\n" {
		t.Errorf("unexpected document: %q", doc)
	}

	if _, _, err := src.GetLatest(context.Background(), "ghost", "9.0.100"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
