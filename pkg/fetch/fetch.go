package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/packforge/packforge/pkg/manifest"
	"github.com/packforge/packforge/pkg/telemetry"
)

// ErrNotFound indicates the feed does not publish the requested package, or
// an offline install could not find it in the seeded cache.
var ErrNotFound = errors.New("package not found")

// Config holds fetcher configuration.
type Config struct {
	// FeedURL is the base URL of the package feed.
	FeedURL string `json:"feed_url" yaml:"feed_url" validate:"required,url"`

	// CacheDir is the local artifact cache directory.
	CacheDir string `json:"cache_dir" yaml:"cache_dir" validate:"required"`

	// Timeout bounds a single download. Zero means 10 minutes.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// HTTPFetcher downloads package artifacts from an HTTP feed into a local
// cache. The cache is consulted before the network, and an offline cache
// directory, when given, is consulted instead of the network.
type HTTPFetcher struct {
	feedURL  string
	cacheDir string
	client   *http.Client
	log      *telemetry.Logger
}

// NewHTTPFetcher creates a fetcher for the given feed.
func NewHTTPFetcher(cfg Config, log *telemetry.Logger) (*HTTPFetcher, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid fetch config: %w", err)
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if log == nil {
		log = telemetry.Nop()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Minute
	}

	return &HTTPFetcher{
		feedURL:  cfg.FeedURL,
		cacheDir: cfg.CacheDir,
		client:   &http.Client{Timeout: timeout},
		log:      log.Component("fetch"),
	}, nil
}

// artifactName is the cache file name for a package.
func artifactName(pkg manifest.ConcretePackage) string {
	return pkg.ID + "-" + pkg.Version + ".pkg"
}

// Fetch returns a local path for the package artifact. With an offline cache
// directory set, only that directory is consulted and a miss is ErrNotFound.
func (f *HTTPFetcher) Fetch(ctx context.Context, pkg manifest.ConcretePackage, offlineCacheDir string) (string, error) {
	name := artifactName(pkg)

	if offlineCacheDir != "" {
		path := filepath.Join(offlineCacheDir, name)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return "", fmt.Errorf("%s not in offline cache: %w", pkg, ErrNotFound)
			}
			return "", fmt.Errorf("failed to probe offline cache: %w", err)
		}
		f.log.WithPack(pkg.String()).Debug("serving package from offline cache")
		return path, nil
	}

	cached := filepath.Join(f.cacheDir, name)
	if _, err := os.Stat(cached); err == nil {
		f.log.WithPack(pkg.String()).Debug("package cache hit")
		return cached, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to probe cache: %w", err)
	}

	if err := f.download(ctx, pkg, cached); err != nil {
		return "", err
	}
	return cached, nil
}

// download streams the artifact to a temp file and renames it into the cache,
// so a concurrent reader never sees a partial artifact.
func (f *HTTPFetcher) download(ctx context.Context, pkg manifest.ConcretePackage, dst string) error {
	u, err := url.JoinPath(f.feedURL, pkg.ID, pkg.Version)
	if err != nil {
		return fmt.Errorf("failed to build feed URL: %w", err)
	}

	f.log.WithPack(pkg.String()).Info("downloading package")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", pkg, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("feed has no %s: %w", pkg, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("feed returned %s for %s", resp.Status, pkg)
	}

	tmp, err := os.CreateTemp(f.cacheDir, ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close artifact: %w", err)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to place artifact in cache: %w", err)
	}
	return nil
}

// HTTPManifestSource fetches the newest manifest document for a generation
// from the feed. The feed serves the version as a decimal string at
// <feed>/manifests/<generation>/<id>/latest and the document one level below.
type HTTPManifestSource struct {
	feedURL string
	client  *http.Client
	log     *telemetry.Logger
}

// NewHTTPManifestSource creates a manifest source for the given feed.
func NewHTTPManifestSource(cfg Config, log *telemetry.Logger) (*HTTPManifestSource, error) {
	if cfg.FeedURL == "" {
		return nil, fmt.Errorf("feed URL is required")
	}
	if log == nil {
		log = telemetry.Nop()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = time.Minute
	}

	return &HTTPManifestSource{
		feedURL: cfg.FeedURL,
		client:  &http.Client{Timeout: timeout},
		log:     log.Component("fetch"),
	}, nil
}

// GetLatest returns the newest published version and document content for the
// manifest within the generation.
func (s *HTTPManifestSource) GetLatest(ctx context.Context, id string, gen manifest.Generation) (int64, []byte, error) {
	latestURL, err := url.JoinPath(s.feedURL, "manifests", string(gen), id, "latest")
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build feed URL: %w", err)
	}

	body, err := s.get(ctx, latestURL)
	if err != nil {
		return 0, nil, err
	}

	var version int64
	if _, err := fmt.Sscanf(string(body), "%d", &version); err != nil {
		return 0, nil, fmt.Errorf("feed returned corrupt version for %s: %w", id, err)
	}

	docURL, err := url.JoinPath(s.feedURL, "manifests", string(gen), id, fmt.Sprintf("%d", version))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build feed URL: %w", err)
	}

	doc, err := s.get(ctx, docURL)
	if err != nil {
		return 0, nil, err
	}
	return version, doc, nil
}

func (s *HTTPManifestSource) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("manifest feed request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("manifest feed has no %s: %w", u, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("manifest feed returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed response: %w", err)
	}
	return body, nil
}
