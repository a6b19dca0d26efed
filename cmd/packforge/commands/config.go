package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/packforge/packforge/pkg/fetch"
	"github.com/packforge/packforge/pkg/manifest"
	"github.com/packforge/packforge/pkg/telemetry"
)

// Config is the engine configuration loaded from YAML.
type Config struct {
	// Root is the install root directory.
	Root string `yaml:"root" validate:"required"`

	// Platform is the host platform key (e.g. "linux-x64").
	Platform string `yaml:"platform" validate:"required"`

	// ManifestIDs are the manifest documents consulted per generation.
	ManifestIDs []string `yaml:"manifest_ids" validate:"required,min=1"`

	// Database is the installation record database path.
	Database string `yaml:"database" validate:"required"`

	// Feed configures the package and manifest feed.
	Feed fetch.Config `yaml:"feed"`

	// Logging configures the logger.
	Logging telemetry.LoggingConfig `yaml:"logging"`

	// Metrics configures prometheus metrics.
	Metrics telemetry.MetricsConfig `yaml:"metrics"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	root := "/var/lib/packforge"
	if home, err := os.UserHomeDir(); err == nil {
		root = filepath.Join(home, ".packforge")
	}

	return Config{
		Root:        root,
		Platform:    hostPlatform(),
		ManifestIDs: []string{"packforge.core"},
		Database:    filepath.Join(root, "records.db"),
		Feed: fetch.Config{
			FeedURL:  "https://feed.packforge.dev",
			CacheDir: filepath.Join(root, "cache"),
		},
		Logging: telemetry.LoggingConfig{Level: "info", Format: "console"},
		Metrics: telemetry.MetricsConfig{Namespace: "packforge"},
	}
}

// LoadConfig loads configuration from the given path, layered over defaults.
// An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if verbose {
		cfg.Logging.Level = "debug"
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// hostPlatform maps the Go runtime identifiers onto the RID-style platform
// keys manifests use.
func hostPlatform() string {
	arch := runtime.GOARCH
	switch arch {
	case "amd64":
		arch = "x64"
	case "386":
		arch = "x86"
	}

	goos := runtime.GOOS
	if goos == "darwin" {
		goos = "osx"
	}

	return goos + "-" + arch
}

// generationFlag parses the required --generation flag value.
func generationFlag(value string) (manifest.Generation, error) {
	if value == "" {
		return "", fmt.Errorf("--generation is required")
	}
	return manifest.Generation(value), nil
}
