package backends

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/packforge/packforge/pkg/engine"
)

// probe checks whether one backend technology can serve the install root and
// constructs it if so.
type probe struct {
	name  string
	build func(root string) (engine.Backend, bool, error)
}

// probes are tried in order; the first one that reports capable wins. The
// file backend is the universal fallback and always terminates the list.
var probes = []probe{
	{
		name: "file",
		build: func(root string) (engine.Backend, bool, error) {
			b, err := NewFileBackend(root)
			if err != nil {
				return nil, false, err
			}
			return b, true, nil
		},
	},
}

// Detect probes the install root and returns the first capable backend.
func Detect(root string) (engine.Backend, error) {
	if root == "" {
		return nil, fmt.Errorf("install root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create install root: %w", err)
	}
	if err := checkWritable(root); err != nil {
		return nil, err
	}

	for _, p := range probes {
		b, ok, err := p.build(root)
		if err != nil {
			return nil, fmt.Errorf("backend %s failed to initialize: %w", p.name, err)
		}
		if ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("no backend can serve install root %s", root)
}

// checkWritable verifies the process can create files under the root.
func checkWritable(root string) error {
	f, err := os.CreateTemp(root, ".probe-*")
	if err != nil {
		return fmt.Errorf("install root %s is not writable: %w", root, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(filepath.Clean(name))
	return nil
}
