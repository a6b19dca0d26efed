package manifest

import (
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// validate is the shared struct validator for decoded manifests.
var validate = validator.New()

// Parse decodes and validates a single manifest document.
func Parse(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	m := &Manifest{}
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	if err := validate.Struct(m); err != nil {
		return nil, fmt.Errorf("manifest %q failed validation: %w", m.ID, err)
	}

	for i := range m.Workloads {
		if err := validate.Struct(&m.Workloads[i]); err != nil {
			return nil, fmt.Errorf("manifest %q workload %q failed validation: %w", m.ID, m.Workloads[i].ID, err)
		}
	}
	for i := range m.Packs {
		p := &m.Packs[i]
		if err := validate.Struct(p); err != nil {
			return nil, fmt.Errorf("manifest %q pack %q failed validation: %w", m.ID, p.ID, err)
		}
		if !p.Kind.valid() {
			return nil, fmt.Errorf("manifest %q pack %q has unknown kind %q", m.ID, p.ID, p.Kind)
		}
	}

	return m, nil
}

// ParseFile decodes and validates the manifest at path.
func ParseFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Encode writes the manifest as YAML.
func Encode(w io.Writer, m *Manifest) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return enc.Close()
}
