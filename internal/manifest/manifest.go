// Package manifest reads and writes the YAML dataset manifest used by
// load and export.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Version is the manifest format version written by Write.
const Version = 1

// Dataset is the manifest document.
type Dataset struct {
	Version    int               `yaml:"version"`
	Metadata   map[string]string `yaml:"metadata,omitempty"`
	Categories []Category        `yaml:"categories,omitempty"`
	Images     []Image           `yaml:"images,omitempty"`
}

// Category lists the captions grouped under one category.
type Category struct {
	Name     string   `yaml:"name"`
	Required bool     `yaml:"required,omitempty"`
	Captions []string `yaml:"captions,omitempty"`
}

// Image lists the captions and tags of one image.
type Image struct {
	Path     string   `yaml:"path"`
	Captions []string `yaml:"captions,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`
}

// Read decodes a manifest. Unknown keys are rejected.
func Read(r io.Reader) (*Dataset, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var ds Dataset
	if err := dec.Decode(&ds); err != nil {
		if errors.Is(err, io.EOF) {
			return &Dataset{Version: Version}, nil
		}
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if ds.Version == 0 {
		ds.Version = Version
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// ReadFile reads a manifest from disk. Relative image paths are resolved
// against the manifest's directory.
func ReadFile(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ds, err := Read(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	for i := range ds.Images {
		if !filepath.IsAbs(ds.Images[i].Path) {
			ds.Images[i].Path = filepath.Join(base, ds.Images[i].Path)
		}
	}
	return ds, nil
}

// Validate checks the structural rules of a manifest.
func (d *Dataset) Validate() error {
	if d.Version != Version {
		return fmt.Errorf("unsupported manifest version %d", d.Version)
	}
	seenCategories := make(map[string]struct{}, len(d.Categories))
	for i, category := range d.Categories {
		name := strings.TrimSpace(category.Name)
		if name == "" {
			return fmt.Errorf("categories[%d]: name is required", i)
		}
		if _, ok := seenCategories[name]; ok {
			return fmt.Errorf("categories[%d]: duplicate category %q", i, name)
		}
		seenCategories[name] = struct{}{}
	}
	seenImages := make(map[string]struct{}, len(d.Images))
	for i, image := range d.Images {
		path := strings.TrimSpace(image.Path)
		if path == "" {
			return fmt.Errorf("images[%d]: path is required", i)
		}
		if _, ok := seenImages[path]; ok {
			return fmt.Errorf("images[%d]: duplicate image %q", i, path)
		}
		seenImages[path] = struct{}{}
	}
	return nil
}

// Write encodes a manifest with two-space indentation.
func Write(w io.Writer, ds *Dataset) error {
	if ds == nil {
		return fmt.Errorf("manifest is required")
	}
	if ds.Version == 0 {
		ds.Version = Version
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(ds); err != nil {
		return err
	}
	return enc.Close()
}

// WriteFile writes a manifest atomically by renaming a temp file into place.
func WriteFile(path string, ds *Dataset) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".manifest-*.yaml")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := Write(tmp, ds); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}
