package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/vtex"
)

// manifest lists the texture sets to slice.
//
//	[[set]]
//	name = "brick"
//	albedo = "brick_albedo.png"
//	normal = "brick_normal.png"
//	roughness_metalness_ao = "brick_orm.png"
//	scale = [1.0, 1.0, 1.0]
type manifest struct {
	Sets []vtex.TextureSetDesc `toml:"set"`
}

// parseManifest decodes a manifest. Relative image paths are resolved
// against dir.
func parseManifest(data []byte, dir string) (manifest, error) {
	var m manifest
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		var se *toml.StrictMissingError
		if errors.As(err, &se) {
			keys := make([]string, len(se.Errors))
			for i := range se.Errors {
				keys[i] = strings.Join(se.Errors[i].Key(), ".")
			}
			return manifest{}, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
		return manifest{}, err
	}

	seen := make(map[string]bool, len(m.Sets))
	for i := range m.Sets {
		s := &m.Sets[i]
		if s.Name == "" {
			return manifest{}, fmt.Errorf("set %d has no name", i)
		}
		if seen[s.Name] {
			return manifest{}, fmt.Errorf("duplicate set %q", s.Name)
		}
		seen[s.Name] = true
		for _, p := range []*string{&s.Albedo, &s.Normal, &s.RoughnessMetalnessAO} {
			if *p != "" && !filepath.IsAbs(*p) {
				*p = filepath.Join(dir, *p)
			}
		}
	}
	return m, nil
}

func loadManifest(path string) (manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return manifest{}, err
	}
	m, err := parseManifest(data, filepath.Dir(path))
	if err != nil {
		return manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
