package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseYAML decodes, validates, and normalizes a single workflow definition.
func ParseYAML(data []byte) (*WorkflowVersion, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("definition: payload is empty")
	}

	var v WorkflowVersion
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("definition: decode: %w", err)
	}

	if err := v.Validate(); err != nil {
		return nil, err
	}

	return v.Normalized(), nil
}

// LoadFile reads and parses the workflow definition in the given YAML file.
func LoadFile(path string) (*WorkflowVersion, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("definition: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("definition: %s is a directory", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("definition: read %s: %w", path, err)
	}

	v, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("definition: %s: %w", path, err)
	}

	return v, nil
}

// LoadDir parses all *.yaml and *.yml files in dir, ordered by file name. A missing directory yields no
// definitions.
func LoadDir(dir string) ([]*WorkflowVersion, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("definition: read %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)

	defs := make([]*WorkflowVersion, 0, len(paths))
	for _, path := range paths {
		v, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, v)
	}

	return defs, nil
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
