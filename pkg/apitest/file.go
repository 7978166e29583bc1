package apitest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// SuiteFile is the on-disk form of a suite: the suite itself, default
// variables, and its tests inline.
type SuiteFile struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Variables   map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`
	Tests       []Test            `json:"tests" yaml:"tests"`

	// Path is the file the suite was read from.
	Path string `json:"-" yaml:"-"`
}

// Validate checks the suite and each of its tests.
func (f *SuiteFile) Validate() error {
	s := Suite{Name: f.Name}
	if err := s.Validate(); err != nil {
		return err
	}
	if len(f.Tests) == 0 {
		return fieldError("tests", "at least one test is required")
	}
	for i := range f.Tests {
		if err := f.Tests[i].Validate(); err != nil {
			return fmt.Errorf("tests[%d] (%s): %w", i, f.Tests[i].Name, err)
		}
	}
	return nil
}

// LoadSuiteFile reads and validates a suite file. The format follows the
// extension: .yaml and .yml are YAML, anything else JSON.
func LoadSuiteFile(path string) (*SuiteFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("read suite file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	f, err := ParseSuite(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.Path = path
	return f, nil
}

// ParseSuite decodes and validates suite data. ext selects the format as in
// LoadSuiteFile.
func ParseSuite(data []byte, ext string) (*SuiteFile, error) {
	var f SuiteFile
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
		}
		normalizeYAMLValues(f.Tests)
	default:
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
	}

	for i := range f.Tests {
		if f.Tests[i].Order == 0 {
			f.Tests[i].Order = i
		}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// normalizeYAMLValues converts the map[string]any values yaml.v3 decodes into
// the shapes encoding/json would produce, so expected values compare the same
// whichever format a suite was written in.
func normalizeYAMLValues(tests []Test) {
	for i := range tests {
		for j := range tests[i].Assertions {
			a := &tests[i].Assertions[j]
			a.Expected = normalizeValue(a.Expected)
		}
	}
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeValue(val)
		}
		return t
	case []any:
		for i := range t {
			t[i] = normalizeValue(t[i])
		}
		return t
	case int:
		return float64(t)
	default:
		return v
	}
}

// ExpandSuitePatterns expands file paths and doublestar globs such as
// "tests/**/*.yaml" into a sorted, de-duplicated list of files.
func ExpandSuitePatterns(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		var matches []string
		if strings.ContainsAny(pattern, "*?[{") {
			m, err := doublestar.FilepathGlob(pattern)
			if err != nil {
				return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
			}
			matches = m
		} else {
			matches = []string{pattern}
		}
		for _, m := range matches {
			clean := filepath.Clean(m)
			if !seen[clean] {
				seen[clean] = true
				files = append(files, clean)
			}
		}
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	sort.Strings(files)
	return files, nil
}
