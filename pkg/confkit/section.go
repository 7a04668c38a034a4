// Package confkit holds the small config helpers shared by the server and
// the CLI: side-file sections, path resolution and .env loading.
package confkit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Section is a config block kept in its own file and loaded after the main
// config, e.g. `Market: {File: market.yaml}`.
type Section[T any] struct {
	File  string `json:",optional"`
	Value *T     `json:"-"`
}

// Hydrate loads File (relative to base) with loader. An empty File is a no-op.
func (s *Section[T]) Hydrate(base string, loader func(string) (*T, error)) error {
	if strings.TrimSpace(s.File) == "" {
		return nil
	}
	p := ResolvePath(base, s.File)
	v, err := loader(p)
	if err != nil {
		return err
	}
	s.File, s.Value = p, v
	return nil
}

// OrElse returns Value, or falls back to the loader's default when the
// section was never hydrated.
func (s *Section[T]) OrElse(fallback func() (*T, error)) (*T, error) {
	if s.Value != nil {
		return s.Value, nil
	}
	return fallback()
}

// Describe renders the section for config summaries.
func (s Section[T]) Describe() string {
	switch {
	case strings.TrimSpace(s.File) != "":
		return s.File
	case s.Value != nil:
		return "inline"
	default:
		return "not configured"
	}
}

// ResolvePath expands env vars in file and joins it to base unless absolute.
func ResolvePath(base, file string) string {
	file = os.ExpandEnv(strings.TrimSpace(file))
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(base, file)
}

// BaseDir is the directory holding the main config file.
func BaseDir(mainPath string) string {
	return filepath.Dir(mainPath)
}

// ProjectRoot walks up from the working directory, then from this source
// file, until it finds go.mod or etc/coinboard.yaml.
func ProjectRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return ".", fmt.Errorf("confkit: getwd: %w", err)
	}
	if root, ok := findRoot(wd); ok {
		return root, nil
	}
	if root, ok := findRoot(sourceDir()); ok {
		return root, nil
	}
	return wd, nil
}

// ProjectPath joins the project root with rel.
func ProjectPath(rel string) (string, error) {
	root, err := ProjectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, rel), nil
}

// MustProjectPath is ProjectPath that panics.
func MustProjectPath(rel string) string {
	p, err := ProjectPath(rel)
	if err != nil {
		panic(err)
	}
	return p
}

func findRoot(dir string) (string, bool) {
	if dir == "" {
		return "", false
	}
	for i := 0; i < 8; i++ {
		if fileExists(filepath.Join(dir, "go.mod")) || fileExists(filepath.Join(dir, "etc", "coinboard.yaml")) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	_, err := os.Stat(p)
	return err == nil
}
