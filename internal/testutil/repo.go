// Package testutil provides fixture codebases for package tests.
package testutil

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// Repo is a throwaway codebase on disk
type Repo struct {
	// Root is the absolute path of the repository
	Root string
	t    *testing.T
}

// NewRepo writes files (repo-relative path -> content) into a temp directory,
// failing the test on error.
func NewRepo(t *testing.T, files map[string]string) *Repo {
	t.Helper()

	r := &Repo{Root: t.TempDir(), t: t}
	for rel, content := range files {
		r.Write(rel, content)
	}
	return r
}

// Write creates or replaces one file, creating parent directories
func (r *Repo) Write(rel, content string) {
	r.t.Helper()

	path := r.Path(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		r.t.Fatalf("Failed to create directory for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		r.t.Fatalf("Failed to write %s: %v", rel, err)
	}
}

// WriteBytes writes raw content, e.g. binary fixtures
func (r *Repo) WriteBytes(rel string, data []byte) {
	r.t.Helper()

	path := r.Path(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		r.t.Fatalf("Failed to create directory for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		r.t.Fatalf("Failed to write %s: %v", rel, err)
	}
}

// Path returns the absolute path of a repo-relative file
func (r *Repo) Path(rel string) string {
	return filepath.Join(r.Root, filepath.FromSlash(rel))
}

// Files lists every regular file in the repo as sorted forward-slash paths
func (r *Repo) Files() []string {
	r.t.Helper()

	var files []string
	err := filepath.WalkDir(r.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(r.Root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		r.t.Fatalf("Failed to list repo files: %v", err)
	}
	sort.Strings(files)
	return files
}
