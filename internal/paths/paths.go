package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

const (
	// ConfigDirName is the per-repository directory holding configuration
	ConfigDirName = ".changeguard"
	// ConfigFileName is the default config file written by `config init`
	ConfigFileName = "config.json"
)

// CanonicalizePath converts an absolute path to a repo-relative canonical path
// - Resolves symlinks to real paths
// - Makes path relative to repo root
// - Converts backslashes to forward slashes
func CanonicalizePath(absolutePath string, repoRoot string) (string, error) {
	resolved, err := filepath.EvalSymlinks(absolutePath)
	if err != nil {
		// If the file doesn't exist yet, use the path as-is
		if os.IsNotExist(err) {
			resolved = absolutePath
		} else {
			return "", err
		}
	}

	repoRootResolved, err := filepath.EvalSymlinks(repoRoot)
	if err != nil {
		if os.IsNotExist(err) {
			repoRootResolved = repoRoot
		} else {
			return "", err
		}
	}

	relativePath, err := filepath.Rel(repoRootResolved, resolved)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(relativePath), nil
}

// IsWithinRepo checks if a path is within the repository root
func IsWithinRepo(path string, repoRoot string) bool {
	canonical, err := CanonicalizePath(path, repoRoot)
	if err != nil {
		return false
	}
	return canonical != ".." && !strings.HasPrefix(canonical, "../")
}

// NormalizePath normalizes a repo-relative path: forward slashes, no leading "./"
func NormalizePath(path string) string {
	p := filepath.ToSlash(path)
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return p
}

// JoinRepoPath joins a repo root with a canonical path
func JoinRepoPath(repoRoot string, canonicalPath string) string {
	normalizedPath := strings.ReplaceAll(canonicalPath, "\\", "/")
	parts := strings.Split(normalizedPath, "/")
	return filepath.Join(append([]string{repoRoot}, parts...)...)
}

// ConfigDir returns <repoRoot>/.changeguard
func ConfigDir(repoRoot string) string {
	return filepath.Join(repoRoot, ConfigDirName)
}

// EnsureConfigDir creates the config directory if needed and returns it
func EnsureConfigDir(repoRoot string) (string, error) {
	dir := ConfigDir(repoRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// GlobSet matches repo-relative paths against a list of patterns.
// "*" stays within one path segment and "**" crosses segments. A leading
// "**/" also matches at the repository root.
type GlobSet struct {
	patterns []string
	globs    []glob.Glob
}

// CompileGlobs compiles the patterns, failing on the first invalid one
func CompileGlobs(patterns []string) (*GlobSet, error) {
	gs := &GlobSet{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", p, err)
		}
		gs.patterns = append(gs.patterns, p)
		gs.globs = append(gs.globs, g)
		if rest, ok := strings.CutPrefix(p, "**/"); ok {
			if g, err := glob.Compile(rest, '/'); err == nil {
				gs.patterns = append(gs.patterns, p)
				gs.globs = append(gs.globs, g)
			}
		}
	}
	return gs, nil
}

// Match reports whether any pattern matches the path
func (gs *GlobSet) Match(path string) bool {
	_, ok := gs.MatchPattern(path)
	return ok
}

// MatchPattern returns the first pattern matching the path
func (gs *GlobSet) MatchPattern(path string) (string, bool) {
	if gs == nil {
		return "", false
	}
	path = NormalizePath(path)
	for i, g := range gs.globs {
		if g.Match(path) {
			return gs.patterns[i], true
		}
	}
	return "", false
}

// Empty reports whether the set has no patterns
func (gs *GlobSet) Empty() bool {
	return gs == nil || len(gs.globs) == 0
}
