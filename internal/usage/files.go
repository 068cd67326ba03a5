package usage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"changeguard/internal/paths"
)

// binaryExtensions are never opened
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".ico": true, ".webp": true,
	".pdf": true, ".zip": true, ".gz": true, ".tgz": true, ".bz2": true, ".xz": true, ".7z": true, ".tar": true,
	".jar": true, ".war": true, ".class": true, ".so": true, ".dylib": true, ".dll": true, ".exe": true,
	".a": true, ".o": true, ".wasm": true, ".pyc": true, ".woff": true, ".woff2": true, ".ttf": true,
	".eot": true, ".mp3": true, ".mp4": true, ".mov": true, ".db": true, ".sqlite": true, ".bin": true,
}

// IsBinaryPath reports whether the extension marks a binary file
func IsBinaryPath(path string) bool {
	return binaryExtensions[strings.ToLower(filepath.Ext(path))]
}

// isBinaryContent applies the same NUL-byte heuristic git uses
func isBinaryContent(data []byte) bool {
	n := min(len(data), 8000)
	for i := 0; i < n; i++ {
		if data[i] == 0 {
			return true
		}
	}
	return false
}

// collectFiles walks the root, or filters the caller's list, and returns a
// sorted repo-relative file set.
func collectFiles(opts *Options, excludeDirs map[string]bool, excludeGlobs *paths.GlobSet) ([]string, error) {
	keep := func(rel string, size int64) bool {
		if IsBinaryPath(rel) || excludeGlobs.Match(rel) {
			return false
		}
		if opts.MaxFileSizeBytes > 0 && size > opts.MaxFileSizeBytes {
			return false
		}
		return true
	}

	var files []string
	if opts.Files != nil {
		for _, f := range opts.Files {
			rel := paths.NormalizePath(f)
			if rel == "" || inExcludedDir(rel, excludeDirs) {
				continue
			}
			var size int64
			if info, err := os.Stat(paths.JoinRepoPath(opts.Root, rel)); err == nil {
				size = info.Size()
			}
			if keep(rel, size) {
				files = append(files, rel)
			}
		}
	} else {
		err := filepath.WalkDir(opts.Root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == opts.Root {
					return err
				}
				return nil
			}
			if d.IsDir() {
				if path != opts.Root && excludeDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(opts.Root, path)
			if err != nil {
				return nil
			}
			rel = paths.NormalizePath(rel)
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if keep(rel, info.Size()) {
				files = append(files, rel)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", opts.Root, err)
		}
	}

	sort.Strings(files)
	return dedupeSorted(files), nil
}

func inExcludedDir(rel string, excludeDirs map[string]bool) bool {
	parts := strings.Split(rel, "/")
	for _, p := range parts[:len(parts)-1] {
		if excludeDirs[p] {
			return true
		}
	}
	return false
}

func dedupeSorted(files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		if len(out) > 0 && out[len(out)-1] == f {
			continue
		}
		out = append(out, f)
	}
	return out
}
