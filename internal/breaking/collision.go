package breaking

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"changeguard/internal/impact"
	"changeguard/internal/slogutil"
	"changeguard/internal/symbols"
)

// Refiner re-checks extracted candidates against the working tree.
// An added name that is already declared publicly by a sibling file is a
// collision and is treated as a signature change of the existing symbol.
// A removed env var read is dropped when the file still reads the variable.
type Refiner struct {
	root     string
	logger   *slog.Logger
	readFile func(string) ([]byte, error)
	readDir  func(string) ([]os.DirEntry, error)
	cache    map[string][]string
}

// NewRefiner creates a refiner rooted at the repository. An empty root disables it.
func NewRefiner(root string, logger *slog.Logger) *Refiner {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Refiner{
		root:     root,
		logger:   logger,
		readFile: os.ReadFile,
		readDir:  os.ReadDir,
		cache:    make(map[string][]string),
	}
}

// Refine returns the adjusted candidates, renumbered in diff order.
// addedLines maps each file to the new-side line numbers the diff added.
func (r *Refiner) Refine(cands []impact.Candidate, addedLines map[string][]int) []impact.Candidate {
	if r.root == "" {
		return cands
	}
	out := make([]impact.Candidate, 0, len(cands))
	for _, c := range cands {
		switch {
		case c.Kind == impact.ChangeAdded && !c.Collides:
			if d, where, ok := r.findCollision(c, addedLines); ok {
				r.logger.Debug("Added symbol collides with existing declaration",
					"symbol", c.QualifiedName(),
					"existing", where,
				)
				c.Kind = impact.ChangeSignatureChanged
				c.Collides = true
				c.CollidesWith = where
				c.OldSignature = d.Signature
				c.Markers = append([]string(nil), d.Markers...)
			}
		case c.Kind == impact.ChangeRemoved && c.SymbolKind == impact.KindEnvVar &&
			!symbols.LanguageFromPath(c.File).IsConfig():
			if r.stillReadsEnv(c.File, c.Name) {
				r.logger.Debug("Env var still read after removal", "var", c.Name, "file", c.File)
				continue
			}
		}
		out = append(out, c)
	}
	for i := range out {
		out[i].Order = i
	}
	return out
}

// findCollision scans same-language files in the candidate's directory for a
// public top-level declaration with the same identity.
func (r *Refiner) findCollision(c impact.Candidate, addedLines map[string][]int) (symbols.Decl, string, bool) {
	lang := symbols.LanguageFromPath(c.File)
	if lang.IsConfig() || lang == symbols.LangUnknown {
		return symbols.Decl{}, "", false
	}
	dir := path.Dir(c.File)
	entries, err := r.readDir(filepath.Join(r.root, filepath.FromSlash(dir)))
	if err != nil {
		return symbols.Decl{}, "", false
	}

	for _, entry := range entries {
		if entry.IsDir() || symbols.LanguageFromPath(entry.Name()) != lang {
			continue
		}
		rel := path.Join(dir, entry.Name())
		skip := make(map[int]bool)
		for _, n := range addedLines[rel] {
			skip[n] = true
		}
		for i, line := range r.lines(rel) {
			if skip[i+1] {
				continue
			}
			for _, d := range symbols.MatchInScope(line, rel, symbols.Scope{}) {
				if d.Name != c.Name || d.Container != c.Container || kindFamily(d.Kind) != kindFamily(c.SymbolKind) {
					continue
				}
				if isPublicDecl(d) {
					return d, fmt.Sprintf("%s:%d", rel, i+1), true
				}
			}
		}
	}
	return symbols.Decl{}, "", false
}

func isPublicDecl(d symbols.Decl) bool {
	public := false
	for _, m := range d.Markers {
		if impact.IsInternalMarker(m) {
			return false
		}
		if impact.IsPublicMarker(m) {
			public = true
		}
	}
	return public
}

func (r *Refiner) stillReadsEnv(file, name string) bool {
	for _, line := range r.lines(file) {
		if !strings.Contains(line, name) {
			continue
		}
		for _, d := range symbols.MatchEnvRefs(line) {
			if d.Name == name {
				return true
			}
		}
	}
	return false
}

// lines returns the file's current content split into lines; missing files are empty
func (r *Refiner) lines(rel string) []string {
	if l, ok := r.cache[rel]; ok {
		return l
	}
	data, err := r.readFile(filepath.Join(r.root, filepath.FromSlash(rel)))
	var l []string
	if err == nil {
		l = strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	}
	r.cache[rel] = l
	return l
}
