package project

import (
	"bufio"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"changeguard/internal/impact"
	"changeguard/internal/paths"
	"changeguard/internal/slogutil"
	"changeguard/internal/symbols"
)

// manifestNames are the files that mark a package root
var manifestNames = map[string]bool{
	"package.json":     true,
	"go.mod":           true,
	"Cargo.toml":       true,
	"pyproject.toml":   true,
	"setup.py":         true,
	"pom.xml":          true,
	"build.gradle":     true,
	"build.gradle.kts": true,
	"composer.json":    true,
	"Gemfile":          true,
}

// ProfilerOptions bounds the tree inspection
type ProfilerOptions struct {
	ExcludeDirs    []string // Directory base names never entered
	MaxDepth       int      // Directory depth below root that is inspected
	MaxSampleFiles int      // Source files searched for route registrations
}

// DefaultProfilerOptions returns the bounds used by the CLI
func DefaultProfilerOptions() ProfilerOptions {
	return ProfilerOptions{
		ExcludeDirs:    []string{".git", "node_modules", "vendor", "dist", "build", "target", ".venv", "venv", "__pycache__"},
		MaxDepth:       4,
		MaxSampleFiles: 300,
	}
}

// Profiler computes a ProjectProfile from a repository root
type Profiler struct {
	opts        ProfilerOptions
	excludeDirs map[string]bool
	logger      *slog.Logger
}

// NewProfiler creates a profiler
func NewProfiler(opts ProfilerOptions, logger *slog.Logger) *Profiler {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	def := DefaultProfilerOptions()
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = def.MaxDepth
	}
	if opts.MaxSampleFiles <= 0 {
		opts.MaxSampleFiles = def.MaxSampleFiles
	}
	if opts.ExcludeDirs == nil {
		opts.ExcludeDirs = def.ExcludeDirs
	}
	dirs := make(map[string]bool, len(opts.ExcludeDirs))
	for _, d := range opts.ExcludeDirs {
		dirs[d] = true
	}
	return &Profiler{opts: opts, excludeDirs: dirs, logger: logger}
}

// treeFacts is what a bounded walk below the root found
type treeFacts struct {
	nested  []string // Manifests below the root
	samples []string // Source files to search for routes
	goMain  string   // First non-test Go file declaring package main
}

// Profile classifies the project's posture. It never fails: unreadable or
// malformed manifests are reported as evidence and the remaining signals decide.
//
// Order: workspace declaration -> Monorepo; published root package or
// importable Go library -> PublishedLibrary; two or more nested manifests ->
// Monorepo; route registrations -> InternalService; otherwise StandaloneApp.
func (p *Profiler) Profile(root string) impact.ProjectProfile {
	profile := impact.ProjectProfile{Evidence: make([]string, 0)}
	if lang, manifest, ok := DetectLanguage(root); ok {
		profile.Language = string(lang)
		profile.Evidence = append(profile.Evidence, fmt.Sprintf("language %s from %s", LanguageDisplayName(lang), manifest))
	}

	facts := &rootFacts{}
	facts.readPackageJSON(root)
	facts.readLerna(root)
	facts.readPnpmWorkspace(root)
	facts.readGoWork(root)
	facts.readGoMod(root)
	facts.readCargo(root)
	facts.readPyproject(root)
	profile.Evidence = append(profile.Evidence, facts.errors...)
	profile.Evidence = append(profile.Evidence, facts.private...)

	tree := p.walk(root)

	decide := func(posture impact.Posture, reasons ...string) impact.ProjectProfile {
		profile.Posture = posture
		profile.Evidence = append(profile.Evidence, reasons...)
		p.logger.Debug("Profiled project",
			"root", root,
			"posture", posture,
			"language", profile.Language,
			"evidence", len(profile.Evidence))
		return profile
	}

	if len(facts.workspace) > 0 {
		return decide(impact.PostureMonorepo, facts.workspace...)
	}
	if len(facts.published) > 0 {
		return decide(impact.PosturePublishedLibrary, facts.published...)
	}
	if facts.goModule != "" && importable(facts.goModule) && tree.goMain == "" {
		return decide(impact.PosturePublishedLibrary, fmt.Sprintf("go.mod module %s has no main package", facts.goModule))
	}
	if len(tree.nested) >= 2 {
		return decide(impact.PostureMonorepo, fmt.Sprintf("%d nested manifests (%s)", len(tree.nested), strings.Join(tree.nested, ", ")))
	}
	if route := p.findRoute(root, tree.samples); route != "" {
		return decide(impact.PostureInternalService, route)
	}
	return decide(impact.PostureStandaloneApp, "no library, workspace or service signals")
}

// walk inspects the tree below root up to MaxDepth
func (p *Profiler) walk(root string) treeFacts {
	var facts treeFacts
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = paths.NormalizePath(rel)
		depth := strings.Count(rel, "/")

		if d.IsDir() {
			if path == root {
				return nil
			}
			if p.excludeDirs[d.Name()] || strings.HasPrefix(d.Name(), ".") || depth >= p.opts.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		if manifestNames[d.Name()] && depth > 0 {
			facts.nested = append(facts.nested, rel)
		}
		lang := symbols.LanguageFromPath(rel)
		if lang == symbols.LangUnknown || lang.IsConfig() || looksLikeTest(rel) {
			return nil
		}
		if len(facts.samples) < p.opts.MaxSampleFiles {
			facts.samples = append(facts.samples, rel)
		}
		if lang == symbols.LangGo && facts.goMain == "" && declaresMain(path) {
			facts.goMain = rel
		}
		return nil
	})
	return facts
}

// findRoute returns evidence for the first route registration in the sample
func (p *Profiler) findRoute(root string, samples []string) string {
	for _, rel := range samples {
		lang := symbols.LanguageFromPath(rel)
		found := ""
		scanLines(filepath.Join(root, filepath.FromSlash(rel)), func(n int, line string) bool {
			if symbols.IsCommentLine(line) {
				return true
			}
			if routes := symbols.MatchRoutes(line, lang); len(routes) > 0 {
				found = fmt.Sprintf("route registration %s at %s:%d", routes[0].Signature, rel, n)
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// declaresMain reports whether a Go file belongs to package main
func declaresMain(path string) bool {
	isMain := false
	scanLines(path, func(_ int, line string) bool {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "package "); ok {
			isMain = strings.TrimSpace(rest) == "main"
			return false
		}
		return true
	})
	return isMain
}

// scanLines calls fn for each line until it returns false
func scanLines(path string, fn func(n int, line string) bool) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		if !fn(n, scanner.Text()) {
			return
		}
	}
}

func looksLikeTest(rel string) bool {
	base := filepath.Base(rel)
	if strings.Contains(base, "_test.") || strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.") || strings.HasPrefix(base, "test_") {
		return true
	}
	for _, seg := range strings.Split(rel, "/") {
		switch seg {
		case "test", "tests", "__tests__", "spec", "testdata":
			return true
		}
	}
	return false
}
