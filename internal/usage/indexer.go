// Package usage locates references to changed declarations across a codebase.
//
// Matching is lexical: a usage is a line containing the candidate's name as a
// whole token (case-sensitive, bounded by characters outside [A-Za-z0-9_$]).
// Lines that look like comments are still counted and flagged InComment.
package usage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"changeguard/internal/impact"
	"changeguard/internal/paths"
	"changeguard/internal/slogutil"
	"changeguard/internal/symbols"
)

// Options configures an Indexer. Zero numeric values fall back to defaults.
type Options struct {
	Root             string
	Files            []string // Optional repo-relative file list; nil walks Root
	TestGlobs        []string
	ExcludeDirs      []string // Directory base names skipped during the walk
	ExcludeGlobs     []string
	MaxFileSizeBytes int64
	CandidateWorkers int
	FileWorkers      int
	MaxOpenFiles     int64
	Timeout          time.Duration // Budget for the whole scan; 0 means no budget
}

const (
	defaultCandidateWorkers = 4
	defaultFileWorkers      = 8
	defaultMaxOpenFiles     = 64
)

func (o Options) withDefaults() Options {
	if o.CandidateWorkers <= 0 {
		o.CandidateWorkers = defaultCandidateWorkers
	}
	if o.FileWorkers <= 0 {
		o.FileWorkers = defaultFileWorkers
	}
	if o.MaxOpenFiles <= 0 {
		o.MaxOpenFiles = defaultMaxOpenFiles
	}
	if o.Root == "" {
		o.Root = "."
	}
	return o
}

// Exclusions are (file, new-side line) pairs that never count as usages,
// normally the lines the diff itself added.
type Exclusions map[string]map[int]bool

// NewExclusions builds exclusions from a file -> added lines map
func NewExclusions(added map[string][]int) Exclusions {
	ex := make(Exclusions, len(added))
	for file, lines := range added {
		set := make(map[int]bool, len(lines))
		for _, l := range lines {
			set[l] = true
		}
		ex[paths.NormalizePath(file)] = set
	}
	return ex
}

// Excluded reports whether the line is excluded
func (e Exclusions) Excluded(file string, line int) bool {
	return e[file][line]
}

// Result is the outcome of one Index call
type Result struct {
	Usages     map[impact.CandidateKey]impact.UsageResult
	Warnings   []string // Per-file problems, sorted
	FilesTotal int
}

// NeedsScan reports whether the candidate's usages matter for classification.
// Plain additions cannot have existing callers.
func NeedsScan(c *impact.Candidate) bool {
	return c.Kind != impact.ChangeAdded || c.Collides
}

// Indexer scans files for references to candidates
type Indexer struct {
	opts         Options
	tests        *paths.GlobSet
	excludeGlobs *paths.GlobSet
	excludeDirs  map[string]bool
	sem          *semaphore.Weighted
	logger       *slog.Logger

	beforeRead func(file string) // test hook
}

// NewIndexer creates an indexer. It fails only on invalid glob patterns.
func NewIndexer(opts Options, logger *slog.Logger) (*Indexer, error) {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	opts = opts.withDefaults()

	tests, err := paths.CompileGlobs(opts.TestGlobs)
	if err != nil {
		return nil, fmt.Errorf("test globs: %w", err)
	}
	excludes, err := paths.CompileGlobs(opts.ExcludeGlobs)
	if err != nil {
		return nil, fmt.Errorf("exclude globs: %w", err)
	}
	dirs := make(map[string]bool, len(opts.ExcludeDirs))
	for _, d := range opts.ExcludeDirs {
		dirs[strings.Trim(d, "/")] = true
	}

	return &Indexer{
		opts:         opts,
		tests:        tests,
		excludeGlobs: excludes,
		excludeDirs:  dirs,
		sem:          semaphore.NewWeighted(opts.MaxOpenFiles),
		logger:       logger,
	}, nil
}

// IsTestPath reports whether the path matches a test glob
func (ix *Indexer) IsTestPath(path string) bool {
	return ix.tests.Match(path)
}

// Files returns the file set a scan would visit
func (ix *Indexer) Files() ([]string, error) {
	return collectFiles(&ix.opts, ix.excludeDirs, ix.excludeGlobs)
}

// Index scans the file set once per candidate. Candidates run in a pool of
// CandidateWorkers; each scans files with its own pool of FileWorkers, and every
// open file holds a slot of the shared MaxOpenFiles semaphore.
//
// When the budget or ctx expires, unfinished candidates come back with
// Incomplete set and the records completed so far. The only error is a file
// set that cannot be listed.
func (ix *Indexer) Index(ctx context.Context, candidates []impact.Candidate, excl Exclusions) (*Result, error) {
	start := time.Now()
	files, err := ix.Files()
	if err != nil {
		return nil, err
	}

	if ix.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ix.opts.Timeout)
		defer cancel()
	}

	warnings := newWarningSet()
	results := make([]impact.UsageResult, len(candidates))

	g := new(errgroup.Group)
	g.SetLimit(ix.opts.CandidateWorkers)
	for i := range candidates {
		c := &candidates[i]
		if !NeedsScan(c) {
			continue
		}
		g.Go(func() error {
			results[i] = ix.scanCandidate(ctx, c, files, excl, warnings)
			return nil
		})
	}
	_ = g.Wait()

	out := &Result{
		Usages:     make(map[impact.CandidateKey]impact.UsageResult, len(candidates)),
		Warnings:   warnings.sorted(),
		FilesTotal: len(files),
	}
	incomplete := 0
	for i := range candidates {
		out.Usages[candidates[i].Key()] = results[i]
		if results[i].Incomplete {
			incomplete++
		}
	}

	if incomplete > 0 {
		ix.logger.Warn("Usage scan incomplete",
			"candidates", incomplete,
			"files", len(files),
			"timeout", ix.opts.Timeout)
	}
	ix.logger.Debug("Indexed usages",
		"candidates", len(candidates),
		"files", len(files),
		"warnings", len(out.Warnings),
		"duration", time.Since(start))
	return out, nil
}

type slotState int

const (
	slotPending slotState = iota
	slotDone
	slotSkipped
)

// fileSlot holds one file's outcome for one candidate
type fileSlot struct {
	state   slotState
	records []impact.UsageRecord
}

func (ix *Indexer) scanCandidate(ctx context.Context, c *impact.Candidate, files []string, excl Exclusions, warnings *warningSet) impact.UsageResult {
	slots := make([]fileSlot, len(files))

	g := new(errgroup.Group)
	g.SetLimit(ix.opts.FileWorkers)
	for i, file := range files {
		if expired(ctx) {
			break
		}
		g.Go(func() error {
			slots[i] = ix.scanFile(ctx, c, file, excl, warnings)
			return nil
		})
	}
	_ = g.Wait()

	res := impact.UsageResult{
		Records:    make([]impact.UsageRecord, 0),
		FilesTotal: len(files),
		Scanned:    true,
	}
	for _, s := range slots {
		switch s.state {
		case slotDone:
			res.FilesScanned++
			res.Records = append(res.Records, s.records...)
		case slotSkipped:
			res.FilesSkipped++
		default:
			res.Incomplete = true
		}
	}
	sort.SliceStable(res.Records, func(i, j int) bool {
		if res.Records[i].File != res.Records[j].File {
			return res.Records[i].File < res.Records[j].File
		}
		return res.Records[i].Line < res.Records[j].Line
	})
	return res
}

func (ix *Indexer) scanFile(ctx context.Context, c *impact.Candidate, file string, excl Exclusions, warnings *warningSet) fileSlot {
	if err := ix.sem.Acquire(ctx, 1); err != nil {
		return fileSlot{state: slotPending}
	}
	defer ix.sem.Release(1)
	if expired(ctx) {
		return fileSlot{state: slotPending}
	}
	if ix.beforeRead != nil {
		ix.beforeRead(file)
	}

	data, err := os.ReadFile(paths.JoinRepoPath(ix.opts.Root, file))
	if err != nil {
		warnings.add(file, "unreadable file skipped: "+file)
		return fileSlot{state: slotSkipped}
	}
	if isBinaryContent(data) {
		warnings.add(file, "binary file skipped: "+file)
		return fileSlot{state: slotSkipped}
	}
	return fileSlot{state: slotDone, records: ix.matchContent(c, file, string(data), excl)}
}

// matchContent records every line of content that references the candidate
func (ix *Indexer) matchContent(c *impact.Candidate, file, content string, excl Exclusions) []impact.UsageRecord {
	token := c.Name
	if token == "" || !strings.Contains(content, token) {
		return nil
	}
	selfLine := 0
	if c.NewSignature != "" && file == c.File {
		selfLine = c.Line
	}
	isTest := ix.tests.Match(file)

	var records []impact.UsageRecord
	for i, line := range strings.Split(content, "\n") {
		n := i + 1
		if n == selfLine || excl.Excluded(file, n) {
			continue
		}
		line = strings.TrimSuffix(line, "\r")
		if !impact.ContainsToken(line, token) {
			continue
		}
		records = append(records, impact.UsageRecord{
			Key:       c.Key(),
			File:      file,
			Line:      n,
			IsTest:    isTest,
			InComment: symbols.IsCommentLine(line),
		})
	}
	return records
}

// expired also checks the deadline itself so that a budget that has already
// passed is honored before the context's timer fires.
func expired(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	if dl, ok := ctx.Deadline(); ok && !time.Now().Before(dl) {
		return true
	}
	return false
}

// warningSet accumulates one warning per file across workers
type warningSet struct {
	mu    sync.Mutex
	byKey map[string]string
}

func newWarningSet() *warningSet {
	return &warningSet{byKey: make(map[string]string)}
}

func (w *warningSet) add(file, msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.byKey[file]; !ok {
		w.byKey[file] = msg
	}
}

func (w *warningSet) sorted() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.byKey))
	for _, msg := range w.byKey {
		out = append(out, msg)
	}
	sort.Strings(out)
	return out
}
