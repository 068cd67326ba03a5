package breaking

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"changeguard/internal/config"
	"changeguard/internal/diff"
	cgerrors "changeguard/internal/errors"
	"changeguard/internal/impact"
	"changeguard/internal/metrics"
	"changeguard/internal/output"
	"changeguard/internal/paths"
	"changeguard/internal/project"
	"changeguard/internal/slogutil"
	"changeguard/internal/usage"
)

var tracer = otel.Tracer("changeguard/breaking")

// Options configures an Analyzer
type Options struct {
	Extract       ExtractOptions
	Scan          usage.Options // Root and Files come from each Input
	EntryPoints   []string
	Profiler      project.ProfilerOptions
	SkipGenerated bool // Drop lockfiles, vendored and generated files from the diff
	IncludeSafe   bool
}

// OptionsFromConfig maps a loaded configuration onto analyzer options
func OptionsFromConfig(cfg *config.Config) Options {
	profiler := project.DefaultProfilerOptions()
	profiler.ExcludeDirs = cfg.Scan.ExcludeDirs
	return Options{
		Extract: ExtractOptions{RenameOverlapThreshold: cfg.Extraction.RenameOverlapThreshold},
		Scan: usage.Options{
			TestGlobs:        cfg.Scan.TestGlobs,
			ExcludeDirs:      cfg.Scan.ExcludeDirs,
			ExcludeGlobs:     cfg.Scan.ExcludeGlobs,
			MaxFileSizeBytes: cfg.Scan.MaxFileSizeBytes,
			CandidateWorkers: cfg.Scan.CandidateWorkers,
			FileWorkers:      cfg.Scan.FileWorkers,
			MaxOpenFiles:     int64(cfg.Scan.MaxOpenFiles),
			Timeout:          cfg.ScanTimeout(),
		},
		EntryPoints:   cfg.Visibility.EntryPoints,
		Profiler:      profiler,
		SkipGenerated: cfg.Scan.SkipGenerated,
		IncludeSafe:   cfg.Report.IncludeSafe,
	}
}

// Input is one analysis request
type Input struct {
	DiffText   string
	Root       string                   // Codebase root; empty means the working directory
	Files      []string                 // Optional repo-relative file list for the usage scan
	TestSignal *impact.TestSignal       // Optional outcome of an external test run
	Manifest   *impact.PublishedSurface // Optional published interface; overrides heuristics
}

// Analyzer runs the pipeline: parse, extract, then visibility, usages and
// posture concurrently, then classification and assembly.
type Analyzer struct {
	opts        Options
	entryPoints *paths.GlobSet
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewAnalyzer creates an analyzer. It fails on invalid glob patterns.
// m may be nil.
func NewAnalyzer(opts Options, logger *slog.Logger, m *metrics.Metrics) (*Analyzer, error) {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	entryPoints, err := paths.CompileGlobs(opts.EntryPoints)
	if err != nil {
		return nil, cgerrors.NewAnalysisError(cgerrors.ConfigInvalid, "invalid entry point pattern", err)
	}
	// Surface bad test/exclude globs now instead of on the first run
	if _, err := usage.NewIndexer(opts.Scan, nil); err != nil {
		return nil, cgerrors.NewAnalysisError(cgerrors.ConfigInvalid, "invalid scan pattern", err)
	}
	return &Analyzer{
		opts:        opts,
		entryPoints: entryPoints,
		logger:      logger,
		metrics:     m,
	}, nil
}

// Analyze produces the report for one diff. The only fatal errors are a
// malformed diff and a root whose files cannot be listed.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*output.Report, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Analyzer.Analyze")
	defer span.End()

	root := in.Root
	if root == "" {
		root = "."
	}

	var parsed *impact.ParsedDiff
	err := a.stage(ctx, metrics.StageParse, func(context.Context, trace.Span) error {
		pd, err := diff.NewGitDiffParser().Parse(in.DiffText)
		if err != nil {
			return err
		}
		if a.opts.SkipGenerated {
			pd = diff.FilterSourceFiles(pd)
		}
		parsed = pd
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	added := diff.AddedLines(parsed)

	var candidates []impact.Candidate
	a.step(ctx, metrics.StageExtract, func(s trace.Span) {
		extracted := NewExtractor(a.opts.Extract, a.logger).Extract(parsed)
		candidates = NewRefiner(root, a.logger).Refine(extracted, added)
		s.SetAttributes(
			attribute.Int("diff.hunks", len(parsed.Hunks)),
			attribute.Int("candidates", len(candidates)),
		)
	})
	a.metrics.RecordCandidates(candidates)

	verdicts := make([]impact.VisibilityVerdict, len(candidates))
	var scan *usage.Result
	var profile impact.ProjectProfile

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.step(gctx, metrics.StageResolve, func(trace.Span) {
			resolver := impact.NewResolver(impact.ResolverOptions{
				FS:          os.DirFS(root),
				EntryPoints: a.entryPoints,
				Surface:     in.Manifest,
			})
			for i := range candidates {
				verdicts[i] = resolver.Resolve(candidates[i])
			}
		})
		return nil
	})
	g.Go(func() error {
		return a.stage(gctx, metrics.StageUsage, func(sctx context.Context, s trace.Span) error {
			opts := a.opts.Scan
			opts.Root = root
			opts.Files = in.Files
			ix, err := usage.NewIndexer(opts, a.logger)
			if err != nil {
				return cgerrors.NewAnalysisError(cgerrors.ConfigInvalid, "invalid scan pattern", err)
			}
			res, err := ix.Index(sctx, candidates, usage.NewExclusions(added))
			if err != nil {
				return cgerrors.NewAnalysisError(cgerrors.InvalidInput, fmt.Sprintf("cannot list files under %s", root), err)
			}
			s.SetAttributes(attribute.Int("files", res.FilesTotal))
			scan = res
			return nil
		})
	})
	g.Go(func() error {
		a.step(gctx, metrics.StageProfile, func(s trace.Span) {
			profile = project.NewProfiler(a.opts.Profiler, a.logger).Profile(root)
			s.SetAttributes(attribute.String("posture", string(profile.Posture)))
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	a.metrics.RecordUsage(scan.Usages)

	findings := make([]impact.Finding, 0, len(candidates))
	a.step(ctx, metrics.StageClassify, func(trace.Span) {
		for i := range candidates {
			findings = append(findings, impact.Classify(impact.ClassifyInput{
				Candidate:  candidates[i],
				Verdict:    verdicts[i],
				Usage:      scan.Usages[candidates[i].Key()],
				Profile:    profile,
				TestSignal: in.TestSignal,
			}))
		}
	})
	a.metrics.RecordFindings(findings)

	var report *output.Report
	a.step(ctx, metrics.StageAssemble, func(trace.Span) {
		report = output.Assemble(findings, output.Options{
			IncludeSafe: a.opts.IncludeSafe,
			Profile:     &profile,
			Warnings:    runWarnings(parsed, scan, &profile),
		})
	})

	span.SetAttributes(
		attribute.Int("findings.breaking", report.Summary.Breaking),
		attribute.Int("findings.risky", report.Summary.Risky),
	)
	a.logger.Info("Analysis complete",
		"verdict", report.Verdict,
		"candidates", len(candidates),
		"posture", profile.Posture,
		"duration", time.Since(start))
	return report, nil
}

// stage runs fn inside a child span and records its duration
func (a *Analyzer) stage(ctx context.Context, name string, fn func(context.Context, trace.Span) error) error {
	ctx, span := tracer.Start(ctx, "Analyzer."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx, span)
	a.metrics.ObserveStage(name, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	a.logger.Debug("Stage finished", "stage", name, "duration", time.Since(start))
	return err
}

// step is stage for work that cannot fail
func (a *Analyzer) step(ctx context.Context, name string, fn func(trace.Span)) {
	_, span := tracer.Start(ctx, "Analyzer."+name)
	defer span.End()

	start := time.Now()
	fn(span)
	a.metrics.ObserveStage(name, time.Since(start))
	a.logger.Debug("Stage finished", "stage", name, "duration", time.Since(start))
}

// runWarnings gathers run-level problems from the diff, the usage scan and
// unreadable manifests.
func runWarnings(pd *impact.ParsedDiff, scan *usage.Result, profile *impact.ProjectProfile) []output.Warning {
	var out []output.Warning
	for _, w := range pd.Warnings {
		out = append(out, output.Warning{Severity: "warning", Text: w})
	}
	for _, w := range scan.Warnings {
		out = append(out, output.Warning{Severity: "info", Text: w})
	}
	for _, e := range profile.Evidence {
		if strings.HasPrefix(e, "manifest-error") {
			out = append(out, output.Warning{Severity: "warning", Text: e, Code: string(cgerrors.ManifestUnreadable)})
		}
	}
	return out
}
