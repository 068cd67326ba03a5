package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"changeguard/internal/breaking"
	cgerrors "changeguard/internal/errors"
	"changeguard/internal/impact"
	"changeguard/internal/metrics"
	"changeguard/internal/output"
	"changeguard/internal/version"
)

var (
	analyzeDiffFile    string
	analyzeRoot        string
	analyzeFormat      string
	analyzeManifest    string
	analyzeTimeout     time.Duration
	analyzeTestResult  string
	analyzeFailOn      string
	analyzeIncludeSafe bool
	analyzeMetricsOut  string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Classify every declaration a diff changes",
	Long: `Analyze a unified diff against the codebase it applies to.

The diff is read from --diff, or from stdin when --diff is omitted or "-".
The codebase under --root should be in its post-change state.

Exit codes:
  0  no finding met the --fail-on threshold
  1  a finding met the --fail-on threshold
  2  malformed diff, invalid configuration or invalid input

Examples:
  git diff main | changeguard analyze
  changeguard analyze --diff change.patch --format json
  changeguard analyze --diff - --fail-on risky --format sarif > results.sarif`,
	Args:    cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error { return validateAnalyzeFlags() },
	RunE:    runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeDiffFile, "diff", "-", "Diff file, or - for stdin")
	analyzeCmd.Flags().StringVar(&analyzeRoot, "root", ".", "Codebase root")
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "human", "Output format (human, json, sarif)")
	analyzeCmd.Flags().StringVar(&analyzeManifest, "manifest", "", "Published interface manifest (OpenAPI, Swagger or symbol list)")
	analyzeCmd.Flags().DurationVar(&analyzeTimeout, "timeout", 0, "Usage scan budget, e.g. 30s (default from config)")
	analyzeCmd.Flags().StringVar(&analyzeTestResult, "test-result", "", "Outcome of an external test run (passed, failed, timeout)")
	analyzeCmd.Flags().StringVar(&analyzeFailOn, "fail-on", "", "Exit 1 at this severity (breaking, risky, never; default from config)")
	analyzeCmd.Flags().BoolVar(&analyzeIncludeSafe, "include-safe", false, "Render Safe findings in full")
	analyzeCmd.Flags().StringVar(&analyzeMetricsOut, "metrics-out", "", "Write run metrics in Prometheus text format to this file")

	rootCmd.AddCommand(analyzeCmd)
}

func validateAnalyzeFlags() error {
	switch analyzeFormat {
	case "human", "json", "sarif":
	default:
		return cgerrors.NewAnalysisError(cgerrors.InvalidInput, fmt.Sprintf("unsupported format %q (want human, json or sarif)", analyzeFormat), nil)
	}
	if _, err := parseTestResult(analyzeTestResult); err != nil {
		return err
	}
	if analyzeTimeout < 0 {
		return cgerrors.NewAnalysisError(cgerrors.InvalidInput, "--timeout must not be negative", nil)
	}
	return nil
}

// parseTestResult maps --test-result to a test signal; empty means no signal
func parseTestResult(s string) (*impact.TestSignal, error) {
	switch s {
	case "":
		return nil, nil
	case "passed":
		return &impact.TestSignal{Ran: true, Passed: true}, nil
	case "failed":
		return &impact.TestSignal{Ran: true}, nil
	case "timeout":
		return &impact.TestSignal{Ran: true, TimedOut: true}, nil
	default:
		return nil, cgerrors.NewAnalysisError(cgerrors.InvalidInput, fmt.Sprintf("unknown test result %q (want passed, failed or timeout)", s), nil)
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if err := checkRoot(analyzeRoot); err != nil {
		return err
	}
	cfg, err := loadConfig(analyzeRoot)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("timeout") {
		cfg.Scan.TimeoutMs = int(analyzeTimeout.Milliseconds())
	}
	if flags.Changed("fail-on") {
		cfg.Report.FailOn = analyzeFailOn
	}
	if flags.Changed("include-safe") {
		cfg.Report.IncludeSafe = analyzeIncludeSafe
	}
	if err := cfg.Validate(); err != nil {
		return cgerrors.NewAnalysisError(cgerrors.ConfigInvalid, "invalid configuration", err)
	}

	logger, closeLog, err := runLogger(cmd.ErrOrStderr(), analyzeRoot, cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	diffText, err := readDiff(cmd.InOrStdin(), analyzeDiffFile)
	if err != nil {
		return err
	}
	manifest, err := loadManifest(analyzeRoot, analyzeManifest, cfg.Visibility.ManifestPath)
	if err != nil {
		return err
	}
	signal, _ := parseTestResult(analyzeTestResult)

	var (
		reg *prometheus.Registry
		m   *metrics.Metrics
	)
	if analyzeMetricsOut != "" {
		reg = prometheus.NewRegistry()
		m = metrics.New(reg)
	}

	analyzer, err := breaking.NewAnalyzer(breaking.OptionsFromConfig(cfg), logger, m)
	if err != nil {
		return err
	}
	report, err := analyzer.Analyze(cmd.Context(), breaking.Input{
		DiffText:   diffText,
		Root:       analyzeRoot,
		TestSignal: signal,
		Manifest:   manifest,
	})
	if err != nil {
		return err
	}

	if err := writeReport(cmd.OutOrStdout(), report, analyzeFormat); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if reg != nil {
		if err := metrics.WriteTextFile(analyzeMetricsOut, reg); err != nil {
			logger.Warn("Failed to write metrics", "path", analyzeMetricsOut, "error", err)
		}
	}

	if report.Fails(cfg.Report.FailOn) {
		return &thresholdError{verdict: report.Verdict, failOn: cfg.Report.FailOn}
	}
	return nil
}

// readDiff reads the diff from a file, or from stdin for "" and "-"
func readDiff(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", cgerrors.NewAnalysisError(cgerrors.InvalidInput, "failed to read diff", err)
	}
	return string(data), nil
}

// loadManifest loads the flag manifest, else the configured one (relative to root)
func loadManifest(root, flagPath, configPath string) (*impact.PublishedSurface, error) {
	path := flagPath
	if path == "" && configPath != "" {
		path = configPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
	}
	if path == "" {
		return nil, nil
	}
	surface, err := impact.LoadPublishedSurface(path)
	if err != nil {
		return nil, cgerrors.NewAnalysisError(cgerrors.ManifestUnreadable, "failed to load published interface", err)
	}
	return surface, nil
}

func writeReport(w io.Writer, r *output.Report, format string) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case "json":
		data, err = output.EncodeIndented(r, "  ")
	case "sarif":
		data, err = output.EncodeSARIF(r, version.Version)
		if err == nil {
			data = append(data, '\n')
		}
	default:
		return output.WriteHuman(w, r)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
