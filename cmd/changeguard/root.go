package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"changeguard/internal/config"
	cgerrors "changeguard/internal/errors"
	"changeguard/internal/slogutil"
	"changeguard/internal/version"
)

var (
	verboseFlag int
	quietFlag   bool
	configFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "changeguard",
	Short: "Classify the breaking-change risk of a diff",
	Long: `changeguard reads a unified diff, finds the declarations it changes and
classifies each one as Breaking, Risky or Safe using usages found in the
codebase, declaration visibility and the project's posture.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("changeguard version {{.Version}}\n")
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return cgerrors.NewAnalysisError(cgerrors.InvalidInput, "invalid flags", err)
	})

	rootCmd.PersistentFlags().CountVarP(&verboseFlag, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress all logging")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default <root>/.changeguard/config.*)")
}

// loadConfig reads the --config file or the one under root
func loadConfig(root string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFlag != "" {
		cfg, err = config.LoadConfigFromPath(configFlag)
	} else {
		cfg, err = config.LoadConfig(root)
	}
	if err != nil {
		return nil, cgerrors.NewAnalysisError(cgerrors.ConfigInvalid, "failed to load configuration", err)
	}
	return cfg, nil
}

// cliLevel returns the level chosen by -v/-q, or nil when neither was given
func cliLevel() *slog.Level {
	if verboseFlag == 0 && !quietFlag {
		return nil
	}
	level := slogutil.LevelFromVerbosity(verboseFlag, quietFlag)
	return &level
}

// runLogger builds the logger for one run, tagged with a fresh run id.
// The returned close function flushes any log file.
func runLogger(stderr io.Writer, root string, cfg *config.Config) (*slog.Logger, func(), error) {
	factory := slogutil.NewLoggerFactory(stderr, root, cfg.Logging, cliLevel())
	logger, err := factory.RunLogger(uuid.NewString())
	if err != nil {
		_ = factory.Close()
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return logger, func() { _ = factory.Close() }, nil
}

// checkRoot verifies that root is an existing directory
func checkRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return cgerrors.NewAnalysisError(cgerrors.InvalidInput, fmt.Sprintf("root does not exist: %s", root), err)
		}
		return cgerrors.NewAnalysisError(cgerrors.InvalidInput, "cannot access root", err)
	}
	if !info.IsDir() {
		return cgerrors.NewAnalysisError(cgerrors.InvalidInput, fmt.Sprintf("root is not a directory: %s", root), nil)
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Full())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
