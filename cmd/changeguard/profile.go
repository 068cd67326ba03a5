package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	cgerrors "changeguard/internal/errors"
	"changeguard/internal/impact"
	"changeguard/internal/output"
	"changeguard/internal/project"
)

var (
	profileRoot   string
	profileFormat string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show the project posture used as a severity modifier",
	Long: `Inspect the manifests under --root and print the project posture
(published-library, internal-service, monorepo or standalone-app) with the
evidence it was derived from.`,
	Args: cobra.NoArgs,
	RunE: runProfile,
}

func init() {
	profileCmd.Flags().StringVar(&profileRoot, "root", ".", "Codebase root")
	profileCmd.Flags().StringVar(&profileFormat, "format", "human", "Output format (human, json)")

	rootCmd.AddCommand(profileCmd)
}

func runProfile(cmd *cobra.Command, args []string) error {
	if profileFormat != "human" && profileFormat != "json" {
		return cgerrors.NewAnalysisError(cgerrors.InvalidInput, fmt.Sprintf("unsupported format %q (want human or json)", profileFormat), nil)
	}
	if err := checkRoot(profileRoot); err != nil {
		return err
	}
	cfg, err := loadConfig(profileRoot)
	if err != nil {
		return err
	}
	logger, closeLog, err := runLogger(cmd.ErrOrStderr(), profileRoot, cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	opts := project.DefaultProfilerOptions()
	opts.ExcludeDirs = cfg.Scan.ExcludeDirs
	profile := project.NewProfiler(opts, logger).Profile(profileRoot)

	if profileFormat == "json" {
		data, err := output.EncodeIndented(profile, "  ")
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	return writeProfile(cmd.OutOrStdout(), profile)
}

func writeProfile(w io.Writer, p impact.ProjectProfile) error {
	lang := p.Language
	if lang == "" {
		lang = "unknown"
	}
	if _, err := fmt.Fprintf(w, "Posture:  %s\nLanguage: %s\n", p.Posture, lang); err != nil {
		return err
	}
	if len(p.Evidence) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "Evidence:"); err != nil {
		return err
	}
	for _, e := range p.Evidence {
		if _, err := fmt.Fprintf(w, "  - %s\n", e); err != nil {
			return err
		}
	}
	return nil
}
