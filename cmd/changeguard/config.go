package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"changeguard/internal/config"
	cgerrors "changeguard/internal/errors"
	"changeguard/internal/output"
	"changeguard/internal/paths"
)

var (
	configInitRoot  string
	configInitForce bool
	configShowRoot  string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage changeguard configuration",
	Long:  "View and manage configuration stored in .changeguard/config.json",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as JSON",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configInitCmd.Flags().StringVar(&configInitRoot, "root", ".", "Codebase root")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")
	configShowCmd.Flags().StringVar(&configShowRoot, "root", ".", "Codebase root")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if err := checkRoot(configInitRoot); err != nil {
		return err
	}
	target := filepath.Join(paths.ConfigDir(configInitRoot), paths.ConfigFileName)
	if _, err := os.Stat(target); err == nil && !configInitForce {
		return cgerrors.NewAnalysisError(cgerrors.InvalidInput, fmt.Sprintf("%s already exists (use --force to overwrite)", target), nil)
	}
	path, err := config.DefaultConfig().Save(configInitRoot)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configShowRoot)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return cgerrors.NewAnalysisError(cgerrors.ConfigInvalid, "invalid configuration", err)
	}
	data, err := output.EncodeIndented(cfg, "  ")
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
