// Package cmd provides the CLI commands for quietpage.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quietpage/quietpage/internal/config"
	"github.com/quietpage/quietpage/pkg/version"
)

var (
	configPath string
	debugMode  bool
)

// NewRootCmd creates the root command for the quietpage CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quietpage",
		Short: "Markdown website server with live full-text search",
		Long: `quietpage serves a directory of markdown pages as a website and keeps
a full-text search index continuously up to date while serving, with
zero downtime on reindex.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Running the bare binary starts the server.
			return runServe(cmd.Context())
		},
	}

	cmd.SetVersionTemplate("quietpage version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to the config file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// loadConfig loads the configuration honoring the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if debugMode {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}
