// Package cmd defines the roastd command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set via ldflags at build time.
var version = "dev"

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "roastd",
		Short: "Website roasting service",
		Long: `roastd captures a screenshot of a submitted website, has a vision model
critique its design and serves the result, a PDF report and a public gallery
over HTTP.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (YAML); env vars use the ROASTD_ prefix")

	cmd.AddCommand(newServeCmd(&cfgPath))
	cmd.AddCommand(newConfigCmd(&cfgPath))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
