package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/admission/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "admission",
	Short: "Admission - per-identity request admission control",
	Long: `Admission decides whether an identity (user, API key, IP address) may act
now, and if not, how long it has to wait.

Policies are named and use one of two limiters:
  - sliding_window: at most N events per trailing window
  - cooldown: a minimum interval between consecutive events`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "admission.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
