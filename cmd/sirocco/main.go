package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sirocco",
	Short: "Sirocco - infrastructure optimization controller",
	Long: `Sirocco watches a multi-tenant cloud, audits it against named
optimization goals and turns the resulting recommendations into
dependency-ordered action plans that it can execute, revert and abort.

The controller ships as a single binary: run "decision-engine" on the
hosts that audit the fleet and "applier" on the hosts that execute
plans. Both roles register themselves in the service registry and can
run replicated.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Sirocco version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to the YAML configuration file")

	rootCmd.AddCommand(decisionEngineCmd)
	rootCmd.AddCommand(applierCmd)
	rootCmd.AddCommand(dbCmd)
}
