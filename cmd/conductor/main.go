package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "conductor",
		Short: "Agent Conductor - execution control loop for AI task workloads",
		Long: `Agent Conductor throttles, schedules and contains execution of
AI-produced tasks across isolated workspaces. It rate limits calls to the
inference providers, adapts each workspace's concurrency to its recent
health, and pauses workspaces whose work is failing or looping.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
