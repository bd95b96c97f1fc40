package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgDir string

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Machine health gateway",
	Long: `gateway ingests sensor readings, keeps a live table of machine alerts
and serves predictions and reports to the maintenance dashboard.

Examples:
  gateway serve --config ./deploy
  gateway analyze readings.csv --machine M-1
  gateway watch
  gateway hash-password`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", ".", "directory holding config.yaml and .env")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(hashPasswordCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
