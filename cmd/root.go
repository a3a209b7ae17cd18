package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "arbitrage-detector",
	Short: "Cross-exchange arbitrage detector",
	Long: `Cross-exchange arbitrage detector that ingests order books from a feed,
synthesizes cross-rates through intermediate assets, and tracks price
crossings between venues from the moment they appear until they end.

Active arbitrages, their history and per-pair spread matrices are served
over HTTP; ended arbitrages and matrix snapshots are mirrored to storage.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadDotEnv reads .env when present. Real environment variables win.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: read .env: %v\n", err)
	}
}
