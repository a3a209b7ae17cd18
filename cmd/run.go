package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mselser95/arbitrage-detector/internal/app"
	"github.com/mselser95/arbitrage-detector/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the arbitrage detector",
	Long: `Starts the arbitrage detector, which will:
1. Load persisted settings, or seed them from the environment
2. Subscribe to the order-book feed
3. Detect arbitrages every EXECUTION_DELAY and track their lifetime
4. Publish matrix snapshots and serve the read API on HTTP_PORT`,
	RunE: runDetector,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
}

func runDetector(cmd *cobra.Command, args []string) error {
	loadDotEnv()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	application, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
