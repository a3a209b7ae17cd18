package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mselser95/arbitrage-detector/internal/app"
	"github.com/mselser95/arbitrage-detector/internal/settings"
	"github.com/mselser95/arbitrage-detector/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Print or seed the persisted detector settings",
	Long: `Prints the settings stored in the configured backend as YAML.

With --seed, the settings built from the environment are written to the
backend first, replacing whatever is stored.`,
	RunE: runSettings,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.Flags().Bool("seed", false, "Overwrite stored settings with the environment defaults")
}

func runSettings(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	loadDotEnv()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	seed, _ := cmd.Flags().GetBool("seed")

	store, err := app.OpenStorage(ctx, cfg, zap.NewNop())
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	if seed {
		defaults := cfg.Settings()
		if err := store.SaveSettings(ctx, &defaults); err != nil {
			return fmt.Errorf("seed settings: %w", err)
		}
		fmt.Fprintln(os.Stderr, "Settings seeded from environment.")
	}

	stored, err := store.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	return printSettings(os.Stdout, stored)
}

// printSettings writes s as YAML, or a notice when nothing is stored.
func printSettings(w io.Writer, s *settings.Settings) error {
	if s == nil {
		_, err := fmt.Fprintln(w, "# no settings stored; environment defaults apply")
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	return enc.Close()
}
