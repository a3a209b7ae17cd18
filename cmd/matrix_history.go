package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mselser95/arbitrage-detector/internal/app"
	"github.com/mselser95/arbitrage-detector/internal/matrix"
	"github.com/mselser95/arbitrage-detector/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var matrixHistoryCmd = &cobra.Command{
	Use:   "matrix-history",
	Short: "Read, list or delete persisted matrix snapshots",
	Long: `Reads one persisted matrix snapshot of an asset pair.

Examples:
  matrix-history --asset-pair BTCUSD --date-time 2024-03-01T12:00:00Z
  matrix-history --asset-pair BTCUSD --list --from 2024-03-01T00:00:00Z
  matrix-history --asset-pair BTCUSD --date-time 2024-03-01T12:00:00Z --delete`,
	RunE: runMatrixHistory,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(matrixHistoryCmd)
	matrixHistoryCmd.Flags().StringP("asset-pair", "p", "", "Asset pair, e.g. BTCUSD (required)")
	matrixHistoryCmd.Flags().StringP("date-time", "t", "", "Snapshot time (RFC3339)")
	matrixHistoryCmd.Flags().Bool("list", false, "List snapshot times between --from and --to")
	matrixHistoryCmd.Flags().String("from", "", "Start of the listing window (RFC3339, default 24h ago)")
	matrixHistoryCmd.Flags().String("to", "", "End of the listing window (RFC3339, default now)")
	matrixHistoryCmd.Flags().Bool("delete", false, "Delete the snapshot at --date-time")
}

func runMatrixHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	loadDotEnv()

	pair, _ := cmd.Flags().GetString("asset-pair")
	pair = strings.ToUpper(strings.TrimSpace(pair))
	if pair == "" {
		return fmt.Errorf("--asset-pair is required")
	}
	list, _ := cmd.Flags().GetBool("list")
	del, _ := cmd.Flags().GetBool("delete")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := app.OpenStorage(ctx, cfg, zap.NewNop())
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	if list {
		now := time.Now().UTC()
		from, err := parseTimeFlag(cmd, "from", now.Add(-24*time.Hour))
		if err != nil {
			return err
		}
		to, err := parseTimeFlag(cmd, "to", now)
		if err != nil {
			return err
		}

		times, err := store.GetDateTimes(ctx, pair, from, to)
		if err != nil {
			return fmt.Errorf("list snapshots: %w", err)
		}
		return printDateTimes(os.Stdout, pair, times)
	}

	at, err := parseTimeFlag(cmd, "date-time", time.Time{})
	if err != nil {
		return err
	}
	if at.IsZero() {
		return fmt.Errorf("--date-time is required unless --list is set")
	}

	if del {
		deleted, err := store.DeleteHistory(ctx, pair, at)
		if err != nil {
			return fmt.Errorf("delete snapshot: %w", err)
		}
		if !deleted {
			fmt.Printf("No snapshot for %s at %s.\n", pair, at.Format(time.RFC3339Nano))
			return nil
		}
		fmt.Printf("Deleted snapshot for %s at %s.\n", pair, at.Format(time.RFC3339Nano))
		return nil
	}

	m, err := store.GetHistory(ctx, pair, at)
	if err != nil {
		return fmt.Errorf("get snapshot: %w", err)
	}

	return printMatrix(os.Stdout, m)
}

// parseTimeFlag parses an RFC3339 flag, returning def when it is unset.
func parseTimeFlag(cmd *cobra.Command, name string, def time.Time) (time.Time, error) {
	raw, _ := cmd.Flags().GetString(name)
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: expected RFC3339", name, raw)
	}

	return t.UTC(), nil
}

func printDateTimes(w io.Writer, pair string, times []time.Time) error {
	if len(times) == 0 {
		_, err := fmt.Fprintf(w, "No snapshots for %s in range.\n", pair)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDATE-TIME")
	for i, t := range times {
		fmt.Fprintf(tw, "%d\t%s\n", i+1, t.UTC().Format(time.RFC3339Nano))
	}

	return tw.Flush()
}

func printMatrix(w io.Writer, m *matrix.Matrix) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode matrix: %w", err)
	}

	return nil
}
