// Command seeder loads scraped per-player-per-season CSV exports into the
// dataset tables.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/courtvision/nba-analysis/internal/app"
	"github.com/courtvision/nba-analysis/internal/config"
	"github.com/courtvision/nba-analysis/internal/frame"
	"github.com/courtvision/nba-analysis/internal/logic"
)

func newSeedCommand() *cobra.Command {
	var (
		table     string
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "seeder <csv>...",
		Short: "Insert CSV stat exports into a dataset table",
		Args:  cobra.MinimumNArgs(1),
		Example: `  seeder --table historical_data_table stats_2019.csv stats_2020.csv
  seeder --table current_data_table stats_2024.csv`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := app.NewLogger(cfg.Env)
			if err != nil {
				return err
			}
			defer logger.Sync()
			sugar := logger.Sugar()

			if table == "" {
				table = cfg.HistoricalTable
			}

			db, err := logic.OpenDatasetDB(cfg.DatasetDriver, cfg.DatasetURL)
			if err != nil {
				return err
			}
			defer db.Close()
			store := logic.NewDatasetStore(db, logic.Dialect(cfg.DatasetDriver),
				[]string{cfg.HistoricalTable, cfg.CurrentTable}, logger)

			total := 0
			for _, path := range args {
				start := time.Now()
				f, err := readCSV(path)
				if err != nil {
					return err
				}
				n, err := store.InsertRows(cmd.Context(), table, f, batchSize)
				total += n
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				sugar.Infow("Seeded file", "file", path, "table", table, "rows", n, "duration", time.Since(start))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %d rows into %s\n", total, table)
			return nil
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "Target dataset table (default HISTORICAL_TABLE)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "Rows per INSERT statement")
	return cmd
}

func readCSV(path string) (*frame.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f, err := frame.ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

func main() {
	if err := newSeedCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
