package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func (c *CLI) newTrainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "train [target...]",
		Short:   "Train every target (or the given ones) and stage the winners",
		Example: "  pipeline train\n  pipeline train 3P",
		PreRunE: c.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			report, err := c.app.Pipeline.Train(cmd.Context(), args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: %d rows, %d/%d targets trained in %s\n",
				report.RunID, report.Rows, report.Trained(), len(report.Targets), time.Since(start).Round(time.Millisecond))
			for _, t := range report.Targets {
				switch {
				case t.Error != "":
					fmt.Fprintf(out, "  %s: %s (%s)\n", t.Target, t.Status, t.Error)
				case t.Winner != "":
					fmt.Fprintf(out, "  %s: %s %s winner=%s r2=%.4f mae=%.4f features=%d\n",
						t.Target, t.Status, t.Version, t.Winner, t.R2, t.MAE, len(t.Features))
				default:
					fmt.Fprintf(out, "  %s: %s\n", t.Target, t.Status)
				}
			}
			if report.Trained() == 0 {
				return errors.New("no target was trained")
			}
			return nil
		},
	}
	return cmd
}
