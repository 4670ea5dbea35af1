package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/courtvision/nba-analysis/internal/artifacts"
)

func (c *CLI) newPromoteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "promote [target...]",
		Short:   "Promote the newest complete staged version of each target",
		PreRunE: c.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := c.app.Pipeline.Promote(cmd.Context(), args)
			if err != nil {
				return err
			}
			failed := 0
			for _, r := range results {
				fmt.Fprintln(cmd.OutOrStdout(), r.String())
				if r.Status == artifacts.StatusFailed {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d target(s) failed to promote", failed)
			}
			return nil
		},
	}
	return cmd
}
