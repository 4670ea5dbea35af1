// Command pipeline trains, promotes and schedules the stat models from the
// command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/courtvision/nba-analysis/internal/app"
	"github.com/courtvision/nba-analysis/internal/config"
)

type CLI struct {
	cfg    *config.Config
	logger *zap.Logger
	app    *app.App
}

func (c *CLI) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := app.NewLogger(cfg.Env)
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	c.cfg, c.logger, c.app = cfg, logger, a
	return nil
}

func (c *CLI) teardown(cmd *cobra.Command, args []string) {
	if c.app != nil {
		c.app.Close()
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

func (c *CLI) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "pipeline",
		Short:         "Train and promote the player stat models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		c.newTrainCommand(),
		c.newPromoteCommand(),
		c.newScheduleCommand(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &CLI{}
	err := c.newRootCommand().ExecuteContext(ctx)
	c.teardown(nil, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
