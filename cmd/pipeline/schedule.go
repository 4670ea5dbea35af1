package main

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/courtvision/nba-analysis/internal/logic"
)

// cronLogger routes cron's own logging through zap
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}

// scheduledJobs registers the training and promotion jobs on c. Training is
// followed by a promotion so a scheduled run ends with fresh production
// models; a separate promote schedule is optional.
func scheduledJobs(ctx context.Context, c *cron.Cron, pipeline logic.PipelineService, trainSpec, promoteSpec string, logger *zap.SugaredLogger) error {
	promote := func() {
		results, err := pipeline.Promote(ctx, nil)
		if err != nil {
			logger.Errorw("Scheduled promotion failed", "error", err)
			return
		}
		for _, r := range results {
			logger.Infow("Scheduled promotion", "target", r.Target, "status", r.Status, "version", r.Version, "reason", r.Reason)
		}
	}

	if trainSpec != "" {
		_, err := c.AddFunc(trainSpec, func() {
			report, err := pipeline.Train(ctx, nil)
			if err != nil {
				logger.Errorw("Scheduled training failed", "error", err)
				return
			}
			logger.Infow("Scheduled training finished", "run", report.RunID, "trained", report.Trained(), "targets", len(report.Targets))
			if report.Trained() > 0 {
				promote()
			}
		})
		if err != nil {
			return fmt.Errorf("invalid TRAIN_SCHEDULE %q: %w", trainSpec, err)
		}
	}
	if promoteSpec != "" {
		if _, err := c.AddFunc(promoteSpec, promote); err != nil {
			return fmt.Errorf("invalid PROMOTE_SCHEDULE %q: %w", promoteSpec, err)
		}
	}
	if len(c.Entries()) == 0 {
		return fmt.Errorf("no schedule configured")
	}
	return nil
}

func newCron(logger *zap.SugaredLogger) *cron.Cron {
	cl := cronLogger{logger: logger}
	return cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
}

func (c *CLI) newScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule",
		Short:   "Run training and promotion on the configured cron schedules",
		Args:    cobra.NoArgs,
		PreRunE: c.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := c.logger.Sugar()

			sched := newCron(logger)
			if err := scheduledJobs(ctx, sched, c.app.Pipeline, c.cfg.TrainSchedule, c.cfg.PromoteSchedule, logger); err != nil {
				return err
			}
			sched.Start()
			logger.Infow("Scheduler started", "train", c.cfg.TrainSchedule, "promote", c.cfg.PromoteSchedule)

			<-ctx.Done()
			logger.Info("Stopping scheduler, waiting for running jobs")
			<-sched.Stop().Done()
			return nil
		},
	}
	return cmd
}
