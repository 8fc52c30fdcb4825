package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/sussdorff/timetally/internal/core/aggregate"
	"github.com/sussdorff/timetally/internal/core/logging"
	"github.com/sussdorff/timetally/internal/core/proposal"
	"github.com/sussdorff/timetally/internal/executor"
	"github.com/sussdorff/timetally/internal/printer"
)

type ExecuteCmd struct {
	flags *Flags

	// flags
	artifact      string
	minConfidence string
	dryRun        bool
}

// NewExecuteCmd creates a new execute command.
func NewExecuteCmd(flags *Flags) *ExecuteCmd {
	return &ExecuteCmd{flags: flags}
}

// Register adds the execute command to the application.
func (cmd *ExecuteCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "execute",
		Usage:     "Create time entries from a reviewed artifact",
		UsageText: "timetally execute --artifact <file> [--min-confidence high|medium|low]",
		Description: `Creates one time entry per proposal in the artifact. Every proposal is
existence-checked first, so re-running the same artifact never creates
duplicates. Requests are paced to stay within the configured hourly budget.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "artifact",
				Aliases:     []string{"a"},
				Usage:       "artifact produced by the match command",
				Required:    true,
				Destination: &cmd.artifact,
			},
			&cli.StringFlag{
				Name:        "min-confidence",
				Usage:       "lowest confidence bucket to create (high, medium, low)",
				Value:       "medium",
				Destination: &cmd.minConfidence,
			},
			&cli.BoolFlag{
				Name:        "dry-run",
				Usage:       "check for duplicates but create nothing",
				Destination: &cmd.dryRun,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ExecuteCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	if cmd.flags.Config.Timing.APIURL == "" {
		return fmt.Errorf("timing.api_url is not configured; nothing to execute against")
	}

	minBucket, err := parseBucket(cmd.minConfidence)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(cmd.artifact)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	var artifact proposal.Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return fmt.Errorf("decode artifact: %w", err)
	}

	if len(artifact.Conflicts) > 0 {
		p.Warnf("artifact contains %d overlapping proposals; they will be created as-is", len(artifact.Conflicts))
	}

	client := executor.NewHTTPClient(cmd.flags.Config.Timing)
	exec := executor.New(client, cmd.flags.Config.Timing.MaxRequestsPerHour, logging.Component("executor"))

	report, err := exec.Run(ctx, &artifact, executor.Options{MinBucket: minBucket, DryRun: cmd.dryRun})
	if err != nil {
		p.Errorf("run aborted: %v", err)
	}

	if cmd.dryRun {
		p.Infof("dry run: %d would be created, %d skipped as duplicates", report.Created, report.Skipped)
		return err
	}
	p.Successf("%d created, %d skipped, %d failed, %d requeued",
		report.Created, report.Skipped, report.Failed, report.Requeued)
	if report.Failed > 0 {
		return cli.Exit("", 1)
	}
	return err
}

func parseBucket(s string) (aggregate.Bucket, error) {
	switch aggregate.Bucket(s) {
	case aggregate.BucketHigh, aggregate.BucketMedium, aggregate.BucketLow:
		return aggregate.Bucket(s), nil
	default:
		return "", fmt.Errorf("invalid confidence bucket %q, want high, medium or low", s)
	}
}
