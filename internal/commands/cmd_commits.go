package commands

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/sussdorff/timetally/internal/printer"
	"github.com/sussdorff/timetally/internal/timetally"
	"github.com/sussdorff/timetally/pkg/iojson"
)

type CommitsCmd struct {
	flags *Flags

	// flags
	since      string
	until      string
	jsonOutput bool
}

// NewCommitsCmd creates a new commits command.
func NewCommitsCmd(flags *Flags) *CommitsCmd {
	return &CommitsCmd{flags: flags}
}

// Register adds the commits command to the application.
func (cmd *CommitsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "commits",
		Usage:     "Index the configured repositories and print commit statistics",
		UsageText: "timetally commits [--since YYYY-MM-DD] [--until YYYY-MM-DD]",
		Description: `Builds the same commit index the match command uses for correlation and
prints per-repository statistics plus the tickets referenced in commit messages.
Useful for checking repository configuration before a match run.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "since",
				Usage:       "earliest commit date (default: 30 days ago)",
				Destination: &cmd.since,
			},
			&cli.StringFlag{
				Name:        "until",
				Usage:       "latest commit date (default: today)",
				Destination: &cmd.until,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *CommitsCmd) run(ctx context.Context, c *cli.Command) error {
	since, err := parseDate("since", cmd.since)
	if err != nil {
		return err
	}
	until, err := parseDate("until", cmd.until)
	if err != nil {
		return err
	}
	if until.IsZero() {
		until = time.Now()
	}
	if since.IsZero() {
		since = until.AddDate(0, 0, -30)
	}

	svc, err := cmd.flags.Pipeline()
	if err != nil {
		return err
	}

	stats, tickets, err := svc.CommitStats(ctx, since, until)
	if err != nil {
		return err
	}

	if cmd.jsonOutput {
		return iojson.Write(struct {
			Repositories any            `json:"repositories"`
			Tickets      map[string]int `json:"tickets"`
		}{stats, tickets})
	}

	if len(stats) == 0 {
		printer.Ctx(ctx).Warnf("no repositories configured")
		return nil
	}

	printer.Ctx(ctx).Printf("%s", timetally.CommitReport(stats, tickets))
	return nil
}
