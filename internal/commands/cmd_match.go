package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/sussdorff/timetally/internal/printer"
	"github.com/sussdorff/timetally/internal/timetally"
	"github.com/sussdorff/timetally/pkg/iojson"
)

type MatchCmd struct {
	flags *Flags

	// flags
	export      string
	output      string
	from        string
	to          string
	chunkDays   int
	skipCommits bool
	showAll     bool
}

// NewMatchCmd creates a new match command.
func NewMatchCmd(flags *Flags) *MatchCmd {
	return &MatchCmd{flags: flags}
}

// Register adds the match command to the application.
func (cmd *MatchCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "match",
		Usage:     "Match an activity export against the configured projects",
		UsageText: "timetally match --export <file> [options]",
		Description: `Reads a desktop activity export, matches every activity against the
configured ticket prefixes and patterns, correlates matched activities with
commit history, and writes a JSON artifact of proposed time entries.

Nothing is created anywhere; review the artifact and pass it to
'timetally execute' when satisfied.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "export",
				Aliases:     []string{"e"},
				Usage:       "path to the activity export JSON file",
				Required:    true,
				Destination: &cmd.export,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "artifact path, or - for stdout",
				Value:       "proposals.json",
				Destination: &cmd.output,
			},
			&cli.StringFlag{
				Name:        "from",
				Usage:       "start date (YYYY-MM-DD, default: first entry)",
				Destination: &cmd.from,
			},
			&cli.StringFlag{
				Name:        "to",
				Usage:       "end date (YYYY-MM-DD, default: last entry)",
				Destination: &cmd.to,
			},
			&cli.IntFlag{
				Name:        "chunk-days",
				Usage:       "processing window size in days",
				Value:       7,
				Destination: &cmd.chunkDays,
			},
			&cli.BoolFlag{
				Name:        "skip-commits",
				Usage:       "skip commit correlation entirely",
				Destination: &cmd.skipCommits,
			},
			&cli.BoolFlag{
				Name:        "all",
				Usage:       "also print every proposal, not just the summary",
				Destination: &cmd.showAll,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *MatchCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	from, err := parseDate("from", cmd.from)
	if err != nil {
		return err
	}
	to, err := parseDate("to", cmd.to)
	if err != nil {
		return err
	}

	svc, err := cmd.flags.Pipeline()
	if err != nil {
		return err
	}

	artifact, err := svc.Run(ctx, timetally.RunOptions{
		ExportPath:  cmd.export,
		From:        from,
		To:          to,
		ChunkWindow: time.Duration(cmd.chunkDays) * 24 * time.Hour,
		SkipCommits: cmd.skipCommits,
	})
	if err != nil {
		return err
	}

	if cmd.output == "-" {
		if err := iojson.Write(artifact); err != nil {
			return err
		}
	} else {
		if err := iojson.WriteFile(cmd.output, artifact); err != nil {
			return fmt.Errorf("write artifact: %w", err)
		}
		p.Successf("wrote %d proposals to %s", len(artifact.Proposals), cmd.output)
	}

	p.Printf("%s", timetally.Summary(artifact))
	if cmd.showAll && len(artifact.Proposals) > 0 {
		p.Printf("%s", timetally.Proposals(artifact))
	}
	return nil
}
