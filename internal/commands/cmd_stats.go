package commands

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/sussdorff/timetally/internal/printer"
	"github.com/sussdorff/timetally/internal/timetally"
	"github.com/sussdorff/timetally/pkg/iojson"
)

type StatsCmd struct {
	flags *Flags

	// flags
	export     string
	chunkDays  int
	jsonOutput bool
}

// NewStatsCmd creates a new stats command.
func NewStatsCmd(flags *Flags) *StatsCmd {
	return &StatsCmd{flags: flags}
}

// Register adds the stats command to the application.
func (cmd *StatsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "stats",
		Usage:       "Describe an activity export without matching anything",
		UsageText:   "timetally stats --export <file> [--json]",
		Description: "Prints entry count, date range and per-window entry counts for an export.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "export",
				Aliases:     []string{"e"},
				Usage:       "path to the activity export JSON file",
				Required:    true,
				Destination: &cmd.export,
			},
			&cli.IntFlag{
				Name:        "chunk-days",
				Usage:       "window size in days",
				Value:       7,
				Destination: &cmd.chunkDays,
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

func (cmd *StatsCmd) run(ctx context.Context, c *cli.Command) error {
	svc, err := cmd.flags.Pipeline()
	if err != nil {
		return err
	}

	stats, err := svc.ExportStats(timetally.RunOptions{
		ExportPath:  cmd.export,
		ChunkWindow: time.Duration(cmd.chunkDays) * 24 * time.Hour,
	})
	if err != nil {
		return err
	}

	if cmd.jsonOutput {
		return iojson.Write(stats)
	}

	p := printer.Ctx(ctx)
	p.Infof("%s", stats.Path)
	p.Printf("  %d entries from %s to %s", stats.Entries,
		stats.From.Format("2006-01-02"), stats.To.Format("2006-01-02"))
	if stats.Malformed > 0 {
		p.Warnf("%d malformed entries", stats.Malformed)
	}
	for _, chunk := range stats.Chunks {
		p.Printf("  %s to %s: %d entries",
			chunk.From.Format("2006-01-02"), chunk.To.Format("2006-01-02"), chunk.Entries)
	}
	return nil
}
