package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/sussdorff/timetally/internal/commands"
	"github.com/sussdorff/timetally/internal/core/config"
	"github.com/sussdorff/timetally/internal/printer"
	"github.com/sussdorff/timetally/internal/timetally"
	"github.com/sussdorff/timetally/pkg/executil"
	"github.com/sussdorff/timetally/pkg/logutils"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	// When installed via `go install module@version`, build() falls back
	// to runtime/debug.BuildInfo instead.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	v, c, d := version, commit, date

	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					c = s.Value
				case "vcs.time":
					d = s.Value
				}
			}
		}
	}

	short := c
	if len(c) > 7 {
		short = c[:7]
	}

	return fmt.Sprintf("%s (%s) %s", v, short, d)
}

func main() {
	ctx := printer.WithCtx(context.Background(), printer.New(os.Stderr))

	var logCloser func()
	flags := &commands.Flags{}

	app := &cli.Command{
		Name:      "timetally",
		Usage:     "Turn activity exports and git history into time entry proposals",
		UsageText: "timetally [global options] command [command options]",
		Description: `Timetally reads a desktop activity export, matches activities against
configured projects by ticket references and patterns, correlates them with
git commit history, and proposes reviewable time entries.

Run 'timetally match' to produce a proposal artifact, then 'timetally execute'
to create the reviewed entries in your time-tracking service.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("TIMETALLY_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to the state directory)",
				Sources:     cli.EnvVars("TIMETALLY_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("TIMETALLY_CONFIG"),
				Value:       config.DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			logFile := flags.LogFile
			if logFile == "" {
				logFile = commands.DefaultLogFile()
			}

			logger, closer, err := logutils.New(flags.LogLevel, logFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger
			logCloser = closer

			cfg, err := config.Load(flags.ConfigPath)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			flags.Config = cfg

			// A bad rule must not start a pipeline run, but it must not
			// stop 'config validate' from reporting it either. Commands
			// that need the service go through flags.Pipeline().
			if err := cfg.Validate(); err != nil {
				flags.ValidationErr = err
				return ctx, nil
			}

			svc, err := timetally.NewService(cfg, &executil.RealExecutor{}, log.With().Str("component", "pipeline").Logger())
			if err != nil {
				flags.ValidationErr = err
				return ctx, nil
			}
			flags.Service = svc

			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if logCloser != nil {
				logCloser()
			}
			return nil
		},
	}

	commandList := []interface {
		Register(*cli.Command) *cli.Command
	}{
		commands.NewMatchCmd(flags),
		commands.NewStatsCmd(flags),
		commands.NewCommitsCmd(flags),
		commands.NewExecuteCmd(flags),
		commands.NewConfigValidateCmd(flags),
	}
	for _, cmd := range commandList {
		app = cmd.Register(app)
	}

	if err := app.Run(ctx, os.Args); err != nil {
		printer.Ctx(ctx).Errorf("%v", err)
		os.Exit(1)
	}
}
