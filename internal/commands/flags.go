package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sussdorff/timetally/internal/core/config"
	"github.com/sussdorff/timetally/internal/timetally"
)

type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config

	// Service is the matching pipeline, built in the Before hook. It is
	// nil when the configuration failed validation.
	Service *timetally.Service

	// ValidationErr is the configuration validation failure, if any.
	ValidationErr error
}

// Pipeline returns the matching service, or the configuration error that
// prevented it from being built.
func (f *Flags) Pipeline() (*timetally.Service, error) {
	if f.Service == nil {
		return nil, fmt.Errorf("invalid config: %w", f.ValidationErr)
	}
	return f.Service, nil
}

// DefaultLogFile returns the default log file path using the system's state directory.
// On macOS: ~/Library/Logs/timetally/timetally.log
// On Linux: $XDG_STATE_HOME/timetally/timetally.log (defaults to ~/.local/state/...)
func DefaultLogFile() string {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome != "" {
		return filepath.Join(stateHome, "timetally", "timetally.log")
	}

	home, _ := os.UserHomeDir()

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Logs", "timetally", "timetally.log")
	}

	return filepath.Join(home, ".local", "state", "timetally", "timetally.log")
}

// parseDate parses a YYYY-MM-DD command line argument. An empty string
// returns the zero time without error.
func parseDate(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s date %q, want YYYY-MM-DD", name, s)
	}
	return t, nil
}
