// Package config handles configuration loading and validation for timetally.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Projects Projects  `yaml:"projects"`
	Matching Matching  `yaml:"matching"`
	GitRepos []GitRepo `yaml:"git_repos"`
	Timing   Timing    `yaml:"timing"`
	Output   Output    `yaml:"output"`
}

// Projects holds the classification rule set. Rule order is load-bearing:
// ticket prefixes and activity patterns are evaluated in declaration order
// and the first match wins.
type Projects struct {
	TicketPrefixes   []TicketPrefix    `yaml:"ticket_prefixes"`
	ActivityPatterns []ActivityPattern `yaml:"activity_patterns"`
	IgnorePatterns   []string          `yaml:"ignore_patterns"`
}

// TicketPrefix maps a ticket series prefix (e.g. "CH2-") to a project.
type TicketPrefix struct {
	Prefix      string `yaml:"prefix"`
	ProjectID   string `yaml:"project_id"`
	ProjectName string `yaml:"project_name"`
}

// ActivityPattern maps a literal or regex pattern to a project.
type ActivityPattern struct {
	Pattern     string `yaml:"pattern"`
	Regex       bool   `yaml:"regex"`
	ProjectID   string `yaml:"project_id"`
	ProjectName string `yaml:"project_name"`
	Description string `yaml:"description"`
}

// Matching holds the matching and aggregation thresholds.
type Matching struct {
	MinDurationSeconds      int        `yaml:"min_duration_seconds"`
	MaxGapMinutes           int        `yaml:"max_gap_minutes"`
	CommitTimeWindowMinutes int        `yaml:"commit_time_window_minutes"`
	Confidence              Thresholds `yaml:"confidence_thresholds"`
}

// Thresholds partition confidence scores into high/medium/low/none buckets.
// high > medium > low, all within (0, 1).
type Thresholds struct {
	High   float64 `yaml:"high"`
	Medium float64 `yaml:"medium"`
	Low    float64 `yaml:"low"`
}

// GitRepo configures one repository for commit correlation. Path may be a
// glob pattern (e.g. "~/code/charly-*") expanded at load time.
type GitRepo struct {
	Path           string   `yaml:"path"`
	TicketPrefixes []string `yaml:"ticket_prefixes"`
	Description    string   `yaml:"description"`
}

// Timing configures the time-tracking service used by the executor.
type Timing struct {
	APIURL                string `yaml:"api_url"`
	APIToken              string `yaml:"api_token"`
	MaxRequestsPerHour    int    `yaml:"max_requests_per_hour"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// Output holds artifact formatting flags.
type Output struct {
	IncludeSourceActivities bool `yaml:"include_source_activities"`
	IncludeCommitShas       bool `yaml:"include_commit_shas"`
}

// MinDuration returns the minimum activity duration.
func (m Matching) MinDuration() time.Duration {
	return time.Duration(m.MinDurationSeconds) * time.Second
}

// MaxGap returns the maximum merge gap.
func (m Matching) MaxGap() time.Duration {
	return time.Duration(m.MaxGapMinutes) * time.Minute
}

// CommitWindow returns the commit correlation window.
func (m Matching) CommitWindow() time.Duration {
	return time.Duration(m.CommitTimeWindowMinutes) * time.Minute
}

// RequestTimeout returns the timeout for a single service request.
func (t Timing) RequestTimeout() time.Duration {
	return time.Duration(t.RequestTimeoutSeconds) * time.Second
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Matching: Matching{
			MinDurationSeconds:      30,
			MaxGapMinutes:           15,
			CommitTimeWindowMinutes: 15,
			Confidence: Thresholds{
				High:   0.85,
				Medium: 0.6,
				Low:    0.3,
			},
		},
		Timing: Timing{
			MaxRequestsPerHour:    100,
			RequestTimeoutSeconds: 30,
		},
		Output: Output{
			IncludeSourceActivities: true,
			IncludeCommitShas:       true,
		},
	}
}

// Load reads configuration from the given path merged over defaults.
// A missing file returns defaults; a present but unparseable file is an error.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	return &cfg, nil
}

// ExpandedRepos resolves glob patterns and "~" in configured repository
// paths. A pattern that matches nothing yields no repos; the per-repo
// ticket prefixes are carried to every expansion.
func (c *Config) ExpandedRepos() ([]GitRepo, error) {
	var repos []GitRepo
	for _, repo := range c.GitRepos {
		path := expandHome(repo.Path)

		if !strings.ContainsAny(path, "*?[{") {
			repos = append(repos, GitRepo{Path: path, TicketPrefixes: repo.TicketPrefixes, Description: repo.Description})
			continue
		}

		matches, err := doublestar.FilepathGlob(path)
		if err != nil {
			return nil, fmt.Errorf("expand repo glob %q: %w", repo.Path, err)
		}
		for _, m := range matches {
			repos = append(repos, GitRepo{Path: m, TicketPrefixes: repo.TicketPrefixes, Description: repo.Description})
		}
	}
	return repos, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "timetally", "config.yaml")
}
