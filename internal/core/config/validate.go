package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/hay-kot/criterio"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// Validate performs structural validation of the configuration. Any error
// is fatal: a bad rule would silently misclassify every activity, so the
// run must not start.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		c.validateThresholds(),
		c.validateDurations(),
		c.validateRules(),
	)
}

// ValidateDeep calls Validate then adds I/O checks for the config file
// itself. Repository paths are deliberately not fatal here; a missing
// repo only degrades correlation and surfaces as a warning.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		validateConfigFile(configPath),
	)
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if len(c.GitRepos) == 0 {
		warnings = append(warnings, ValidationWarning{
			Category: "GitRepos",
			Message:  "no repositories configured; proposals will have no commit evidence",
		})
	}

	repos, err := c.ExpandedRepos()
	if err == nil {
		for _, repo := range repos {
			if _, statErr := os.Stat(repo.Path); statErr != nil {
				warnings = append(warnings, ValidationWarning{
					Category: "GitRepos",
					Item:     repo.Path,
					Message:  "repository path not accessible; its commit evidence will be absent",
				})
			}
		}
	}

	if c.Timing.APIURL == "" {
		warnings = append(warnings, ValidationWarning{
			Category: "Timing",
			Message:  "timing.api_url not set; the execute command will be unavailable",
		})
	}

	return warnings
}

func (c *Config) validateThresholds() error {
	t := c.Matching.Confidence
	var errs criterio.FieldErrorsBuilder

	for field, v := range map[string]float64{
		"matching.confidence_thresholds.high":   t.High,
		"matching.confidence_thresholds.medium": t.Medium,
		"matching.confidence_thresholds.low":    t.Low,
	} {
		if v <= 0 || v >= 1 {
			errs = errs.Append(field, fmt.Errorf("must be within (0, 1), got %v", v))
		}
	}

	if !(t.High > t.Medium && t.Medium > t.Low) {
		errs = errs.Append("matching.confidence_thresholds",
			fmt.Errorf("must satisfy high > medium > low, got %v > %v > %v", t.High, t.Medium, t.Low))
	}

	return errs.ToError()
}

func (c *Config) validateDurations() error {
	var errs criterio.FieldErrorsBuilder

	if c.Matching.MinDurationSeconds <= 0 {
		errs = errs.Append("matching.min_duration_seconds", fmt.Errorf("must be positive"))
	}
	// The always-merge band ends at 5 minutes; a smaller max gap would
	// make the moderate band empty.
	if c.Matching.MaxGapMinutes < 5 {
		errs = errs.Append("matching.max_gap_minutes", fmt.Errorf("must be at least 5"))
	}
	if c.Matching.CommitTimeWindowMinutes <= 0 {
		errs = errs.Append("matching.commit_time_window_minutes", fmt.Errorf("must be positive"))
	}
	if c.Timing.MaxRequestsPerHour <= 0 {
		errs = errs.Append("timing.max_requests_per_hour", fmt.Errorf("must be positive"))
	}

	return errs.ToError()
}

func (c *Config) validateRules() error {
	var errs criterio.FieldErrorsBuilder

	for i, tp := range c.Projects.TicketPrefixes {
		field := fmt.Sprintf("projects.ticket_prefixes[%d]", i)
		if tp.Prefix == "" {
			errs = errs.Append(field+".prefix", fmt.Errorf("prefix is required"))
		}
		if tp.ProjectID == "" {
			errs = errs.Append(field+".project_id", fmt.Errorf("project id is required"))
		}
	}

	for i, ap := range c.Projects.ActivityPatterns {
		field := fmt.Sprintf("projects.activity_patterns[%d]", i)
		if ap.Pattern == "" {
			errs = errs.Append(field+".pattern", fmt.Errorf("pattern is required"))
		}
		if ap.ProjectID == "" {
			errs = errs.Append(field+".project_id", fmt.Errorf("project id is required"))
		}
		if ap.Regex {
			if _, err := regexp.Compile(ap.Pattern); err != nil {
				errs = errs.Append(field+".pattern", fmt.Errorf("invalid regex %q: %w", ap.Pattern, err))
			}
		}
	}

	for i, p := range c.Projects.IgnorePatterns {
		if _, err := regexp.Compile(p); err != nil {
			errs = errs.Append(fmt.Sprintf("projects.ignore_patterns[%d]", i),
				fmt.Errorf("invalid regex %q: %w", p, err))
		}
	}

	for i, repo := range c.GitRepos {
		if repo.Path == "" {
			errs = errs.Append(fmt.Sprintf("git_repos[%d].path", i), fmt.Errorf("path is required"))
		}
	}

	return errs.ToError()
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}
