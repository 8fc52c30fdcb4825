// Package match classifies activity records against the configured rule set.
package match

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sussdorff/timetally/internal/core/config"
	"github.com/sussdorff/timetally/internal/core/export"
)

// Reason describes how an activity was matched.
type Reason string

// Match reasons, strongest first.
const (
	ReasonTicket  Reason = "ticket"
	ReasonPattern Reason = "pattern"
	ReasonNone    Reason = "none"
)

// Stage confidence bands. Ticket matches outrank pattern matches; a
// pattern's score grows with literal length since a long literal is more
// specific than a broad regex.
const (
	ticketExactConfidence     = 0.95
	ticketAmbiguousConfidence = 0.90
	patternRegexConfidence    = 0.65
	patternLiteralBase        = 0.60
	patternLiteralPerChar     = 0.01
	patternLiteralCap         = 0.85
)

// Result is the per-activity match outcome.
type Result struct {
	Activity        export.Activity
	ProjectID       string
	ProjectName     string
	Ticket          string
	StageConfidence float64
	Reason          Reason
	Ignored         bool
}

// Matched reports whether the activity was attributed to a project.
func (r Result) Matched() bool {
	return r.ProjectID != ""
}

type ticketRule struct {
	re          *regexp.Regexp
	projectID   string
	projectName string
}

type patternRule struct {
	literal     string // lowercased, set when not regex
	re          *regexp.Regexp
	confidence  float64
	projectID   string
	projectName string
}

// Matcher holds the compiled rule set. Compile once per run; Match is
// safe for concurrent use since all state is read-only.
type Matcher struct {
	tickets  []ticketRule
	patterns []patternRule
	ignores  []*regexp.Regexp
}

// NewMatcher compiles the configured rules. Rule order is preserved
// exactly as configured; the first match always wins.
func NewMatcher(rules config.Projects) (*Matcher, error) {
	m := &Matcher{}

	for _, tp := range rules.TicketPrefixes {
		re, err := regexp.Compile(`(?i)(` + regexp.QuoteMeta(tp.Prefix) + `\d+)`)
		if err != nil {
			return nil, fmt.Errorf("compile ticket prefix %q: %w", tp.Prefix, err)
		}
		m.tickets = append(m.tickets, ticketRule{re: re, projectID: tp.ProjectID, projectName: tp.ProjectName})
	}

	for _, ap := range rules.ActivityPatterns {
		rule := patternRule{projectID: ap.ProjectID, projectName: ap.ProjectName}
		if ap.Regex {
			re, err := regexp.Compile(`(?i)` + ap.Pattern)
			if err != nil {
				return nil, fmt.Errorf("compile activity pattern %q: %w", ap.Pattern, err)
			}
			rule.re = re
			rule.confidence = patternRegexConfidence
		} else {
			rule.literal = strings.ToLower(ap.Pattern)
			rule.confidence = min(patternLiteralBase+patternLiteralPerChar*float64(len(ap.Pattern)), patternLiteralCap)
		}
		m.patterns = append(m.patterns, rule)
	}

	for _, p := range rules.IgnorePatterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("compile ignore pattern %q: %w", p, err)
		}
		m.ignores = append(m.ignores, re)
	}

	return m, nil
}

// Match classifies one activity. Decisions short-circuit in priority
// order: ignore rules, then ticket extraction, then activity patterns.
func (m *Matcher) Match(a export.Activity) Result {
	res := Result{Activity: a, Reason: ReasonNone}

	for _, re := range m.ignores {
		if (a.Title != "" && re.MatchString(a.Title)) || re.MatchString(a.Application) {
			res.Ignored = true
			return res
		}
	}

	if ticket, rule, ambiguous := m.extractTicket(a.Title); ticket != "" {
		res.Ticket = ticket
		res.ProjectID = rule.projectID
		res.ProjectName = rule.projectName
		res.Reason = ReasonTicket
		res.StageConfidence = ticketExactConfidence
		if ambiguous {
			res.StageConfidence = ticketAmbiguousConfidence
		}
		return res
	}

	searchText := strings.ToLower(a.Title + " " + a.Application)
	for _, rule := range m.patterns {
		matched := false
		if rule.re != nil {
			matched = rule.re.MatchString(searchText)
		} else {
			matched = strings.Contains(searchText, rule.literal)
		}
		if matched {
			res.ProjectID = rule.projectID
			res.ProjectName = rule.projectName
			res.Reason = ReasonPattern
			res.StageConfidence = rule.confidence
			return res
		}
	}

	return res
}

// extractTicket returns the first ticket found in title, the rule that
// produced it, and whether more than one prefix rule also matched
// (ambiguous extractions score slightly lower).
func (m *Matcher) extractTicket(title string) (string, ticketRule, bool) {
	if title == "" {
		return "", ticketRule{}, false
	}

	var (
		first     string
		firstRule ticketRule
		hits      int
	)
	for _, rule := range m.tickets {
		match := rule.re.FindString(title)
		if match == "" {
			continue
		}
		hits++
		if first == "" {
			first = strings.ToUpper(match)
			firstRule = rule
		}
	}
	return first, firstRule, hits > 1
}
