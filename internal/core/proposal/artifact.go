// Package proposal assembles scored time-entry proposals and run
// statistics into the output artifact.
package proposal

import (
	"fmt"
	"sort"
	"time"

	"github.com/sussdorff/timetally/internal/core/aggregate"
)

// SourceActivity is one activity reference embedded in a proposal.
type SourceActivity struct {
	Title           string    `json:"activityTitle,omitempty"`
	Application     string    `json:"application"`
	Start           time.Time `json:"startDate"`
	End             time.Time `json:"endDate"`
	DurationSeconds int       `json:"durationSeconds"`
}

// Proposal is a merged, scored candidate time entry awaiting review or
// automated creation.
type Proposal struct {
	Start            time.Time        `json:"startDate"`
	End              time.Time        `json:"endDate"`
	ProjectID        string           `json:"project"`
	ProjectName      string           `json:"projectName"`
	Title            string           `json:"title"`
	Notes            string           `json:"notes,omitempty"`
	Confidence       float64          `json:"confidence"`
	ConfidenceBucket aggregate.Bucket `json:"confidenceBucket"`
	SourceCount      int              `json:"sourceActivityCount"`
	SourceActivities []SourceActivity `json:"sourceActivities,omitempty"`
	CommitShas       []string         `json:"commitShas,omitempty"`
}

// DurationISO formats the wall-clock span as an ISO-8601 duration (PT2H30M).
func (p Proposal) DurationISO() string {
	return isoDuration(p.End.Sub(p.Start))
}

// Metadata holds the run statistics of one pipeline invocation.
type Metadata struct {
	ProcessedAt            time.Time      `json:"processedDate"`
	RangeStart             string         `json:"rangeStart,omitempty"`
	RangeEnd               string         `json:"rangeEnd,omitempty"`
	TotalInputEntries      int            `json:"totalInputEntries"`
	MatchedEntries         int            `json:"matchedEntries"`
	UnmatchedEntries       int            `json:"unmatchedEntries"`
	IgnoredEntries         int            `json:"ignoredEntries"`
	ErroredEntries         int            `json:"erroredEntries"`
	ProposedTimeEntries    int            `json:"proposedTimeEntries"`
	ConfidenceDistribution map[string]int `json:"confidenceDistribution"`
}

// ProjectSummary aggregates proposal totals per project.
type ProjectSummary struct {
	ProjectID     string `json:"projectId"`
	ProjectName   string `json:"projectName"`
	EntryCount    int    `json:"entryCount"`
	TotalDuration string `json:"totalDuration"` // ISO-8601
}

// UnmatchedPattern is one frequency-ranked title/application pair that
// produced no proposal, kept for iterative rule tuning.
type UnmatchedPattern struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
	Reason  string `json:"reason"`
}

// Conflict reports overlapping proposals for the same project. Conflicts
// indicate an aggregation bug and are surfaced, never auto-resolved.
type Conflict struct {
	ProjectID string    `json:"projectId"`
	FirstEnd  time.Time `json:"firstEnd"`
	NextStart time.Time `json:"nextStart"`
	Message   string    `json:"message"`
}

// Artifact is the sole hand-off to the executor and to human review.
// It is immutable once written.
type Artifact struct {
	Metadata         Metadata           `json:"metadata"`
	ProjectSummaries []ProjectSummary   `json:"projectSummaries"`
	Proposals        []Proposal         `json:"proposedEntries"`
	UnmatchedSummary []UnmatchedPattern `json:"unmatchedSummary"`
	Conflicts        []Conflict         `json:"conflicts,omitempty"`
}

// UnmatchedTally counts unmatched and ignored activities by their title
// (or application when untitled).
type UnmatchedTally map[string]int

// Add records one activity under its title-or-application key.
func (t UnmatchedTally) Add(title, application string) {
	key := title
	if key == "" {
		key = application
	}
	t[key]++
}

// Total returns the number of recorded activities.
func (t UnmatchedTally) Total() int {
	n := 0
	for _, c := range t {
		n += c
	}
	return n
}

// Top returns the n most frequent patterns, count-descending with
// alphabetical tie-break for stable output.
func (t UnmatchedTally) Top(n int) []UnmatchedPattern {
	patterns := make([]UnmatchedPattern, 0, len(t))
	for pattern, count := range t {
		patterns = append(patterns, UnmatchedPattern{
			Pattern: pattern,
			Count:   count,
			Reason:  "No matching pattern",
		})
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}
		return patterns[i].Pattern < patterns[j].Pattern
	})
	if len(patterns) > n {
		patterns = patterns[:n]
	}
	return patterns
}

func isoDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("PT%dH%dM", total/3600, (total%3600)/60)
}
