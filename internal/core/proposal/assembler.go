package proposal

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sussdorff/timetally/internal/core/aggregate"
	"github.com/sussdorff/timetally/internal/core/config"
)

// unmatchedSummaryLimit caps the frequency summary in the artifact.
const unmatchedSummaryLimit = 20

// Counts are the reconciliation counters tracked by the pipeline.
type Counts struct {
	Input     int
	Unmatched int
	Ignored   int
	Errored   int
}

// Assembler packages scored drafts and run statistics into the artifact.
type Assembler struct {
	output config.Output
}

// NewAssembler creates an Assembler honoring the output formatting flags.
func NewAssembler(output config.Output) *Assembler {
	return &Assembler{output: output}
}

// FromDraft converts a scored draft into a proposal.
func (a *Assembler) FromDraft(d aggregate.Draft, score float64, bucket aggregate.Bucket) Proposal {
	p := Proposal{
		Start:            d.Start,
		End:              d.End,
		ProjectID:        d.ProjectID,
		ProjectName:      d.ProjectName,
		Title:            draftTitle(d),
		Confidence:       score,
		ConfidenceBucket: bucket,
		SourceCount:      len(d.Sources),
	}

	if a.output.IncludeCommitShas {
		p.CommitShas = collectShas(d)
	}
	p.Notes = draftNotes(d, p.CommitShas)

	if a.output.IncludeSourceActivities {
		for _, e := range d.Sources {
			act := e.Match.Activity
			p.SourceActivities = append(p.SourceActivities, SourceActivity{
				Title:           act.Title,
				Application:     act.Application,
				Start:           act.Start,
				End:             act.End,
				DurationSeconds: act.DurationSeconds(),
			})
		}
	}

	return p
}

// Assemble builds the final artifact. It verifies the reconciliation
// identity over the counters and reports overlapping same-project
// proposals as conflicts without resolving them.
func (a *Assembler) Assemble(proposals []Proposal, counts Counts, unmatched UnmatchedTally, rangeStart, rangeEnd string, processedAt time.Time) (*Artifact, error) {
	matched := 0
	distribution := map[string]int{}
	for _, p := range proposals {
		matched += p.SourceCount
		distribution[string(p.ConfidenceBucket)]++
	}

	if got := matched + counts.Unmatched + counts.Ignored + counts.Errored; got != counts.Input {
		return nil, fmt.Errorf(
			"activity counts do not reconcile: input %d != proposed %d + unmatched %d + ignored %d + errored %d",
			counts.Input, matched, counts.Unmatched, counts.Ignored, counts.Errored)
	}

	return &Artifact{
		Metadata: Metadata{
			ProcessedAt:            processedAt,
			RangeStart:             rangeStart,
			RangeEnd:               rangeEnd,
			TotalInputEntries:      counts.Input,
			MatchedEntries:         matched,
			UnmatchedEntries:       counts.Unmatched,
			IgnoredEntries:         counts.Ignored,
			ErroredEntries:         counts.Errored,
			ProposedTimeEntries:    len(proposals),
			ConfidenceDistribution: distribution,
		},
		ProjectSummaries: summarizeProjects(proposals),
		Proposals:        proposals,
		UnmatchedSummary: unmatched.Top(unmatchedSummaryLimit),
		Conflicts:        findConflicts(proposals),
	}, nil
}

func summarizeProjects(proposals []Proposal) []ProjectSummary {
	type agg struct {
		name  string
		count int
		total time.Duration
	}
	byProject := map[string]*agg{}
	for _, p := range proposals {
		s, ok := byProject[p.ProjectID]
		if !ok {
			s = &agg{name: p.ProjectName}
			byProject[p.ProjectID] = s
		}
		s.count++
		s.total += p.End.Sub(p.Start)
	}

	summaries := make([]ProjectSummary, 0, len(byProject))
	for id, s := range byProject {
		summaries = append(summaries, ProjectSummary{
			ProjectID:     id,
			ProjectName:   s.name,
			EntryCount:    s.count,
			TotalDuration: isoDuration(s.total),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].EntryCount != summaries[j].EntryCount {
			return summaries[i].EntryCount > summaries[j].EntryCount
		}
		return summaries[i].ProjectID < summaries[j].ProjectID
	})
	return summaries
}

// findConflicts looks for overlapping time ranges within a project.
func findConflicts(proposals []Proposal) []Conflict {
	byProject := map[string][]Proposal{}
	for _, p := range proposals {
		byProject[p.ProjectID] = append(byProject[p.ProjectID], p)
	}

	var conflicts []Conflict
	for id, group := range byProject {
		sort.Slice(group, func(i, j int) bool { return group[i].Start.Before(group[j].Start) })
		for i := 1; i < len(group); i++ {
			if group[i].Start.Before(group[i-1].End) {
				conflicts = append(conflicts, Conflict{
					ProjectID: id,
					FirstEnd:  group[i-1].End,
					NextStart: group[i].Start,
					Message:   fmt.Sprintf("proposals for project %s overlap: entry ending %s vs entry starting %s", id, group[i-1].End.Format(time.RFC3339), group[i].Start.Format(time.RFC3339)),
				})
			}
		}
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].NextStart.Before(conflicts[j].NextStart) })
	return conflicts
}

// draftTitle prefers "TICKET: first distinct title", then the ticket
// alone, then the most frequent title, then the applications involved.
func draftTitle(d aggregate.Draft) string {
	if d.Ticket != "" {
		for _, e := range d.Sources {
			title := e.Match.Activity.Title
			if title != "" && title != d.Ticket {
				return d.Ticket + ": " + title
			}
		}
		return d.Ticket
	}

	counts := map[string]int{}
	var best string
	for _, e := range d.Sources {
		title := e.Match.Activity.Title
		if title == "" {
			continue
		}
		counts[title]++
		if best == "" || counts[title] > counts[best] {
			best = title
		}
	}
	if best != "" {
		return best
	}

	return "Work in " + strings.Join(applications(d), ", ")
}

func draftNotes(d aggregate.Draft, shas []string) string {
	var parts []string

	if apps := applications(d); len(apps) > 1 {
		parts = append(parts, "Applications: "+strings.Join(apps, ", "))
	}
	if len(shas) > 0 {
		parts = append(parts, "Commits: "+strings.Join(shas, ", "))
	}

	return strings.Join(parts, "\n")
}

func applications(d aggregate.Draft) []string {
	seen := map[string]struct{}{}
	var apps []string
	for _, e := range d.Sources {
		app := e.Match.Activity.Application
		if _, ok := seen[app]; ok || app == "" {
			continue
		}
		seen[app] = struct{}{}
		apps = append(apps, app)
	}
	sort.Strings(apps)
	return apps
}

func collectShas(d aggregate.Draft) []string {
	seen := map[string]struct{}{}
	var shas []string
	for _, e := range d.Sources {
		for _, c := range e.Evidence.Commits {
			if _, ok := seen[c.SHA]; ok {
				continue
			}
			seen[c.SHA] = struct{}{}
			shas = append(shas, c.SHA)
		}
	}
	return shas
}
