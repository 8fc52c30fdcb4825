// Package aggregate merges time-ordered activity matches into time-entry
// proposal drafts and scores them.
package aggregate

import (
	"time"

	"github.com/sussdorff/timetally/internal/core/gitlog"
	"github.com/sussdorff/timetally/internal/core/match"
)

// alwaysMergeGap is the band below which a same-context interruption is
// merged regardless of ticket. A gap of exactly 5 minutes falls into the
// moderate band, not this one.
const alwaysMergeGap = 5 * time.Minute

// Entry pairs one activity match with its commit evidence.
type Entry struct {
	Match    match.Result
	Evidence gitlog.Evidence
}

// Draft is a closed, unscored proposal.
type Draft struct {
	Start       time.Time
	End         time.Time
	ProjectID   string
	ProjectName string
	Ticket      string // first ticket seen among sources
	Sources     []Entry
}

// Covered returns the summed duration of the source activities, which is
// at most the wall-clock span End-Start (equal only without internal gaps).
func (d Draft) Covered() time.Duration {
	var total time.Duration
	for _, e := range d.Sources {
		total += e.Match.Activity.Duration()
	}
	return total
}

// Aggregator is a stateful sequential merge over time order. It is the
// explicit carrier of the open proposal across chunk boundaries: feed each
// chunk through Add, then Flush once at the end of the run.
type Aggregator struct {
	minDuration time.Duration
	maxGap      time.Duration

	open    *Draft
	lastEnd time.Time
	lastApp string
}

// New creates an Aggregator with the configured merge thresholds.
func New(minDuration, maxGap time.Duration) *Aggregator {
	return &Aggregator{minDuration: minDuration, maxGap: maxGap}
}

// Add consumes the next batch of entries in time order. It returns the
// drafts closed so far and the entries rejected from proposals: unmatched
// activities that never joined one, plus the sources of closed drafts that
// fell below the minimum covered duration.
func (g *Aggregator) Add(entries []Entry) (closed []Draft, rejected []Entry) {
	for _, e := range entries {
		if g.open == nil {
			if !e.Match.Matched() {
				rejected = append(rejected, e)
				continue
			}
			g.openDraft(e)
			continue
		}

		gap := e.Match.Activity.Start.Sub(g.lastEnd)
		if gap < 0 {
			gap = 0 // overlapping records
		}

		switch {
		case gap < alwaysMergeGap:
			// Same-context interruptions merge even without a project;
			// a different project is a context switch and closes.
			if !e.Match.Matched() || e.Match.ProjectID == g.open.ProjectID {
				g.merge(e)
				continue
			}

		case gap <= g.maxGap:
			if g.moderateGapMerge(e) {
				g.merge(e)
				continue
			}

		default:
			// Beyond the maximum gap nothing merges.
		}

		closed, rejected = g.close(closed, rejected)
		if e.Match.Matched() {
			g.openDraft(e)
		} else {
			rejected = append(rejected, e)
		}
	}

	return closed, rejected
}

// Flush closes the still-open draft at the end of the run.
func (g *Aggregator) Flush() (closed []Draft, rejected []Entry) {
	if g.open == nil {
		return nil, nil
	}
	return g.close(nil, nil)
}

// moderateGapMerge decides the 5min..maxGap band: merge on an identical
// ticket, or on an identical application when neither side has a ticket.
func (g *Aggregator) moderateGapMerge(e Entry) bool {
	if e.Match.Matched() && e.Match.ProjectID != g.open.ProjectID {
		return false
	}
	if g.open.Ticket != "" && e.Match.Ticket == g.open.Ticket {
		return true
	}
	if g.open.Ticket == "" && e.Match.Ticket == "" && e.Match.Activity.Application == g.lastApp {
		return true
	}
	return false
}

func (g *Aggregator) openDraft(e Entry) {
	g.open = &Draft{
		Start:       e.Match.Activity.Start,
		End:         e.Match.Activity.End,
		ProjectID:   e.Match.ProjectID,
		ProjectName: e.Match.ProjectName,
		Ticket:      e.Match.Ticket,
		Sources:     []Entry{e},
	}
	g.lastEnd = e.Match.Activity.End
	g.lastApp = e.Match.Activity.Application
}

func (g *Aggregator) merge(e Entry) {
	g.open.End = e.Match.Activity.End
	g.open.Sources = append(g.open.Sources, e)
	if g.open.Ticket == "" {
		g.open.Ticket = e.Match.Ticket
	}
	g.lastEnd = e.Match.Activity.End
	g.lastApp = e.Match.Activity.Application
}

// close emits the open draft when its covered duration clears the
// minimum; otherwise its sources are rejected. Short fragment clusters
// separated by large gaps are not worth a time entry.
func (g *Aggregator) close(closed []Draft, rejected []Entry) ([]Draft, []Entry) {
	draft := *g.open
	g.open = nil

	if draft.Covered() >= g.minDuration {
		closed = append(closed, draft)
	} else {
		rejected = append(rejected, draft.Sources...)
	}
	return closed, rejected
}
