package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sussdorff/timetally/internal/core/export"
	"github.com/sussdorff/timetally/internal/core/match"
)

var t0 = time.Date(2025, 8, 17, 9, 0, 0, 0, time.UTC)

type entrySpec struct {
	title   string
	app     string
	project string
	ticket  string
	offset  time.Duration // start relative to t0
	length  time.Duration
}

func buildEntry(s entrySpec) Entry {
	conf := 0.0
	reason := match.ReasonNone
	switch {
	case s.ticket != "":
		conf, reason = 0.95, match.ReasonTicket
	case s.project != "":
		conf, reason = 0.75, match.ReasonPattern
	}

	return Entry{
		Match: match.Result{
			Activity: export.Activity{
				Title:       s.title,
				Application: s.app,
				Start:       t0.Add(s.offset),
				End:         t0.Add(s.offset + s.length),
			},
			ProjectID:       s.project,
			ProjectName:     s.project,
			Ticket:          s.ticket,
			StageConfidence: conf,
			Reason:          reason,
		},
	}
}

func buildEntries(specs ...entrySpec) []Entry {
	entries := make([]Entry, 0, len(specs))
	for _, s := range specs {
		entries = append(entries, buildEntry(s))
	}
	return entries
}

func defaultAggregator() *Aggregator {
	return New(30*time.Second, 15*time.Minute)
}

func TestAggregator_InterruptionMergesWithinFiveMinutes(t *testing.T) {
	// PROJ-42 work, a short unmatched terminal visit 3 minutes later,
	// then more PROJ-42 work 4 minutes after that: one proposal.
	entries := buildEntries(
		entrySpec{title: "PROJ-42 fix crash", app: "Code", project: "p1", ticket: "PROJ-42", length: 20 * time.Minute},
		entrySpec{title: "Terminal", app: "iTerm2", offset: 23 * time.Minute, length: 2 * time.Minute},
		entrySpec{title: "PROJ-42 write tests", app: "Code", project: "p1", ticket: "PROJ-42", offset: 29 * time.Minute, length: 25 * time.Minute},
	)

	agg := defaultAggregator()
	closed, rejected := agg.Add(entries)
	assert.Empty(t, closed)
	assert.Empty(t, rejected)

	closed, rejected = agg.Flush()
	assert.Empty(t, rejected)
	require.Len(t, closed, 1)

	draft := closed[0]
	assert.Equal(t, "p1", draft.ProjectID)
	assert.Equal(t, "PROJ-42", draft.Ticket)
	assert.Len(t, draft.Sources, 3)
	assert.Equal(t, t0, draft.Start)
	assert.Equal(t, t0.Add(54*time.Minute), draft.End)
	assert.Equal(t, 47*time.Minute, draft.Covered())
}

func TestAggregator_DifferentProjectClosesEvenOnTinyGap(t *testing.T) {
	entries := buildEntries(
		entrySpec{title: "CH2-1 work", app: "Code", project: "p1", ticket: "CH2-1", length: 10 * time.Minute},
		entrySpec{title: "FALL-2 work", app: "Code", project: "p2", ticket: "FALL-2", offset: 11 * time.Minute, length: 10 * time.Minute},
	)

	agg := defaultAggregator()
	closed, _ := agg.Add(entries)
	require.Len(t, closed, 1)
	assert.Equal(t, "p1", closed[0].ProjectID)

	closed, _ = agg.Flush()
	require.Len(t, closed, 1)
	assert.Equal(t, "p2", closed[0].ProjectID)
}

func TestAggregator_GapBoundaryExactlyFiveMinutes(t *testing.T) {
	t.Run("same ticket merges in moderate band", func(t *testing.T) {
		entries := buildEntries(
			entrySpec{title: "CH2-1 a", app: "Code", project: "p1", ticket: "CH2-1", length: 10 * time.Minute},
			entrySpec{title: "CH2-1 b", app: "Mail", project: "p1", ticket: "CH2-1", offset: 15 * time.Minute, length: 10 * time.Minute},
		)

		agg := defaultAggregator()
		agg.Add(entries)
		closed, _ := agg.Flush()
		require.Len(t, closed, 1)
		assert.Len(t, closed[0].Sources, 2)
	})

	t.Run("unmatched interruption does not merge at exactly five minutes", func(t *testing.T) {
		// At gap < 5m an unmatched activity would merge; at exactly 5:00
		// the moderate band applies and an unmatched, different-app
		// activity is rejected.
		entries := buildEntries(
			entrySpec{title: "CH2-1 a", app: "Code", project: "p1", ticket: "CH2-1", length: 10 * time.Minute},
			entrySpec{title: "Terminal", app: "iTerm2", offset: 15 * time.Minute, length: 2 * time.Minute},
		)

		agg := defaultAggregator()
		_, rejected := agg.Add(entries)
		require.Len(t, rejected, 1)
		assert.Equal(t, "Terminal", rejected[0].Match.Activity.Title)
	})

	t.Run("no tickets and same application merges", func(t *testing.T) {
		entries := buildEntries(
			entrySpec{title: "charly docs", app: "Safari", project: "p1", length: 10 * time.Minute},
			entrySpec{title: "charly docs again", app: "Safari", project: "p1", offset: 15 * time.Minute, length: 10 * time.Minute},
		)

		agg := defaultAggregator()
		agg.Add(entries)
		closed, _ := agg.Flush()
		require.Len(t, closed, 1)
		assert.Len(t, closed[0].Sources, 2)
	})

	t.Run("no tickets and different application closes", func(t *testing.T) {
		entries := buildEntries(
			entrySpec{title: "charly docs", app: "Safari", project: "p1", length: 10 * time.Minute},
			entrySpec{title: "charly code", app: "Code", project: "p1", offset: 15 * time.Minute, length: 10 * time.Minute},
		)

		agg := defaultAggregator()
		closed, _ := agg.Add(entries)
		require.Len(t, closed, 1)
		closed, _ = agg.Flush()
		require.Len(t, closed, 1)
	})
}

func TestAggregator_LargeGapNeverMerges(t *testing.T) {
	entries := buildEntries(
		entrySpec{title: "CH2-1 a", app: "Code", project: "p1", ticket: "CH2-1", length: 10 * time.Minute},
		entrySpec{title: "CH2-1 b", app: "Code", project: "p1", ticket: "CH2-1", offset: 26 * time.Minute, length: 10 * time.Minute},
	)

	agg := New(30*time.Second, 15*time.Minute)
	closed, _ := agg.Add(entries)
	require.Len(t, closed, 1)
	closed, _ = agg.Flush()
	require.Len(t, closed, 1)
}

func TestAggregator_OverlappingActivitiesClampGap(t *testing.T) {
	entries := buildEntries(
		entrySpec{title: "CH2-1 a", app: "Code", project: "p1", ticket: "CH2-1", length: 10 * time.Minute},
		entrySpec{title: "CH2-1 b", app: "Code", project: "p1", ticket: "CH2-1", offset: 8 * time.Minute, length: 10 * time.Minute},
	)

	agg := defaultAggregator()
	agg.Add(entries)
	closed, _ := agg.Flush()
	require.Len(t, closed, 1)
	assert.Len(t, closed[0].Sources, 2)
}

func TestAggregator_ShortClusterDiscarded(t *testing.T) {
	// Two 10-second fragments separated by a large gap: each closes
	// below the minimum covered duration and is rejected.
	entries := buildEntries(
		entrySpec{title: "CH2-1 blip", app: "Code", project: "p1", ticket: "CH2-1", length: 10 * time.Second},
		entrySpec{title: "CH2-1 blip2", app: "Code", project: "p1", ticket: "CH2-1", offset: 30 * time.Minute, length: 10 * time.Second},
	)

	agg := defaultAggregator()
	closed, rejected := agg.Add(entries)
	assert.Empty(t, closed)
	require.Len(t, rejected, 1)

	closed, flushRejected := agg.Flush()
	assert.Empty(t, closed)
	require.Len(t, flushRejected, 1)
}

func TestAggregator_UnmatchedNeverOpens(t *testing.T) {
	entries := buildEntries(
		entrySpec{title: "random browsing", app: "Safari", length: 10 * time.Minute},
		entrySpec{title: "more browsing", app: "Safari", offset: 11 * time.Minute, length: 10 * time.Minute},
	)

	agg := defaultAggregator()
	closed, rejected := agg.Add(entries)
	assert.Empty(t, closed)
	assert.Len(t, rejected, 2)

	closed, _ = agg.Flush()
	assert.Empty(t, closed)
}

func TestAggregator_CarriesOpenDraftAcrossChunks(t *testing.T) {
	// A session spanning a chunk boundary (midnight) must not be split:
	// the second chunk's first activity merges into the carried draft.
	chunk1 := buildEntries(
		entrySpec{title: "CH2-1 late work", app: "Code", project: "p1", ticket: "CH2-1", offset: 0, length: 30 * time.Minute},
	)
	chunk2 := buildEntries(
		entrySpec{title: "CH2-1 past midnight", app: "Code", project: "p1", ticket: "CH2-1", offset: 32 * time.Minute, length: 30 * time.Minute},
	)

	agg := defaultAggregator()
	closed, _ := agg.Add(chunk1)
	assert.Empty(t, closed)
	closed, _ = agg.Add(chunk2)
	assert.Empty(t, closed)

	closed, _ = agg.Flush()
	require.Len(t, closed, 1)
	assert.Len(t, closed[0].Sources, 2)
}

func TestAggregator_TicketAdoptedFromLaterSource(t *testing.T) {
	entries := buildEntries(
		entrySpec{title: "charly docs", app: "Safari", project: "p1", length: 10 * time.Minute},
		entrySpec{title: "CH2-7 fix", app: "Code", project: "p1", ticket: "CH2-7", offset: 11 * time.Minute, length: 10 * time.Minute},
	)

	agg := defaultAggregator()
	agg.Add(entries)
	closed, _ := agg.Flush()
	require.Len(t, closed, 1)
	assert.Equal(t, "CH2-7", closed[0].Ticket)
}
