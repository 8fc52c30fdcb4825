package gitlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sussdorff/timetally/internal/core/config"
	"github.com/sussdorff/timetally/pkg/executil"
)

const sampleLog = `aaaaaaaa11112222|2025-08-17T09:05:00+02:00|CH2-13130 fix crash on startup|Malte
bbbbbbbb33334444|2025-08-17T14:30:00+02:00|refactor config loading|Malte
cccccccc55556666|2025-08-18T23:55:00+02:00|FALL-1510 nightly cleanup|Anna
not a log line
dddddddd77778888|2025-08-19T00:10:00+02:00|ch2-13130 add regression test|Anna`

func loadedAnalyzer(t *testing.T) *Analyzer {
	t.Helper()

	exec := &executil.RecordingExecutor{
		Outputs: map[string][]byte{"git": []byte(sampleLog)},
	}
	a := NewAnalyzer(config.GitRepo{
		Path:           t.TempDir(), // must exist for the stat check
		TicketPrefixes: []string{"CH2-", "FALL-"},
	}, exec)

	err := a.Load(context.Background(),
		time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, exec.Commands, 1)
	assert.Equal(t, "git", exec.Commands[0].Cmd)
	assert.Contains(t, exec.Commands[0].Args, "--all")

	return a
}

func TestAnalyzer_LoadParsesAndIndexes(t *testing.T) {
	a := loadedAnalyzer(t)

	stats := a.Stats()
	assert.Equal(t, 4, stats.TotalCommits, "unparseable lines are skipped")
	assert.Equal(t, 2, stats.Authors)
	assert.Equal(t, 2, stats.TicketsFound)

	counts := a.TicketCounts()
	assert.Equal(t, 2, counts["CH2-13130"], "ticket extraction is case-insensitive")
	assert.Equal(t, 1, counts["FALL-1510"])
}

func TestAnalyzer_LoadMissingRepo(t *testing.T) {
	a := NewAnalyzer(config.GitRepo{Path: "/definitely/not/a/repo"}, &executil.RecordingExecutor{})

	err := a.Load(context.Background(), time.Now().Add(-time.Hour), time.Now())
	assert.ErrorIs(t, err, ErrRepoUnavailable)
}

func TestAnalyzer_FindNear(t *testing.T) {
	a := loadedAnalyzer(t)
	cet := time.FixedZone("CEST", 2*3600)

	t.Run("ticket confirmed inside window", func(t *testing.T) {
		mid := time.Date(2025, 8, 17, 9, 0, 0, 0, cet)
		ev := a.FindNear(mid, "CH2-13130", 15*time.Minute)

		assert.True(t, ev.TicketConfirmed)
		require.Len(t, ev.Commits, 1)
		assert.Equal(t, "aaaaaaaa", ev.Commits[0].SHA)
	})

	t.Run("time-only evidence without ticket", func(t *testing.T) {
		mid := time.Date(2025, 8, 17, 14, 20, 0, 0, cet)
		ev := a.FindNear(mid, "", 15*time.Minute)

		assert.False(t, ev.TicketConfirmed)
		require.Len(t, ev.Commits, 1)
		assert.Equal(t, "bbbbbbbb", ev.Commits[0].SHA)
	})

	t.Run("window crossing midnight finds both days", func(t *testing.T) {
		mid := time.Date(2025, 8, 19, 0, 0, 0, 0, cet)
		ev := a.FindNear(mid, "", 20*time.Minute)

		require.Len(t, ev.Commits, 2)
		assert.Equal(t, "cccccccc", ev.Commits[0].SHA)
		assert.Equal(t, "dddddddd", ev.Commits[1].SHA)
	})

	t.Run("empty when nothing in window", func(t *testing.T) {
		mid := time.Date(2025, 8, 17, 11, 0, 0, 0, cet)
		ev := a.FindNear(mid, "", 15*time.Minute)
		assert.True(t, ev.Empty())
	})

	t.Run("unconfirmed ticket falls back to time search", func(t *testing.T) {
		mid := time.Date(2025, 8, 17, 14, 25, 0, 0, cet)
		ev := a.FindNear(mid, "CH2-9999", 15*time.Minute)

		assert.False(t, ev.TicketConfirmed)
		require.Len(t, ev.Commits, 1)
	})
}

func TestMerge(t *testing.T) {
	weak := Evidence{Commits: []Commit{{SHA: "aaaa"}}}
	strong := Evidence{Commits: []Commit{{SHA: "bbbb"}}, TicketConfirmed: true}

	merged := Merge(weak, strong, Evidence{})
	assert.True(t, merged.TicketConfirmed)
	assert.Len(t, merged.Commits, 2)
}

func TestCorrelate_MultipleRepos(t *testing.T) {
	a := loadedAnalyzer(t)
	b := loadedAnalyzer(t)
	cet := time.FixedZone("CEST", 2*3600)

	mid := time.Date(2025, 8, 17, 9, 0, 0, 0, cet)
	ev := Correlate([]*Analyzer{a, b}, mid, "CH2-13130", 15*time.Minute)

	assert.True(t, ev.TicketConfirmed)
	assert.Len(t, ev.Commits, 2, "one hit per repo; assembler deduplicates SHAs")
}
