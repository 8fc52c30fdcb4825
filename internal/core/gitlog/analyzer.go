package gitlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sussdorff/timetally/internal/core/config"
	"github.com/sussdorff/timetally/internal/core/logging"
	"github.com/sussdorff/timetally/pkg/executil"
)

// ErrRepoUnavailable marks a configured repository that cannot be read.
// Correlation degrades gracefully: the run continues without its evidence.
var ErrRepoUnavailable = errors.New("repository unavailable")

// loadTimeout bounds a single git log invocation.
const loadTimeout = 30 * time.Second

const dayKey = "2006-01-02"

// Analyzer loads and indexes the commit history of one repository.
// Load once, then query concurrently; the indices are read-only.
type Analyzer struct {
	path     string
	prefixes []*regexp.Regexp
	exec     executil.Executor

	commits  []Commit
	byDay    map[string][]Commit
	byTicket map[string][]Commit
}

// NewAnalyzer creates an analyzer for one configured repository.
func NewAnalyzer(repo config.GitRepo, exec executil.Executor) *Analyzer {
	return &Analyzer{
		path:     repo.Path,
		prefixes: compilePrefixes(repo.TicketPrefixes),
		exec:     exec,
		byDay:    map[string][]Commit{},
		byTicket: map[string][]Commit{},
	}
}

// Path returns the repository path.
func (a *Analyzer) Path() string { return a.path }

// Load reads the repository's commit log for the date range and builds the
// day and ticket indices. A missing or unreadable repository returns an
// error wrapping ErrRepoUnavailable.
func (a *Analyzer) Load(ctx context.Context, since, until time.Time) error {
	if _, err := os.Stat(a.path); err != nil {
		return fmt.Errorf("%w: %s", ErrRepoUnavailable, a.path)
	}

	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	out, err := a.exec.RunDir(ctx, a.path, "git", "log",
		"--since="+since.Format(dayKey),
		"--until="+until.Format(dayKey),
		"--format=%H|%aI|%s|%an",
		"--all",
	)
	if err != nil {
		return fmt.Errorf("%w: git log in %s: %v", ErrRepoUnavailable, a.path, err)
	}

	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 4)
		if len(parts) != 4 {
			continue
		}

		ts, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			continue
		}

		sha := parts[0]
		if len(sha) > 8 {
			sha = sha[:8]
		}

		commit := Commit{
			SHA:       sha,
			Timestamp: ts,
			Message:   parts[2],
			Author:    parts[3],
			Tickets:   extractTickets(a.prefixes, parts[2]),
		}

		a.commits = append(a.commits, commit)
		a.byDay[ts.Format(dayKey)] = append(a.byDay[ts.Format(dayKey)], commit)
		for _, ticket := range commit.Tickets {
			a.byTicket[ticket] = append(a.byTicket[ticket], commit)
		}
	}

	return nil
}

// FindNear returns all commits within ±window of the given midpoint.
// When the activity carries a ticket and an in-window commit shares it,
// only the ticket-bearing commits are returned and the evidence is marked
// ticket-confirmed.
func (a *Analyzer) FindNear(mid time.Time, ticket string, window time.Duration) Evidence {
	searchStart := mid.Add(-window)
	searchEnd := mid.Add(window)

	if ticket != "" {
		var confirmed []Commit
		for _, c := range a.byTicket[strings.ToUpper(ticket)] {
			if inRange(c.Timestamp, searchStart, searchEnd) {
				confirmed = append(confirmed, c)
			}
		}
		if len(confirmed) > 0 {
			sortByTime(confirmed)
			return Evidence{Commits: confirmed, TicketConfirmed: true}
		}
	}

	var found []Commit
	for day := searchStart; !day.After(searchEnd.Add(24 * time.Hour)); day = day.Add(24 * time.Hour) {
		for _, c := range a.byDay[day.Format(dayKey)] {
			if inRange(c.Timestamp, searchStart, searchEnd) {
				found = append(found, c)
			}
		}
	}
	sortByTime(found)
	return Evidence{Commits: found}
}

// Stats summarizes the loaded history for the commits command.
type Stats struct {
	Path         string     `json:"path"`
	TotalCommits int        `json:"totalCommits"`
	TicketsFound int        `json:"ticketsFound"`
	Authors      int        `json:"authors"`
	FirstCommit  *time.Time `json:"firstCommit,omitempty"`
	LastCommit   *time.Time `json:"lastCommit,omitempty"`
}

// Stats returns summary statistics about the loaded commits.
func (a *Analyzer) Stats() Stats {
	s := Stats{
		Path:         a.path,
		TotalCommits: len(a.commits),
		TicketsFound: len(a.byTicket),
	}

	authors := map[string]struct{}{}
	for _, c := range a.commits {
		authors[c.Author] = struct{}{}
		if s.FirstCommit == nil || c.Timestamp.Before(*s.FirstCommit) {
			ts := c.Timestamp
			s.FirstCommit = &ts
		}
		if s.LastCommit == nil || c.Timestamp.After(*s.LastCommit) {
			ts := c.Timestamp
			s.LastCommit = &ts
		}
	}
	s.Authors = len(authors)
	return s
}

// TicketCounts returns commit counts per extracted ticket.
func (a *Analyzer) TicketCounts() map[string]int {
	counts := make(map[string]int, len(a.byTicket))
	for ticket, commits := range a.byTicket {
		counts[ticket] = len(commits)
	}
	return counts
}

// LoadAll loads every analyzer in parallel; the indices are disjoint so
// this is the only parallel step in the pipeline. Unavailable repositories
// are logged and skipped, never fatal.
func LoadAll(ctx context.Context, analyzers []*Analyzer, since, until time.Time) {
	logger := logging.Component("gitlog")

	var wg sync.WaitGroup
	for _, a := range analyzers {
		wg.Add(1)
		go func(a *Analyzer) {
			defer wg.Done()
			if err := a.Load(ctx, since, until); err != nil {
				logger.Warn().Err(err).Str("repo", a.path).Msg("commit history unavailable")
				return
			}
			logger.Debug().Str("repo", a.path).Int("commits", a.Stats().TotalCommits).Msg("loaded commit history")
		}(a)
	}
	wg.Wait()
}

// Correlate merges evidence for one activity across all repositories.
func Correlate(analyzers []*Analyzer, mid time.Time, ticket string, window time.Duration) Evidence {
	evidence := make([]Evidence, 0, len(analyzers))
	for _, a := range analyzers {
		evidence = append(evidence, a.FindNear(mid, ticket, window))
	}
	return Merge(evidence...)
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func sortByTime(commits []Commit) {
	sort.Slice(commits, func(i, j int) bool {
		return commits[i].Timestamp.Before(commits[j].Timestamp)
	})
}
