package timetally

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sussdorff/timetally/internal/core/aggregate"
	"github.com/sussdorff/timetally/internal/core/config"
	"github.com/sussdorff/timetally/internal/core/export"
	"github.com/sussdorff/timetally/internal/core/gitlog"
	"github.com/sussdorff/timetally/internal/core/match"
	"github.com/sussdorff/timetally/internal/core/proposal"
	"github.com/sussdorff/timetally/pkg/executil"
)

// defaultChunkWindow splits the export into weekly slices so peak memory
// stays bounded by the busiest week, not the export size.
const defaultChunkWindow = 7 * 24 * time.Hour

// RunOptions configures a pipeline run.
type RunOptions struct {
	ExportPath  string
	From        time.Time     // zero = first dated entry in the export
	To          time.Time     // zero = last dated entry in the export
	ChunkWindow time.Duration // zero = one week
	SkipCommits bool          // skip building the commit index entirely
}

// Service orchestrates the matching pipeline end to end.
type Service struct {
	config   *config.Config
	matcher  *match.Matcher
	executor executil.Executor
	log      zerolog.Logger
}

// NewService compiles the matching rules once and returns the service.
// Rule compilation errors are fatal here, before any export is touched.
func NewService(cfg *config.Config, exec executil.Executor, log zerolog.Logger) (*Service, error) {
	matcher, err := match.NewMatcher(cfg.Projects)
	if err != nil {
		return nil, fmt.Errorf("compile matching rules: %w", err)
	}
	return &Service{
		config:   cfg,
		matcher:  matcher,
		executor: exec,
		log:      log,
	}, nil
}

// Run executes the full pipeline: read the export, match activities against
// the rules, correlate with commit history, aggregate into drafts, score and
// assemble the artifact. Chunks are processed sequentially because sessions
// may span chunk boundaries; only the commit index build is parallel.
func (s *Service) Run(ctx context.Context, opts RunOptions) (*proposal.Artifact, error) {
	reader, err := export.Open(opts.ExportPath)
	if err != nil {
		return nil, err
	}

	from, to, err := resolveRange(reader, opts)
	if err != nil {
		return nil, err
	}
	window := opts.ChunkWindow
	if window == 0 {
		window = defaultChunkWindow
	}

	analyzers, err := s.buildAnalyzers(ctx, from, to, opts.SkipCommits)
	if err != nil {
		return nil, err
	}

	var (
		counts  proposal.Counts
		tally   = proposal.UnmatchedTally{}
		agg     = aggregate.New(s.config.Matching.MinDuration(), s.config.Matching.MaxGap())
		drafts  []aggregate.Draft
		minDur  = s.config.Matching.MinDuration()
		cwindow = s.config.Matching.CommitWindow()
	)

	// Entries without a parseable start belong to no chunk; they are
	// reported once and counted as errored.
	for _, m := range reader.Malformed() {
		s.log.Warn().Err(&m).Msg("skipping malformed export entry")
	}
	counts.Input += len(reader.Malformed())
	counts.Errored += len(reader.Malformed())

	it := reader.Chunks(from, to, window)
	for {
		chunk, err := it.Next()
		if chunk == nil && err == nil {
			break
		}
		if err != nil {
			var entryErr *export.MalformedEntryError
			if chunk == nil || !errors.As(err, &entryErr) {
				return nil, err
			}
			// The whole chunk is dropped so partial decodes never
			// leak into the totals.
			s.log.Warn().Err(err).
				Time("from", chunk.From).Time("to", chunk.To).
				Int("entries", chunk.RawCount).
				Msg("dropping chunk with malformed entry")
			counts.Input += chunk.RawCount
			counts.Errored += chunk.RawCount
			continue
		}

		counts.Input += chunk.RawCount
		s.log.Debug().
			Time("from", chunk.From).Time("to", chunk.To).
			Int("entries", chunk.RawCount).
			Msg("processing chunk")

		var entries []aggregate.Entry
		for _, a := range chunk.Activities {
			if a.Duration() < minDur {
				counts.Unmatched++
				tally.Add(a.Title, a.Application)
				continue
			}

			res := s.matcher.Match(a)
			if res.Ignored {
				counts.Ignored++
				tally.Add(a.Title, a.Application)
				continue
			}

			// Unmatched activities still go to the aggregator: a short
			// interruption inside a session merges into it. Whatever
			// never joins a proposal comes back via rejected.
			entry := aggregate.Entry{Match: res}
			if res.Matched() && len(analyzers) > 0 {
				entry.Evidence = gitlog.Correlate(analyzers, a.Midpoint(), res.Ticket, cwindow)
			}
			entries = append(entries, entry)
		}

		closed, rejected := agg.Add(entries)
		drafts = append(drafts, closed...)
		s.rejectEntries(rejected, &counts, tally)
	}

	closed, rejected := agg.Flush()
	drafts = append(drafts, closed...)
	s.rejectEntries(rejected, &counts, tally)

	scorer := aggregate.NewScorer(s.config.Matching.Confidence)
	assembler := proposal.NewAssembler(s.config.Output)

	var proposals []proposal.Proposal
	for _, d := range drafts {
		score, bucket := scorer.Score(d)
		if bucket == aggregate.BucketNone {
			// Below every threshold the draft goes back to unmatched
			// rather than producing a proposal nobody should trust.
			s.rejectEntries(d.Sources, &counts, tally)
			continue
		}
		proposals = append(proposals, assembler.FromDraft(d, score, bucket))
	}

	artifact, err := assembler.Assemble(proposals, counts, tally,
		from.Format("2006-01-02"), to.Format("2006-01-02"), time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int("input", counts.Input).
		Int("proposals", len(proposals)).
		Int("unmatched", counts.Unmatched).
		Int("ignored", counts.Ignored).
		Int("errored", counts.Errored).
		Msg("pipeline complete")
	return artifact, nil
}

// ExportStats summarizes an export without running the pipeline.
func (s *Service) ExportStats(opts RunOptions) (*ExportStats, error) {
	reader, err := export.Open(opts.ExportPath)
	if err != nil {
		return nil, err
	}
	from, to, err := resolveRange(reader, opts)
	if err != nil {
		return nil, err
	}
	window := opts.ChunkWindow
	if window == 0 {
		window = defaultChunkWindow
	}

	stats := &ExportStats{
		Path:      opts.ExportPath,
		Entries:   reader.Count(),
		Malformed: len(reader.Malformed()),
		From:      from,
		To:        to,
	}

	it := reader.Chunks(from, to, window)
	for {
		chunk, err := it.Next()
		if chunk == nil && err == nil {
			break
		}
		if err != nil {
			var entryErr *export.MalformedEntryError
			if chunk == nil || !errors.As(err, &entryErr) {
				return nil, err
			}
			stats.Malformed += chunk.RawCount
			continue
		}
		if chunk.RawCount == 0 {
			continue
		}
		stats.Chunks = append(stats.Chunks, ChunkStats{
			From:    chunk.From,
			To:      chunk.To,
			Entries: chunk.RawCount,
		})
	}
	return stats, nil
}

// CommitStats builds the commit index for every configured repository and
// returns per-repo statistics plus the merged ticket frequency table.
func (s *Service) CommitStats(ctx context.Context, since, until time.Time) ([]gitlog.Stats, map[string]int, error) {
	analyzers, err := s.buildAnalyzers(ctx, since, until, false)
	if err != nil {
		return nil, nil, err
	}

	stats := make([]gitlog.Stats, 0, len(analyzers))
	tickets := map[string]int{}
	for _, a := range analyzers {
		stats = append(stats, a.Stats())
		for ticket, n := range a.TicketCounts() {
			tickets[ticket] += n
		}
	}
	return stats, tickets, nil
}

// ExportStats describes an export file without matching anything.
type ExportStats struct {
	Path      string       `json:"path"`
	Entries   int          `json:"entries"`
	Malformed int          `json:"malformed"`
	From      time.Time    `json:"from"`
	To        time.Time    `json:"to"`
	Chunks    []ChunkStats `json:"chunks"`
}

// ChunkStats is the entry count of one date window.
type ChunkStats struct {
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Entries int       `json:"entries"`
}

// buildAnalyzers expands the repo globs and loads all commit indexes in
// parallel. Unavailable repositories are logged and skipped inside LoadAll.
func (s *Service) buildAnalyzers(ctx context.Context, since, until time.Time, skip bool) ([]*gitlog.Analyzer, error) {
	if skip {
		return nil, nil
	}
	repos, err := s.config.ExpandedRepos()
	if err != nil {
		return nil, fmt.Errorf("expand git repos: %w", err)
	}
	analyzers := make([]*gitlog.Analyzer, 0, len(repos))
	for _, repo := range repos {
		analyzers = append(analyzers, gitlog.NewAnalyzer(repo, s.executor))
	}
	// Widen by a day on each side so commits near chunk edges still
	// correlate with activities inside the range.
	gitlog.LoadAll(ctx, analyzers, since.AddDate(0, 0, -1), until.AddDate(0, 0, 1))
	return analyzers, nil
}

func (s *Service) rejectEntries(entries []aggregate.Entry, counts *proposal.Counts, tally proposal.UnmatchedTally) {
	for _, e := range entries {
		counts.Unmatched++
		tally.Add(e.Match.Activity.Title, e.Match.Activity.Application)
	}
}

func resolveRange(r *export.Reader, opts RunOptions) (time.Time, time.Time, error) {
	from, to, err := r.DateRange()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !opts.From.IsZero() {
		from = opts.From
	}
	if !opts.To.IsZero() {
		to = opts.To
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("date range is empty: %s is before %s",
			to.Format("2006-01-02"), from.Format("2006-01-02"))
	}
	return from, to, nil
}
