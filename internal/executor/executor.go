package executor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/sussdorff/timetally/internal/core/aggregate"
	"github.com/sussdorff/timetally/internal/core/proposal"
)

// maxAttempts bounds how often a rate-limited proposal is requeued before
// it is counted as failed.
const maxAttempts = 3

// Options filters and shapes an executor run.
type Options struct {
	// MinBucket is the lowest confidence bucket that gets created.
	// Proposals below it are skipped, never failed.
	MinBucket aggregate.Bucket

	// DryRun keeps the read-only existence checks but never creates
	// anything; Created counts what a real run would create.
	DryRun bool
}

// Report summarizes an executor run.
type Report struct {
	Created  int `json:"created"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	Requeued int `json:"requeued"`
}

// Executor writes proposals to the time-tracking service under a request
// rate budget.
type Executor struct {
	client   Client
	interval time.Duration
	log      zerolog.Logger

	lastRequest time.Time
}

// New creates an Executor. maxRequestsPerHour spreads requests evenly; a
// zero or negative budget means no pacing.
func New(client Client, maxRequestsPerHour int, log zerolog.Logger) *Executor {
	var interval time.Duration
	if maxRequestsPerHour > 0 {
		interval = time.Hour / time.Duration(maxRequestsPerHour)
	}
	return &Executor{client: client, interval: interval, log: log}
}

type queued struct {
	p        proposal.Proposal
	attempts int
}

// Run creates one time entry per eligible proposal. Each create is
// preceded by an existence check, so re-running the same artifact creates
// nothing twice. Rate-limited proposals move to the tail of the queue
// after the server's backoff. Cancelling the context stops the run;
// entries already created stay.
func (e *Executor) Run(ctx context.Context, artifact *proposal.Artifact, opts Options) (Report, error) {
	var report Report

	queue := make([]queued, 0, len(artifact.Proposals))
	for _, p := range artifact.Proposals {
		if bucketRank(p.ConfidenceBucket) < bucketRank(opts.MinBucket) {
			report.Skipped++
			e.log.Debug().Str("title", p.Title).Str("bucket", string(p.ConfidenceBucket)).
				Msg("below minimum confidence, skipping")
			continue
		}
		queue = append(queue, queued{p: p})
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		item := queue[0]
		queue = queue[1:]

		if err := e.pace(ctx); err != nil {
			return report, err
		}

		exists, err := e.client.EntryExists(ctx, item.p.ProjectID, item.p.Start, item.p.End)
		if err == nil && exists {
			report.Skipped++
			e.log.Info().Str("title", item.p.Title).Msg("entry already exists, skipping")
			continue
		}
		if err == nil && opts.DryRun {
			report.Created++
			e.log.Info().Str("title", item.p.Title).Str("project", item.p.ProjectID).Msg("would create entry")
			continue
		}
		if err == nil {
			if err = e.pace(ctx); err != nil {
				return report, err
			}
			err = e.client.CreateEntry(ctx, Entry{
				ProjectID: item.p.ProjectID,
				Start:     item.p.Start,
				End:       item.p.End,
				Title:     item.p.Title,
				Notes:     item.p.Notes,
			})
		}

		switch {
		case err == nil:
			report.Created++
			e.log.Info().Str("title", item.p.Title).Str("project", item.p.ProjectID).Msg("entry created")
		case isRateLimit(err):
			item.attempts++
			if item.attempts >= maxAttempts {
				report.Failed++
				e.log.Error().Str("title", item.p.Title).Int("attempts", item.attempts).
					Msg("giving up after repeated rate limits")
				continue
			}
			report.Requeued++
			var rle *RateLimitError
			errors.As(err, &rle)
			e.log.Warn().Str("title", item.p.Title).Dur("retry_after", rle.RetryAfter).
				Msg("rate limited, requeueing")
			if err := sleepCtx(ctx, rle.RetryAfter); err != nil {
				return report, err
			}
			queue = append(queue, item)
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return report, err
		default:
			report.Failed++
			e.log.Error().Err(err).Str("title", item.p.Title).Msg("entry creation failed")
		}
	}

	return report, nil
}

// pace blocks until the next request slot.
func (e *Executor) pace(ctx context.Context) error {
	if e.interval <= 0 {
		return nil
	}
	if wait := e.interval - time.Since(e.lastRequest); wait > 0 {
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
	e.lastRequest = time.Now()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isRateLimit(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

func bucketRank(b aggregate.Bucket) int {
	switch b {
	case aggregate.BucketHigh:
		return 3
	case aggregate.BucketMedium:
		return 2
	case aggregate.BucketLow:
		return 1
	default:
		return 0
	}
}
