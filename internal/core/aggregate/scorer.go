package aggregate

import (
	"time"

	"github.com/sussdorff/timetally/internal/core/config"
)

// Bucket classifies a confidence score against the configured thresholds.
type Bucket string

// Confidence buckets. BucketNone demotes a draft back into the unmatched
// summary instead of proposing it.
const (
	BucketHigh   Bucket = "high"
	BucketMedium Bucket = "medium"
	BucketLow    Bucket = "low"
	BucketNone   Bucket = "none"
)

// Scoring bonuses. Ticket-confirmed commit evidence outweighs time-only
// evidence; sustained focus is itself weak evidence of genuine work.
const (
	strongEvidenceBonus = 0.15
	weakEvidenceBonus   = 0.05
	durationBonus       = 0.05
	durationBonusFloor  = 15 * time.Minute
)

// Scorer combines stage confidence, correlation evidence and duration
// into a final score and bucket.
type Scorer struct {
	thresholds config.Thresholds
}

// NewScorer creates a Scorer with the configured bucket thresholds.
func NewScorer(thresholds config.Thresholds) *Scorer {
	return &Scorer{thresholds: thresholds}
}

// Score computes the final confidence for a closed draft. The base is the
// maximum stage confidence among sources: a single strong ticket match
// anchors the whole merged block.
func (s *Scorer) Score(d Draft) (float64, Bucket) {
	var base float64
	strong, weak := false, false
	for _, e := range d.Sources {
		if e.Match.StageConfidence > base {
			base = e.Match.StageConfidence
		}
		if e.Evidence.TicketConfirmed {
			strong = true
		} else if !e.Evidence.Empty() {
			weak = true
		}
	}

	score := base
	switch {
	case strong:
		score += strongEvidenceBonus
	case weak:
		score += weakEvidenceBonus
	}

	if d.Covered() >= durationBonusFloor {
		score += durationBonus
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}

	return score, s.Bucket(score)
}

// Bucket maps a score onto the half-open threshold intervals
// [high,1], [medium,high), [low,medium), [0,low).
func (s *Scorer) Bucket(score float64) Bucket {
	switch {
	case score >= s.thresholds.High:
		return BucketHigh
	case score >= s.thresholds.Medium:
		return BucketMedium
	case score >= s.thresholds.Low:
		return BucketLow
	default:
		return BucketNone
	}
}
