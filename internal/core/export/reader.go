package export

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/tidwall/gjson"
)

// dateOnly is the layout used for chunk window boundaries.
const dateOnly = "2006-01-02"

// Reader scans an export without decoding the whole array into records.
// Selection by date window works on the raw startDate strings, so peak
// decoded memory is bounded by the largest chunk, not the export size.
type Reader struct {
	data      []byte
	starts    []string // raw startDate per entry, "" for malformed
	malformed []MalformedEntryError
}

// Open reads an export file and pre-scans entry start dates. Entries with
// a missing or non-string startDate are collected as malformed up front;
// they belong to no chunk and are reported once via Malformed.
func Open(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	return NewReader(data)
}

// NewReader scans raw export bytes. The bytes must be a JSON array.
func NewReader(data []byte) (*Reader, error) {
	parsed := gjson.ParseBytes(data)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("export is not a JSON array")
	}

	r := &Reader{data: data}

	idx := 0
	parsed.ForEach(func(_, entry gjson.Result) bool {
		start := entry.Get("startDate")
		if start.Type != gjson.String || len(start.String()) < len(dateOnly) {
			r.malformed = append(r.malformed, MalformedEntryError{
				Index: idx,
				Field: "startDate",
				Value: start.String(),
			})
			r.starts = append(r.starts, "")
		} else {
			r.starts = append(r.starts, start.String())
		}
		idx++
		return true
	})

	return r, nil
}

// Count returns the total number of entries, malformed ones included.
func (r *Reader) Count() int {
	return len(r.starts)
}

// Malformed returns entries that could not be placed in any chunk.
func (r *Reader) Malformed() []MalformedEntryError {
	return r.malformed
}

// DateRange returns the first and last entry dates, both inclusive,
// derived from the raw start strings.
func (r *Reader) DateRange() (time.Time, time.Time, error) {
	var minStr, maxStr string
	for _, s := range r.starts {
		if s == "" {
			continue
		}
		if minStr == "" || s < minStr {
			minStr = s
		}
		if s > maxStr {
			maxStr = s
		}
	}
	if minStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("export contains no dated entries")
	}

	from, err := time.Parse(dateOnly, minStr[:len(dateOnly)])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse first date: %w", err)
	}
	to, err := time.Parse(dateOnly, maxStr[:len(dateOnly)])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse last date: %w", err)
	}
	return from, to, nil
}

// Chunk is one date-delimited slice of the export, covering [From, To).
type Chunk struct {
	From       time.Time
	To         time.Time
	Activities []Activity
	// RawCount is the number of entries whose start falls in the window,
	// before any decoding. When decoding aborts, it is the errored count.
	RawCount int
}

// ChunkIter yields consecutive chunks of the export in time order.
type ChunkIter struct {
	r       *Reader
	current time.Time
	end     time.Time
	window  time.Duration
}

// Chunks iterates date windows of the given size over [from, to].
// Boundaries are truncated to whole days; the window must be at least one
// day. No entry appears in two chunks and none are dropped.
func (r *Reader) Chunks(from, to time.Time, window time.Duration) *ChunkIter {
	if window < 24*time.Hour {
		window = 24 * time.Hour
	}
	return &ChunkIter{
		r:       r,
		current: from.Truncate(24 * time.Hour),
		end:     to.Truncate(24 * time.Hour).Add(24 * time.Hour),
		window:  window,
	}
}

// Next returns the next non-empty chunk. A *MalformedEntryError aborts
// only the returned chunk: Activities is nil, RawCount still counts the
// window's entries, and the caller may keep iterating. Returns nil, nil
// when the range is exhausted.
func (it *ChunkIter) Next() (*Chunk, error) {
	for it.current.Before(it.end) {
		winFrom := it.current
		winTo := winFrom.Add(it.window)
		if winTo.After(it.end) {
			winTo = it.end
		}
		it.current = winTo

		chunk, err := it.r.extract(winFrom, winTo)
		if err != nil {
			return chunk, err
		}
		if len(chunk.Activities) > 0 {
			return chunk, nil
		}
	}
	return nil, nil
}

// extract decodes every entry whose start falls in [from, to). The first
// undecodable entry aborts the chunk.
func (r *Reader) extract(from, to time.Time) (*Chunk, error) {
	fromStr := from.Format(dateOnly)
	toStr := to.Format(dateOnly)

	chunk := &Chunk{From: from, To: to}

	var entryErr error
	idx := -1
	gjson.ParseBytes(r.data).ForEach(func(_, entry gjson.Result) bool {
		idx++
		ds := r.starts[idx]
		if ds == "" || ds[:len(dateOnly)] < fromStr || ds[:len(dateOnly)] >= toStr {
			return true
		}
		chunk.RawCount++

		a, err := decodeEntry(idx, entry)
		if err != nil {
			entryErr = err
			chunk.Activities = nil
			return false
		}
		chunk.Activities = append(chunk.Activities, a)
		return true
	})

	if entryErr != nil {
		// Entries already decoded before the failure are discarded with
		// the chunk; RawCount may undercount the window, so recount it.
		chunk.RawCount = r.countWindow(fromStr, toStr)
		return chunk, entryErr
	}

	sortActivities(chunk.Activities)
	return chunk, nil
}

func (r *Reader) countWindow(fromStr, toStr string) int {
	n := 0
	for _, ds := range r.starts {
		if ds != "" && ds[:len(dateOnly)] >= fromStr && ds[:len(dateOnly)] < toStr {
			n++
		}
	}
	return n
}

func decodeEntry(idx int, entry gjson.Result) (Activity, error) {
	startStr := entry.Get("startDate").String()
	endStr := entry.Get("endDate").String()

	start, err := parseTime(startStr)
	if err != nil {
		return Activity{}, &MalformedEntryError{Index: idx, Field: "startDate", Value: startStr, Err: err}
	}
	end, err := parseTime(endStr)
	if err != nil {
		return Activity{}, &MalformedEntryError{Index: idx, Field: "endDate", Value: endStr, Err: err}
	}

	return Activity{
		Title:       entry.Get("activityTitle").String(),
		Application: entry.Get("application").String(),
		Start:       start,
		End:         end,
		Path:        entry.Get("path").String(),
	}, nil
}

func sortActivities(activities []Activity) {
	// Exports are already time-ordered; this guards against out-of-order
	// entries without assuming them.
	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].Start.Before(activities[j].Start)
	})
}
