// Package gitlog builds a time- and ticket-indexed commit history used to
// corroborate activity matches.
package gitlog

import (
	"regexp"
	"strings"
	"time"
)

// Commit is one version-control commit, read-only once loaded.
type Commit struct {
	SHA       string    `json:"sha"` // short form, 8 chars
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	Tickets   []string  `json:"tickets,omitempty"`
}

// Evidence is the correlation outcome for a single activity: every commit
// within the configured window of the activity midpoint, plus whether any
// of them carries the activity's own ticket.
type Evidence struct {
	Commits         []Commit
	TicketConfirmed bool
}

// Empty reports whether no corroborating commits were found.
func (e Evidence) Empty() bool {
	return len(e.Commits) == 0
}

// Merge combines evidence gathered from independent repositories.
func Merge(evidence ...Evidence) Evidence {
	var merged Evidence
	for _, e := range evidence {
		merged.Commits = append(merged.Commits, e.Commits...)
		merged.TicketConfirmed = merged.TicketConfirmed || e.TicketConfirmed
	}
	return merged
}

// compilePrefixes builds one extraction regex per ticket prefix,
// the same (PREFIX\d+) shape the matcher uses on activity titles.
func compilePrefixes(prefixes []string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(prefixes))
	for _, p := range prefixes {
		res = append(res, regexp.MustCompile(`(?i)(`+regexp.QuoteMeta(p)+`\d+)`))
	}
	return res
}

// extractTickets returns every distinct ticket found in text, uppercased.
func extractTickets(res []*regexp.Regexp, text string) []string {
	var tickets []string
	seen := map[string]struct{}{}
	for _, re := range res {
		for _, m := range re.FindAllString(text, -1) {
			up := strings.ToUpper(m)
			if _, ok := seen[up]; ok {
				continue
			}
			seen[up] = struct{}{}
			tickets = append(tickets, up)
		}
	}
	return tickets
}
