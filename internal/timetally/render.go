package timetally

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/sussdorff/timetally/internal/core/gitlog"
	"github.com/sussdorff/timetally/internal/core/proposal"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	highStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	mediumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	lowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// Summary renders a terminal report of a pipeline run.
func Summary(a *proposal.Artifact) string {
	var b strings.Builder

	m := a.Metadata
	b.WriteString(headerStyle.Render("Run summary") + "\n")
	b.WriteString(fmt.Sprintf("  Range      %s to %s\n", m.RangeStart, m.RangeEnd))
	b.WriteString(fmt.Sprintf("  Activities %d input, %d matched, %d unmatched, %d ignored, %d errored\n",
		m.TotalInputEntries, m.MatchedEntries, m.UnmatchedEntries, m.IgnoredEntries, m.ErroredEntries))
	b.WriteString(fmt.Sprintf("  Proposals  %d (%s)\n\n", m.ProposedTimeEntries, distribution(m.ConfidenceDistribution)))

	if len(a.ProjectSummaries) > 0 {
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(dimStyle).
			Headers("Project", "Entries", "Total")
		for _, p := range a.ProjectSummaries {
			name := p.ProjectName
			if name == "" {
				name = p.ProjectID
			}
			t.Row(name, strconv.Itoa(p.EntryCount), p.TotalDuration)
		}
		b.WriteString(t.Render() + "\n\n")
	}

	if len(a.Conflicts) > 0 {
		b.WriteString(lowStyle.Render(fmt.Sprintf("%d overlapping proposals need review:", len(a.Conflicts))) + "\n")
		for _, c := range a.Conflicts {
			b.WriteString("  " + c.Message + "\n")
		}
		b.WriteString("\n")
	}

	if len(a.UnmatchedSummary) > 0 {
		b.WriteString(headerStyle.Render("Top unmatched activity") + "\n")
		for _, u := range a.UnmatchedSummary {
			b.WriteString(fmt.Sprintf("  %4dx  %s\n", u.Count, u.Pattern))
		}
	}

	return b.String()
}

// Proposals renders the individual proposals, most recent first kept in
// artifact order, with a confidence-colored bucket tag.
func Proposals(a *proposal.Artifact) string {
	var b strings.Builder
	for _, p := range a.Proposals {
		tag := bucketStyle(string(p.ConfidenceBucket)).Render(fmt.Sprintf("[%s %.2f]", p.ConfidenceBucket, p.Confidence))
		b.WriteString(fmt.Sprintf("%s  %s  %s  %s\n",
			p.Start.Format("2006-01-02 15:04"),
			p.DurationISO(),
			tag,
			p.Title))
		if p.Notes != "" {
			for _, line := range strings.Split(p.Notes, "\n") {
				b.WriteString(dimStyle.Render("    "+line) + "\n")
			}
		}
	}
	return b.String()
}

// CommitReport renders per-repository commit index statistics.
func CommitReport(stats []gitlog.Stats, tickets map[string]int) string {
	var b strings.Builder

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Repository", "Commits", "Tickets", "Authors", "Span")
	for _, s := range stats {
		span := ""
		if s.FirstCommit != nil && s.LastCommit != nil {
			span = fmt.Sprintf("%s to %s",
				s.FirstCommit.Format("2006-01-02"), s.LastCommit.Format("2006-01-02"))
		}
		t.Row(s.Path, strconv.Itoa(s.TotalCommits), strconv.Itoa(s.TicketsFound),
			strconv.Itoa(s.Authors), span)
	}
	b.WriteString(t.Render() + "\n")

	if len(tickets) > 0 {
		b.WriteString("\n" + headerStyle.Render("Tickets referenced in commits") + "\n")
		for _, tc := range sortTicketCounts(tickets) {
			b.WriteString(fmt.Sprintf("  %4dx  %s\n", tc.count, tc.ticket))
		}
	}
	return b.String()
}

func distribution(d map[string]int) string {
	parts := make([]string, 0, 3)
	for _, bucket := range []string{"high", "medium", "low"} {
		if n, ok := d[bucket]; ok {
			parts = append(parts, bucketStyle(bucket).Render(fmt.Sprintf("%d %s", n, bucket)))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func bucketStyle(bucket string) lipgloss.Style {
	switch bucket {
	case "high":
		return highStyle
	case "medium":
		return mediumStyle
	default:
		return lowStyle
	}
}

type ticketCount struct {
	ticket string
	count  int
}

func sortTicketCounts(tickets map[string]int) []ticketCount {
	counts := make([]ticketCount, 0, len(tickets))
	for ticket, n := range tickets {
		counts = append(counts, ticketCount{ticket, n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].ticket < counts[j].ticket
	})
	return counts
}
