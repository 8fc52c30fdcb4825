package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sussdorff/timetally/internal/core/config"
	"github.com/sussdorff/timetally/internal/core/export"
)

func testRules() config.Projects {
	return config.Projects{
		TicketPrefixes: []config.TicketPrefix{
			{Prefix: "CH2-", ProjectID: "proj-charly", ProjectName: "charly-server"},
			{Prefix: "FALL-", ProjectID: "proj-fall", ProjectName: "fall-mgmt"},
		},
		ActivityPatterns: []config.ActivityPattern{
			{Pattern: "charly", ProjectID: "proj-charly", ProjectName: "charly-server"},
			{Pattern: `jira|confluence`, Regex: true, ProjectID: "proj-internal", ProjectName: "Internal"},
		},
		IgnorePatterns: []string{`^\d+[\d\s]*$`, "Screen Sharing"},
	}
}

func activity(title, app string) export.Activity {
	start := time.Date(2025, 8, 17, 9, 0, 0, 0, time.UTC)
	return export.Activity{
		Title:       title,
		Application: app,
		Start:       start,
		End:         start.Add(20 * time.Minute),
	}
}

func TestNewMatcher_InvalidRegex(t *testing.T) {
	rules := testRules()
	rules.ActivityPatterns = append(rules.ActivityPatterns,
		config.ActivityPattern{Pattern: "[bad", Regex: true, ProjectID: "p", ProjectName: "P"})

	_, err := NewMatcher(rules)
	assert.Error(t, err)
}

func TestMatch_TicketWinsOverPattern(t *testing.T) {
	m, err := NewMatcher(testRules())
	require.NoError(t, err)

	// Title satisfies both the CH2- ticket rule and the "charly" literal
	// pattern mapped to a different evaluation path; ticket must win.
	res := m.Match(activity("CH2-13130 charly crash", "Code"))

	assert.Equal(t, ReasonTicket, res.Reason)
	assert.Equal(t, "proj-charly", res.ProjectID)
	assert.Equal(t, "CH2-13130", res.Ticket)
	assert.GreaterOrEqual(t, res.StageConfidence, 0.9)
}

func TestMatch_IgnoreBeatsEverything(t *testing.T) {
	m, err := NewMatcher(testRules())
	require.NoError(t, err)

	tests := []struct {
		name  string
		title string
		app   string
	}{
		{name: "numeric title", title: "1 203 096 259", app: "Teams"},
		{name: "ignored application", title: "CH2-13130 review", app: "Screen Sharing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := m.Match(activity(tt.title, tt.app))
			assert.True(t, res.Ignored)
			assert.Empty(t, res.ProjectID)
			assert.Zero(t, res.StageConfidence)
		})
	}
}

func TestMatch_TicketExtraction(t *testing.T) {
	m, err := NewMatcher(testRules())
	require.NoError(t, err)

	tests := []struct {
		name       string
		title      string
		ticket     string
		project    string
		confidence float64
	}{
		{
			name:       "exact single prefix",
			title:      "CH2-13130 fix crash",
			ticket:     "CH2-13130",
			project:    "proj-charly",
			confidence: 0.95,
		},
		{
			name:       "case insensitive, uppercased",
			title:      "reviewing ch2-42",
			ticket:     "CH2-42",
			project:    "proj-charly",
			confidence: 0.95,
		},
		{
			name:       "two prefixes present scores ambiguous",
			title:      "CH2-1 relates to FALL-2",
			ticket:     "CH2-1",
			project:    "proj-charly",
			confidence: 0.90,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := m.Match(activity(tt.title, "Code"))
			assert.Equal(t, ReasonTicket, res.Reason)
			assert.Equal(t, tt.ticket, res.Ticket)
			assert.Equal(t, tt.project, res.ProjectID)
			assert.InDelta(t, tt.confidence, res.StageConfidence, 1e-9)
		})
	}
}

func TestMatch_PatternOrderAndConfidence(t *testing.T) {
	rules := testRules()
	// Both patterns match "charly jira"; declaration order decides.
	m, err := NewMatcher(rules)
	require.NoError(t, err)

	res := m.Match(activity("charly jira board", "Safari"))
	assert.Equal(t, ReasonPattern, res.Reason)
	assert.Equal(t, "proj-charly", res.ProjectID)

	t.Run("literal confidence grows with length", func(t *testing.T) {
		short := m.Match(activity("charly", "Safari"))
		assert.InDelta(t, 0.66, short.StageConfidence, 1e-9)
	})

	t.Run("regex confidence is flat", func(t *testing.T) {
		res := m.Match(activity("confluence page", "Safari"))
		assert.Equal(t, "proj-internal", res.ProjectID)
		assert.InDelta(t, 0.65, res.StageConfidence, 1e-9)
	})

	t.Run("pattern matches application too", func(t *testing.T) {
		res := m.Match(activity("", "Charly Client"))
		assert.Equal(t, "proj-charly", res.ProjectID)
	})
}

func TestMatch_None(t *testing.T) {
	m, err := NewMatcher(testRules())
	require.NoError(t, err)

	res := m.Match(activity("lunch notes", "Notes"))
	assert.Equal(t, ReasonNone, res.Reason)
	assert.False(t, res.Matched())
	assert.False(t, res.Ignored)
	assert.Zero(t, res.StageConfidence)
}
