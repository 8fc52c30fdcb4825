package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sussdorff/timetally/internal/core/aggregate"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "empty is zero", input: "", want: time.Time{}},
		{name: "valid date", input: "2025-08-18", want: time.Date(2025, 8, 18, 0, 0, 0, 0, time.UTC)},
		{name: "wrong layout", input: "18.08.2025", wantErr: true},
		{name: "datetime rejected", input: "2025-08-18T09:00:00Z", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDate("from", tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "--from")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBucket(t *testing.T) {
	for _, valid := range []string{"high", "medium", "low"} {
		b, err := parseBucket(valid)
		require.NoError(t, err)
		assert.Equal(t, aggregate.Bucket(valid), b)
	}

	_, err := parseBucket("none")
	require.Error(t, err)
	_, err = parseBucket("HIGH")
	require.Error(t, err)
}

func TestPipelineRequiresValidConfig(t *testing.T) {
	f := &Flags{ValidationErr: assert.AnError}
	_, err := f.Pipeline()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}
