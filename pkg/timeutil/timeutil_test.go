package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{"calendar date", "2025-03-01", Date(2025, time.March, 1), false},
		{"padded", "  2030-12-31 ", Date(2030, time.December, 31), false},
		{"rfc3339 utc", "2025-03-01T10:30:00Z", time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC), false},
		{"rfc3339 offset", "2025-03-01T05:00:00+05:00", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), false},
		{"empty", "", time.Time{}, true},
		{"garbage", "next tuesday", time.Time{}, true},
		{"impossible date", "2025-02-30", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "2025-03-01", FormatDate(Date(2025, time.March, 1)))

	almaty := time.FixedZone("UTC+5", 5*60*60)
	assert.Equal(t, "2025-02-28", FormatDate(time.Date(2025, 3, 1, 2, 0, 0, 0, almaty)))
}

func TestStartOfDay(t *testing.T) {
	got := StartOfDay(time.Date(2025, 3, 1, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, Date(2025, time.March, 1), got)
	assert.True(t, IsSameDay(got, got.Add(12*time.Hour)))
}

func TestFixedClock(t *testing.T) {
	now := Date(2027, time.June, 15)
	assert.Equal(t, now, FixedClock(now)())
	assert.Equal(t, time.UTC, SystemClock()().Location())
}
