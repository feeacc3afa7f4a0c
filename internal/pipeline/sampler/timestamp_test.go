package sampler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseHuman(t *testing.T) {
	want := time.Date(2024, time.September, 18, 18, 40, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input string
		want  time.Time
		ok    bool
	}{
		{"rippled format", "2024-Sep-18 18:40:00.000000000 UTC", want, true},
		{"rippled without fraction", "2024-Sep-18 18:40:00 UTC", want, true},
		{"rippled without zone", "2024-Sep-18 18:40:00", want, true},
		{"rfc3339", "2024-09-18T18:40:00Z", want, true},
		{"rfc3339 offset", "2024-09-18T20:40:00+02:00", want, true},
		{"iso with space", "2024-09-18 18:40:00", want, true},
		{"surrounding space", "  2024-Sep-18 18:40:00 UTC ", want, true},
		{"empty", "", time.Time{}, false},
		{"garbage", "yesterday-ish", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseHuman(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %s", got)
				assert.Equal(t, time.UTC, got.Location())
			}
		})
	}
}

func TestCloseTime_Tiers(t *testing.T) {
	fixedNow := time.Date(2030, 1, 1, 0, 0, 0, 0, time.FixedZone("X", 3600))
	now := func() time.Time { return fixedNow }
	epoch := int64(780000000)

	t.Run("human wins over epoch", func(t *testing.T) {
		got, src := closeTime("2024-Sep-18 18:41:00.000000000 UTC", &epoch, now)
		assert.Equal(t, TimestampHuman, src)
		assert.Equal(t, time.Date(2024, 9, 18, 18, 41, 0, 0, time.UTC), got)
	})

	t.Run("epoch when human unparseable", func(t *testing.T) {
		got, src := closeTime("not a date", &epoch, now)
		assert.Equal(t, TimestampEpoch, src)
		assert.Equal(t, time.Date(2024, 9, 18, 18, 40, 0, 0, time.UTC), got)
		assert.Equal(t, time.UTC, got.Location())
	})

	t.Run("epoch origin", func(t *testing.T) {
		zero := int64(0)
		got, src := closeTime("", &zero, now)
		assert.Equal(t, TimestampEpoch, src)
		assert.Equal(t, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("acquisition time when neither", func(t *testing.T) {
		got, src := closeTime("", nil, now)
		assert.Equal(t, TimestampAcquired, src)
		assert.True(t, fixedNow.Equal(got))
		assert.Equal(t, time.UTC, got.Location())
	})

	t.Run("real clock is now-ish", func(t *testing.T) {
		before := time.Now().UTC()
		got, src := closeTime("", nil, time.Now)
		assert.Equal(t, TimestampAcquired, src)
		assert.WithinDuration(t, before, got, 5*time.Second)
		assert.Equal(t, time.UTC, got.Location())
	})
}
