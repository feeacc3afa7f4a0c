package sampler

import (
	"strings"
	"time"
)

// TimestampSource names the tier that produced a ledger's close time.
type TimestampSource string

const (
	TimestampHuman    TimestampSource = "human"
	TimestampEpoch    TimestampSource = "epoch"
	TimestampAcquired TimestampSource = "acquired"
)

// RippleEpochOffset is the Unix time of 2000-01-01T00:00:00Z, the origin of
// the ledger's numeric close_time.
const RippleEpochOffset int64 = 946684800

// humanLayouts are tried in order. Fractional seconds after the seconds field
// are accepted by time.Parse without being named in the layout.
var humanLayouts = []string{
	"2006-Jan-02 15:04:05 UTC",
	"2006-Jan-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05 UTC",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC1123,
}

// parseHuman parses close_time_human. Zone-less layouts are read as UTC.
func parseHuman(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range humanLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// closeTime resolves a ledger's close instant: the human string, then the
// numeric seconds since the ledger epoch, then now. The result is always UTC.
func closeTime(human string, epochSeconds *int64, now func() time.Time) (time.Time, TimestampSource) {
	if t, ok := parseHuman(human); ok {
		return t, TimestampHuman
	}
	if epochSeconds != nil && *epochSeconds >= 0 {
		return time.Unix(*epochSeconds+RippleEpochOffset, 0).UTC(), TimestampEpoch
	}
	return now().UTC(), TimestampAcquired
}
