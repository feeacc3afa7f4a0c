package aggregator

import (
	"sort"
	"time"

	"github.com/emperorhan/xrpl-insights/internal/domain/model"
	"github.com/shopspring/decimal"
)

// PerMinuteCounts groups records into half-open minute buckets and counts
// them. Records without a timestamp are dropped. The result is ascending,
// sparse and never nil.
func PerMinuteCounts(records []model.TransactionRecord) []model.MinuteCount {
	counts := make(map[time.Time]int)
	for _, r := range records {
		minute, ok := minuteOf(r.Timestamp)
		if !ok {
			continue
		}
		counts[minute]++
	}

	out := make([]model.MinuteCount, 0, len(counts))
	for _, minute := range sortedKeys(counts) {
		out = append(out, model.MinuteCount{Minute: minute, TxnCount: counts[minute]})
	}
	return out
}

type feeSum struct {
	total decimal.Decimal
	n     int64
}

// PerMinuteAvgFee averages fees, converted from drops to XRP, per minute.
// Records with a missing timestamp or a non-integer fee are dropped.
func PerMinuteAvgFee(records []model.TransactionRecord) []model.MinuteAvgFee {
	sums := make(map[time.Time]feeSum)
	for _, r := range records {
		minute, ok := minuteOf(r.Timestamp)
		if !ok {
			continue
		}
		fee, ok := model.DropsToXRP(r.FeeDrops)
		if !ok {
			continue
		}
		s := sums[minute]
		s.total = s.total.Add(fee)
		s.n++
		sums[minute] = s
	}

	out := make([]model.MinuteAvgFee, 0, len(sums))
	for _, minute := range sortedKeys(sums) {
		s := sums[minute]
		out = append(out, model.MinuteAvgFee{
			Minute:    minute,
			AvgFeeXRP: s.total.Div(decimal.NewFromInt(s.n)),
		})
	}
	return out
}

// MeanFeeXRP is the mean fee over all records with a valid fee.
func MeanFeeXRP(records []model.TransactionRecord) (decimal.Decimal, bool) {
	total := decimal.Zero
	var n int64
	for _, r := range records {
		fee, ok := model.DropsToXRP(r.FeeDrops)
		if !ok {
			continue
		}
		total = total.Add(fee)
		n++
	}
	if n == 0 {
		return decimal.Zero, false
	}
	return total.Div(decimal.NewFromInt(n)), true
}

// UniqueAccounts counts distinct non-empty sender accounts.
func UniqueAccounts(records []model.TransactionRecord) int {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.Account == "" {
			continue
		}
		seen[r.Account] = struct{}{}
	}
	return len(seen)
}

func minuteOf(ts time.Time) (time.Time, bool) {
	if ts.IsZero() {
		return time.Time{}, false
	}
	return ts.UTC().Truncate(time.Minute), true
}

func sortedKeys[V any](m map[time.Time]V) []time.Time {
	keys := make([]time.Time, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}
