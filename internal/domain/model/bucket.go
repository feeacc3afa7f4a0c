package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MinuteCount is the number of sampled transactions whose ledger closed in
// [Minute, Minute+1m).
type MinuteCount struct {
	Minute   time.Time `json:"minute"`
	TxnCount int       `json:"txn_count"`
}

// MinuteAvgFee is the mean fee, in XRP, of the transactions in [Minute, Minute+1m).
type MinuteAvgFee struct {
	Minute    time.Time       `json:"minute"`
	AvgFeeXRP decimal.Decimal `json:"avg_fee_xrp"`
}

// PricePoint is a single observation of an external market-price series.
type PricePoint struct {
	Time  time.Time       `json:"time"`
	Price decimal.Decimal `json:"price"`
}
