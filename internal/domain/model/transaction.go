package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type AmountKind string

const (
	AmountKindNative AmountKind = "native"
	AmountKindIssued AmountKind = "issued"
	AmountKindNone   AmountKind = "none"
)

// Amount is a flattened transaction amount. Native values are drop strings;
// issued values are the opaque decimal "value" of an issued-currency object
// and carry no currency or issuer.
type Amount struct {
	Kind  AmountKind `json:"kind"`
	Value string     `json:"value,omitempty"`
}

func NativeAmount(drops string) Amount {
	return Amount{Kind: AmountKindNative, Value: drops}
}

func IssuedAmount(value string) Amount {
	return Amount{Kind: AmountKindIssued, Value: value}
}

// Drops returns the native amount in drops. ok is false for issued and
// absent amounts so they never mix with XRP-denominated arithmetic.
func (a Amount) Drops() (int64, bool) {
	if a.Kind != AmountKindNative {
		return 0, false
	}
	return parseDrops(a.Value)
}

func (a Amount) String() string {
	return a.Value
}

// NormalizeAmount flattens a raw Amount field. A JSON string is a native drop
// count and passes through unchanged; an object is an issued-currency amount
// and yields its "value" sub-field as-is.
func NormalizeAmount(raw json.RawMessage) Amount {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Amount{Kind: AmountKindNone}
	}

	switch trimmed[0] {
	case '"':
		var drops string
		if err := json.Unmarshal(trimmed, &drops); err != nil {
			return Amount{Kind: AmountKindNone}
		}
		return NativeAmount(drops)
	case '{':
		var issued struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(trimmed, &issued); err != nil {
			return Amount{Kind: AmountKindNone}
		}
		return IssuedAmount(rawScalar(issued.Value))
	default:
		return NativeAmount(string(trimmed))
	}
}

// rawScalar renders a JSON string or number without re-formatting it.
func rawScalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	return string(raw)
}

// TransactionRecord is one successful transaction observed in a sampled ledger.
// Every record of a ledger shares that ledger's close time.
type TransactionRecord struct {
	Hash            string    `json:"hash"`
	Timestamp       time.Time `json:"date_utc"`
	Amount          Amount    `json:"amount"`
	FeeDrops        string    `json:"fee_drops"`
	Account         string    `json:"account"`
	TransactionType string    `json:"transaction_type"`
	LedgerIndex     int64     `json:"ledger_index"`
}

// Fee returns the fee in drops, or ok=false when the raw value is not an integer.
func (r TransactionRecord) Fee() (int64, bool) {
	return parseDrops(r.FeeDrops)
}

// DropsToXRP converts a drop string to XRP. ok is false for unparseable input.
func DropsToXRP(drops string) (decimal.Decimal, bool) {
	n, ok := parseDrops(drops)
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(n).Shift(-6), true
}

func parseDrops(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
