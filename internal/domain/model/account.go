package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// AccountSnapshot is the validated on-ledger state of one account. When the
// ledger reports an error for the account, Found is false and Message explains why.
type AccountSnapshot struct {
	Address      string `json:"address"`
	Found        bool   `json:"found"`
	BalanceDrops string `json:"balance_drops,omitempty"`
	Sequence     int64  `json:"sequence,omitempty"`
	OwnerCount   int64  `json:"owner_count,omitempty"`
	LedgerIndex  int64  `json:"ledger_index,omitempty"`
	Validated    bool   `json:"validated"`
	Message      string `json:"message,omitempty"`
}

// BalanceXRP returns the balance in XRP.
func (s *AccountSnapshot) BalanceXRP() (decimal.Decimal, bool) {
	if s == nil || !s.Found {
		return decimal.Zero, false
	}
	return DropsToXRP(s.BalanceDrops)
}

// AccountHistory is a bounded page of an account's most recent transactions.
type AccountHistory struct {
	Address      string              `json:"address"`
	Transactions []AccountTxEnvelope `json:"transactions"`
	Message      string              `json:"message,omitempty"`
}

// AccountTxEnvelope carries a raw transaction body and its result metadata
// as returned by the ledger. Unit normalization is left to the reader.
type AccountTxEnvelope struct {
	Tx          json.RawMessage `json:"tx"`
	Meta        json.RawMessage `json:"meta"`
	TxHash      string          `json:"hash,omitempty"` // envelope-level, set when the body omits it
	LedgerIndex int64           `json:"ledger_index,omitempty"`
	Validated   bool            `json:"validated"`
}

type envelopeTx struct {
	Hash            string          `json:"hash"`
	Fee             string          `json:"Fee"`
	TransactionType string          `json:"TransactionType"`
	Amount          json.RawMessage `json:"Amount"`
}

type envelopeMeta struct {
	TransactionResult string `json:"TransactionResult"`
}

func (e AccountTxEnvelope) tx() envelopeTx {
	var tx envelopeTx
	_ = json.Unmarshal(e.Tx, &tx)
	return tx
}

func (e AccountTxEnvelope) Hash() string {
	if h := e.tx().Hash; h != "" {
		return h
	}
	return e.TxHash
}

func (e AccountTxEnvelope) TransactionType() string {
	return e.tx().TransactionType
}

// Result returns the engine result code, or "" when meta is absent or not an object.
func (e AccountTxEnvelope) Result() string {
	var meta envelopeMeta
	if err := json.Unmarshal(e.Meta, &meta); err != nil {
		return ""
	}
	return meta.TransactionResult
}

// FeeXRP applies the same drops-to-XRP rule the aggregator uses.
func (e AccountTxEnvelope) FeeXRP() (decimal.Decimal, bool) {
	return DropsToXRP(e.tx().Fee)
}

// Amount normalizes the envelope's amount the same way sampled records are.
func (e AccountTxEnvelope) Amount() Amount {
	return NormalizeAmount(e.tx().Amount)
}
