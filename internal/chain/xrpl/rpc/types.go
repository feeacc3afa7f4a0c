package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Request struct {
	Method string           `json:"method"`
	Params []map[string]any `json:"params"`
}

type Response struct {
	Result json.RawMessage `json:"result"`
}

// ResultStatus is embedded in every result payload.
type ResultStatus struct {
	Status       string `json:"status"`
	Error        string `json:"error"`
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func (s ResultStatus) remoteError(method string) error {
	if s.Error == "" && s.Status != "error" {
		return nil
	}
	code := s.Error
	if code == "" {
		code = "unknownError"
	}
	return &RemoteError{Method: method, Code: code, Message: s.ErrorMessage}
}

// FlexInt decodes an integer sent either as a JSON number or a decimal string,
// as ledger_index is across API versions.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := strings.Trim(string(data), `"`)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*f = FlexInt(n)
	return nil
}

// FlexString decodes a scalar sent either as a JSON string or a number.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(data)
	return nil
}

// --- server_info ---

type ServerInfoResult struct {
	ResultStatus
	Info ServerInfo `json:"info"`
}

type ServerInfo struct {
	BuildVersion    string           `json:"build_version"`
	CompleteLedgers string           `json:"complete_ledgers"`
	LoadFactor      float64          `json:"load_factor"`
	Peers           int64            `json:"peers"`
	ServerState     string           `json:"server_state"`
	Uptime          int64            `json:"uptime"`
	ValidatedLedger *ValidatedLedger `json:"validated_ledger"`
}

type ValidatedLedger struct {
	Seq        int64   `json:"seq"`
	Hash       string  `json:"hash"`
	Age        int64   `json:"age"`
	BaseFeeXRP float64 `json:"base_fee_xrp"`
}

// --- ledger ---

type LedgerResult struct {
	ResultStatus
	Ledger      *Ledger `json:"ledger"`
	LedgerIndex FlexInt `json:"ledger_index"`
	Validated   bool    `json:"validated"`
}

type Ledger struct {
	LedgerIndex    FlexInt         `json:"ledger_index"`
	LedgerHash     string          `json:"ledger_hash"`
	CloseTime      *int64          `json:"close_time"`
	CloseTimeHuman string          `json:"close_time_human"`
	Closed         bool            `json:"closed"`
	Transactions   json.RawMessage `json:"transactions"`
}

// LedgerTransaction is an expanded transaction inside a ledger. API v1 puts
// the body fields at the top level and the result under metaData. API v2
// moves the body under tx_json, the result under meta, and renames a
// Payment's Amount to DeliverMax.
type LedgerTransaction struct {
	Hash            string           `json:"hash"`
	Account         string           `json:"Account"`
	TransactionType string           `json:"TransactionType"`
	Fee             FlexString       `json:"Fee"`
	Amount          json.RawMessage  `json:"Amount"`
	MetaData        *TransactionMeta `json:"metaData"`
	Meta            *TransactionMeta `json:"meta"`
}

type ledgerTxBody struct {
	Hash            string          `json:"hash"`
	Account         string          `json:"Account"`
	TransactionType string          `json:"TransactionType"`
	Fee             FlexString      `json:"Fee"`
	Amount          json.RawMessage `json:"Amount"`
	DeliverMax      json.RawMessage `json:"DeliverMax"`
}

func (t *LedgerTransaction) UnmarshalJSON(data []byte) error {
	type plain LedgerTransaction
	var wire struct {
		plain
		DeliverMax json.RawMessage `json:"DeliverMax"`
		TxJSON     json.RawMessage `json:"tx_json"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*t = LedgerTransaction(wire.plain)
	if len(t.Amount) == 0 {
		t.Amount = wire.DeliverMax
	}
	if len(wire.TxJSON) == 0 || isNull(wire.TxJSON) {
		return nil
	}

	var body ledgerTxBody
	if err := json.Unmarshal(wire.TxJSON, &body); err != nil {
		return fmt.Errorf("tx_json: %w", err)
	}
	if t.Hash == "" {
		t.Hash = body.Hash
	}
	if t.Account == "" {
		t.Account = body.Account
	}
	if t.TransactionType == "" {
		t.TransactionType = body.TransactionType
	}
	if t.Fee == "" {
		t.Fee = body.Fee
	}
	if len(t.Amount) == 0 {
		t.Amount = body.Amount
	}
	if len(t.Amount) == 0 {
		t.Amount = body.DeliverMax
	}
	return nil
}

type TransactionMeta struct {
	TransactionResult string `json:"TransactionResult"`
}

// ResultCode returns the engine result, or "" when no metadata is attached.
func (t *LedgerTransaction) ResultCode() string {
	switch {
	case t.MetaData != nil && t.MetaData.TransactionResult != "":
		return t.MetaData.TransactionResult
	case t.Meta != nil:
		return t.Meta.TransactionResult
	default:
		return ""
	}
}

// --- account_info ---

type AccountInfoResult struct {
	ResultStatus
	AccountData *AccountRoot `json:"account_data"`
	LedgerIndex FlexInt      `json:"ledger_index"`
	Validated   bool         `json:"validated"`
}

type AccountRoot struct {
	Account    string     `json:"Account"`
	Balance    FlexString `json:"Balance"`
	Sequence   int64      `json:"Sequence"`
	OwnerCount int64      `json:"OwnerCount"`
}

// --- account_tx ---

type AccountTxResult struct {
	ResultStatus
	Account      string           `json:"account"`
	Transactions []AccountTxEntry `json:"transactions"`
	Limit        int              `json:"limit"`
	Marker       json.RawMessage  `json:"marker,omitempty"`
}

// AccountTxEntry holds the tx body under tx (API v1) or tx_json (v2).
type AccountTxEntry struct {
	Tx          json.RawMessage `json:"tx"`
	TxJSON      json.RawMessage `json:"tx_json"`
	Meta        json.RawMessage `json:"meta"`
	Hash        string          `json:"hash"`
	LedgerIndex FlexInt         `json:"ledger_index"`
	Validated   bool            `json:"validated"`
}

// --- fee ---

type FeeResult struct {
	ResultStatus
	Drops              FeeDrops   `json:"drops"`
	CurrentQueueSize   FlexString `json:"current_queue_size"`
	ExpectedLedgerSize FlexString `json:"expected_ledger_size"`
	LedgerCurrentIndex FlexInt    `json:"ledger_current_index"`
}

type FeeDrops struct {
	BaseFee       FlexString `json:"base_fee"`
	MedianFee     FlexString `json:"median_fee"`
	MinimumFee    FlexString `json:"minimum_fee"`
	OpenLedgerFee FlexString `json:"open_ledger_fee"`
}
