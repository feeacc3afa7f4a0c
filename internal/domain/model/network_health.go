package model

import "time"

// NetworkHealth is a diagnostic view of the ledger service. Each half is
// filled independently; a failed half carries Error instead of its payload.
type NetworkHealth struct {
	Status    StatusHalf `json:"status_info"`
	Fees      FeeHalf    `json:"fee_schedule"`
	Endpoint  string     `json:"endpoint,omitempty"`
	CheckedAt time.Time  `json:"checked_at"`
}

type StatusHalf struct {
	Info  *ServerStatus `json:"info,omitempty"`
	Error string        `json:"error,omitempty"`
}

type FeeHalf struct {
	Schedule *FeeSchedule `json:"schedule,omitempty"`
	Error    string       `json:"error,omitempty"`
}

type ServerStatus struct {
	BuildVersion       string  `json:"build_version,omitempty"`
	ServerState        string  `json:"server_state,omitempty"`
	Peers              int64   `json:"peers"`
	LoadFactor         float64 `json:"load_factor"`
	ValidatedLedgerSeq int64   `json:"validated_ledger_seq,omitempty"`
	CompleteLedgers    string  `json:"complete_ledgers,omitempty"`
	Uptime             int64   `json:"uptime,omitempty"`
}

// FeeSchedule values are drop strings as reported by the server.
type FeeSchedule struct {
	BaseFee            string `json:"base_fee,omitempty"`
	MedianFee          string `json:"median_fee,omitempty"`
	MinimumFee         string `json:"minimum_fee,omitempty"`
	OpenLedgerFee      string `json:"open_ledger_fee,omitempty"`
	CurrentQueueSize   string `json:"current_queue_size,omitempty"`
	ExpectedLedgerSize string `json:"expected_ledger_size,omitempty"`
	LedgerCurrentIndex int64  `json:"ledger_current_index,omitempty"`
}
