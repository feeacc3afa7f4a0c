package sampler

// Reason classifies what happened to one transaction of a sampled ledger.
type Reason string

const (
	ReasonKept          Reason = "kept"
	ReasonNotSuccess    Reason = "not_success"
	ReasonMissingResult Reason = "missing_result"
	ReasonMalformed     Reason = "malformed"
)

// Outcome is the per-transaction verdict. ResultCode is set when known.
type Outcome struct {
	Hash        string `json:"hash,omitempty"`
	LedgerIndex int64  `json:"ledger_index"`
	Position    int    `json:"position"`
	Kept        bool   `json:"kept"`
	Reason      Reason `json:"reason"`
	ResultCode  string `json:"result_code,omitempty"`
}

// LedgerOutcome is the per-ledger verdict. A ledger that could not be fetched
// or decoded has Fetched=false and Err set; its transactions are absent.
type LedgerOutcome struct {
	Index           int64           `json:"index"`
	Fetched         bool            `json:"fetched"`
	TimestampSource TimestampSource `json:"timestamp_source,omitempty"`
	Transactions    int             `json:"transactions"`
	Kept            int             `json:"kept"`
	Err             error           `json:"-"`
}
