package inspector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/emperorhan/xrpl-insights/internal/chain/xrpl/rpc"
	"github.com/emperorhan/xrpl-insights/internal/domain/model"
)

const (
	MinHistoryLimit     = 1
	MaxHistoryLimit     = 200
	DefaultHistoryLimit = 20
)

// AccountSource is the subset of the RPC client the inspector needs.
type AccountSource interface {
	AccountInfo(ctx context.Context, address string) (*rpc.AccountInfoResult, error)
	AccountTx(ctx context.Context, address string, limit int) (*rpc.AccountTxResult, error)
}

// Inspector looks up single accounts. It shares nothing with the sampler
// beyond the RPC client.
type Inspector struct {
	source AccountSource
	logger *slog.Logger
}

func New(source AccountSource, logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{source: source, logger: logger.With("component", "inspector")}
}

// AccountState returns the validated account root. Ledger-reported errors
// such as actNotFound yield Found=false with a message and a nil error; only
// transport failure is returned as an error.
func (i *Inspector) AccountState(ctx context.Context, address string) (*model.AccountSnapshot, error) {
	snap := &model.AccountSnapshot{Address: address}

	info, err := i.source.AccountInfo(ctx, address)
	if err != nil {
		var remote *rpc.RemoteError
		if errors.As(err, &remote) {
			snap.Message = describeRemote(remote)
			i.logger.Debug("account lookup reported error", "address", address, "code", remote.Code)
			return snap, nil
		}
		return nil, fmt.Errorf("account state %s: %w", address, err)
	}

	if info.AccountData == nil {
		snap.Message = "account data missing from response"
		return snap, nil
	}

	snap.Found = true
	snap.BalanceDrops = string(info.AccountData.Balance)
	snap.Sequence = info.AccountData.Sequence
	snap.OwnerCount = info.AccountData.OwnerCount
	snap.LedgerIndex = int64(info.LedgerIndex)
	snap.Validated = info.Validated
	return snap, nil
}

// AccountHistory returns up to limit recent transactions, limit clamped to
// [MinHistoryLimit, MaxHistoryLimit]. Envelopes are passed through unchanged.
func (i *Inspector) AccountHistory(ctx context.Context, address string, limit int) (*model.AccountHistory, error) {
	limit = ClampLimit(limit)
	hist := &model.AccountHistory{Address: address, Transactions: []model.AccountTxEnvelope{}}

	txs, err := i.source.AccountTx(ctx, address, limit)
	if err != nil {
		var remote *rpc.RemoteError
		if errors.As(err, &remote) {
			hist.Message = describeRemote(remote)
			return hist, nil
		}
		return nil, fmt.Errorf("account history %s: %w", address, err)
	}

	for _, entry := range txs.Transactions {
		body := entry.Tx
		if len(body) == 0 {
			body = entry.TxJSON
		}
		hist.Transactions = append(hist.Transactions, model.AccountTxEnvelope{
			Tx:          body,
			Meta:        entry.Meta,
			TxHash:      entry.Hash,
			LedgerIndex: int64(entry.LedgerIndex),
			Validated:   entry.Validated,
		})
		if len(hist.Transactions) == limit {
			break
		}
	}
	return hist, nil
}

// ClampLimit bounds a requested history size.
func ClampLimit(limit int) int {
	switch {
	case limit < MinHistoryLimit:
		return MinHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}

func describeRemote(e *rpc.RemoteError) string {
	switch e.Code {
	case "actNotFound":
		return "Account not found on the validated ledger."
	case "actMalformed":
		return "Account address is malformed."
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}
