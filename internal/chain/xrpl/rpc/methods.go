package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	MethodServerInfo  = "server_info"
	MethodLedger      = "ledger"
	MethodAccountInfo = "account_info"
	MethodAccountTx   = "account_tx"
	MethodFee         = "fee"
)

func (c *Client) ServerInfo(ctx context.Context) (*ServerInfoResult, error) {
	result, err := c.Call(ctx, MethodServerInfo, nil)
	if err != nil {
		return nil, fmt.Errorf("server_info: %w", err)
	}

	var info ServerInfoResult
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, fmt.Errorf("unmarshal server_info: %w", err)
	}
	if err := info.remoteError(MethodServerInfo); err != nil {
		return nil, err
	}
	return &info, nil
}

// Ledger fetches one validated ledger with its transactions expanded to JSON.
func (c *Client) Ledger(ctx context.Context, seq int64) (*Ledger, error) {
	result, err := c.Call(ctx, MethodLedger, map[string]any{
		"ledger_index": strconv.FormatInt(seq, 10),
		"transactions": true,
		"expand":       true,
		"binary":       false,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger(%d): %w", seq, err)
	}

	var lr LedgerResult
	if err := json.Unmarshal(result, &lr); err != nil {
		return nil, fmt.Errorf("unmarshal ledger(%d): %w", seq, err)
	}
	if err := lr.remoteError(MethodLedger); err != nil {
		return nil, err
	}
	if lr.Ledger == nil {
		return nil, fmt.Errorf("ledger(%d): %w", seq, ErrMissingResult)
	}
	if lr.Ledger.LedgerIndex == 0 {
		lr.Ledger.LedgerIndex = FlexInt(seq)
	}
	return lr.Ledger, nil
}

// AccountInfo returns the validated account root. A ledger-reported error
// such as actNotFound is returned as *RemoteError.
func (c *Client) AccountInfo(ctx context.Context, address string) (*AccountInfoResult, error) {
	result, err := c.Call(ctx, MethodAccountInfo, map[string]any{
		"account":      address,
		"ledger_index": "validated",
		"strict":       true,
	})
	if err != nil {
		return nil, fmt.Errorf("account_info(%s): %w", address, err)
	}

	var info AccountInfoResult
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, fmt.Errorf("unmarshal account_info: %w", err)
	}
	if err := info.remoteError(MethodAccountInfo); err != nil {
		return nil, err
	}
	return &info, nil
}

// AccountTx returns up to limit of the account's most recent transactions
// across the full ledger range the server holds.
func (c *Client) AccountTx(ctx context.Context, address string, limit int) (*AccountTxResult, error) {
	result, err := c.Call(ctx, MethodAccountTx, map[string]any{
		"account":          address,
		"limit":            limit,
		"ledger_index_min": -1,
		"ledger_index_max": -1,
	})
	if err != nil {
		return nil, fmt.Errorf("account_tx(%s): %w", address, err)
	}

	var txs AccountTxResult
	if err := json.Unmarshal(result, &txs); err != nil {
		return nil, fmt.Errorf("unmarshal account_tx: %w", err)
	}
	if err := txs.remoteError(MethodAccountTx); err != nil {
		return nil, err
	}
	return &txs, nil
}

func (c *Client) Fee(ctx context.Context) (*FeeResult, error) {
	result, err := c.Call(ctx, MethodFee, nil)
	if err != nil {
		return nil, fmt.Errorf("fee: %w", err)
	}

	var fee FeeResult
	if err := json.Unmarshal(result, &fee); err != nil {
		return nil, fmt.Errorf("unmarshal fee: %w", err)
	}
	if err := fee.remoteError(MethodFee); err != nil {
		return nil, err
	}
	return &fee, nil
}
