package model

import "strings"

type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
	NetworkDevnet  Network = "devnet"
)

func (n Network) String() string {
	return string(n)
}

const (
	// DropsPerXRP is the number of drops in one XRP.
	DropsPerXRP = 1_000_000

	// SuccessResultCode is the engine result of a fully applied transaction.
	SuccessResultCode = "tesSUCCESS"

	// ClassicAddressPrefix is the leading character of every classic address.
	ClassicAddressPrefix = "r"
)

// IsClassicAddress reports whether addr carries the classic-address sigil.
// It does not verify the base58 checksum.
func IsClassicAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	return len(addr) > 1 && strings.HasPrefix(addr, ClassicAddressPrefix)
}
