// Package swaptypes defines the shared identifiers and value types used
// across the swap engine: 32-byte hashes and ledger-native addresses
// aliased over go-ethereum's common types, and a uint256-backed Balance
// that gives the same headroom an EVM contract has for native-token and
// ERC-20 amounts while still exposing an unsigned 64-bit wire contract
// at the boundary.
package swaptypes

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Hash is a 32-byte Keccak-256 digest: order hashes, hash locks, escrow
// ids, secrets, and checkpoint/transaction hashes are all this type.
type Hash = common.Hash

// Address is a ledger-native account identifier. Chain-E addresses are
// the 20-byte EVM form; Chain-S addresses are mapped into the same type
// by the verifier package's deterministic address functions.
type Address = common.Address

// ZeroHash is the all-zero Hash, used as the "unset" sentinel for
// identifiers that must be non-zero to be valid (hash locks, escrow ids,
// order hashes, secrets).
var ZeroHash = Hash{}

// BytesToHash left-pads b to 32 bytes and returns it as a Hash.
func BytesToHash(b []byte) Hash { return common.BytesToHash(b) }

// BytesToAddress left-pads b to 20 bytes and returns it as an Address.
func BytesToAddress(b []byte) Address { return common.BytesToAddress(b) }

// Balance holds a token amount with uint256 precision. The zero value is
// a zero balance and is ready to use.
type Balance struct {
	value uint256.Int
}

// NewBalance returns a Balance initialized from a uint64, matching the
// wire-level amount fields.
func NewBalance(v uint64) Balance {
	var b Balance
	b.value.SetUint64(v)
	return b
}

// Uint64 returns the balance as a uint64. Callers at the wire boundary
// rely on amounts never exceeding 64 bits; this panics on overflow
// rather than silently truncating, since a silent truncation here would
// move real value.
func (b Balance) Uint64() uint64 {
	if !b.value.IsUint64() {
		panic(fmt.Sprintf("swaptypes: balance %s overflows uint64", b.value.String()))
	}
	return b.value.Uint64()
}

// IsZero reports whether the balance holds no value.
func (b Balance) IsZero() bool { return b.value.IsZero() }

// Add returns a new Balance holding the sum of b and other.
func (b Balance) Add(other Balance) Balance {
	var out Balance
	out.value.Add(&b.value, &other.value)
	return out
}

// Sub returns a new Balance holding b minus other. Callers must ensure
// other does not exceed b; amounts never go negative in this domain.
func (b Balance) Sub(other Balance) Balance {
	var out Balance
	out.value.Sub(&b.value, &other.value)
	return out
}

// Equal reports whether two balances hold the same value.
func (b Balance) Equal(other Balance) bool {
	return b.value.Eq(&other.value)
}

// String renders the balance in base 10.
func (b Balance) String() string { return b.value.String() }
