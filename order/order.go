// Package order implements the canonical order encoding/hash and the
// Merkle tree of per-fragment secrets that permits independent HTLC
// completion of a proportional slice of a single order. Its Merkle
// scheme is index-bit (even/odd index selects concatenation order),
// deliberately distinct from package verifier's sorted-pair scheme: the
// two verify proofs produced by different upstream systems and must
// not be unified, per spec.md §9.
package order

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hashbridge/swapcore/swaperr"
	"github.com/hashbridge/swapcore/swaptypes"
)

// BasisPointScale is the fixed-point scale for fill percentages: 10,000
// basis points equals 100%.
const BasisPointScale = 10_000

// Order is the canonical order encoding shared by both full and
// partial-fill orders.
type Order struct {
	Salt         swaptypes.Hash
	Maker        swaptypes.Address
	Receiver     swaptypes.Address
	MakerAsset   swaptypes.Address
	TakerAsset   swaptypes.Address
	MakingAmount swaptypes.Balance
	TakingAmount swaptypes.Balance
	MakerTraits  swaptypes.Hash
}

// ComputeOrderHash hashes salt ‖ enc(maker) ‖ enc(receiver) ‖
// enc(making_amount) ‖ enc(taking_amount) in fixed field order.
func ComputeOrderHash(o Order) swaptypes.Hash {
	return crypto.Keccak256Hash(
		o.Salt.Bytes(),
		o.Maker.Bytes(),
		o.Receiver.Bytes(),
		encodeAmount(o.MakingAmount),
		encodeAmount(o.TakingAmount),
	)
}

func encodeAmount(b swaptypes.Balance) []byte {
	return new(big.Int).SetUint64(b.Uint64()).Bytes()
}

// VerifyOrderHash recomputes order_hash from o's canonical encoding and
// rejects presentedHash if it does not match. The matching layer that
// produces Order values is untrusted by the core; this is the
// order-hash check spec.md §6 requires of every opaque order input
// before it is accepted.
func VerifyOrderHash(o Order, presentedHash swaptypes.Hash) (swaptypes.Hash, error) {
	computed := ComputeOrderHash(o)
	if computed != presentedHash {
		return swaptypes.Hash{}, fmt.Errorf("%w: computed %s, presented %s",
			swaperr.ErrInvalidOrderHash, computed.Hex(), presentedHash.Hex())
	}
	return computed, nil
}

// PartialFillOrder extends Order with the Merkle-of-secrets partial-fill
// bookkeeping.
type PartialFillOrder struct {
	Order

	MerkleRoot        swaptypes.Hash
	FillPercentage    uint64 // basis points, accumulates across fills
	SecretIndex       uint64
	AllowPartialFills bool
	TotalSecrets      uint64
}

// ComputeOrderHash for a PartialFillOrder additionally incorporates
// merkle_root and total_secrets.
func (p PartialFillOrder) ComputeOrderHash() swaptypes.Hash {
	base := ComputeOrderHash(p.Order)
	var totalBuf [8]byte
	binary.BigEndian.PutUint64(totalBuf[:], p.TotalSecrets)
	return crypto.Keccak256Hash(base.Bytes(), p.MerkleRoot.Bytes(), totalBuf[:])
}

// VerifyPartialFillOrderHash is VerifyOrderHash's PartialFillOrder
// counterpart, recomputing the merkle_root/total_secrets-extended hash.
func VerifyPartialFillOrderHash(p PartialFillOrder, presentedHash swaptypes.Hash) (swaptypes.Hash, error) {
	computed := p.ComputeOrderHash()
	if computed != presentedHash {
		return swaptypes.Hash{}, fmt.Errorf("%w: computed %s, presented %s",
			swaperr.ErrInvalidOrderHash, computed.Hex(), presentedHash.Hex())
	}
	return computed, nil
}

// MerkleTree is a Bitcoin-style Merkle tree over per-fragment secrets:
// leaves are Keccak-256(secret_i); the final odd node at each level is
// duplicated rather than left unpaired.
type MerkleTree struct {
	leaves [][32]byte
	levels [][][32]byte // levels[0] == leaves, levels[len-1] == {root}
}

// BuildMerkleTree constructs the tree over secrets. N must be >= 1.
func BuildMerkleTree(secrets [][]byte) (*MerkleTree, error) {
	if len(secrets) == 0 {
		return nil, fmt.Errorf("%w: at least one secret is required", swaperr.ErrSecretIndexOutOfBounds)
	}

	leaves := make([][32]byte, len(secrets))
	for i, s := range secrets {
		h := crypto.Keccak256Hash(s)
		leaves[i] = h
	}

	levels := [][][32]byte{leaves}
	cur := leaves
	for len(cur) > 1 {
		var next [][32]byte
		for i := 0; i < len(cur); i += 2 {
			left := cur[i]
			right := left
			if i+1 < len(cur) {
				right = cur[i+1]
			}
			parent := crypto.Keccak256Hash(left[:], right[:])
			next = append(next, parent)
		}
		levels = append(levels, next)
		cur = next
	}

	return &MerkleTree{leaves: leaves, levels: levels}, nil
}

// Root returns the tree's root hash.
func (m *MerkleTree) Root() swaptypes.Hash {
	top := m.levels[len(m.levels)-1]
	return top[0]
}

// Depth returns ceil(log2(N)), 0 for a single-leaf tree.
func (m *MerkleTree) Depth() int {
	return len(m.levels) - 1
}

// ProofFor returns the sibling path for leaf index idx, usable with
// VerifyMerkleProof.
func (m *MerkleTree) ProofFor(idx int) ([]swaptypes.Hash, error) {
	if idx < 0 || idx >= len(m.leaves) {
		return nil, fmt.Errorf("%w: index %d", swaperr.ErrSecretIndexOutOfBounds, idx)
	}

	var path []swaptypes.Hash
	cur := idx
	for level := 0; level < len(m.levels)-1; level++ {
		nodes := m.levels[level]
		var siblingIdx int
		if cur%2 == 0 {
			siblingIdx = cur + 1
		} else {
			siblingIdx = cur - 1
		}
		if siblingIdx >= len(nodes) {
			siblingIdx = cur // duplicated odd node
		}
		path = append(path, swaptypes.Hash(nodes[siblingIdx]))
		cur /= 2
	}
	return path, nil
}

// VerifyMerkleProof walks proof from leaf, hashing H(h‖sib) when index
// is even and H(sib‖h) when odd, halving index at each step. Accepts
// iff the final hash equals root. This is the index-bit scheme; it must
// never be substituted for verifier's sorted-pair scheme.
func VerifyMerkleProof(leaf swaptypes.Hash, proof []swaptypes.Hash, root swaptypes.Hash, index uint64) bool {
	h := leaf
	idx := index
	for _, sib := range proof {
		if idx%2 == 0 {
			h = crypto.Keccak256Hash(h.Bytes(), sib.Bytes())
		} else {
			h = crypto.Keccak256Hash(sib.Bytes(), h.Bytes())
		}
		idx /= 2
	}
	return h == root
}

// ValidatePartialFill checks that a partial fill is well-formed against
// order's Merkle root: partial fills must be allowed, the requested
// basis points must not exceed the full scale, the secret index must be
// in bounds, and the proof must verify.
func ValidatePartialFill(p PartialFillOrder, secret []byte, proof []swaptypes.Hash, idx uint64, fillBP uint64) error {
	if !p.AllowPartialFills {
		return swaperr.ErrPartialFillsNotAllowed
	}
	if fillBP > BasisPointScale {
		return fmt.Errorf("%w: %d exceeds scale %d", swaperr.ErrInvalidFillPercentage, fillBP, BasisPointScale)
	}
	if idx >= p.TotalSecrets {
		return fmt.Errorf("%w: index %d, total %d", swaperr.ErrSecretIndexOutOfBounds, idx, p.TotalSecrets)
	}
	leaf := crypto.Keccak256Hash(secret)
	if !VerifyMerkleProof(leaf, proof, p.MerkleRoot, idx) {
		return swaperr.ErrInvalidMerkleProof
	}
	return nil
}

// PartialFillExecutedEvent mirrors the wire-level PartialFillExecuted
// event.
type PartialFillExecutedEvent struct {
	OrderHash      swaptypes.Hash
	SecretIndex    uint64
	FillPercentage uint64
	FillAmount     swaptypes.Balance
	Executor       swaptypes.Address
}

// ExecutePartialFill validates the fill, computes fill_amount =
// making_amount * fill_bp / 10_000, accumulates p.FillPercentage, and
// returns the emitted event. No guard here rejects the accumulator
// exceeding BasisPointScale after accumulation; spec.md §9's open
// question pins this as the current, intentionally-unresolved
// behavior — see DESIGN.md.
func ExecutePartialFill(p *PartialFillOrder, executor swaptypes.Address, secret []byte, proof []swaptypes.Hash, idx uint64, fillBP uint64) (PartialFillExecutedEvent, error) {
	if err := ValidatePartialFill(*p, secret, proof, idx, fillBP); err != nil {
		return PartialFillExecutedEvent{}, err
	}

	fillAmount := swaptypes.NewBalance(p.MakingAmount.Uint64() * fillBP / BasisPointScale)
	p.FillPercentage += fillBP

	return PartialFillExecutedEvent{
		OrderHash:      p.ComputeOrderHash(),
		SecretIndex:    idx,
		FillPercentage: fillBP,
		FillAmount:     fillAmount,
		Executor:       executor,
	}, nil
}
