// Package verifier implements the two pure verifications Chain-E uses
// to accept events originating on Chain-S: a stake-weighted Ed25519
// checkpoint check, and Bitcoin-style sorted-pair Merkle inclusion of a
// transaction within a verified checkpoint. It also exposes the
// deterministic address mapping between the two chains' address
// schemes. Verified checkpoints and transactions are memoized, the way
// a checkpoint persistence store persists finality state across
// invocations, scoped down to the single-checkpoint-at-a-time model
// this domain needs (no epoch chain, no weak-subjectivity clock).
package verifier

import (
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hashbridge/swapcore/swaperr"
	"github.com/hashbridge/swapcore/swaptypes"
)

// Config controls the BFT acceptance threshold and address-mapping
// domain separator.
type Config struct {
	// ThresholdNumerator/ThresholdDenominator express the minimum
	// fraction of presented stake that must sign, in basis points.
	// Defaults to 6667/10000 (>= 2/3).
	ThresholdNumerator   uint64
	ThresholdDenominator uint64

	// AddrDomainTag is appended when mapping a local (Chain-E) address
	// to its foreign (Chain-S) counterpart.
	AddrDomainTag string
}

// DefaultConfig returns the BFT acceptance threshold (>= 2/3 of
// presented stake, expressed as 6667/10000 basis points) and address
// domain tag.
func DefaultConfig() Config {
	return Config{
		ThresholdNumerator:   6667,
		ThresholdDenominator: 10000,
		AddrDomainTag:        "sui_bridge_v1",
	}
}

// ValidatorSignature is one validator's attestation to a checkpoint.
type ValidatorSignature struct {
	PublicKey ed25519.PublicKey
	Signature []byte
	Stake     uint64
}

// Checkpoint is a BFT-signed commitment to a set of Chain-S
// transactions.
type Checkpoint struct {
	CheckpointHash swaptypes.Hash
	Sequence       uint64
	Signatures     []ValidatorSignature
}

// TxProof proves a transaction's inclusion in a checkpoint.
type TxProof struct {
	TxHash         swaptypes.Hash
	CheckpointHash swaptypes.Hash
	MerklePath     []swaptypes.Hash
	Sequence       uint64
}

// Verifier memoizes verified checkpoints and transactions so repeated
// proof checks against the same checkpoint are O(1) after the first,
// and rejects a checkpoint whose sequence regresses behind the highest
// one already accepted — a scoped-down checkpoint persistence store
// that guards a single monotonic counter rather than a full epoch
// chain.
type Verifier struct {
	mu                  sync.RWMutex
	cfg                 Config
	verifiedCheckpoints map[swaptypes.Hash]bool
	verifiedTxs         map[swaptypes.Hash]bool
	highestSequence     uint64
	haveSequence        bool
}

// New creates a Verifier with the given configuration.
func New(cfg Config) *Verifier {
	return &Verifier{
		cfg:                 cfg,
		verifiedCheckpoints: make(map[swaptypes.Hash]bool),
		verifiedTxs:         make(map[swaptypes.Hash]bool),
	}
}

// VerifyCheckpoint accepts a checkpoint iff its sequence is greater than
// the highest already-verified sequence (an equal sequence is rejected)
// and the stake
// behind valid signatures is at least
// ThresholdNumerator/ThresholdDenominator of the total stake presented.
// Acceptance is memoized by checkpoint hash.
func (v *Verifier) VerifyCheckpoint(cp Checkpoint) (bool, error) {
	v.mu.RLock()
	if ok, done := v.verifiedCheckpoints[cp.CheckpointHash]; done && ok {
		v.mu.RUnlock()
		return true, nil
	}
	regressed := v.haveSequence && cp.Sequence <= v.highestSequence
	v.mu.RUnlock()

	if regressed {
		return false, fmt.Errorf("%w: checkpoint sequence %d, highest verified %d", swaperr.ErrCheckpointSequenceRegressed, cp.Sequence, v.highestSequence)
	}

	var totalStake, signedStake uint64
	for _, sig := range cp.Signatures {
		totalStake += sig.Stake
		if ed25519.Verify(sig.PublicKey, cp.CheckpointHash.Bytes(), sig.Signature) {
			signedStake += sig.Stake
		}
	}

	accepted := totalStake > 0 && signedStake*v.cfg.ThresholdDenominator >= totalStake*v.cfg.ThresholdNumerator

	v.mu.Lock()
	v.verifiedCheckpoints[cp.CheckpointHash] = accepted
	if accepted && (!v.haveSequence || cp.Sequence > v.highestSequence) {
		v.highestSequence = cp.Sequence
		v.haveSequence = true
	}
	v.mu.Unlock()

	if !accepted {
		return false, fmt.Errorf("%w: signed stake insufficient for checkpoint %s", swaperr.ErrInsufficientStake, cp.CheckpointHash.Hex())
	}
	return true, nil
}

// VerifyTransaction requires the proof's checkpoint to already be
// verified, then runs the sorted-pair Merkle verification of tx_hash
// against checkpoint_hash. This scheme is deliberately distinct from
// order.VerifyMerkleProof's index-bit scheme: the two verify proofs
// produced by different upstream systems and must not be unified.
func (v *Verifier) VerifyTransaction(cp Checkpoint, proof TxProof) (bool, error) {
	if _, err := v.VerifyCheckpoint(cp); err != nil {
		return false, swaperr.ErrCheckpointNotVerified
	}

	v.mu.RLock()
	if ok, done := v.verifiedTxs[proof.TxHash]; done {
		v.mu.RUnlock()
		if ok {
			return true, nil
		}
		return false, swaperr.ErrInvalidMerkleProof
	}
	v.mu.RUnlock()

	ok := verifySortedPairMerkle(proof.TxHash, proof.MerklePath, proof.CheckpointHash)

	v.mu.Lock()
	v.verifiedTxs[proof.TxHash] = ok
	v.mu.Unlock()

	if !ok {
		return false, swaperr.ErrInvalidMerkleProof
	}
	return true, nil
}

// verifySortedPairMerkle walks path from leaf, concatenating the two
// elements at each step in sorted order (min‖max) before hashing with
// Keccak-256, and compares the final hash against root.
func verifySortedPairMerkle(leaf swaptypes.Hash, path []swaptypes.Hash, root swaptypes.Hash) bool {
	h := leaf
	for _, sibling := range path {
		if lessOrEqual(h, sibling) {
			h = crypto.Keccak256Hash(h.Bytes(), sibling.Bytes())
		} else {
			h = crypto.Keccak256Hash(sibling.Bytes(), h.Bytes())
		}
	}
	return h == root
}

func lessOrEqual(a, b swaptypes.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return true
}

// ForeignToLocalAddr deterministically maps a Chain-S (foreign)
// identifier to a Chain-E (local) address: the last 20 bytes of
// Keccak-256(foreign32).
func ForeignToLocalAddr(foreign swaptypes.Hash) swaptypes.Address {
	digest := crypto.Keccak256(foreign.Bytes())
	return swaptypes.BytesToAddress(digest[len(digest)-20:])
}

// LocalToForeignAddr deterministically maps a Chain-E (local) address to
// a Chain-S (foreign) identifier: Keccak-256(local20 ‖ domain_tag).
func LocalToForeignAddr(local swaptypes.Address, cfg Config) swaptypes.Hash {
	return crypto.Keccak256Hash(local.Bytes(), []byte(cfg.AddrDomainTag))
}
