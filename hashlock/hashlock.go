// Package hashlock implements the hash-of-preimage check and the
// seven-phase timelock schedule shared by both sides of an escrow. Time
// evaluation is kept separate from escrow state so the state machine's
// decisions stay free of wall-clock pollution and are deterministically
// testable against a logical clock, the same separation a commit-reveal
// window draws between its own deadline check and the commitment state
// it gates.
package hashlock

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hashbridge/swapcore/swaperr"
	"github.com/hashbridge/swapcore/swaptypes"
)

// ComputeHashLock returns the Keccak-256 digest of the raw preimage
// bytes.
func ComputeHashLock(secret []byte) swaptypes.Hash {
	return crypto.Keccak256Hash(secret)
}

// VerifyHash reports whether secret hashes to lock.
func VerifyHash(lock swaptypes.Hash, secret []byte) bool {
	return ComputeHashLock(secret) == lock
}

// TimeLocks holds the seven monotone offsets, in seconds relative to an
// escrow's creation time t0, that gate every withdraw/cancel phase
// transition.
type TimeLocks struct {
	SrcWithdrawal         uint64
	SrcPublicWithdrawal   uint64
	SrcCancellation       uint64
	SrcPublicCancellation uint64
	DstWithdrawal         uint64
	DstPublicWithdrawal   uint64
	DstCancellation       uint64
}

// ConstructTimeLocks validates the strict monotonic ordering required of
// the seven offsets and returns the populated TimeLocks, or
// ErrInvalidTimeLocks if the ordering is violated.
func ConstructTimeLocks(
	srcWithdrawal, srcPublicWithdrawal, srcCancellation, srcPublicCancellation,
	dstWithdrawal, dstPublicWithdrawal, dstCancellation uint64,
) (TimeLocks, error) {
	tl := TimeLocks{
		SrcWithdrawal:         srcWithdrawal,
		SrcPublicWithdrawal:   srcPublicWithdrawal,
		SrcCancellation:       srcCancellation,
		SrcPublicCancellation: srcPublicCancellation,
		DstWithdrawal:         dstWithdrawal,
		DstPublicWithdrawal:   dstPublicWithdrawal,
		DstCancellation:       dstCancellation,
	}
	if !(srcWithdrawal < srcPublicWithdrawal &&
		srcPublicWithdrawal < srcCancellation &&
		srcCancellation < srcPublicCancellation) {
		return TimeLocks{}, fmt.Errorf("%w: src phases must satisfy withdrawal < public_withdrawal < cancellation < public_cancellation",
			swaperr.ErrInvalidTimeLocks)
	}
	if !(dstWithdrawal < dstPublicWithdrawal && dstPublicWithdrawal < dstCancellation) {
		return TimeLocks{}, fmt.Errorf("%w: dst phases must satisfy withdrawal < public_withdrawal < cancellation",
			swaperr.ErrInvalidTimeLocks)
	}
	return tl, nil
}

// Phase identifies which gated window (now - t0) falls into.
type Phase int

const (
	SrcFinalityLock Phase = iota
	SrcPrivateWithdraw
	SrcPublicWithdraw
	SrcCancel
	SrcPublicCancel
	DstFinalityLock
	DstPrivateWithdraw
	DstPublicWithdraw
	DstCancel
	Expired
)

// String renders the phase name for logging.
func (p Phase) String() string {
	switch p {
	case SrcFinalityLock:
		return "SrcFinalityLock"
	case SrcPrivateWithdraw:
		return "SrcPrivateWithdraw"
	case SrcPublicWithdraw:
		return "SrcPublicWithdraw"
	case SrcCancel:
		return "SrcCancel"
	case SrcPublicCancel:
		return "SrcPublicCancel"
	case DstFinalityLock:
		return "DstFinalityLock"
	case DstPrivateWithdraw:
		return "DstPrivateWithdraw"
	case DstPublicWithdraw:
		return "DstPublicWithdraw"
	case DstCancel:
		return "DstCancel"
	case Expired:
		return "Expired"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// SrcPhaseAt computes the source-side phase from the elapsed time since
// t0. Expiry windows are half-open: once a threshold is reached the
// phase holds until the next one opens. The private withdrawal window
// does not open until src_withdrawal has elapsed; before that the
// escrow sits in SrcFinalityLock and no caller may withdraw.
func SrcPhaseAt(now, t0 uint64, locks TimeLocks) Phase {
	elapsed := elapsedSince(now, t0)
	switch {
	case elapsed < locks.SrcWithdrawal:
		return SrcFinalityLock
	case elapsed < locks.SrcPublicWithdrawal:
		return SrcPrivateWithdraw
	case elapsed < locks.SrcCancellation:
		return SrcPublicWithdraw
	case elapsed < locks.SrcPublicCancellation:
		return SrcCancel
	default:
		return SrcPublicCancel
	}
}

// DstPhaseAt computes the destination-side phase from the elapsed time
// since t0. Mirrors SrcPhaseAt: the private withdrawal window does not
// open until dst_withdrawal has elapsed.
func DstPhaseAt(now, t0 uint64, locks TimeLocks) Phase {
	elapsed := elapsedSince(now, t0)
	switch {
	case elapsed < locks.DstWithdrawal:
		return DstFinalityLock
	case elapsed < locks.DstPublicWithdrawal:
		return DstPrivateWithdraw
	case elapsed < locks.DstCancellation:
		return DstPublicWithdraw
	default:
		return DstCancel
	}
}

func elapsedSince(now, t0 uint64) uint64 {
	if now <= t0 {
		return 0
	}
	return now - t0
}
