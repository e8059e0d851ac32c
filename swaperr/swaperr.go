// Package swaperr holds the sentinel errors shared by the escrow,
// factory, coordinator, verifier, and order packages. The taxonomy is
// centralized here, rather than declared per-file the way a single
// self-contained subsystem would, because several of these kinds are
// raised in more than one package and checked with errors.Is by callers:
// ErrInvalidSecret is returned by both escrow.Withdraw and
// coordinator.RevealLocalSecret; ErrInvalidMerkleProof is returned by
// both order and verifier's separate proof schemes.
package swaperr

import "errors"

var (
	// ErrInvalidTimeLocks is returned when the seven TimeLocks offsets
	// violate the required monotonic ordering.
	ErrInvalidTimeLocks = errors.New("swapcore: invalid time locks")

	// ErrUnauthorized is returned when the caller is not permitted for
	// the attempted operation in the escrow's current phase or role.
	ErrUnauthorized = errors.New("swapcore: unauthorized caller")

	// ErrEscrowCompleted is returned when an operation is attempted on
	// an escrow that has already reached a terminal state.
	ErrEscrowCompleted = errors.New("swapcore: escrow already completed")

	// ErrInvalidSecret is returned when Keccak-256(secret) does not
	// match the escrow's hash lock.
	ErrInvalidSecret = errors.New("swapcore: invalid secret")

	// ErrTimeLockNotExpired is returned when a withdraw or cancel is
	// attempted before its gating phase has opened.
	ErrTimeLockNotExpired = errors.New("swapcore: time lock not yet expired")

	// ErrNotFunded is returned when an operation requires a funded
	// escrow but the escrow has not received its deposit.
	ErrNotFunded = errors.New("swapcore: escrow not funded")

	// ErrAlreadyFunded is returned when deposit is called on an escrow
	// that already holds its principal and safety deposit.
	ErrAlreadyFunded = errors.New("swapcore: escrow already funded")

	// ErrSecretAlreadyCoordinated is returned when
	// CoordinateSecretFromForeign is called twice for the same secret.
	ErrSecretAlreadyCoordinated = errors.New("swapcore: secret already coordinated")

	// ErrSecretAlreadyUsed is returned when a coordinated secret has
	// already been consumed by a local withdrawal.
	ErrSecretAlreadyUsed = errors.New("swapcore: secret already used")

	// ErrUnknownForeignEscrow is returned when a foreign escrow id has
	// no coordinator entry or mapping.
	ErrUnknownForeignEscrow = errors.New("swapcore: unknown foreign escrow")

	// ErrInvalidMerkleProof is returned when a Merkle proof fails to
	// reconstruct the expected root, under either verification scheme.
	ErrInvalidMerkleProof = errors.New("swapcore: invalid merkle proof")

	// ErrPartialFillsNotAllowed is returned when a partial fill is
	// attempted against an order with AllowPartialFills false.
	ErrPartialFillsNotAllowed = errors.New("swapcore: partial fills not allowed")

	// ErrInvalidFillPercentage is returned when a requested fill
	// percentage exceeds the 10,000 basis-point scale.
	ErrInvalidFillPercentage = errors.New("swapcore: invalid fill percentage")

	// ErrSecretIndexOutOfBounds is returned when a partial-fill secret
	// index is not less than the order's total secret count.
	ErrSecretIndexOutOfBounds = errors.New("swapcore: secret index out of bounds")

	// ErrCheckpointNotVerified is returned when a transaction proof is
	// checked against a checkpoint that has not passed verification.
	ErrCheckpointNotVerified = errors.New("swapcore: checkpoint not verified")

	// ErrInsufficientStake is returned when a checkpoint's signed stake
	// falls short of the two-thirds threshold.
	ErrInsufficientStake = errors.New("swapcore: insufficient signed stake")

	// ErrInvalidOrderHash is returned when a recomputed order hash does
	// not match the hash presented at registration.
	ErrInvalidOrderHash = errors.New("swapcore: invalid order hash")

	// ErrMappingConflict is returned by RegisterMapping when the
	// foreign/local pair disagrees with an existing mapping for either
	// endpoint.
	ErrMappingConflict = errors.New("swapcore: mapping conflict")

	// ErrEmergencyResetTooEarly is returned when EmergencyReset is
	// called before the coordination timeout has elapsed.
	ErrEmergencyResetTooEarly = errors.New("swapcore: emergency reset attempted before timeout")

	// ErrZeroIdentifier is returned when a required 32-byte identifier
	// (secret, escrow id, order hash) is the zero value.
	ErrZeroIdentifier = errors.New("swapcore: identifier must be non-zero")

	// ErrCheckpointSequenceRegressed is returned when a checkpoint's
	// sequence number is not greater than the highest sequence already
	// verified.
	ErrCheckpointSequenceRegressed = errors.New("swapcore: checkpoint sequence regressed")
)
