// Package escrow implements the per-side HTLC escrow state machine:
// creation, deposit, withdraw, and cancel, gated by the hash lock and
// the phased timelock schedule in package hashlock. An Escrow is the
// sole owner of its two balances; the factory/resolver that creates it
// holds no claim afterward beyond the authorization checks encoded
// here, the same way a bid-escrow contract stays the sole owner of
// locked collateral once a bid is placed.
package escrow

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashbridge/swapcore/hashlock"
	"github.com/hashbridge/swapcore/log"
	"github.com/hashbridge/swapcore/swaperr"
	"github.com/hashbridge/swapcore/swaptypes"
)

var logger = log.Default().Component("escrow")

// Side distinguishes which half of the timelock schedule gates an
// escrow: the chain where the secret is first revealed (Src) or the
// chain where it is consumed (Dst).
type Side uint8

const (
	Src Side = iota
	Dst
)

// String returns a human-readable name for Side.
func (s Side) String() string {
	if s == Src {
		return "src"
	}
	return "dst"
}

// State is the escrow lifecycle state.
type State uint8

const (
	Created State = iota
	Funded
	Withdrawn
	Cancelled
)

// String returns a human-readable name for State.
func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Funded:
		return "funded"
	case Withdrawn:
		return "withdrawn"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Immutables are the fixed parameters of an escrow, set once at
// creation and never mutated afterward.
type Immutables struct {
	OrderHash        swaptypes.Hash
	HashLock         swaptypes.Hash
	Maker            swaptypes.Address
	Taker            swaptypes.Address
	TokenType        swaptypes.Address
	Amount           swaptypes.Balance
	SafetyDeposit    swaptypes.Balance
	TimeLocks        hashlock.TimeLocks
	ForeignOrderHash swaptypes.Hash
}

// validate rejects immutables that cannot ever back a valid escrow.
func (im Immutables) validate() error {
	if im.Amount.IsZero() {
		return fmt.Errorf("%w: amount must be non-zero", swaperr.ErrZeroIdentifier)
	}
	if im.HashLock == swaptypes.ZeroHash {
		return fmt.Errorf("%w: hash_lock must be non-zero", swaperr.ErrZeroIdentifier)
	}
	if im.OrderHash == swaptypes.ZeroHash {
		return fmt.Errorf("%w: order_hash must be non-zero", swaperr.ErrZeroIdentifier)
	}
	return nil
}

// CreatedEvent mirrors the wire-level EscrowCreated event.
type CreatedEvent struct {
	EscrowID         swaptypes.Hash
	Maker            swaptypes.Address
	Taker            swaptypes.Address
	Amount           swaptypes.Balance
	HashLock         swaptypes.Hash
	ForeignOrderHash swaptypes.Hash
}

// DepositedEvent mirrors the wire-level Deposited event.
type DepositedEvent struct {
	EscrowID      swaptypes.Hash
	Depositor     swaptypes.Address
	Amount        swaptypes.Balance
	SafetyDeposit swaptypes.Balance
}

// WithdrawnEvent mirrors the wire-level Withdrawn event. Secret carries
// the raw preimage bytes bit-identically; it must never be hashed or
// otherwise post-processed before emission, since relayers depend on
// reading it straight off this event.
type WithdrawnEvent struct {
	EscrowID swaptypes.Hash
	Secret   []byte
	To       swaptypes.Address
	Amount   swaptypes.Balance
}

// CancelledEvent mirrors the wire-level Cancelled event.
type CancelledEvent struct {
	EscrowID swaptypes.Hash
	To       swaptypes.Address
	Amount   swaptypes.Balance
}

// Escrow is one instance of the HTLC escrow state machine, generic over
// which side of the swap it lives on. It is safe for concurrent use;
// transitions are serialized by mu the way a host ledger serializes
// writes to a single shared object.
type Escrow struct {
	mu sync.Mutex

	id         swaptypes.Hash
	side       Side
	immutables Immutables
	deposited  swaptypes.Balance
	safety     swaptypes.Balance
	state      State
	t0         uint64
}

// Create allocates a new escrow in the Created state with empty
// balances. t0 is the host ledger's notion of "now" at creation time.
// id is the ledger-native escrow identifier (non-zero).
func Create(id swaptypes.Hash, side Side, immutables Immutables, t0 uint64) (*Escrow, CreatedEvent, error) {
	if id == swaptypes.ZeroHash {
		return nil, CreatedEvent{}, fmt.Errorf("%w: escrow id must be non-zero", swaperr.ErrZeroIdentifier)
	}
	if err := immutables.validate(); err != nil {
		return nil, CreatedEvent{}, err
	}

	e := &Escrow{
		id:         id,
		side:       side,
		immutables: immutables,
		state:      Created,
		t0:         t0,
	}
	ev := CreatedEvent{
		EscrowID:         id,
		Maker:            immutables.Maker,
		Taker:            immutables.Taker,
		Amount:           immutables.Amount,
		HashLock:         immutables.HashLock,
		ForeignOrderHash: immutables.ForeignOrderHash,
	}
	logger.Info("escrow created", "escrow_id", id.Hex(), "side", side)
	return e, ev, nil
}

// ID returns the escrow's ledger-native identifier.
func (e *Escrow) ID() swaptypes.Hash { return e.id }

// Immutables returns a copy of the escrow's fixed parameters.
func (e *Escrow) Immutables() Immutables {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.immutables
}

// State returns the escrow's current lifecycle state.
func (e *Escrow) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Deposit joins the principal and safety deposit into the escrow. Only
// the designated taker may fund an escrow, and only once.
func (e *Escrow) Deposit(caller swaptypes.Address, principal, safety swaptypes.Balance) (DepositedEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Withdrawn || e.state == Cancelled {
		logger.Warn("deposit rejected: escrow completed", "escrow_id", e.id.Hex())
		return DepositedEvent{}, swaperr.ErrEscrowCompleted
	}
	if caller != e.immutables.Taker {
		logger.Warn("deposit rejected: unauthorized caller", "escrow_id", e.id.Hex(), "caller", caller.Hex())
		return DepositedEvent{}, fmt.Errorf("%w: caller %s is not the taker", swaperr.ErrUnauthorized, caller.Hex())
	}
	if e.state == Funded {
		logger.Warn("deposit rejected: already funded", "escrow_id", e.id.Hex())
		return DepositedEvent{}, swaperr.ErrAlreadyFunded
	}
	if !principal.Equal(e.immutables.Amount) {
		logger.Warn("deposit rejected: principal mismatch", "escrow_id", e.id.Hex())
		return DepositedEvent{}, fmt.Errorf("%w: principal %s does not match immutables amount %s",
			swaperr.ErrUnauthorized, principal, e.immutables.Amount)
	}
	if !safety.Equal(e.immutables.SafetyDeposit) {
		logger.Warn("deposit rejected: safety deposit mismatch", "escrow_id", e.id.Hex())
		return DepositedEvent{}, fmt.Errorf("%w: safety deposit %s does not match immutables safety_deposit %s",
			swaperr.ErrUnauthorized, safety, e.immutables.SafetyDeposit)
	}

	e.deposited = principal
	e.safety = safety
	e.state = Funded

	logger.Info("escrow funded", "escrow_id", e.id.Hex(), "depositor", caller.Hex())
	return DepositedEvent{
		EscrowID:      e.id,
		Depositor:     caller,
		Amount:        principal,
		SafetyDeposit: safety,
	}, nil
}

// phase returns the current gating phase for this escrow's side.
func (e *Escrow) phase(now uint64) hashlock.Phase {
	if e.side == Src {
		return hashlock.SrcPhaseAt(now, e.t0, e.immutables.TimeLocks)
	}
	return hashlock.DstPhaseAt(now, e.t0, e.immutables.TimeLocks)
}

// Withdraw releases the deposited balances to their recipients once the
// secret is presented and the gating phase allows it. Recipients are
// fixed per side per the open design question: on the source side the
// principal returns to the maker and the safety deposit rewards the
// caller; on the destination side the principal goes to the taker and
// the safety deposit again rewards the caller. See DESIGN.md §open
// questions.
func (e *Escrow) Withdraw(caller swaptypes.Address, secret []byte, now time.Time) (WithdrawnEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Withdrawn || e.state == Cancelled {
		logger.Warn("withdraw rejected: escrow completed", "escrow_id", e.id.Hex())
		return WithdrawnEvent{}, swaperr.ErrEscrowCompleted
	}
	if e.state != Funded {
		logger.Warn("withdraw rejected: not funded", "escrow_id", e.id.Hex())
		return WithdrawnEvent{}, swaperr.ErrNotFunded
	}

	nowSec := uint64(now.Unix())
	phase := e.phase(nowSec)

	if e.side == Src {
		if caller == e.immutables.Taker {
			if phase < hashlock.SrcPrivateWithdraw {
				logger.Warn("withdraw rejected: time lock not expired", "escrow_id", e.id.Hex(), "phase", phase)
				return WithdrawnEvent{}, swaperr.ErrTimeLockNotExpired
			}
		} else if phase < hashlock.SrcPublicWithdraw {
			logger.Warn("withdraw rejected: time lock not expired", "escrow_id", e.id.Hex(), "phase", phase)
			return WithdrawnEvent{}, swaperr.ErrTimeLockNotExpired
		}
	} else {
		if caller == e.immutables.Taker {
			if phase < hashlock.DstPrivateWithdraw {
				logger.Warn("withdraw rejected: time lock not expired", "escrow_id", e.id.Hex(), "phase", phase)
				return WithdrawnEvent{}, swaperr.ErrTimeLockNotExpired
			}
		} else if phase < hashlock.DstPublicWithdraw {
			logger.Warn("withdraw rejected: time lock not expired", "escrow_id", e.id.Hex(), "phase", phase)
			return WithdrawnEvent{}, swaperr.ErrTimeLockNotExpired
		}
	}

	if !hashlock.VerifyHash(e.immutables.HashLock, secret) {
		logger.Warn("withdraw rejected: invalid secret", "escrow_id", e.id.Hex())
		return WithdrawnEvent{}, swaperr.ErrInvalidSecret
	}

	principal := e.deposited
	e.deposited = swaptypes.Balance{}
	// The safety deposit rewards whoever drives this terminal operation
	// (caller), a liveness incentive; it is not part of the wire event,
	// which carries only the principal recipient and amount.
	e.safety = swaptypes.Balance{}
	e.state = Withdrawn

	var principalTo swaptypes.Address
	if e.side == Src {
		principalTo = e.immutables.Maker
	} else {
		principalTo = e.immutables.Taker
	}

	logger.Info("escrow withdrawn", "escrow_id", e.id.Hex(), "to", principalTo.Hex())
	return WithdrawnEvent{
		EscrowID: e.id,
		Secret:   append([]byte(nil), secret...),
		To:       principalTo,
		Amount:   principal,
	}, nil
}

// Cancel returns the principal to its originating party and the safety
// deposit to the caller, once the cancellation phase has opened and no
// withdrawal has already executed.
func (e *Escrow) Cancel(caller swaptypes.Address, now time.Time) (CancelledEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Withdrawn || e.state == Cancelled {
		logger.Warn("cancel rejected: escrow completed", "escrow_id", e.id.Hex())
		return CancelledEvent{}, swaperr.ErrEscrowCompleted
	}
	if e.state != Funded {
		logger.Warn("cancel rejected: not funded", "escrow_id", e.id.Hex())
		return CancelledEvent{}, swaperr.ErrNotFunded
	}

	nowSec := uint64(now.Unix())
	phase := e.phase(nowSec)

	if e.side == Src {
		if caller == e.immutables.Taker {
			if phase < hashlock.SrcCancel {
				logger.Warn("cancel rejected: time lock not expired", "escrow_id", e.id.Hex(), "phase", phase)
				return CancelledEvent{}, swaperr.ErrTimeLockNotExpired
			}
		} else if phase < hashlock.SrcPublicCancel {
			logger.Warn("cancel rejected: time lock not expired", "escrow_id", e.id.Hex(), "phase", phase)
			return CancelledEvent{}, swaperr.ErrTimeLockNotExpired
		}
	} else {
		// Destination side has no public-cancel phase distinct from
		// DstCancel; any caller may cancel once DstCancel opens.
		if phase < hashlock.DstCancel {
			logger.Warn("cancel rejected: time lock not expired", "escrow_id", e.id.Hex(), "phase", phase)
			return CancelledEvent{}, swaperr.ErrTimeLockNotExpired
		}
	}

	principal := e.deposited
	e.deposited = swaptypes.Balance{}
	// Safety deposit rewards the caller, as in Withdraw; not reflected
	// in the wire event.
	e.safety = swaptypes.Balance{}
	e.state = Cancelled

	var principalTo swaptypes.Address
	if e.side == Src {
		principalTo = e.immutables.Maker
	} else {
		principalTo = e.immutables.Taker
	}

	logger.Info("escrow cancelled", "escrow_id", e.id.Hex(), "to", principalTo.Hex())
	return CancelledEvent{
		EscrowID: e.id,
		To:       principalTo,
		Amount:   principal,
	}, nil
}
