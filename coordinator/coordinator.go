// Package coordinator implements the cross-chain secret relay and the
// bidirectional mapping between a Chain-E order hash and a Chain-S
// escrow id. It lives on both chains with a symmetric contract: the
// forward direction (coordinate_secret_from_foreign /
// withdraw_with_coordinated_secret) and the reverse mirror
// (initiate_local_to_foreign_swap / reveal_local_secret /
// complete_foreign_withdrawal_from_local_secret) share the same
// id-keyed, mutex-serialized store shape used for a bridge contract's
// deposit/withdrawal maps.
package coordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashbridge/swapcore/log"
	"github.com/hashbridge/swapcore/swaperr"
	"github.com/hashbridge/swapcore/swaptypes"
)

var logger = log.Default().Component("coordinator")

// StatusTag is the closed set of coordinator-row lifecycle states.
type StatusTag string

const (
	StatusSecretCoordinated         StatusTag = "SECRET_COORDINATED"
	StatusSecretAvailableCrossChain StatusTag = "SECRET_AVAILABLE_CROSS_CHAIN"
	StatusMappingRegistered         StatusTag = "MAPPING_REGISTERED"
	StatusLocalWithdrawalComplete   StatusTag = "LOCAL_WITHDRAWAL_COMPLETE"
	StatusCancelled                 StatusTag = "CANCELLED"
	StatusEmergencyReset            StatusTag = "EMERGENCY_RESET"
	StatusBidirectionalCompleted    StatusTag = "BIDIRECTIONAL_COMPLETED"
	StatusForeignEscrowInitiated    StatusTag = "FOREIGN_ESCROW_INITIATED"
)

// Config controls coordinator policy.
type Config struct {
	// CoordinationTimeout bounds how long a coordinated-but-unconsumed
	// secret may sit before EmergencyReset is permitted.
	CoordinationTimeout time.Duration
}

// DefaultConfig returns the default 3600s coordination timeout.
func DefaultConfig() Config {
	return Config{CoordinationTimeout: 3600 * time.Second}
}

// secretEntry is one row of the four secret-indexed stores, keyed by
// secret.
type secretEntry struct {
	coordinated   bool
	timestamp     time.Time
	coordinatorID swaptypes.Address
	consumed      bool
}

// coordinationRow tracks per-foreign-escrow coordination status,
// independent of which secret (if any) has been coordinated for it.
type coordinationRow struct {
	secret swaptypes.Hash
	status StatusTag
}

// SecretCoordinatedEvent mirrors the wire-level SecretCoordinated event.
type SecretCoordinatedEvent struct {
	ForeignEscrowID swaptypes.Hash
	LocalOrderHash  swaptypes.Hash
	Secret          swaptypes.Hash
	Coordinator     swaptypes.Address
	Timestamp       time.Time
}

// CrossChainSwapCompletedEvent mirrors the wire-level
// CrossChainSwapCompleted event.
type CrossChainSwapCompletedEvent struct {
	OrderHash swaptypes.Hash
	SrcChain  string
	DstChain  string
	SrcAmount swaptypes.Balance
	DstAmount swaptypes.Balance
}

// localEscrowData mirrors the reverse-direction EthereumEscrowData row.
type localEscrowData struct {
	secretHash    swaptypes.Hash
	maker         swaptypes.Address
	taker         swaptypes.Address
	token         swaptypes.Address
	amount        swaptypes.Balance
	safetyDeposit swaptypes.Balance
	foreignEscrow swaptypes.Hash
	active        bool
}

// Coordinator holds the process-wide secret relay and bijection state
// for one chain's half of the symmetric contract.
type Coordinator struct {
	mu    sync.Mutex
	owner swaptypes.Address
	cfg   Config

	secrets map[swaptypes.Hash]*secretEntry     // secret -> entry
	rows    map[swaptypes.Hash]*coordinationRow // foreign_escrow_id -> row

	// BidirectionalMap: order_hash_E <-> escrow_id_S.
	fwd map[swaptypes.Hash]swaptypes.Hash // foreign -> local
	rev map[swaptypes.Hash]swaptypes.Hash // local -> foreign

	// revealed_secrets: secret -> consumed locally.
	revealed map[swaptypes.Hash]bool

	// secret_used_on_foreign, set by the reverse mirror on completion.
	usedOnForeign map[swaptypes.Hash]bool

	// Reverse-direction (E->S) local escrow-data rows, keyed by
	// local_order_hash.
	localData map[swaptypes.Hash]*localEscrowData
}

// New creates a Coordinator owned by owner (the sole caller permitted
// to invoke EmergencyReset).
func New(owner swaptypes.Address, cfg Config) *Coordinator {
	return &Coordinator{
		owner:         owner,
		cfg:           cfg,
		secrets:       make(map[swaptypes.Hash]*secretEntry),
		rows:          make(map[swaptypes.Hash]*coordinationRow),
		fwd:           make(map[swaptypes.Hash]swaptypes.Hash),
		rev:           make(map[swaptypes.Hash]swaptypes.Hash),
		revealed:      make(map[swaptypes.Hash]bool),
		usedOnForeign: make(map[swaptypes.Hash]bool),
		localData:     make(map[swaptypes.Hash]*localEscrowData),
	}
}

func requireNonZero(id swaptypes.Hash) error {
	if id == swaptypes.ZeroHash {
		return swaperr.ErrZeroIdentifier
	}
	return nil
}

// CoordinateSecretFromForeign relays a secret revealed on the foreign
// chain. Permissionless: anyone may relay. Correctness relies on the
// hashlock — a wrong secret is simply ignored by the local escrow's
// Withdraw, not rejected here.
func (c *Coordinator) CoordinateSecretFromForeign(
	caller swaptypes.Address,
	foreignEscrowID swaptypes.Hash,
	revealedSecret swaptypes.Hash,
	localOrderHash swaptypes.Hash,
	now time.Time,
) (SecretCoordinatedEvent, error) {
	if err := requireNonZero(revealedSecret); err != nil {
		return SecretCoordinatedEvent{}, err
	}
	if err := requireNonZero(foreignEscrowID); err != nil {
		return SecretCoordinatedEvent{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.secrets[revealedSecret]; ok && entry.coordinated {
		logger.Warn("coordinate secret rejected: already coordinated", "foreign_escrow_id", foreignEscrowID.Hex())
		return SecretCoordinatedEvent{}, fmt.Errorf("%w: secret already coordinated for escrow %s",
			swaperr.ErrSecretAlreadyCoordinated, foreignEscrowID.Hex())
	}

	c.secrets[revealedSecret] = &secretEntry{
		coordinated:   true,
		timestamp:     now,
		coordinatorID: caller,
	}
	c.rows[foreignEscrowID] = &coordinationRow{secret: revealedSecret, status: StatusSecretCoordinated}

	// Lazily insert the bidirectional mapping if not already present.
	if _, exists := c.fwd[foreignEscrowID]; !exists {
		if err := c.registerMappingLocked(foreignEscrowID, localOrderHash); err != nil {
			return SecretCoordinatedEvent{}, err
		}
	}

	logger.Info("secret coordinated from foreign chain", "foreign_escrow_id", foreignEscrowID.Hex(), "coordinator", caller.Hex())
	return SecretCoordinatedEvent{
		ForeignEscrowID: foreignEscrowID,
		LocalOrderHash:  localOrderHash,
		Secret:          revealedSecret,
		Coordinator:     caller,
		Timestamp:       now,
	}, nil
}

// RegisterMapping idempotently creates the foreign/local bijection.
// Errors if either endpoint already maps to something different.
func (c *Coordinator) RegisterMapping(foreignEscrowID, localOrderHash swaptypes.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registerMappingLocked(foreignEscrowID, localOrderHash)
}

func (c *Coordinator) registerMappingLocked(foreignEscrowID, localOrderHash swaptypes.Hash) error {
	if existing, ok := c.fwd[foreignEscrowID]; ok {
		if existing != localOrderHash {
			return fmt.Errorf("%w: foreign escrow %s already maps to %s",
				swaperr.ErrMappingConflict, foreignEscrowID.Hex(), existing.Hex())
		}
		return nil // idempotent no-op
	}
	if existing, ok := c.rev[localOrderHash]; ok {
		if existing != foreignEscrowID {
			return fmt.Errorf("%w: local order %s already maps to %s",
				swaperr.ErrMappingConflict, localOrderHash.Hex(), existing.Hex())
		}
		return nil
	}
	c.fwd[foreignEscrowID] = localOrderHash
	c.rev[localOrderHash] = foreignEscrowID
	if row, ok := c.rows[foreignEscrowID]; ok {
		row.status = StatusMappingRegistered
	} else {
		c.rows[foreignEscrowID] = &coordinationRow{status: StatusMappingRegistered}
	}
	return nil
}

// RegisterMappings registers a batch of (foreign, local) pairs,
// mirroring BatchCoordinateSecrets's loop-invariant batch form for the
// sibling mapping operation. Each pair is processed independently;
// conflicts on one pair do not prevent the rest from succeeding.
func (c *Coordinator) RegisterMappings(pairs []struct{ Foreign, Local swaptypes.Hash }) []error {
	errs := make([]error, len(pairs))
	for i, p := range pairs {
		errs[i] = c.RegisterMapping(p.Foreign, p.Local)
	}
	return errs
}

// GetCoordinatedSecret returns the secret coordinated for a foreign
// escrow id, whether it is still available for consumption, when it
// was coordinated, who relayed it, and its status.
func (c *Coordinator) GetCoordinatedSecret(foreignEscrowID swaptypes.Hash) (secret swaptypes.Hash, available bool, timestamp time.Time, coordinatorID swaptypes.Address, status StatusTag, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row, ok := c.rows[foreignEscrowID]
	if ok && row.secret == swaptypes.ZeroHash && row.status == StatusEmergencyReset {
		// A reset row keeps its status but no longer holds a secret.
		return swaptypes.Hash{}, false, time.Time{}, swaptypes.Address{}, row.status, nil
	}
	if !ok || row.secret == swaptypes.ZeroHash {
		return swaptypes.Hash{}, false, time.Time{}, swaptypes.Address{}, "", fmt.Errorf("%w: %s", swaperr.ErrUnknownForeignEscrow, foreignEscrowID.Hex())
	}
	entry := c.secrets[row.secret]
	available = entry.coordinated && !c.revealed[row.secret]
	return row.secret, available, entry.timestamp, entry.coordinatorID, row.status, nil
}

// WithdrawWithCoordinatedSecret looks up the secret coordinated for
// foreignEscrowID, asserts it has not already been consumed, marks it
// consumed, and reports the secret for the caller to hand to the local
// escrow's Withdraw. The caller is responsible for invoking
// escrow.Withdraw with the returned secret and for emitting
// CrossChainSwapCompleted via CompleteSwap below once that succeeds.
func (c *Coordinator) WithdrawWithCoordinatedSecret(foreignEscrowID swaptypes.Hash) (secret swaptypes.Hash, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row, ok := c.rows[foreignEscrowID]
	if !ok || row.secret == swaptypes.ZeroHash {
		return swaptypes.Hash{}, fmt.Errorf("%w: %s", swaperr.ErrUnknownForeignEscrow, foreignEscrowID.Hex())
	}
	entry, ok := c.secrets[row.secret]
	if !ok || !entry.coordinated {
		return swaptypes.Hash{}, fmt.Errorf("%w: %s", swaperr.ErrUnknownForeignEscrow, foreignEscrowID.Hex())
	}
	if c.revealed[row.secret] || c.usedOnForeign[row.secret] {
		logger.Warn("withdraw with coordinated secret rejected: already used", "foreign_escrow_id", foreignEscrowID.Hex())
		return swaptypes.Hash{}, fmt.Errorf("%w: secret for foreign escrow %s", swaperr.ErrSecretAlreadyUsed, foreignEscrowID.Hex())
	}

	c.revealed[row.secret] = true
	entry.consumed = true
	row.status = StatusLocalWithdrawalComplete

	logger.Info("coordinated secret consumed for local withdrawal", "foreign_escrow_id", foreignEscrowID.Hex())
	return row.secret, nil
}

// CompleteSwap emits CrossChainSwapCompleted after the caller has
// successfully withdrawn using the secret from
// WithdrawWithCoordinatedSecret.
func (c *Coordinator) CompleteSwap(orderHash swaptypes.Hash, srcChain, dstChain string, srcAmount, dstAmount swaptypes.Balance) CrossChainSwapCompletedEvent {
	return CrossChainSwapCompletedEvent{
		OrderHash: orderHash,
		SrcChain:  srcChain,
		DstChain:  dstChain,
		SrcAmount: srcAmount,
		DstAmount: dstAmount,
	}
}

// BatchCoordinateSecretsItem is one element of a batch relay call.
type BatchCoordinateSecretsItem struct {
	ForeignEscrowID swaptypes.Hash
	Secret          swaptypes.Hash
	LocalOrderHash  swaptypes.Hash
}

// BatchCoordinateSecrets applies CoordinateSecretFromForeign to each
// item; an item already coordinated is skipped silently rather than
// failing the batch.
func (c *Coordinator) BatchCoordinateSecrets(caller swaptypes.Address, items []BatchCoordinateSecretsItem, now time.Time) []SecretCoordinatedEvent {
	var events []SecretCoordinatedEvent
	for _, item := range items {
		ev, err := c.CoordinateSecretFromForeign(caller, item.ForeignEscrowID, item.Secret, item.LocalOrderHash, now)
		if err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events
}

// EmergencyReset clears the four secret-indexed entries for
// foreignEscrowID. Owner-only; requires the coordination timeout to
// have elapsed since the secret was coordinated. This is the only
// destructive operation the coordinator exposes.
func (c *Coordinator) EmergencyReset(caller swaptypes.Address, foreignEscrowID swaptypes.Hash, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.owner {
		logger.Warn("emergency reset rejected: unauthorized caller", "foreign_escrow_id", foreignEscrowID.Hex(), "caller", caller.Hex())
		return fmt.Errorf("%w: caller %s is not the coordinator owner", swaperr.ErrUnauthorized, caller.Hex())
	}

	row, ok := c.rows[foreignEscrowID]
	if !ok || row.secret == swaptypes.ZeroHash {
		return fmt.Errorf("%w: %s", swaperr.ErrUnknownForeignEscrow, foreignEscrowID.Hex())
	}
	entry, ok := c.secrets[row.secret]
	if !ok {
		return fmt.Errorf("%w: %s", swaperr.ErrUnknownForeignEscrow, foreignEscrowID.Hex())
	}
	if now.Before(entry.timestamp.Add(c.cfg.CoordinationTimeout)) {
		logger.Warn("emergency reset rejected: timeout not yet elapsed", "foreign_escrow_id", foreignEscrowID.Hex())
		return swaperr.ErrEmergencyResetTooEarly
	}

	delete(c.secrets, row.secret)
	row.secret = swaptypes.Hash{}
	row.status = StatusEmergencyReset
	logger.Info("coordinator entry emergency reset", "foreign_escrow_id", foreignEscrowID.Hex(), "caller", caller.Hex())
	return nil
}

// ---------------------------------------------------------------------
// Reverse direction (E -> S) mirror operations.
// ---------------------------------------------------------------------

// InitiateLocalToForeignSwap records a local escrow-data row for the
// reverse direction and requires the caller to have committed at least
// the safety deposit (represented here by the safetyDepositPaid
// parameter standing in for a native-token msg.value check).
func (c *Coordinator) InitiateLocalToForeignSwap(
	orderHash, secretHash swaptypes.Hash,
	maker, taker, token swaptypes.Address,
	amount, safetyDeposit, safetyDepositPaid swaptypes.Balance,
) error {
	if err := requireNonZero(orderHash); err != nil {
		return err
	}
	if err := requireNonZero(secretHash); err != nil {
		return err
	}
	if safetyDepositPaid.Uint64() < safetyDeposit.Uint64() {
		return fmt.Errorf("%w: safety deposit paid %s is below required %s", swaperr.ErrUnauthorized, safetyDepositPaid, safetyDeposit)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.localData[orderHash]; exists {
		return fmt.Errorf("%w: local order %s already initiated", swaperr.ErrMappingConflict, orderHash.Hex())
	}
	c.localData[orderHash] = &localEscrowData{
		secretHash:    secretHash,
		maker:         maker,
		taker:         taker,
		token:         token,
		amount:        amount,
		safetyDeposit: safetyDeposit,
		active:        true,
	}
	if row, ok := c.rows[orderHash]; ok {
		row.status = StatusForeignEscrowInitiated
	} else {
		c.rows[orderHash] = &coordinationRow{status: StatusForeignEscrowInitiated}
	}
	return nil
}

// LinkLocalOrderToForeignEscrow is the reverse-direction counterpart of
// RegisterMapping, recording which foreign escrow a local order
// initiated a swap against.
func (c *Coordinator) LinkLocalOrderToForeignEscrow(orderHash, foreignEscrowID swaptypes.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.localData[orderHash]
	if !ok {
		return fmt.Errorf("%w: %s", swaperr.ErrUnknownForeignEscrow, orderHash.Hex())
	}
	data.foreignEscrow = foreignEscrowID
	return c.registerMappingLocked(foreignEscrowID, orderHash)
}

// RevealLocalSecret compares preimage with the secret hash stored for
// orderHash and, when they are equal, publishes it by marking it
// coordinated locally so a foreign relay can later consume it. No
// hashing is done here: the check is plain byte equality between
// preimage and the stored secret hash, not Keccak-256(preimage), which
// keeps the coordinator free of a dependency on the hashlock package.
func (c *Coordinator) RevealLocalSecret(orderHash swaptypes.Hash, preimage swaptypes.Hash, now time.Time, caller swaptypes.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.localData[orderHash]
	if !ok || !data.active {
		return fmt.Errorf("%w: %s", swaperr.ErrUnknownForeignEscrow, orderHash.Hex())
	}
	if preimage != data.secretHash {
		// Plain equality against the stored secret hash; unlike
		// escrow.Withdraw, no Keccak-256 is computed here.
		return swaperr.ErrInvalidSecret
	}

	c.secrets[preimage] = &secretEntry{
		coordinated:   true,
		timestamp:     now,
		coordinatorID: caller,
	}
	return nil
}

// PruneBefore removes fully-settled or reset coordinator rows whose
// secret was coordinated before cutoff, mirroring escrow.Registry's
// bounded-ring pruning so the coordinator does not grow unbounded over
// a long-running process. A row is eligible only once it has reached a
// terminal status (consumed, cancelled, reset, or bidirectionally
// completed) — rows still awaiting consumption are never pruned,
// regardless of age. A terminal row with no coordinated secret on
// record (a reset row, or a reverse-direction row) has no timestamp to
// compare and is pruned whatever the cutoff.
func (c *Coordinator) PruneBefore(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	terminal := map[StatusTag]bool{
		StatusLocalWithdrawalComplete: true,
		StatusCancelled:               true,
		StatusEmergencyReset:          true,
		StatusBidirectionalCompleted:  true,
	}

	pruned := 0
	for foreignID, row := range c.rows {
		if !terminal[row.status] {
			continue
		}
		entry, ok := c.secrets[row.secret]
		if ok && !entry.timestamp.Before(cutoff) {
			continue
		}
		delete(c.rows, foreignID)
		if local, ok := c.fwd[foreignID]; ok {
			delete(c.fwd, foreignID)
			delete(c.rev, local)
		}
		if ok {
			delete(c.secrets, row.secret)
		}
		pruned++
	}
	return pruned
}

// CompleteForeignWithdrawalFromLocalSecret marks preimage used on the
// foreign namespace and deactivates the local row. A secret may not be
// used both here and by WithdrawWithCoordinatedSecret; the two
// namespaces are cross-checked against the same underlying preimage.
func (c *Coordinator) CompleteForeignWithdrawalFromLocalSecret(orderHash, preimage swaptypes.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.localData[orderHash]
	if !ok || !data.active {
		return fmt.Errorf("%w: %s", swaperr.ErrUnknownForeignEscrow, orderHash.Hex())
	}
	if c.usedOnForeign[preimage] {
		return fmt.Errorf("%w: preimage already used on foreign chain", swaperr.ErrSecretAlreadyUsed)
	}
	if c.revealed[preimage] {
		return fmt.Errorf("%w: preimage already consumed locally", swaperr.ErrSecretAlreadyUsed)
	}

	c.usedOnForeign[preimage] = true
	data.active = false
	if row, ok := c.rows[orderHash]; ok {
		row.status = StatusBidirectionalCompleted
	}
	return nil
}
