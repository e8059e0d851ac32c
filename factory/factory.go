// Package factory implements the policy layer that owns creation of
// escrows and authorizes deposit/withdrawal on behalf of a designated
// resolver identity: a config struct, an owner-gated mutating surface,
// and an id-keyed store guarded by a single mutex.
package factory

import (
	"fmt"
	"sync"

	"github.com/hashbridge/swapcore/escrow"
	"github.com/hashbridge/swapcore/log"
	"github.com/hashbridge/swapcore/swaperr"
	"github.com/hashbridge/swapcore/swaptypes"
)

var logger = log.Default().Component("factory")

// Config controls factory/resolver policy.
type Config struct {
	// MaxResults bounds the settlement history ring kept by the
	// registry backing this factory.
	MaxResults int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{MaxResults: 1024}
}

// SrcEscrowCreatedEvent is emitted whenever the factory deploys a
// source-side escrow.
type SrcEscrowCreatedEvent struct {
	FactoryID swaptypes.Hash
	EscrowID  swaptypes.Hash
	Creator   swaptypes.Address
}

// DstEscrowCreatedEvent is emitted whenever the factory deploys a
// destination-side escrow; it additionally carries the source
// cancellation timestamp so the counterparty chain can bound the
// destination escrow's claimable lifetime.
type DstEscrowCreatedEvent struct {
	FactoryID                swaptypes.Hash
	EscrowID                 swaptypes.Hash
	Creator                  swaptypes.Address
	SrcCancellationTimestamp uint64
}

// SrcEscrowDeployedEvent is emitted when the resolver deploys a
// source-side escrow on behalf of a matched order.
type SrcEscrowDeployedEvent struct {
	ResolverID       swaptypes.Hash
	EscrowID         swaptypes.Hash
	Deployer         swaptypes.Address
	ForeignOrderHash swaptypes.Hash
}

// Factory owns creation of escrows and, through its Resolver role,
// authorizes deposit on behalf of a designated owner identity. Anyone
// holding the secret may still call Withdraw/Cancel on the resulting
// escrow; the factory's authorization gate only covers deploy and
// deposit. Callers should go through Registry().Withdraw/Cancel rather
// than the Escrow's own methods directly, so the terminal outcome is
// recorded in the registry's settlement history.
type Factory struct {
	mu    sync.Mutex
	id    swaptypes.Hash
	owner swaptypes.Address

	config   Config
	registry *escrow.Registry
}

// New creates a Factory/Resolver with the given id and initial owner.
func New(id swaptypes.Hash, owner swaptypes.Address, cfg Config) *Factory {
	return &Factory{
		id:       id,
		owner:    owner,
		config:   cfg,
		registry: escrow.NewRegistry(cfg.MaxResults),
	}
}

// Owner returns the current resolver owner.
func (f *Factory) Owner() swaptypes.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owner
}

// TransferOwnership reassigns the resolver owner. Gated by the current
// owner; this is the only mutating operation on the Resolver itself.
func (f *Factory) TransferOwnership(caller, newOwner swaptypes.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.owner {
		logger.Warn("transfer ownership rejected: unauthorized caller", "factory_id", f.id.Hex(), "caller", caller.Hex())
		return fmt.Errorf("%w: caller %s is not the resolver owner", swaperr.ErrUnauthorized, caller.Hex())
	}
	f.owner = newOwner
	logger.Info("resolver ownership transferred", "factory_id", f.id.Hex(), "new_owner", newOwner.Hex())
	return nil
}

// DeploySrcEscrow creates a source-side escrow and emits SrcEscrowCreated.
// Creation itself is permissionless per spec.md §4.2 create(); the
// factory's authorization gate applies to the resolver-mediated deposit
// path below, not to escrow creation.
func (f *Factory) DeploySrcEscrow(
	creator swaptypes.Address,
	escrowID swaptypes.Hash,
	imm escrow.Immutables,
	t0 uint64,
) (*escrow.Escrow, SrcEscrowCreatedEvent, error) {
	e, _, err := escrow.Create(escrowID, escrow.Src, imm, t0)
	if err != nil {
		logger.Warn("deploy src escrow rejected", "factory_id", f.id.Hex(), "err", err)
		return nil, SrcEscrowCreatedEvent{}, err
	}
	f.registry.Register(e)
	logger.Info("src escrow deployed", "factory_id", f.id.Hex(), "escrow_id", escrowID.Hex())
	return e, SrcEscrowCreatedEvent{
		FactoryID: f.id,
		EscrowID:  escrowID,
		Creator:   creator,
	}, nil
}

// DeployDstEscrow creates a destination-side escrow and emits
// DstEscrowCreated, carrying the source cancellation timestamp the
// counterparty chain needs to bound this escrow's claimable lifetime.
func (f *Factory) DeployDstEscrow(
	creator swaptypes.Address,
	escrowID swaptypes.Hash,
	imm escrow.Immutables,
	t0 uint64,
	srcCancellationTimestamp uint64,
) (*escrow.Escrow, DstEscrowCreatedEvent, error) {
	e, _, err := escrow.Create(escrowID, escrow.Dst, imm, t0)
	if err != nil {
		logger.Warn("deploy dst escrow rejected", "factory_id", f.id.Hex(), "err", err)
		return nil, DstEscrowCreatedEvent{}, err
	}
	f.registry.Register(e)
	logger.Info("dst escrow deployed", "factory_id", f.id.Hex(), "escrow_id", escrowID.Hex())
	return e, DstEscrowCreatedEvent{
		FactoryID:                f.id,
		EscrowID:                 escrowID,
		Creator:                  creator,
		SrcCancellationTimestamp: srcCancellationTimestamp,
	}, nil
}

// DeploySrcEscrowWithDeposit is the resolver-mediated path: only the
// designated owner may deploy and immediately fund a source escrow on
// behalf of a matched order.
func (f *Factory) DeploySrcEscrowWithDeposit(
	caller swaptypes.Address,
	escrowID swaptypes.Hash,
	imm escrow.Immutables,
	t0 uint64,
	foreignOrderHash swaptypes.Hash,
) (*escrow.Escrow, SrcEscrowDeployedEvent, error) {
	f.mu.Lock()
	owner := f.owner
	f.mu.Unlock()
	if caller != owner {
		logger.Warn("deploy-with-deposit rejected: unauthorized caller", "factory_id", f.id.Hex(), "caller", caller.Hex())
		return nil, SrcEscrowDeployedEvent{}, fmt.Errorf("%w: caller %s is not the resolver owner", swaperr.ErrUnauthorized, caller.Hex())
	}

	e, _, err := escrow.Create(escrowID, escrow.Src, imm, t0)
	if err != nil {
		return nil, SrcEscrowDeployedEvent{}, err
	}
	if _, err := e.Deposit(imm.Taker, imm.Amount, imm.SafetyDeposit); err != nil {
		return nil, SrcEscrowDeployedEvent{}, err
	}
	f.registry.Register(e)

	logger.Info("src escrow deployed with deposit", "factory_id", f.id.Hex(), "escrow_id", escrowID.Hex())
	return e, SrcEscrowDeployedEvent{
		ResolverID:       f.id,
		EscrowID:         escrowID,
		Deployer:         caller,
		ForeignOrderHash: foreignOrderHash,
	}, nil
}

// DepositToEscrow funds an already-created escrow on behalf of the
// resolver's matched taker. Gated by the resolver owner, mirroring
// spec.md §4.3's "Resolver additionally records a designated owner that
// is the sole party allowed to call deploy_*_with_deposit and
// deposit_to_escrow".
func (f *Factory) DepositToEscrow(caller swaptypes.Address, escrowID swaptypes.Hash, principal, safety swaptypes.Balance) (escrow.DepositedEvent, error) {
	f.mu.Lock()
	owner := f.owner
	f.mu.Unlock()
	if caller != owner {
		return escrow.DepositedEvent{}, fmt.Errorf("%w: caller %s is not the resolver owner", swaperr.ErrUnauthorized, caller.Hex())
	}

	e, err := f.registry.Get(escrowID)
	if err != nil {
		return escrow.DepositedEvent{}, err
	}
	return e.Deposit(e.Immutables().Taker, principal, safety)
}

// Registry exposes the factory's backing escrow registry for lookups by
// id and for settlement-recording Withdraw/Cancel calls.
func (f *Factory) Registry() *escrow.Registry { return f.registry }
