package escrow

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashbridge/swapcore/swaperr"
	"github.com/hashbridge/swapcore/swaptypes"
)

// SettlementResult records the terminal outcome of one escrow, for an
// operator reconstructing what happened across a swap without a full
// event-log indexer.
type SettlementResult struct {
	EscrowID  swaptypes.Hash
	Side      Side
	State     State // Withdrawn or Cancelled
	To        swaptypes.Address
	Amount    swaptypes.Balance
	SettledAt time.Time
}

// Registry holds a process's live escrows plus a bounded ring of recent
// settlement results: a map-of-entries store with a fixed-size
// results/maxResults ring for the settlement history.
type Registry struct {
	mu         sync.RWMutex
	escrows    map[swaptypes.Hash]*Escrow
	results    []*SettlementResult
	maxResults int
}

// NewRegistry creates a Registry retaining at most maxResults settlement
// records. A non-positive maxResults defaults to 1024.
func NewRegistry(maxResults int) *Registry {
	if maxResults <= 0 {
		maxResults = 1024
	}
	return &Registry{
		escrows:    make(map[swaptypes.Hash]*Escrow),
		maxResults: maxResults,
	}
}

// Register adds a newly created escrow to the registry.
func (r *Registry) Register(e *Escrow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.escrows[e.ID()] = e
}

// Get returns the escrow for id, or ErrUnknownForeignEscrow if absent.
func (r *Registry) Get(id swaptypes.Hash) (*Escrow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.escrows[id]
	if !ok {
		return nil, fmt.Errorf("%w: escrow %s", swaperr.ErrUnknownForeignEscrow, id.Hex())
	}
	return e, nil
}

// RecordSettlement appends a settlement outcome to the bounded history
// ring, trimming the oldest entries once maxResults is exceeded.
func (r *Registry) RecordSettlement(res *SettlementResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	r.trimResults()
}

// SettlementHistory returns a copy of the retained settlement records,
// oldest first.
func (r *Registry) SettlementHistory() []*SettlementResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*SettlementResult, len(r.results))
	copy(out, r.results)
	return out
}

// Withdraw looks up the escrow for id, calls its Withdraw, and on
// success records the outcome in the settlement history ring so an
// operator can reconstruct what happened without a full event-log
// indexer.
func (r *Registry) Withdraw(id swaptypes.Hash, caller swaptypes.Address, secret []byte, now time.Time) (WithdrawnEvent, error) {
	e, err := r.Get(id)
	if err != nil {
		return WithdrawnEvent{}, err
	}
	ev, err := e.Withdraw(caller, secret, now)
	if err != nil {
		return WithdrawnEvent{}, err
	}
	r.RecordSettlement(&SettlementResult{
		EscrowID:  id,
		Side:      e.side,
		State:     Withdrawn,
		To:        ev.To,
		Amount:    ev.Amount,
		SettledAt: now,
	})
	return ev, nil
}

// Cancel looks up the escrow for id, calls its Cancel, and on success
// records the outcome in the settlement history ring.
func (r *Registry) Cancel(id swaptypes.Hash, caller swaptypes.Address, now time.Time) (CancelledEvent, error) {
	e, err := r.Get(id)
	if err != nil {
		return CancelledEvent{}, err
	}
	ev, err := e.Cancel(caller, now)
	if err != nil {
		return CancelledEvent{}, err
	}
	r.RecordSettlement(&SettlementResult{
		EscrowID:  id,
		Side:      e.side,
		State:     Cancelled,
		To:        ev.To,
		Amount:    ev.Amount,
		SettledAt: now,
	})
	return ev, nil
}

// PruneBefore removes terminal escrows whose t0 + DstCancellation is not
// after cutoff, returning the number removed. The settlement time itself
// is not consulted. Non-terminal escrows are left untouched.
func (r *Registry) PruneBefore(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.escrows {
		e.mu.Lock()
		state := e.state
		e.mu.Unlock()
		if state != Withdrawn && state != Cancelled {
			continue
		}
		// Terminal escrows carry no timestamp of their own beyond t0;
		// an operator prunes by correlating with SettlementHistory,
		// so here we only prune entries already past t0+DstCancellation
		// relative to cutoff, the documented upper bound on a
		// destination escrow's claimable lifetime.
		t0 := time.Unix(int64(e.t0), 0)
		if t0.Add(time.Duration(e.immutables.TimeLocks.DstCancellation) * time.Second).After(cutoff) {
			continue
		}
		delete(r.escrows, id)
		removed++
	}
	return removed
}

// trimResults trims the results ring to maxResults. Caller must hold r.mu.
func (r *Registry) trimResults() {
	if len(r.results) > r.maxResults {
		r.results = r.results[len(r.results)-r.maxResults:]
	}
}
