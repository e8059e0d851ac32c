package escrow

import (
	"errors"
	"testing"
	"time"

	"github.com/hashbridge/swapcore/swaperr"
	"github.com/hashbridge/swapcore/swaptypes"
)

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry(0)
	if _, err := r.Get(swaptypes.BytesToHash([]byte("nope"))); !errors.Is(err, swaperr.ErrUnknownForeignEscrow) {
		t.Fatalf("err = %v, want ErrUnknownForeignEscrow", err)
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	imm := makeImmutables(t, []byte("s"))
	e, _, err := Create(swaptypes.BytesToHash([]byte("escrow-reg-1")), Src, imm, 1_700_000_000)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	r := NewRegistry(0)
	r.Register(e)

	got, err := r.Get(e.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != e {
		t.Fatal("Get returned a different escrow instance")
	}
}

func TestRegistryWithdrawRecordsSettlement(t *testing.T) {
	secret := []byte("registry-wired-secret")
	imm := makeImmutables(t, secret)
	t0 := uint64(1_700_000_000)

	e, _, err := Create(swaptypes.BytesToHash([]byte("escrow-reg-2")), Src, imm, t0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.Deposit(taker, imm.Amount, imm.SafetyDeposit); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	r := NewRegistry(0)
	r.Register(e)

	now := time.Unix(int64(t0+20), 0)
	ev, err := r.Withdraw(e.ID(), taker, secret, now)
	if err != nil {
		t.Fatalf("Registry.Withdraw: %v", err)
	}

	hist := r.SettlementHistory()
	if len(hist) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(hist))
	}
	rec := hist[0]
	if rec.EscrowID != e.ID() {
		t.Errorf("recorded EscrowID = %v, want %v", rec.EscrowID, e.ID())
	}
	if rec.State != Withdrawn {
		t.Errorf("recorded State = %v, want Withdrawn", rec.State)
	}
	if rec.To != ev.To || !rec.Amount.Equal(ev.Amount) {
		t.Errorf("recorded outcome = (%v, %v), want (%v, %v)", rec.To, rec.Amount, ev.To, ev.Amount)
	}
}

func TestRegistryCancelRecordsSettlement(t *testing.T) {
	secret := []byte("registry-wired-secret-2")
	imm := makeImmutables(t, secret)
	t0 := uint64(1_700_000_000)

	e, _, err := Create(swaptypes.BytesToHash([]byte("escrow-reg-3")), Src, imm, t0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.Deposit(taker, imm.Amount, imm.SafetyDeposit); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	r := NewRegistry(0)
	r.Register(e)

	// Past src_public_cancellation (180): anyone may cancel.
	now := time.Unix(int64(t0+200), 0)
	ev, err := r.Cancel(e.ID(), rando, now)
	if err != nil {
		t.Fatalf("Registry.Cancel: %v", err)
	}

	hist := r.SettlementHistory()
	if len(hist) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(hist))
	}
	rec := hist[0]
	if rec.State != Cancelled {
		t.Errorf("recorded State = %v, want Cancelled", rec.State)
	}
	if rec.To != ev.To || !rec.Amount.Equal(ev.Amount) {
		t.Errorf("recorded outcome = (%v, %v), want (%v, %v)", rec.To, rec.Amount, ev.To, ev.Amount)
	}
}

func TestRegistrySettlementHistoryTrims(t *testing.T) {
	r := NewRegistry(2)
	for i := 0; i < 5; i++ {
		r.RecordSettlement(&SettlementResult{
			EscrowID:  swaptypes.BytesToHash([]byte{byte(i)}),
			State:     Withdrawn,
			SettledAt: time.Now(),
		})
	}
	hist := r.SettlementHistory()
	if len(hist) != 2 {
		t.Fatalf("len(history) = %d, want 2 (maxResults)", len(hist))
	}
}
