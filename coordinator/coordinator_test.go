package coordinator

import (
	"errors"
	"testing"
	"time"

	"github.com/hashbridge/swapcore/swaperr"
	"github.com/hashbridge/swapcore/swaptypes"
)

var (
	owner  = swaptypes.BytesToAddress([]byte{0x01})
	relayA = swaptypes.BytesToAddress([]byte{0xA1})
)

func TestRegisterMappingIsIdempotent(t *testing.T) {
	c := New(owner, DefaultConfig())
	foreign := swaptypes.BytesToHash([]byte("foreign-1"))
	local := swaptypes.BytesToHash([]byte("local-1"))

	if err := c.RegisterMapping(foreign, local); err != nil {
		t.Fatalf("first RegisterMapping: %v", err)
	}
	// Re-registering the same pair is a no-op, not an error (P9).
	if err := c.RegisterMapping(foreign, local); err != nil {
		t.Fatalf("idempotent RegisterMapping: %v", err)
	}
}

func TestRegisterMappingRejectsConflict(t *testing.T) {
	c := New(owner, DefaultConfig())
	foreign := swaptypes.BytesToHash([]byte("foreign-2"))
	local1 := swaptypes.BytesToHash([]byte("local-2a"))
	local2 := swaptypes.BytesToHash([]byte("local-2b"))

	if err := c.RegisterMapping(foreign, local1); err != nil {
		t.Fatalf("RegisterMapping: %v", err)
	}
	err := c.RegisterMapping(foreign, local2)
	if !errors.Is(err, swaperr.ErrMappingConflict) {
		t.Fatalf("err = %v, want ErrMappingConflict", err)
	}
}

func TestMappingIsBijective(t *testing.T) {
	// P4: each foreign escrow id maps to exactly one local order hash
	// and vice versa.
	c := New(owner, DefaultConfig())
	foreignA := swaptypes.BytesToHash([]byte("foreign-A"))
	foreignB := swaptypes.BytesToHash([]byte("foreign-B"))
	local := swaptypes.BytesToHash([]byte("local-shared"))

	if err := c.RegisterMapping(foreignA, local); err != nil {
		t.Fatalf("RegisterMapping A: %v", err)
	}
	// Attempting to map a second foreign escrow to the same local order
	// must fail: the local side is already bound to foreignA.
	err := c.RegisterMapping(foreignB, local)
	if !errors.Is(err, swaperr.ErrMappingConflict) {
		t.Fatalf("err = %v, want ErrMappingConflict (bijection violated)", err)
	}
}

func TestCoordinateSecretOneShotConsumption(t *testing.T) {
	// P3: a coordinated secret may be consumed by
	// WithdrawWithCoordinatedSecret exactly once.
	c := New(owner, DefaultConfig())
	foreign := swaptypes.BytesToHash([]byte("foreign-3"))
	local := swaptypes.BytesToHash([]byte("local-3"))
	secret := swaptypes.BytesToHash([]byte("secret-3"))
	now := time.Now()

	if _, err := c.CoordinateSecretFromForeign(relayA, foreign, secret, local, now); err != nil {
		t.Fatalf("CoordinateSecretFromForeign: %v", err)
	}

	got, err := c.WithdrawWithCoordinatedSecret(foreign)
	if err != nil {
		t.Fatalf("first WithdrawWithCoordinatedSecret: %v", err)
	}
	if got != secret {
		t.Fatalf("got secret %s, want %s", got.Hex(), secret.Hex())
	}

	_, err = c.WithdrawWithCoordinatedSecret(foreign)
	if !errors.Is(err, swaperr.ErrSecretAlreadyUsed) {
		t.Fatalf("second withdraw err = %v, want ErrSecretAlreadyUsed", err)
	}
}

func TestCoordinateSecretRejectsDoubleCoordination(t *testing.T) {
	c := New(owner, DefaultConfig())
	foreign := swaptypes.BytesToHash([]byte("foreign-4"))
	local := swaptypes.BytesToHash([]byte("local-4"))
	secret := swaptypes.BytesToHash([]byte("secret-4"))
	now := time.Now()

	if _, err := c.CoordinateSecretFromForeign(relayA, foreign, secret, local, now); err != nil {
		t.Fatalf("first coordinate: %v", err)
	}
	_, err := c.CoordinateSecretFromForeign(relayA, foreign, secret, local, now)
	if !errors.Is(err, swaperr.ErrSecretAlreadyCoordinated) {
		t.Fatalf("err = %v, want ErrSecretAlreadyCoordinated", err)
	}
}

func TestBatchCoordinateSecretsSkipsAlreadyCoordinated(t *testing.T) {
	c := New(owner, DefaultConfig())
	now := time.Now()
	foreign1 := swaptypes.BytesToHash([]byte("foreign-5"))
	secret1 := swaptypes.BytesToHash([]byte("secret-5"))
	local1 := swaptypes.BytesToHash([]byte("local-5"))

	// Pre-coordinate foreign1 so the batch call sees it as a duplicate.
	if _, err := c.CoordinateSecretFromForeign(relayA, foreign1, secret1, local1, now); err != nil {
		t.Fatalf("pre-coordinate: %v", err)
	}

	items := []BatchCoordinateSecretsItem{
		{ForeignEscrowID: foreign1, Secret: secret1, LocalOrderHash: local1}, // duplicate, skipped
		{
			ForeignEscrowID: swaptypes.BytesToHash([]byte("foreign-6")),
			Secret:          swaptypes.BytesToHash([]byte("secret-6")),
			LocalOrderHash:  swaptypes.BytesToHash([]byte("local-6")),
		},
	}
	events := c.BatchCoordinateSecrets(relayA, items, now)
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1 (duplicate silently skipped)", len(events))
	}
	if events[0].ForeignEscrowID != items[1].ForeignEscrowID {
		t.Fatalf("unexpected event for %s", events[0].ForeignEscrowID.Hex())
	}
}

func TestEmergencyResetRequiresOwnerAndTimeout(t *testing.T) {
	c := New(owner, DefaultConfig())
	foreign := swaptypes.BytesToHash([]byte("foreign-7"))
	local := swaptypes.BytesToHash([]byte("local-7"))
	secret := swaptypes.BytesToHash([]byte("secret-7"))
	t0 := time.Now()

	if _, err := c.CoordinateSecretFromForeign(relayA, foreign, secret, local, t0); err != nil {
		t.Fatalf("coordinate: %v", err)
	}

	// Non-owner is rejected outright.
	if err := c.EmergencyReset(relayA, foreign, t0.Add(2*time.Hour)); !errors.Is(err, swaperr.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}

	// Owner too early (before COORDINATION_TIMEOUT elapses) is rejected.
	if err := c.EmergencyReset(owner, foreign, t0.Add(30*time.Minute)); !errors.Is(err, swaperr.ErrEmergencyResetTooEarly) {
		t.Fatalf("err = %v, want ErrEmergencyResetTooEarly", err)
	}

	// Owner after the timeout succeeds.
	if err := c.EmergencyReset(owner, foreign, t0.Add(2*time.Hour)); err != nil {
		t.Fatalf("EmergencyReset: %v", err)
	}

	_, _, _, _, status, err := c.GetCoordinatedSecret(foreign)
	if err != nil {
		t.Fatalf("GetCoordinatedSecret: %v", err)
	}
	if status != StatusEmergencyReset {
		t.Fatalf("status = %v, want StatusEmergencyReset", status)
	}
}

func TestReverseDirectionRevealAndComplete(t *testing.T) {
	// S6-style scenario mirrored for the E->S direction: a secret
	// revealed locally can be completed on the foreign chain once, and a
	// second completion for the same order and preimage fails.
	c := New(owner, DefaultConfig())
	orderHash := swaptypes.BytesToHash([]byte("order-8"))
	secret := swaptypes.BytesToHash([]byte("preimage-8"))
	maker := swaptypes.BytesToAddress([]byte{0x01})
	taker := swaptypes.BytesToAddress([]byte{0x02})
	token := swaptypes.BytesToAddress([]byte{0x03})
	amount := swaptypes.NewBalance(1000)
	safety := swaptypes.NewBalance(10)
	now := time.Now()

	if err := c.InitiateLocalToForeignSwap(orderHash, secret, maker, taker, token, amount, safety, safety); err != nil {
		t.Fatalf("InitiateLocalToForeignSwap: %v", err)
	}

	foreignEscrow := swaptypes.BytesToHash([]byte("foreign-8"))
	if err := c.LinkLocalOrderToForeignEscrow(orderHash, foreignEscrow); err != nil {
		t.Fatalf("LinkLocalOrderToForeignEscrow: %v", err)
	}

	if err := c.RevealLocalSecret(orderHash, secret, now, taker); err != nil {
		t.Fatalf("RevealLocalSecret: %v", err)
	}

	if err := c.CompleteForeignWithdrawalFromLocalSecret(orderHash, secret); err != nil {
		t.Fatalf("CompleteForeignWithdrawalFromLocalSecret: %v", err)
	}
	// A second completion attempt against the same preimage must fail:
	// one-shot consumption holds across the reverse direction too.
	err := c.CompleteForeignWithdrawalFromLocalSecret(orderHash, secret)
	if err == nil {
		t.Fatal("expected second completion to fail")
	}
}

func TestInitiateLocalToForeignSwapRequiresSafetyDeposit(t *testing.T) {
	c := New(owner, DefaultConfig())
	orderHash := swaptypes.BytesToHash([]byte("order-9"))
	secret := swaptypes.BytesToHash([]byte("preimage-9"))
	maker := swaptypes.BytesToAddress([]byte{0x01})
	taker := swaptypes.BytesToAddress([]byte{0x02})
	token := swaptypes.BytesToAddress([]byte{0x03})

	err := c.InitiateLocalToForeignSwap(orderHash, secret, maker, taker, token,
		swaptypes.NewBalance(1000), swaptypes.NewBalance(10), swaptypes.NewBalance(5))
	if !errors.Is(err, swaperr.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized for insufficient safety deposit", err)
	}
}

func TestPruneBeforeRemovesOnlyTerminalRows(t *testing.T) {
	c := New(owner, DefaultConfig())
	t0 := time.Now()

	settledForeign := swaptypes.BytesToHash([]byte("foreign-prune-settled"))
	settledSecret := swaptypes.BytesToHash([]byte("secret-prune-settled"))
	settledLocal := swaptypes.BytesToHash([]byte("local-prune-settled"))
	if _, err := c.CoordinateSecretFromForeign(relayA, settledForeign, settledSecret, settledLocal, t0); err != nil {
		t.Fatalf("coordinate settled: %v", err)
	}
	if _, err := c.WithdrawWithCoordinatedSecret(settledForeign); err != nil {
		t.Fatalf("withdraw settled: %v", err)
	}

	pendingForeign := swaptypes.BytesToHash([]byte("foreign-prune-pending"))
	pendingSecret := swaptypes.BytesToHash([]byte("secret-prune-pending"))
	pendingLocal := swaptypes.BytesToHash([]byte("local-prune-pending"))
	if _, err := c.CoordinateSecretFromForeign(relayA, pendingForeign, pendingSecret, pendingLocal, t0); err != nil {
		t.Fatalf("coordinate pending: %v", err)
	}

	cutoff := t0.Add(time.Hour)
	pruned := c.PruneBefore(cutoff)
	if pruned != 1 {
		t.Fatalf("pruned = %d, want 1 (only the settled row)", pruned)
	}

	if _, _, _, _, _, err := c.GetCoordinatedSecret(settledForeign); err == nil {
		t.Fatal("expected settled row to be gone after pruning")
	}
	if _, _, _, _, _, err := c.GetCoordinatedSecret(pendingForeign); err != nil {
		t.Fatalf("expected pending row to survive pruning, got err=%v", err)
	}
}

func TestWithdrawWithCoordinatedSecretRejectsSecretUsedOnForeign(t *testing.T) {
	// The cross-namespace invariant must hold symmetrically: a secret
	// already consumed via CompleteForeignWithdrawalFromLocalSecret must
	// not also be withdrawable via WithdrawWithCoordinatedSecret.
	c := New(owner, DefaultConfig())
	foreign := swaptypes.BytesToHash([]byte("foreign-10"))
	secret := swaptypes.BytesToHash([]byte("secret-10"))

	c.usedOnForeign[secret] = true
	c.rows[foreign] = &coordinationRow{secret: secret, status: StatusSecretCoordinated}
	c.secrets[secret] = &secretEntry{coordinated: true}

	if _, err := c.WithdrawWithCoordinatedSecret(foreign); !errors.Is(err, swaperr.ErrSecretAlreadyUsed) {
		t.Fatalf("err = %v, want ErrSecretAlreadyUsed (secret already used on foreign chain)", err)
	}
}

func TestGetCoordinatedSecretUnknownEscrow(t *testing.T) {
	c := New(owner, DefaultConfig())
	_, _, _, _, _, err := c.GetCoordinatedSecret(swaptypes.BytesToHash([]byte("nope")))
	if !errors.Is(err, swaperr.ErrUnknownForeignEscrow) {
		t.Fatalf("err = %v, want ErrUnknownForeignEscrow", err)
	}
}
