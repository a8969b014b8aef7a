package settlement

import (
	"context"
	"errors"
	"testing"

	"marketpace/internal/testutil"
)

func setupPGStore(t *testing.T) *PGStore {
	t.Helper()
	db := testutil.NewPool(t, "ledger_entries", "settlement_payments", "settlements")
	return NewPGStore(db)
}

func TestPGStoreSettleAndReplay(t *testing.T) {
	store := setupPGStore(t)
	proc := newFakeProcessor()
	svc := NewService(store, proc, nil, nil)
	ctx := context.Background()

	first, err := svc.Settle(ctx, sampleDelivery())
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	second, err := svc.Settle(ctx, sampleDelivery())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Replayed || !first.Breakdown.DriverTotal.Equal(second.Breakdown.DriverTotal) {
		t.Fatalf("expected identical replay, got %+v", second)
	}
	if proc.count("capture") != 1 {
		t.Fatalf("expected one capture, got %d", proc.count("capture"))
	}
	entries, err := store.Ledger(ctx, sampleDelivery().ID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 ledger entries, got %d", len(entries))
	}
	if sum := ledgerSum(entries); sum != 0 {
		t.Fatalf("ledger does not balance: %d", sum)
	}
}

func TestPGStoreCreateDuplicate(t *testing.T) {
	store := setupPGStore(t)
	ctx := context.Background()
	rec := newRecord(sampleDelivery(), KindStandard, sampleTime())
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, rec); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
}

func TestPGStoreKeepsReferences(t *testing.T) {
	store := setupPGStore(t)
	ctx := context.Background()
	rec := newRecord(sampleDelivery(), KindStandard, sampleTime())
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	rec.Payments[0].Reference = "cap_1"
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	rec.Payments[0].Reference = ""
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Get(ctx, rec.DeliveryID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Payments[0].Reference != "cap_1" {
		t.Fatalf("stored reference was cleared: %+v", got.Payments[0])
	}
	if !got.Breakdown.DriverTotal.Equal(rec.Breakdown.DriverTotal) {
		t.Fatalf("breakdown did not round-trip")
	}
}
