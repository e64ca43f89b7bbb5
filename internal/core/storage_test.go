package core

import (
	"context"
	"path/filepath"
	"testing"

	"fieldledger/internal/infra/persistence/memory"
	"fieldledger/internal/infra/persistence/sqlite"
	"fieldledger/pkg/domain"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	store, err := OpenPersistentStore(StorageConfig{Driver: StorageMemory}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected *memory.Store, got %T", store)
	}
}

func TestOpenPersistentStoreSQLiteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	cfg := StorageConfig{Driver: StorageSQLite, SQLitePath: path, Account: "farm-1", MaxAttempts: 2}
	store, err := OpenPersistentStore(cfg, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sq, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected *sqlite.Store, got %T", store)
	}
	if sq.Path() != path {
		t.Fatalf("expected path %s, got %s", path, sq.Path())
	}

	svc := NewService(store)
	ctx := context.Background()
	sup, _, err := svc.RecordPurchase(ctx, PurchaseInput{Name: "Urea", Unit: domain.UnitKilogram, Quantity: dec("100"), Cost: dec("50")})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if err := sq.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenPersistentStore(cfg, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.(*sqlite.Store).Close() }()
	got, ok := reopened.GetSupply(sup.ID)
	if !ok {
		t.Fatalf("expected supply to survive reopen")
	}
	assertDec(t, "remaining", got.Remaining, "100")
	if n := len(reopened.ListCashTransactions()); n != 1 {
		t.Fatalf("expected purchase expense persisted, got %d", n)
	}

	other, err := OpenPersistentStore(StorageConfig{SQLitePath: path, Account: "farm-2"}, nil)
	if err != nil {
		t.Fatalf("open other account: %v", err)
	}
	defer func() { _ = other.(*sqlite.Store).Close() }()
	if n := len(other.ListSupplies()); n != 0 {
		t.Fatalf("expected accounts isolated, got %d supplies", n)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	if _, err := OpenPersistentStore(StorageConfig{Driver: "mongo"}, nil); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
