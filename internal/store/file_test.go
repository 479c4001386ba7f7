package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/papertrade/engine/internal/catalog"
	"github.com/papertrade/engine/internal/ledger"
	"github.com/papertrade/engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newFileStore(t *testing.T) (*store.FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	fs, err := store.NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store failed: %v", err)
	}
	return fs, dir
}

func seededAccount(t *testing.T) *ledger.Account {
	t.Helper()
	a, err := ledger.NewAccount("alice", d(1000))
	if err != nil {
		t.Fatalf("new account failed: %v", err)
	}
	buy, _ := ledger.NewTransaction(ledger.KindBuy, "AAPL", 10, d(50))
	sell, _ := ledger.NewTransaction(ledger.KindSell, "AAPL", 4, d(60))
	a.Withdraw(buy.TotalValue())
	a.AddHolding("AAPL", 10)
	a.Record(buy)
	a.RemoveHolding("AAPL", 4)
	a.Deposit(sell.TotalValue())
	a.Record(sell)
	return a
}

func TestFileStore_AccountRoundTrip(t *testing.T) {
	fs, _ := newFileStore(t)
	ctx := context.Background()

	orig := seededAccount(t)
	if err := fs.SaveAccount(ctx, orig); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := fs.LoadAccount(ctx, orig.ID())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if got.ID() != orig.ID() || got.Name() != orig.Name() {
		t.Errorf("identity mismatch: %s/%s", got.ID(), got.Name())
	}
	if !got.Balance().Equal(orig.Balance()) {
		t.Errorf("balance mismatch: %s vs %s", got.Balance(), orig.Balance())
	}
	if got.Holdings().Quantity("AAPL") != 6 {
		t.Errorf("holdings mismatch: %v", got.Holdings().Snapshot())
	}

	history := got.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	// Kinds and ordering survive the round trip.
	if history[0].Kind != ledger.KindBuy || history[1].Kind != ledger.KindSell {
		t.Errorf("kinds lost: %s, %s", history[0].Kind, history[1].Kind)
	}
	for i, tx := range history {
		if !tx.CashEffect().Equal(orig.History()[i].CashEffect()) {
			t.Errorf("entry %d cash effect changed", i)
		}
	}
}

func TestFileStore_MissingFilesYieldEmptyState(t *testing.T) {
	fs, _ := newFileStore(t)
	ctx := context.Background()

	accounts, err := fs.LoadAccounts(ctx)
	if err != nil {
		t.Fatalf("load accounts failed: %v", err)
	}
	if len(accounts) != 0 {
		t.Errorf("expected no accounts, got %d", len(accounts))
	}

	instruments, err := fs.LoadCatalog(ctx)
	if err != nil {
		t.Fatalf("load catalog failed: %v", err)
	}
	if len(instruments) != 0 {
		t.Errorf("expected no instruments, got %d", len(instruments))
	}
}

func TestFileStore_EmptyFilesYieldEmptyState(t *testing.T) {
	fs, dir := newFileStore(t)
	ctx := context.Background()

	os.WriteFile(filepath.Join(dir, "accounts.json"), nil, 0o644)
	os.WriteFile(filepath.Join(dir, "catalog.json"), nil, 0o644)

	accounts, err := fs.LoadAccounts(ctx)
	if err != nil || len(accounts) != 0 {
		t.Errorf("empty accounts file: got %d accounts, err %v", len(accounts), err)
	}
	instruments, err := fs.LoadCatalog(ctx)
	if err != nil || len(instruments) != 0 {
		t.Errorf("empty catalog file: got %d instruments, err %v", len(instruments), err)
	}
}

func TestFileStore_MalformedJSONIsCorruptData(t *testing.T) {
	fs, dir := newFileStore(t)
	ctx := context.Background()

	os.WriteFile(filepath.Join(dir, "accounts.json"), []byte("{not json"), 0o644)
	if _, err := fs.LoadAccounts(ctx); !errors.Is(err, ledger.ErrCorruptData) {
		t.Errorf("accounts: expected ErrCorruptData, got %v", err)
	}

	os.WriteFile(filepath.Join(dir, "catalog.json"), []byte("[oops"), 0o644)
	if _, err := fs.LoadCatalog(ctx); !errors.Is(err, ledger.ErrCorruptData) {
		t.Errorf("catalog: expected ErrCorruptData, got %v", err)
	}
}

func TestFileStore_UnknownKindTagIsCorruptData(t *testing.T) {
	fs, dir := newFileStore(t)
	ctx := context.Background()

	raw := `{"a1":{"id":"a1","name":"alice","cash_balance":"100","holdings":{},"history":[{"id":"t1","symbol":"AAPL","quantity":1,"price_per_unit":"50","kind":"SHORT","timestamp":"2026-01-02T15:04:05Z"}]}}`
	os.WriteFile(filepath.Join(dir, "accounts.json"), []byte(raw), 0o644)

	if _, err := fs.LoadAccounts(ctx); !errors.Is(err, ledger.ErrCorruptData) {
		t.Errorf("expected ErrCorruptData for unknown kind tag, got %v", err)
	}
}

func TestFileStore_InvalidAccountStateIsCorruptData(t *testing.T) {
	fs, dir := newFileStore(t)
	ctx := context.Background()

	raw := `{"a1":{"id":"a1","name":"alice","cash_balance":"-10","holdings":{},"history":[]}}`
	os.WriteFile(filepath.Join(dir, "accounts.json"), []byte(raw), 0o644)

	if _, err := fs.LoadAccounts(ctx); !errors.Is(err, ledger.ErrCorruptData) {
		t.Errorf("expected ErrCorruptData for negative balance, got %v", err)
	}
}

func TestFileStore_CatalogRoundTrip(t *testing.T) {
	fs, _ := newFileStore(t)
	ctx := context.Background()

	in := []catalog.Instrument{
		{Symbol: "AAPL", Name: "Apple Inc.", CurrentPrice: d(175.50), History: []catalog.PricePoint{{Price: d(175.50)}}},
		{Symbol: "MSFT", Name: "Microsoft Corporation", CurrentPrice: d(378.90), History: []catalog.PricePoint{{Price: d(378.90)}}},
	}
	if err := fs.SaveCatalog(ctx, in); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	out, err := fs.LoadCatalog(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 instruments, got %d", len(out))
	}

	bySymbol := make(map[string]catalog.Instrument)
	for _, inst := range out {
		bySymbol[inst.Symbol] = inst
	}
	aapl, ok := bySymbol["AAPL"]
	if !ok {
		t.Fatal("AAPL missing after round trip")
	}
	if !aapl.CurrentPrice.Equal(d(175.50)) || len(aapl.History) != 1 {
		t.Errorf("AAPL mangled: %+v", aapl)
	}
}

func TestFileStore_SaveOverwritesAtomically(t *testing.T) {
	fs, dir := newFileStore(t)
	ctx := context.Background()

	a := seededAccount(t)
	fs.SaveAccount(ctx, a)
	a.Deposit(d(10))
	fs.SaveAccount(ctx, a)

	got, err := fs.LoadAccount(ctx, a.ID())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !got.Balance().Equal(a.Balance()) {
		t.Errorf("second save lost the update: %s vs %s", got.Balance(), a.Balance())
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if e.Name() != "accounts.json" && e.Name() != "catalog.json" {
			t.Errorf("stray file in data dir: %s", e.Name())
		}
	}
}

func TestFileStore_LoadUnknownAccount(t *testing.T) {
	fs, _ := newFileStore(t)

	_, err := fs.LoadAccount(context.Background(), "no-such-id")
	if !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestMemoryStore_AccountsDoNotAlias(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	a := seededAccount(t)
	ms.SaveAccount(ctx, a)

	loaded, err := ms.LoadAccount(ctx, a.ID())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	loaded.Deposit(d(500))

	again, _ := ms.LoadAccount(ctx, a.ID())
	if !again.Balance().Equal(a.Balance()) {
		t.Error("mutating a loaded account changed stored state")
	}
}
