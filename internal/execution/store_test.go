package execution

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "journal.db"), filepath.Join(dir, "journal.lock"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreSaveGetList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	first := Record{
		ExecutionID: NewExecutionID(),
		UserID:      "alice",
		Kind:        "yield_deposit",
		PreviewID:   "pv_1",
		Result:      Result{Status: StatusSuccess, ChainID: 43114, Txs: []TxRef{{Step: StepTypeCall, Hash: "0x01"}}},
		CreatedAt:   base,
	}
	second := Record{
		ExecutionID: NewExecutionID(),
		UserID:      "alice",
		Kind:        "transfer",
		PreviewID:   "pv_2",
		Result:      Result{Status: StatusPartialFailure, ChainID: 43114},
		CreatedAt:   base.Add(time.Minute),
	}
	other := Record{ExecutionID: NewExecutionID(), UserID: "bob", Kind: "transfer", CreatedAt: base}
	for _, rec := range []Record{first, second, other} {
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	got, err := store.Get(ctx, first.ExecutionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Kind != "yield_deposit" || len(got.Result.Txs) != 1 || got.Result.Txs[0].Hash != "0x01" {
		t.Fatalf("unexpected record: %+v", got)
	}

	list, err := store.List(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected two records for alice, got %d", len(list))
	}
	if list[0].ExecutionID != second.ExecutionID {
		t.Fatalf("expected newest first, got %s", list[0].ExecutionID)
	}
}

func TestStoreGetMissingExecution(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Get(context.Background(), "exec_missing"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatal("expected missing execution error")
	}
}

func TestStoreSaveRequiresID(t *testing.T) {
	store := openTestStore(t)
	if err := store.Save(context.Background(), Record{UserID: "alice"}); err == nil {
		t.Fatal("expected missing id error")
	}
}
