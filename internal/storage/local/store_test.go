package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestStore_PersistsToFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "device", "store.json")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	doc := domain.Document{"items": []any{map[string]any{"id": "1", "price": 29.99, "quantity": 2}}}
	if err := store.Set(ctx, "carts", domain.DeviceCartKey, doc, domain.SetOptions{}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got, err := reopened.Get(ctx, "carts", domain.DeviceCartKey)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	items, ok := got["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("unexpected items after reopen: %#v", got["items"])
	}
	if items[0].(map[string]any)["price"] != 29.99 {
		t.Fatalf("price lost: %#v", items[0])
	}
}

func TestStore_MergeAndCreate(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	if err := store.Set(ctx, "users", "u1", domain.Document{"email": "a@b.c"}, domain.SetOptions{}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set(ctx, "users", "u1", domain.Document{"displayName": "A"}, domain.SetOptions{Merge: true}); err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	got, _ := store.Get(ctx, "users", "u1")
	if got["email"] != "a@b.c" || got["displayName"] != "A" {
		t.Fatalf("unexpected merged doc: %v", got)
	}

	if err := store.Create(ctx, "users", "u1", domain.Document{}); !errors.Is(err, domain.ErrDocumentExists) {
		t.Fatalf("expected ErrDocumentExists, got %v", err)
	}
	if _, err := store.Get(ctx, "users", "missing"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestStore_Query(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	for _, owner := range []string{"u1", "u2", "u1"} {
		if _, err := store.Add(ctx, "orders", domain.Document{"ownerId": owner}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	snaps, err := store.Query(ctx, domain.Query{
		Collection: "orders",
		Where:      []domain.Filter{{Field: "ownerId", Value: "u1"}},
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(snaps))
	}
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	store, _ := Open(path)
	_ = store.Set(context.Background(), "carts", "device", domain.Document{}, domain.SetOptions{})

	if err := writeFile(path, "{not json"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected decode error for corrupt file")
	}
}

func writeFile(path, body string) error {
	return os.WriteFile(path, []byte(body), 0o600)
}
