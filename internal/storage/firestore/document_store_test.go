package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "not found", err: status.Error(codes.NotFound, "no doc"), want: domain.ErrDocumentNotFound},
		{name: "already exists", err: status.Error(codes.AlreadyExists, "dup"), want: domain.ErrDocumentExists},
		{name: "unavailable", err: status.Error(codes.Unavailable, "down"), want: domain.ErrBackendUnavailable},
		{name: "deadline", err: status.Error(codes.DeadlineExceeded, "slow"), want: domain.ErrBackendUnavailable},
		{name: "context deadline", err: context.DeadlineExceeded, want: domain.ErrBackendUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := mapError(fmt.Errorf("op: %w", tc.err))
			if !errors.Is(got, tc.want) {
				t.Fatalf("mapError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}

	plain := errors.New("permission denied")
	if got := mapError(plain); got != plain {
		t.Fatalf("unexpected mapping for plain error: %v", got)
	}
}

func TestDocumentStore_NilClient(t *testing.T) {
	var store *DocumentStore
	ctx := context.Background()

	if _, err := store.Get(ctx, "carts", "u1"); err == nil {
		t.Fatal("expected error for nil client")
	}
	if err := store.Ping(ctx); err == nil {
		t.Fatal("expected error for nil client")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close nil store: %v", err)
	}
}

// Тесты ниже выполняются только против эмулятора Firestore.
func openEmulatorStore(t *testing.T) *DocumentStore {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := NewClient(ctx, "storefront-test", "")
	require.NoError(t, err)

	store := NewDocumentStore(client)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestDocumentStore_EmulatorFlow(t *testing.T) {
	store := openEmulatorStore(t)
	ctx := context.Background()
	suffix := fmt.Sprint(time.Now().UnixNano())
	users := "users_" + suffix
	orders := "orders_" + suffix

	require.NoError(t, store.Ping(ctx))

	_, err := store.Get(ctx, users, "u1")
	require.ErrorIs(t, err, domain.ErrDocumentNotFound)

	require.NoError(t, store.Set(ctx, users, "u1", domain.Document{"email": "a@b.c"}, domain.SetOptions{}))
	require.NoError(t, store.Set(ctx, users, "u1", domain.Document{"displayName": "A"}, domain.SetOptions{Merge: true}))
	got, err := store.Get(ctx, users, "u1")
	require.NoError(t, err)
	require.Equal(t, "a@b.c", got["email"])
	require.Equal(t, "A", got["displayName"])

	require.NoError(t, store.Create(ctx, orders, "ord_1", domain.Document{"ownerId": "u1", "createdAt": time.Now().UTC()}))
	require.ErrorIs(t, store.Create(ctx, orders, "ord_1", domain.Document{"ownerId": "u1"}), domain.ErrDocumentExists)

	_, err = store.Add(ctx, orders, domain.Document{"ownerId": "u2", "createdAt": time.Now().UTC()})
	require.NoError(t, err)

	snaps, err := store.Query(ctx, domain.Query{
		Collection: orders,
		Where:      []domain.Filter{{Field: "ownerId", Value: "u1"}},
	})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.Equal(t, "ord_1", snaps[0].ID)
}
