package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestDocumentStore_PostgresSetMergeGet(t *testing.T) {
	ctx := context.Background()
	docs := NewDocumentStore(openPostgresStoreForIntegrationTest(t))

	_, err := docs.Get(ctx, "users", "u1")
	require.ErrorIs(t, err, domain.ErrDocumentNotFound)

	require.NoError(t, docs.Set(ctx, "users", "u1", domain.Document{"email": "a@b.c", "displayName": "A"}, domain.SetOptions{}))
	require.NoError(t, docs.Set(ctx, "users", "u1", domain.Document{"displayName": "B"}, domain.SetOptions{Merge: true}))

	got, err := docs.Get(ctx, "users", "u1")
	require.NoError(t, err)
	require.Equal(t, "a@b.c", got["email"])
	require.Equal(t, "B", got["displayName"])

	require.NoError(t, docs.Set(ctx, "users", "u1", domain.Document{"displayName": "C"}, domain.SetOptions{}))
	got, err = docs.Get(ctx, "users", "u1")
	require.NoError(t, err)
	require.NotContains(t, got, "email")
}

func TestDocumentStore_PostgresCreateIsUnique(t *testing.T) {
	ctx := context.Background()
	docs := NewDocumentStore(openPostgresStoreForIntegrationTest(t))

	require.NoError(t, docs.Create(ctx, "orders", "ord_1", domain.Document{"total": 72.97}))
	require.ErrorIs(t, docs.Create(ctx, "orders", "ord_1", domain.Document{"total": 1}), domain.ErrDocumentExists)

	got, err := docs.Get(ctx, "orders", "ord_1")
	require.NoError(t, err)
	require.Equal(t, 72.97, got["total"])
}

func TestDocumentStore_PostgresQuery(t *testing.T) {
	ctx := context.Background()
	docs := NewDocumentStore(openPostgresStoreForIntegrationTest(t))
	base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	for i, owner := range []string{"u1", "u2", "u1", "u1"} {
		_, err := docs.Add(ctx, "orders", domain.Document{
			"ownerId":   owner,
			"createdAt": base.Add(time.Duration(i) * time.Second),
			"seq":       i,
		})
		require.NoError(t, err)
	}

	snaps, err := docs.Query(ctx, domain.Query{
		Collection: "orders",
		Where:      []domain.Filter{{Field: "ownerId", Value: "u1"}},
		OrderBy:    []domain.OrderBy{{Field: "createdAt", Desc: true}},
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	require.Equal(t, float64(3), snaps[0].Data["seq"])
	require.Equal(t, float64(2), snaps[1].Data["seq"])
}
