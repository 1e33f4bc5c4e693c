package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestEventLedger_RegistersDelivery(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)
	key := domain.WebhookLedgerKey(domain.PaymentEvent{ID: "evt_1", Session: domain.CompletedSession{ID: "cs_test_1"}})
	hash := domain.WebhookRequestHash("cs_test_1")

	created, err := ledger.CreateProcessing(ctx, " "+key+" ", hash, ttl)
	if err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}
	if created.Key != "webhook:evt_1" || created.Status != domain.IdempotencyStatusProcessing {
		t.Fatalf("created = %+v", created)
	}

	got, err := ledger.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.RequestHash != hash || !got.TTLAt.Equal(ttl) || got.Acknowledged() {
		t.Fatalf("record = %+v", got)
	}
}

func TestEventLedger_RedeliveryAndForeignSession(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(time.Hour)

	tests := []struct {
		name    string
		key     string
		hash    string
		wantErr error
	}{
		{name: "first delivery", key: "webhook:evt_2", hash: domain.WebhookRequestHash("cs_a")},
		{name: "redelivery", key: "webhook:evt_2", hash: domain.WebhookRequestHash("cs_a"), wantErr: domain.ErrIdempotencyKeyAlreadyExists},
		{name: "event id reused for another session", key: "webhook:evt_2", hash: domain.WebhookRequestHash("cs_b"), wantErr: domain.ErrIdempotencyHashMismatch},
		{name: "blank key", key: " ", hash: domain.WebhookRequestHash("cs_a"), wantErr: domain.ErrIdempotencyKeyRequired},
		{name: "blank hash", key: "webhook:evt_3", hash: "", wantErr: domain.ErrIdempotencyRequestHashRequired},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ledger.CreateProcessing(ctx, tc.key, tc.hash, ttl)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestEventLedger_FailedDeliveryStaysRetryable(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewIdempotencyRepository()
	hash := domain.WebhookRequestHash("cs_retry")

	if _, err := ledger.CreateProcessing(ctx, "webhook:evt_retry", hash, time.Time{}); err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}
	if err := ledger.MarkFailed(ctx, "webhook:evt_retry", nil, 500); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	existing, err := ledger.CreateProcessing(ctx, "webhook:evt_retry", hash, time.Time{})
	if !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		t.Fatalf("expected ErrIdempotencyKeyAlreadyExists, got %v", err)
	}
	if existing.Status != domain.IdempotencyStatusFailed || existing.Acknowledged() {
		t.Fatalf("failed delivery must not be acknowledged: %+v", existing)
	}
	if existing.TTLAt.Sub(existing.CreatedAt) != 24*time.Hour {
		t.Fatalf("zero ttl must default to 24h retention, got %s", existing.TTLAt.Sub(existing.CreatedAt))
	}

	ack := []byte(`{"received":true}`)
	if err := ledger.MarkDone(ctx, "webhook:evt_retry", ack, 200); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}
	ack[0] = 'x'

	done, err := ledger.Get(ctx, "webhook:evt_retry")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !done.Acknowledged() || done.HTTPStatus != 200 || string(done.ResponseBody) != `{"received":true}` {
		t.Fatalf("done = %+v", done)
	}
}

func TestEventLedger_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewIdempotencyRepository()
	now := time.Now().UTC()

	if _, err := ledger.CreateProcessing(ctx, "webhook:evt_old", "h-old", now.Add(-time.Minute)); err != nil {
		t.Fatalf("CreateProcessing old failed: %v", err)
	}
	if _, err := ledger.CreateProcessing(ctx, "webhook:evt_new", "h-new", now.Add(time.Hour)); err != nil {
		t.Fatalf("CreateProcessing new failed: %v", err)
	}

	removed, err := ledger.DeleteExpired(ctx, now, 10)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected removed=1, got %d", removed)
	}

	if _, err := ledger.Get(ctx, "webhook:evt_old"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected expired event to be deleted, got %v", err)
	}
	if err := ledger.MarkDone(ctx, "webhook:evt_old", nil, 200); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound for deleted event, got %v", err)
	}
	if _, err := ledger.Get(ctx, "webhook:evt_new"); err != nil {
		t.Fatalf("active event must survive cleanup: %v", err)
	}
}
