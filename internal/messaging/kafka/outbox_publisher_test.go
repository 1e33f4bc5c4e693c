package kafka

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func completedMessage(t *testing.T) domain.OutboxMessage {
	t.Helper()
	msg, err := domain.NewOrderCompletedMessage(domain.Order{
		ID:              "ord_123",
		OwnerID:         "u1",
		Items:           []domain.CartItem{{ID: "1", Name: "Mug", UnitPrice: domain.MoneyFromFloat(29.99), Quantity: 2}},
		Total:           domain.MoneyFromFloat(59.98),
		Status:          domain.OrderStatusCompleted,
		SourceSessionID: "cs_1",
		CreatedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("NewOrderCompletedMessage: %v", err)
	}
	return msg
}

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		env, err := ParseEnvelope(val)
		if err != nil {
			return err
		}
		event, err := env.OrderCompleted()
		if err != nil {
			return err
		}
		if event.OrderID != "ord_123" || event.ItemCount != 2 || !event.Total.Equal(domain.MoneyFromFloat(59.98)) {
			return fmt.Errorf("unexpected event %+v", event)
		}
		return nil
	})

	publisher := NewOutboxPublisher(newProducer(mockProducer), "")
	if err := publisher.Publish(context.Background(), completedMessage(t)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_DLQHeaders(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicDeadLetterQueue {
			return fmt.Errorf("topic = %s", msg.Topic)
		}
		found := false
		for _, h := range msg.Headers {
			if string(h.Key) == HeaderOriginalTopic && string(h.Value) == TopicOrderEvents {
				found = true
			}
		}
		if !found {
			return fmt.Errorf("original topic header missing: %+v", msg.Headers)
		}
		return nil
	})

	publisher := NewDLQPublisher(newProducer(mockProducer), "")
	if err := publisher.Publish(context.Background(), completedMessage(t)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(newProducer(mockProducer), TopicOrderEvents)
	if err := publisher.Publish(context.Background(), completedMessage(t)); err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	if err := publisher.Publish(context.Background(), domain.OutboxMessage{ID: "outbox-3"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}

func TestEnvelopeWrongType(t *testing.T) {
	env := NewEnvelope(domain.OutboxMessage{ID: "x", EventType: "order.refunded"}, time.Now())
	if _, err := env.OrderCompleted(); err == nil {
		t.Fatal("expected error for unexpected event type")
	}
	if string(env.Payload) != "null" {
		t.Fatalf("payload = %s", env.Payload)
	}
}
