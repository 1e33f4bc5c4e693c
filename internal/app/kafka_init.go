package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const kafkaClientID = "storefront-api"

// initKafkaProducer создаёт producer, если brokers не пустой; пустой brokers: nil, nil.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := splitBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList, kafka.WithClientID(kafkaClientID))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without order events")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// orderEventPublishers возвращает публикатор событий заказов и DLQ-публикатор.
func orderEventPublishers(producer *kafka.Producer, cfg Config) (domain.OutboxPublisher, domain.OutboxPublisher) {
	return kafka.NewOutboxPublisher(producer, cfg.KafkaTopic), kafka.NewDLQPublisher(producer, cfg.KafkaDLQTopic)
}

// closeKafka закрывает producer, если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

func splitBrokers(brokers string) []string {
	var out []string
	for _, broker := range strings.Split(brokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			out = append(out, broker)
		}
	}
	return out
}
