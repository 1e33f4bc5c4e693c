package app

import (
	"reflect"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestInitKafkaProducer_EmptyBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	for _, brokers := range []string{"", " ", " , "} {
		producer, err := initKafkaProducer(brokers, logger)
		if err != nil {
			t.Errorf("brokers %q: expected no error, got %v", brokers, err)
		}
		if producer != nil {
			t.Errorf("brokers %q: expected nil producer", brokers)
		}
	}
}

func TestInitKafkaProducer_InvalidBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	producer, err := initKafkaProducer("invalid-broker:9999", logger)
	if err == nil {
		t.Error("expected error for invalid brokers")
	}
	if producer != nil {
		t.Error("expected nil producer on error")
	}
}

func TestCloseKafka_NilProducer(t *testing.T) {
	closeKafka(nil, log.WithField("test", "kafka"))
}

func TestSplitBrokers(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "broker1:9092", want: []string{"broker1:9092"}},
		{in: "broker1:9092, broker2:9092,,broker3:9092 ", want: []string{"broker1:9092", "broker2:9092", "broker3:9092"}},
	}

	for _, tt := range tests {
		if got := splitBrokers(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitBrokers(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
