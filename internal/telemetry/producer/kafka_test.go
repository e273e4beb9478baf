package producer

import (
	"context"
	"testing"
	"time"

	geodomain "visitor-relay/internal/geo/domain"
	"visitor-relay/internal/telemetry/domain"
)

var _ Producer = (*KafkaProducer)(nil)

func TestNewKafkaProducer_Disabled(t *testing.T) {
	if p := NewKafkaProducer(nil, "visits"); p != nil {
		t.Error("no brokers should disable the producer")
	}
	if p := NewKafkaProducer([]string{"localhost:9092"}, ""); p != nil {
		t.Error("empty topic should disable the producer")
	}
}

func TestNewKafkaProducer_Configured(t *testing.T) {
	p := NewKafkaProducer([]string{"localhost:9092"}, "visits")
	if p == nil {
		t.Fatal("NewKafkaProducer returned nil")
	}
	defer p.Close()
	if p.Topic() != "visits" {
		t.Errorf("Topic() = %q, want visits", p.Topic())
	}
}

func TestKafkaProducer_NilSafe(t *testing.T) {
	var p *KafkaProducer
	payload := domain.NewVisit(geodomain.Placeholder("127.0.0.1", false), "test", time.Now())
	if err := p.Emit(context.Background(), payload); err != nil {
		t.Errorf("nil Emit: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
	if p.Topic() != "" {
		t.Errorf("nil Topic() = %q, want empty", p.Topic())
	}
}
