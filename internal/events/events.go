package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"instrument-rental-backend/internal/logger"
)

type EventType string

const (
	BookingReserved    EventType = "booking.reserved"
	BookingConfirmed   EventType = "booking.confirmed"
	BookingCancelled   EventType = "booking.cancelled"
	BookingExpired     EventType = "booking.expired"
	OrderCreated       EventType = "order.created"
	OrderStatusChanged EventType = "order.status_changed"
	ToolStockChanged   EventType = "tool.stock_changed"
)

// Event is a lifecycle notification emitted after the change has committed.
type Event struct {
	Type       EventType         `json:"type"`
	Key        int32             `json:"key"`
	ToolID     int32             `json:"toolId,omitempty"`
	BookingID  int32             `json:"bookingId,omitempty"`
	OrderID    int32             `json:"orderId,omitempty"`
	Status     string            `json:"status,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredOn time.Time         `json:"occurredOn"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// NewProducer builds a synchronous producer that waits for all in-sync replicas.
func NewProducer(cfg KafkaConfig) (sarama.SyncProducer, error) {
	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	return sarama.NewSyncProducer(cfg.Brokers, sc)
}

type kafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher takes ownership of producer; Close closes it.
func NewKafkaPublisher(producer sarama.SyncProducer, topic string) Publisher {
	return &kafkaPublisher{producer: producer, topic: topic}
}

func (p *kafkaPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.Itoa(int(e.Key))),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(e.Type)},
		},
	}
	logger.ExternalServiceCall("kafka", "SendMessage", "topic", p.topic, "type", e.Type)
	partition, offset, err := p.producer.SendMessage(msg)
	logger.ExternalServiceResult("kafka", "SendMessage", err, "partition", partition, "offset", offset)
	return err
}

func (p *kafkaPublisher) Close() error {
	return p.producer.Close()
}

type logPublisher struct{}

// NewLogPublisher is used when no broker is configured.
func NewLogPublisher() Publisher {
	return logPublisher{}
}

func (logPublisher) Publish(ctx context.Context, e Event) error {
	logger.InfoContext(ctx, "Lifecycle event", "type", e.Type, "key", e.Key, "status", e.Status)
	return nil
}

func (logPublisher) Close() error { return nil }
