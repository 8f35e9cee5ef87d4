package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	pub := NewKafkaPublisher(producer, "rental-events")

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "rental-events" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "42" {
			return errors.New("unexpected key " + string(key))
		}
		raw, _ := msg.Value.Encode()
		var e Event
		if err := json.Unmarshal(raw, &e); err != nil {
			return err
		}
		if e.Type != OrderStatusChanged || e.Status != "active" {
			return errors.New("unexpected payload")
		}
		return nil
	})

	err := pub.Publish(context.Background(), Event{
		Type:       OrderStatusChanged,
		Key:        42,
		OrderID:    42,
		Status:     "active",
		OccurredOn: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.NoError(t, err)
	assert.NoError(t, pub.Close())
}

func TestKafkaPublisher_PublishFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	pub := NewKafkaPublisher(producer, "rental-events")

	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := pub.Publish(context.Background(), Event{Type: BookingExpired, Key: 7})
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	assert.NoError(t, pub.Close())
}

func TestLogPublisher(t *testing.T) {
	pub := NewLogPublisher()
	assert.NoError(t, pub.Publish(context.Background(), Event{Type: BookingReserved, Key: 1}))
	assert.NoError(t, pub.Close())
}
