package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"go.uber.org/zap/zaptest"

	"ecocycle/internal/events"
)

func TestKafkaPublish(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		key, _ := m.Key.Encode()
		if string(key) != "p-1" {
			t.Errorf("want key p-1, got %s", key)
		}
		val, _ := m.Value.Encode()
		var e events.Event
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		if e.Type != events.PickupCompleted || e.AggregateID != "p-1" || e.ID == "" {
			t.Errorf("unexpected event %+v", e)
		}
		found := false
		for _, h := range m.Headers {
			if string(h.Key) == "event_type" && string(h.Value) == events.PickupCompleted {
				found = true
			}
		}
		if !found {
			t.Errorf("event_type header missing: %+v", m.Headers)
		}
		return nil
	})

	k := events.NewKafkaWithProducer(sp, "ecocycle.events", zaptest.NewLogger(t))
	if err := k.Publish(context.Background(), events.New(events.PickupCompleted, "p-1", map[string]any{"points": 30})); err != nil {
		t.Fatal(err)
	}
	if err := k.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestKafkaPublishFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(errors.New("broker down"))

	k := events.NewKafkaWithProducer(sp, "ecocycle.events", zaptest.NewLogger(t))
	if err := k.Publish(context.Background(), events.New(events.OrderPlaced, "o-1", nil)); err == nil {
		t.Fatal("want error when broker rejects the message")
	}
	_ = k.Close()
}
