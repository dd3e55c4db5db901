package event

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher writes room events to the bus. The writer runs async so a slow or
// down broker never stalls the hub loop; failed writes are logged and dropped,
// which is acceptable for advisory notifications.
type Publisher struct {
	w *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		w: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
			Async:    true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					log.Printf("room-event publish failed: %v", err)
				}
			},
		},
	}
}

// Publish enqueues an event. Nil publishers are valid and do nothing, which
// keeps the hub testable without a broker.
func (p *Publisher) Publish(e Event) {
	if p == nil || p.w == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("room-event marshal failed: %v", err)
		return
	}
	// Key by room so per-room ordering survives partitioning.
	if err := p.w.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(e.RoomID),
		Value: data,
		Time:  time.Now(),
	}); err != nil {
		log.Printf("room-event publish failed: %v", err)
	}
}

func (p *Publisher) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}

// NewReader builds a consumer for the room-event topic. Pass a stable groupID
// for work-sharing consumers (the counter pipeline) and a unique one for
// fan-out consumers (each gateway instance sees every event).
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     250 * time.Millisecond,
	})
}
