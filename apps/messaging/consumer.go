package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/etalonmax94/CareConnect-sub003/pkg/event"
	"github.com/etalonmax94/CareConnect-sub003/pkg/store"
)

type Consumer struct {
	reader *kafka.Reader
	store  store.Store
}

func NewConsumer(brokers []string, topic, groupID string, st store.Store) *Consumer {
	return &Consumer{
		reader: event.NewReader(brokers, topic, groupID),
		store:  st,
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		log.Printf("Error closing Kafka reader: %v", err)
	}
}

// Consume tails the room-event topic until ctx is cancelled.
func (c *Consumer) Consume(ctx context.Context) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Printf("Error reading event: %v. Retrying in 1s...", err)
			time.Sleep(time.Second)
			continue
		}

		var e event.Event
		if err := json.Unmarshal(m.Value, &e); err != nil {
			log.Printf("Failed to unmarshal event: %v", err)
			continue
		}
		if err := c.handle(ctx, e); err != nil {
			// Counters are advisory: log and move on rather than stall the
			// partition behind one bad event.
			log.Printf("Failed to handle %s event for room %s: %v", e.Type, e.RoomID, err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, e event.Event) error {
	switch e.Type {
	case event.MessagePosted:
		return c.bumpCounters(ctx, e)
	case event.RoomRead:
		if e.UserID == "" {
			return nil
		}
		return c.store.ResetUnread(ctx, e.UserID, e.RoomID)
	default:
		return nil
	}
}

// bumpCounters increments the unread counter of every participant except the
// sender.
func (c *Consumer) bumpCounters(ctx context.Context, e event.Event) error {
	participants, err := c.store.Participants(ctx, e.RoomID)
	if err != nil {
		return err
	}
	for _, p := range participants {
		if p.UserID == e.UserID {
			continue
		}
		if err := c.store.BumpUnread(ctx, p.UserID, e.RoomID, 1); err != nil {
			return err
		}
	}
	return nil
}
