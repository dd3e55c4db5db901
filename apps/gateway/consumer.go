package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/etalonmax94/CareConnect-sub003/pkg/event"
)

// runEventConsumer applies room events published by the api service: cache
// invalidation for room/membership mutations, live fan-out for messages and
// reads that arrived through the REST fallback. Events the gateway itself
// published are skipped; they were applied synchronously.
func runEventConsumer(ctx context.Context, reader *kafka.Reader, hub *Hub) {
	defer reader.Close()
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Gateway consumer error: %v. Retrying in 1s...", err)
			time.Sleep(time.Second)
			continue
		}

		var e event.Event
		if err := json.Unmarshal(m.Value, &e); err != nil {
			log.Printf("Failed to unmarshal room event: %v", err)
			continue
		}

		switch e.Type {
		case event.RoomCreated, event.RoomUpdated, event.RoomArchived,
			event.ParticipantAdded, event.ParticipantRemoved, event.RoleChanged:
			hub.roster.Invalidate(e.RoomID)
		case event.MessagePosted, event.MessageEdited, event.RoomRead:
			if e.Origin == event.OriginGateway {
				continue
			}
			select {
			case hub.apply <- e:
			case <-ctx.Done():
				return
			}
		}
	}
}
