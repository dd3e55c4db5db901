// The messaging service owns schema bootstrap and the async unread-counter
// pipeline. It tails the room-event topic and maintains per-user counters so
// the listing endpoints never have to scan message history.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/etalonmax94/CareConnect-sub003/pkg/config"
	"github.com/etalonmax94/CareConnect-sub003/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Schema creation belongs to a migration tool in a bigger deployment;
	// here the counter service does it on startup since it boots first.
	if err := store.EnsureKeyspace(cfg.Scylla.Hosts, cfg.Scylla.Keyspace); err != nil {
		log.Fatalf("Failed to create keyspace: %v", err)
	}

	st, err := store.Connect(cfg.Scylla.Hosts, cfg.Scylla.Keyspace)
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	defer st.Close()

	if err := st.ApplySchema(); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("Shutting down messaging service...")
		cancel()
	}()

	// Stable group ID: the counter pipeline must process each event exactly
	// once across restarts, unlike the gateway's per-instance fan-out readers.
	consumer := NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, "messaging-service-group", st)
	defer consumer.Close()

	log.Println("Messaging Service Starting...")
	consumer.Consume(ctx)
}
