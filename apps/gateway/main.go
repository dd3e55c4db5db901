package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/etalonmax94/CareConnect-sub003/pkg/auth"
	"github.com/etalonmax94/CareConnect-sub003/pkg/config"
	"github.com/etalonmax94/CareConnect-sub003/pkg/event"
	"github.com/etalonmax94/CareConnect-sub003/pkg/snowflake"
	"github.com/etalonmax94/CareConnect-sub003/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Gateway.LogFile != "" {
		f, err := os.OpenFile(cfg.Gateway.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatalf("error opening log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	st, err := store.Connect(cfg.Scylla.Hosts, cfg.Scylla.Keyspace)
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	defer st.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	node, err := snowflake.NewNode(cfg.Gateway.NodeID)
	if err != nil {
		log.Fatalf("Failed to initialize snowflake node: %v", err)
	}

	publisher := event.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer publisher.Close()

	tokens := auth.New(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	presence := NewPresenceTracker(cfg.Chat.PresenceGrace, rdb)
	hub := NewHub(st, node, presence, publisher, cfg.Chat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// Each gateway instance reads every room event, so REST-originated
	// messages reach this instance's live connections.
	reader := event.NewReader(cfg.Kafka.Brokers, cfg.Kafka.Topic, "gateway-"+uuid.NewString())
	go runEventConsumer(ctx, reader, hub)

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, tokens, w, r)
	})

	log.Printf("Gateway Service Starting on %s...", cfg.Gateway.Addr)
	if err := http.ListenAndServe(cfg.Gateway.Addr, nil); err != nil {
		log.Fatal(err)
	}
}
