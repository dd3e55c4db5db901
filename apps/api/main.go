package main

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/etalonmax94/CareConnect-sub003/pkg/auth"
	"github.com/etalonmax94/CareConnect-sub003/pkg/config"
	"github.com/etalonmax94/CareConnect-sub003/pkg/event"
	"github.com/etalonmax94/CareConnect-sub003/pkg/snowflake"
	"github.com/etalonmax94/CareConnect-sub003/pkg/store"
)

// api holds the dependencies of the REST surface. This service is the durable
// counterpart of the gateway: clients fall back to it when no live connection
// is available, and everything it mutates is announced on the room-event bus.
type api struct {
	store  store.Store
	tokens *auth.Tokens
	events *event.Publisher
	node   *snowflake.Node
	redis  *redis.Client
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*") // Allow all for dev, or specific origin
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, PATCH, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	st, err := store.Connect(cfg.Scylla.Hosts, cfg.Scylla.Keyspace)
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	defer st.Close()

	node, err := snowflake.NewNode(cfg.API.NodeID)
	if err != nil {
		log.Fatalf("Failed to initialize snowflake node: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	publisher := event.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer publisher.Close()

	a := &api{
		store:  st,
		tokens: auth.New(cfg.Auth.Secret, cfg.Auth.TokenTTL),
		events: publisher,
		node:   node,
		redis:  rdb,
	}

	log.Printf("API Service Starting on %s...", cfg.API.Addr)
	if err := http.ListenAndServe(cfg.API.Addr, CORSMiddleware(a.routes())); err != nil {
		log.Fatal(err)
	}
}

func (a *api) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", a.handleLogin)

	mux.Handle("GET /rooms", a.requireAuth(a.handleListRooms))
	mux.Handle("POST /rooms", a.requireAuth(a.handleCreateRoom))
	mux.Handle("PATCH /rooms/{id}", a.requireAuth(a.handleUpdateRoom))
	mux.Handle("POST /rooms/{id}/archive", a.requireAuth(a.handleArchiveRoom))
	mux.Handle("POST /rooms/{id}/participants", a.requireAuth(a.handleAddParticipant))
	mux.Handle("DELETE /rooms/{id}/participants/{userId}", a.requireAuth(a.handleRemoveParticipant))
	mux.Handle("PUT /rooms/{id}/participants/{userId}/role", a.requireAuth(a.handleChangeRole))

	mux.Handle("GET /rooms/{id}/messages", a.requireAuth(a.handleHistory))
	mux.Handle("POST /rooms/{id}/messages", a.requireAuth(a.handleSendMessage))
	mux.Handle("PATCH /rooms/{id}/messages/{messageId}", a.requireAuth(a.handleEditMessage))
	mux.Handle("POST /rooms/{id}/read", a.requireAuth(a.handleMarkRead))

	mux.Handle("GET /presence", a.requireAuth(a.handlePresence))
	return mux
}
