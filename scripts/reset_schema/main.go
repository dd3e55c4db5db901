// Drops every chat table and reapplies the schema. Development tooling only.
package main

import (
	"log"

	"github.com/etalonmax94/CareConnect-sub003/pkg/config"
	"github.com/etalonmax94/CareConnect-sub003/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := store.EnsureKeyspace(cfg.Scylla.Hosts, cfg.Scylla.Keyspace); err != nil {
		log.Fatalf("Failed to create keyspace: %v", err)
	}

	st, err := store.Connect(cfg.Scylla.Hosts, cfg.Scylla.Keyspace)
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	defer st.Close()

	log.Println("Dropping tables...")
	if err := st.DropTables(); err != nil {
		log.Fatalf("Failed to drop tables: %v", err)
	}

	log.Println("Reapplying schema...")
	if err := st.ApplySchema(); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	log.Println("Schema reset successfully.")
}
