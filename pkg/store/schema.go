package store

// Keyspace DDL, applied by the messaging service on startup and by
// scripts/reset_schema. Counter columns live in their own table because
// Scylla does not mix counters with regular columns.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		room_id text PRIMARY KEY,
		room_type text,
		name text,
		description text,
		client_id text,
		archived boolean,
		created_at timestamp,
		last_message_at timestamp,
		last_message_preview text
	)`,
	`CREATE TABLE IF NOT EXISTS room_participants (
		room_id text,
		user_id text,
		role text,
		staff_name text,
		joined_at timestamp,
		PRIMARY KEY (room_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS user_rooms (
		user_id text,
		room_id text,
		PRIMARY KEY (user_id, room_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		room_id text,
		id bigint,
		sender_id text,
		sender_name text,
		content text,
		created_at timestamp,
		is_edited boolean,
		PRIMARY KEY (room_id, id)
	) WITH CLUSTERING ORDER BY (id DESC)`,
	`CREATE TABLE IF NOT EXISTS read_markers (
		room_id text,
		user_id text,
		last_read_id bigint,
		last_read_at timestamp,
		PRIMARY KEY (room_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS unread_counters (
		user_id text,
		room_id text,
		unread counter,
		PRIMARY KEY (user_id, room_id)
	)`,
	`CREATE TABLE IF NOT EXISTS staff (
		user_id text PRIMARY KEY,
		name text,
		org_role text,
		app_admin boolean
	)`,
	`CREATE TABLE IF NOT EXISTS staff_by_role (
		org_role text,
		user_id text,
		name text,
		app_admin boolean,
		PRIMARY KEY (org_role, user_id)
	)`,
}

// TableNames lists every table the schema owns, for reset tooling.
var TableNames = []string{
	"rooms", "room_participants", "user_rooms", "messages",
	"read_markers", "unread_counters", "staff", "staff_by_role",
}
