package main

import "time"

// typingTable holds per-room ephemeral typing state. It is owned by the hub
// loop and never locked: every mutation happens on the single goroutine that
// also orders broadcasts, so typing edges can never race message fan-out.
type typingTable struct {
	timeout time.Duration
	rooms   map[string]map[string]time.Time // roomID -> userID -> expiry
}

type typingEntry struct {
	roomID string
	userID string
}

func newTypingTable(timeout time.Duration) *typingTable {
	return &typingTable{timeout: timeout, rooms: make(map[string]map[string]time.Time)}
}

// set inserts or refreshes an entry and reports whether this was a
// false-to-true edge. Refreshes of a live entry are silent.
func (t *typingTable) set(roomID, userID string, now time.Time) bool {
	users := t.rooms[roomID]
	if users == nil {
		users = make(map[string]time.Time)
		t.rooms[roomID] = users
	}
	_, active := users[userID]
	users[userID] = now.Add(t.timeout)
	return !active
}

// clear removes an entry and reports whether one existed.
func (t *typingTable) clear(roomID, userID string) bool {
	users, ok := t.rooms[roomID]
	if !ok {
		return false
	}
	if _, active := users[userID]; !active {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.rooms, roomID)
	}
	return true
}

// sweep removes entries whose hard expiry has passed and returns them, so the
// hub can broadcast the true-to-false edge even when the stop event was lost.
func (t *typingTable) sweep(now time.Time) []typingEntry {
	var expired []typingEntry
	for roomID, users := range t.rooms {
		for userID, deadline := range users {
			if now.After(deadline) {
				delete(users, userID)
				expired = append(expired, typingEntry{roomID: roomID, userID: userID})
			}
		}
		if len(users) == 0 {
			delete(t.rooms, roomID)
		}
	}
	return expired
}
