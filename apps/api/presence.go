package main

import (
	"net/http"
)

const (
	onlineSetKey    = "presence:online"
	lastSeenHashKey = "presence:last_seen"
)

type PresenceResponse struct {
	Online   []string          `json:"online"`
	LastSeen map[string]string `json:"lastSeen"`
}

// handlePresence returns the gateway-maintained presence mirror: who is online
// right now, and last-seen timestamps for everyone who has been.
func (a *api) handlePresence(w http.ResponseWriter, r *http.Request) {
	online, err := a.redis.SMembers(r.Context(), onlineSetKey).Result()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "presence lookup failed")
		return
	}
	lastSeen, err := a.redis.HGetAll(r.Context(), lastSeenHashKey).Result()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "presence lookup failed")
		return
	}
	if online == nil {
		online = []string{}
	}
	writeJSON(w, http.StatusOK, PresenceResponse{Online: online, LastSeen: lastSeen})
}
