package main

import (
	"net/http"
	"time"

	"github.com/etalonmax94/CareConnect-sub003/pkg/event"
	"github.com/etalonmax94/CareConnect-sub003/pkg/store"
)

type MarkReadResponse struct {
	LastReadID int64 `json:"lastReadId"`
	Advanced   bool  `json:"advanced"`
}

// handleMarkRead moves the caller's read marker to the room's latest message.
// Stale marks are a silent no-op, reported via Advanced.
func (a *api) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if _, _, ok := a.requireMember(w, r, roomID); !ok {
		return
	}
	claims := claimsFrom(r)

	latest, err := a.store.LatestMessageID(r.Context(), roomID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve latest message")
		return
	}
	if latest == 0 {
		writeJSON(w, http.StatusOK, MarkReadResponse{})
		return
	}

	advanced, err := store.MarkRead(r.Context(), a.store, roomID, claims.UserID, latest, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update read marker")
		return
	}
	if advanced {
		a.events.Publish(event.Event{
			Type:   event.RoomRead,
			Origin: event.OriginAPI,
			RoomID: roomID,
			UserID: claims.UserID,
		})
	}
	writeJSON(w, http.StatusOK, MarkReadResponse{LastReadID: latest, Advanced: advanced})
}
