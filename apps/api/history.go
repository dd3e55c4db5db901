package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/etalonmax94/CareConnect-sub003/pkg/event"
	"github.com/etalonmax94/CareConnect-sub003/pkg/model"
	"github.com/etalonmax94/CareConnect-sub003/pkg/protocol"
	"github.com/etalonmax94/CareConnect-sub003/pkg/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// requireMember loads the room and the caller's membership row. Non-members
// get 403 regardless of whether the room exists beyond that.
func (a *api) requireMember(w http.ResponseWriter, r *http.Request, roomID string) (model.Room, model.Participant, bool) {
	claims := claimsFrom(r)
	room, err := a.store.Room(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			writeError(w, http.StatusNotFound, "room not found")
		} else {
			writeError(w, http.StatusInternalServerError, "room lookup failed")
		}
		return model.Room{}, model.Participant{}, false
	}
	p, err := a.store.Participant(r.Context(), roomID, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotParticipant) {
			writeError(w, http.StatusForbidden, "not a participant of this room")
		} else {
			writeError(w, http.StatusInternalServerError, "participant lookup failed")
		}
		return model.Room{}, model.Participant{}, false
	}
	return room, p, true
}

// handleHistory pages a room's messages newest-first. ?before is an exclusive
// message ID cursor; omit it to start from the latest.
func (a *api) handleHistory(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if _, _, ok := a.requireMember(w, r, roomID); !ok {
		return
	}

	var beforeID int64
	if v := r.URL.Query().Get("before"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid before cursor")
			return
		}
		beforeID = id
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n > maxHistoryLimit {
			n = maxHistoryLimit
		}
		limit = n
	}

	msgs, err := a.store.Messages(r.Context(), roomID, beforeID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

// handleSendMessage is the durable fallback for clients without a live
// connection. The gateway picks the message up off the event bus and fans it
// out to connected participants. Sending to a not-yet-existing direct room
// creates it, so the first message between two staff needs no setup call.
func (a *api) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if err := a.ensureDirectRoom(r.Context(), roomID, claimsFrom(r).UserID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	room, p, ok := a.requireMember(w, r, roomID)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content cannot be empty")
		return
	}
	if len(req.Content) > protocol.MaxContentLength {
		writeError(w, http.StatusBadRequest, "content too long")
		return
	}
	if !model.CanPost(room, p) {
		writeError(w, http.StatusForbidden, "not authorized to post")
		return
	}

	msg := model.Message{
		ID:         a.node.Generate(),
		RoomID:     roomID,
		SenderID:   p.UserID,
		SenderName: p.StaffName,
		Content:    req.Content,
		CreatedAt:  time.Now(),
	}
	if err := a.store.InsertMessage(r.Context(), msg); err != nil {
		writeError(w, http.StatusInternalServerError, "message not saved")
		return
	}
	if err := a.store.SetLastMessage(r.Context(), roomID, msg.CreatedAt, model.Preview(msg.Content)); err != nil {
		// Listing metadata only; the message itself is durable.
		writeError(w, http.StatusInternalServerError, "failed to update room")
		return
	}

	a.events.Publish(event.Event{
		Type:    event.MessagePosted,
		Origin:  event.OriginAPI,
		RoomID:  roomID,
		UserID:  p.UserID,
		Message: &msg,
	})
	writeJSON(w, http.StatusCreated, msg)
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

// handleEditMessage overwrites a message's content in place. Only the original
// sender may edit.
func (a *api) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if _, _, ok := a.requireMember(w, r, roomID); !ok {
		return
	}
	msgID, err := strconv.ParseInt(r.PathValue("messageId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content cannot be empty")
		return
	}
	if len(req.Content) > protocol.MaxContentLength {
		writeError(w, http.StatusBadRequest, "content too long")
		return
	}

	msg, err := a.store.Message(r.Context(), roomID, msgID)
	if err != nil {
		if errors.Is(err, store.ErrMessageNotFound) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "message lookup failed")
		return
	}
	if msg.SenderID != claimsFrom(r).UserID {
		writeError(w, http.StatusForbidden, "only the sender may edit a message")
		return
	}

	if err := a.store.UpdateMessage(r.Context(), roomID, msgID, req.Content); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to edit message")
		return
	}
	msg.Content = req.Content
	msg.IsEdited = true

	a.events.Publish(event.Event{
		Type:    event.MessageEdited,
		Origin:  event.OriginAPI,
		RoomID:  roomID,
		UserID:  msg.SenderID,
		Message: &msg,
	})
	writeJSON(w, http.StatusOK, msg)
}
