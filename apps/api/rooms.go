package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/etalonmax94/CareConnect-sub003/pkg/event"
	"github.com/etalonmax94/CareConnect-sub003/pkg/model"
	"github.com/etalonmax94/CareConnect-sub003/pkg/store"
)

type CreateRoomRequest struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ClientID    string `json:"clientId"`
	// Explicit membership, and/or a role filter resolved once at creation
	// time against the staff directory. The creator is always included as
	// admin.
	ParticipantIDs []string `json:"participantIds"`
	OrgRoles       []string `json:"orgRoles"`
}

type RoomView struct {
	model.Room
	Participants []model.Participant `json:"participants"`
	Unread       int64               `json:"unread"`
}

func (a *api) handleListRooms(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	rooms, err := a.store.RoomsForUser(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}

	views := make([]RoomView, 0, len(rooms))
	for _, room := range rooms {
		parts, err := a.store.Participants(r.Context(), room.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load participants")
			return
		}
		unread, err := a.store.Unread(r.Context(), claims.UserID, room.ID)
		if err != nil {
			unread = 0
		}
		views = append(views, RoomView{Room: room, Participants: parts, Unread: unread})
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *api) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	roomType := model.RoomType(req.Type)
	switch roomType {
	case model.RoomDirect, model.RoomGroup, model.RoomClientLinked, model.RoomAnnouncement:
	default:
		writeError(w, http.StatusBadRequest, "unknown room type")
		return
	}
	if (roomType == model.RoomGroup || roomType == model.RoomAnnouncement) && req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required for this room type")
		return
	}
	if roomType == model.RoomClientLinked && req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "clientId is required for client-linked rooms")
		return
	}

	memberIDs, err := a.resolveParticipants(r.Context(), claims.UserID, req.ParticipantIDs, req.OrgRoles)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve participants")
		return
	}

	room := model.Room{
		Type:        roomType,
		Name:        req.Name,
		Description: req.Description,
		ClientID:    req.ClientID,
		CreatedAt:   time.Now(),
	}

	if roomType == model.RoomDirect {
		if len(memberIDs) != 2 {
			writeError(w, http.StatusBadRequest, "direct rooms require exactly two participants")
			return
		}
		// Deterministic ID so the same pair always lands in the same room;
		// creating it twice returns the existing one.
		room.ID = directRoomID(memberIDs[0], memberIDs[1])
		room.Name = ""
		if existing, err := a.store.Room(r.Context(), room.ID); err == nil {
			a.writeRoomView(w, r, http.StatusOK, existing, claims.UserID)
			return
		}
	} else {
		room.ID = uuid.NewString()
	}

	participants := make([]model.Participant, 0, len(memberIDs))
	for _, userID := range memberIDs {
		role := model.RoleMember
		if userID == claims.UserID || roomType == model.RoomDirect {
			role = model.RoleAdmin
		}
		p, err := a.participantFor(r.Context(), room.ID, userID, role)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to snapshot participant")
			return
		}
		participants = append(participants, p)
	}

	if err := a.store.CreateRoom(r.Context(), room, participants); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	a.events.Publish(event.Event{Type: event.RoomCreated, Origin: event.OriginAPI, RoomID: room.ID, UserID: claims.UserID})
	a.writeRoomView(w, r, http.StatusCreated, room, claims.UserID)
}

// resolveParticipants merges the explicit ID list with a one-shot role-filter
// snapshot. The filter does not track staff who gain the role later.
func (a *api) resolveParticipants(ctx context.Context, creatorID string, ids, orgRoles []string) ([]string, error) {
	set := map[string]bool{creatorID: true}
	ordered := []string{creatorID}
	for _, id := range ids {
		if id != "" && !set[id] {
			set[id] = true
			ordered = append(ordered, id)
		}
	}
	if len(orgRoles) > 0 {
		staff, err := a.store.StaffByRoles(ctx, orgRoles)
		if err != nil {
			return nil, err
		}
		for _, st := range staff {
			if !set[st.UserID] {
				set[st.UserID] = true
				ordered = append(ordered, st.UserID)
			}
		}
	}
	return ordered, nil
}

// participantFor builds a membership row with the staff name snapshotted at
// join time.
func (a *api) participantFor(ctx context.Context, roomID, userID string, role model.Role) (model.Participant, error) {
	name := userID
	st, err := a.store.Staff(ctx, userID)
	if err == nil {
		name = st.Name
	} else if !errors.Is(err, store.ErrStaffNotFound) {
		return model.Participant{}, err
	}
	return model.Participant{
		RoomID:    roomID,
		UserID:    userID,
		Role:      role,
		StaffName: name,
		JoinedAt:  time.Now(),
	}, nil
}

func directRoomID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("dm:%s:%s", a, b)
}

// ensureDirectRoom creates the direct room a "dm:a:b" ID names, if it does not
// exist yet and the caller is one of the pair. The first direct message between
// two staff therefore needs no prior create-room call. Non-direct IDs pass
// through untouched.
func (a *api) ensureDirectRoom(ctx context.Context, roomID, callerID string) error {
	parts := strings.SplitN(roomID, ":", 3)
	if len(parts) != 3 || parts[0] != "dm" || parts[1] == "" || parts[2] == "" {
		return nil
	}
	if callerID != parts[1] && callerID != parts[2] {
		return nil
	}
	if roomID != directRoomID(parts[1], parts[2]) {
		return nil
	}
	if _, err := a.store.Room(ctx, roomID); !errors.Is(err, store.ErrRoomNotFound) {
		return err
	}

	room := model.Room{ID: roomID, Type: model.RoomDirect, CreatedAt: time.Now()}
	participants := make([]model.Participant, 0, 2)
	for _, userID := range parts[1:] {
		p, err := a.participantFor(ctx, roomID, userID, model.RoleAdmin)
		if err != nil {
			return err
		}
		participants = append(participants, p)
	}
	if err := a.store.CreateRoom(ctx, room, participants); err != nil {
		return err
	}
	a.events.Publish(event.Event{Type: event.RoomCreated, Origin: event.OriginAPI, RoomID: roomID, UserID: callerID})
	return nil
}

func (a *api) writeRoomView(w http.ResponseWriter, r *http.Request, status int, room model.Room, userID string) {
	parts, err := a.store.Participants(r.Context(), room.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load participants")
		return
	}
	unread, err := a.store.Unread(r.Context(), userID, room.ID)
	if err != nil {
		unread = 0
	}
	writeJSON(w, status, RoomView{Room: room, Participants: parts, Unread: unread})
}

// requireManage loads the room and checks the caller may administer it.
func (a *api) requireManage(w http.ResponseWriter, r *http.Request, roomID string) (model.Room, bool) {
	claims := claimsFrom(r)
	room, err := a.store.Room(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			writeError(w, http.StatusNotFound, "room not found")
		} else {
			writeError(w, http.StatusInternalServerError, "room lookup failed")
		}
		return model.Room{}, false
	}

	p, err := a.store.Participant(r.Context(), roomID, claims.UserID)
	if err != nil && !errors.Is(err, store.ErrNotParticipant) {
		writeError(w, http.StatusInternalServerError, "participant lookup failed")
		return model.Room{}, false
	}
	if !model.CanManage(room, p, claims.AppAdmin) {
		writeError(w, http.StatusForbidden, "not allowed to manage this room")
		return model.Room{}, false
	}
	return room, true
}

type UpdateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (a *api) handleUpdateRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	room, ok := a.requireManage(w, r, roomID)
	if !ok {
		return
	}

	var req UpdateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" && (room.Type == model.RoomGroup || room.Type == model.RoomAnnouncement) {
		writeError(w, http.StatusBadRequest, "name cannot be empty")
		return
	}

	if err := a.store.UpdateRoomMeta(r.Context(), roomID, req.Name, req.Description); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update room")
		return
	}
	a.events.Publish(event.Event{Type: event.RoomUpdated, Origin: event.OriginAPI, RoomID: roomID})
	w.WriteHeader(http.StatusOK)
}

func (a *api) handleArchiveRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if _, ok := a.requireManage(w, r, roomID); !ok {
		return
	}
	if err := a.store.ArchiveRoom(r.Context(), roomID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to archive room")
		return
	}
	a.events.Publish(event.Event{Type: event.RoomArchived, Origin: event.OriginAPI, RoomID: roomID})
	w.WriteHeader(http.StatusOK)
}

type AddParticipantRequest struct {
	UserID string     `json:"userId"`
	Role   model.Role `json:"role"`
}

func (a *api) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if _, ok := a.requireManage(w, r, roomID); !ok {
		return
	}

	var req AddParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	role := req.Role
	if role == "" {
		role = model.RoleMember
	}
	if role != model.RoleAdmin && role != model.RoleMember {
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}

	p, err := a.participantFor(r.Context(), roomID, req.UserID, role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to snapshot participant")
		return
	}
	if err := a.store.AddParticipant(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add participant")
		return
	}
	a.events.Publish(event.Event{Type: event.ParticipantAdded, Origin: event.OriginAPI, RoomID: roomID, UserID: req.UserID, Role: role})
	writeJSON(w, http.StatusCreated, p)
}

func (a *api) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	userID := r.PathValue("userId")
	if _, ok := a.requireManage(w, r, roomID); !ok {
		return
	}

	if ok, err := a.wouldLoseLastAdmin(r.Context(), roomID, userID, model.RoleMember); err != nil {
		writeError(w, http.StatusInternalServerError, "participant lookup failed")
		return
	} else if ok {
		writeError(w, http.StatusBadRequest, "room must retain at least one admin")
		return
	}

	if err := a.store.RemoveParticipant(r.Context(), roomID, userID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to remove participant")
		return
	}
	a.events.Publish(event.Event{Type: event.ParticipantRemoved, Origin: event.OriginAPI, RoomID: roomID, UserID: userID})
	w.WriteHeader(http.StatusOK)
}

type ChangeRoleRequest struct {
	Role model.Role `json:"role"`
}

func (a *api) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	userID := r.PathValue("userId")
	if _, ok := a.requireManage(w, r, roomID); !ok {
		return
	}

	var req ChangeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Role != model.RoleAdmin && req.Role != model.RoleMember {
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}

	if req.Role == model.RoleMember {
		if ok, err := a.wouldLoseLastAdmin(r.Context(), roomID, userID, req.Role); err != nil {
			writeError(w, http.StatusInternalServerError, "participant lookup failed")
			return
		} else if ok {
			writeError(w, http.StatusBadRequest, "room must retain at least one admin")
			return
		}
	}

	if err := a.store.SetRole(r.Context(), roomID, userID, req.Role); err != nil {
		if errors.Is(err, store.ErrNotParticipant) {
			writeError(w, http.StatusNotFound, "participant not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to change role")
		return
	}
	a.events.Publish(event.Event{Type: event.RoleChanged, Origin: event.OriginAPI, RoomID: roomID, UserID: userID, Role: req.Role})
	w.WriteHeader(http.StatusOK)
}

// wouldLoseLastAdmin reports whether removing or demoting userID leaves the
// room with no admin.
func (a *api) wouldLoseLastAdmin(ctx context.Context, roomID, userID string, newRole model.Role) (bool, error) {
	parts, err := a.store.Participants(ctx, roomID)
	if err != nil {
		return false, err
	}
	admins := 0
	target := false
	for _, p := range parts {
		if p.Role == model.RoleAdmin {
			admins++
			if p.UserID == userID {
				target = true
			}
		}
	}
	return target && admins == 1 && newRole != model.RoleAdmin, nil
}
