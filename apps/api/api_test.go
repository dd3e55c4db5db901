package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etalonmax94/CareConnect-sub003/pkg/auth"
	"github.com/etalonmax94/CareConnect-sub003/pkg/model"
	"github.com/etalonmax94/CareConnect-sub003/pkg/snowflake"
	"github.com/etalonmax94/CareConnect-sub003/pkg/store"
)

func newTestAPI(t *testing.T) (*api, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	a := &api{
		store:  st,
		tokens: auth.New("test-secret", time.Hour),
		node:   node,
	}
	return a, st
}

func bearer(t *testing.T, a *api, userID string, appAdmin bool) string {
	t.Helper()
	token, err := a.tokens.Generate(userID, userID, appAdmin)
	require.NoError(t, err)
	return "Bearer " + token
}

func do(t *testing.T, a *api, method, path, authHeader string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func seedGroupRoom(t *testing.T, st *store.Memory, roomID string, userIDs ...string) {
	t.Helper()
	participants := make([]model.Participant, 0, len(userIDs))
	for i, id := range userIDs {
		role := model.RoleMember
		if i == 0 {
			role = model.RoleAdmin
		}
		participants = append(participants, model.Participant{
			RoomID: roomID, UserID: id, Role: role, StaffName: id, JoinedAt: time.Now(),
		})
	}
	require.NoError(t, st.CreateRoom(context.Background(), model.Room{
		ID: roomID, Type: model.RoomGroup, Name: roomID, CreatedAt: time.Now(),
	}, participants))
}

func TestLogin(t *testing.T) {
	a, st := newTestAPI(t)
	require.NoError(t, st.UpsertStaff(context.Background(), model.Staff{
		UserID: "u1", Name: "Alice", OrgRole: "care_manager", AppAdmin: true,
	}))

	rec := do(t, a, http.MethodPost, "/login", "", map[string]string{"user_id": "u1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LoginResponse
	decodeInto(t, rec, &resp)
	claims, err := a.tokens.Validate(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "Alice", claims.Name)
	assert.True(t, claims.AppAdmin)

	rec = do(t, a, http.MethodPost, "/login", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	a, _ := newTestAPI(t)

	rec := do(t, a, http.MethodGet, "/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, a, http.MethodGet, "/rooms", "Bearer garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateGroupRoom(t *testing.T) {
	a, _ := newTestAPI(t)

	rec := do(t, a, http.MethodPost, "/rooms", bearer(t, a, "u1", false), CreateRoomRequest{
		Type:           "group",
		Name:           "ward one",
		ParticipantIDs: []string{"u2", "u3"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var view RoomView
	decodeInto(t, rec, &view)
	assert.Equal(t, model.RoomGroup, view.Type)
	assert.Equal(t, "ward one", view.Name)
	require.Len(t, view.Participants, 3)

	roles := map[string]model.Role{}
	for _, p := range view.Participants {
		roles[p.UserID] = p.Role
	}
	assert.Equal(t, model.RoleAdmin, roles["u1"], "creator is admin")
	assert.Equal(t, model.RoleMember, roles["u2"])
}

func TestCreateRoomValidation(t *testing.T) {
	a, _ := newTestAPI(t)
	token := bearer(t, a, "u1", false)

	rec := do(t, a, http.MethodPost, "/rooms", token, CreateRoomRequest{Type: "séance"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, a, http.MethodPost, "/rooms", token, CreateRoomRequest{Type: "group"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "group requires a name")

	rec = do(t, a, http.MethodPost, "/rooms", token, CreateRoomRequest{Type: "announcement"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "announcement requires a name")

	rec = do(t, a, http.MethodPost, "/rooms", token, CreateRoomRequest{Type: "client", Name: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "client-linked requires clientId")
}

func TestCreateDirectRoom(t *testing.T) {
	a, _ := newTestAPI(t)

	rec := do(t, a, http.MethodPost, "/rooms", bearer(t, a, "u2", false), CreateRoomRequest{
		Type:           "direct",
		ParticipantIDs: []string{"u1"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var view RoomView
	decodeInto(t, rec, &view)
	assert.Equal(t, "dm:u1:u2", view.ID, "ID is derived from the sorted pair")
	assert.Empty(t, view.Name)
	assert.Len(t, view.Participants, 2)

	// The other peer creating the same pair gets the existing room back.
	rec = do(t, a, http.MethodPost, "/rooms", bearer(t, a, "u1", false), CreateRoomRequest{
		Type:           "direct",
		ParticipantIDs: []string{"u2"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &view)
	assert.Equal(t, "dm:u1:u2", view.ID)

	// More than one peer is not a direct room.
	rec = do(t, a, http.MethodPost, "/rooms", bearer(t, a, "u1", false), CreateRoomRequest{
		Type:           "direct",
		ParticipantIDs: []string{"u2", "u3"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDirectSendCreatesRoomImplicitly(t *testing.T) {
	a, st := newTestAPI(t)

	rec := do(t, a, http.MethodPost, "/rooms/dm:u1:u2/messages", bearer(t, a, "u1", false), SendMessageRequest{Content: "first contact"})
	require.Equal(t, http.StatusCreated, rec.Code)

	room, err := st.Room(context.Background(), "dm:u1:u2")
	require.NoError(t, err)
	assert.Equal(t, model.RoomDirect, room.Type)
	parts, err := st.Participants(context.Background(), "dm:u1:u2")
	require.NoError(t, err)
	assert.Len(t, parts, 2)

	// A stranger cannot conjure a room between two other users.
	rec = do(t, a, http.MethodPost, "/rooms/dm:u3:u4/messages", bearer(t, a, "u1", false), SendMessageRequest{Content: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// An unsorted pair ID is not a valid direct room.
	rec = do(t, a, http.MethodPost, "/rooms/dm:u2:u1/messages", bearer(t, a, "u1", false), SendMessageRequest{Content: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRoomWithRoleFilter(t *testing.T) {
	a, st := newTestAPI(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertStaff(ctx, model.Staff{UserID: "n1", Name: "Nia", OrgRole: "nurse"}))
	require.NoError(t, st.UpsertStaff(ctx, model.Staff{UserID: "n2", Name: "Noor", OrgRole: "nurse"}))
	require.NoError(t, st.UpsertStaff(ctx, model.Staff{UserID: "d1", Name: "Dev", OrgRole: "doctor"}))

	rec := do(t, a, http.MethodPost, "/rooms", bearer(t, a, "u1", false), CreateRoomRequest{
		Type:     "group",
		Name:     "nursing",
		OrgRoles: []string{"nurse"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var view RoomView
	decodeInto(t, rec, &view)
	require.Len(t, view.Participants, 3, "creator plus both nurses")

	names := map[string]string{}
	for _, p := range view.Participants {
		names[p.UserID] = p.StaffName
	}
	assert.Equal(t, "Nia", names["n1"], "staff name snapshotted at join")
	assert.NotContains(t, names, "d1")
}

func TestUpdateRoomAuthorization(t *testing.T) {
	a, st := newTestAPI(t)
	seedGroupRoom(t, st, "r1", "admin1", "member1")

	rec := do(t, a, http.MethodPatch, "/rooms/r1", bearer(t, a, "member1", false), UpdateRoomRequest{Name: "new"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, a, http.MethodPatch, "/rooms/r1", bearer(t, a, "admin1", false), UpdateRoomRequest{Name: "new", Description: "d"})
	require.Equal(t, http.StatusOK, rec.Code)

	room, err := st.Room(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "new", room.Name)

	// An app admin manages rooms they are not a member of.
	rec = do(t, a, http.MethodPatch, "/rooms/r1", bearer(t, a, "outsider", true), UpdateRoomRequest{Name: "newer"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, a, http.MethodPatch, "/rooms/missing", bearer(t, a, "admin1", false), UpdateRoomRequest{Name: "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDirectRoomIsImmutable(t *testing.T) {
	a, st := newTestAPI(t)
	require.NoError(t, st.CreateRoom(context.Background(), model.Room{
		ID: "dm:u1:u2", Type: model.RoomDirect, CreatedAt: time.Now(),
	}, []model.Participant{
		{RoomID: "dm:u1:u2", UserID: "u1", Role: model.RoleAdmin, StaffName: "u1"},
		{RoomID: "dm:u1:u2", UserID: "u2", Role: model.RoleAdmin, StaffName: "u2"},
	}))

	rec := do(t, a, http.MethodPost, "/rooms/dm:u1:u2/participants", bearer(t, a, "u1", false), AddParticipantRequest{UserID: "u3"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, a, http.MethodPatch, "/rooms/dm:u1:u2", bearer(t, a, "u1", true), UpdateRoomRequest{Name: "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "even app admins cannot touch direct rooms")
}

func TestArchiveRoomStopsPosting(t *testing.T) {
	a, st := newTestAPI(t)
	seedGroupRoom(t, st, "r1", "admin1", "member1")

	rec := do(t, a, http.MethodPost, "/rooms/r1/archive", bearer(t, a, "admin1", false), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, a, http.MethodPost, "/rooms/r1/messages", bearer(t, a, "admin1", false), SendMessageRequest{Content: "too late"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestParticipantManagement(t *testing.T) {
	a, st := newTestAPI(t)
	ctx := context.Background()
	seedGroupRoom(t, st, "r1", "admin1", "member1")
	require.NoError(t, st.UpsertStaff(ctx, model.Staff{UserID: "u3", Name: "Cleo", OrgRole: "nurse"}))

	rec := do(t, a, http.MethodPost, "/rooms/r1/participants", bearer(t, a, "admin1", false), AddParticipantRequest{UserID: "u3"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var p model.Participant
	decodeInto(t, rec, &p)
	assert.Equal(t, model.RoleMember, p.Role)
	assert.Equal(t, "Cleo", p.StaffName)

	rec = do(t, a, http.MethodPut, "/rooms/r1/participants/u3/role", bearer(t, a, "admin1", false), ChangeRoleRequest{Role: model.RoleAdmin})
	require.Equal(t, http.StatusOK, rec.Code)
	got, err := st.Participant(ctx, "r1", "u3")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, got.Role)

	rec = do(t, a, http.MethodDelete, "/rooms/r1/participants/member1", bearer(t, a, "admin1", false), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	_, err = st.Participant(ctx, "r1", "member1")
	assert.ErrorIs(t, err, store.ErrNotParticipant)
}

func TestLastAdminGuard(t *testing.T) {
	a, st := newTestAPI(t)
	seedGroupRoom(t, st, "r1", "admin1", "member1")
	token := bearer(t, a, "admin1", false)

	rec := do(t, a, http.MethodDelete, "/rooms/r1/participants/admin1", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "cannot remove the last admin")

	rec = do(t, a, http.MethodPut, "/rooms/r1/participants/admin1/role", token, ChangeRoleRequest{Role: model.RoleMember})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "cannot demote the last admin")

	// Promote a second admin; now the original can step down.
	rec = do(t, a, http.MethodPut, "/rooms/r1/participants/member1/role", token, ChangeRoleRequest{Role: model.RoleAdmin})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, a, http.MethodPut, "/rooms/r1/participants/admin1/role", token, ChangeRoleRequest{Role: model.RoleMember})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSendAndHistory(t *testing.T) {
	a, st := newTestAPI(t)
	seedGroupRoom(t, st, "r1", "u1", "u2")
	token := bearer(t, a, "u1", false)

	for _, content := range []string{"one", "two", "three"} {
		rec := do(t, a, http.MethodPost, "/rooms/r1/messages", token, SendMessageRequest{Content: content})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(t, a, http.MethodGet, "/rooms/r1/messages?limit=2", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page []model.Message
	decodeInto(t, rec, &page)
	require.Len(t, page, 2)
	assert.Equal(t, "three", page[0].Content, "newest first")
	assert.Equal(t, "two", page[1].Content)

	// Page older messages with the exclusive cursor.
	rec = do(t, a, http.MethodGet, "/rooms/r1/messages?before="+jsonNumber(page[1].ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &page)
	require.Len(t, page, 1)
	assert.Equal(t, "one", page[0].Content)

	// Non-members cannot read history.
	rec = do(t, a, http.MethodGet, "/rooms/r1/messages", bearer(t, a, "stranger", false), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, a, http.MethodPost, "/rooms/r1/messages", token, SendMessageRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func jsonNumber(id int64) string {
	data, _ := json.Marshal(id)
	return string(data)
}

func TestEditMessage(t *testing.T) {
	a, st := newTestAPI(t)
	seedGroupRoom(t, st, "r1", "u1", "u2")

	rec := do(t, a, http.MethodPost, "/rooms/r1/messages", bearer(t, a, "u1", false), SendMessageRequest{Content: "orignal"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var msg model.Message
	decodeInto(t, rec, &msg)

	path := "/rooms/r1/messages/" + jsonNumber(msg.ID)

	rec = do(t, a, http.MethodPatch, path, bearer(t, a, "u2", false), EditMessageRequest{Content: "hijacked"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "only the sender may edit")

	rec = do(t, a, http.MethodPatch, path, bearer(t, a, "u1", false), EditMessageRequest{Content: "original"})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &msg)
	assert.Equal(t, "original", msg.Content)
	assert.True(t, msg.IsEdited)

	rec = do(t, a, http.MethodPatch, "/rooms/r1/messages/999", bearer(t, a, "u1", false), EditMessageRequest{Content: "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarkRead(t *testing.T) {
	a, st := newTestAPI(t)
	seedGroupRoom(t, st, "r1", "u1", "u2")
	token := bearer(t, a, "u2", false)

	// Empty room: nothing to mark.
	rec := do(t, a, http.MethodPost, "/rooms/r1/read", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp MarkReadResponse
	decodeInto(t, rec, &resp)
	assert.False(t, resp.Advanced)

	do(t, a, http.MethodPost, "/rooms/r1/messages", bearer(t, a, "u1", false), SendMessageRequest{Content: "hi"})

	rec = do(t, a, http.MethodPost, "/rooms/r1/read", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &resp)
	assert.True(t, resp.Advanced)
	assert.NotZero(t, resp.LastReadID)

	// Marking again at the same watermark is a no-op.
	rec = do(t, a, http.MethodPost, "/rooms/r1/read", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &resp)
	assert.False(t, resp.Advanced)
}

func TestListRoomsWithUnread(t *testing.T) {
	a, st := newTestAPI(t)
	ctx := context.Background()
	seedGroupRoom(t, st, "r1", "u1", "u2")
	seedGroupRoom(t, st, "r2", "u2", "u3")
	require.NoError(t, st.BumpUnread(ctx, "u2", "r1", 3))

	rec := do(t, a, http.MethodGet, "/rooms", bearer(t, a, "u2", false), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var views []RoomView
	decodeInto(t, rec, &views)
	require.Len(t, views, 2)

	unread := map[string]int64{}
	for _, v := range views {
		unread[v.ID] = v.Unread
	}
	assert.Equal(t, int64(3), unread["r1"])
	assert.Zero(t, unread["r2"])

	rec = do(t, a, http.MethodGet, "/rooms", bearer(t, a, "nobody", false), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &views)
	assert.Empty(t, views)
}
