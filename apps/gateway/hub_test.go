package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etalonmax94/CareConnect-sub003/pkg/config"
	"github.com/etalonmax94/CareConnect-sub003/pkg/event"
	"github.com/etalonmax94/CareConnect-sub003/pkg/model"
	"github.com/etalonmax94/CareConnect-sub003/pkg/protocol"
	"github.com/etalonmax94/CareConnect-sub003/pkg/snowflake"
	"github.com/etalonmax94/CareConnect-sub003/pkg/store"
)

// Tests drive the hub's handlers directly on the test goroutine, the same
// single-threaded discipline Run enforces in production.

func newTestHub(t *testing.T, st store.Store) *Hub {
	t.Helper()
	cfg := config.ChatConfig{
		PresenceGrace: 20 * time.Millisecond,
		TypingTimeout: 6 * time.Second,
		TypingSweep:   time.Second,
		SendQueue:     16,
		DedupWindow:   4,
	}
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewHub(st, node, NewPresenceTracker(cfg.PresenceGrace, nil), nil, cfg)
}

func newTestStore(t *testing.T) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	require.NoError(t, m.CreateRoom(context.Background(), model.Room{
		ID: "r1", Type: model.RoomGroup, Name: "ward one", CreatedAt: time.Now(),
	}, []model.Participant{
		{RoomID: "r1", UserID: "u1", Role: model.RoleAdmin, StaffName: "Alice"},
		{RoomID: "r1", UserID: "u2", Role: model.RoleMember, StaffName: "Bob"},
	}))
	return m
}

func connect(h *Hub, id, userID string) *Client {
	c := &Client{hub: h, send: make(chan []byte, 16), id: id, userID: userID}
	h.handleRegister(c)
	return c
}

// frames drains and decodes everything queued for a connection.
func frames(t *testing.T, c *Client) []protocol.Outbound {
	t.Helper()
	var out []protocol.Outbound
	for {
		select {
		case data := <-c.send:
			var f protocol.Outbound
			require.NoError(t, json.Unmarshal(data, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func kinds(fs []protocol.Outbound) []protocol.Kind {
	out := make([]protocol.Kind, len(fs))
	for i, f := range fs {
		out[i] = f.Type
	}
	return out
}

func TestMessageFanOut(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	h := newTestHub(t, st)

	sender := connect(h, "c1", "u1")
	peer := connect(h, "c2", "u2")
	peerTab := connect(h, "c3", "u2") // second device of the same user
	drain(sender)
	drain(peer)
	drain(peerTab)

	h.handleInbound(ctx, inboundFrame{client: sender, evt: protocol.SendMessage{RoomID: "r1", Content: "hello ward"}})

	// Sender sees the message and its ack.
	got := frames(t, sender)
	require.Equal(t, []protocol.Kind{protocol.KindMessage, protocol.KindAck}, kinds(got))
	require.NotNil(t, got[0].Message)
	assert.Equal(t, "hello ward", got[0].Message.Content)
	assert.Equal(t, "Alice", got[0].Message.SenderName)

	// Every connection of every participant gets the message.
	for _, c := range []*Client{peer, peerTab} {
		got := frames(t, c)
		require.Equal(t, []protocol.Kind{protocol.KindMessage}, kinds(got))
		assert.Equal(t, "hello ward", got[0].Message.Content)
	}

	// Persisted before fan-out, with listing metadata denormalized.
	msgs, err := st.Messages(ctx, "r1", 0, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	room, err := st.Room(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "hello ward", room.LastMessagePreview)
	assert.False(t, room.LastMessageAt.IsZero())
}

func TestMessageOrderingPerRoom(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	h := newTestHub(t, st)

	sender := connect(h, "c1", "u1")
	peer := connect(h, "c2", "u2")
	drain(sender)
	drain(peer)

	for _, content := range []string{"one", "two", "three"} {
		h.handleInbound(ctx, inboundFrame{client: sender, evt: protocol.SendMessage{RoomID: "r1", Content: content}})
	}

	var contents []string
	var lastID int64
	for _, f := range frames(t, peer) {
		require.Equal(t, protocol.KindMessage, f.Type)
		require.Greater(t, f.Message.ID, lastID, "delivery order matches ID order")
		lastID = f.Message.ID
		contents = append(contents, f.Message.Content)
	}
	assert.Equal(t, []string{"one", "two", "three"}, contents)
}

func TestErrorsGoToOriginOnly(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	h := newTestHub(t, st)

	sender := connect(h, "c1", "u1")
	peer := connect(h, "c2", "u2")
	stranger := connect(h, "c3", "u9")
	drain(sender)
	drain(peer)
	drain(stranger)

	// Unknown room.
	h.handleInbound(ctx, inboundFrame{client: sender, evt: protocol.SendMessage{RoomID: "nope", Content: "x"}})
	got := frames(t, sender)
	require.Equal(t, []protocol.Kind{protocol.KindError}, kinds(got))
	assert.Equal(t, "unknown room", got[0].Reason)

	// Non-participant.
	h.handleInbound(ctx, inboundFrame{client: stranger, evt: protocol.SendMessage{RoomID: "r1", Content: "x"}})
	got = frames(t, stranger)
	require.Equal(t, []protocol.Kind{protocol.KindError}, kinds(got))
	assert.Equal(t, "not a participant of this room", got[0].Reason)

	// Malformed frames ride the inbound channel as errors.
	h.handleInbound(ctx, inboundFrame{client: sender, err: protocol.ErrEmptyContent})
	got = frames(t, sender)
	require.Equal(t, []protocol.Kind{protocol.KindError}, kinds(got))

	// No bystander saw any of it.
	assert.Empty(t, frames(t, peer))
	msgs, err := st.Messages(ctx, "r1", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestAnnouncementPostingDenied(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.CreateRoom(ctx, model.Room{
		ID: "ann", Type: model.RoomAnnouncement, Name: "org news", CreatedAt: time.Now(),
	}, []model.Participant{
		{RoomID: "ann", UserID: "u1", Role: model.RoleAdmin, StaffName: "Alice"},
		{RoomID: "ann", UserID: "u2", Role: model.RoleMember, StaffName: "Bob"},
	}))
	h := newTestHub(t, st)

	admin := connect(h, "c1", "u1")
	member := connect(h, "c2", "u2")
	drain(admin)
	drain(member)

	h.handleInbound(ctx, inboundFrame{client: member, evt: protocol.SendMessage{RoomID: "ann", Content: "hi"}})
	got := frames(t, member)
	require.Equal(t, []protocol.Kind{protocol.KindError}, kinds(got))
	assert.Equal(t, "not authorized to post", got[0].Reason)
	assert.Empty(t, frames(t, admin))

	h.handleInbound(ctx, inboundFrame{client: admin, evt: protocol.SendMessage{RoomID: "ann", Content: "announcement"}})
	require.Equal(t, []protocol.Kind{protocol.KindMessage, protocol.KindAck}, kinds(frames(t, admin)))
	require.Equal(t, []protocol.Kind{protocol.KindMessage}, kinds(frames(t, member)))
}

func TestArchivedRoomRejectsPosts(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.ArchiveRoom(ctx, "r1"))
	h := newTestHub(t, st)

	sender := connect(h, "c1", "u1")
	drain(sender)

	h.handleInbound(ctx, inboundFrame{client: sender, evt: protocol.SendMessage{RoomID: "r1", Content: "x"}})
	got := frames(t, sender)
	require.Equal(t, []protocol.Kind{protocol.KindError}, kinds(got))
	assert.Equal(t, "room is archived", got[0].Reason)
}

func TestDuplicateTokenReAcksWithoutResend(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	h := newTestHub(t, st)

	sender := connect(h, "c1", "u1")
	peer := connect(h, "c2", "u2")
	drain(sender)
	drain(peer)

	evt := protocol.SendMessage{RoomID: "r1", Content: "once", Token: "tok-1"}
	h.handleInbound(ctx, inboundFrame{client: sender, evt: evt})
	first := frames(t, sender)
	require.Equal(t, []protocol.Kind{protocol.KindMessage, protocol.KindAck}, kinds(first))
	drain(peer)

	// Retry after a dropped ack.
	h.handleInbound(ctx, inboundFrame{client: sender, evt: evt})
	retry := frames(t, sender)
	require.Equal(t, []protocol.Kind{protocol.KindAck}, kinds(retry))
	assert.Equal(t, first[1].Message.ID, retry[0].Message.ID, "same message acked again")

	assert.Empty(t, frames(t, peer), "no duplicate fan-out")
	msgs, err := st.Messages(ctx, "r1", 0, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestTypingBroadcastEdgesOnly(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	h := newTestHub(t, st)

	typer := connect(h, "c1", "u1")
	peer := connect(h, "c2", "u2")
	drain(typer)
	drain(peer)

	h.handleInbound(ctx, inboundFrame{client: typer, evt: protocol.SetTyping{RoomID: "r1", IsTyping: true}})
	h.handleInbound(ctx, inboundFrame{client: typer, evt: protocol.SetTyping{RoomID: "r1", IsTyping: true}})
	h.handleInbound(ctx, inboundFrame{client: typer, evt: protocol.SetTyping{RoomID: "r1", IsTyping: true}})

	got := frames(t, peer)
	require.Len(t, got, 1, "refreshes are silent")
	assert.Equal(t, protocol.KindTyping, got[0].Type)
	assert.Equal(t, "u1", got[0].UserID)
	require.NotNil(t, got[0].IsTyping)
	assert.True(t, *got[0].IsTyping)

	h.handleInbound(ctx, inboundFrame{client: typer, evt: protocol.SetTyping{RoomID: "r1", IsTyping: false}})
	h.handleInbound(ctx, inboundFrame{client: typer, evt: protocol.SetTyping{RoomID: "r1", IsTyping: false}})

	got = frames(t, peer)
	require.Len(t, got, 1, "only the stop edge broadcasts")
	assert.False(t, *got[0].IsTyping)

	assert.Empty(t, frames(t, typer), "origin never sees its own typing events")
}

func TestTypingSweepEmitsStop(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	h := newTestHub(t, st)

	typer := connect(h, "c1", "u1")
	peer := connect(h, "c2", "u2")
	drain(typer)
	drain(peer)

	h.handleInbound(ctx, inboundFrame{client: typer, evt: protocol.SetTyping{RoomID: "r1", IsTyping: true}})
	drain(peer)

	// The client vanished without sending a stop; the sweep covers it.
	h.sweepTyping(time.Now().Add(h.cfg.TypingTimeout + time.Second))

	got := frames(t, peer)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.KindTyping, got[0].Type)
	require.NotNil(t, got[0].IsTyping)
	assert.False(t, *got[0].IsTyping)
	assert.Empty(t, frames(t, typer))
}

func TestReadMarkerBroadcast(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	h := newTestHub(t, st)

	sender := connect(h, "c1", "u1")
	reader := connect(h, "c2", "u2")
	drain(sender)
	drain(reader)

	h.handleInbound(ctx, inboundFrame{client: sender, evt: protocol.SendMessage{RoomID: "r1", Content: "read me"}})
	drain(sender)
	drain(reader)

	h.handleInbound(ctx, inboundFrame{client: reader, evt: protocol.MarkRead{RoomID: "r1"}})

	got := frames(t, sender)
	require.Equal(t, []protocol.Kind{protocol.KindRead}, kinds(got))
	assert.Equal(t, "u2", got[0].UserID)

	marker, ok, err := st.ReadMarker(ctx, "r1", "u2")
	require.NoError(t, err)
	require.True(t, ok)
	latest, err := st.LatestMessageID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, latest, marker.LastReadID)

	// A repeat mark at the same watermark is a silent no-op.
	drain(reader)
	h.handleInbound(ctx, inboundFrame{client: reader, evt: protocol.MarkRead{RoomID: "r1"}})
	assert.Empty(t, frames(t, sender))
}

func TestReadMarkerEmptyRoomIsNoOp(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	h := newTestHub(t, st)

	reader := connect(h, "c1", "u1")
	drain(reader)

	h.handleInbound(ctx, inboundFrame{client: reader, evt: protocol.MarkRead{RoomID: "r1"}})
	assert.Empty(t, frames(t, reader))

	_, ok, err := st.ReadMarker(ctx, "r1", "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPresenceLifecycle(t *testing.T) {
	st := newTestStore(t)
	h := newTestHub(t, st)

	watcher := connect(h, "c1", "u2")
	drain(watcher)

	// First connection of a user announces online.
	conn1 := connect(h, "c2", "u1")
	got := frames(t, watcher)
	require.Equal(t, []protocol.Kind{protocol.KindPresence}, kinds(got))
	assert.Equal(t, "u1", got[0].UserID)
	assert.Equal(t, "online", got[0].Status)

	// A second connection of the same user is silent.
	conn2 := connect(h, "c3", "u1")
	assert.Empty(t, frames(t, watcher))

	// Closing one of two connections is silent.
	h.handleUnregister(conn1)
	assert.Empty(t, frames(t, watcher))

	// Closing the last starts the grace timer; only its expiry goes offline.
	h.handleUnregister(conn2)
	assert.Empty(t, frames(t, watcher))

	select {
	case userID := <-h.presence.Expired():
		h.handlePresenceExpired(userID)
	case <-time.After(time.Second):
		t.Fatal("grace timer never fired")
	}

	got = frames(t, watcher)
	require.Equal(t, []protocol.Kind{protocol.KindPresence}, kinds(got))
	assert.Equal(t, "offline", got[0].Status)
}

func TestReconnectWithinGraceIsSilent(t *testing.T) {
	st := newTestStore(t)
	h := newTestHub(t, st)

	watcher := connect(h, "c1", "u2")
	conn := connect(h, "c2", "u1")
	drain(watcher)

	h.handleUnregister(conn)
	// Reconnect before the grace timer fires.
	reconnected := connect(h, "c3", "u1")
	_ = reconnected

	// Even if the timer had squeezed a fire in, the registry recheck drops it.
	select {
	case userID := <-h.presence.Expired():
		h.handlePresenceExpired(userID)
	case <-time.After(50 * time.Millisecond):
	}

	assert.Empty(t, frames(t, watcher), "no offline and no re-online for a blip")
}

func TestSlowConnectionDropped(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	h := newTestHub(t, st)

	sender := connect(h, "c1", "u1")
	slow := &Client{hub: h, send: make(chan []byte, 1), id: "c2", userID: "u2"}
	h.handleRegister(slow)
	drain(sender)

	// Fill the queue, then force one more frame at it.
	h.handleInbound(ctx, inboundFrame{client: sender, evt: protocol.SendMessage{RoomID: "r1", Content: "first"}})
	h.handleInbound(ctx, inboundFrame{client: sender, evt: protocol.SendMessage{RoomID: "r1", Content: "second"}})

	_, stillRegistered := h.userConns["u2"]
	assert.False(t, stillRegistered, "stalled connection removed from registry")

	// The sender is unaffected.
	h.handleInbound(ctx, inboundFrame{client: sender, evt: protocol.SendMessage{RoomID: "r1", Content: "third"}})
	got := frames(t, sender)
	assert.NotEmpty(t, got)
}

func TestApplyFansOutRESTOriginatedEvents(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	h := newTestHub(t, st)

	peer := connect(h, "c1", "u2")
	drain(peer)

	msg := model.Message{ID: 7, RoomID: "r1", SenderID: "u1", SenderName: "Alice", Content: "via rest", CreatedAt: time.Now()}
	h.handleApply(ctx, event.Event{Type: event.MessagePosted, Origin: event.OriginAPI, RoomID: "r1", UserID: "u1", Message: &msg})

	got := frames(t, peer)
	require.Equal(t, []protocol.Kind{protocol.KindMessage}, kinds(got))
	assert.Equal(t, "via rest", got[0].Message.Content)

	h.handleApply(ctx, event.Event{Type: event.RoomRead, Origin: event.OriginAPI, RoomID: "r1", UserID: "u1"})
	got = frames(t, peer)
	require.Equal(t, []protocol.Kind{protocol.KindRead}, kinds(got))
	assert.Equal(t, "u1", got[0].UserID)
}
