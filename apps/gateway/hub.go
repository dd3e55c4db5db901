package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/etalonmax94/CareConnect-sub003/pkg/config"
	"github.com/etalonmax94/CareConnect-sub003/pkg/event"
	"github.com/etalonmax94/CareConnect-sub003/pkg/model"
	"github.com/etalonmax94/CareConnect-sub003/pkg/protocol"
	"github.com/etalonmax94/CareConnect-sub003/pkg/snowflake"
	"github.com/etalonmax94/CareConnect-sub003/pkg/store"
)

// Error event reasons, part of the wire contract.
const (
	reasonUnknownRoom    = "unknown room"
	reasonNotParticipant = "not a participant of this room"
	reasonNotAuthorized  = "not authorized to post"
	reasonRoomArchived   = "room is archived"
	reasonNotSaved       = "message not saved"
)

// inboundFrame carries a decoded client event, or the decode error, into the
// hub loop. Errors travel the same path so every write to a client's send
// channel happens on the hub goroutine.
type inboundFrame struct {
	client *Client
	evt    protocol.Inbound
	err    error
}

// Hub owns all shared mutable state of the live core: the connection registry,
// the typing table, the dedup window, and the broadcast order. A single
// goroutine (Run) serializes every mutation, which is what gives a room its
// delivery ordering without a global lock.
type Hub struct {
	store    store.Store
	roster   *Roster
	presence *PresenceTracker
	typing   *typingTable
	dedup    *dedupWindow
	node     *snowflake.Node
	events   *event.Publisher
	cfg      config.ChatConfig

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame
	apply      chan event.Event

	userConns map[string]map[*Client]bool
}

func NewHub(s store.Store, node *snowflake.Node, presence *PresenceTracker, events *event.Publisher, cfg config.ChatConfig) *Hub {
	return &Hub{
		store:      s,
		roster:     NewRoster(s),
		presence:   presence,
		typing:     newTypingTable(cfg.TypingTimeout),
		dedup:      newDedupWindow(cfg.DedupWindow),
		node:       node,
		events:     events,
		cfg:        cfg,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame, 64),
		apply:      make(chan event.Event, 64),
		userConns:  make(map[string]map[*Client]bool),
	}
}

// Run is the hub loop. It exits when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	sweep := time.NewTicker(h.cfg.TypingSweep)
	defer sweep.Stop()

	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		case frame := <-h.inbound:
			h.handleInbound(ctx, frame)
		case e := <-h.apply:
			h.handleApply(ctx, e)
		case userID := <-h.presence.Expired():
			h.handlePresenceExpired(userID)
		case now := <-sweep.C:
			h.sweepTyping(now)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) handleRegister(c *Client) {
	conns := h.userConns[c.userID]
	if conns == nil {
		conns = make(map[*Client]bool)
		h.userConns[c.userID] = conns
	}
	conns[c] = true
	log.Printf("Client registered: %s (conn %s, %d total)", c.userID, c.id, len(conns))

	if len(conns) == 1 {
		// Reconnect within the grace window: cancel the pending offline and
		// stay silent, so a blip never flaps presence either direction.
		if !h.presence.CancelOffline(c.userID) {
			h.presence.MarkOnline(c.userID)
			h.broadcastAll(protocol.NewPresence(c.userID, "online").Encode())
		}
	}
}

func (h *Hub) handleUnregister(c *Client) {
	if !h.removeClient(c) {
		return
	}
	log.Printf("Client unregistered: %s (conn %s)", c.userID, c.id)
}

// removeClient detaches a connection from the registry and starts the offline
// grace timer when it was the user's last. Reports whether the connection was
// still registered (it may already have been dropped for falling behind).
func (h *Hub) removeClient(c *Client) bool {
	conns, ok := h.userConns[c.userID]
	if !ok || !conns[c] {
		return false
	}
	delete(conns, c)
	close(c.send)
	if len(conns) == 0 {
		delete(h.userConns, c.userID)
		h.presence.ScheduleOffline(c.userID)
	}
	return true
}

func (h *Hub) handlePresenceExpired(userID string) {
	// The timer may have fired just as a reconnect landed; the registry is
	// authoritative.
	if len(h.userConns[userID]) > 0 {
		return
	}
	h.presence.ConfirmOffline(userID)
	h.dedup.forget(userID)
	h.broadcastAll(protocol.NewPresence(userID, "offline").Encode())
}

func (h *Hub) handleInbound(ctx context.Context, frame inboundFrame) {
	if frame.err != nil {
		h.sendTo(frame.client, protocol.NewError(frame.err.Error()).Encode())
		return
	}
	switch evt := frame.evt.(type) {
	case protocol.SendMessage:
		h.handleMessage(ctx, frame.client, evt)
	case protocol.SetTyping:
		h.handleTyping(ctx, frame.client, evt)
	case protocol.MarkRead:
		h.handleRead(ctx, frame.client, evt)
	}
}

func (h *Hub) handleMessage(ctx context.Context, c *Client, evt protocol.SendMessage) {
	room, p, ok := h.authorize(ctx, c, evt.RoomID)
	if !ok {
		return
	}
	if !model.CanPost(room, p) {
		if room.Archived {
			h.sendTo(c, protocol.NewError(reasonRoomArchived).Encode())
		} else {
			h.sendTo(c, protocol.NewError(reasonNotAuthorized).Encode())
		}
		return
	}

	// Retry of a send we already applied: re-ack, do not persist again.
	if evt.Token != "" {
		if id, seen := h.dedup.lookup(c.userID, evt.Token); seen {
			if msg, err := h.store.Message(ctx, evt.RoomID, id); err == nil {
				h.sendTo(c, protocol.NewAck(msg).Encode())
			}
			return
		}
	}

	msg := model.Message{
		ID:         h.node.Generate(),
		RoomID:     evt.RoomID,
		SenderID:   c.userID,
		SenderName: p.StaffName,
		Content:    evt.Content,
		CreatedAt:  time.Now(),
	}

	// Persist first: a message that fans out live must exist durably.
	if err := h.store.InsertMessage(ctx, msg); err != nil {
		log.Printf("Failed to persist message in room %s: %v", msg.RoomID, err)
		h.sendTo(c, protocol.NewError(reasonNotSaved).Encode())
		return
	}
	preview := model.Preview(msg.Content)
	if err := h.store.SetLastMessage(ctx, msg.RoomID, msg.CreatedAt, preview); err != nil {
		log.Printf("Failed to update room listing for %s: %v", msg.RoomID, err)
	}
	h.roster.Touch(msg.RoomID, msg.CreatedAt, preview)
	if evt.Token != "" {
		h.dedup.remember(c.userID, evt.Token, msg.ID)
	}

	h.broadcastRoom(ctx, msg.RoomID, protocol.NewMessage(msg).Encode(), "")
	h.sendTo(c, protocol.NewAck(msg).Encode())

	h.events.Publish(event.Event{
		Type:    event.MessagePosted,
		Origin:  event.OriginGateway,
		RoomID:  msg.RoomID,
		UserID:  msg.SenderID,
		Message: &msg,
	})
}

func (h *Hub) handleTyping(ctx context.Context, c *Client, evt protocol.SetTyping) {
	if _, _, ok := h.authorize(ctx, c, evt.RoomID); !ok {
		return
	}
	var edge bool
	if evt.IsTyping {
		edge = h.typing.set(evt.RoomID, c.userID, time.Now())
	} else {
		edge = h.typing.clear(evt.RoomID, c.userID)
	}
	if !edge {
		return
	}
	frame := protocol.NewTyping(evt.RoomID, c.userID, evt.IsTyping).Encode()
	h.broadcastRoom(ctx, evt.RoomID, frame, c.userID)
}

func (h *Hub) handleRead(ctx context.Context, c *Client, evt protocol.MarkRead) {
	if _, _, ok := h.authorize(ctx, c, evt.RoomID); !ok {
		return
	}
	latest, err := h.store.LatestMessageID(ctx, evt.RoomID)
	if err != nil {
		log.Printf("Failed to resolve latest message in room %s: %v", evt.RoomID, err)
		return
	}
	if latest == 0 {
		return
	}
	advanced, err := store.MarkRead(ctx, h.store, evt.RoomID, c.userID, latest, time.Now())
	if err != nil {
		log.Printf("Failed to advance read marker for %s in room %s: %v", c.userID, evt.RoomID, err)
		return
	}
	if !advanced {
		return
	}
	h.broadcastRoom(ctx, evt.RoomID, protocol.NewRead(evt.RoomID, c.userID).Encode(), "")
	h.events.Publish(event.Event{
		Type:   event.RoomRead,
		Origin: event.OriginGateway,
		RoomID: evt.RoomID,
		UserID: c.userID,
	})
}

// authorize resolves the room and the caller's membership, surfacing the
// failure to the offending connection only.
func (h *Hub) authorize(ctx context.Context, c *Client, roomID string) (model.Room, model.Participant, bool) {
	room, err := h.roster.Room(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			h.sendTo(c, protocol.NewError(reasonUnknownRoom).Encode())
		} else {
			log.Printf("Room lookup failed for %s: %v", roomID, err)
			h.sendTo(c, protocol.NewError(reasonUnknownRoom).Encode())
		}
		return model.Room{}, model.Participant{}, false
	}
	p, err := h.roster.Participant(ctx, roomID, c.userID)
	if err != nil {
		h.sendTo(c, protocol.NewError(reasonNotParticipant).Encode())
		return model.Room{}, model.Participant{}, false
	}
	return room, p, true
}

// handleApply fans out events that originated on the REST path (the client's
// offline fallback) so live participants still see them in real time.
func (h *Hub) handleApply(ctx context.Context, e event.Event) {
	switch e.Type {
	case event.MessagePosted, event.MessageEdited:
		if e.Message == nil {
			return
		}
		h.roster.Touch(e.RoomID, e.Message.CreatedAt, model.Preview(e.Message.Content))
		h.broadcastRoom(ctx, e.RoomID, protocol.NewMessage(*e.Message).Encode(), "")
	case event.RoomRead:
		h.broadcastRoom(ctx, e.RoomID, protocol.NewRead(e.RoomID, e.UserID).Encode(), "")
	}
}

func (h *Hub) sweepTyping(now time.Time) {
	for _, entry := range h.typing.sweep(now) {
		frame := protocol.NewTyping(entry.roomID, entry.userID, false).Encode()
		h.broadcastRoom(context.Background(), entry.roomID, frame, entry.userID)
	}
}

// broadcastRoom delivers a frame to every live connection of every current
// participant of the room, except excludeUser's connections.
func (h *Hub) broadcastRoom(ctx context.Context, roomID string, frame []byte, excludeUser string) {
	if frame == nil {
		return
	}
	ids, err := h.roster.ParticipantIDs(ctx, roomID)
	if err != nil {
		log.Printf("Failed to resolve participants of room %s: %v", roomID, err)
		return
	}
	for _, userID := range ids {
		if userID == excludeUser {
			continue
		}
		for c := range h.userConns[userID] {
			h.sendTo(c, frame)
		}
	}
}

// broadcastAll delivers a frame to every live connection; clients filter
// presence events against their own room lists.
func (h *Hub) broadcastAll(frame []byte) {
	if frame == nil {
		return
	}
	for _, conns := range h.userConns {
		for c := range conns {
			h.sendTo(c, frame)
		}
	}
}

// sendTo enqueues a frame for one connection. A connection whose queue is
// full has stopped draining; it is dropped rather than allowed to stall the
// broadcaster.
func (h *Hub) sendTo(c *Client, frame []byte) {
	conns, ok := h.userConns[c.userID]
	if !ok || !conns[c] {
		return
	}
	select {
	case c.send <- frame:
	default:
		log.Printf("Dropping slow connection %s of %s", c.id, c.userID)
		h.removeClient(c)
	}
}
