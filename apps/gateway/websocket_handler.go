package main

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/etalonmax94/CareConnect-sub003/pkg/auth"
	"github.com/etalonmax94/CareConnect-sub003/pkg/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer; comfortably above MaxContentLength
	// plus envelope overhead.
	maxMessageSize = 8192
)

var newline = []byte{'\n'}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// Client is a middleman between one websocket connection and the hub. A user
// may hold several clients at once (tabs, devices); each receives every event
// addressed to that user.
type Client struct {
	hub *Hub

	conn *websocket.Conn

	// Buffered channel of outbound frames. Closed by the hub only.
	send chan []byte

	// Connection handle, unique per connection.
	id string

	// Authenticated user identity.
	userID string
}

// readPump pumps frames from the websocket connection to the hub. Decode
// errors ride the same channel so the offending connection gets its error
// event without any other connection noticing.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("read error on %s: %v", c.id, err)
			}
			break
		}

		evt, err := protocol.Decode(data)
		c.hub.inbound <- inboundFrame{client: c, evt: evt, err: err}
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(frame)

			// Flush queued frames into the same websocket message,
			// newline-delimited.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveWs upgrades an HTTP request to a live connection. Identity comes from
// the session token on the upgrade request, never from protocol frames; room
// subscription is implicit in membership.
func serveWs(hub *Hub, tokens *auth.Tokens, w http.ResponseWriter, r *http.Request) {
	tokenString := r.Header.Get("Authorization")
	if tokenString == "" {
		// Query param fallback for websocket clients that cannot set headers.
		tokenString = r.URL.Query().Get("token")
	}
	if tokenString == "" {
		log.Println("Unauthorized: No token provided")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	claims, err := tokens.Validate(auth.FromHeader(tokenString))
	if err != nil {
		log.Printf("Unauthorized: Invalid token: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, hub.cfg.SendQueue),
		id:     uuid.NewString(),
		userID: claims.UserID,
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}
