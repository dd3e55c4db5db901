// Package protocol defines the JSON wire protocol spoken over the gateway's
// websocket connections. Every frame is a flat object with a "type"
// discriminator. Inbound frames decode into a closed set of event types so the
// gateway can switch exhaustively instead of re-checking strings downstream.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/etalonmax94/CareConnect-sub003/pkg/model"
)

type Kind string

const (
	KindMessage  Kind = "message"
	KindTyping   Kind = "typing"
	KindRead     Kind = "read"
	KindPresence Kind = "presence" // server-originated only
	KindError    Kind = "error"    // server-originated only
	KindAck      Kind = "ack"      // server-originated only
)

var (
	ErrUnknownKind  = errors.New("unknown message type")
	ErrMissingRoom  = errors.New("roomId is required")
	ErrEmptyContent = errors.New("content cannot be empty")
	ErrTooLong      = errors.New("content exceeds maximum length")
)

// MaxContentLength bounds a single chat message.
const MaxContentLength = 4000

// Inbound is the closed union of client-to-server events.
type Inbound interface {
	inbound()
}

// SendMessage posts content to a room. Token is an optional client-generated
// idempotency token; retries with the same token are not persisted twice.
type SendMessage struct {
	RoomID  string
	Content string
	Token   string
}

// SetTyping starts or stops the sender's typing indicator in a room.
type SetTyping struct {
	RoomID   string
	IsTyping bool
}

// MarkRead moves the sender's read marker in a room up to the latest message.
type MarkRead struct {
	RoomID string
}

func (SendMessage) inbound() {}
func (SetTyping) inbound()   {}
func (MarkRead) inbound()    {}

type envelope struct {
	Type     Kind   `json:"type"`
	RoomID   string `json:"roomId"`
	Content  string `json:"content"`
	Token    string `json:"token"`
	IsTyping bool   `json:"isTyping"`
}

// Decode parses a client frame into one of the Inbound variants. Validation
// failures are returned as errors; callers surface them to the offending
// connection only.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if env.RoomID == "" {
		return nil, ErrMissingRoom
	}
	switch env.Type {
	case KindMessage:
		if env.Content == "" {
			return nil, ErrEmptyContent
		}
		if len(env.Content) > MaxContentLength {
			return nil, ErrTooLong
		}
		return SendMessage{RoomID: env.RoomID, Content: env.Content, Token: env.Token}, nil
	case KindTyping:
		return SetTyping{RoomID: env.RoomID, IsTyping: env.IsTyping}, nil
	case KindRead:
		return MarkRead{RoomID: env.RoomID}, nil
	default:
		return nil, ErrUnknownKind
	}
}

// Outbound is a server-to-client frame. Constructors below produce the only
// shapes the gateway emits.
type Outbound struct {
	Type     Kind           `json:"type"`
	RoomID   string         `json:"roomId,omitempty"`
	UserID   string         `json:"userId,omitempty"`
	IsTyping *bool          `json:"isTyping,omitempty"`
	Status   string         `json:"status,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Message  *model.Message `json:"message,omitempty"`
}

func NewMessage(m model.Message) Outbound {
	return Outbound{Type: KindMessage, RoomID: m.RoomID, Message: &m}
}

func NewAck(m model.Message) Outbound {
	return Outbound{Type: KindAck, RoomID: m.RoomID, Message: &m}
}

func NewTyping(roomID, userID string, isTyping bool) Outbound {
	return Outbound{Type: KindTyping, RoomID: roomID, UserID: userID, IsTyping: &isTyping}
}

func NewPresence(userID, status string) Outbound {
	return Outbound{Type: KindPresence, UserID: userID, Status: status}
}

func NewRead(roomID, userID string) Outbound {
	return Outbound{Type: KindRead, RoomID: roomID, UserID: userID}
}

func NewError(reason string) Outbound {
	return Outbound{Type: KindError, Reason: reason}
}

// Encode marshals an outbound frame. Marshalling these shapes cannot fail, so
// errors are reduced to a nil slice the write pump drops.
func (o Outbound) Encode() []byte {
	data, err := json.Marshal(o)
	if err != nil {
		return nil
	}
	return data
}
