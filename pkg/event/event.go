// Package event defines the room-event notifications this core exposes to its
// collaborators on the Kafka bus. Events are a cache-coherence signal: the
// REST layer and the async counter pipeline react to them, but the synchronous
// persist-then-broadcast path never depends on the bus being up.
package event

import (
	"time"

	"github.com/etalonmax94/CareConnect-sub003/pkg/model"
)

type Type string

const (
	MessagePosted      Type = "message_posted"
	MessageEdited      Type = "message_edited"
	RoomCreated        Type = "room_created"
	RoomUpdated        Type = "room_updated"
	RoomArchived       Type = "room_archived"
	ParticipantAdded   Type = "participant_added"
	ParticipantRemoved Type = "participant_removed"
	RoleChanged        Type = "role_changed"
	RoomRead           Type = "room_read"
)

// Origin identifies which service produced an event, so the gateway's
// consumer can skip events it already applied synchronously.
type Origin string

const (
	OriginGateway Origin = "gateway"
	OriginAPI     Origin = "api"
)

type Event struct {
	Type    Type           `json:"type"`
	Origin  Origin         `json:"origin"`
	RoomID  string         `json:"roomId"`
	UserID  string         `json:"userId,omitempty"`
	Role    model.Role     `json:"role,omitempty"`
	At      time.Time      `json:"at"`
	Message *model.Message `json:"message,omitempty"`
}
