// Package store is the durable side of the chat core: rooms, participants,
// messages, read markers, unread counters, and the staff directory. The
// gateway and api talk to the Store interface; Scylla backs it in production
// and Memory backs it in tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/etalonmax94/CareConnect-sub003/pkg/model"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrNotParticipant  = errors.New("not a participant")
	ErrMessageNotFound = errors.New("message not found")
	ErrStaffNotFound   = errors.New("staff not found")
)

type Store interface {
	// Rooms. CreateRoom writes the room and its initial participant set.
	CreateRoom(ctx context.Context, room model.Room, participants []model.Participant) error
	Room(ctx context.Context, roomID string) (model.Room, error)
	UpdateRoomMeta(ctx context.Context, roomID, name, description string) error
	ArchiveRoom(ctx context.Context, roomID string) error
	SetLastMessage(ctx context.Context, roomID string, at time.Time, preview string) error

	// Membership.
	Participants(ctx context.Context, roomID string) ([]model.Participant, error)
	Participant(ctx context.Context, roomID, userID string) (model.Participant, error)
	AddParticipant(ctx context.Context, p model.Participant) error
	RemoveParticipant(ctx context.Context, roomID, userID string) error
	SetRole(ctx context.Context, roomID, userID string, role model.Role) error
	RoomsForUser(ctx context.Context, userID string) ([]model.Room, error)

	// Messages. Messages returns newest-first, strictly older than beforeID
	// (0 means from the latest).
	InsertMessage(ctx context.Context, m model.Message) error
	UpdateMessage(ctx context.Context, roomID string, id int64, content string) error
	Message(ctx context.Context, roomID string, id int64) (model.Message, error)
	Messages(ctx context.Context, roomID string, beforeID int64, limit int) ([]model.Message, error)
	LatestMessageID(ctx context.Context, roomID string) (int64, error)

	// Read markers. The bool reports whether a marker exists.
	ReadMarker(ctx context.Context, roomID, userID string) (model.ReadMarker, bool, error)
	SetReadMarker(ctx context.Context, m model.ReadMarker) error

	// Unread counters, maintained by the async pipeline. Advisory only.
	BumpUnread(ctx context.Context, userID, roomID string, delta int64) error
	ResetUnread(ctx context.Context, userID, roomID string) error
	Unread(ctx context.Context, userID, roomID string) (int64, error)

	// Staff directory.
	Staff(ctx context.Context, userID string) (model.Staff, error)
	StaffByRoles(ctx context.Context, orgRoles []string) ([]model.Staff, error)
	UpsertStaff(ctx context.Context, s model.Staff) error
}

// MarkRead advances (roomID, userID)'s marker to msgID if and only if that
// moves it forward. Returns false for stale or duplicate marks, which are
// silent no-ops by contract.
func MarkRead(ctx context.Context, s Store, roomID, userID string, msgID int64, at time.Time) (bool, error) {
	existing, ok, err := s.ReadMarker(ctx, roomID, userID)
	if err != nil {
		return false, err
	}
	if ok && existing.LastReadID >= msgID {
		return false, nil
	}
	if ok && at.Before(existing.LastReadAt) {
		return false, nil
	}
	marker := model.ReadMarker{RoomID: roomID, UserID: userID, LastReadID: msgID, LastReadAt: at}
	if err := s.SetReadMarker(ctx, marker); err != nil {
		return false, err
	}
	return true, nil
}
