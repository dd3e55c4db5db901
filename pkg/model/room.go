package model

import "time"

type RoomType string

const (
	RoomDirect       RoomType = "direct"
	RoomGroup        RoomType = "group"
	RoomClientLinked RoomType = "client"
	RoomAnnouncement RoomType = "announcement"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Room is a channel grouping a set of participants. Direct rooms have exactly
// two participants and immutable membership; announcement rooms are read-only
// for non-admins. Archival is terminal: the room keeps existing but accepts no
// further messages.
type Room struct {
	ID                 string    `json:"id"`
	Type               RoomType  `json:"type"`
	Name               string    `json:"name,omitempty"`
	Description        string    `json:"description,omitempty"`
	ClientID           string    `json:"clientId,omitempty"` // set only for client-linked rooms
	Archived           bool      `json:"archived"`
	CreatedAt          time.Time `json:"createdAt"`
	LastMessageAt      time.Time `json:"lastMessageAt,omitempty"`
	LastMessagePreview string    `json:"lastMessagePreview,omitempty"`
}

func (r Room) IsAnnouncement() bool {
	return r.Type == RoomAnnouncement
}

// Participant is a user's membership record in a room. StaffName is a snapshot
// taken at join time so display names stay stable even if the staff record
// changes later.
type Participant struct {
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	StaffName string    `json:"staffName"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// Staff is a row in the organization directory, used to resolve role-filtered
// room membership and to snapshot names at join time.
type Staff struct {
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	OrgRole  string `json:"orgRole"`
	AppAdmin bool   `json:"appAdmin"`
}

// CanPost reports whether p may send messages to room.
func CanPost(room Room, p Participant) bool {
	if room.Archived {
		return false
	}
	if room.Type == RoomAnnouncement && p.Role != RoleAdmin {
		return false
	}
	return true
}

// CanManage reports whether p may rename the room, archive it, or change its
// membership. Direct rooms are immutable once created, for everyone. appAdmin
// is the application-wide admin capability carried by the identity token.
func CanManage(room Room, p Participant, appAdmin bool) bool {
	if room.Type == RoomDirect {
		return false
	}
	return appAdmin || p.Role == RoleAdmin
}
