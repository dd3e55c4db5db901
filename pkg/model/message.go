package model

import "time"

const previewLimit = 120

// Message IDs are snowflakes, so sorting by ID within a room sorts by creation
// time. Edits overwrite content in place and set IsEdited.
type Message struct {
	ID         int64     `json:"id"`
	RoomID     string    `json:"roomId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	IsEdited   bool      `json:"isEdited"`
}

// ReadMarker is the per-participant watermark into a room's history. It only
// ever moves forward; stale updates are dropped, not errors.
type ReadMarker struct {
	RoomID     string    `json:"roomId"`
	UserID     string    `json:"userId"`
	LastReadID int64     `json:"lastReadId"`
	LastReadAt time.Time `json:"lastReadAt"`
}

// Preview truncates content for the denormalized room listing.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLimit {
		return content
	}
	return string(runes[:previewLimit])
}
