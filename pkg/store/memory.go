package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/etalonmax94/CareConnect-sub003/pkg/model"
)

// Memory is a thread-safe in-memory Store used by tests and local tooling.
type Memory struct {
	mu           sync.RWMutex
	rooms        map[string]model.Room
	participants map[string]map[string]model.Participant // roomID -> userID -> participant
	userRooms    map[string]map[string]bool              // userID -> roomID set
	messages     map[string][]model.Message              // roomID -> ascending by ID
	markers      map[string]map[string]model.ReadMarker  // roomID -> userID -> marker
	unread       map[string]map[string]int64             // userID -> roomID -> count
	staff        map[string]model.Staff
}

func NewMemory() *Memory {
	return &Memory{
		rooms:        make(map[string]model.Room),
		participants: make(map[string]map[string]model.Participant),
		userRooms:    make(map[string]map[string]bool),
		messages:     make(map[string][]model.Message),
		markers:      make(map[string]map[string]model.ReadMarker),
		unread:       make(map[string]map[string]int64),
		staff:        make(map[string]model.Staff),
	}
}

func (m *Memory) CreateRoom(_ context.Context, room model.Room, participants []model.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rooms[room.ID] = room
	m.participants[room.ID] = make(map[string]model.Participant)
	for _, p := range participants {
		m.addParticipantLocked(p)
	}
	return nil
}

func (m *Memory) addParticipantLocked(p model.Participant) {
	if m.participants[p.RoomID] == nil {
		m.participants[p.RoomID] = make(map[string]model.Participant)
	}
	m.participants[p.RoomID][p.UserID] = p
	if m.userRooms[p.UserID] == nil {
		m.userRooms[p.UserID] = make(map[string]bool)
	}
	m.userRooms[p.UserID][p.RoomID] = true
}

func (m *Memory) Room(_ context.Context, roomID string) (model.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return model.Room{}, ErrRoomNotFound
	}
	return room, nil
}

func (m *Memory) UpdateRoomMeta(_ context.Context, roomID, name, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	room.Name = name
	room.Description = description
	m.rooms[roomID] = room
	return nil
}

func (m *Memory) ArchiveRoom(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	room.Archived = true
	m.rooms[roomID] = room
	return nil
}

func (m *Memory) SetLastMessage(_ context.Context, roomID string, at time.Time, preview string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	room.LastMessageAt = at
	room.LastMessagePreview = preview
	m.rooms[roomID] = room
	return nil
}

func (m *Memory) Participants(_ context.Context, roomID string) ([]model.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byUser := m.participants[roomID]
	out := make([]model.Participant, 0, len(byUser))
	for _, p := range byUser {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *Memory) Participant(_ context.Context, roomID, userID string) (model.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.participants[roomID][userID]
	if !ok {
		return model.Participant{}, ErrNotParticipant
	}
	return p, nil
}

func (m *Memory) AddParticipant(_ context.Context, p model.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addParticipantLocked(p)
	return nil
}

func (m *Memory) RemoveParticipant(_ context.Context, roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.participants[roomID], userID)
	delete(m.userRooms[userID], roomID)
	return nil
}

func (m *Memory) SetRole(_ context.Context, roomID, userID string, role model.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[roomID][userID]
	if !ok {
		return ErrNotParticipant
	}
	p.Role = role
	m.participants[roomID][userID] = p
	return nil
}

func (m *Memory) RoomsForUser(_ context.Context, userID string) ([]model.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Room
	for roomID := range m.userRooms[userID] {
		if room, ok := m.rooms[roomID]; ok {
			out = append(out, room)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (m *Memory) InsertMessage(_ context.Context, msg model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[msg.RoomID]
	msgs = append(msgs, msg)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	m.messages[msg.RoomID] = msgs
	return nil
}

func (m *Memory) UpdateMessage(_ context.Context, roomID string, id int64, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[roomID]
	for i := range msgs {
		if msgs[i].ID == id {
			msgs[i].Content = content
			msgs[i].IsEdited = true
			return nil
		}
	}
	return ErrMessageNotFound
}

func (m *Memory) Message(_ context.Context, roomID string, id int64) (model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, msg := range m.messages[roomID] {
		if msg.ID == id {
			return msg, nil
		}
	}
	return model.Message{}, ErrMessageNotFound
}

func (m *Memory) Messages(_ context.Context, roomID string, beforeID int64, limit int) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[roomID]
	var out []model.Message
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		if beforeID > 0 && msgs[i].ID >= beforeID {
			continue
		}
		out = append(out, msgs[i])
	}
	return out, nil
}

func (m *Memory) LatestMessageID(_ context.Context, roomID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[roomID]
	if len(msgs) == 0 {
		return 0, nil
	}
	return msgs[len(msgs)-1].ID, nil
}

func (m *Memory) ReadMarker(_ context.Context, roomID, userID string) (model.ReadMarker, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	marker, ok := m.markers[roomID][userID]
	return marker, ok, nil
}

func (m *Memory) SetReadMarker(_ context.Context, marker model.ReadMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markers[marker.RoomID] == nil {
		m.markers[marker.RoomID] = make(map[string]model.ReadMarker)
	}
	m.markers[marker.RoomID][marker.UserID] = marker
	return nil
}

func (m *Memory) BumpUnread(_ context.Context, userID, roomID string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unread[userID] == nil {
		m.unread[userID] = make(map[string]int64)
	}
	m.unread[userID][roomID] += delta
	return nil
}

func (m *Memory) ResetUnread(_ context.Context, userID, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.unread[userID], roomID)
	return nil
}

func (m *Memory) Unread(_ context.Context, userID, roomID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.unread[userID][roomID], nil
}

func (m *Memory) Staff(_ context.Context, userID string) (model.Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.staff[userID]
	if !ok {
		return model.Staff{}, ErrStaffNotFound
	}
	return st, nil
}

func (m *Memory) StaffByRoles(_ context.Context, orgRoles []string) ([]model.Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Staff
	for _, st := range m.staff {
		for _, role := range orgRoles {
			if st.OrgRole == role {
				out = append(out, st)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *Memory) UpsertStaff(_ context.Context, st model.Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staff[st.UserID] = st
	return nil
}
