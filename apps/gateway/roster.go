package main

import (
	"context"
	"sync"
	"time"

	"github.com/etalonmax94/CareConnect-sub003/pkg/model"
	"github.com/etalonmax94/CareConnect-sub003/pkg/store"
)

// rosterTTL bounds staleness for entries that miss an invalidation (e.g. a
// membership change applied while the event consumer was rebalancing).
const rosterTTL = 30 * time.Second

// Roster caches room metadata and membership for fan-out. Lookups are
// read-mostly; membership writes arrive as room events and invalidate the
// entry before the next broadcast resolves recipients.
type Roster struct {
	store store.Store

	mu      sync.RWMutex
	entries map[string]*rosterEntry
}

type rosterEntry struct {
	room     model.Room
	byUser   map[string]model.Participant
	loadedAt time.Time
}

func NewRoster(s store.Store) *Roster {
	return &Roster{store: s, entries: make(map[string]*rosterEntry)}
}

func (r *Roster) entry(ctx context.Context, roomID string) (*rosterEntry, error) {
	r.mu.RLock()
	e, ok := r.entries[roomID]
	r.mu.RUnlock()
	if ok && time.Since(e.loadedAt) < rosterTTL {
		return e, nil
	}

	room, err := r.store.Room(ctx, roomID)
	if err != nil {
		return nil, err
	}
	parts, err := r.store.Participants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	byUser := make(map[string]model.Participant, len(parts))
	for _, p := range parts {
		byUser[p.UserID] = p
	}
	e = &rosterEntry{room: room, byUser: byUser, loadedAt: time.Now()}

	r.mu.Lock()
	r.entries[roomID] = e
	r.mu.Unlock()
	return e, nil
}

func (r *Roster) Room(ctx context.Context, roomID string) (model.Room, error) {
	e, err := r.entry(ctx, roomID)
	if err != nil {
		return model.Room{}, err
	}
	return e.room, nil
}

func (r *Roster) Participant(ctx context.Context, roomID, userID string) (model.Participant, error) {
	e, err := r.entry(ctx, roomID)
	if err != nil {
		return model.Participant{}, err
	}
	p, ok := e.byUser[userID]
	if !ok {
		return model.Participant{}, store.ErrNotParticipant
	}
	return p, nil
}

func (r *Roster) ParticipantIDs(ctx context.Context, roomID string) ([]string, error) {
	e, err := r.entry(ctx, roomID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(e.byUser))
	for id := range e.byUser {
		ids = append(ids, id)
	}
	return ids, nil
}

// Invalidate drops a cached entry so the next lookup reloads from the store.
func (r *Roster) Invalidate(roomID string) {
	r.mu.Lock()
	delete(r.entries, roomID)
	r.mu.Unlock()
}

// Touch updates the cached denormalized last-message fields without a reload.
func (r *Roster) Touch(roomID string, at time.Time, preview string) {
	r.mu.Lock()
	if e, ok := r.entries[roomID]; ok {
		e.room.LastMessageAt = at
		e.room.LastMessagePreview = preview
	}
	r.mu.Unlock()
}
