package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	onlineSetKey    = "presence:online"
	lastSeenHashKey = "presence:last_seen"

	redisOpTimeout = 2 * time.Second
)

// PresenceTracker turns connection-count transitions into online/offline
// state. Offline is debounced: the last connection closing starts a grace
// timer, and only if it fires with still no connections does the user go
// offline. The Redis mirror exists so the api service can answer presence
// queries without talking to the gateway.
type PresenceTracker struct {
	grace time.Duration
	rdb   *redis.Client

	mu      sync.Mutex
	timers  map[string]*time.Timer
	expired chan string
}

func NewPresenceTracker(grace time.Duration, rdb *redis.Client) *PresenceTracker {
	return &PresenceTracker{
		grace:   grace,
		rdb:     rdb,
		timers:  make(map[string]*time.Timer),
		expired: make(chan string, 64),
	}
}

// Expired delivers user IDs whose grace timer fired. The hub re-checks the
// connection count before confirming, so a late fire after a reconnect is
// harmless.
func (p *PresenceTracker) Expired() <-chan string {
	return p.expired
}

// MarkOnline mirrors a user's online state to Redis.
func (p *PresenceTracker) MarkOnline(userID string) {
	if p.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := p.rdb.SAdd(ctx, onlineSetKey, userID).Err(); err != nil {
		log.Printf("Failed to set presence for %s: %v", userID, err)
	}
}

// ScheduleOffline starts the grace timer for a user whose last connection
// closed. A second call while a timer is pending resets it.
func (p *PresenceTracker) ScheduleOffline(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.timers[userID]; ok {
		t.Stop()
	}
	p.timers[userID] = time.AfterFunc(p.grace, func() {
		p.mu.Lock()
		delete(p.timers, userID)
		p.mu.Unlock()
		p.expired <- userID
	})
}

// CancelOffline stops a pending grace timer and reports whether one existed.
// A reconnect within the grace window cancels the timer, so no offline event
// (and no matching re-online event) is ever emitted for the blip.
func (p *PresenceTracker) CancelOffline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.timers[userID]
	if ok {
		t.Stop()
		delete(p.timers, userID)
	}
	return ok
}

// ConfirmOffline mirrors a confirmed offline transition to Redis.
func (p *PresenceTracker) ConfirmOffline(userID string) {
	if p.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := p.rdb.SRem(ctx, onlineSetKey, userID).Err(); err != nil {
		log.Printf("Failed to delete presence for %s: %v", userID, err)
	}
	if err := p.rdb.HSet(ctx, lastSeenHashKey, userID, time.Now().Format(time.RFC3339)).Err(); err != nil {
		log.Printf("Failed to record last seen for %s: %v", userID, err)
	}
}
