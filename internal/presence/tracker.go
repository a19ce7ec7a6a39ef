// Package presence tracks the ephemeral "is typing" state per room.
// Entries carry a server-side deadline so an ungraceful disconnect
// cannot leave a typing indicator stuck; the original client-driven
// stop_typing signal remains the fast path.
package presence

import (
	"sync"
	"time"
)

type entry struct {
	deadline time.Time
	clientID string
}

// ExpireFunc is called for every typing entry the sweeper removes.
type ExpireFunc func(room, name, clientID string)

// Tracker is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	rooms    map[string]map[string]entry // room -> display name -> entry
	ttl      time.Duration
	interval time.Duration
	onExpire ExpireFunc
	done     chan struct{}
}

func NewTracker(ttl, sweepInterval time.Duration) *Tracker {
	return &Tracker{
		rooms:    make(map[string]map[string]entry),
		ttl:      ttl,
		interval: sweepInterval,
		done:     make(chan struct{}),
	}
}

// OnExpire registers the expiry callback. Must be called before Run.
func (t *Tracker) OnExpire(fn ExpireFunc) {
	t.onExpire = fn
}

// SetTyping marks the name as typing in the room and refreshes its
// deadline. Idempotent.
func (t *Tracker) SetTyping(room, name, clientID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	names, ok := t.rooms[room]
	if !ok {
		names = make(map[string]entry)
		t.rooms[room] = names
	}
	names[name] = entry{deadline: time.Now().Add(t.ttl), clientID: clientID}
}

// ClearTyping removes the name from the room's typing set.
func (t *Tracker) ClearTyping(room, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if names, ok := t.rooms[room]; ok {
		delete(names, name)
		if len(names) == 0 {
			delete(t.rooms, room)
		}
	}
}

// Typing returns the display names currently typing in the room.
func (t *Tracker) Typing(room string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := t.rooms[room]
	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	return out
}

// Run sweeps expired entries until Stop is called.
func (t *Tracker) Run() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case now := <-ticker.C:
			t.sweep(now)
		}
	}
}

// Stop terminates the sweeper.
func (t *Tracker) Stop() {
	close(t.done)
}

type expired struct {
	room, name, clientID string
}

func (t *Tracker) sweep(now time.Time) {
	var stale []expired

	t.mu.Lock()
	for room, names := range t.rooms {
		for name, e := range names {
			if now.After(e.deadline) {
				delete(names, name)
				stale = append(stale, expired{room: room, name: name, clientID: e.clientID})
			}
		}
		if len(names) == 0 {
			delete(t.rooms, room)
		}
	}
	t.mu.Unlock()

	// Callback runs outside the lock; it typically broadcasts.
	if t.onExpire != nil {
		for _, s := range stale {
			t.onExpire(s.room, s.name, s.clientID)
		}
	}
}
