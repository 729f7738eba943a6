package reconciler

import (
	"sync"
	"time"
)

// Typist is a user currently shown as typing.
type Typist struct {
	UserID   string
	UserName string
	Since    time.Time
}

// Typing tracks typing indicators for one conversation, at most one per user.
type Typing struct {
	mu    sync.Mutex
	order []string
	users map[string]Typist
	now   func() time.Time
}

func NewTyping() *Typing {
	return &Typing{users: make(map[string]Typist), now: time.Now}
}

// Start records userID as typing and reports whether the indicator is new.
func (t *Typing) Start(userID, userName string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.users[userID]; ok {
		if userName != "" {
			existing.UserName = userName
			t.users[userID] = existing
		}
		return false
	}
	t.users[userID] = Typist{UserID: userID, UserName: userName, Since: t.now()}
	t.order = append(t.order, userID)
	return true
}

// Stop clears the indicator for userID.
func (t *Typing) Stop(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.users[userID]; !ok {
		return false
	}
	delete(t.users, userID)
	for i, id := range t.order {
		if id == userID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// Expire clears indicators older than ttl, for peers that disconnected mid-typing.
func (t *Typing) Expire(ttl time.Duration) []string {
	t.mu.Lock()
	cutoff := t.now().Add(-ttl)
	var stale []string
	for _, id := range t.order {
		if t.users[id].Since.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	t.mu.Unlock()
	for _, id := range stale {
		t.Stop(id)
	}
	return stale
}

// Active returns the typists in the order they started.
func (t *Typing) Active() []Typist {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Typist, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.users[id])
	}
	return out
}

// Reset clears every indicator.
func (t *Typing) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = nil
	t.users = make(map[string]Typist)
}
