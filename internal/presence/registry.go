// Package presence tracks which users are reachable on which live connections.
package presence

import (
	"sort"
	"sync"
)

// Listener observes online/offline transitions. Callbacks run in transition order and must
// not call back into the Registry.
type Listener interface {
	UserOnline(userID string)
	UserOffline(userID string)
}

// Registry maps user ids to their live connection ids, with a reverse index.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]struct{}
	byConn map[string]string

	notifyMu  sync.Mutex
	listeners []Listener
}

// NewRegistry constructs an empty Registry notifying listeners of transitions.
func NewRegistry(listeners ...Listener) *Registry {
	return &Registry{
		byUser:    make(map[string]map[string]struct{}),
		byConn:    make(map[string]string),
		listeners: listeners,
	}
}

// Register adds connID to userID's set and reports whether the user just came online.
// Registering a connection id already owned by another user moves it.
func (r *Registry) Register(userID, connID string) bool {
	r.mu.Lock()
	var movedFrom string
	var movedOffline bool
	if prev, ok := r.byConn[connID]; ok {
		if prev == userID {
			r.mu.Unlock()
			return false
		}
		movedFrom = prev
		movedOffline = r.removeLocked(connID)
	}
	conns, ok := r.byUser[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.byUser[userID] = conns
	}
	conns[connID] = struct{}{}
	r.byConn[connID] = userID
	online := len(conns) == 1

	r.notifyMu.Lock()
	r.mu.Unlock()
	defer r.notifyMu.Unlock()
	if movedOffline {
		r.notifyOffline(movedFrom)
	}
	if online {
		r.notifyOnline(userID)
	}
	return online
}

// Unregister removes connID and returns its owner. offline is true when that was the
// user's last connection. Unknown connection ids return an empty userID.
func (r *Registry) Unregister(connID string) (userID string, offline bool) {
	r.mu.Lock()
	userID, ok := r.byConn[connID]
	if !ok {
		r.mu.Unlock()
		return "", false
	}
	offline = r.removeLocked(connID)

	r.notifyMu.Lock()
	r.mu.Unlock()
	defer r.notifyMu.Unlock()
	if offline {
		r.notifyOffline(userID)
	}
	return userID, offline
}

func (r *Registry) removeLocked(connID string) bool {
	userID := r.byConn[connID]
	delete(r.byConn, connID)
	conns := r.byUser[userID]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.byUser, userID)
		return true
	}
	return false
}

func (r *Registry) notifyOnline(userID string) {
	for _, l := range r.listeners {
		l.UserOnline(userID)
	}
}

func (r *Registry) notifyOffline(userID string) {
	for _, l := range r.listeners {
		l.UserOffline(userID)
	}
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// ListOnline returns the online user ids in sorted order.
func (r *Registry) ListOnline() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		users = append(users, id)
	}
	r.mu.RUnlock()
	sort.Strings(users)
	return users
}

// Connections returns the user's live connection ids in sorted order.
func (r *Registry) Connections(userID string) []string {
	r.mu.RLock()
	conns := make([]string, 0, len(r.byUser[userID]))
	for id := range r.byUser[userID] {
		conns = append(conns, id)
	}
	r.mu.RUnlock()
	sort.Strings(conns)
	return conns
}

// UserOf returns the owner of connID.
func (r *Registry) UserOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byConn[connID]
	return userID, ok
}

// Count returns the number of online users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
