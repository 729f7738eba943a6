package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) UserOnline(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "online:"+userID)
}

func (r *recorder) UserOffline(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "offline:"+userID)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestRegistryMultiConnectionTransitions(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(rec)

	assert.True(t, reg.Register("u1", "s1"))
	assert.False(t, reg.Register("u1", "s2"))
	assert.True(t, reg.IsOnline("u1"))
	assert.Equal(t, []string{"s1", "s2"}, reg.Connections("u1"))

	userID, offline := reg.Unregister("s1")
	assert.Equal(t, "u1", userID)
	assert.False(t, offline)
	assert.True(t, reg.IsOnline("u1"))

	userID, offline = reg.Unregister("s2")
	assert.Equal(t, "u1", userID)
	assert.True(t, offline)
	assert.False(t, reg.IsOnline("u1"))
	assert.Empty(t, reg.ListOnline())

	assert.Equal(t, []string{"online:u1", "offline:u1"}, rec.snapshot())
}

func TestRegistryUnknownConnection(t *testing.T) {
	reg := NewRegistry()
	userID, offline := reg.Unregister("missing")
	assert.Empty(t, userID)
	assert.False(t, offline)
}

func TestRegistryRegisterIsIdempotent(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(rec)
	assert.True(t, reg.Register("u1", "s1"))
	assert.False(t, reg.Register("u1", "s1"))
	assert.Equal(t, []string{"online:u1"}, rec.snapshot())
}

func TestRegistryMovesConnectionBetweenUsers(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(rec)
	reg.Register("u1", "s1")
	assert.True(t, reg.Register("u2", "s1"))

	owner, ok := reg.UserOf("s1")
	require.True(t, ok)
	assert.Equal(t, "u2", owner)
	assert.False(t, reg.IsOnline("u1"))
	assert.Equal(t, []string{"online:u1", "offline:u1", "online:u2"}, rec.snapshot())
}

func TestRegistryConcurrentTransitionsFireOnce(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(rec)

	const conns = 64
	var wg sync.WaitGroup
	for i := 0; i < conns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg.Register("u1", fmt.Sprintf("s%d", i))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, reg.Count())

	for i := 0; i < conns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg.Unregister(fmt.Sprintf("s%d", i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []string{"online:u1", "offline:u1"}, rec.snapshot())
	assert.Zero(t, reg.Count())
}

func TestRegistryListOnlineSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register("b", "s1")
	reg.Register("a", "s2")
	reg.Register("c", "s3")
	assert.Equal(t, []string{"a", "b", "c"}, reg.ListOnline())
}
