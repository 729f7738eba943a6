package presence

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	onlineSetKey    = "chat:online:users"
	onlineKeyPrefix = "chat:online:"

	mirrorQueueSize = 1024
)

type mirrorUpdate struct {
	userID string
	online bool
}

// RedisMirror copies presence transitions into Redis for dashboards and other readers.
// The in-memory Registry stays authoritative. Transitions are queued and written by Run,
// so listener calls never wait on Redis.
type RedisMirror struct {
	client  redis.Cmdable
	ttl     time.Duration
	timeout time.Duration
	updates chan mirrorUpdate
	log     *slog.Logger
}

// NewRedisMirror constructs a mirror. ttl bounds how long a per-user key survives a crash.
func NewRedisMirror(client redis.Cmdable, ttl time.Duration, log *slog.Logger) *RedisMirror {
	if log == nil {
		log = slog.Default()
	}
	return &RedisMirror{
		client:  client,
		ttl:     ttl,
		timeout: 2 * time.Second,
		updates: make(chan mirrorUpdate, mirrorQueueSize),
		log:     log,
	}
}

// Reset clears state left by a previous process; presence is rebuilt from zero.
func (m *RedisMirror) Reset(ctx context.Context) error {
	members, err := m.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return err
	}
	keys := []string{onlineSetKey}
	for _, id := range members {
		keys = append(keys, onlineKeyPrefix+id)
	}
	return m.client.Del(ctx, keys...).Err()
}

func (m *RedisMirror) UserOnline(userID string) {
	m.enqueue(mirrorUpdate{userID: userID, online: true})
}

func (m *RedisMirror) UserOffline(userID string) {
	m.enqueue(mirrorUpdate{userID: userID})
}

// enqueue drops the update when the queue is full. Per-user keys still expire after ttl.
func (m *RedisMirror) enqueue(u mirrorUpdate) {
	select {
	case m.updates <- u:
	default:
		m.log.Warn("presence mirror queue full, dropping update", "user_id", u.userID, "online", u.online)
	}
}

func (m *RedisMirror) apply(ctx context.Context, u mirrorUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	_, err := m.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if u.online {
			p.SAdd(ctx, onlineSetKey, u.userID)
			p.Set(ctx, onlineKeyPrefix+u.userID, "1", m.ttl)
			return nil
		}
		p.SRem(ctx, onlineSetKey, u.userID)
		p.Del(ctx, onlineKeyPrefix+u.userID)
		return nil
	})
	return err
}

// Refresh extends the TTL of every mirrored user key. Run periodically so live users
// do not expire.
func (m *RedisMirror) Refresh(ctx context.Context, users []string) error {
	if len(users) == 0 {
		return nil
	}
	_, err := m.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range users {
			p.Set(ctx, onlineKeyPrefix+id, "1", m.ttl)
		}
		return nil
	})
	return err
}

// Run writes queued transitions and refreshes the mirror from the registry every interval
// until ctx ends.
func (m *RedisMirror) Run(ctx context.Context, reg *Registry, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-m.updates:
			if err := m.apply(ctx, u); err != nil {
				m.log.Warn("presence mirror update failed", "user_id", u.userID, "online", u.online, "error", err)
			}
		case <-ticker.C:
			if err := m.Refresh(ctx, reg.ListOnline()); err != nil {
				m.log.Warn("presence mirror refresh failed", "error", err)
			}
		}
	}
}
