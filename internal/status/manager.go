package status

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"messer/internal/constants"
	"messer/internal/logger"

	"github.com/go-redis/redis/v8"
)

// Manager counts live sessions per user. With a Redis client it also
// mirrors online/offline transitions so other tools can read presence.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]int
	redis    *redis.Client
}

// NewManager creates a presence tracker. client may be nil.
func NewManager(client *redis.Client) *Manager {
	return &Manager{
		sessions: make(map[string]int),
		redis:    client,
	}
}

// Join records one more live session for userID.
func (m *Manager) Join(userID string) {
	m.mu.Lock()
	m.sessions[userID]++
	first := m.sessions[userID] == 1
	m.mu.Unlock()

	if first {
		m.syncToRedis(userID, true)
	}
}

// Leave records a session ending. Unbalanced calls are ignored.
func (m *Manager) Leave(userID string) {
	m.mu.Lock()
	n, ok := m.sessions[userID]
	if !ok {
		m.mu.Unlock()
		return
	}
	last := n <= 1
	if last {
		delete(m.sessions, userID)
	} else {
		m.sessions[userID] = n - 1
	}
	m.mu.Unlock()

	if last {
		m.syncToRedis(userID, false)
	}
}

func (m *Manager) Online(userID string) bool {
	return m.Sessions(userID) > 0
}

func (m *Manager) Sessions(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[userID]
}

// OnlineUsers lists users with a live session on this process, sorted.
func (m *Manager) OnlineUsers() []string {
	m.mu.RLock()
	users := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		users = append(users, id)
	}
	m.mu.RUnlock()

	sort.Strings(users)
	return users
}

func (m *Manager) syncToRedis(userID string, online bool) {
	if m.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), constants.RedisOpTimeout)
	defer cancel()

	value := constants.UserStatusOffline
	if online {
		value = constants.UserStatusOnline
	}
	pipe := m.redis.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(constants.RedisKeyUserStatus, userID), value, constants.StatusExpiration)
	if online {
		pipe.SAdd(ctx, constants.RedisKeyOnlineUsers, userID)
	} else {
		pipe.SRem(ctx, constants.RedisKeyOnlineUsers, userID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("presence sync to redis failed", "user_id", userID, "online", online, "error", err)
	}
}
