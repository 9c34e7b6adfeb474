package constants

import "time"

// User status values mirrored to Redis
const (
	UserStatusOnline  = "online"
	UserStatusOffline = "offline"
)

// Redis key formats
const (
	RedisKeyUserStatus  = "user:%s:status"
	RedisKeyOnlineUsers = "online_users"
)

// StatusExpiration bounds how long a mirrored status outlives its last update.
const StatusExpiration = 10 * time.Minute

// RedisOpTimeout bounds every best-effort Redis call.
const RedisOpTimeout = 500 * time.Millisecond

// Close frame reasons shown to clients
const (
	CloseReasonRevoked = "authentication revoked"
)
