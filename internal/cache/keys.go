package cache

import (
	"fmt"
	"time"
)

// Key namespaces shared across the fleet.
const (
	SessionKeyPrefix    = "session:%s"
	OnlineSetKey        = "user:online"
	UserStatusKeyPrefix = "user:status:%d"
	UserBeaconKeyPrefix = "user:beacon:%d:%s"
	TypingKeyPrefix     = "typing:%d:%d"
	RateLimitKeyPrefix  = "ratelimit:%s:%s"
	DeliveryStreamKey   = "message-delivery-stream"
	DeliveryDeadLetters = "message-delivery-dead-letters"
)

// TTLs for the volatile keys.
const (
	SessionCacheTTL = time.Hour
	UserStatusTTL   = 60 * time.Second
	TypingTTL       = 5 * time.Second
)

// SessionKey builds the cache key for a session token.
func SessionKey(token string) string {
	return fmt.Sprintf(SessionKeyPrefix, token)
}

// UserStatusKey builds the TTL key holding a user's presence contribution.
func UserStatusKey(userID uint) string {
	return fmt.Sprintf(UserStatusKeyPrefix, userID)
}

// UserBeaconKey builds one node's TTL contribution to a user's fleet-wide
// socket count. A node with a live socket for the user keeps its own beacon
// refreshed; the user is reachable while any beacon exists.
func UserBeaconKey(userID uint, nodeID string) string {
	return fmt.Sprintf(UserBeaconKeyPrefix, userID, nodeID)
}

// UserBeaconPattern matches every node's beacon for the user.
func UserBeaconPattern(userID uint) string {
	return fmt.Sprintf(UserBeaconKeyPrefix, userID, "*")
}

// TypingKey builds the TTL key for a typing flag.
func TypingKey(chatID, userID uint) string {
	return fmt.Sprintf(TypingKeyPrefix, chatID, userID)
}

// RateLimitKey builds the counter key for a bucket and caller.
func RateLimitKey(bucket, id string) string {
	return fmt.Sprintf(RateLimitKeyPrefix, bucket, id)
}
