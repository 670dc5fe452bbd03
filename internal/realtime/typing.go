package realtime

import (
	"context"
	"sync"
	"time"

	"parley/internal/cache"

	"github.com/redis/go-redis/v9"
)

// How soon a repeated typing:start may republish. Restarts inside the window
// still refresh the TTL key.
const typingDebounce = time.Second

// TypingTracker keeps per-(chat, user) typing flags in redis with a short
// TTL, so consumers auto-clear on expiry without an explicit stop.
type TypingTracker struct {
	rdb *redis.Client

	mu        sync.Mutex
	lastStart map[typingKey]time.Time

	now func() time.Time
}

type typingKey struct {
	chatID uint
	userID uint
}

// NewTypingTracker creates a typing tracker.
func NewTypingTracker(rdb *redis.Client) *TypingTracker {
	return &TypingTracker{
		rdb:       rdb,
		lastStart: make(map[typingKey]time.Time),
		now:       time.Now,
	}
}

// Start marks the user as typing in the chat and reports whether the caller
// should publish the event. Restarts within the debounce window refresh the
// TTL but suppress the republish.
func (t *TypingTracker) Start(ctx context.Context, chatID, userID uint) (bool, error) {
	if t.rdb != nil {
		if err := t.rdb.SetEx(ctx, cache.TypingKey(chatID, userID), "1", cache.TypingTTL).Err(); err != nil {
			return false, err
		}
	}

	key := typingKey{chatID: chatID, userID: userID}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Flags that lapsed by TTL never see an explicit Stop; drop their
	// debounce entries here so the map tracks only live typers.
	for k, last := range t.lastStart {
		if now.Sub(last) > cache.TypingTTL {
			delete(t.lastStart, k)
		}
	}

	if last, ok := t.lastStart[key]; ok && now.Sub(last) < typingDebounce {
		return false, nil
	}
	t.lastStart[key] = now
	return true, nil
}

// Stop clears the flag and reports whether it was set.
func (t *TypingTracker) Stop(ctx context.Context, chatID, userID uint) (bool, error) {
	key := typingKey{chatID: chatID, userID: userID}

	t.mu.Lock()
	_, wasTracked := t.lastStart[key]
	delete(t.lastStart, key)
	t.mu.Unlock()

	if t.rdb == nil {
		return wasTracked, nil
	}
	removed, err := t.rdb.Del(ctx, cache.TypingKey(chatID, userID)).Result()
	if err != nil {
		return false, err
	}
	return removed > 0 || wasTracked, nil
}

// IsTyping reports whether the flag is currently live.
func (t *TypingTracker) IsTyping(ctx context.Context, chatID, userID uint) bool {
	if t.rdb == nil {
		return false
	}
	exists, err := t.rdb.Exists(ctx, cache.TypingKey(chatID, userID)).Result()
	return err == nil && exists > 0
}
