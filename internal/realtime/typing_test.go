package realtime

import (
	"context"
	"testing"
	"time"

	"parley/internal/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTyping(t *testing.T) (*TypingTracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewTypingTracker(rdb), mr
}

func TestTypingStartSetsFlagAndPublishes(t *testing.T) {
	tracker, mr := setupTyping(t)
	ctx := context.Background()

	publish, err := tracker.Start(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, publish)
	assert.True(t, mr.Exists(cache.TypingKey(1, 2)))
	assert.True(t, tracker.IsTyping(ctx, 1, 2))
}

func TestTypingRestartDebounced(t *testing.T) {
	tracker, _ := setupTyping(t)
	ctx := context.Background()

	now := time.Now()
	tracker.now = func() time.Time { return now }

	publish, err := tracker.Start(ctx, 1, 2)
	require.NoError(t, err)
	require.True(t, publish)

	// Restart inside the debounce window refreshes but stays quiet.
	tracker.now = func() time.Time { return now.Add(500 * time.Millisecond) }
	publish, err = tracker.Start(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, publish)

	// Past the window it republishes.
	tracker.now = func() time.Time { return now.Add(1500 * time.Millisecond) }
	publish, err = tracker.Start(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, publish)
}

func TestTypingStopClearsFlag(t *testing.T) {
	tracker, mr := setupTyping(t)
	ctx := context.Background()

	_, err := tracker.Start(ctx, 3, 4)
	require.NoError(t, err)

	publish, err := tracker.Stop(ctx, 3, 4)
	require.NoError(t, err)
	assert.True(t, publish)
	assert.False(t, mr.Exists(cache.TypingKey(3, 4)))

	// A stop with nothing set is quiet.
	publish, err = tracker.Stop(ctx, 3, 4)
	require.NoError(t, err)
	assert.False(t, publish)
}

func TestTypingLapsedEntriesPruned(t *testing.T) {
	tracker, _ := setupTyping(t)
	ctx := context.Background()

	now := time.Now()
	tracker.now = func() time.Time { return now }

	_, err := tracker.Start(ctx, 1, 2)
	require.NoError(t, err)
	_, err = tracker.Start(ctx, 1, 3)
	require.NoError(t, err)

	// Both flags lapse by TTL with no explicit Stop. The next Start sweeps
	// their debounce entries so the map only tracks live typers.
	tracker.now = func() time.Time { return now.Add(cache.TypingTTL + time.Second) }
	_, err = tracker.Start(ctx, 9, 9)
	require.NoError(t, err)

	tracker.mu.Lock()
	_, staleA := tracker.lastStart[typingKey{chatID: 1, userID: 2}]
	_, staleB := tracker.lastStart[typingKey{chatID: 1, userID: 3}]
	size := len(tracker.lastStart)
	tracker.mu.Unlock()

	assert.False(t, staleA)
	assert.False(t, staleB)
	assert.Equal(t, 1, size)
}

func TestTypingFlagExpires(t *testing.T) {
	tracker, mr := setupTyping(t)
	ctx := context.Background()

	_, err := tracker.Start(ctx, 5, 6)
	require.NoError(t, err)

	mr.FastForward(cache.TypingTTL + time.Second)
	assert.False(t, tracker.IsTyping(ctx, 5, 6))
}
