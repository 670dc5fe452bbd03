package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"parley/internal/cache"
	"parley/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type presenceRecorder struct {
	mu       sync.Mutex
	online   []uint
	offline  []uint
	statuses []string
}

func (r *presenceRecorder) onOnline(userID uint, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online = append(r.online, userID)
	r.statuses = append(r.statuses, status)
}

func (r *presenceRecorder) onOffline(userID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offline = append(r.offline, userID)
}

func (r *presenceRecorder) offlineCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.offline)
}

func setupPresence(t *testing.T, grace time.Duration) (*PresenceRegistry, *presenceRecorder, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rec := &presenceRecorder{}
	reg := NewPresenceRegistry(rdb, PresenceConfig{
		NodeID:         "node-a",
		OfflineGrace:   grace,
		ReaperInterval: time.Hour,
		OnOnline:       rec.onOnline,
		OnOffline:      rec.onOffline,
	})
	t.Cleanup(reg.Stop)
	return reg, rec, mr
}

func TestRegisterPublishesOnlineOnce(t *testing.T) {
	reg, rec, mr := setupPresence(t, 50*time.Millisecond)
	ctx := context.Background()

	reg.Register(ctx, 1)
	reg.Register(ctx, 1)

	rec.mu.Lock()
	assert.Equal(t, []uint{1}, rec.online, "second socket must not re-announce")
	rec.mu.Unlock()

	assert.True(t, reg.IsOnline(ctx, 1))
	assert.True(t, mr.Exists(cache.UserStatusKey(1)))
	assert.True(t, mr.Exists(cache.UserBeaconKey(1, "node-a")))
	members, _ := mr.SMembers(cache.OnlineSetKey)
	assert.Contains(t, members, "1")
}

func TestOfflineAfterGraceExactlyOnce(t *testing.T) {
	reg, rec, mr := setupPresence(t, 30*time.Millisecond)
	ctx := context.Background()

	reg.Register(ctx, 2)
	reg.Unregister(ctx, 2)

	// The status key this node wrote is still live, yet with the node's own
	// beacon dropped the grace timer must still declare offline.
	require.Eventually(t, func() bool { return rec.offlineCount() == 1 },
		time.Second, 5*time.Millisecond)

	// Nothing else fires later.
	assert.Never(t, func() bool { return rec.offlineCount() > 1 },
		150*time.Millisecond, 20*time.Millisecond)
	assert.False(t, reg.IsOnline(ctx, 2))
	assert.False(t, mr.Exists(cache.UserStatusKey(2)))
}

func TestReconnectWithinGraceCancelsOffline(t *testing.T) {
	reg, rec, _ := setupPresence(t, 80*time.Millisecond)
	ctx := context.Background()

	reg.Register(ctx, 3)
	reg.Unregister(ctx, 3)
	reg.Register(ctx, 3)

	assert.Never(t, func() bool { return rec.offlineCount() > 0 },
		200*time.Millisecond, 20*time.Millisecond)
	assert.True(t, reg.IsOnline(ctx, 3))
}

func TestRemoteSocketSuppressesOffline(t *testing.T) {
	reg, rec, mr := setupPresence(t, 30*time.Millisecond)
	ctx := context.Background()

	reg.Register(ctx, 4)
	reg.Unregister(ctx, 4)

	// Another node's beacon means the user still has a socket somewhere.
	require.NoError(t, mr.Set(cache.UserBeaconKey(4, "node-b"), "1"))

	assert.Never(t, func() bool { return rec.offlineCount() > 0 },
		200*time.Millisecond, 20*time.Millisecond)
	assert.True(t, reg.IsOnline(ctx, 4))
}

func TestSecondLocalSocketSuppressesOffline(t *testing.T) {
	reg, rec, _ := setupPresence(t, 30*time.Millisecond)
	ctx := context.Background()

	reg.Register(ctx, 5)
	reg.Register(ctx, 5)
	reg.Unregister(ctx, 5)

	assert.Never(t, func() bool { return rec.offlineCount() > 0 },
		150*time.Millisecond, 20*time.Millisecond)
}

func TestSetStatusAway(t *testing.T) {
	reg, _, mr := setupPresence(t, time.Minute)
	ctx := context.Background()

	assert.False(t, reg.SetStatus(ctx, 6, models.StatusAway), "disconnected users cannot set status")

	reg.Register(ctx, 6)
	assert.True(t, reg.SetStatus(ctx, 6, models.StatusAway))
	assert.Equal(t, models.StatusAway, reg.Status(ctx, 6))

	val, err := mr.Get(cache.UserStatusKey(6))
	require.NoError(t, err)
	assert.Equal(t, models.StatusAway, val)

	// Re-setting the same status reports no change.
	assert.False(t, reg.SetStatus(ctx, 6, models.StatusAway))

	// Bogus statuses are refused.
	assert.False(t, reg.SetStatus(ctx, 6, "invisible"))
}

func TestOnlineUserIDsFiltersLapsedKeys(t *testing.T) {
	reg, _, mr := setupPresence(t, time.Minute)
	ctx := context.Background()

	reg.Register(ctx, 7)

	// A fleet member whose TTL key already lapsed.
	mr.SAdd(cache.OnlineSetKey, "8")
	// A live remote member.
	mr.SAdd(cache.OnlineSetKey, "9")
	require.NoError(t, mr.Set(cache.UserStatusKey(9), models.StatusOnline))

	ids := reg.OnlineUserIDs(ctx)
	assert.ElementsMatch(t, []uint{7, 9}, ids)

	// The lapsed member was pruned from the set.
	members, _ := mr.SMembers(cache.OnlineSetKey)
	assert.NotContains(t, members, "8")
}

func TestReaperEmitsOfflineForLapsedUsers(t *testing.T) {
	reg, rec, mr := setupPresence(t, time.Minute)
	ctx := context.Background()

	mr.SAdd(cache.OnlineSetKey, "10")
	reg.reapOnce(ctx)

	require.Eventually(t, func() bool { return rec.offlineCount() == 1 },
		time.Second, 5*time.Millisecond)
}
