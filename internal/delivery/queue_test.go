package delivery

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

func setupQueue(t *testing.T) (*Queue, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewQueue(rdb, "test-node")
	require.NoError(t, q.EnsureGroup(context.Background()))
	return q, rdb, mr
}

func TestEnqueueFetchAck(t *testing.T) {
	q, rdb, _ := setupQueue(t)
	ctx := context.Background()

	unit := Unit{MessageID: 1, ChatID: 2, SenderID: 3, Recipients: []uint{4, 5}}
	require.NoError(t, q.Enqueue(ctx, unit))

	entries, err := q.Fetch(ctx, 10, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, unit, entries[0].Unit)
	assert.EqualValues(t, 1, entries[0].Attempts)

	require.NoError(t, q.Ack(ctx, entries[0].ID))

	pending, err := rdb.XPending(ctx, cache.DeliveryStreamKey, groupName).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestEnsureGroupIdempotent(t *testing.T) {
	q, _, _ := setupQueue(t)
	require.NoError(t, q.EnsureGroup(context.Background()))
}

func TestFetchDrainsMalformedEntries(t *testing.T) {
	q, rdb, _ := setupQueue(t)
	ctx := context.Background()

	require.NoError(t, rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: cache.DeliveryStreamKey,
		Values: map[string]any{"unit": "{broken"},
	}).Err())

	entries, err := q.Fetch(ctx, 10, time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, entries)

	pending, err := rdb.XPending(ctx, cache.DeliveryStreamKey, groupName).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count, "malformed entries are acked away")
}

func TestDeadLetter(t *testing.T) {
	q, rdb, _ := setupQueue(t)
	ctx := context.Background()

	unit := Unit{MessageID: 9, ChatID: 1, SenderID: 2, Recipients: []uint{3}}
	require.NoError(t, q.Enqueue(ctx, unit))
	entries, err := q.Fetch(ctx, 10, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entries[0].Attempts = maxAttempts + 1
	require.NoError(t, q.DeadLetter(ctx, entries[0]))

	deadLen, err := rdb.XLen(ctx, cache.DeliveryDeadLetters).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, deadLen)

	pending, err := rdb.XPending(ctx, cache.DeliveryStreamKey, groupName).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestBackoffDoubles(t *testing.T) {
	assert.Equal(t, 30*time.Second, backoffFor(0))
	assert.Equal(t, 30*time.Second, backoffFor(1))
	assert.Equal(t, 60*time.Second, backoffFor(2))
	assert.Equal(t, 120*time.Second, backoffFor(3))
	assert.Equal(t, 480*time.Second, backoffFor(5))
}

func TestClaimRespectsBackoff(t *testing.T) {
	q, _, _ := setupQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Unit{MessageID: 1, ChatID: 1, SenderID: 1, Recipients: []uint{2}}))
	_, err := q.Fetch(ctx, 10, time.Millisecond)
	require.NoError(t, err)

	// The unit was just reserved; its idle time is far below the window.
	entries, err := q.Claim(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
