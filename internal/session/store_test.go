package session

import (
	"context"
	"testing"
	"time"

	"parley/internal/database"
	"parley/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis, *database.DB) {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(gdb))
	db := &database.DB{Primary: gdb}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return NewStore(db, rdb), mr, db
}

func newSession(userID uint, token string) *models.Session {
	return &models.Session{
		UserID:       userID,
		SessionToken: token,
		DeviceType:   "web",
		DeviceName:   "test browser",
	}
}

func TestCreateAndFindByToken(t *testing.T) {
	store, mr, _ := setupStore(t)
	ctx := context.Background()

	sess := newSession(1, "tok-abc")
	require.NoError(t, store.Create(ctx, sess))
	assert.NotZero(t, sess.ID)
	assert.True(t, mr.Exists("session:tok-abc"))

	found, err := store.FindByToken(ctx, "tok-abc")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, found.ID)
	assert.EqualValues(t, 1, found.UserID)
	assert.Equal(t, "tok-abc", found.SessionToken)
}

func TestFindByTokenCacheMissRepopulates(t *testing.T) {
	store, mr, _ := setupStore(t)
	ctx := context.Background()

	sess := newSession(2, "tok-miss")
	require.NoError(t, store.Create(ctx, sess))
	mr.FlushAll()

	found, err := store.FindByToken(ctx, "tok-miss")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, found.ID)
	assert.True(t, mr.Exists("session:tok-miss"))
}

func TestFindByTokenUnknown(t *testing.T) {
	store, _, _ := setupStore(t)

	_, err := store.FindByToken(context.Background(), "no-such-token")
	require.Error(t, err)
	assert.Equal(t, "InvalidSession", models.AsAppError(err).Code)
}

func TestExpiredSessionRejectedEvenWhenCached(t *testing.T) {
	store, mr, db := setupStore(t)
	ctx := context.Background()

	sess := newSession(3, "tok-exp")
	require.NoError(t, store.Create(ctx, sess))

	// Expire the row behind the cache's back.
	require.NoError(t, db.Primary.Model(sess).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)
	sess.ExpiresAt = time.Now().Add(-time.Minute)
	store.cacheSession(ctx, sess)

	_, err := store.FindByToken(ctx, "tok-exp")
	require.Error(t, err)
	assert.Equal(t, "InvalidSession", models.AsAppError(err).Code)
	assert.False(t, mr.Exists("session:tok-exp"))
}

func TestInvalidateEvictsCache(t *testing.T) {
	store, mr, _ := setupStore(t)
	ctx := context.Background()

	sess := newSession(4, "tok-inv")
	require.NoError(t, store.Create(ctx, sess))

	require.NoError(t, store.Invalidate(ctx, sess))
	assert.False(t, mr.Exists("session:tok-inv"))

	_, err := store.FindByToken(ctx, "tok-inv")
	require.Error(t, err)
}

func TestInvalidateAllForUser(t *testing.T) {
	store, mr, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newSession(5, "tok-a")))
	require.NoError(t, store.Create(ctx, newSession(5, "tok-b")))
	require.NoError(t, store.Create(ctx, newSession(6, "tok-other")))

	n, err := store.InvalidateAllForUser(ctx, 5)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.False(t, mr.Exists("session:tok-a"))
	assert.False(t, mr.Exists("session:tok-b"))

	// The other user's session survives.
	found, err := store.FindByToken(ctx, "tok-other")
	require.NoError(t, err)
	assert.EqualValues(t, 6, found.UserID)
}

func TestAttachDetachSocket(t *testing.T) {
	store, _, db := setupStore(t)
	ctx := context.Background()

	sess := newSession(7, "tok-sock")
	require.NoError(t, store.Create(ctx, sess))

	require.NoError(t, store.AttachSocket(ctx, sess, "sock-1"))

	var row models.Session
	require.NoError(t, db.Primary.First(&row, sess.ID).Error)
	require.NotNil(t, row.SocketID)
	assert.Equal(t, "sock-1", *row.SocketID)

	// A detach for a stale socket ID is a no-op.
	require.NoError(t, store.DetachSocket(ctx, sess.ID, "sock-stale"))
	require.NoError(t, db.Primary.First(&row, sess.ID).Error)
	require.NotNil(t, row.SocketID)

	require.NoError(t, store.DetachSocket(ctx, sess.ID, "sock-1"))
	require.NoError(t, db.Primary.First(&row, sess.ID).Error)
	assert.Nil(t, row.SocketID)
}
