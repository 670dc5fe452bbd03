// Package session manages device login sessions with a cache-through lookup
// path: the database row is authoritative, a redis copy absorbs the hot
// per-request validation reads.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"parley/internal/cache"
	"parley/internal/database"
	"parley/internal/middleware"
	"parley/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Store provides session persistence and cache-through lookups.
type Store struct {
	db    *database.DB
	redis *redis.Client
}

// NewStore creates a session store.
func NewStore(db *database.DB, rdb *redis.Client) *Store {
	return &Store{db: db, redis: rdb}
}

// Create persists a new session and warms the cache.
func (s *Store) Create(ctx context.Context, session *models.Session) error {
	now := time.Now()
	if session.ExpiresAt.IsZero() {
		session.ExpiresAt = now.Add(models.SessionTTL)
	}
	session.IsActive = true
	session.LastActivity = now
	if err := s.db.Primary.WithContext(ctx).Create(session).Error; err != nil {
		return err
	}
	s.cacheSession(ctx, session)
	return nil
}

// FindByToken resolves a session token. Cache hits skip the database; misses
// load the row and repopulate the cache. Expired or deactivated sessions are
// never returned.
func (s *Store) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	if cached := s.cachedSession(ctx, token); cached != nil {
		if cached.Usable(time.Now()) {
			return cached, nil
		}
		// Stale cache entry for a session that lapsed since it was written.
		s.evict(ctx, token)
	}

	var session models.Session
	err := s.db.Reader().WithContext(ctx).
		Where("session_token = ?", token).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewInvalidSessionError()
		}
		return nil, err
	}
	if !session.Usable(time.Now()) {
		return nil, models.NewInvalidSessionError()
	}
	s.cacheSession(ctx, &session)
	return &session, nil
}

// GetByID loads a session row by primary key, active or not.
func (s *Store) GetByID(ctx context.Context, id uint) (*models.Session, error) {
	var session models.Session
	err := s.db.Reader().WithContext(ctx).First(&session, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewInvalidSessionError()
		}
		return nil, err
	}
	return &session, nil
}

// ListForUser returns the user's active sessions, most recently used first.
func (s *Store) ListForUser(ctx context.Context, userID uint) ([]*models.Session, error) {
	var sessions []*models.Session
	err := s.db.Reader().WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND expires_at > ?", userID, true, time.Now()).
		Order("last_activity DESC").
		Find(&sessions).Error
	return sessions, err
}

// Touch bumps LastActivity. Best-effort: a failed touch never fails the
// request that triggered it.
func (s *Store) Touch(ctx context.Context, session *models.Session) {
	now := time.Now()
	if err := s.db.Primary.WithContext(ctx).Model(session).
		Update("last_activity", now).Error; err != nil {
		middleware.Logger.Warn("Failed to touch session",
			slog.Uint64("session_id", uint64(session.ID)),
			slog.String("error", err.Error()))
		return
	}
	session.LastActivity = now
	s.cacheSession(ctx, session)
}

// AttachSocket records the socket currently bound to the session.
func (s *Store) AttachSocket(ctx context.Context, session *models.Session, socketID string) error {
	if err := s.db.Primary.WithContext(ctx).Model(session).
		Update("socket_id", socketID).Error; err != nil {
		return err
	}
	session.SocketID = &socketID
	s.cacheSession(ctx, session)
	return nil
}

// DetachSocket clears the socket binding if the session still points at
// socketID. A newer connection that already claimed the session wins.
func (s *Store) DetachSocket(ctx context.Context, sessionID uint, socketID string) error {
	res := s.db.Primary.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND socket_id = ?", sessionID, socketID).
		Update("socket_id", nil)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		var session models.Session
		if err := s.db.Primary.WithContext(ctx).First(&session, sessionID).Error; err == nil {
			s.cacheSession(ctx, &session)
		}
	}
	return nil
}

// Invalidate deactivates a single session and evicts its cache entry.
func (s *Store) Invalidate(ctx context.Context, session *models.Session) error {
	if err := s.db.Primary.WithContext(ctx).Model(session).
		Update("is_active", false).Error; err != nil {
		return err
	}
	session.IsActive = false
	s.evict(ctx, session.SessionToken)
	return nil
}

// InvalidateAllForUser deactivates every active session the user holds and
// evicts each cached copy. Used on password change and "log out everywhere".
func (s *Store) InvalidateAllForUser(ctx context.Context, userID uint) (int64, error) {
	var tokens []string
	if err := s.db.Reader().WithContext(ctx).Model(&models.Session{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Pluck("session_token", &tokens).Error; err != nil {
		return 0, err
	}

	res := s.db.Primary.WithContext(ctx).Model(&models.Session{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Update("is_active", false)
	if res.Error != nil {
		return 0, res.Error
	}
	for _, token := range tokens {
		s.evict(ctx, token)
	}
	return res.RowsAffected, nil
}

func (s *Store) cacheSession(ctx context.Context, session *models.Session) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(session)
	if err != nil {
		return
	}
	// Cap the cache TTL at the session's remaining life.
	ttl := cache.SessionCacheTTL
	if remaining := time.Until(session.ExpiresAt); remaining < ttl {
		if remaining <= 0 {
			return
		}
		ttl = remaining
	}
	if err := s.redis.Set(ctx, cache.SessionKey(session.SessionToken), data, ttl).Err(); err != nil {
		middleware.Logger.Warn("Failed to cache session", slog.String("error", err.Error()))
	}
}

func (s *Store) cachedSession(ctx context.Context, token string) *models.Session {
	if s.redis == nil {
		return nil
	}
	data, err := s.redis.Get(ctx, cache.SessionKey(token)).Bytes()
	if err != nil {
		return nil
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil
	}
	// The token is elided from the JSON form; restore it from the key.
	session.SessionToken = token
	return &session
}

func (s *Store) evict(ctx context.Context, token string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, cache.SessionKey(token)).Err(); err != nil {
		middleware.Logger.Warn("Failed to evict cached session", slog.String("error", err.Error()))
	}
}
