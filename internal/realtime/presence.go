package realtime

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"parley/internal/cache"
	"parley/internal/middleware"
	"parley/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	// How long a user's presence key lives without a heartbeat.
	presenceTTL = cache.UserStatusTTL

	// Clients heartbeat at half the TTL.
	HeartbeatInterval = presenceTTL / 2

	// Delay before a user with zero sockets fleet-wide is declared offline.
	defaultOfflineGrace = 30 * time.Second

	// Background sweep for keys that expired without a local disconnect.
	defaultReaperInterval = 60 * time.Second
)

// PresenceConfig tunes the registry. Zero values take the defaults.
type PresenceConfig struct {
	NodeID         string
	OfflineGrace   time.Duration
	ReaperInterval time.Duration
	OnOnline       func(userID uint, status string)
	OnOffline      func(userID uint)
}

// PresenceRegistry tracks which users are connected across the fleet. Local
// socket counts answer the fast path; redis holds the fleet view as the
// `user:online` set, one TTL key per user carrying the visible status, and
// one TTL beacon per (user, node) so each node's contribution is separable.
// A node drops its own beacon when its last socket for the user goes away,
// so the grace timer can tell "another node still has the user" apart from
// this node's leftover keys. Offline is published once, after the grace
// window, when no beacon survives.
type PresenceRegistry struct {
	rdb    *redis.Client
	nodeID string

	mu              sync.RWMutex
	localCounts     map[uint]int
	statuses        map[uint]string
	offlineTimers   map[uint]*time.Timer
	offlineNotified map[uint]bool

	offlineGrace   time.Duration
	reaperInterval time.Duration

	onOnline  func(userID uint, status string)
	onOffline func(userID uint)

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewPresenceRegistry creates a registry and starts the reaper when redis is
// available.
func NewPresenceRegistry(rdb *redis.Client, cfg PresenceConfig) *PresenceRegistry {
	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = "local"
	}
	r := &PresenceRegistry{
		rdb:             rdb,
		nodeID:          nodeID,
		localCounts:     make(map[uint]int),
		statuses:        make(map[uint]string),
		offlineTimers:   make(map[uint]*time.Timer),
		offlineNotified: make(map[uint]bool),
		offlineGrace:    defaultOfflineGrace,
		reaperInterval:  defaultReaperInterval,
		onOnline:        cfg.OnOnline,
		onOffline:       cfg.OnOffline,
		stopCh:          make(chan struct{}),
	}
	if cfg.OfflineGrace > 0 {
		r.offlineGrace = cfg.OfflineGrace
	}
	if cfg.ReaperInterval > 0 {
		r.reaperInterval = cfg.ReaperInterval
	}

	if r.rdb != nil {
		go r.reaperLoop()
	}
	return r
}

// SetCallbacks installs the online/offline transition hooks.
func (r *PresenceRegistry) SetCallbacks(onOnline func(userID uint, status string), onOffline func(userID uint)) {
	r.mu.Lock()
	r.onOnline = onOnline
	r.onOffline = onOffline
	r.mu.Unlock()
}

// Stop halts the reaper and pending grace timers.
func (r *PresenceRegistry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.mu.Lock()
		for userID, t := range r.offlineTimers {
			t.Stop()
			delete(r.offlineTimers, userID)
		}
		r.mu.Unlock()
	})
}

// Register records a new socket for the user. The first socket fleet-wide
// publishes the online transition.
func (r *PresenceRegistry) Register(ctx context.Context, userID uint) {
	wasOnline := r.IsOnline(ctx, userID)

	r.mu.Lock()
	if t, ok := r.offlineTimers[userID]; ok {
		t.Stop()
		delete(r.offlineTimers, userID)
	}
	r.localCounts[userID]++
	r.offlineNotified[userID] = false
	status, ok := r.statuses[userID]
	if !ok {
		status = models.StatusOnline
		r.statuses[userID] = status
	}
	r.mu.Unlock()

	r.Touch(ctx, userID)
	if !wasOnline {
		r.emitOnline(userID, status)
	}
}

// Touch refreshes the user's presence TTL key. Called on heartbeat and on
// inbound socket activity.
func (r *PresenceRegistry) Touch(ctx context.Context, userID uint) {
	if r.rdb == nil {
		return
	}
	r.mu.RLock()
	status := r.statuses[userID]
	r.mu.RUnlock()
	if status == "" {
		status = models.StatusOnline
	}

	uid := strconv.FormatUint(uint64(userID), 10)
	if err := r.rdb.SAdd(ctx, cache.OnlineSetKey, uid).Err(); err != nil {
		middleware.Logger.Warn("Presence SADD failed",
			slog.Uint64("user_id", uint64(userID)), slog.String("error", err.Error()))
	}
	if err := r.rdb.SetEx(ctx, cache.UserStatusKey(userID), status, presenceTTL).Err(); err != nil {
		middleware.Logger.Warn("Presence SETEX failed",
			slog.Uint64("user_id", uint64(userID)), slog.String("error", err.Error()))
	}
	if err := r.rdb.SetEx(ctx, cache.UserBeaconKey(userID, r.nodeID), "1", presenceTTL).Err(); err != nil {
		middleware.Logger.Warn("Presence beacon refresh failed",
			slog.Uint64("user_id", uint64(userID)), slog.String("error", err.Error()))
	}
}

// SetStatus honors a client-requested status (online/away) while connected
// and reports whether the visible status changed.
func (r *PresenceRegistry) SetStatus(ctx context.Context, userID uint, status string) bool {
	if status != models.StatusOnline && status != models.StatusAway {
		return false
	}

	r.mu.Lock()
	if r.localCounts[userID] == 0 {
		r.mu.Unlock()
		return false
	}
	changed := r.statuses[userID] != status
	r.statuses[userID] = status
	r.mu.Unlock()

	r.Touch(ctx, userID)
	return changed
}

// Status returns the user's visible status: the local override when
// connected here, the fleet key otherwise, offline when neither exists.
func (r *PresenceRegistry) Status(ctx context.Context, userID uint) string {
	r.mu.RLock()
	if r.localCounts[userID] > 0 {
		status := r.statuses[userID]
		r.mu.RUnlock()
		return status
	}
	r.mu.RUnlock()

	if r.rdb != nil {
		if status, err := r.rdb.Get(ctx, cache.UserStatusKey(userID)).Result(); err == nil {
			return status
		}
	}
	return models.StatusOffline
}

// Unregister records a socket going away. The last local socket drops this
// node's beacon and arms the grace timer; the timer declares offline only if
// no other node's beacon survives.
func (r *PresenceRegistry) Unregister(ctx context.Context, userID uint) {
	r.mu.Lock()
	if n, ok := r.localCounts[userID]; ok {
		n--
		if n > 0 {
			r.localCounts[userID] = n
			r.mu.Unlock()
			return
		}
		delete(r.localCounts, userID)
		delete(r.statuses, userID)
	}

	if t, ok := r.offlineTimers[userID]; ok {
		t.Stop()
	}
	r.offlineTimers[userID] = time.AfterFunc(r.offlineGrace, func() {
		r.finalizeOffline(context.Background(), userID)
	})
	r.mu.Unlock()

	if r.rdb != nil {
		_ = r.rdb.Del(ctx, cache.UserBeaconKey(userID, r.nodeID)).Err()
	}
}

// IsOnline answers from local state first, then the fleet key.
func (r *PresenceRegistry) IsOnline(ctx context.Context, userID uint) bool {
	r.mu.RLock()
	if r.localCounts[userID] > 0 {
		r.mu.RUnlock()
		return true
	}
	r.mu.RUnlock()

	if r.rdb == nil {
		return false
	}
	exists, err := r.rdb.Exists(ctx, cache.UserStatusKey(userID)).Result()
	return err == nil && exists > 0
}

// OnlineUserIDs returns the fleet view, filtering members whose TTL key has
// lapsed, unioned with local sockets as a safety net.
func (r *PresenceRegistry) OnlineUserIDs(ctx context.Context) []uint {
	local := r.localUserIDs()
	if r.rdb == nil {
		return local
	}

	members, err := r.rdb.SMembers(ctx, cache.OnlineSetKey).Result()
	if err != nil {
		return local
	}

	seen := make(map[uint]struct{}, len(members)+len(local))
	result := make([]uint, 0, len(members)+len(local))

	for _, raw := range members {
		id64, parseErr := strconv.ParseUint(raw, 10, 32)
		if parseErr != nil {
			continue
		}
		userID := uint(id64)
		exists, existsErr := r.rdb.Exists(ctx, cache.UserStatusKey(userID)).Result()
		if existsErr != nil {
			continue
		}
		if exists == 0 {
			_ = r.rdb.SRem(ctx, cache.OnlineSetKey, raw).Err()
			continue
		}
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		result = append(result, userID)
	}

	for _, userID := range local {
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		result = append(result, userID)
	}

	return result
}

// reapOnce removes set members whose TTL key lapsed and emits offline for
// users with no local sockets either.
func (r *PresenceRegistry) reapOnce(ctx context.Context) {
	if r.rdb == nil {
		return
	}
	members, err := r.rdb.SMembers(ctx, cache.OnlineSetKey).Result()
	if err != nil {
		return
	}
	for _, raw := range members {
		id64, parseErr := strconv.ParseUint(raw, 10, 32)
		if parseErr != nil {
			continue
		}
		userID := uint(id64)
		exists, existsErr := r.rdb.Exists(ctx, cache.UserStatusKey(userID)).Result()
		if existsErr != nil || exists > 0 {
			continue
		}

		_ = r.rdb.SRem(ctx, cache.OnlineSetKey, raw).Err()

		r.mu.RLock()
		hasLocal := r.localCounts[userID] > 0
		r.mu.RUnlock()
		if !hasLocal {
			r.emitOffline(userID)
		}
	}
}

func (r *PresenceRegistry) reaperLoop() {
	ticker := time.NewTicker(r.reaperInterval)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.reapOnce(ctx)
		}
	}
}

func (r *PresenceRegistry) finalizeOffline(ctx context.Context, userID uint) {
	r.mu.Lock()
	if r.localCounts[userID] > 0 {
		delete(r.offlineTimers, userID)
		r.mu.Unlock()
		return
	}
	delete(r.offlineTimers, userID)
	r.mu.Unlock()

	if r.rdb != nil {
		// Beacons are per node, so this node's leftover status key cannot
		// masquerade as another node's live socket.
		beacons, err := r.rdb.Keys(ctx, cache.UserBeaconPattern(userID)).Result()
		if err == nil && len(beacons) > 0 {
			return
		}
		_ = r.rdb.Del(ctx, cache.UserStatusKey(userID)).Err()
		_ = r.rdb.SRem(ctx, cache.OnlineSetKey, strconv.FormatUint(uint64(userID), 10)).Err()
	}

	r.emitOffline(userID)
}

func (r *PresenceRegistry) emitOnline(userID uint, status string) {
	r.mu.Lock()
	r.offlineNotified[userID] = false
	cb := r.onOnline
	r.mu.Unlock()
	if cb != nil {
		cb(userID, status)
	}
}

func (r *PresenceRegistry) emitOffline(userID uint) {
	r.mu.Lock()
	if r.offlineNotified[userID] {
		r.mu.Unlock()
		return
	}
	r.offlineNotified[userID] = true
	cb := r.onOffline
	r.mu.Unlock()
	if cb != nil {
		cb(userID)
	}
}

func (r *PresenceRegistry) localUserIDs() []uint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint, 0, len(r.localCounts))
	for userID, count := range r.localCounts {
		if count > 0 {
			ids = append(ids, userID)
		}
	}
	return ids
}
