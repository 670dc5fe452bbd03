package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"parley/internal/middleware"
	"parley/internal/models"
	"parley/internal/observability"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	// Connection caps per node.
	maxConnsPerUser = 12
	maxTotalConns   = 10000
)

// TargetedPayload wraps a bridged event aimed at one user's sockets rather
// than a chat room.
type TargetedPayload struct {
	TargetUserID uint            `json:"targetUserId"`
	Data         json.RawMessage `json:"data"`
}

// chatProbe extracts the routing fields shared by chat-scoped payloads.
type chatProbe struct {
	ChatID uint `json:"chatId"`
	UserID uint `json:"userId"`
}

// Hub is the socket manager: it owns every live websocket on this node,
// groups them into per-chat rooms, and works with the bridge so an emit
// reaches sockets on every node exactly once.
type Hub struct {
	mu sync.RWMutex

	// userID -> live clients (multi-device).
	conns map[uint]map[*Client]struct{}

	// chatID -> subscribed userIDs.
	rooms map[uint]map[uint]struct{}

	// userID -> chats the user is joined to on this node.
	userRooms map[uint]map[uint]struct{}

	totalConns int

	presence *PresenceRegistry
	bridge   *Bridge

	// OnDisconnect runs after a client is fully removed (session detach).
	OnDisconnect func(c *Client)
}

// NewHub creates a hub backed by the given presence registry and bridge.
func NewHub(presence *PresenceRegistry, bridge *Bridge) *Hub {
	return &Hub{
		conns:     make(map[uint]map[*Client]struct{}),
		rooms:     make(map[uint]map[uint]struct{}),
		userRooms: make(map[uint]map[uint]struct{}),
		presence:  presence,
		bridge:    bridge,
	}
}

// Name identifies the hub in logs and metrics.
func (h *Hub) Name() string { return "socket manager" }

// Presence exposes the registry for handlers that answer presence queries.
func (h *Hub) Presence() *PresenceRegistry { return h.presence }

// Register admits a connection for userID and joins it to the given chats.
// Fails when a connection cap is hit.
func (h *Hub) Register(userID uint, conn *websocket.Conn, chatIDs []uint) (*Client, error) {
	h.mu.Lock()
	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, models.NewServiceUnavailableError(nil)
	}
	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, models.NewForbiddenError("connection limit reached for user")
	}

	client := NewClient(h, conn, userID, uuid.NewString())
	client.OnActivity = func(c *Client) {
		if h.presence != nil {
			h.presence.Touch(c.Context(), c.UserID)
		}
	}
	m[client] = struct{}{}
	h.totalConns++

	for _, chatID := range chatIDs {
		h.joinLocked(userID, chatID)
	}
	h.mu.Unlock()

	observability.ActiveSockets.Inc()
	observability.SocketEvents.WithLabelValues("connected").Inc()

	if h.presence != nil {
		h.presence.Register(context.Background(), userID)
	}

	return client, nil
}

// UnregisterClient removes a connection. The user leaves all rooms only when
// their last local connection is gone.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	clients, ok := h.conns[client.UserID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[client]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	h.totalConns--
	lastConn := len(clients) == 0
	if lastConn {
		delete(h.conns, client.UserID)
		for chatID := range h.userRooms[client.UserID] {
			if users, ok := h.rooms[chatID]; ok {
				delete(users, client.UserID)
				if len(users) == 0 {
					delete(h.rooms, chatID)
				}
			}
		}
		delete(h.userRooms, client.UserID)
	}
	h.mu.Unlock()

	observability.ActiveSockets.Dec()
	observability.SocketEvents.WithLabelValues("disconnected").Inc()

	client.CloseSend()

	if lastConn && h.presence != nil {
		h.presence.Unregister(context.Background(), client.UserID)
	}
	if h.OnDisconnect != nil {
		h.OnDisconnect(client)
	}
}

func (h *Hub) joinLocked(userID, chatID uint) {
	if h.rooms[chatID] == nil {
		h.rooms[chatID] = make(map[uint]struct{})
	}
	h.rooms[chatID][userID] = struct{}{}
	if h.userRooms[userID] == nil {
		h.userRooms[userID] = make(map[uint]struct{})
	}
	h.userRooms[userID][chatID] = struct{}{}
}

// JoinChat subscribes a connected user to a chat's room.
func (h *Hub) JoinChat(userID, chatID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, connected := h.conns[userID]; !connected {
		return
	}
	h.joinLocked(userID, chatID)
}

// LeaveChat removes the user from a chat's room.
func (h *Hub) LeaveChat(userID, chatID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if users, ok := h.rooms[chatID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(h.rooms, chatID)
		}
	}
	if chats, ok := h.userRooms[userID]; ok {
		delete(chats, chatID)
	}
}

// IsConnected reports whether the user has a live socket on this node.
func (h *Hub) IsConnected(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients, ok := h.conns[userID]
	return ok && len(clients) > 0
}

// EmitToUser sends an event to every local socket of one user.
func (h *Hub) EmitToUser(userID uint, event string, payload any) {
	data, err := EncodeFrame(event, payload)
	if err != nil {
		middleware.Logger.Error("Failed to encode frame",
			slog.String("event", event), slog.String("error", err.Error()))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[userID] {
		c.TrySend(data)
	}
}

// EmitToChat sends an event to every local socket subscribed to the chat,
// skipping the users in exclude.
func (h *Hub) EmitToChat(chatID uint, event string, payload any, exclude ...uint) {
	data, err := EncodeFrame(event, payload)
	if err != nil {
		middleware.Logger.Error("Failed to encode frame",
			slog.String("event", event), slog.String("error", err.Error()))
		return
	}

	skip := make(map[uint]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for userID := range h.rooms[chatID] {
		if _, excluded := skip[userID]; excluded {
			continue
		}
		for c := range h.conns[userID] {
			c.TrySend(data)
		}
	}
}

// BroadcastChat emits to the local room and publishes the same event on the
// bridge so other nodes' rooms get it too.
func (h *Hub) BroadcastChat(ctx context.Context, channel, event string, chatID uint, payload any, exclude ...uint) {
	h.EmitToChat(chatID, event, payload, exclude...)
	if h.bridge != nil {
		h.bridge.Publish(ctx, channel, event, payload)
	}
}

// NotifyUser emits to the user's local sockets and bridges a targeted
// envelope for sockets on other nodes.
func (h *Hub) NotifyUser(ctx context.Context, channel, event string, userID uint, payload any) {
	h.EmitToUser(userID, event, payload)
	if h.bridge == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.bridge.Publish(ctx, channel, event, TargetedPayload{TargetUserID: userID, Data: data})
}

// BroadcastAll sends an event to every local socket.
func (h *Hub) BroadcastAll(event string, payload any) {
	data, err := EncodeFrame(event, payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.conns {
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// StartWiring subscribes the hub to the bridge and starts presence
// transitions publishing user.status fleet-wide.
func (h *Hub) StartWiring(ctx context.Context) error {
	if h.presence != nil {
		h.presence.SetCallbacks(
			func(userID uint, status string) { h.publishUserStatus(ctx, userID, status) },
			func(userID uint) { h.publishUserStatus(ctx, userID, models.StatusOffline) },
		)
	}
	if h.bridge == nil {
		return nil
	}
	return h.bridge.Subscribe(ctx, h.consumeBridge)
}

func (h *Hub) publishUserStatus(ctx context.Context, userID uint, status string) {
	payload := UserStatusPayload{UserID: userID, Status: status, Timestamp: time.Now()}
	h.BroadcastAll(EventUserStatus, payload)
	if h.bridge != nil {
		h.bridge.Publish(ctx, ChannelUserStatus, EventUserStatus, payload)
	}
}

// consumeBridge routes envelopes from other nodes to local sockets. Local
// echoes are dropped: the publishing node already emitted to its sockets.
func (h *Hub) consumeBridge(channel string, env Envelope) {
	if h.bridge != nil && h.bridge.IsLocalEcho(env) {
		return
	}

	switch channel {
	case ChannelUserStatus:
		var payload UserStatusPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return
		}
		h.BroadcastAll(env.Event, payload)

	case ChannelReadReceipt:
		var targeted TargetedPayload
		if err := json.Unmarshal(env.Payload, &targeted); err != nil {
			return
		}
		h.emitRaw(targeted.TargetUserID, env.Event, targeted.Data)

	case ChannelTypingStart, ChannelTypingStop:
		var probe chatProbe
		if err := json.Unmarshal(env.Payload, &probe); err != nil {
			return
		}
		h.emitRawToChat(probe.ChatID, env.Event, env.Payload, probe.UserID)

	default:
		// Chat-scoped events: message:new/edit/delete/reaction, chat:update.
		var probe chatProbe
		if err := json.Unmarshal(env.Payload, &probe); err != nil {
			return
		}
		h.emitRawToChat(probe.ChatID, env.Event, env.Payload)
	}
}

func (h *Hub) emitRaw(userID uint, event string, payload json.RawMessage) {
	data, err := json.Marshal(Frame{Event: event, Payload: payload})
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[userID] {
		c.TrySend(data)
	}
}

func (h *Hub) emitRawToChat(chatID uint, event string, payload json.RawMessage, exclude ...uint) {
	data, err := json.Marshal(Frame{Event: event, Payload: payload})
	if err != nil {
		return
	}
	skip := make(map[uint]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for userID := range h.rooms[chatID] {
		if _, excluded := skip[userID]; excluded {
			continue
		}
		for c := range h.conns[userID] {
			c.TrySend(data)
		}
	}
}

// Shutdown notifies every socket and closes the connections.
func (h *Hub) Shutdown(_ context.Context) error {
	h.BroadcastAll(EventServerShutdown, ServerShutdownPayload{
		Message:   "Server shutting down",
		Timestamp: time.Now(),
	})

	if h.presence != nil {
		h.presence.Stop()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, clients := range h.conns {
		for client := range clients {
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				middleware.Logger.Debug("Failed to write close message",
					slog.Uint64("user_id", uint64(userID)))
			}
			_ = client.Conn.Close()
		}
	}
	h.conns = make(map[uint]map[*Client]struct{})
	h.rooms = make(map[uint]map[uint]struct{})
	h.userRooms = make(map[uint]map[uint]struct{})
	h.totalConns = 0
	return nil
}
