package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime/debug"

	"parley/internal/middleware"
	"parley/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Fleet channels carried by the bridge.
const (
	ChannelMessageNew      = "message:new"
	ChannelMessageEdit     = "message:edit"
	ChannelMessageDelete   = "message:delete"
	ChannelMessageReaction = "message:reaction"
	ChannelUserStatus      = "user:status"
	ChannelTypingStart     = "typing:start"
	ChannelTypingStop      = "typing:stop"
	ChannelReadReceipt     = "read:receipt"
	ChannelChatUpdate      = "chat:update"
)

var bridgeChannels = []string{
	ChannelMessageNew,
	ChannelMessageEdit,
	ChannelMessageDelete,
	ChannelMessageReaction,
	ChannelUserStatus,
	ChannelTypingStart,
	ChannelTypingStop,
	ChannelReadReceipt,
	ChannelChatUpdate,
}

// Envelope is the wire form of a bridged event. Origin names the publishing
// node so consumers can drop their own echoes for events they already
// emitted locally.
type Envelope struct {
	Event   string          `json:"event"`
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

// Bridge fans events out across the fleet over redis pub/sub.
type Bridge struct {
	rdb    *redis.Client
	nodeID string
}

// NewBridge creates a bridge identified by this node's id.
func NewBridge(rdb *redis.Client, nodeID string) *Bridge {
	return &Bridge{rdb: rdb, nodeID: nodeID}
}

// NodeID returns the local node identifier stamped on published envelopes.
func (b *Bridge) NodeID() string { return b.nodeID }

// Publish sends an envelope on the given channel, fire-and-forget. A failed
// publish is retried once, then logged; persistence is the source of truth
// and the delivery queue covers the gap.
func (b *Bridge) Publish(ctx context.Context, channel, event string, payload any) {
	if b.rdb == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		middleware.Logger.Error("Bridge payload marshal failed",
			slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	raw, err := json.Marshal(Envelope{Event: event, Origin: b.nodeID, Payload: data})
	if err != nil {
		middleware.Logger.Error("Bridge envelope marshal failed",
			slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}

	if err := b.rdb.Publish(ctx, channel, raw).Err(); err != nil {
		if err = b.rdb.Publish(ctx, channel, raw).Err(); err != nil {
			observability.BridgePublishErrors.WithLabelValues(channel).Inc()
			middleware.Logger.Error("Bridge publish failed after retry",
				slog.String("channel", channel), slog.String("error", err.Error()))
		}
	}
}

// Subscribe starts the consumer loop. onEvent runs for every envelope,
// including local echoes; the handler decides per event whether an echo was
// already emitted locally. Panics in the handler are contained.
func (b *Bridge) Subscribe(ctx context.Context, onEvent func(channel string, env Envelope)) error {
	if b.rdb == nil {
		return nil
	}

	sub := b.rdb.Subscribe(ctx, bridgeChannels...)
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					middleware.Logger.Warn("Bridge dropped malformed envelope",
						slog.String("channel", msg.Channel), slog.String("error", err.Error()))
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("PANIC in bridge consumer",
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())))
						}
					}()
					onEvent(msg.Channel, env)
				}()
			}
		}
	}()

	return nil
}

// IsLocalEcho reports whether the envelope originated on this node.
func (b *Bridge) IsLocalEcho(env Envelope) bool {
	return env.Origin == b.nodeID
}
