package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"parley/internal/middleware"
	"parley/internal/models"
	"parley/internal/observability"
	"parley/internal/ratelimit"
)

// MessageHandler is the slice of the message service the router drives. The
// implementation owns validation, persistence, and fan-out; the router only
// acks or reports the typed error back to the caller's socket.
type MessageHandler interface {
	Send(ctx context.Context, senderID uint, p SendMessagePayload) (*models.Message, error)
	Edit(ctx context.Context, userID, messageID uint, content string) (*models.Message, error)
	Delete(ctx context.Context, userID, messageID uint) (*models.Message, error)
	MarkRead(ctx context.Context, userID, messageID uint) error
	MarkAllRead(ctx context.Context, userID, chatID uint) error
	AddReaction(ctx context.Context, userID, messageID uint, emoji string) (*models.Reaction, error)
	RemoveReaction(ctx context.Context, userID, reactionID uint) error
}

// Router dispatches inbound socket frames to their handlers. One Router
// serves every client; per-client ordering comes from the client's serial
// handler pump.
type Router struct {
	hub      *Hub
	typing   *TypingTracker
	limiter  *ratelimit.Limiter
	messages MessageHandler
}

// NewRouter creates the inbound event router.
func NewRouter(hub *Hub, typing *TypingTracker, limiter *ratelimit.Limiter, messages MessageHandler) *Router {
	return &Router{hub: hub, typing: typing, limiter: limiter, messages: messages}
}

// Bind installs the router as the client's frame handler.
func (r *Router) Bind(c *Client) {
	c.IncomingHandler = r.handleFrame
}

func (r *Router) handleFrame(c *Client, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.SendError(EventError, MessageErrorPayload{Error: "BadRequest", Message: "malformed frame"})
		return
	}

	observability.SocketEvents.WithLabelValues(frame.Event).Inc()
	ctx := c.Context()

	switch frame.Event {
	case EventMessageSend:
		r.handleSend(ctx, c, frame.Payload)
	case EventMessageEdit:
		r.handleEdit(ctx, c, frame.Payload)
	case EventMessageDelete:
		r.handleDelete(ctx, c, frame.Payload)
	case EventMessageRead:
		r.handleRead(ctx, c, frame.Payload)
	case EventChatMarkAllRead:
		r.handleMarkAllRead(ctx, c, frame.Payload)
	case EventReactionAdd:
		r.handleAddReaction(ctx, c, frame.Payload)
	case EventReactionRemove:
		r.handleRemoveReaction(ctx, c, frame.Payload)
	case EventTypingStart:
		r.handleTyping(ctx, c, frame.Payload, true)
	case EventTypingStop:
		r.handleTyping(ctx, c, frame.Payload, false)
	case EventPresenceUpdate:
		r.handlePresenceUpdate(ctx, c, frame.Payload)
	case EventPresenceBeat:
		r.hub.Presence().Touch(ctx, c.UserID)
	default:
		c.SendError(EventError, MessageErrorPayload{Error: "BadRequest", Message: "unknown event: " + frame.Event})
	}
}

func (r *Router) handleSend(ctx context.Context, c *Client, raw json.RawMessage) {
	var p SendMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.SendError(EventMessageError, MessageErrorPayload{Error: "BadRequest", Message: "malformed payload"})
		return
	}

	if err := r.limiter.Check(ctx, ratelimit.BucketMessage, userKey(c.UserID)); err != nil {
		c.SendError(EventMessageError, errorPayload(p.ChatID, err))
		return
	}

	msg, err := r.messages.Send(ctx, c.UserID, p)
	if err != nil {
		c.SendError(EventMessageError, errorPayload(p.ChatID, err))
		return
	}

	c.SendEvent(EventMessageSent, MessageSentPayload{
		MessageID: msg.ID,
		ChatID:    msg.ChatID,
		Timestamp: msg.CreatedAt,
	})
}

func (r *Router) handleEdit(ctx context.Context, c *Client, raw json.RawMessage) {
	var p EditMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.SendError(EventMessageError, MessageErrorPayload{Error: "BadRequest", Message: "malformed payload"})
		return
	}
	if _, err := r.messages.Edit(ctx, c.UserID, p.MessageID, p.Content); err != nil {
		c.SendError(EventMessageError, errorPayload(0, err))
	}
}

func (r *Router) handleDelete(ctx context.Context, c *Client, raw json.RawMessage) {
	var p DeleteMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.SendError(EventMessageError, MessageErrorPayload{Error: "BadRequest", Message: "malformed payload"})
		return
	}
	if _, err := r.messages.Delete(ctx, c.UserID, p.MessageID); err != nil {
		c.SendError(EventMessageError, errorPayload(0, err))
	}
}

func (r *Router) handleRead(ctx context.Context, c *Client, raw json.RawMessage) {
	var p ReadMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.SendError(EventMessageError, MessageErrorPayload{Error: "BadRequest", Message: "malformed payload"})
		return
	}
	if err := r.messages.MarkRead(ctx, c.UserID, p.MessageID); err != nil {
		c.SendError(EventMessageError, errorPayload(0, err))
	}
}

func (r *Router) handleMarkAllRead(ctx context.Context, c *Client, raw json.RawMessage) {
	var p MarkAllReadPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.SendError(EventMessageError, MessageErrorPayload{Error: "BadRequest", Message: "malformed payload"})
		return
	}
	if err := r.messages.MarkAllRead(ctx, c.UserID, p.ChatID); err != nil {
		c.SendError(EventMessageError, errorPayload(p.ChatID, err))
	}
}

func (r *Router) handleAddReaction(ctx context.Context, c *Client, raw json.RawMessage) {
	var p AddReactionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.SendError(EventMessageError, MessageErrorPayload{Error: "BadRequest", Message: "malformed payload"})
		return
	}
	if err := r.limiter.Check(ctx, ratelimit.BucketReaction, userKey(c.UserID)); err != nil {
		c.SendError(EventMessageError, errorPayload(0, err))
		return
	}
	if _, err := r.messages.AddReaction(ctx, c.UserID, p.MessageID, p.Emoji); err != nil {
		c.SendError(EventMessageError, errorPayload(0, err))
	}
}

func (r *Router) handleRemoveReaction(ctx context.Context, c *Client, raw json.RawMessage) {
	var p RemoveReactionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.SendError(EventMessageError, MessageErrorPayload{Error: "BadRequest", Message: "malformed payload"})
		return
	}
	if err := r.limiter.Check(ctx, ratelimit.BucketReaction, userKey(c.UserID)); err != nil {
		c.SendError(EventMessageError, errorPayload(0, err))
		return
	}
	if err := r.messages.RemoveReaction(ctx, c.UserID, p.ReactionID); err != nil {
		c.SendError(EventMessageError, errorPayload(0, err))
	}
}

func (r *Router) handleTyping(ctx context.Context, c *Client, raw json.RawMessage, start bool) {
	var p TypingPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}

	var publish bool
	var err error
	if start {
		publish, err = r.typing.Start(ctx, p.ChatID, c.UserID)
	} else {
		publish, err = r.typing.Stop(ctx, p.ChatID, c.UserID)
	}
	if err != nil {
		middleware.Logger.Warn("Typing tracker failure",
			slog.Uint64("chat_id", uint64(p.ChatID)), slog.String("error", err.Error()))
		return
	}
	if !publish {
		return
	}

	event, channel := EventTypingStart, ChannelTypingStart
	if !start {
		event, channel = EventTypingStop, ChannelTypingStop
	}
	r.hub.BroadcastChat(ctx, channel, event,
		p.ChatID, TypingEventPayload{ChatID: p.ChatID, UserID: c.UserID}, c.UserID)
}

func (r *Router) handlePresenceUpdate(ctx context.Context, c *Client, raw json.RawMessage) {
	var p PresenceUpdatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	if r.hub.Presence().SetStatus(ctx, c.UserID, p.Status) {
		r.hub.publishUserStatus(ctx, c.UserID, p.Status)
	}
}

func errorPayload(chatID uint, err error) MessageErrorPayload {
	appErr := models.AsAppError(err)
	payload := MessageErrorPayload{ChatID: chatID, Error: appErr.Code, Message: appErr.Message}
	if details, ok := appErr.Details.(map[string]int64); ok {
		payload.RetryAfter = details["retryAfter"]
	}
	return payload
}

func userKey(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}
