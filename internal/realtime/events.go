// Package realtime implements the websocket layer: per-socket clients, the
// chat-room hub, fleet-wide presence, typing flags, and the redis pub/sub
// bridge that fans events out across nodes.
package realtime

import (
	"encoding/json"
	"time"

	"parley/internal/models"
)

// Inbound event names (client -> server).
const (
	EventMessageSend     = "message:send"
	EventMessageEdit     = "message:edit"
	EventMessageDelete   = "message:delete"
	EventMessageRead     = "message:read"
	EventChatMarkAllRead = "chat:mark-all-read"
	EventReactionAdd     = "reaction:add"
	EventReactionRemove  = "reaction:remove"
	EventTypingStart     = "typing:start"
	EventTypingStop      = "typing:stop"
	EventPresenceUpdate  = "presence:update"
	EventPresenceBeat    = "presence:heartbeat"
)

// Outbound event names (server -> client).
const (
	EventConnectionSuccess = "connection:success"
	EventMessageNew        = "message:new"
	EventMessageSent       = "message:sent"
	EventMessageError      = "message:error"
	EventMessageEdited     = "message:edited"
	EventMessageDeleted    = "message:deleted"
	EventMessageDelivered  = "message:delivered"
	EventMessageReadDone   = "message:read"
	EventReactionAdded     = "reaction:added"
	EventReactionRemoved   = "reaction:removed"
	EventUserStatus        = "user.status"
	EventChatUpdate        = "chat:update"
	EventServerShutdown    = "server:shutdown"
	EventError             = "error"
)

// Frame is the JSON envelope every socket message travels in, both
// directions.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeFrame marshals an event and payload into wire bytes.
func EncodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Payload: data})
}

// Inbound payload shapes.

type SendMessagePayload struct {
	ChatID      uint            `json:"chatId"`
	Content     string          `json:"content"`
	ContentType string          `json:"contentType,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	ReplyToID   *uint           `json:"replyToId,omitempty"`
}

type EditMessagePayload struct {
	MessageID uint   `json:"messageId"`
	Content   string `json:"content"`
}

type DeleteMessagePayload struct {
	MessageID uint `json:"messageId"`
}

type ReadMessagePayload struct {
	MessageID uint `json:"messageId"`
}

type MarkAllReadPayload struct {
	ChatID uint `json:"chatId"`
}

type AddReactionPayload struct {
	MessageID uint   `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type RemoveReactionPayload struct {
	ReactionID uint `json:"reactionId"`
}

type TypingPayload struct {
	ChatID uint `json:"chatId"`
}

type PresenceUpdatePayload struct {
	Status string `json:"status"`
}

// Outbound payload shapes.

type ConnectionSuccessPayload struct {
	UserID    uint      `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type MessageSentPayload struct {
	MessageID uint      `json:"messageId"`
	ChatID    uint      `json:"chatId"`
	Timestamp time.Time `json:"timestamp"`
}

type MessageErrorPayload struct {
	ChatID     uint   `json:"chatId,omitempty"`
	Error      string `json:"error"`
	Message    string `json:"message,omitempty"`
	RetryAfter int64  `json:"retryAfter,omitempty"`
}

type MessageEditedPayload struct {
	MessageID uint      `json:"messageId"`
	ChatID    uint      `json:"chatId"`
	Content   string    `json:"content"`
	EditedAt  time.Time `json:"editedAt"`
}

type MessageDeletedPayload struct {
	MessageID uint `json:"messageId"`
	ChatID    uint `json:"chatId"`
}

type MessageDeliveredPayload struct {
	MessageID   uint      `json:"messageId"`
	UserID      uint      `json:"userId"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

type MessageReadPayload struct {
	MessageID uint      `json:"messageId"`
	ChatID    uint      `json:"chatId"`
	ReadBy    uint      `json:"readBy"`
	ReadAt    time.Time `json:"readAt"`
}

type ReactionAddedPayload struct {
	MessageID  uint   `json:"messageId"`
	ChatID     uint   `json:"chatId"`
	ReactionID uint   `json:"reactionId"`
	UserID     uint   `json:"userId"`
	Emoji      string `json:"emoji"`
}

type ReactionRemovedPayload struct {
	ReactionID uint `json:"reactionId"`
	MessageID  uint `json:"messageId"`
	ChatID     uint `json:"chatId"`
}

type TypingEventPayload struct {
	ChatID uint `json:"chatId"`
	UserID uint `json:"userId"`
}

type UserStatusPayload struct {
	UserID    uint      `json:"userId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatUpdatePayload wraps a changed chat. The top-level chatId keeps the
// event routable by consumers that only look at the envelope's routing
// fields, the way every other chat-scoped payload is.
type ChatUpdatePayload struct {
	ChatID uint         `json:"chatId"`
	Chat   *models.Chat `json:"chat"`
}

type ServerShutdownPayload struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
