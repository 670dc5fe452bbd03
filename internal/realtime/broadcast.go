package realtime

import (
	"context"
	"time"

	"parley/internal/models"
)

// Domain-facing emit helpers. Each pairs a local room/user emit with the
// bridge publish so the event reaches sockets on every node once.

// BroadcastNewMessage fans a committed message out to its chat.
func (h *Hub) BroadcastNewMessage(ctx context.Context, msg *models.Message) {
	h.BroadcastChat(ctx, ChannelMessageNew, EventMessageNew, msg.ChatID, msg)
}

// BroadcastMessageEdited announces an edit to the chat.
func (h *Hub) BroadcastMessageEdited(ctx context.Context, msg *models.Message) {
	editedAt := time.Now()
	if msg.EditedAt != nil {
		editedAt = *msg.EditedAt
	}
	h.BroadcastChat(ctx, ChannelMessageEdit, EventMessageEdited, msg.ChatID, MessageEditedPayload{
		MessageID: msg.ID,
		ChatID:    msg.ChatID,
		Content:   msg.Content,
		EditedAt:  editedAt,
	})
}

// BroadcastMessageDeleted announces a soft delete to the chat.
func (h *Hub) BroadcastMessageDeleted(ctx context.Context, msg *models.Message) {
	h.BroadcastChat(ctx, ChannelMessageDelete, EventMessageDeleted, msg.ChatID, MessageDeletedPayload{
		MessageID: msg.ID,
		ChatID:    msg.ChatID,
	})
}

// BroadcastReactionAdded announces a new reaction to the chat.
func (h *Hub) BroadcastReactionAdded(ctx context.Context, chatID uint, reaction *models.Reaction) {
	h.BroadcastChat(ctx, ChannelMessageReaction, EventReactionAdded, chatID, ReactionAddedPayload{
		MessageID:  reaction.MessageID,
		ChatID:     chatID,
		ReactionID: reaction.ID,
		UserID:     reaction.UserID,
		Emoji:      reaction.Emoji,
	})
}

// BroadcastReactionRemoved announces a removed reaction to the chat.
func (h *Hub) BroadcastReactionRemoved(ctx context.Context, chatID, messageID, reactionID uint) {
	h.BroadcastChat(ctx, ChannelMessageReaction, EventReactionRemoved, chatID, ReactionRemovedPayload{
		ReactionID: reactionID,
		MessageID:  messageID,
		ChatID:     chatID,
	})
}

// BroadcastChatUpdate announces membership or metadata changes to the chat.
func (h *Hub) BroadcastChatUpdate(ctx context.Context, chat *models.Chat) {
	h.BroadcastChat(ctx, ChannelChatUpdate, EventChatUpdate, chat.ID, ChatUpdatePayload{
		ChatID: chat.ID,
		Chat:   chat,
	})
}

// NotifyMessageRead tells the sender's sockets a recipient read the message.
func (h *Hub) NotifyMessageRead(ctx context.Context, senderID, messageID, chatID, readBy uint, readAt time.Time) {
	h.NotifyUser(ctx, ChannelReadReceipt, EventMessageReadDone, senderID, MessageReadPayload{
		MessageID: messageID,
		ChatID:    chatID,
		ReadBy:    readBy,
		ReadAt:    readAt,
	})
}

// NotifyMessageDelivered tells the sender's sockets a recipient's delivery
// record advanced.
func (h *Hub) NotifyMessageDelivered(ctx context.Context, senderID, messageID, recipientID uint, at time.Time) {
	h.NotifyUser(ctx, ChannelReadReceipt, EventMessageDelivered, senderID, MessageDeliveredPayload{
		MessageID:   messageID,
		UserID:      recipientID,
		DeliveredAt: at,
	})
}
