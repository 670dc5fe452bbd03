package models

import (
	"encoding/json"
	"time"
)

// Message content types.
const (
	ContentTypeText   = "text"
	ContentTypeImage  = "image"
	ContentTypeSystem = "system"
)

// MaxMessageContentLen is the upper bound on message content after trimming.
const MaxMessageContentLen = 10000

// MaxReactionEmojiLen bounds a reaction emoji, counted in runes so composed
// emoji sequences fit.
const MaxReactionEmojiLen = 10

// DeletedContentPlaceholder replaces the content of soft-deleted messages.
const DeletedContentPlaceholder = "[Deleted]"

// Message is a chat message. Deletion is soft: content becomes the
// placeholder and IsDeleted is set. SenderID is nil for system messages.
type Message struct {
	ID          uint            `gorm:"primarykey" json:"id"`
	ChatID      uint            `gorm:"not null;index:idx_messages_chat_created" json:"chatId"`
	SenderID    *uint           `gorm:"index" json:"senderId,omitempty"`
	Content     string          `gorm:"type:text;not null" json:"content"`
	ContentType string          `gorm:"size:16;default:text" json:"contentType"`
	Metadata    json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	ReplyToID   *uint           `gorm:"index" json:"replyToId,omitempty"`
	IsEdited    bool            `gorm:"default:false" json:"isEdited"`
	EditedAt    *time.Time      `json:"editedAt,omitempty"`
	IsDeleted   bool            `gorm:"default:false" json:"isDeleted"`
	DeletedAt   *time.Time      `json:"deletedAt,omitempty"`
	CreatedAt   time.Time       `gorm:"index:idx_messages_chat_created" json:"createdAt"`
	Sender      *User           `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Reactions   []Reaction      `gorm:"foreignKey:MessageID" json:"reactions,omitempty"`
}

// MessageEdit preserves the content a message had before an edit.
type MessageEdit struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	MessageID   uint      `gorm:"not null;index" json:"messageId"`
	PrevContent string    `gorm:"type:text;not null" json:"prevContent"`
	EditedBy    uint      `gorm:"not null" json:"editedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Reaction is an emoji reaction on a message.
// At most one reaction per (message, user, emoji).
type Reaction struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	MessageID uint      `gorm:"not null;uniqueIndex:idx_reactions_msg_user_emoji" json:"messageId"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_reactions_msg_user_emoji" json:"userId"`
	Emoji     string    `gorm:"size:40;not null;uniqueIndex:idx_reactions_msg_user_emoji" json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}
