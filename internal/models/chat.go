package models

import "time"

// Chat types.
const (
	ChatDirect = "direct"
	ChatGroup  = "group"
)

// Participant roles.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Limits on chats.
const (
	MaxGroupNameLen      = 100
	MaxGroupParticipants = 300
	DirectChatPartyCount = 2
)

// Chat is a conversation, either a two-party direct chat or a group.
type Chat struct {
	ID            uint          `gorm:"primarykey" json:"id"`
	Type          string        `gorm:"size:16;not null;index" json:"type"`
	Name          string        `gorm:"size:100" json:"name,omitempty"`
	Slug          string        `gorm:"size:120;uniqueIndex:idx_chats_slug,where:slug <> ''" json:"slug,omitempty"`
	OwnerID       *uint         `gorm:"index" json:"ownerId,omitempty"`
	LastMessageAt *time.Time    `gorm:"index" json:"lastMessageAt,omitempty"`
	IsDeleted     bool          `gorm:"default:false" json:"isDeleted"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	Participants  []Participant `gorm:"foreignKey:ChatID" json:"participants,omitempty"`
}

// IsGroup reports whether the chat is a group chat.
func (c *Chat) IsGroup() bool { return c.Type == ChatGroup }

// ActiveParticipant returns the active participant row for userID, or nil.
func (c *Chat) ActiveParticipant(userID uint) *Participant {
	for i := range c.Participants {
		p := &c.Participants[i]
		if p.UserID == userID && p.LeftAt == nil {
			return p
		}
	}
	return nil
}

// ActiveParticipantIDs returns the user IDs of all active participants.
func (c *Chat) ActiveParticipantIDs() []uint {
	ids := make([]uint, 0, len(c.Participants))
	for i := range c.Participants {
		if c.Participants[i].LeftAt == nil {
			ids = append(ids, c.Participants[i].UserID)
		}
	}
	return ids
}

// Participant is a user's membership in a chat. LeftAt == nil means active.
// A user cannot hold two active rows for the same chat.
type Participant struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	ChatID      uint       `gorm:"not null;uniqueIndex:idx_participants_chat_user" json:"chatId"`
	UserID      uint       `gorm:"not null;uniqueIndex:idx_participants_chat_user;index" json:"userId"`
	Role        string     `gorm:"size:16;default:member" json:"role"`
	UnreadCount int        `gorm:"default:0" json:"unreadCount"`
	JoinedAt    time.Time  `json:"joinedAt"`
	LeftAt      *time.Time `json:"leftAt,omitempty"`
	User        *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
