// Package models contains the persisted entities and the error taxonomy.
package models

import (
	"time"

	"gorm.io/gorm"
)

// Presence statuses a user can be in.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusOffline = "offline"
)

// User is a registered account. Users are never hard-deleted.
type User struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	Username    string         `gorm:"uniqueIndex;size:50;not null" json:"username"`
	DisplayName string         `gorm:"size:100" json:"displayName"`
	AvatarRef   string         `gorm:"size:255" json:"avatarRef,omitempty"`
	Password    string         `gorm:"not null" json:"-"`
	Status      string         `gorm:"size:16;default:offline" json:"status"`
	LastSeen    *time.Time     `json:"lastSeen,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// PublicProfile strips fields that must not leak to other users.
func (u *User) PublicProfile() map[string]any {
	return map[string]any{
		"id":          u.ID,
		"username":    u.Username,
		"displayName": u.DisplayName,
		"avatarRef":   u.AvatarRef,
		"status":      u.Status,
		"lastSeen":    u.LastSeen,
	}
}
