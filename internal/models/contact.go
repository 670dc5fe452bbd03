package models

import "time"

// Contact statuses.
const (
	ContactPending  = "pending"
	ContactAccepted = "accepted"
	ContactBlocked  = "blocked"
)

// Contact is a directed contact-list entry between two users.
type Contact struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	UserID      uint       `gorm:"not null;uniqueIndex:idx_contacts_pair" json:"userId"`
	ContactID   uint       `gorm:"not null;uniqueIndex:idx_contacts_pair" json:"contactId"`
	Status      string     `gorm:"size:16;default:pending;index" json:"status"`
	RequestedBy uint       `gorm:"not null" json:"requestedBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	AcceptedAt  *time.Time `json:"acceptedAt,omitempty"`
	Contact     *User      `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
}
