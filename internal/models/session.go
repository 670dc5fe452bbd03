package models

import "time"

// SessionTTL is how long a session (and its refresh credential) stays valid.
const SessionTTL = 30 * 24 * time.Hour

// Session is a persistent login record for one device. The session token is
// the refresh credential itself; at most one active record exists per token.
type Session struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	UserID       uint      `gorm:"index;not null" json:"userId"`
	SessionToken string    `gorm:"uniqueIndex;size:512;not null" json:"-"`
	DeviceID     string    `gorm:"size:128" json:"deviceId,omitempty"`
	DeviceType   string    `gorm:"size:32" json:"deviceType,omitempty"`
	DeviceName   string    `gorm:"size:128" json:"deviceName,omitempty"`
	IPAddress    string    `gorm:"size:64" json:"ipAddress,omitempty"`
	UserAgent    string    `gorm:"size:255" json:"userAgent,omitempty"`
	SocketID     *string   `gorm:"size:64" json:"socketId,omitempty"`
	IsActive     bool      `gorm:"default:true;index" json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `gorm:"index" json:"expiresAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Usable reports whether the session may authenticate requests.
func (s *Session) Usable(now time.Time) bool {
	return s.IsActive && !s.Expired(now)
}
