package models

import (
	"time"
)

// Session is a refresh-token session. Only the token hash is persisted.
type Session struct {
	BaseModel

	UserID           string     `gorm:"type:uuid;not null;index" json:"user_id"`
	User             *User      `json:"-"`
	RefreshTokenHash string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	IPAddress        string     `json:"ip_address"`
	UserAgent        string     `json:"user_agent"`
	ExpiresAt        time.Time  `gorm:"index" json:"expires_at"`
	LastUsedAt       time.Time  `json:"last_used_at"`
	RevokedAt        *time.Time `gorm:"index" json:"revoked_at"`
}

// IsActive reports whether the session can still be refreshed at now.
func (s *Session) IsActive(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
