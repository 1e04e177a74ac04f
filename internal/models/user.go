package models

import (
	"time"
)

// User is an exam cell operator account.
type User struct {
	BaseModel

	Username string `gorm:"size:150;uniqueIndex;not null" json:"username"`
	Email    string `gorm:"size:254;uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	FirstName string `gorm:"size:150" json:"first_name"`
	LastName  string `gorm:"size:150" json:"last_name"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	Profile  *UserProfile      `gorm:"constraint:OnDelete:CASCADE;" json:"profile,omitempty"`
	Sessions []Session         `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	OTPs     []OTPVerification `gorm:"constraint:OnDelete:CASCADE;" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"-"`
}

// UserProfile carries contact details owned by a User.
type UserProfile struct {
	BaseModel

	UserID      string `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	PhoneNumber string `gorm:"size:20;index" json:"phone_number"`
}
