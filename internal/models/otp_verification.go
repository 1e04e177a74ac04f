package models

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/examcell/smartboard/pkg/crypto"
)

// OTPPurpose scopes a one-time code to a single flow.
type OTPPurpose string

const (
	OTPPurposePasswordReset     OTPPurpose = "password_reset"
	OTPPurposeEmailVerification OTPPurpose = "email_verification"
)

const (
	// OTPDigits is the length of generated codes.
	OTPDigits = 6
	// OTPLifetime is the default validity window of a code.
	OTPLifetime = 10 * time.Minute
)

// OTPVerification stores a hashed one-time code. The plaintext Code is only
// populated on the instance that created the row.
type OTPVerification struct {
	BaseModel

	UserID    string     `gorm:"type:uuid;not null;index:idx_otp_user_purpose,priority:1" json:"user_id"`
	User      *User      `json:"-"`
	Purpose   OTPPurpose `gorm:"size:32;not null;index:idx_otp_user_purpose,priority:2" json:"purpose"`
	CodeHash  string     `gorm:"size:64;not null" json:"-"`
	Code      string     `gorm:"-" json:"-"`
	ExpiresAt time.Time  `gorm:"index" json:"expires_at"`
	IsUsed    bool       `gorm:"not null;default:false" json:"is_used"`
}

// BeforeCreate assigns an ID, generates a code when none was supplied,
// stores only its hash and defaults the expiry window.
func (o *OTPVerification) BeforeCreate(tx *gorm.DB) error {
	if err := o.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if o.UserID == "" {
		return errors.New("otp: user id is required")
	}
	if o.Purpose == "" {
		o.Purpose = OTPPurposePasswordReset
	}
	if o.Code == "" && o.CodeHash == "" {
		code, err := crypto.GenerateNumericCode(OTPDigits)
		if err != nil {
			return err
		}
		o.Code = code
	}
	if o.Code != "" {
		o.CodeHash = crypto.HashCode(o.Code)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	if o.ExpiresAt.IsZero() {
		o.ExpiresAt = o.CreatedAt.Add(OTPLifetime)
	}
	return nil
}

// Matches reports whether code hashes to the stored digest.
func (o *OTPVerification) Matches(code string) bool {
	return crypto.CompareCode(o.CodeHash, code)
}

// IsExpired reports whether the code has passed its expiry at now.
func (o *OTPVerification) IsExpired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// IsValid is true while the code is neither used nor expired.
func (o *OTPVerification) IsValid(now time.Time) bool {
	return !o.IsUsed && !o.IsExpired(now)
}
