package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/examcell/smartboard/internal/models"
	"github.com/examcell/smartboard/pkg/crypto"
	apperrors "github.com/examcell/smartboard/pkg/errors"
	"github.com/examcell/smartboard/pkg/logger"
	"github.com/examcell/smartboard/pkg/mail"
	"github.com/examcell/smartboard/pkg/metrics"
)

const passwordMismatchMessage = "Password fields didn't match."

var (
	// ErrUnknownEmail is returned by Issue when no account owns the address.
	ErrUnknownEmail = apperrors.New("UNKNOWN_EMAIL", "No user found with this email address.", http.StatusNotFound)
	// ErrInvalidCode covers both a wrong code and an unknown address.
	ErrInvalidCode = apperrors.New("INVALID_CODE", "Invalid OTP code.", http.StatusBadRequest)
	// ErrCodeExpired is returned for a matching code past its expiry.
	ErrCodeExpired = apperrors.New("CODE_EXPIRED", "OTP has expired. Please request a new one.", http.StatusBadRequest)
	// ErrOTPDelivery reports that the code could not be emailed.
	ErrOTPDelivery = apperrors.New("OTP_DELIVERY_FAILED", "Failed to send OTP email", http.StatusInternalServerError)
)

// SessionRevoker revokes refresh sessions, optionally inside tx.
type SessionRevoker interface {
	RevokeUserSessions(ctx context.Context, tx *gorm.DB, userID string) (int64, error)
}

// OTPOption customises the OTPService.
type OTPOption func(*OTPService)

// WithOTPClock injects a custom time source.
func WithOTPClock(clock func() time.Time) OTPOption {
	return func(s *OTPService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithOTPGenerator replaces the random code generator.
func WithOTPGenerator(generate func() (string, error)) OTPOption {
	return func(s *OTPService) {
		if generate != nil {
			s.generate = generate
		}
	}
}

// WithOTPLifetime overrides the validity window of issued codes.
func WithOTPLifetime(d time.Duration) OTPOption {
	return func(s *OTPService) {
		if d > 0 {
			s.lifetime = d
		}
	}
}

// WithOTPSessionRevoker revokes refresh sessions when a password is reset.
func WithOTPSessionRevoker(revoker SessionRevoker) OTPOption {
	return func(s *OTPService) {
		s.sessions = revoker
	}
}

// WithOTPSender sets the From address and signature of code emails.
func WithOTPSender(from, signature string) OTPOption {
	return func(s *OTPService) {
		s.from = strings.TrimSpace(from)
		if sig := strings.TrimSpace(signature); sig != "" {
			s.signature = sig
		}
	}
}

// ResetPasswordInput carries the fields of a password reset.
type ResetPasswordInput struct {
	Email              string
	Code               string
	NewPassword        string
	NewPasswordConfirm string
}

// OTPService issues, verifies and consumes password reset codes.
type OTPService struct {
	db        *gorm.DB
	mailer    mail.Mailer
	audit     *AuditService
	sessions  SessionRevoker
	now       func() time.Time
	generate  func() (string, error)
	lifetime  time.Duration
	from      string
	signature string
}

// NewOTPService constructs an OTPService.
func NewOTPService(db *gorm.DB, mailer mail.Mailer, audit *AuditService, opts ...OTPOption) (*OTPService, error) {
	if db == nil {
		return nil, errors.New("otp service: db is required")
	}
	if mailer == nil {
		return nil, errors.New("otp service: mailer is required")
	}

	svc := &OTPService{
		db:        db,
		mailer:    mailer,
		audit:     audit,
		now:       time.Now,
		generate:  func() (string, error) { return crypto.GenerateNumericCode(models.OTPDigits) },
		lifetime:  models.OTPLifetime,
		signature: "Examination Cell",
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Issue replaces any unused reset code for the account owning email with a
// fresh one and emails it. The returned row carries the plaintext Code.
func (s *OTPService) Issue(ctx context.Context, email string) (*models.OTPVerification, error) {
	ctx = ensureContext(ctx)
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.findUser(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			metrics.OTPEvents.WithLabelValues("unknown_email").Inc()
			recordAudit(s.audit, ctx, AuditEntry{
				Action:   AuditActionPasswordForgot,
				Result:   AuditResultFailure,
				Metadata: map[string]any{"email": email, "reason": "unknown_email"},
			})
			return nil, ErrUnknownEmail
		}
		return nil, err
	}

	code, err := s.generate()
	if err != nil {
		return nil, fmt.Errorf("otp service: generate code: %w", err)
	}

	now := s.now()
	otp := &models.OTPVerification{
		BaseModel: models.BaseModel{CreatedAt: now},
		UserID:    user.ID,
		Purpose:   models.OTPPurposePasswordReset,
		Code:      code,
		ExpiresAt: now.Add(s.lifetime),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("user_id = ? AND purpose = ? AND is_used = ?", user.ID, models.OTPPurposePasswordReset, false).
			Delete(&models.OTPVerification{}).Error; err != nil {
			return fmt.Errorf("delete superseded codes: %w", err)
		}
		return tx.Create(otp).Error
	})
	if err != nil {
		return nil, fmt.Errorf("otp service: issue code: %w", err)
	}
	metrics.OTPEvents.WithLabelValues("issued").Inc()

	if err := s.mailer.Send(ctx, mail.Message{
		From:    s.from,
		To:      []string{user.Email},
		Subject: "Password Reset OTP",
		Body:    s.codeBody(user, code),
	}); err != nil {
		metrics.OTPEvents.WithLabelValues("delivery_failed").Inc()
		logger.WithModule("otp").Warn("otp delivery failed", zap.String("user_id", user.ID), zap.Error(err))
		return nil, ErrOTPDelivery.WithInternal(err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &user.ID,
		Username: user.Username,
		Action:   AuditActionPasswordForgot,
		Resource: auditResourceUserPrefix + user.ID,
		Result:   AuditResultSuccess,
	})
	return otp, nil
}

// Verify checks a code without consuming it.
func (s *OTPService) Verify(ctx context.Context, email, code string) (*models.OTPVerification, error) {
	ctx = ensureContext(ctx)
	_, otp, err := s.lookup(s.db.WithContext(ctx), email, code)
	if err != nil {
		return nil, err
	}
	metrics.OTPEvents.WithLabelValues("verified").Inc()
	return otp, nil
}

// Reset consumes a valid code and replaces the account password. Mismatched
// passwords fail before any lookup so nothing changes.
func (s *OTPService) Reset(ctx context.Context, input ResetPasswordInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	if input.NewPassword != input.NewPasswordConfirm {
		return nil, apperrors.NewFieldError("new_password", passwordMismatchMessage)
	}
	if strings.TrimSpace(input.NewPassword) == "" {
		return nil, apperrors.NewFieldError("new_password", "This field is required.")
	}

	hashed, err := crypto.HashPassword(input.NewPassword)
	if err != nil {
		return nil, fmt.Errorf("otp service: hash password: %w", err)
	}

	var user *models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, otp, err := s.lookup(tx, input.Email, input.Code)
		if err != nil {
			return err
		}
		user = found

		if err := tx.Model(&models.User{}).
			Where("id = ?", user.ID).
			Update("password", hashed).Error; err != nil {
			return fmt.Errorf("set password: %w", err)
		}

		consumed := tx.Model(&models.OTPVerification{}).
			Where("id = ? AND is_used = ?", otp.ID, false).
			Update("is_used", true)
		if consumed.Error != nil {
			return fmt.Errorf("mark code used: %w", consumed.Error)
		}
		if consumed.RowsAffected == 0 {
			return ErrInvalidCode
		}

		if err := tx.
			Where("user_id = ? AND purpose = ? AND is_used = ? AND id <> ?", user.ID, models.OTPPurposePasswordReset, false, otp.ID).
			Delete(&models.OTPVerification{}).Error; err != nil {
			return fmt.Errorf("delete other codes: %w", err)
		}

		if s.sessions != nil {
			if _, err := s.sessions.RevokeUserSessions(ctx, tx, user.ID); err != nil {
				return fmt.Errorf("revoke sessions: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("otp service: reset password: %w", err)
	}

	user.Password = hashed
	metrics.OTPEvents.WithLabelValues("consumed").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &user.ID,
		Username: user.Username,
		Action:   AuditActionPasswordReset,
		Resource: auditResourceUserPrefix + user.ID,
		Result:   AuditResultSuccess,
	})
	return user, nil
}

func (s *OTPService) lookup(db *gorm.DB, email, code string) (*models.User, *models.OTPVerification, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		metrics.OTPEvents.WithLabelValues("rejected").Inc()
		return nil, nil, ErrInvalidCode
	}

	var user models.User
	err := db.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.OTPEvents.WithLabelValues("rejected").Inc()
		return nil, nil, ErrInvalidCode
	}
	if err != nil {
		return nil, nil, fmt.Errorf("otp service: find user: %w", err)
	}

	var otp models.OTPVerification
	err = db.
		Where("user_id = ? AND purpose = ? AND is_used = ? AND code_hash = ?",
			user.ID, models.OTPPurposePasswordReset, false, crypto.HashCode(code)).
		Order("created_at DESC").
		First(&otp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.OTPEvents.WithLabelValues("rejected").Inc()
		return nil, nil, ErrInvalidCode
	}
	if err != nil {
		return nil, nil, fmt.Errorf("otp service: find code: %w", err)
	}

	if otp.IsExpired(s.now()) {
		metrics.OTPEvents.WithLabelValues("expired").Inc()
		return nil, nil, ErrCodeExpired
	}
	return &user, &otp, nil
}

func (s *OTPService) findUser(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, ErrUserNotFound
	}
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("otp service: find user: %w", err)
	}
	return &user, nil
}

func (s *OTPService) codeBody(user *models.User, code string) string {
	minutes := int(s.lifetime / time.Minute)
	return fmt.Sprintf(`Hello %s,

You have requested to reset your password. Please use the following OTP to verify your identity:

OTP: %s

This OTP is valid for %d minutes only.

If you did not request this password reset, please ignore this email.

Best regards,
%s
`, user.Username, code, minutes, s.signature)
}
