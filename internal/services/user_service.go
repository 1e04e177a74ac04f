package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/examcell/smartboard/internal/models"
	"github.com/examcell/smartboard/pkg/crypto"
	apperrors "github.com/examcell/smartboard/pkg/errors"
	"github.com/examcell/smartboard/pkg/metrics"
	"github.com/examcell/smartboard/pkg/validator"
)

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
)

// CreateUserInput describes the fields accepted when registering a user.
type CreateUserInput struct {
	Username    string
	Email       string
	PhoneNumber string
	Password    string
	FirstName   string
	LastName    string
}

// UpdateProfileInput enumerates mutable profile attributes. Nil leaves a field unchanged.
type UpdateProfileInput struct {
	Username    *string
	Email       *string
	PhoneNumber *string
	FirstName   *string
	LastName    *string
}

// LoginInput carries credentials and client details for a login attempt.
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
}

// UserCreatedHook runs inside the registration transaction after the user row
// is written. Returning an error rolls the registration back.
type UserCreatedHook func(ctx context.Context, tx *gorm.DB, user *models.User, input CreateUserInput) error

// UserService manages accounts and their profiles.
type UserService struct {
	db           *gorm.DB
	auditService *AuditService
	hooks        []UserCreatedHook
	now          func() time.Time
}

// NewUserService constructs a UserService. The profile hook always runs first;
// extra hooks run in the order given.
func NewUserService(db *gorm.DB, auditService *AuditService, hooks ...UserCreatedHook) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{
		db:           db,
		auditService: auditService,
		hooks:        append([]UserCreatedHook{createUserProfile}, hooks...),
		now:          time.Now,
	}, nil
}

// Create registers a user and runs the post-create hooks in one transaction.
// The returned user carries its profile.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	input.PhoneNumber = validator.NormalizeAccountPhone(input.PhoneNumber)
	if username == "" {
		return nil, apperrors.NewFieldError("username", validator.Message("required", ""))
	}
	if email == "" {
		return nil, apperrors.NewFieldError("email", validator.Message("required", ""))
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, apperrors.NewFieldError("password", validator.Message("required", ""))
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Username:  username,
		Email:     email,
		Password:  hashed,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		IsActive:  true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureAccountUnique(tx, "", username, email, input.PhoneNumber); err != nil {
			return err
		}
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		for _, hook := range s.hooks {
			if err := hook(ctx, tx, user, input); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("A user with this username or email already exists.")
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &user.ID,
		Username: user.Username,
		Action:   AuditActionUserRegister,
		Resource: auditResourceUserPrefix + user.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"email": user.Email},
	})

	return user, nil
}

// createUserProfile is the built-in post-create hook owning UserProfile creation.
func createUserProfile(_ context.Context, tx *gorm.DB, user *models.User, input CreateUserInput) error {
	profile := &models.UserProfile{
		UserID:      user.ID,
		PhoneNumber: input.PhoneNumber,
	}
	if err := tx.Create(profile).Error; err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	user.Profile = profile
	return nil
}

// ensureAccountUnique reports the first of username, email or phone already
// held by an account other than excludeID.
func ensureAccountUnique(tx *gorm.DB, excludeID, username, email, phone string) error {
	check := func(query *gorm.DB, field, message string) error {
		var count int64
		if excludeID != "" {
			query = query.Where("users.id <> ?", excludeID)
		}
		if err := query.Count(&count).Error; err != nil {
			return fmt.Errorf("check %s: %w", field, err)
		}
		if count > 0 {
			return apperrors.NewConflict(message).WithDetails(map[string]string{field: message})
		}
		return nil
	}

	if username != "" {
		if err := check(tx.Model(&models.User{}).Where("LOWER(username) = ?", strings.ToLower(username)),
			"username", "A user with that username already exists."); err != nil {
			return err
		}
	}
	if email != "" {
		if err := check(tx.Model(&models.User{}).Where("email = ?", email),
			"email", "A user with this email already exists."); err != nil {
			return err
		}
	}
	if phone != "" {
		query := tx.Model(&models.User{}).
			Joins("JOIN user_profiles ON user_profiles.user_id = users.id").
			Where("user_profiles.phone_number = ?", phone)
		if err := check(query, "phone_number", "A user with this phone number already exists."); err != nil {
			return err
		}
	}
	return nil
}

// Authenticate verifies credentials and records the login.
func (s *UserService) Authenticate(ctx context.Context, input LoginInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		metrics.AuthAttempts.WithLabelValues("invalid").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).Preload("Profile").Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("invalid").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("user service: find user: %w", err)
	}

	if !crypto.VerifyPassword(user.Password, input.Password) {
		metrics.AuthAttempts.WithLabelValues("invalid").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.IsActive {
		metrics.AuthAttempts.WithLabelValues("disabled").Inc()
		return nil, apperrors.ErrAccountDisabled
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"last_login_at": now,
		"last_login_ip": strings.TrimSpace(input.IPAddress),
	}).Error; err != nil {
		return nil, fmt.Errorf("user service: record login: %w", err)
	}
	user.LastLoginAt = &now

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return &user, nil
}

// GetByID loads a user with its profile.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Preload("Profile").First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// FindByEmail loads a user by email address.
func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: find by email: %w", err)
	}
	return &user, nil
}

// UpdateProfile changes account and profile attributes for id.
func (s *UserService) UpdateProfile(ctx context.Context, id string, input UpdateProfileInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	var username, email, phone string

	if input.Username != nil {
		if name := strings.TrimSpace(*input.Username); name != "" && name != user.Username {
			username = name
			updates["username"] = name
		}
	}
	if input.Email != nil {
		if value := strings.ToLower(strings.TrimSpace(*input.Email)); value != "" && value != user.Email {
			email = value
			updates["email"] = value
		}
	}
	if input.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*input.LastName)
	}

	phoneChanged := false
	if input.PhoneNumber != nil {
		phone = validator.NormalizeAccountPhone(*input.PhoneNumber)
		phoneChanged = user.Profile == nil || phone != user.Profile.PhoneNumber
	}

	if len(updates) == 0 && !phoneChanged {
		return user, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		uniquePhone := ""
		if phoneChanged {
			uniquePhone = phone
		}
		if err := ensureAccountUnique(tx, user.ID, username, email, uniquePhone); err != nil {
			return err
		}
		if len(updates) > 0 {
			if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
				return err
			}
		}
		if phoneChanged {
			if user.Profile == nil {
				return createUserProfile(ctx, tx, user, CreateUserInput{PhoneNumber: phone})
			}
			return tx.Model(&models.UserProfile{}).
				Where("user_id = ?", user.ID).
				Update("phone_number", phone).Error
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("A user with this username or email already exists.")
		}
		return nil, fmt.Errorf("user service: update profile: %w", err)
	}

	metadata := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		metadata[k] = v
	}
	if phoneChanged {
		metadata["phone_number"] = phone
	}
	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &user.ID,
		Username: user.Username,
		Action:   AuditActionProfileUpdate,
		Resource: auditResourceUserPrefix + user.ID,
		Result:   AuditResultSuccess,
		Metadata: metadata,
	})

	return s.GetByID(ctx, user.ID)
}

// ChangePassword replaces the password after verifying the current one.
func (s *UserService) ChangePassword(ctx context.Context, id, oldPassword, newPassword, confirm string) error {
	ctx = ensureContext(ctx)

	if newPassword != confirm {
		return apperrors.NewFieldError("new_password", passwordMismatchMessage)
	}

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !crypto.VerifyPassword(user.Password, oldPassword) {
		return apperrors.NewFieldError("old_password", "Old password is incorrect")
	}

	hashed, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("user service: hash new password: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("password", hashed).Error; err != nil {
		return fmt.Errorf("user service: change password: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &user.ID,
		Username: user.Username,
		Action:   AuditActionPasswordChange,
		Resource: auditResourceUserPrefix + user.ID,
		Result:   AuditResultSuccess,
	})
	return nil
}
