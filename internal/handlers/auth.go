package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/examcell/smartboard/internal/auth"
	"github.com/examcell/smartboard/internal/models"
	"github.com/examcell/smartboard/internal/services"
	apperrors "github.com/examcell/smartboard/pkg/errors"
	"github.com/examcell/smartboard/pkg/logger"
	"github.com/examcell/smartboard/pkg/response"
)

const (
	passwordMismatchMessage = "Password fields didn't match."
	otpSentMessage          = "OTP sent successfully to your email. Please check your email and enter the 6-digit code."
)

// AuthHandler manages account flows: registration, login, token rotation,
// profile maintenance and OTP password reset.
type AuthHandler struct {
	users    *services.UserService
	otp      *services.OTPService
	sessions *iauth.SessionService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(users *services.UserService, otp *services.OTPService, sessions *iauth.SessionService) *AuthHandler {
	return &AuthHandler{users: users, otp: otp, sessions: sessions}
}

type userPayload struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	PhoneNumber string     `json:"phone_number"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DateJoined  time.Time  `json:"date_joined"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func newUserPayload(user *models.User) userPayload {
	payload := userPayload{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		DateJoined:  user.CreatedAt,
		LastLoginAt: user.LastLoginAt,
	}
	if user.Profile != nil {
		payload.PhoneNumber = user.Profile.PhoneNumber
	}
	return payload
}

func sessionMetadata(c *gin.Context) iauth.SessionMetadata {
	return iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

type registerRequest struct {
	Username        string `json:"username" validate:"required,max=150"`
	Email           string `json:"email" validate:"required,email"`
	PhoneNumber     string `json:"phone_number" validate:"required,intlphone"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" validate:"required"`
	FirstName       string `json:"first_name" validate:"omitempty,max=150"`
	LastName        string `json:"last_name" validate:"omitempty,max=150"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if req.Password != req.PasswordConfirm {
		response.Error(c, apperrors.NewFieldError("password", passwordMismatchMessage))
		return
	}

	ctx := requestContext(c)
	user, err := h.users.Create(ctx, services.CreateUserInput{
		Username:    req.Username,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	pair, _, err := h.sessions.CreateSession(ctx, user, sessionMetadata(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user":    newUserPayload(user),
		"tokens":  pair,
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	user, err := h.users.Authenticate(ctx, services.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	pair, _, err := h.sessions.CreateSession(ctx, user, sessionMetadata(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Login successful",
		"user":    newUserPayload(user),
		"tokens":  pair,
	})
}

type refreshRequest struct {
	Refresh string `json:"refresh" validate:"required"`
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, _, err := h.sessions.RefreshSession(requestContext(c), strings.TrimSpace(req.Refresh))
	if err != nil {
		response.Error(c, apperrors.ErrUnauthorized.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, pair)
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	sid := currentSessionID(c)
	if sid == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	if err := h.sessions.RevokeSession(requestContext(c), sid); err != nil && !errors.Is(err, iauth.ErrSessionNotFound) {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Logout successful"})
}

// GET /api/auth/verify-token
func (h *AuthHandler) VerifyToken(c *gin.Context) {
	user, err := h.users.GetByID(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"message": "Token is valid",
		"user":    newUserPayload(user),
	})
}

// GET /api/auth/profile
func (h *AuthHandler) Profile(c *gin.Context) {
	user, err := h.users.GetByID(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user": newUserPayload(user)})
}

type updateProfileRequest struct {
	Username    *string `json:"username" validate:"omitempty,min=1,max=150"`
	Email       *string `json:"email" validate:"omitempty,email"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,intlphone"`
	FirstName   *string `json:"first_name" validate:"omitempty,max=150"`
	LastName    *string `json:"last_name" validate:"omitempty,max=150"`
}

// PUT /api/auth/profile
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.UpdateProfile(requestContext(c), currentUserID(c), services.UpdateProfileInput{
		Username:    req.Username,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Profile updated successfully",
		"user":    newUserPayload(user),
	})
}

type changePasswordRequest struct {
	OldPassword        string `json:"old_password" validate:"required"`
	NewPassword        string `json:"new_password" validate:"required,min=8"`
	NewPasswordConfirm string `json:"new_password_confirm" validate:"required"`
}

// POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.users.ChangePassword(requestContext(c), currentUserID(c), req.OldPassword, req.NewPassword, req.NewPasswordConfirm); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Password changed successfully"})
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /api/auth/forgot-password
//
// Known and unknown addresses receive the same reply. Delivery failures
// still surface as 500.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if _, err := h.otp.Issue(requestContext(c), req.Email); err != nil {
		if !errors.Is(err, services.ErrUnknownEmail) {
			response.Error(c, err)
			return
		}
		logger.WithModule("auth").Info("password reset requested for unknown email")
	}

	response.Success(c, http.StatusOK, gin.H{"message": otpSentMessage})
}

type verifyOTPRequest struct {
	Email   string `json:"email" validate:"required,email"`
	OTPCode string `json:"otp_code" validate:"required,len=6,numeric"`
}

// POST /api/auth/verify-otp
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if _, err := h.otp.Verify(requestContext(c), req.Email, req.OTPCode); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message":      "OTP verified successfully. You can now reset your password.",
		"email":        strings.ToLower(strings.TrimSpace(req.Email)),
		"otp_verified": true,
	})
}

type resetPasswordRequest struct {
	Email              string `json:"email" validate:"required,email"`
	OTPCode            string `json:"otp_code" validate:"required,len=6,numeric"`
	NewPassword        string `json:"new_password" validate:"required,min=8"`
	NewPasswordConfirm string `json:"new_password_confirm" validate:"required"`
}

// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	user, err := h.otp.Reset(ctx, services.ResetPasswordInput{
		Email:              req.Email,
		Code:               req.OTPCode,
		NewPassword:        req.NewPassword,
		NewPasswordConfirm: req.NewPasswordConfirm,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if refreshed, err := h.users.GetByID(ctx, user.ID); err == nil {
		user = refreshed
	}

	pair, _, err := h.sessions.CreateSession(ctx, user, sessionMetadata(c))
	if err != nil {
		logger.WithModule("auth").Error("issue session after reset failed", zap.String("user_id", user.ID), zap.Error(err))
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Password reset successfully",
		"user":    newUserPayload(user),
		"tokens":  pair,
	})
}
