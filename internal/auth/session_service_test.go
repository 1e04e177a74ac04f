package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/examcell/smartboard/internal/database/testutil"
	"github.com/examcell/smartboard/internal/models"
	"github.com/examcell/smartboard/pkg/crypto"
)

func TestCreateSessionStoresOnlyTokenHash(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "user-create")

	tokens, session, err := svc.CreateSession(context.Background(), user, SessionMetadata{
		IPAddress: "10.0.0.1 ",
		UserAgent: "unit-test",
	})
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)
	require.Equal(t, "10.0.0.1", session.IPAddress)

	var reloaded models.Session
	require.NoError(t, db.Take(&reloaded, "id = ?", session.ID).Error)
	require.NotEqual(t, tokens.RefreshToken, reloaded.RefreshTokenHash)
	require.Equal(t, crypto.HashCode(tokens.RefreshToken), reloaded.RefreshTokenHash)
	require.True(t, reloaded.ExpiresAt.Equal(clock.Now().Add(2*time.Hour)))

	claims, err := svc.jwt.ValidateAccessToken(tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, session.ID, claims.SessionID)
	require.Equal(t, "user-create", claims.Username)
}

func TestRefreshSessionRotatesToken(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "user-refresh")
	ctx := context.Background()

	tokens, session, err := svc.CreateSession(ctx, user, SessionMetadata{})
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)

	rotated, updated, err := svc.RefreshSession(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)
	require.Equal(t, session.ID, updated.ID)
	require.True(t, updated.LastUsedAt.Equal(clock.Now()))

	_, _, err = svc.RefreshSession(ctx, tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, _, err = svc.RefreshSession(ctx, " ")
	require.ErrorIs(t, err, ErrSessionInvalidToken)
}

func TestRefreshSessionExpired(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "user-expired")
	ctx := context.Background()

	tokens, _, err := svc.CreateSession(ctx, user, SessionMetadata{})
	require.NoError(t, err)

	clock.Advance(3 * time.Hour)

	_, _, err = svc.RefreshSession(ctx, tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionExpired)
	require.ErrorIs(t, svc.ValidateSession(ctx, "missing"), ErrSessionNotFound)
}

func TestRevokeSessionPreventsRefresh(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	user := createTestUser(t, db, "user-revoke")
	ctx := context.Background()

	tokens, session, err := svc.CreateSession(ctx, user, SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, svc.ValidateSession(ctx, session.ID))

	require.NoError(t, svc.RevokeSession(ctx, session.ID))
	require.ErrorIs(t, svc.RevokeSession(ctx, session.ID), ErrSessionNotFound)
	require.ErrorIs(t, svc.ValidateSession(ctx, session.ID), ErrSessionRevoked)

	_, _, err = svc.RefreshSession(ctx, tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionRevoked)
}

func TestRevokeUserSessionsInsideTransaction(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	user := createTestUser(t, db, "user-bulk")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := svc.CreateSession(ctx, user, SessionMetadata{})
		require.NoError(t, err)
	}

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		revoked, err := svc.RevokeUserSessions(ctx, tx, user.ID)
		require.Equal(t, int64(3), revoked)
		return err
	}))

	var active int64
	require.NoError(t, db.Model(&models.Session{}).Where("revoked_at IS NULL").Count(&active).Error)
	require.Zero(t, active)
}

func TestCleanupExpiredRemovesStaleSessions(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "user-cleanup")
	ctx := context.Background()

	_, revoked, err := svc.CreateSession(ctx, user, SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, svc.RevokeSession(ctx, revoked.ID))

	_, _, err = svc.CreateSession(ctx, user, SessionMetadata{})
	require.NoError(t, err)
	clock.Advance(3 * time.Hour)
	_, live, err := svc.CreateSession(ctx, user, SessionMetadata{})
	require.NoError(t, err)

	removed, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	var remaining []models.Session
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, live.ID, remaining[0].ID)
}

func setupSessionService(t *testing.T) (*gorm.DB, *SessionService, *testClock) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &testClock{current: time.Date(2026, 1, 3, 9, 0, 0, 0, time.UTC)}

	jwtService, err := NewJWTService(JWTConfig{
		Secret:         "session-secret",
		AccessTokenTTL: time.Hour,
		Clock:          clock.Now,
	})
	require.NoError(t, err)

	sessionService, err := NewSessionService(db, jwtService, SessionConfig{
		RefreshTokenTTL: 2 * time.Hour,
		RefreshLength:   24,
		Clock:           clock.Now,
	})
	require.NoError(t, err)

	return db, sessionService, clock
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword("password")
	require.NoError(t, err)

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: hashed,
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time {
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}
