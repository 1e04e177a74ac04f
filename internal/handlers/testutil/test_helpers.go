package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/examcell/smartboard/internal/api"
	"github.com/examcell/smartboard/internal/app"
	iauth "github.com/examcell/smartboard/internal/auth"
	sharedtestutil "github.com/examcell/smartboard/internal/database/testutil"
	"github.com/examcell/smartboard/internal/middleware"
	"github.com/examcell/smartboard/internal/notify"
	"github.com/examcell/smartboard/internal/services"
	"github.com/examcell/smartboard/pkg/mail"
	"github.com/examcell/smartboard/pkg/response"
)

// OTPCode is the reset code issued by every test environment.
const OTPCode = "246810"

// TestRecipient receives configuration test emails.
const TestRecipient = "examcell@example.com"

// CaptureMailer records outgoing messages and fails for selected recipients.
type CaptureMailer struct {
	mu       sync.Mutex
	Messages []mail.Message
	FailFor  map[string]error
}

// Send implements mail.Mailer.
func (m *CaptureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, msg)
	for _, to := range msg.To {
		if err, ok := m.FailFor[to]; ok {
			return err
		}
	}
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *CaptureMailer) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.Messages...)
}

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	JWT      *iauth.JWTService
	Sessions *iauth.SessionService
	Mailer   *CaptureMailer
}

// EnvOption customises the configuration used by NewEnv.
type EnvOption func(*app.Config)

// WithRateLimit bounds the public auth endpoints.
func WithRateLimit(requests int, window time.Duration) EnvOption {
	return func(cfg *app.Config) {
		cfg.Server.RateLimit = app.RateLimitConfig{Requests: requests, Window: window}
	}
}

// WithMaxUploadMB caps upload sizes.
func WithMaxUploadMB(mb int64) EnvOption {
	return func(cfg *app.Config) {
		cfg.Server.MaxUploadMB = mb
	}
}

// WithInstitutionDomain sets the campus mail domain used for derived student fields.
func WithInstitutionDomain(domain string) EnvOption {
	return func(cfg *app.Config) {
		cfg.Institution.Domain = domain
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Server: app.ServerConfig{
			CORSOrigins: []string{"*"},
			MaxUploadMB: 1,
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
			Session: app.SessionSettings{
				RefreshTTL:    24 * time.Hour,
				RefreshLength: 48,
			},
		},
		Email: app.EmailConfig{
			From:          "noreply@example.com",
			TestRecipient: TestRecipient,
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, cfg.Auth.SessionServiceConfig())
	require.NoError(t, err)

	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)

	userSvc, err := services.NewUserService(db, auditSvc)
	require.NoError(t, err)

	mailer := &CaptureMailer{FailFor: map[string]error{}}

	otpSvc, err := services.NewOTPService(db, mailer, auditSvc,
		services.WithOTPGenerator(func() (string, error) { return OTPCode, nil }),
		services.WithOTPSessionRevoker(sessionSvc),
		services.WithOTPSender(cfg.Email.Sender(), ""),
	)
	require.NoError(t, err)

	studentSvc, err := services.NewStudentService(db, auditSvc)
	require.NoError(t, err)

	dispatcher, err := notify.NewDispatcher(db, mailer,
		notify.WithPacer(notify.NoPacer),
		notify.WithSender(cfg.Email.Sender()),
	)
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		DB:         db,
		Config:     cfg,
		JWT:        jwtSvc,
		Sessions:   sessionSvc,
		Users:      userSvc,
		OTP:        otpSvc,
		Students:   studentSvc,
		Dispatcher: dispatcher,
		RateStore:  middleware.NewMemoryRateStore(),
	})
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		JWT:      jwtSvc,
		Sessions: sessionSvc,
		Mailer:   mailer,
	}
}

// TokenPair mirrors the tokens object of auth responses.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// UserPayload captures the user fields returned from auth endpoints.
type UserPayload struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
}

// AuthResult bundles the payload of register, login and reset responses.
type AuthResult struct {
	Message string      `json:"message"`
	User    UserPayload `json:"user"`
	Tokens  TokenPair   `json:"tokens"`
}

// Register creates an account through the API and returns its tokens.
func (e *Env) Register(username, email, phone, password string) AuthResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"username":         username,
		"email":            email,
		"phone_number":     phone,
		"password":         password,
		"password_confirm": password,
	}, "")
	require.Equal(e.T, http.StatusCreated, w.Code, w.Body.String())

	return e.decodeAuth(w, username)
}

// Login authenticates by email and returns the issued token pair.
func (e *Env) Login(email, password string) AuthResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	return e.decodeAuth(w, "")
}

// AccessToken registers a throwaway operator and returns its access token.
func (e *Env) AccessToken() string {
	e.T.Helper()
	return e.Register("operator", "operator@example.com", "+15550000001", "OperatorPass1").Tokens.Access
}

func (e *Env) decodeAuth(w *httptest.ResponseRecorder, username string) AuthResult {
	e.T.Helper()

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result AuthResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Tokens.Access)
	require.NotEmpty(e.T, result.Tokens.Refresh)
	if username != "" {
		require.Equal(e.T, username, result.User.Username)
	}
	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// ErrorDetails decodes the error details of a failed response into a map.
func ErrorDetails(t *testing.T, resp APIResponse) map[string]any {
	t.Helper()
	require.NotNil(t, resp.Error)
	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok, "details are %T", resp.Error.Details)
	return details
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.serve(req, token)
}

// Upload posts a multipart form with the file under field "file" plus any extra fields.
func (e *Env) Upload(path, filename string, content []byte, fields map[string]string, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		require.NoError(e.T, writer.WriteField(key, value))
	}
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(e.T, err)
		_, err = part.Write(content)
		require.NoError(e.T, err)
	}
	require.NoError(e.T, writer.Close())

	req, err := http.NewRequest(http.MethodPost, path, &buf)
	require.NoError(e.T, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return e.serve(req, token)
}

func (e *Env) serve(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
