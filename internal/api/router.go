package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/examcell/smartboard/internal/app"
	iauth "github.com/examcell/smartboard/internal/auth"
	"github.com/examcell/smartboard/internal/handlers"
	"github.com/examcell/smartboard/internal/middleware"
	"github.com/examcell/smartboard/internal/monitoring"
	"github.com/examcell/smartboard/internal/notify"
	"github.com/examcell/smartboard/internal/services"
	"github.com/examcell/smartboard/pkg/mail"
)

// Dependencies carries the services the router mounts handlers on.
type Dependencies struct {
	DB         *gorm.DB
	Config     *app.Config
	JWT        *iauth.JWTService
	Sessions   *iauth.SessionService
	Users      *services.UserService
	OTP        *services.OTPService
	Students   *services.StudentService
	Dispatcher *notify.Dispatcher
	RateStore  middleware.RateStore
	// Mailer, when it reports a breaker state, adds a mail readiness check.
	Mailer mail.Mailer
}

func (d Dependencies) validate() error {
	switch {
	case d.DB == nil:
		return fmt.Errorf("database handle must be provided")
	case d.Config == nil:
		return fmt.Errorf("config must be provided")
	case d.JWT == nil:
		return fmt.Errorf("jwt service must be provided")
	case d.Sessions == nil:
		return fmt.Errorf("session service must be provided")
	case d.Users == nil:
		return fmt.Errorf("user service must be provided")
	case d.OTP == nil:
		return fmt.Errorf("otp service must be provided")
	case d.Students == nil:
		return fmt.Errorf("student service must be provided")
	case d.Dispatcher == nil:
		return fmt.Errorf("dispatcher must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.RateStore == nil {
		deps.RateStore = middleware.NewMemoryRateStore()
	}
	cfg := deps.Config

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.Actor())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))

	health := monitoring.NewHealth(monitoring.DatabaseCheck(deps.DB, 0))
	if breaker, ok := deps.Mailer.(monitoring.StateReporter); ok {
		health.Register(monitoring.MailCheck(breaker))
	}
	registerHealthRoutes(r, health)

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT, deps.Sessions))

	registerAuthRoutes(r, api, authRouteDeps{
		Handler:   handlers.NewAuthHandler(deps.Users, deps.OTP, deps.Sessions),
		RateLimit: middleware.RateLimit(deps.RateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window),
	})

	domain := cfg.Institution.Institution().Domain
	registerStudentRoutes(api, studentRouteDeps{
		Students: handlers.NewStudentsHandler(deps.Students, deps.Dispatcher, handlers.StudentsConfig{
			MaxUploadBytes:    cfg.Server.MaxUploadBytes(),
			TestRecipient:     cfg.Email.Recipient(),
			InstitutionDomain: domain,
		}),
		Hierarchy: handlers.NewHierarchyHandler(deps.Students, domain),
	})

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
