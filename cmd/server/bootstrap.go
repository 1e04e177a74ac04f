package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/examcell/smartboard/internal/api"
	"github.com/examcell/smartboard/internal/app"
	"github.com/examcell/smartboard/internal/app/maintenance"
	iauth "github.com/examcell/smartboard/internal/auth"
	"github.com/examcell/smartboard/internal/database"
	"github.com/examcell/smartboard/internal/middleware"
	"github.com/examcell/smartboard/internal/notify"
	"github.com/examcell/smartboard/internal/services"
	"github.com/examcell/smartboard/pkg/logger"
	"github.com/examcell/smartboard/pkg/mail"
	"github.com/examcell/smartboard/pkg/metrics"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Mailer     mail.Mailer
	SessionSvc *iauth.SessionService
	AuditSvc   *services.AuditService
	Dispatcher *notify.Dispatcher
	Cleaner    *maintenance.Cleaner
	RateStore  *middleware.MemoryRateStore
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, mail transport, services and the HTTP router.
func bootstrapRuntime(_ context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Mailer, err = cfg.Email.BuildMailer(observeBreaker(log))
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.SessionSvc, err = iauth.NewSessionService(stack.DB, jwtSvc, cfg.Auth.SessionServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	stack.AuditSvc, err = services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	userSvc, err := services.NewUserService(stack.DB, stack.AuditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}

	institution := cfg.Institution.Institution()

	otpSvc, err := services.NewOTPService(stack.DB, stack.Mailer, stack.AuditSvc,
		services.WithOTPLifetime(cfg.Auth.OTPLifetime()),
		services.WithOTPSessionRevoker(stack.SessionSvc),
		services.WithOTPSender(cfg.Email.Sender(), institution.Office),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise otp service: %w", err)
	}

	studentSvc, err := services.NewStudentService(stack.DB, stack.AuditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise student service: %w", err)
	}

	stack.Dispatcher, err = notify.NewDispatcher(stack.DB, stack.Mailer,
		notify.WithPacer(cfg.Dispatch.NewPacer()),
		notify.WithInstitution(institution),
		notify.WithSender(cfg.Email.Sender()),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise dispatcher: %w", err)
	}

	stack.RateStore = middleware.NewMemoryRateStore()

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(stack.SessionSvc, stack.AuditSvc,
			maintenance.WithSessionSchedule(cfg.Maintenance.SessionSchedule),
			maintenance.WithAuditSchedule(cfg.Maintenance.AuditSchedule),
			maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
			maintenance.WithRateSweeper(stack.RateStore, cfg.Maintenance.RateStoreSchedule),
		)
		if err := stack.Cleaner.Start(); err != nil {
			stack.Cleaner = nil
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:         stack.DB,
		Config:     cfg,
		JWT:        jwtSvc,
		Sessions:   stack.SessionSvc,
		Users:      userSvc,
		OTP:        otpSvc,
		Students:   studentSvc,
		Dispatcher: stack.Dispatcher,
		RateStore:  stack.RateStore,
		Mailer:     stack.Mailer,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		// Let in-flight jobs finish before the final sweep.
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
		}
		if err := s.Cleaner.RunOnce(context.WithoutCancel(ctx)); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

// observeBreaker mirrors mail breaker transitions into logs and the state gauge.
func observeBreaker(log *zap.Logger) func(name, from, to string) {
	return func(name, from, to string) {
		metrics.MailBreakerState.Set(breakerStateValue(to))
		log.Warn("mail breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from),
			zap.String("to", to),
		)
	}
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
