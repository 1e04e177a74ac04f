package api

import (
	"github.com/gin-gonic/gin"

	"github.com/examcell/smartboard/internal/handlers"
)

type authRouteDeps struct {
	Handler   *handlers.AuthHandler
	RateLimit gin.HandlerFunc
}

func registerAuthRoutes(engine *gin.Engine, api *gin.RouterGroup, deps authRouteDeps) {
	auth := engine.Group("/api/auth")
	auth.Use(deps.RateLimit)
	{
		auth.POST("/register", deps.Handler.Register)
		auth.POST("/login", deps.Handler.Login)
		auth.POST("/refresh", deps.Handler.Refresh)
		auth.POST("/forgot-password", deps.Handler.ForgotPassword)
		auth.POST("/verify-otp", deps.Handler.VerifyOTP)
		auth.POST("/reset-password", deps.Handler.ResetPassword)
	}

	api.POST("/auth/logout", deps.Handler.Logout)
	api.GET("/auth/verify-token", deps.Handler.VerifyToken)
	api.GET("/auth/profile", deps.Handler.Profile)
	api.PUT("/auth/profile", deps.Handler.UpdateProfile)
	api.POST("/auth/change-password", deps.Handler.ChangePassword)
}
