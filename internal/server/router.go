package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/elite-zone/elitezone-backend/internal/handlers"
	"github.com/elite-zone/elitezone-backend/internal/middleware"
)

type RouterConfig struct {
	AuthHandler    *handlers.AuthHandler
	MeHandler      *handlers.MeHandler
	AuthMiddleware *middleware.AuthMiddleware
	AllowedOrigins []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	//-----------------------------------------
	// Cors Setup
	//-----------------------------------------
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	//-----------------------------------------
	// Health Routes
	//-----------------------------------------
	router.GET("/healthz", handlers.Healthz)

	//-----------------------------------------
	// Public Routes
	//-----------------------------------------
	admin := router.Group("/api/admin")
	{
		admin.POST("/otp/send", cfg.AuthHandler.SendOtp)
		admin.POST("/otp/verify", cfg.AuthHandler.VerifyOtp)
		admin.POST("/otp/redeem", cfg.AuthHandler.RedeemLoginLink)
		admin.POST("/session/check", cfg.AuthHandler.CheckSession)
		admin.POST("/refresh", cfg.AuthHandler.Refresh)
	}

	//------------------------------------------
	// Protected Routes
	//------------------------------------------
	protected := admin.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	protected.POST("/logout", cfg.AuthHandler.Logout)

	adminOnly := protected.Group("/")
	adminOnly.Use(cfg.AuthMiddleware.RequireAdmin())
	adminOnly.GET("/me", cfg.MeHandler.GetMe)

	return router
}

// corsConfig reflects only origins on the allow list. An empty list
// means no list was configured and every origin is accepted.
func corsConfig(allowedOrigins []string) cors.Config {
	config := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(origin string) bool { return true }
		return config
	}
	config.AllowOrigins = allowedOrigins
	return config
}
