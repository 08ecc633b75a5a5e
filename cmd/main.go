package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/elite-zone/elitezone-backend/internal/db"
	"github.com/elite-zone/elitezone-backend/internal/handlers"
	"github.com/elite-zone/elitezone-backend/internal/logger"
	"github.com/elite-zone/elitezone-backend/internal/middleware"
	"github.com/elite-zone/elitezone-backend/internal/repos"
	"github.com/elite-zone/elitezone-backend/internal/server"
	"github.com/elite-zone/elitezone-backend/internal/services"
	"github.com/elite-zone/elitezone-backend/internal/utils"
)

func main() {
	_ = godotenv.Load()

	// Logger Setup
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Environment Variables
	log.Info("Attempting to load environment variables for Main now...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)
	allowedOrigins := utils.GetEnvAsSlice("ALLOWED_ORIGINS", log)
	log.Info("Environment variables loaded for Main :)")

	// Postgres Setup
	log.Info("Setting Up Postgres from Main now...")
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Fatal error: Cannot init Postgres", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()
	log.Info("Postgres Setup From Main Successful :)")

	// Repositories Setup
	log.Info("Setting Up Repositories from Main now...")
	userRepo := repos.NewUserRepo(thePG, log)
	userRoleRepo := repos.NewUserRoleRepo(thePG, log)
	otpCodeRepo := repos.NewAdminOtpCodeRepo(thePG, log)
	sessionRepo := repos.NewAdminSessionRepo(thePG, log)
	userTokenRepo := repos.NewUserTokenRepo(thePG, log)
	loginTokenRepo := repos.NewLoginTokenRepo(thePG, log)
	log.Info("Repositories Set Up From Main Successful :)")

	// Services Setup
	log.Info("Setting up Services from Main now...")
	emailService, err := services.NewEmailService(log)
	if err != nil {
		log.Error("Fatal error: Cannot init EmailService", "error", err)
		os.Exit(1)
	}
	identityService := services.NewIdentityService(thePG, log, userRepo, userTokenRepo, loginTokenRepo, jwtSecretKey, time.Duration(accessTokenTTL)*time.Second, time.Duration(refreshTokenTTL)*time.Second)
	otpService := services.NewOtpService(thePG, log, otpCodeRepo, userRepo, userRoleRepo, sessionRepo, identityService, emailService)
	sessionService := services.NewSessionService(thePG, log, userRoleRepo, sessionRepo, identityService)
	log.Info("Services Set Up From Main Successful :)")

	// Handler Setup
	log.Info("Setting Up Handlers from Main now...")
	authHandler := handlers.NewAuthHandler(log, otpService, sessionService, identityService)
	meHandler := handlers.NewMeHandler(log, userRepo)
	log.Info("Handlers Set Up From Main Successful :)")

	// MiddleWare Setup
	log.Info("Setting Up Middleware from Main now...")
	authMiddleware := middleware.NewAuthMiddleware(log, identityService, userRoleRepo)
	log.Info("Middleware Set Up From Main Successful :)")

	// Router Setup
	log.Info("Setting Up Router from Main now...")
	router := server.NewRouter(server.RouterConfig{
		AuthHandler:    authHandler,
		MeHandler:      meHandler,
		AuthMiddleware: authMiddleware,
		AllowedOrigins: allowedOrigins,
	})
	log.Info("Router Set Up From Main Successful :)")

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
