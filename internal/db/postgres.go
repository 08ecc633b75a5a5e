package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/elite-zone/elitezone-backend/internal/logger"
	"github.com/elite-zone/elitezone-backend/internal/types"
	"github.com/elite-zone/elitezone-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	//1) Get and Set Environment Variables
	log.Info("Attempting to load environment variables for Postgres now...")
	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "elitezone", log)
	log.Info("Environment variables loaded for Postgres :)")

	//2) Construct DSN From Environment Variables
	log.Info("Attempting to construct DSN from environment variables for Postgres now...")
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	//3) Attempt DB Connection
	log.Info("Attempting to connect to Postgres DB now...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Error("Failed to connect to Postgres DB", "error", err)
		return nil, fmt.Errorf("failed to connect to Postgres DB: %w", err)
	}
	log.Info("Successfully Connected to Postgres DB :)")

	//4) Enable uuid-ossp Extension
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		log.Error("Failed to enable uuid-ossp extension :(", "error", err)
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}
	log.Info("uuid-ossp extension enabled or already exists :)")

	return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Starting AutoMigrateAll for all GORM models now...")

	err := s.db.AutoMigrate(
		&types.User{},
		&types.UserRole{},
		&types.AdminOtpCode{},
		&types.AdminSession{},
		&types.UserToken{},
		&types.LoginToken{},
	)
	if err != nil {
		s.log.Error("AutoMigrateAll failed for Base Tables :(", "error", err)
		return err
	}
	s.log.Info("AutoMigrateAll completed successfully for Base Tables :)")

	s.log.Info("Configuring Foreign Key Relationships for Base Tables now...")
	// -- UserRole.user_id => user.id (ON DELETE CASCADE)
	if err := s.db.Exec(`
		ALTER TABLE "user_role"
		ADD CONSTRAINT "fk_user_role_user_id"
		FOREIGN KEY ("user_id")
		REFERENCES "user"("id")
		ON DELETE CASCADE
	`).Error; err != nil {
		return fmt.Errorf("failed to add fk_user_role_user_id: %w", err)
	}
	// -- AdminSession.user_id => user.id (ON DELETE CASCADE)
	if err := s.db.Exec(`
		ALTER TABLE "admin_session"
		ADD CONSTRAINT "fk_admin_session_user_id"
		FOREIGN KEY ("user_id")
		REFERENCES "user"("id")
		ON DELETE CASCADE
	`).Error; err != nil {
		return fmt.Errorf("failed to add fk_admin_session_user_id: %w", err)
	}
	// -- UserToken.user_id => user.id (ON DELETE CASCADE)
	if err := s.db.Exec(`
		ALTER TABLE "user_token"
		ADD CONSTRAINT "fk_user_token_user_id"
		FOREIGN KEY ("user_id")
		REFERENCES "user"("id")
		ON DELETE CASCADE
	`).Error; err != nil {
		return fmt.Errorf("failed to add fk_user_token_user_id: %w", err)
	}
	// -- LoginToken.user_id => user.id (ON DELETE CASCADE)
	if err := s.db.Exec(`
		ALTER TABLE "login_token"
		ADD CONSTRAINT "fk_login_token_user_id"
		FOREIGN KEY ("user_id")
		REFERENCES "user"("id")
		ON DELETE CASCADE
	`).Error; err != nil {
		return fmt.Errorf("failed to add fk_login_token_user_id: %w", err)
	}
	s.log.Info("Successfully Added Foreign Key Relationships to Base Tables :)")

	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
