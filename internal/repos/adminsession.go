package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/elite-zone/elitezone-backend/internal/logger"
	"github.com/elite-zone/elitezone-backend/internal/types"
)

type AdminSessionRepo interface {
	// UPSERT
	Upsert(ctx context.Context, tx *gorm.DB, session *types.AdminSession) (*types.AdminSession, error)

	// READ
	GetActive(ctx context.Context, tx *gorm.DB, userID uuid.UUID, deviceID string, now time.Time) (*types.AdminSession, error)
}

type adminSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAdminSessionRepo(db *gorm.DB, baseLog *logger.Logger) AdminSessionRepo {
	repoLog := baseLog.With("repo", "AdminSessionRepo")
	return &adminSessionRepo{db: db, log: repoLog}
}

// ----------------------------------------------------------------
// UPSERT
// ----------------------------------------------------------------

// Upsert writes the session row for (user, device), replacing the expiry
// when a row already exists. The conflict key makes racing verifications
// collapse to a single row.
func (asr *adminSessionRepo) Upsert(ctx context.Context, tx *gorm.DB, session *types.AdminSession) (*types.AdminSession, error) {
	asr.log.Info("Starting Upsert AdminSession now...")

	transaction := tx
	if transaction == nil {
		transaction = asr.db
		asr.log.Debug("Transaction is nil, using asr.db")
	}

	if session == nil {
		asr.log.Debug("No session provided, skipping upsert")
		return nil, nil
	}

	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "device_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"expires_at", "updated_at"}),
		}).
		Create(session).Error; err != nil {
		asr.log.Error("Failed to upsert admin session", "error", err)
		return nil, err
	}
	asr.log.Info("Successfully upserted admin session", "userID", session.UserID, "deviceID", session.DeviceID)
	return session, nil
}

// ----------------------------------------------------------------
// READ
// ----------------------------------------------------------------

func (asr *adminSessionRepo) GetActive(ctx context.Context, tx *gorm.DB, userID uuid.UUID, deviceID string, now time.Time) (*types.AdminSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = asr.db
	}

	var session types.AdminSession
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND device_id = ? AND expires_at > ?", userID, deviceID, now).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			asr.log.Debug("No active admin session", "userID", userID, "deviceID", deviceID)
			return nil, nil
		}
		asr.log.Error("Failed to fetch admin session", "error", err)
		return nil, err
	}
	return &session, nil
}
