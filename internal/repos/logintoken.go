package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/elite-zone/elitezone-backend/internal/logger"
	"github.com/elite-zone/elitezone-backend/internal/types"
)

type LoginTokenRepo interface {
	// CREATE
	Create(ctx context.Context, tx *gorm.DB, tokens []*types.LoginToken) ([]*types.LoginToken, error)

	// READ
	GetActiveByToken(ctx context.Context, tx *gorm.DB, token string, now time.Time) (*types.LoginToken, error)

	// PARTIAL UPDATE
	MarkUsed(ctx context.Context, tx *gorm.DB, tokenID uuid.UUID) (bool, error)
}

type loginTokenRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLoginTokenRepo(db *gorm.DB, baseLog *logger.Logger) LoginTokenRepo {
	repoLog := baseLog.With("repo", "LoginTokenRepo")
	return &loginTokenRepo{db: db, log: repoLog}
}

// ----------------------------------------------------------------
// CREATE
// ----------------------------------------------------------------

func (ltr *loginTokenRepo) Create(ctx context.Context, tx *gorm.DB, tokens []*types.LoginToken) ([]*types.LoginToken, error) {
	ltr.log.Info("Starting Create LoginTokens now...")

	transaction := tx
	if transaction == nil {
		transaction = ltr.db
		ltr.log.Debug("Transaction is nil, using ltr.db")
	}

	if len(tokens) == 0 {
		ltr.log.Debug("No tokens provided, returning empty slice")
		return []*types.LoginToken{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&tokens).Error; err != nil {
		ltr.log.Error("Failed to create login tokens", "error", err)
		return nil, err
	}
	ltr.log.Info("Successfully created login tokens", "count", len(tokens))
	return tokens, nil
}

// ----------------------------------------------------------------
// READ
// ----------------------------------------------------------------

func (ltr *loginTokenRepo) GetActiveByToken(ctx context.Context, tx *gorm.DB, token string, now time.Time) (*types.LoginToken, error) {
	transaction := tx
	if transaction == nil {
		transaction = ltr.db
	}

	if token == "" {
		ltr.log.Debug("Empty login token, returning nil")
		return nil, nil
	}

	var record types.LoginToken
	err := transaction.WithContext(ctx).
		Where("token = ? AND used = ? AND expires_at > ?", token, false, now).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ltr.log.Debug("No active login token found")
			return nil, nil
		}
		ltr.log.Error("Failed to fetch login token", "error", err)
		return nil, err
	}
	return &record, nil
}

// ----------------------------------------------------------------
// PARTIAL UPDATE
// ----------------------------------------------------------------

// MarkUsed is the same one-way conditional transition as for otp codes:
// the returned bool says whether this caller consumed the token.
func (ltr *loginTokenRepo) MarkUsed(ctx context.Context, tx *gorm.DB, tokenID uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = ltr.db
	}

	if tokenID == uuid.Nil {
		ltr.log.Debug("tokenID is nil, skipping MarkUsed")
		return false, nil
	}

	result := transaction.WithContext(ctx).
		Model(&types.LoginToken{}).
		Where("id = ? AND used = ?", tokenID, false).
		Update("used", true)
	if result.Error != nil {
		ltr.log.Error("Failed to mark login token used", "error", result.Error, "tokenID", tokenID)
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		ltr.log.Debug("Login token already used", "tokenID", tokenID)
		return false, nil
	}
	ltr.log.Info("Successfully marked login token used", "tokenID", tokenID)
	return true, nil
}
