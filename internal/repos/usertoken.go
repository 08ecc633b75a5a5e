package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/elite-zone/elitezone-backend/internal/logger"
	"github.com/elite-zone/elitezone-backend/internal/types"
)

type UserTokenRepo interface {
	// CREATE
	Create(ctx context.Context, tx *gorm.DB, tokens []*types.UserToken) ([]*types.UserToken, error)

	// READ
	GetByAccessToken(ctx context.Context, tx *gorm.DB, accessToken string) (*types.UserToken, error)
	GetByRefreshToken(ctx context.Context, tx *gorm.DB, refreshToken string) (*types.UserToken, error)

	// FULL (HARD) DELETE
	FullDeleteByTokens(ctx context.Context, tx *gorm.DB, tokens []*types.UserToken) error
	FullDeleteByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) error
}

type userTokenRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserTokenRepo(db *gorm.DB, baseLog *logger.Logger) UserTokenRepo {
	repoLog := baseLog.With("repo", "UserTokenRepo")
	return &userTokenRepo{db: db, log: repoLog}
}

// ----------------------------------------------------------------
// CREATE
// ----------------------------------------------------------------

func (utr *userTokenRepo) Create(ctx context.Context, tx *gorm.DB, tokens []*types.UserToken) ([]*types.UserToken, error) {
	utr.log.Info("Starting Create UserTokens now...")

	transaction := tx
	if transaction == nil {
		transaction = utr.db
		utr.log.Debug("Transaction is nil, using utr.db")
	}

	if len(tokens) == 0 {
		utr.log.Debug("No tokens provided, returning empty slice")
		return []*types.UserToken{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&tokens).Error; err != nil {
		utr.log.Error("Failed to create user tokens", "error", err)
		return nil, err
	}
	utr.log.Info("Successfully created user tokens", "count", len(tokens))
	return tokens, nil
}

// ----------------------------------------------------------------
// READ
// ----------------------------------------------------------------

func (utr *userTokenRepo) GetByAccessToken(ctx context.Context, tx *gorm.DB, accessToken string) (*types.UserToken, error) {
	return utr.getByColumn(ctx, tx, "access_token", accessToken)
}

func (utr *userTokenRepo) GetByRefreshToken(ctx context.Context, tx *gorm.DB, refreshToken string) (*types.UserToken, error) {
	return utr.getByColumn(ctx, tx, "refresh_token", refreshToken)
}

func (utr *userTokenRepo) getByColumn(ctx context.Context, tx *gorm.DB, column, value string) (*types.UserToken, error) {
	transaction := tx
	if transaction == nil {
		transaction = utr.db
	}

	if value == "" {
		utr.log.Debug("Empty token value, returning nil", "column", column)
		return nil, nil
	}

	var token types.UserToken
	err := transaction.WithContext(ctx).
		Where(column+" = ?", value).
		First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utr.log.Debug("No user token found", "column", column)
			return nil, nil
		}
		utr.log.Error("Failed to fetch user token", "error", err, "column", column)
		return nil, err
	}
	return &token, nil
}

// ----------------------------------------------------------------
// FULL (HARD) DELETE
// ----------------------------------------------------------------

func (utr *userTokenRepo) FullDeleteByTokens(ctx context.Context, tx *gorm.DB, tokens []*types.UserToken) error {
	transaction := tx
	if transaction == nil {
		transaction = utr.db
	}

	if len(tokens) == 0 {
		utr.log.Debug("No tokens provided, skipping full delete")
		return nil
	}

	var tokenIDs []uuid.UUID
	for _, t := range tokens {
		tokenIDs = append(tokenIDs, t.ID)
	}

	if err := transaction.WithContext(ctx).
		Unscoped().
		Where("id IN ?", tokenIDs).
		Delete(&types.UserToken{}).Error; err != nil {
		utr.log.Error("Failed to delete user tokens by IDs", "error", err)
		return err
	}
	utr.log.Info("Successfully deleted user tokens", "count", len(tokenIDs))
	return nil
}

func (utr *userTokenRepo) FullDeleteByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = utr.db
	}

	if len(userIDs) == 0 {
		utr.log.Debug("No userIDs provided, skipping full delete")
		return nil
	}

	if err := transaction.WithContext(ctx).
		Unscoped().
		Where("user_id IN ?", userIDs).
		Delete(&types.UserToken{}).Error; err != nil {
		utr.log.Error("Failed to delete user tokens by userIDs", "error", err)
		return err
	}
	utr.log.Info("Successfully deleted user tokens by userIDs", "count", len(userIDs))
	return nil
}
