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

type AdminOtpCodeRepo interface {
	// CREATE
	Create(ctx context.Context, tx *gorm.DB, codes []*types.AdminOtpCode) ([]*types.AdminOtpCode, error)

	// READ
	GetLatestActiveByEmail(ctx context.Context, tx *gorm.DB, email string, now time.Time) (*types.AdminOtpCode, error)
	CountByEmailSince(ctx context.Context, tx *gorm.DB, email string, since time.Time) (int64, error)

	// PARTIAL UPDATE
	IncrementAttempts(ctx context.Context, tx *gorm.DB, codeID uuid.UUID) error
	MarkUsed(ctx context.Context, tx *gorm.DB, codeID uuid.UUID) (bool, error)

	// FULL (HARD) DELETE
	FullDeleteUsedByEmail(ctx context.Context, tx *gorm.DB, email string) error
}

type adminOtpCodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAdminOtpCodeRepo(db *gorm.DB, baseLog *logger.Logger) AdminOtpCodeRepo {
	repoLog := baseLog.With("repo", "AdminOtpCodeRepo")
	return &adminOtpCodeRepo{db: db, log: repoLog}
}

// ----------------------------------------------------------------
// CREATE
// ----------------------------------------------------------------

func (ocr *adminOtpCodeRepo) Create(ctx context.Context, tx *gorm.DB, codes []*types.AdminOtpCode) ([]*types.AdminOtpCode, error) {
	ocr.log.Info("Starting Create AdminOtpCodes now...")

	transaction := tx
	if transaction == nil {
		transaction = ocr.db
		ocr.log.Debug("Transaction is nil, using ocr.db")
	}

	if len(codes) == 0 {
		ocr.log.Debug("No codes provided, returning empty slice")
		return []*types.AdminOtpCode{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&codes).Error; err != nil {
		ocr.log.Error("Failed to create otp codes", "error", err)
		return nil, err
	}
	ocr.log.Info("Successfully created otp codes", "count", len(codes))
	return codes, nil
}

// ----------------------------------------------------------------
// READ
// ----------------------------------------------------------------

// GetLatestActiveByEmail returns the most recently created unused,
// unexpired code for the email, or nil when none exists. This is the
// row whose attempt counter gates verification.
func (ocr *adminOtpCodeRepo) GetLatestActiveByEmail(ctx context.Context, tx *gorm.DB, email string, now time.Time) (*types.AdminOtpCode, error) {
	transaction := tx
	if transaction == nil {
		transaction = ocr.db
	}

	var code types.AdminOtpCode
	err := transaction.WithContext(ctx).
		Where("email = ? AND used = ? AND expires_at > ?", email, false, now).
		Order("created_at DESC").
		First(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ocr.log.Debug("No active otp code for email", "email", email)
			return nil, nil
		}
		ocr.log.Error("Failed to fetch latest active otp code", "error", err)
		return nil, err
	}
	return &code, nil
}

// CountByEmailSince counts every code issued for the email after the
// cutoff, used or not. Used rows that have not been purged still take a
// rate-limit slot.
func (ocr *adminOtpCodeRepo) CountByEmailSince(ctx context.Context, tx *gorm.DB, email string, since time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = ocr.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.AdminOtpCode{}).
		Where("email = ? AND created_at > ?", email, since).
		Count(&count).Error; err != nil {
		ocr.log.Error("Failed to count otp codes for email", "error", err)
		return 0, err
	}
	ocr.log.Debug("Otp codes counted for email", "email", email, "count", count)
	return count, nil
}

// ----------------------------------------------------------------
// PARTIAL UPDATE
// ----------------------------------------------------------------

func (ocr *adminOtpCodeRepo) IncrementAttempts(ctx context.Context, tx *gorm.DB, codeID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = ocr.db
	}

	if codeID == uuid.Nil {
		ocr.log.Debug("codeID is nil, skipping IncrementAttempts")
		return nil
	}

	if err := transaction.WithContext(ctx).
		Model(&types.AdminOtpCode{}).
		Where("id = ?", codeID).
		UpdateColumn("attempts", gorm.Expr("attempts + ?", 1)).Error; err != nil {
		ocr.log.Error("Failed to increment otp attempts", "error", err, "codeID", codeID)
		return err
	}
	ocr.log.Debug("Otp attempts incremented", "codeID", codeID)
	return nil
}

// MarkUsed flips used from false to true in a single conditional update.
// The returned bool reports whether this caller won the transition; a
// racing verifier that loses sees false and must treat the code as spent.
func (ocr *adminOtpCodeRepo) MarkUsed(ctx context.Context, tx *gorm.DB, codeID uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = ocr.db
	}

	if codeID == uuid.Nil {
		ocr.log.Debug("codeID is nil, skipping MarkUsed")
		return false, nil
	}

	result := transaction.WithContext(ctx).
		Model(&types.AdminOtpCode{}).
		Where("id = ? AND used = ?", codeID, false).
		Update("used", true)
	if result.Error != nil {
		ocr.log.Error("Failed to mark otp code used", "error", result.Error, "codeID", codeID)
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		ocr.log.Debug("Otp code already used, transition lost", "codeID", codeID)
		return false, nil
	}
	ocr.log.Info("Successfully marked otp code used", "codeID", codeID)
	return true, nil
}

// ----------------------------------------------------------------
// FULL (HARD) DELETE
// ----------------------------------------------------------------

// FullDeleteUsedByEmail purges spent codes on the next issuance for the
// email. Unused and expired rows are kept for rate-limit accounting.
func (ocr *adminOtpCodeRepo) FullDeleteUsedByEmail(ctx context.Context, tx *gorm.DB, email string) error {
	transaction := tx
	if transaction == nil {
		transaction = ocr.db
	}

	if err := transaction.WithContext(ctx).
		Unscoped().
		Where("email = ? AND used = ?", email, true).
		Delete(&types.AdminOtpCode{}).Error; err != nil {
		ocr.log.Error("Failed to purge used otp codes", "error", err, "email", email)
		return err
	}
	ocr.log.Debug("Used otp codes purged", "email", email)
	return nil
}
