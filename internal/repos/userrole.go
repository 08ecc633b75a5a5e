package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/elite-zone/elitezone-backend/internal/logger"
	"github.com/elite-zone/elitezone-backend/internal/types"
)

type UserRoleRepo interface {
	// CREATE
	Create(ctx context.Context, tx *gorm.DB, roles []*types.UserRole) ([]*types.UserRole, error)

	// READ
	GetByUserAndRole(ctx context.Context, tx *gorm.DB, userID uuid.UUID, role string) (*types.UserRole, error)
	CountByRole(ctx context.Context, tx *gorm.DB, role string) (int64, error)
}

type userRoleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRoleRepo(db *gorm.DB, baseLog *logger.Logger) UserRoleRepo {
	repoLog := baseLog.With("repo", "UserRoleRepo")
	return &userRoleRepo{db: db, log: repoLog}
}

// ----------------------------------------------------------------
// CREATE
// ----------------------------------------------------------------

func (rr *userRoleRepo) Create(ctx context.Context, tx *gorm.DB, roles []*types.UserRole) ([]*types.UserRole, error) {
	rr.log.Info("Starting Create UserRoles now...")

	transaction := tx
	if transaction == nil {
		transaction = rr.db
		rr.log.Debug("Transaction is nil, using rr.db")
	}

	if len(roles) == 0 {
		rr.log.Debug("No roles provided, returning empty slice")
		return []*types.UserRole{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&roles).Error; err != nil {
		rr.log.Error("Failed to create user roles", "error", err)
		return nil, err
	}
	rr.log.Info("Successfully created user roles", "count", len(roles))
	return roles, nil
}

// ----------------------------------------------------------------
// READ
// ----------------------------------------------------------------

func (rr *userRoleRepo) GetByUserAndRole(ctx context.Context, tx *gorm.DB, userID uuid.UUID, role string) (*types.UserRole, error) {
	transaction := tx
	if transaction == nil {
		transaction = rr.db
	}

	var record types.UserRole
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND role = ?", userID, role).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rr.log.Debug("No role record found", "userID", userID, "role", role)
			return nil, nil
		}
		rr.log.Error("Failed to fetch role record", "error", err)
		return nil, err
	}
	return &record, nil
}

// CountByRole backs the bootstrap rule: the first admin may only be
// provisioned while this count is zero.
func (rr *userRoleRepo) CountByRole(ctx context.Context, tx *gorm.DB, role string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = rr.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.UserRole{}).
		Where("role = ?", role).
		Count(&count).Error; err != nil {
		rr.log.Error("Failed to count role records", "error", err, "role", role)
		return 0, err
	}
	rr.log.Debug("Role records counted", "role", role, "count", count)
	return count, nil
}
