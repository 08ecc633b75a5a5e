package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/elite-zone/elitezone-backend/internal/logger"
	"github.com/elite-zone/elitezone-backend/internal/types"
)

type UserRepo interface {
	// CREATE
	Create(ctx context.Context, tx *gorm.DB, users []*types.User) ([]*types.User, error)

	// READ
	GetByIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.User, error)
	GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*types.User, error)
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	repoLog := baseLog.With("repo", "UserRepo")
	return &userRepo{db: db, log: repoLog}
}

// ----------------------------------------------------------------
// CREATE
// ----------------------------------------------------------------

func (ur *userRepo) Create(ctx context.Context, tx *gorm.DB, users []*types.User) ([]*types.User, error) {
	ur.log.Info("Starting Create Users now...")

	transaction := tx
	if transaction == nil {
		transaction = ur.db
		ur.log.Debug("Transaction is nil, using ur.db")
	}

	if len(users) == 0 {
		ur.log.Debug("No users provided, returning empty slice")
		return []*types.User{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&users).Error; err != nil {
		ur.log.Error("Failed to create users", "error", err)
		return nil, err
	}
	ur.log.Info("Successfully created users", "count", len(users))
	return users, nil
}

// ----------------------------------------------------------------
// READ
// ----------------------------------------------------------------

func (ur *userRepo) GetByIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}

	var results []*types.User
	if len(userIDs) == 0 {
		ur.log.Debug("No userIDs provided, returning empty slice")
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("id IN ?", userIDs).
		Find(&results).Error; err != nil {
		ur.log.Error("Failed to fetch users by IDs", "error", err)
		return nil, err
	}
	ur.log.Debug("Users fetched by IDs", "count", len(results))
	return results, nil
}

// GetByEmail returns nil without error when no account exists for the
// email. The caller decides whether absence is a problem.
func (ur *userRepo) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*types.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}

	var user types.User
	err := transaction.WithContext(ctx).
		Where("email = ?", email).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ur.log.Debug("No user found for email", "email", email)
			return nil, nil
		}
		ur.log.Error("Failed to fetch user by email", "error", err)
		return nil, err
	}
	return &user, nil
}
