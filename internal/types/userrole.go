package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const RoleAdmin = "admin"

// UserRole grants a privileged capability to an account. Rows are
// written exactly once, at first successful OTP verification, and never
// mutated afterwards.
type UserRole struct {
	gorm.Model
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"uniqueIndex:idx_user_role;not null;column:user_id" json:"userID"`
	User   *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`

	Role string `gorm:"uniqueIndex:idx_user_role;not null;column:role" json:"role"`

	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

func (UserRole) TableName() string {
	return "user_role"
}

func (r *UserRole) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
