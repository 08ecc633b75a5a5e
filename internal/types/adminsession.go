package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AdminSession is a device-bound authorization window. One row per
// (user, device) pair; a repeated verification from the same device
// replaces the expiry instead of adding a row. Expiry is absolute and
// is never extended by use.
type AdminSession struct {
	gorm.Model
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"uniqueIndex:idx_admin_session_user_device;not null;column:user_id" json:"userID"`
	User   *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`

	DeviceID  string    `gorm:"uniqueIndex:idx_admin_session_user_device;not null;column:device_id" json:"deviceID"`
	ExpiresAt time.Time `gorm:"not null;column:expires_at" json:"expiresAt"`

	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

func (AdminSession) TableName() string {
	return "admin_session"
}

func (s *AdminSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
