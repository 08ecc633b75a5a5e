package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the identity-primitive account record. Accounts are only ever
// provisioned by OTP verification, so Secret holds a bcrypt hash of a
// random internal value the account holder never sees.
type User struct {
	gorm.Model
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	Email          string `gorm:"uniqueIndex;not null;column:email" json:"email"`
	Secret         string `gorm:"not null;column:secret" json:"-"`
	EmailConfirmed bool   `gorm:"not null;default:false;column:email_confirmed" json:"emailConfirmed"`

	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

func (User) TableName() string {
	return "user"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
