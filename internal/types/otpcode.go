package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AdminOtpCode is one outstanding or historical passcode for an email.
// Verification only trusts the most recently created unused, unexpired
// row; older rows stay around so the issuance rate limit can count them.
type AdminOtpCode struct {
	gorm.Model
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	Email     string    `gorm:"index;not null;column:email" json:"email"`
	Code      string    `gorm:"not null;column:code" json:"-"`
	Attempts  int       `gorm:"not null;default:0;column:attempts" json:"attempts"`
	Used      bool      `gorm:"not null;default:false;column:used" json:"used"`
	ExpiresAt time.Time `gorm:"not null;column:expires_at" json:"expiresAt"`

	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

func (AdminOtpCode) TableName() string {
	return "admin_otp_code"
}

func (c *AdminOtpCode) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
