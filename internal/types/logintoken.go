package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const LoginTokenTypeMagicLink = "magiclink"

// LoginToken is the single-use fallback credential handed out when the
// direct sign-in path fails during OTP verification. Redeeming it yields
// the same bearer pair a direct sign-in would have produced.
type LoginToken struct {
	gorm.Model
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"index;not null;column:user_id" json:"userID"`
	User   *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`

	Token     string    `gorm:"uniqueIndex;not null;column:token" json:"-"`
	TokenType string    `gorm:"not null;column:token_type" json:"tokenType"`
	Used      bool      `gorm:"not null;default:false;column:used" json:"used"`
	ExpiresAt time.Time `gorm:"not null;column:expires_at" json:"expiresAt"`

	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

func (LoginToken) TableName() string {
	return "login_token"
}

func (t *LoginToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
