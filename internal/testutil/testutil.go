// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/elite-zone/elitezone-backend/internal/logger"
	"github.com/elite-zone/elitezone-backend/internal/types"
)

// NewTestDB creates an in-memory SQLite database with the full schema
// migrated.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	err = db.AutoMigrate(
		&types.User{},
		&types.UserRole{},
		&types.AdminOtpCode{},
		&types.AdminSession{},
		&types.UserToken{},
		&types.LoginToken{},
	)
	require.NoError(t, err)
	return db
}

// NewTestLogger returns a logger that discards everything.
func NewTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	return logger.NewNop()
}

// SentEmail records a single delivery handed to the fake email service.
type SentEmail struct {
	ToEmail   string
	Subject   string
	PlainText string
	Html      string
}

// FakeEmailService captures outgoing mail instead of sending it. Set
// Err to make every delivery fail.
type FakeEmailService struct {
	mu   sync.Mutex
	Sent []SentEmail
	Err  error
}

func (f *FakeEmailService) SendEmail(ctx context.Context, toEmail, subject, plainText, htmlContent string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Sent = append(f.Sent, SentEmail{ToEmail: toEmail, Subject: subject, PlainText: plainText, Html: htmlContent})
	return nil
}

// LastSent returns the most recent captured delivery, or nil.
func (f *FakeEmailService) LastSent() *SentEmail {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sent) == 0 {
		return nil
	}
	last := f.Sent[len(f.Sent)-1]
	return &last
}

// SentCount returns how many deliveries were captured.
func (f *FakeEmailService) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}

// NewTestUser inserts a user row.
func NewTestUser(t *testing.T, db *gorm.DB, email string) *types.User {
	t.Helper()
	user := &types.User{Email: email, Secret: "x", EmailConfirmed: true}
	require.NoError(t, db.Create(user).Error)
	return user
}

// NewTestAdmin inserts a user row plus its admin role.
func NewTestAdmin(t *testing.T, db *gorm.DB, email string) *types.User {
	t.Helper()
	user := NewTestUser(t, db, email)
	role := &types.UserRole{UserID: user.ID, Role: types.RoleAdmin}
	require.NoError(t, db.Create(role).Error)
	return user
}
