package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/elite-zone/elitezone-backend/internal/errordata"
	"github.com/elite-zone/elitezone-backend/internal/repos"
	"github.com/elite-zone/elitezone-backend/internal/services"
	"github.com/elite-zone/elitezone-backend/internal/testutil"
	"github.com/elite-zone/elitezone-backend/internal/types"
)

type otpFixture struct {
	db       *gorm.DB
	otp      services.OtpService
	identity services.IdentityService
	email    *testutil.FakeEmailService
}

func newOtpFixture(t *testing.T) *otpFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	log := testutil.NewTestLogger(t)
	userRepo := repos.NewUserRepo(db, log)
	userRoleRepo := repos.NewUserRoleRepo(db, log)
	otpCodeRepo := repos.NewAdminOtpCodeRepo(db, log)
	sessionRepo := repos.NewAdminSessionRepo(db, log)
	userTokenRepo := repos.NewUserTokenRepo(db, log)
	loginTokenRepo := repos.NewLoginTokenRepo(db, log)
	emailService := &testutil.FakeEmailService{}
	identityService := services.NewIdentityService(db, log, userRepo, userTokenRepo, loginTokenRepo, "test-secret", time.Hour, 24*time.Hour)
	otpService := services.NewOtpService(db, log, otpCodeRepo, userRepo, userRoleRepo, sessionRepo, identityService, emailService)
	return &otpFixture{db: db, otp: otpService, identity: identityService, email: emailService}
}

// latestCode reads the newest stored code for an email straight from
// the table, standing in for reading the delivered message.
func (f *otpFixture) latestCode(t *testing.T, email string) *types.AdminOtpCode {
	t.Helper()
	var record types.AdminOtpCode
	err := f.db.Where("email = ?", email).Order("created_at DESC").First(&record).Error
	require.NoError(t, err)
	return &record
}

func TestIssueCode(t *testing.T) {
	ctx := context.Background()

	t.Run("bootstrap email receives a six digit code", func(t *testing.T) {
		f := newOtpFixture(t)
		require.NoError(t, f.otp.IssueCode(ctx, "Boss@EliteZone.dz"))

		record := f.latestCode(t, "boss@elitezone.dz")
		assert.Len(t, record.Code, 6)
		assert.False(t, record.Used)
		assert.WithinDuration(t, time.Now().Add(10*time.Minute), record.ExpiresAt, 5*time.Second)

		require.Equal(t, 1, f.email.SentCount())
		sent := f.email.LastSent()
		assert.Equal(t, "boss@elitezone.dz", sent.ToEmail)
		assert.Contains(t, sent.Html, record.Code)
		assert.Contains(t, sent.PlainText, record.Code)
	})

	t.Run("rejects malformed email", func(t *testing.T) {
		f := newOtpFixture(t)
		err := f.otp.IssueCode(ctx, "not-an-email")
		ed, ok := errordata.AsError(err)
		require.True(t, ok)
		assert.Equal(t, errordata.KindValidation, ed.Kind)
		assert.Equal(t, 0, f.email.SentCount())
	})

	t.Run("unknown email refused once an admin exists", func(t *testing.T) {
		f := newOtpFixture(t)
		testutil.NewTestAdmin(t, f.db, "boss@elitezone.dz")

		err := f.otp.IssueCode(ctx, "stranger@example.com")
		ed, ok := errordata.AsError(err)
		require.True(t, ok)
		assert.Equal(t, errordata.KindForbidden, ed.Kind)
		assert.Equal(t, "not permitted for this email", ed.Message)
	})

	t.Run("existing account without admin role is refused with the same message", func(t *testing.T) {
		f := newOtpFixture(t)
		testutil.NewTestAdmin(t, f.db, "boss@elitezone.dz")
		testutil.NewTestUser(t, f.db, "plain@elitezone.dz")

		err := f.otp.IssueCode(ctx, "plain@elitezone.dz")
		ed, ok := errordata.AsError(err)
		require.True(t, ok)
		assert.Equal(t, errordata.KindForbidden, ed.Kind)
		assert.Equal(t, "not permitted for this email", ed.Message)
	})

	t.Run("fourth request inside the window is throttled", func(t *testing.T) {
		f := newOtpFixture(t)
		for i := 0; i < 3; i++ {
			require.NoError(t, f.otp.IssueCode(ctx, "boss@elitezone.dz"))
		}
		err := f.otp.IssueCode(ctx, "boss@elitezone.dz")
		ed, ok := errordata.AsError(err)
		require.True(t, ok)
		assert.Equal(t, errordata.KindRateLimited, ed.Kind)
		assert.Equal(t, int((15 * time.Minute).Seconds()), ed.RetryAfter)
		assert.Equal(t, 3, f.email.SentCount())
	})

	t.Run("requests outside the window do not count", func(t *testing.T) {
		f := newOtpFixture(t)
		for i := 0; i < 3; i++ {
			require.NoError(t, f.otp.IssueCode(ctx, "boss@elitezone.dz"))
		}
		old := time.Now().Add(-16 * time.Minute)
		require.NoError(t, f.db.Model(&types.AdminOtpCode{}).
			Where("email = ?", "boss@elitezone.dz").
			Update("created_at", old).Error)

		require.NoError(t, f.otp.IssueCode(ctx, "boss@elitezone.dz"))
	})

	t.Run("used codes are purged on issuance, unexpired live ones are not", func(t *testing.T) {
		f := newOtpFixture(t)
		require.NoError(t, f.otp.IssueCode(ctx, "boss@elitezone.dz"))
		first := f.latestCode(t, "boss@elitezone.dz")
		require.NoError(t, f.db.Model(&types.AdminOtpCode{}).Where("id = ?", first.ID).Update("used", true).Error)

		require.NoError(t, f.otp.IssueCode(ctx, "boss@elitezone.dz"))

		var count int64
		require.NoError(t, f.db.Model(&types.AdminOtpCode{}).Where("email = ?", "boss@elitezone.dz").Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("delivery failure keeps the persisted code", func(t *testing.T) {
		f := newOtpFixture(t)
		f.email.Err = errors.New("sendgrid down")

		err := f.otp.IssueCode(ctx, "boss@elitezone.dz")
		ed, ok := errordata.AsError(err)
		require.True(t, ok)
		assert.Equal(t, errordata.KindUpstream, ed.Kind)

		record := f.latestCode(t, "boss@elitezone.dz")
		assert.False(t, record.Used)
	})
}

func TestVerifyCode(t *testing.T) {
	ctx := context.Background()

	issue := func(t *testing.T, f *otpFixture, email string) string {
		t.Helper()
		require.NoError(t, f.otp.IssueCode(ctx, email))
		return f.latestCode(t, email).Code
	}

	t.Run("bootstrap verification provisions account role and session", func(t *testing.T) {
		f := newOtpFixture(t)
		code := issue(t, f, "boss@elitezone.dz")

		result, err := f.otp.VerifyCode(ctx, "boss@elitezone.dz", code, "device-1")
		require.NoError(t, err)
		assert.Equal(t, "boss@elitezone.dz", result.Email)
		assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), result.SessionExpires, 5*time.Second)
		require.NotNil(t, result.Credential)
		assert.False(t, result.Credential.UseMagicLink())
		assert.NotEmpty(t, result.Credential.Tokens.AccessToken)
		assert.NotEmpty(t, result.Credential.Tokens.RefreshToken)

		var user types.User
		require.NoError(t, f.db.Where("email = ?", "boss@elitezone.dz").First(&user).Error)
		assert.True(t, user.EmailConfirmed)

		var role types.UserRole
		require.NoError(t, f.db.Where("user_id = ? AND role = ?", user.ID, types.RoleAdmin).First(&role).Error)

		var session types.AdminSession
		require.NoError(t, f.db.Where("user_id = ? AND device_id = ?", user.ID, "device-1").First(&session).Error)
	})

	t.Run("code is single use", func(t *testing.T) {
		f := newOtpFixture(t)
		code := issue(t, f, "boss@elitezone.dz")

		_, err := f.otp.VerifyCode(ctx, "boss@elitezone.dz", code, "device-1")
		require.NoError(t, err)

		_, err = f.otp.VerifyCode(ctx, "boss@elitezone.dz", code, "device-1")
		ed, ok := errordata.AsError(err)
		require.True(t, ok)
		assert.Equal(t, errordata.KindExpired, ed.Kind)
		assert.Equal(t, "verification code is invalid or expired", ed.Message)
	})

	t.Run("expired code fails with the uniform message", func(t *testing.T) {
		f := newOtpFixture(t)
		code := issue(t, f, "boss@elitezone.dz")
		require.NoError(t, f.db.Model(&types.AdminOtpCode{}).
			Where("email = ?", "boss@elitezone.dz").
			Update("expires_at", time.Now().Add(-time.Minute)).Error)

		_, err := f.otp.VerifyCode(ctx, "boss@elitezone.dz", code, "device-1")
		ed, ok := errordata.AsError(err)
		require.True(t, ok)
		assert.Equal(t, errordata.KindExpired, ed.Kind)
		assert.Equal(t, "verification code is invalid or expired", ed.Message)
	})

	t.Run("wrong guesses burn attempts until the cap", func(t *testing.T) {
		f := newOtpFixture(t)
		code := issue(t, f, "boss@elitezone.dz")
		wrong := "000000"
		if wrong == code {
			wrong = "000001"
		}

		for i := 0; i < 5; i++ {
			_, err := f.otp.VerifyCode(ctx, "boss@elitezone.dz", wrong, "device-1")
			ed, ok := errordata.AsError(err)
			require.True(t, ok)
			assert.Equal(t, errordata.KindExpired, ed.Kind)
		}

		// The cap holds even for the correct code.
		_, err := f.otp.VerifyCode(ctx, "boss@elitezone.dz", code, "device-1")
		ed, ok := errordata.AsError(err)
		require.True(t, ok)
		assert.Equal(t, errordata.KindRateLimited, ed.Kind)
	})

	t.Run("malformed code fails without touching the counter", func(t *testing.T) {
		f := newOtpFixture(t)
		issue(t, f, "boss@elitezone.dz")

		_, err := f.otp.VerifyCode(ctx, "boss@elitezone.dz", "12345", "device-1")
		ed, ok := errordata.AsError(err)
		require.True(t, ok)
		assert.Equal(t, errordata.KindValidation, ed.Kind)

		record := f.latestCode(t, "boss@elitezone.dz")
		assert.Equal(t, 0, record.Attempts)
	})

	t.Run("missing device id is a validation error", func(t *testing.T) {
		f := newOtpFixture(t)
		code := issue(t, f, "boss@elitezone.dz")

		_, err := f.otp.VerifyCode(ctx, "boss@elitezone.dz", code, "  ")
		ed, ok := errordata.AsError(err)
		require.True(t, ok)
		assert.Equal(t, errordata.KindValidation, ed.Kind)
	})

	t.Run("repeat verification from the same device keeps one session row", func(t *testing.T) {
		f := newOtpFixture(t)
		code := issue(t, f, "boss@elitezone.dz")
		first, err := f.otp.VerifyCode(ctx, "boss@elitezone.dz", code, "device-1")
		require.NoError(t, err)

		code = issue(t, f, "boss@elitezone.dz")
		second, err := f.otp.VerifyCode(ctx, "boss@elitezone.dz", code, "device-1")
		require.NoError(t, err)
		assert.False(t, second.SessionExpires.Before(first.SessionExpires))

		var count int64
		require.NoError(t, f.db.Model(&types.AdminSession{}).Where("device_id = ?", "device-1").Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("different devices get separate sessions", func(t *testing.T) {
		f := newOtpFixture(t)
		code := issue(t, f, "boss@elitezone.dz")
		_, err := f.otp.VerifyCode(ctx, "boss@elitezone.dz", code, "device-1")
		require.NoError(t, err)

		code = issue(t, f, "boss@elitezone.dz")
		_, err = f.otp.VerifyCode(ctx, "boss@elitezone.dz", code, "device-2")
		require.NoError(t, err)

		var count int64
		require.NoError(t, f.db.Model(&types.AdminSession{}).Count(&count).Error)
		assert.Equal(t, int64(2), count)
	})

	t.Run("second unknown email cannot verify after bootstrap", func(t *testing.T) {
		f := newOtpFixture(t)
		code := issue(t, f, "boss@elitezone.dz")
		_, err := f.otp.VerifyCode(ctx, "boss@elitezone.dz", code, "device-1")
		require.NoError(t, err)

		// Plant a code directly so issuance authorization is bypassed.
		planted := &types.AdminOtpCode{
			Email:     "intruder@example.com",
			Code:      "123456",
			ExpiresAt: time.Now().Add(10 * time.Minute),
		}
		require.NoError(t, f.db.Create(planted).Error)

		_, err = f.otp.VerifyCode(ctx, "intruder@example.com", "123456", "device-9")
		ed, ok := errordata.AsError(err)
		require.True(t, ok)
		assert.Equal(t, errordata.KindForbidden, ed.Kind)

		// Provisioning must not have happened.
		var count int64
		require.NoError(t, f.db.Model(&types.User{}).Where("email = ?", "intruder@example.com").Count(&count).Error)
		assert.Equal(t, int64(0), count)
	})

	t.Run("only the newest active code is accepted", func(t *testing.T) {
		f := newOtpFixture(t)
		oldCode := issue(t, f, "boss@elitezone.dz")
		newCode := issue(t, f, "boss@elitezone.dz")
		if oldCode == newCode {
			t.Skip("generated codes collided")
		}

		_, err := f.otp.VerifyCode(ctx, "boss@elitezone.dz", oldCode, "device-1")
		ed, ok := errordata.AsError(err)
		require.True(t, ok)
		assert.Equal(t, errordata.KindExpired, ed.Kind)

		_, err = f.otp.VerifyCode(ctx, "boss@elitezone.dz", newCode, "device-1")
		require.NoError(t, err)
	})
}
