package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/elite-zone/elitezone-backend/internal/repos"
	"github.com/elite-zone/elitezone-backend/internal/requestdata"
	"github.com/elite-zone/elitezone-backend/internal/services"
	"github.com/elite-zone/elitezone-backend/internal/testutil"
	"github.com/elite-zone/elitezone-backend/internal/types"
)

func newIdentityFixture(t *testing.T) (services.IdentityService, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t)
	log := testutil.NewTestLogger(t)
	userRepo := repos.NewUserRepo(db, log)
	userTokenRepo := repos.NewUserTokenRepo(db, log)
	loginTokenRepo := repos.NewLoginTokenRepo(db, log)
	identityService := services.NewIdentityService(db, log, userRepo, userTokenRepo, loginTokenRepo, "test-secret", time.Hour, 24*time.Hour)
	return identityService, db
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	identity, db := newIdentityFixture(t)
	user := testutil.NewTestAdmin(t, db, "boss@elitezone.dz")

	first, err := identity.SignIn(ctx, nil, user)
	require.NoError(t, err)
	assert.NotEmpty(t, first.AccessToken)
	assert.NotEmpty(t, first.RefreshToken)

	subject, err := identity.SubjectFromToken(first.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, subject)

	// A second sign-in replaces the prior pair. Both halves must be
	// fresh values even when the sign-ins land in the same second.
	second, err := identity.SignIn(ctx, nil, user)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)

	var count int64
	require.NoError(t, db.Model(&types.UserToken{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// The replaced access token is revoked.
	_, err = identity.SetContextFromToken(ctx, first.AccessToken)
	assert.Error(t, err)
	_, err = identity.SetContextFromToken(ctx, second.AccessToken)
	assert.NoError(t, err)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("rotates both tokens", func(t *testing.T) {
		identity, db := newIdentityFixture(t)
		user := testutil.NewTestAdmin(t, db, "boss@elitezone.dz")
		pair, err := identity.SignIn(ctx, nil, user)
		require.NoError(t, err)

		rotated, err := identity.Refresh(ctx, pair.RefreshToken)
		require.NoError(t, err)
		assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

		// The old refresh token no longer works.
		_, err = identity.Refresh(ctx, pair.RefreshToken)
		assert.Error(t, err)
	})

	t.Run("rejects unknown and expired tokens", func(t *testing.T) {
		identity, db := newIdentityFixture(t)
		user := testutil.NewTestAdmin(t, db, "boss@elitezone.dz")
		pair, err := identity.SignIn(ctx, nil, user)
		require.NoError(t, err)

		_, err = identity.Refresh(ctx, "nope")
		assert.Error(t, err)

		require.NoError(t, db.Model(&types.UserToken{}).
			Where("user_id = ?", user.ID).
			Update("expires_at", time.Now().Add(-time.Minute)).Error)
		_, err = identity.Refresh(ctx, pair.RefreshToken)
		assert.Error(t, err)

		// The expired row was deleted on the way out.
		var count int64
		require.NoError(t, db.Model(&types.UserToken{}).Where("user_id = ?", user.ID).Count(&count).Error)
		assert.Equal(t, int64(0), count)
	})
}

func TestRedeemLoginLink(t *testing.T) {
	ctx := context.Background()
	identity, db := newIdentityFixture(t)
	user := testutil.NewTestAdmin(t, db, "boss@elitezone.dz")

	record := &types.LoginToken{
		UserID:    user.ID,
		Token:     "opaque-link-token",
		TokenType: types.LoginTokenTypeMagicLink,
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}
	require.NoError(t, db.Create(record).Error)

	pair, redeemed, err := identity.RedeemLoginLink(ctx, "opaque-link-token")
	require.NoError(t, err)
	assert.Equal(t, user.ID, redeemed.ID)
	assert.NotEmpty(t, pair.AccessToken)

	// Single use.
	_, _, err = identity.RedeemLoginLink(ctx, "opaque-link-token")
	assert.Error(t, err)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	identity, db := newIdentityFixture(t)
	user := testutil.NewTestAdmin(t, db, "boss@elitezone.dz")
	pair, err := identity.SignIn(ctx, nil, user)
	require.NoError(t, err)

	authedCtx, err := identity.SetContextFromToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	rd := requestdata.GetRequestData(authedCtx)
	require.NotNil(t, rd)
	assert.Equal(t, user.ID, rd.UserID)

	require.NoError(t, identity.Logout(authedCtx))

	var count int64
	require.NoError(t, db.Model(&types.UserToken{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	// A device session would still exist after logout; only the bearer
	// pair is gone.
	_, err = identity.SetContextFromToken(ctx, pair.AccessToken)
	assert.Error(t, err)
}
