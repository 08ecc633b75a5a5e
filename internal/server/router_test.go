package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/elite-zone/elitezone-backend/internal/handlers"
	"github.com/elite-zone/elitezone-backend/internal/middleware"
	"github.com/elite-zone/elitezone-backend/internal/repos"
	"github.com/elite-zone/elitezone-backend/internal/server"
	"github.com/elite-zone/elitezone-backend/internal/services"
	"github.com/elite-zone/elitezone-backend/internal/testutil"
	"github.com/elite-zone/elitezone-backend/internal/types"
)

type apiFixture struct {
	db     *gorm.DB
	router *gin.Engine
	email  *testutil.FakeEmailService
}

func newAPIFixture(t *testing.T, allowedOrigins []string) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

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
	sessionService := services.NewSessionService(db, log, userRoleRepo, sessionRepo, identityService)

	router := server.NewRouter(server.RouterConfig{
		AuthHandler:    handlers.NewAuthHandler(log, otpService, sessionService, identityService),
		MeHandler:      handlers.NewMeHandler(log, userRepo),
		AuthMiddleware: middleware.NewAuthMiddleware(log, identityService, userRoleRepo),
		AllowedOrigins: allowedOrigins,
	})
	return &apiFixture{db: db, router: router, email: emailService}
}

func (f *apiFixture) post(path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) latestCode(t *testing.T, email string) string {
	t.Helper()
	var record types.AdminOtpCode
	require.NoError(t, f.db.Where("email = ?", email).Order("created_at DESC").First(&record).Error)
	return record.Code
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSendOtpEndpoint(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newAPIFixture(t, nil)
		rec := f.post("/api/admin/otp/send", gin.H{"email": "boss@elitezone.dz"}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, 1, f.email.SentCount())
	})

	t.Run("invalid email is 400", func(t *testing.T) {
		f := newAPIFixture(t, nil)
		rec := f.post("/api/admin/otp/send", gin.H{"email": "nope"}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unauthorized email is 403", func(t *testing.T) {
		f := newAPIFixture(t, nil)
		testutil.NewTestAdmin(t, f.db, "boss@elitezone.dz")
		rec := f.post("/api/admin/otp/send", gin.H{"email": "stranger@example.com"}, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("fourth request is 429 with retryAfter", func(t *testing.T) {
		f := newAPIFixture(t, nil)
		for i := 0; i < 3; i++ {
			require.Equal(t, http.StatusOK, f.post("/api/admin/otp/send", gin.H{"email": "boss@elitezone.dz"}, nil).Code)
		}
		rec := f.post("/api/admin/otp/send", gin.H{"email": "boss@elitezone.dz"}, nil)
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, float64(900), body["retryAfter"])
	})
}

func TestVerifyOtpEndpoint(t *testing.T) {
	t.Run("direct token response", func(t *testing.T) {
		f := newAPIFixture(t, nil)
		require.Equal(t, http.StatusOK, f.post("/api/admin/otp/send", gin.H{"email": "boss@elitezone.dz"}, nil).Code)
		code := f.latestCode(t, "boss@elitezone.dz")

		rec := f.post("/api/admin/otp/verify", gin.H{"email": "boss@elitezone.dz", "code": code, "deviceId": "device-1"}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "boss@elitezone.dz", body["email"])
		assert.NotEmpty(t, body["userId"])
		assert.NotEmpty(t, body["sessionExpires"])
		assert.NotEmpty(t, body["accessToken"])
		assert.NotEmpty(t, body["refreshToken"])
		assert.Nil(t, body["useMagicLink"])
	})

	t.Run("wrong code is 400 with the uniform message", func(t *testing.T) {
		f := newAPIFixture(t, nil)
		require.Equal(t, http.StatusOK, f.post("/api/admin/otp/send", gin.H{"email": "boss@elitezone.dz"}, nil).Code)
		code := f.latestCode(t, "boss@elitezone.dz")
		wrong := "000000"
		if wrong == code {
			wrong = "000001"
		}

		rec := f.post("/api/admin/otp/verify", gin.H{"email": "boss@elitezone.dz", "code": wrong, "deviceId": "device-1"}, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "verification code is invalid or expired", body["error"])
	})
}

func TestSessionCheckEndpoint(t *testing.T) {
	f := newAPIFixture(t, nil)
	require.Equal(t, http.StatusOK, f.post("/api/admin/otp/send", gin.H{"email": "boss@elitezone.dz"}, nil).Code)
	code := f.latestCode(t, "boss@elitezone.dz")
	verify := f.post("/api/admin/otp/verify", gin.H{"email": "boss@elitezone.dz", "code": code, "deviceId": "device-1"}, nil)
	require.Equal(t, http.StatusOK, verify.Code)
	accessToken := decodeBody(t, verify)["accessToken"].(string)
	authHeader := map[string]string{"Authorization": "Bearer " + accessToken}

	t.Run("valid", func(t *testing.T) {
		rec := f.post("/api/admin/session/check", gin.H{"deviceId": "device-1"}, authHeader)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["valid"])
		assert.NotEmpty(t, body["userId"])
	})

	t.Run("no bearer is 401 without requireOtp", func(t *testing.T) {
		rec := f.post("/api/admin/session/check", gin.H{"deviceId": "device-1"}, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decodeBody(t, rec)
		assert.Nil(t, body["requireOtp"])
	})

	t.Run("unknown device is 401 with requireOtp", func(t *testing.T) {
		rec := f.post("/api/admin/session/check", gin.H{"deviceId": "device-unknown"}, authHeader)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["requireOtp"])
		assert.Equal(t, false, body["valid"])
	})
}

func TestRefreshAndLogoutEndpoints(t *testing.T) {
	f := newAPIFixture(t, nil)
	require.Equal(t, http.StatusOK, f.post("/api/admin/otp/send", gin.H{"email": "boss@elitezone.dz"}, nil).Code)
	code := f.latestCode(t, "boss@elitezone.dz")
	verify := f.post("/api/admin/otp/verify", gin.H{"email": "boss@elitezone.dz", "code": code, "deviceId": "device-1"}, nil)
	require.Equal(t, http.StatusOK, verify.Code)
	verifyBody := decodeBody(t, verify)
	refreshToken := verifyBody["refreshToken"].(string)

	rec := f.post("/api/admin/refresh", gin.H{"refreshToken": refreshToken}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	newAccess := body["accessToken"].(string)
	assert.NotEmpty(t, body["refreshToken"])
	assert.NotEqual(t, refreshToken, body["refreshToken"])

	// Logout needs the live bearer.
	rec = f.post("/api/admin/logout", gin.H{}, map[string]string{"Authorization": "Bearer " + newAccess})
	require.Equal(t, http.StatusOK, rec.Code)

	// The bearer is gone afterwards.
	rec = f.post("/api/admin/logout", gin.H{}, map[string]string{"Authorization": "Bearer " + newAccess})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeEndpoint(t *testing.T) {
	f := newAPIFixture(t, nil)
	require.Equal(t, http.StatusOK, f.post("/api/admin/otp/send", gin.H{"email": "boss@elitezone.dz"}, nil).Code)
	code := f.latestCode(t, "boss@elitezone.dz")
	verify := f.post("/api/admin/otp/verify", gin.H{"email": "boss@elitezone.dz", "code": code, "deviceId": "device-1"}, nil)
	require.Equal(t, http.StatusOK, verify.Code)
	accessToken := decodeBody(t, verify)["accessToken"].(string)

	get := func(headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/me", nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("admin bearer", func(t *testing.T) {
		rec := get(map[string]string{"Authorization": "Bearer " + accessToken})
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "boss@elitezone.dz", body["email"])
	})

	t.Run("no bearer is 401", func(t *testing.T) {
		rec := get(nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("role stripped is 403", func(t *testing.T) {
		require.NoError(t, f.db.Unscoped().Where("role = ?", types.RoleAdmin).Delete(&types.UserRole{}).Error)
		rec := get(map[string]string{"Authorization": "Bearer " + accessToken})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		// The role check runs before the handler, so nothing of the
		// profile leaks into the body.
		body := decodeBody(t, rec)
		assert.Equal(t, "admin role required", body["error"])
		assert.NotContains(t, rec.Body.String(), "boss@elitezone.dz")
	})
}

func TestRedeemEndpoint(t *testing.T) {
	f := newAPIFixture(t, nil)
	user := testutil.NewTestAdmin(t, f.db, "boss@elitezone.dz")
	record := &types.LoginToken{
		UserID:    user.ID,
		Token:     "opaque-link-token",
		TokenType: types.LoginTokenTypeMagicLink,
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}
	require.NoError(t, f.db.Create(record).Error)

	rec := f.post("/api/admin/otp/redeem", gin.H{"token": "opaque-link-token"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "boss@elitezone.dz", body["email"])
	assert.NotEmpty(t, body["accessToken"])

	rec = f.post("/api/admin/otp/redeem", gin.H{"token": "opaque-link-token"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCors(t *testing.T) {
	preflight := func(f *apiFixture, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/admin/otp/send", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Content-Type")
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("no allow list reflects any origin", func(t *testing.T) {
		f := newAPIFixture(t, nil)
		rec := preflight(f, "https://anything.example")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://anything.example", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("allow list admits listed origins only", func(t *testing.T) {
		f := newAPIFixture(t, []string{"https://admin.elitezone.dz"})
		rec := preflight(f, "https://admin.elitezone.dz")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://admin.elitezone.dz", rec.Header().Get("Access-Control-Allow-Origin"))

		rec = preflight(f, "https://evil.example")
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
