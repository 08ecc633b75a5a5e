package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/elite-zone/elitezone-backend/internal/errordata"
	"github.com/elite-zone/elitezone-backend/internal/logger"
	"github.com/elite-zone/elitezone-backend/internal/services"
)

type AuthHandler struct {
	log             *logger.Logger
	otpService      services.OtpService
	sessionService  services.SessionService
	identityService services.IdentityService
}

func NewAuthHandler(log *logger.Logger, otpService services.OtpService, sessionService services.SessionService, identityService services.IdentityService) *AuthHandler {
	handlerLogger := log.With("Handler", "AuthHandler")
	return &AuthHandler{log: handlerLogger, otpService: otpService, sessionService: sessionService, identityService: identityService}
}

func (ah *AuthHandler) SendOtp(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := ah.otpService.IssueCode(c.Request.Context(), req.Email); err != nil {
		ah.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (ah *AuthHandler) VerifyOtp(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Code     string `json:"code"`
		DeviceID string `json:"deviceId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	result, err := ah.otpService.VerifyCode(c.Request.Context(), req.Email, req.Code, req.DeviceID)
	if err != nil {
		ah.respondError(c, err)
		return
	}
	resp := gin.H{
		"success":        true,
		"userId":         result.UserID,
		"email":          result.Email,
		"sessionExpires": result.SessionExpires,
	}
	if result.Credential.UseMagicLink() {
		resp["token"] = result.Credential.LinkToken
		resp["type"] = result.Credential.LinkType
		resp["useMagicLink"] = true
	} else {
		resp["accessToken"] = result.Credential.Tokens.AccessToken
		resp["refreshToken"] = result.Credential.Tokens.RefreshToken
	}
	c.JSON(http.StatusOK, resp)
}

func (ah *AuthHandler) CheckSession(c *gin.Context) {
	var req struct {
		DeviceID string `json:"deviceId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "valid": false})
		return
	}
	tokenString := bearerToken(c)
	status, err := ah.sessionService.Validate(c.Request.Context(), tokenString, req.DeviceID)
	if err != nil {
		ah.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":          true,
		"userId":         status.UserID,
		"sessionExpires": status.SessionExpires,
	})
}

func (ah *AuthHandler) RedeemLoginLink(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing login token"})
		return
	}
	tokens, user, err := ah.identityService.RedeemLoginLink(c.Request.Context(), req.Token)
	if err != nil {
		ah.log.Warn("Login link redemption failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "login token is invalid or expired"})
		return
	}
	expiresIn := int(ah.identityService.GetAccessTTL().Seconds())
	c.JSON(http.StatusOK, gin.H{
		"userId":       user.ID,
		"email":        user.Email,
		"accessToken":  tokens.AccessToken,
		"refreshToken": tokens.RefreshToken,
		"expiresIn":    expiresIn,
	})
}

func (ah *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	tokens, err := ah.identityService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		ah.log.Warn("Refresh failed", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token is invalid or expired"})
		return
	}
	expiresIn := int(ah.identityService.GetAccessTTL().Seconds())
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  tokens.AccessToken,
		"refreshToken": tokens.RefreshToken,
		"expiresIn":    expiresIn,
	})
}

func (ah *AuthHandler) Logout(c *gin.Context) {
	if err := ah.identityService.Logout(c.Request.Context()); err != nil {
		ah.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// respondError maps a classified error onto its HTTP shape. Anything
// unclassified is logged server-side and surfaced as a generic 500.
func (ah *AuthHandler) respondError(c *gin.Context, err error) {
	ed, ok := errordata.AsError(err)
	if !ok {
		ah.log.Error("Unclassified error reached the handler boundary", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if ed.Kind == errordata.KindUpstream {
		ah.log.Error("Upstream failure", "error", err)
	}
	body := gin.H{"error": ed.Message}
	if ed.RetryAfter > 0 {
		body["retryAfter"] = ed.RetryAfter
	}
	if ed.RequireOtp {
		body["requireOtp"] = true
		body["valid"] = false
	}
	c.JSON(ed.HTTPStatus(), body)
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
