package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/elite-zone/elitezone-backend/internal/logger"
	"github.com/elite-zone/elitezone-backend/internal/repos"
	"github.com/elite-zone/elitezone-backend/internal/requestdata"
	"github.com/elite-zone/elitezone-backend/internal/services"
	"github.com/elite-zone/elitezone-backend/internal/types"
)

type AuthMiddleware struct {
	log             *logger.Logger
	identityService services.IdentityService
	userRoleRepo    repos.UserRoleRepo
}

func NewAuthMiddleware(log *logger.Logger, identityService services.IdentityService, userRoleRepo repos.UserRoleRepo) *AuthMiddleware {
	middlewareLogger := log.With("Middleware", "AuthMiddleware")
	return &AuthMiddleware{log: middlewareLogger, identityService: identityService, userRoleRepo: userRoleRepo}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !am.authenticate(c) {
			return
		}
		c.Next()
	}
}

// authenticate resolves the bearer credential into the request context.
// It aborts the request and reports false on failure. It never advances
// the handler chain, so callers can run further checks before c.Next().
func (am *AuthMiddleware) authenticate(c *gin.Context) bool {
	tokenString := extractBearerToken(c)
	if tokenString == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
		return false
	}
	ctx, err := am.identityService.SetContextFromToken(c.Request.Context(), tokenString)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return false
	}
	c.Request = c.Request.WithContext(ctx)
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return false
	}
	return true
}

func (am *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !am.authenticate(c) {
			return
		}
		ctx := c.Request.Context()
		rd := requestdata.GetRequestData(ctx)
		if rd == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "request data missing"})
			return
		}
		userRole, err := am.userRoleRepo.GetByUserAndRole(ctx, nil, rd.UserID, types.RoleAdmin)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load role"})
			return
		}
		if userRole == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
