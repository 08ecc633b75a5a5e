package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/elite-zone/elitezone-backend/internal/errordata"
	"github.com/elite-zone/elitezone-backend/internal/logger"
	"github.com/elite-zone/elitezone-backend/internal/normalization"
	"github.com/elite-zone/elitezone-backend/internal/repos"
	"github.com/elite-zone/elitezone-backend/internal/types"
)

// SessionStatus reports a valid device-bound session.
type SessionStatus struct {
	UserID         uuid.UUID
	SessionExpires time.Time
}

// SessionService is the pure read path behind every protected page
// load. It resolves the bearer subject, checks the admin role and the
// device session, and never mutates anything.
type SessionService interface {
	Validate(ctx context.Context, tokenString, deviceID string) (*SessionStatus, error)
}

type sessionService struct {
	db              *gorm.DB
	log             *logger.Logger
	userRoleRepo    repos.UserRoleRepo
	sessionRepo     repos.AdminSessionRepo
	identityService IdentityService
}

func NewSessionService(
	db *gorm.DB,
	log *logger.Logger,
	userRoleRepo repos.UserRoleRepo,
	sessionRepo repos.AdminSessionRepo,
	identityService IdentityService,
) SessionService {
	serviceLog := log.With("service", "SessionService")
	return &sessionService{
		db:              db,
		log:             serviceLog,
		userRoleRepo:    userRoleRepo,
		sessionRepo:     sessionRepo,
		identityService: identityService,
	}
}

func (ss *sessionService) Validate(ctx context.Context, tokenString, rawDeviceID string) (*SessionStatus, error) {
	ss.log.Info("Starting Validate session now...")

	//1) Resolve the subject from the bearer credential
	userID, tErr := ss.identityService.SubjectFromToken(tokenString)
	if tErr != nil {
		ss.log.Warn("Bearer token invalid or expired", "error", tErr)
		return nil, errordata.Unauthorizedf("invalid session")
	}

	deviceID := normalization.TrimInputString(rawDeviceID)
	if deviceID == "" {
		ss.log.Warn("Missing device identifier, Cannot proceed.")
		return nil, errordata.Validationf("invalid device identifier")
	}

	//2) The account must still hold the admin role
	role, rErr := ss.userRoleRepo.GetByUserAndRole(ctx, nil, userID, types.RoleAdmin)
	if rErr != nil {
		ss.log.Warn("Failed to load role record, Cannot proceed. Returning error.", "error", rErr)
		return nil, errordata.Upstream("failed to validate role", rErr)
	}
	if role == nil {
		ss.log.Warn("Account lacks admin role", "userID", userID)
		return nil, errordata.Forbiddenf("admin role required")
	}

	//3) A live device session must exist. Its absence means a fresh OTP
	//   round is the remedy, not a token refresh.
	session, sErr := ss.sessionRepo.GetActive(ctx, nil, userID, deviceID, time.Now())
	if sErr != nil {
		ss.log.Warn("Failed to load admin session, Cannot proceed. Returning error.", "error", sErr)
		return nil, errordata.Upstream("failed to validate session", sErr)
	}
	if session == nil {
		ss.log.Warn("No live device session", "userID", userID, "deviceID", deviceID)
		return nil, errordata.Reauth("session expired, verification required")
	}

	ss.log.Info("Session validated", "userID", userID, "deviceID", deviceID)
	return &SessionStatus{UserID: userID, SessionExpires: session.ExpiresAt}, nil
}
