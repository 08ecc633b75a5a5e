package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/elite-zone/elitezone-backend/internal/errordata"
	"github.com/elite-zone/elitezone-backend/internal/logger"
	"github.com/elite-zone/elitezone-backend/internal/normalization"
	"github.com/elite-zone/elitezone-backend/internal/repos"
	"github.com/elite-zone/elitezone-backend/internal/templates"
	"github.com/elite-zone/elitezone-backend/internal/types"
	"github.com/elite-zone/elitezone-backend/internal/utils"
)

const (
	otpTTL          = 10 * time.Minute
	otpRateWindow   = 15 * time.Minute
	otpMaxRequests  = 3
	otpMaxAttempts  = 5
	adminSessionTTL = 30 * 24 * time.Hour
)

// VerifyResult is what a successful verification hands back: the
// resolved account, the device session window and the issued credential
// (direct tokens or a redeemable link).
type VerifyResult struct {
	UserID         uuid.UUID
	Email          string
	SessionExpires time.Time
	Credential     *Credential
}

type OtpService interface {
	IssueCode(ctx context.Context, email string) error
	VerifyCode(ctx context.Context, email, code, deviceID string) (*VerifyResult, error)
}

type otpService struct {
	db              *gorm.DB
	log             *logger.Logger
	otpCodeRepo     repos.AdminOtpCodeRepo
	userRepo        repos.UserRepo
	userRoleRepo    repos.UserRoleRepo
	sessionRepo     repos.AdminSessionRepo
	identityService IdentityService
	emailService    EmailService
}

func NewOtpService(
	db *gorm.DB,
	log *logger.Logger,
	otpCodeRepo repos.AdminOtpCodeRepo,
	userRepo repos.UserRepo,
	userRoleRepo repos.UserRoleRepo,
	sessionRepo repos.AdminSessionRepo,
	identityService IdentityService,
	emailService EmailService,
) OtpService {
	serviceLog := log.With("service", "OtpService")
	return &otpService{
		db:              db,
		log:             serviceLog,
		otpCodeRepo:     otpCodeRepo,
		userRepo:        userRepo,
		userRoleRepo:    userRoleRepo,
		sessionRepo:     sessionRepo,
		identityService: identityService,
		emailService:    emailService,
	}
}

//----------------------------------------------------------------------------------------------------------------------
// IssueCode
//----------------------------------------------------------------------------------------------------------------------

func (ots *otpService) IssueCode(ctx context.Context, rawEmail string) error {
	ots.log.Info("Starting IssueCode now...")

	//1) Validate email shape
	email := normalization.ParseInputString(rawEmail)
	if !utils.ValidEmail(email) {
		ots.log.Warn("Invalid email shape, Cannot proceed.", "email", email)
		return errordata.Validationf("invalid email address")
	}

	//2) Authorization: existing accounts must hold the admin role, a
	//   brand-new email is only allowed while no admin exists anywhere.
	if aErr := ots.authorizeEmail(ctx, email); aErr != nil {
		return aErr
	}

	//3) Rate limit on the trailing window
	since := time.Now().Add(-otpRateWindow)
	count, cErr := ots.otpCodeRepo.CountByEmailSince(ctx, nil, email, since)
	if cErr != nil {
		ots.log.Warn("Failed to count recent otp codes, Cannot proceed. Returning error.", "error", cErr)
		return errordata.Upstream("failed to check request rate", cErr)
	}
	if count >= otpMaxRequests {
		waitSeconds := int(otpRateWindow.Seconds())
		ots.log.Warn("Too many otp requests for email", "email", email, "count", count)
		return errordata.RateLimited(
			fmt.Sprintf("too many requests, try again in %d minutes", int(otpRateWindow.Minutes())),
			waitSeconds,
		)
	}

	//4) Generate code and expiry
	code, gErr := utils.GenerateOtpCode()
	if gErr != nil {
		ots.log.Warn("Failed to generate otp code, Cannot proceed. Returning error.", "error", gErr)
		return errordata.Upstream("failed to generate verification code", gErr)
	}
	record := &types.AdminOtpCode{
		ID:        uuid.New(),
		Email:     email,
		Code:      code,
		ExpiresAt: time.Now().Add(otpTTL),
	}

	//5) Purge spent codes, then persist the new one
	if err := ots.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if dErr := ots.otpCodeRepo.FullDeleteUsedByEmail(ctx, tx, email); dErr != nil {
			ots.log.Warn("Failed to purge used otp codes, Cannot proceed. Returning error.", "error", dErr)
			return fmt.Errorf("Failed to purge used otp codes: %w", dErr)
		}
		if _, cErr := ots.otpCodeRepo.Create(ctx, tx, []*types.AdminOtpCode{record}); cErr != nil {
			ots.log.Warn("Failed to persist otp code, Cannot proceed. Returning error.", "error", cErr)
			return fmt.Errorf("Failed to persist otp code: %w", cErr)
		}
		return nil
	}); err != nil {
		return errordata.Upstream("failed to create verification code", err)
	}

	//6) Deliver. The code stays persisted even when delivery fails; the
	//   caller re-drives the whole operation.
	html, hErr := templates.RenderOtpHTML(templates.OtpEmailData{
		Code:           code,
		ExpiresMinutes: int(otpTTL.Minutes()),
	})
	if hErr != nil {
		ots.log.Warn("Failed to render otp email, Cannot proceed. Returning error.", "error", hErr)
		return errordata.Upstream("failed to render verification email", hErr)
	}
	plain := fmt.Sprintf("Your Élite Zone admin verification code is %s. It is valid for %d minutes.", code, int(otpTTL.Minutes()))
	if sErr := ots.emailService.SendEmail(ctx, email, "Verification Code - Élite Zone Admin", plain, html); sErr != nil {
		ots.log.Warn("Failed to send otp email, Cannot proceed. Returning error.", "error", sErr)
		return errordata.Upstream("failed to send verification email", sErr)
	}

	ots.log.Info("Otp code issued and delivered", "email", email)
	return nil
}

// authorizeEmail applies the bootstrap rule on the issuance path. The
// refusal message is identical for "account without role" and "unknown
// email after bootstrap" so neither case can be told apart.
func (ots *otpService) authorizeEmail(ctx context.Context, email string) error {
	user, uErr := ots.userRepo.GetByEmail(ctx, nil, email)
	if uErr != nil {
		ots.log.Warn("Failed to look up account for email, Cannot proceed. Returning error.", "error", uErr)
		return errordata.Upstream("failed to look up account", uErr)
	}
	if user != nil {
		role, rErr := ots.userRoleRepo.GetByUserAndRole(ctx, nil, user.ID, types.RoleAdmin)
		if rErr != nil {
			ots.log.Warn("Failed to look up role for account, Cannot proceed. Returning error.", "error", rErr)
			return errordata.Upstream("failed to look up role", rErr)
		}
		if role == nil {
			ots.log.Warn("Account exists without admin role, refusing issuance", "email", email)
			return errordata.Forbiddenf("not permitted for this email")
		}
		return nil
	}
	adminCount, cErr := ots.userRoleRepo.CountByRole(ctx, nil, types.RoleAdmin)
	if cErr != nil {
		ots.log.Warn("Failed to count admin roles, Cannot proceed. Returning error.", "error", cErr)
		return errordata.Upstream("failed to check bootstrap state", cErr)
	}
	if adminCount > 0 {
		ots.log.Warn("Unknown email after bootstrap, refusing issuance", "email", email)
		return errordata.Forbiddenf("not permitted for this email")
	}
	return nil
}

//----------------------------------------------------------------------------------------------------------------------
// VerifyCode
//----------------------------------------------------------------------------------------------------------------------

func (ots *otpService) VerifyCode(ctx context.Context, rawEmail, rawCode, rawDeviceID string) (*VerifyResult, error) {
	ots.log.Info("Starting VerifyCode now...")

	//1) Structural validation, no state changes on failure
	email := normalization.ParseInputString(rawEmail)
	code := normalization.TrimInputString(rawCode)
	deviceID := normalization.TrimInputString(rawDeviceID)
	if email == "" || code == "" || deviceID == "" {
		ots.log.Warn("Incomplete verification input, Cannot proceed.")
		return nil, errordata.Validationf("incomplete input")
	}
	if !utils.ValidEmail(email) {
		ots.log.Warn("Invalid email shape, Cannot proceed.", "email", email)
		return nil, errordata.Validationf("invalid email address")
	}
	if !utils.ValidOtpCodeFormat(code) {
		ots.log.Warn("Invalid otp code format, Cannot proceed.")
		return nil, errordata.Validationf("invalid verification code")
	}

	now := time.Now()

	//2) Attempt ceiling on the current candidate, checked before any
	//   match so a dead code stays dead even for the right guess.
	candidate, lErr := ots.otpCodeRepo.GetLatestActiveByEmail(ctx, nil, email, now)
	if lErr != nil {
		ots.log.Warn("Failed to load latest otp code, Cannot proceed. Returning error.", "error", lErr)
		return nil, errordata.Upstream("failed to load verification code", lErr)
	}
	if candidate != nil && candidate.Attempts >= otpMaxAttempts {
		ots.log.Warn("Too many attempts on otp code, refusing", "email", email, "attempts", candidate.Attempts)
		return nil, errordata.RateLimited("too many attempts, please request a new code", 0)
	}

	//3) Compare against the newest active code only. Older unexpired
	//   rows never match; a miss increments the candidate's counter and
	//   returns the one uniform failure message.
	if candidate == nil || candidate.Code != code {
		if candidate != nil {
			if iErr := ots.otpCodeRepo.IncrementAttempts(ctx, nil, candidate.ID); iErr != nil {
				ots.log.Warn("Failed to increment otp attempts", "error", iErr)
			}
		}
		ots.log.Warn("Otp code mismatch or expired", "email", email)
		return nil, errordata.Expiredf("verification code is invalid or expired")
	}

	//4) One-way used transition. A racing verifier that loses the
	//   update sees the code as spent and fails cleanly.
	won, uErr := ots.otpCodeRepo.MarkUsed(ctx, nil, candidate.ID)
	if uErr != nil {
		ots.log.Warn("Failed to mark otp code used, Cannot proceed. Returning error.", "error", uErr)
		return nil, errordata.Upstream("failed to consume verification code", uErr)
	}
	if !won {
		ots.log.Warn("Otp code consumed by a concurrent verification", "email", email)
		return nil, errordata.Expiredf("verification code is invalid or expired")
	}

	//5-7) Resolve or create the account, enforce the role invariant and
	//     upsert the device session, all in one transaction.
	var user *types.User
	sessionExpires := now.Add(adminSessionTTL)
	if err := ots.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resolved, rErr := ots.resolveAccount(ctx, tx, email)
		if rErr != nil {
			return rErr
		}
		user = resolved

		role, roleErr := ots.userRoleRepo.GetByUserAndRole(ctx, tx, user.ID, types.RoleAdmin)
		if roleErr != nil {
			ots.log.Warn("Failed to re-validate admin role, Cannot proceed. Returning error.", "error", roleErr)
			return errordata.Upstream("failed to validate role", roleErr)
		}
		if role == nil {
			ots.log.Warn("Resolved account lacks admin role, refusing", "userID", user.ID)
			return errordata.Forbiddenf("not permitted for this email")
		}

		session := &types.AdminSession{
			ID:        uuid.New(),
			UserID:    user.ID,
			DeviceID:  deviceID,
			ExpiresAt: sessionExpires,
		}
		if _, sErr := ots.sessionRepo.Upsert(ctx, tx, session); sErr != nil {
			ots.log.Warn("Failed to upsert admin session, Cannot proceed. Returning error.", "error", sErr)
			return errordata.Upstream("failed to create session", sErr)
		}
		return nil
	}); err != nil {
		if ed, ok := errordata.AsError(err); ok {
			return nil, ed
		}
		return nil, errordata.Upstream("failed to establish session", err)
	}

	//8) Issue the credential. A failure here is a hard error, but the
	//   used/role/session mutations above have already committed.
	credential, cErr := ots.identityService.IssueCredential(ctx, user)
	if cErr != nil {
		ots.log.Warn("Failed to issue credential after successful verification", "error", cErr)
		return nil, errordata.Upstream("failed to establish sign-in session", cErr)
	}

	ots.log.Info("Otp verification complete", "userID", user.ID, "deviceID", deviceID)
	return &VerifyResult{
		UserID:         user.ID,
		Email:          email,
		SessionExpires: sessionExpires,
		Credential:     credential,
	}, nil
}

// resolveAccount loads the account for the email or provisions it. The
// zero-admin existence check sits immediately before the only code path
// that ever inserts a UserRole record.
func (ots *otpService) resolveAccount(ctx context.Context, tx *gorm.DB, email string) (*types.User, error) {
	user, uErr := ots.userRepo.GetByEmail(ctx, tx, email)
	if uErr != nil {
		ots.log.Warn("Failed to look up account, Cannot proceed. Returning error.", "error", uErr)
		return nil, errordata.Upstream("failed to look up account", uErr)
	}
	if user != nil {
		return user, nil
	}

	adminCount, cErr := ots.userRoleRepo.CountByRole(ctx, tx, types.RoleAdmin)
	if cErr != nil {
		ots.log.Warn("Failed to count admin roles, Cannot proceed. Returning error.", "error", cErr)
		return nil, errordata.Upstream("failed to check bootstrap state", cErr)
	}
	if adminCount > 0 {
		ots.log.Warn("Refusing to provision a second bootstrap account", "email", email)
		return nil, errordata.Forbiddenf("not permitted for this email")
	}

	created, crErr := ots.identityService.CreateUser(ctx, tx, email)
	if crErr != nil {
		ots.log.Warn("Failed to create account, Cannot proceed. Returning error.", "error", crErr)
		return nil, errordata.Upstream("failed to create account", crErr)
	}
	role := &types.UserRole{
		ID:     uuid.New(),
		UserID: created.ID,
		Role:   types.RoleAdmin,
	}
	if _, rErr := ots.userRoleRepo.Create(ctx, tx, []*types.UserRole{role}); rErr != nil {
		ots.log.Warn("Failed to create admin role record, Cannot proceed. Returning error.", "error", rErr)
		return nil, errordata.Upstream("failed to grant role", rErr)
	}
	ots.log.Info("Bootstrap admin provisioned", "userID", created.ID, "email", email)
	return created, nil
}
