package services

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/elite-zone/elitezone-backend/internal/logger"
	"github.com/elite-zone/elitezone-backend/internal/repos"
	"github.com/elite-zone/elitezone-backend/internal/requestdata"
	"github.com/elite-zone/elitezone-backend/internal/types"
	"github.com/elite-zone/elitezone-backend/internal/utils"
)

const loginTokenTTL = 10 * time.Minute

type JWTClaims struct {
	jwt.RegisteredClaims
}

// TokenPair is the direct sign-in result: a short-lived JWT plus a
// refresh token bounded by the refresh TTL.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Credential is the tagged outcome of credential issuance. Exactly one
// of the two arms is populated: Tokens for a direct sign-in, or
// LinkToken/LinkType for the single-use fallback the caller must redeem
// separately.
type Credential struct {
	Tokens    *TokenPair
	LinkToken string
	LinkType  string
}

func (c *Credential) UseMagicLink() bool {
	return c != nil && c.Tokens == nil
}

// IdentityService owns accounts and bearer credentials: it is the only
// place users are created, tokens minted, refreshed, redeemed or
// revoked. Everything above it consumes it as a capability.
type IdentityService interface {
	CreateUser(ctx context.Context, tx *gorm.DB, email string) (*types.User, error)
	SignIn(ctx context.Context, tx *gorm.DB, user *types.User) (*TokenPair, error)
	IssueCredential(ctx context.Context, user *types.User) (*Credential, error)
	RedeemLoginLink(ctx context.Context, token string) (*TokenPair, *types.User, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context) error

	SubjectFromToken(tokenString string) (uuid.UUID, error)
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)

	GetAccessTTL() time.Duration
}

type identityService struct {
	db             *gorm.DB
	log            *logger.Logger
	userRepo       repos.UserRepo
	userTokenRepo  repos.UserTokenRepo
	loginTokenRepo repos.LoginTokenRepo
	jwtSecretKey   string
	accessTTL      time.Duration
	refreshTTL     time.Duration
}

func NewIdentityService(
	db *gorm.DB,
	log *logger.Logger,
	userRepo repos.UserRepo,
	userTokenRepo repos.UserTokenRepo,
	loginTokenRepo repos.LoginTokenRepo,
	jwtSecretKey string,
	accessTTL time.Duration,
	refreshTTL time.Duration,
) IdentityService {
	serviceLog := log.With("service", "IdentityService")
	return &identityService{
		db:             db,
		log:            serviceLog,
		userRepo:       userRepo,
		userTokenRepo:  userTokenRepo,
		loginTokenRepo: loginTokenRepo,
		jwtSecretKey:   jwtSecretKey,
		accessTTL:      accessTTL,
		refreshTTL:     refreshTTL,
	}
}

//----------------------------------------------------------------------------------------------------------------------
// CreateUser
//----------------------------------------------------------------------------------------------------------------------

// CreateUser provisions a pre-confirmed account backed by a random
// internal secret. No password challenge is ever shown to the user.
func (is *identityService) CreateUser(ctx context.Context, tx *gorm.DB, email string) (*types.User, error) {
	is.log.Info("Starting CreateUser now...", "email", email)

	secret, err := utils.RandomInternalSecret()
	if err != nil {
		is.log.Warn("Failed to draw internal secret, Cannot proceed. Returning error.", "error", err)
		return nil, fmt.Errorf("Failed to draw internal secret: %w", err)
	}
	hashed, err := utils.HashSecret(is.log, secret)
	if err != nil {
		return nil, err
	}
	user := &types.User{
		ID:             uuid.New(),
		Email:          email,
		Secret:         hashed,
		EmailConfirmed: true,
	}
	created, cErr := is.userRepo.Create(ctx, tx, []*types.User{user})
	if cErr != nil {
		is.log.Warn("Failed to create user, Cannot proceed. Returning error.", "error", cErr)
		return nil, fmt.Errorf("Failed to create user: %w", cErr)
	}
	if len(created) == 0 {
		is.log.Warn("User creation returned no rows, Cannot proceed.")
		return nil, fmt.Errorf("Failed to create user in DB")
	}
	return created[0], nil
}

//----------------------------------------------------------------------------------------------------------------------
// SignIn, IssueCredential, RedeemLoginLink
//----------------------------------------------------------------------------------------------------------------------

// SignIn mints a fresh bearer pair for the user, replacing any prior
// token row so one pair is live per account at a time.
func (is *identityService) SignIn(ctx context.Context, tx *gorm.DB, user *types.User) (*TokenPair, error) {
	is.log.Info("Starting SignIn now...", "userID", user.ID)

	run := func(tx *gorm.DB) (*TokenPair, error) {
		if dErr := is.userTokenRepo.FullDeleteByUserIDs(ctx, tx, []uuid.UUID{user.ID}); dErr != nil {
			is.log.Warn("Failed to clear prior user tokens, Cannot proceed. Returning error.", "error", dErr)
			return nil, fmt.Errorf("Failed to clear prior user tokens: %w", dErr)
		}
		accessToken, genErr := is.generateAccessToken(user)
		if genErr != nil {
			is.log.Warn("Generate Access Token Error, Cannot proceed. Returning error.", "error", genErr)
			return nil, fmt.Errorf("Generate Access Token Error: %w", genErr)
		}
		refreshToken := uuid.New().String()
		userToken := types.UserToken{
			ID:           uuid.New(),
			UserID:       user.ID,
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresAt:    time.Now().Add(is.refreshTTL),
		}
		if _, cErr := is.userTokenRepo.Create(ctx, tx, []*types.UserToken{&userToken}); cErr != nil {
			is.log.Warn("Create User Token Error, Cannot proceed. Returning error.", "error", cErr)
			return nil, fmt.Errorf("Create User Token Error: %w", cErr)
		}
		return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
	}

	if tx != nil {
		return run(tx)
	}
	var pair *TokenPair
	err := is.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, rErr := run(tx)
		if rErr != nil {
			return rErr
		}
		pair = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// IssueCredential tries the direct sign-in path first and falls back to
// a single-use login-link token when it fails. Callers must branch on
// which arm came back.
func (is *identityService) IssueCredential(ctx context.Context, user *types.User) (*Credential, error) {
	pair, sErr := is.SignIn(ctx, nil, user)
	if sErr == nil {
		return &Credential{Tokens: pair}, nil
	}
	is.log.Warn("Direct sign-in failed, falling back to login link", "error", sErr)

	token, tErr := utils.GenerateOpaqueToken()
	if tErr != nil {
		is.log.Warn("Failed to draw login link token, Cannot proceed. Returning error.", "error", tErr)
		return nil, fmt.Errorf("Failed to draw login link token: %w", tErr)
	}
	loginToken := &types.LoginToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     token,
		TokenType: types.LoginTokenTypeMagicLink,
		ExpiresAt: time.Now().Add(loginTokenTTL),
	}
	if _, cErr := is.loginTokenRepo.Create(ctx, nil, []*types.LoginToken{loginToken}); cErr != nil {
		is.log.Warn("Failed to create login link token, Cannot proceed. Returning error.", "error", cErr)
		return nil, fmt.Errorf("Failed to create login link token: %w", cErr)
	}
	return &Credential{LinkToken: token, LinkType: types.LoginTokenTypeMagicLink}, nil
}

// RedeemLoginLink exchanges a live, unused login token for the bearer
// pair a direct sign-in would have produced. Single-use: the conditional
// mark-used transition decides the winner under races.
func (is *identityService) RedeemLoginLink(ctx context.Context, token string) (*TokenPair, *types.User, error) {
	var pair *TokenPair
	var user *types.User
	err := is.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, fErr := is.loginTokenRepo.GetActiveByToken(ctx, tx, token, time.Now())
		if fErr != nil {
			is.log.Warn("Failed to fetch login token, Cannot proceed. Returning error.", "error", fErr)
			return fmt.Errorf("Failed to fetch login token: %w", fErr)
		}
		if record == nil {
			is.log.Warn("Login token missing, used or expired, Cannot proceed.")
			return fmt.Errorf("login token is invalid or expired")
		}
		won, mErr := is.loginTokenRepo.MarkUsed(ctx, tx, record.ID)
		if mErr != nil {
			return fmt.Errorf("Failed to mark login token used: %w", mErr)
		}
		if !won {
			is.log.Warn("Login token already redeemed, Cannot proceed.")
			return fmt.Errorf("login token is invalid or expired")
		}
		users, uErr := is.userRepo.GetByIDs(ctx, tx, []uuid.UUID{record.UserID})
		if uErr != nil {
			return fmt.Errorf("Failed to load user for login token: %w", uErr)
		}
		if len(users) == 0 {
			is.log.Warn("No user found for login token, Cannot proceed.")
			return fmt.Errorf("no user found for login token")
		}
		user = users[0]
		p, sErr := is.SignIn(ctx, tx, user)
		if sErr != nil {
			return sErr
		}
		pair = p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

//----------------------------------------------------------------------------------------------------------------------
// Refresh, Logout
//----------------------------------------------------------------------------------------------------------------------

func (is *identityService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		is.log.Warn("Refresh token is an empty string, Cannot proceed.")
		return nil, fmt.Errorf("refresh token is an empty string")
	}

	existing, fErr := is.userTokenRepo.GetByRefreshToken(ctx, nil, refreshToken)
	if fErr != nil {
		is.log.Warn("Error fetching refresh token, Cannot proceed. Returning error.", "error", fErr)
		return nil, fmt.Errorf("Error fetching refresh token: %w", fErr)
	}
	if existing == nil {
		is.log.Warn("No user token found for refresh token, Cannot proceed.")
		return nil, fmt.Errorf("refresh token not recognized")
	}
	if existing.ExpiresAt.Before(time.Now()) {
		// The cleanup happens outside the rotation transaction so the
		// rejection below cannot roll it back.
		if dErr := is.userTokenRepo.FullDeleteByTokens(ctx, nil, []*types.UserToken{existing}); dErr != nil {
			is.log.Warn("Refresh token expired, error deleting expired token, Cannot proceed. Returning error.", "error", dErr)
			return nil, fmt.Errorf("Refresh token expired, error deleting: %w", dErr)
		}
		is.log.Warn("Refresh Token Expired, Cannot proceed.")
		return nil, fmt.Errorf("refresh token expired")
	}

	var pair *TokenPair
	err := is.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users, uErr := is.userRepo.GetByIDs(ctx, tx, []uuid.UUID{existing.UserID})
		if uErr != nil {
			is.log.Warn("Failed to load user for refresh, Cannot proceed. Returning error.", "error", uErr)
			return fmt.Errorf("Failed to load user for refresh: %w", uErr)
		}
		if len(users) == 0 {
			is.log.Warn("No user found for the given refresh token, Cannot proceed.")
			return fmt.Errorf("no user found for the given refresh token")
		}
		p, sErr := is.SignIn(ctx, tx, users[0])
		if sErr != nil {
			return sErr
		}
		pair = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (is *identityService) Logout(ctx context.Context) error {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil {
		is.log.Warn("No Request Data found in context, Cannot proceed.")
		return fmt.Errorf("No Request Data found in context.")
	}
	if rd.TokenString == "" {
		is.log.Warn("TokenString in Request Data is an empty string, Cannot proceed.")
		return fmt.Errorf("TokenString in RequestData is an empty string.")
	}
	return is.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		token, fErr := is.userTokenRepo.GetByAccessToken(ctx, tx, rd.TokenString)
		if fErr != nil {
			is.log.Warn("Error finding user token from token string, Cannot proceed. Returning error.", "error", fErr)
			return fmt.Errorf("Error finding user token from token string: %w", fErr)
		}
		if token == nil {
			is.log.Debug("No user token for token string, nothing to delete")
			return nil
		}
		if dErr := is.userTokenRepo.FullDeleteByTokens(ctx, tx, []*types.UserToken{token}); dErr != nil {
			is.log.Warn("Error deleting user token, Cannot proceed. Returning error.", "error", dErr)
			return fmt.Errorf("Error deleting user token: %w", dErr)
		}
		return nil
	})
}

//----------------------------------------------------------------------------------------------------------------------
// Token parsing
//----------------------------------------------------------------------------------------------------------------------

func (is *identityService) generateAccessToken(user *types.User) (string, error) {
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			// The jti keeps tokens minted within the same second distinct,
			// so rotation always revokes the predecessor.
			ID:        uuid.NewString(),
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(is.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(is.jwtSecretKey))
}

// SubjectFromToken resolves the account id from a bearer token. An
// unparsable or expired token is an error; the caller maps it to the
// unauthorized class.
func (is *identityService) SubjectFromToken(tokenString string) (uuid.UUID, error) {
	if tokenString == "" {
		return uuid.Nil, fmt.Errorf("empty token string")
	}
	parsedToken, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(is.jwtSecretKey), nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse token: %w", err)
	}
	claims, ok := parsedToken.Claims.(*JWTClaims)
	if !ok || !parsedToken.Valid {
		return uuid.Nil, fmt.Errorf("invalid or expired JWT token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user ID in token: %w", err)
	}
	return userID, nil
}

func (is *identityService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	userID, err := is.SubjectFromToken(tokenString)
	if err != nil {
		return ctx, err
	}
	var refreshTokenStr string
	token, fErr := is.userTokenRepo.GetByAccessToken(ctx, nil, tokenString)
	if fErr != nil {
		is.log.Warn("Error fetching user token by access token, Cannot proceed. Returning error.", "error", fErr)
		return ctx, fmt.Errorf("Failed to fetch user token by access token: %w", fErr)
	}
	if token == nil {
		is.log.Warn("Access token not found in user token table, treating as revoked")
		return ctx, fmt.Errorf("access token has been revoked")
	}
	refreshTokenStr = token.RefreshToken
	rd := &requestdata.RequestData{
		TokenString:  tokenString,
		RefreshToken: refreshTokenStr,
		UserID:       userID,
	}
	return requestdata.WithRequestData(ctx, rd), nil
}

func (is *identityService) GetAccessTTL() time.Duration {
	return is.accessTTL
}
