// Package client is the Go counterpart of the admin front end's auth
// layer: it keeps the device identifier and a cached session next to
// the process and talks to the admin OTP endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	otpCooldown        = 60 * time.Second
	checkValidInterval = 60 * time.Second
)

// ErrReauthRequired means the cached credentials cannot be repaired and
// the user must run a fresh OTP round.
var ErrReauthRequired = errors.New("verification required")

// CooldownError reports a locally throttled send request.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("please wait %d seconds before requesting another code", int(e.Remaining.Seconds()))
}

// Session is the locally cached login state.
type Session struct {
	UserID         string    `json:"userId"`
	Email          string    `json:"email"`
	AccessToken    string    `json:"accessToken"`
	RefreshToken   string    `json:"refreshToken"`
	SessionExpires time.Time `json:"expires"`
	DeviceID       string    `json:"deviceId"`
	CreatedAt      time.Time `json:"createdAt"`
	CheckedAt      time.Time `json:"checkedAt"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	store      Store
	now        func() time.Time
}

func New(baseURL string, store Store) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		store:      store,
		now:        time.Now,
	}
}

// DeviceID returns the stable device identifier, minting and persisting
// one on first use. It is never cleared, not even by SignOut.
func (c *Client) DeviceID() (string, error) {
	deviceID, ok, err := c.store.Get(keyDeviceID)
	if err != nil {
		return "", err
	}
	if ok && deviceID != "" {
		return deviceID, nil
	}
	deviceID = uuid.New().String()
	if err := c.store.Set(keyDeviceID, deviceID); err != nil {
		return "", err
	}
	return deviceID, nil
}

// SendOtp requests a passcode for the email. A local 60 second cooldown
// guards against double taps; the server keeps its own harder limit.
func (c *Client) SendOtp(ctx context.Context, email string) error {
	if raw, ok, _ := c.store.Get(keyOtpLastRequest); ok {
		if last, err := strconv.ParseInt(raw, 10, 64); err == nil {
			elapsed := c.now().Sub(time.Unix(last, 0))
			if elapsed < otpCooldown {
				return &CooldownError{Remaining: otpCooldown - elapsed}
			}
		}
	}

	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.post(ctx, "/api/admin/otp/send", map[string]any{"email": email}, "", &resp); err != nil {
		return err
	}
	return c.store.Set(keyOtpLastRequest, strconv.FormatInt(c.now().Unix(), 10))
}

// VerifyOtp exchanges the passcode for a session, following the login
// link fallback when the server flags one, and caches the result.
func (c *Client) VerifyOtp(ctx context.Context, email, code string) (*Session, error) {
	deviceID, err := c.DeviceID()
	if err != nil {
		return nil, err
	}

	var verifyResp struct {
		Success        bool      `json:"success"`
		UserID         string    `json:"userId"`
		Email          string    `json:"email"`
		SessionExpires time.Time `json:"sessionExpires"`
		AccessToken    string    `json:"accessToken"`
		RefreshToken   string    `json:"refreshToken"`
		Token          string    `json:"token"`
		UseMagicLink   bool      `json:"useMagicLink"`
	}
	payload := map[string]any{"email": email, "code": code, "deviceId": deviceID}
	if err := c.post(ctx, "/api/admin/otp/verify", payload, "", &verifyResp); err != nil {
		return nil, err
	}

	session := &Session{
		UserID:         verifyResp.UserID,
		Email:          verifyResp.Email,
		AccessToken:    verifyResp.AccessToken,
		RefreshToken:   verifyResp.RefreshToken,
		SessionExpires: verifyResp.SessionExpires,
		DeviceID:       deviceID,
		CreatedAt:      c.now(),
		CheckedAt:      c.now(),
	}
	if verifyResp.UseMagicLink {
		var redeemResp struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		}
		if err := c.post(ctx, "/api/admin/otp/redeem", map[string]any{"token": verifyResp.Token}, "", &redeemResp); err != nil {
			return nil, err
		}
		session.AccessToken = redeemResp.AccessToken
		session.RefreshToken = redeemResp.RefreshToken
	}

	if err := c.saveSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// CheckSession reports whether the cached login is still usable,
// repairing an expired bearer with one refresh round trip. The cached
// expiry is a hint only; a server check backs every positive answer
// after the fast path.
func (c *Client) CheckSession(ctx context.Context) (*Session, error) {
	session, err := c.loadSession()
	if err != nil {
		return nil, err
	}
	if session == nil || session.AccessToken == "" {
		return nil, ErrReauthRequired
	}
	if !session.SessionExpires.After(c.now()) {
		c.clearSession()
		return nil, ErrReauthRequired
	}

	// Fast path: within the confirmation window only the admin role is
	// re-checked; the heavier device session lookup is skipped. A
	// revoked role signs the client out immediately, anything else
	// falls through to the full check.
	if c.now().Sub(session.CheckedAt) < checkValidInterval {
		roleErr := c.confirmRole(ctx, session)
		if roleErr == nil {
			return session, nil
		}
		var roleReqErr *requestError
		if !errors.As(roleErr, &roleReqErr) {
			return nil, roleErr
		}
		if roleReqErr.StatusCode == http.StatusForbidden {
			c.clearSession()
			return nil, ErrReauthRequired
		}
	}

	status, checkErr := c.checkRemote(ctx, session)
	if checkErr == nil {
		return status, nil
	}
	var reqErr *requestError
	if !errors.As(checkErr, &reqErr) {
		return nil, checkErr
	}
	if reqErr.RequireOtp || reqErr.StatusCode == http.StatusForbidden {
		c.clearSession()
		return nil, ErrReauthRequired
	}
	if reqErr.StatusCode != http.StatusUnauthorized {
		return nil, checkErr
	}

	// The bearer is stale; one refresh attempt, then re-check.
	var refreshResp struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.post(ctx, "/api/admin/refresh", map[string]any{"refreshToken": session.RefreshToken}, "", &refreshResp); err != nil {
		c.clearSession()
		return nil, ErrReauthRequired
	}
	session.AccessToken = refreshResp.AccessToken
	session.RefreshToken = refreshResp.RefreshToken
	if err := c.saveSession(session); err != nil {
		return nil, err
	}

	status, checkErr = c.checkRemote(ctx, session)
	if checkErr != nil {
		c.clearSession()
		return nil, ErrReauthRequired
	}
	return status, nil
}

// SignOut revokes the bearer pair and drops the cached session. The
// device identifier stays so the server-side device session can be
// picked up again after the next OTP round.
func (c *Client) SignOut(ctx context.Context) error {
	session, err := c.loadSession()
	if err != nil {
		return err
	}
	if session != nil && session.AccessToken != "" {
		var resp struct {
			Success bool `json:"success"`
		}
		if err := c.post(ctx, "/api/admin/logout", map[string]any{}, session.AccessToken, &resp); err != nil {
			var reqErr *requestError
			if !errors.As(err, &reqErr) {
				return err
			}
		}
	}
	return c.clearSession()
}

// confirmRole asks the role gated profile endpoint whether the bearer
// still belongs to an admin.
func (c *Client) confirmRole(ctx context.Context, session *Session) error {
	var resp struct {
		UserID string `json:"userId"`
	}
	return c.get(ctx, "/api/admin/me", session.AccessToken, &resp)
}

func (c *Client) checkRemote(ctx context.Context, session *Session) (*Session, error) {
	var resp struct {
		Valid          bool      `json:"valid"`
		UserID         string    `json:"userId"`
		SessionExpires time.Time `json:"sessionExpires"`
	}
	payload := map[string]any{"deviceId": session.DeviceID}
	if err := c.post(ctx, "/api/admin/session/check", payload, session.AccessToken, &resp); err != nil {
		return nil, err
	}
	session.UserID = resp.UserID
	session.SessionExpires = resp.SessionExpires
	session.CheckedAt = c.now()
	if err := c.saveSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (c *Client) loadSession() (*Session, error) {
	raw, ok, err := c.store.Get(keySessionInfo)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		// A corrupt cache is treated as signed out.
		return nil, nil
	}
	return &session, nil
}

func (c *Client) saveSession(session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return c.store.Set(keySessionInfo, string(data))
}

func (c *Client) clearSession() error {
	return c.store.Delete(keySessionInfo)
}

// requestError is a non-2xx response with the fields the caller
// branches on.
type requestError struct {
	StatusCode int
	Message    string
	RequireOtp bool
	RetryAfter int
}

func (e *requestError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

func (c *Client) post(ctx context.Context, path string, payload any, bearer string, out any) error {
	return c.do(ctx, http.MethodPost, path, payload, bearer, out)
}

func (c *Client) get(ctx context.Context, path string, bearer string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, bearer, out)
}

func (c *Client) do(ctx context.Context, method, path string, payload any, bearer string, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reqErr := &requestError{StatusCode: resp.StatusCode}
		var errBody struct {
			Error      string `json:"error"`
			RequireOtp bool   `json:"requireOtp"`
			RetryAfter int    `json:"retryAfter"`
		}
		if json.Unmarshal(data, &errBody) == nil {
			reqErr.Message = errBody.Error
			reqErr.RequireOtp = errBody.RequireOtp
			reqErr.RetryAfter = errBody.RetryAfter
		}
		return reqErr
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}
