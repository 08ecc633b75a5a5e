package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"

	"golang.org/x/crypto/bcrypt"

	"github.com/elite-zone/elitezone-backend/internal/logger"
)

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	otpCodePattern = regexp.MustCompile(`^\d{6}$`)
)

func ValidEmail(email string) bool {
	return email != "" && emailPattern.MatchString(email)
}

func ValidOtpCodeFormat(code string) bool {
	return otpCodePattern.MatchString(code)
}

// GenerateOtpCode draws a uniformly random 6-digit code. Leading zeros
// are allowed, so the code is always rendered as exactly six characters.
func GenerateOtpCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to draw random otp code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// GenerateOpaqueToken returns a random hex token for magic-link style
// single-use credentials.
func GenerateOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to draw random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// RandomInternalSecret draws the throwaway secret that backs an account
// created by OTP verification. The user never sees or uses it.
func RandomInternalSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to draw internal secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func HashSecret(log *logger.Logger, secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		if log != nil {
			log.Warn("Failure to hash account secret. Returning error", "error", err)
		}
		return "", fmt.Errorf("Failed to hash account secret.")
	}
	return string(hashed), nil
}
