// Package auth - jwt.go issues and verifies the HS256 bearer tokens used by
// both the staff console and the customer portal.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ActorKind distinguishes the two token audiences. Staff tokens carry role
// permissions; customer tokens only grant access to the customer's own data.
type ActorKind string

const (
	ActorStaff    ActorKind = "staff"
	ActorCustomer ActorKind = "customer"
)

const tokenIssuer = "tarim-backoffice"

var (
	jwtSecret     string
	jwtSecretOnce sync.Once
	jwtSecretErr  error
)

// Claims is the token payload for both actor kinds.
type Claims struct {
	UserID string    `json:"user_id"`
	Email  string    `json:"email"`
	Kind   ActorKind `json:"kind"`
	jwt.RegisteredClaims
}

func isDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	return devMode == "true" || devMode == "1" || os.Getenv("GIN_MODE") == "debug"
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// ValidateJWTSecret loads TTB_JWT_SECRET once. Production refuses to start
// without it; dev mode generates a throwaway secret and warns that sessions
// will not survive a restart. Call at startup.
func ValidateJWTSecret() error {
	jwtSecretOnce.Do(func() {
		secret := os.Getenv("TTB_JWT_SECRET")

		if secret == "" {
			if !isDevMode() {
				jwtSecretErr = errors.New("TTB_JWT_SECRET environment variable is required in production; " +
					"generate one with: openssl rand -hex 32")
				return
			}
			jwtSecret = randomSecret()
			slog.Warn("TTB_JWT_SECRET not set, using an auto-generated development secret; sessions will not persist across restarts")
			return
		}

		if len(secret) < 32 {
			slog.Warn("TTB_JWT_SECRET is shorter than the recommended 32 characters")
		}
		jwtSecret = secret
	})

	return jwtSecretErr
}

// GetJWTSecret returns the loaded secret, validating on first use. It panics
// when the secret is missing in production, which only happens if startup
// skipped ValidateJWTSecret.
func GetJWTSecret() string {
	if jwtSecret == "" {
		if err := ValidateJWTSecret(); err != nil {
			panic(err)
		}
	}
	return jwtSecret
}

// GenerateJWT signs a token for the given actor. A zero expiresIn falls back
// to one hour.
func GenerateJWT(userID, email string, kind ActorKind, expiresIn time.Duration) (string, error) {
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   userID,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(GetJWTSecret()))
}

// ValidateJWT parses tokenString and returns its claims if the signature and
// expiry check out.
func ValidateJWT(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(GetJWTSecret()), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	// Tokens minted before the kind claim existed are staff tokens.
	if claims.Kind == "" {
		claims.Kind = ActorStaff
	}

	return claims, nil
}
