package auth

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"filebox/internal/models"
)

const (
	tokenIssuer = "filebox"

	// DefaultTokenTTL is the credential validity window when none is configured.
	DefaultTokenTTL = 7 * 24 * time.Hour

	// MinSecretLength is the shortest signing secret accepted in production.
	MinSecretLength = 32
)

// Claims is the JWT payload carried by issued credentials.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
}

// TokenManager issues and verifies HS256 credentials.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager builds a manager from a signing secret.
func NewTokenManager(secret []byte, ttl time.Duration) (*TokenManager, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("token secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// TTL returns the configured validity window.
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

// Issue signs a credential for identity valid from now for the configured TTL.
func (tm *TokenManager) Issue(identity models.Identity, now time.Time) (string, time.Time, error) {
	if strings.TrimSpace(identity.String()) == "" {
		return "", time.Time{}, fmt.Errorf("identity is required")
	}
	now = now.UTC()
	expiresAt := now.Add(tm.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.String(),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: identity.String(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, algorithm, issuer and expiry. Every failure is
// reported as models.ErrInvalidCredential.
func (tm *TokenManager) Verify(token string) (models.Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrInvalidCredential, err)
	}
	if !parsed.Valid {
		return "", models.ErrInvalidCredential
	}

	userID := strings.TrimSpace(claims.UserID)
	subject := strings.TrimSpace(claims.Subject)
	switch {
	case userID == "" && subject == "":
		return "", fmt.Errorf("%w: token carries no identity", models.ErrInvalidCredential)
	case userID != "" && subject != "" && userID != subject:
		return "", fmt.Errorf("%w: subject and userId disagree", models.ErrInvalidCredential)
	case userID != "":
		return models.Identity(userID), nil
	default:
		return models.Identity(subject), nil
	}
}

// GenerateSecret returns a random signing secret of MinSecretLength bytes.
func GenerateSecret() ([]byte, error) {
	secret := make([]byte, MinSecretLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return secret, nil
}
