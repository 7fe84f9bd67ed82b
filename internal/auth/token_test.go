package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filebox/internal/models"
)

var testSecret = []byte(strings.Repeat("s", MinSecretLength))

func TestTokenIssueVerify(t *testing.T) {
	tm, err := NewTokenManager(testSecret, time.Hour)
	require.NoError(t, err)

	now := time.Now()
	token, expiresAt, err := tm.Issue("us-alice", now)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(time.Hour), expiresAt, time.Second)

	identity, err := tm.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, models.Identity("us-alice"), identity)
}

func TestTokenVerifyRejects(t *testing.T) {
	tm, err := NewTokenManager(testSecret, time.Hour)
	require.NoError(t, err)

	expired, _, err := tm.Issue("us-alice", time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	other, err := NewTokenManager([]byte(strings.Repeat("o", MinSecretLength)), time.Hour)
	require.NoError(t, err)
	foreign, _, err := other.Issue("us-alice", time.Now())
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "us-alice",
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: "us-alice",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "us-alice",
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(testSecret)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "us-alice", Issuer: tokenIssuer},
	}).SignedString(testSecret)
	require.NoError(t, err)

	mismatched, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "us-alice",
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: "us-bob",
	}).SignedString(testSecret)
	require.NoError(t, err)

	cases := map[string]string{
		"expired":      expired,
		"foreign key":  foreign,
		"none alg":     noneAlg,
		"wrong issuer": wrongIssuer,
		"no expiry":    noExpiry,
		"mismatched":   mismatched,
		"garbage":      "not.a.token",
		"truncated":    expired[:len(expired)/2],
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tm.Verify(token)
			assert.ErrorIs(t, err, models.ErrInvalidCredential)
		})
	}
}

func TestTokenSubjectOnlyAccepted(t *testing.T) {
	tm, err := NewTokenManager(testSecret, time.Hour)
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "us-carol",
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(testSecret)
	require.NoError(t, err)

	identity, err := tm.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, models.Identity("us-carol"), identity)
}

func TestNewTokenManagerValidation(t *testing.T) {
	_, err := NewTokenManager(nil, time.Hour)
	assert.Error(t, err)

	tm, err := NewTokenManager(testSecret, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenTTL, tm.TTL())

	_, _, err = tm.Issue(" ", time.Now())
	assert.Error(t, err)
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)
	assert.Len(t, a, MinSecretLength)
	assert.NotEqual(t, a, b)
}
