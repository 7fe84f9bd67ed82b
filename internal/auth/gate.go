package auth

import (
	"bytes"
	"fmt"
	"strings"

	"filebox/internal/models"
)

// Verifier turns a credential into an identity.
type Verifier interface {
	Verify(token string) (models.Identity, error)
}

// Gate is the Identity Gate: it holds only the verifier fixed at startup.
type Gate struct {
	verifier Verifier
}

// NewGate returns a gate delegating to verifier.
func NewGate(verifier Verifier) *Gate {
	return &Gate{verifier: verifier}
}

// Authenticate returns models.ErrMissingCredential for an absent or blank
// credential and models.ErrInvalidCredential for anything the verifier rejects.
func (g *Gate) Authenticate(raw []byte) (models.Identity, error) {
	token := bytes.TrimSpace(raw)
	if len(token) == 0 {
		return "", models.ErrMissingCredential
	}
	identity, err := g.verifier.Verify(string(token))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(identity.String()) == "" {
		return "", models.ErrInvalidCredential
	}
	return identity, nil
}

// BearerToken extracts the credential from an Authorization header value.
// An empty header or bare scheme yields nil; a non-bearer scheme is invalid.
func BearerToken(header string) ([]byte, error) {
	header = strings.TrimSpace(header)
	if header == "" || strings.EqualFold(header, "Bearer") {
		return nil, nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil, fmt.Errorf("%w: unsupported authorization scheme", models.ErrInvalidCredential)
	}
	return []byte(strings.TrimSpace(token)), nil
}
