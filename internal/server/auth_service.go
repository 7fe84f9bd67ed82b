package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"filebox/internal/auth"
	"filebox/internal/models"
	"filebox/internal/store"
)

var errInvalidCredentials = errors.New("invalid credentials")

// AuthService provisions accounts and issues bearer tokens. It sits outside
// the transfer path; only the issued tokens reach the Identity Gate.
type AuthService struct {
	users  store.UserStore
	tokens *auth.TokenManager
}

type authLoginResult struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

func NewAuthService(users store.UserStore, tokens *auth.TokenManager) *AuthService {
	if users == nil || tokens == nil {
		return nil
	}
	return &AuthService{users: users, tokens: tokens}
}

func (a *AuthService) Register(ctx context.Context, name, email, password string, now time.Time) (*models.User, error) {
	if a == nil {
		return nil, fmt.Errorf("auth service is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(email) == "" || password == "" {
		return nil, badRequestCode(fmt.Errorf("name, email and password are required"), ErrCodeMissingRequired)
	}
	normalized, err := auth.NormalizeEmail(email)
	if err != nil {
		return nil, badRequestCode(err, ErrCodeInvalidEmail)
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, badRequestCode(err, ErrCodeWeakPassword)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, internalError(err)
	}
	user, err := a.users.CreateUser(ctx, normalized, name, hash, now)
	if errors.Is(err, models.ErrConflict) {
		return nil, conflictCode(fmt.Errorf("User already exists"), ErrCodeUserExists)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (a *AuthService) Login(ctx context.Context, email, password string, now time.Time) (*authLoginResult, error) {
	if a == nil {
		return nil, fmt.Errorf("auth service is not configured")
	}
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, badRequestCode(fmt.Errorf("email and password are required"), ErrCodeMissingRequired)
	}
	normalized, err := auth.NormalizeEmail(email)
	if err != nil {
		return nil, errInvalidCredentials
	}

	user, err := a.users.GetUserByEmail(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if user == nil || !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, errInvalidCredentials
	}

	token, expiresAt, err := a.tokens.Issue(user.Identity(), now)
	if err != nil {
		return nil, internalError(err)
	}
	return &authLoginResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}
