// Package auth is the thin authentication collaborator of the ledger core:
// a user registry with bcrypt credentials and HS256 tokens. Failed logins
// feed the fraud sentinel; every auth event lands in the audit trail.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridianbank/core/internal/audit"
	"github.com/meridianbank/core/internal/bankerr"
	"github.com/meridianbank/core/internal/fraud"
	"github.com/meridianbank/core/internal/interfaces"
	"github.com/meridianbank/core/internal/models"
)

type Service struct {
	users    interfaces.UserStore
	audit    *audit.Recorder
	fraud    *fraud.Sentinel
	secret   []byte
	tokenTTL time.Duration
}

func NewService(users interfaces.UserStore, auditor *audit.Recorder, sentinel *fraud.Sentinel, secret string, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &Service{
		users:    users,
		audit:    auditor,
		fraud:    sentinel,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

// Register creates a user and returns a signed token for it.
func (s *Service) Register(ctx context.Context, username, email, password, role string) (string, error) {
	if username == "" || email == "" || password == "" {
		return "", fmt.Errorf("%w: username, email and password are required", bankerr.ErrInvalidInput)
	}
	if role == "" {
		role = models.RoleUser
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%w: hash password: %v", bankerr.ErrInternal, err)
	}
	user, err := s.users.CreateUser(ctx, models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	})
	if errors.Is(err, bankerr.ErrDuplicate) {
		return "", fmt.Errorf("%w: username or email already registered", bankerr.ErrConflict)
	}
	if err != nil {
		return "", fmt.Errorf("%w: create user: %v", bankerr.ErrInternal, err)
	}

	s.audit.Append(ctx, user.Username, "REGISTER", "", "", "User registered")
	return s.signToken(user)
}

// Login verifies credentials and returns a signed token. A bad username or
// password records a FAILED_LOGIN fraud event and a LOGIN_FAILED audit entry.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.fraud.RecordFailedLogin(ctx, username)
		s.audit.Append(ctx, username, "LOGIN_FAILED", "", "", "Bad credentials")
		return "", bankerr.ErrBadCredentials
	}

	s.audit.Append(ctx, user.Username, "LOGIN", "", "", "User logged in")
	return s.signToken(user)
}
