package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/incident_desk/internal/hash"
	"github.com/Skotchmaster/incident_desk/internal/logging"
	"github.com/Skotchmaster/incident_desk/internal/models"
	"github.com/Skotchmaster/incident_desk/internal/repo"
	"github.com/Skotchmaster/incident_desk/internal/tokens"
)

type AuthService struct {
	Repo   *repo.GormRepo
	Tokens *tokens.Issuer
}

type AuthResult struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

// issue mints a token pair and replaces the user's stored refresh handle,
// so any refresh token issued earlier stops working.
func (s *AuthService) issue(ctx context.Context, user *models.User) (*AuthResult, error) {
	accessToken, accessExp, err := s.Tokens.IssueAccess(user.ID.String(), string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, refreshExp, err := s.Tokens.IssueRefresh(user.ID.String())
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	handle := tokens.Sha256Hex(refreshToken)
	if err := s.Repo.SetRefreshHash(ctx, user.ID, handle); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	user.RefreshTokenHash = handle

	return &AuthResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func (s *AuthService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return nil, fmt.Errorf("%w: name, email and password are required", ErrValidation)
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: pwHash,
		Role:         models.RoleUser,
	}
	if err := s.Repo.CreateUserIfNotExists(ctx, user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			l.Warn("register_error", "status", 400, "reason", "user already exists")
			return nil, fmt.Errorf("%w: user already exists", ErrConflict)
		}
		l.Error("register_error", "status", 500, "reason", "cannot create user", "error", err)
		return nil, err
	}

	return s.issue(ctx, user)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	l := logging.FromContext(ctx).With("svc", "auth.login", "email", email)

	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	user, err := s.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			l.Warn("login_failed", "status", 401, "reason", "unknown email")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "status", 401, "reason", "wrong password")
		return nil, ErrInvalidCredentials
	}
	if user.IsBlocked {
		l.Warn("login_failed", "status", 403, "reason", "account is blocked")
		return nil, ErrBlocked
	}

	return s.issue(ctx, user)
}

// Refresh returns a new access token. Every rejection is reported as
// ErrInvalidRefreshToken so callers cannot tell the causes apart.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	claims, err := tokens.RefreshClaimsFromToken(refreshToken, s.Tokens.RefreshSecret)
	if err != nil {
		l.Warn("refresh_failed", "reason", "token rejected", "error", err)
		return "", time.Time{}, ErrInvalidRefreshToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", time.Time{}, ErrInvalidRefreshToken
	}
	user, err := s.Repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			l.Warn("refresh_failed", "reason", "user not found")
			return "", time.Time{}, ErrInvalidRefreshToken
		}
		return "", time.Time{}, err
	}

	presented := tokens.Sha256Hex(refreshToken)
	if user.RefreshTokenHash == "" || subtle.ConstantTimeCompare([]byte(user.RefreshTokenHash), []byte(presented)) != 1 {
		l.Warn("refresh_failed", "reason", "token superseded or revoked", "user_id", user.ID)
		return "", time.Time{}, ErrInvalidRefreshToken
	}
	if user.IsBlocked {
		l.Warn("refresh_failed", "reason", "account is blocked", "user_id", user.ID)
		return "", time.Time{}, ErrInvalidRefreshToken
	}

	accessToken, exp, err := s.Tokens.IssueAccess(user.ID.String(), string(user.Role))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue access token: %w", err)
	}
	return accessToken, exp, nil
}

// LogOut revokes the stored refresh handle.
func (s *AuthService) LogOut(ctx context.Context, userID uuid.UUID) error {
	if err := s.Repo.SetRefreshHash(ctx, userID, ""); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return nil
}

// Authenticate resolves an access token to its current user record, so role
// changes and blocks apply to tokens that are already issued.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := tokens.AccessClaimsFromToken(accessToken, s.Tokens.AccessSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	user, err := s.Repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if user.IsBlocked {
		return nil, ErrBlocked
	}
	return user, nil
}
