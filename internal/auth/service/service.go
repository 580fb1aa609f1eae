package service

import (
	"context"
	"errors"
	"time"

	"colorgarb_portal_backend/internal/auth/password"
	"colorgarb_portal_backend/internal/auth/repository"
	"colorgarb_portal_backend/internal/auth/token"
	"colorgarb_portal_backend/platform/config"
	"colorgarb_portal_backend/platform/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidCredentials = errors.New("invalid credentials")
var ErrTokenExpired = errors.New("token expired")
var ErrTokenInvalid = errors.New("token invalid")

const accessTokenType = "access"

// UserStore abstracts the persistence the service needs.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (repository.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (repository.User, error)
	CreateRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (uuid.UUID, time.Time, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllRefreshTokens(ctx context.Context, userID uuid.UUID) error
}

type Service struct {
	store UserStore
	cfg   config.AuthServiceConfig
	log   *logger.Logger
}

func New(store UserStore, cfg config.AuthServiceConfig, log *logger.Logger) *Service {
	return &Service{store: store, cfg: cfg, log: log}
}

// TokenPair carries both halves of a successful sign-in.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

func (s *Service) SignIn(ctx context.Context, email, plainPassword string) (repository.User, TokenPair, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		s.log.AuthEvent("sign_in", email, false, "unknown user")
		return repository.User{}, TokenPair{}, ErrInvalidCredentials
	}

	if err := password.Compare(user.PasswordHash, plainPassword); err != nil {
		s.log.AuthEvent("sign_in", email, false, "bad password")
		return repository.User{}, TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return repository.User{}, TokenPair{}, err
	}

	s.log.AuthEvent("sign_in", email, true, "")
	return user, pair, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (repository.User, TokenPair, error) {
	hash := token.HashSHA256(refreshToken)
	userID, expiresAt, err := s.store.GetRefreshToken(ctx, hash)
	if err != nil {
		return repository.User{}, TokenPair{}, ErrTokenInvalid
	}

	if time.Now().After(expiresAt) {
		_ = s.store.RevokeRefreshToken(ctx, hash)
		return repository.User{}, TokenPair{}, ErrTokenExpired
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return repository.User{}, TokenPair{}, ErrTokenInvalid
	}

	// Rotate: the presented refresh token is single use.
	_ = s.store.RevokeRefreshToken(ctx, hash)

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return repository.User{}, TokenPair{}, err
	}
	return user, pair, nil
}

func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	hash := token.HashSHA256(refreshToken)
	return s.store.RevokeRefreshToken(ctx, hash)
}

func (s *Service) Me(ctx context.Context, userID uuid.UUID) (repository.User, error) {
	return s.store.GetUserByID(ctx, userID)
}

func (s *Service) issueTokens(ctx context.Context, user repository.User) (TokenPair, error) {
	accessToken, err := s.signAccessToken(user)
	if err != nil {
		return TokenPair{}, err
	}

	refreshToken, err := token.GenerateRandomToken(48)
	if err != nil {
		return TokenPair{}, err
	}

	hash := token.HashSHA256(refreshToken)
	expiresAt := time.Now().Add(s.cfg.GetRefreshTokenTTL())
	if err := s.store.CreateRefreshToken(ctx, user.ID, hash, expiresAt); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// signAccessToken builds the claims the auth middleware expects: sub, type,
// name, role, and organization_id for client users. The name claim is what
// audit trails attribute writes to, so it must carry the user's display
// name rather than anything shared across users.
func (s *Service) signAccessToken(user repository.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":  user.ID.String(),
		"type": accessTokenType,
		"name": user.Name,
		"role": user.Role,
		"exp":  time.Now().Add(s.cfg.GetAccessTokenTTL()).Unix(),
		"iat":  time.Now().Unix(),
	}
	if user.OrganizationID != nil {
		claims["organization_id"] = user.OrganizationID.String()
	}

	tokenObj := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tokenObj.SignedString([]byte(s.cfg.GetJWTAccessSecret()))
}
