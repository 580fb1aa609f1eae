package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"colorgarb_portal_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opGetByEmail         = "auth.repository.get_by_email"
	opGetByID            = "auth.repository.get_by_id"
	opCreateRefresh      = "auth.repository.create_refresh_token"
	opGetRefresh         = "auth.repository.get_refresh_token"
	opRevokeRefresh      = "auth.repository.revoke_refresh_token"
	opRevokeAllRefresh   = "auth.repository.revoke_all_refresh_tokens"
	errRepoNotConfigured = "auth repository not configured"
)

// ErrNotFound signals a missing user or token row.
var ErrNotFound = errors.New("not found")

// User is a portal account. Staff users have no organization.
type User struct {
	ID             uuid.UUID
	OrganizationID *uuid.UUID
	Name           string
	Email          string
	Role           string
	PasswordHash   string
	CreatedAt      time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	if r == nil || r.pool == nil {
		return User{}, apperr.Internal(errRepoNotConfigured).WithOp(opGetByEmail)
	}

	var u User
	err := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, name, email, role, password_hash, created_at
		FROM users
		WHERE lower(email) = lower($1)
	`, email).Scan(&u.ID, &u.OrganizationID, &u.Name, &u.Email, &u.Role, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, apperr.Internal(fmt.Sprintf("get user by email failed: %v", err)).WithOp(opGetByEmail)
	}
	return u, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	if r == nil || r.pool == nil {
		return User{}, apperr.Internal(errRepoNotConfigured).WithOp(opGetByID)
	}

	var u User
	err := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, name, email, role, password_hash, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.OrganizationID, &u.Name, &u.Email, &u.Role, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, apperr.Internal(fmt.Sprintf("get user by id failed: %v", err)).WithOp(opGetByID)
	}
	return u, nil
}

func (r *Repository) CreateRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opCreateRefresh)
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("create refresh token failed: %v", err)).WithOp(opCreateRefresh)
	}
	return nil
}

func (r *Repository) GetRefreshToken(ctx context.Context, tokenHash string) (uuid.UUID, time.Time, error) {
	if r == nil || r.pool == nil {
		return uuid.Nil, time.Time{}, apperr.Internal(errRepoNotConfigured).WithOp(opGetRefresh)
	}

	var userID uuid.UUID
	var expiresAt time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, expires_at FROM refresh_tokens WHERE token_hash = $1
	`, tokenHash).Scan(&userID, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, time.Time{}, ErrNotFound
		}
		return uuid.Nil, time.Time{}, apperr.Internal(fmt.Sprintf("get refresh token failed: %v", err)).WithOp(opGetRefresh)
	}
	return userID, expiresAt, nil
}

func (r *Repository) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opRevokeRefresh)
	}

	_, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("revoke refresh token failed: %v", err)).WithOp(opRevokeRefresh)
	}
	return nil
}

func (r *Repository) RevokeAllRefreshTokens(ctx context.Context, userID uuid.UUID) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opRevokeAllRefresh)
	}

	_, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("revoke all refresh tokens failed: %v", err)).WithOp(opRevokeAllRefresh)
	}
	return nil
}
