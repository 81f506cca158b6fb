package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ndiakov/auth-service/internal/models"
	pkgerrors "github.com/ndiakov/auth-service/pkg/errors"
)

type PostgresCredentialRepository struct {
	db *sql.DB
}

func NewPostgresCredentialRepository(db *sql.DB) *PostgresCredentialRepository {
	return &PostgresCredentialRepository{db: db}
}

func (r *PostgresCredentialRepository) Create(ctx context.Context, cred *models.Credential) error {
	if cred == nil {
		return fmt.Errorf("%w: credential is nil", pkgerrors.ErrInvalidInput)
	}
	if cred.Username == "" || cred.PasswordHash == "" {
		return fmt.Errorf("%w: username and password_hash are required", pkgerrors.ErrInvalidInput)
	}

	query := `
	INSERT INTO credentials (username, password_hash)
	VALUES ($1, $2)
	RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query, cred.Username, cred.PasswordHash).Scan(&cred.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return pkgerrors.ErrUsernameExists
		}
		return fmt.Errorf("failed to create credential: %w", err)
	}
	return nil
}

func (r *PostgresCredentialRepository) GetByUsername(ctx context.Context, username string) (*models.Credential, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", pkgerrors.ErrInvalidInput)
	}

	query := `SELECT username, password_hash, refresh_token, refresh_expiry, created_at FROM credentials WHERE username = $1`

	var cred models.Credential
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&cred.Username,
		&cred.PasswordHash,
		&cred.RefreshToken,
		&cred.RefreshExpiry,
		&cred.CreatedAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%w: '%s'", pkgerrors.ErrUserNotFound, username)
	case err != nil:
		return nil, fmt.Errorf("failed to get credential by username: %w", err)
	}

	return &cred, nil
}

func (r *PostgresCredentialRepository) GetByRefreshToken(ctx context.Context, token string) (*models.Credential, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: refresh token cannot be empty", pkgerrors.ErrInvalidInput)
	}

	query := `SELECT username, password_hash, refresh_token, refresh_expiry, created_at FROM credentials WHERE refresh_token = $1`

	var cred models.Credential
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&cred.Username,
		&cred.PasswordHash,
		&cred.RefreshToken,
		&cred.RefreshExpiry,
		&cred.CreatedAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrRefreshTokenNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get credential by refresh token: %w", err)
	}

	return &cred, nil
}

// SetRefreshToken overwrites the refresh slot unconditionally: a second
// sign-in silently invalidates the first session.
func (r *PostgresCredentialRepository) SetRefreshToken(ctx context.Context, username, token string, expiry int64) error {
	query := `UPDATE credentials SET refresh_token = $1, refresh_expiry = $2 WHERE username = $3`

	res, err := r.db.ExecContext(ctx, query, token, expiry, username)
	if err != nil {
		return fmt.Errorf("failed to set refresh token: %w", err)
	}
	return checkOneRow(res, pkgerrors.ErrUserNotFound)
}

// RotateRefreshToken replaces the token keyed by its old value. When two
// rotations race on the same stale token, the row predicate lets at most one
// UPDATE land; the loser finds zero rows affected.
func (r *PostgresCredentialRepository) RotateRefreshToken(ctx context.Context, oldToken, newToken string) error {
	query := `UPDATE credentials SET refresh_token = $1 WHERE refresh_token = $2`

	res, err := r.db.ExecContext(ctx, query, newToken, oldToken)
	if err != nil {
		return fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	return checkOneRow(res, pkgerrors.ErrRefreshTokenNotFound)
}

// ClearRefreshToken nulls both the token and its expiry in one write.
func (r *PostgresCredentialRepository) ClearRefreshToken(ctx context.Context, token string) error {
	query := `UPDATE credentials SET refresh_token = NULL, refresh_expiry = NULL WHERE refresh_token = $1`

	res, err := r.db.ExecContext(ctx, query, token)
	if err != nil {
		return fmt.Errorf("failed to clear refresh token: %w", err)
	}
	return checkOneRow(res, pkgerrors.ErrRefreshTokenNotFound)
}

func checkOneRow(res sql.Result, missing error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return missing
	}
	return nil
}
