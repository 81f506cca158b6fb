package repository

import (
	"context"

	"github.com/ndiakov/auth-service/internal/models"
)

// CredentialRepository is the durable store for account credentials and the
// single refresh-token slot each account owns. All operations are single-row
// keyed lookups or writes; the WHERE refresh_token = $old predicate on
// rotation is the only synchronization point between concurrent refreshes.
type CredentialRepository interface {
	Create(ctx context.Context, cred *models.Credential) error
	GetByUsername(ctx context.Context, username string) (*models.Credential, error)
	GetByRefreshToken(ctx context.Context, token string) (*models.Credential, error)
	SetRefreshToken(ctx context.Context, username, token string, expiry int64) error
	RotateRefreshToken(ctx context.Context, oldToken, newToken string) error
	ClearRefreshToken(ctx context.Context, token string) error
}
