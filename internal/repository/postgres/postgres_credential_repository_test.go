package repository_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/ndiakov/auth-service/internal/models"
	repository "github.com/ndiakov/auth-service/internal/repository/postgres"
	pkgerrors "github.com/ndiakov/auth-service/pkg/errors"
)

func credentialRows(username, hash string, token interface{}, expiry interface{}) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"username", "password_hash", "refresh_token", "refresh_expiry", "created_at"}).
		AddRow(username, hash, token, expiry, time.Now())
}

func TestPostgresCredentialRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresCredentialRepository(db)
	ctx := context.Background()

	t.Run("NilCredential", func(t *testing.T) {
		err := repo.Create(ctx, nil)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MissingFields", func(t *testing.T) {
		err := repo.Create(ctx, &models.Credential{Username: "alice"})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UsernameExists", func(t *testing.T) {
		cred := &models.Credential{Username: "alice", PasswordHash: "digest"}
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO credentials`)).
			WithArgs(cred.Username, cred.PasswordHash).
			WillReturnError(&pq.Error{Code: "23505"})

		err := repo.Create(ctx, cred)
		assert.ErrorIs(t, err, pkgerrors.ErrUsernameExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success", func(t *testing.T) {
		cred := &models.Credential{Username: "alice", PasswordHash: "digest"}
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO credentials (username, password_hash) VALUES ($1, $2) RETURNING created_at`)).
			WithArgs(cred.Username, cred.PasswordHash).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

		err := repo.Create(ctx, cred)
		assert.NoError(t, err)
		assert.True(t, cred.CreatedAt.Valid)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresCredentialRepository_GetByUsername(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresCredentialRepository(db)
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT username, password_hash, refresh_token, refresh_expiry, created_at FROM credentials WHERE username = $1`)).
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByUsername(ctx, "ghost")
		assert.ErrorIs(t, err, pkgerrors.ErrUserNotFound)
		assert.Contains(t, err.Error(), "ghost")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("EmptyUsername", func(t *testing.T) {
		_, err := repo.GetByUsername(ctx, "")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM credentials WHERE username = $1`)).
			WithArgs("alice").
			WillReturnRows(credentialRows("alice", "digest", "token", int64(1700000000)))

		cred, err := repo.GetByUsername(ctx, "alice")
		assert.NoError(t, err)
		assert.Equal(t, "alice", cred.Username)
		assert.True(t, cred.HasRefreshToken())
		assert.Equal(t, "token", cred.RefreshToken.String)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("SuccessWithoutSession", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM credentials WHERE username = $1`)).
			WithArgs("alice").
			WillReturnRows(credentialRows("alice", "digest", nil, nil))

		cred, err := repo.GetByUsername(ctx, "alice")
		assert.NoError(t, err)
		assert.False(t, cred.HasRefreshToken())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresCredentialRepository_GetByRefreshToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresCredentialRepository(db)
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM credentials WHERE refresh_token = $1`)).
			WithArgs("stale-token").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByRefreshToken(ctx, "stale-token")
		assert.ErrorIs(t, err, pkgerrors.ErrRefreshTokenNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM credentials WHERE refresh_token = $1`)).
			WithArgs("token").
			WillReturnRows(credentialRows("alice", "digest", "token", int64(1700000000)))

		cred, err := repo.GetByRefreshToken(ctx, "token")
		assert.NoError(t, err)
		assert.Equal(t, "alice", cred.Username)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresCredentialRepository_SetRefreshToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresCredentialRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE credentials SET refresh_token = $1, refresh_expiry = $2 WHERE username = $3`)).
			WithArgs("token", int64(1700000000), "alice").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SetRefreshToken(ctx, "alice", "token", 1700000000)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UnknownUser", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE credentials SET refresh_token = $1, refresh_expiry = $2 WHERE username = $3`)).
			WithArgs("token", int64(1700000000), "ghost").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SetRefreshToken(ctx, "ghost", "token", 1700000000)
		assert.ErrorIs(t, err, pkgerrors.ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresCredentialRepository_RotateRefreshToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresCredentialRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE credentials SET refresh_token = $1 WHERE refresh_token = $2`)).
			WithArgs("new-token", "old-token").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.RotateRefreshToken(ctx, "old-token", "new-token")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("LostRace", func(t *testing.T) {
		// Another rotation already replaced the row keyed by old-token.
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE credentials SET refresh_token = $1 WHERE refresh_token = $2`)).
			WithArgs("new-token", "old-token").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.RotateRefreshToken(ctx, "old-token", "new-token")
		assert.ErrorIs(t, err, pkgerrors.ErrRefreshTokenNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresCredentialRepository_ClearRefreshToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresCredentialRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE credentials SET refresh_token = NULL, refresh_expiry = NULL WHERE refresh_token = $1`)).
			WithArgs("token").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.ClearRefreshToken(ctx, "token")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AlreadyCleared", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE credentials SET refresh_token = NULL, refresh_expiry = NULL WHERE refresh_token = $1`)).
			WithArgs("token").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.ClearRefreshToken(ctx, "token")
		assert.ErrorIs(t, err, pkgerrors.ErrRefreshTokenNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
