package repository

import (
	"context"
	"fmt"

	"database/sql"

	"github.com/ndiakov/auth-service/internal/models"
	pkgerrors "github.com/ndiakov/auth-service/pkg/errors"
)

type PostgresAuditRepository struct {
	db *sql.DB
}

func NewPostgresAuditRepository(db *sql.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

func (r *PostgresAuditRepository) Record(ctx context.Context, event *models.AuthEvent) error {
	if event == nil {
		return fmt.Errorf("%w: event is nil", pkgerrors.ErrInvalidInput)
	}

	query := `
	INSERT INTO auth_events (event_id, event_type, username, occurred_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (event_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, event.EventID, event.EventType, event.Username, event.OccurredAt); err != nil {
		return fmt.Errorf("failed to record auth event: %w", err)
	}
	return nil
}
