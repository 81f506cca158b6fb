package repository

import (
	"context"

	"github.com/ndiakov/auth-service/internal/models"
)

// AuditRepository persists auth lifecycle events consumed from Kafka.
type AuditRepository interface {
	Record(ctx context.Context, event *models.AuthEvent) error
}
