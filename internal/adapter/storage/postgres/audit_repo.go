package postgres

import (
	"context"
	"encoding/json"

	"depositgateway/internal/core/domain"
	"depositgateway/internal/core/ports"

	"github.com/jackc/pgx/v5/pgxpool"
)

type auditRepo struct {
	pool *pgxpool.Pool
}

// NewAuditRepository creates a PostgreSQL-backed AuditRepository.
func NewAuditRepository(pool *pgxpool.Pool) ports.AuditRepository {
	return &auditRepo{pool: pool}
}

func (r *auditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, actor, action, entity_type, entity_id, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.Actor, string(entry.Action), entry.EntityType, entry.EntityID, metadata, entry.CreatedAt,
	)
	return err
}
