package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/domain"
	"github.com/leaveledger/leaveledger-backend/pkg/database"
)

// AuditListParams holds filters for querying the audit log.
type AuditListParams struct {
	CompanyID  uuid.UUID
	EntityType *domain.AuditEntityType
	Action     *domain.AuditAction
	ActorID    *uuid.UUID
	From       *time.Time
	To         *time.Time
	Offset     int
	Limit      int
}

// AuditRepository handles the append-only audit log.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends an audit record. Failures propagate: a mutation whose
// audit record cannot be written must not commit.
func (r *AuditRepository) Insert(ctx context.Context, q database.Queryer, log *AuditLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}

	query := `
		INSERT INTO audit_log (
			id, company_id, entity_type, entity_id, action, actor_id, before_json, after_json
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	return q.QueryRowxContext(ctx, query,
		log.ID, log.CompanyID, log.EntityType, log.EntityID,
		log.Action, log.ActorID, log.Before, log.After,
	).Scan(&log.CreatedAt)
}

// List queries the audit log with filters, newest first.
func (r *AuditRepository) List(ctx context.Context, q database.Queryer, params AuditListParams) ([]*AuditLog, int64, error) {
	where := `WHERE company_id = $1
		  AND ($2::text IS NULL OR entity_type = $2)
		  AND ($3::text IS NULL OR action = $3)
		  AND ($4::uuid IS NULL OR actor_id = $4)
		  AND ($5::timestamptz IS NULL OR created_at >= $5)
		  AND ($6::timestamptz IS NULL OR created_at < $6)`

	var total int64
	if err := q.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM audit_log "+where,
		params.CompanyID, params.EntityType, params.Action, params.ActorID, params.From, params.To); err != nil {
		return nil, 0, err
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	logs := []*AuditLog{}
	query := `
		SELECT id, company_id, entity_type, entity_id, action, actor_id,
		       before_json, after_json, created_at
		FROM audit_log
	` + where + `
		ORDER BY created_at DESC
		LIMIT $7 OFFSET $8
	`
	if err := q.SelectContext(ctx, &logs, query,
		params.CompanyID, params.EntityType, params.Action, params.ActorID,
		params.From, params.To, limit, offset); err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
