package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/domain"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/repository"
	"github.com/leaveledger/leaveledger-backend/pkg/database"
)

// AuditRecorder writes audit records inside the caller's transaction so
// a mutation and its audit trail commit or roll back together.
type AuditRecorder struct {
	audits *repository.AuditRepository
}

// NewAuditRecorder creates a new audit recorder.
func NewAuditRecorder(audits *repository.AuditRepository) *AuditRecorder {
	return &AuditRecorder{audits: audits}
}

// Record appends one audit record. Before and after are optional
// entity snapshots; nil maps are stored as NULL.
func (a *AuditRecorder) Record(
	ctx context.Context,
	q database.Queryer,
	companyID uuid.UUID,
	entityType domain.AuditEntityType,
	entityID uuid.UUID,
	action domain.AuditAction,
	actorID uuid.UUID,
	before, after map[string]any,
) error {
	log := &repository.AuditLog{
		CompanyID:  companyID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorID:    actorID,
	}

	if before != nil {
		raw, err := json.Marshal(before)
		if err != nil {
			return err
		}
		log.Before = raw
	}
	if after != nil {
		raw, err := json.Marshal(after)
		if err != nil {
			return err
		}
		log.After = raw
	}

	return a.audits.Insert(ctx, q, log)
}

// encodeMetadata marshals a ledger entry metadata document.
func encodeMetadata(m map[string]any) ([]byte, error) {
	return json.Marshal(m)
}
