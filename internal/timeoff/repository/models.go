package repository

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/domain"
)

// Policy is a named time-off policy owned by a company. Behavior lives in
// its versions; the policy row itself is stable identity.
type Policy struct {
	ID        uuid.UUID             `db:"id" json:"id"`
	CompanyID uuid.UUID             `db:"company_id" json:"company_id"`
	Key       string                `db:"key" json:"key"`
	Name      string                `db:"name" json:"name"`
	Category  domain.PolicyCategory `db:"category" json:"category"`
	CreatedAt time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt time.Time             `db:"updated_at" json:"updated_at"`
}

// AuditPayload renders the policy for audit before/after snapshots.
func (p *Policy) AuditPayload() map[string]any {
	return map[string]any{
		"id":         p.ID.String(),
		"company_id": p.CompanyID.String(),
		"key":        p.Key,
		"name":       p.Name,
		"category":   string(p.Category),
	}
}

// PolicyVersion is one immutable revision of a policy's behavior.
type PolicyVersion struct {
	ID            uuid.UUID             `db:"id" json:"id"`
	PolicyID      uuid.UUID             `db:"policy_id" json:"policy_id"`
	Version       int                   `db:"version" json:"version"`
	EffectiveFrom time.Time             `db:"effective_from" json:"effective_from"`
	EffectiveTo   *time.Time            `db:"effective_to" json:"effective_to,omitempty"`
	Type          domain.PolicyType     `db:"type" json:"type"`
	AccrualMethod *domain.AccrualMethod `db:"accrual_method" json:"accrual_method,omitempty"`
	Settings      json.RawMessage       `db:"settings_json" json:"settings"`
	CreatedBy     uuid.UUID             `db:"created_by" json:"created_by"`
	ChangeReason  *string               `db:"change_reason" json:"change_reason,omitempty"`
	CreatedAt     time.Time             `db:"created_at" json:"created_at"`
}

// DecodeSettings parses the stored settings document.
func (v *PolicyVersion) DecodeSettings() (domain.Settings, error) {
	return domain.DecodeSettings(v.Settings)
}

// AuditPayload renders the version for audit before/after snapshots.
func (v *PolicyVersion) AuditPayload() map[string]any {
	payload := map[string]any{
		"id":             v.ID.String(),
		"policy_id":      v.PolicyID.String(),
		"version":        v.Version,
		"effective_from": v.EffectiveFrom.Format(time.RFC3339),
		"type":           string(v.Type),
		"settings":       json.RawMessage(v.Settings),
		"created_by":     v.CreatedBy.String(),
	}
	if v.EffectiveTo != nil {
		payload["effective_to"] = v.EffectiveTo.Format(time.RFC3339)
	}
	if v.AccrualMethod != nil {
		payload["accrual_method"] = string(*v.AccrualMethod)
	}
	if v.ChangeReason != nil {
		payload["change_reason"] = *v.ChangeReason
	}
	return payload
}

// Assignment links an employee to a policy over a half-open interval
// [effective_from, effective_to).
type Assignment struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	CompanyID     uuid.UUID  `db:"company_id" json:"company_id"`
	EmployeeID    uuid.UUID  `db:"employee_id" json:"employee_id"`
	PolicyID      uuid.UUID  `db:"policy_id" json:"policy_id"`
	EffectiveFrom time.Time  `db:"effective_from" json:"effective_from"`
	EffectiveTo   *time.Time `db:"effective_to" json:"effective_to,omitempty"`
	CreatedBy     uuid.UUID  `db:"created_by" json:"created_by"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// ActiveOn reports whether the assignment covers the given date.
func (a *Assignment) ActiveOn(d time.Time) bool {
	if d.Before(a.EffectiveFrom) {
		return false
	}
	return a.EffectiveTo == nil || d.Before(*a.EffectiveTo)
}

// AuditPayload renders the assignment for audit before/after snapshots.
func (a *Assignment) AuditPayload() map[string]any {
	payload := map[string]any{
		"id":             a.ID.String(),
		"company_id":     a.CompanyID.String(),
		"employee_id":    a.EmployeeID.String(),
		"policy_id":      a.PolicyID.String(),
		"effective_from": a.EffectiveFrom.Format("2006-01-02"),
		"created_by":     a.CreatedBy.String(),
	}
	if a.EffectiveTo != nil {
		payload["effective_to"] = a.EffectiveTo.Format("2006-01-02")
	}
	return payload
}

// Request is a time-off request moving through the workflow state machine.
type Request struct {
	ID               uuid.UUID            `db:"id" json:"id"`
	CompanyID        uuid.UUID            `db:"company_id" json:"company_id"`
	EmployeeID       uuid.UUID            `db:"employee_id" json:"employee_id"`
	PolicyID         uuid.UUID            `db:"policy_id" json:"policy_id"`
	StartAt          time.Time            `db:"start_at" json:"start_at"`
	EndAt            time.Time            `db:"end_at" json:"end_at"`
	RequestedMinutes int64                `db:"requested_minutes" json:"requested_minutes"`
	Status           domain.RequestStatus `db:"status" json:"status"`
	Note             *string              `db:"note" json:"note,omitempty"`
	IdempotencyKey   *string              `db:"idempotency_key" json:"idempotency_key,omitempty"`
	SubmittedAt      *time.Time           `db:"submitted_at" json:"submitted_at,omitempty"`
	DecidedAt        *time.Time           `db:"decided_at" json:"decided_at,omitempty"`
	DecidedBy        *uuid.UUID           `db:"decided_by" json:"decided_by,omitempty"`
	DecisionNote     *string              `db:"decision_note" json:"decision_note,omitempty"`
	CreatedAt        time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time            `db:"updated_at" json:"updated_at"`
}

// AuditPayload renders the request for audit before/after snapshots.
func (r *Request) AuditPayload() map[string]any {
	payload := map[string]any{
		"id":                r.ID.String(),
		"company_id":        r.CompanyID.String(),
		"employee_id":       r.EmployeeID.String(),
		"policy_id":         r.PolicyID.String(),
		"start_at":          r.StartAt.Format(time.RFC3339),
		"end_at":            r.EndAt.Format(time.RFC3339),
		"requested_minutes": r.RequestedMinutes,
		"status":            string(r.Status),
	}
	if r.DecidedAt != nil {
		payload["decided_at"] = r.DecidedAt.Format(time.RFC3339)
	}
	if r.DecidedBy != nil {
		payload["decided_by"] = r.DecidedBy.String()
	}
	if r.DecisionNote != nil {
		payload["decision_note"] = *r.DecisionNote
	}
	return payload
}

// LedgerEntry is one immutable posting in the append-only minute ledger.
// Amounts are signed: grants positive, holds and usage negative.
type LedgerEntry struct {
	ID              uuid.UUID               `db:"id" json:"id"`
	CompanyID       uuid.UUID               `db:"company_id" json:"company_id"`
	EmployeeID      uuid.UUID               `db:"employee_id" json:"employee_id"`
	PolicyID        uuid.UUID               `db:"policy_id" json:"policy_id"`
	PolicyVersionID *uuid.UUID              `db:"policy_version_id" json:"policy_version_id,omitempty"`
	EntryType       domain.LedgerEntryType  `db:"entry_type" json:"entry_type"`
	AmountMinutes   int64                   `db:"amount_minutes" json:"amount_minutes"`
	EffectiveAt     time.Time               `db:"effective_at" json:"effective_at"`
	SourceType      domain.LedgerSourceType `db:"source_type" json:"source_type"`
	SourceID        string                  `db:"source_id" json:"source_id"`
	Metadata        json.RawMessage         `db:"metadata_json" json:"metadata,omitempty"`
	CreatedAt       time.Time               `db:"created_at" json:"created_at"`
}

// BalanceSnapshot is the transactionally-maintained rollup of the ledger
// for one (company, employee, policy) triple.
type BalanceSnapshot struct {
	CompanyID        uuid.UUID `db:"company_id" json:"company_id"`
	EmployeeID       uuid.UUID `db:"employee_id" json:"employee_id"`
	PolicyID         uuid.UUID `db:"policy_id" json:"policy_id"`
	AccruedMinutes   int64     `db:"accrued_minutes" json:"accrued_minutes"`
	UsedMinutes      int64     `db:"used_minutes" json:"used_minutes"`
	HeldMinutes      int64     `db:"held_minutes" json:"held_minutes"`
	AvailableMinutes int64     `db:"available_minutes" json:"available_minutes"`
	Version          int64     `db:"version" json:"version"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Recompute derives available from the other columns.
func (s *BalanceSnapshot) Recompute() {
	s.AvailableMinutes = s.AccruedMinutes - s.UsedMinutes - s.HeldMinutes
}

// Holiday is a company-observed non-working date.
type Holiday struct {
	ID        uuid.UUID `db:"id" json:"id"`
	CompanyID uuid.UUID `db:"company_id" json:"company_id"`
	Date      time.Time `db:"date" json:"date"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AuditPayload renders the holiday for audit before/after snapshots.
func (h *Holiday) AuditPayload() map[string]any {
	return map[string]any{
		"id":         h.ID.String(),
		"company_id": h.CompanyID.String(),
		"date":       h.Date.Format("2006-01-02"),
		"name":       h.Name,
	}
}

// AuditLog is one immutable audit record.
type AuditLog struct {
	ID         uuid.UUID              `db:"id" json:"id"`
	CompanyID  uuid.UUID              `db:"company_id" json:"company_id"`
	EntityType domain.AuditEntityType `db:"entity_type" json:"entity_type"`
	EntityID   uuid.UUID              `db:"entity_id" json:"entity_id"`
	Action     domain.AuditAction     `db:"action" json:"action"`
	ActorID    uuid.UUID              `db:"actor_id" json:"actor_id"`
	Before     json.RawMessage        `db:"before_json" json:"before,omitempty"`
	After      json.RawMessage        `db:"after_json" json:"after,omitempty"`
	CreatedAt  time.Time              `db:"created_at" json:"created_at"`
}
