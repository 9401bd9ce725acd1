package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/repository"
	"github.com/leaveledger/leaveledger-backend/pkg/database"
)

// PolicyBalanceSummary aggregates balances across a company's employees
// for one policy.
type PolicyBalanceSummary struct {
	PolicyID         uuid.UUID `json:"policy_id"`
	PolicyKey        string    `json:"policy_key"`
	PolicyName       string    `json:"policy_name"`
	Employees        int       `json:"employees"`
	AccruedMinutes   int64     `json:"accrued_minutes"`
	UsedMinutes      int64     `json:"used_minutes"`
	HeldMinutes      int64     `json:"held_minutes"`
	AvailableMinutes int64     `json:"available_minutes"`
}

// ReportService serves the read-only reporting endpoints.
type ReportService struct {
	db        *database.DB
	snapshots *repository.SnapshotRepository
	ledger    *repository.LedgerRepository
	policies  *repository.PolicyRepository
	audits    *repository.AuditRepository
}

// NewReportService creates a new report service.
func NewReportService(
	db *database.DB,
	snapshots *repository.SnapshotRepository,
	ledger *repository.LedgerRepository,
	policies *repository.PolicyRepository,
	audits *repository.AuditRepository,
) *ReportService {
	return &ReportService{
		db:        db,
		snapshots: snapshots,
		ledger:    ledger,
		policies:  policies,
		audits:    audits,
	}
}

// AuditLogs queries the audit log with filters.
func (s *ReportService) AuditLogs(ctx context.Context, params repository.AuditListParams) ([]*repository.AuditLog, int64, error) {
	return s.audits.List(ctx, s.db, params)
}

// BalanceSummary rolls up snapshots per policy across the company.
func (s *ReportService) BalanceSummary(ctx context.Context, companyID uuid.UUID) ([]*PolicyBalanceSummary, error) {
	snapshots, err := s.snapshots.ListByCompany(ctx, s.db, companyID)
	if err != nil {
		return nil, err
	}

	byPolicy := map[uuid.UUID]*PolicyBalanceSummary{}
	order := []uuid.UUID{}
	for _, snapshot := range snapshots {
		summary, ok := byPolicy[snapshot.PolicyID]
		if !ok {
			summary = &PolicyBalanceSummary{PolicyID: snapshot.PolicyID}
			byPolicy[snapshot.PolicyID] = summary
			order = append(order, snapshot.PolicyID)
		}
		summary.Employees++
		summary.AccruedMinutes += snapshot.AccruedMinutes
		summary.UsedMinutes += snapshot.UsedMinutes
		summary.HeldMinutes += snapshot.HeldMinutes
		summary.AvailableMinutes += snapshot.AvailableMinutes
	}

	result := make([]*PolicyBalanceSummary, 0, len(order))
	for _, policyID := range order {
		summary := byPolicy[policyID]
		policy, err := s.policies.GetPolicy(ctx, s.db, companyID, policyID)
		if err != nil {
			return nil, err
		}
		summary.PolicyKey = policy.Key
		summary.PolicyName = policy.Name
		result = append(result, summary)
	}

	return result, nil
}

// LedgerExport returns ledger entries for export, honoring the same
// filters as the paginated listing.
func (s *ReportService) LedgerExport(ctx context.Context, params repository.LedgerListParams) ([]*repository.LedgerEntry, int64, error) {
	if params.Limit <= 0 {
		params.Limit = 10000
	}
	return s.ledger.List(ctx, s.db, params)
}
