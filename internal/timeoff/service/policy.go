package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/domain"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/repository"
	"github.com/leaveledger/leaveledger-backend/pkg/database"
	"github.com/leaveledger/leaveledger-backend/pkg/errors"
	"github.com/leaveledger/leaveledger-backend/pkg/logger"
)

// PolicyWithVersion pairs a policy with its current version. Version is
// nil when every version has been end-dated.
type PolicyWithVersion struct {
	Policy         *repository.Policy        `json:"policy"`
	CurrentVersion *repository.PolicyVersion `json:"current_version,omitempty"`
}

// CreatePolicyParams describes a new policy and its first version.
type CreatePolicyParams struct {
	CompanyID     uuid.UUID
	Key           string
	Name          string
	Category      domain.PolicyCategory
	EffectiveFrom time.Time
	Settings      json.RawMessage
	ChangeReason  *string
	ActorID       uuid.UUID
}

// UpdatePolicyParams describes a new version of an existing policy.
// The current version is end-dated at the new effective_from; history
// is never rewritten.
type UpdatePolicyParams struct {
	CompanyID     uuid.UUID
	PolicyID      uuid.UUID
	EffectiveFrom time.Time
	Settings      json.RawMessage
	ChangeReason  *string
	ActorID       uuid.UUID
}

// PolicyService manages policies and their immutable version history.
type PolicyService struct {
	db       *database.DB
	policies *repository.PolicyRepository
	audit    *AuditRecorder
	logger   *logger.Logger
}

// NewPolicyService creates a new policy service.
func NewPolicyService(db *database.DB, policies *repository.PolicyRepository, audit *AuditRecorder, log *logger.Logger) *PolicyService {
	return &PolicyService{
		db:       db,
		policies: policies,
		audit:    audit,
		logger:   log,
	}
}

// Create creates a policy together with version 1.
func (s *PolicyService) Create(ctx context.Context, params CreatePolicyParams) (*PolicyWithVersion, error) {
	settings, raw, err := normalizeSettings(params.Settings)
	if err != nil {
		return nil, err
	}

	policy := &repository.Policy{
		CompanyID: params.CompanyID,
		Key:       params.Key,
		Name:      params.Name,
		Category:  params.Category,
	}
	version := &repository.PolicyVersion{
		Version:       1,
		EffectiveFrom: midnightUTC(params.EffectiveFrom),
		Type:          settingsType(settings),
		AccrualMethod: settingsMethod(settings),
		Settings:      raw,
		CreatedBy:     params.ActorID,
		ChangeReason:  params.ChangeReason,
	}

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.policies.InsertPolicy(ctx, tx, policy); err != nil {
			return err
		}
		version.PolicyID = policy.ID
		if err := s.policies.InsertVersion(ctx, tx, version); err != nil {
			return err
		}

		if err := s.audit.Record(ctx, tx, params.CompanyID, domain.AuditPolicy, policy.ID,
			domain.ActionCreate, params.ActorID, nil, policy.AuditPayload()); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, params.CompanyID, domain.AuditPolicyVersion, version.ID,
			domain.ActionCreate, params.ActorID, nil, version.AuditPayload())
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("company_id", params.CompanyID.String()).
		Str("policy_id", policy.ID.String()).
		Str("key", policy.Key).
		Msg("policy created")

	return &PolicyWithVersion{Policy: policy, CurrentVersion: version}, nil
}

// Get returns a policy with its current version.
func (s *PolicyService) Get(ctx context.Context, companyID, policyID uuid.UUID) (*PolicyWithVersion, error) {
	policy, err := s.policies.GetPolicy(ctx, s.db, companyID, policyID)
	if err != nil {
		return nil, err
	}

	version, err := s.policies.CurrentVersion(ctx, s.db, policyID)
	if err != nil {
		if errors.Is(err, errors.ErrBadRequest) {
			return &PolicyWithVersion{Policy: policy}, nil
		}
		return nil, err
	}

	return &PolicyWithVersion{Policy: policy, CurrentVersion: version}, nil
}

// List lists a company's policies with their current versions.
func (s *PolicyService) List(ctx context.Context, companyID uuid.UUID, offset, limit int) ([]*PolicyWithVersion, int64, error) {
	policies, total, err := s.policies.ListPolicies(ctx, s.db, companyID, offset, limit)
	if err != nil {
		return nil, 0, err
	}

	result := make([]*PolicyWithVersion, 0, len(policies))
	for _, policy := range policies {
		item := &PolicyWithVersion{Policy: policy}
		version, err := s.policies.CurrentVersion(ctx, s.db, policy.ID)
		if err != nil && !errors.Is(err, errors.ErrBadRequest) {
			return nil, 0, err
		}
		if err == nil {
			item.CurrentVersion = version
		}
		result = append(result, item)
	}

	return result, total, nil
}

// Update publishes a new version, end-dating the current one at the new
// effective_from.
func (s *PolicyService) Update(ctx context.Context, params UpdatePolicyParams) (*PolicyWithVersion, error) {
	settings, raw, err := normalizeSettings(params.Settings)
	if err != nil {
		return nil, err
	}
	effectiveFrom := midnightUTC(params.EffectiveFrom)

	var policy *repository.Policy
	var next *repository.PolicyVersion

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		policy, err = s.policies.GetPolicy(ctx, tx, params.CompanyID, params.PolicyID)
		if err != nil {
			return err
		}

		current, err := s.policies.CurrentVersionForUpdate(ctx, tx, params.PolicyID)
		if err != nil {
			return err
		}
		if effectiveFrom.Before(current.EffectiveFrom) {
			return errors.BadRequest("New version cannot start before the current version")
		}

		before := current.AuditPayload()
		if err := s.policies.EndDateVersion(ctx, tx, current.ID, effectiveFrom); err != nil {
			return err
		}
		current.EffectiveTo = &effectiveFrom

		next = &repository.PolicyVersion{
			PolicyID:      params.PolicyID,
			Version:       current.Version + 1,
			EffectiveFrom: effectiveFrom,
			Type:          settingsType(settings),
			AccrualMethod: settingsMethod(settings),
			Settings:      raw,
			CreatedBy:     params.ActorID,
			ChangeReason:  params.ChangeReason,
		}
		if err := s.policies.InsertVersion(ctx, tx, next); err != nil {
			return err
		}

		if err := s.audit.Record(ctx, tx, params.CompanyID, domain.AuditPolicyVersion, current.ID,
			domain.ActionUpdate, params.ActorID, before, current.AuditPayload()); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, params.CompanyID, domain.AuditPolicyVersion, next.ID,
			domain.ActionCreate, params.ActorID, nil, next.AuditPayload())
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("company_id", params.CompanyID.String()).
		Str("policy_id", params.PolicyID.String()).
		Int("version", next.Version).
		Msg("policy version published")

	return &PolicyWithVersion{Policy: policy, CurrentVersion: next}, nil
}

// ListVersions lists the version history of a policy, newest first.
func (s *PolicyService) ListVersions(ctx context.Context, companyID, policyID uuid.UUID) ([]*repository.PolicyVersion, error) {
	if _, err := s.policies.GetPolicy(ctx, s.db, companyID, policyID); err != nil {
		return nil, err
	}
	return s.policies.ListVersions(ctx, s.db, policyID)
}

// normalizeSettings decodes, validates and re-encodes a settings
// document so defaults and discriminators are stored explicitly.
func normalizeSettings(raw json.RawMessage) (domain.Settings, json.RawMessage, error) {
	settings, err := domain.DecodeSettings(raw)
	if err != nil {
		return nil, nil, err
	}
	encoded, err := domain.EncodeSettings(settings)
	if err != nil {
		return nil, nil, err
	}
	return settings, encoded, nil
}

func settingsType(s domain.Settings) domain.PolicyType {
	if domain.IsUnlimited(s) {
		return domain.PolicyUnlimited
	}
	return domain.PolicyAccrual
}

func settingsMethod(s domain.Settings) *domain.AccrualMethod {
	switch s.(type) {
	case *domain.TimeAccrualSettings:
		m := domain.AccrualTime
		return &m
	case *domain.HoursWorkedAccrualSettings:
		m := domain.AccrualHoursWorked
		return &m
	default:
		return nil
	}
}
