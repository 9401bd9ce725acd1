package repository

import (
	"context"
	"fmt"

	"github.com/leaveledger/leaveledger-backend/pkg/database"
)

// Schema is the DDL for the time-off store. Production rollouts manage
// migrations externally; this is used by tests and local development.
const Schema = `
CREATE TABLE IF NOT EXISTS time_off_policy (
    id          UUID PRIMARY KEY,
    company_id  UUID NOT NULL,
    key         TEXT NOT NULL,
    name        TEXT NOT NULL,
    category    TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_policy_company_key UNIQUE (company_id, key)
);

CREATE TABLE IF NOT EXISTS time_off_policy_version (
    id              UUID PRIMARY KEY,
    policy_id       UUID NOT NULL REFERENCES time_off_policy (id),
    version         INTEGER NOT NULL,
    effective_from  DATE NOT NULL,
    effective_to    DATE,
    type            TEXT NOT NULL,
    accrual_method  TEXT,
    settings_json   JSONB NOT NULL,
    created_by      UUID NOT NULL,
    change_reason   TEXT,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_policy_version UNIQUE (policy_id, version)
);

CREATE TABLE IF NOT EXISTS time_off_policy_assignment (
    id              UUID PRIMARY KEY,
    company_id      UUID NOT NULL,
    employee_id     UUID NOT NULL,
    policy_id       UUID NOT NULL REFERENCES time_off_policy (id),
    effective_from  DATE NOT NULL,
    effective_to    DATE,
    created_by      UUID NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_assignment UNIQUE (company_id, employee_id, policy_id, effective_from)
);

CREATE TABLE IF NOT EXISTS time_off_request (
    id                 UUID PRIMARY KEY,
    company_id         UUID NOT NULL,
    employee_id        UUID NOT NULL,
    policy_id          UUID NOT NULL REFERENCES time_off_policy (id),
    start_at           TIMESTAMPTZ NOT NULL,
    end_at             TIMESTAMPTZ NOT NULL,
    requested_minutes  BIGINT NOT NULL,
    status             TEXT NOT NULL DEFAULT 'DRAFT',
    note               TEXT,
    idempotency_key    TEXT,
    submitted_at       TIMESTAMPTZ,
    decided_at         TIMESTAMPTZ,
    decided_by         UUID,
    decision_note      TEXT,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_request_idempotency UNIQUE (company_id, employee_id, idempotency_key)
);

CREATE INDEX IF NOT EXISTS ix_request_company_status
    ON time_off_request (company_id, status);

CREATE TABLE IF NOT EXISTS time_off_ledger_entry (
    id                 UUID PRIMARY KEY,
    company_id         UUID NOT NULL,
    employee_id        UUID NOT NULL,
    policy_id          UUID NOT NULL REFERENCES time_off_policy (id),
    policy_version_id  UUID REFERENCES time_off_policy_version (id),
    entry_type         TEXT NOT NULL,
    amount_minutes     BIGINT NOT NULL,
    effective_at       TIMESTAMPTZ NOT NULL,
    source_type        TEXT NOT NULL,
    source_id          TEXT NOT NULL,
    metadata_json      JSONB,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_ledger_idempotency UNIQUE (source_type, source_id, entry_type)
);

CREATE INDEX IF NOT EXISTS ix_ledger_employee_policy
    ON time_off_ledger_entry (employee_id, policy_id);

CREATE TABLE IF NOT EXISTS time_off_balance_snapshot (
    company_id         UUID NOT NULL,
    employee_id        UUID NOT NULL,
    policy_id          UUID NOT NULL REFERENCES time_off_policy (id),
    accrued_minutes    BIGINT NOT NULL DEFAULT 0,
    used_minutes       BIGINT NOT NULL DEFAULT 0,
    held_minutes       BIGINT NOT NULL DEFAULT 0,
    available_minutes  BIGINT NOT NULL DEFAULT 0,
    version            BIGINT NOT NULL DEFAULT 1,
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (company_id, employee_id, policy_id)
);

CREATE TABLE IF NOT EXISTS company_holiday (
    id          UUID PRIMARY KEY,
    company_id  UUID NOT NULL,
    date        DATE NOT NULL,
    name        TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_company_holiday UNIQUE (company_id, date)
);

CREATE TABLE IF NOT EXISTS audit_log (
    id           UUID PRIMARY KEY,
    company_id   UUID NOT NULL,
    entity_type  TEXT NOT NULL,
    entity_id    UUID NOT NULL,
    action       TEXT NOT NULL,
    actor_id     UUID NOT NULL,
    before_json  JSONB,
    after_json   JSONB,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS ix_audit_entity
    ON audit_log (entity_type, entity_id);
`

// EnsureSchema creates all tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db *database.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
