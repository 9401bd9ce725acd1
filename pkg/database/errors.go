package database

import (
	"strings"

	"github.com/lib/pq"

	"github.com/leaveledger/leaveledger-backend/pkg/errors"
)

// Postgres error codes used across repositories.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqNotNullViolation    = "23502"
	pqCheckViolation      = "23514"
)

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation, optionally restricted to a named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return false
	}
	if string(pqErr.Code) != pqUniqueViolation {
		return false
	}
	if constraint == "" {
		return true
	}
	return pqErr.Constraint == constraint
}

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch string(pqErr.Code) {
	case pqCheckViolation:
		return errors.BadRequest("data validation failed: " + pqErr.Constraint)

	case pqUniqueViolation:
		return errors.Conflict(formatConstraintMessage(pqErr))

	case pqForeignKeyViolation:
		return errors.BadRequest("referenced record does not exist")

	case pqNotNullViolation:
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "policy_company_key"):
		return "Policy with this key already exists for this company"
	case strings.Contains(constraint, "request_idempotency"):
		return "Duplicate request"
	case strings.Contains(constraint, "ledger_idempotency"):
		return "a ledger entry for this source already exists"
	case strings.Contains(constraint, "assignment"):
		return "Duplicate assignment"
	case strings.Contains(constraint, "holiday"):
		return "a holiday already exists on this date"
	default:
		return "a record with these values already exists"
	}
}
