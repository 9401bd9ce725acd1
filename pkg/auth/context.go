package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/leaveledger/leaveledger-backend/pkg/errors"
)

// Roles recognized by the service. The identity headers are set by an
// upstream gateway and are trusted as-is.
const (
	RoleEmployee = "employee"
	RoleAdmin    = "admin"
)

// SystemActorID identifies ledger and audit writes performed by the
// engines and the worker rather than a user.
var SystemActorID = uuid.Nil

// Identity is the per-request caller identity extracted from headers.
type Identity struct {
	CompanyID uuid.UUID
	UserID    uuid.UUID
	Role      string
}

// IsAdmin reports whether the caller has the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity stores the caller identity in the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext retrieves the caller identity from the context.
func FromContext(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(identityKey).(Identity)
	if !ok {
		return Identity{}, errors.Forbidden("missing identity context")
	}
	return id, nil
}

// MustFromContext retrieves the caller identity or panics.
// Only for handlers mounted behind the identity middleware.
func MustFromContext(ctx context.Context) Identity {
	id, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return id
}
