package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/leaveledger/leaveledger-backend/pkg/errors"
	"github.com/leaveledger/leaveledger-backend/pkg/httputil"
)

// Identity headers set by the upstream gateway.
const (
	HeaderCompanyID = "X-Company-Id"
	HeaderUserID    = "X-User-Id"
	HeaderRole      = "X-Role"
)

// Middleware extracts the caller identity from headers and stores it in
// the request context. Requests without a valid company and user ID are
// rejected with 403 (fail-fast). /health is exempt for monitoring.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		companyID, err := uuid.Parse(r.Header.Get(HeaderCompanyID))
		if err != nil {
			httputil.Error(w, errors.Forbidden("missing or invalid X-Company-Id header"))
			return
		}

		userID, err := uuid.Parse(r.Header.Get(HeaderUserID))
		if err != nil {
			httputil.Error(w, errors.Forbidden("missing or invalid X-User-Id header"))
			return
		}

		role := r.Header.Get(HeaderRole)
		if role == "" {
			role = RoleEmployee
		}

		ctx := WithIdentity(r.Context(), Identity{
			CompanyID: companyID,
			UserID:    userID,
			Role:      role,
		})

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CompanyScope rejects requests whose path company ID does not match the
// identity header. Mount inside a /companies/{companyID} route.
func CompanyScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := FromContext(r.Context())
		if err != nil {
			httputil.Error(w, err)
			return
		}

		pathCompany, err := uuid.Parse(chi.URLParam(r, "companyID"))
		if err != nil {
			httputil.Error(w, errors.BadRequest("invalid company ID"))
			return
		}

		if pathCompany != id.CompanyID {
			httputil.Error(w, errors.Forbidden("Company ID mismatch"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects callers without the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := FromContext(r.Context())
		if err != nil {
			httputil.Error(w, err)
			return
		}

		if !id.IsAdmin() {
			httputil.Error(w, errors.Forbidden("Admin access required"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
