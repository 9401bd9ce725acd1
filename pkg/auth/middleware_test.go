package auth_test

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaveledger/leaveledger-backend/pkg/auth"
	"github.com/leaveledger/leaveledger-backend/pkg/testutil"
)

func identityEcho(t *testing.T, captured *auth.Identity) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := auth.FromContext(r.Context())
		require.NoError(t, err)
		*captured = id
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestMiddleware(t *testing.T) {
	companyID := uuid.New()
	userID := uuid.New()

	t.Run("valid headers populate identity", func(t *testing.T) {
		var captured auth.Identity
		handler := auth.Middleware(identityEcho(t, &captured))

		req := testutil.NewHTTPRequest(http.MethodGet, "/companies/"+companyID.String()+"/policies", nil)
		testutil.WithIdentityHeaders(req, companyID.String(), userID.String(), auth.RoleAdmin)

		rr := testutil.ExecuteRequest(handler, req)
		testutil.AssertStatus(t, rr, http.StatusNoContent)
		assert.Equal(t, companyID, captured.CompanyID)
		assert.Equal(t, userID, captured.UserID)
		assert.True(t, captured.IsAdmin())
	})

	t.Run("role defaults to employee", func(t *testing.T) {
		var captured auth.Identity
		handler := auth.Middleware(identityEcho(t, &captured))

		req := testutil.NewHTTPRequest(http.MethodGet, "/anything", nil)
		testutil.WithIdentityHeaders(req, companyID.String(), userID.String(), "")

		rr := testutil.ExecuteRequest(handler, req)
		testutil.AssertStatus(t, rr, http.StatusNoContent)
		assert.Equal(t, auth.RoleEmployee, captured.Role)
		assert.False(t, captured.IsAdmin())
	})

	t.Run("missing company header rejected", func(t *testing.T) {
		handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be reached")
		}))

		req := testutil.NewHTTPRequest(http.MethodGet, "/anything", nil)
		testutil.WithIdentityHeaders(req, "", userID.String(), auth.RoleEmployee)

		rr := testutil.ExecuteRequest(handler, req)
		testutil.AssertStatus(t, rr, http.StatusForbidden)
		testutil.AssertBodyContains(t, rr, "X-Company-Id")
	})

	t.Run("malformed user header rejected", func(t *testing.T) {
		handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be reached")
		}))

		req := testutil.NewHTTPRequest(http.MethodGet, "/anything", nil)
		testutil.WithIdentityHeaders(req, companyID.String(), "not-a-uuid", auth.RoleEmployee)

		rr := testutil.ExecuteRequest(handler, req)
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})

	t.Run("health is exempt", func(t *testing.T) {
		reached := false
		handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			w.WriteHeader(http.StatusOK)
		}))

		req := testutil.NewHTTPRequest(http.MethodGet, "/health", nil)
		rr := testutil.ExecuteRequest(handler, req)
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.True(t, reached)
	})
}

func TestCompanyScope(t *testing.T) {
	companyID := uuid.New()
	userID := uuid.New()

	newRouter := func(reached *bool) http.Handler {
		r := chi.NewRouter()
		r.Use(auth.Middleware)
		r.Route("/companies/{companyID}", func(r chi.Router) {
			r.Use(auth.CompanyScope)
			r.Get("/policies", func(w http.ResponseWriter, req *http.Request) {
				*reached = true
				w.WriteHeader(http.StatusOK)
			})
		})
		return r
	}

	t.Run("matching company passes", func(t *testing.T) {
		reached := false
		req := testutil.NewHTTPRequest(http.MethodGet, "/companies/"+companyID.String()+"/policies", nil)
		testutil.WithIdentityHeaders(req, companyID.String(), userID.String(), auth.RoleEmployee)

		rr := testutil.ExecuteRequest(newRouter(&reached), req)
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.True(t, reached)
	})

	t.Run("foreign company rejected", func(t *testing.T) {
		reached := false
		req := testutil.NewHTTPRequest(http.MethodGet, "/companies/"+uuid.New().String()+"/policies", nil)
		testutil.WithIdentityHeaders(req, companyID.String(), userID.String(), auth.RoleEmployee)

		rr := testutil.ExecuteRequest(newRouter(&reached), req)
		testutil.AssertStatus(t, rr, http.StatusForbidden)
		testutil.AssertBodyContains(t, rr, "Company ID mismatch")
		assert.False(t, reached)
	})

	t.Run("malformed path company rejected", func(t *testing.T) {
		reached := false
		req := testutil.NewHTTPRequest(http.MethodGet, "/companies/not-a-uuid/policies", nil)
		testutil.WithIdentityHeaders(req, companyID.String(), userID.String(), auth.RoleEmployee)

		rr := testutil.ExecuteRequest(newRouter(&reached), req)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
		assert.False(t, reached)
	})
}

func TestRequireAdmin(t *testing.T) {
	companyID := uuid.New()
	userID := uuid.New()

	newHandler := func(reached *bool) http.Handler {
		return auth.Middleware(auth.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*reached = true
			w.WriteHeader(http.StatusOK)
		})))
	}

	t.Run("admin passes", func(t *testing.T) {
		reached := false
		req := testutil.NewHTTPRequest(http.MethodPost, "/companies/x/accruals/run", nil)
		testutil.WithIdentityHeaders(req, companyID.String(), userID.String(), auth.RoleAdmin)

		rr := testutil.ExecuteRequest(newHandler(&reached), req)
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.True(t, reached)
	})

	t.Run("employee rejected", func(t *testing.T) {
		reached := false
		req := testutil.NewHTTPRequest(http.MethodPost, "/companies/x/accruals/run", nil)
		testutil.WithIdentityHeaders(req, companyID.String(), userID.String(), auth.RoleEmployee)

		rr := testutil.ExecuteRequest(newHandler(&reached), req)
		testutil.AssertStatus(t, rr, http.StatusForbidden)
		testutil.AssertBodyContains(t, rr, "Admin access required")
		assert.False(t, reached)
	})
}
