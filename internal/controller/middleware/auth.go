// Package middleware contains HTTP middleware for the controller.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/keinar/Agnox-sub002/internal/auth"
	"github.com/keinar/Agnox-sub002/internal/store"
	"github.com/keinar/Agnox-sub002/pkg/api"
)

// organizationKey is the context key for the authenticated organization.
type organizationKey struct{}

// KeyLookup resolves an API key hash to its organization.
type KeyLookup interface {
	GetOrganizationByAPIKeyHash(ctx context.Context, hash string) (*store.Organization, error)
}

// AuthMiddleware authenticates the request by API key and attaches the
// owning organization to the context. Every downstream operation is
// scoped by that organization; there is no unauthenticated read path.
func AuthMiddleware(lookup KeyLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				unauthorized(w, "Missing API key")
				return
			}

			org, err := lookup.GetOrganizationByAPIKeyHash(r.Context(), auth.HashKey(key))
			if err != nil {
				// An unknown key and a lookup failure look the same to
				// the caller.
				unauthorized(w, "Unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithOrganization(r.Context(), org)))
		})
	}
}

// ContextWithOrganization attaches the organization to the context.
func ContextWithOrganization(ctx context.Context, org *store.Organization) context.Context {
	return context.WithValue(ctx, organizationKey{}, org)
}

// OrganizationFromContext extracts the authenticated organization.
func OrganizationFromContext(ctx context.Context) (*store.Organization, bool) {
	org, ok := ctx.Value(organizationKey{}).(*store.Organization)
	return org, ok
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(api.ErrorResponse{
		Error: message,
		Code:  "401",
	})
}
