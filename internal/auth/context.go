package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const organizationIDKey contextKey = "organizationID"

// OrganizationHeader carries the organization a request is scoped to.
const OrganizationHeader = "X-Organization-ID"

// ContextWithOrganizationID returns a new context that carries the authenticated organization scope.
func ContextWithOrganizationID(ctx context.Context, id uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, organizationIDKey, id)
}

// OrganizationIDFromContext retrieves the authenticated organization scope from the context, if any.
func OrganizationIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(organizationIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// InScope reports whether an entity owned by organizationID is visible under
// the context's scope. Unscoped contexts see every organization.
func InScope(ctx context.Context, organizationID uuid.UUID) bool {
	scopedID, ok := OrganizationIDFromContext(ctx)
	return !ok || scopedID == organizationID
}

// EnforceOrganizationScope ensures the provided organization matches the authenticated scope when present.
func EnforceOrganizationScope(ctx context.Context, organizationID uuid.UUID) error {
	if organizationID == uuid.Nil {
		return fmt.Errorf("organizationId is required")
	}
	if !InScope(ctx, organizationID) {
		return fmt.Errorf("organizationId %s does not match authenticated scope", organizationID)
	}
	return nil
}

// ScopeMiddleware scopes each request to the organization named by the
// OrganizationHeader. Requests without the header stay unscoped.
func ScopeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(OrganizationHeader))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid %s: %v", OrganizationHeader, err), http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithOrganizationID(r.Context(), id)))
	})
}
