package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmdatafocus/pos_sync/utils"
)

// ErrNoTenantScope is the engine's only hard failure: operating unscoped
// risks cross-tenant leakage on shared hardware and must fail loudly rather
// than degrade.
var ErrNoTenantScope = errors.New("tenant scope is not resolved")

// TenantScope namespaces all local state for one (business, user) session.
// The zero value means global/unscoped.
type TenantScope struct {
	BusinessID string
	UserID     string
}

func (s TenantScope) IsZero() bool {
	return s.BusinessID == "" || s.UserID == ""
}

// Key returns the namespaced storage key for baseKey, or the bare baseKey
// when the scope is unresolved.
func (s TenantScope) Key(baseKey string) string {
	if s.IsZero() {
		return baseKey
	}
	return fmt.Sprintf("tenant:%s:user:%s:%s", s.BusinessID, s.UserID, baseKey)
}

// ResolveScope returns a usable scope only when both identifiers are present.
func ResolveScope(businessID, userID string) TenantScope {
	businessID = strings.TrimSpace(businessID)
	userID = strings.TrimSpace(userID)
	if businessID == "" || userID == "" {
		return TenantScope{}
	}
	return TenantScope{BusinessID: businessID, UserID: userID}
}

// ScopeFromContext resolves the session scope carried by the request context.
func ScopeFromContext(ctx context.Context) TenantScope {
	businessID, _ := utils.GetBusinessIdFromContext(ctx)
	userID, _ := utils.GetUserIdFromContext(ctx)
	return ResolveScope(businessID, userID)
}
