package backup

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	apperrors "hospital-backup/internal/errors"
)

// Roles allowed to run backup, restore and schedule operations
const (
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleSystem     = "SYSTEM"
)

var elevatedRoles = map[string]bool{
	RoleAdmin:      true,
	RoleSuperAdmin: true,
	RoleSystem:     true,
}

// Principal identifies who initiates an operation
type Principal struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// SystemPrincipal is used by unattended runs such as the scheduler
func SystemPrincipal(id string) Principal {
	return Principal{ID: id, Roles: []string{RoleSystem}}
}

// HasElevatedRole reports whether the principal holds ADMIN, SUPER_ADMIN or SYSTEM
func (p Principal) HasElevatedRole() bool {
	for _, role := range p.Roles {
		if elevatedRoles[strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(role)), "ROLE_")] {
			return true
		}
	}
	return false
}

// RequireElevated returns an access_denied error unless the principal is elevated
func RequireElevated(p Principal) error {
	if strings.TrimSpace(p.ID) == "" {
		return apperrors.NewAccessDeniedError("an authenticated principal is required")
	}
	if !p.HasElevatedRole() {
		return apperrors.NewAccessDeniedError(
			fmt.Sprintf("principal %s lacks an elevated role (ADMIN, SUPER_ADMIN or SYSTEM)", p.ID)).
			WithContext("principal", p.ID)
	}
	return nil
}

// TenantResolver checks that a tenant exists and returns its canonical id
type TenantResolver interface {
	Resolve(ctx context.Context, tenantID string) (string, error)
}

// StaticTenantResolver accepts tenants from a fixed allow-list
type StaticTenantResolver struct {
	tenants map[string]string
}

// NewStaticTenantResolver matches tenant ids case-insensitively
func NewStaticTenantResolver(tenants []string) *StaticTenantResolver {
	r := &StaticTenantResolver{tenants: make(map[string]string, len(tenants))}
	for _, t := range tenants {
		t = strings.TrimSpace(t)
		if t != "" {
			r.tenants[strings.ToLower(t)] = t
		}
	}
	return r
}

// Resolve implements TenantResolver
func (r *StaticTenantResolver) Resolve(_ context.Context, tenantID string) (string, error) {
	if canonical, ok := r.tenants[strings.ToLower(strings.TrimSpace(tenantID))]; ok {
		return canonical, nil
	}
	return "", apperrors.NewNotFoundError(fmt.Sprintf("tenant %q does not exist", tenantID), nil)
}

// QueryTenantResolver looks tenants up with a single-parameter query returning the canonical id
type QueryTenantResolver struct {
	db    *sql.DB
	query string
}

// NewQueryTenantResolver creates a resolver backed by a lookup query such as
// "SELECT code FROM hopital WHERE code = ?"
func NewQueryTenantResolver(db *sql.DB, query string) *QueryTenantResolver {
	return &QueryTenantResolver{db: db, query: query}
}

// Resolve implements TenantResolver
func (r *QueryTenantResolver) Resolve(ctx context.Context, tenantID string) (string, error) {
	var canonical string
	err := r.db.QueryRowContext(ctx, r.query, strings.TrimSpace(tenantID)).Scan(&canonical)
	if err == sql.ErrNoRows {
		return "", apperrors.NewNotFoundError(fmt.Sprintf("tenant %q does not exist", tenantID), nil)
	}
	if err != nil {
		return "", apperrors.WrapError(err, "failed to resolve tenant")
	}
	return canonical, nil
}

// AnyTenantResolver accepts every non-empty tenant id
type AnyTenantResolver struct{}

// Resolve implements TenantResolver
func (AnyTenantResolver) Resolve(_ context.Context, tenantID string) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", apperrors.NewValidationError("tenant is required", nil)
	}
	return tenantID, nil
}

type operatorKey struct{}

// WithOperator attaches the id of the acting principal to ctx
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorKey{}, operator)
}

// OperatorFromContext returns the operator attached with WithOperator, or "system"
func OperatorFromContext(ctx context.Context) string {
	if op, ok := ctx.Value(operatorKey{}).(string); ok && op != "" {
		return op
	}
	return "system"
}
