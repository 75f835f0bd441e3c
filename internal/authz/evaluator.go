package authz

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	pkgerrors "itsm/pkg/errors"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// Permission tags.
const (
	PermAll             = "all"
	PermManageCI        = "gestionar_ci"
	PermManageIncidents = "gestionar_incidencias"
	PermManageProblems  = "gestionar_problemas"
	PermReports         = "reportes"
	PermTechnician      = "tecnico"
)

const (
	RoleAdmin      = "admin"
	RoleTechnician = "Técnico TI"
)

var (
	// ErrNotAuthenticated means no session or role was established for the request.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrForbidden means the caller's role holds none of the required permissions.
	ErrForbidden = errors.New("permission denied")
)

// The admin role and the "all" tag short-circuit every check.
const policyModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == "admin" || (r.sub == p.sub && (p.act == r.act || p.act == "all"))
`

// ResponsibleRoles are the roles whose employees may own a problem.
var ResponsibleRoles = []string{
	"Coordinador TI CEDIS",
	"Coordinador TI Sucursales",
	"Coordinador TI Corporativo",
	"Supervisor Infraestructura",
	"Supervisor Sistemas",
}

// DefaultRoles returns the built-in role table.
func DefaultRoles() map[string][]string {
	roles := map[string][]string{
		RoleAdmin:      {PermAll},
		RoleTechnician: {PermTechnician, PermManageIncidents, PermManageProblems},
	}
	for _, role := range ResponsibleRoles {
		roles[role] = []string{PermManageCI, PermManageIncidents, PermManageProblems, PermReports}
	}
	return roles
}

// Evaluator answers role/permission questions from a static table.
type Evaluator struct {
	enforcer *casbin.SyncedEnforcer
	roles    map[string][]string
}

// NewEvaluator builds an evaluator for the given table. An empty table means DefaultRoles.
func NewEvaluator(roles map[string][]string) (*Evaluator, error) {
	if len(roles) == 0 {
		roles = DefaultRoles()
	}
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, fmt.Errorf("load policy model failed: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer failed: %w", err)
	}

	table := make(map[string][]string, len(roles))
	rules := make([][]string, 0)
	for role, perms := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			return nil, fmt.Errorf("role name cannot be empty")
		}
		seen := make(map[string]struct{}, len(perms))
		for _, perm := range perms {
			perm = strings.TrimSpace(perm)
			if perm == "" {
				continue
			}
			if _, dup := seen[perm]; dup {
				continue
			}
			seen[perm] = struct{}{}
			table[role] = append(table[role], perm)
			rules = append(rules, []string{role, perm})
		}
	}
	if len(rules) > 0 {
		if _, err := enforcer.AddPolicies(rules); err != nil {
			return nil, fmt.Errorf("load role table failed: %w", err)
		}
	}
	return &Evaluator{enforcer: enforcer, roles: table}, nil
}

// HasPermission reports whether role holds permission.
func (e *Evaluator) HasPermission(role, permission string) bool {
	if role == "" {
		return false
	}
	ok, err := e.enforcer.Enforce(role, permission)
	return err == nil && ok
}

// HasAny reports whether role holds at least one of permissions.
func (e *Evaluator) HasAny(role string, permissions ...string) bool {
	for _, perm := range permissions {
		if e.HasPermission(role, perm) {
			return true
		}
	}
	return false
}

// Require fails unless ac is authenticated and holds at least one of permissions.
// With no permissions listed only authentication is checked.
func (e *Evaluator) Require(ac *Context, permissions ...string) error {
	if !ac.Authenticated() {
		return pkgerrors.Wrapf(ErrNotAuthenticated, pkgerrors.Unauthorized, "authentication required")
	}
	if len(permissions) == 0 || e.HasAny(ac.Role, permissions...) {
		return nil
	}
	return pkgerrors.Wrapf(ErrForbidden, pkgerrors.PermissionDenied,
		"role %q lacks permission %s", ac.Role, strings.Join(permissions, " or ")).
		WithDetail("required", permissions)
}

// Permissions lists the tags configured for role, sorted.
func (e *Evaluator) Permissions(role string) []string {
	perms := append([]string(nil), e.roles[role]...)
	if role == RoleAdmin && len(perms) == 0 {
		perms = []string{PermAll}
	}
	sort.Strings(perms)
	return perms
}
