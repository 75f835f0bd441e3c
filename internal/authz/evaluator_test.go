package authz_test

import (
	"errors"
	"testing"

	"itsm/internal/authz"
	pkgerrors "itsm/pkg/errors"

	"github.com/stretchr/testify/require"
)

var allPermissions = []string{
	authz.PermManageCI,
	authz.PermManageIncidents,
	authz.PermManageProblems,
	authz.PermReports,
	authz.PermTechnician,
	"unlisted_permission",
}

func TestHasPermissionMatchesRoleTable(t *testing.T) {
	evaluator, err := authz.NewEvaluator(nil)
	require.NoError(t, err)

	table := authz.DefaultRoles()
	roles := append([]string{"Usuario Final", "unknown"}, keys(table)...)
	for _, role := range roles {
		for _, perm := range allPermissions {
			want := role == authz.RoleAdmin || contains(table[role], authz.PermAll) || contains(table[role], perm)
			require.Equalf(t, want, evaluator.HasPermission(role, perm), "role=%q perm=%q", role, perm)
		}
	}
}

func TestDefaultRoleTable(t *testing.T) {
	evaluator, err := authz.NewEvaluator(nil)
	require.NoError(t, err)

	require.True(t, evaluator.HasPermission("Técnico TI", authz.PermTechnician))
	require.True(t, evaluator.HasPermission("Técnico TI", authz.PermManageProblems))
	require.False(t, evaluator.HasPermission("Técnico TI", authz.PermReports))
	require.False(t, evaluator.HasPermission("Técnico TI", authz.PermManageCI))

	for _, role := range authz.ResponsibleRoles {
		require.True(t, evaluator.HasPermission(role, authz.PermReports), role)
		require.True(t, evaluator.HasPermission(role, authz.PermManageCI), role)
		require.False(t, evaluator.HasPermission(role, authz.PermTechnician), role)
	}
	// Role names are matched exactly, accents included.
	require.False(t, evaluator.HasPermission("Tecnico TI", authz.PermManageProblems))
	require.Equal(t, []string{authz.PermAll}, evaluator.Permissions(authz.RoleAdmin))
}

func TestAllSentinelGrantsEverything(t *testing.T) {
	evaluator, err := authz.NewEvaluator(map[string][]string{
		"Gerente TI": {"all"},
		"Auditor":    {"reportes"},
	})
	require.NoError(t, err)

	require.True(t, evaluator.HasPermission("Gerente TI", "anything"))
	require.True(t, evaluator.HasPermission("admin", "anything"))
	require.True(t, evaluator.HasPermission("Auditor", "reportes"))
	require.False(t, evaluator.HasPermission("Auditor", "gestionar_problemas"))
}

func TestRequireDistinguishesMissingSessionFromDenied(t *testing.T) {
	evaluator, err := authz.NewEvaluator(nil)
	require.NoError(t, err)

	err = evaluator.Require(nil, authz.PermManageProblems)
	require.Error(t, err)
	require.True(t, errors.Is(err, authz.ErrNotAuthenticated))
	require.Equal(t, pkgerrors.Unauthorized, pkgerrors.GetCode(err))

	err = evaluator.Require(&authz.Context{UserID: 1}, authz.PermManageProblems)
	require.True(t, errors.Is(err, authz.ErrNotAuthenticated))

	err = evaluator.Require(&authz.Context{UserID: 3, Role: "Usuario Final"}, authz.PermManageProblems)
	require.True(t, errors.Is(err, authz.ErrForbidden))
	require.Equal(t, pkgerrors.PermissionDenied, pkgerrors.GetCode(err))
	require.Equal(t, 403, pkgerrors.GetCode(err).HTTPStatus())
}

func TestRequireIsLogicalOr(t *testing.T) {
	evaluator, err := authz.NewEvaluator(nil)
	require.NoError(t, err)

	tech := &authz.Context{UserID: 7, Role: "Técnico TI"}
	require.NoError(t, evaluator.Require(tech, authz.PermReports, authz.PermTechnician))
	require.Error(t, evaluator.Require(tech, authz.PermReports, authz.PermManageCI))
	require.NoError(t, evaluator.Require(tech))
}

func TestNewEvaluatorRejectsEmptyRoleName(t *testing.T) {
	_, err := authz.NewEvaluator(map[string][]string{" ": {"reportes"}})
	require.Error(t, err)
}

func keys(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
