package repository

import (
	"context"
	"testing"
	"time"

	"itsm/internal/authz"
	"itsm/internal/common/cache"
	"itsm/internal/common/db"
	"itsm/internal/common/db/dbtest"
	pkgrepo "itsm/pkg/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestAccountRepository(t *testing.T, cacheClient cache.Cache) (*SQLAccountRepository, db.Database) {
	t.Helper()
	database := dbtest.Open(t)
	return NewAccountRepository(database, cacheClient, authz.ResponsibleRoles), database
}

func newRedisCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redisCache, err := cache.NewRedisCacheWithClient(client)
	require.NoError(t, err)
	return redisCache, server
}

func testTime() time.Time {
	return time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
}

func createAccount(t *testing.T, repo *SQLAccountRepository, name, username string, roleID int64) *Account {
	t.Helper()
	ctx := context.Background()
	employee := &Employee{Name: name, Email: username + "@example.com", RoleID: roleID}
	_, err := repo.CreateEmployee(ctx, nil, employee)
	require.NoError(t, err)
	account := &Account{Username: username, PasswordHash: "hash", Active: true, EmployeeID: employee.ID, RoleID: roleID}
	_, err = repo.CreateAccount(ctx, nil, account)
	require.NoError(t, err)
	return account
}

func TestCreateAndLoadAccount(t *testing.T) {
	repo, _ := newTestAccountRepository(t, nil)
	ctx := context.Background()

	created := createAccount(t, repo, "Ana Pérez", "ana", 2)

	byName, err := repo.GetByUsername(ctx, nil, "ana")
	require.NoError(t, err)
	require.Equal(t, created.ID, byName.ID)
	require.Equal(t, "Ana Pérez", byName.EmployeeName)
	require.Equal(t, "Coordinador TI CEDIS", byName.RoleName)
	require.Equal(t, "hash", byName.PasswordHash)
	require.True(t, byName.Active)
	require.Nil(t, byName.LastLoginAt)

	byID, err := repo.GetByID(ctx, nil, created.ID)
	require.NoError(t, err)
	require.Equal(t, byName, byID)

	_, err = repo.GetByUsername(ctx, nil, "nadie")
	require.ErrorIs(t, err, ErrAccountNotFound)
	require.ErrorIs(t, err, pkgrepo.ErrNotFound)
}

func TestCreateAccountRejectsDuplicatesAndUnknownRoles(t *testing.T) {
	repo, _ := newTestAccountRepository(t, nil)
	ctx := context.Background()
	first := createAccount(t, repo, "Ana Pérez", "ana", 2)

	_, err := repo.CreateAccount(ctx, nil, &Account{Username: "ana", PasswordHash: "x", Active: true, EmployeeID: first.EmployeeID, RoleID: 2})
	require.ErrorIs(t, err, ErrUsernameExists)

	_, err = repo.CreateEmployee(ctx, nil, &Employee{Name: "Sin rol", RoleID: 99})
	require.ErrorIs(t, err, ErrUnknownRole)
}

func TestTouchLastLogin(t *testing.T) {
	repo, _ := newTestAccountRepository(t, nil)
	ctx := context.Background()
	account := createAccount(t, repo, "Ana Pérez", "ana", 2)

	at := testTime()
	require.NoError(t, repo.TouchLastLogin(ctx, nil, account.ID, at))

	got, err := repo.GetByID(ctx, nil, account.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
	require.True(t, at.Equal(*got.LastLoginAt))
}

func TestDeleteAccountRemovesEmployee(t *testing.T) {
	repo, database := newTestAccountRepository(t, nil)
	ctx := context.Background()
	account := createAccount(t, repo, "Ana Pérez", "ana", 2)

	require.NoError(t, repo.Delete(ctx, nil, account.ID))
	require.Zero(t, dbtest.Count(t, database, "SELECT COUNT(*) FROM app_user"))
	require.Zero(t, dbtest.Count(t, database, "SELECT COUNT(*) FROM employee"))

	require.ErrorIs(t, repo.Delete(ctx, nil, account.ID), ErrAccountNotFound)
}

func TestDeleteAccountWithAuthoredRecordsConflicts(t *testing.T) {
	repo, database := newTestAccountRepository(t, nil)
	ctx := context.Background()
	account := createAccount(t, repo, "Ana Pérez", "ana", 2)
	dbtest.Exec(t, database,
		"INSERT INTO problem (id, title, description, priority_id, category_id, impact_id, status_id, identified_at, created_by, created_at) VALUES (1, 't', 'd', 1, 1, 1, 1, '2026-01-01 00:00:00+00:00', 1, '2026-01-01 00:00:00+00:00')",
		"INSERT INTO problem_comment (problem_id, user_id, body, kind, created_at) VALUES (1, 1, 'nota', 'COMMENT', '2026-01-01 00:00:00+00:00')",
	)

	err := repo.Delete(ctx, nil, account.ID)
	require.ErrorIs(t, err, pkgrepo.ErrConflict)
	require.EqualValues(t, 1, dbtest.Count(t, database, "SELECT COUNT(*) FROM app_user"))
	require.EqualValues(t, 1, dbtest.Count(t, database, "SELECT COUNT(*) FROM employee"))
}

func TestResponsibleCandidatesFiltersByRole(t *testing.T) {
	repo, _ := newTestAccountRepository(t, nil)
	ctx := context.Background()
	createAccount(t, repo, "Zoe Ruiz", "zoe", 6)
	createAccount(t, repo, "Ana Pérez", "ana", 2)
	createAccount(t, repo, "Luis Gómez", "luis", 7)

	employees, err := repo.ResponsibleCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, employees, 2)
	require.Equal(t, "Ana Pérez", employees[0].Name)
	require.Equal(t, "Coordinador TI CEDIS", employees[0].RoleName)
	require.Equal(t, "Zoe Ruiz", employees[1].Name)
}

func TestResponsibleCandidatesAreCached(t *testing.T) {
	redisCache, server := newRedisCache(t)
	repo, _ := newTestAccountRepository(t, redisCache)
	ctx := context.Background()
	createAccount(t, repo, "Ana Pérez", "ana", 2)

	first, err := repo.ResponsibleCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.True(t, server.Exists(ResponsiblesCacheKey))

	createAccount(t, repo, "Berta Díaz", "berta", 3)
	cached, err := repo.ResponsibleCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 1)

	server.Del(ResponsiblesCacheKey)
	fresh, err := repo.ResponsibleCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, fresh, 2)
}
