package command

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, key string, args ...string) (RequestSpec, error) {
	t.Helper()
	cmd, ok := Registry()[key]
	require.True(t, ok, "command %q not registered", key)
	params, err := ParseArgs(args)
	require.NoError(t, err)
	return BuildRequest(cmd, params)
}

func TestBuildRequestPathAndBody(t *testing.T) {
	req, err := build(t, "problem status", "id=7", "status=4")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/api/v1/problems/7/status", req.Path)
	assert.JSONEq(t, `{"status_id":4}`, string(req.Body))
}

func TestBuildRequestTwoPathParams(t *testing.T) {
	req, err := build(t, "problem unlink", "problem_id=3", "incident=11")
	require.NoError(t, err)

	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "/api/v1/problems/3/incidents/11", req.Path)
	assert.Empty(t, req.Body)
}

func TestBuildRequestQuery(t *testing.T) {
	req, err := build(t, "problem list", "status=2", "search=ERP caido")
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/api/v1/problems?search=ERP+caido&status=2", req.Path)
	assert.Empty(t, req.Body)

	req, err = build(t, "problem list")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/problems", req.Path)
}

func TestBuildRequestNestedBody(t *testing.T) {
	req, err := build(t, "account create",
		"name=Ana Lopez", "email=ana@example.com", "username=ana", "password=secreto123", "role=7", "active=no")
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(req.Body, &body))
	employee, ok := body["employee"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Ana Lopez", employee["name"])
	assert.Equal(t, "ana@example.com", employee["email"])
	assert.Equal(t, "ana", body["username"])
	assert.Equal(t, float64(7), body["role_id"])
	assert.Equal(t, false, body["active"])
}

func TestBuildRequestErrors(t *testing.T) {
	_, err := build(t, "problem get")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing parameter: id")

	_, err = build(t, "problem get", "id=abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid id")

	_, err = build(t, "account create", "name=x", "username=u", "password=p", "role_id=1", "active=maybe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid active")
}

func TestParseArgs(t *testing.T) {
	params, err := ParseArgs([]string{"Title=a=b", "body="})
	require.NoError(t, err)
	assert.Equal(t, "a=b", params.Get("title"))
	assert.True(t, params.Has("body"))

	_, err = ParseArgs([]string{"novalue"})
	require.Error(t, err)
	_, err = ParseArgs([]string{"=x"})
	require.Error(t, err)
}

func TestParseBool(t *testing.T) {
	for _, raw := range []string{"sí", "si", "yes", "true", "1"} {
		value, err := ParseBool(raw)
		require.NoError(t, err, raw)
		assert.True(t, value, raw)
	}
	for _, raw := range []string{"no", "n", "false", "0"} {
		value, err := ParseBool(raw)
		require.NoError(t, err, raw)
		assert.False(t, value, raw)
	}
}

func TestRegistryKeys(t *testing.T) {
	registry := Registry()
	keys := SortedKeys(registry)
	require.NotEmpty(t, keys)
	assert.Equal(t, "account create", keys[0])
	for _, key := range keys {
		cmd := registry[key]
		assert.Equal(t, key, cmd.Key())
		if key != "auth login" {
			assert.True(t, cmd.RequiresAuth, key)
		}
	}

	assert.Equal(t, manageProblems, registry["problem delete"].Permission)
	assert.Equal(t, manageProblems, registry["problem solution"].Permission)
	assert.Empty(t, registry["problem list"].Permission)
	assert.Empty(t, registry["account create"].Permission)
}
