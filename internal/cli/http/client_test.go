package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"itsm/internal/cli/command"
	pkgerrors "itsm/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendAttachesTokenAndDecodesEnvelope(t *testing.T) {
	var gotAuth, gotBody, gotPath, gotRequestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.RequestURI()
		gotRequestID = r.Header.Get(requestIDHeader)
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"code":10000,"message":"Success","data":{"id":7}}`))
	}))
	defer server.Close()

	client := New(server.URL+"/", time.Second, func() string { return "abc" })
	resp, err := client.Send(context.Background(), command.RequestSpec{
		Method: http.MethodPost,
		Path:   "/api/v1/problems?x=1",
		Body:   []byte(`{"title":"t"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, resp.OK())
	require.NotNil(t, resp.Envelope)
	assert.JSONEq(t, `{"id":7}`, string(resp.Envelope.Data))
	assert.Equal(t, "Bearer abc", gotAuth)
	assert.Equal(t, "/api/v1/problems?x=1", gotPath)
	assert.Equal(t, `{"title":"t"}`, gotBody)
	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, gotRequestID, resp.RequestID)
}

func TestSendReportsRejectedEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(requestIDHeader, "srv-1")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":10104,"message":"problem 4 has solutions","kind":"dependency_conflict"}`))
	}))
	defer server.Close()

	client := New(server.URL, time.Second, nil)
	resp, err := client.Send(context.Background(), command.RequestSpec{Method: http.MethodDelete, Path: "/api/v1/problems/4"})
	require.NoError(t, err)

	assert.False(t, resp.OK())
	assert.Equal(t, "srv-1", resp.RequestID)
	assert.Equal(t, pkgerrors.KindDependencyConflict, resp.Envelope.Kind)
	assert.Equal(t, "dependency_conflict: problem 4 has solutions (code 10104)", resp.Failure())
}

func TestSendWithoutTokenOrBody(t *testing.T) {
	var gotAuth, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := New("http://127.0.0.1:1", time.Second, func() string { return "" })
	client.SetBaseURL(server.URL)
	assert.Equal(t, server.URL, client.BaseURL())

	resp, err := client.Send(context.Background(), command.RequestSpec{Method: http.MethodGet, Path: "/healthz"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Nil(t, resp.Envelope)
	assert.True(t, resp.OK())
	assert.Empty(t, resp.Failure())
	assert.Empty(t, gotAuth)
	assert.Empty(t, gotContentType)
}

func TestSendConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client := New(url, time.Second, nil)
	_, err := client.Send(context.Background(), command.RequestSpec{Method: http.MethodGet, Path: "/healthz"})
	require.Error(t, err)
}

func TestFailureWithoutEnvelope(t *testing.T) {
	resp := Response{StatusCode: http.StatusBadGateway}
	assert.Equal(t, "502 Bad Gateway", resp.Failure())
}
