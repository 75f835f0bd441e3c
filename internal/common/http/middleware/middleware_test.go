package middleware_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"itsm/internal/authz"
	commonmw "itsm/internal/common/http/middleware"
	pkgerrors "itsm/pkg/errors"
	"itsm/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
)

type traceResponse struct {
	TraceID      string `json:"trace_id"`
	RequestID    string `json:"request_id"`
	CtxTraceID   string `json:"ctx_trace_id"`
	CtxRequestID string `json:"ctx_request_id"`
	CtxUserID    string `json:"ctx_user_id"`
}

func TestTraceContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(commonmw.TraceContext())
	router.GET("/trace", func(c *gin.Context) {
		traceID, _ := c.Get("trace_id")
		requestID, _ := c.Get("request_id")
		ctx := c.Request.Context()
		c.JSON(http.StatusOK, traceResponse{
			TraceID:      toString(traceID),
			RequestID:    toString(requestID),
			CtxTraceID:   toString(ctx.Value(contextkey.TraceID)),
			CtxRequestID: toString(ctx.Value(contextkey.RequestID)),
			CtxUserID:    toString(ctx.Value(contextkey.UserID)),
		})
	})

	cases := []struct {
		name              string
		headers           map[string]string
		expectedTraceID   string
		expectedRequestID string
	}{
		{name: "generate trace and request id"},
		{
			name: "preserve trace and request id, ignore user header",
			headers: map[string]string{
				"X-Trace-Id":   "trace-123",
				"X-Request-Id": "req-123",
				"X-User-Id":    "42",
			},
			expectedTraceID:   "trace-123",
			expectedRequestID: "req-123",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/trace", nil)
			for key, value := range tc.headers {
				req.Header.Set(key, value)
			}
			router.ServeHTTP(rec, req)

			var resp traceResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response failed: %v", err)
			}
			if resp.TraceID == "" || resp.CtxTraceID != resp.TraceID {
				t.Fatalf("expected trace id in gin and request context, got %q / %q", resp.TraceID, resp.CtxTraceID)
			}
			if resp.RequestID == "" || resp.CtxRequestID != resp.RequestID {
				t.Fatalf("expected request id in gin and request context, got %q / %q", resp.RequestID, resp.CtxRequestID)
			}
			if tc.expectedTraceID != "" && resp.TraceID != tc.expectedTraceID {
				t.Fatalf("expected trace id %s, got %s", tc.expectedTraceID, resp.TraceID)
			}
			if tc.expectedRequestID != "" && resp.RequestID != tc.expectedRequestID {
				t.Fatalf("expected request id %s, got %s", tc.expectedRequestID, resp.RequestID)
			}
			if resp.CtxUserID != "" {
				t.Fatalf("user id must not come from headers, got %s", resp.CtxUserID)
			}
			if rec.Header().Get("X-Trace-Id") != resp.TraceID {
				t.Fatalf("expected trace id header")
			}
			if rec.Header().Get("X-Request-Id") != resp.RequestID {
				t.Fatalf("expected request id header")
			}
		})
	}
}

type fakeTokens struct {
	ac  *authz.Context
	err error
}

func (f fakeTokens) Parse(raw string) (*authz.Context, error) {
	if raw != "good" {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return f.ac, f.err
}

func TestAuthenticate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(commonmw.Authenticate(fakeTokens{ac: &authz.Context{UserID: 5, Role: "admin"}}))
	router.GET("/me", func(c *gin.Context) {
		ac := commonmw.Principal(c)
		fromCtx := authz.FromContext(c.Request.Context())
		if ac == nil {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, fmt.Sprintf("%d:%s:%v", ac.UserID, ac.Role, fromCtx == ac))
	})

	cases := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "no token passes through anonymous", header: "", status: http.StatusOK, body: "anonymous"},
		{name: "non bearer scheme ignored", header: "Basic abc", status: http.StatusOK, body: "anonymous"},
		{name: "valid token", header: "Bearer good", status: http.StatusOK, body: "5:admin:true"},
		{name: "invalid token rejected", header: "Bearer bad", status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			router.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rec.Code)
			}
			if tc.body != "" && rec.Body.String() != tc.body {
				t.Fatalf("expected body %q, got %q", tc.body, rec.Body.String())
			}
		})
	}
}

func TestRequestDeadline(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(commonmw.RequestDeadline(50 * time.Millisecond))
	router.GET("/deadline", func(c *gin.Context) {
		deadline, ok := c.Request.Context().Deadline()
		if !ok {
			c.String(http.StatusOK, "none")
			return
		}
		if time.Until(deadline) > 50*time.Millisecond {
			c.String(http.StatusOK, "too far")
			return
		}
		c.String(http.StatusOK, "bounded")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/deadline", nil))
	if rec.Body.String() != "bounded" {
		t.Fatalf("expected bounded deadline, got %s", rec.Body.String())
	}
}

func toString(value interface{}) string {
	if value == nil {
		return ""
	}
	return fmt.Sprint(value)
}
