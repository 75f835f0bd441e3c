package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"itsm/internal/cli/command"
	pkgerrors "itsm/pkg/errors"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// Envelope is the body shape every API endpoint answers with.
type Envelope struct {
	Code    pkgerrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
	Kind    pkgerrors.Kind      `json:"kind,omitempty"`
	Data    json.RawMessage     `json:"data,omitempty"`
	TraceID string              `json:"trace_id,omitempty"`
}

// Response is one API exchange. Envelope is nil when the body is not an
// API envelope, for example an empty 204 or a proxy error page.
type Response struct {
	StatusCode int
	RequestID  string
	Duration   time.Duration
	Body       []byte
	Envelope   *Envelope
}

// OK reports a 2xx answer whose envelope, when present, carries Success.
func (r Response) OK() bool {
	if r.StatusCode < 200 || r.StatusCode >= 300 {
		return false
	}
	return r.Envelope == nil || r.Envelope.Code == pkgerrors.Success
}

// Failure renders a rejected call as "<kind>: <message> (code N)".
func (r Response) Failure() string {
	if r.OK() {
		return ""
	}
	if r.Envelope == nil {
		return fmt.Sprintf("%d %s", r.StatusCode, http.StatusText(r.StatusCode))
	}
	kind := r.Envelope.Kind
	if kind == pkgerrors.KindNone {
		kind = r.Envelope.Code.Kind()
	}
	return fmt.Sprintf("%s: %s (code %d)", kind, r.Envelope.Message, r.Envelope.Code)
}

// Client sends REPL commands to the problem service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      func() string
}

func New(baseURL string, timeout time.Duration, token func() string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		token:      token,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
}

// Send issues call with the bearer token and a fresh request id, then decodes
// the answer envelope.
func (c *Client) Send(ctx context.Context, call command.RequestSpec) (Response, error) {
	var reader io.Reader
	if len(call.Body) > 0 {
		reader = bytes.NewReader(call.Body)
	}
	req, err := http.NewRequestWithContext(ctx, call.Method, c.baseURL+call.Path, reader)
	if err != nil {
		return Response{}, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(requestIDHeader, uuid.NewString())
	for k, v := range call.Headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	if c.token != nil {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp := Response{RequestID: req.Header.Get(requestIDHeader)}
	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	resp.Duration = time.Since(start)
	if err != nil {
		return resp, fmt.Errorf("request %s failed: %w", resp.RequestID, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	resp.StatusCode = httpResp.StatusCode
	if echoed := httpResp.Header.Get(requestIDHeader); echoed != "" {
		resp.RequestID = echoed
	}
	if resp.Body, err = io.ReadAll(httpResp.Body); err != nil {
		return resp, fmt.Errorf("read response body failed: %w", err)
	}
	var envelope Envelope
	if len(resp.Body) > 0 && json.Unmarshal(resp.Body, &envelope) == nil && envelope.Code != 0 {
		resp.Envelope = &envelope
	}
	return resp, nil
}
