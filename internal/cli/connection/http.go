package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yndnr/pairlink-go/internal/infra/buildinfo"
)

// RequestTimeout bounds plain API calls.
const RequestTimeout = 30 * time.Second

// HTTPClient provides HTTP communication with the server.
type HTTPClient struct {
	baseURL  string
	client   *http.Client
	apiKeyID string
	apiKey   string
}

// UnixScheme selects the server's local socket, e.g.
// unix:///run/pairlink/pairlink.sock.
const UnixScheme = "unix://"

// NewHTTPClient creates a new HTTP client.
func NewHTTPClient(server, apiKeyID, apiKey string) *HTTPClient {
	// Long-polls are bounded by the caller's context.
	client := &http.Client{}

	var baseURL string
	if path, ok := strings.CutPrefix(server, UnixScheme); ok {
		baseURL = "http://unix"
		client.Transport = &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", path)
			},
		}
	} else {
		baseURL = strings.TrimRight(server, "/")
		if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
			baseURL = "http://" + baseURL
		}
	}

	return &HTTPClient{
		baseURL:  baseURL,
		apiKeyID: apiKeyID,
		apiKey:   apiKey,
		client:   client,
	}
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with JSON body.
func (c *HTTPClient) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Delete performs a DELETE request.
func (c *HTTPClient) Delete(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.addHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// addHeaders adds authentication and common headers.
func (c *HTTPClient) addHeaders(req *http.Request) {
	if c.apiKeyID != "" && c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKeyID+":"+c.apiKey)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent("pairlink-cli"))
}

// BaseURL returns the base URL of the client.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// APIError is a failed API call.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if s, ok := e.Details.(string); ok && s != "" {
		msg += ": " + s
	}
	return msg
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// PendingCode marks a 202 answer: the operation is still in progress and
// the body carries the latest snapshot.
const PendingCode = "PL-SESS-2020"

// envelope is the server's response wrapper.
type envelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Details   any             `json:"details"`
}

// ParseResponse decodes the envelope and its data into target. A 202
// answer decodes target and reports pending as true.
func ParseResponse(resp *http.Response, target any) (pending bool, err error) {
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&env)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Code, apiErr.Message, apiErr.Details = env.Code, env.Message, env.Details
		}
		return false, apiErr
	}
	if decodeErr != nil {
		return false, fmt.Errorf("parse response: %w", decodeErr)
	}

	if target != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, target); err != nil {
			return false, fmt.Errorf("parse response data: %w", err)
		}
	}
	return resp.StatusCode == http.StatusAccepted || env.Code == PendingCode, nil
}

// CheckRaw returns an APIError for a failed non-JSON download and closes
// the body in that case.
func CheckRaw(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	_, err := ParseResponse(resp, nil)
	return err
}
