package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/alfredjeanlab/beacon/internal/model"
)

// Sentinel errors mapped from backend responses. Callers classify with
// errors.Is rather than inspecting status codes.
var (
	// ErrNotFound is returned when the backend has no record for the
	// identity (404).
	ErrNotFound = errors.New("sos record not found")

	// ErrUnauthorized is returned on 401. The bearer credential is invalid;
	// handling is deferred to the auth collaborator.
	ErrUnauthorized = errors.New("credential invalid")

	// ErrConflict is returned on 409, when the backend reports a session
	// already active under another flow.
	ErrConflict = errors.New("session already active remotely")
)

// HTTPClient implements SOSClient against the backend's HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ SOSClient = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "https://sos.example.com"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func (c *HTTPClient) Send(ctx context.Context, identity string, fix model.PositionFix) (*SendResponse, error) {
	body := map[string]any{
		"identity":  identity,
		"latitude":  fix.Latitude,
		"longitude": fix.Longitude,
	}
	var resp SendResponse
	if err := c.doJSON(ctx, http.MethodPost, "/sos/send", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Cancel(ctx context.Context, identity string) error {
	body := map[string]string{"identity": identity}
	return c.doJSON(ctx, http.MethodPost, "/sos/cancel", body, nil)
}

func (c *HTTPClient) Active(ctx context.Context, identity string) (bool, error) {
	var resp struct {
		HasActiveSOS bool `json:"hasActiveSOS"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/sos/active/"+url.PathEscape(identity), nil, &resp); err != nil {
		return false, err
	}
	return resp.HasActiveSOS, nil
}

// --- internal helpers ---

// APIError represents an error response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Is maps well-known status codes onto the package sentinels so callers can
// use errors.Is without reaching into the struct.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	}
	return false
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON
// response. If result is nil, the response body is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
