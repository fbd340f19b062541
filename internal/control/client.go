package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/beacon/internal/lifecycle"
	"github.com/alfredjeanlab/beacon/internal/model"
)

// Client talks to a running daemon's control API. Used by the CLI
// subcommands and by host-application glue.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a control client for the daemon at baseURL
// (e.g. "http://127.0.0.1:7320"). When token is non-empty, an Authorization
// header is set on every request.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Status holds the daemon's view of the current session.
type Status struct {
	Identity string        `json:"identity"`
	Session  model.Session `json:"session"`
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.doJSON(ctx, http.MethodGet, "/v1/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) Activate(ctx context.Context, req *ActivateRequest) (*Status, error) {
	var st Status
	if err := c.doJSON(ctx, http.MethodPost, "/v1/activate", req, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) Cancel(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.doJSON(ctx, http.MethodPost, "/v1/cancel", struct{}{}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) Sessions(ctx context.Context, limit int) ([]*model.SessionRecord, error) {
	path := "/v1/sessions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Sessions []*model.SessionRecord `json:"sessions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *Client) ReportFix(ctx context.Context, req *ActivateRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/fix", req, nil)
}

func (c *Client) ReportLifecycle(ctx context.Context, state lifecycle.State) error {
	body := map[string]lifecycle.State{"state": state}
	return c.doJSON(ctx, http.MethodPost, "/v1/lifecycle", body, nil)
}

func (c *Client) Login(ctx context.Context, identity, credential string) error {
	body := map[string]string{"identity": identity}
	if credential != "" {
		body["credential"] = credential
	}
	return c.doJSON(ctx, http.MethodPost, "/v1/login", body, nil)
}

func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/v1/health", nil, nil)
}

// APIError represents an error response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs an HTTP request with optional JSON body and decodes the
// JSON response. If result is nil, the response body is discarded.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, result any) error {
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
