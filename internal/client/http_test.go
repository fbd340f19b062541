package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alfredjeanlab/beacon/internal/model"
)

// testHandler captures the incoming request details and returns a canned response.
type testHandler struct {
	// captured from the request
	method      string
	path        string
	body        string
	contentType string
	authz       string

	// canned response
	statusCode   int
	responseBody string
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.method = r.Method
	h.path = r.URL.Path
	h.contentType = r.Header.Get("Content-Type")
	h.authz = r.Header.Get("Authorization")
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		h.body = string(data)
	}

	w.Header().Set("Content-Type", "application/json")
	if h.statusCode != 0 {
		w.WriteHeader(h.statusCode)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if h.responseBody != "" {
		_, _ = w.Write([]byte(h.responseBody))
	}
}

// newTestClient creates an HTTPClient pointed at a test server with the given handler.
func newTestClient(h http.Handler, token string) (*HTTPClient, *httptest.Server) {
	srv := httptest.NewServer(h)
	c := NewHTTPClient(srv.URL, token)
	return c, srv
}

func testFix() model.PositionFix {
	return model.PositionFix{Latitude: 14.5995, Longitude: 120.9842, Accuracy: 12, CapturedAt: time.Now()}
}

func TestSend(t *testing.T) {
	h := &testHandler{responseBody: `{"address":"12 Example St, Manila"}`}
	c, srv := newTestClient(h, "tok-123")
	defer srv.Close()

	resp, err := c.Send(context.Background(), "u1", testFix())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Address != "12 Example St, Manila" {
		t.Errorf("address = %q", resp.Address)
	}
	if h.method != http.MethodPost || h.path != "/sos/send" {
		t.Errorf("request = %s %s, want POST /sos/send", h.method, h.path)
	}
	if h.contentType != "application/json" {
		t.Errorf("content type = %q", h.contentType)
	}
	if h.authz != "Bearer tok-123" {
		t.Errorf("authorization = %q", h.authz)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(h.body), &body); err != nil {
		t.Fatalf("unmarshaling captured body: %v", err)
	}
	if body["identity"] != "u1" {
		t.Errorf("identity = %v", body["identity"])
	}
	if body["latitude"].(float64) != 14.5995 || body["longitude"].(float64) != 120.9842 {
		t.Errorf("coordinates = %v, %v", body["latitude"], body["longitude"])
	}
	if _, has := body["accuracy"]; has {
		t.Error("accuracy leaked into wire payload")
	}
}

func TestSend_Conflict(t *testing.T) {
	h := &testHandler{statusCode: http.StatusConflict, responseBody: `{"error":"sos already active"}`}
	c, srv := newTestClient(h, "")
	defer srv.Close()

	_, err := c.Send(context.Background(), "u1", testFix())
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "sos already active" {
		t.Errorf("err = %#v, want APIError with backend message", err)
	}
}

func TestCancel(t *testing.T) {
	h := &testHandler{statusCode: http.StatusNoContent}
	c, srv := newTestClient(h, "")
	defer srv.Close()

	if err := c.Cancel(context.Background(), "u1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if h.method != http.MethodPost || h.path != "/sos/cancel" {
		t.Errorf("request = %s %s, want POST /sos/cancel", h.method, h.path)
	}
	if h.authz != "" {
		t.Errorf("authorization sent without token: %q", h.authz)
	}
}

func TestCancel_NotFound(t *testing.T) {
	h := &testHandler{statusCode: http.StatusNotFound, responseBody: `{"error":"no active sos"}`}
	c, srv := newTestClient(h, "")
	defer srv.Close()

	err := c.Cancel(context.Background(), "u1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestActive(t *testing.T) {
	for _, tc := range []struct {
		name       string
		statusCode int
		body       string
		want       bool
		wantErr    error
	}{
		{name: "Active", body: `{"hasActiveSOS":true}`, want: true},
		{name: "Inactive", body: `{"hasActiveSOS":false}`, want: false},
		{name: "NotFound", statusCode: http.StatusNotFound, body: `{"error":"unknown identity"}`, wantErr: ErrNotFound},
		{name: "Unauthorized", statusCode: http.StatusUnauthorized, body: `{"error":"bad credential"}`, wantErr: ErrUnauthorized},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := &testHandler{statusCode: tc.statusCode, responseBody: tc.body}
			c, srv := newTestClient(h, "")
			defer srv.Close()

			active, err := c.Active(context.Background(), "user with spaces")
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Active: %v", err)
			}
			if active != tc.want {
				t.Errorf("active = %v, want %v", active, tc.want)
			}
			if h.path != "/sos/active/user%20with%20spaces" && h.path != "/sos/active/user with spaces" {
				t.Errorf("path = %q", h.path)
			}
		})
	}
}

func TestAPIError_PlainBody(t *testing.T) {
	h := &testHandler{statusCode: http.StatusInternalServerError, responseBody: "boom"}
	c, srv := newTestClient(h, "")
	defer srv.Close()

	_, err := c.Active(context.Background(), "u1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError || apiErr.Message != "boom" {
		t.Errorf("apiErr = %#v", apiErr)
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrConflict) {
		t.Error("500 mapped onto a sentinel")
	}
}
