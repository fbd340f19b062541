package control

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/beacon/internal/client"
	"github.com/alfredjeanlab/beacon/internal/engine"
	"github.com/alfredjeanlab/beacon/internal/events"
	"github.com/alfredjeanlab/beacon/internal/lifecycle"
	"github.com/alfredjeanlab/beacon/internal/model"
	"github.com/alfredjeanlab/beacon/internal/store"
)

// stubClient is an SOSClient whose backend always cooperates.
type stubClient struct{}

func (stubClient) Send(ctx context.Context, identity string, fix model.PositionFix) (*client.SendResponse, error) {
	return &client.SendResponse{Address: "12 Example St"}, nil
}
func (stubClient) Cancel(ctx context.Context, identity string) error        { return nil }
func (stubClient) Active(ctx context.Context, identity string) (bool, error) { return true, nil }
func (stubClient) Close() error                                             { return nil }

type stubStreamer struct{}

func (stubStreamer) Start() {}
func (stubStreamer) Stop()  {}

// mapStore is an in-memory store.Store for control tests.
type mapStore struct {
	mu       sync.Mutex
	settings map[string]string
	sessions []*model.SessionRecord
}

func newMapStore() *mapStore { return &mapStore{settings: make(map[string]string)} }

func (m *mapStore) GetSetting(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (m *mapStore) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *mapStore) DeleteSetting(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.settings, key)
	return nil
}

func (m *mapStore) CreateSession(ctx context.Context, rec *model.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.sessions = append(m.sessions, &cp)
	return nil
}

func (m *mapStore) UpdateSessionFix(ctx context.Context, id string, lat, lng float64, address string) error {
	return nil
}

func (m *mapStore) FinalizeSession(ctx context.Context, id string, endedAt time.Time, reason model.TerminationReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.sessions {
		if rec.ID == id && rec.EndedAt == nil {
			t := endedAt
			rec.EndedAt = &t
			rec.Reason = reason
		}
	}
	return nil
}

func (m *mapStore) OpenSession(ctx context.Context, identity string) (*model.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sessions) - 1; i >= 0; i-- {
		if m.sessions[i].Identity == identity && m.sessions[i].EndedAt == nil {
			cp := *m.sessions[i]
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mapStore) ListSessions(ctx context.Context, identity string, limit int) ([]*model.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.SessionRecord
	for i := len(m.sessions) - 1; i >= 0; i-- {
		cp := *m.sessions[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mapStore) Close() error { return nil }

// newTestServer wires a real engine with stub collaborators behind the control
// handler.
func newTestServer(t *testing.T, token string) (*httptest.Server, *Server, *engine.Engine, *lifecycle.Observer) {
	t.Helper()
	obs := lifecycle.NewObserver()
	st := newMapStore()
	eng := engine.New(engine.Options{
		Client:  stubClient{},
		Channel: events.NoopChannel{},
		Store:   st,
		Samplers: func(string, *model.PositionFix, func(model.PositionFix, string), func(error)) engine.FixStreamer {
			return stubStreamer{}
		},
		Lifecycle:    obs,
		PollInterval: time.Hour,
	})
	t.Cleanup(eng.Close)

	s := NewServer(eng, st, obs, nil)
	srv := httptest.NewServer(s.NewHTTPHandler(token))
	t.Cleanup(srv.Close)
	return srv, s, eng, obs
}

func doRequest(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestAuthMiddleware(t *testing.T) {
	srv, _, _, _ := newTestServer(t, "secret")

	// Health is always exempt.
	resp := doRequest(t, http.MethodGet, srv.URL+"/v1/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/v1/status", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no-token status = %d, want 401", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/v1/status", "wrong", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad-token status = %d, want 401", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/v1/status", "secret", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("good-token status = %d, want 200", resp.StatusCode)
	}
}

func TestLoginAndStatus(t *testing.T) {
	srv, _, eng, _ := newTestServer(t, "")

	resp := doRequest(t, http.MethodPost, srv.URL+"/v1/login", "",
		map[string]string{"identity": "u1", "credential": "cred"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	if eng.Identity() != "u1" {
		t.Errorf("engine identity = %q", eng.Identity())
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/v1/status", "", nil)
	var body struct {
		Identity string        `json:"identity"`
		Session  model.Session `json:"session"`
	}
	decodeBody(t, resp, &body)
	if body.Identity != "u1" {
		t.Errorf("status identity = %q", body.Identity)
	}
	if body.Session.State != model.StateInactive {
		t.Errorf("status state = %s", body.Session.State)
	}
}

func TestLogin_MissingIdentity(t *testing.T) {
	srv, _, _, _ := newTestServer(t, "")

	resp := doRequest(t, http.MethodPost, srv.URL+"/v1/login", "", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestActivateAndCancel(t *testing.T) {
	srv, _, eng, _ := newTestServer(t, "")

	doRequest(t, http.MethodPost, srv.URL+"/v1/login", "", map[string]string{"identity": "u1"})

	resp := doRequest(t, http.MethodPost, srv.URL+"/v1/activate", "",
		map[string]float64{"latitude": 14.6, "longitude": 121.0, "accuracy": 20})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate status = %d", resp.StatusCode)
	}
	var body struct {
		Session model.Session `json:"session"`
	}
	decodeBody(t, resp, &body)
	if body.Session.State != model.StateActive {
		t.Errorf("state = %s, want active", body.Session.State)
	}

	resp = doRequest(t, http.MethodPost, srv.URL+"/v1/cancel", "", map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if eng.Snapshot().State == model.StateInactive {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := eng.Snapshot().TerminationReason; got != model.ReasonUserCancelled {
		t.Errorf("reason = %s, want user_cancelled", got)
	}
}

func TestActivate_ErrorMapping(t *testing.T) {
	srv, _, _, _ := newTestServer(t, "")

	// No identity configured yet.
	resp := doRequest(t, http.MethodPost, srv.URL+"/v1/activate", "",
		map[string]float64{"latitude": 14.6, "longitude": 121.0})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("no-identity status = %d, want 409", resp.StatusCode)
	}

	doRequest(t, http.MethodPost, srv.URL+"/v1/login", "", map[string]string{"identity": "u1"})

	// A stale fix maps to 422.
	stale := time.Now().Add(-10 * time.Minute)
	resp = doRequest(t, http.MethodPost, srv.URL+"/v1/activate", "",
		map[string]any{"latitude": 14.6, "longitude": 121.0, "captured_at": stale})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("stale-fix status = %d, want 422", resp.StatusCode)
	}
}

func TestListSessions_RequiresIdentity(t *testing.T) {
	srv, _, _, _ := newTestServer(t, "")

	resp := doRequest(t, http.MethodGet, srv.URL+"/v1/sessions", "", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestLifecycleEndpoint(t *testing.T) {
	srv, _, _, obs := newTestServer(t, "")

	resp := doRequest(t, http.MethodPost, srv.URL+"/v1/lifecycle", "",
		map[string]string{"state": "background"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if obs.State() != lifecycle.Background {
		t.Errorf("observer state = %s, want background", obs.State())
	}

	resp = doRequest(t, http.MethodPost, srv.URL+"/v1/lifecycle", "",
		map[string]string{"state": "minimized"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid-state status = %d, want 400", resp.StatusCode)
	}
}

type recordingSink struct {
	mu    sync.Mutex
	fixes []model.PositionFix
}

func (s *recordingSink) Set(fix model.PositionFix) {
	s.mu.Lock()
	s.fixes = append(s.fixes, fix)
	s.mu.Unlock()
}

func TestReportFix(t *testing.T) {
	srv, ctrl, _, _ := newTestServer(t, "")

	// Without a sink the endpoint reports that fix feeding is disabled.
	resp := doRequest(t, http.MethodPost, srv.URL+"/v1/fix", "",
		map[string]float64{"latitude": 14.6, "longitude": 121.0})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("no-sink status = %d, want 409", resp.StatusCode)
	}

	sink := &recordingSink{}
	ctrl.SetFixSink(sink)

	resp = doRequest(t, http.MethodPost, srv.URL+"/v1/fix", "",
		map[string]float64{"latitude": 14.6, "longitude": 121.0, "accuracy": 8})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.fixes) != 1 {
		t.Fatalf("sink received %d fixes, want 1", len(sink.fixes))
	}
	fix := sink.fixes[0]
	if fix.Latitude != 14.6 || fix.Longitude != 121.0 || fix.Accuracy != 8 {
		t.Errorf("fix = %+v", fix)
	}
	if fix.CapturedAt.IsZero() {
		t.Error("CapturedAt not defaulted to the request time")
	}
}

func TestReportFix_RejectsInvalid(t *testing.T) {
	srv, ctrl, _, _ := newTestServer(t, "")
	ctrl.SetFixSink(&recordingSink{})

	resp := doRequest(t, http.MethodPost, srv.URL+"/v1/fix", "",
		map[string]float64{"latitude": 200, "longitude": 0})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestEventStream_BroadcastsTransitions(t *testing.T) {
	srv, _, _, _ := newTestServer(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("opening stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	doRequest(t, http.MethodPost, srv.URL+"/v1/login", "", map[string]string{"identity": "u1"})
	doRequest(t, http.MethodPost, srv.URL+"/v1/activate", "",
		map[string]float64{"latitude": 14.6, "longitude": 121.0})

	scanner := bufio.NewScanner(resp.Body)
	var sawTransition bool
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: transition" {
			sawTransition = true
		}
		if sawTransition && strings.HasPrefix(line, "data: ") {
			var sess model.Session
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &sess); err != nil {
				t.Fatalf("decoding transition payload: %v", err)
			}
			if !sess.State.Valid() {
				t.Errorf("transition state = %q", sess.State)
			}
			return
		}
	}
	t.Fatal("stream ended without a transition event")
}
