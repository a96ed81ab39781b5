package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/billbot/node/internal/capability"
	"github.com/billbot/node/internal/dispatch"
	"github.com/billbot/node/internal/gateway"
	"github.com/billbot/node/internal/infrastructure/config"
	"github.com/billbot/node/internal/infrastructure/logging"
	"github.com/billbot/node/internal/settings"
)

// mockGateway is a scripted GatewayController.
type mockGateway struct {
	status        gateway.Status
	connectErr    error
	disconnectErr error
	connects      int
	disconnects   int
}

func (m *mockGateway) Connect(context.Context) error {
	m.connects++
	if m.connectErr == nil {
		m.status.State = gateway.StateConnected
		m.status.Connection = gateway.Connected
	}
	return m.connectErr
}

func (m *mockGateway) Disconnect(context.Context) error {
	m.disconnects++
	if m.disconnectErr == nil {
		m.status.State = gateway.StateIdle
		m.status.Connection = gateway.Disconnected
	}
	return m.disconnectErr
}

func (m *mockGateway) Status() gateway.Status { return m.status }

type staticCaps []capability.Descriptor

func (s staticCaps) Descriptors() []capability.Descriptor { return s }

type staticStats dispatch.StatsSnapshot

func (s staticStats) Snapshot() dispatch.StatsSnapshot { return dispatch.StatsSnapshot(s) }

type staticBroker bool

func (b staticBroker) IsConnected() bool { return bool(b) }

func (b staticBroker) Subscriptions() []string {
	return []string{"billbot/nodes/node-1/control"}
}

type testEnv struct {
	srv      *Server
	gw       *mockGateway
	settings *settings.MemoryRepository
	handler  http.Handler
}

func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	gw := &mockGateway{status: gateway.Status{State: gateway.StateIdle, Connection: gateway.Disconnected}}

	stored := settings.Defaults()
	stored.GatewayHost = "gw.local"
	stored.GatewayToken = "gw-secret"
	stored.DeviceID = "linux-lab-amd64-1a2b3c4d"
	stored.DeviceToken = "dev-secret"
	repo := settings.NewMemoryRepository(stored)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:  "127.0.0.1",
			Token: token,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		Logger:   log,
		Gateway:  gw,
		Settings: repo,
		Capabilities: staticCaps{
			{Name: capability.KindScreen, Permission: capability.PermissionScreenCapture, Available: true},
			{Name: capability.KindSystem, Permission: capability.PermissionSystemLaunch, Available: false},
		},
		Stats:   staticStats{Total: 3, Failed: 1, ByMethod: map[string]int64{"tap": 2, "unknown": 1}},
		MQTT:    staticBroker(true),
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return &testEnv{srv: srv, gw: gw, settings: repo, handler: srv.buildRouter()}
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestNew_RequiresDeps(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error"}, "test")
	repo := settings.NewMemoryRepository(settings.Defaults())

	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Gateway: &mockGateway{}, Settings: repo}},
		{"no gateway", Deps{Logger: log, Settings: repo}},
		{"no settings", Deps{Logger: log, Gateway: &mockGateway{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() expected error")
			}
		})
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "api-token")

	rec := env.do(t, http.MethodGet, "/api/v1/health", "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestRequestID_Preserved(t *testing.T) {
	env := newTestEnv(t, "")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()

	env.handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, "api-token")

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"wrong token", "nope", http.StatusUnauthorized},
		{"valid token", "api-token", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/v1/status", "", tt.token)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAuth_DisabledWithoutToken(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodGet, "/api/v1/status", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, "")
	env.gw.status = gateway.Status{
		State:      gateway.StateFailed,
		Connection: gateway.Disconnected,
		LastError:  "bad token",
		DeviceID:   "linux-lab-amd64-1a2b3c4d",
	}

	rec := env.do(t, http.MethodGet, "/api/v1/status", "", "")

	got := decode[gateway.Status](t, rec)
	if got.State != gateway.StateFailed || got.LastError != "bad token" || got.DeviceID == "" {
		t.Errorf("status = %+v", got)
	}
}

func TestConnect(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		lastError  string
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{name: "success", wantStatus: http.StatusOK},
		{name: "already connected", err: gateway.ErrAlreadyConnected, wantStatus: http.StatusConflict, wantCode: ErrCodeConflict},
		{name: "no gateway", err: gateway.ErrNoGateway, wantStatus: http.StatusUnprocessableEntity, wantCode: ErrCodeValidation},
		{
			name:       "rejected",
			err:        &gateway.HandshakeRejectedError{Message: "device not paired"},
			lastError:  "device not paired",
			wantStatus: http.StatusBadGateway,
			wantCode:   ErrCodeGateway,
			wantMsg:    "device not paired",
		},
		{
			name:       "transport failure",
			err:        &gateway.TransportError{Op: "dial", Err: errors.New("connection refused")},
			wantStatus: http.StatusBadGateway,
			wantCode:   ErrCodeGateway,
			wantMsg:    "gateway: dial: connection refused",
		},
		{name: "aborted", err: context.Canceled, wantStatus: http.StatusGatewayTimeout, wantCode: ErrCodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "")
			env.gw.connectErr = tt.err
			env.gw.status.LastError = tt.lastError

			rec := env.do(t, http.MethodPost, "/api/v1/connect", "", "")

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if env.gw.connects != 1 {
				t.Errorf("Connect calls = %d, want 1", env.gw.connects)
			}
			if tt.wantCode == "" {
				got := decode[gateway.Status](t, rec)
				if got.Connection != gateway.Connected {
					t.Errorf("connection = %q, want Connected", got.Connection)
				}
				return
			}
			apiErr := decode[Error](t, rec)
			if apiErr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", apiErr.Code, tt.wantCode)
			}
			if tt.wantMsg != "" && apiErr.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", apiErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestDisconnect(t *testing.T) {
	env := newTestEnv(t, "")
	env.gw.status = gateway.Status{State: gateway.StateConnected, Connection: gateway.Connected}

	rec := env.do(t, http.MethodPost, "/api/v1/disconnect", "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decode[gateway.Status](t, rec); got.Connection != gateway.Disconnected {
		t.Errorf("connection = %q, want Disconnected", got.Connection)
	}
}

func TestDisconnect_Timeout(t *testing.T) {
	env := newTestEnv(t, "")
	env.gw.disconnectErr = context.DeadlineExceeded

	rec := env.do(t, http.MethodPost, "/api/v1/disconnect", "", "")

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
}

func TestGetSettings_Redacted(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodGet, "/api/v1/settings", "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[settings.Settings](t, rec)
	if got.GatewayToken != "********" || got.DeviceToken != "********" {
		t.Errorf("secrets not redacted: %+v", got)
	}
	if got.GatewayHost != "gw.local" || got.GatewayPort != settings.DefaultGatewayPort {
		t.Errorf("settings = %+v", got)
	}
}

func TestGetSettings_NotSeeded(t *testing.T) {
	env := newTestEnv(t, "")
	env.srv.settings = &settings.MemoryRepository{}

	rec := env.do(t, http.MethodGet, "/api/v1/settings", "", "")

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestUpdateSettings(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		check      func(t *testing.T, s *settings.Settings)
	}{
		{
			name:       "partial update",
			body:       `{"gateway_host":" gw2.local ","gateway_port":9000}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, s *settings.Settings) {
				if s.GatewayHost != "gw2.local" || s.GatewayPort != 9000 {
					t.Errorf("settings = %+v", s)
				}
				if s.GatewayToken != "gw-secret" || s.DisplayName != settings.DefaultDisplayName {
					t.Errorf("untouched fields changed: %+v", s)
				}
			},
		},
		{
			name:       "token update",
			body:       `{"gateway_token":"rotated"}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, s *settings.Settings) {
				if s.GatewayToken != "rotated" {
					t.Errorf("GatewayToken = %q, want rotated", s.GatewayToken)
				}
			},
		},
		{
			name:       "invalid port",
			body:       `{"gateway_port":70000}`,
			wantStatus: http.StatusUnprocessableEntity,
			check: func(t *testing.T, s *settings.Settings) {
				if s.GatewayPort != settings.DefaultGatewayPort {
					t.Errorf("GatewayPort = %d, want unchanged", s.GatewayPort)
				}
			},
		},
		{
			name:       "empty display name",
			body:       `{"display_name":"   "}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "malformed json",
			body:       `{"gateway_port":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "device id is not editable",
			body:       `{"device_id":"other"}`,
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, s *settings.Settings) {
				if s.DeviceID != "linux-lab-amd64-1a2b3c4d" {
					t.Errorf("DeviceID = %q, want unchanged", s.DeviceID)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "")

			rec := env.do(t, http.MethodPut, "/api/v1/settings", tt.body, "")

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if rec.Code == http.StatusOK {
				if got := decode[settings.Settings](t, rec); got.GatewayToken != "********" {
					t.Errorf("response token not redacted: %q", got.GatewayToken)
				}
			}
			if tt.check != nil {
				stored, err := env.settings.Load(context.Background())
				if err != nil {
					t.Fatalf("Load: %v", err)
				}
				tt.check(t, stored)
			}
		})
	}
}

func TestCapabilities(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodGet, "/api/v1/capabilities", "", "")

	body := decode[struct {
		Capabilities []capability.Descriptor `json:"capabilities"`
	}](t, rec)
	if len(body.Capabilities) != 2 {
		t.Fatalf("capabilities = %+v, want 2", body.Capabilities)
	}
	if !body.Capabilities[0].Available || body.Capabilities[1].Available {
		t.Errorf("availability = %+v", body.Capabilities)
	}
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, "")
	env.srv.startTime = time.Now().Add(-time.Minute)

	rec := env.do(t, http.MethodGet, "/api/v1/metrics", "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	m := decode[SystemMetrics](t, rec)
	if m.Version != "test" || m.UptimeSeconds < 60 {
		t.Errorf("metrics header = %+v", m)
	}
	if m.Runtime.Goroutines == 0 {
		t.Error("runtime goroutines not reported")
	}
	if m.Commands == nil || m.Commands.Total != 3 || m.Commands.ByMethod["unknown"] != 1 {
		t.Errorf("commands = %+v", m.Commands)
	}
	if m.MQTT == nil || !m.MQTT.Connected || len(m.MQTT.Subscriptions) != 1 {
		t.Errorf("mqtt = %+v", m.MQTT)
	}
	if m.Database != nil {
		t.Errorf("database = %+v, want omitted without DB", m.Database)
	}
	if m.Gateway.State != gateway.StateIdle {
		t.Errorf("gateway state = %q", m.Gateway.State)
	}
}

func TestRecovery(t *testing.T) {
	env := newTestEnv(t, "")
	env.srv.caps = panickingCaps{}

	rec := env.do(t, http.MethodGet, "/api/v1/capabilities", "", "")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

type panickingCaps struct{}

func (panickingCaps) Descriptors() []capability.Descriptor { panic("boom") }

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, "")

	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start expected error")
	}
	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() before Start error = %v", err)
	}
}
