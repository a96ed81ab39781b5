package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/billbot/node/internal/identity"
	"github.com/billbot/node/internal/protocol"
	"github.com/billbot/node/internal/settings"
)

const testTimeout = 5 * time.Second

// fakeGateway accepts WebSocket upgrades and hands each connection to the test.
type fakeGateway struct {
	srv    *httptest.Server
	conns  chan *websocket.Conn
	tokens chan string
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	gw := &fakeGateway{
		conns:  make(chan *websocket.Conn, 4),
		tokens: make(chan string, 4),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	gw.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gw.tokens <- r.URL.Query().Get("token")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		gw.conns <- conn
	}))
	t.Cleanup(gw.srv.Close)
	return gw
}

func (gw *fakeGateway) settings(token string) *settings.MemoryRepository {
	addr := gw.srv.Listener.Addr().(*net.TCPAddr)
	s := settings.Defaults()
	s.GatewayHost = addr.IP.String()
	s.GatewayPort = addr.Port
	s.GatewayToken = token
	return settings.NewMemoryRepository(s)
}

func (gw *fakeGateway) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-gw.conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(testTimeout):
		t.Fatal("no connection from node")
		return nil
	}
}

// handshake plays the gateway side: challenge, read connect request, reply.
// Errors are reported with t.Error so it can run in a goroutine.
func handshake(t *testing.T, conn *websocket.Conn, challenge string, reply func(req protocol.ConnectRequest) map[string]any) protocol.ConnectRequest {
	t.Helper()
	var req protocol.ConnectRequest

	if err := conn.WriteMessage(websocket.TextMessage, []byte(challenge)); err != nil {
		t.Errorf("write challenge: %v", err)
		return req
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Errorf("read connect request: %v", err)
		return req
	}
	if err := json.Unmarshal(data, &req); err != nil {
		t.Errorf("decode connect request: %v", err)
		return req
	}
	if err := conn.WriteJSON(reply(req)); err != nil {
		t.Errorf("write connect response: %v", err)
	}
	return req
}

func accepted(req protocol.ConnectRequest) map[string]any {
	return map[string]any{
		"type": "res",
		"id":   req.ID,
		"ok":   true,
		"payload": map[string]any{
			"type":     "hello-ok",
			"protocol": 3,
			"policy":   map[string]int64{"tickIntervalMs": 30000},
			"auth":     map[string]any{"deviceToken": "dt-1", "role": "node", "scopes": []string{}},
		},
		"error": nil,
	}
}

func rejected(msg string) func(protocol.ConnectRequest) map[string]any {
	return func(req protocol.ConnectRequest) map[string]any {
		return map[string]any{"type": "res", "id": req.ID, "ok": false, "payload": nil, "error": msg}
	}
}

type fakeSigner struct {
	mu     sync.Mutex
	nonces []string
	err    error
}

func (f *fakeSigner) Assert(_ context.Context, nonce string) (*identity.SignedAssertion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonces = append(f.nonces, nonce)
	if f.err != nil {
		return nil, f.err
	}
	if nonce == "" {
		nonce = "self-generated"
	}
	return &identity.SignedAssertion{
		DeviceID:  "linux-test-amd64-deadbeef",
		PublicKey: "cHVibGlj",
		Signature: "c2ln",
		SignedAt:  1700000000000,
		Nonce:     nonce,
	}, nil
}

// fakeDispatcher answers every request with success, or blocks until the
// request context ends when block is set.
type fakeDispatcher struct {
	block     bool
	cancelled chan struct{}
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, req protocol.InvokeRequest) protocol.InvokeResponse {
	if f.block {
		<-ctx.Done()
		close(f.cancelled)
	}
	return protocol.Success(req.ID, map[string]string{"method": req.Method})
}

type staticPermissions map[string]bool

func (p staticPermissions) Permissions() map[string]bool { return p }

func newTestManager(t *testing.T, store SettingsStore, signer Signer, d Dispatcher, opts Options) *Manager {
	t.Helper()
	m, err := New(Deps{
		Settings:    store,
		Signer:      signer,
		Dispatcher:  d,
		Permissions: staticPermissions{"accessibility": true},
	}, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m
}

// connect runs Connect while the gateway side completes the handshake.
func connect(t *testing.T, gw *fakeGateway, m *Manager, reply func(protocol.ConnectRequest) map[string]any) (protocol.ConnectRequest, *websocket.Conn, error) {
	t.Helper()
	result := make(chan error, 1)
	go func() { result <- m.Connect(context.Background()) }()

	conn := gw.accept(t)
	req := handshake(t, conn, `{"type":"event","event":"connect.challenge","payload":{"nonce":"n-1"}}`, reply)

	select {
	case err := <-result:
		return req, conn, err
	case <-time.After(testTimeout):
		t.Fatal("Connect() did not return")
		return req, conn, nil
	}
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if m.Status().State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", m.Status().State, want)
}
