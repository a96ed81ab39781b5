package gateway

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/billbot/node/internal/identity"
	"github.com/billbot/node/internal/protocol"
	"github.com/billbot/node/internal/settings"
)

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SettingsStore supplies the gateway endpoint and keeps the issued device token.
type SettingsStore interface {
	Load(ctx context.Context) (*settings.Settings, error)
	SetDeviceToken(ctx context.Context, token string) error
}

// Signer answers the gateway challenge.
type Signer interface {
	Assert(ctx context.Context, nonce string) (*identity.SignedAssertion, error)
}

// Dispatcher executes command requests.
type Dispatcher interface {
	Dispatch(ctx context.Context, req protocol.InvokeRequest) protocol.InvokeResponse
}

// PermissionSource reports capability availability for the handshake.
type PermissionSource interface {
	Permissions() map[string]bool
}

// Deps holds the collaborators of a Manager.
type Deps struct {
	Settings    SettingsStore
	Signer      Signer
	Dispatcher  Dispatcher
	Permissions PermissionSource
}

// Options configures the connect request and transport.
type Options struct {
	ClientID  string
	Platform  string
	Locale    string
	UserAgent string
	Caps      []string
	Commands  []string

	// TLS selects wss:// instead of ws://.
	TLS bool

	// HandshakeTimeout bounds dialing, the challenge and the connect
	// response together. Zero waits indefinitely.
	HandshakeTimeout time.Duration

	// PingInterval is how often a connected session pings the gateway.
	// The session fails when nothing arrives from the gateway within
	// PingInterval+PongTimeout. Zero disables keepalive.
	PingInterval time.Duration
	PongTimeout  time.Duration

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	Logger Logger
}

// Manager owns the gateway connection.
//
// All methods are safe for concurrent use.
type Manager struct {
	deps   Deps
	opts   Options
	dialer *websocket.Dialer
	logger Logger
	now    func() time.Time

	mu            sync.Mutex
	state         State
	since         time.Time
	lastErr       error
	protocol      int
	policy        map[string]int64
	deviceID      string
	gateway       string
	session       *session
	last          *session
	cancelAttempt context.CancelFunc
	attemptDone   chan struct{}
	observers     []func(StateChange)
}

// New creates a Manager in the Idle state.
func New(deps Deps, opts Options) (*Manager, error) {
	if deps.Settings == nil {
		return nil, fmt.Errorf("settings store is required")
	}
	if deps.Signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	m := &Manager{
		deps:   deps,
		opts:   opts,
		dialer: opts.Dialer,
		logger: opts.Logger,
		now:    time.Now,
		state:  StateIdle,
	}
	if m.dialer == nil {
		m.dialer = websocket.DefaultDialer
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}
	m.since = m.now()
	return m, nil
}

// OnStateChange registers fn for state transitions. fn is called outside
// the manager lock.
func (m *Manager) OnStateChange(fn func(StateChange)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Status{
		State:      m.state,
		Connection: m.state.Connection(),
		LastError:  errorText(m.lastErr),
		Since:      m.since,
		Protocol:   m.protocol,
		Policy:     maps.Clone(m.policy),
		DeviceID:   m.deviceID,
		Gateway:    m.gateway,
	}
}

// Connect opens a session and performs the handshake. It returns once the
// gateway accepted (nil) or the attempt ended. Only an Idle or Failed
// manager can connect.
//
// The session outlives ctx; ctx bounds the handshake only.
func (m *Manager) Connect(ctx context.Context) error {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	if m.state != StateIdle && m.state != StateFailed {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	done := make(chan struct{})
	defer close(done)
	m.cancelAttempt = cancel
	m.attemptDone = done
	m.lastErr = nil
	m.protocol = 0
	m.policy = nil
	change := m.setStateLocked(StateConnecting, nil)
	m.mu.Unlock()
	m.notify(change)

	conn, resp, err := m.handshake(attemptCtx)

	m.mu.Lock()
	m.cancelAttempt = nil
	m.attemptDone = nil
	if err == nil && attemptCtx.Err() != nil {
		_ = conn.Close()
		err = attemptCtx.Err()
	}
	if err != nil {
		if attemptCtx.Err() != nil {
			change = m.setStateLocked(StateIdle, nil)
			m.logger.Info("gateway connection attempt cancelled")
		} else {
			change = m.setStateLocked(StateFailed, err)
			m.logger.Warn("gateway connection failed", "error", err)
		}
		m.mu.Unlock()
		m.notify(change)
		return err
	}

	sess := newSession(context.WithoutCancel(ctx), conn)
	m.session = sess
	m.last = sess
	if resp.Payload != nil {
		m.protocol = resp.Payload.Protocol
		m.policy = maps.Clone(resp.Payload.Policy)
	}
	change = m.setStateLocked(StateConnected, nil)
	gateway, proto := m.gateway, m.protocol
	m.mu.Unlock()

	m.logger.Info("connected to gateway", "gateway", gateway, "protocol", proto)
	m.notify(change)

	go m.readLoop(sess)
	if m.opts.PingInterval > 0 {
		go m.keepalive(sess)
	}
	return nil
}

// Disconnect closes the session, or aborts a handshake in progress.
// It waits for the read loop or the aborted attempt to finish, or ctx to end.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.cancelAttempt != nil {
		cancel, done := m.cancelAttempt, m.attemptDone
		m.mu.Unlock()
		cancel()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	sess := m.session
	if sess == nil {
		m.mu.Unlock()
		return nil
	}
	sess.local = true
	change := m.setStateLocked(StateClosing, nil)
	m.mu.Unlock()
	m.notify(change)

	sess.release(true)

	select {
	case <-sess.done:
		m.logger.Info("disconnected from gateway")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the most recent session ends and returns how it ended:
// nil after Disconnect, ErrSessionClosed when the gateway closed it, or a
// *TransportError. It returns nil at once when no session was ever opened.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	sess := m.last
	m.mu.Unlock()
	if sess == nil {
		return nil
	}

	select {
	case <-sess.done:
		return sess.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handshake runs one connection attempt up to the accepted connect response.
func (m *Manager) handshake(ctx context.Context) (*websocket.Conn, *protocol.ConnectResponse, error) {
	s, err := m.deps.Settings.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading settings: %w", err)
	}
	if s.GatewayHost == "" {
		return nil, nil, ErrNoGateway
	}

	hostPort := net.JoinHostPort(s.GatewayHost, strconv.Itoa(s.GatewayPort))
	m.mu.Lock()
	m.gateway = hostPort
	m.mu.Unlock()

	hctx := ctx
	if m.opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, m.opts.HandshakeTimeout)
		defer cancel()
	}

	conn, _, err := m.dialer.DialContext(hctx, m.endpoint(hostPort, s.GatewayToken), nil)
	if err != nil {
		return nil, nil, m.attemptError(ctx, hctx, "dial", err)
	}

	// Reads on the socket do not observe ctx; closing the socket unblocks them.
	stop := context.AfterFunc(hctx, func() { _ = conn.Close() })
	resp, err := m.negotiate(hctx, conn, s.GatewayToken)
	if !stop() {
		err = m.attemptError(ctx, hctx, "handshake", hctx.Err())
	}
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	if resp.Payload != nil && resp.Payload.Auth != nil && resp.Payload.Auth.DeviceToken != "" {
		if err := m.deps.Settings.SetDeviceToken(ctx, resp.Payload.Auth.DeviceToken); err != nil {
			m.logger.Warn("failed to persist device token", "error", err)
		}
	}
	return conn, resp, nil
}

func (m *Manager) negotiate(ctx context.Context, conn *websocket.Conn, token string) (*protocol.ConnectResponse, error) {
	m.transition(StateAwaitingChallenge)

	challenge, err := readText(conn)
	if err != nil {
		return nil, &TransportError{Op: "read challenge", Err: err}
	}

	assertion, err := m.deps.Signer.Assert(ctx, protocol.ChallengeNonce(challenge))
	if err != nil {
		return nil, fmt.Errorf("signing challenge: %w", err)
	}

	m.mu.Lock()
	m.deviceID = assertion.DeviceID
	m.mu.Unlock()
	m.transition(StateHandshaking)

	var perms map[string]bool
	if m.deps.Permissions != nil {
		perms = m.deps.Permissions.Permissions()
	}

	reqID := uuid.NewString()
	req := protocol.NewConnectRequest(reqID, protocol.ConnectOptions{
		ClientID:    m.opts.ClientID,
		Platform:    m.opts.Platform,
		Locale:      m.opts.Locale,
		UserAgent:   m.opts.UserAgent,
		Caps:        slices.Clone(m.opts.Caps),
		Commands:    slices.Clone(m.opts.Commands),
		Permissions: perms,
		Token:       token,
		Device: protocol.DeviceInfo{
			ID:        assertion.DeviceID,
			PublicKey: assertion.PublicKey,
			Signature: assertion.Signature,
			SignedAt:  assertion.SignedAt,
			Nonce:     assertion.Nonce,
		},
	})

	data, err := protocol.Encode(req)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return nil, &TransportError{Op: "write", Err: err}
	}

	for {
		msg, err := readText(conn)
		if err != nil {
			return nil, &TransportError{Op: "read", Err: err}
		}

		frame, err := protocol.Decode(msg)
		if err != nil {
			m.logger.Warn("dropping malformed frame during handshake", "error", err)
			continue
		}
		if frame.Kind != protocol.KindResponse || frame.ID != reqID {
			m.logger.Debug("ignoring frame during handshake", "type", frame.Type, "id", frame.ID)
			continue
		}

		resp, err := protocol.DecodeConnectResponse(msg)
		if err != nil {
			return nil, err
		}
		if !resp.OK {
			return nil, &HandshakeRejectedError{Message: resp.ErrorMessage()}
		}
		return resp, nil
	}
}

// attemptError maps a failure during the attempt. Cancellation of the
// caller's context is returned as is; an expired handshake deadline is a
// transport failure.
func (m *Manager) attemptError(ctx, hctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if hctx.Err() != nil {
		return &TransportError{Op: op, Err: hctx.Err()}
	}
	return &TransportError{Op: op, Err: err}
}

func (m *Manager) endpoint(hostPort, token string) string {
	u := url.URL{Scheme: "ws", Host: hostPort, Path: "/"}
	if m.opts.TLS {
		u.Scheme = "wss"
	}
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}
	return u.String()
}

func (m *Manager) transition(to State) {
	m.mu.Lock()
	change := m.setStateLocked(to, nil)
	m.mu.Unlock()
	m.notify(change)
}

// setStateLocked records a transition. A non-nil err becomes the last error.
// Must be called with m.mu held.
func (m *Manager) setStateLocked(to State, err error) StateChange {
	change := StateChange{From: m.state, To: to, Err: err, At: m.now()}
	m.state = to
	m.since = change.At
	if err != nil {
		m.lastErr = err
	}
	return change
}

func (m *Manager) notify(change StateChange) {
	m.mu.Lock()
	observers := slices.Clone(m.observers)
	m.mu.Unlock()

	m.logger.Debug("gateway state changed", "from", change.From, "to", change.To)
	for _, fn := range observers {
		fn(change)
	}
}

// endSession records how sess ended and moves the manager out of Connected.
func (m *Manager) endSession(sess *session, readErr error) {
	m.mu.Lock()
	var to State
	var failure error
	switch {
	case sess.local:
		to = StateIdle
	case isCloseError(readErr):
		to = StateIdle
		sess.err = ErrSessionClosed
	default:
		to = StateFailed
		failure = &TransportError{Op: "read", Err: readErr}
		sess.err = failure
	}

	var change StateChange
	current := m.session == sess
	if current {
		m.session = nil
		change = m.setStateLocked(to, failure)
	}
	m.mu.Unlock()

	close(sess.done)
	if current {
		if failure != nil {
			m.logger.Warn("gateway session failed", "error", failure)
		} else if !sess.local {
			m.logger.Info("gateway closed the session")
		}
		m.notify(change)
	}
}

// isCloseError reports whether the peer sent a close frame. Abnormal
// closure (1006) is synthesised locally for a dropped connection.
func isCloseError(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure
}

// readText returns the next text frame, skipping other data frames.
func readText(conn *websocket.Conn) ([]byte, error) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage {
			return data, nil
		}
	}
}
