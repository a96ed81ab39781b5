package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/billbot/node/internal/protocol"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// closeGracePeriod bounds the close frame sent on Disconnect.
	closeGracePeriod = time.Second
)

// session is one accepted connection.
type session struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	writeMu  sync.Mutex
	released bool

	// local and err are guarded by Manager.mu.
	local bool
	err   error
}

func newSession(parent context.Context, conn *websocket.Conn) *session {
	ctx, cancel := context.WithCancel(parent)
	return &session{
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// send writes one frame. After release it returns errSessionReleased.
func (s *session) send(v any) error {
	data, err := protocol.Encode(v)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.released {
		return errSessionReleased
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// release closes the socket, optionally sending a close frame first, and
// then cancels in-flight work. Safe to call more than once.
func (s *session) release(closeFrame bool) {
	s.writeMu.Lock()
	if !s.released {
		s.released = true
		if closeFrame {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		}
		_ = s.conn.Close()
	}
	s.writeMu.Unlock()

	s.cancel()
}

// ping writes a ping control frame. A released session is left alone.
func (s *session) ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.released {
		return errSessionReleased
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (m *Manager) readLoop(s *session) {
	readWait := m.opts.PingInterval + m.opts.PongTimeout
	extend := func() {
		if m.opts.PingInterval > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(readWait))
		}
	}
	extend()
	s.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	var readErr error
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		// Any frame from the gateway proves the link is alive.
		extend()
		if mt != websocket.TextMessage {
			continue
		}
		m.handleFrame(s, data)
	}

	s.release(false)
	m.endSession(s, readErr)
}

// keepalive pings the gateway until the session ends. A failed ping
// closes the socket so the read loop reports the failure.
func (m *Manager) keepalive(s *session) {
	ticker := time.NewTicker(m.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.ping(); err != nil {
				if errors.Is(err, errSessionReleased) {
					return
				}
				m.logger.Warn("gateway ping failed", "error", err)
				_ = s.conn.Close()
				return
			}
		}
	}
}

func (m *Manager) handleFrame(s *session, data []byte) {
	frame, err := protocol.Decode(data)
	if err != nil {
		m.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	switch frame.Kind {
	case protocol.KindResponse:
		m.logger.Debug("response from gateway", "id", frame.ID)
	case protocol.KindRequest:
		req, err := protocol.DecodeInvokeRequest(data)
		if err != nil {
			m.logger.Warn("dropping malformed request", "id", frame.ID, "error", err)
			return
		}
		go m.invoke(s, req)
	default:
		m.logger.Debug("ignoring frame", "type", frame.Type)
	}
}

func (m *Manager) invoke(s *session, req *protocol.InvokeRequest) {
	resp := m.deps.Dispatcher.Dispatch(s.ctx, *req)

	if err := s.send(resp); err != nil {
		if errors.Is(err, errSessionReleased) {
			m.logger.Debug("discarding response for released session", "id", req.ID, "method", req.Method)
			return
		}
		m.logger.Warn("failed to send response", "id", req.ID, "error", err)
	}
}
