package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/billbot/node/internal/capability"
	"github.com/billbot/node/internal/dispatch"
	"github.com/billbot/node/internal/gateway"
	"github.com/billbot/node/internal/infrastructure/mqtt"
)

// controlTimeout bounds a connect or disconnect triggered over MQTT.
const controlTimeout = 2 * time.Minute

// Logger defines the logging interface used by the Service.
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

// Broker is the MQTT surface the Service needs. *mqtt.Client satisfies it.
type Broker interface {
	PublishRetained(topic string, payload []byte) error
	PublishEvent(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	SetOnConnect(callback func())
	QoS() byte
}

// Controller drives the gateway connection. *gateway.Manager satisfies it.
type Controller interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Status() gateway.Status
}

// CapabilitySource reports capability availability.
// *capability.Registry satisfies it.
type CapabilitySource interface {
	Descriptors() []capability.Descriptor
}

// Deps holds the Service's collaborators.
type Deps struct {
	Broker       Broker
	Gateway      Controller
	Capabilities CapabilitySource
	DeviceID     string
}

// Service publishes node presence to MQTT and accepts remote control.
type Service struct {
	broker   Broker
	gateway  Controller
	caps     CapabilitySource
	deviceID string
	topics   mqtt.Topics

	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
	stateMu   sync.Mutex
	stopped   bool

	// pubMu orders status publishes so a stale snapshot never lands last.
	pubMu sync.Mutex

	logger   Logger
	loggerMu sync.RWMutex

	now func() time.Time
}

// New creates a Service. Call Start to begin publishing.
func New(deps Deps) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		broker:    deps.Broker,
		gateway:   deps.Gateway,
		caps:      deps.Capabilities,
		deviceID:  deps.DeviceID,
		ctx:       ctx,
		ctxCancel: cancel,
		logger:    noopLogger{},
		now:       time.Now,
	}
}

// SetLogger sets the logger.
func (s *Service) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	defer s.loggerMu.Unlock()
	s.logger = logger
}

func (s *Service) log() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// Start subscribes to the control topic and publishes the current status
// and capabilities. Both are published again after every broker reconnect.
func (s *Service) Start() error {
	controlTopic := s.topics.NodeControl(s.deviceID)
	if err := s.broker.Subscribe(controlTopic, s.broker.QoS(), s.handleControl); err != nil {
		return fmt.Errorf("subscribe to control: %w", err)
	}
	s.log().Info("subscribed to control", "topic", controlTopic)

	s.broker.SetOnConnect(s.publishAll)
	s.publishAll()
	return nil
}

// Stop cancels in-flight control actions and waits for them to return.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.stateMu.Lock()
		s.stopped = true
		s.stateMu.Unlock()

		s.ctxCancel()
		s.broker.SetOnConnect(nil)
		if err := s.broker.Unsubscribe(s.topics.NodeControl(s.deviceID)); err != nil {
			s.log().Debug("unsubscribe control failed", "error", err)
		}
		s.wg.Wait()
	})
}

func (s *Service) publishAll() {
	s.publishStatus()
	s.publishCapabilities()
}

// StateChanged republishes the status. Register it with
// gateway.Manager.OnStateChange.
func (s *Service) StateChanged(gateway.StateChange) {
	s.publishStatus()
}

// CapabilitiesChanged republishes the descriptors. Register it with
// capability.Registry.Subscribe.
func (s *Service) CapabilitiesChanged(capability.Event) {
	s.publishCapabilities()
}

// CommandExecuted publishes a command event. It implements
// dispatch.Observer.
func (s *Service) CommandExecuted(r dispatch.Result) {
	data, err := json.Marshal(commandEvent(r))
	if err != nil {
		s.log().Error("marshal command event failed", "error", err)
		return
	}
	if err := s.broker.PublishEvent(s.topics.NodeCommand(s.deviceID), data); err != nil {
		s.log().Debug("publish command event failed", "method", r.Method, "error", err)
	}
}

func (s *Service) publishStatus() {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	data, err := json.Marshal(statusPayload(s.deviceID, s.gateway.Status(), s.now()))
	if err != nil {
		s.log().Error("marshal status failed", "error", err)
		return
	}
	if err := s.broker.PublishRetained(s.topics.NodeStatus(s.deviceID), data); err != nil {
		s.log().Debug("publish status failed", "error", err)
	}
}

func (s *Service) publishCapabilities() {
	if s.caps == nil {
		return
	}
	data, err := json.Marshal(CapabilitiesPayload{
		DeviceID:     s.deviceID,
		Capabilities: s.caps.Descriptors(),
		Timestamp:    s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.log().Error("marshal capabilities failed", "error", err)
		return
	}
	if err := s.broker.PublishRetained(s.topics.NodeCapabilities(s.deviceID), data); err != nil {
		s.log().Debug("publish capabilities failed", "error", err)
	}
}

// handleControl runs on the MQTT delivery goroutine, so gateway actions
// are handed off.
func (s *Service) handleControl(_ string, payload []byte) error {
	var msg ControlMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidControl, err)
	}

	var action func(ctx context.Context) error
	switch msg.Action {
	case ActionConnect:
		action = s.gateway.Connect
	case ActionDisconnect:
		action = s.gateway.Disconnect
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, msg.Action)
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.stopped {
		return nil
	}

	s.log().Info("control action received", "action", msg.Action)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, controlTimeout)
		defer cancel()
		if err := action(ctx); err != nil {
			s.log().Warn("control action failed", "action", msg.Action, "error", err)
		}
	}()
	return nil
}
