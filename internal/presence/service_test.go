package presence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/billbot/node/internal/capability"
	"github.com/billbot/node/internal/dispatch"
	"github.com/billbot/node/internal/gateway"
	"github.com/billbot/node/internal/infrastructure/mqtt"
)

const testDeviceID = "linux-lab-amd64-1a2b3c4d"

type published struct {
	topic    string
	payload  []byte
	retained bool
}

// fakeBroker records publishes and subscriptions.
type fakeBroker struct {
	mu         sync.Mutex
	published  []published
	handlers   map[string]mqtt.MessageHandler
	onConnect  func()
	subErr     error
	publishErr error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBroker) PublishRetained(topic string, payload []byte) error {
	return b.publish(topic, payload, true)
}

func (b *fakeBroker) PublishEvent(topic string, payload []byte) error {
	return b.publish(topic, payload, false)
}

func (b *fakeBroker) publish(topic string, payload []byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, published{topic: topic, payload: payload, retained: retained})
	return nil
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subErr != nil {
		return b.subErr
	}
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, topic)
	return nil
}

func (b *fakeBroker) SetOnConnect(callback func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onConnect = callback
}

func (b *fakeBroker) QoS() byte { return 1 }

func (b *fakeBroker) handler(topic string) mqtt.MessageHandler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handlers[topic]
}

func (b *fakeBroker) on(topic string) []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []published
	for _, p := range b.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (b *fakeBroker) reconnect() {
	b.mu.Lock()
	cb := b.onConnect
	b.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// fakeController records gateway actions.
type fakeController struct {
	mu          sync.Mutex
	status      gateway.Status
	connects    chan context.Context
	disconnects chan struct{}
	connectErr  error
	block       chan struct{}
}

func newFakeController() *fakeController {
	return &fakeController{
		status: gateway.Status{
			State:      gateway.StateIdle,
			Connection: gateway.Disconnected,
		},
		connects:    make(chan context.Context, 4),
		disconnects: make(chan struct{}, 4),
	}
}

func (c *fakeController) Connect(ctx context.Context) error {
	c.connects <- ctx
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.connectErr
}

func (c *fakeController) Disconnect(context.Context) error {
	c.disconnects <- struct{}{}
	return nil
}

func (c *fakeController) Status() gateway.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *fakeController) setStatus(st gateway.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = st
}

type staticCaps []capability.Descriptor

func (s staticCaps) Descriptors() []capability.Descriptor { return s }

func newTestService(t *testing.T) (*Service, *fakeBroker, *fakeController) {
	t.Helper()
	broker := newFakeBroker()
	ctrl := newFakeController()
	svc := New(Deps{
		Broker:   broker,
		Gateway:  ctrl,
		DeviceID: testDeviceID,
		Capabilities: staticCaps{
			{Name: capability.KindScreen, Permission: capability.PermissionScreenCapture, Available: true},
		},
	})
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	t.Cleanup(svc.Stop)
	return svc, broker, ctrl
}

func TestStart_PublishesStatusAndCapabilities(t *testing.T) {
	svc, broker, _ := newTestService(t)

	if err := svc.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	topics := mqtt.Topics{}
	status := broker.on(topics.NodeStatus(testDeviceID))
	if len(status) != 1 {
		t.Fatalf("status publishes = %d, want 1", len(status))
	}
	if !status[0].retained {
		t.Error("status should be retained")
	}

	var got StatusPayload
	if err := json.Unmarshal(status[0].payload, &got); err != nil {
		t.Fatalf("status payload: %v", err)
	}
	want := StatusPayload{
		Online:     true,
		Connection: "Disconnected",
		State:      "idle",
		DeviceID:   testDeviceID,
		Timestamp:  "2026-01-02T03:04:05Z",
	}
	if got != want {
		t.Errorf("status = %+v, want %+v", got, want)
	}

	caps := broker.on(topics.NodeCapabilities(testDeviceID))
	if len(caps) != 1 || !caps[0].retained {
		t.Fatalf("capabilities publishes = %+v, want one retained", caps)
	}
	var cp CapabilitiesPayload
	if err := json.Unmarshal(caps[0].payload, &cp); err != nil {
		t.Fatalf("capabilities payload: %v", err)
	}
	if len(cp.Capabilities) != 1 || cp.Capabilities[0].Name != capability.KindScreen {
		t.Errorf("capabilities = %+v", cp.Capabilities)
	}

	if broker.handler(topics.NodeControl(testDeviceID)) == nil {
		t.Error("control topic not subscribed")
	}
}

func TestStart_SubscribeFailure(t *testing.T) {
	svc, broker, _ := newTestService(t)
	broker.subErr = errors.New("broker down")

	if err := svc.Start(); err == nil {
		t.Fatal("Start() expected error when subscribe fails")
	}
}

func TestStateChanged_RepublishesStatus(t *testing.T) {
	svc, broker, ctrl := newTestService(t)
	if err := svc.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctrl.setStatus(gateway.Status{
		State:      gateway.StateFailed,
		Connection: gateway.Disconnected,
		LastError:  "gateway rejected",
		Gateway:    "gw.local:18789",
	})
	svc.StateChanged(gateway.StateChange{From: gateway.StateHandshaking, To: gateway.StateFailed})

	status := broker.on(mqtt.Topics{}.NodeStatus(testDeviceID))
	if len(status) != 2 {
		t.Fatalf("status publishes = %d, want 2", len(status))
	}
	var got StatusPayload
	if err := json.Unmarshal(status[1].payload, &got); err != nil {
		t.Fatalf("status payload: %v", err)
	}
	if got.State != "failed" || got.LastError != "gateway rejected" || got.Gateway != "gw.local:18789" {
		t.Errorf("status = %+v", got)
	}
}

func TestBrokerReconnect_RepublishesState(t *testing.T) {
	svc, broker, _ := newTestService(t)
	if err := svc.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	broker.reconnect()

	topics := mqtt.Topics{}
	if n := len(broker.on(topics.NodeStatus(testDeviceID))); n != 2 {
		t.Errorf("status publishes after reconnect = %d, want 2", n)
	}
	if n := len(broker.on(topics.NodeCapabilities(testDeviceID))); n != 2 {
		t.Errorf("capability publishes after reconnect = %d, want 2", n)
	}
}

func TestCapabilitiesChanged(t *testing.T) {
	svc, broker, _ := newTestService(t)

	svc.CapabilitiesChanged(capability.Event{Type: capability.EventDeregistered, Kind: capability.KindScreen})

	if n := len(broker.on(mqtt.Topics{}.NodeCapabilities(testDeviceID))); n != 1 {
		t.Errorf("capability publishes = %d, want 1", n)
	}
}

func TestCommandExecuted(t *testing.T) {
	svc, broker, _ := newTestService(t)

	svc.CommandExecuted(dispatch.Result{
		ID:       "req-1",
		Method:   "tap",
		OK:       true,
		Duration: 2500 * time.Microsecond,
		At:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	svc.CommandExecuted(dispatch.Result{ID: "req-2", Method: "reboot", Error: "Unknown command: reboot"})

	events := broker.on(mqtt.Topics{}.NodeCommand(testDeviceID))
	if len(events) != 2 {
		t.Fatalf("command events = %d, want 2", len(events))
	}
	if events[0].retained {
		t.Error("command events should not be retained")
	}

	var first, second CommandEvent
	if err := json.Unmarshal(events[0].payload, &first); err != nil {
		t.Fatalf("event payload: %v", err)
	}
	if err := json.Unmarshal(events[1].payload, &second); err != nil {
		t.Fatalf("event payload: %v", err)
	}
	if first.ID != "req-1" || first.Method != "tap" || !first.OK || first.DurationMS != 2.5 {
		t.Errorf("first event = %+v", first)
	}
	if second.Method != "unknown" || second.OK || second.Error != "Unknown command: reboot" {
		t.Errorf("second event = %+v", second)
	}
}

func TestPublishFailureIsNotFatal(t *testing.T) {
	svc, broker, _ := newTestService(t)
	broker.publishErr = mqtt.ErrNotConnected

	if err := svc.Start(); err != nil {
		t.Fatalf("Start() error = %v, want publish failures ignored", err)
	}
	svc.CommandExecuted(dispatch.Result{ID: "req-1", Method: "tap", OK: true})
}

func TestHandleControl(t *testing.T) {
	svc, broker, ctrl := newTestService(t)
	if err := svc.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	handle := broker.handler(mqtt.Topics{}.NodeControl(testDeviceID))

	if err := handle("", []byte(`{"action":"connect"}`)); err != nil {
		t.Fatalf("connect control error = %v", err)
	}
	select {
	case ctx := <-ctrl.connects:
		if _, ok := ctx.Deadline(); !ok {
			t.Error("connect context should carry a deadline")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect was not called")
	}

	if err := handle("", []byte(`{"action":"disconnect"}`)); err != nil {
		t.Fatalf("disconnect control error = %v", err)
	}
	select {
	case <-ctrl.disconnects:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect was not called")
	}
}

func TestHandleControl_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"malformed json", `{"action":`, ErrInvalidControl},
		{"unknown action", `{"action":"reboot"}`, ErrUnknownAction},
		{"empty action", `{}`, ErrUnknownAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, ctrl := newTestService(t)

			err := svc.handleControl("", []byte(tt.payload))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("handleControl() error = %v, want %v", err, tt.wantErr)
			}
			select {
			case <-ctrl.connects:
				t.Error("Connect called for invalid control message")
			default:
			}
		})
	}
}

func TestStop_CancelsPendingConnect(t *testing.T) {
	svc, broker, ctrl := newTestService(t)
	ctrl.block = make(chan struct{})
	if err := svc.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := svc.handleControl("", []byte(`{"action":"connect"}`)); err != nil {
		t.Fatalf("handleControl() error = %v", err)
	}
	ctx := <-ctrl.connects

	done := make(chan struct{})
	go func() {
		svc.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	if ctx.Err() == nil {
		t.Error("pending connect context not cancelled")
	}
	if broker.handler(mqtt.Topics{}.NodeControl(testDeviceID)) != nil {
		t.Error("control topic still subscribed after Stop")
	}

	if err := svc.handleControl("", []byte(`{"action":"connect"}`)); err != nil {
		t.Errorf("handleControl() after Stop error = %v", err)
	}
	select {
	case <-ctrl.connects:
		t.Error("Connect called after Stop")
	default:
	}
}
