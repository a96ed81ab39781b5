package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/billbot/node/internal/capability"
	"github.com/billbot/node/internal/protocol"
)

// Command methods.
const (
	MethodScreenshot = "screenshot"
	MethodUITree     = "ui_tree"
	MethodTap        = "tap"
	MethodSwipe      = "swipe"
	MethodType       = "type"
	MethodPress      = "press"
	MethodLaunch     = "launch"
)

// DefaultSwipeDuration applies when durationMs is absent.
const DefaultSwipeDuration = 500 * time.Millisecond

// Response messages.
const (
	msgScreenshotFailed = "Failed to capture screenshot"
	msgUITreeFailed     = "Failed to read UI tree"
	msgUnknownCommand   = "Unknown command: "
	msgExecutionFailed  = "Command execution failed: "
)

// Logger defines the logging interface used by the Dispatcher.
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

// Result summarises one dispatched command.
type Result struct {
	ID       string
	Method   string
	OK       bool
	Error    string
	Duration time.Duration
	At       time.Time
}

// Recorder persists command results, e.g. as time-series points.
type Recorder interface {
	RecordCommand(r Result)
}

// Observer is notified after every command.
type Observer interface {
	CommandExecuted(r Result)
}

// Providers is the lookup surface the dispatcher needs.
// *capability.Registry satisfies it.
type Providers interface {
	Screen() (capability.ScreenProvider, bool)
	Accessibility() (capability.AccessibilityProvider, bool)
	Launcher() (capability.AppLauncher, bool)
}

type handler func(ctx context.Context, params map[string]string) (map[string]string, error)

// Dispatcher routes InvokeRequests to providers.
type Dispatcher struct {
	providers Providers
	handlers  map[string]handler
	logger    Logger
	recorder  Recorder
	observers []Observer
	stats     *Stats
	now       func() time.Time
}

// New creates a Dispatcher over providers.
func New(providers Providers) *Dispatcher {
	d := &Dispatcher{
		providers: providers,
		logger:    noopLogger{},
		stats:     newStats(),
		now:       time.Now,
	}
	d.handlers = map[string]handler{
		MethodScreenshot: d.screenshot,
		MethodUITree:     d.uiTree,
		MethodTap:        d.tap,
		MethodSwipe:      d.swipe,
		MethodType:       d.typeText,
		MethodPress:      d.press,
		MethodLaunch:     d.launch,
	}
	return d
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// SetRecorder sets the telemetry recorder.
func (d *Dispatcher) SetRecorder(r Recorder) {
	d.recorder = r
}

// AddObserver registers o for command notifications.
// Must be called before the first Dispatch.
func (d *Dispatcher) AddObserver(o Observer) {
	d.observers = append(d.observers, o)
}

// Stats returns the dispatcher's counters.
func (d *Dispatcher) Stats() *Stats {
	return d.stats
}

// MethodLabel returns method when it is supported and "unknown" otherwise,
// bounding the label set used for counters and metric tags.
func MethodLabel(method string) string {
	for _, m := range Methods() {
		if m == method {
			return method
		}
	}
	return "unknown"
}

// Methods returns the supported command methods in handshake order.
func Methods() []string {
	return []string{
		MethodScreenshot,
		MethodUITree,
		MethodTap,
		MethodSwipe,
		MethodType,
		MethodPress,
		MethodLaunch,
	}
}

// Dispatch executes req and returns its response. It never panics.
func (d *Dispatcher) Dispatch(ctx context.Context, req protocol.InvokeRequest) (resp protocol.InvokeResponse) {
	start := d.now()

	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("command panicked", "id", req.ID, "method", req.Method, "panic", p)
			resp = protocol.Failure(req.ID, msgExecutionFailed+fmt.Sprint(p))
		}
		d.report(req, resp, start)
	}()

	h, ok := d.handlers[req.Method]
	if !ok {
		d.logger.Warn("unknown command", "id", req.ID, "method", req.Method)
		return protocol.Failure(req.ID, msgUnknownCommand+req.Method)
	}

	params := req.Params
	if params == nil {
		params = map[string]string{}
	}

	payload, err := h(ctx, params)
	if err != nil {
		d.logger.Error("command failed", "id", req.ID, "method", req.Method, "error", err)
		return protocol.Failure(req.ID, failureMessage(err))
	}
	return protocol.Success(req.ID, payload)
}

func (d *Dispatcher) report(req protocol.InvokeRequest, resp protocol.InvokeResponse, start time.Time) {
	r := Result{
		ID:       req.ID,
		Method:   req.Method,
		OK:       resp.OK,
		Error:    resp.ErrorMessage(),
		Duration: d.now().Sub(start),
		At:       start,
	}
	d.stats.record(r)

	if d.recorder != nil {
		d.recorder.RecordCommand(r)
	}
	for _, o := range d.observers {
		o.CommandExecuted(r)
	}
	d.logger.Debug("command executed", "id", r.ID, "method", r.Method, "ok", r.OK, "duration", r.Duration)
}

func (d *Dispatcher) screenshot(ctx context.Context, _ map[string]string) (map[string]string, error) {
	p, ok := d.providers.Screen()
	if !ok {
		return nil, replyError(msgScreenshotFailed)
	}
	data, err := p.Capture(ctx)
	if err != nil {
		return nil, err
	}
	if data == "" {
		return nil, replyError(msgScreenshotFailed)
	}
	return map[string]string{"format": "png", "base64": data}, nil
}

func (d *Dispatcher) uiTree(ctx context.Context, _ map[string]string) (map[string]string, error) {
	p, ok := d.providers.Accessibility()
	if !ok {
		return nil, replyError(msgUITreeFailed)
	}
	nodes, err := p.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if nodes == nil {
		return nil, replyError(msgUITreeFailed)
	}
	tree, err := json.Marshal(nodes)
	if err != nil {
		return nil, err
	}
	return map[string]string{"tree": string(tree)}, nil
}

func (d *Dispatcher) tap(ctx context.Context, params map[string]string) (map[string]string, error) {
	x := d.float(params, "x")
	y := d.float(params, "y")

	p, ok := d.providers.Accessibility()
	if !ok {
		return successPayload(false), nil
	}
	done, err := p.Tap(ctx, x, y)
	if err != nil {
		return nil, err
	}
	return successPayload(done), nil
}

func (d *Dispatcher) swipe(ctx context.Context, params map[string]string) (map[string]string, error) {
	x1 := d.float(params, "x1")
	y1 := d.float(params, "y1")
	x2 := d.float(params, "x2")
	y2 := d.float(params, "y2")
	duration := d.duration(params, "durationMs", DefaultSwipeDuration)

	p, ok := d.providers.Accessibility()
	if !ok {
		return successPayload(false), nil
	}
	done, err := p.Swipe(ctx, x1, y1, x2, y2, duration)
	if err != nil {
		return nil, err
	}
	return successPayload(done), nil
}

func (d *Dispatcher) typeText(ctx context.Context, params map[string]string) (map[string]string, error) {
	p, ok := d.providers.Accessibility()
	if !ok {
		return successPayload(false), nil
	}
	done, err := p.SetText(ctx, params["text"])
	if err != nil {
		return nil, err
	}
	return successPayload(done), nil
}

func (d *Dispatcher) press(ctx context.Context, params map[string]string) (map[string]string, error) {
	action, valid := capability.ParseGlobalAction(params["key"])
	if !valid {
		d.logger.Debug("unsupported key", "key", params["key"])
		return successPayload(false), nil
	}

	p, ok := d.providers.Accessibility()
	if !ok {
		return successPayload(false), nil
	}
	done, err := p.GlobalAction(ctx, action)
	if err != nil {
		return nil, err
	}
	return successPayload(done), nil
}

func (d *Dispatcher) launch(ctx context.Context, params map[string]string) (map[string]string, error) {
	p, ok := d.providers.Launcher()
	if !ok {
		return successPayload(false), nil
	}
	done, err := p.Launch(ctx, params["package"])
	if err != nil {
		return nil, err
	}
	return successPayload(done), nil
}

// float reads a numeric parameter; missing or malformed values are 0.
func (d *Dispatcher) float(params map[string]string, key string) float64 {
	raw, ok := params[key]
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		d.logger.Debug("unparseable parameter, using 0", "param", key, "value", raw)
		return 0
	}
	return v
}

func (d *Dispatcher) duration(params map[string]string, key string, def time.Duration) time.Duration {
	raw, ok := params[key]
	if !ok {
		return def
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		d.logger.Debug("unparseable parameter, using default", "param", key, "value", raw)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func successPayload(ok bool) map[string]string {
	return map[string]string{"success": strconv.FormatBool(ok)}
}

// replyError is an error whose text is sent to the gateway verbatim.
type replyError string

func (e replyError) Error() string { return string(e) }

func failureMessage(err error) string {
	if r, ok := err.(replyError); ok {
		return string(r)
	}
	return msgExecutionFailed + err.Error()
}
