package adb

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/billbot/node/internal/capability"
)

// Logger defines the logging interface used by Device.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Android key codes for global actions.
const (
	keycodeHome      = 3
	keycodeBack      = 4
	keycodeAppSwitch = 187
)

const launcherCategory = "android.intent.category.LAUNCHER"

var (
	pngSignature = []byte("\x89PNG\r\n\x1a\n")

	// packageName matches Java package names as used by Android applications.
	packageName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z][A-Za-z0-9_]*)+$`)
)

// Options configures a Device.
type Options struct {
	// Binary is the adb executable. Defaults to "adb".
	Binary string

	// Serial selects a device when several are attached.
	Serial string

	// Runner executes adb. Defaults to ExecRunner.
	Runner Runner

	Logger Logger
}

// Device drives one Android device through adb.
type Device struct {
	binary string
	serial string
	runner Runner
	logger Logger

	mu      sync.Mutex
	pending map[*capability.Gesture]struct{}
}

var (
	_ capability.Service               = (*Device)(nil)
	_ capability.ScreenProvider        = (*Device)(nil)
	_ capability.AccessibilityProvider = (*Device)(nil)
	_ capability.AppLauncher           = (*Device)(nil)
)

// New creates a Device.
func New(opts Options) *Device {
	d := &Device{
		binary:  opts.Binary,
		serial:  opts.Serial,
		runner:  opts.Runner,
		logger:  opts.Logger,
		pending: make(map[*capability.Gesture]struct{}),
	}
	if d.binary == "" {
		d.binary = "adb"
	}
	if d.runner == nil {
		d.runner = ExecRunner{}
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	return d
}

// Start checks that the device is online.
func (d *Device) Start(ctx context.Context) error {
	out, err := d.adb(ctx, "get-state")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceNotReady, err)
	}
	if state := strings.TrimSpace(string(out)); state != "device" {
		return fmt.Errorf("%w: state %q", ErrDeviceNotReady, state)
	}
	return nil
}

// Stop cancels input gestures that are still running.
func (d *Device) Stop(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for g := range d.pending {
		g.Cancel()
	}
	clear(d.pending)
	return nil
}

// Capture returns the screen as base64 PNG. Empty output yields "".
func (d *Device) Capture(ctx context.Context) (string, error) {
	out, err := d.adb(ctx, "exec-out", "screencap", "-p")
	if err != nil {
		return "", err
	}
	if len(out) == 0 {
		return "", nil
	}
	if !bytes.HasPrefix(out, pngSignature) {
		return "", ErrInvalidScreenshot
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// Snapshot dumps and parses the current view hierarchy.
func (d *Device) Snapshot(ctx context.Context) ([]capability.UINode, error) {
	out, err := d.adb(ctx, "exec-out", "uiautomator", "dump", "/dev/tty")
	if err != nil {
		return nil, err
	}
	return parseHierarchy(out)
}

// Tap taps at (x, y).
func (d *Device) Tap(ctx context.Context, x, y float64) (bool, error) {
	return d.gesture(ctx, "shell", "input", "tap", coord(x), coord(y))
}

// Swipe drags from (x1, y1) to (x2, y2) over duration.
func (d *Device) Swipe(ctx context.Context, x1, y1, x2, y2 float64, duration time.Duration) (bool, error) {
	return d.gesture(ctx, "shell", "input", "swipe",
		coord(x1), coord(y1), coord(x2), coord(y2),
		strconv.FormatInt(duration.Milliseconds(), 10),
	)
}

// SetText types text into the focused field.
func (d *Device) SetText(ctx context.Context, text string) (bool, error) {
	for _, chunk := range inputTextChunks(text) {
		ok, err := d.gesture(ctx, "shell", "input", "text", encodeInputText(chunk))
		if err != nil || !ok {
			return ok, err
		}
	}
	return true, nil
}

// GlobalAction presses the key for action.
func (d *Device) GlobalAction(ctx context.Context, action capability.GlobalAction) (bool, error) {
	var code int
	switch action {
	case capability.ActionBack:
		code = keycodeBack
	case capability.ActionHome:
		code = keycodeHome
	case capability.ActionRecents:
		code = keycodeAppSwitch
	default:
		return false, nil
	}
	return d.gesture(ctx, "shell", "input", "keyevent", strconv.Itoa(code))
}

// Launch starts the launcher activity of pkg. It reports false for an
// invalid name or a package without a launchable activity.
func (d *Device) Launch(ctx context.Context, pkg string) (bool, error) {
	if !packageName.MatchString(pkg) {
		d.logger.Debug("refusing to launch invalid package name", "package", pkg)
		return false, nil
	}

	out, err := d.adb(ctx, "shell", "monkey", "-p", pkg, "-c", launcherCategory, "1")
	if err != nil {
		return false, err
	}
	if bytes.Contains(out, []byte("No activities found")) || bytes.Contains(out, []byte("monkey aborted")) {
		d.logger.Debug("package has no launchable activity", "package", pkg)
		return false, nil
	}
	return true, nil
}

// gesture runs an input command as a pending Gesture so Stop can cancel it.
func (d *Device) gesture(ctx context.Context, args ...string) (bool, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := capability.NewGesture()
	d.mu.Lock()
	d.pending[g] = struct{}{}
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.pending, g)
		d.mu.Unlock()
	}()

	go func() {
		_, err := d.adb(runCtx, args...)
		if err != nil {
			g.Fail(err)
			return
		}
		g.Complete(true)
	}()

	// Cancel kills the adb process when the gesture is abandoned.
	go func() {
		select {
		case <-g.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	return g.Await(ctx)
}

func (d *Device) adb(ctx context.Context, args ...string) ([]byte, error) {
	full := args
	if d.serial != "" {
		full = append([]string{"-s", d.serial}, args...)
	}
	d.logger.Debug("adb", "args", full)
	return d.runner.Run(ctx, d.binary, full...)
}

func coord(v float64) string {
	return strconv.FormatInt(int64(v), 10)
}

// inputTextChunks splits text so no chunk contains a literal "%s", which
// "input text" would type as a space. Each "%s" is sent as "%" ending one
// chunk and "s" starting the next.
func inputTextChunks(text string) []string {
	parts := strings.Split(text, "%s")
	chunks := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = "s" + p
		}
		if i < len(parts)-1 {
			p += "%"
		}
		if p != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks
}

// encodeInputText prepares text for "input text", which reads %s as a space,
// and quotes it for the remote shell adb hands the command line to.
func encodeInputText(s string) string {
	s = strings.ReplaceAll(s, " ", "%s")
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
