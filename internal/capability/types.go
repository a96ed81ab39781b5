package capability

import (
	"context"
	"encoding/json"
	"time"
)

// ScreenProvider captures the display.
type ScreenProvider interface {
	// Capture returns the current screen as base64-encoded PNG. An empty
	// string means no frame was available.
	Capture(ctx context.Context) (string, error)
}

// AccessibilityProvider inspects the UI and injects input. The bool results
// report whether the platform accepted the action.
type AccessibilityProvider interface {
	Snapshot(ctx context.Context) ([]UINode, error)
	Tap(ctx context.Context, x, y float64) (bool, error)
	Swipe(ctx context.Context, x1, y1, x2, y2 float64, duration time.Duration) (bool, error)
	SetText(ctx context.Context, text string) (bool, error)
	GlobalAction(ctx context.Context, action GlobalAction) (bool, error)
}

// AppLauncher starts applications.
type AppLauncher interface {
	Launch(ctx context.Context, pkg string) (bool, error)
}

// Service is a provider with explicit lifecycle hooks.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// GlobalAction is a system-wide navigation action.
type GlobalAction string

// Supported global actions.
const (
	ActionBack    GlobalAction = "back"
	ActionHome    GlobalAction = "home"
	ActionRecents GlobalAction = "recents"
)

// ParseGlobalAction maps a key name to an action.
func ParseGlobalAction(key string) (GlobalAction, bool) {
	switch a := GlobalAction(key); a {
	case ActionBack, ActionHome, ActionRecents:
		return a, true
	default:
		return "", false
	}
}

// Bounds is a screen rectangle in pixels.
type Bounds struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// UINode is one element of the UI tree. Optional string attributes are nil
// when the platform reports none.
type UINode struct {
	ID          *string  `json:"id"`
	Text        *string  `json:"text"`
	Description *string  `json:"contentDescription"`
	ClassName   *string  `json:"className"`
	PackageName *string  `json:"packageName"`
	Bounds      Bounds   `json:"bounds"`
	Clickable   bool     `json:"clickable"`
	Scrollable  bool     `json:"scrollable"`
	Editable    bool     `json:"editable"`
	Checkable   bool     `json:"checkable"`
	Checked     bool     `json:"checked"`
	Enabled     bool     `json:"enabled"`
	Focused     bool     `json:"focused"`
	Selected    bool     `json:"selected"`
	Children    []UINode `json:"children"`
}

// MarshalJSON writes children as [] rather than null.
func (n UINode) MarshalJSON() ([]byte, error) {
	type plain UINode
	if n.Children == nil {
		n.Children = []UINode{}
	}
	return json.Marshal(plain(n))
}

// Kind names a capability as declared to the gateway.
type Kind string

// Declared capabilities.
const (
	KindAccessibility Kind = "accessibility"
	KindScreen        Kind = "screen"
	KindSystem        Kind = "system"
)

// Permission names reported in the handshake permission map.
const (
	PermissionAccessibility = "accessibility"
	PermissionScreenCapture = "screen.capture"
	PermissionSystemLaunch  = "system.launch"
)

// Descriptor reports a declared capability and whether a provider backs it.
type Descriptor struct {
	Name       Kind   `json:"name"`
	Permission string `json:"permission"`
	Available  bool   `json:"available"`
}
