package capability

import (
	"context"
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Registry.
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

// EventType distinguishes registry notifications.
type EventType string

// Registry event types.
const (
	EventRegistered   EventType = "registered"
	EventDeregistered EventType = "deregistered"
)

// Event reports a provider registration change.
type Event struct {
	Type EventType
	Kind Kind
}

// providers is an immutable snapshot; writers replace it whole.
// The owner fields name the service that registered each provider, or
// are empty for direct registrations.
type providers struct {
	screen        ScreenProvider
	accessibility AccessibilityProvider
	launcher      AppLauncher

	screenOwner        string
	accessibilityOwner string
	launcherOwner      string
}

// runningService tracks a started service. A starting entry reserves the
// name while svc.Start runs.
type runningService struct {
	svc      Service
	kinds    []Kind
	starting bool
}

// Registry holds the currently available providers.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	current  providers
	services map[string]runningService
	subs     []func(Event)
	logger   Logger
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		services: make(map[string]runningService),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Subscribe registers fn for registration events. fn is called outside the
// registry lock and must not block for long.
func (r *Registry) Subscribe(fn func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
}

// Screen returns the registered screen provider.
func (r *Registry) Screen() (ScreenProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.screen, r.current.screen != nil
}

// Accessibility returns the registered accessibility provider.
func (r *Registry) Accessibility() (AccessibilityProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.accessibility, r.current.accessibility != nil
}

// Launcher returns the registered app launcher.
func (r *Registry) Launcher() (AppLauncher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.launcher, r.current.launcher != nil
}

// RegisterScreen makes p the screen provider.
func (r *Registry) RegisterScreen(p ScreenProvider) {
	r.update(func(c *providers) []Event {
		c.screen, c.screenOwner = p, ""
		return []Event{{Type: EventRegistered, Kind: KindScreen}}
	})
}

// DeregisterScreen removes the screen provider.
func (r *Registry) DeregisterScreen() {
	r.update(func(c *providers) []Event {
		return remove(c, KindScreen)
	})
}

// RegisterAccessibility makes p the accessibility provider.
func (r *Registry) RegisterAccessibility(p AccessibilityProvider) {
	r.update(func(c *providers) []Event {
		c.accessibility, c.accessibilityOwner = p, ""
		return []Event{{Type: EventRegistered, Kind: KindAccessibility}}
	})
}

// DeregisterAccessibility removes the accessibility provider.
func (r *Registry) DeregisterAccessibility() {
	r.update(func(c *providers) []Event {
		return remove(c, KindAccessibility)
	})
}

// RegisterLauncher makes p the app launcher.
func (r *Registry) RegisterLauncher(p AppLauncher) {
	r.update(func(c *providers) []Event {
		c.launcher, c.launcherOwner = p, ""
		return []Event{{Type: EventRegistered, Kind: KindSystem}}
	})
}

// DeregisterLauncher removes the app launcher.
func (r *Registry) DeregisterLauncher() {
	r.update(func(c *providers) []Event {
		return remove(c, KindSystem)
	})
}

// Start starts svc and registers every provider contract it implements in
// one step. The service is tracked under name for Stop.
func (r *Registry) Start(ctx context.Context, name string, svc Service) error {
	kinds := contractsOf(svc)
	if len(kinds) == 0 {
		return fmt.Errorf("%w: %s", ErrNoContract, name)
	}

	r.mu.Lock()
	if _, exists := r.services[name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrServiceExists, name)
	}
	r.services[name] = runningService{starting: true}
	r.mu.Unlock()

	if err := svc.Start(ctx); err != nil {
		r.mu.Lock()
		delete(r.services, name)
		r.mu.Unlock()
		return fmt.Errorf("starting %s: %w", name, err)
	}

	r.update(func(c *providers) []Event {
		r.services[name] = runningService{svc: svc, kinds: kinds}
		events := make([]Event, 0, len(kinds))
		for _, k := range kinds {
			switch k {
			case KindScreen:
				c.screen, c.screenOwner = svc.(ScreenProvider), name
			case KindAccessibility:
				c.accessibility, c.accessibilityOwner = svc.(AccessibilityProvider), name
			case KindSystem:
				c.launcher, c.launcherOwner = svc.(AppLauncher), name
			}
			events = append(events, Event{Type: EventRegistered, Kind: k})
		}
		return events
	})

	r.logger.Info("capability service started", "service", name, "kinds", kinds)
	return nil
}

// Stop deregisters the providers of the named service, then stops it.
// Providers registered later by someone else are left in place.
func (r *Registry) Stop(ctx context.Context, name string) error {
	var rs runningService
	var found bool

	r.update(func(c *providers) []Event {
		rs, found = r.services[name]
		if !found || rs.starting {
			found = false
			return nil
		}
		delete(r.services, name)

		var events []Event
		for _, k := range rs.kinds {
			if ownerOf(c, k) == name {
				events = append(events, remove(c, k)...)
			}
		}
		return events
	})

	if !found {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}

	if err := rs.svc.Stop(ctx); err != nil {
		return fmt.Errorf("stopping %s: %w", name, err)
	}
	r.logger.Info("capability service stopped", "service", name)
	return nil
}

// StopAll stops every started service, returning the first error.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.RLock()
	names := make([]string, 0, len(r.services))
	for name, rs := range r.services {
		if !rs.starting {
			names = append(names, name)
		}
	}
	r.mu.RUnlock()

	var first error
	for _, name := range names {
		if err := r.Stop(ctx, name); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Caps returns the declared capability names in handshake order.
func Caps() []string {
	return []string{string(KindAccessibility), string(KindScreen), string(KindSystem)}
}

// Descriptors reports each declared capability and its availability.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	c := r.current
	r.mu.RUnlock()

	return []Descriptor{
		{Name: KindAccessibility, Permission: PermissionAccessibility, Available: c.accessibility != nil},
		{Name: KindScreen, Permission: PermissionScreenCapture, Available: c.screen != nil},
		{Name: KindSystem, Permission: PermissionSystemLaunch, Available: c.launcher != nil},
	}
}

// Permissions returns the handshake permission map.
func (r *Registry) Permissions() map[string]bool {
	perms := make(map[string]bool, 3)
	for _, d := range r.Descriptors() {
		perms[d.Permission] = d.Available
	}
	return perms
}

// update applies fn to a copy of the current snapshot and publishes it,
// then notifies subscribers outside the lock.
func (r *Registry) update(fn func(c *providers) []Event) {
	r.mu.Lock()
	next := r.current
	events := fn(&next)
	r.current = next
	subs := append([]func(Event){}, r.subs...)
	r.mu.Unlock()

	for _, ev := range events {
		r.logger.Debug("capability "+string(ev.Type), "kind", ev.Kind)
		for _, fn := range subs {
			fn(ev)
		}
	}
}

func remove(c *providers, k Kind) []Event {
	switch k {
	case KindScreen:
		if c.screen == nil {
			return nil
		}
		c.screen, c.screenOwner = nil, ""
	case KindAccessibility:
		if c.accessibility == nil {
			return nil
		}
		c.accessibility, c.accessibilityOwner = nil, ""
	case KindSystem:
		if c.launcher == nil {
			return nil
		}
		c.launcher, c.launcherOwner = nil, ""
	}
	return []Event{{Type: EventDeregistered, Kind: k}}
}

func ownerOf(c *providers, k Kind) string {
	switch k {
	case KindScreen:
		return c.screenOwner
	case KindAccessibility:
		return c.accessibilityOwner
	case KindSystem:
		return c.launcherOwner
	}
	return ""
}

func contractsOf(svc Service) []Kind {
	var kinds []Kind
	if _, ok := svc.(AccessibilityProvider); ok {
		kinds = append(kinds, KindAccessibility)
	}
	if _, ok := svc.(ScreenProvider); ok {
		kinds = append(kinds, KindScreen)
	}
	if _, ok := svc.(AppLauncher); ok {
		kinds = append(kinds, KindSystem)
	}
	return kinds
}
