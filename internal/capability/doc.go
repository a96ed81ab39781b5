// Package capability defines the platform-facing provider contracts and the
// Registry through which the dispatcher reaches them.
//
// Three kinds of provider exist:
//
//   - ScreenProvider captures the display as a base64 PNG
//   - AccessibilityProvider inspects the UI tree and injects input
//   - AppLauncher starts applications by package name
//
// Providers come and go with their platform services. The Registry is
// safe for concurrent lookups while providers register and deregister; a
// lookup sees either the whole of a registration or none of it. A
// deregistered provider is indistinguishable from one that was never
// registered.
//
// Providers that need explicit lifecycle hooks implement Service and are
// managed with Registry.Start and Registry.Stop. Providers whose platform
// API reports gesture completion through a callback use Gesture to turn
// that callback into a cancellable wait.
package capability
