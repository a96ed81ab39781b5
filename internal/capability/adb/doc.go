// Package adb implements the capability provider contracts on top of the
// Android Debug Bridge.
//
// A single Device satisfies ScreenProvider, AccessibilityProvider and
// AppLauncher, and is started and stopped through the capability Registry.
// The platform does the work: screencap renders the display, uiautomator
// walks the view hierarchy and the input tool synthesises gestures. This
// package only builds the command lines and parses their output.
//
// Input actions are tracked as pending gestures so Stop can cancel any
// that are still running when the node shuts down.
package adb
