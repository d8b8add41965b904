package ui

import (
	"fmt"
	"strconv"
	"strings"
)

// ANSI256 color codes for connection states and chrome.
const (
	colorAccent    = 74  // blue
	colorCommand   = 252 // light gray
	colorMuted     = 245 // medium gray
	colorConnected = 71  // green
	colorPending   = 179 // amber
	colorDown      = 167 // red
)

var noColor bool

func render(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string {
	return render(colorAccent, s)
}

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string {
	return render(colorCommand, s)
}

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string {
	return render(colorMuted, s)
}

// RenderStatus returns a connection status indicator: a dot and the state
// name, colored by state.
func RenderStatus(state string) string {
	code := colorDown
	switch state {
	case "connected", "ok":
		code = colorConnected
	case "connecting":
		code = colorPending
	}
	return render(code, "● "+state)
}

// RenderOwner returns s in an owner's "#rrggbb" calendar color. Malformed
// colors fall back to plain text.
func RenderOwner(hex, s string) string {
	if noColor {
		return s
	}
	r, g, b, ok := parseHex(hex)
	if !ok {
		return s
	}
	return fmt.Sprintf("\x1b[38;2;%d;%d;%dm%s\x1b[0m", r, g, b, s)
}

func parseHex(hex string) (r, g, b uint8, ok bool) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), true
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
