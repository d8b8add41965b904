package ui

import (
	"strings"
	"testing"
)

func TestRenderStatus(t *testing.T) {
	for _, tt := range []struct {
		state string
		code  string
	}{
		{"connected", "38;5;71m"},
		{"ok", "38;5;71m"},
		{"connecting", "38;5;179m"},
		{"disconnected", "38;5;167m"},
	} {
		got := RenderStatus(tt.state)
		if !strings.Contains(got, tt.code) || !strings.Contains(got, tt.state) {
			t.Errorf("RenderStatus(%q) = %q, want color %s", tt.state, got, tt.code)
		}
	}
}

func TestRenderCommand(t *testing.T) {
	if got := RenderCommand("watch"); got != "\x1b[38;5;252mwatch\x1b[0m" {
		t.Errorf("RenderCommand = %q", got)
	}
}

func TestRenderOwner(t *testing.T) {
	if got := RenderOwner("#3a87ad", "Standup"); got != "\x1b[38;2;58;135;173mStandup\x1b[0m" {
		t.Errorf("RenderOwner = %q", got)
	}
	if got := RenderOwner("blue", "Standup"); got != "Standup" {
		t.Errorf("RenderOwner with malformed color = %q, want plain text", got)
	}
}

func TestParseHex(t *testing.T) {
	r, g, b, ok := parseHex("#FF0080")
	if !ok || r != 255 || g != 0 || b != 128 {
		t.Errorf("parseHex = %d,%d,%d,%v", r, g, b, ok)
	}
	if _, _, _, ok := parseHex("#12345"); ok {
		t.Error("short hex accepted")
	}
	if _, _, _, ok := parseHex("#zzzzzz"); ok {
		t.Error("non-hex accepted")
	}
}
