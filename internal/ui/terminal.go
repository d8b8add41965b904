package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor reports whether ANSI colors should be written to out.
// NO_COLOR disables color, CLICOLOR_FORCE=1 forces it, CLICOLOR=0 disables
// it, and otherwise color is used when out is a terminal.
func ShouldUseColor(out *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	return out != nil && term.IsTerminal(int(out.Fd()))
}

// Width returns the terminal width of out, or fallback when out is not a
// terminal.
func Width(out *os.File, fallback int) int {
	if out == nil {
		return fallback
	}
	w, _, err := term.GetSize(int(out.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}
