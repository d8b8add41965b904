package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/calfeed/internal/ui"
)

// helpRule styles the capture groups of one pattern in cobra's help text.
// Group i+1 is passed through style[i]; a nil style leaves it untouched.
type helpRule struct {
	re    *regexp.Regexp
	style []func(string) string
}

var helpRules = []helpRule{
	// Section headers such as "Calendar:", "Flags:" or "Usage:".
	{regexp.MustCompile(`(?m)^([A-Z][A-Za-z ]*:)[ \t]*$`), []func(string) string{ui.RenderAccent}},
	// Command rows: "  name    description".
	{regexp.MustCompile(`(?m)^(  )([a-z][\w-]*)(  +)`), []func(string) string{nil, ui.RenderCommand, nil}},
	// Flag value types, e.g. "--owner int64Slice".
	{regexp.MustCompile(`(--[\w-]+ )(string|int|int64|duration|float64|stringToString|int64Slice)\b`), []func(string) string{nil, ui.RenderMuted}},
	// Defaults, e.g. (default 30s).
	{regexp.MustCompile(`(\(default [^)]*\))`), []func(string) string{ui.RenderMuted}},
}

// colorizedHelpFunc prints the command description followed by its usage,
// styled when stdout is a color terminal.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		var buf bytes.Buffer
		if desc := strings.TrimSpace(cmd.Long); desc != "" {
			fmt.Fprintf(&buf, "%s\n\n", desc)
		} else if cmd.Short != "" {
			fmt.Fprintf(&buf, "%s\n\n", cmd.Short)
		}
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)

		text := buf.String()
		if !noColor && ui.ShouldUseColor(os.Stdout) {
			text = colorizeHelp(text)
		}
		_, _ = io.WriteString(out, text)
	}
}

func colorizeHelp(s string) string {
	for _, rule := range helpRules {
		s = rule.re.ReplaceAllStringFunc(s, func(match string) string {
			groups := rule.re.FindStringSubmatch(match)
			var b strings.Builder
			for i, g := range groups[1:] {
				if i < len(rule.style) && rule.style[i] != nil {
					g = rule.style[i](g)
				}
				b.WriteString(g)
			}
			// Keep whatever the pattern matched beyond its groups.
			b.WriteString(match[len(strings.Join(groups[1:], "")):])
			return b.String()
		})
	}
	return s
}
