package main

import (
	"testing"
	"time"

	"github.com/alfredjeanlab/calfeed/internal/model"
)

func TestFormatSpan(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.Local)
	tests := []struct {
		name string
		e    model.Event
		want string
	}{
		{"open ended", model.Event{StartAt: day.Add(9 * time.Hour)}, "2026-03-02 09:00"},
		{"same day", model.Event{StartAt: day.Add(9 * time.Hour), EndAt: day.Add(10*time.Hour + 30*time.Minute)}, "2026-03-02 09:00-10:30"},
		{"overnight", model.Event{StartAt: day.Add(22 * time.Hour), EndAt: day.Add(26 * time.Hour)}, "2026-03-02 22:00 - 2026-03-03 02:00"},
		{"all day", model.Event{StartAt: day, AllDay: true}, "2026-03-02 (all day)"},
		{"multi day", model.Event{StartAt: day, EndAt: day.AddDate(0, 0, 2), AllDay: true}, "2026-03-02 - 2026-03-04"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatSpan(&tt.e); got != tt.want {
				t.Errorf("formatSpan = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2026, 3, 2, 9, 30, 0, 0, time.Local)
	for _, s := range []string{"2026-03-02 09:30", "2026-03-02T09:30", want.Format(time.RFC3339)} {
		got, err := parseTime(s)
		if err != nil {
			t.Fatalf("parseTime(%q): %v", s, err)
		}
		if !got.Equal(want) {
			t.Errorf("parseTime(%q) = %v, want %v", s, got, want)
		}
	}
	if got, err := parseTime("2026-03-02"); err != nil || got.Hour() != 0 || got.Day() != 2 {
		t.Errorf("date only = %v, %v", got, err)
	}
	if _, err := parseTime("next tuesday"); err == nil {
		t.Error("expected error for unparseable time")
	}
}

func TestParseID(t *testing.T) {
	if id, err := parseID("42"); err != nil || id != 42 {
		t.Errorf("parseID(42) = %d, %v", id, err)
	}
	for _, s := range []string{"0", "-1", "abc", ""} {
		if _, err := parseID(s); err == nil {
			t.Errorf("parseID(%q) accepted", s)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("a long meeting title", 10); got != "a long ..." {
		t.Errorf("truncate long = %q", got)
	}
	if got := truncate("ünïcödé títle", 8); got != "ünïcö..." {
		t.Errorf("truncate runes = %q", got)
	}
}

func TestColorizeHelpKeepsText(t *testing.T) {
	// Colors are off in tests, so styling must leave the text intact.
	in := "Calendar:\n  event       Manage calendar events\n\nFlags:\n      --backoff duration   first retry delay (default 1s)\n"
	if got := colorizeHelp(in); got != in {
		t.Fatalf("colorizeHelp changed text:\n%q\nwant\n%q", got, in)
	}
}
