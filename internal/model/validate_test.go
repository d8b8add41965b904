package model

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateEvent(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for _, tc := range []struct {
		name      string
		event     Event
		wantField string // empty = valid
	}{
		{"Valid", Event{Title: "Standup", StartAt: start, EndAt: start.Add(15 * time.Minute), OwnerID: 1}, ""},
		{"ValidNoEnd", Event{Title: "Standup", StartAt: start, OwnerID: 1}, ""},
		{"MissingTitle", Event{Title: "  ", StartAt: start, OwnerID: 1}, "title"},
		{"LongTitle", Event{Title: strings.Repeat("x", 256), StartAt: start, OwnerID: 1}, "title"},
		{"MissingStart", Event{Title: "x", OwnerID: 1}, "start"},
		{"EndBeforeStart", Event{Title: "x", StartAt: start, EndAt: start.Add(-time.Hour), OwnerID: 1}, "end"},
		{"MissingOwner", Event{Title: "x", StartAt: start}, "owner_id"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateEvent(&tc.event)
			if tc.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if ve.Errors[0].Field != tc.wantField {
				t.Fatalf("expected field %q, got %q", tc.wantField, ve.Errors[0].Field)
			}
		})
	}
}

func TestValidateUser(t *testing.T) {
	for _, tc := range []struct {
		user    User
		wantErr bool
	}{
		{User{Name: "alice", Color: "#3a87ad"}, false},
		{User{Name: "bob"}, false},
		{User{Name: ""}, true},
		{User{Name: "carol", Color: "blue"}, true},
		{User{Name: "dave", Color: "#12345"}, true},
	} {
		err := ValidateUser(&tc.user)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateUser(%+v) error = %v, wantErr %v", tc.user, err, tc.wantErr)
		}
	}
}

func TestValidateNotification(t *testing.T) {
	if err := ValidateNotification(ChangeNotify, &Notification{Message: "maintenance at 5pm", Severity: "warning"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateNotification(ChangeNotify, &Notification{Message: ""}); err == nil {
		t.Fatal("expected error for empty message")
	}
	if err := ValidateNotification(ChangeNotify, &Notification{Message: "x", Severity: "fatal"}); err == nil {
		t.Fatal("expected error for unknown severity")
	}
	if err := ValidateNotification(FrameHeartbeat, &Notification{Message: "x"}); err == nil {
		t.Fatal("expected error for reserved type")
	}
	for _, typ := range []string{ChangeCreate, ChangeUpdate, ChangeDelete, ChangeUserCreated} {
		err := ValidateNotification(typ, &Notification{Message: "x"})
		if err == nil || !strings.Contains(err.Error(), "is reserved") {
			t.Errorf("type %q: err = %v, want reserved", typ, err)
		}
	}
	for _, typ := range []string{"room booked", "a/b", "", strings.Repeat("x", 65)} {
		if err := ValidateNotification(typ, &Notification{Message: "x"}); err == nil {
			t.Errorf("expected error for type %q", typ)
		}
	}
	if err := ValidateNotification("room.booked:v2", &Notification{Message: "x"}); err != nil {
		t.Errorf("unexpected error for dotted type: %v", err)
	}
}

func TestValidationError_Error(t *testing.T) {
	ve := &ValidationError{Errors: []FieldError{
		{Field: "title", Message: "is required"},
		{Field: "start", Message: "is required"},
	}}
	want := "validation failed: title: is required; start: is required"
	if got := ve.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
