package model

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

var (
	colorPattern      = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	changeTypePattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]{1,64}$`)
)

// ValidateEvent checks an Event for constraint violations.
// It returns a *ValidationError if any rules fail, or nil if the event is valid.
func ValidateEvent(e *Event) error {
	var ve ValidationError

	title := strings.TrimSpace(e.Title)
	if title == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "title", Message: "is required"})
	} else if len([]rune(title)) > 255 {
		ve.Errors = append(ve.Errors, FieldError{Field: "title", Message: "must be 255 characters or fewer"})
	}

	if e.StartAt.IsZero() {
		ve.Errors = append(ve.Errors, FieldError{Field: "start", Message: "is required"})
	}
	if !e.EndAt.IsZero() && e.EndAt.Before(e.StartAt) {
		ve.Errors = append(ve.Errors, FieldError{Field: "end", Message: "must not be before start"})
	}

	if e.OwnerID <= 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "owner_id", Message: "is required"})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateUser checks a User for constraint violations.
func ValidateUser(u *User) error {
	var ve ValidationError

	if strings.TrimSpace(u.Name) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "name", Message: "is required"})
	}
	if u.Color != "" && !colorPattern.MatchString(u.Color) {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "color",
			Message: fmt.Sprintf("must be a #rrggbb hex color, got %q", u.Color),
		})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateNotification checks a broadcast before it is appended.
func ValidateNotification(eventType string, n *Notification) error {
	var ve ValidationError

	if strings.TrimSpace(n.Message) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "message", Message: "is required"})
	}
	switch n.Severity {
	case "", "info", "warning", "error":
	default:
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "severity",
			Message: fmt.Sprintf("invalid value %q", n.Severity),
		})
	}
	if !changeTypePattern.MatchString(eventType) {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "type",
			Message: "must be 1-64 letters, digits or _.:-",
		})
	} else if IsSessionFrame(eventType) || IsMutationChange(eventType) {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "type",
			Message: fmt.Sprintf("%q is reserved", eventType),
		})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
