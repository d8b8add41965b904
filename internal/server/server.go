// Package server exposes the calendar API and the change stream over HTTP.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alfredjeanlab/calfeed/internal/changelog"
	"github.com/alfredjeanlab/calfeed/internal/events"
	"github.com/alfredjeanlab/calfeed/internal/model"
	"github.com/alfredjeanlab/calfeed/internal/presence"
	"github.com/alfredjeanlab/calfeed/internal/store"
	"github.com/alfredjeanlab/calfeed/internal/stream"
)

// Options configures a Server. Zero values fall back to the stream defaults,
// an unpublished writer and slog.Default.
type Options struct {
	Stream          stream.Options
	Retention       model.RetentionPolicy
	TrimProbability float64
	Publisher       events.Publisher
	Notifier        *changelog.Notifier
	Logger          *slog.Logger
}

// Server holds the dependencies shared by all HTTP handlers.
type Server struct {
	store    store.Store
	writer   *changelog.Writer
	notifier *changelog.Notifier
	pruner   *stream.Pruner
	stream   stream.Options
	logger   *slog.Logger

	Presence *presence.Tracker
}

// New returns a Server backed by the given store.
func New(s store.Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = changelog.NewNotifier()
	}
	pruner := stream.NewPruner(s, opts.Retention, opts.TrimProbability, logger)

	so := opts.Stream
	so.Pruner = pruner
	if so.Logger == nil {
		so.Logger = logger
	}

	return &Server{
		store:    s,
		writer:   changelog.NewWriter(s, opts.Publisher, notifier, logger),
		notifier: notifier,
		pruner:   pruner,
		stream:   so,
		logger:   logger,
		Presence: presence.New(),
	}
}

// Notifier returns the wake notifier stream sessions subscribe to.
func (s *Server) Notifier() *changelog.Notifier {
	return s.notifier
}

// inputError indicates invalid user input.
// Transport layers map this to 400.
type inputError string

func (e inputError) Error() string { return string(e) }

// asInputError converts a *model.ValidationError into an inputError and
// passes any other error through.
func asInputError(err error) error {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return inputError(ve.Error())
	}
	return err
}

// --- users ---

type createUserInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Color string `json:"color"`
}

func (s *Server) createUser(ctx context.Context, in createUserInput) (*model.User, error) {
	u := &model.User{
		Name:  strings.TrimSpace(in.Name),
		Email: strings.TrimSpace(in.Email),
		Color: in.Color,
	}
	if err := model.ValidateUser(u); err != nil {
		return nil, asInputError(err)
	}
	if u.Color == "" {
		u.Color = model.DefaultUserColor
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.writer.Record(ctx, model.ChangeUserCreated, changelog.Static(u))
	return u, nil
}

// --- events ---

type createEventInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day"`
	OwnerID     int64     `json:"owner_id"`
}

func (s *Server) createEvent(ctx context.Context, in createEventInput) (*model.EventView, error) {
	e := &model.Event{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		StartAt:     in.Start,
		EndAt:       in.End,
		AllDay:      in.AllDay,
		OwnerID:     in.OwnerID,
	}
	if err := model.ValidateEvent(e); err != nil {
		return nil, asInputError(err)
	}
	if err := s.checkOwner(ctx, e.OwnerID); err != nil {
		return nil, err
	}
	if err := s.store.CreateEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return s.recordEventChange(ctx, model.ChangeCreate, e.ID)
}

// updateEventInput is a partial update; nil fields are left unchanged.
type updateEventInput struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Start       *time.Time `json:"start"`
	End         *time.Time `json:"end"`
	AllDay      *bool      `json:"all_day"`
	OwnerID     *int64     `json:"owner_id"`
}

func (s *Server) updateEvent(ctx context.Context, id int64, in updateEventInput) (*model.EventView, error) {
	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		e.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		e.Description = *in.Description
	}
	if in.Start != nil {
		e.StartAt = *in.Start
	}
	if in.End != nil {
		e.EndAt = *in.End
	}
	if in.AllDay != nil {
		e.AllDay = *in.AllDay
	}
	if in.OwnerID != nil {
		e.OwnerID = *in.OwnerID
	}
	if err := model.ValidateEvent(e); err != nil {
		return nil, asInputError(err)
	}
	if in.OwnerID != nil {
		if err := s.checkOwner(ctx, e.OwnerID); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateEvent(ctx, e); err != nil {
		return nil, err
	}
	return s.recordEventChange(ctx, model.ChangeUpdate, id)
}

// checkOwner reports an inputError when the user does not exist.
func (s *Server) checkOwner(ctx context.Context, id int64) error {
	if _, err := s.store.GetUser(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return inputError(fmt.Sprintf("owner %d does not exist", id))
		}
		return fmt.Errorf("get owner: %w", err)
	}
	return nil
}

func (s *Server) deleteEvent(ctx context.Context, id int64) error {
	if err := s.store.DeleteEvent(ctx, id); err != nil {
		return err
	}
	s.writer.Record(ctx, model.ChangeDelete, changelog.Static(model.EventRef{ID: id}))
	return nil
}

// recordEventChange appends a create or update record carrying the event
// joined with its owner, and returns that view for the response.
func (s *Server) recordEventChange(ctx context.Context, eventType string, id int64) (*model.EventView, error) {
	var view *model.EventView
	s.writer.Record(ctx, eventType, func(ctx context.Context) (any, error) {
		v, err := s.store.GetEventView(ctx, id)
		if err != nil {
			return nil, err
		}
		view = v
		return v, nil
	})
	if view != nil {
		return view, nil
	}
	// The record was not written but the mutation is committed.
	v, err := s.store.GetEventView(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get event view: %w", err)
	}
	return v, nil
}

// --- notifications ---

type notifyInput struct {
	Type     string            `json:"type"`
	Message  string            `json:"message"`
	Severity string            `json:"severity"`
	Metadata map[string]string `json:"metadata"`
}

// notifyResult reports the id of the appended record, 0 when the append failed.
type notifyResult struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

func (s *Server) notify(ctx context.Context, in notifyInput) (*notifyResult, error) {
	eventType := strings.TrimSpace(in.Type)
	if eventType == "" {
		eventType = model.ChangeNotify
	}
	n := &model.Notification{
		Message:  in.Message,
		Severity: in.Severity,
		Metadata: in.Metadata,
	}
	if err := model.ValidateNotification(eventType, n); err != nil {
		return nil, asInputError(err)
	}
	id := s.writer.Record(ctx, eventType, changelog.Static(n))
	return &notifyResult{ID: id, Type: eventType}, nil
}
