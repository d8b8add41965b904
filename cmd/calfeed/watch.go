package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/calfeed/internal/calendar"
	"github.com/alfredjeanlab/calfeed/internal/client"
	"github.com/alfredjeanlab/calfeed/internal/idgen"
	"github.com/alfredjeanlab/calfeed/internal/model"
	"github.com/alfredjeanlab/calfeed/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Show the calendar and follow changes live",
	GroupID: "changes",
	Long: `Watch loads the calendar, then follows the change stream and keeps the
view current. The stream is resumed from the last change seen whenever the
server rotates the session or the connection drops; failed reconnects back
off exponentially up to --max-backoff. Send SIGCONT (e.g. "fg" after ^Z)
to retry immediately.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		owners, _ := cmd.Flags().GetInt64Slice("owner")
		if !cmd.Flags().Changed("owner") && os.Getenv("CALFEED_URL") == "" {
			owners = activeRemote().Owners
		}
		plain, _ := cmd.Flags().GetBool("plain")
		baseDelay, _ := cmd.Flags().GetDuration("backoff")
		maxDelay, _ := cmd.Flags().GetDuration("max-backoff")
		verbose, _ := cmd.Flags().GetBool("verbose")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		w := &watcher{
			out:    os.Stdout,
			redraw: !plain && !jsonOutput && ui.ShouldUseColor(os.Stdout),
			width:  ui.Width(os.Stdout, 100),
			cal:    calendar.New(owners...),
			state:  client.StateDisconnected,
		}

		// Baseline: read the cursor before the events so nothing changed in
		// between is missed. Changes replayed from before the list are
		// idempotent.
		page, err := calClient.ListChanges(ctx, 0, 1)
		if err != nil {
			return fmt.Errorf("reading change cursor: %w", err)
		}
		views, err := calClient.ListEvents(ctx, &client.ListEventsRequest{OwnerIDs: owners})
		if err != nil {
			return fmt.Errorf("loading events: %w", err)
		}
		w.cal.Load(views)
		if err := w.refreshUsers(ctx); err != nil {
			return err
		}

		w.cal.OnUsersChanged = func() {
			go func() {
				if err := w.refreshUsers(ctx); err != nil && ctx.Err() == nil {
					logger.Warn("refreshing users failed", "err", err)
				}
				w.render(nil)
			}()
		}

		if hc, ok := calClient.(*client.HTTPClient); ok {
			if id, err := idgen.Client(); err == nil {
				hc.SetClientID(id)
				logger.Debug("watch client", "client_id", id)
			}
		}

		sc := client.NewStreamClient(calClient, page.Latest, client.StreamOptions{
			Backoff: client.Backoff{Base: baseDelay, Cap: maxDelay},
			Logger:  logger,
			OnRecord: func(rec *model.ChangeRecord) {
				if err := w.cal.Apply(rec); err != nil {
					logger.Warn("ignoring change", "id", rec.ID, "type", rec.EventType, "err", err)
					return
				}
				w.render(rec)
			},
			OnState: func(s client.State) {
				w.setState(s)
			},
		})
		w.cursor = sc.Cursor

		// SIGCONT is sent when a suspended process resumes.
		contCh := make(chan os.Signal, 1)
		signal.Notify(contCh, syscall.SIGCONT)
		defer signal.Stop(contCh)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-contCh:
					sc.Nudge()
				}
			}
		}()

		w.render(nil)
		if err := sc.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

// watcher renders a calendar fed by a StreamClient. In redraw mode the
// whole screen is repainted on every change; otherwise one line is logged
// per change.
type watcher struct {
	mu     sync.Mutex
	out    io.Writer
	redraw bool
	width  int
	cal    *calendar.Calendar
	state  client.State
	users  []*model.User
	cursor func() int64
}

func (w *watcher) refreshUsers(ctx context.Context) error {
	users, err := calClient.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("loading users: %w", err)
	}
	w.mu.Lock()
	w.users = users
	w.mu.Unlock()
	return nil
}

func (w *watcher) setState(s client.State) {
	w.mu.Lock()
	w.state = s
	redraw := w.redraw
	w.mu.Unlock()
	if redraw {
		w.render(nil)
		return
	}
	w.logLine(ui.RenderStatus(string(s)))
}

// render repaints the screen, or logs rec in plain mode.
func (w *watcher) render(rec *model.ChangeRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.redraw {
		if rec == nil {
			return
		}
		if jsonOutput {
			data, _ := json.Marshal(rec)
			fmt.Fprintln(w.out, string(data))
			return
		}
		fmt.Fprintf(w.out, "%s %s\n", ui.RenderMuted(time.Now().Format("15:04:05")), describeChange(rec))
		return
	}

	var cursor int64
	if w.cursor != nil {
		cursor = w.cursor()
	}
	screen := renderScreen(w.state, cursor, w.users, w.cal.Events(), w.cal.Notices(), w.width)
	fmt.Fprint(w.out, "\x1b[H\x1b[2J"+screen)
}

func (w *watcher) logLine(s string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if jsonOutput {
		return
	}
	fmt.Fprintf(w.out, "%s %s\n", ui.RenderMuted(time.Now().Format("15:04:05")), s)
}

// renderScreen draws the full watch view: a status bar, the visible users,
// the events in start order and the most recent notices.
func renderScreen(state client.State, cursor int64, users []*model.User, events []*model.EventView, notices []calendar.Notice, width int) string {
	var b strings.Builder

	status := ui.RenderStatus(string(state))
	fmt.Fprintf(&b, "%s  %s\n", status, ui.RenderMuted(fmt.Sprintf("cursor %d", cursor)))
	b.WriteString(ui.RenderMuted(strings.Repeat("─", max(width, 20))) + "\n")

	if len(users) > 0 {
		names := make([]string, len(users))
		for i, u := range users {
			names[i] = ui.RenderOwner(u.Color, u.Name)
		}
		fmt.Fprintf(&b, "%s %s\n\n", ui.RenderAccent("Users:"), strings.Join(names, ", "))
	}

	b.WriteString(ui.RenderAccent("Events:") + "\n")
	if len(events) == 0 {
		b.WriteString("  " + ui.RenderMuted("no events") + "\n")
	}
	titleWidth := max(width-40, 20)
	for _, v := range events {
		fmt.Fprintf(&b, "  %-28s %s  %s\n",
			formatSpan(&v.Event),
			truncate(v.Title, titleWidth),
			ui.RenderOwner(v.OwnerColor, v.OwnerName),
		)
	}

	if len(notices) > 0 {
		b.WriteString("\n" + ui.RenderAccent("Notices:") + "\n")
		start := max(len(notices)-5, 0)
		for _, n := range notices[start:] {
			fmt.Fprintf(&b, "  #%d %s [%s] %s\n", n.ID, n.Type, severity(n.Severity), n.Message)
		}
	}
	return b.String()
}

// describeChange is the one-line form of a change record in plain mode.
func describeChange(rec *model.ChangeRecord) string {
	switch rec.EventType {
	case model.ChangeCreate, model.ChangeUpdate:
		var v model.EventView
		if json.Unmarshal(rec.Payload, &v) == nil {
			return fmt.Sprintf("#%d %s event %d %q (%s, %s)", rec.ID, rec.EventType, v.ID, v.Title, v.OwnerName, formatSpan(&v.Event))
		}
	case model.ChangeDelete:
		var ref model.EventRef
		if json.Unmarshal(rec.Payload, &ref) == nil {
			return fmt.Sprintf("#%d delete event %d", rec.ID, ref.ID)
		}
	case model.ChangeUserCreated:
		var u model.User
		if json.Unmarshal(rec.Payload, &u) == nil {
			return fmt.Sprintf("#%d new user %s", rec.ID, u.Name)
		}
	default:
		var n model.Notification
		if json.Unmarshal(rec.Payload, &n) == nil && n.Message != "" {
			return fmt.Sprintf("#%d %s [%s] %s", rec.ID, ui.RenderAccent(rec.EventType), severity(n.Severity), n.Message)
		}
	}
	return fmt.Sprintf("#%d %s %s", rec.ID, rec.EventType, truncate(string(rec.Payload), 60))
}

func severity(s string) string {
	if s == "" {
		return "info"
	}
	return s
}

func init() {
	watchCmd.Flags().Int64Slice("owner", nil, "only show events of these user ids (default: the active remote's owners)")
	watchCmd.Flags().Bool("plain", false, "log one line per change instead of redrawing")
	watchCmd.Flags().Duration("backoff", client.DefaultBackoff.Base, "first reconnect delay")
	watchCmd.Flags().Duration("max-backoff", client.DefaultBackoff.Cap, "maximum reconnect delay")
	watchCmd.Flags().BoolP("verbose", "v", false, "log stream connection details")
}
