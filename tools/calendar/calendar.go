// Package calendar exposes Google Calendar event management as agent tools.
//
// Two operations are provided: add_to_calendar creates timed or all-day
// events, delete_event removes events matched by title on a given date.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sentinel "github.com/key-r-code/drexel-sentinel"
)

// DefaultTimezone is the campus timezone applied to timed events.
const DefaultTimezone = "America/New_York"

// examColorID is the "Graphite" calendar color applied to assessments.
const examColorID = "8"

// Event is a calendar event in the shape the Google Calendar v3 API expects.
// For timed events StartDateTime/EndDateTime are set; for all-day events
// StartDate/EndDate are set. The two forms are mutually exclusive.
type Event struct {
	ID          string
	Summary     string
	Location    string
	Description string
	ColorID     string
	Timezone    string

	StartDateTime string // RFC3339 local, e.g. 2026-01-15T14:00:00
	EndDateTime   string
	StartDate     string // YYYY-MM-DD, all-day form
	EndDate       string
}

// Service is the calendar backend. Satisfied by *GoogleService and by test
// fakes.
type Service interface {
	// Insert creates the event and returns its id.
	Insert(ctx context.Context, ev Event) (string, error)
	// List returns events on the given date (UTC day bounds) whose text
	// matches query.
	List(ctx context.Context, date, query string) ([]Event, error)
	// Delete removes the event with the given id.
	Delete(ctx context.Context, eventID string) error
}

// Tool implements the add_to_calendar and delete_event operations.
type Tool struct {
	svc      Service
	timezone string
	logger   *slog.Logger
}

// Option configures a calendar Tool.
type Option func(*Tool)

// WithTimezone overrides the timezone applied to timed events.
func WithTimezone(tz string) Option {
	return func(t *Tool) { t.timezone = tz }
}

// WithLogger sets a structured logger for the tool.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tool) { t.logger = l }
}

// New creates a calendar Tool backed by the given Service.
func New(svc Service, opts ...Option) *Tool {
	t := &Tool{
		svc:      svc,
		timezone: DefaultTimezone,
		logger:   slog.New(discardHandler{}),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

func (t *Tool) Definitions() []sentinel.ToolDefinition {
	return []sentinel.ToolDefinition{
		{
			Name:        "add_to_calendar",
			Description: "Adds a detailed event to the Google Calendar. Use '[COURSE]: [TYPE]' as the title format (e.g. 'MATH 291: Exam 1').",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"title":{"type":"string","description":"Event title in '[COURSE]: [TYPE]' format (e.g. 'MATH 291: Exam 1')"},
				"date_str":{"type":"string","description":"Event date in YYYY-MM-DD format"},
				"time_str":{"type":"string","description":"Start time in HH:MM 24-hour format. Leave empty if the time is unknown or TBD."},
				"location":{"type":"string","description":"Building name. Leave empty if unknown or TBD."},
				"description":{"type":"string","description":"Room number or additional notes. Leave empty if unknown or TBD."}
			},"required":["title","date_str"]}`),
		},
		{
			Name:        "delete_event",
			Description: "Deletes events from the calendar matched by title on a specific date.",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"event_title":{"type":"string","description":"Title (or part of it) of the event to delete"},
				"date_str":{"type":"string","description":"Event date in YYYY-MM-DD format"}
			},"required":["event_title","date_str"]}`),
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (sentinel.ToolResult, error) {
	var result string
	var err error

	switch name {
	case "add_to_calendar":
		result, err = t.handleAdd(ctx, args)
	case "delete_event":
		result, err = t.handleDelete(ctx, args)
	default:
		return sentinel.ToolResult{Error: "unknown calendar tool: " + name}, nil
	}

	if err != nil {
		return sentinel.ToolResult{Error: err.Error()}, nil
	}
	return sentinel.ToolResult{Content: result}, nil
}

func (t *Tool) handleAdd(ctx context.Context, args json.RawMessage) (string, error) {
	var p struct {
		Title       string `json:"title"`
		DateStr     string `json:"date_str"`
		TimeStr     string `json:"time_str"`
		Location    string `json:"location"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return "", fmt.Errorf("invalid args: %w", err)
	}
	if p.Title == "" || p.DateStr == "" {
		return "", fmt.Errorf("title and date_str are required")
	}

	ev := Event{
		Summary:     p.Title,
		Location:    normalizeField(p.Location),
		Description: normalizeField(p.Description),
		ColorID:     colorFor(p.Title),
		Timezone:    t.timezone,
	}

	timeStr := normalizeField(p.TimeStr)
	timed := false
	if timeStr != "" {
		start, err := time.Parse("2006-01-02T15:04", p.DateStr+"T"+timeStr)
		if err != nil {
			// Unparseable times degrade to an all-day event rather than
			// surfacing an error back to the model.
			t.logger.Debug("calendar: time parse failed, falling back to all-day",
				"time", timeStr, "date", p.DateStr, "error", err)
		} else {
			ev.StartDateTime = start.Format("2006-01-02T15:04:05")
			ev.EndDateTime = start.Add(time.Hour).Format("2006-01-02T15:04:05")
			timed = true
		}
	}
	if !timed {
		ev.StartDate = p.DateStr
		ev.EndDate = p.DateStr
	}

	t.logger.Info("calendar: adding event",
		"title", p.Title, "date", p.DateStr, "timed", timed, "color", ev.ColorID)

	id, err := t.svc.Insert(ctx, ev)
	if err != nil {
		return "", fmt.Errorf("error adding event: %w", err)
	}
	t.logger.Debug("calendar: event created", "id", id)

	room := ev.Description
	if room == "" {
		room = "N/A"
	}
	return fmt.Sprintf("Successfully added '%s' for %s (Room: %s).", p.Title, p.DateStr, room), nil
}

func (t *Tool) handleDelete(ctx context.Context, args json.RawMessage) (string, error) {
	var p struct {
		EventTitle string `json:"event_title"`
		DateStr    string `json:"date_str"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return "", fmt.Errorf("invalid args: %w", err)
	}
	if p.EventTitle == "" || p.DateStr == "" {
		return "", fmt.Errorf("event_title and date_str are required")
	}

	events, err := t.svc.List(ctx, p.DateStr, p.EventTitle)
	if err != nil {
		return "", fmt.Errorf("error deleting event: %w", err)
	}
	t.logger.Info("calendar: delete matched", "title", p.EventTitle, "date", p.DateStr, "count", len(events))

	if len(events) == 0 {
		return fmt.Sprintf("No events found matching '%s' on %s.", p.EventTitle, p.DateStr), nil
	}

	for _, ev := range events {
		if err := t.svc.Delete(ctx, ev.ID); err != nil {
			return "", fmt.Errorf("error deleting event: %w", err)
		}
		t.logger.Debug("calendar: deleted event", "id", ev.ID, "summary", ev.Summary)
	}
	return fmt.Sprintf("Removed %d event(s) matching '%s' from %s.", len(events), p.EventTitle, p.DateStr), nil
}

// placeholders the upstream model uses for "no value". Compared
// case-insensitively.
var placeholders = map[string]bool{
	"":        true,
	"TBD":     true,
	"NONE":    true,
	"UNKNOWN": true,
	"N/A":     true,
}

// normalizeField maps placeholder values to the empty string and trims
// whitespace from real values.
func normalizeField(s string) string {
	trimmed := strings.TrimSpace(s)
	if placeholders[strings.ToUpper(trimmed)] {
		return ""
	}
	return trimmed
}

// colorFor returns the graphite color id for assessment events.
func colorFor(title string) string {
	lower := strings.ToLower(title)
	for _, kw := range []string{"exam", "midterm", "quiz"} {
		if strings.Contains(lower, kw) {
			return examColorID
		}
	}
	return ""
}
