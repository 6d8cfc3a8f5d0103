package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const calendarScope = "https://www.googleapis.com/auth/calendar"

var googleBaseURL = "https://www.googleapis.com/calendar/v3"

// GoogleService implements Service against the Google Calendar v3 REST API,
// authenticated with a service account JWT.
type GoogleService struct {
	calendarID string
	httpClient *http.Client
}

var _ Service = (*GoogleService)(nil)

// NewGoogleService creates a GoogleService from a service account key file.
// The returned client refreshes its OAuth token automatically.
func NewGoogleService(ctx context.Context, credentialsPath, calendarID string) (*GoogleService, error) {
	keyJSON, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("calendar: read credentials: %w", err)
	}
	cfg, err := google.JWTConfigFromJSON(keyJSON, calendarScope)
	if err != nil {
		return nil, fmt.Errorf("calendar: parse service account key: %w", err)
	}
	client := oauth2.NewClient(ctx, cfg.TokenSource(ctx))
	client.Timeout = 15 * time.Second
	return &GoogleService{calendarID: calendarID, httpClient: client}, nil
}

// NewGoogleServiceWithClient creates a GoogleService with a caller-supplied
// http.Client. Used in tests against a stub server.
func NewGoogleServiceWithClient(calendarID string, client *http.Client) *GoogleService {
	return &GoogleService{calendarID: calendarID, httpClient: client}
}

// wire types for the events API

type gcalTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type gcalEvent struct {
	ID          string    `json:"id,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	ColorID     string    `json:"colorId,omitempty"`
	Start       *gcalTime `json:"start,omitempty"`
	End         *gcalTime `json:"end,omitempty"`
}

type gcalEventList struct {
	Items []gcalEvent `json:"items"`
}

// Insert creates the event and returns the id assigned by Google.
func (g *GoogleService) Insert(ctx context.Context, ev Event) (string, error) {
	body := gcalEvent{
		Summary:     ev.Summary,
		Location:    ev.Location,
		Description: ev.Description,
		ColorID:     ev.ColorID,
	}
	if ev.StartDateTime != "" {
		body.Start = &gcalTime{DateTime: ev.StartDateTime, TimeZone: ev.Timezone}
		body.End = &gcalTime{DateTime: ev.EndDateTime, TimeZone: ev.Timezone}
	} else {
		body.Start = &gcalTime{Date: ev.StartDate}
		body.End = &gcalTime{Date: ev.EndDate}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("calendar: marshal event: %w", err)
	}

	u := fmt.Sprintf("%s/calendars/%s/events", googleBaseURL, url.PathEscape(g.calendarID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var created gcalEvent
	if err := g.do(req, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// List returns events on the given date (UTC day bounds) matching query.
func (g *GoogleService) List(ctx context.Context, date, query string) ([]Event, error) {
	q := url.Values{}
	q.Set("timeMin", date+"T00:00:00Z")
	q.Set("timeMax", date+"T23:59:59Z")
	q.Set("q", query)
	q.Set("singleEvents", "true")

	u := fmt.Sprintf("%s/calendars/%s/events?%s", googleBaseURL, url.PathEscape(g.calendarID), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var list gcalEventList
	if err := g.do(req, &list); err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(list.Items))
	for _, it := range list.Items {
		ev := Event{
			ID:          it.ID,
			Summary:     it.Summary,
			Location:    it.Location,
			Description: it.Description,
			ColorID:     it.ColorID,
		}
		if it.Start != nil {
			ev.StartDateTime = it.Start.DateTime
			ev.StartDate = it.Start.Date
		}
		if it.End != nil {
			ev.EndDateTime = it.End.DateTime
			ev.EndDate = it.End.Date
		}
		events = append(events, ev)
	}
	return events, nil
}

// Delete removes the event with the given id.
func (g *GoogleService) Delete(ctx context.Context, eventID string) error {
	u := fmt.Sprintf("%s/calendars/%s/events/%s",
		googleBaseURL, url.PathEscape(g.calendarID), url.PathEscape(eventID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	return g.do(req, nil)
}

// do executes the request and decodes a JSON response into out when non-nil.
func (g *GoogleService) do(req *http.Request, out any) error {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calendar: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("calendar: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("calendar: api status %d: %s", resp.StatusCode, string(body))
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("calendar: decode response: %w", err)
		}
	}
	return nil
}
