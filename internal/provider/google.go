package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"gitea.jw6.us/james/calsync/internal/metrics"
	"gitea.jw6.us/james/calsync/internal/store"
)

const dateLayout = "2006-01-02"

// Google reads the primary calendar through the Calendar v3 API.
type Google struct {
	oauthClient
	apiBaseURL string
}

// GoogleEvent wraps a Calendar v3 event as a RawEvent.
type GoogleEvent struct {
	*calendar.Event
}

func (e GoogleEvent) ProviderEventID() string {
	if e.Event == nil {
		return ""
	}
	return e.Id
}

func NewGoogle(ctx context.Context, cfg Config) (*Google, error) {
	client, err := newOAuthClient(ctx, store.SourceGoogle, cfg, google.Endpoint,
		[]string{calendar.CalendarReadonlyScope},
		oauth2.AccessTypeOffline, oauth2.ApprovalForce,
	)
	if err != nil {
		return nil, err
	}
	return &Google{oauthClient: client, apiBaseURL: cfg.APIBaseURL}, nil
}

func (g *Google) FetchEvents(ctx context.Context, accessToken string) ([]RawEvent, error) {
	start := time.Now()
	events, err := g.listEvents(ctx, accessToken)
	metrics.ObserveProviderCall(string(g.source), "list_events", start, err)
	return events, err
}

func (g *Google) listEvents(ctx context.Context, accessToken string) ([]RawEvent, error) {
	opts := []option.ClientOption{option.WithHTTPClient(g.bearerClient(ctx, accessToken))}
	if g.apiBaseURL != "" {
		opts = append(opts, option.WithEndpoint(g.apiBaseURL))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create google calendar client: %w", err)
	}

	from, to := Window(g.now())
	call := svc.Events.List("primary").
		TimeMin(from.UTC().Format(time.RFC3339)).
		TimeMax(to.UTC().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")

	var out []RawEvent
	err = call.Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			out = append(out, GoogleEvent{Event: item})
		}
		return nil
	})
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, &APIError{Provider: store.SourceGoogle, StatusCode: apiErr.Code, Status: http.StatusText(apiErr.Code)}
		}
		return nil, fmt.Errorf("list google events: %w", err)
	}
	return out, nil
}

func (g *Google) Normalize(raw RawEvent) (store.Event, error) {
	rec, ok := raw.(GoogleEvent)
	if !ok || rec.Event == nil {
		return store.Event{}, &NormalizationError{Provider: store.SourceGoogle, Reason: fmt.Sprintf("unexpected record %T", raw)}
	}
	return normalizeGoogle(rec.Event)
}

func normalizeGoogle(item *calendar.Event) (store.Event, error) {
	fail := func(reason string) (store.Event, error) {
		return store.Event{}, &NormalizationError{Provider: store.SourceGoogle, EventID: item.Id, Reason: reason}
	}
	if item.Id == "" {
		return fail("missing id")
	}
	if item.Start == nil {
		return fail("missing start")
	}

	start, allDay, err := parseGoogleTime(item.Start)
	if err != nil {
		return fail("start: " + err.Error())
	}

	ev := store.Event{
		Title:         item.Summary,
		Description:   item.Description,
		Location:      item.Location,
		Start:         start,
		AllDay:        allDay,
		Priority:      store.PriorityMedium,
		Source:        store.SourceGoogle,
		SourceEventID: item.Id,
	}
	if item.End != nil && (item.End.Date != "" || item.End.DateTime != "") {
		end, _, err := parseGoogleTime(item.End)
		if err != nil {
			return fail("end: " + err.Error())
		}
		ev.End = &end
	}
	return ev, nil
}

// parseGoogleTime reads either the date-only or the timestamp form.
func parseGoogleTime(t *calendar.EventDateTime) (time.Time, bool, error) {
	switch {
	case t.Date != "":
		d, err := time.Parse(dateLayout, t.Date)
		return d, true, err
	case t.DateTime != "":
		ts, err := time.Parse(time.RFC3339, t.DateTime)
		return ts, false, err
	}
	return time.Time{}, false, errors.New("neither date nor dateTime set")
}
