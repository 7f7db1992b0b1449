package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2/microsoft"

	"gitea.jw6.us/james/calsync/internal/metrics"
	"gitea.jw6.us/james/calsync/internal/store"
)

const (
	msGraphBaseURL = "https://graph.microsoft.com/v1.0"
	// Graph returns dateTime without an offset and with up to seven fractional digits.
	graphTimeLayout = "2006-01-02T15:04:05.9999999"
	// Upper bound on followed @odata.nextLink pages per sync.
	maxOutlookPages = 200
)

// Outlook reads the signed-in user's calendar view through Microsoft Graph.
type Outlook struct {
	oauthClient
	apiBaseURL string
}

// OutlookEvent is the subset of a Graph event resource the normalizer reads.
type OutlookEvent struct {
	ID          string           `json:"id"`
	Subject     string           `json:"subject"`
	BodyPreview string           `json:"bodyPreview"`
	Body        *OutlookBody     `json:"body"`
	Start       *OutlookDateTime `json:"start"`
	End         *OutlookDateTime `json:"end"`
	Location    *OutlookLocation `json:"location"`
	IsAllDay    bool             `json:"isAllDay"`
}

type OutlookBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type OutlookDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type OutlookLocation struct {
	DisplayName string `json:"displayName"`
}

func (e OutlookEvent) ProviderEventID() string { return e.ID }

type outlookPage struct {
	Value    []OutlookEvent `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

func NewOutlook(ctx context.Context, cfg Config) (*Outlook, error) {
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = "common"
	}
	client, err := newOAuthClient(ctx, store.SourceOutlook, cfg, microsoft.AzureADEndpoint(tenant),
		[]string{"offline_access", "Calendars.Read"},
	)
	if err != nil {
		return nil, err
	}
	base := strings.TrimRight(cfg.APIBaseURL, "/")
	if base == "" {
		base = msGraphBaseURL
	}
	return &Outlook{oauthClient: client, apiBaseURL: base}, nil
}

func (o *Outlook) FetchEvents(ctx context.Context, accessToken string) ([]RawEvent, error) {
	start := time.Now()
	events, err := o.listEvents(ctx, accessToken)
	metrics.ObserveProviderCall(string(o.source), "list_events", start, err)
	return events, err
}

func (o *Outlook) listEvents(ctx context.Context, accessToken string) ([]RawEvent, error) {
	client := o.bearerClient(ctx, accessToken)

	from, to := Window(o.now())
	params := url.Values{}
	params.Set("startDateTime", from.UTC().Format(time.RFC3339))
	params.Set("endDateTime", to.UTC().Format(time.RFC3339))
	next := o.apiBaseURL + "/me/calendarView?" + params.Encode()

	var out []RawEvent
	for pages := 0; next != ""; pages++ {
		if pages == maxOutlookPages {
			return nil, fmt.Errorf("outlook calendar view exceeds %d pages", maxOutlookPages)
		}
		page, err := o.fetchPage(ctx, client, next)
		if err != nil {
			return nil, err
		}
		for _, ev := range page.Value {
			out = append(out, ev)
		}
		next = page.NextLink
		if next != "" {
			if err := o.checkNextLink(next); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// checkNextLink keeps the bearer token on the configured Graph origin.
func (o *Outlook) checkNextLink(link string) error {
	base, err := url.Parse(o.apiBaseURL)
	if err != nil {
		return fmt.Errorf("parse outlook api base url: %w", err)
	}
	next, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("parse outlook next link: %w", err)
	}
	if !strings.EqualFold(next.Scheme, base.Scheme) || !strings.EqualFold(next.Host, base.Host) {
		return fmt.Errorf("outlook next link points to foreign host %q", next.Host)
	}
	return nil
}

func (o *Outlook) fetchPage(ctx context.Context, client *http.Client, endpoint string) (*outlookPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create outlook request: %w", err)
	}
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)
	req.Header.Add("Prefer", `outlook.body-content-type="text"`)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list outlook events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &APIError{Provider: store.SourceOutlook, StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	var page outlookPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode outlook events: %w", err)
	}
	return &page, nil
}

func (o *Outlook) Normalize(raw RawEvent) (store.Event, error) {
	rec, ok := raw.(OutlookEvent)
	if !ok {
		return store.Event{}, &NormalizationError{Provider: store.SourceOutlook, Reason: fmt.Sprintf("unexpected record %T", raw)}
	}
	return normalizeOutlook(rec)
}

func normalizeOutlook(item OutlookEvent) (store.Event, error) {
	fail := func(reason string) (store.Event, error) {
		return store.Event{}, &NormalizationError{Provider: store.SourceOutlook, EventID: item.ID, Reason: reason}
	}
	if item.ID == "" {
		return fail("missing id")
	}
	if item.Start == nil || item.Start.DateTime == "" {
		return fail("missing start")
	}

	start, allDay, err := parseGraphTime(item.Start, item.IsAllDay)
	if err != nil {
		return fail("start: " + err.Error())
	}

	ev := store.Event{
		Title:         item.Subject,
		Description:   item.BodyPreview,
		Start:         start,
		AllDay:        allDay,
		Priority:      store.PriorityMedium,
		Source:        store.SourceOutlook,
		SourceEventID: item.ID,
	}
	if item.Body != nil && item.Body.Content != "" {
		ev.Description = item.Body.Content
	}
	if item.Location != nil {
		ev.Location = item.Location.DisplayName
	}
	if item.End != nil && item.End.DateTime != "" {
		end, _, err := parseGraphTime(item.End, item.IsAllDay)
		if err != nil {
			return fail("end: " + err.Error())
		}
		ev.End = &end
	}
	return ev, nil
}

// parseGraphTime accepts date-only values, Graph's offset-less timestamps
// interpreted in timeZone (IANA or Windows id), and RFC 3339 timestamps. All-day values keep only the date.
func parseGraphTime(t *OutlookDateTime, isAllDay bool) (time.Time, bool, error) {
	value := strings.TrimSpace(t.DateTime)
	if len(value) == len(dateLayout) {
		d, err := time.Parse(dateLayout, value)
		return d, true, err
	}
	if isAllDay && len(value) > len(dateLayout) {
		d, err := time.Parse(dateLayout, value[:len(dateLayout)])
		return d, true, err
	}

	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, false, nil
	}

	loc, err := loadZone(strings.TrimSpace(t.TimeZone))
	if err != nil {
		return time.Time{}, false, err
	}
	ts, err := time.ParseInLocation(graphTimeLayout, value, loc)
	return ts, false, err
}
