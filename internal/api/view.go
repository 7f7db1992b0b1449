package api

import (
	"time"

	"gitea.jw6.us/james/calsync/internal/store"
)

const dateLayout = "2006-01-02"

// eventView is the wire shape of a canonical event.
type eventView struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	Location      string  `json:"location"`
	StartDate     string  `json:"startDate"`
	EndDate       *string `json:"endDate,omitempty"`
	AllDay        bool    `json:"allDay"`
	Priority      string  `json:"priority"`
	Source        string  `json:"source"`
	SourceEventID string  `json:"sourceEventId,omitempty"`
	CreatedBy     string  `json:"createdBy"`
}

func newEventView(ev store.Event) eventView {
	v := eventView{
		ID:            ev.ID,
		Title:         ev.Title,
		Description:   ev.Description,
		Location:      ev.Location,
		StartDate:     formatEventTime(ev.Start, ev.AllDay),
		AllDay:        ev.AllDay,
		Priority:      string(ev.Priority),
		Source:        string(ev.Source),
		SourceEventID: ev.SourceEventID,
		CreatedBy:     ev.CreatedBy,
	}
	if ev.End != nil {
		end := formatEventTime(*ev.End, ev.AllDay)
		v.EndDate = &end
	}
	return v
}

// All-day values are dates; everything else is an RFC 3339 timestamp in UTC.
func formatEventTime(t time.Time, allDay bool) string {
	if allDay {
		return t.UTC().Format(dateLayout)
	}
	return t.UTC().Format(time.RFC3339)
}
