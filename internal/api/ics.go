package api

import (
	"io"
	"time"

	ics "github.com/arran4/golang-ical"

	"gitea.jw6.us/james/calsync/internal/store"
)

const sourceProperty = ics.ComponentProperty("X-CALSYNC-SOURCE")

var icsPriority = map[store.Priority]string{
	store.PriorityHigh:   "1",
	store.PriorityMedium: "5",
	store.PriorityLow:    "9",
}

func writeICS(w io.Writer, events []store.Event) error {
	cal := ics.NewCalendarFor("calsync")
	cal.SetMethod(ics.MethodPublish)

	for _, ev := range events {
		vevent := cal.AddEvent(ev.ID + "@calsync")
		stamp := ev.UpdatedAt
		if stamp.IsZero() {
			stamp = time.Now()
		}
		vevent.SetDtStampTime(stamp)
		vevent.SetSummary(ev.Title)
		if ev.Description != "" {
			vevent.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			vevent.SetLocation(ev.Location)
		}
		if ev.AllDay {
			vevent.SetAllDayStartAt(ev.Start.UTC())
			if ev.End != nil {
				vevent.SetAllDayEndAt(ev.End.UTC())
			}
		} else {
			vevent.SetStartAt(ev.Start)
			if ev.End != nil {
				vevent.SetEndAt(*ev.End)
			}
		}
		if p, ok := icsPriority[ev.Priority]; ok {
			vevent.SetProperty(ics.ComponentPropertyPriority, p)
		}
		vevent.SetProperty(sourceProperty, string(ev.Source))
	}

	return cal.SerializeTo(w)
}
