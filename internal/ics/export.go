// Package ics converts between almanac data and iCalendar (RFC 5545).
package ics

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"almanac/internal/model"
)

const productID = "-//almanac//Caribbean Almanac//EN"

// now stamps DTSTAMP; tests pin it.
var now = time.Now

// UID returns the stable iCalendar UID of an occurrence.
func UID(o model.Occurrence) string {
	return fmt.Sprintf("%s-%04d%02d%02d@almanac", o.TemplateID, o.Date.Year, int(o.Date.Month), o.Date.Day)
}

// NewCalendar builds a published calendar with one all-day VEVENT per
// occurrence.
func NewCalendar(name string, occs []model.Occurrence) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetName(name)
		cal.SetXWRCalName(name)
	}

	stamp := now().UTC()
	for _, o := range occs {
		ev := cal.AddEvent(UID(o))
		ev.SetDtStampTime(stamp)
		ev.SetAllDayStartAt(o.Date.Time())
		ev.SetAllDayEndAt(o.Date.AddDays(1).Time())
		ev.SetSummary(o.Title)
		if o.Description != "" {
			ev.SetDescription(o.Description)
		}
		if o.Location != "" {
			ev.SetLocation(o.Location)
		}
		if len(o.Sources) > 0 {
			ev.SetURL(o.Sources[0])
		}
		ev.AddCategory(string(o.Category))
		for _, tag := range o.Tags {
			ev.AddCategory(tag)
		}
		ev.SetTimeTransparency(ical.TransparencyTransparent)
	}
	return cal
}

// WriteCalendar serializes occurrences as an iCalendar document to w.
func WriteCalendar(w io.Writer, name string, occs []model.Occurrence) error {
	return NewCalendar(name, occs).SerializeTo(w)
}
