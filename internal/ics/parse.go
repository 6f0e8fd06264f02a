package ics

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "almanac/internal/log"
	"almanac/internal/model"
	"almanac/internal/templates"
)

// rruleWeekdays maps time.Weekday to rrule weekdays.
var rruleWeekdays = [...]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// ImportRecords converts the VEVENTs of an iCalendar stream into template
// records for country.
//
//   - An event with an RRULE becomes a recurrence_rule template. Parts of
//     the rule that depended on DTSTART (month, month day, weekday) are made
//     explicit. COUNT/UNTIL are dropped when the series is still running;
//     ended series and rules with INTERVAL > 1 are rejected.
//   - An event without an RRULE becomes a fixed_date anniversary of its
//     DTSTART.
//   - CATEGORIES named "historical" or "cultural" set the category; all
//     other categories become tags. The default category is cultural.
//
// Events that cannot be converted are logged and skipped; ImportTemplates
// reports them as issues.
func ImportRecords(r io.Reader, country string) ([]templates.Record, error) {
	conv, err := convert(r, country)
	if err != nil {
		return nil, err
	}
	return conv.records, nil
}

// ImportTemplates converts and validates the VEVENTs of an iCalendar
// stream. Issue indexes refer to the position of the VEVENT in the stream.
func ImportTemplates(r io.Reader, country string) (templates.LoadResult, error) {
	conv, err := convert(r, country)
	if err != nil {
		return templates.LoadResult{}, err
	}

	res := templates.Build(conv.records)
	for i := range res.Issues {
		res.Issues[i].Index = conv.eventIndex[res.Issues[i].Index]
	}
	res.Issues = append(res.Issues, conv.issues...)
	sort.SliceStable(res.Issues, func(i, j int) bool { return res.Issues[i].Index < res.Issues[j].Index })
	return res, nil
}

type conversion struct {
	records []templates.Record
	// eventIndex maps records[i] back to its VEVENT position.
	eventIndex []int
	issues     []templates.Issue
}

func convert(r io.Reader, country string) (conversion, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		return conversion{}, errors.New("country code is required")
	}

	cal, err := ical.ParseCalendar(r)
	if err != nil {
		appLog.Error("ics parse failed", err, "country", country)
		return conversion{}, err
	}

	conv := conversion{records: make([]templates.Record, 0)}
	for i, ve := range cal.Events() {
		rec, perr := recordOf(ve, country)
		if perr != nil {
			appLog.Error("ics vevent skipped", perr, "uid", ve.Id())
			conv.issues = append(conv.issues, templates.Issue{Index: i, ID: ve.Id(), Err: perr})
			continue
		}
		conv.records = append(conv.records, rec)
		conv.eventIndex = append(conv.eventIndex, i)
	}

	appLog.Info("ics import completed", "country", country, "event_count", len(conv.records), "skipped", len(conv.issues))
	return conv, nil
}

func recordOf(ve *ical.VEvent, country string) (templates.Record, error) {
	rec := templates.Record{
		ID:          ve.Id(),
		CountryCode: country,
		Category:    string(model.CategoryCultural),
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		rec.Title = p.Value
	}
	if strings.TrimSpace(rec.Title) == "" {
		return rec, errors.New("missing SUMMARY")
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		rec.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		rec.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil && p.Value != "" {
		rec.Sources = []string{p.Value}
	}

	categorySet := false
	for _, p := range ve.GetProperties(ical.ComponentPropertyCategories) {
		for _, c := range strings.Split(p.Value, ",") {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			if cat, err := model.ParseCategory(strings.ToLower(c)); err == nil {
				if !categorySet {
					rec.Category = string(cat)
					categorySet = true
				}
				continue
			}
			rec.Tags = append(rec.Tags, c)
		}
	}

	start, err := startDate(ve)
	if err != nil {
		return rec, err
	}

	rule := ""
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		rule = p.Value
	}
	fixed, text, err := recurrenceOf(rule, start)
	if err != nil {
		return rec, err
	}
	rec.FixedDate = fixed
	rec.RecurrenceRule = text
	return rec, nil
}

// startDate reads DTSTART as a calendar date. All-day values keep their
// date; timed values use the date in their own zone.
func startDate(ve *ical.VEvent) (model.Date, error) {
	p := ve.GetProperty(ical.ComponentPropertyDtStart)
	if p == nil {
		return model.Date{}, errors.New("missing DTSTART")
	}
	var (
		t   time.Time
		err error
	)
	if strings.Contains(p.Value, "T") {
		t, err = ve.GetStartAt()
	} else {
		t, err = ve.GetAllDayStartAt()
	}
	if err != nil {
		return model.Date{}, fmt.Errorf("DTSTART: %w", err)
	}
	return model.DateOf(t), nil
}

var (
	errInterval    = errors.New("INTERVAL greater than 1 cannot be kept once DTSTART is dropped")
	errSeriesEnded = errors.New("series has no occurrences left")
)

// recurrenceOf turns an RRULE anchored at start into a rule that no longer
// depends on DTSTART, or into a fixed date when the rule is a plain yearly
// anniversary. Rules whose meaning depends on DTSTART beyond what can be
// made explicit (INTERVAL > 1) and bounded series that have already ended
// are rejected.
func recurrenceOf(rule string, start model.Date) (fixed, text string, err error) {
	rule = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(rule)), "RRULE:")
	anniversary := model.FixedDate{Month: start.Month, Day: start.Day}.String()
	if rule == "" {
		return anniversary, "", nil
	}

	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return "", "", fmt.Errorf("RRULE %q: %w", rule, err)
	}
	if opt.Interval > 1 {
		return "", "", fmt.Errorf("RRULE %q: %w", rule, errInterval)
	}
	if opt.Count > 0 || !opt.Until.IsZero() {
		ended, err := seriesEnded(*opt, start)
		if err != nil {
			return "", "", fmt.Errorf("RRULE %q: %w", rule, err)
		}
		if ended {
			return "", "", fmt.Errorf("RRULE %q: %w", rule, errSeriesEnded)
		}
	}
	opt.Count = 0
	opt.Until = time.Time{}
	opt.Dtstart = time.Time{}

	// Defaults taken from DTSTART only apply when no BYxxx day part is set.
	if len(opt.Byweekno) == 0 && len(opt.Byyearday) == 0 && len(opt.Bymonthday) == 0 && len(opt.Byweekday) == 0 {
		switch opt.Freq {
		case rrule.YEARLY:
			if len(opt.Bymonth) == 0 {
				return anniversary, "", nil
			}
			opt.Bymonthday = []int{start.Day}
		case rrule.MONTHLY:
			opt.Bymonthday = []int{start.Day}
		case rrule.WEEKLY:
			opt.Byweekday = []rrule.Weekday{rruleWeekdays[start.Time().Weekday()]}
		}
	}
	return "", opt.RRuleString(), nil
}

// seriesEnded reports whether a COUNT or UNTIL bounded rule starting at
// start has no occurrence on or after today.
func seriesEnded(opt rrule.ROption, start model.Date) (bool, error) {
	opt.Dtstart = start.Time()
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return false, err
	}
	today := model.DateOf(now().UTC()).Time()
	return r.After(today, true).IsZero(), nil
}
