package model

import (
	"errors"
	"fmt"
	"time"
)

// Category classifies an almanac event.
type Category string

const (
	CategoryHistorical Category = "historical"
	CategoryCultural   Category = "cultural"
)

// ParseCategory validates a category name from template data.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryHistorical, CategoryCultural:
		return c, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}

// EventTemplate is a yearly recurring event definition. Templates are
// static input data and are treated as read-only once loaded.
type EventTemplate struct {
	ID          string
	CountryCode string

	Title       string
	Description string
	Location    string
	Category    Category
	Tags        []string
	Sources     []string

	// Recurrence is exactly one of FixedDate, Rule or RelativeAnchor.
	Recurrence Recurrence
}

// Recurrence describes how a template lands on the calendar each year.
// The set of implementations is closed.
type Recurrence interface {
	isRecurrence()
	fmt.Stringer
}

// FixedDate recurs on the same month and day every year.
type FixedDate struct {
	Month time.Month
	Day   int
}

// Rule recurs on every date an RRULE matches within the year.
type Rule struct {
	Text string
}

// RelativeAnchor recurs a signed number of days away from a movable feast.
type RelativeAnchor struct {
	Anchor     string
	OffsetDays int
}

func (FixedDate) isRecurrence()      {}
func (Rule) isRecurrence()           {}
func (RelativeAnchor) isRecurrence() {}

// daysIn is the maximum day count of each month across all years.
var daysIn = [...]int{0, 31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// NewFixedDate rejects month/day pairs that exist in no year. February 29
// is accepted; whether it exists is decided per year at expansion time.
func NewFixedDate(month time.Month, day int) (FixedDate, error) {
	if month < time.January || month > time.December {
		return FixedDate{}, fmt.Errorf("%w: month %d", ErrInvalidDate, int(month))
	}
	if day < 1 || day > daysIn[month] {
		return FixedDate{}, fmt.Errorf("%w: %s has no day %d", ErrInvalidDate, month, day)
	}
	return FixedDate{Month: month, Day: day}, nil
}

// ParseFixedDate parses the "MM-DD" form used in template data.
func ParseFixedDate(s string) (FixedDate, error) {
	if len(s) != 5 || s[2] != '-' || !isDigits(s[:2]) || !isDigits(s[3:]) {
		return FixedDate{}, fmt.Errorf("%w: %q is not MM-DD", ErrInvalidDate, s)
	}
	m := int(s[0]-'0')*10 + int(s[1]-'0')
	d := int(s[3]-'0')*10 + int(s[4]-'0')
	return NewFixedDate(time.Month(m), d)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (f FixedDate) String() string {
	return fmt.Sprintf("%02d-%02d", int(f.Month), f.Day)
}

func (r Rule) String() string {
	return r.Text
}

func (a RelativeAnchor) String() string {
	return fmt.Sprintf("%s%+d", a.Anchor, a.OffsetDays)
}

// Occurrence is an EventTemplate materialized onto one concrete date.
// Occurrences are produced fresh by every expansion and never mutated.
type Occurrence struct {
	TemplateID  string `json:"template_id"`
	CountryCode string `json:"country_code"`

	Title       string   `json:"title"`
	Description string   `json:"description"`
	Location    string   `json:"location,omitempty"`
	Category    Category `json:"category"`
	Tags        []string `json:"tags"`
	Sources     []string `json:"sources,omitempty"`

	Date Date `json:"date"`
}

// Materialize copies the descriptive fields of t onto date. Slices are
// copied so occurrences never alias template storage.
func (t EventTemplate) Materialize(date Date) Occurrence {
	return Occurrence{
		TemplateID:  t.ID,
		CountryCode: t.CountryCode,
		Title:       t.Title,
		Description: t.Description,
		Location:    t.Location,
		Category:    t.Category,
		Tags:        cloneStrings(t.Tags),
		Sources:     cloneStrings(t.Sources),
		Date:        date,
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// ErrInvalidDate reports a calendar date that does not exist.
var ErrInvalidDate = errors.New("invalid calendar date")
