// Package almanac expands yearly event templates into concrete calendar
// occurrences and filters the result.
package almanac

import (
	"fmt"
	"sort"
	"strings"

	"almanac/internal/feast"
	"almanac/internal/model"
)

// Result wraps the occurrences of one expansion together with a
// diagnostic for every template that was skipped.
type Result struct {
	Occurrences []model.Occurrence
	Diagnostics []Diagnostic
}

// Expander materializes a fixed template table. It holds no mutable state
// and is safe for concurrent use.
type Expander struct {
	templates []model.EventTemplate
}

// NewExpander copies the template slice; callers may reuse theirs.
func NewExpander(templates []model.EventTemplate) *Expander {
	cp := make([]model.EventTemplate, len(templates))
	copy(cp, templates)
	return &Expander{templates: cp}
}

// ExpandEventsForYear is a convenience wrapper for one-off expansions.
func ExpandEventsForYear(templates []model.EventTemplate, countryCode string, year int) Result {
	return NewExpander(templates).ExpandEventsForYear(countryCode, year)
}

// Templates returns a copy of the template table.
func (e *Expander) Templates() []model.EventTemplate {
	cp := make([]model.EventTemplate, len(e.templates))
	copy(cp, e.templates)
	return cp
}

// Countries returns the distinct country codes of the table, sorted and
// upper-cased, with the number of templates for each.
func (e *Expander) Countries() map[string]int {
	out := make(map[string]int)
	for _, t := range e.templates {
		out[strings.ToUpper(t.CountryCode)]++
	}
	return out
}

// ExpandEventsForYear produces every occurrence in year of the templates
// belonging to countryCode (matched case-insensitively).
//
//   - FixedDate templates land on that month/day; a day missing from the
//     year (Feb 29) skips the template with a DateError.
//   - Rule templates land on every date the rule matches in the year.
//   - RelativeAnchor templates land exactly once, offsetDays away from the
//     anchor's date in year. Large offsets may cross the year boundary.
//   - Templates without a recurrence yield an AmbiguousTemplateError.
//
// A bad template never aborts the expansion; it contributes nothing and
// is reported in Result.Diagnostics. Occurrences are sorted by date, with
// ties broken by template ID.
func (e *Expander) ExpandEventsForYear(countryCode string, year int) Result {
	result := Result{Occurrences: make([]model.Occurrence, 0)}

	for _, t := range e.templates {
		if !strings.EqualFold(t.CountryCode, countryCode) {
			continue
		}

		dates, err := TemplateDates(t, year)
		if err != nil {
			result.Diagnostics = append(result.Diagnostics, Diagnostic{
				TemplateID:  t.ID,
				CountryCode: t.CountryCode,
				Year:        year,
				Err:         err,
			})
			continue
		}

		for _, d := range dates {
			result.Occurrences = append(result.Occurrences, t.Materialize(d))
		}
	}

	SortOccurrences(result.Occurrences)
	return result
}

// TemplateDates resolves the dates t occurs on in year.
func TemplateDates(t model.EventTemplate, year int) ([]model.Date, error) {
	switch r := t.Recurrence.(type) {
	case model.FixedDate:
		d, err := model.NewDate(year, r.Month, r.Day)
		if err != nil {
			return nil, &DateError{TemplateID: t.ID, Year: year, FixedDate: r}
		}
		return []model.Date{d}, nil

	case model.Rule:
		return ExpandRule(r.Text, year)

	case model.RelativeAnchor:
		anchor, err := feast.ParseAnchor(r.Anchor)
		if err != nil {
			return nil, err
		}
		base, err := feast.Resolve(anchor, year)
		if err != nil {
			return nil, err
		}
		return []model.Date{base.AddDays(r.OffsetDays)}, nil

	case nil:
		return nil, &AmbiguousTemplateError{TemplateID: t.ID, Modes: 0}

	default:
		return nil, fmt.Errorf("template %q: unsupported recurrence %T", t.ID, r)
	}
}

// SortOccurrences orders occurrences by date, then template ID. The sort
// is stable, so same-day occurrences of one template keep their order.
func SortOccurrences(occs []model.Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		if c := occs[i].Date.Compare(occs[j].Date); c != 0 {
			return c < 0
		}
		return occs[i].TemplateID < occs[j].TemplateID
	})
}
