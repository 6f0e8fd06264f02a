package almanac

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"almanac/internal/model"
)

var errEmptyRule = errors.New("empty rule")

// ExpandRule returns every date within [Jan 1, Dec 31] of year matched by
// the RRULE text, ascending and without duplicates. DTSTART is always
// Jan 1 of year, so COUNT and INTERVAL restart every year. A rule that
// matches nothing returns an empty slice and no error.
func ExpandRule(rule string, year int) ([]model.Date, error) {
	r, err := parseRule(rule, year)
	if err != nil {
		return nil, err
	}

	windowStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC)

	times := r.Between(windowStart, windowEnd, true)

	dates := make([]model.Date, 0, len(times))
	for _, ts := range times {
		dates = append(dates, model.DateOf(ts))
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	// BYHOUR and friends can yield several instants on one day.
	out := dates[:0]
	for _, d := range dates {
		if n := len(out); n > 0 && out[n-1] == d {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// ValidateRule checks that rule text can be evaluated without expanding it.
func ValidateRule(rule string) error {
	_, err := parseRule(rule, 2000)
	return err
}

func parseRule(text string, year int) (*rrule.RRule, error) {
	s := strings.ToUpper(strings.TrimSpace(text))
	s = strings.TrimPrefix(s, "RRULE:")
	if s == "" {
		return nil, &RuleParseError{Rule: text, Err: errEmptyRule}
	}

	opt, err := rrule.StrToROption(s)
	if err != nil {
		return nil, &RuleParseError{Rule: text, Err: err}
	}

	switch opt.Freq {
	case rrule.YEARLY, rrule.MONTHLY, rrule.WEEKLY, rrule.DAILY:
	default:
		return nil, &RuleParseError{Rule: text, Err: fmt.Errorf("unsupported frequency %v", opt.Freq)}
	}

	opt.Dtstart = time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, &RuleParseError{Rule: text, Err: err}
	}
	return r, nil
}
