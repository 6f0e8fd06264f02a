package almanac

import (
	"fmt"

	"almanac/internal/model"
)

// RuleParseError reports recurrence rule text that could not be evaluated.
type RuleParseError struct {
	Rule string
	Err  error
}

func (e *RuleParseError) Error() string {
	return fmt.Sprintf("parse recurrence rule %q: %v", e.Rule, e.Err)
}

func (e *RuleParseError) Unwrap() error { return e.Err }

// AmbiguousTemplateError reports a template without exactly one
// recurrence mode.
type AmbiguousTemplateError struct {
	TemplateID string
	Modes      int
}

func (e *AmbiguousTemplateError) Error() string {
	return fmt.Sprintf("template %q has %d recurrence modes, want exactly 1", e.TemplateID, e.Modes)
}

// DateError reports a fixed date that does not exist in the target year,
// e.g. February 29 outside leap years.
type DateError struct {
	TemplateID string
	Year       int
	FixedDate  model.FixedDate
}

func (e *DateError) Error() string {
	return fmt.Sprintf("template %q: %s does not exist in %d", e.TemplateID, e.FixedDate, e.Year)
}

func (e *DateError) Unwrap() error { return model.ErrInvalidDate }

// Diagnostic records why a template contributed nothing to an expansion.
type Diagnostic struct {
	TemplateID  string
	CountryCode string
	Year        int
	Err         error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s/%s %d: %v", d.CountryCode, d.TemplateID, d.Year, d.Err)
}
