// Package templates loads event templates from data files, a remote URL
// or a SQLite store and validates them into model.EventTemplate values.
package templates

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"almanac/internal/almanac"
	"almanac/internal/feast"
	"almanac/internal/model"
)

// idNamespace seeds derived template IDs (UUIDv5).
var idNamespace = uuid.MustParse("0d6f3b7e-5a43-4c1b-9e55-7c2a9a8f41d2")

// Record is the on-disk shape of one template. Exactly one of FixedDate,
// RecurrenceRule and RelativeAnchor must be set.
type Record struct {
	ID          string   `yaml:"id,omitempty" json:"id,omitempty"`
	CountryCode string   `yaml:"country_code" json:"country_code"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Location    string   `yaml:"location,omitempty" json:"location,omitempty"`
	Category    string   `yaml:"category" json:"category"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Sources     []string `yaml:"sources,omitempty" json:"sources,omitempty"`

	// FixedDate is "MM-DD".
	FixedDate      string `yaml:"fixed_date,omitempty" json:"fixed_date,omitempty"`
	RecurrenceRule string `yaml:"recurrence_rule,omitempty" json:"recurrence_rule,omitempty"`
	RelativeAnchor string `yaml:"relative_anchor,omitempty" json:"relative_anchor,omitempty"`
	OffsetDays     int    `yaml:"offset_days,omitempty" json:"offset_days,omitempty"`
}

// Document is a template data file.
type Document struct {
	Templates []Record `yaml:"templates" json:"templates"`
}

// Issue describes a record that was skipped while loading.
type Issue struct {
	Index int
	ID    string
	Err   error
}

func (i Issue) String() string {
	return fmt.Sprintf("record %d (%s): %v", i.Index, i.ID, i.Err)
}

// LoadResult is the outcome of loading a template source.
type LoadResult struct {
	Templates []model.EventTemplate
	Issues    []Issue
}

var (
	errMissingField = errors.New("missing required field")
	errStrayOffset  = errors.New("offset_days requires relative_anchor")
)

// DerivedID returns the stable ID used for records without one.
func DerivedID(countryCode, title string) string {
	name := strings.ToUpper(strings.TrimSpace(countryCode)) + "/" + strings.TrimSpace(title)
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}

// Template validates r and converts it into a model.EventTemplate.
func (r Record) Template() (model.EventTemplate, error) {
	country := strings.ToUpper(strings.TrimSpace(r.CountryCode))
	title := strings.TrimSpace(r.Title)
	if country == "" {
		return model.EventTemplate{}, fmt.Errorf("%w: country_code", errMissingField)
	}
	if title == "" {
		return model.EventTemplate{}, fmt.Errorf("%w: title", errMissingField)
	}

	category, err := model.ParseCategory(strings.ToLower(strings.TrimSpace(r.Category)))
	if err != nil {
		return model.EventTemplate{}, err
	}

	id := strings.TrimSpace(r.ID)
	if id == "" {
		id = DerivedID(country, title)
	}

	rec, err := r.recurrence(id)
	if err != nil {
		return model.EventTemplate{}, err
	}

	return model.EventTemplate{
		ID:          id,
		CountryCode: country,
		Title:       title,
		Description: strings.TrimSpace(r.Description),
		Location:    strings.TrimSpace(r.Location),
		Category:    category,
		Tags:        cleanList(r.Tags),
		Sources:     cleanList(r.Sources),
		Recurrence:  rec,
	}, nil
}

func (r Record) recurrence(id string) (model.Recurrence, error) {
	fixed := strings.TrimSpace(r.FixedDate)
	rule := strings.TrimSpace(r.RecurrenceRule)
	anchor := strings.TrimSpace(r.RelativeAnchor)

	modes := 0
	for _, s := range []string{fixed, rule, anchor} {
		if s != "" {
			modes++
		}
	}
	if modes != 1 {
		return nil, &almanac.AmbiguousTemplateError{TemplateID: id, Modes: modes}
	}
	if anchor == "" && r.OffsetDays != 0 {
		return nil, fmt.Errorf("%w: template %q has offset_days %d", errStrayOffset, id, r.OffsetDays)
	}

	switch {
	case fixed != "":
		f, err := model.ParseFixedDate(fixed)
		if err != nil {
			return nil, err
		}
		return f, nil
	case rule != "":
		if err := almanac.ValidateRule(rule); err != nil {
			return nil, err
		}
		return model.Rule{Text: rule}, nil
	default:
		a, err := feast.ParseAnchor(anchor)
		if err != nil {
			return nil, err
		}
		return model.RelativeAnchor{Anchor: string(a), OffsetDays: r.OffsetDays}, nil
	}
}

// RecordOf is the inverse of Record.Template.
func RecordOf(t model.EventTemplate) Record {
	r := Record{
		ID:          t.ID,
		CountryCode: t.CountryCode,
		Title:       t.Title,
		Description: t.Description,
		Location:    t.Location,
		Category:    string(t.Category),
		Tags:        t.Tags,
		Sources:     t.Sources,
	}
	switch rec := t.Recurrence.(type) {
	case model.FixedDate:
		r.FixedDate = rec.String()
	case model.Rule:
		r.RecurrenceRule = rec.Text
	case model.RelativeAnchor:
		r.RelativeAnchor = rec.Anchor
		r.OffsetDays = rec.OffsetDays
	}
	return r
}

// Parse decodes a YAML (or JSON) template document. Both a mapping with a
// "templates" key and a bare list of records are accepted. Invalid
// records are skipped and reported as issues; only an undecodable
// document is an error.
func Parse(data []byte) (LoadResult, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		var list []Record
		if lerr := yaml.Unmarshal(data, &list); lerr != nil {
			return LoadResult{}, fmt.Errorf("decode templates: %w", err)
		}
		doc.Templates = list
	}
	return Build(doc.Templates), nil
}

// Build validates records in order. Later records reusing an ID are
// skipped.
func Build(records []Record) LoadResult {
	res := LoadResult{Templates: make([]model.EventTemplate, 0, len(records))}
	seen := make(map[string]int, len(records))

	for i, r := range records {
		t, err := r.Template()
		if err != nil {
			res.Issues = append(res.Issues, Issue{Index: i, ID: r.ID, Err: err})
			continue
		}
		if first, dup := seen[t.ID]; dup {
			res.Issues = append(res.Issues, Issue{Index: i, ID: t.ID, Err: fmt.Errorf("duplicate id, first defined by record %d", first)})
			continue
		}
		seen[t.ID] = i
		res.Templates = append(res.Templates, t)
	}
	return res
}

// Marshal encodes templates as a YAML document readable by Parse.
func Marshal(ts []model.EventTemplate) ([]byte, error) {
	doc := Document{Templates: make([]Record, 0, len(ts))}
	for _, t := range ts {
		doc.Templates = append(doc.Templates, RecordOf(t))
	}
	return yaml.Marshal(&doc)
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
