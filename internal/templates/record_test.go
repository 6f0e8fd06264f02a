package templates

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"almanac/internal/almanac"
	"almanac/internal/feast"
	"almanac/internal/model"
)

const sampleDoc = `
templates:
  - id: jm-independence
    country_code: jm
    title: " Independence Day "
    category: Historical
    tags: [public-holiday, " independence ", ""]
    fixed_date: "08-06"
  - country_code: TT
    title: Carnival Monday
    category: cultural
    relative_anchor: Carnival_Monday
  - id: bb-kadooment
    country_code: BB
    title: Grand Kadooment Day
    category: cultural
    recurrence_rule: "FREQ=YEARLY;BYMONTH=8;BYDAY=1MO"
`

func TestParse_Document(t *testing.T) {
	res, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)
	require.Empty(t, res.Issues)
	require.Len(t, res.Templates, 3)

	jm := res.Templates[0]
	assert.Equal(t, "jm-independence", jm.ID)
	assert.Equal(t, "JM", jm.CountryCode)
	assert.Equal(t, "Independence Day", jm.Title)
	assert.Equal(t, model.CategoryHistorical, jm.Category)
	assert.Equal(t, []string{"public-holiday", "independence"}, jm.Tags)
	assert.Equal(t, model.FixedDate{Month: time.August, Day: 6}, jm.Recurrence)

	tt := res.Templates[1]
	assert.Equal(t, DerivedID("TT", "Carnival Monday"), tt.ID)
	assert.Equal(t, model.RelativeAnchor{Anchor: string(feast.AnchorCarnivalMonday)}, tt.Recurrence)

	bb := res.Templates[2]
	assert.Equal(t, model.Rule{Text: "FREQ=YEARLY;BYMONTH=8;BYDAY=1MO"}, bb.Recurrence)
}

func TestParse_BareListAndJSON(t *testing.T) {
	list := `
- country_code: BS
  title: Majority Rule Day
  category: historical
  fixed_date: "01-10"
`
	res, err := Parse([]byte(list))
	require.NoError(t, err)
	require.Len(t, res.Templates, 1)
	assert.Equal(t, "BS", res.Templates[0].CountryCode)

	js := `{"templates":[{"id":"x","country_code":"JM","title":"X","category":"cultural","relative_anchor":"easter","offset_days":-2}]}`
	res, err = Parse([]byte(js))
	require.NoError(t, err)
	require.Len(t, res.Templates, 1)
	assert.Equal(t, model.RelativeAnchor{Anchor: "easter", OffsetDays: -2}, res.Templates[0].Recurrence)
}

func TestParse_Undecodable(t *testing.T) {
	_, err := Parse([]byte("templates: [unterminated"))
	require.Error(t, err)
}

func TestBuild_ReportsIssues(t *testing.T) {
	records := []Record{
		{ID: "ok", CountryCode: "JM", Title: "Ok", Category: "cultural", FixedDate: "02-29"},
		{ID: "no-mode", CountryCode: "JM", Title: "No mode", Category: "cultural"},
		{ID: "two-modes", CountryCode: "JM", Title: "Two", Category: "cultural", FixedDate: "01-01", RelativeAnchor: "easter"},
		{ID: "bad-date", CountryCode: "JM", Title: "Bad", Category: "cultural", FixedDate: "02-30"},
		{ID: "bad-rule", CountryCode: "JM", Title: "Bad", Category: "cultural", RecurrenceRule: "FREQ=SOMETIMES"},
		{ID: "bad-anchor", CountryCode: "JM", Title: "Bad", Category: "cultural", RelativeAnchor: "lammas"},
		{ID: "bad-category", CountryCode: "JM", Title: "Bad", Category: "sporting", FixedDate: "01-01"},
		{ID: "no-country", Title: "Bad", Category: "cultural", FixedDate: "01-01"},
		{ID: "ok", CountryCode: "TT", Title: "Dup", Category: "cultural", FixedDate: "01-02"},
	}

	res := Build(records)
	require.Len(t, res.Templates, 1)
	assert.Equal(t, "ok", res.Templates[0].ID)
	require.Len(t, res.Issues, 8)

	byID := map[string]error{}
	for _, is := range res.Issues {
		if is.ID != "ok" {
			byID[is.ID] = is.Err
		}
	}

	var amb *almanac.AmbiguousTemplateError
	require.ErrorAs(t, byID["no-mode"], &amb)
	assert.Equal(t, 0, amb.Modes)
	require.ErrorAs(t, byID["two-modes"], &amb)
	assert.Equal(t, 2, amb.Modes)

	assert.ErrorIs(t, byID["bad-date"], model.ErrInvalidDate)

	var rpe *almanac.RuleParseError
	assert.ErrorAs(t, byID["bad-rule"], &rpe)

	assert.ErrorIs(t, byID["bad-anchor"], feast.ErrUnknownAnchor)
	assert.Error(t, byID["bad-category"])
	assert.True(t, errors.Is(byID["no-country"], errMissingField))

	last := res.Issues[len(res.Issues)-1]
	assert.Equal(t, 8, last.Index)
	assert.Contains(t, last.String(), "duplicate id")
}

func TestBuild_OffsetOnlyWithAnchor(t *testing.T) {
	res := Build([]Record{
		{ID: "fixed", CountryCode: "BB", Title: "Fixed", Category: "cultural", FixedDate: "08-01", OffsetDays: 2},
		{ID: "rule", CountryCode: "BB", Title: "Rule", Category: "cultural", RecurrenceRule: "FREQ=YEARLY;BYMONTH=8;BYDAY=1MO", OffsetDays: -1},
		{ID: "anchor", CountryCode: "BB", Title: "Anchor", Category: "cultural", RelativeAnchor: "easter", OffsetDays: -2},
	})
	require.Len(t, res.Templates, 1)
	assert.Equal(t, "anchor", res.Templates[0].ID)
	require.Len(t, res.Issues, 2)
	for _, is := range res.Issues {
		assert.ErrorIs(t, is.Err, errStrayOffset, is.ID)
	}
}

func TestDerivedID_Stable(t *testing.T) {
	a := DerivedID("jm", " Labour Day")
	b := DerivedID("JM", "Labour Day")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, DerivedID("TT", "Labour Day"))
	assert.Len(t, a, 36)
}

func TestMarshal_RoundTrip(t *testing.T) {
	res, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	data, err := Marshal(res.Templates)
	require.NoError(t, err)

	again, err := Parse(data)
	require.NoError(t, err)
	require.Empty(t, again.Issues)
	assert.Equal(t, res.Templates, again.Templates)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o600))

	src := FileSource{Path: path}
	assert.Equal(t, "file:"+path, src.Name())

	res, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Templates, 3)

	_, err = FileSource{Path: filepath.Join(t.TempDir(), "missing.yaml")}.Load(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEmbeddedSource_Valid(t *testing.T) {
	res, err := EmbeddedSource().Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.Issues)

	countries := almanac.NewExpander(res.Templates).Countries()
	for _, c := range []string{"JM", "TT", "BB", "BS"} {
		assert.Positive(t, countries[c], c)
	}

	// Every built-in template lands in every year of a wide range.
	exp := almanac.NewExpander(res.Templates)
	for year := 2000; year <= 2040; year++ {
		for c := range countries {
			out := exp.ExpandEventsForYear(c, year)
			assert.Empty(t, out.Diagnostics, "%s %d", c, year)
			assert.Len(t, out.Occurrences, countries[c], "%s %d", c, year)
		}
	}
}
