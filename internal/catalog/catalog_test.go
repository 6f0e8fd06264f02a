package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"almanac/internal/model"
	"almanac/internal/templates"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Name() string { return "mock" }

func (m *mockSource) Load(ctx context.Context) (templates.LoadResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(templates.LoadResult), args.Error(1)
}

func loadResult(ts ...model.EventTemplate) templates.LoadResult {
	return templates.LoadResult{Templates: ts}
}

func tmpl(id, country string, m time.Month, d int) model.EventTemplate {
	return model.EventTemplate{
		ID:          id,
		CountryCode: country,
		Title:       id,
		Category:    model.CategoryHistorical,
		Recurrence:  model.FixedDate{Month: m, Day: d},
	}
}

func TestCatalog_NotLoaded(t *testing.T) {
	c := New(new(mockSource))

	_, err := c.Events("JM", 2026)
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.False(t, c.HasCountry("JM"))
	assert.Empty(t, c.Countries())
	_, err = c.Stats()
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestCatalog_ReloadAndServe(t *testing.T) {
	src := new(mockSource)
	src.On("Load", mock.Anything).Return(templates.LoadResult{
		Templates: []model.EventTemplate{
			tmpl("jm-independence", "JM", time.August, 6),
			tmpl("jm-leap", "JM", time.February, 29),
			tmpl("tt-independence", "TT", time.August, 31),
		},
		Issues: []templates.Issue{{Index: 3, ID: "broken", Err: errors.New("bad rule")}},
	}, nil).Once()

	c := New(src)
	stats, err := c.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mock", stats.Source)
	assert.Equal(t, 3, stats.Templates)
	assert.Equal(t, 1, stats.Issues)

	res, err := c.Events("jm", 2025)
	require.NoError(t, err)
	require.Len(t, res.Occurrences, 1)
	assert.Equal(t, "jm-independence", res.Occurrences[0].TemplateID)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, "jm-leap", res.Diagnostics[0].TemplateID)

	assert.True(t, c.HasCountry("tt"))
	assert.False(t, c.HasCountry("BB"))
	assert.Equal(t, []Country{{Code: "JM", Templates: 2}, {Code: "TT", Templates: 1}}, c.Countries())
	assert.Len(t, c.Templates(), 3)

	src.AssertExpectations(t)
}

func TestCatalog_ReloadSwapsTableAndCache(t *testing.T) {
	src := new(mockSource)
	src.On("Load", mock.Anything).Return(loadResult(tmpl("a", "JM", time.January, 1)), nil).Once()
	src.On("Load", mock.Anything).Return(loadResult(tmpl("b", "JM", time.March, 3)), nil).Once()

	c := New(src)
	_, err := c.Reload(context.Background())
	require.NoError(t, err)

	res, err := c.Events("JM", 2026)
	require.NoError(t, err)
	assert.Equal(t, "a", res.Occurrences[0].TemplateID)

	_, err = c.Reload(context.Background())
	require.NoError(t, err)

	res, err = c.Events("JM", 2026)
	require.NoError(t, err)
	require.Len(t, res.Occurrences, 1)
	assert.Equal(t, "b", res.Occurrences[0].TemplateID)
}

func TestCatalog_FailedReloadKeepsPreviousTable(t *testing.T) {
	src := new(mockSource)
	src.On("Load", mock.Anything).Return(loadResult(tmpl("a", "JM", time.January, 1)), nil).Once()
	src.On("Load", mock.Anything).Return(templates.LoadResult{}, errors.New("unreachable")).Once()

	c := New(src)
	_, err := c.Reload(context.Background())
	require.NoError(t, err)

	_, err = c.Reload(context.Background())
	require.Error(t, err)

	res, err := c.Events("JM", 2026)
	require.NoError(t, err)
	assert.Len(t, res.Occurrences, 1)
}

func TestCatalog_StartRefresh(t *testing.T) {
	src := new(mockSource)
	src.On("Load", mock.Anything).Return(loadResult(), nil)

	c := New(src)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.StartRefresh(ctx, ""))
	assert.Error(t, c.StartRefresh(ctx, "not a schedule"))

	require.NoError(t, c.StartRefresh(ctx, "*/5 * * * *"))
	assert.Error(t, c.StartRefresh(ctx, "*/5 * * * *"))

	c.Stop()
	require.NoError(t, c.StartRefresh(ctx, "@every 1h"))
	c.Stop()
}
