package templates

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "almanac.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_ReplaceAllAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	records := []Record{
		{ID: "tt-carnival-tuesday", CountryCode: "TT", Title: "Carnival Tuesday", Category: "cultural",
			Tags: []string{"carnival"}, Sources: []string{"https://example.org/tt"}, RelativeAnchor: "carnival_tuesday"},
		{CountryCode: "JM", Title: "Heroes Day", Category: "historical", RecurrenceRule: "FREQ=YEARLY;BYMONTH=10;BYDAY=3MO"},
		{ID: "bb-independence", CountryCode: "BB", Title: "Independence Day", Category: "historical", FixedDate: "11-30"},
		{ID: "jm-carnival-sunday", CountryCode: "JM", Title: "Carnival Sunday", Category: "cultural",
			RelativeAnchor: "ash_wednesday", OffsetDays: -3},
	}
	require.NoError(t, s.ReplaceAll(ctx, records))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, records[0], got[0])
	assert.Equal(t, DerivedID("JM", "Heroes Day"), got[1].ID)
	assert.Equal(t, "FREQ=YEARLY;BYMONTH=10;BYDAY=3MO", got[1].RecurrenceRule)
	assert.Empty(t, got[1].Tags)
	assert.Equal(t, "11-30", got[2].FixedDate)
	assert.Equal(t, -3, got[3].OffsetDays)

	res, err := StoreSource{Store: s}.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Issues)
	assert.Len(t, res.Templates, 4)
}

func TestStore_ReplaceAllReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceAll(ctx, []Record{
		{ID: "a", CountryCode: "JM", Title: "A", Category: "cultural", FixedDate: "01-01"},
		{ID: "b", CountryCode: "JM", Title: "B", Category: "cultural", FixedDate: "01-02"},
	}))
	require.NoError(t, s.ReplaceAll(ctx, []Record{
		{ID: "c", CountryCode: "TT", Title: "C", Category: "cultural", FixedDate: "01-03"},
	}))

	got, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)
}

func TestStore_DuplicateIDRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceAll(ctx, []Record{
		{ID: "keep", CountryCode: "JM", Title: "Keep", Category: "cultural", FixedDate: "01-01"},
	}))
	err := s.ReplaceAll(ctx, []Record{
		{ID: "x", CountryCode: "JM", Title: "X", Category: "cultural", FixedDate: "01-01"},
		{ID: "x", CountryCode: "JM", Title: "X", Category: "cultural", FixedDate: "01-02"},
	})
	require.Error(t, err)

	got, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "keep", got[0].ID)
}
