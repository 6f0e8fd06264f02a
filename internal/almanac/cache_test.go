package almanac

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"almanac/internal/model"
)

type mockExpander struct {
	mock.Mock
}

func (m *mockExpander) ExpandEventsForYear(countryCode string, year int) Result {
	args := m.Called(countryCode, year)
	return args.Get(0).(Result)
}

func TestCache_PopulatesEachKeyOnce(t *testing.T) {
	exp := new(mockExpander)
	want := Result{Occurrences: []model.Occurrence{
		{TemplateID: "jm-fat", Date: model.MustDate(2026, time.February, 15), Tags: []string{"carnival"}},
	}}
	exp.On("ExpandEventsForYear", "JM", 2026).Return(want).Once()

	c := NewCache(exp)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			country := "JM"
			if i%2 == 0 {
				country = "jm"
			}
			got := c.Get(country, 2026)
			assert.Equal(t, want, got)
		}(i)
	}
	wg.Wait()

	exp.AssertNumberOfCalls(t, "ExpandEventsForYear", 1)
	assert.Equal(t, 1, c.Len())
}

func TestCache_ReturnsCopies(t *testing.T) {
	c := NewCache(NewExpander(sampleTemplates()))

	first := c.Get("JM", 2025)
	require.NotEmpty(t, first.Occurrences)
	first.Occurrences[0].Title = "mutated"
	first.Occurrences = first.Occurrences[:0]

	second := c.Get("JM", 2025)
	assert.Equal(t, NewExpander(sampleTemplates()).ExpandEventsForYear("JM", 2025), second)
}

func TestCache_SeparateKeys(t *testing.T) {
	exp := new(mockExpander)
	exp.On("ExpandEventsForYear", "JM", 2025).Return(Result{Occurrences: []model.Occurrence{}}).Once()
	exp.On("ExpandEventsForYear", "JM", 2026).Return(Result{Occurrences: []model.Occurrence{}}).Once()
	exp.On("ExpandEventsForYear", "TT", 2026).Return(Result{Occurrences: []model.Occurrence{}}).Once()

	c := NewCache(exp)
	c.Get("JM", 2025)
	c.Get("JM", 2026)
	c.Get("TT", 2026)
	c.Get("tt", 2026)

	assert.Equal(t, 3, c.Len())
	exp.AssertExpectations(t)
}
