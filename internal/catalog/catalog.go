// Package catalog owns the live template table: it loads templates from a
// Source, serves cached expansions and swaps both atomically on reload.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"almanac/internal/almanac"
	appLog "almanac/internal/log"
	"almanac/internal/model"
	"almanac/internal/templates"
)

// ErrNotLoaded is returned before the first successful Reload.
var ErrNotLoaded = errors.New("catalog not loaded")

// Country summarizes one country in the table.
type Country struct {
	Code      string `json:"code"`
	Templates int    `json:"templates"`
}

// Stats describes the outcome of a reload.
type Stats struct {
	Source    string    `json:"source"`
	Templates int       `json:"templates"`
	Issues    int       `json:"issues"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// snapshot is one immutable generation of the table.
type snapshot struct {
	expander  *almanac.Expander
	cache     *almanac.Cache
	countries map[string]int
	stats     Stats
}

// Catalog is safe for concurrent use.
type Catalog struct {
	src templates.Source

	mu   sync.RWMutex
	snap *snapshot

	// reloadMu serializes reloads; readers never wait on it.
	reloadMu sync.Mutex

	cronMu sync.Mutex
	cron   *cron.Cron
}

// New returns an empty catalog reading from src. Call Reload before use.
func New(src templates.Source) *Catalog {
	return &Catalog{src: src}
}

// Reload loads the source and replaces the table and the expansion cache.
// Skipped records are logged at warn level. On error the previous table
// stays in service.
func (c *Catalog) Reload(ctx context.Context) (Stats, error) {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	res, err := c.src.Load(ctx)
	if err != nil {
		appLog.Error("template reload failed", err, "source", c.src.Name())
		return Stats{}, fmt.Errorf("load %s: %w", c.src.Name(), err)
	}

	for _, is := range res.Issues {
		appLog.Warn("template record skipped", "source", c.src.Name(), "index", is.Index, "id", is.ID, "err", is.Err.Error())
	}

	exp := almanac.NewExpander(res.Templates)
	snap := &snapshot{
		expander:  exp,
		cache:     almanac.NewCache(loggingExpander{exp}),
		countries: exp.Countries(),
		stats: Stats{
			Source:    c.src.Name(),
			Templates: len(res.Templates),
			Issues:    len(res.Issues),
			LoadedAt:  time.Now().UTC(),
		},
	}

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	appLog.Info("templates loaded", "source", snap.stats.Source, "templates", snap.stats.Templates,
		"issues", snap.stats.Issues, "countries", len(snap.countries))
	return snap.stats, nil
}

func (c *Catalog) current() (*snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return nil, ErrNotLoaded
	}
	return c.snap, nil
}

// Events returns the cached expansion for a country and year.
func (c *Catalog) Events(countryCode string, year int) (almanac.Result, error) {
	s, err := c.current()
	if err != nil {
		return almanac.Result{}, err
	}
	return s.cache.Get(countryCode, year), nil
}

// HasCountry reports whether any template belongs to countryCode.
func (c *Catalog) HasCountry(countryCode string) bool {
	s, err := c.current()
	if err != nil {
		return false
	}
	return s.countries[strings.ToUpper(countryCode)] > 0
}

// Countries lists the countries in the table ordered by code.
func (c *Catalog) Countries() []Country {
	s, err := c.current()
	if err != nil {
		return []Country{}
	}
	out := make([]Country, 0, len(s.countries))
	for code, n := range s.countries {
		out = append(out, Country{Code: code, Templates: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Templates returns a copy of the loaded templates.
func (c *Catalog) Templates() []model.EventTemplate {
	s, err := c.current()
	if err != nil {
		return nil
	}
	return s.expander.Templates()
}

// Stats returns the stats of the table in service.
func (c *Catalog) Stats() (Stats, error) {
	s, err := c.current()
	if err != nil {
		return Stats{}, err
	}
	return s.stats, nil
}

// StartRefresh reloads the catalog on the standard five-field cron schedule
// until ctx is done or Stop is called. An empty schedule disables refreshing.
func (c *Catalog) StartRefresh(ctx context.Context, schedule string) error {
	if strings.TrimSpace(schedule) == "" {
		return nil
	}

	c.cronMu.Lock()
	defer c.cronMu.Unlock()
	if c.cron != nil {
		return errors.New("refresh already started")
	}

	cr := cron.New()
	if _, err := cr.AddFunc(schedule, func() {
		if _, err := c.Reload(ctx); err != nil {
			appLog.Warn("scheduled reload kept previous templates", "err", err.Error())
		}
	}); err != nil {
		return fmt.Errorf("refresh schedule %q: %w", schedule, err)
	}
	cr.Start()
	c.cron = cr
	appLog.Info("template refresh scheduled", "cron", schedule, "source", c.src.Name())

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return nil
}

// Stop halts scheduled refreshes and waits for a running reload.
func (c *Catalog) Stop() {
	c.cronMu.Lock()
	cr := c.cron
	c.cron = nil
	c.cronMu.Unlock()
	if cr != nil {
		<-cr.Stop().Done()
	}
}

// loggingExpander reports diagnostics once per populated cache key.
type loggingExpander struct {
	exp *almanac.Expander
}

func (l loggingExpander) ExpandEventsForYear(countryCode string, year int) almanac.Result {
	res := l.exp.ExpandEventsForYear(countryCode, year)
	for _, d := range res.Diagnostics {
		appLog.Warn("template skipped", "template", d.TemplateID, "country", d.CountryCode, "year", d.Year, "err", d.Err.Error())
	}
	return res
}
