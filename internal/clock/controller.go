package clock

import (
	"sort"
	"sync"
	"time"

	appLog "bibleclock/internal/log"
	"bibleclock/internal/model"
)

// Settings is the user-adjustable state read at the start of each refresh
// cycle. Changes land on the next cycle; a cycle already underway keeps the
// snapshot it started with.
type Settings struct {
	Mode        model.Mode
	Translation model.Translation
	// Secondary enables parallel display: the same reference in a second
	// translation shown under the primary text. Empty disables it.
	Secondary  model.Translation
	TimeFormat model.TimeFormat
}

// Stats is a point-in-time copy of the usage counters, shaped for the status
// API.
type Stats struct {
	VersesDisplayed  uint64                       `json:"verses_displayed"`
	VersesToday      uint64                       `json:"verses_today"`
	BooksAccessed    []string                     `json:"books_accessed"`
	TranslationUsage map[model.Translation]uint64 `json:"translation_usage"`
	ModeUsage        map[string]uint64            `json:"mode_usage"`
	Since            time.Time                    `json:"since"`
}

// Controller owns the mutable appliance state: current settings, the last
// published content and usage counters. A single mutex guards all of it;
// every access is short.
type Controller struct {
	mu       sync.Mutex
	settings Settings
	last     *model.DisplayContent

	versesDisplayed uint64
	versesToday     uint64
	books           map[string]struct{}
	translations    map[model.Translation]uint64
	modes           map[string]uint64
	startedAt       time.Time
}

// NewController starts from the given settings, filling unset fields with
// the defaults (time mode, KJV, 24-hour mapping).
func NewController(initial Settings) *Controller {
	if initial.Translation == "" {
		initial.Translation = model.TranslationKJV
	}
	if initial.TimeFormat == "" {
		initial.TimeFormat = model.TimeFormat24
	}
	return &Controller{
		settings:     initial,
		books:        make(map[string]struct{}),
		translations: make(map[model.Translation]uint64),
		modes:        make(map[string]uint64),
		startedAt:    time.Now(),
	}
}

// Snapshot returns the settings as one consistent value.
func (c *Controller) Snapshot() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// SetMode switches the display mode.
func (c *Controller) SetMode(m model.Mode) {
	c.mu.Lock()
	changed := c.settings.Mode != m
	c.settings.Mode = m
	c.mu.Unlock()
	if changed {
		appLog.Info("display mode changed", "mode", m)
	}
}

// SetTranslation switches the primary translation.
func (c *Controller) SetTranslation(t model.Translation) {
	c.mu.Lock()
	changed := c.settings.Translation != t
	c.settings.Translation = t
	c.mu.Unlock()
	if changed {
		appLog.Info("translation changed", "translation", t)
	}
}

// SetSecondary sets the parallel translation; empty disables parallel
// display.
func (c *Controller) SetSecondary(t model.Translation) {
	c.mu.Lock()
	changed := c.settings.Secondary != t
	c.settings.Secondary = t
	c.mu.Unlock()
	if changed {
		appLog.Info("parallel translation changed", "translation", t)
	}
}

// SetTimeFormat switches the hour-to-chapter mapping.
func (c *Controller) SetTimeFormat(f model.TimeFormat) {
	c.mu.Lock()
	changed := c.settings.TimeFormat != f
	c.settings.TimeFormat = f
	c.mu.Unlock()
	if changed {
		appLog.Info("time format changed", "format", string(f))
	}
}

// Update replaces all settings at once, for the settings API.
func (c *Controller) Update(s Settings) {
	if s.Translation == "" {
		s.Translation = model.TranslationKJV
	}
	if s.TimeFormat == "" {
		s.TimeFormat = model.TimeFormat24
	}
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
	appLog.Info("settings updated",
		"mode", s.Mode,
		"translation", s.Translation,
		"secondary", s.Secondary,
		"format", string(s.TimeFormat),
	)
}

// RecordDisplay stores the published content and bumps the usage counters.
// mode is the mode the producing cycle ran under, which can differ from the
// content kind (date mode falls back to verse content on most days).
func (c *Controller) RecordDisplay(content model.DisplayContent, mode model.Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last = &content
	c.versesDisplayed++
	c.versesToday++
	if content.Reference != nil {
		c.books[content.Reference.Book] = struct{}{}
	}
	if content.Book != "" {
		c.books[content.Book] = struct{}{}
	}
	c.translations[content.Translation]++
	c.modes[mode.String()]++
}

// Current returns the last published content, if any cycle has completed.
func (c *Controller) Current() (model.DisplayContent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return model.DisplayContent{}, false
	}
	return *c.last, true
}

// Stats returns a copy of the usage counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	books := make([]string, 0, len(c.books))
	for b := range c.books {
		books = append(books, b)
	}
	sort.Strings(books)

	translations := make(map[model.Translation]uint64, len(c.translations))
	for k, v := range c.translations {
		translations[k] = v
	}
	modes := make(map[string]uint64, len(c.modes))
	for k, v := range c.modes {
		modes[k] = v
	}

	return Stats{
		VersesDisplayed:  c.versesDisplayed,
		VersesToday:      c.versesToday,
		BooksAccessed:    books,
		TranslationUsage: translations,
		ModeUsage:        modes,
		Since:            c.startedAt,
	}
}

// ResetDaily zeroes the per-day counters. The maintenance job calls this
// once a night.
func (c *Controller) ResetDaily() {
	c.mu.Lock()
	c.versesToday = 0
	c.books = make(map[string]struct{})
	c.mu.Unlock()
	appLog.Info("daily statistics reset")
}
