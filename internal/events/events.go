// Package events holds the biblical calendar: a read-only table of month-day
// keyed events loaded once at startup from built-in defaults, an optional
// JSON dataset, and an optional ICS feed.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"bibleclock/internal/bible"
	appLog "bibleclock/internal/log"
)

// Key addresses an event by calendar day, independent of year.
type Key struct {
	Month time.Month
	Day   int
}

func (k Key) String() string { return fmt.Sprintf("%d-%d", int(k.Month), k.Day) }

// Event is one biblical calendar entry. Ref is optional; Text carries the
// event's own verse text when the dataset bundles it.
type Event struct {
	Key         Key
	Name        string
	Description string
	Ref         *bible.Reference
	Text        string
}

// Table is the read-only event lookup built at startup.
type Table struct {
	byKey map[Key]Event
}

// NewTable builds a table from the given events. Later entries win on key
// collision, so callers layer defaults first and datasets after.
func NewTable(evs ...[]Event) *Table {
	t := &Table{byKey: make(map[Key]Event)}
	for _, group := range evs {
		for _, ev := range group {
			if ev.Key.Day == 0 {
				continue
			}
			t.byKey[ev.Key] = ev
		}
	}
	return t
}

// Find returns the event for the given calendar day, if any.
func (t *Table) Find(month time.Month, day int) (Event, bool) {
	if t == nil {
		return Event{}, false
	}
	ev, ok := t.byKey[Key{Month: month, Day: day}]
	return ev, ok
}

// Len returns the number of distinct event days.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byKey)
}

// Defaults returns the built-in event set used when no dataset is configured.
func Defaults() []Event {
	return []Event{
		{
			Key:         Key{Month: time.January, Day: 1},
			Name:        "New Year - God's Covenant Renewal",
			Description: "God's mercies are renewed each morning, making New Year a time of fresh beginnings.",
			Ref:         &bible.Reference{Book: "Lamentations", Chapter: 3, Verse: 22},
			Text:        "It is of the LORD'S mercies that we are not consumed, because his compassions fail not. They are new every morning: great is thy faithfulness.",
		},
		{
			Key:         Key{Month: time.June, Day: 21},
			Name:        "Summer Solstice - God's Light",
			Description: "The longest day celebrates God as our light and source of life.",
			Ref:         &bible.Reference{Book: "Psalms", Chapter: 84, Verse: 11},
			Text:        "For the LORD God is a sun and shield: the LORD will give grace and glory: no good thing will he withhold from them that walk uprightly.",
		},
		{
			Key:         Key{Month: time.December, Day: 25},
			Name:        "Christmas - Birth of Christ",
			Description: "The birth of Jesus Christ, our Savior and Lord.",
			Ref:         &bible.Reference{Book: "Luke", Chapter: 2, Verse: 11},
			Text:        "For unto you is born this day in the city of David a Saviour, which is Christ the Lord.",
		},
	}
}

// jsonEvent mirrors the dataset file format: a map keyed "M-D" with event,
// reference, text and description fields.
type jsonEvent struct {
	Event       string `json:"event"`
	Reference   string `json:"reference"`
	Text        string `json:"text"`
	Description string `json:"description"`
}

// LoadJSON reads a "M-D"-keyed JSON event dataset. A missing file is not an
// error; the caller falls back to defaults.
func LoadJSON(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("events: read %s: %w", path, err)
	}

	var raw map[string]jsonEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("events: parse %s: %w", path, err)
	}

	out := make([]Event, 0, len(raw))
	for key, je := range raw {
		k, err := parseKey(key)
		if err != nil {
			appLog.Warn("events: skipping entry with bad date key", "key", key)
			continue
		}
		ev := Event{
			Key:         k,
			Name:        je.Event,
			Description: je.Description,
			Text:        je.Text,
		}
		if ref, ok := ParseReference(je.Reference); ok {
			ev.Ref = &ref
		}
		out = append(out, ev)
	}

	appLog.Info("events: loaded JSON dataset", "path", path, "count", len(out))
	return out, nil
}

// parseKey parses the dataset's "M-D" day keys (e.g. "12-25").
func parseKey(s string) (Key, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	if len(parts) != 2 {
		return Key{}, fmt.Errorf("events: bad key %q", s)
	}
	m, err := strconv.Atoi(parts[0])
	if err != nil || m < 1 || m > 12 {
		return Key{}, fmt.Errorf("events: bad month in key %q", s)
	}
	d, err := strconv.Atoi(parts[1])
	if err != nil || d < 1 || d > 31 {
		return Key{}, fmt.Errorf("events: bad day in key %q", s)
	}
	return Key{Month: time.Month(m), Day: d}, nil
}

// refPattern matches citations like "Luke 2:11" or "1 John 4:8"; verse
// ranges such as "Lamentations 3:22-23" resolve to their first verse.
var refPattern = regexp.MustCompile(`^(.+?)\s+(\d+):(\d+)(?:-\d+)?$`)

// ParseReference parses a human citation into a Reference, reporting whether
// it names a book in the canon.
func ParseReference(s string) (bible.Reference, bool) {
	m := refPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return bible.Reference{}, false
	}
	book, ok := bible.Lookup(m[1])
	if !ok {
		// Tolerate the singular "Psalm 84:11" form used in citations.
		book, ok = bible.Lookup(m[1] + "s")
		if !ok {
			return bible.Reference{}, false
		}
	}
	chapter, _ := strconv.Atoi(m[2])
	verse, _ := strconv.Atoi(m[3])
	return bible.Clamp(book, chapter, verse), true
}
