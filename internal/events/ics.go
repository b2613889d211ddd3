package events

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"bibleclock/internal/bible"
	appLog "bibleclock/internal/log"
)

// maxOccurrencesPerEvent caps recurrence expansion so a malformed RRULE
// cannot blow up startup.
const maxOccurrencesPerEvent = 366

// LoadICS reads an ICS feed of observances and flattens it into month-day
// events for the given year. Yearly RRULEs are expanded with rrule-go; a
// VEVENT without an RRULE contributes the month-day of its DTSTART
// regardless of the year it was authored for.
//
// The associated verse reference is taken from an X-BIBLE-REF property when
// present, otherwise from a trailing "(Book C:V)" citation in the
// description.
//
// A missing file is not an error; the caller falls back to defaults.
func LoadICS(path string, year int) ([]Event, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("events: read %s: %w", path, err)
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("events: parse %s: %w", path, err)
	}

	out := make([]Event, 0)
	for _, ve := range cal.Events() {
		evs, perr := parseVEvent(ve, year)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Warn("events: skipping ICS entry", "path", path, "reason", perr)
			continue
		}
		out = append(out, evs...)
	}

	appLog.Info("events: loaded ICS feed", "path", path, "count", len(out))
	return out, nil
}

func parseVEvent(ve *ical.VEvent, year int) ([]Event, error) {
	var name, description, rawRRule, rawRef string

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		name = p.Value
	}
	if name == "" {
		return nil, errors.New("missing SUMMARY")
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		rawRRule = p.Value
	}
	if p := ve.GetProperty("X-BIBLE-REF"); p != nil {
		rawRef = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		// All-day observances carry DATE values; fall back to the raw
		// DTSTART in that case.
		if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
			start, err = time.ParseInLocation("20060102", strings.TrimSpace(p.Value), time.Local)
		}
		if err != nil {
			return nil, fmt.Errorf("unusable DTSTART: %w", err)
		}
	}

	base := Event{
		Name:        name,
		Description: description,
	}
	if ref, ok := eventReference(rawRef, description); ok {
		base.Ref = &ref
	}

	// Non-recurring: the authored month-day, year-agnostic.
	if rawRRule == "" {
		ev := base
		ev.Key = Key{Month: start.Month(), Day: start.Day()}
		return []Event{ev}, nil
	}

	r, err := rrule.StrToRRule(rawRRule)
	if err != nil {
		return nil, fmt.Errorf("bad RRULE %q: %w", rawRRule, err)
	}
	r.DTStart(start)

	var set rrule.Set
	set.RRule(r)

	rangeStart := time.Date(year, time.January, 1, 0, 0, 0, 0, start.Location())
	rangeEnd := time.Date(year+1, time.January, 1, 0, 0, 0, 0, start.Location())

	occs := set.Between(rangeStart, rangeEnd, true)
	if len(occs) > maxOccurrencesPerEvent {
		occs = occs[:maxOccurrencesPerEvent]
	}

	out := make([]Event, 0, len(occs))
	for _, occ := range occs {
		ev := base
		ev.Key = Key{Month: occ.Month(), Day: occ.Day()}
		out = append(out, ev)
	}
	return out, nil
}

// trailingRef matches a citation in parentheses at the end of a description,
// e.g. "The birth of Christ (Luke 2:11)".
var trailingRef = regexp.MustCompile(`\(([^()]+\d+:\d+[^()]*)\)\s*$`)

func eventReference(explicit, description string) (bible.Reference, bool) {
	if explicit != "" {
		if ref, found := ParseReference(explicit); found {
			return ref, true
		}
	}
	if m := trailingRef.FindStringSubmatch(description); m != nil {
		if ref, found := ParseReference(m[1]); found {
			return ref, true
		}
	}
	return bible.Reference{}, false
}
