package model

import (
	"fmt"
	"strings"
	"time"

	"bibleclock/internal/bible"
)

// Mode selects how the next display content is chosen.
type Mode int

const (
	// ModeTime maps the wall clock onto chapter and verse numbers.
	ModeTime Mode = iota
	// ModeDate shows the biblical event for today's date, falling back to
	// time-based selection when no event matches.
	ModeDate
	// ModeRandom draws a uniformly random verse each refresh.
	ModeRandom
)

var modeNames = map[Mode]string{
	ModeTime:   "time",
	ModeDate:   "date",
	ModeRandom: "random",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return "time"
}

// ParseMode converts a user-supplied mode string ("time", "date", "random").
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return m, nil
		}
	}
	return ModeTime, fmt.Errorf("model: invalid display mode %q", s)
}

// Translation identifies a Bible translation by its API code.
type Translation string

// Translations served by bible-api.com. KJV doubles as the bundled offline
// dataset, so it remains available with no network at all.
const (
	TranslationKJV Translation = "kjv"
	TranslationWEB Translation = "web"
	TranslationASV Translation = "asv"
	TranslationBBE Translation = "bbe"
	TranslationYLT Translation = "ylt"
)

// AllTranslations lists the supported set in display order.
func AllTranslations() []Translation {
	return []Translation{
		TranslationKJV,
		TranslationWEB,
		TranslationASV,
		TranslationBBE,
		TranslationYLT,
	}
}

// ParseTranslation validates a translation code against the supported set.
func ParseTranslation(s string) (Translation, error) {
	code := Translation(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range AllTranslations() {
		if code == t {
			return t, nil
		}
	}
	return TranslationKJV, fmt.Errorf("model: unsupported translation %q", s)
}

func (t Translation) String() string { return string(t) }

// Offline reports whether the translation can be served from the bundled
// dataset without any network access.
func (t Translation) Offline() bool { return t == TranslationKJV }

// TimeFormat controls the hour-to-chapter mapping in time mode.
type TimeFormat string

const (
	// TimeFormat24 maps the hour of day directly to the chapter number,
	// with hour 0 treated as chapter 24. This is the default convention.
	TimeFormat24 TimeFormat = "24"
	// TimeFormat12 maps onto a 12-hour clock face: hour 0 becomes chapter
	// 12, 13..23 become 1..11.
	TimeFormat12 TimeFormat = "12"
)

// ParseTimeFormat validates a time format string, defaulting to 24-hour.
func ParseTimeFormat(s string) (TimeFormat, error) {
	switch strings.TrimSpace(s) {
	case "", "24":
		return TimeFormat24, nil
	case "12":
		return TimeFormat12, nil
	}
	return TimeFormat24, fmt.Errorf("model: invalid time format %q", s)
}

// ContentKind tags what a DisplayContent carries.
type ContentKind int

const (
	KindVerse ContentKind = iota
	KindBookSummary
	KindEvent
	KindRandomVerse
)

var kindNames = map[ContentKind]string{
	KindVerse:       "verse",
	KindBookSummary: "book_summary",
	KindEvent:       "event",
	KindRandomVerse: "random_verse",
}

func (k ContentKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "verse"
}

// ParseContentKind converts a kind string back into its enum value.
func ParseContentKind(s string) (ContentKind, error) {
	for k, name := range kindNames {
		if s == name {
			return k, nil
		}
	}
	return KindVerse, fmt.Errorf("model: invalid content kind %q", s)
}

// DisplayContent is one fully resolved screen of content. It is produced
// fresh each refresh cycle and handed to every publisher; nothing mutates it
// afterwards.
type DisplayContent struct {
	Kind      ContentKind      `json:"kind"`
	Reference *bible.Reference `json:"reference,omitempty"`
	Text      string           `json:"text"`

	Translation Translation `json:"translation"`

	// Secondary text for parallel mode: the same reference in a second
	// translation, shown alongside the primary.
	SecondaryText        string      `json:"secondary_text,omitempty"`
	SecondaryTranslation Translation `json:"secondary_translation,omitempty"`

	// Event fields are set when Kind == KindEvent.
	EventName        string `json:"event_name,omitempty"`
	EventDescription string `json:"event_description,omitempty"`

	// Book is set for book summaries (the summarized book's name).
	Book string `json:"book,omitempty"`

	// Fallback marks text served from the offline dataset after the remote
	// API failed; Failed marks the placeholder path where even the offline
	// dataset had no entry.
	Fallback bool `json:"fallback,omitempty"`
	Failed   bool `json:"failed,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Title returns the heading line for the rendered screen: the reference for
// verses, the book name for summaries, the event name for events.
func (c DisplayContent) Title() string {
	switch c.Kind {
	case KindBookSummary:
		return c.Book
	case KindEvent:
		return c.EventName
	default:
		if c.Reference != nil {
			return c.Reference.String()
		}
	}
	return ""
}

// MarshalJSON writes the kind by its wire name ("verse", "book_summary",
// "event", "random_verse") so API clients never see raw enum integers.
func (k ContentKind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// UnmarshalJSON accepts the wire names produced by MarshalJSON.
func (k *ContentKind) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseContentKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
