// Package resolve maps a point in time onto the content due on the display.
// Resolution is pure: the same instant, mode and settings always produce the
// same outcome, so a restart never changes what the clock shows.
package resolve

import (
	"math/rand"
	"time"

	"bibleclock/internal/bible"
	"bibleclock/internal/events"
	"bibleclock/internal/model"
)

// DefaultRotationDays is how long each book stays current before the canon
// rotates to the next one.
const DefaultRotationDays = 1

// defaultEpoch anchors the book rotation. Changing it shifts which book a
// given date lands on, so it is fixed rather than derived from first boot.
var defaultEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Outcome is the tagged result of a resolution: a verse reference, a request
// for a book summary, or a calendar event. All fields are plain values, so
// outcomes compare with ==.
type Outcome struct {
	Kind  model.ContentKind
	Ref   bible.Reference // set for KindVerse and KindRandomVerse
	Book  string          // name of the current (or summarized) book
	Event events.Event    // set for KindEvent
}

// Resolver computes outcomes from wall-clock time. It holds no mutable state
// besides the injected random source used by random mode.
type Resolver struct {
	events       *events.Table
	epoch        time.Time
	rotationDays int
	rng          *rand.Rand
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithEpoch overrides the rotation epoch.
func WithEpoch(t time.Time) Option {
	return func(r *Resolver) { r.epoch = t }
}

// WithRotationDays sets how many days each book stays current.
func WithRotationDays(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.rotationDays = n
		}
	}
}

// WithRand injects the random source used by random mode, so tests can seed
// it deterministically.
func WithRand(rng *rand.Rand) Option {
	return func(r *Resolver) { r.rng = rng }
}

// New builds a Resolver over the given event table.
func New(table *events.Table, opts ...Option) *Resolver {
	r := &Resolver{
		events:       table,
		epoch:        defaultEpoch,
		rotationDays: DefaultRotationDays,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return r
}

// BookForDate returns the book current on the given civil date. The rotation
// walks the canon in order, advancing every rotationDays, and depends only on
// the date, so it survives restarts.
func (r *Resolver) BookForDate(date time.Time) bible.Book {
	idx := r.daysSinceEpoch(date) / r.rotationDays
	return bible.At(idx)
}

func (r *Resolver) daysSinceEpoch(date time.Time) int {
	y, m, d := date.Date()
	civil := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(civil.Sub(r.epoch).Hours() / 24)
}

// Resolve maps an instant and mode onto the due outcome.
func (r *Resolver) Resolve(now time.Time, mode model.Mode, format model.TimeFormat) Outcome {
	switch mode {
	case model.ModeRandom:
		return r.randomOutcome()
	case model.ModeDate:
		if ev, ok := r.events.Find(now.Month(), now.Day()); ok {
			return Outcome{Kind: model.KindEvent, Event: ev, Book: r.BookForDate(now).Name}
		}
		// No event today: exactly the time-mode result for this instant.
		return r.timeOutcome(now, format)
	default:
		return r.timeOutcome(now, format)
	}
}

// timeOutcome implements the clock mapping: the hour picks the chapter, the
// minute picks the verse, and minute 0 asks for the current book's summary.
// Out-of-range pairs clamp to the nearest valid verse per bible.Clamp.
func (r *Resolver) timeOutcome(now time.Time, format model.TimeFormat) Outcome {
	book := r.BookForDate(now)

	if now.Minute() == 0 {
		return Outcome{Kind: model.KindBookSummary, Book: book.Name}
	}

	chapter := chapterForHour(now.Hour(), format)
	ref := bible.Clamp(book, chapter, now.Minute())
	return Outcome{Kind: model.KindVerse, Ref: ref, Book: book.Name}
}

// chapterForHour maps the hour of day onto a chapter number before clamping.
// 24-hour convention: the hour is the chapter, hour 0 meaning chapter 24.
// 12-hour convention: the clock-face hour, so 0 -> 12 and 13..23 -> 1..11.
func chapterForHour(hour int, format model.TimeFormat) int {
	if format == model.TimeFormat12 {
		switch {
		case hour == 0:
			return 12
		case hour <= 12:
			return hour
		default:
			return hour - 12
		}
	}
	if hour == 0 {
		return 24
	}
	return hour
}

// randomOutcome draws a uniformly random existing verse: book, then chapter
// within the book, then verse within the chapter.
func (r *Resolver) randomOutcome() Outcome {
	book := bible.At(r.rng.Intn(bible.Count()))
	chapter := 1 + r.rng.Intn(book.ChapterCount())
	verse := 1 + r.rng.Intn(book.VerseCount(chapter))
	return Outcome{
		Kind: model.KindRandomVerse,
		Ref:  bible.Reference{Book: book.Name, Chapter: chapter, Verse: verse},
		Book: book.Name,
	}
}
