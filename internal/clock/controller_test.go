package clock

import (
	"testing"

	"bibleclock/internal/bible"
	"bibleclock/internal/model"
)

func TestControllerDefaults(t *testing.T) {
	c := NewController(Settings{})
	set := c.Snapshot()

	if set.Mode != model.ModeTime {
		t.Fatalf("mode = %v, want time", set.Mode)
	}
	if set.Translation != model.TranslationKJV {
		t.Fatalf("translation = %q, want kjv", set.Translation)
	}
	if set.TimeFormat != model.TimeFormat24 {
		t.Fatalf("format = %q, want 24", set.TimeFormat)
	}
	if set.Secondary != "" {
		t.Fatalf("secondary = %q, want empty", set.Secondary)
	}
}

func TestControllerSetters(t *testing.T) {
	c := NewController(Settings{})

	c.SetMode(model.ModeRandom)
	c.SetTranslation(model.TranslationWEB)
	c.SetSecondary(model.TranslationASV)
	c.SetTimeFormat(model.TimeFormat12)

	set := c.Snapshot()
	if set.Mode != model.ModeRandom || set.Translation != model.TranslationWEB {
		t.Fatalf("snapshot = %+v", set)
	}
	if set.Secondary != model.TranslationASV || set.TimeFormat != model.TimeFormat12 {
		t.Fatalf("snapshot = %+v", set)
	}
}

func TestControllerSnapshotIsolation(t *testing.T) {
	c := NewController(Settings{})

	before := c.Snapshot()
	c.SetTranslation(model.TranslationWEB)

	if before.Translation != model.TranslationKJV {
		t.Fatal("snapshot mutated by later setter")
	}
	if c.Snapshot().Translation != model.TranslationWEB {
		t.Fatal("setter had no effect")
	}
}

func TestControllerUpdateNormalizes(t *testing.T) {
	c := NewController(Settings{})
	c.Update(Settings{Mode: model.ModeDate})

	set := c.Snapshot()
	if set.Translation != model.TranslationKJV {
		t.Fatalf("translation = %q, want kjv fill-in", set.Translation)
	}
	if set.TimeFormat != model.TimeFormat24 {
		t.Fatalf("format = %q, want 24 fill-in", set.TimeFormat)
	}
	if set.Mode != model.ModeDate {
		t.Fatalf("mode = %v", set.Mode)
	}
}

func TestControllerRecordAndCurrent(t *testing.T) {
	c := NewController(Settings{})

	if _, ok := c.Current(); ok {
		t.Fatal("expected no content before first record")
	}

	ref := bible.Reference{Book: "John", Chapter: 3, Verse: 16}
	c.RecordDisplay(model.DisplayContent{
		Kind:        model.KindVerse,
		Reference:   &ref,
		Text:        "For God so loved the world",
		Translation: model.TranslationKJV,
	}, model.ModeTime)

	got, ok := c.Current()
	if !ok {
		t.Fatal("expected content after record")
	}
	if got.Reference == nil || got.Reference.Book != "John" {
		t.Fatalf("reference = %v", got.Reference)
	}
}

func TestControllerStats(t *testing.T) {
	c := NewController(Settings{})
	ref := bible.Reference{Book: "John", Chapter: 3, Verse: 16}

	c.RecordDisplay(model.DisplayContent{
		Kind: model.KindVerse, Reference: &ref, Translation: model.TranslationKJV,
	}, model.ModeTime)
	c.RecordDisplay(model.DisplayContent{
		Kind: model.KindBookSummary, Book: "Genesis", Translation: model.TranslationKJV,
	}, model.ModeTime)
	c.RecordDisplay(model.DisplayContent{
		Kind: model.KindVerse, Reference: &ref, Translation: model.TranslationWEB,
	}, model.ModeRandom)

	stats := c.Stats()
	if stats.VersesDisplayed != 3 || stats.VersesToday != 3 {
		t.Fatalf("displayed=%d today=%d, want 3/3", stats.VersesDisplayed, stats.VersesToday)
	}
	if len(stats.BooksAccessed) != 2 {
		t.Fatalf("books = %v, want John and Genesis", stats.BooksAccessed)
	}
	if stats.TranslationUsage[model.TranslationKJV] != 2 {
		t.Fatalf("kjv usage = %d, want 2", stats.TranslationUsage[model.TranslationKJV])
	}
	if stats.ModeUsage["time"] != 2 || stats.ModeUsage["random"] != 1 {
		t.Fatalf("mode usage = %v", stats.ModeUsage)
	}
	if stats.Since.IsZero() {
		t.Fatal("since not set")
	}
}

func TestControllerResetDaily(t *testing.T) {
	c := NewController(Settings{})
	ref := bible.Reference{Book: "John", Chapter: 3, Verse: 16}
	c.RecordDisplay(model.DisplayContent{Kind: model.KindVerse, Reference: &ref}, model.ModeTime)

	c.ResetDaily()

	stats := c.Stats()
	if stats.VersesToday != 0 {
		t.Fatalf("verses today = %d after reset", stats.VersesToday)
	}
	if len(stats.BooksAccessed) != 0 {
		t.Fatalf("books = %v after reset", stats.BooksAccessed)
	}
	if stats.VersesDisplayed != 1 {
		t.Fatalf("lifetime count = %d, reset should keep it", stats.VersesDisplayed)
	}
}

func TestStatsCopyIsDetached(t *testing.T) {
	c := NewController(Settings{})
	ref := bible.Reference{Book: "John", Chapter: 1, Verse: 1}
	c.RecordDisplay(model.DisplayContent{Kind: model.KindVerse, Reference: &ref, Translation: model.TranslationKJV}, model.ModeTime)

	stats := c.Stats()
	stats.TranslationUsage[model.TranslationKJV] = 99
	stats.ModeUsage["time"] = 99

	fresh := c.Stats()
	if fresh.TranslationUsage[model.TranslationKJV] != 1 || fresh.ModeUsage["time"] != 1 {
		t.Fatal("mutating a stats copy leaked into the controller")
	}
}
