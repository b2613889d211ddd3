package render

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bibleclock/internal/bible"
	"bibleclock/internal/model"
)

func sampleContent() model.DisplayContent {
	ref := bible.Reference{Book: "John", Chapter: 3, Verse: 16}
	return model.DisplayContent{
		Kind:        model.KindVerse,
		Reference:   &ref,
		Text:        "For God so loved the world",
		Translation: model.TranslationKJV,
		Timestamp:   time.Date(2026, time.March, 2, 15, 4, 0, 0, time.UTC),
	}
}

func TestRenderHTMLVerse(t *testing.T) {
	page, err := renderHTML(sampleContent(), PanelWidth, PanelHeight)
	if err != nil {
		t.Fatal(err)
	}
	html := string(page)

	for _, want := range []string{
		"John 3:16",
		"For God so loved the world",
		"KJV",
		`data-ready="true"`,
		"Monday, March 2",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(html, "offline text") {
		t.Error("fallback badge shown on clean content")
	}
}

func TestRenderHTMLEscapes(t *testing.T) {
	content := sampleContent()
	content.Text = `<script>alert("x")</script>`

	page, err := renderHTML(content, PanelWidth, PanelHeight)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(page), "<script>alert") {
		t.Fatal("verse text not escaped")
	}
}

func TestRenderHTMLBadges(t *testing.T) {
	content := sampleContent()
	content.Fallback = true
	page, err := renderHTML(content, PanelWidth, PanelHeight)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(page), "offline text") {
		t.Fatal("fallback badge missing")
	}

	content.Failed = true
	page, err = renderHTML(content, PanelWidth, PanelHeight)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(page), "text unavailable") {
		t.Fatal("failure badge missing")
	}
}

func TestRenderHTMLSecondary(t *testing.T) {
	content := sampleContent()
	content.SecondaryText = "Denn also hat Gott die Welt geliebt"
	content.SecondaryTranslation = model.TranslationWEB

	page, err := renderHTML(content, PanelWidth, PanelHeight)
	if err != nil {
		t.Fatal(err)
	}
	html := string(page)
	if !strings.Contains(html, content.SecondaryText) {
		t.Fatal("secondary text missing")
	}
	if !strings.Contains(html, "WEB") {
		t.Fatal("secondary translation label missing")
	}
}

func TestRenderHTMLBookSummary(t *testing.T) {
	content := model.DisplayContent{
		Kind:      model.KindBookSummary,
		Book:      "Genesis",
		Text:      "The book of beginnings.",
		Timestamp: time.Now(),
	}
	page, err := renderHTML(content, PanelWidth, PanelHeight)
	if err != nil {
		t.Fatal(err)
	}
	html := string(page)
	if !strings.Contains(html, "Genesis") || !strings.Contains(html, "Book Summary") {
		t.Fatal("summary heading missing")
	}
}

func TestTextSizeSteps(t *testing.T) {
	short := textSize("Jesus wept.")
	long := textSize(strings.Repeat("word ", 120))
	if short <= long {
		t.Fatalf("short=%d long=%d, short text should render larger", short, long)
	}
}

func TestSimulationPublish(t *testing.T) {
	dir := t.TempDir()
	sim, err := NewSimulation(dir)
	if err != nil {
		t.Fatal(err)
	}

	content := sampleContent()
	if err := sim.Publish(context.Background(), content); err != nil {
		t.Fatal(err)
	}

	page, err := os.ReadFile(filepath.Join(dir, screenFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(page), "John 3:16") {
		t.Fatal("screen.html missing reference")
	}

	raw, err := os.ReadFile(filepath.Join(dir, contentFile))
	if err != nil {
		t.Fatal(err)
	}
	var decoded model.DisplayContent
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Text != content.Text {
		t.Fatalf("content.json text = %q", decoded.Text)
	}
	if decoded.Kind != model.KindVerse {
		t.Fatalf("content.json kind = %v", decoded.Kind)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.bin")

	if err := writeFileAtomic(path, []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := writeFileAtomic(path, []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Fatalf("content = %q", data)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("dir entries = %d, want 1", len(entries))
	}
}
