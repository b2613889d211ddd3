package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"bibleclock/internal/bible"
	appLog "bibleclock/internal/log"
	"bibleclock/internal/model"
)

// Dataset file names inside the data directory.
const (
	versesFile    = "bible_kjv.json"
	summariesFile = "book_summaries.json"
)

type summaryEntry struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Dataset is the bundled offline scripture store: KJV verse text plus one
// summary per book. It is loaded once at startup and read-only afterwards.
type Dataset struct {
	// book name -> chapter (as decimal string) -> verse -> text
	verses    map[string]map[string]map[string]string
	summaries map[string]summaryEntry
}

// LoadDataset reads the dataset files from dir. Missing files are tolerated
// so the appliance can still run against the remote API alone; each absent
// file is logged once.
func LoadDataset(dir string) (*Dataset, error) {
	d := &Dataset{
		verses:    make(map[string]map[string]map[string]string),
		summaries: make(map[string]summaryEntry),
	}

	versesPath := filepath.Join(dir, versesFile)
	if err := readJSONFile(versesPath, &d.verses); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", versesPath, err)
		}
		appLog.Warn("offline verse data not found", "path", versesPath)
	}

	summariesPath := filepath.Join(dir, summariesFile)
	if err := readJSONFile(summariesPath, &d.summaries); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", summariesPath, err)
		}
		appLog.Warn("book summaries not found", "path", summariesPath)
	}

	appLog.Info("offline dataset loaded", "dir", dir, "books", len(d.verses), "summaries", len(d.summaries))
	return d, nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	return nil
}

// Verse returns the KJV text for ref when the dataset has it.
func (d *Dataset) Verse(ref bible.Reference) (string, bool) {
	chapters, ok := d.verses[ref.Book]
	if !ok {
		chapters, ok = d.lookupFold(ref.Book)
		if !ok {
			return "", false
		}
	}
	verses, ok := chapters[strconv.Itoa(ref.Chapter)]
	if !ok {
		return "", false
	}
	text, ok := verses[strconv.Itoa(ref.Verse)]
	if !ok || strings.TrimSpace(text) == "" {
		return "", false
	}
	return strings.TrimSpace(text), true
}

func (d *Dataset) lookupFold(book string) (map[string]map[string]string, bool) {
	for name, chapters := range d.verses {
		if strings.EqualFold(name, book) {
			return chapters, true
		}
	}
	return nil, false
}

// Summary returns the summary text for a book. When the dataset has no entry
// a generic summary is synthesized so the top-of-hour display never goes
// blank.
func (d *Dataset) Summary(book string) string {
	if ent, ok := d.summaries[book]; ok && ent.Summary != "" {
		return ent.Summary
	}
	for name, ent := range d.summaries {
		if strings.EqualFold(name, book) && ent.Summary != "" {
			return ent.Summary
		}
	}
	return book + " is a book of the Bible containing wisdom and spiritual guidance."
}

// BookCount reports how many books have verse text, for health reporting.
func (d *Dataset) BookCount() int { return len(d.verses) }

// OfflineProvider serves KJV text from the bundled dataset. It sits after the
// remote API in the provider chain.
type OfflineProvider struct {
	data *Dataset
}

// NewOfflineProvider wraps a loaded dataset.
func NewOfflineProvider(data *Dataset) *OfflineProvider {
	return &OfflineProvider{data: data}
}

// Name identifies the provider in logs and results.
func (o *OfflineProvider) Name() string { return "offline" }

// Cacheable reports false: local reads are as cheap as cache hits.
func (o *OfflineProvider) Cacheable() bool { return false }

// Fetch returns the offline KJV text for ref. The requested translation is
// ignored; the served translation is always KJV.
func (o *OfflineProvider) Fetch(ctx context.Context, ref bible.Reference, tr model.Translation) (string, model.Translation, error) {
	text, ok := o.data.Verse(ref)
	if !ok {
		return "", "", fmt.Errorf("offline: no text for %s", ref.String())
	}
	return text, model.TranslationKJV, nil
}
