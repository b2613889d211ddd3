package fetch

import (
	"context"
	"time"

	"bibleclock/internal/bible"
	appLog "bibleclock/internal/log"
	"bibleclock/internal/model"
	"bibleclock/internal/resolve"
)

// placeholderText is shown when neither the remote API nor the offline
// dataset can produce text for a reference.
const placeholderText = "Scripture is temporarily unavailable."

// Provider is one source of verse text. Providers are tried in order after
// the cache; the first success wins.
type Provider interface {
	// Name identifies the provider in logs and Result.Source.
	Name() string
	// Cacheable reports whether successful results should populate the
	// shared cache.
	Cacheable() bool
	// Fetch returns the text for ref and the translation actually served,
	// which may differ from the requested one.
	Fetch(ctx context.Context, ref bible.Reference, tr model.Translation) (string, model.Translation, error)
}

// Result is the outcome of walking the provider chain for a single verse.
type Result struct {
	Text        string
	Translation model.Translation
	Source      string // "cache", "api", "offline" or "placeholder"

	// Fallback marks text served by a later provider after an earlier one
	// failed; Failed marks the placeholder path.
	Fallback bool
	Failed   bool
}

// Fetcher turns resolver outcomes into display content. Verse text flows
// through the cache and then an ordered provider chain; book summaries and
// authored event text come from the offline dataset and calendar directly.
type Fetcher struct {
	cache     *Cache
	data      *Dataset
	providers []Provider
	now       func() time.Time
}

// New builds a fetcher. A nil cache gets the defaults; providers are tried
// in the order given.
func New(cache *Cache, data *Dataset, providers ...Provider) *Fetcher {
	if cache == nil {
		cache = NewCache(DefaultCacheEntries, DefaultCacheTTL)
	}
	if data == nil {
		data = &Dataset{
			verses:    make(map[string]map[string]map[string]string),
			summaries: make(map[string]summaryEntry),
		}
	}
	return &Fetcher{
		cache:     cache,
		data:      data,
		providers: providers,
		now:       time.Now,
	}
}

// Cache exposes the shared cache for maintenance jobs and health reporting.
func (f *Fetcher) Cache() *Cache { return f.cache }

// Verse fetches text for a single reference through cache and providers.
func (f *Fetcher) Verse(ctx context.Context, ref bible.Reference, tr model.Translation) Result {
	return f.verse(ctx, ref, tr, false)
}

// Compose produces the display content for a resolver outcome. A non-empty
// secondary translation requests parallel text for verse content.
func (f *Fetcher) Compose(ctx context.Context, out resolve.Outcome, primary, secondary model.Translation) model.DisplayContent {
	return f.compose(ctx, out, primary, secondary, false)
}

// ComposeFresh is Compose with cache reads skipped, so a forced refresh
// reaches the sources again. Successful results still repopulate the cache.
func (f *Fetcher) ComposeFresh(ctx context.Context, out resolve.Outcome, primary, secondary model.Translation) model.DisplayContent {
	return f.compose(ctx, out, primary, secondary, true)
}

func (f *Fetcher) compose(ctx context.Context, out resolve.Outcome, primary, secondary model.Translation, bypass bool) model.DisplayContent {
	content := model.DisplayContent{
		Kind:        out.Kind,
		Translation: primary,
		Timestamp:   f.now(),
	}

	switch out.Kind {
	case model.KindBookSummary:
		content.Book = out.Book
		content.Text = f.data.Summary(out.Book)

	case model.KindEvent:
		ev := out.Event
		content.EventName = ev.Name
		content.EventDescription = ev.Description
		switch {
		case ev.Text != "":
			content.Text = ev.Text
			content.Reference = ev.Ref
		case ev.Ref != nil:
			ref := *ev.Ref
			content.Reference = &ref
			f.fillVerse(ctx, &content, ref, primary, secondary, bypass)
		default:
			content.Text = ev.Description
		}

	default: // KindVerse, KindRandomVerse
		ref := out.Ref
		content.Reference = &ref
		f.fillVerse(ctx, &content, ref, primary, secondary, bypass)
	}

	return content
}

// fillVerse fetches primary (and optionally secondary) text for ref into
// content.
func (f *Fetcher) fillVerse(ctx context.Context, content *model.DisplayContent, ref bible.Reference, primary, secondary model.Translation, bypass bool) {
	res := f.verse(ctx, ref, primary, bypass)
	content.Text = res.Text
	content.Translation = res.Translation
	content.Fallback = res.Fallback
	content.Failed = res.Failed

	if secondary == "" || secondary == res.Translation || res.Failed {
		return
	}
	par := f.verse(ctx, ref, secondary, bypass)
	if par.Failed || par.Translation == res.Translation {
		return
	}
	content.SecondaryText = par.Text
	content.SecondaryTranslation = par.Translation
}

func (f *Fetcher) verse(ctx context.Context, ref bible.Reference, tr model.Translation, bypass bool) Result {
	if !bypass {
		if text, ok := f.cache.Get(ref, tr); ok {
			return Result{Text: text, Translation: tr, Source: "cache"}
		}
	}

	failures := 0
	for _, p := range f.providers {
		text, served, err := p.Fetch(ctx, ref, tr)
		if err != nil {
			appLog.Debug("provider miss", "provider", p.Name(), "ref", ref.String(), "err", err)
			failures++
			continue
		}
		if p.Cacheable() {
			f.cache.Put(ref, served, text)
		}
		res := Result{Text: text, Translation: served, Source: p.Name(), Fallback: failures > 0}
		if res.Fallback {
			appLog.Warn("serving fallback text", "ref", ref.String(), "requested", tr, "served", served, "source", p.Name())
		}
		return res
	}

	appLog.Warn("no source produced text, using placeholder", "ref", ref.String(), "translation", tr)
	return Result{Text: placeholderText, Translation: tr, Source: "placeholder", Failed: true}
}
