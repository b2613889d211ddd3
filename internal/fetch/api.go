package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bibleclock/internal/bible"
	appLog "bibleclock/internal/log"
	"bibleclock/internal/model"
)

// Remote API defaults. The public endpoint serves one verse per request and
// answers well inside ten seconds when healthy.
const (
	DefaultAPIBaseURL = "https://bible-api.com"
	DefaultAPITimeout = 10 * time.Second
	DefaultAPIRetries = 3
	defaultAPIBackoff = time.Second
)

// APIClient fetches verse text from a bible-api.com style endpoint.
//
// The endpoint addresses verses as "{base}/{Book} {chapter}:{verse}" and
// selects the translation through a query parameter. The parameter is always
// sent; the endpoint falls back to its own default translation when it is
// absent, which is not ours.
type APIClient struct {
	baseURL string
	client  *http.Client
	retries int
	backoff time.Duration
}

// APIOption adjusts an APIClient.
type APIOption func(*APIClient)

// WithHTTPClient replaces the underlying HTTP client (tests point it at a
// local server).
func WithHTTPClient(c *http.Client) APIOption {
	return func(a *APIClient) { a.client = c }
}

// WithRetries sets how many attempts are made before giving up.
func WithRetries(n int) APIOption {
	return func(a *APIClient) {
		if n > 0 {
			a.retries = n
		}
	}
}

// WithBackoff sets the base delay between attempts; the delay doubles after
// each failure.
func WithBackoff(d time.Duration) APIOption {
	return func(a *APIClient) {
		if d > 0 {
			a.backoff = d
		}
	}
}

// NewAPIClient builds a client for the given base URL. An empty base URL
// selects the public endpoint.
func NewAPIClient(baseURL string, timeout time.Duration, opts ...APIOption) *APIClient {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultAPITimeout
	}
	a := &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		retries: DefaultAPIRetries,
		backoff: defaultAPIBackoff,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name identifies the provider in logs and results.
func (a *APIClient) Name() string { return "api" }

// Cacheable reports that successful responses should populate the cache.
func (a *APIClient) Cacheable() bool { return true }

// verseResponse mirrors the endpoint's JSON verse payload.
type verseResponse struct {
	Reference     string `json:"reference"`
	Text          string `json:"text"`
	TranslationID string `json:"translation_id"`
}

// Fetch retrieves one verse, retrying transient failures with exponential
// backoff. It returns the verse text and the translation actually served.
func (a *APIClient) Fetch(ctx context.Context, ref bible.Reference, tr model.Translation) (string, model.Translation, error) {
	u := a.verseURL(ref, tr)

	var lastErr error
	for attempt := 0; attempt < a.retries; attempt++ {
		if attempt > 0 {
			delay := a.backoff << (attempt - 1)
			appLog.Debug("api retry", "ref", ref.String(), "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", "", ctx.Err()
			}
		}

		text, served, err := a.fetchOnce(ctx, u, tr)
		if err == nil {
			return text, served, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
	}
	return "", "", fmt.Errorf("api: %s: %w", ref.String(), lastErr)
}

func (a *APIClient) fetchOnce(ctx context.Context, u string, requested model.Translation) (string, model.Translation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", "", errors.New(resp.Status)
	}

	var body verseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "", fmt.Errorf("malformed response: %w", err)
	}

	text := strings.TrimSpace(body.Text)
	if text == "" {
		return "", "", errors.New("empty verse text in response")
	}

	served := requested
	if got, perr := model.ParseTranslation(body.TranslationID); perr == nil {
		served = got
	}
	return text, served, nil
}

// verseURL builds the request URL with the translation pinned explicitly.
func (a *APIClient) verseURL(ref bible.Reference, tr model.Translation) string {
	if tr == "" {
		tr = model.TranslationKJV
	}
	return a.baseURL + "/" + url.PathEscape(ref.String()) +
		"?translation=" + url.QueryEscape(string(tr))
}
