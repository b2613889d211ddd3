package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"bibleclock/internal/bible"
	"bibleclock/internal/clock"
	"bibleclock/internal/config"
	"bibleclock/internal/events"
	"bibleclock/internal/fetch"
	"bibleclock/internal/model"
	"bibleclock/internal/power"
	"bibleclock/internal/resolve"
	"bibleclock/internal/voice"
)

type fixedBattery struct {
	status power.Status
	err    error
}

func (f fixedBattery) Read(context.Context) (power.Status, error) {
	return f.status, f.err
}

type testEnv struct {
	cfg  *config.Config
	deps Deps
	srv  *Server
}

func newTestEnv(t *testing.T, mutate func(*config.Config, *Deps)) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.OutputDir = t.TempDir()

	dataset, err := fetch.LoadDataset(t.TempDir())
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	fetcher := fetch.New(fetch.NewCache(10, time.Minute), dataset, fetch.NewOfflineProvider(dataset))
	controller := clock.NewController(clock.Settings{Mode: model.ModeTime})
	scheduler := clock.NewScheduler(controller, resolve.New(events.NewTable(events.Defaults())), fetcher, nil)

	deps := Deps{
		Controller: controller,
		Scheduler:  scheduler,
		Cache:      fetcher.Cache(),
		Battery:    fixedBattery{status: power.Status{Percent: 82, VoltageMv: 4100}},
		Voice:      voice.NewHandler(controller, scheduler),
		Hub:        NewHub(),
	}
	if mutate != nil {
		mutate(cfg, &deps)
	}
	return &testEnv{cfg: cfg, deps: deps, srv: NewServer(cfg, deps)}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func sampleContent() model.DisplayContent {
	return model.DisplayContent{
		Kind:        model.KindVerse,
		Reference:   &bible.Reference{Book: "John", Chapter: 3, Verse: 16},
		Text:        "For God so loved the world.",
		Translation: model.TranslationKJV,
		Timestamp:   time.Now(),
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "OK" {
		t.Fatalf("body = %q, want OK", got)
	}
}

func TestVerseEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/verse", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status before publish = %d, want 404", rec.Code)
	}

	env.deps.Controller.RecordDisplay(sampleContent(), model.ModeTime)

	rec = env.do(t, http.MethodGet, "/api/verse", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got model.DisplayContent
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Reference == nil || got.Reference.String() != "John 3:16" {
		t.Fatalf("reference = %v", got.Reference)
	}
	if got.Text != "For God so loved the world." {
		t.Fatalf("text = %q", got.Text)
	}

	if rec := env.do(t, http.MethodPost, "/api/verse", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST status = %d, want 405", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.deps.Controller.RecordDisplay(sampleContent(), model.ModeTime)
	env.deps.Controller.RecordDisplay(sampleContent(), model.ModeTime)

	rec := env.do(t, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got struct {
		State    string `json:"state"`
		Settings struct {
			Mode        string `json:"mode"`
			Translation string `json:"translation"`
			TimeFormat  string `json:"time_format"`
		} `json:"settings"`
		Stats struct {
			VersesToday   uint64   `json:"verses_today"`
			BooksAccessed []string `json:"books_accessed"`
		} `json:"stats"`
		Battery *struct {
			Percent   int `json:"percent"`
			VoltageMv int `json:"voltage_mv"`
		} `json:"battery"`
		WSClients int `json:"ws_clients"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.State != "idle" {
		t.Fatalf("state = %q, want idle", got.State)
	}
	if got.Settings.Mode != "time" || got.Settings.Translation != "kjv" {
		t.Fatalf("settings = %+v", got.Settings)
	}
	if got.Stats.VersesToday != 2 {
		t.Fatalf("verses_today = %d, want 2", got.Stats.VersesToday)
	}
	if len(got.Stats.BooksAccessed) != 1 || got.Stats.BooksAccessed[0] != "John" {
		t.Fatalf("books = %v", got.Stats.BooksAccessed)
	}
	if got.Battery == nil || got.Battery.Percent != 82 || got.Battery.VoltageMv != 4100 {
		t.Fatalf("battery = %+v", got.Battery)
	}
	if got.WSClients != 0 {
		t.Fatalf("ws_clients = %d, want 0", got.WSClients)
	}
}

func TestStatusWithoutBattery(t *testing.T) {
	env := newTestEnv(t, func(_ *config.Config, deps *Deps) {
		deps.Battery = nil
	})

	rec := env.do(t, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `"battery"`) {
		t.Fatalf("battery should be omitted: %s", rec.Body.String())
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/settings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", rec.Code)
	}
	var got settingsDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Mode != "time" || got.Translation != "kjv" || got.TimeFormat != "24" {
		t.Fatalf("defaults = %+v", got)
	}

	rec = env.do(t, http.MethodPost, "/api/settings",
		`{"mode":"random","secondary_translation":"web"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST status = %d: %s", rec.Code, rec.Body.String())
	}

	set := env.deps.Controller.Snapshot()
	if set.Mode != model.ModeRandom {
		t.Fatalf("mode = %v, want random", set.Mode)
	}
	if set.Secondary != model.TranslationWEB {
		t.Fatalf("secondary = %q, want web", set.Secondary)
	}
	if set.Translation != model.TranslationKJV {
		t.Fatalf("translation changed unexpectedly: %q", set.Translation)
	}

	// An explicit empty secondary clears parallel display.
	rec = env.do(t, http.MethodPost, "/api/settings", `{"secondary_translation":""}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	if set := env.deps.Controller.Snapshot(); set.Secondary != "" {
		t.Fatalf("secondary = %q, want cleared", set.Secondary)
	}
}

func TestSettingsValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	cases := []struct {
		name string
		body string
	}{
		{"unknown mode", `{"mode":"cosmic"}`},
		{"unknown translation", `{"translation":"klingon"}`},
		{"unknown secondary", `{"secondary_translation":"klingon"}`},
		{"unknown format", `{"time_format":"13"}`},
		{"malformed body", `{"mode":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/settings", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}

	set := env.deps.Controller.Snapshot()
	if set.Mode != model.ModeTime || set.Translation != model.TranslationKJV {
		t.Fatalf("settings mutated by rejected updates: %+v", set)
	}

	if rec := env.do(t, http.MethodDelete, "/api/settings", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE status = %d, want 405", rec.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/api/refresh", "")
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", rec.Code)
		}
	}

	if rec := env.do(t, http.MethodGet, "/api/refresh", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d, want 405", rec.Code)
	}
}

func TestVoiceEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/voice", `{"text":"switch to date mode"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var reply struct {
		Reply string `json:"reply"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(reply.Reply, "date") {
		t.Fatalf("reply = %q", reply.Reply)
	}
	if set := env.deps.Controller.Snapshot(); set.Mode != model.ModeDate {
		t.Fatalf("mode = %v, want date", set.Mode)
	}

	rec = env.do(t, http.MethodPost, "/api/voice", `{"text":"what is the weather"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown command status = %d, want 400", rec.Code)
	}
}

func TestVoiceDisabled(t *testing.T) {
	env := newTestEnv(t, func(_ *config.Config, deps *Deps) {
		deps.Voice = nil
	})

	rec := env.do(t, http.MethodPost, "/api/voice", `{"text":"help"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestBasicAuth(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config, _ *Deps) {
		cfg.BasicAuth = &config.BasicAuthConfig{Username: "clock", Password: "secret"}
	})
	handler := env.srv.Handler()

	// Health stays open for liveness checks.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without credentials = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("missing WWW-Authenticate header")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	req.SetBasicAuth("clock", "wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status with bad password = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	req.SetBasicAuth("clock", "secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with credentials = %d, want 200", rec.Code)
	}
}

func TestPreviewEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/preview.png", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status before render = %d, want 404", rec.Code)
	}

	payload := []byte("\x89PNG fake")
	if err := os.WriteFile(filepath.Join(env.cfg.OutputDir, "preview.png"), payload, 0o644); err != nil {
		t.Fatalf("write preview: %v", err)
	}

	rec = env.do(t, http.MethodGet, "/preview.png", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != string(payload) {
		t.Fatalf("body mismatch: %q", rec.Body.String())
	}
}

func TestWebsocketFeed(t *testing.T) {
	env := newTestEnv(t, nil)
	env.deps.Controller.RecordDisplay(sampleContent(), model.ModeTime)

	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// The current screen arrives right after the handshake.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first model.DisplayContent
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial content: %v", err)
	}
	if first.Reference == nil || first.Reference.String() != "John 3:16" {
		t.Fatalf("initial reference = %v", first.Reference)
	}

	// The conn joins the broadcast set right after the greeting; wait for
	// that before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for env.deps.Hub.Clients() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := env.deps.Hub.Clients(); got != 1 {
		t.Fatalf("clients = %d, want 1", got)
	}

	next := sampleContent()
	next.Reference = &bible.Reference{Book: "Psalms", Chapter: 23, Verse: 1}
	next.Text = "The LORD is my shepherd."
	if err := env.deps.Hub.Publish(context.Background(), next); err != nil {
		t.Fatalf("publish: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var second model.DisplayContent
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read published content: %v", err)
	}
	if second.Reference == nil || second.Reference.String() != "Psalms 23:1" {
		t.Fatalf("published reference = %v", second.Reference)
	}

	env.deps.Hub.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&second); err == nil {
		t.Fatal("read after Close should fail")
	}
	if got := env.deps.Hub.Clients(); got != 0 {
		t.Fatalf("clients after Close = %d, want 0", got)
	}
}

func TestHubGreetingPrecedesBroadcasts(t *testing.T) {
	hub := NewHub()
	greeting := sampleContent()
	broadcast := sampleContent()
	broadcast.Reference = &bible.Reference{Book: "Psalms", Chapter: 23, Verse: 1}
	broadcast.Text = "The LORD is my shepherd."

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := hub.upgrade(w, r)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		// A broadcast landing between the handshake and the greeting must
		// not reach this conn yet.
		_ = hub.Publish(context.Background(), broadcast)
		if err := hub.send(conn, greeting); err != nil {
			t.Errorf("send greeting: %v", err)
			return
		}
		if err := hub.register(conn); err != nil {
			t.Errorf("register: %v", err)
			return
		}
		_ = hub.Publish(context.Background(), broadcast)
		hub.readLoop(conn)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first model.DisplayContent
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first frame: %v", err)
	}
	if first.Reference == nil || first.Reference.String() != "John 3:16" {
		t.Fatalf("first frame = %v, want the greeting John 3:16", first.Reference)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var second model.DisplayContent
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read broadcast frame: %v", err)
	}
	if second.Reference == nil || second.Reference.String() != "Psalms 23:1" {
		t.Fatalf("broadcast frame = %v, want Psalms 23:1", second.Reference)
	}
}
