package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"bibleclock/internal/clock"
	"bibleclock/internal/config"
	"bibleclock/internal/fetch"
	appLog "bibleclock/internal/log"
	"bibleclock/internal/model"
	"bibleclock/internal/power"
	"bibleclock/internal/voice"
)

// Deps are the appliance components the API surfaces.
type Deps struct {
	Controller *clock.Controller
	Scheduler  *clock.Scheduler
	Cache      *fetch.Cache
	Battery    power.Reader
	Voice      *voice.Handler
	Hub        *Hub
}

// Server provides the HTTP API: current verse, status, settings, refresh,
// voice commands and a websocket push feed.
type Server struct {
	cfg  *config.Config
	deps Deps
	mux  *http.ServeMux

	// Battery reads go over I2C; a short TTL cache keeps HTTP chatter from
	// hammering the bus.
	batteryMu    sync.Mutex
	batteryCache *batteryCache
}

type batteryCache struct {
	status    power.Status
	updatedAt time.Time
}

const batteryCacheTTL = 30 * time.Second

// NewServer constructs the API server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mux:  http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler, wrapped with Basic Auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	return logRequests(h)
}

// logRequests traces every request at debug level.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	appLog.Info("http server listening", "listen", "http://"+s.cfg.Listen)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// Websocket connections are hijacked, so Shutdown alone will not close
	// them.
	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) basicAuthEnabled() bool {
	auth := s.cfg.BasicAuth
	if auth == nil || auth.Username == "" || auth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic
// Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="BibleClock", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/verse", s.handleVerse)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	s.mux.HandleFunc("/api/voice", s.handleVoice)
	s.mux.HandleFunc("/preview.png", s.handlePreview)
	if s.deps.Hub != nil {
		s.mux.HandleFunc("/api/ws", s.handleWS)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleVerse returns the content currently on display.
func (s *Server) handleVerse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	content, ok := s.deps.Controller.Current()
	if !ok {
		writeError(w, http.StatusNotFound, "no content published yet")
		return
	}
	writeJSON(w, http.StatusOK, content)
}

// settingsDTO is the JSON view of the current settings.
type settingsDTO struct {
	Mode                 string `json:"mode"`
	Translation          string `json:"translation"`
	SecondaryTranslation string `json:"secondary_translation,omitempty"`
	TimeFormat           string `json:"time_format"`
}

func settingsToDTO(set clock.Settings) settingsDTO {
	return settingsDTO{
		Mode:                 set.Mode.String(),
		Translation:          string(set.Translation),
		SecondaryTranslation: string(set.Secondary),
		TimeFormat:           string(set.TimeFormat),
	}
}

// statusResponse is the JSON response shape for /api/status.
type statusResponse struct {
	State     string        `json:"state"`
	Settings  settingsDTO   `json:"settings"`
	Stats     clock.Stats   `json:"stats"`
	Cache     cacheDTO      `json:"cache"`
	Battery   *power.Status `json:"battery,omitempty"`
	UptimeSec int64         `json:"uptime_sec"`
	WSClients int           `json:"ws_clients"`
}

type cacheDTO struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	stats := s.deps.Controller.Stats()
	resp := statusResponse{
		State:     s.deps.Scheduler.State().String(),
		Settings:  settingsToDTO(s.deps.Controller.Snapshot()),
		Stats:     stats,
		UptimeSec: int64(time.Since(stats.Since).Seconds()),
	}
	if s.deps.Cache != nil {
		hits, misses, size := s.deps.Cache.Stats()
		resp.Cache = cacheDTO{Hits: hits, Misses: misses, Size: size}
	}
	if s.deps.Hub != nil {
		resp.WSClients = s.deps.Hub.Clients()
	}
	if status, ok := s.batteryStatus(r.Context()); ok {
		resp.Battery = &status
	}
	writeJSON(w, http.StatusOK, resp)
}

// batteryStatus reads the battery through a short-lived cache.
func (s *Server) batteryStatus(ctx context.Context) (power.Status, bool) {
	if s.deps.Battery == nil {
		return power.Status{}, false
	}

	s.batteryMu.Lock()
	defer s.batteryMu.Unlock()

	if bc := s.batteryCache; bc != nil && time.Since(bc.updatedAt) < batteryCacheTTL {
		return bc.status, true
	}

	status, err := s.deps.Battery.Read(ctx)
	if err != nil {
		appLog.Error("battery read failed", err)
		return power.Status{}, false
	}
	s.batteryCache = &batteryCache{status: status, updatedAt: time.Now()}
	return status, true
}

// settingsRequest carries a partial settings update; absent fields keep
// their current value. An empty secondary_translation clears parallel
// display.
type settingsRequest struct {
	Mode                 *string `json:"mode"`
	Translation          *string `json:"translation"`
	SecondaryTranslation *string `json:"secondary_translation"`
	TimeFormat           *string `json:"time_format"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, settingsToDTO(s.deps.Controller.Snapshot()))

	case http.MethodPost:
		var req settingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed JSON body")
			return
		}

		if req.Mode != nil {
			mode, err := model.ParseMode(*req.Mode)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			s.deps.Controller.SetMode(mode)
		}
		if req.Translation != nil {
			tr, err := model.ParseTranslation(*req.Translation)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			s.deps.Controller.SetTranslation(tr)
		}
		if req.SecondaryTranslation != nil {
			if *req.SecondaryTranslation == "" {
				s.deps.Controller.SetSecondary("")
			} else {
				tr, err := model.ParseTranslation(*req.SecondaryTranslation)
				if err != nil {
					writeError(w, http.StatusBadRequest, err.Error())
					return
				}
				s.deps.Controller.SetSecondary(tr)
			}
		}
		if req.TimeFormat != nil {
			format, err := model.ParseTimeFormat(*req.TimeFormat)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			s.deps.Controller.SetTimeFormat(format)
		}

		writeJSON(w, http.StatusOK, settingsToDTO(s.deps.Controller.Snapshot()))

	default:
		writeError(w, http.StatusMethodNotAllowed, "GET or POST only")
	}
}

// handleRefresh schedules an immediate display refresh. Repeated calls while
// one is pending coalesce.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	s.deps.Scheduler.ForceRefresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh scheduled"})
}

// voiceRequest is the JSON body for /api/voice.
type voiceRequest struct {
	Text string `json:"text"`
}

// handleVoice runs a transcribed voice command and returns the spoken reply.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if s.deps.Voice == nil {
		writeError(w, http.StatusServiceUnavailable, "voice commands not enabled")
		return
	}

	var req voiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	reply, err := s.deps.Voice.Handle(req.Text)
	if err != nil {
		if errors.Is(err, voice.ErrUnknownCommand) {
			writeError(w, http.StatusBadRequest, "unknown command")
			return
		}
		appLog.Error("voice command failed", err, "text", req.Text)
		writeError(w, http.StatusInternalServerError, "command failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// handlePreview serves the last rendered preview image from the output
// directory.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.cfg.OutputDir, "preview.png"))
}

// handleWS upgrades to a websocket and streams published content.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.deps.Hub.upgrade(w, r)
	if err != nil {
		appLog.Error("websocket upgrade failed", err)
		return
	}
	// New clients get the current screen before they join the broadcast
	// set, so this write cannot interleave with a Publish.
	if content, ok := s.deps.Controller.Current(); ok {
		if err := s.deps.Hub.send(conn, content); err != nil {
			_ = conn.Close()
			return
		}
	}
	if err := s.deps.Hub.register(conn); err != nil {
		return
	}
	s.deps.Hub.readLoop(conn)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
