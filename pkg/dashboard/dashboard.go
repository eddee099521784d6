// Package dashboard serves the local diagnostics UI: a JSON API over
// the pipeline, a Prometheus endpoint, a websocket live tail, and an
// embedded single-page front end. It binds to loopback by default and
// never pushes data anywhere; everything it shows stays on the device.
package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	errsys "github.com/armorclaw/diagnostics/pkg/errors"
	"github.com/armorclaw/diagnostics/pkg/logger"
	"github.com/armorclaw/diagnostics/pkg/pipeline"
)

//go:embed static/*
var staticFS embed.FS

// Config holds dashboard server settings
type Config struct {
	// Addr is the listen address
	Addr string

	// AuthToken, when non-empty, is required as a bearer token (or
	// token query parameter) on the API, metrics, and tail endpoints
	AuthToken string

	// MaxConnections caps concurrent clients at the listener
	MaxConnections int
}

// DefaultConfig returns default dashboard configuration
func DefaultConfig() Config {
	return Config{
		Addr:           "127.0.0.1:8675",
		MaxConnections: 32,
	}
}

// Server is the dashboard HTTP server
type Server struct {
	cfg  Config
	log  *logger.Logger
	pipe *pipeline.Pipeline

	mux    *http.ServeMux
	server *http.Server
	ln     net.Listener
}

// New creates a dashboard server over an assembled pipeline.
func New(cfg Config, pipe *pipeline.Pipeline, log *logger.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = DefaultConfig().MaxConnections
	}
	if log == nil {
		log = logger.Discard()
	}

	s := &Server{
		cfg:  cfg,
		log:  log.WithComponent("dashboard"),
		pipe: pipe,
		mux:  http.NewServeMux(),
	}
	s.routes()

	s.server = &http.Server{
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	if staticContent, err := fs.Sub(staticFS, "static"); err == nil {
		fileServer := http.FileServer(http.FS(staticContent))
		s.mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	}
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/qr.png", s.handleQR)

	s.mux.HandleFunc("/api/status", s.auth(s.handleStatus))
	s.mux.HandleFunc("/api/stats", s.auth(s.handleStats))
	s.mux.HandleFunc("/api/patterns", s.auth(s.handlePatterns))
	s.mux.HandleFunc("/api/trending", s.auth(s.handleTrending))
	s.mux.HandleFunc("/api/report", s.auth(s.handleReport))
	s.mux.HandleFunc("/api/connectivity", s.auth(s.handleConnectivity))
	s.mux.HandleFunc("/api/logs", s.auth(s.handleLogs))
	s.mux.HandleFunc("/api/logs/", s.auth(s.handleLogFile))
	s.mux.HandleFunc("/api/export", s.auth(s.handleExport))
	s.mux.HandleFunc("/ws/tail", s.auth(s.handleTail))

	metricsHandler := promhttp.HandlerFor(s.pipe.Metrics().Registry(), promhttp.HandlerOpts{})
	s.mux.HandleFunc("/metrics", s.auth(metricsHandler.ServeHTTP))
}

// auth gates a handler behind the configured bearer token. The token
// query parameter is accepted as a fallback for websocket clients,
// which cannot set headers from a browser.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next(w, r)
			return
		}

		token := r.URL.Query().Get("token")
		if auth := r.Header.Get("Authorization"); auth != "" {
			parts := strings.SplitN(auth, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			}
		}
		if token != s.cfg.AuthToken {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// Start binds the listener and serves in the background. The listener
// is capped so a misbehaving poller cannot exhaust descriptors.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errsys.Wrap(errsys.KindConnectionFailed, err).
			WithDetailf("dashboard listen on %s", s.cfg.Addr)
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	s.ln = ln

	s.log.Info("dashboard listening",
		"addr", ln.Addr().String(),
		"auth", s.cfg.AuthToken != "")

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("dashboard server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("dashboard stopping")
	return s.server.Shutdown(ctx)
}

// Addr returns the bound listen address. Useful when the configured
// port was 0.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.cfg.Addr
	}
	return s.ln.Addr().String()
}

// URL returns the browsable dashboard root.
func (s *Server) URL() string {
	return "http://" + s.Addr()
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "encoding failed", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// statusForError maps taxonomy kinds onto HTTP statuses for API
// responses.
func statusForError(e *errsys.Error) int {
	switch {
	case e == nil:
		return http.StatusOK
	case errsys.IsKind(e, errsys.KindInvalidInput),
		errsys.IsKind(e, errsys.KindInvalidFormat),
		errsys.IsKind(e, errsys.KindUnsupportedFormat):
		return http.StatusBadRequest
	case errsys.IsKind(e, errsys.KindFileNotFound),
		errsys.IsKind(e, errsys.KindRecordNotFound),
		errsys.IsKind(e, errsys.KindEmptyDataset):
		return http.StatusNotFound
	case errsys.IsKind(e, errsys.KindAccessDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
