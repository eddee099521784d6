package dashboard

import (
	"context"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	errsys "github.com/armorclaw/diagnostics/pkg/errors"
)

const defaultStatsPeriod = 24 * time.Hour

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "dashboard page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

// handleQR renders the dashboard URL as a QR code so a phone on the
// same network can open it without typing the address.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	url := "http://" + r.Host
	png, err := qrcode.Encode(url, qrcode.Medium, 256)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "qr generation failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.pipe.Status())
}

// parsePeriod reads a period query parameter like "24h" or "7d",
// falling back to the default on absence or garbage.
func parsePeriod(r *http.Request) time.Duration {
	raw := r.URL.Query().Get("period")
	if raw == "" {
		return defaultStatsPeriod
	}
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil && n > 0 {
			return time.Duration(n) * 24 * time.Hour
		}
		return defaultStatsPeriod
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return defaultStatsPeriod
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.pipe.Engine().Statistics(parsePeriod(r)))
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	min, _ := strconv.Atoi(r.URL.Query().Get("min"))
	patterns := s.pipe.Engine().DetectPatterns(min)
	writeJSON(w, map[string]interface{}{
		"patterns": patterns,
		"count":    len(patterns),
	})
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	trending := s.pipe.Engine().Trending(days)
	writeJSON(w, map[string]interface{}{
		"trending": trending,
		"count":    len(trending),
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.pipe.Engine().GenerateReport(parsePeriod(r)))
}

func (s *Server) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	mon := s.pipe.Monitor()
	out := map[string]interface{}{
		"state": mon.Snapshot(),
		"stats": mon.Stats(),
	}

	q := r.URL.Query()
	if q.Get("probe") != "" {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		out["internet"] = mon.CheckInternet(ctx)
		cancel()
	}
	if q.Get("lan") != "" {
		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		devices, err := mon.ScanLAN(ctx, q.Get("service"))
		cancel()
		if err != nil {
			out["lan_error"] = err.Error()
		} else {
			out["devices"] = devices
		}
	}
	writeJSON(w, out)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	store := s.pipe.Store()
	switch r.Method {
	case http.MethodGet:
		files, err := store.Files()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, map[string]interface{}{
			"files": files,
			"count": len(files),
		})
	case http.MethodDelete:
		if err := store.Clear(); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, map[string]string{"status": "cleared"})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleLogFile(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(strings.TrimPrefix(r.URL.Path, "/api/logs/"))
	content, err := s.pipe.Store().ReadFile(name)
	if err != nil {
		e := errsys.Classify(err)
		writeError(w, statusForError(e), e.Message())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(content))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	path, err := s.pipe.Engine().Export(format, parsePeriod(r))
	if err != nil {
		e := errsys.Classify(err)
		writeError(w, statusForError(e), e.Message())
		return
	}
	writeJSON(w, map[string]string{
		"path":   path,
		"format": format,
	})
}
