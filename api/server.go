// Package api provides the HTTP operations API for StockPulse.
//
// It exposes read-only endpoints for service health, batch run summaries,
// watchlists and recent alerts. Alert delivery and user management live
// outside this service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seenimoa/stockpulse/internal/config"
	"github.com/seenimoa/stockpulse/internal/store"
)

// APIResponse is the uniform response envelope.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Server is the HTTP operations server.
type Server struct {
	router  chi.Router
	cfg     *config.Config
	meta    store.MetaStore
	version string
}

// NewServer creates a configured server with all routes and middleware.
func NewServer(cfg *config.Config, meta store.MetaStore, version string) *Server {
	srv := &Server{cfg: cfg, meta: meta, version: version}
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the HTTP server with graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/runs/latest", s.handleLatestRun)
		r.Get("/watchlists", s.handleWatchlists)
		r.Get("/alerts/recent", s.handleRecentAlerts)
	})

	return r
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]any{
			"status":  "ok",
			"version": s.version,
			"time":    time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// handleLatestRun returns the most recent run summary for the given kind
// ("daily" by default).
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = "daily"
	}
	switch kind {
	case "daily", "weekly", "backfill":
	default:
		writeError(w, http.StatusBadRequest, "kind must be daily, weekly or backfill")
		return
	}

	sum, err := s.meta.LatestRun(r.Context(), kind)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no "+kind+" run recorded yet")
		return
	}
	if err != nil {
		log.Printf("api: latest run: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read run history")
		return
	}
	okCount, skipCount, failCount := sum.Counts()
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]any{
			"run":  sum,
			"ok":   okCount,
			"skip": skipCount,
			"fail": failCount,
		},
	})
}

func (s *Server) handleWatchlists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.meta.Watchlists(r.Context())
	if err != nil {
		log.Printf("api: watchlists: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read watchlists")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: lists})
}

// handleRecentAlerts returns a user's most recent alerts, newest last.
func (s *Server) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be an integer in [1, 500]")
			return
		}
		limit = n
	}

	alerts, err := s.meta.RecentAlerts(r.Context(), userID, limit)
	if err != nil {
		log.Printf("api: recent alerts: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read alerts")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: alerts})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{Success: false, Error: msg})
}
