// Package api provides the HTTP API server for Meridian.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/meridian-hq/meridian/internal/core"
	"github.com/meridian-hq/meridian/internal/logging"
	"github.com/meridian-hq/meridian/internal/storage"
	"github.com/meridian-hq/meridian/internal/syncer"
)

// Server is the HTTP API server. It serves the local cache and triggers
// syncs; it never talks to providers directly.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	events  *storage.EventStore
	threads *storage.ThreadStore
	sync    *syncer.Service

	log *logging.Logger
}

// Config for the server.
type Config struct {
	Host    string
	Port    int
	Events  *storage.EventStore
	Threads *storage.ThreadStore
	Syncer  *syncer.Service
}

// NewServer creates the API server and mounts its routes.
func NewServer(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		events:  cfg.Events,
		threads: cfg.Threads,
		sync:    cfg.Syncer,
		log:     logging.Named("api"),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/events", s.handleListEvents)
		r.Get("/events/{calendarID}/{eventID}", s.handleGetEvent)
		r.Get("/threads", s.handleListThreads)
		r.Get("/threads/{threadID}", s.handleGetThread)
		r.Post("/sync/{provider}", s.handleSync)
	})

	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, cfg.Port),
		Handler: s.router,
	}
	return s
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info("listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListEvents serves cached events overlapping ?from / ?to
// (RFC 3339). The window defaults to the next seven days.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from := now
	to := now.AddDate(0, 0, 7)

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		to = t
	}
	if !to.After(from) {
		s.respondError(w, http.StatusBadRequest, "to must be after from")
		return
	}

	events, err := s.events.Between(from, to)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []core.EventSummary{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	calendarID := chi.URLParam(r, "calendarID")
	eventID := chi.URLParam(r, "eventID")

	ev, err := s.events.Get(calendarID, eventID)
	if errors.Is(err, core.ErrEventNotFound) {
		s.respondError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, ev)
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	threads, err := s.threads.Recent(limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if threads == nil {
		threads = []core.ThreadSummary{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"threads": threads,
		"count":   len(threads),
	})
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	t, err := s.threads.Get(chi.URLParam(r, "threadID"))
	if errors.Is(err, core.ErrThreadNotFound) {
		s.respondError(w, http.StatusNotFound, "thread not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, t)
}

// handleSync triggers a sync run for {provider}: calendar, mail or all.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		s.respondError(w, http.StatusServiceUnavailable, "sync not configured")
		return
	}

	var (
		results []*syncer.Result
		err     error
	)
	switch provider := chi.URLParam(r, "provider"); provider {
	case "calendar":
		var res *syncer.Result
		res, err = s.sync.SyncCalendar(r.Context())
		if res != nil {
			results = append(results, res)
		}
	case "mail":
		var res *syncer.Result
		res, err = s.sync.SyncMail(r.Context())
		if res != nil {
			results = append(results, res)
		}
	case "all":
		results, err = s.sync.SyncAll(r.Context())
	default:
		s.respondError(w, http.StatusNotFound, "unknown provider: "+provider)
		return
	}

	if errors.Is(err, core.ErrNotConnected) {
		s.respondError(w, http.StatusConflict, "provider not connected")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("encode response: %v", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
