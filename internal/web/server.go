// Package web exposes the administrative HTTP API: forced poll cycles,
// forced stale sweeps, and backlog inspection for operational recovery.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/logger"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/models"
)

// Store is the read-only store surface the API serves.
type Store interface {
	ListSettlementBacklog() ([]*models.Event, error)
	Stats() (map[string]int, error)
}

// Triggers are the forced engine entry points. They share the engine's
// idempotent cycle paths with the timer and the chat commands.
type Triggers struct {
	ForcePoll  func() error
	ForceSweep func() error
}

// Server is the administrative HTTP server.
type Server struct {
	listenAddr string
	adminToken string
	store      Store
	triggers   Triggers
	httpServer *http.Server
}

// NewServer creates the admin server.
func NewServer(listenAddr, adminToken string, store Store, triggers Triggers) *Server {
	return &Server{
		listenAddr: listenAddr,
		adminToken: adminToken,
		store:      store,
		triggers:   triggers,
	}
}

func (s *Server) router() *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.Handle("/poll", s.requireToken(s.handlePoll)).Methods("POST")
	api.Handle("/sweep", s.requireToken(s.handleSweep)).Methods("POST")
	api.Handle("/backlog", s.requireToken(s.handleBacklog)).Methods("GET")
	api.Handle("/stats", s.requireToken(s.handleStats)).Methods("GET")
	return router
}

// Start blocks serving the API until Stop is called.
func (s *Server) Start() error {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      c.Handler(s.router()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Admin server shutdown error: %v", err)
	}
}

func (s *Server) requireToken(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Admin-Token") != s.adminToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid admin token"})
			return
		}
		next(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if err := s.triggers.ForcePoll(); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "poll cycle complete"})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if err := s.triggers.ForceSweep(); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stale sweep complete"})
}

func (s *Server) handleBacklog(w http.ResponseWriter, r *http.Request) {
	backlog, err := s.store.ListSettlementBacklog()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if backlog == nil {
		backlog = []*models.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(backlog),
		"events": backlog,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}
