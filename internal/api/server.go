// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api is the HTTP surface of the daemon: session control, ad-hoc
// measurements, plan management, and the progress event stream.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/webpdtool/webpdtool/internal/log"
	"github.com/webpdtool/webpdtool/internal/measure"
	"github.com/webpdtool/webpdtool/internal/plan"
	"github.com/webpdtool/webpdtool/internal/session"
)

// Server bundles the HTTP handlers and their dependencies.
type Server struct {
	manager    *session.Manager
	dispatcher *measure.Dispatcher
	plans      plan.Repository
}

// NewServer wires the API server.
func NewServer(manager *session.Manager, dispatcher *measure.Dispatcher, plans plan.Repository) *Server {
	return &Server{manager: manager, dispatcher: dispatcher, plans: plans}
}

// Router builds the chi router with all routes registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleStartSession)
			r.Get("/", s.handleListSessions)
			r.Get("/{id}", s.handleGetSession)
			r.Post("/{id}/abort", s.handleAbortSession)
			r.Get("/{id}/results", s.handleSessionResults)
			r.Get("/{id}/events", s.handleSessionEvents)
		})
		r.Route("/measurements", func(r chi.Router) {
			r.Post("/execute", s.handleExecuteMeasurement)
			r.Post("/validate", s.handleValidateParameters)
			r.Get("/templates", s.handleListTemplates)
			r.Get("/validation-types", s.handleValidationTypes)
		})
		r.Route("/plans", func(r chi.Router) {
			r.Put("/", s.handlePutPlan)
			r.Get("/{project}/{station}/{name}", s.handleGetPlan)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger emits one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.WithComponent("api").Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithComponent("api").Warn().Err(err).Msg("response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
