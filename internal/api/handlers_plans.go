// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/webpdtool/webpdtool/internal/plan"
)

func (s *Server) handlePutPlan(w http.ResponseWriter, r *http.Request) {
	var p plan.Plan
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := s.plans.PutPlan(r.Context(), &p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ref": p.Ref()})
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	ref := strings.Join([]string{
		chi.URLParam(r, "project"),
		chi.URLParam(r, "station"),
		chi.URLParam(r, "name"),
	}, "/")
	p, err := s.plans.GetPlan(r.Context(), ref)
	if err != nil {
		if errors.Is(err, plan.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}
