// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"net/http"

	"github.com/webpdtool/webpdtool/internal/plan"
)

type validateRequest struct {
	TestType   string         `json:"test_type"`
	SwitchMode string         `json:"switch_mode"`
	Parameters map[string]any `json:"parameters"`
}

// handleExecuteMeasurement runs one ad-hoc item outside a session. The
// response is always a result record; execution problems surface as an
// ERROR outcome, not an HTTP error.
func (s *Server) handleExecuteMeasurement(w http.ResponseWriter, r *http.Request) {
	var item plan.TestItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if item.TestType == "" {
		writeError(w, http.StatusBadRequest, "test_type is required")
		return
	}
	if item.ItemName == "" {
		item.ItemName = "adhoc"
	}
	rec := s.dispatcher.ExecuteMeasurement(r.Context(), item)
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleValidateParameters(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.TestType == "" {
		writeError(w, http.StatusBadRequest, "test_type is required")
		return
	}
	writeJSON(w, http.StatusOK, s.dispatcher.ValidateParameters(req.TestType, req.SwitchMode, req.Parameters))
}

func (s *Server) handleListTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.ListTemplates())
}

func (s *Server) handleValidationTypes(w http.ResponseWriter, _ *http.Request) {
	valueTypes, limitTypes := s.dispatcher.ListValidationTypes()
	writeJSON(w, http.StatusOK, map[string][]string{
		"value_types": valueTypes,
		"limit_types": limitTypes,
	})
}
