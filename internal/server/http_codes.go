package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/alfredjeanlab/storescan/internal/model"
)

// handleCreateCode handles POST /v1/scopes/{scope}/codes.
func (s *ScanServer) handleCreateCode(w http.ResponseWriter, r *http.Request) {
	var in createCodeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	c := callerFrom(r)
	if in.CreatedBy == "" {
		in.CreatedBy = c.Actor
	}
	if in.Origin == "" {
		in.Origin = c.Origin
	}

	code, err := s.createCode(r.Context(), r.PathValue("scope"), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, code)
}

// handleListCodes handles GET /v1/scopes/{scope}/codes.
func (s *ScanServer) handleListCodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ScanFilter{Scope: r.PathValue("scope")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	codes, total, err := s.listCodes(r.Context(), filter, callerFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"codes": codes,
		"total": total,
	})
}

// handleGetCode handles GET /v1/codes/{id}.
func (s *ScanServer) handleGetCode(w http.ResponseWriter, r *http.Request) {
	code, err := s.getCode(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, code)
}

// handleDeleteCode handles DELETE /v1/scopes/{scope}/codes/{id}.
func (s *ScanServer) handleDeleteCode(w http.ResponseWriter, r *http.Request) {
	if err := s.deleteCode(r.Context(), r.PathValue("scope"), r.PathValue("id"), callerFrom(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClearScope handles DELETE /v1/scopes/{scope}/codes.
func (s *ScanServer) handleClearScope(w http.ResponseWriter, r *http.Request) {
	n, err := s.clearScope(r.Context(), r.PathValue("scope"), callerFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// handleListEvents handles GET /v1/scopes/{scope}/events.
func (s *ScanServer) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		afterID int64
		limit   int
	)
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after must be an integer")
			return
		}
		afterID = n
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	evts, err := s.listEvents(r.Context(), r.PathValue("scope"), afterID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evts})
}

// handleScopeClients handles GET /v1/scopes/{scope}/clients.
// Returns the live client roster of the scope from the presence tracker.
func (s *ScanServer) handleScopeClients(w http.ResponseWriter, r *http.Request) {
	scope := r.PathValue("scope")
	if err := checkScope(r.Context(), scope); err != nil {
		writeServiceError(w, err)
		return
	}

	// Parse optional stale_threshold_secs query param (default: 30 min).
	staleThreshold := 30 * time.Minute
	if v := r.URL.Query().Get("stale_threshold_secs"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			staleThreshold = time.Duration(secs) * time.Second
		}
	}

	clients := s.Presence.Roster(scope, staleThreshold)
	if clients == nil {
		writeJSON(w, http.StatusOK, map[string]any{"clients": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
}
