package server

import (
	"encoding/json"
	"net/http"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When auth is enabled, requests (except GET /v1/health) must include a
// valid Authorization: Bearer <token> header.
func (s *ScanServer) NewHTTPHandler(auth Auth) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/scopes/{scope}/codes", s.handleCreateCode)
	mux.HandleFunc("GET /v1/scopes/{scope}/codes", s.handleListCodes)
	mux.HandleFunc("DELETE /v1/scopes/{scope}/codes", s.handleClearScope)
	mux.HandleFunc("DELETE /v1/scopes/{scope}/codes/{id}", s.handleDeleteCode)
	mux.HandleFunc("GET /v1/scopes/{scope}/events", s.handleListEvents)
	mux.HandleFunc("GET /v1/scopes/{scope}/clients", s.handleScopeClients)
	mux.HandleFunc("GET /v1/codes/{id}", s.handleGetCode)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return AuthMiddleware(auth, mux)
}

// handleHealth handles GET /v1/health.
func (s *ScanServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// callerFrom reads the client identity headers.
func callerFrom(r *http.Request) caller {
	return caller{
		Actor:  r.Header.Get(HeaderActor),
		Origin: r.Header.Get(HeaderOrigin),
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError writes err with the status its kind maps to.
func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, httpStatus(err), err.Error())
}
