package server

import (
	"net/http"
)

// SessionStatusHandler reports the idle state without resetting it
func (s *Server) SessionStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		watch, ok := watchFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, watch.Monitor.State())
	}
}

// SessionExtendHandler is the "stay signed in" button for pages without a socket
func (s *Server) SessionExtendHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		watch, ok := watchFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		watch.Monitor.ExtendSession()

		if isHTMXRequest(r) {
			w.Header().Set("HX-Trigger", "session-extended")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, watch.Monitor.State())
	}
}
