// Package server exposes the HTTP API handlers.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/onnwee/guildkeeper/checkin"
	"github.com/onnwee/guildkeeper/papers"
	"github.com/onnwee/guildkeeper/permissions"
	"github.com/onnwee/guildkeeper/store"
	"github.com/onnwee/guildkeeper/streamwatch"
	"github.com/onnwee/guildkeeper/tickets"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	Store    *store.Store
	Streams  *streamwatch.Watcher
	CheckIns *checkin.Service
	Tickets  *tickets.Service
	Papers   *papers.Service
	Gate     *permissions.Gate
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

// requireTier rejects the request unless the acting user passes the tier
// check. The hierarchy and the author bypass live in the permissions
// package; this only maps the outcome onto status codes.
func (h *Handlers) requireTier(w http.ResponseWriter, userID string, tier permissions.Tier) bool {
	if userID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("requester_id required"))
		return false
	}
	ok, err := h.Gate.Has(userID, tier)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return false
	}
	if !ok {
		writeError(w, http.StatusForbidden, fmt.Errorf("user %s lacks the %s tier", userID, tier))
		return false
	}
	return true
}

// requesterID identifies the chat user a management call acts for.
func requesterID(r *http.Request) string {
	if id := r.URL.Query().Get("requester_id"); id != "" {
		return id
	}
	return r.Header.Get("X-Requester-ID")
}
