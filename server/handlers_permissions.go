package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/onnwee/guildkeeper/permissions"
)

// HandlePermissions lists all grants or adds one.
func (h *Handlers) HandlePermissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		all, err := h.Gate.ListAll()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, all)
	case http.MethodPost:
		var req struct {
			UserID string `json:"user_id"`
			Tier   string `json:"tier"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.UserID == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("user_id required"))
			return
		}
		tier, err := permissions.ParseTier(req.Tier)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if !h.requireTier(w, requesterID(r), permissions.TierAdmin) {
			return
		}
		if err := h.Gate.Grant(req.UserID, tier); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "granted"})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandlePermissionByUser lists one user's tiers or revokes one:
// DELETE /permissions/{user}/{tier}.
func (h *Handlers) HandlePermissionByUser(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/permissions/")
	userID, tierName, _ := strings.Cut(rest, "/")
	if userID == "" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		tiers, err := h.Gate.List(userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "tiers": tiers})
	case http.MethodDelete:
		tier, err := permissions.ParseTier(tierName)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if !h.requireTier(w, requesterID(r), permissions.TierAdmin) {
			return
		}
		if err := h.Gate.Revoke(userID, tier); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
