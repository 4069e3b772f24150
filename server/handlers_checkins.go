package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/guildkeeper/store"
)

// HandleCheckIns lists campaigns or starts one.
func (h *Handlers) HandleCheckIns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		campaigns, err := h.CheckIns.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, campaigns)
	case http.MethodPost:
		var req struct {
			ChannelID string `json:"channel_id"`
			GuildID   string `json:"guild_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.ChannelID == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("channel_id required"))
			return
		}
		c, err := h.CheckIns.Start(r.Context(), req.ChannelID, req.GuildID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleCheckInByChannel reads or stops one campaign. GET supports a
// non_responder_hours query parameter to list stale enrollees.
func (h *Handlers) HandleCheckInByChannel(w http.ResponseWriter, r *http.Request) {
	channelID := strings.TrimPrefix(r.URL.Path, "/checkins/")
	if channelID == "" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		window := time.Duration(parseIntQuery(r, "non_responder_hours", 0)) * time.Hour
		st, err := h.CheckIns.Status(channelID, window)
		if err != nil {
			if err == store.ErrNotFound {
				http.NotFound(w, r)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	case http.MethodDelete:
		if err := h.CheckIns.Stop(r.Context(), channelID); err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
