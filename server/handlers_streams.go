package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/onnwee/guildkeeper/permissions"
)

// HandleStreams lists follows or creates one.
func (h *Handlers) HandleStreams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		statuses, err := h.Streams.Status()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, statuses)
	case http.MethodPost:
		var req struct {
			Channel         string `json:"channel"`
			NotifyChannelID string `json:"notify_channel_id"`
			FollowerID      string `json:"follower_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.NotifyChannelID == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("notify_channel_id required"))
			return
		}
		if !h.requireTier(w, req.FollowerID, permissions.TierTrusted) {
			return
		}
		f, err := h.Streams.Follow(r.Context(), req.Channel, req.NotifyChannelID, req.FollowerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, f)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleStreamByKey unfollows one channel, addressed by its channel name or
// URL.
func (h *Handlers) HandleStreamByKey(w http.ResponseWriter, r *http.Request) {
	channel := strings.TrimPrefix(r.URL.Path, "/streams/")
	if channel == "" || channel == "preview" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.requireTier(w, requesterID(r), permissions.TierTrusted) {
		return
	}
	// Keys are platform:channel; accept either form.
	if _, rest, found := strings.Cut(channel, ":"); found {
		channel = rest
	}
	if err := h.Streams.Unfollow(r.Context(), channel); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unfollowed"})
}

// HandleStreamPreview probes a channel without following it.
func (h *Handlers) HandleStreamPreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("channel query parameter required"))
		return
	}
	status, err := h.Streams.Preview(r.Context(), channel)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
