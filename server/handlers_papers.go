package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/onnwee/guildkeeper/chatapi"
	"github.com/onnwee/guildkeeper/permissions"
	"github.com/onnwee/guildkeeper/store"
)

// HandlePapers lists panels or starts one.
func (h *Handlers) HandlePapers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		panels, err := h.Papers.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, panels)
	case http.MethodPost:
		var req struct {
			ChannelID string `json:"channel_id"`
			GuildID   string `json:"guild_id"`
			Title     string `json:"title"`
			Body      string `json:"body"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.ChannelID == "" || req.GuildID == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("channel_id and guild_id required"))
			return
		}
		if !h.requireTier(w, requesterID(r), permissions.TierAdmin) {
			return
		}
		p, err := h.Papers.Start(r.Context(), req.ChannelID, req.GuildID, req.Title, req.Body)
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandlePapersPrune removes panels whose bound message is gone and corrupt
// records.
func (h *Handlers) HandlePapersPrune(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.requireTier(w, requesterID(r), permissions.TierAdmin) {
		return
	}
	res, err := h.Papers.Prune(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandlePaperByKey reads, mutates, or stops one panel. The key is the
// channel:message pair. POST .../buttons adds a button, DELETE
// .../buttons/{identifier} removes one, PATCH updates the embed body,
// author, or images.
func (h *Handlers) HandlePaperByKey(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/papers/")
	key, sub, _ := strings.Cut(rest, "/")
	channelID, messageID, found := strings.Cut(key, ":")
	if !found || channelID == "" || messageID == "" {
		http.NotFound(w, r)
		return
	}
	ref := chatapi.MessageRef{ChannelID: channelID, MessageID: messageID}

	// Panel mutations mirror the admin-only chat commands; reads stay open.
	if r.Method != http.MethodGet && !h.requireTier(w, requesterID(r), permissions.TierAdmin) {
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		p, err := h.Papers.Get(ref)
		if err != nil {
			if err == store.ErrNotFound {
				http.NotFound(w, r)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, p)

	case sub == "" && r.Method == http.MethodDelete:
		if err := h.Papers.Stop(r.Context(), ref); err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})

	case sub == "" && r.Method == http.MethodPatch:
		var req struct {
			Title         *string `json:"title"`
			Body          *string `json:"body"`
			AuthorName    *string `json:"author_name"`
			AuthorURL     *string `json:"author_url"`
			AuthorIconURL *string `json:"author_icon_url"`
			ImageURL      *string `json:"image_url"`
			ThumbnailURL  *string `json:"thumbnail_url"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		var err error
		var p any
		switch {
		case req.Title != nil || req.Body != nil:
			title, body := strDeref(req.Title), strDeref(req.Body)
			p, err = h.Papers.SetBody(r.Context(), ref, title, body)
		case req.AuthorName != nil:
			p, err = h.Papers.SetAuthor(r.Context(), ref, strDeref(req.AuthorName), strDeref(req.AuthorURL), strDeref(req.AuthorIconURL))
		case req.ImageURL != nil || req.ThumbnailURL != nil:
			p, err = h.Papers.SetImages(r.Context(), ref, strDeref(req.ImageURL), strDeref(req.ThumbnailURL))
		default:
			writeError(w, http.StatusBadRequest, fmt.Errorf("nothing to update"))
			return
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, p)

	case sub == "buttons" && r.Method == http.MethodPost:
		var req struct {
			Label  string              `json:"label"`
			RoleID string              `json:"role_id"`
			URL    string              `json:"url"`
			Style  chatapi.ButtonStyle `json:"style"`
			Emoji  string              `json:"emoji"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		var err error
		var p any
		if req.URL != "" {
			p, err = h.Papers.AddLinkButton(r.Context(), ref, req.Label, req.URL, req.Emoji)
		} else {
			p, err = h.Papers.AddRoleButton(r.Context(), ref, req.Label, req.RoleID, req.Style, req.Emoji)
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, p)

	case strings.HasPrefix(sub, "buttons/") && r.Method == http.MethodDelete:
		identifier := strings.TrimPrefix(sub, "buttons/")
		p, err := h.Papers.DeleteButton(r.Context(), ref, identifier)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, p)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func strDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
