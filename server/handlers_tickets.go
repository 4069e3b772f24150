package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/onnwee/guildkeeper/store"
	"github.com/onnwee/guildkeeper/tickets"
)

// HandleTickets lists active tickets.
func (h *Handlers) HandleTickets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	list, err := h.Tickets.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleTicketByChannel reads one ticket or drives its close transitions:
// POST /tickets/{channel}/close and /tickets/{channel}/force-close take a
// requester_id and apply the same rules as the chat commands.
func (h *Handlers) HandleTicketByChannel(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/tickets/")
	channelID, action, _ := strings.Cut(rest, "/")
	if channelID == "" {
		http.NotFound(w, r)
		return
	}

	if action == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		tk, err := h.Tickets.Get(channelID)
		if err != nil {
			if err == store.ErrNotFound {
				http.NotFound(w, r)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, tk)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		RequesterID string `json:"requester_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RequesterID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("requester_id required"))
		return
	}

	switch action {
	case "close":
		msg, err := h.Tickets.Close(r.Context(), channelID, req.RequesterID)
		if err != nil {
			writeError(w, http.StatusForbidden, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": msg})
	case "force-close":
		if err := h.Tickets.ForceClose(r.Context(), channelID, req.RequesterID); err != nil {
			writeError(w, http.StatusForbidden, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
	default:
		http.NotFound(w, r)
	}
}

// HandleTicketMenus lists menus or saves one through the same save/render
// path the chat surface uses.
func (h *Handlers) HandleTicketMenus(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		menus, err := h.Tickets.ListMenus()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, menus)
	case http.MethodPost, http.MethodPut:
		var m tickets.Menu
		if !decodeJSON(w, r, &m) {
			return
		}
		saved, err := h.Tickets.SaveMenu(r.Context(), m)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleTicketMenuByID reads or deletes one menu.
func (h *Handlers) HandleTicketMenuByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/ticket-menus/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		m, err := h.Tickets.GetMenu(id)
		if err != nil {
			if err == store.ErrNotFound {
				http.NotFound(w, r)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	case http.MethodDelete:
		if err := h.Tickets.DeleteMenu(r.Context(), id); err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
