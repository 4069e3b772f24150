// Package interactions dispatches component presses and modal submissions
// to the owning feature by custom ID prefix. The host gateway delivers the
// events; this router is the single place the prefixes are wired.
package interactions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onnwee/guildkeeper/chatapi"
	"github.com/onnwee/guildkeeper/checkin"
	"github.com/onnwee/guildkeeper/papers"
	"github.com/onnwee/guildkeeper/tickets"
)

// Router routes interactions to the feature services.
type Router struct {
	CheckIns *checkin.Service
	Tickets  *tickets.Service
	Papers   *papers.Service
}

// Handle dispatches one interaction. Unknown custom IDs return an error so
// the host can log them; nothing is mutated for them.
func (r *Router) Handle(ctx context.Context, i chatapi.Interaction) error {
	switch {
	case i.CustomID == checkin.CustomID:
		return r.CheckIns.HandleCheckIn(ctx, i)
	case strings.HasPrefix(i.CustomID, tickets.PrefixCreate):
		return r.Tickets.HandleCreateButton(ctx, i)
	case strings.HasPrefix(i.CustomID, tickets.PrefixModal):
		return r.Tickets.HandleCreateModal(ctx, i)
	case strings.HasPrefix(i.CustomID, tickets.PrefixCloseConfirm):
		return r.Tickets.HandleCloseConfirm(ctx, i)
	case strings.HasPrefix(i.CustomID, tickets.PrefixCloseCancel):
		return r.Tickets.HandleCloseCancel(ctx, i)
	case strings.HasPrefix(i.CustomID, tickets.PrefixDelete):
		return r.Tickets.HandleDelete(ctx, i)
	case strings.HasPrefix(i.CustomID, papers.PrefixRole):
		return r.Papers.HandleRoleButton(ctx, i)
	default:
		slog.Warn("unroutable interaction", slog.String("custom_id", i.CustomID))
		return fmt.Errorf("no handler for custom id %q", i.CustomID)
	}
}
