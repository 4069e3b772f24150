// Package tickets implements configurable ticket menus and the ticket
// lifecycle. A menu is a bound embed with a create button; pressing it opens
// a modal, and submitting the modal spawns a private channel visible to the
// creator, the owner, and the bot. Tickets go open, closed, deleted.
package tickets

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/guildkeeper/chatapi"
	"github.com/onnwee/guildkeeper/codec"
	"github.com/onnwee/guildkeeper/colors"
	"github.com/onnwee/guildkeeper/store"
	"github.com/onnwee/guildkeeper/telemetry"
)

// Component ID prefixes routed to this package.
const (
	PrefixCreate       = "ticket_create_"
	PrefixModal        = "ticket_modal_"
	PrefixCloseConfirm = "ticket_close_confirm_"
	PrefixCloseCancel  = "ticket_close_cancel_"
	PrefixDelete       = "ticket_delete_"
)

// Modal input IDs.
const (
	inputTitle = "ticket_title"
	inputDesc  = "ticket_description"
)

// ButtonConfig styles the menu's create button.
type ButtonConfig struct {
	Label string              `json:"label,omitempty"`
	Emoji string              `json:"emoji,omitempty"`
	Style chatapi.ButtonStyle `json:"style,omitempty"`
}

// ModalConfig labels the two free-text fields of the creation modal.
type ModalConfig struct {
	Title            string `json:"title,omitempty"`
	TitleLabel       string `json:"title_label,omitempty"`
	TitlePlaceholder string `json:"title_placeholder,omitempty"`
	DescLabel        string `json:"desc_label,omitempty"`
	DescPlaceholder  string `json:"desc_placeholder,omitempty"`
}

// Menu is one persisted ticket menu. The bound message is re-rendered from
// this record on every change.
type Menu struct {
	ID         string              `json:"id"`
	ChannelID  string              `json:"channel_id"`
	Message    chatapi.MessageRef  `json:"message,omitempty"`
	GuildID    string              `json:"guild_id"`
	CategoryID string              `json:"category_id,omitempty"`
	Embed      chatapi.EmbedConfig `json:"embed"`
	Button     ButtonConfig        `json:"button"`
	Modal      ModalConfig         `json:"modal"`
}

// Ticket is one opened support ticket, keyed by its channel ID.
type Ticket struct {
	ChannelID string    `json:"channel_id"`
	CreatorID string    `json:"creator_id"`
	GuildID   string    `json:"guild_id"`
	Number    uint64    `json:"number"`
	Closed    bool      `json:"closed"`
	OpenedAt  time.Time `json:"opened_at"`
}

const (
	menusTable   store.Table = "ticket_menus"
	ticketsTable store.Table = "tickets"
)

var (
	menuKind   = codec.Kind[Menu]{Version: 1}
	ticketKind = codec.Kind[Ticket]{Version: 1}
)

// Service owns ticket menus and active tickets.
type Service struct {
	Store *store.Store
	Chat  chatapi.Client
	// OwnerID is the privileged identity that administers tickets.
	OwnerID string
	// BotUserID is granted access to every ticket channel so the bot can
	// post in it.
	BotUserID string
	// Now is the clock, overridable in tests. Nil means time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) isOwner(userID string) bool {
	return s.OwnerID != "" && userID == s.OwnerID
}

func (m *Menu) applyDefaults() {
	if m.Button.Label == "" {
		m.Button.Label = "Open a ticket"
	}
	if m.Button.Style == 0 {
		m.Button.Style = chatapi.StylePrimary
	}
	if m.Modal.Title == "" {
		m.Modal.Title = "Open a ticket"
	}
	if m.Modal.TitleLabel == "" {
		m.Modal.TitleLabel = "Subject"
	}
	if m.Modal.DescLabel == "" {
		m.Modal.DescLabel = "Describe your issue"
	}
	if m.Embed.Title == "" {
		m.Embed.Title = "Support"
	}
	if m.Embed.Description == "" {
		m.Embed.Description = "Press the button below to open a private ticket with the team."
	}
	if m.Embed.Color == 0 {
		m.Embed.Color = colors.Primary
	}
}

// SaveMenu creates or updates a menu and re-renders its bound message. An
// empty ID creates a new menu.
func (s *Service) SaveMenu(ctx context.Context, m Menu) (Menu, error) {
	if m.ChannelID == "" || m.GuildID == "" {
		return Menu{}, fmt.Errorf("ticket menu needs a channel and a guild")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.applyDefaults()

	// Serialize saves of the same menu; two racing saves must not both
	// miss the message binding and post duplicate messages.
	unlock := s.Store.Lock(menusTable, m.ID)
	defer unlock()

	// Keep the message binding of an existing menu so an update edits in
	// place instead of orphaning the old message.
	if prev, err := s.GetMenu(m.ID); err == nil && m.Message.Zero() {
		m.Message = prev.Message
	}

	if err := s.renderMenu(ctx, &m); err != nil {
		return Menu{}, err
	}
	enc, err := menuKind.Encode(m)
	if err != nil {
		return Menu{}, err
	}
	if err := s.Store.Put(menusTable, m.ID, enc); err != nil {
		return Menu{}, err
	}
	return m, nil
}

// renderMenu creates or edits the bound chat message to match the record.
func (s *Service) renderMenu(ctx context.Context, m *Menu) error {
	msg := chatapi.Message{
		Embeds: []chatapi.Embed{m.Embed.Render(s.now())},
		Components: chatapi.RowsOf([]chatapi.Button{{
			CustomID: PrefixCreate + m.ID,
			Label:    m.Button.Label,
			Style:    m.Button.Style,
			Emoji:    m.Button.Emoji,
		}}),
	}
	if !m.Message.Zero() {
		err := s.Chat.EditMessage(ctx, m.Message, msg)
		if err == nil {
			return nil
		}
		if !chatapi.IsNotFound(err) {
			return fmt.Errorf("edit menu message: %w", err)
		}
		// Bound message is gone; recreate it below.
	}
	ref, err := s.Chat.SendMessage(ctx, m.ChannelID, msg)
	if err != nil {
		return fmt.Errorf("send menu message: %w", err)
	}
	m.Message = ref
	return nil
}

// GetMenu loads one menu.
func (s *Service) GetMenu(id string) (Menu, error) {
	raw, err := s.Store.Get(menusTable, id)
	if err != nil {
		return Menu{}, err
	}
	m, upgraded, err := menuKind.Decode(raw)
	if err != nil {
		return Menu{}, fmt.Errorf("ticket menu %s: %w", id, err)
	}
	if upgraded {
		if enc, eerr := menuKind.Encode(m); eerr == nil {
			_ = s.Store.Put(menusTable, id, enc)
		}
	}
	return m, nil
}

// ListMenus returns all menus sorted by ID.
func (s *Service) ListMenus() ([]Menu, error) {
	entries, err := s.Store.Scan(menusTable)
	if err != nil {
		return nil, err
	}
	out := make([]Menu, 0, len(entries))
	for _, e := range entries {
		m, _, err := menuKind.Decode(e.Value)
		if err != nil {
			slog.Warn("skipping corrupt ticket menu", slog.String("key", e.Key), slog.Any("err", err))
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteMenu removes a menu and its bound message.
func (s *Service) DeleteMenu(ctx context.Context, id string) error {
	unlock := s.Store.Lock(menusTable, id)
	defer unlock()

	m, err := s.GetMenu(id)
	if err != nil {
		return err
	}
	if !m.Message.Zero() {
		if err := s.Chat.DeleteMessage(ctx, m.Message); err != nil && !chatapi.IsNotFound(err) {
			slog.Warn("delete menu message", slog.String("menu", id), slog.Any("err", err))
		}
	}
	return s.Store.Delete(menusTable, id)
}

// HandleCreateButton opens the ticket-creation modal.
func (s *Service) HandleCreateButton(ctx context.Context, i chatapi.Interaction) error {
	telemetry.CountInteraction("ticket_create")
	menuID := strings.TrimPrefix(i.CustomID, PrefixCreate)
	m, err := s.GetMenu(menuID)
	if err != nil {
		return s.Chat.Respond(ctx, i, chatapi.Message{Content: "This ticket menu no longer exists."}, true)
	}
	return s.Chat.RespondModal(ctx, i, chatapi.Modal{
		CustomID: PrefixModal + m.ID,
		Title:    m.Modal.Title,
		Inputs: []chatapi.TextInput{
			{
				CustomID:    inputTitle,
				Label:       m.Modal.TitleLabel,
				Style:       chatapi.InputShort,
				Placeholder: m.Modal.TitlePlaceholder,
				Required:    true,
			},
			{
				CustomID:    inputDesc,
				Label:       m.Modal.DescLabel,
				Style:       chatapi.InputParagraph,
				Placeholder: m.Modal.DescPlaceholder,
				Required:    true,
			},
		},
	})
}

// HandleCreateModal spawns the private ticket channel from a modal
// submission.
func (s *Service) HandleCreateModal(ctx context.Context, i chatapi.Interaction) error {
	telemetry.CountInteraction("ticket_modal")
	if err := s.Chat.Defer(ctx, i, true); err != nil {
		return fmt.Errorf("defer ticket modal: %w", err)
	}
	menuID := strings.TrimPrefix(i.CustomID, PrefixModal)
	m, err := s.GetMenu(menuID)
	if err != nil {
		return s.Chat.EditResponse(ctx, i, chatapi.Message{Content: "This ticket menu no longer exists."})
	}

	number, err := s.Store.NextSeq("ticket_number")
	if err != nil {
		return s.failResponse(ctx, i, fmt.Errorf("allocate ticket number: %w", err))
	}

	overwrites := []chatapi.PermissionOverwrite{
		// @everyone is the role whose ID equals the guild ID.
		{ID: m.GuildID, Type: chatapi.OverwriteRole, Deny: chatapi.PermViewChannel},
		{ID: i.User.ID, Type: chatapi.OverwriteMember, Allow: chatapi.PermViewChannel | chatapi.PermSendMessages | chatapi.PermReadMessageHistory},
	}
	if s.OwnerID != "" {
		overwrites = append(overwrites, chatapi.PermissionOverwrite{
			ID: s.OwnerID, Type: chatapi.OverwriteMember,
			Allow: chatapi.PermViewChannel | chatapi.PermSendMessages | chatapi.PermReadMessageHistory | chatapi.PermManageChannels,
		})
	}
	if s.BotUserID != "" {
		overwrites = append(overwrites, chatapi.PermissionOverwrite{
			ID: s.BotUserID, Type: chatapi.OverwriteMember,
			Allow: chatapi.PermViewChannel | chatapi.PermSendMessages | chatapi.PermReadMessageHistory | chatapi.PermManageChannels,
		})
	}
	channelID, err := s.Chat.CreateChannel(ctx, m.GuildID, chatapi.ChannelCreate{
		Name:       fmt.Sprintf("ticket-%04d", number),
		ParentID:   m.CategoryID,
		Overwrites: overwrites,
	})
	if err != nil {
		return s.failResponse(ctx, i, fmt.Errorf("create ticket channel: %w", err))
	}

	title := i.Values[inputTitle]
	desc := i.Values[inputDesc]
	if _, err := s.Chat.SendMessage(ctx, channelID, chatapi.Message{
		Content: fmt.Sprintf("<@%s>", i.User.ID),
		Embeds: []chatapi.Embed{{
			Title:       fmt.Sprintf("Ticket #%04d: %s", number, title),
			Description: desc,
			Color:       colors.Info,
			Footer:      &chatapi.EmbedFooter{Text: "Use /close to close this ticket when resolved."},
			Timestamp:   s.now().UTC().Format(time.RFC3339),
		}},
	}); err != nil {
		slog.Warn("ticket intro message", slog.String("channel", channelID), slog.Any("err", err))
	}

	tk := Ticket{
		ChannelID: channelID,
		CreatorID: i.User.ID,
		GuildID:   m.GuildID,
		Number:    number,
		OpenedAt:  s.now(),
	}
	enc, err := ticketKind.Encode(tk)
	if err != nil {
		return s.failResponse(ctx, i, err)
	}
	if err := s.Store.Put(ticketsTable, channelID, enc); err != nil {
		return s.failResponse(ctx, i, err)
	}
	return s.Chat.EditResponse(ctx, i, chatapi.Message{
		Content: fmt.Sprintf("Your ticket is ready: <#%s>", channelID),
	})
}

func (s *Service) failResponse(ctx context.Context, i chatapi.Interaction, err error) error {
	slog.Error("ticket creation failed", slog.Any("err", err))
	if rerr := s.Chat.EditResponse(ctx, i, chatapi.Message{Content: "Something went wrong opening your ticket. Please try again."}); rerr != nil {
		slog.Warn("ticket failure reply", slog.Any("err", rerr))
	}
	return err
}

// Get loads one ticket by channel ID.
func (s *Service) Get(channelID string) (Ticket, error) {
	raw, err := s.Store.Get(ticketsTable, channelID)
	if err != nil {
		return Ticket{}, err
	}
	tk, upgraded, err := ticketKind.Decode(raw)
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket %s: %w", channelID, err)
	}
	if upgraded {
		if enc, eerr := ticketKind.Encode(tk); eerr == nil {
			_ = s.Store.Put(ticketsTable, channelID, enc)
		}
	}
	return tk, nil
}

// List returns all tickets sorted by number.
func (s *Service) List() ([]Ticket, error) {
	entries, err := s.Store.Scan(ticketsTable)
	if err != nil {
		return nil, err
	}
	out := make([]Ticket, 0, len(entries))
	for _, e := range entries {
		tk, _, err := ticketKind.Decode(e.Value)
		if err != nil {
			slog.Warn("skipping corrupt ticket", slog.String("key", e.Key), slog.Any("err", err))
			continue
		}
		out = append(out, tk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// Close requests closing the ticket in channelID. The creator closes
// immediately; the owner gets a confirm/cancel prompt first; anyone else is
// rejected.
func (s *Service) Close(ctx context.Context, channelID, requesterID string) (string, error) {
	tk, err := s.Get(channelID)
	if err != nil {
		if err == store.ErrNotFound {
			return "", fmt.Errorf("this channel is not a ticket")
		}
		return "", err
	}
	if tk.Closed {
		return "", fmt.Errorf("this ticket is already closed")
	}
	switch {
	case requesterID == tk.CreatorID:
		if err := s.closeNow(ctx, &tk); err != nil {
			return "", err
		}
		return "Ticket closed.", nil
	case s.isOwner(requesterID):
		if _, err := s.Chat.SendMessage(ctx, channelID, chatapi.Message{
			Content: "Close this ticket?",
			Components: chatapi.RowsOf([]chatapi.Button{
				{CustomID: PrefixCloseConfirm + channelID, Label: "Close", Style: chatapi.StyleDanger},
				{CustomID: PrefixCloseCancel + channelID, Label: "Cancel", Style: chatapi.StyleSecondary},
			}),
		}); err != nil {
			return "", fmt.Errorf("post close confirmation: %w", err)
		}
		return "Confirm below to close this ticket.", nil
	default:
		return "", fmt.Errorf("only the ticket creator or the owner can close a ticket")
	}
}

// ForceClose closes immediately, owner only.
func (s *Service) ForceClose(ctx context.Context, channelID, requesterID string) error {
	if !s.isOwner(requesterID) {
		return fmt.Errorf("only the owner can force-close a ticket")
	}
	tk, err := s.Get(channelID)
	if err != nil {
		if err == store.ErrNotFound {
			return fmt.Errorf("this channel is not a ticket")
		}
		return err
	}
	if tk.Closed {
		return fmt.Errorf("this ticket is already closed")
	}
	return s.closeNow(ctx, &tk)
}

// closeNow revokes the creator's send right, persists the closed state, and
// posts the delete control.
func (s *Service) closeNow(ctx context.Context, tk *Ticket) error {
	if err := s.Chat.SetChannelPermission(ctx, tk.ChannelID, chatapi.PermissionOverwrite{
		ID:    tk.CreatorID,
		Type:  chatapi.OverwriteMember,
		Allow: chatapi.PermViewChannel | chatapi.PermReadMessageHistory,
		Deny:  chatapi.PermSendMessages,
	}); err != nil {
		return fmt.Errorf("lock ticket channel: %w", err)
	}
	tk.Closed = true
	err := s.Store.Update(ticketsTable, tk.ChannelID, func(old []byte, found bool) ([]byte, error) {
		if !found {
			return nil, fmt.Errorf("ticket disappeared while closing")
		}
		cur, _, err := ticketKind.Decode(old)
		if err != nil {
			return nil, err
		}
		cur.Closed = true
		return ticketKind.Encode(cur)
	})
	if err != nil {
		return err
	}
	if _, err := s.Chat.SendMessage(ctx, tk.ChannelID, chatapi.Message{
		Embeds: []chatapi.Embed{{
			Title:       "Ticket closed",
			Description: "The channel is now read-only for the creator.",
			Color:       colors.Warning,
		}},
		Components: chatapi.RowsOf([]chatapi.Button{{
			CustomID: PrefixDelete + tk.ChannelID,
			Label:    "Delete ticket",
			Style:    chatapi.StyleDanger,
			Emoji:    "🗑️",
		}}),
	}); err != nil {
		slog.Warn("post ticket close notice", slog.String("channel", tk.ChannelID), slog.Any("err", err))
	}
	return nil
}

// HandleCloseConfirm finalizes an owner-initiated close.
func (s *Service) HandleCloseConfirm(ctx context.Context, i chatapi.Interaction) error {
	telemetry.CountInteraction("ticket_close_confirm")
	if !s.isOwner(i.User.ID) {
		return s.Chat.Respond(ctx, i, chatapi.Message{Content: "Only the owner can confirm this."}, true)
	}
	channelID := strings.TrimPrefix(i.CustomID, PrefixCloseConfirm)
	tk, err := s.Get(channelID)
	if err != nil {
		return s.Chat.Respond(ctx, i, chatapi.Message{Content: "This ticket no longer exists."}, true)
	}
	if tk.Closed {
		return s.Chat.Respond(ctx, i, chatapi.Message{Content: "Already closed."}, true)
	}
	if err := s.closeNow(ctx, &tk); err != nil {
		return s.Chat.Respond(ctx, i, chatapi.Message{Content: "Closing failed: " + err.Error()}, true)
	}
	// Retire the confirm prompt so it cannot be pressed twice.
	if !i.Message.Zero() {
		if err := s.Chat.DeleteMessage(ctx, i.Message); err != nil {
			slog.Warn("delete close prompt", slog.Any("err", err))
		}
	}
	return s.Chat.Respond(ctx, i, chatapi.Message{Content: "Ticket closed."}, true)
}

// HandleCloseCancel dismisses the confirm prompt.
func (s *Service) HandleCloseCancel(ctx context.Context, i chatapi.Interaction) error {
	telemetry.CountInteraction("ticket_close_cancel")
	if !i.Message.Zero() {
		if err := s.Chat.DeleteMessage(ctx, i.Message); err != nil {
			slog.Warn("delete close prompt", slog.Any("err", err))
		}
	}
	return s.Chat.Respond(ctx, i, chatapi.Message{Content: "Close cancelled."}, true)
}

// HandleDelete removes a closed ticket's channel and record, owner only.
func (s *Service) HandleDelete(ctx context.Context, i chatapi.Interaction) error {
	telemetry.CountInteraction("ticket_delete")
	if !s.isOwner(i.User.ID) {
		return s.Chat.Respond(ctx, i, chatapi.Message{Content: "Only the owner can delete a ticket."}, true)
	}
	channelID := strings.TrimPrefix(i.CustomID, PrefixDelete)
	tk, err := s.Get(channelID)
	if err != nil {
		return s.Chat.Respond(ctx, i, chatapi.Message{Content: "This ticket no longer exists."}, true)
	}
	if !tk.Closed {
		return s.Chat.Respond(ctx, i, chatapi.Message{Content: "Close the ticket before deleting it."}, true)
	}
	// Acknowledge before the channel (and this interaction's context)
	// disappears.
	if err := s.Chat.Respond(ctx, i, chatapi.Message{Content: "Deleting this ticket."}, true); err != nil {
		slog.Warn("ticket delete ack", slog.Any("err", err))
	}
	if err := s.Chat.DeleteChannel(ctx, channelID); err != nil {
		return fmt.Errorf("delete ticket channel: %w", err)
	}
	return s.Store.Delete(ticketsTable, channelID)
}
