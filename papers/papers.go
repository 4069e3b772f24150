// Package papers manages role-button panels: an embed with a row of buttons
// that grant a role or link out. The persisted panel is authoritative; the
// chat message is re-rendered from it after every mutation.
package papers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/guildkeeper/chatapi"
	"github.com/onnwee/guildkeeper/codec"
	"github.com/onnwee/guildkeeper/colors"
	"github.com/onnwee/guildkeeper/store"
	"github.com/onnwee/guildkeeper/telemetry"
)

// PrefixRole is the component ID prefix of role-granting buttons. The rest
// of the ID is the button's position in the panel; the panel itself is
// resolved from the pressed message.
const PrefixRole = "papers_role_"

// ActionType says what a button does when pressed.
type ActionType string

const (
	ActionGrantRole ActionType = "grant_role"
	ActionOpenLink  ActionType = "open_link"
)

// Action is a button's effect.
type Action struct {
	Type   ActionType `json:"type"`
	RoleID string     `json:"role_id,omitempty"`
	URL    string     `json:"url,omitempty"`
}

// PanelButton is one button on a panel.
type PanelButton struct {
	Label  string              `json:"label"`
	Action Action              `json:"action"`
	Style  chatapi.ButtonStyle `json:"style,omitempty"`
	Emoji  string              `json:"emoji,omitempty"`
}

// Panel is one persisted role-button panel, keyed by channel and message.
type Panel struct {
	ChannelID string              `json:"channel_id"`
	MessageID string              `json:"message_id"`
	GuildID   string              `json:"guild_id"`
	Embed     chatapi.EmbedConfig `json:"embed"`
	Buttons   []PanelButton       `json:"buttons"`
}

// Key is the stable record key.
func (p Panel) Key() string { return p.ChannelID + ":" + p.MessageID }

// Ref is the panel's bound message.
func (p Panel) Ref() chatapi.MessageRef {
	return chatapi.MessageRef{ChannelID: p.ChannelID, MessageID: p.MessageID}
}

const panelsTable store.Table = "papers"

// The original persisted shape carried role-only buttons as {name, role_id}.
// Records still in that shape are upgraded on first load.
type legacyButton struct {
	Name   string `json:"name"`
	RoleID string `json:"role_id"`
	Emoji  string `json:"emoji,omitempty"`
}

type legacyPanel struct {
	ChannelID string              `json:"channel_id"`
	MessageID string              `json:"message_id"`
	GuildID   string              `json:"guild_id"`
	Embed     chatapi.EmbedConfig `json:"embed"`
	Buttons   []legacyButton      `json:"buttons"`
}

func upgradeLegacy(raw json.RawMessage) (Panel, error) {
	var old legacyPanel
	if err := json.Unmarshal(raw, &old); err != nil {
		return Panel{}, err
	}
	p := Panel{
		ChannelID: old.ChannelID,
		MessageID: old.MessageID,
		GuildID:   old.GuildID,
		Embed:     old.Embed,
	}
	for _, b := range old.Buttons {
		p.Buttons = append(p.Buttons, PanelButton{
			Label:  b.Name,
			Action: Action{Type: ActionGrantRole, RoleID: b.RoleID},
			Style:  chatapi.StyleSecondary,
			Emoji:  b.Emoji,
		})
	}
	return p, nil
}

var panelKind = codec.Kind[Panel]{
	Version: 2,
	Upgrades: map[int]func(json.RawMessage) (Panel, error){
		1: upgradeLegacy,
	},
	Legacy: upgradeLegacy,
}

// Service owns panel records.
type Service struct {
	Store *store.Store
	Chat  chatapi.Client
	// Now is the clock, overridable in tests. Nil means time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Start posts a fresh panel message and persists the panel.
func (s *Service) Start(ctx context.Context, channelID, guildID, title, body string) (Panel, error) {
	p := Panel{
		ChannelID: channelID,
		GuildID:   guildID,
		Embed: chatapi.EmbedConfig{
			Title:       title,
			Description: body,
			Color:       colors.Primary,
		},
	}
	ref, err := s.Chat.SendMessage(ctx, channelID, s.render(p))
	if err != nil {
		return Panel{}, fmt.Errorf("send panel message: %w", err)
	}
	p.MessageID = ref.MessageID
	enc, err := panelKind.Encode(p)
	if err != nil {
		return Panel{}, err
	}
	if err := s.Store.Put(panelsTable, p.Key(), enc); err != nil {
		return Panel{}, err
	}
	return p, nil
}

// Stop deletes a panel and its chat message.
func (s *Service) Stop(ctx context.Context, ref chatapi.MessageRef) error {
	key := ref.ChannelID + ":" + ref.MessageID
	if _, err := s.Get(ref); err != nil {
		if err == store.ErrNotFound {
			return fmt.Errorf("no panel bound to that message")
		}
		return err
	}
	if err := s.Chat.DeleteMessage(ctx, ref); err != nil && !chatapi.IsNotFound(err) {
		slog.Warn("delete panel message", slog.String("key", key), slog.Any("err", err))
	}
	return s.Store.Delete(panelsTable, key)
}

// Get loads one panel.
func (s *Service) Get(ref chatapi.MessageRef) (Panel, error) {
	key := ref.ChannelID + ":" + ref.MessageID
	raw, err := s.Store.Get(panelsTable, key)
	if err != nil {
		return Panel{}, err
	}
	p, upgraded, err := panelKind.Decode(raw)
	if err != nil {
		return Panel{}, fmt.Errorf("panel %s: %w", key, err)
	}
	if upgraded {
		if enc, eerr := panelKind.Encode(p); eerr == nil {
			_ = s.Store.Put(panelsTable, key, enc)
		}
	}
	return p, nil
}

// List returns all panels sorted by key.
func (s *Service) List() ([]Panel, error) {
	entries, err := s.Store.Scan(panelsTable)
	if err != nil {
		return nil, err
	}
	out := make([]Panel, 0, len(entries))
	for _, e := range entries {
		p, _, err := panelKind.Decode(e.Value)
		if err != nil {
			slog.Warn("skipping corrupt panel record", slog.String("key", e.Key), slog.Any("err", err))
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// mutate applies fn to the panel, persists, and re-renders the message.
func (s *Service) mutate(ctx context.Context, ref chatapi.MessageRef, fn func(*Panel) error) (Panel, error) {
	key := ref.ChannelID + ":" + ref.MessageID
	var updated Panel
	err := s.Store.Update(panelsTable, key, func(old []byte, found bool) ([]byte, error) {
		if !found {
			return nil, fmt.Errorf("no panel bound to that message")
		}
		p, _, err := panelKind.Decode(old)
		if err != nil {
			return nil, err
		}
		if err := fn(&p); err != nil {
			return nil, err
		}
		updated = p
		return panelKind.Encode(p)
	})
	if err != nil {
		return Panel{}, err
	}
	if err := s.Chat.EditMessage(ctx, updated.Ref(), s.render(updated)); err != nil {
		// The record is already durable; the message can be re-rendered
		// later or pruned if it is gone for good.
		slog.Warn("panel re-render failed", slog.String("key", key), slog.Any("err", err))
	}
	return updated, nil
}

// FindButton resolves an identifier to a button position: a number is a
// 1-based index, anything else a case-insensitive label match.
func (p Panel) FindButton(identifier string) (int, bool) {
	if n, err := strconv.Atoi(strings.TrimSpace(identifier)); err == nil {
		if n >= 1 && n <= len(p.Buttons) {
			return n - 1, true
		}
		return 0, false
	}
	for i, b := range p.Buttons {
		if strings.EqualFold(b.Label, identifier) {
			return i, true
		}
	}
	return 0, false
}

func (p *Panel) addButton(b PanelButton) error {
	if b.Label == "" {
		return fmt.Errorf("button label must not be empty")
	}
	for _, existing := range p.Buttons {
		if strings.EqualFold(existing.Label, b.Label) {
			return fmt.Errorf("a button labeled %q already exists", b.Label)
		}
	}
	if len(p.Buttons) >= 25 {
		return fmt.Errorf("panel is full")
	}
	p.Buttons = append(p.Buttons, b)
	return nil
}

// AddRoleButton appends a role-granting button.
func (s *Service) AddRoleButton(ctx context.Context, ref chatapi.MessageRef, label, roleID string, style chatapi.ButtonStyle, emoji string) (Panel, error) {
	if roleID == "" {
		return Panel{}, fmt.Errorf("role id must not be empty")
	}
	if style == 0 {
		style = chatapi.StyleSecondary
	}
	return s.mutate(ctx, ref, func(p *Panel) error {
		return p.addButton(PanelButton{
			Label:  label,
			Action: Action{Type: ActionGrantRole, RoleID: roleID},
			Style:  style,
			Emoji:  emoji,
		})
	})
}

// AddLinkButton appends a link button.
func (s *Service) AddLinkButton(ctx context.Context, ref chatapi.MessageRef, label, url, emoji string) (Panel, error) {
	if url == "" {
		return Panel{}, fmt.Errorf("url must not be empty")
	}
	return s.mutate(ctx, ref, func(p *Panel) error {
		return p.addButton(PanelButton{
			Label:  label,
			Action: Action{Type: ActionOpenLink, URL: url},
			Style:  chatapi.StyleLink,
			Emoji:  emoji,
		})
	})
}

// EditButton replaces the label, emoji, or style of one button. Empty
// arguments leave the field unchanged.
func (s *Service) EditButton(ctx context.Context, ref chatapi.MessageRef, identifier, newLabel, newEmoji string, newStyle chatapi.ButtonStyle) (Panel, error) {
	return s.mutate(ctx, ref, func(p *Panel) error {
		idx, ok := p.FindButton(identifier)
		if !ok {
			return fmt.Errorf("no button matches %q", identifier)
		}
		b := &p.Buttons[idx]
		if newLabel != "" {
			for i, other := range p.Buttons {
				if i != idx && strings.EqualFold(other.Label, newLabel) {
					return fmt.Errorf("a button labeled %q already exists", newLabel)
				}
			}
			b.Label = newLabel
		}
		if newEmoji != "" {
			b.Emoji = newEmoji
		}
		if newStyle != 0 && b.Action.Type != ActionOpenLink {
			b.Style = newStyle
		}
		return nil
	})
}

// DeleteButton removes one button; later buttons shift down.
func (s *Service) DeleteButton(ctx context.Context, ref chatapi.MessageRef, identifier string) (Panel, error) {
	return s.mutate(ctx, ref, func(p *Panel) error {
		idx, ok := p.FindButton(identifier)
		if !ok {
			return fmt.Errorf("no button matches %q", identifier)
		}
		p.Buttons = append(p.Buttons[:idx], p.Buttons[idx+1:]...)
		return nil
	})
}

// SetAuthor updates the embed author block.
func (s *Service) SetAuthor(ctx context.Context, ref chatapi.MessageRef, name, url, iconURL string) (Panel, error) {
	return s.mutate(ctx, ref, func(p *Panel) error {
		p.Embed.AuthorName = name
		p.Embed.AuthorURL = url
		p.Embed.AuthorIconURL = iconURL
		return nil
	})
}

// SetBody updates the embed title and description.
func (s *Service) SetBody(ctx context.Context, ref chatapi.MessageRef, title, body string) (Panel, error) {
	return s.mutate(ctx, ref, func(p *Panel) error {
		p.Embed.Title = title
		p.Embed.Description = body
		return nil
	})
}

// SetImages updates the embed image and thumbnail URLs.
func (s *Service) SetImages(ctx context.Context, ref chatapi.MessageRef, imageURL, thumbnailURL string) (Panel, error) {
	return s.mutate(ctx, ref, func(p *Panel) error {
		p.Embed.ImageURL = imageURL
		p.Embed.ThumbnailURL = thumbnailURL
		return nil
	})
}

// render builds the panel message from the record.
func (s *Service) render(p Panel) chatapi.Message {
	buttons := make([]chatapi.Button, 0, len(p.Buttons))
	for i, b := range p.Buttons {
		btn := chatapi.Button{Label: b.Label, Style: b.Style, Emoji: b.Emoji}
		if b.Action.Type == ActionOpenLink {
			btn.Style = chatapi.StyleLink
			btn.URL = b.Action.URL
		} else {
			btn.CustomID = fmt.Sprintf("%s%d", PrefixRole, i)
		}
		buttons = append(buttons, btn)
	}
	return chatapi.Message{
		Embeds:     []chatapi.Embed{p.Embed.Render(s.now())},
		Components: chatapi.RowsOf(buttons),
	}
}

// HandleRoleButton grants the role bound to the pressed button.
func (s *Service) HandleRoleButton(ctx context.Context, i chatapi.Interaction) error {
	telemetry.CountInteraction("papers_role")
	ref := i.Message
	if ref.ChannelID == "" {
		ref.ChannelID = i.ChannelID
	}
	p, err := s.Get(ref)
	if err != nil {
		return s.Chat.Respond(ctx, i, chatapi.Message{Content: "This panel no longer exists."}, true)
	}
	idx, err := strconv.Atoi(strings.TrimPrefix(i.CustomID, PrefixRole))
	if err != nil || idx < 0 || idx >= len(p.Buttons) {
		return s.Chat.Respond(ctx, i, chatapi.Message{Content: "That button is no longer on this panel."}, true)
	}
	b := p.Buttons[idx]
	if b.Action.Type != ActionGrantRole {
		return s.Chat.Respond(ctx, i, chatapi.Message{Content: "That button does not grant a role."}, true)
	}
	if err := s.Chat.AddMemberRole(ctx, p.GuildID, i.User.ID, b.Action.RoleID); err != nil {
		return s.Chat.Respond(ctx, i, chatapi.Message{Content: "Granting the role failed: " + err.Error()}, true)
	}
	return s.Chat.Respond(ctx, i, chatapi.Message{Content: fmt.Sprintf("You now have the %s role.", b.Label)}, true)
}

// PruneResult counts what a prune pass did.
type PruneResult struct {
	Checked   int `json:"checked"`
	Removed   int `json:"removed"`
	Corrupted int `json:"corrupted"`
}

// Prune removes panels whose bound message no longer exists, and corrupt
// records that cannot be decoded at all. Panels whose message cannot be
// checked (transient API failure) are left alone.
func (s *Service) Prune(ctx context.Context) (PruneResult, error) {
	entries, err := s.Store.Scan(panelsTable)
	if err != nil {
		return PruneResult{}, err
	}
	var res PruneResult
	for _, e := range entries {
		res.Checked++
		p, _, err := panelKind.Decode(e.Value)
		if err != nil {
			res.Corrupted++
			if derr := s.Store.Delete(panelsTable, e.Key); derr != nil {
				return res, derr
			}
			slog.Warn("pruned corrupt panel record", slog.String("key", e.Key))
			continue
		}
		exists, err := s.Chat.MessageExists(ctx, p.Ref())
		if err != nil {
			slog.Warn("panel message check failed", slog.String("key", e.Key), slog.Any("err", err))
			continue
		}
		if !exists {
			res.Removed++
			if derr := s.Store.Delete(panelsTable, e.Key); derr != nil {
				return res, derr
			}
			slog.Info("pruned panel with missing message", slog.String("key", e.Key))
		}
	}
	return res, nil
}
