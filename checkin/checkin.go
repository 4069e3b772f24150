// Package checkin runs recurring check-in campaigns. Each campaign is bound
// to one chat channel; every 24 hours it posts a fresh roster message with a
// check-in button, and button presses enroll the presser or refresh their
// last-response time.
package checkin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/onnwee/guildkeeper/chatapi"
	"github.com/onnwee/guildkeeper/codec"
	"github.com/onnwee/guildkeeper/colors"
	"github.com/onnwee/guildkeeper/store"
	"github.com/onnwee/guildkeeper/telemetry"
)

// CustomID is the component ID of the check-in button.
const CustomID = "aydy_check"

// UserStatus is one enrolled user's state.
type UserStatus struct {
	DisplayName  string    `json:"display_name"`
	LastResponse time.Time `json:"last_response"`
	EnrolledAt   time.Time `json:"enrolled_at"`
}

// Campaign is one per-channel recurring broadcast.
type Campaign struct {
	ChannelID string                `json:"channel_id"`
	GuildID   string                `json:"guild_id,omitempty"`
	Message   chatapi.MessageRef    `json:"message,omitempty"`
	LastSent  time.Time             `json:"last_sent"`
	Enrolled  map[string]UserStatus `json:"enrolled"`
}

const campaignsTable store.Table = "checkins"

var campaignKind = codec.Kind[Campaign]{Version: 1}

// Service owns campaign records and the broadcast loop.
type Service struct {
	Store *store.Store
	Chat  chatapi.Client
	// TickInterval is how often the loop evaluates campaigns, not how
	// often messages go out. Zero means 1 hour.
	TickInterval time.Duration
	// BroadcastEvery is the elapsed time that triggers a new broadcast.
	// Zero means 24 hours.
	BroadcastEvery time.Duration
	// StaleAfter is the non-responder window used when rendering. Zero
	// means 48 hours.
	StaleAfter time.Duration
	// Now is the clock, overridable in tests. Nil means time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) broadcastEvery() time.Duration {
	if s.BroadcastEvery > 0 {
		return s.BroadcastEvery
	}
	return 24 * time.Hour
}

func (s *Service) staleAfter() time.Duration {
	if s.StaleAfter > 0 {
		return s.StaleAfter
	}
	return 48 * time.Hour
}

// Start creates a campaign for a channel. It fails if one already exists.
// The first broadcast goes out immediately.
func (s *Service) Start(ctx context.Context, channelID, guildID string) (Campaign, error) {
	c := Campaign{
		ChannelID: channelID,
		GuildID:   guildID,
		Enrolled:  map[string]UserStatus{},
	}
	err := s.Store.Update(campaignsTable, channelID, func(old []byte, found bool) ([]byte, error) {
		if found {
			return nil, fmt.Errorf("a check-in campaign already exists in this channel")
		}
		return campaignKind.Encode(c)
	})
	if err != nil {
		return Campaign{}, err
	}
	if err := s.broadcast(ctx, &c); err != nil {
		return c, err
	}
	return c, nil
}

// Stop deletes a campaign. The last broadcast message stays in chat.
func (s *Service) Stop(ctx context.Context, channelID string) error {
	if _, err := s.Store.Get(campaignsTable, channelID); err != nil {
		if err == store.ErrNotFound {
			return fmt.Errorf("no check-in campaign in this channel")
		}
		return err
	}
	return s.Store.Delete(campaignsTable, channelID)
}

// Get loads one campaign.
func (s *Service) Get(channelID string) (Campaign, error) {
	raw, err := s.Store.Get(campaignsTable, channelID)
	if err != nil {
		return Campaign{}, err
	}
	c, upgraded, err := campaignKind.Decode(raw)
	if err != nil {
		return Campaign{}, fmt.Errorf("campaign record for %s: %w", channelID, err)
	}
	if c.Enrolled == nil {
		c.Enrolled = map[string]UserStatus{}
	}
	if upgraded {
		if enc, eerr := campaignKind.Encode(c); eerr == nil {
			_ = s.Store.Put(campaignsTable, channelID, enc)
		}
	}
	return c, nil
}

// List returns all campaigns sorted by channel ID.
func (s *Service) List() ([]Campaign, error) {
	entries, err := s.Store.Scan(campaignsTable)
	if err != nil {
		return nil, err
	}
	out := make([]Campaign, 0, len(entries))
	for _, e := range entries {
		c, _, err := campaignKind.Decode(e.Value)
		if err != nil {
			slog.Warn("skipping corrupt campaign record", slog.String("key", e.Key), slog.Any("err", err))
			continue
		}
		if c.Enrolled == nil {
			c.Enrolled = map[string]UserStatus{}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out, nil
}

// CampaignStatus is the summary served by the status command and the
// management API.
type CampaignStatus struct {
	Campaign      Campaign `json:"campaign"`
	Enrolled      int      `json:"enrolled"`
	NonResponders []string `json:"non_responders"`
}

// Status summarizes one campaign. A non-positive window falls back to the
// staleness default.
func (s *Service) Status(channelID string, window time.Duration) (CampaignStatus, error) {
	c, err := s.Get(channelID)
	if err != nil {
		return CampaignStatus{}, err
	}
	if window <= 0 {
		window = s.staleAfter()
	}
	return CampaignStatus{
		Campaign:      c,
		Enrolled:      len(c.Enrolled),
		NonResponders: c.NonResponders(s.now(), window),
	}, nil
}

// NonResponders returns the enrolled user IDs whose last response is older
// than the window, sorted.
func (c Campaign) NonResponders(now time.Time, window time.Duration) []string {
	cutoff := now.Add(-window)
	var out []string
	for id, u := range c.Enrolled {
		if u.LastResponse.Before(cutoff) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Run evaluates campaigns immediately, then on every tick until ctx is done.
func (s *Service) Run(ctx context.Context) {
	interval := s.TickInterval
	if interval <= 0 {
		interval = time.Hour
	}
	slog.Info("check-in loop started", slog.Duration("interval", interval))
	s.BroadcastDue(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("check-in loop stopped")
			return
		case <-ticker.C:
			s.BroadcastDue(ctx)
		}
	}
}

// BroadcastDue sends a fresh message for every campaign whose last broadcast
// is at least the broadcast interval old. Per-campaign failures are logged
// and do not stop the pass.
func (s *Service) BroadcastDue(ctx context.Context) {
	telemetry.CountTick("checkin")
	campaigns, err := s.List()
	if err != nil {
		slog.Error("check-in: list campaigns", slog.Any("err", err))
		return
	}
	now := s.now()
	for _, c := range campaigns {
		if now.Sub(c.LastSent) < s.broadcastEvery() {
			continue
		}
		c := c
		if err := s.broadcast(ctx, &c); err != nil {
			slog.Error("check-in broadcast", slog.String("channel", c.ChannelID), slog.Any("err", err))
		}
	}
}

// broadcast sends a new roster message and records it on the campaign. The
// previous message is never edited or deleted; each period gets its own.
func (s *Service) broadcast(ctx context.Context, c *Campaign) error {
	now := s.now()
	ref, err := s.Chat.SendMessage(ctx, c.ChannelID, s.render(*c, now))
	if err != nil {
		return fmt.Errorf("send check-in message: %w", err)
	}
	if telemetry.BroadcastsFired != nil {
		telemetry.BroadcastsFired.Inc()
	}
	c.Message = ref
	c.LastSent = now
	return s.Store.Update(campaignsTable, c.ChannelID, func(old []byte, found bool) ([]byte, error) {
		if !found {
			// Stopped while the send was in flight. Keep it stopped.
			return nil, nil
		}
		cur, _, err := campaignKind.Decode(old)
		if err != nil {
			return nil, err
		}
		cur.Message = ref
		cur.LastSent = now
		*c = cur
		return campaignKind.Encode(cur)
	})
}

// HandleCheckIn processes a press of the check-in button: upsert the presser,
// re-render the bound message, and reply ephemerally.
func (s *Service) HandleCheckIn(ctx context.Context, i chatapi.Interaction) error {
	telemetry.CountInteraction("checkin")
	now := s.now()
	var newlyEnrolled bool
	var updated Campaign
	err := s.Store.Update(campaignsTable, i.ChannelID, func(old []byte, found bool) ([]byte, error) {
		if !found {
			return nil, fmt.Errorf("no check-in campaign in this channel")
		}
		c, _, err := campaignKind.Decode(old)
		if err != nil {
			return nil, err
		}
		if c.Enrolled == nil {
			c.Enrolled = map[string]UserStatus{}
		}
		u, known := c.Enrolled[i.User.ID]
		newlyEnrolled = !known
		if !known {
			u = UserStatus{EnrolledAt: now}
		}
		u.DisplayName = i.User.Name
		u.LastResponse = now
		c.Enrolled[i.User.ID] = u
		updated = c
		return campaignKind.Encode(c)
	})
	if err != nil {
		rerr := s.Chat.Respond(ctx, i, chatapi.Message{Content: err.Error()}, true)
		if rerr != nil {
			slog.Warn("check-in error reply failed", slog.Any("err", rerr))
		}
		return err
	}

	if !updated.Message.Zero() {
		if err := s.Chat.EditMessage(ctx, updated.Message, s.render(updated, now)); err != nil {
			// The roster refresh is cosmetic; the enrollment is already
			// durable. The next broadcast re-renders from the record.
			slog.Warn("check-in roster edit failed", slog.String("channel", i.ChannelID), slog.Any("err", err))
		}
	}

	reply := "Thanks for checking in!"
	if newlyEnrolled {
		reply = "Welcome aboard! You are now enrolled in this channel's check-in."
	}
	return s.Chat.Respond(ctx, i, chatapi.Message{Content: reply}, true)
}

// render builds the roster message for a campaign.
func (s *Service) render(c Campaign, now time.Time) chatapi.Message {
	ids := make([]string, 0, len(c.Enrolled))
	for id := range c.Enrolled {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	enrolled := "No one yet. Press the button below to enroll."
	if len(ids) > 0 {
		var b []byte
		for _, id := range ids {
			u := c.Enrolled[id]
			b = append(b, fmt.Sprintf("%s (last seen %s)\n", u.DisplayName, u.LastResponse.UTC().Format("2006-01-02 15:04"))...)
		}
		enrolled = string(b)
	}

	e := chatapi.Embed{
		Title:       "Are you doing yet?",
		Description: "Daily check-in. Press the button to let everyone know you are alive.",
		Color:       colors.Info,
		Timestamp:   now.UTC().Format(time.RFC3339),
		Fields: []chatapi.EmbedField{
			{Name: fmt.Sprintf("Enrolled (%d)", len(ids)), Value: enrolled},
		},
	}
	if stale := c.NonResponders(now, s.staleAfter()); len(stale) > 0 {
		var b []byte
		for _, id := range stale {
			b = append(b, (c.Enrolled[id].DisplayName + "\n")...)
		}
		e.Fields = append(e.Fields, chatapi.EmbedField{
			Name:  fmt.Sprintf("Not seen in %s (%d)", s.staleAfter(), len(stale)),
			Value: string(b),
		})
		e.Color = colors.Warning
	}

	return chatapi.Message{
		Embeds: []chatapi.Embed{e},
		Components: chatapi.RowsOf([]chatapi.Button{{
			CustomID: CustomID,
			Label:    "I'm alive",
			Style:    chatapi.StyleSuccess,
			Emoji:    "✅",
		}}),
	}
}
