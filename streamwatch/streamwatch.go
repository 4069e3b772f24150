// Package streamwatch tracks followed broadcast channels and keeps one chat
// message per live session. A periodic reconcile tick probes every followed
// channel and creates, edits, or retires the bound message; the persisted
// session record is authoritative and the message is a disposable projection
// of it.
package streamwatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/guildkeeper/chatapi"
	"github.com/onnwee/guildkeeper/codec"
	"github.com/onnwee/guildkeeper/colors"
	"github.com/onnwee/guildkeeper/kickapi"
	"github.com/onnwee/guildkeeper/store"
	"github.com/onnwee/guildkeeper/telemetry"
)

// Platform names the upstream broadcast platform of a follow.
type Platform string

const PlatformKick Platform = "kick"

// Follow is one followed channel.
type Follow struct {
	Platform        Platform `json:"platform"`
	Channel         string   `json:"channel"`
	NotifyChannelID string   `json:"notify_channel_id"`
	FollowerID      string   `json:"follower_id"`
}

// Key is the stable record key, shared with the live session record.
func (f Follow) Key() string { return string(f.Platform) + ":" + f.Channel }

// LiveSession binds the chat message currently representing a live session.
// SessionStart is the upstream session token; exact string inequality means
// a new session.
type LiveSession struct {
	Message      chatapi.MessageRef `json:"message"`
	SessionStart string             `json:"session_start"`
}

const (
	followsTable  store.Table = "follows"
	sessionsTable store.Table = "live_sessions"
)

var (
	followKind  = codec.Kind[Follow]{Version: 1}
	sessionKind = codec.Kind[LiveSession]{Version: 1}
)

// Prober fetches the current truth for one channel.
type Prober interface {
	ChannelStatus(ctx context.Context, slug string) (kickapi.Status, error)
}

// Watcher owns the follow records and the reconcile loop.
type Watcher struct {
	Store    *store.Store
	Chat     chatapi.Client
	Probe    Prober
	Interval time.Duration
	// ProbeLimit bounds concurrent probes within one tick. Zero means 4.
	ProbeLimit int
}

// ParseChannel accepts a bare slug or a kick.com channel URL and returns the
// platform and normalized channel slug.
func ParseChannel(input string) (Platform, string, error) {
	s := strings.TrimSpace(input)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	if rest, ok := strings.CutPrefix(s, "kick.com/"); ok {
		s = rest
	}
	s = strings.Trim(s, "/")
	if s == "" || strings.ContainsAny(s, "/ ") {
		return "", "", fmt.Errorf("invalid channel %q", input)
	}
	return PlatformKick, strings.ToLower(s), nil
}

// Follow starts tracking a channel. It fails if the channel is already
// followed.
func (w *Watcher) Follow(ctx context.Context, input, notifyChannelID, followerID string) (Follow, error) {
	platform, channel, err := ParseChannel(input)
	if err != nil {
		return Follow{}, err
	}
	f := Follow{
		Platform:        platform,
		Channel:         channel,
		NotifyChannelID: notifyChannelID,
		FollowerID:      followerID,
	}
	err = w.Store.Update(followsTable, f.Key(), func(old []byte, found bool) ([]byte, error) {
		if found {
			return nil, fmt.Errorf("already following %s", f.Key())
		}
		return followKind.Encode(f)
	})
	if err != nil {
		return Follow{}, err
	}
	return f, nil
}

// Unfollow stops tracking a channel and discards its live session record.
// The last chat message, if any, is left in place.
func (w *Watcher) Unfollow(ctx context.Context, input string) error {
	platform, channel, err := ParseChannel(input)
	if err != nil {
		return err
	}
	key := string(platform) + ":" + channel
	if _, err := w.Store.Get(followsTable, key); err != nil {
		if err == store.ErrNotFound {
			return fmt.Errorf("not following %s", key)
		}
		return err
	}
	if err := w.Store.Delete(followsTable, key); err != nil {
		return err
	}
	return w.Store.Delete(sessionsTable, key)
}

// Following returns all follows sorted by key.
func (w *Watcher) Following() ([]Follow, error) {
	entries, err := w.Store.Scan(followsTable)
	if err != nil {
		return nil, err
	}
	out := make([]Follow, 0, len(entries))
	for _, e := range entries {
		f, upgraded, err := followKind.Decode(e.Value)
		if err != nil {
			slog.Warn("skipping corrupt follow record", slog.String("key", e.Key), slog.Any("err", err))
			continue
		}
		if upgraded {
			if enc, eerr := followKind.Encode(f); eerr == nil {
				_ = w.Store.Put(followsTable, e.Key, enc)
			}
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// Preview probes a channel once without following it.
func (w *Watcher) Preview(ctx context.Context, input string) (kickapi.Status, error) {
	_, channel, err := ParseChannel(input)
	if err != nil {
		return kickapi.Status{}, err
	}
	return w.Probe.ChannelStatus(ctx, channel)
}

// StreamStatus pairs a follow with its current live session, if any.
type StreamStatus struct {
	Follow Follow       `json:"follow"`
	Live   *LiveSession `json:"live,omitempty"`
}

// Status returns every follow and whether it currently has a live session.
func (w *Watcher) Status() ([]StreamStatus, error) {
	follows, err := w.Following()
	if err != nil {
		return nil, err
	}
	out := make([]StreamStatus, 0, len(follows))
	for _, f := range follows {
		st := StreamStatus{Follow: f}
		if raw, err := w.Store.Get(sessionsTable, f.Key()); err == nil {
			if sess, _, derr := sessionKind.Decode(raw); derr == nil {
				s := sess
				st.Live = &s
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// Run reconciles immediately, then on every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	slog.Info("stream watcher started", slog.Duration("interval", interval))
	w.ReconcileOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("stream watcher stopped")
			return
		case <-ticker.C:
			w.ReconcileOnce(ctx)
		}
	}
}

// ReconcileOnce runs a single reconcile tick over all follows. Per-entity
// failures are logged and do not stop the tick.
func (w *Watcher) ReconcileOnce(ctx context.Context) {
	telemetry.CountTick("streamwatch")
	telemetry.TimeFunc(telemetry.TickDuration, func() {
		w.reconcile(ctx)
	})
}

func (w *Watcher) reconcile(ctx context.Context) {
	follows, err := w.Following()
	if err != nil {
		slog.Error("reconcile: list follows", slog.Any("err", err))
		return
	}
	if telemetry.FollowedStreamsGauge != nil {
		telemetry.FollowedStreamsGauge.Set(float64(len(follows)))
	}

	limit := w.ProbeLimit
	if limit <= 0 {
		limit = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	live := make(chan int, len(follows))
	for _, f := range follows {
		f := f
		g.Go(func() error {
			if n := w.reconcileOne(gctx, f); n {
				live <- 1
			}
			return nil
		})
	}
	_ = g.Wait()
	close(live)
	n := 0
	for range live {
		n++
	}
	if telemetry.LiveStreamsGauge != nil {
		telemetry.LiveStreamsGauge.Set(float64(n))
	}
}

// reconcileOne applies the per-channel state machine and reports whether the
// channel was observed live.
func (w *Watcher) reconcileOne(ctx context.Context, f Follow) bool {
	key := f.Key()
	log := slog.With(slog.String("channel", key))

	status, err := w.Probe.ChannelStatus(ctx, f.Channel)
	if err != nil {
		// No information this tick. Leave the session record alone and
		// retry next tick.
		if telemetry.ProbesFailed != nil {
			telemetry.ProbesFailed.Inc()
		}
		log.Warn("probe failed", slog.Any("err", err))
		return false
	}

	sess, haveSess := w.loadSession(key)

	if !status.Live {
		if haveSess {
			// Session over. The last message stays as chat history.
			if err := w.Store.Delete(sessionsTable, key); err != nil {
				log.Error("drop session record", slog.Any("err", err))
			} else {
				log.Info("channel went offline")
			}
		}
		return false
	}

	if haveSess && sess.SessionStart == status.SessionStart {
		// Same broadcast session. Refresh the message in place.
		if err := w.Chat.EditMessage(ctx, sess.Message, liveMessage(f, status)); err != nil {
			// Edit target is gone or unreachable. Drop the stale record
			// and let the next tick send a fresh message.
			if telemetry.MessageEditsFailed != nil {
				telemetry.MessageEditsFailed.Inc()
			}
			log.Warn("live message edit failed, dropping session record", slog.Any("err", err))
			if derr := w.Store.Delete(sessionsTable, key); derr != nil {
				log.Error("drop session record", slog.Any("err", derr))
			}
			return true
		}
		if telemetry.MessagesEdited != nil {
			telemetry.MessagesEdited.Inc()
		}
		return true
	}

	// Either no session record or the token changed: new session, new message.
	ref, err := w.Chat.SendMessage(ctx, f.NotifyChannelID, liveMessage(f, status))
	if err != nil {
		log.Error("send live message", slog.Any("err", err))
		return true
	}
	if telemetry.MessagesSent != nil {
		telemetry.MessagesSent.Inc()
	}
	enc, err := sessionKind.Encode(LiveSession{Message: ref, SessionStart: status.SessionStart})
	if err != nil {
		log.Error("encode session record", slog.Any("err", err))
		return true
	}
	if err := w.Store.Put(sessionsTable, key, enc); err != nil {
		log.Error("store session record", slog.Any("err", err))
	}
	log.Info("live session started", slog.String("message_id", ref.MessageID))
	return true
}

func (w *Watcher) loadSession(key string) (LiveSession, bool) {
	raw, err := w.Store.Get(sessionsTable, key)
	if err != nil {
		if err != store.ErrNotFound {
			slog.Error("load session record", slog.String("key", key), slog.Any("err", err))
		}
		return LiveSession{}, false
	}
	sess, upgraded, err := sessionKind.Decode(raw)
	if err != nil {
		slog.Warn("corrupt session record", slog.String("key", key), slog.Any("err", err))
		return LiveSession{}, false
	}
	if upgraded {
		if enc, eerr := sessionKind.Encode(sess); eerr == nil {
			_ = w.Store.Put(sessionsTable, key, enc)
		}
	}
	return sess, true
}

func liveMessage(f Follow, s kickapi.Status) chatapi.Message {
	url := "https://kick.com/" + f.Channel
	e := chatapi.Embed{
		Title:     fmt.Sprintf("%s is live!", f.Channel),
		URL:       url,
		Color:     colors.Live,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Fields: []chatapi.EmbedField{
			{Name: "Viewers", Value: fmt.Sprintf("%d", s.ViewerCount), Inline: true},
		},
	}
	if s.Title != "" {
		e.Description = s.Title
	}
	if s.Category != "" {
		e.Fields = append(e.Fields, chatapi.EmbedField{Name: "Category", Value: s.Category, Inline: true})
	}
	if s.Thumbnail != "" {
		e.Image = &chatapi.EmbedMedia{URL: s.Thumbnail}
	}
	return chatapi.Message{Embeds: []chatapi.Embed{e}}
}
