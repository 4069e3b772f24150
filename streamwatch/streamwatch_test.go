package streamwatch

import (
	"context"
	"errors"
	"testing"

	"github.com/onnwee/guildkeeper/chatapi"
	"github.com/onnwee/guildkeeper/kickapi"
	"github.com/onnwee/guildkeeper/store"
)

// fakeProber serves canned statuses per channel slug.
type fakeProber struct {
	statuses map[string]kickapi.Status
	errs     map[string]error
	probes   int
}

func (p *fakeProber) ChannelStatus(_ context.Context, slug string) (kickapi.Status, error) {
	p.probes++
	if err := p.errs[slug]; err != nil {
		return kickapi.Status{}, err
	}
	return p.statuses[slug], nil
}

func newWatcher(t *testing.T) (*Watcher, *chatapi.Fake, *fakeProber) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	chat := chatapi.NewFake()
	probe := &fakeProber{statuses: map[string]kickapi.Status{}, errs: map[string]error{}}
	return &Watcher{Store: s, Chat: chat, Probe: probe, ProbeLimit: 1}, chat, probe
}

func live(token string, viewers int) kickapi.Status {
	return kickapi.Status{Live: true, SessionStart: token, ViewerCount: viewers, Title: "hello"}
}

func session(t *testing.T, w *Watcher, key string) (LiveSession, bool) {
	t.Helper()
	raw, err := w.Store.Get(store.Table("live_sessions"), key)
	if err != nil {
		if err == store.ErrNotFound {
			return LiveSession{}, false
		}
		t.Fatalf("get session: %v", err)
	}
	sess, _, err := sessionKind.Decode(raw)
	if err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return sess, true
}

func TestParseChannel(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "Foo", want: "foo"},
		{in: "https://kick.com/foo", want: "foo"},
		{in: "http://www.kick.com/Foo/", want: "foo"},
		{in: "kick.com/foo", want: "foo"},
		{in: "", wantErr: true},
		{in: "kick.com/foo/bar", wantErr: true},
	}
	for _, c := range cases {
		platform, channel, err := ParseChannel(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseChannel(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseChannel(%q): %v", c.in, err)
			continue
		}
		if platform != PlatformKick || channel != c.want {
			t.Errorf("ParseChannel(%q) = %s, %s; want kick, %s", c.in, platform, channel, c.want)
		}
	}
}

func TestFollowRejectsDuplicate(t *testing.T) {
	w, _, _ := newWatcher(t)
	if _, err := w.Follow(context.Background(), "foo", "chan", "user"); err != nil {
		t.Fatalf("follow: %v", err)
	}
	if _, err := w.Follow(context.Background(), "https://kick.com/foo", "chan", "user"); err == nil {
		t.Fatal("expected duplicate follow to fail")
	}
}

func TestUnfollowMissing(t *testing.T) {
	w, _, _ := newWatcher(t)
	if err := w.Unfollow(context.Background(), "ghost"); err == nil {
		t.Fatal("expected unfollow of unknown channel to fail")
	}
}

// The full lifecycle: create on first live tick, edit on the same token,
// new message on a token change, record dropped on offline.
func TestReconcileLifecycle(t *testing.T) {
	w, chat, probe := newWatcher(t)
	ctx := context.Background()
	if _, err := w.Follow(ctx, "foo", "notify", "user"); err != nil {
		t.Fatalf("follow: %v", err)
	}

	// Tick 1: live with token abc, creates M1.
	probe.statuses["foo"] = live("abc", 10)
	w.ReconcileOnce(ctx)
	if got := len(chat.Sent["notify"]); got != 1 {
		t.Fatalf("after tick 1: %d messages sent, want 1", got)
	}
	sess, ok := session(t, w, "kick:foo")
	if !ok {
		t.Fatal("after tick 1: no session record")
	}
	if sess.SessionStart != "abc" {
		t.Errorf("stored token = %q, want abc", sess.SessionStart)
	}
	m1 := sess.Message

	// Tick 2: same token, viewer count changed: edits M1, sends nothing new.
	probe.statuses["foo"] = live("abc", 25)
	w.ReconcileOnce(ctx)
	if got := len(chat.Sent["notify"]); got != 1 {
		t.Fatalf("after tick 2: %d messages sent, want still 1", got)
	}
	if got := len(chat.Edits[m1]); got != 1 {
		t.Fatalf("after tick 2: %d edits of M1, want 1", got)
	}
	sess, _ = session(t, w, "kick:foo")
	if sess.Message != m1 {
		t.Error("message ref changed on same-token tick")
	}

	// Tick 3: new token: new message M2, token overwritten, M1 never edited again.
	probe.statuses["foo"] = live("xyz", 5)
	w.ReconcileOnce(ctx)
	if got := len(chat.Sent["notify"]); got != 2 {
		t.Fatalf("after tick 3: %d messages sent, want 2", got)
	}
	sess, _ = session(t, w, "kick:foo")
	if sess.SessionStart != "xyz" {
		t.Errorf("stored token = %q, want xyz", sess.SessionStart)
	}
	if sess.Message == m1 {
		t.Error("session record still points at the old message")
	}
	if got := len(chat.Edits[m1]); got != 1 {
		t.Errorf("M1 edited after token change: %d edits", got)
	}

	// Tick 4: offline: record deleted, no message touched.
	probe.statuses["foo"] = kickapi.Status{Live: false}
	w.ReconcileOnce(ctx)
	if _, ok := session(t, w, "kick:foo"); ok {
		t.Fatal("session record survived offline tick")
	}
	if len(chat.Deleted) != 0 {
		t.Error("offline tick deleted a chat message")
	}

	// Tick 5: live again: fresh message, not an edit of the deleted record.
	probe.statuses["foo"] = live("new", 1)
	w.ReconcileOnce(ctx)
	if got := len(chat.Sent["notify"]); got != 3 {
		t.Fatalf("after tick 5: %d messages sent, want 3", got)
	}
}

func TestProbeFailureLeavesStateUntouched(t *testing.T) {
	w, chat, probe := newWatcher(t)
	ctx := context.Background()
	if _, err := w.Follow(ctx, "foo", "notify", "user"); err != nil {
		t.Fatal(err)
	}
	probe.statuses["foo"] = live("abc", 10)
	w.ReconcileOnce(ctx)
	if _, ok := session(t, w, "kick:foo"); !ok {
		t.Fatal("no session record after live tick")
	}

	probe.errs["foo"] = errors.New("upstream timeout")
	w.ReconcileOnce(ctx)
	sess, ok := session(t, w, "kick:foo")
	if !ok {
		t.Fatal("probe failure dropped the session record")
	}
	if sess.SessionStart != "abc" {
		t.Errorf("token changed across failed probe: %q", sess.SessionStart)
	}
	if got := len(chat.Sent["notify"]); got != 1 {
		t.Errorf("failed probe sent a message: %d total", got)
	}
}

func TestEditFailureDropsRecordAndResendsNextTick(t *testing.T) {
	w, chat, probe := newWatcher(t)
	ctx := context.Background()
	if _, err := w.Follow(ctx, "foo", "notify", "user"); err != nil {
		t.Fatal(err)
	}
	probe.statuses["foo"] = live("abc", 10)
	w.ReconcileOnce(ctx)

	// The bound message disappears out-of-band.
	sess, _ := session(t, w, "kick:foo")
	chat.Missing[sess.Message] = true

	// Same session, edit fails: record dropped, no same-tick resend.
	probe.statuses["foo"] = live("abc", 11)
	w.ReconcileOnce(ctx)
	if _, ok := session(t, w, "kick:foo"); ok {
		t.Fatal("session record survived failed edit")
	}
	if got := len(chat.Sent["notify"]); got != 1 {
		t.Fatalf("failed edit resent within the same tick: %d messages", got)
	}

	// Next tick sends fresh.
	w.ReconcileOnce(ctx)
	if got := len(chat.Sent["notify"]); got != 2 {
		t.Fatalf("after recovery tick: %d messages, want 2", got)
	}
	sess, ok := session(t, w, "kick:foo")
	if !ok || sess.SessionStart != "abc" {
		t.Errorf("recovered session = %+v, ok=%v", sess, ok)
	}
}

func TestUnfollowDropsSession(t *testing.T) {
	w, _, probe := newWatcher(t)
	ctx := context.Background()
	if _, err := w.Follow(ctx, "foo", "notify", "user"); err != nil {
		t.Fatal(err)
	}
	probe.statuses["foo"] = live("abc", 1)
	w.ReconcileOnce(ctx)
	if err := w.Unfollow(ctx, "foo"); err != nil {
		t.Fatalf("unfollow: %v", err)
	}
	if _, ok := session(t, w, "kick:foo"); ok {
		t.Error("session record survived unfollow")
	}
	follows, err := w.Following()
	if err != nil {
		t.Fatal(err)
	}
	if len(follows) != 0 {
		t.Errorf("follows after unfollow = %v", follows)
	}
}

func TestStatusListsLiveSessions(t *testing.T) {
	w, _, probe := newWatcher(t)
	ctx := context.Background()
	if _, err := w.Follow(ctx, "foo", "notify", "user"); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Follow(ctx, "bar", "notify", "user"); err != nil {
		t.Fatal(err)
	}
	probe.statuses["foo"] = live("abc", 1)
	probe.statuses["bar"] = kickapi.Status{Live: false}
	w.ReconcileOnce(ctx)

	statuses, err := w.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}
	// Sorted by key: kick:bar before kick:foo.
	if statuses[0].Follow.Channel != "bar" || statuses[0].Live != nil {
		t.Errorf("bar status = %+v", statuses[0])
	}
	if statuses[1].Follow.Channel != "foo" || statuses[1].Live == nil {
		t.Errorf("foo status = %+v", statuses[1])
	}
}
