package checkin

import (
	"context"
	"testing"
	"time"

	"github.com/onnwee/guildkeeper/chatapi"
	"github.com/onnwee/guildkeeper/store"
)

func newService(t *testing.T) (*Service, *chatapi.Fake, *time.Time) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	chat := chatapi.NewFake()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := &Service{Store: s, Chat: chat, Now: func() time.Time { return now }}
	return svc, chat, &now
}

func press(channelID, userID, name string) chatapi.Interaction {
	return chatapi.Interaction{
		ChannelID: channelID,
		User:      chatapi.User{ID: userID, Name: name},
		CustomID:  CustomID,
	}
}

func TestStartBroadcastsImmediatelyAndRejectsDuplicate(t *testing.T) {
	svc, chat, _ := newService(t)
	ctx := context.Background()

	c, err := svc.Start(ctx, "chan", "guild")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if c.Message.Zero() {
		t.Error("start did not record a message reference")
	}
	if got := len(chat.Sent["chan"]); got != 1 {
		t.Errorf("start sent %d messages, want 1", got)
	}

	if _, err := svc.Start(ctx, "chan", "guild"); err == nil {
		t.Fatal("expected duplicate start to fail")
	}
}

func TestBroadcastFiresOnlyAfter24h(t *testing.T) {
	svc, chat, now := newService(t)
	ctx := context.Background()
	if _, err := svc.Start(ctx, "chan", ""); err != nil {
		t.Fatal(err)
	}

	// 23h later: nothing.
	*now = now.Add(23 * time.Hour)
	svc.BroadcastDue(ctx)
	if got := len(chat.Sent["chan"]); got != 1 {
		t.Fatalf("broadcast fired before 24h: %d messages", got)
	}

	// 24h after the first send: fires exactly once.
	*now = now.Add(time.Hour)
	svc.BroadcastDue(ctx)
	svc.BroadcastDue(ctx) // immediate second pass must not re-fire
	if got := len(chat.Sent["chan"]); got != 2 {
		t.Fatalf("after 24h: %d messages, want 2", got)
	}

	c, err := svc.Get("chan")
	if err != nil {
		t.Fatal(err)
	}
	if !c.LastSent.Equal(*now) {
		t.Errorf("LastSent = %v, want %v", c.LastSent, *now)
	}
}

func TestBroadcastNeverEditsPreviousMessage(t *testing.T) {
	svc, chat, now := newService(t)
	ctx := context.Background()
	if _, err := svc.Start(ctx, "chan", ""); err != nil {
		t.Fatal(err)
	}
	first, _ := svc.Get("chan")

	*now = now.Add(25 * time.Hour)
	svc.BroadcastDue(ctx)
	if len(chat.Edits[first.Message]) != 0 {
		t.Error("broadcast edited the previous roster message")
	}
	second, _ := svc.Get("chan")
	if second.Message == first.Message {
		t.Error("message reference not replaced by broadcast")
	}
}

func TestHandleCheckInEnrollsAndRefreshes(t *testing.T) {
	svc, chat, now := newService(t)
	ctx := context.Background()
	if _, err := svc.Start(ctx, "chan", ""); err != nil {
		t.Fatal(err)
	}

	enrollTime := *now
	if err := svc.HandleCheckIn(ctx, press("chan", "u1", "Alice")); err != nil {
		t.Fatalf("check-in: %v", err)
	}
	resp := chat.LastResponse()
	if resp == nil || !resp.Ephemeral {
		t.Fatal("check-in reply missing or not ephemeral")
	}
	if resp.Msg.Content == "" || resp.Msg.Content == "Thanks for checking in!" {
		t.Errorf("first press should get the welcome reply, got %q", resp.Msg.Content)
	}

	c, _ := svc.Get("chan")
	u := c.Enrolled["u1"]
	if !u.EnrolledAt.Equal(enrollTime) || !u.LastResponse.Equal(enrollTime) {
		t.Errorf("enrollment stamps = %v/%v, want both %v", u.EnrolledAt, u.LastResponse, enrollTime)
	}

	// Second press later: refreshes LastResponse, keeps EnrolledAt.
	*now = now.Add(3 * time.Hour)
	if err := svc.HandleCheckIn(ctx, press("chan", "u1", "Alice A")); err != nil {
		t.Fatalf("second check-in: %v", err)
	}
	if got := chat.LastResponse().Msg.Content; got != "Thanks for checking in!" {
		t.Errorf("repeat press reply = %q", got)
	}
	c, _ = svc.Get("chan")
	u = c.Enrolled["u1"]
	if !u.EnrolledAt.Equal(enrollTime) {
		t.Errorf("EnrolledAt changed on repeat press: %v", u.EnrolledAt)
	}
	if !u.LastResponse.Equal(*now) {
		t.Errorf("LastResponse = %v, want %v", u.LastResponse, *now)
	}
	if u.DisplayName != "Alice A" {
		t.Errorf("display name not refreshed: %q", u.DisplayName)
	}

	// The bound roster message was re-rendered.
	if len(chat.Edits[c.Message]) == 0 {
		t.Error("check-in did not re-render the roster message")
	}
}

func TestHandleCheckInWithoutCampaign(t *testing.T) {
	svc, chat, _ := newService(t)
	if err := svc.HandleCheckIn(context.Background(), press("nowhere", "u1", "Alice")); err == nil {
		t.Fatal("expected error for unknown campaign")
	}
	resp := chat.LastResponse()
	if resp == nil || !resp.Ephemeral {
		t.Error("error reply missing or not ephemeral")
	}
}

func TestNonResponders(t *testing.T) {
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	c := Campaign{Enrolled: map[string]UserStatus{
		"fresh": {LastResponse: now.Add(-time.Hour)},
		"stale": {LastResponse: now.Add(-49 * time.Hour)},
		"edge":  {LastResponse: now.Add(-48 * time.Hour)},
	}}
	got := c.NonResponders(now, 48*time.Hour)
	if len(got) != 1 || got[0] != "stale" {
		t.Errorf("NonResponders = %v, want [stale]", got)
	}
}

func TestFreshEnrolleeIsNeverNonResponder(t *testing.T) {
	svc, _, now := newService(t)
	ctx := context.Background()
	if _, err := svc.Start(ctx, "chan", ""); err != nil {
		t.Fatal(err)
	}
	if err := svc.HandleCheckIn(ctx, press("chan", "u1", "Alice")); err != nil {
		t.Fatal(err)
	}
	c, _ := svc.Get("chan")
	if got := c.NonResponders(*now, time.Hour); len(got) != 0 {
		t.Errorf("fresh enrollee listed as non-responder: %v", got)
	}
}

func TestStopRemovesCampaign(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.Start(ctx, "chan", ""); err != nil {
		t.Fatal(err)
	}
	if err := svc.Stop(ctx, "chan"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := svc.Get("chan"); err != store.ErrNotFound {
		t.Errorf("get after stop: %v", err)
	}
	if err := svc.Stop(ctx, "chan"); err == nil {
		t.Error("expected second stop to fail")
	}
}

func TestStatusSummarizesRoster(t *testing.T) {
	svc, _, now := newService(t)
	ctx := context.Background()
	if _, err := svc.Start(ctx, "chan", ""); err != nil {
		t.Fatal(err)
	}
	if err := svc.HandleCheckIn(ctx, press("chan", "u1", "Alice")); err != nil {
		t.Fatal(err)
	}
	if err := svc.HandleCheckIn(ctx, press("chan", "u2", "Bob")); err != nil {
		t.Fatal(err)
	}

	// u1 goes quiet; u2 checks in again past the staleness window.
	*now = now.Add(49 * time.Hour)
	if err := svc.HandleCheckIn(ctx, press("chan", "u2", "Bob")); err != nil {
		t.Fatal(err)
	}

	st, err := svc.Status("chan", 0)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Enrolled != 2 {
		t.Errorf("enrolled = %d, want 2", st.Enrolled)
	}
	if len(st.NonResponders) != 1 || st.NonResponders[0] != "u1" {
		t.Errorf("non-responders = %v", st.NonResponders)
	}

	// A wider explicit window overrides the default and clears the list.
	st, err = svc.Status("chan", 100*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.NonResponders) != 0 {
		t.Errorf("wide window non-responders = %v", st.NonResponders)
	}

	if _, err := svc.Status("missing", 0); err != store.ErrNotFound {
		t.Errorf("status of missing campaign: %v", err)
	}
}
