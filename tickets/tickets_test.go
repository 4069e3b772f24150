package tickets

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/onnwee/guildkeeper/chatapi"
	"github.com/onnwee/guildkeeper/store"
)

func newService(t *testing.T) (*Service, *chatapi.Fake) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	chat := chatapi.NewFake()
	return &Service{Store: s, Chat: chat, OwnerID: "owner", BotUserID: "bot"}, chat
}

func saveMenu(t *testing.T, svc *Service) Menu {
	t.Helper()
	m, err := svc.SaveMenu(context.Background(), Menu{ChannelID: "lobby", GuildID: "guild"})
	if err != nil {
		t.Fatalf("save menu: %v", err)
	}
	return m
}

// openTicket walks button press and modal submission, returning the ticket.
func openTicket(t *testing.T, svc *Service, m Menu, userID string) Ticket {
	t.Helper()
	ctx := context.Background()
	if err := svc.HandleCreateButton(ctx, chatapi.Interaction{
		CustomID: PrefixCreate + m.ID,
		User:     chatapi.User{ID: userID, Name: "User"},
	}); err != nil {
		t.Fatalf("create button: %v", err)
	}
	if err := svc.HandleCreateModal(ctx, chatapi.Interaction{
		CustomID: PrefixModal + m.ID,
		User:     chatapi.User{ID: userID, Name: "User"},
		Values:   map[string]string{"ticket_title": "Broken thing", "ticket_description": "It broke"},
	}); err != nil {
		t.Fatalf("create modal: %v", err)
	}
	tickets, err := svc.List()
	if err != nil {
		t.Fatalf("list tickets: %v", err)
	}
	if len(tickets) == 0 {
		t.Fatal("no ticket created")
	}
	return tickets[len(tickets)-1]
}

func TestSaveMenuCreatesAndEditsBoundMessage(t *testing.T) {
	svc, chat := newService(t)
	m := saveMenu(t, svc)
	if m.ID == "" {
		t.Error("menu got no generated ID")
	}
	if m.Message.Zero() {
		t.Fatal("menu message not bound")
	}
	if got := len(chat.Sent["lobby"]); got != 1 {
		t.Fatalf("sent %d menu messages, want 1", got)
	}
	sent := chat.LastSent("lobby")
	if len(sent.Components) != 1 || sent.Components[0].Buttons[0].CustomID != PrefixCreate+m.ID {
		t.Errorf("menu button = %+v", sent.Components)
	}

	// Updating the config edits the same message.
	m.Embed.Title = "New title"
	updated, err := svc.SaveMenu(context.Background(), m)
	if err != nil {
		t.Fatalf("update menu: %v", err)
	}
	if updated.Message != m.Message {
		t.Error("update rebound the menu to a new message")
	}
	if got := len(chat.Edits[m.Message]); got != 1 {
		t.Errorf("update produced %d edits, want 1", got)
	}
	if got := len(chat.Sent["lobby"]); got != 1 {
		t.Errorf("update sent a new message: %d total", got)
	}
}

func TestSaveMenuResendsWhenBoundMessageGone(t *testing.T) {
	svc, chat := newService(t)
	m := saveMenu(t, svc)
	chat.Missing[m.Message] = true

	updated, err := svc.SaveMenu(context.Background(), m)
	if err != nil {
		t.Fatalf("update menu: %v", err)
	}
	if updated.Message == m.Message {
		t.Error("menu still bound to the missing message")
	}
	if got := len(chat.Sent["lobby"]); got != 2 {
		t.Errorf("sent %d messages, want 2", got)
	}
}

func TestCreateButtonOpensModal(t *testing.T) {
	svc, chat := newService(t)
	m := saveMenu(t, svc)
	if err := svc.HandleCreateButton(context.Background(), chatapi.Interaction{
		CustomID: PrefixCreate + m.ID,
		User:     chatapi.User{ID: "u1"},
	}); err != nil {
		t.Fatalf("create button: %v", err)
	}
	if len(chat.Modals) != 1 {
		t.Fatalf("got %d modals, want 1", len(chat.Modals))
	}
	modal := chat.Modals[0]
	if modal.CustomID != PrefixModal+m.ID {
		t.Errorf("modal custom ID = %q", modal.CustomID)
	}
	if len(modal.Inputs) != 2 {
		t.Fatalf("modal has %d inputs, want 2", len(modal.Inputs))
	}
	if modal.Inputs[0].Style != chatapi.InputShort || modal.Inputs[1].Style != chatapi.InputParagraph {
		t.Error("modal input styles wrong")
	}
}

func TestModalSpawnsPrivateChannel(t *testing.T) {
	svc, chat := newService(t)
	m := saveMenu(t, svc)
	tk := openTicket(t, svc, m, "creator")

	if tk.CreatorID != "creator" || tk.GuildID != "guild" || tk.Closed {
		t.Errorf("ticket = %+v", tk)
	}
	if tk.Number != 1 {
		t.Errorf("first ticket number = %d, want 1", tk.Number)
	}
	if chat.Deferred != 1 {
		t.Errorf("modal handler deferred %d times, want 1", chat.Deferred)
	}

	if len(chat.Channels) != 1 {
		t.Fatalf("created %d channels, want 1", len(chat.Channels))
	}
	ch := chat.Channels[0]
	if ch.Name != "ticket-0001" {
		t.Errorf("channel name = %q", ch.Name)
	}
	byID := map[string]chatapi.PermissionOverwrite{}
	for _, ow := range ch.Overwrites {
		byID[ow.ID] = ow
	}
	if ow := byID["guild"]; ow.Deny&chatapi.PermViewChannel == 0 {
		t.Error("everyone overwrite does not deny view")
	}
	if ow := byID["creator"]; ow.Allow&chatapi.PermSendMessages == 0 {
		t.Error("creator overwrite does not allow sending")
	}
	if _, ok := byID["owner"]; !ok {
		t.Error("owner has no overwrite")
	}
	if _, ok := byID["bot"]; !ok {
		t.Error("bot has no overwrite")
	}

	// Intro message posted in the new channel, reply links to it.
	intro := chat.LastSent(tk.ChannelID)
	if intro == nil || len(intro.Embeds) == 0 || !strings.Contains(intro.Embeds[0].Title, "Broken thing") {
		t.Errorf("intro message = %+v", intro)
	}
	if len(chat.ResponseEdits) != 1 || !strings.Contains(chat.ResponseEdits[0].Content, tk.ChannelID) {
		t.Errorf("response edit = %+v", chat.ResponseEdits)
	}
}

func TestTicketNumbersAreSequential(t *testing.T) {
	svc, _ := newService(t)
	m := saveMenu(t, svc)
	first := openTicket(t, svc, m, "u1")
	second := openTicket(t, svc, m, "u2")
	if first.Number != 1 || second.Number != 2 {
		t.Errorf("numbers = %d, %d; want 1, 2", first.Number, second.Number)
	}
}

func TestCreatorClosesImmediately(t *testing.T) {
	svc, chat := newService(t)
	m := saveMenu(t, svc)
	tk := openTicket(t, svc, m, "creator")

	msg, err := svc.Close(context.Background(), tk.ChannelID, "creator")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if msg != "Ticket closed." {
		t.Errorf("close reply = %q", msg)
	}
	got, err := svc.Get(tk.ChannelID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Closed {
		t.Error("ticket not marked closed")
	}

	// Creator lost send rights.
	var locked bool
	for _, ow := range chat.Overwrites[tk.ChannelID] {
		if ow.ID == "creator" && ow.Deny&chatapi.PermSendMessages != 0 {
			locked = true
		}
	}
	if !locked {
		t.Error("creator send right not revoked")
	}

	// Delete control posted.
	notice := chat.LastSent(tk.ChannelID)
	if notice == nil || len(notice.Components) == 0 ||
		notice.Components[0].Buttons[0].CustomID != PrefixDelete+tk.ChannelID {
		t.Errorf("close notice = %+v", notice)
	}
}

func TestOwnerCloseRequiresConfirmation(t *testing.T) {
	svc, chat := newService(t)
	m := saveMenu(t, svc)
	tk := openTicket(t, svc, m, "creator")
	ctx := context.Background()

	if _, err := svc.Close(ctx, tk.ChannelID, "owner"); err != nil {
		t.Fatalf("owner close: %v", err)
	}
	got, _ := svc.Get(tk.ChannelID)
	if got.Closed {
		t.Fatal("owner close locked the channel before confirmation")
	}
	prompt := chat.LastSent(tk.ChannelID)
	if prompt == nil || len(prompt.Components) == 0 {
		t.Fatal("no confirm prompt posted")
	}
	buttons := prompt.Components[0].Buttons
	if buttons[0].CustomID != PrefixCloseConfirm+tk.ChannelID || buttons[1].CustomID != PrefixCloseCancel+tk.ChannelID {
		t.Errorf("prompt buttons = %+v", buttons)
	}

	// Confirm by a non-owner is rejected.
	if err := svc.HandleCloseConfirm(ctx, chatapi.Interaction{
		CustomID: PrefixCloseConfirm + tk.ChannelID,
		User:     chatapi.User{ID: "stranger"},
	}); err != nil {
		t.Fatal(err)
	}
	got, _ = svc.Get(tk.ChannelID)
	if got.Closed {
		t.Fatal("non-owner confirmation closed the ticket")
	}

	// Owner confirmation closes.
	if err := svc.HandleCloseConfirm(ctx, chatapi.Interaction{
		CustomID: PrefixCloseConfirm + tk.ChannelID,
		User:     chatapi.User{ID: "owner"},
	}); err != nil {
		t.Fatal(err)
	}
	got, _ = svc.Get(tk.ChannelID)
	if !got.Closed {
		t.Error("owner confirmation did not close the ticket")
	}
}

func TestForceCloseOwnerOnly(t *testing.T) {
	svc, _ := newService(t)
	m := saveMenu(t, svc)
	tk := openTicket(t, svc, m, "creator")
	ctx := context.Background()

	if err := svc.ForceClose(ctx, tk.ChannelID, "creator"); err == nil {
		t.Fatal("non-owner force-close succeeded")
	}
	got, _ := svc.Get(tk.ChannelID)
	if got.Closed {
		t.Fatal("rejected force-close still mutated state")
	}

	if err := svc.ForceClose(ctx, tk.ChannelID, "owner"); err != nil {
		t.Fatalf("owner force-close: %v", err)
	}
	got, _ = svc.Get(tk.ChannelID)
	if !got.Closed {
		t.Error("force-close did not close the ticket")
	}
}

func TestStrangerCannotClose(t *testing.T) {
	svc, _ := newService(t)
	m := saveMenu(t, svc)
	tk := openTicket(t, svc, m, "creator")
	if _, err := svc.Close(context.Background(), tk.ChannelID, "stranger"); err == nil {
		t.Fatal("stranger close succeeded")
	}
}

func TestDeleteRequiresClosedAndOwner(t *testing.T) {
	svc, chat := newService(t)
	m := saveMenu(t, svc)
	tk := openTicket(t, svc, m, "creator")
	ctx := context.Background()

	// Open ticket: delete refused.
	if err := svc.HandleDelete(ctx, chatapi.Interaction{
		CustomID: PrefixDelete + tk.ChannelID,
		User:     chatapi.User{ID: "owner"},
	}); err != nil {
		t.Fatal(err)
	}
	if len(chat.DeletedChannels) != 0 {
		t.Fatal("open ticket channel was deleted")
	}

	if _, err := svc.Close(ctx, tk.ChannelID, "creator"); err != nil {
		t.Fatal(err)
	}

	// Non-owner: refused.
	if err := svc.HandleDelete(ctx, chatapi.Interaction{
		CustomID: PrefixDelete + tk.ChannelID,
		User:     chatapi.User{ID: "creator"},
	}); err != nil {
		t.Fatal(err)
	}
	if len(chat.DeletedChannels) != 0 {
		t.Fatal("non-owner delete removed the channel")
	}

	// Owner on a closed ticket: channel and record removed.
	if err := svc.HandleDelete(ctx, chatapi.Interaction{
		CustomID: PrefixDelete + tk.ChannelID,
		User:     chatapi.User{ID: "owner"},
	}); err != nil {
		t.Fatal(err)
	}
	if len(chat.DeletedChannels) != 1 || chat.DeletedChannels[0] != tk.ChannelID {
		t.Errorf("deleted channels = %v", chat.DeletedChannels)
	}
	if _, err := svc.Get(tk.ChannelID); err != store.ErrNotFound {
		t.Errorf("ticket record after delete: %v", err)
	}
}

func TestDeleteMenuRemovesBoundMessage(t *testing.T) {
	svc, chat := newService(t)
	m := saveMenu(t, svc)
	if err := svc.DeleteMenu(context.Background(), m.ID); err != nil {
		t.Fatalf("delete menu: %v", err)
	}
	if len(chat.Deleted) != 1 || chat.Deleted[0] != m.Message {
		t.Errorf("deleted messages = %v", chat.Deleted)
	}
	if _, err := svc.GetMenu(m.ID); err != store.ErrNotFound {
		t.Errorf("menu after delete: %v", err)
	}
}

func TestSaveMenuConcurrentSavesBindOneMessage(t *testing.T) {
	svc, chat := newService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.SaveMenu(ctx, Menu{ID: "menu-1", ChannelID: "lobby", GuildID: "guild"}); err != nil {
				t.Errorf("save menu: %v", err)
			}
		}()
	}
	wg.Wait()

	// One save creates the message, the other must see the binding and
	// edit it in place.
	if got := len(chat.Sent["lobby"]); got != 1 {
		t.Errorf("concurrent saves sent %d messages, want 1", got)
	}
	m, err := svc.GetMenu("menu-1")
	if err != nil {
		t.Fatalf("get menu: %v", err)
	}
	if m.Message.Zero() {
		t.Error("saved menu has no message binding")
	}
}
