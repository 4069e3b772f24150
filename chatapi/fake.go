package chatapi

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Client for tests. It records every sent and edited
// message and can be told to fail specific operations.
type Fake struct {
	mu sync.Mutex

	nextID          int
	Sent            map[string][]Message             // channelID -> messages, in send order
	Edits           map[MessageRef][]Message
	Deleted         []MessageRef
	Missing         map[MessageRef]bool              // MessageExists returns false for these
	Channels        []ChannelCreate
	DeletedChannels []string
	Overwrites      map[string][]PermissionOverwrite // channelID -> overwrites
	RolesGranted    []string                         // "guild/user/role"

	Responses     []FakeResponse
	Modals        []Modal
	Deferred      int
	ResponseEdits []Message

	FailSend error
	FailEdit error
	FailRole error
}

// FakeResponse is one recorded interaction reply.
type FakeResponse struct {
	Msg       Message
	Ephemeral bool
}

var _ Client = (*Fake)(nil)

// NewFake returns an empty fake.
func NewFake() *Fake {
	return &Fake{
		Sent:       map[string][]Message{},
		Edits:      map[MessageRef][]Message{},
		Missing:    map[MessageRef]bool{},
		Overwrites: map[string][]PermissionOverwrite{},
	}
}

func (f *Fake) SendMessage(_ context.Context, channelID string, msg Message) (MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSend != nil {
		return MessageRef{}, f.FailSend
	}
	f.nextID++
	ref := MessageRef{ChannelID: channelID, MessageID: fmt.Sprintf("m%d", f.nextID)}
	f.Sent[channelID] = append(f.Sent[channelID], msg)
	return ref, nil
}

func (f *Fake) EditMessage(_ context.Context, ref MessageRef, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailEdit != nil {
		return f.FailEdit
	}
	if f.Missing[ref] {
		return &APIError{Status: 404, Body: "unknown message"}
	}
	f.Edits[ref] = append(f.Edits[ref], msg)
	return nil
}

func (f *Fake) DeleteMessage(_ context.Context, ref MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, ref)
	return nil
}

func (f *Fake) MessageExists(_ context.Context, ref MessageRef) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Missing[ref], nil
}

func (f *Fake) CreateChannel(_ context.Context, guildID string, ch ChannelCreate) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.Channels = append(f.Channels, ch)
	return fmt.Sprintf("c%d", f.nextID), nil
}

func (f *Fake) DeleteChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeletedChannels = append(f.DeletedChannels, channelID)
	return nil
}

func (f *Fake) SetChannelPermission(_ context.Context, channelID string, ow PermissionOverwrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Overwrites[channelID] = append(f.Overwrites[channelID], ow)
	return nil
}

func (f *Fake) AddMemberRole(_ context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailRole != nil {
		return f.FailRole
	}
	f.RolesGranted = append(f.RolesGranted, guildID+"/"+userID+"/"+roleID)
	return nil
}

func (f *Fake) Respond(_ context.Context, _ Interaction, msg Message, ephemeral bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses = append(f.Responses, FakeResponse{Msg: msg, Ephemeral: ephemeral})
	return nil
}

func (f *Fake) RespondModal(_ context.Context, _ Interaction, m Modal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Modals = append(f.Modals, m)
	return nil
}

func (f *Fake) Defer(_ context.Context, _ Interaction, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deferred++
	return nil
}

func (f *Fake) EditResponse(_ context.Context, _ Interaction, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ResponseEdits = append(f.ResponseEdits, msg)
	return nil
}

// LastSent returns the most recent message sent to channelID, or nil.
func (f *Fake) LastSent(channelID string) *Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.Sent[channelID]
	if len(msgs) == 0 {
		return nil
	}
	return &msgs[len(msgs)-1]
}

// LastResponse returns the most recent interaction reply, or nil.
func (f *Fake) LastResponse() *FakeResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Responses) == 0 {
		return nil
	}
	return &f.Responses[len(f.Responses)-1]
}
