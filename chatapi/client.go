package chatapi

import "context"

// Client is the engine's contract with the chat platform. The REST
// implementation lives in this package; tests use the Fake.
type Client interface {
	// SendMessage posts a new message and returns its reference.
	SendMessage(ctx context.Context, channelID string, msg Message) (MessageRef, error)
	// EditMessage replaces the content of an existing message in place.
	EditMessage(ctx context.Context, ref MessageRef, msg Message) error
	// DeleteMessage removes a message.
	DeleteMessage(ctx context.Context, ref MessageRef) error
	// MessageExists reports whether the message can still be fetched.
	MessageExists(ctx context.Context, ref MessageRef) (bool, error)

	// CreateChannel creates a guild channel and returns its ID.
	CreateChannel(ctx context.Context, guildID string, ch ChannelCreate) (string, error)
	// DeleteChannel removes a channel.
	DeleteChannel(ctx context.Context, channelID string) error
	// SetChannelPermission creates or replaces one permission overwrite.
	SetChannelPermission(ctx context.Context, channelID string, ow PermissionOverwrite) error

	// AddMemberRole grants a role to a guild member.
	AddMemberRole(ctx context.Context, guildID, userID, roleID string) error

	// Respond answers an interaction with a visible or ephemeral message.
	Respond(ctx context.Context, i Interaction, msg Message, ephemeral bool) error
	// RespondModal answers an interaction by opening a modal.
	RespondModal(ctx context.Context, i Interaction, m Modal) error
	// Defer acknowledges an interaction; the reply arrives via EditResponse.
	Defer(ctx context.Context, i Interaction, ephemeral bool) error
	// EditResponse rewrites the deferred or original interaction reply.
	EditResponse(ctx context.Context, i Interaction, msg Message) error
}
