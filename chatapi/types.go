// Package chatapi is the client for the chat platform's REST surface:
// sending and editing messages, creating private channels, responding to
// interactions, and granting roles. The gateway that delivers events is
// the host's concern; handlers in this repo receive Interaction values
// and answer through a Client.
package chatapi

// MessageRef identifies one message in one channel. It is the only handle
// the engine persists for a chat message.
type MessageRef struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// Zero reports whether the ref points nowhere.
func (r MessageRef) Zero() bool { return r.ChannelID == "" || r.MessageID == "" }

// ButtonStyle matches the platform's numeric component styles.
type ButtonStyle int

const (
	StylePrimary   ButtonStyle = 1
	StyleSecondary ButtonStyle = 2
	StyleSuccess   ButtonStyle = 3
	StyleDanger    ButtonStyle = 4
	StyleLink      ButtonStyle = 5
)

// Button is one interactive component. Link buttons carry a URL and no
// custom ID; all others carry a custom ID routed back by the dispatcher.
type Button struct {
	CustomID string      `json:"custom_id,omitempty"`
	Label    string      `json:"label"`
	Style    ButtonStyle `json:"style"`
	URL      string      `json:"url,omitempty"`
	Emoji    string      `json:"emoji,omitempty"`
}

// ActionRow groups up to five buttons.
type ActionRow struct {
	Buttons []Button `json:"buttons"`
}

// RowsOf splits buttons into action rows of at most five.
func RowsOf(buttons []Button) []ActionRow {
	var rows []ActionRow
	for len(buttons) > 0 {
		n := len(buttons)
		if n > 5 {
			n = 5
		}
		rows = append(rows, ActionRow{Buttons: buttons[:n]})
		buttons = buttons[n:]
	}
	return rows
}

// EmbedField is one field in an embed body.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedAuthor is the author block of an embed.
type EmbedAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

// EmbedFooter is the footer block of an embed.
type EmbedFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url,omitempty"`
}

// EmbedMedia carries an image or thumbnail URL.
type EmbedMedia struct {
	URL string `json:"url"`
}

// Embed is a rendered rich-content block.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Author      *EmbedAuthor `json:"author,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Image       *EmbedMedia  `json:"image,omitempty"`
	Thumbnail   *EmbedMedia  `json:"thumbnail,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

// Message is the outbound payload for send and edit.
type Message struct {
	Content    string      `json:"content,omitempty"`
	Embeds     []Embed     `json:"embeds,omitempty"`
	Components []ActionRow `json:"components,omitempty"`
}

// TextInputStyle selects single-line or paragraph modal inputs.
type TextInputStyle int

const (
	InputShort     TextInputStyle = 1
	InputParagraph TextInputStyle = 2
)

// TextInput is one field of a modal.
type TextInput struct {
	CustomID    string         `json:"custom_id"`
	Label       string         `json:"label"`
	Style       TextInputStyle `json:"style"`
	Placeholder string         `json:"placeholder,omitempty"`
	Value       string         `json:"value,omitempty"`
	Required    bool           `json:"required"`
}

// Modal is a form shown in response to a component press.
type Modal struct {
	CustomID string      `json:"custom_id"`
	Title    string      `json:"title"`
	Inputs   []TextInput `json:"inputs"`
}

// Permission bits used by ticket channels.
const (
	PermViewChannel        uint64 = 1 << 10
	PermSendMessages       uint64 = 1 << 11
	PermReadMessageHistory uint64 = 1 << 16
	PermManageChannels     uint64 = 1 << 4
)

// OverwriteType distinguishes role and member permission overwrites.
type OverwriteType int

const (
	OverwriteRole   OverwriteType = 0
	OverwriteMember OverwriteType = 1
)

// PermissionOverwrite grants or denies permission bits for one role or
// member on a channel.
type PermissionOverwrite struct {
	ID    string        `json:"id"`
	Type  OverwriteType `json:"type"`
	Allow uint64        `json:"allow,string"`
	Deny  uint64        `json:"deny,string"`
}

// ChannelCreate describes a new guild channel.
type ChannelCreate struct {
	Name       string                `json:"name"`
	ParentID   string                `json:"parent_id,omitempty"`
	Overwrites []PermissionOverwrite `json:"permission_overwrites,omitempty"`
}

// User is the pressing or submitting user of an interaction.
type User struct {
	ID   string `json:"id"`
	Name string `json:"username"`
}

// Interaction is one component press or modal submission, as delivered by
// the host's gateway. Values holds modal inputs keyed by input custom ID.
type Interaction struct {
	ID        string
	Token     string
	GuildID   string
	ChannelID string
	User      User
	CustomID  string
	Values    map[string]string
	Message   MessageRef
}
