package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultBaseURL = "https://discord.com/api/v10"

// RESTClient implements Client over the platform's HTTP API using a bot
// token. All calls carry the request context; callers decide timeouts.
type RESTClient struct {
	Token      string
	AppID      string
	BaseURL    string
	HTTPClient *http.Client
}

var _ Client = (*RESTClient)(nil)

// NewRESTClient returns a client with a bounded default timeout so one
// slow call cannot stall a whole reconcile tick.
func NewRESTClient(token, appID string) *RESTClient {
	return &RESTClient{
		Token:      token,
		AppID:      appID,
		BaseURL:    defaultBaseURL,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *RESTClient) base() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return defaultBaseURL
}

func (c *RESTClient) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// do performs one JSON round trip. out may be nil when the response body
// is irrelevant.
func (c *RESTClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base()+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bot "+c.Token)
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{Status: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return nil
}

// APIError is a non-2xx platform response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api: status %d: %s", e.Status, e.Body)
}

// IsNotFound reports a 404 platform response.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

// wire shapes -----------------------------------------------------------

type wireMessage struct {
	Content    string    `json:"content"`
	Embeds     []Embed   `json:"embeds"`
	Components []wireRow `json:"components"`
	Flags      int       `json:"flags,omitempty"`
}

type wireRow struct {
	Type       int             `json:"type"` // 1 = action row
	Components []wireComponent `json:"components"`
}

type wireComponent struct {
	Type     int        `json:"type"` // 2 = button, 4 = text input
	Style    int        `json:"style"`
	Label    string     `json:"label,omitempty"`
	CustomID string     `json:"custom_id,omitempty"`
	URL      string     `json:"url,omitempty"`
	Emoji    *wireEmoji `json:"emoji,omitempty"`

	Placeholder string `json:"placeholder,omitempty"`
	Value       string `json:"value,omitempty"`
	Required    *bool  `json:"required,omitempty"`
}

type wireEmoji struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Animated bool   `json:"animated,omitempty"`
}

const flagEphemeral = 1 << 6

func toWire(msg Message, ephemeral bool) wireMessage {
	w := wireMessage{Content: msg.Content, Embeds: msg.Embeds}
	if w.Embeds == nil {
		w.Embeds = []Embed{}
	}
	w.Components = []wireRow{}
	for _, row := range msg.Components {
		wr := wireRow{Type: 1}
		for _, b := range row.Buttons {
			wc := wireComponent{Type: 2, Style: int(b.Style), Label: b.Label}
			if b.Style == StyleLink {
				wc.URL = b.URL
			} else {
				wc.CustomID = b.CustomID
			}
			if b.Emoji != "" {
				wc.Emoji = parseEmoji(b.Emoji)
			}
			wr.Components = append(wr.Components, wc)
		}
		w.Components = append(w.Components, wr)
	}
	if ephemeral {
		w.Flags = flagEphemeral
	}
	return w
}

// messages --------------------------------------------------------------

func (c *RESTClient) SendMessage(ctx context.Context, channelID string, msg Message) (MessageRef, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", toWire(msg, false), &out); err != nil {
		return MessageRef{}, err
	}
	return MessageRef{ChannelID: channelID, MessageID: out.ID}, nil
}

func (c *RESTClient) EditMessage(ctx context.Context, ref MessageRef, msg Message) error {
	return c.do(ctx, http.MethodPatch, "/channels/"+ref.ChannelID+"/messages/"+ref.MessageID, toWire(msg, false), nil)
}

func (c *RESTClient) DeleteMessage(ctx context.Context, ref MessageRef) error {
	return c.do(ctx, http.MethodDelete, "/channels/"+ref.ChannelID+"/messages/"+ref.MessageID, nil, nil)
}

func (c *RESTClient) MessageExists(ctx context.Context, ref MessageRef) (bool, error) {
	err := c.do(ctx, http.MethodGet, "/channels/"+ref.ChannelID+"/messages/"+ref.MessageID, nil, nil)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// channels --------------------------------------------------------------

func (c *RESTClient) CreateChannel(ctx context.Context, guildID string, ch ChannelCreate) (string, error) {
	body := struct {
		Name       string                `json:"name"`
		Type       int                   `json:"type"` // 0 = guild text
		ParentID   string                `json:"parent_id,omitempty"`
		Overwrites []PermissionOverwrite `json:"permission_overwrites,omitempty"`
	}{Name: ch.Name, ParentID: ch.ParentID, Overwrites: ch.Overwrites}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/guilds/"+guildID+"/channels", body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *RESTClient) DeleteChannel(ctx context.Context, channelID string) error {
	return c.do(ctx, http.MethodDelete, "/channels/"+channelID, nil, nil)
}

func (c *RESTClient) SetChannelPermission(ctx context.Context, channelID string, ow PermissionOverwrite) error {
	body := struct {
		Type  OverwriteType `json:"type"`
		Allow uint64        `json:"allow,string"`
		Deny  uint64        `json:"deny,string"`
	}{Type: ow.Type, Allow: ow.Allow, Deny: ow.Deny}
	return c.do(ctx, http.MethodPut, "/channels/"+channelID+"/permissions/"+ow.ID, body, nil)
}

// members ---------------------------------------------------------------

func (c *RESTClient) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	return c.do(ctx, http.MethodPut, "/guilds/"+guildID+"/members/"+userID+"/roles/"+roleID, nil, nil)
}

// interactions ----------------------------------------------------------

func (c *RESTClient) Respond(ctx context.Context, i Interaction, msg Message, ephemeral bool) error {
	body := struct {
		Type int         `json:"type"` // 4 = channel message with source
		Data wireMessage `json:"data"`
	}{Type: 4, Data: toWire(msg, ephemeral)}
	return c.do(ctx, http.MethodPost, "/interactions/"+i.ID+"/"+i.Token+"/callback", body, nil)
}

func (c *RESTClient) RespondModal(ctx context.Context, i Interaction, m Modal) error {
	rows := make([]wireRow, 0, len(m.Inputs))
	for _, in := range m.Inputs {
		req := in.Required
		rows = append(rows, wireRow{Type: 1, Components: []wireComponent{{
			Type:        4,
			Style:       int(in.Style),
			Label:       in.Label,
			CustomID:    in.CustomID,
			Placeholder: in.Placeholder,
			Value:       in.Value,
			Required:    &req,
		}}})
	}
	body := struct {
		Type int `json:"type"` // 9 = modal
		Data struct {
			CustomID   string    `json:"custom_id"`
			Title      string    `json:"title"`
			Components []wireRow `json:"components"`
		} `json:"data"`
	}{Type: 9}
	body.Data.CustomID = m.CustomID
	body.Data.Title = m.Title
	body.Data.Components = rows
	return c.do(ctx, http.MethodPost, "/interactions/"+i.ID+"/"+i.Token+"/callback", body, nil)
}

func (c *RESTClient) Defer(ctx context.Context, i Interaction, ephemeral bool) error {
	body := struct {
		Type int `json:"type"` // 5 = deferred channel message
		Data struct {
			Flags int `json:"flags,omitempty"`
		} `json:"data"`
	}{Type: 5}
	if ephemeral {
		body.Data.Flags = flagEphemeral
	}
	return c.do(ctx, http.MethodPost, "/interactions/"+i.ID+"/"+i.Token+"/callback", body, nil)
}

func (c *RESTClient) EditResponse(ctx context.Context, i Interaction, msg Message) error {
	return c.do(ctx, http.MethodPatch, "/webhooks/"+c.AppID+"/"+i.Token+"/messages/@original", toWire(msg, false), nil)
}
