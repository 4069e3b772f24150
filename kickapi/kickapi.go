// Package kickapi probes broadcast channel state on kick.com using an app
// access token (client credentials). A probe either reports the channel's
// current liveness or fails; failures never carry partial state, so
// callers can treat any error as "no information this tick".
package kickapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultTokenURL = "https://id.kick.com/oauth/token"
	defaultBaseURL  = "https://api.kick.com/public/v1"
)

// Status is the probed state of one channel. When Live is false only Slug
// is meaningful.
type Status struct {
	Slug         string
	Live         bool
	SessionStart string // opaque session identity token; changes per broadcast session
	ViewerCount  int
	Title        string
	Category     string
	Thumbnail    string
	Description  string
}

// Client queries the channel-status API. The zero value is not usable;
// construct with New.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// New builds a client whose transport injects a cached app access token,
// refreshing it via the client-credentials exchange when it expires.
func New(clientID, clientSecret string) *Client {
	conf := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     defaultTokenURL,
	}
	// Bound both the token exchange and status queries so one broken
	// upstream cannot starve a reconcile tick.
	base := &http.Client{Timeout: 10 * time.Second}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	return &Client{
		baseURL: defaultBaseURL,
		httpc:   conf.Client(ctx),
	}
}

// ChannelStatus probes one channel by slug.
func (c *Client) ChannelStatus(ctx context.Context, slug string) (Status, error) {
	if slug == "" {
		return Status{}, fmt.Errorf("slug empty")
	}
	u := c.baseURL + "/channels?slug=" + url.QueryEscape(slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Status{}, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return Status{}, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Status{}, fmt.Errorf("channel status request failed: %s: %s", resp.Status, string(b))
	}

	var body struct {
		Data []struct {
			Slug               string `json:"slug"`
			ChannelDescription string `json:"channel_description"`
			StreamTitle        string `json:"stream_title"`
			Category           *struct {
				Name string `json:"name"`
			} `json:"category"`
			Stream *struct {
				IsLive      bool   `json:"is_live"`
				StartTime   string `json:"start_time"`
				ViewerCount int    `json:"viewer_count"`
				Thumbnail   string `json:"thumbnail"`
			} `json:"stream"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Status{}, fmt.Errorf("decode channel status: %w", err)
	}
	if len(body.Data) == 0 {
		return Status{}, fmt.Errorf("channel %q not found", slug)
	}

	d := body.Data[0]
	st := Status{Slug: d.Slug, Description: d.ChannelDescription}
	if d.Stream == nil || !d.Stream.IsLive {
		return st, nil
	}
	st.Live = true
	st.SessionStart = d.Stream.StartTime
	st.ViewerCount = d.Stream.ViewerCount
	st.Thumbnail = d.Stream.Thumbnail
	st.Title = d.StreamTitle
	if d.Category != nil {
		st.Category = d.Category.Name
	}
	return st, nil
}
