package chatapi

import "time"

// EmbedConfig is the persisted template for a bound message's embed. Both
// ticket menus and role panels store one and render it on every change,
// so the chat message can always be rebuilt from the record.
type EmbedConfig struct {
	Title         string `json:"title,omitempty"`
	Description   string `json:"description,omitempty"`
	URL           string `json:"url,omitempty"`
	Color         int    `json:"color,omitempty"`
	AuthorName    string `json:"author_name,omitempty"`
	AuthorURL     string `json:"author_url,omitempty"`
	AuthorIconURL string `json:"author_icon_url,omitempty"`
	FooterText    string `json:"footer_text,omitempty"`
	FooterIconURL string `json:"footer_icon_url,omitempty"`
	ImageURL      string `json:"image_url,omitempty"`
	ThumbnailURL  string `json:"thumbnail_url,omitempty"`
}

// Render builds the embed, stamped with the current time.
func (c EmbedConfig) Render(now time.Time) Embed {
	e := Embed{
		Title:       c.Title,
		Description: c.Description,
		URL:         c.URL,
		Color:       c.Color,
		Timestamp:   now.UTC().Format(time.RFC3339),
	}
	if c.AuthorName != "" {
		e.Author = &EmbedAuthor{Name: c.AuthorName, URL: c.AuthorURL, IconURL: c.AuthorIconURL}
	}
	if c.FooterText != "" {
		e.Footer = &EmbedFooter{Text: c.FooterText, IconURL: c.FooterIconURL}
	}
	if c.ImageURL != "" {
		e.Image = &EmbedMedia{URL: c.ImageURL}
	}
	if c.ThumbnailURL != "" {
		e.Thumbnail = &EmbedMedia{URL: c.ThumbnailURL}
	}
	return e
}
