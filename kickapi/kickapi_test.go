package kickapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestChannelStatus(t *testing.T) {
	tests := []struct {
		name        string
		slug        string
		statusCode  int
		body        string
		want        Status
		wantErr     bool
		errContains string
	}{
		{
			name:       "live channel",
			slug:       "foo",
			statusCode: http.StatusOK,
			body: `{"data":[{"slug":"foo","channel_description":"daily streams","stream_title":"speedrun",` +
				`"category":{"name":"Games"},` +
				`"stream":{"is_live":true,"start_time":"2026-08-28T10:00:00Z","viewer_count":42,"thumbnail":"http://thumb"}}]}`,
			want: Status{
				Slug:         "foo",
				Live:         true,
				SessionStart: "2026-08-28T10:00:00Z",
				ViewerCount:  42,
				Title:        "speedrun",
				Category:     "Games",
				Thumbnail:    "http://thumb",
				Description:  "daily streams",
			},
		},
		{
			name:       "offline channel",
			slug:       "foo",
			statusCode: http.StatusOK,
			body:       `{"data":[{"slug":"foo","channel_description":"daily streams","stream":{"is_live":false}}]}`,
			want:       Status{Slug: "foo", Description: "daily streams"},
		},
		{
			name:       "offline channel without stream object",
			slug:       "foo",
			statusCode: http.StatusOK,
			body:       `{"data":[{"slug":"foo"}]}`,
			want:       Status{Slug: "foo"},
		},
		{
			name:        "unknown slug",
			slug:        "nobody",
			statusCode:  http.StatusOK,
			body:        `{"data":[]}`,
			wantErr:     true,
			errContains: "not found",
		},
		{
			name:        "upstream error",
			slug:        "foo",
			statusCode:  http.StatusInternalServerError,
			body:        "oops",
			wantErr:     true,
			errContains: "channel status request failed",
		},
		{
			name:        "malformed body",
			slug:        "foo",
			statusCode:  http.StatusOK,
			body:        "{not json",
			wantErr:     true,
			errContains: "decode channel status",
		},
		{
			name:        "empty slug",
			slug:        "",
			wantErr:     true,
			errContains: "slug empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/channels" {
					t.Errorf("path = %s, want /channels", r.URL.Path)
				}
				if got := r.URL.Query().Get("slug"); got != tt.slug {
					t.Errorf("slug query = %q, want %q", got, tt.slug)
				}
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := &Client{baseURL: server.URL, httpc: server.Client()}
			got, err := c.ChannelStatus(context.Background(), tt.slug)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error = %v, want substring %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("channel status: %v", err)
			}
			if got != tt.want {
				t.Errorf("status = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestChannelStatusSlugEscaped(t *testing.T) {
	var seen string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.Query().Get("slug")
		_, _ = w.Write([]byte(`{"data":[{"slug":"a b"}]}`))
	}))
	defer server.Close()

	c := &Client{baseURL: server.URL, httpc: server.Client()}
	if _, err := c.ChannelStatus(context.Background(), "a b"); err != nil {
		t.Fatal(err)
	}
	if seen != "a b" {
		t.Errorf("slug survived escaping as %q", seen)
	}
}
