// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	// Kick (broadcast platform)
	KickClientID     string
	KickClientSecret string

	// Chat platform
	ChatToken string
	ChatAppID string

	// AuthorID is the hard-coded bypass identity: always passes every
	// permission check and owns ticket administration.
	AuthorID string

	// Storage
	DataDir string

	// HTTP management surface
	HTTPAddr string

	// Loop intervals
	StreamCheckInterval  time.Duration
	CheckInTickInterval  time.Duration
	CheckInBroadcastWait time.Duration // elapsed time that triggers a new broadcast
	CheckInStaleAfter    time.Duration // non-responder window
}

// Load reads environment variables and applies defaults. It doesn't fail when
// Kick credentials are missing; the stream reconciler simply probes nothing
// useful without them. ValidateChatReady gates the parts that need a bot token.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.KickClientID = os.Getenv("KICK_CLIENT_ID")
	cfg.KickClientSecret = os.Getenv("KICK_CLIENT_SECRET")

	cfg.ChatToken = os.Getenv("CHAT_BOT_TOKEN")
	cfg.ChatAppID = os.Getenv("CHAT_APP_ID")
	cfg.AuthorID = os.Getenv("AUTHOR_ID")

	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	var err error
	if cfg.StreamCheckInterval, err = durationEnv("STREAM_CHECK_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.CheckInTickInterval, err = durationEnv("CHECKIN_TICK_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.CheckInBroadcastWait, err = durationEnv("CHECKIN_BROADCAST_WAIT", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.CheckInStaleAfter, err = durationEnv("CHECKIN_STALE_AFTER", 48*time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateChatReady checks the fields required to drive the chat surface.
func (c *Config) ValidateChatReady() error {
	if c.ChatToken == "" || c.ChatAppID == "" {
		return fmt.Errorf("missing chat env: require CHAT_BOT_TOKEN, CHAT_APP_ID")
	}
	return nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return d, nil
}
