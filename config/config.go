// Package config loads environment variables and provides a typed Config
// used across the bot. It applies sensible defaults so the binary can run
// locally with minimal setup; required credentials are checked by Validate.
package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	// Credentials
	TwitchClientID string
	TwitchToken    string

	// Endpoints, overridable for tests and regional setups.
	ChatURL     string
	EventSubURL string
	HelixURL    string
	AuthURL     string

	// Announcements sent on join/part. The bot login is substituted for %s.
	JoinMessage string
	PartMessage string

	// HTTP surface
	ListenAddr string

	// HelixTimeout bounds every REST call.
	HelixTimeout time.Duration
}

// Load reads environment variables and applies defaults. It doesn't fail if
// credentials are missing; use Validate when you require a live connection.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchToken = os.Getenv("TWITCH_TOKEN")

	cfg.ChatURL = os.Getenv("TWITCH_CHAT_URL")
	cfg.EventSubURL = os.Getenv("TWITCH_EVENTSUB_URL")
	cfg.HelixURL = os.Getenv("TWITCH_HELIX_URL")
	cfg.AuthURL = os.Getenv("TWITCH_AUTH_URL")

	cfg.JoinMessage = os.Getenv("BOT_JOIN_MESSAGE")
	if cfg.JoinMessage == "" {
		cfg.JoinMessage = "%s has joined the chat"
	}
	cfg.PartMessage = os.Getenv("BOT_PART_MESSAGE")
	if cfg.PartMessage == "" {
		cfg.PartMessage = "%s has left the chat"
	}

	cfg.ListenAddr = os.Getenv("LISTEN_ADDR")
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}

	cfg.HelixTimeout = 15 * time.Second
	if v := os.Getenv("HELIX_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid HELIX_TIMEOUT: %q", v)
		}
		cfg.HelixTimeout = d
	}

	return cfg, nil
}

// Validate checks the fields required to open a live session.
func (c *Config) Validate() error {
	if c.TwitchClientID == "" || c.TwitchToken == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CLIENT_ID, TWITCH_TOKEN")
	}
	return nil
}
