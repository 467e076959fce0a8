// Package config loads environment variables into a typed Config and reads and
// writes the settings file (credentials, command prefix and log toggles).
// Defaults let the binary run locally with only a settings file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config is the process configuration taken from the environment.
type Config struct {
	// Files
	SettingsPath string
	ChannelsPath string

	// Channel storage: "file" (ChannelsPath) or "db" (DBDsn).
	ChannelStore string `validate:"oneof=file db"`
	DBDsn        string `validate:"required_if=ChannelStore db"`

	// Discovery
	DiscoveryEnabled   bool
	DiscoveryThreshold int `validate:"gt=0"`
	DiscoveryPageDelay time.Duration

	// Session
	JoinDelay      time.Duration
	ReconnectDelay time.Duration

	// Ops HTTP; empty disables the server.
	HTTPAddr string

	// NATS event relay; empty URL disables it.
	NATSURL           string
	NATSSubjectPrefix string

	// Base64 32-byte key used to seal secrets in the settings file.
	EncryptionKey string

	// Twitch overrides for the settings file.
	TwitchClientID     string
	TwitchClientSecret string
	TwitchBotUsername  string
	TwitchOAuthToken   string
}

// Load reads environment variables and applies defaults. Malformed numeric or
// duration values fall back to their defaults.
func Load() (*Config, error) {
	cfg := &Config{
		SettingsPath:       envString("SETTINGS_PATH", "config.json"),
		ChannelsPath:       envString("CHANNELS_PATH", "channels.json"),
		ChannelStore:       strings.ToLower(envString("CHANNEL_STORE", "file")),
		DBDsn:              os.Getenv("DB_DSN"),
		DiscoveryEnabled:   envBool("DISCOVERY_ENABLED", true),
		DiscoveryThreshold: envInt("DISCOVERY_THRESHOLD", 300),
		DiscoveryPageDelay: envDuration("DISCOVERY_PAGE_DELAY", 0),
		JoinDelay:          envDuration("JOIN_DELAY", time.Second),
		ReconnectDelay:     envDuration("RECONNECT_DELAY", 5*time.Second),
		HTTPAddr:           envString("HTTP_ADDR", ":8080"),
		NATSURL:            os.Getenv("NATS_URL"),
		NATSSubjectPrefix:  envString("NATS_SUBJECT_PREFIX", "lurker.events"),
		EncryptionKey:      os.Getenv("ENCRYPTION_KEY"),
		TwitchClientID:     os.Getenv("TWITCH_CLIENT_ID"),
		TwitchClientSecret: os.Getenv("TWITCH_CLIENT_SECRET"),
		TwitchBotUsername:  os.Getenv("TWITCH_BOT_USERNAME"),
		TwitchOAuthToken:   os.Getenv("TWITCH_OAUTH_TOKEN"),
	}
	if _, ok := os.LookupEnv("HTTP_ADDR"); ok {
		cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", describe(err))
	}
	return cfg, nil
}

// ApplyOverrides copies non-empty Twitch credentials from the environment over
// the settings file values.
func (c *Config) ApplyOverrides(s *Settings) {
	if c.TwitchClientID != "" {
		s.ClientID = c.TwitchClientID
	}
	if c.TwitchClientSecret != "" {
		s.ClientSecret = c.TwitchClientSecret
	}
	if c.TwitchBotUsername != "" {
		s.UserName = c.TwitchBotUsername
	}
	if c.TwitchOAuthToken != "" {
		s.Token = c.TwitchOAuthToken
	}
}

// describe flattens validator errors into one readable error.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "required_if":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	return def
}
