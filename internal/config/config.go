// Package config loads client settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full client configuration.
type Config struct {
	API   APIConfig
	OAuth OAuthConfig
	Feed  FeedConfig
	Store StoreConfig
}

// APIConfig describes the resource server.
type APIConfig struct {
	BaseURL     string
	RatePerHour int
	Timeout     time.Duration
}

// OAuthConfig describes the authorization server and this client's registration.
type OAuthConfig struct {
	AuthURL      string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
}

// FeedConfig tunes the photo feed.
type FeedConfig struct {
	PerPage int
}

// StoreConfig selects where the token is persisted.
type StoreConfig struct {
	TokenFile  string
	Passphrase string
	DSN        string // non-empty selects PostgreSQL over the token file
}

// Defaults
const (
	DefaultAPIURL      = "https://api.unsplash.com"
	DefaultAuthURL     = "https://unsplash.com"
	DefaultRedirectURI = "urn:ietf:wg:oauth:2.0:oob"
	DefaultScope       = "public+read_user+write_likes"
	DefaultPerPage     = 10
	DefaultRatePerHour = 50
	DefaultTimeout     = 30 * time.Second
)

// ErrMissingClient is returned by Validate when the OAuth client registration is incomplete.
var ErrMissingClient = errors.New("missing IMAGEFEED_ACCESS_KEY or IMAGEFEED_SECRET_KEY")

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	perPage, err := envInt("IMAGEFEED_PER_PAGE", DefaultPerPage)
	if err != nil {
		return nil, err
	}
	rate, err := envInt("IMAGEFEED_RATE_PER_HOUR", DefaultRatePerHour)
	if err != nil {
		return nil, err
	}
	timeout, err := envDuration("IMAGEFEED_TIMEOUT", DefaultTimeout)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		API: APIConfig{
			BaseURL:     envString("IMAGEFEED_API_URL", DefaultAPIURL),
			RatePerHour: rate,
			Timeout:     timeout,
		},
		OAuth: OAuthConfig{
			AuthURL:      envString("IMAGEFEED_AUTH_URL", DefaultAuthURL),
			ClientID:     os.Getenv("IMAGEFEED_ACCESS_KEY"),
			ClientSecret: os.Getenv("IMAGEFEED_SECRET_KEY"),
			RedirectURI:  envString("IMAGEFEED_REDIRECT_URI", DefaultRedirectURI),
			Scopes:       ParseScopes(envString("IMAGEFEED_SCOPE", DefaultScope)),
		},
		Feed: FeedConfig{PerPage: perPage},
		Store: StoreConfig{
			TokenFile:  os.Getenv("IMAGEFEED_TOKEN_FILE"),
			Passphrase: os.Getenv("IMAGEFEED_PASSPHRASE"),
			DSN:        os.Getenv("IMAGEFEED_DSN"),
		},
	}
	if cfg.Feed.PerPage <= 0 {
		return nil, fmt.Errorf("IMAGEFEED_PER_PAGE must be positive, got %d", cfg.Feed.PerPage)
	}
	return cfg, nil
}

// Validate checks the settings needed for the authorization-code exchange.
func (c *Config) Validate() error {
	if c.OAuth.ClientID == "" || c.OAuth.ClientSecret == "" {
		return ErrMissingClient
	}
	return nil
}

// ParseScopes splits a scope list on '+', ',' or whitespace.
func ParseScopes(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '+' || r == ',' || r == ' ' || r == '\t'
	})
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
