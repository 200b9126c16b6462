package core

import (
	"fmt"
	"strings"
	"time"
)

type PlatformCredentials struct {
	AppID       string `koanf:"app_id" mapstructure:"app_id"`
	AppSecret   string `koanf:"app_secret" mapstructure:"app_secret"`
	VerifyToken string `koanf:"verify_token" mapstructure:"verify_token"`
}

type RateLimitConfig struct {
	HourlyCap int           `koanf:"hourly_cap" mapstructure:"hourly_cap"`
	Window    time.Duration `koanf:"window" mapstructure:"window"`
}

type Config struct {
	ServiceName string              `koanf:"service_name" mapstructure:"service_name"`
	Messenger   PlatformCredentials `koanf:"messenger" mapstructure:"messenger"`
	Instagram   PlatformCredentials `koanf:"instagram" mapstructure:"instagram"`
	// PageInboxAppID is the platform's well-known native inbox app id. It is
	// configuration so integrations against other graph tiers can override it.
	PageInboxAppID string          `koanf:"page_inbox_app_id" mapstructure:"page_inbox_app_id"`
	RateLimit      RateLimitConfig `koanf:"rate_limit" mapstructure:"rate_limit"`
}

// DefaultPageInboxAppID is the production graph id of the human Page Inbox.
const DefaultPageInboxAppID = "263902037430900"

const (
	DefaultHourlyCap       = 200
	DefaultRateLimitWindow = time.Hour
)

func DefaultConfig() Config {
	return Config{
		ServiceName:    "channels",
		PageInboxAppID: DefaultPageInboxAppID,
		RateLimit: RateLimitConfig{
			HourlyCap: DefaultHourlyCap,
			Window:    DefaultRateLimitWindow,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.PageInboxAppID) == "" {
		return fmt.Errorf("core: page_inbox_app_id is required")
	}
	if c.RateLimit.HourlyCap < 0 {
		return fmt.Errorf("core: rate_limit.hourly_cap must be >= 0")
	}
	if c.RateLimit.Window < 0 {
		return fmt.Errorf("core: rate_limit.window must be >= 0")
	}
	return nil
}

// Credentials returns the per-platform app credentials from configuration.
func (c Config) Credentials(platform Platform) (PlatformCredentials, error) {
	switch platform {
	case PlatformMessenger:
		return c.Messenger, nil
	case PlatformInstagram:
		return c.Instagram, nil
	default:
		return PlatformCredentials{}, fmt.Errorf("%w: %q", ErrInvalidPlatform, platform)
	}
}
