package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults < loaded config < runtime overrides.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.PageInboxAppID) != "" {
		layer["page_inbox_app_id"] = cfg.PageInboxAppID
	}
	if messenger := credentialsToLayerMap(cfg.Messenger, includeZero); len(messenger) > 0 || includeZero {
		layer["messenger"] = messenger
	}
	if instagram := credentialsToLayerMap(cfg.Instagram, includeZero); len(instagram) > 0 || includeZero {
		layer["instagram"] = instagram
	}
	if includeZero || cfg.RateLimit.HourlyCap > 0 || cfg.RateLimit.Window > 0 {
		rateLimit := map[string]any{}
		if includeZero || cfg.RateLimit.HourlyCap > 0 {
			rateLimit["hourly_cap"] = cfg.RateLimit.HourlyCap
		}
		if includeZero || cfg.RateLimit.Window > 0 {
			rateLimit["window"] = cfg.RateLimit.Window
		}
		layer["rate_limit"] = rateLimit
	}
	return layer
}

func credentialsToLayerMap(creds PlatformCredentials, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(creds.AppID) != "" {
		layer["app_id"] = creds.AppID
	}
	if includeZero || strings.TrimSpace(creds.AppSecret) != "" {
		layer["app_secret"] = creds.AppSecret
	}
	if includeZero || strings.TrimSpace(creds.VerifyToken) != "" {
		layer["verify_token"] = creds.VerifyToken
	}
	return layer
}

// ResolveConfig is the standard resolution path: load through the provider,
// merge with runtime overrides, validate.
func ResolveConfig(ctx context.Context, provider ConfigProvider, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	loaded := defaults
	if provider != nil {
		var err error
		loaded, err = provider.Load(ctx, defaults)
		if err != nil {
			return Config{}, err
		}
	}
	resolver := GoOptionsResolver{}
	resolved, err := resolver.Resolve(defaults, loaded, runtime)
	if err != nil {
		return Config{}, err
	}
	if resolved.RateLimit.Window <= 0 {
		resolved.RateLimit.Window = DefaultRateLimitWindow
	}
	return resolved, nil
}
