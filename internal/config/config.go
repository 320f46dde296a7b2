// Package config loads the gateway's configuration surface (SPEC_FULL.md §6):
// region/profile selection, the allocation/health-check tunables, the
// PersistentStore backend, and the HTTP surface's bind address.
//
// Grounded on the teacher's pkg/auth/config.go nested-struct-with-defaults
// style (Config/TokenStorageConfig/FileStorageConfig/EncryptionConfig),
// translated from json tags to yaml tags per examples/config/config.go's
// gopkg.in/yaml.v3 loading idiom. A Default*() constructor is provided per
// sub-config, matching pkg/auth/config.go's DefaultConfig shape, and an
// environment-variable overlay mirrors the same field-by-field pattern the
// teacher's example config loaders use.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration surface.
type Config struct {
	Region      string      `yaml:"region"`
	ProfileARN  string      `yaml:"profile_arn"`
	SelfUseMode bool        `yaml:"self_use_mode"`
	Allocation  Allocation  `yaml:"allocation"`
	HealthCheck HealthCheck `yaml:"health_check"`
	Store       Store       `yaml:"store"`
	HTTP        HTTP        `yaml:"http"`
	RateLimit   RateLimit   `yaml:"rate_limit"`
}

// RateLimit configures golang.org/x/time/rate throttling, grounded on the
// teacher's pkg/providers/base.ProviderConfig.ClientSideLimiter field: each
// CredentialManager's outbound refresh call carries a limiter built from
// Outbound, and the HTTP surface's per-API-key middleware carries one built
// from PerAPIKey.
type RateLimit struct {
	// Outbound throttles each identity's refresh calls to the upstream.
	Outbound RateLimitValue `yaml:"outbound"`
	// PerAPIKey throttles inbound chat-completion calls per resolved caller.
	PerAPIKey RateLimitValue `yaml:"per_api_key"`
}

// RateLimitValue is one rate.Limit plus its burst size. RequestsPerSecond <=
// 0 disables the limiter entirely.
type RateLimitValue struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Allocation configures the Token Allocation Core's tunables.
type Allocation struct {
	// Strategy is one of "score_based", "round_robin", "sequential".
	Strategy         string        `yaml:"strategy"`
	MinSuccessRate   float64       `yaml:"min_success_rate"`
	RefreshThreshold time.Duration `yaml:"token_refresh_threshold"`
}

// HealthCheck configures the background HealthChecker.
type HealthCheck struct {
	Interval time.Duration `yaml:"interval"`
}

// Store configures the PersistentStore backend.
type Store struct {
	// Kind is one of "memory", "file".
	Kind string    `yaml:"kind"`
	File StoreFile `yaml:"file"`
}

// StoreFile configures the encrypted-file store backend.
type StoreFile struct {
	Path          string `yaml:"path"`
	EncryptionKey string `yaml:"encryption_key"`
}

// HTTP configures the HTTP surface.
type HTTP struct {
	ListenAddr     string        `yaml:"listen_addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// AdminKey guards /admin/status. Empty disables the admin surface entirely.
	AdminKey string `yaml:"admin_key"`
	// Models is the static list returned by GET /v1/models.
	Models []string `yaml:"models"`
}

// Default returns the gateway's default configuration.
func Default() *Config {
	return &Config{
		Region:      "us-east-1",
		SelfUseMode: false,
		Allocation:  DefaultAllocation(),
		HealthCheck: DefaultHealthCheck(),
		Store:       DefaultStore(),
		HTTP:        DefaultHTTP(),
		RateLimit:   DefaultRateLimit(),
	}
}

// DefaultRateLimit returns the RateLimit sub-config's defaults: 2 req/s with
// a burst of 1 on both the outbound refresh path and the per-API-key surface.
func DefaultRateLimit() RateLimit {
	return RateLimit{
		Outbound:  RateLimitValue{RequestsPerSecond: 2, Burst: 1},
		PerAPIKey: RateLimitValue{RequestsPerSecond: 2, Burst: 1},
	}
}

// DefaultAllocation returns the Allocation sub-config's defaults.
func DefaultAllocation() Allocation {
	return Allocation{
		Strategy:         "score_based",
		MinSuccessRate:   0.5,
		RefreshThreshold: 60 * time.Second,
	}
}

// DefaultHealthCheck returns the HealthCheck sub-config's defaults.
func DefaultHealthCheck() HealthCheck {
	return HealthCheck{Interval: 5 * time.Minute}
}

// DefaultStore returns the Store sub-config's defaults.
func DefaultStore() Store {
	return Store{
		Kind: "memory",
		File: StoreFile{
			Path: "./data/tokens",
		},
	}
}

// DefaultHTTP returns the HTTP sub-config's defaults.
func DefaultHTTP() HTTP {
	return HTTP{
		ListenAddr:     ":8080",
		RequestTimeout: 120 * time.Second,
		Models:         []string{"claude-sonnet-4", "claude-haiku-4"},
	}
}

// Load reads and parses a YAML configuration file, starting from Default()
// and overlaying whatever the file sets, then applying any environment
// variable overrides (see applyEnvOverrides).
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// envPrefix namespaces every override this gateway recognizes.
const envPrefix = "TOKEN_GATEWAY_"

// applyEnvOverrides lets an operator override select fields without editing
// the YAML file, matching the teacher's examples/*/config.go convention of
// layering environment variables on top of a parsed file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(envPrefix + "REGION"); v != "" {
		cfg.Region = v
	}
	if v := os.Getenv(envPrefix + "PROFILE_ARN"); v != "" {
		cfg.ProfileARN = v
	}
	if v := os.Getenv(envPrefix + "SELF_USE_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SelfUseMode = b
		}
	}
	if v := os.Getenv(envPrefix + "ALLOCATION_STRATEGY"); v != "" {
		cfg.Allocation.Strategy = v
	}
	if v := os.Getenv(envPrefix + "STORE_KIND"); v != "" {
		cfg.Store.Kind = v
	}
	if v := os.Getenv(envPrefix + "STORE_FILE_ENCRYPTION_KEY"); v != "" {
		cfg.Store.File.EncryptionKey = v
	}
	if v := os.Getenv(envPrefix + "HTTP_LISTEN_ADDR"); v != "" {
		cfg.HTTP.ListenAddr = v
	}
	if v := os.Getenv(envPrefix + "HTTP_ADMIN_KEY"); v != "" {
		cfg.HTTP.AdminKey = v
	}
}
