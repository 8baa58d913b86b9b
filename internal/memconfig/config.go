// Package memconfig assembles the engine's configuration from a plain
// struct tree with environment variable overrides, in the style of a
// hand-rolled configuration wizard rather than a config framework: a
// flat set of fields, sane defaults, and explicit os.Getenv overrides.
package memconfig

import (
	"os"
	"strconv"
	"strings"

	"github.com/selfmemory/engine/internal/capacity"
	"github.com/selfmemory/engine/internal/durable"
	"github.com/selfmemory/engine/internal/extqueue"
	"github.com/selfmemory/engine/internal/memerr"
	"github.com/selfmemory/engine/internal/pool"
	"github.com/selfmemory/engine/internal/quality"
	"github.com/selfmemory/engine/internal/querycache"
	"github.com/selfmemory/engine/internal/reward"
)

// Environment variable names consumed from the host, per the
// environment contracts this engine honors.
const (
	EnvDurableURL     = "MEMORY_DURABLE_URL"
	EnvDurableToken   = "MEMORY_DURABLE_AUTH_TOKEN"
	EnvCachePath      = "MEMORY_CACHE_PATH"
	EnvEmbeddingKind  = "MEMORY_EMBEDDING_PROVIDER" // "" or "hash" selects the local fallback
	EnvQualityThresh  = "MEMORY_QUALITY_THRESHOLD"
	EnvMaxEpisodes    = "MEMORY_MAX_EPISODES"
	EnvEvictionPolicy = "MEMORY_EVICTION_POLICY" // "lru" or "relevance_weighted"
)

// Config is the full, assembled configuration for one engine instance.
type Config struct {
	DurableURL   string
	DurableToken string
	CachePath    string

	EmbeddingProvider string

	Pool       pool.Config
	Durable    durable.Config
	QueryCache querycache.Config
	Quality    quality.Config
	Reward     reward.Config
	ExtQueue   extqueue.Config

	MaxEpisodes    int
	EvictionPolicy string
	SyncInterval   string // documented for operators; parsed by the host into a time.Duration
}

// Option mutates a Config during construction.
type Option func(*Config)

// WithDurableURL overrides the durable store URL.
func WithDurableURL(url string) Option { return func(c *Config) { c.DurableURL = url } }

// WithCachePath overrides the cache store path.
func WithCachePath(path string) Option { return func(c *Config) { c.CachePath = path } }

// WithQualityThreshold overrides the pre-storage quality gate threshold.
func WithQualityThreshold(threshold float64) Option {
	return func(c *Config) { c.Quality.Threshold = threshold }
}

// WithMaxEpisodes overrides the capacity manager's working-set ceiling.
func WithMaxEpisodes(n int) Option { return func(c *Config) { c.MaxEpisodes = n } }

// Default returns the documented defaults for every subsystem, with
// in-memory stores suitable for tests.
func Default(opts ...Option) Config {
	cfg := Config{
		DurableURL:        ":memory:",
		CachePath:         ":memory:",
		EmbeddingProvider: "hash",
		Pool:              pool.DefaultConfig(),
		Durable:           durable.DefaultConfig(),
		QueryCache:        querycache.DefaultConfig(),
		Quality:           quality.DefaultConfig(),
		Reward:            reward.DefaultConfig(),
		ExtQueue:          extqueue.DefaultConfig(),
		MaxEpisodes:       10000,
		EvictionPolicy:    "lru",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// FromEnvironment builds a Config from Default(), overridden by any of
// the documented environment variables that are set, then by opts.
func FromEnvironment(opts ...Option) Config {
	cfg := Default()

	if v := os.Getenv(EnvDurableURL); v != "" {
		cfg.DurableURL = v
	}
	cfg.DurableToken = os.Getenv(EnvDurableToken)
	if v := os.Getenv(EnvCachePath); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv(EnvEmbeddingKind); v != "" {
		cfg.EmbeddingProvider = v
	}
	if v := os.Getenv(EnvQualityThresh); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Quality.Threshold = f
		}
	}
	if v := os.Getenv(EnvMaxEpisodes); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxEpisodes = n
		}
	}
	if v := os.Getenv(EnvEvictionPolicy); v != "" {
		cfg.EvictionPolicy = v
	}

	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Validate enforces the environment contract: a remote durable URL
// requires a non-empty auth token, and the eviction policy name must
// resolve to a known implementation.
func (c Config) Validate() error {
	if isRemoteDurableURL(c.DurableURL) && strings.TrimSpace(c.DurableToken) == "" {
		return memerr.New(memerr.KindValidation, "remote durable store URL %q requires %s", c.DurableURL, EnvDurableToken)
	}
	if _, err := c.evictionPolicyImpl(); err != nil {
		return err
	}
	return nil
}

func isRemoteDurableURL(url string) bool {
	return strings.HasPrefix(url, "libsql://") || strings.HasPrefix(url, "https://") || strings.HasPrefix(url, "wss://")
}

// evictionPolicyImpl resolves the configured policy name to an
// implementation, returning a validation error for an unrecognized value.
func (c Config) evictionPolicyImpl() (capacity.EvictionPolicy, error) {
	switch c.EvictionPolicy {
	case "", "lru":
		return capacity.LRU{}, nil
	case "relevance_weighted":
		return capacity.RelevanceWeighted{}, nil
	default:
		return nil, memerr.New(memerr.KindValidation, "unknown eviction policy %q", c.EvictionPolicy)
	}
}

// ResolvedEvictionPolicy resolves the configured policy name to an
// implementation. Callers needing error details should use Validate
// first; this returns the LRU default for any unrecognized name.
func (c Config) ResolvedEvictionPolicy() capacity.EvictionPolicy {
	impl, err := c.evictionPolicyImpl()
	if err != nil {
		return capacity.LRU{}
	}
	return impl
}
