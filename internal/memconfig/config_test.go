package memconfig

import "testing"

func TestDefaultProducesInMemoryStores(t *testing.T) {
	cfg := Default()
	if cfg.DurableURL != ":memory:" || cfg.CachePath != ":memory:" {
		t.Fatalf("expected in-memory defaults, got %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestDefaultAppliesOptions(t *testing.T) {
	cfg := Default(WithDurableURL("file:local.db"), WithMaxEpisodes(42))
	if cfg.DurableURL != "file:local.db" {
		t.Fatalf("expected option to override durable URL, got %q", cfg.DurableURL)
	}
	if cfg.MaxEpisodes != 42 {
		t.Fatalf("expected option to override max episodes, got %d", cfg.MaxEpisodes)
	}
}

func TestFromEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv(EnvDurableURL, "libsql://example.turso.io")
	t.Setenv(EnvDurableToken, "secret-token")
	t.Setenv(EnvMaxEpisodes, "500")

	cfg := FromEnvironment()
	if cfg.DurableURL != "libsql://example.turso.io" {
		t.Fatalf("expected env override, got %q", cfg.DurableURL)
	}
	if cfg.MaxEpisodes != 500 {
		t.Fatalf("expected env override, got %d", cfg.MaxEpisodes)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config with auth token present, got %v", err)
	}
}

func TestValidateRejectsRemoteURLWithoutToken(t *testing.T) {
	cfg := Default(WithDurableURL("libsql://example.turso.io"))
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for remote URL without auth token")
	}
}

func TestValidateRejectsUnknownEvictionPolicy(t *testing.T) {
	cfg := Default()
	cfg.EvictionPolicy = "made-up-policy"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown eviction policy")
	}
}

func TestResolvedEvictionPolicyDefaultsToLRU(t *testing.T) {
	cfg := Default()
	if cfg.ResolvedEvictionPolicy().Name() != "lru" {
		t.Fatalf("expected lru default, got %s", cfg.ResolvedEvictionPolicy().Name())
	}
}

func TestResolvedEvictionPolicyRelevanceWeighted(t *testing.T) {
	cfg := Default()
	cfg.EvictionPolicy = "relevance_weighted"
	if cfg.ResolvedEvictionPolicy().Name() != "relevance_weighted" {
		t.Fatalf("expected relevance_weighted, got %s", cfg.ResolvedEvictionPolicy().Name())
	}
}
