package embedding

import (
	"context"
	"errors"
	"testing"
)

func TestHashFallbackProviderIsDeterministic(t *testing.T) {
	p := NewHashFallbackProvider(16)
	a, err := p.Embed(context.Background(), "fix invoice rounding error")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := p.Embed(context.Background(), "fix invoice rounding error")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a) != 16 || len(b) != 16 {
		t.Fatalf("expected dimension 16, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected identical vectors for identical input, diverged at %d: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestHashFallbackProviderDiffersForDifferentText(t *testing.T) {
	p := NewHashFallbackProvider(16)
	a, _ := p.Embed(context.Background(), "alpha")
	b, _ := p.Embed(context.Background(), "beta")
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("expected different text to produce different vectors")
	}
}

func TestHashFallbackProviderMinimumDimension(t *testing.T) {
	p := NewHashFallbackProvider(2)
	if p.Dimension() != 8 {
		t.Fatalf("expected dimension floor of 8, got %d", p.Dimension())
	}
}

func TestHashFallbackEmbedBatchMatchesIndividualEmbed(t *testing.T) {
	p := NewHashFallbackProvider(8)
	texts := []string{"one", "two", "three"}
	batch, err := p.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, text := range texts {
		single, _ := p.Embed(context.Background(), text)
		for j := range single {
			if single[j] != batch[i][j] {
				t.Fatalf("batch result for %q diverged from individual embed", text)
			}
		}
	}
}

func TestOrchestratorStartsInFallbackModeWithNilPrimary(t *testing.T) {
	o := New(nil, nil)
	if !o.UsingFallback() {
		t.Fatal("expected fallback mode with no primary provider configured")
	}
	if _, err := o.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error embedding in fallback mode: %v", err)
	}
}

type failingProvider struct{}

func (failingProvider) Name() string   { return "failing" }
func (failingProvider) Dimension() int { return 8 }
func (failingProvider) Embed(ctx context.Context, text string) (Vector, error) {
	return nil, errors.New("provider unavailable")
}
func (failingProvider) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	return nil, errors.New("provider unavailable")
}

func TestOrchestratorDemotesToFallbackOnProviderError(t *testing.T) {
	o := New(failingProvider{}, nil)
	if o.UsingFallback() {
		t.Fatal("expected to start in primary mode")
	}
	v, err := o.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("expected fallback to recover from primary error, got %v", err)
	}
	if len(v) == 0 {
		t.Fatal("expected a non-empty fallback vector")
	}
	if !o.UsingFallback() {
		t.Fatal("expected orchestrator to have demoted to fallback mode")
	}
}

func TestOrchestratorCachesRepeatedEmbeds(t *testing.T) {
	o := New(nil, nil)
	if _, err := o.Embed(context.Background(), "repeat me"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := o.Embed(context.Background(), "repeat me"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.CacheSize() != 1 {
		t.Fatalf("expected 1 cached entry for one distinct text, got %d", o.CacheSize())
	}
}

func TestOrchestratorEmbedBatchUsesCacheForHits(t *testing.T) {
	o := New(nil, nil)
	if _, err := o.Embed(context.Background(), "cached"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	results, err := o.EmbedBatch(context.Background(), []string{"cached", "fresh"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 || len(results[0]) == 0 || len(results[1]) == 0 {
		t.Fatalf("expected both batch entries populated, got %+v", results)
	}
	if o.CacheSize() != 2 {
		t.Fatalf("expected cache to grow to 2 entries, got %d", o.CacheSize())
	}
}

func TestOrchestratorClearCache(t *testing.T) {
	o := New(nil, nil)
	o.Embed(context.Background(), "x")
	o.ClearCache()
	if o.CacheSize() != 0 {
		t.Fatalf("expected empty cache after ClearCache, got %d", o.CacheSize())
	}
}
