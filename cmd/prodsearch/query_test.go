package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kailas-cloud/prodsearch/internal/config"
	"github.com/kailas-cloud/prodsearch/internal/domain/catalog"
	"github.com/kailas-cloud/prodsearch/internal/domain/search/result"
)

func TestJoinIDs(t *testing.T) {
	if got := joinIDs([]int64{10, 20, 30}); got != "10,20,30" {
		t.Errorf("got %q", got)
	}
	if got := joinIDs(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestPrintHits(t *testing.T) {
	price := 129.9
	hits := []result.Hit{
		result.New(catalog.Variant{ProductID: 1, VariantID: 11, Title: "Linen Dress — Red / M", Vendor: "Acme", Price: &price}, 0.91234),
		result.New(catalog.Variant{ProductID: 2, VariantID: 21, Title: "Gift Card", Vendor: "Acme"}, 0.5),
	}

	var buf bytes.Buffer
	printHits(&buf, hits, "USD")
	out := buf.String()

	for _, want := range []string{
		"[SEARCH RESULTS]",
		"1. Linen Dress — Red / M",
		"   Product ID: 1",
		"   Variant ID: 11",
		"   Similarity: 0.912",
		"   Price: 129.90 USD",
		"2. Gift Card",
		"   Price: n/a",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintHits_Empty(t *testing.T) {
	var buf bytes.Buffer
	printHits(&buf, nil, "USD")
	if !strings.Contains(buf.String(), "No products found.") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestQueryOptions_ApplyOverrides(t *testing.T) {
	cfg := config.Config{Embedding: config.EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-small"}}

	queryOptions{provider: "local"}.applyOverrides(&cfg)
	if cfg.Embedding.Provider != "local" || cfg.Embedding.Model != "" {
		t.Errorf("provider switch should reset the model: %+v", cfg.Embedding)
	}

	queryOptions{provider: "local", model: "intfloat/multilingual-e5-small", catalog: "/tmp/c.jsonl"}.applyOverrides(&cfg)
	if cfg.Embedding.Model != "intfloat/multilingual-e5-small" || cfg.Catalog.Path != "/tmp/c.jsonl" {
		t.Errorf("overrides not applied: %+v", cfg)
	}

	before := cfg
	queryOptions{}.applyOverrides(&cfg)
	if cfg.Embedding != before.Embedding || cfg.Catalog != before.Catalog {
		t.Error("empty flags must not change the config")
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()
	for _, name := range []string{"serve", "ingest", "query", "version"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered: %v", name, err)
		}
	}
}
