package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kailas-cloud/prodsearch/internal/catalog"
	"github.com/kailas-cloud/prodsearch/internal/config"
	"github.com/kailas-cloud/prodsearch/internal/domain/search/request"
	"github.com/kailas-cloud/prodsearch/internal/domain/search/result"
	"github.com/kailas-cloud/prodsearch/internal/engine"
	logpkg "github.com/kailas-cloud/prodsearch/internal/logger"
	"github.com/kailas-cloud/prodsearch/internal/provider"
	recommenduc "github.com/kailas-cloud/prodsearch/internal/usecase/recommend"
)

type queryOptions struct {
	query      string
	topK       int
	provider   string
	model      string
	catalog    string
	idsOnly    bool
	noDedup    bool
	envFile    string
	verbose    bool
	noProgress bool
}

func queryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Embed the catalog and run a single search",
		Long: `Load the catalog, embed every variant and print the best matches for --query.

Examples:
  prodsearch query -q "red linen dress"
  prodsearch query -q "running shoes" --top-k 5 --ids-only
  prodsearch query -q "wool scarf" --provider local --model intfloat/multilingual-e5-small`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runQuery(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "search query")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", request.DefaultTopK, "number of results")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "embedding provider: openai or local (default from config)")
	cmd.Flags().StringVar(&opts.model, "model", "", "embedding model (default from config)")
	cmd.Flags().StringVar(&opts.catalog, "catalog", "", "path to products_rag.jsonl (default from config)")
	cmd.Flags().BoolVar(&opts.idsOnly, "ids-only", false, "print only comma-separated product IDs")
	cmd.Flags().BoolVar(&opts.noDedup, "no-deduplicate", false, "keep several variants of the same product")
	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "path to a .env file loaded before the config")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "hide the embedding progress bar")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}

// applyOverrides copies non-empty flag values into the embedding and catalog config.
func (o queryOptions) applyOverrides(cfg *config.Config) {
	if o.provider != "" {
		cfg.Embedding.Provider = o.provider
		// A provider switch invalidates the configured model.
		if o.model == "" {
			cfg.Embedding.Model = ""
		}
	}
	if o.model != "" {
		cfg.Embedding.Model = o.model
	}
	if o.catalog != "" {
		cfg.Catalog.Path = o.catalog
	}
}

func runQuery(ctx context.Context, opts queryOptions, out, errOut io.Writer) error {
	req, err := request.New(opts.query, opts.topK, !opts.noDedup)
	if err != nil {
		return err //nolint:wrapcheck // already descriptive
	}

	cfg, _, err := loadConfig(opts.envFile)
	if err != nil {
		return err
	}
	opts.applyOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	logger := logpkg.NewCLILogger(opts.verbose)
	defer func() { _ = logger.Sync() }()

	prov, err := provider.New(ctx, cfg.Embedding, nil, logger)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}
	defer closeProvider(prov, logger)

	variants, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	var engOpts []engine.Option
	if !opts.noProgress && !opts.idsOnly {
		engOpts = append(engOpts, engine.WithProgress(newProgress(errOut, len(variants))))
	}
	eng := engine.New(variants, prov, logger, engOpts...)
	if err := eng.BuildIndex(ctx, cfg.Embedding.BatchSize); err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	if opts.idsOnly {
		ids, err := eng.ProductIDs(ctx, req)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		fmt.Fprintln(out, joinIDs(ids))
		return nil
	}

	hits, err := eng.Search(ctx, req)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	currency := cfg.LLM.Currency
	if currency == "" {
		currency = recommenduc.DefaultCurrency
	}
	printHits(out, hits, currency)
	return nil
}

// newProgress draws an embedding progress bar on w.
func newProgress(w io.Writer, total int) engine.ProgressFunc {
	var mu sync.Mutex
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
	return func(done, _ int) {
		mu.Lock()
		defer mu.Unlock()
		_ = bar.Set(done)
	}
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func printHits(w io.Writer, hits []result.Hit, currency string) {
	fmt.Fprintln(w, "\n[SEARCH RESULTS]")
	if len(hits) == 0 {
		fmt.Fprintln(w, "\nNo products found.")
		return
	}
	for i := range hits {
		h := &hits[i]
		v := h.Variant()
		price := "n/a"
		if v.Price != nil {
			price = fmt.Sprintf("%.2f %s", *v.Price, currency)
		}
		fmt.Fprintf(w, "\n%d. %s\n", i+1, v.Title)
		fmt.Fprintf(w, "   Product ID: %d\n", h.ProductID())
		fmt.Fprintf(w, "   Variant ID: %d\n", h.VariantID())
		fmt.Fprintf(w, "   Similarity: %.3f\n", h.Score())
		fmt.Fprintf(w, "   Price: %s\n", price)
		fmt.Fprintf(w, "   Vendor: %s\n", v.Vendor)
	}
}
