package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/prodsearch/internal/ingest"
	logpkg "github.com/kailas-cloud/prodsearch/internal/logger"
)

const (
	ragFile = "products_rag.jsonl"
	sotFile = "products_sot.jsonl"
)

// errFetchIncomplete makes the command exit non-zero after files were still written.
var errFetchIncomplete = errors.New("finished with errors; output may be incomplete")

type ingestOptions struct {
	baseURL   string
	outDir    string
	perPage   int
	sleep     time.Duration
	maxPages  int
	timeout   time.Duration
	userAgent string
	verbose   bool
}

func (o ingestOptions) validate() error {
	switch {
	case o.baseURL == "":
		return errors.New("--base-url is required")
	case o.perPage <= 0:
		return errors.New("--per-page must be a positive integer")
	case o.maxPages <= 0:
		return errors.New("--max-pages must be a positive integer")
	case o.timeout <= 0:
		return errors.New("--timeout must be a positive duration")
	case o.sleep < 0:
		return errors.New("--sleep must be zero or a positive duration")
	}
	return nil
}

func ingestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch a storefront's products.json into catalog JSONL files",
		Long: `Page through {base-url}/products.json and write two files into --outdir:
  products_rag.jsonl  one record per variant, the input of serve and query
  products_sot.jsonl  one snapshot per product with aggregated colors and sizes

Exits with status 1 when any page failed, even though the files are written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIngest(ctx, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "storefront base URL, e.g. https://shop.example.com")
	cmd.Flags().StringVar(&opts.outDir, "outdir", "./out", "output directory")
	cmd.Flags().IntVar(&opts.perPage, "per-page", ingest.DefaultPerPage, "products per page")
	cmd.Flags().DurationVar(&opts.sleep, "sleep", ingest.DefaultSleep, "pause between pages")
	cmd.Flags().IntVar(&opts.maxPages, "max-pages", ingest.DefaultMaxPages, "maximum number of pages")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", ingest.DefaultTimeout, "per-request timeout")
	cmd.Flags().StringVar(&opts.userAgent, "user-agent", ingest.DefaultUserAgent, "User-Agent header")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log every page")
	_ = cmd.MarkFlagRequired("base-url")

	return cmd
}

func runIngest(ctx context.Context, opts ingestOptions, out io.Writer) error {
	logger := logpkg.NewCLILogger(opts.verbose)
	defer func() { _ = logger.Sync() }()

	client, err := ingest.NewClient(ingest.Config{
		BaseURL:   opts.baseURL,
		PerPage:   opts.perPage,
		Sleep:     opts.sleep,
		MaxPages:  opts.maxPages,
		Timeout:   opts.timeout,
		UserAgent: opts.userAgent,
		Logger:    logger,
	})
	if err != nil {
		return err //nolint:wrapcheck // already descriptive
	}

	fmt.Fprintf(out, "Fetching %s...\n", opts.baseURL)
	res, err := client.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	rag, sot := ingest.BuildRows(res.Products)

	ragPath := filepath.Join(opts.outDir, ragFile)
	sotPath := filepath.Join(opts.outDir, sotFile)
	if err := ingest.WriteJSONL(ragPath, rag); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	if err := ingest.WriteJSONL(sotPath, sot); err != nil {
		return fmt.Errorf("write snapshots: %w", err)
	}

	logger.Info("ingest finished",
		zap.Int("products", len(res.Products)),
		zap.Int("variants", len(rag)),
		zap.Bool("had_errors", res.HadErrors),
	)
	fmt.Fprintf(out, "Wrote %d variant rows to %s\n", len(rag), ragPath)
	fmt.Fprintf(out, "Wrote %d product snapshots to %s\n", len(sot), sotPath)

	if res.HadErrors {
		return errFetchIncomplete
	}
	return nil
}
