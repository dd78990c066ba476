// Package main is the entry point for the prodsearch CLI: the HTTP API server, the
// storefront ingester and a one-shot query tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/prodsearch/internal/config"
	"github.com/kailas-cloud/prodsearch/internal/version"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prodsearch",
		Short: "Semantic product search over a storefront catalog",
		Long: `prodsearch embeds every product variant of a storefront catalog and serves
cosine-similarity search and LLM-backed recommendations over HTTP.

Example usage:
  prodsearch ingest --base-url https://shop.example.com   # Pull products.json into ./out
  prodsearch serve                                       # Start the HTTP API
  prodsearch query --query "red linen dress"             # One-off search`,
		SilenceUsage: true,
	}

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(ingestCmd())
	cmd.AddCommand(queryCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get())
		},
	}
}

// loadConfig reads .env (if present) and then config/<env>.yaml.
func loadConfig(envFile string) (config.Config, string, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return config.Config{}, "", fmt.Errorf("load env file: %w", err)
	}
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		return config.Config{}, env, fmt.Errorf("load config: %w", err)
	}
	return cfg, env, nil
}
