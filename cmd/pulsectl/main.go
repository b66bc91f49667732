// Package main provides the pulsectl operator CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/p-blackswan/pulse/internal/repo"
	"github.com/p-blackswan/pulse/internal/seed"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var seedPath string

	rootCmd := &cobra.Command{
		Use:   "pulsectl",
		Short: "Inspect dashboard health offline from a seed file",
		Long: `pulsectl loads a fixture file (the built-in one by default) into an in-memory
repository and runs the scoring, aggregation and suggestion engines against it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&seedPath, "seed", "", "Path to a seed YAML file (default: built-in fixtures)")

	rootCmd.AddCommand(
		newScoreCmd(&seedPath),
		newPortfolioCmd(&seedPath),
		newSuggestCmd(&seedPath),
		newSeedCheckCmd(&seedPath),
	)
	return rootCmd
}

// loadRepo primes an in-memory repository from the seed file.
func loadRepo(ctx context.Context, path string) (*repo.MemoryRepo, *seed.File, error) {
	f, err := seed.Load(path)
	if err != nil {
		return nil, nil, err
	}
	r := repo.NewMemoryRepo()
	if err := seed.Apply(ctx, r, f); err != nil {
		return nil, nil, err
	}
	return r, f, nil
}

func cliLogger(verbose bool) zerolog.Logger {
	if !verbose {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func validateOutput(format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown output format %q (want text or json)", format)
	}
	return nil
}
