package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newSeedCheckCmd(seedPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-check",
		Short: "Validate a seed file and load it into a scratch repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeedCheck(cmd.Context(), cmd.OutOrStdout(), *seedPath)
		},
	}
}

func runSeedCheck(ctx context.Context, w io.Writer, path string) error {
	_, f, err := loadRepo(ctx, path)
	if err != nil {
		return fmt.Errorf("seed check failed: %w", err)
	}
	source := path
	if source == "" {
		source = "built-in fixtures"
	}
	fmt.Fprintf(w, "%s: ok (%d projects, %d snapshots, %d incidents)\n",
		source, len(f.Projects), len(f.Metrics), len(f.Incidents))
	return nil
}
