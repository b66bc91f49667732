package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/p-blackswan/pulse/internal/suggest"
)

func newSuggestCmd(seedPath *string) *cobra.Command {
	var (
		projectID string
		limit     int
		outputFmt string
	)

	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Generate rule suggestions for a project",
		Long:  `Runs the rule table against the project's latest snapshot and prints the visible suggestions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuggest(cmd.Context(), cmd.OutOrStdout(), suggestOpts{
				seedPath:  *seedPath,
				projectID: projectID,
				limit:     limit,
				outputFmt: outputFmt,
			})
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project id (required)")
	cmd.Flags().IntVar(&limit, "limit", 3, "Number of suggestions to show")
	cmd.Flags().StringVar(&outputFmt, "output", "text", "Output format: text or json")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

type suggestOpts struct {
	seedPath  string
	projectID string
	limit     int
	outputFmt string
}

func runSuggest(ctx context.Context, w io.Writer, opts suggestOpts) error {
	if err := validateOutput(opts.outputFmt); err != nil {
		return err
	}
	if opts.limit < 1 {
		return fmt.Errorf("--limit must be at least 1")
	}
	r, _, err := loadRepo(ctx, opts.seedPath)
	if err != nil {
		return err
	}
	p, err := r.GetProject(ctx, opts.projectID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("project %q not found in seed", opts.projectID)
	}

	all, err := suggest.NewEngine(r, nil, cliLogger(false)).Generate(ctx, opts.projectID)
	if err != nil {
		return err
	}
	visible := suggest.Visible(all, opts.limit)

	if opts.outputFmt == "json" {
		return writeJSON(w, visible)
	}
	if len(visible) == 0 {
		fmt.Fprintf(w, "No suggestions for %s.\n", p.Name)
		return nil
	}
	fmt.Fprintf(w, "Suggestions for %s:\n", p.Name)
	for i, s := range visible {
		fmt.Fprintf(w, "%d. [%s] %s\n   %s\n", i+1, s.Source, s.Text, s.Rationale)
	}
	return nil
}
