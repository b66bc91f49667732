package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/p-blackswan/pulse/internal/format"
	"github.com/p-blackswan/pulse/internal/models"
	"github.com/p-blackswan/pulse/internal/scoring"
)

func newScoreCmd(seedPath *string) *cobra.Command {
	var (
		projectID string
		month     string
		outputFmt string
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score each project's snapshot",
		Long:  `Prints the Core Web Vitals score, vital bands and health classification of each project.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd.Context(), cmd.OutOrStdout(), scoreOpts{
				seedPath:  *seedPath,
				projectID: projectID,
				month:     month,
				outputFmt: outputFmt,
			})
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Only score this project")
	cmd.Flags().StringVar(&month, "month", "", "Score this YYYY-MM snapshot instead of the latest")
	cmd.Flags().StringVar(&outputFmt, "output", "text", "Output format: text or json")

	return cmd
}

type scoreOpts struct {
	seedPath  string
	projectID string
	month     string
	outputFmt string
}

// ScoreRow is one project's score line.
type ScoreRow struct {
	ProjectID   string               `json:"projectId"`
	Month       models.Month         `json:"month,omitempty"`
	CWVScore    float64              `json:"cwvScore"`
	Bands       scoring.VitalBands   `json:"bands"`
	HealthScore float64              `json:"healthScore"`
	Health      models.HealthStatus  `json:"health"`
	Vitals      models.CoreWebVitals `json:"vitals"`
}

func runScore(ctx context.Context, w io.Writer, opts scoreOpts) error {
	if err := validateOutput(opts.outputFmt); err != nil {
		return err
	}
	var month models.Month
	if opts.month != "" {
		m, err := models.ParseMonth(opts.month)
		if err != nil {
			return err
		}
		month = m
	}

	r, _, err := loadRepo(ctx, opts.seedPath)
	if err != nil {
		return err
	}
	projects, err := r.ListProjects(ctx)
	if err != nil {
		return err
	}

	rows := []ScoreRow{}
	for _, p := range projects {
		if opts.projectID != "" && p.ID != opts.projectID {
			continue
		}
		var snap *models.ProjectMetrics
		if month == "" {
			snap, err = r.GetLatestMetrics(ctx, p.ID)
			if err != nil {
				return err
			}
		} else {
			ms, err := r.GetProjectMetrics(ctx, p.ID, month)
			if err != nil {
				return err
			}
			if len(ms) > 0 {
				snap = &ms[0]
			}
		}
		row := ScoreRow{ProjectID: p.ID, Health: scoring.HealthStatus(snap)}
		if snap != nil {
			row.Month = snap.Month
			row.Vitals = snap.Perf.CoreWebVitals
			row.CWVScore = scoring.CWVScore(snap.Perf.CoreWebVitals)
			row.Bands = scoring.Bands(snap.Perf.CoreWebVitals)
			row.HealthScore = scoring.HealthScore(*snap)
		}
		rows = append(rows, row)
	}
	if opts.projectID != "" && len(rows) == 0 {
		return fmt.Errorf("project %q not found in seed", opts.projectID)
	}

	if opts.outputFmt == "json" {
		return writeJSON(w, rows)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tMONTH\tLCP\tCLS\tINP\tCWV\tHEALTH\tSTATUS")
	for _, row := range rows {
		if row.Month == "" {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t-\t%s\n", row.ProjectID, row.Health)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s (%s)\t%s (%s)\t%s (%s)\t%.0f\t%s\t%s\n",
			row.ProjectID, row.Month,
			format.LCP(row.Vitals.LCP), row.Bands.LCP,
			format.CLS(row.Vitals.CLS), row.Bands.CLS,
			format.INP(row.Vitals.INP), row.Bands.INP,
			row.CWVScore, format.Percent(row.HealthScore), row.Health)
	}
	return tw.Flush()
}
