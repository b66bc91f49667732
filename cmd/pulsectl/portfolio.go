package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/p-blackswan/pulse/internal/dashboard"
	"github.com/p-blackswan/pulse/internal/format"
)

func newPortfolioCmd(seedPath *string) *cobra.Command {
	var (
		focusYear string
		outputFmt string
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Print portfolio KPIs, health buckets and the monthly trend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPortfolio(cmd.Context(), cmd.OutOrStdout(), portfolioOpts{
				seedPath:  *seedPath,
				focusYear: focusYear,
				outputFmt: outputFmt,
				verbose:   verbose,
			})
		},
	}

	cmd.Flags().StringVar(&focusYear, "focus-year", "", "Prefer snapshots of this YYYY year")
	cmd.Flags().StringVar(&outputFmt, "output", "text", "Output format: text or json")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log engine activity to stderr")

	return cmd
}

type portfolioOpts struct {
	seedPath  string
	focusYear string
	outputFmt string
	verbose   bool
}

func runPortfolio(ctx context.Context, w io.Writer, opts portfolioOpts) error {
	if err := validateOutput(opts.outputFmt); err != nil {
		return err
	}
	r, _, err := loadRepo(ctx, opts.seedPath)
	if err != nil {
		return err
	}
	svc := dashboard.NewService(r, cliLogger(opts.verbose), dashboard.WithFocusYear(opts.focusYear))
	view, err := svc.Portfolio(ctx)
	if err != nil {
		return err
	}

	if opts.outputFmt == "json" {
		return writeJSON(w, view)
	}

	s := view.Summary
	fmt.Fprintf(w, "Projects: %d (%d healthy, %d at risk, %d critical)\n",
		s.TotalProjects, s.HealthyProjects, s.AtRiskProjects, s.CriticalProjects)
	fmt.Fprintf(w, "Vitals:   LCP %s  CLS %s  INP %s\n", format.LCP(s.AverageLCP), format.CLS(s.AverageCLS), format.INP(s.AverageINP))
	fmt.Fprintf(w, "Quality:  a11y %s  best practices %s  SEO %s\n",
		format.Percent(s.AverageAccessibility), format.Percent(s.AverageBestPractices), format.Percent(s.AverageSEO))
	fmt.Fprintf(w, "Flow:     throughput %s  WIP %s  quality %s  median cycle %s\n\n",
		format.Ratio(s.AverageThroughput), format.Ratio(s.AverageWIP), format.Ratio(s.AverageQuality), format.Days(s.MedianCycleTime))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tLATEST\tHEALTH\tSTATUS")
	for _, c := range view.Projects {
		latest, health := "-", "-"
		if c.Latest != nil {
			latest = format.MonthLabel(c.Latest.Month)
		}
		if c.HealthScore != nil {
			health = format.Percent(*c.HealthScore)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Project.Name, latest, health, c.Health)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(view.Trend) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MONTH\tLCP\tCLS\tINP\tA11Y\tTHROUGHPUT\tQUALITY")
	for _, p := range view.Trend {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", p.Month,
			format.LCP(p.AvgLCP), format.CLS(p.AvgCLS), format.INP(p.AvgINP),
			format.Percent(p.AvgAccessibility), format.Ratio(p.AvgThroughput), format.Ratio(p.AvgQuality))
	}
	return tw.Flush()
}
