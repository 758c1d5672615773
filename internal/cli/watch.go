package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rootsense/rootsense/internal/detect"
	"github.com/rootsense/rootsense/internal/watch"
)

func newWatchCmd(st *rootState) *cobra.Command {
	var interval time.Duration
	var changesOnly bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run detection periodically and on filesystem changes",
		Long: `Re-run detection every watch.interval and shortly after changes under
watch.paths. One line is printed per report; reports also go to history
and exports when configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := withShutdownSignals(cmd.Context())
			defer stop()

			a, err := newApp(ctx, cmd, st, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if interval <= 0 {
				interval = a.cfg.Watch.IntervalDuration()
			}
			out := cmd.OutOrStdout()
			mcfg := watch.Config{
				Evaluator: a.engine,
				Interval:  interval,
				Paths:     a.cfg.Watch.Paths,
				Debounce:  a.cfg.Watch.DebounceDuration(),
				Store:     a.reports,
				Retain:    a.cfg.History.Retain,
				Logger:    a.logger,
			}
			if changesOnly {
				mcfg.OnChange = func(_, cur *detect.Report) { printReportLine(out, cur) }
			} else {
				mcfg.OnReport = func(r *detect.Report) { printReportLine(out, r) }
			}
			mon, err := watch.New(mcfg)
			if err != nil {
				return err
			}
			if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Override watch.interval")
	cmd.Flags().BoolVar(&changesOnly, "changes", false, "Print only when the verdict changes")
	return cmd
}

func printReportLine(w io.Writer, r *detect.Report) {
	verdict := "trusted"
	if r.Verdict {
		verdict = "COMPROMISED"
	}
	var fired []string
	for _, s := range r.FiredSignals() {
		fired = append(fired, s.ID)
	}
	fmt.Fprintf(w, "%s %-11s risk=%d severity=%s fired=[%s]\n",
		r.GeneratedAt.Format(time.RFC3339), verdict, r.RiskScore, r.Severity, strings.Join(fired, ","))
}
