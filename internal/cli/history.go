package cli

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rootsense/rootsense/internal/detect"
	"github.com/rootsense/rootsense/internal/store"
	"github.com/rootsense/rootsense/internal/store/sqlite"
)

func newHistoryCmd() *cobra.Command {
	var (
		dbPath       string
		limit        int
		compromised  bool
		since        time.Duration
		probeID      string
		minSeverity  string
		outputFormat string
		stats        bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored reports",
		Long: `Show reports stored in the history database, newest first.

With --stats, print how often each probe has fired instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if dbPath == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				dbPath = cfg.History.SQLitePath
			}
			db, err := sqlite.Open(dbPath)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer db.Close()

			if stats {
				counts, err := db.FiredCounts(ctx)
				if err != nil {
					return err
				}
				return printFiredCounts(cmd, counts)
			}

			sev, err := detect.ParseSeverity(minSeverity)
			if err != nil {
				return err
			}
			q := store.ReportQuery{
				Limit:           limit,
				CompromisedOnly: compromised,
				FiredProbe:      probeID,
				MinSeverity:     sev,
			}
			if since > 0 {
				t := time.Now().UTC().Add(-since)
				q.Since = &t
			}
			reports, err := db.QueryReports(ctx, q)
			if err != nil {
				return err
			}

			switch outputFormat {
			case "json":
				if reports == nil {
					reports = []*detect.Report{}
				}
				return printJSON(cmd, reports)
			case "table":
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tVERDICT\tRISK\tSEVERITY\tFIRED")
				for _, r := range reports {
					var fired []string
					for _, s := range r.FiredSignals() {
						fired = append(fired, s.ID)
					}
					fmt.Fprintf(tw, "%s\t%t\t%d\t%s\t%s\n",
						r.GeneratedAt.Format(time.RFC3339), r.Verdict, r.RiskScore, r.Severity, strings.Join(fired, ","))
				}
				return tw.Flush()
			default:
				return fmt.Errorf("unknown output format: %s", outputFormat)
			}
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "History database (default: history.sqlite_path)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum reports to show")
	cmd.Flags().BoolVar(&compromised, "compromised", false, "Only compromised reports")
	cmd.Flags().DurationVar(&since, "since", 0, "Only reports newer than this, e.g. 24h")
	cmd.Flags().StringVar(&probeID, "probe", "", "Only reports in which this probe fired")
	cmd.Flags().StringVar(&minSeverity, "min-severity", "", "Minimum severity: low|medium|high|critical")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json")
	cmd.Flags().BoolVar(&stats, "stats", false, "Print per-probe fire counts")
	return cmd
}

func printFiredCounts(cmd *cobra.Command, counts map[string]int) error {
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROBE\tFIRED")
	for _, id := range ids {
		fmt.Fprintf(tw, "%s\t%d\n", id, counts[id])
	}
	return tw.Flush()
}
