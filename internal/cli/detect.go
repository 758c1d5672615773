package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rootsense/rootsense/internal/detect"
)

func newDetectCmd(st *rootState) *cobra.Command {
	var outputFormat string
	var record bool

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run every probe and print the detailed report",
		Long: `Run every registered probe once and print the detailed report.

The report lists each signal with its category, outcome and evidence, the
aggregated risk score and the verdict under the configured policy.

Use --record to also write the report to history and configured exports.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cmd, st, record)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.engine.DetailedReport(ctx)
			if err != nil {
				return fmt.Errorf("detection failed: %w", err)
			}
			if record && a.reports != nil {
				if err := a.reports.AppendReport(ctx, rep); err != nil {
					a.logger.Warn("record report", "error", err)
				}
			}
			return writeReport(cmd.OutOrStdout(), rep, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "auto", "Output format: auto, table, json, yaml")
	cmd.Flags().BoolVar(&record, "record", false, "Write the report to history and exports")
	return cmd
}

// writeReport renders r. "auto" picks table on a terminal and JSON otherwise.
func writeReport(w io.Writer, r *detect.Report, format string) error {
	if format == "auto" {
		format = "json"
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = "table"
		}
	}
	var out []byte
	var err error
	switch format {
	case "json":
		out, err = r.JSON()
	case "yaml":
		out, err = r.YAML()
	case "table":
		out = []byte(r.Table())
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
	if err != nil {
		return fmt.Errorf("format output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
