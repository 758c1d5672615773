package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd(st *rootState) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Print the verdict and exit non-zero when compromised",
		Long: `Run detection and report only the verdict.

Exit status:
  0  device looks trusted
  1  detection could not run
  2  device is compromised`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cmd, st, false)
			if err != nil {
				return &ExitError{code: ExitCodeError, message: err.Error()}
			}
			defer a.Close()

			compromised, err := a.engine.IsCompromised(ctx)
			if err != nil {
				return &ExitError{code: ExitCodeError, message: err.Error()}
			}
			if !quiet {
				verdict := "trusted"
				if compromised {
					verdict = "compromised"
				}
				fmt.Fprintln(cmd.OutOrStdout(), verdict)
			}
			if compromised {
				return &ExitError{code: ExitCodeCompromised}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print nothing; rely on the exit status")
	return cmd
}
