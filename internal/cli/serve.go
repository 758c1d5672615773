package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rootsense/rootsense/internal/api"
	"github.com/rootsense/rootsense/internal/server"
	"github.com/rootsense/rootsense/internal/watch"
)

func newServeCmd(st *rootState) *cobra.Command {
	var noWatch bool
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the detection API over HTTP",
		Long: `Serve the detection API over HTTP.

Endpoints:
  GET /healthz                 liveness
  GET /readyz                  probe registry built
  GET /api/v1/compromised      fresh verdict
  GET /api/v1/report           fresh detailed report (?format=yaml)
  GET /api/v1/report/latest    newest report from the watch loop
  GET /api/v1/probes           registered probes
  GET /api/v1/history          stored reports
  GET /api/v1/watch            watch loop statistics

Unless --no-watch is given the watch loop runs alongside the server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := withShutdownSignals(cmd.Context())
			defer stop()

			a, err := newApp(ctx, cmd, st, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr != "" {
				a.cfg.Server.Addr = addr
			}

			var mon *watch.Monitor
			if !noWatch {
				mon, err = watch.New(watch.Config{
					Evaluator: a.engine,
					Interval:  a.cfg.Watch.IntervalDuration(),
					Paths:     a.cfg.Watch.Paths,
					Debounce:  a.cfg.Watch.DebounceDuration(),
					Store:     a.reports,
					Retain:    a.cfg.History.Retain,
						Logger:    a.logger,
				})
				if err != nil {
					return err
				}
			}

			opts := api.Options{
				Detector: a.engine,
				History:  a.reports,
				Monitor:  mon,
				APIKey:   a.cfg.Server.APIKey,
			}
			if a.cfg.Metrics.Enabled {
				opts.Metrics = a.metrics
				opts.MetricsPath = a.cfg.Metrics.Path
			}
			srv, err := server.New(a.cfg.Server, api.NewApp(opts).Router(), a.logger)
			if err != nil {
				return err
			}
			defer srv.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "rootsense listening on %s\n", srv.Addr())

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(gctx) })
			if mon != nil {
				g.Go(func() error {
					if err := mon.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not run the watch loop")
	cmd.Flags().StringVar(&addr, "addr", "", "Override server.addr")
	return cmd
}
