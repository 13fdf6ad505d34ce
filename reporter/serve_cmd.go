package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/cimetrics/reporter/config"
	"github.com/cimetrics/reporter/web"
)

func newServeCommand() *cobra.Command {
	var (
		addr   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the rendered report and the stored history over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			switch {
			case errors.Is(err, config.ErrStoreNotConfigured):
				a.log.Warn("Metrics store is not configured, history API disabled")
			case err != nil:
				return err
			default:
				defer store.Close(ctx)
			}

			dir := a.outputDir()
			if output != "" {
				dir = output
			}

			srv := web.NewServer(addr, dir, store, a.log)
			if err := srv.Start(ctx); err != nil {
				return err
			}
			a.log.WithField("url", "http://localhost"+addr+"/report/latest").Info("Latest report")

			<-ctx.Done()
			return srv.Stop()
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "listen address")
	cmd.Flags().StringVarP(&output, "output", "o", "", "report directory (default: output_dir of metrics.yml)")
	return cmd
}
