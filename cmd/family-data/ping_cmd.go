package main

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iota-uz/familytree/modules/family/infrastructure/persistence"
	"github.com/iota-uz/familytree/pkg/configuration"
)

type pingOptions struct {
	backend string
}

func newPingCmd(c *cli) *cobra.Command {
	var opts pingOptions

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check the backend connection and report the member store",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := c.config()
			if err != nil {
				return err
			}
			return runPing(cmd.Context(), cmd.OutOrStdout(), conf, commandLogger(conf), opts)
		},
	}

	cmd.Flags().StringVar(&opts.backend, "backend", "", "Backend: mongo|postgres (default: STORAGE_BACKEND)")
	return cmd
}

type pingSummary struct {
	Result string `json:"status"`
	persistence.Status
}

func runPing(ctx context.Context, out io.Writer, conf *configuration.Configuration, log *logrus.Entry, opts pingOptions) error {
	backend, err := resolveBackend(opts.backend, conf)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, conf, log, storeOptions{backend: backend})
	if err != nil {
		return err
	}
	defer closeStore(store, log)

	return ping(ctx, out, store)
}

func ping(ctx context.Context, out io.Writer, p persistence.Pinger) error {
	if err := p.Ping(ctx); err != nil {
		return withCode(exitDB, err)
	}
	st, err := p.Inspect(ctx)
	if err != nil {
		return withCode(exitDB, err)
	}
	return writeJSONLine(out, pingSummary{Result: "ok", Status: st})
}
