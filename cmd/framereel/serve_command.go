package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"framereel/internal/daemon"
	"framereel/internal/logging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the conversion service and HTTP API",
		Long: `Run the conversion service in the foreground.

The service accepts one job at a time over the HTTP API bound to
paths.api_bind, streams job events over /api/events and /ws/status, and
records finished jobs in the history database. Stop it with Ctrl-C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d, err := daemon.New(cfg, logger, daemon.Options{})
			if err != nil {
				return fmt.Errorf("create service: %w", err)
			}
			defer d.Close()

			if err := d.Start(signalCtx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Listening on http://%s\n", d.APIAddr())

			<-signalCtx.Done()
			logger.Info("framereel service shutting down")
			return nil
		},
	}
}
