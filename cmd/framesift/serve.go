package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kikiluvv/framesift/internal/config"
	"github.com/kikiluvv/framesift/internal/expose"
	"github.com/kikiluvv/framesift/internal/logging"
	"github.com/kikiluvv/framesift/internal/pipeline"
	"github.com/kikiluvv/framesift/internal/provider"
	"github.com/kikiluvv/framesift/internal/server"
	"github.com/kikiluvv/framesift/internal/telemetry"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.FromContext(ctx)
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		logger := logging.WithComponent("serve")

		shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("failed to flush traces")
			}
		}()

		p, err := pipeline.NewFromConfig(ctx, logger, cfg)
		if err != nil {
			return err
		}

		prov, err := provider.DefaultRegistry().Resolve(logger, cfg.Provider)
		if err != nil {
			log.Warn().Err(err).Msg("provider unavailable, prompts will be rejected")
			prov = nil
		}

		if sweeper, ok := p.Sink().(expose.Sweeper); ok && cfg.Expose.Retention > 0 {
			scheduler, err := expose.NewScheduler(logger, sweeper, cfg.Expose.SweepSchedule, cfg.Expose.Retention)
			if err != nil {
				return err
			}
			scheduler.Start()
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := scheduler.Stop(stopCtx); err != nil {
					log.Warn().Err(err).Msg("retention sweep still running at shutdown")
				}
			}()
		}

		return server.New(logger, cfg, p, prov).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}
