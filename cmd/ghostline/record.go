package main

import (
	"context"
	"fmt"

	"github.com/JOBOYA/ghostline/internal/config"
	"github.com/JOBOYA/ghostline/internal/events"
	"github.com/JOBOYA/ghostline/internal/logging"
	"github.com/JOBOYA/ghostline/internal/opsapi"
	"github.com/JOBOYA/ghostline/internal/recorder"
	"github.com/JOBOYA/ghostline/internal/retention"
	"github.com/spf13/cobra"
)

func newRecordCommand() *cobra.Command {
	var (
		addr      string
		opsAddr   string
		upstream  string
		outputDir string
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Start the recording proxy and capture every exchange to a container",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if addr != "" {
				cfg.ProxyAddr = addr
			}
			if opsAddr != "" {
				cfg.OpsAddr = opsAddr
			}
			if upstream != "" {
				cfg.Upstream = upstream
			}
			if outputDir != "" {
				cfg.OutputDir = outputDir
			}

			log, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			defer log.Sync()

			bus := events.NewBus()
			proxy, containerPath, err := recorder.New(cfg, log, bus)
			if err != nil {
				return fmt.Errorf("starting recording proxy: %w", err)
			}
			log.Info("recording to container", logging.String("path", containerPath))

			cleaner := retention.NewCleaner(cfg.OutputDir, retention.Policy{
				MaxRuns: cfg.RetentionMaxRuns,
				MaxAge:  cfg.RetentionMaxAge,
			}, log)

			limiter := opsapi.NewSlidingWindowLimiter(cfg.AdminRateWindow, cfg.AdminRateBurst, nil)
			ops := opsapi.NewHandlerSet(opsapi.Options{
				Logger:     log,
				AdminToken: cfg.AdminToken,
				RateLimiter: limiter,
				Stats: opsapi.StatsFunc(func() (uint64, uint64, uint64) {
					s := proxy.Stats()
					return s.FramesTotal, s.FramesDropped, s.BytesWritten
				}),
				Rotator: opsapi.RotatorFunc(func(ctx context.Context) (string, error) {
					finished, err := proxy.Rotate(ctx)
					if err != nil {
						return "", err
					}
					cleaner.RunOnce()
					return finished, nil
				}),
			})
			mux := newOpsMux(ops)

			ctx, cancel := signalContext()
			defer cancel()

			go cleaner.Run(ctx, 0)
			go runOpsServer(ctx, cfg.OpsAddr, mux, log)

			return recorder.Run(ctx, cfg.ProxyAddr, proxy, log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "address the recording proxy listens on (default from config)")
	cmd.Flags().StringVar(&opsAddr, "ops-addr", "", "address the ops/admin HTTP surface listens on (default from config)")
	cmd.Flags().StringVar(&upstream, "upstream", "", "upstream base URL to forward recorded requests to")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory containing .ghostline containers")
	return cmd
}
