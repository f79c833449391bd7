package main

import (
	"fmt"

	"github.com/JOBOYA/ghostline/internal/config"
	"github.com/JOBOYA/ghostline/internal/logging"
	"github.com/JOBOYA/ghostline/internal/opsapi"
	"github.com/JOBOYA/ghostline/internal/replayer"
	"github.com/spf13/cobra"
)

func newReplayCommand() *cobra.Command {
	var (
		addr    string
		opsAddr string
	)
	cmd := &cobra.Command{
		Use:   "replay <file.ghostline>",
		Short: "Serve cached responses from a recorded container",
		Args:  cobra.ExactArgs(1),
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

			log, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			defer log.Sync()

			cache, err := replayer.LoadCache(args[0])
			if err != nil {
				return fmt.Errorf("loading container: %w", err)
			}
			server := replayer.NewServer(cache, log)

			ops := opsapi.NewHandlerSet(opsapi.Options{Logger: log, AdminToken: cfg.AdminToken})
			mux := newOpsMux(ops)

			ctx, cancel := signalContext()
			defer cancel()

			go runOpsServer(ctx, cfg.OpsAddr, mux, log)

			return replayer.Run(ctx, cfg.ProxyAddr, server, log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "address the replay proxy listens on (default from config)")
	cmd.Flags().StringVar(&opsAddr, "ops-addr", "", "address the ops/admin HTTP surface listens on (default from config)")
	return cmd
}
