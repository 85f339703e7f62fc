package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hallpass-dev/hallpass/internal/config"
	"github.com/hallpass-dev/hallpass/internal/grpcapi"
	"github.com/hallpass-dev/hallpass/internal/httpapi"
)

func serveCmd() *cobra.Command {
	var noSweep bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, gRPC health server and background sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			logger := log.New(os.Stdout, "hallpass ", log.LstdFlags|log.LUTC)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			if !noSweep {
				a.sweeper.Start(ctx)
				defer a.sweeper.Stop()
			}

			srv := httpapi.NewServer(httpapi.Dependencies{
				Logger:            logger,
				Addr:              cfg.HTTPAddr,
				PassService:       a.passes,
				GroupService:      a.groups,
				LocationService:   a.locations,
				EscalationService: a.escalation,
				EscalationConfig:  a.escalationConfig(),
				Metrics:           a.metrics,
			})

			go func() {
				logger.Printf("listening on %s", cfg.HTTPAddr)
				if err := srv.Start(); err != nil {
					logger.Printf("server error: %v", err)
					stop()
				}
			}()

			var gs *grpcapi.Server
			if cfg.GRPCAddr != "" {
				gs = grpcapi.NewServer(cfg.GRPCAddr, logger)
				go func() {
					if err := gs.Start(); err != nil {
						logger.Printf("grpc server error: %v", err)
						stop()
					}
				}()
				gs.SetServing(true)
			}

			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if gs != nil {
				gs.Shutdown(shutdownCtx)
			}
			_ = srv.Shutdown(shutdownCtx)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "Do not start the background sweeper")
	return cmd
}
