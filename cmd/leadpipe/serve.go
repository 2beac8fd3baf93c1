package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xavierca1/lead-pipeline/internal/infra/http/handlers"
	"github.com/xavierca1/lead-pipeline/internal/infra/queue"
	"github.com/xavierca1/lead-pipeline/internal/infra/worker"
)

func serveCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingest API, the queue consumer and the background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(cmd, v)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger, true)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.serve(ctx)
		},
	}

	cmd.Flags().String("addr", "", "HTTP listen address")
	cmd.Flags().Int("concurrency", 0, "queue consumer concurrency")
	v.BindPFlag("HTTP_ADDR", cmd.Flags().Lookup("addr"))
	v.BindPFlag("WORKER_CONCURRENCY", cmd.Flags().Lookup("concurrency"))
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg

	consumerCh, err := a.rabbit.NewConsumerChannel()
	if err != nil {
		return err
	}
	consumer := queue.NewConsumer(
		consumerCh,
		a.process,
		a.events,
		a.producer,
		queue.NewThrottle(cfg.ThrottleEvents, cfg.ThrottleWindow),
		queue.ConsumerConfig{
			Concurrency: cfg.WorkerConcurrency,
			MaxAttempts: cfg.MaxAttempts,
			StepTimeout: cfg.StepTimeout,
			RetryDelay:  cfg.RetryDelay,
		},
		a.logger,
	)
	sweeper := worker.NewStaleEventSweeper(a.events, a.producer, cfg.SweepStaleAfter, cfg.SweepInterval, a.logger)
	resetter := worker.NewCounterResetWorker(a.targeting, cfg.CounterResetInterval, a.logger)

	router := handlers.NewRouter(
		handlers.NewEventHandler(a.ingest, a.status, handlers.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow), a.logger),
		handlers.NewHealthHandler(a.db, a.rabbit.Conn, Version),
		cfg.CORSAllowedOrigins,
	)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		defer consumerCh.Close()
		return consumer.Start(ctx)
	})
	g.Go(func() error {
		sweeper.Start(ctx)
		return nil
	})
	g.Go(func() error {
		resetter.Start(ctx)
		return nil
	})

	err = g.Wait()
	a.logger.Info("leadpipe stopped", zap.Error(err))
	return err
}
