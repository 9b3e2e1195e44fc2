package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ricirt/job-harvester/internal/api"
	"github.com/ricirt/job-harvester/internal/metrics"
	"github.com/ricirt/job-harvester/internal/service"
	"github.com/ricirt/job-harvester/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and drain the queue every RUN_INTERVAL",
	Long: `serve exposes the producer API, status and Prometheus metrics, and runs
the processor on start and then every RUN_INTERVAL. SIGINT or SIGTERM stops
accepting requests, lets the current item finish and exits.`,
	Args: cobra.NoArgs,
	RunE: serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, _ []string) error {
	setupCtx := cmd.Context()
	a, err := newApp(setupCtx, true)
	if err != nil {
		return err
	}
	defer a.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	proc, err := a.processor(setupCtx, m.ProcessorHooks())
	if err != nil {
		return err
	}

	svc := service.NewQueueService(a.store, a.logger.Named("service"))
	router := api.NewRouter(svc, func() string { return proc.State().String() }, reg, a.logger.Named("http"))
	srv := &http.Server{
		Addr:         ":" + a.cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
	}

	scheduler := worker.NewSchedulerWorker(proc, a.store, a.cfg.BatchSize, a.cfg.RunInterval,
		m.SetQueueDepth, a.logger.Named("scheduler"))

	ctx, stop := signalContext(a.logger)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("server stopped cleanly")
	return nil
}
