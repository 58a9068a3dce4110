package cli

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/kilupskalvis/indexsync/internal/core"
	"github.com/kilupskalvis/indexsync/internal/metrics"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var (
	serveMetricsAddr string
	serveSchedule    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the queue worker, scheduled reindexes and metrics",
	Long: `Run indexsync as a long-lived process. It processes queued index jobs,
runs a full reindex on the configured cron schedule and serves Prometheus
metrics on /metrics.

Examples:
  indexsync serve
  indexsync serve --schedule "0 3 * * *" --metrics-addr :9464`,
	Run: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveMetricsAddr, "metrics-addr", "", "Metrics listen address, overrides config")
	f.StringVar(&serveSchedule, "schedule", "", "Cron spec for full reindexes, overrides config")
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()
	c := initFullContext()
	defer c.Close()
	logger := c.Logger

	addr := c.Config.Metrics.Addr
	if serveMetricsAddr != "" {
		addr = serveMetricsAddr
	}
	schedule := c.Config.Schedule.Reindex
	if serveSchedule != "" {
		schedule = serveSchedule
	}

	var wg sync.WaitGroup

	if c.Queue != nil {
		w := newWorker(c)
		logPending(c)
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("queue worker started", "interval", c.Config.QueueInterval())
			if err := w.Run(ctx); err != nil {
				logger.Error("queue worker stopped", "error", err)
			}
		}()
	}

	var sched *cron.Cron
	if schedule != "" {
		sched = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
		_, err := sched.AddFunc(schedule, func() { scheduledReindex(ctx, c) })
		if err != nil {
			exitError("invalid reindex schedule %q: %v", schedule, err)
		}
		sched.Start()
		logger.Info("reindex scheduled", "schedule", schedule)
	}

	var srv *http.Server
	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		srv = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("serving metrics", "listen", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
				stop()
			}
		}()
	}

	if c.Queue == nil && sched == nil && srv == nil {
		exitError("nothing to serve: enable the queue, a reindex schedule or a metrics address")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}
	if sched != nil {
		<-sched.Stop().Done()
	}
	wg.Wait()
	logger.Info("stopped")
}

// scheduledReindex runs a full reindex with a fresh engine.
func scheduledReindex(ctx context.Context, c *cmdContext) {
	if ctx.Err() != nil {
		return
	}
	svc := c.newService("reindex")
	rec := core.NewReconciler(svc, c.Store)
	start := time.Now()
	c.Logger.Info("scheduled reindex started")

	err := rec.ReindexAll(ctx, func(msg string) { c.Logger.Debug(msg) })
	if err != nil {
		c.Logger.Error("scheduled reindex failed", "error", err, "duration", time.Since(start))
		return
	}
	c.Logger.Info("scheduled reindex finished", "duration", time.Since(start), "connected", svc.Connected())
}
