package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/gitcachehq/git-cache/internal/cache"
	"github.com/gitcachehq/git-cache/internal/metrics"
)

var flagHTTPBind string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background auto-sync loop with a metrics and pprof endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		c, err := newCache()
		if err != nil {
			return err
		}

		metrics.Enable("", prometheus.DefaultRegisterer)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		server := &http.Server{
			Addr:              flagHTTPBind,
			Handler:           mux,
			ReadTimeout:       5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       5 * time.Second,
			ReadHeaderTimeout: 1 * time.Second,
		}

		go func() {
			logger.Info("starting web server", "addr", flagHTTPBind)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server terminated", "err", err)
			}
		}()

		if c.Config.AutoSync {
			go runAutoSync(ctx, c)
		}

		stop := make(chan os.Signal, 2)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		logger.Info("shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	},
}

// runAutoSync periodically invokes Sync+Repair at the configured interval
// until ctx is cancelled.
func runAutoSync(ctx context.Context, c *cache.Cache) {
	interval := c.Config.SyncInterval
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Sync(ctx); err != nil {
				logger.Error("auto-sync failed", "err", err)
			}
			if _, err := c.Repair(ctx); err != nil {
				logger.Error("auto-repair failed", "err", err)
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&flagHTTPBind, "http-bind-address", ":9001", "address the metrics/pprof web server binds to")
}
