package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/0xmhha/fskit/pkg/config"
	"github.com/0xmhha/fskit/pkg/disposer"
	"github.com/0xmhha/fskit/pkg/journal"
	"github.com/0xmhha/fskit/pkg/logger"
	"github.com/0xmhha/fskit/pkg/watch"
)

// errJournalDisabled is returned by commands that need the journal when
// storage.journal_path is empty.
var errJournalDisabled = errors.New("journal disabled: storage.journal_path is empty")

const metricsShutdownTimeout = 5 * time.Second

// runtime is the set of long-lived resources a command works with.
type runtime struct {
	cfg     *config.Config
	log     logger.Logger
	journal journal.Journal // nil when disabled
}

func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(o.configPath).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// runtimeResource acquires the logger and then the journal. They are
// released in the opposite order.
func runtimeResource(cfg *config.Config) disposer.Disposer[*runtime] {
	logCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Output: cfg.Logging.Output,
		Format: cfg.Logging.Format,
	}

	return disposer.FlatMap(logger.Open(logCfg), func(log logger.Logger) disposer.Disposer[*runtime] {
		return disposer.Map(journalResource(cfg, log), func(j journal.Journal) *runtime {
			return &runtime{cfg: cfg, log: log, journal: j}
		})
	})
}

func journalResource(cfg *config.Config, log logger.Logger) disposer.Disposer[journal.Journal] {
	if cfg.Storage.JournalPath == "" {
		return disposer.Pure[journal.Journal](nil)
	}
	return journal.Resource(cfg.Storage.JournalPath, journal.Options{
		Timeout:   cfg.Storage.Timeout,
		Retention: cfg.Storage.JournalRetention,
		Logger:    log.Named("journal"),
	})
}

// engineResource creates a watch engine wired to rt's journal and reg.
func engineResource(rt *runtime, reg prometheus.Registerer) disposer.Disposer[*watch.Engine] {
	return disposer.FromCloser(func() (*watch.Engine, error) {
		wcfg := rt.cfg.WatchConfig()
		wcfg.Journal = rt.journal
		wcfg.Registerer = reg

		engine, err := watch.New(wcfg, rt.log)
		if err != nil {
			return nil, fmt.Errorf("failed to create watch engine: %w", err)
		}
		return engine, nil
	})
}

// newMetricsRegistry returns a registry with the Go runtime and process
// collectors, or nil when metrics are disabled.
func newMetricsRegistry(cfg *config.Config) *prometheus.Registry {
	if !cfg.Metrics.Enabled {
		return nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// metricsServer serves reg on /metrics at addr. The listener is bound on
// acquisition so address errors surface before watching starts.
func metricsServer(addr string, reg *prometheus.Registry, log logger.Logger) disposer.Disposer[*http.Server] {
	return disposer.Of(func() (*http.Server, error) {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{
			Addr:              ln.Addr().String(),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", err)
			}
		}()

		log.Info("serving metrics", "address", srv.Addr)
		return srv, nil
	}, func(srv *http.Server) error {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}
