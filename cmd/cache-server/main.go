package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leonardcser/wikicache/internal/cache"
	"github.com/leonardcser/wikicache/internal/config"
	"github.com/leonardcser/wikicache/internal/logger"
	"github.com/leonardcser/wikicache/internal/metrics"
	"github.com/leonardcser/wikicache/internal/store"
)

func main() {
	_ = godotenv.Load()
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("%v", err)
		panic(err)
	}

	backend, err := openBackend(cfg)
	if err != nil {
		logger.Errorf("open %s store: %v", cfg.Store, err)
		panic(err)
	}
	defer backend.Close()

	// Ensure socket dir exists and remove stale socket
	_ = os.MkdirAll(filepath.Dir(cfg.SocketPath), 0o755)
	_ = os.Remove(cfg.SocketPath)

	l, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		logger.Errorf("listen %s: %v", cfg.SocketPath, err)
		panic(err)
	}
	_ = os.Chmod(cfg.SocketPath, 0o600)
	logger.Infof("Cache daemon listening on %s (store=%s, ttl=%s)", cfg.SocketPath, cfg.Store, cfg.TTL)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	manager := cache.NewManager(backend, cache.Options{TTL: cfg.TTL, Metrics: metrics.New(reg)})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cache.NewSweeper(manager, cfg.SweepInterval).Run(ctx)
	}()

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("metrics server: %v", err)
			}
		}()
		logger.Infof("Serving metrics on %s/metrics", cfg.MetricsAddr)
	}

	go func() {
		<-ctx.Done()
		logger.Infof("Shutting down cache daemon")
		_ = l.Close()
	}()

	if err := store.Serve(l, backend); err != nil {
		logger.Errorf("serve: %v", err)
	}
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	wg.Wait()
	_ = os.Remove(cfg.SocketPath)
}

// openBackend opens the durable store the daemon owns. The daemon cannot
// serve itself, so "remote" falls back to bolt.
func openBackend(cfg *config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StoreSQL:
		return store.OpenSQL(cfg.DatabaseURL)
	case config.StoreMemory:
		return store.NewMemory(), nil
	default:
		_ = os.MkdirAll(filepath.Dir(cfg.BoltPath), 0o755)
		return store.OpenBolt(cfg.BoltPath, store.BoltOptions{Bucket: "articles"})
	}
}
