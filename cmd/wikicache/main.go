package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/leonardcser/wikicache/internal/cache"
	"github.com/leonardcser/wikicache/internal/config"
	"github.com/leonardcser/wikicache/internal/fetch"
	"github.com/leonardcser/wikicache/internal/logger"
	"github.com/leonardcser/wikicache/internal/metrics"
	"github.com/leonardcser/wikicache/internal/store"
	"github.com/leonardcser/wikicache/internal/tracing"
	"github.com/leonardcser/wikicache/internal/web"
)

func main() {
	sweep := flag.Bool("sweep", false, "remove expired records and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: wikicache [-sweep] URL...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if !*sweep && flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	os.Exit(run(*sweep, flag.Args()))
}

func run(sweep bool, urls []string) int {
	_ = godotenv.Load()
	if err := logger.InitFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer logger.Close()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := tracing.Init(ctx, "wikicache", cfg.OTELEndpoint, cfg.OTELEnabled)
	if err != nil {
		logger.Warnf("tracing disabled: %v", err)
	} else {
		defer func() { _ = shutdown(context.Background()) }()
	}

	s, err := openStore(cfg)
	if err != nil {
		// The cache is an optimisation; fall back to fetching every time.
		logger.Errorf("open %s store: %v, continuing without persistence", cfg.Store, err)
		s = store.NewMemory()
	}
	defer s.Close()

	m := metrics.New(prometheus.NewRegistry())
	manager := cache.NewManager(s, cache.Options{TTL: cfg.TTL, Metrics: m})

	if sweep {
		n, err := manager.Sweep()
		if err != nil {
			fmt.Fprintf(os.Stderr, "sweep: %v\n", err)
			return 1
		}
		fmt.Printf("removed %d expired records\n", n)
		return 0
	}

	orch := fetch.New(manager, fetch.Options{Coalesce: cfg.Coalesce, Metrics: m})
	fetcher := web.NewFetcher(web.Options{Timeout: cfg.FetchTimeout, RequestsPerSecond: cfg.FetchRPS})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	status := 0
	for _, raw := range urls {
		key, err := web.NormalizeURL(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", raw, err)
			status = 1
			continue
		}
		v, err := orch.Resolve(ctx, key, fetcher)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			status = 1
			continue
		}
		a, err := web.DecodeArticle(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: decode cached article: %v\n", key, err)
			status = 1
			continue
		}
		_ = enc.Encode(a)
	}
	return status
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return store.NewMemory(), nil
	case config.StoreSQL:
		if !store.IsPostgresDSN(cfg.DatabaseURL) {
			if err := ensureParentDir(cfg.DatabaseURL); err != nil {
				return nil, err
			}
		}
		return store.OpenSQL(cfg.DatabaseURL)
	case config.StoreRemote:
		return connectRemote(cfg.SocketPath)
	default:
		if err := ensureParentDir(cfg.BoltPath); err != nil {
			return nil, err
		}
		return store.OpenBolt(cfg.BoltPath, store.BoltOptions{Bucket: "articles"})
	}
}

// connectRemote connects to the cache daemon, starting it if needed.
func connectRemote(sock string) (store.Store, error) {
	client := store.NewClient(sock)
	logger.Infof("Attempting to connect to cache daemon at %s", sock)
	err := client.Ping()
	if err == nil {
		return client, nil
	}
	logger.Warnf("Failed to connect to cache daemon: %v, attempting to start daemon", err)
	if err := startCacheDaemon(); err != nil {
		return nil, fmt.Errorf("start cache daemon: %w", err)
	}
	// wait for socket to appear
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err = client.Ping(); err == nil {
			logger.Infof("Successfully connected to cache daemon")
			return client, nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return nil, fmt.Errorf("cache daemon did not come up: %w", err)
}

func startCacheDaemon() error {
	candidates := []string{}
	// 1) cache binary next to this executable
	if exePath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exePath), "wikicache-server"))
	}
	// 2) PATH binary
	if path, err := exec.LookPath("wikicache-server"); err == nil {
		candidates = append(candidates, path)
	}
	// 3) current working directory
	candidates = append(candidates, "./wikicache-server")

	for _, bin := range candidates {
		if _, err := os.Stat(bin); err != nil {
			continue
		}
		cmd := exec.Command(bin)
		cmd.Env = os.Environ()
		return cmd.Start()
	}
	return exec.ErrNotFound
}

func ensureParentDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
