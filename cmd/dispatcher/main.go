package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"instagram-dispatcher/internal/backend"
	"instagram-dispatcher/internal/config"
	"instagram-dispatcher/internal/dispatcher"
	"instagram-dispatcher/internal/monitoring"
	"instagram-dispatcher/internal/proxy"
	"instagram-dispatcher/internal/storage"
	"instagram-dispatcher/internal/utils"
)

func main() {
	var (
		configFile  = flag.String("config", "configs/config.yaml", "Configuration file path")
		targetsFile = flag.String("targets", "configs/targets.yaml", "Targets file path (YAML list or CSV with a name column)")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.File)

	targets, err := config.LoadTargets(*targetsFile)
	if err != nil {
		logger.Fatalf("Failed to load targets: %v", err)
	}
	if len(targets) == 0 {
		logger.Fatal("No targets to process")
	}

	// Cancel the run cleanly on Ctrl-C
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Result sink
	var sink dispatcher.Sink
	switch cfg.Dispatcher.Output {
	case "db":
		db, err := storage.NewConnection(&cfg.Database, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		if err := db.RunMigrations(); err != nil {
			logger.Fatalf("Failed to run migrations: %v", err)
		}
		sink = db
	default:
		jf, err := storage.NewJSONFile(cfg.Dispatcher.ResultsFile, logger)
		if err != nil {
			logger.Fatalf("Failed to open results file: %v", err)
		}
		sink = jf
	}
	defer sink.Close()

	creds := backend.Credentials{
		Username: cfg.Instagram.Username,
		Password: cfg.Instagram.Password,
	}

	webClient, err := backend.NewWebClient(
		creds,
		filepath.Join(cfg.Instagram.SessionDir, "web.json"),
		cfg.Instagram.UserAgent,
		time.Duration(cfg.Instagram.Timeout)*time.Second,
		logger,
	)
	if err != nil {
		logger.Fatalf("Failed to create web backend: %v", err)
	}

	browserClient := backend.NewBrowserClient(
		creds,
		filepath.Join(cfg.Instagram.SessionDir, "browser.json"),
		cfg.Instagram.UserAgent,
		logger,
	)

	backends := []backend.Client{webClient, browserClient}
	defer func() {
		for _, client := range backends {
			client.Close()
		}
	}()

	pool := proxy.NewPool(cfg.Dispatcher.Proxies)
	if pool.Empty() {
		logger.Info("No proxies configured, connecting directly")
	} else {
		logger.Infof("Loaded %d proxies", pool.Size())
	}

	seed := cfg.Dispatcher.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	monitor := monitoring.NewMonitor(logger, cfg.Dispatcher.MetricsFile)

	d := dispatcher.New(backends, pool, sink, monitor, rng, dispatcher.Config{
		MaxPosts: cfg.Dispatcher.MaxPosts,
		MinDelay: time.Duration(cfg.Dispatcher.MinDelay * float64(time.Second)),
		MaxDelay: time.Duration(cfg.Dispatcher.MaxDelay * float64(time.Second)),
	}, logger)

	logger.Infof("Dispatching %d targets across %d backends", len(targets), len(backends))

	summary, err := d.Run(ctx, targets)
	if err != nil {
		logger.Errorf("Run aborted: %v", err)
	}
	if summary != nil {
		logger.Infof("Summary: %s", summary)
	}
}
