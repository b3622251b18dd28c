package main

import (
	"flag"
	"log"

	"instagram-dispatcher/internal/api"
	"instagram-dispatcher/internal/config"
	"instagram-dispatcher/internal/storage"
	"instagram-dispatcher/internal/utils"
)

func main() {
	var (
		configFile = flag.String("config", "configs/config.yaml", "Configuration file path")
		port       = flag.String("port", "8080", "API server port")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.NewLogger(cfg.Logging.Level, "")

	db, err := storage.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	server := api.NewServer(db, logger, *port)
	if err := server.Start(); err != nil {
		logger.Fatalf("API server failed: %v", err)
	}
}
