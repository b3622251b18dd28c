package main

import (
	"context"
	"flag"
	"log"
	"path/filepath"
	"time"

	"github.com/gookit/color"

	"instagram-dispatcher/internal/backend"
	"instagram-dispatcher/internal/config"
	"instagram-dispatcher/internal/utils"
)

// check-session validates the persisted session of each backend without
// dispatching any actions.
func main() {
	configFile := flag.String("config", "configs/config.yaml", "Configuration file path")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.NewLogger(cfg.Logging.Level, "")

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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ok := true
	for _, client := range []backend.Client{webClient, browserClient} {
		if err := client.RestoreSession(ctx); err != nil {
			color.Red.Printf("%s: session invalid: %v\n", client.Name(), err)
			ok = false
		} else {
			color.Green.Printf("%s: session valid\n", client.Name())
		}
		client.Close()
	}

	if ok {
		color.Green.Println("All sessions are valid")
	} else {
		color.Yellow.Println("Run the dispatcher to refresh invalid sessions")
	}
}
