package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/gookit/color"
	"github.com/sirupsen/logrus"

	"instagram-dispatcher/internal/config"
	"instagram-dispatcher/internal/monitoring"
	"instagram-dispatcher/internal/storage"
)

func main() {
	var (
		configFile  = flag.String("config", "configs/config.yaml", "Configuration file path")
		metricsFile = flag.String("metrics", "data/metrics.json", "Metrics file path")
		report      = flag.Bool("report", false, "Generate and display monitoring report")
		alerts      = flag.Bool("alerts", false, "Check and display alerts")
	)
	flag.Parse()

	// Setup logger
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize monitor
	monitor := monitoring.NewMonitor(logger, *metricsFile)

	if *report {
		// Generate and display report
		fmt.Println(monitor.GenerateReport())

		// Also show database stats when the database sink is in use
		if cfg.Dispatcher.Output == "db" {
			db, err := storage.NewConnection(&cfg.Database, logger)
			if err != nil {
				logger.Fatalf("Failed to connect to database: %v", err)
			}
			defer db.Close()

			stats, err := db.GetStats()
			if err != nil {
				logger.Errorf("Failed to get database stats: %v", err)
			} else {
				fmt.Println("\nDatabase Statistics:")
				fmt.Printf("- Total Actions: %v\n", stats["total_actions"])
				fmt.Printf("- Failed Actions: %v\n", stats["failed_actions"])
				fmt.Printf("- Total Profiles: %v\n", stats["total_profiles"])
				fmt.Printf("- Total Posts: %v\n", stats["total_posts"])
				fmt.Printf("- Last Action: %v\n", stats["last_action_at"])
			}
		}
		return
	}

	if *alerts {
		// Check and display alerts
		alertManager := monitoring.NewAlertManager(monitor, logger)
		alerts := alertManager.CheckAlerts()

		if len(alerts) == 0 {
			color.Green.Println("No alerts - system is healthy")
		} else {
			color.Yellow.Println("Active Alerts:")
			for _, alert := range alerts {
				color.Red.Printf("  - %s\n", alert)
			}
		}
		return
	}

	// Default: show current status
	health := monitor.GetHealthStatus()
	fmt.Println("Account Action Dispatcher Status:")
	if health["status"] == "healthy" {
		color.Green.Printf("- Status: %s\n", health["status"])
	} else {
		color.Yellow.Printf("- Status: %s\n", health["status"])
	}
	fmt.Printf("- Last Action: %s\n", health["last_action"])
	fmt.Printf("- Total Actions: %v\n", health["total_actions"])
	fmt.Printf("- Error Rate: %s\n", health["error_rate"])
	fmt.Printf("- Average Latency: %s\n", health["average_latency"])

	if warning, exists := health["warning"]; exists {
		color.Yellow.Printf("- Warning: %s\n", warning)
	}
}
