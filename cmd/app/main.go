package main

import (
	"flag"
	"log"
	"os"

	"PivotScan/internal/di"
	"PivotScan/pkg/config"
)

func main() {
	path := flag.String("config", "config/config.yaml", "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*path)
	if err != nil {
		log.Fatalf("load config %s: %v", *path, err)
	}
	log.Printf("starting env=%s instruments=%v", cfg.Environment, cfg.Feed.Instruments)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("wire dependencies: %v", err)
	}
	log.Printf("clickhouse ready db=%s", cfg.ClickHouse.Database)
	log.Printf("kafka ready brokers=%v ticks=%s signals=%s",
		cfg.Kafka.Brokers, cfg.Kafka.TickTopic, cfg.Kafka.SignalTopic)

	if err := app.Run(); err != nil {
		log.Printf("exit: %v", err)
		os.Exit(1)
	}
}
