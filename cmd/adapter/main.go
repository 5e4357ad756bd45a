package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bcgov/showcase-traction-adapter/internal/adapter"
)

func main() {
	configPath := flag.String("config", "./config/adapter.yaml", "path to adapter config")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := adapter.New(*configPath)
	if err != nil {
		log.Printf("error: %v", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		log.Printf("adapter stopped with error: %v", err)
		os.Exit(1)
	}
}
