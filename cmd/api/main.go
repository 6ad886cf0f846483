package main

import (
	"context"
	"log"

	"ledger-core/internal/pkg/components"
	"ledger-core/internal/pkg/logging"
)

func main() {
	container, err := components.New(context.Background())
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	logging.Info("ledger core api initialized successfully", map[string]interface{}{
		"port": container.GetConfig().Server.Port,
	})

	if err := container.Start(); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
