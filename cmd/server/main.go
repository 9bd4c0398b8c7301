package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/journalsync/internal/logging"
	"github.com/dmitrijs2005/journalsync/internal/server"
	"github.com/dmitrijs2005/journalsync/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.NewProductionZapLogger("journalsync", cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "init failed", "error", err)
		return
	}

	app.Run(ctx)

}
