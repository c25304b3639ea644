package main

import (
	"flag"
	"time"

	"tss-custody/api"
	"tss-custody/internal/config"
	"tss-custody/internal/custody"
	"tss-custody/internal/engine"
	"tss-custody/internal/logger"
	"tss-custody/internal/sharecrypt"
	"tss-custody/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.InitLogger(cfg.Logger); err != nil {
		logger.Log.Fatalf("Failed to init logger: %v", err)
	}

	secret, err := config.DecodeSecret(cfg.ShareSecret)
	if err != nil {
		logger.Log.Fatalf("Invalid share secret: %v", err)
	}
	cipher, err := sharecrypt.NewCipher(secret)
	if err != nil {
		logger.Log.Fatalf("Failed to init share cipher: %v", err)
	}

	storage.InitDB(cfg.Database)
	if err := storage.SeedCatalog(storage.DB, cfg); err != nil {
		logger.Log.Fatalf("Failed to seed custody catalog: %v", err)
	}

	e := engine.New(
		storage.NewSessionStore(storage.DB),
		storage.NewWalletStore(storage.DB),
		storage.NewCustodyStore(storage.DB),
		custody.NewHTTPNodeClient(10*time.Second),
		cipher,
	)

	router := api.SetupRouter(e)
	logger.Log.Infof("Custody server listening on %s", cfg.ServerPort)
	if err := router.Run(cfg.ServerPort); err != nil {
		logger.Log.Fatalf("Server exited: %v", err)
	}
}
