package main

import (
	"flag"

	"tss-custody/internal/config"
	"tss-custody/internal/logger"
	"tss-custody/internal/node"
	"tss-custody/internal/sharecrypt"
	"tss-custody/internal/storage"
)

func main() {
	configPath := flag.String("config", "node.json", "path to the node configuration file")
	flag.Parse()

	cfg, err := config.LoadNodeConfig(*configPath)
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

	storage.InitNodeDB(cfg.Database)
	svc := node.NewService(storage.NewShareStore(storage.DB), cipher)

	router := node.SetupRouter(svc)
	logger.Log.Infof("Custodian node %s listening on %s", cfg.NodeID, cfg.ServerPort)
	if err := router.Run(cfg.ServerPort); err != nil {
		logger.Log.Fatalf("Node exited: %v", err)
	}
}
