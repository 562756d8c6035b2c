package main

import (
	"context"
	"log"
	"os"

	"github.com/absmach/fedasync/fedasyncd"
	"github.com/joho/godotenv"
)

const pathEnv = ".env"

func main() {
	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg, err := fedasyncd.LoadClientConfig()
	if err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	err = fedasyncd.StartClient(ctx, cancel, cfg)
	cancel()
	if err != nil {
		log.Fatalf("client exited with error: %s", err.Error())
	}
}
