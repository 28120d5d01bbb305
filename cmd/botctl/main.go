package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/mottobotto/testflight-bot/internal/cli"
	"github.com/mottobotto/testflight-bot/internal/conf"
)

func main() {
	_ = godotenv.Load()

	defaultDB := ""
	if cfg, err := conf.LoadFromEnv(); err == nil {
		defaultDB = cfg.Store.DBPath
	}

	if err := cli.NewRootCommand(defaultDB).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
