package main

import (
	"log"

	corecmd "github.com/babababa22003300kaka-bot/eafc232cons/core/cmd"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/app"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return app.LoadConfig(path)
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			return app.Bootstrap(cfg)
		},
	})
	if err != nil {
		log.Fatalf("bot exited: %v", err)
	}
}
