package main

import (
	"log"

	"github.com/shrey150/imessage-bots/bots/gork"
	corebootstrap "github.com/shrey150/imessage-bots/core/bootstrap"
	corecmd "github.com/shrey150/imessage-bots/core/cmd"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "configs/gork.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return gork.LoadConfig(path)
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.BotApp, error) {
			gcfg := cfg.(*gork.Config)
			if _, err := corebootstrap.Run(corebootstrap.Options{Config: gcfg.CoreConfig()}); err != nil {
				return nil, err
			}
			return gork.Bootstrap(gcfg)
		},
	})
	if err != nil {
		log.Fatalf("gork-bot: %v", err)
	}
}
