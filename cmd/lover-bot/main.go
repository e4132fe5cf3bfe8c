package main

import (
	"log"

	"github.com/shrey150/imessage-bots/bots/lover"
	corebootstrap "github.com/shrey150/imessage-bots/core/bootstrap"
	corecmd "github.com/shrey150/imessage-bots/core/cmd"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "configs/lover.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return lover.LoadConfig(path)
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.BotApp, error) {
			lcfg := cfg.(*lover.Config)
			if _, err := corebootstrap.Run(corebootstrap.Options{Config: lcfg.CoreConfig()}); err != nil {
				return nil, err
			}
			return lover.Bootstrap(lcfg)
		},
	})
	if err != nil {
		log.Fatalf("lover-bot: %v", err)
	}
}
