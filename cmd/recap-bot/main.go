package main

import (
	"log"

	"github.com/shrey150/imessage-bots/bots/recap"
	corebootstrap "github.com/shrey150/imessage-bots/core/bootstrap"
	corecmd "github.com/shrey150/imessage-bots/core/cmd"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "configs/recap.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return recap.LoadConfig(path)
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.BotApp, error) {
			rcfg := cfg.(*recap.Config)
			res, err := corebootstrap.Run(corebootstrap.Options{
				Config: rcfg.CoreConfig(),
				Store:  &rcfg.Store,
			})
			if err != nil {
				return nil, err
			}
			return recap.Bootstrap(rcfg, res.Store)
		},
	})
	if err != nil {
		log.Fatalf("recap-bot: %v", err)
	}
}
