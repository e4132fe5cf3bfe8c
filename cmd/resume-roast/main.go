package main

import (
	"log"

	"github.com/shrey150/imessage-bots/bots/roast"
	corebootstrap "github.com/shrey150/imessage-bots/core/bootstrap"
	corecmd "github.com/shrey150/imessage-bots/core/cmd"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "configs/roast.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return roast.LoadConfig(path)
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.BotApp, error) {
			rcfg := cfg.(*roast.Config)
			if _, err := corebootstrap.Run(corebootstrap.Options{Config: rcfg.CoreConfig()}); err != nil {
				return nil, err
			}
			return roast.Bootstrap(rcfg)
		},
	})
	if err != nil {
		log.Fatalf("resume-roast: %v", err)
	}
}
