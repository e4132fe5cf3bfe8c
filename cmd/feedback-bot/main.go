package main

import (
	"log"

	"github.com/shrey150/imessage-bots/bots/feedback"
	corebootstrap "github.com/shrey150/imessage-bots/core/bootstrap"
	corecmd "github.com/shrey150/imessage-bots/core/cmd"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "configs/feedback.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return feedback.LoadConfig(path)
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.BotApp, error) {
			fcfg := cfg.(*feedback.Config)
			if _, err := corebootstrap.Run(corebootstrap.Options{Config: fcfg.CoreConfig()}); err != nil {
				return nil, err
			}
			return feedback.Bootstrap(fcfg)
		},
	})
	if err != nil {
		log.Fatalf("feedback-bot: %v", err)
	}
}
