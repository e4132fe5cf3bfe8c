package main

import (
	"context"
	"log"

	"github.com/shrey150/imessage-bots/bots/meeting"
	corebootstrap "github.com/shrey150/imessage-bots/core/bootstrap"
	corecmd "github.com/shrey150/imessage-bots/core/cmd"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "configs/meeting.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return meeting.LoadConfig(path)
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.BotApp, error) {
			mcfg := cfg.(*meeting.Config)
			if _, err := corebootstrap.Run(corebootstrap.Options{Config: mcfg.CoreConfig()}); err != nil {
				return nil, err
			}
			return meeting.Bootstrap(context.Background(), mcfg)
		},
	})
	if err != nil {
		log.Fatalf("meeting-scheduler: %v", err)
	}
}
