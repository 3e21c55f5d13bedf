package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/avbforge/avproxy/internal/aps"
	"github.com/avbforge/avproxy/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to apsctl config.toml")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg := aps.DefaultServiceConfig()
	if *configPath != "" {
		loaded, err := loadServiceConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "apsctl: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	svc := aps.NewService(cfg, nil)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "apsctl: %v\n", err)
		os.Exit(1)
	}
}
