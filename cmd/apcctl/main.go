package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/avbforge/avproxy/internal/apc"
	"github.com/avbforge/avproxy/internal/eui"
	"github.com/avbforge/avproxy/internal/frame"
	"github.com/avbforge/avproxy/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to apcctl config.toml")
	server := flag.String("server", "", "proxy server address host:port (overrides config)")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg := apc.DefaultConfig()
	if *configPath != "" {
		loaded, err := loadClientConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "apcctl: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *server != "" {
		cfg.Address = *server
	}

	client, err := apc.NewClient(cfg,
		apc.WithFrameHandler(func(f frame.Frame) {
			log.Info().Int("len", f.Len()).Msg("avdecc frame from proxy server")
		}),
		apc.WithLinkHandler(func(up bool, portMAC eui.EUI48) {
			log.Info().Bool("up", up).Str("port_mac", portMAC.String()).Msg("proxy server link state")
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "apcctl: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "apcctl: %v\n", err)
		os.Exit(1)
	}
}
