package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hearthview/hearthview/internal/agentconfig"
	"github.com/hearthview/hearthview/internal/configsync"
)

func main() {
	configPath := flag.String("config", envOrDefault("HEARTHVIEW_AGENT_CONFIG", "hearthview-agent.toml"), "agent config file path")
	relay := flag.String("relay", strings.TrimSpace(os.Getenv("HEARTHVIEW_RELAY")), "relay base URL override")
	edit := flag.Bool("edit", boolEnv("HEARTHVIEW_EDIT", false), "start in edit mode (live channel off)")
	screen := flag.Int("screen", intEnv("HEARTHVIEW_SCREEN", -1), "initial screen index (-1 keeps the saved one)")
	local := flag.Bool("local", boolEnv("HEARTHVIEW_LOCAL", false), "point embedded widgets at local dev servers")
	stateDSN := flag.String("state", strings.TrimSpace(os.Getenv("HEARTHVIEW_STATE_DSN")), "device cache DSN override")
	transport := flag.String("transport", strings.TrimSpace(os.Getenv("HEARTHVIEW_LIVE_TRANSPORT")), "live channel transport (sse or websocket)")
	prefersDark := flag.Bool("prefers-dark", boolEnv("HEARTHVIEW_PREFERS_DARK", false), "host environment prefers a dark color scheme")
	once := flag.Bool("once", false, "bootstrap, push once, and exit")
	flag.Parse()

	cfg, err := agentconfig.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load agent config: %v", err)
	}
	if *stateDSN != "" {
		cfg.StateDSN = *stateDSN
	}
	if *transport != "" {
		cfg.LiveTransport = *transport
	}
	if *relay != "" {
		cfg.RelayURL = *relay
	}

	device, err := configsync.NewDeviceStoreFromDSN(cfg.StateDSN)
	if err != nil {
		log.Fatalf("failed to initialize device store: %v", err)
	}
	defer configsync.CloseDeviceStore(device)

	prefers := *prefersDark
	store := configsync.NewStore(configsync.StoreOptions{
		DeviceStore: device,
		PrefersDark: func() bool { return prefers },
		Logger:      log.Default(),
	})

	startup := configsync.NewStartupOptions()
	startup.Relay = cfg.RelayURL
	startup.Edit = *edit
	startup.Screen = *screen
	startup.Local = *local

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	liveTransport := configsync.TransportSSE
	if cfg.LiveTransport == "websocket" {
		liveTransport = configsync.TransportWebSocket
	}
	result := configsync.Bootstrap(rootCtx, store, configsync.BootstrapOptions{
		Startup:           startup,
		DefaultRelayURL:   cfg.DefaultRelayURL,
		DefaultConfigPath: cfg.DefaultConfigPath,
		NewClient: func(baseURL string) configsync.RelayClient {
			return configsync.NewHTTPRelayClient(baseURL, configsync.HTTPRelayClientOptions{
				Transport: liveTransport,
			})
		},
		Logger: log.Default(),
	})
	if result.Client == nil {
		log.Printf("no relay configured; running from the device cache only")
	} else {
		log.Printf("relay: %s (live channel %s)", result.RelayURL, liveState(result.LiveEnabled))
	}

	if result.Client == nil {
		if *once {
			return
		}
		<-rootCtx.Done()
		return
	}

	pending := configsync.NewPendingSaves(cfg.PendingSaveTTL.Duration)
	defer pending.Close()
	saver := configsync.NewSaver(store, result.Client, configsync.SaverOptions{
		Debounce: cfg.SaveDebounce.Duration,
		Pending:  pending,
		Logger:   log.Default(),
	})
	saver.Start()

	if *once {
		saver.Flush()
		saver.Close()
		return
	}

	if result.LiveEnabled {
		updater := configsync.NewLiveUpdater(store, result.Client, configsync.LiveUpdaterOptions{
			Pending:     pending,
			BackoffBase: cfg.BackoffBase.Duration,
			BackoffMax:  cfg.BackoffMax.Duration,
			Logger:      log.Default(),
		})
		go updater.Run(rootCtx)
	}

	<-rootCtx.Done()
	log.Printf("display agent stopping: %v", rootCtx.Err())

	// A trailing edit may still be sitting behind the debounce window.
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		saver.Flush()
		saver.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-flushCtx.Done():
		log.Printf("final config push timed out")
	}
}

func liveState(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func boolEnv(name string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	switch strings.ToLower(raw) {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func intEnv(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}
