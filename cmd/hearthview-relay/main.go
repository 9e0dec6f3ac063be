package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hearthview/hearthview/internal/httpapi"
	"github.com/hearthview/hearthview/internal/relayhub"
	"github.com/hearthview/hearthview/internal/statestore"
)

func main() {
	addr := os.Getenv("HEARTHVIEW_ADDR")
	if addr == "" {
		addr = ":8000"
	}
	backend, err := buildStateBackendFromEnv()
	if err != nil {
		log.Fatalf("failed to initialize state backend: %v", err)
	}
	if backend == nil {
		backend = statestore.NewJSONFileBackend("hearthview-config.json")
	}
	defer statestore.Close(backend)

	service, err := relayhub.NewService(relayhub.ServiceOptions{
		Backend:           backend,
		Hub:               relayhub.NewHub(intEnv("HEARTHVIEW_SUBSCRIBER_QUEUE_SIZE", 0), log.Default()),
		Logger:            log.Default(),
		SuppressionWindow: durationEnv("HEARTHVIEW_SUPPRESSION_WINDOW", 0),
	})
	if err != nil {
		log.Fatalf("failed to initialize config service: %v", err)
	}
	server := httpapi.NewServerWithConfig(service, httpapi.ServerConfig{
		KeepaliveInterval: durationEnv("HEARTHVIEW_KEEPALIVE_INTERVAL", 0),
		MaxBodyBytes:      int64Env("HEARTHVIEW_MAX_BODY_BYTES", 0),
	})

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := service.WatchBackendFile(rootCtx); err != nil {
		log.Printf("config file watcher unavailable: %v", err)
	}

	httpServer := &http.Server{Addr: addr, Handler: server}
	go func() {
		<-rootCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("hearthview relay listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server failed: %v", err)
	}
}

func buildStateBackendFromEnv() (statestore.Backend, error) {
	profileDSN, err := storageProfileDefaultsFromEnv()
	if err != nil {
		return nil, err
	}
	dsn := strings.TrimSpace(os.Getenv("HEARTHVIEW_STATE_DSN"))
	stateFile := strings.TrimSpace(os.Getenv("HEARTHVIEW_STATE_FILE"))
	switch {
	case dsn != "":
		return statestore.BuildFromDSN(dsn)
	case stateFile != "":
		return statestore.BuildFromDSN(stateFile)
	case profileDSN != "":
		return statestore.BuildFromDSN(profileDSN)
	default:
		return nil, nil
	}
}

func storageProfileDefaultsFromEnv() (string, error) {
	profile := strings.ToLower(strings.TrimSpace(os.Getenv("HEARTHVIEW_BACKEND_PROFILE")))
	dataDir := strings.TrimSpace(os.Getenv("HEARTHVIEW_DATA_DIR"))
	if dataDir == "" {
		dataDir = ".hearthview"
	}
	switch profile {
	case "", "custom":
		return "", nil
	case "memory", "inmemory":
		return "memory://", nil
	case "production", "prod":
		productionDSN := strings.TrimSpace(os.Getenv("HEARTHVIEW_PRODUCTION_DSN"))
		if productionDSN == "" {
			productionDSN = strings.TrimSpace(os.Getenv("HEARTHVIEW_POSTGRES_DSN"))
		}
		if productionDSN == "" {
			return "", fmt.Errorf("HEARTHVIEW_PRODUCTION_DSN or HEARTHVIEW_POSTGRES_DSN is required when HEARTHVIEW_BACKEND_PROFILE=%s", profile)
		}
		return productionDSN, nil
	case "durable-local", "local-durable":
		return "file://" + filepath.Join(dataDir, "config.json"), nil
	default:
		return "", fmt.Errorf("unsupported HEARTHVIEW_BACKEND_PROFILE: %s", profile)
	}
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
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

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
