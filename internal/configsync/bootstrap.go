package configsync

import (
	"context"
	"os"
)

// StartupOptions is the host environment's argument/query surface,
// captured once at process start and threaded explicitly through
// bootstrap. Business logic never reads it ad hoc.
type StartupOptions struct {
	// Relay overrides the relay base URL for the session and wins
	// over the persisted settings value.
	Relay string
	// Edit marks this instance as a remote editor: edit-mode UI on,
	// live channel off so the document is not reloaded mid-edit.
	Edit bool
	// Screen is the initial screen index; -1 leaves the persisted
	// value in place. Applied last and clamped.
	Screen int
	// Local redirects embedded widget frames to local dev servers.
	// Carried for widgets; the sync core does not interpret it.
	Local bool
}

// NewStartupOptions returns the zero surface: no overrides.
func NewStartupOptions() StartupOptions {
	return StartupOptions{Screen: -1}
}

type BootstrapOptions struct {
	Startup StartupOptions
	// DefaultRelayURL is used when neither StartupOptions nor the
	// persisted settings name a relay.
	DefaultRelayURL string
	// DefaultConfigPath points at the bundled default document,
	// applied only on a fresh install.
	DefaultConfigPath string
	// NewClient builds the relay client once the base URL is
	// resolved. Defaults to NewHTTPRelayClient.
	NewClient func(baseURL string) RelayClient
	Logger    Logger
}

type BootstrapResult struct {
	Client      RelayClient
	RelayURL    string
	LiveEnabled bool
}

// Bootstrap establishes the startup precedence among the four config
// sources: device cache (already rehydrated by NewStore), bundled
// default (fresh installs only), the relay (authoritative when
// reachable), and startup options (always win). The relay being down
// is not an error; the local document stays authoritative.
func Bootstrap(ctx context.Context, store *Store, opts BootstrapOptions) BootstrapResult {
	logger := opts.Logger
	newClient := opts.NewClient
	if newClient == nil {
		newClient = func(baseURL string) RelayClient {
			return NewHTTPRelayClient(baseURL, HTTPRelayClientOptions{})
		}
	}

	if opts.Startup.Edit {
		store.SetEditMode(true)
	}

	relayURL := resolveRelayURL(store, opts)

	if store.FreshInstall() && opts.DefaultConfigPath != "" {
		applyDefaultConfig(store, opts.DefaultConfigPath, logger)
	}

	var client RelayClient
	if relayURL != "" {
		client = newClient(relayURL)
		if cfg, err := client.FetchConfig(ctx); err == nil {
			store.ApplyRemote(cfg)
		} else if logger != nil {
			logger.Printf("relay fetch skipped: %v", err)
		}
	}

	if opts.Startup.Screen >= 0 {
		store.SetActiveScreen(opts.Startup.Screen)
	}

	return BootstrapResult{
		Client:      client,
		RelayURL:    relayURL,
		LiveEnabled: client != nil && !opts.Startup.Edit,
	}
}

// ReapplyScreen re-applies the screen startup option, the equivalent
// of the browser re-reading the query string on back/forward
// navigation.
func ReapplyScreen(store *Store, startup StartupOptions) {
	if startup.Screen >= 0 {
		store.SetActiveScreen(startup.Screen)
	}
}

func resolveRelayURL(store *Store, opts BootstrapOptions) string {
	if opts.Startup.Relay != "" {
		return NormalizeRelayURL(opts.Startup.Relay)
	}
	if settings := store.Config().GlobalSettings; settings.RelayURL != "" {
		return NormalizeRelayURL(settings.RelayURL)
	}
	return NormalizeRelayURL(opts.DefaultRelayURL)
}

// applyDefaultConfig loads the bundled default document. Any failure
// (missing file, malformed body) leaves the defaults alone.
func applyDefaultConfig(store *Store, path string, logger Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		if logger != nil && !os.IsNotExist(err) {
			logger.Printf("default config read failed: %v", err)
		}
		return
	}
	cfg, ok := parseConfigDocument(data)
	if !ok {
		if logger != nil {
			logger.Printf("default config at %s is malformed; ignoring", path)
		}
		return
	}
	store.ApplyRemote(cfg)
}
