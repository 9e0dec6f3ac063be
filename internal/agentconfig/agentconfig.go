// Package agentconfig loads the display agent's configuration file.
// Every field has a default so the agent runs with no file at all;
// flags and environment variables override file values in main.
package agentconfig

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so TOML values can be written as
// strings like "500ms" or "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	// RelayURL is the relay base URL. Empty means rely on the value
	// saved in the dashboard document, falling back to DefaultRelayURL.
	RelayURL string `toml:"relay_url"`

	// DefaultRelayURL is used when neither startup options nor the
	// saved document name a relay.
	DefaultRelayURL string `toml:"default_relay_url"`

	// StateDSN selects the device cache backend: a file path,
	// file://, memory:// or postgres://.
	StateDSN string `toml:"state_dsn"`

	// DefaultConfigPath points at the bundled dashboard document used
	// on fresh installs. Empty skips the bundled default.
	DefaultConfigPath string `toml:"default_config_path"`

	// LiveTransport is "sse" or "websocket".
	LiveTransport string `toml:"live_transport"`

	SaveDebounce   Duration `toml:"save_debounce"`
	PendingSaveTTL Duration `toml:"pending_save_ttl"`
	BackoffBase    Duration `toml:"backoff_base"`
	BackoffMax     Duration `toml:"backoff_max"`
}

func Default() Config {
	return Config{
		DefaultRelayURL:   "http://localhost:8000",
		StateDSN:          "hearthview-state.json",
		DefaultConfigPath: "config/dashboard.json",
		LiveTransport:     "sse",
		SaveDebounce:      Duration{500 * time.Millisecond},
		PendingSaveTTL:    Duration{10 * time.Second},
		BackoffBase:       Duration{time.Second},
		BackoffMax:        Duration{30 * time.Second},
	}
}

// Load reads the config file at path. A missing file is not an error;
// defaults are returned.
func Load(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, err
	}
	defer file.Close()
	return LoadFromReader(file)
}

func LoadFromReader(r io.Reader) (Config, error) {
	cfg := Default()
	meta, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("parse agent config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown agent config key: %s", undecoded[0].String())
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.LiveTransport {
	case "sse", "websocket":
	default:
		return fmt.Errorf("live_transport must be sse or websocket, got %q", c.LiveTransport)
	}
	if c.SaveDebounce.Duration <= 0 {
		return fmt.Errorf("save_debounce must be positive")
	}
	if c.PendingSaveTTL.Duration <= 0 {
		return fmt.Errorf("pending_save_ttl must be positive")
	}
	if c.BackoffBase.Duration <= 0 || c.BackoffMax.Duration < c.BackoffBase.Duration {
		return fmt.Errorf("backoff_base must be positive and no larger than backoff_max")
	}
	return nil
}
