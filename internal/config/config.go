package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	// DefaultFileWriteDelay absorbs the short window some filesystems
	// leave between a config file's write events and its contents
	// actually landing on disk.
	DefaultFileWriteDelay = 150 * time.Millisecond

	envPrefix = "HTTPPOOL"
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// DefaultConfig returns a configuration with sensible defaults. Hostnames
// is deliberately left empty: §7 requires construction to fail loudly
// when no endpoint was configured, rather than silently defaulting to one.
func DefaultConfig() *Config {
	return &Config{
		Pool: PoolConfig{
			MaxConns:               10,
			MaxOutstandingRequests: 1000,
			MaxRetries:             3,
			Compress:               false,
			CoolDown:               30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// Load loads configuration from file and environment variables, layered
// as: defaults, then config.yaml (if present), then HTTPPOOL_*-prefixed
// environment overrides.
//
// Hostnames is read once at Load time; the EndpointRing is built at
// construction and is not rebuilt on a later config change (§4.1 and §5:
// the Ring's endpoint list is fixed for the life of a Dispatcher).
// onConfigChange fires on any change to the watched config file (at most
// once per 500ms); Load itself re-reads nothing into cfg on a change.
func Load(onConfigChange func()) (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv(envPrefix + "_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	viper.WatchConfig()

	if onConfigChange != nil {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			now := time.Now()
			if now.Sub(lastReload) < 500*time.Millisecond {
				return // ignore rapid-fire duplicate events
			}
			lastReload = now

			// some filesystems fire this before the write is flushed
			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}
	return cfg, nil
}

// Validate reports the one fatal configuration condition §7 names: a pool
// with no endpoints to route to.
func Validate(cfg *Config) error {
	if len(cfg.Pool.Hostnames) == 0 {
		return fmt.Errorf("pool: no hostnames configured")
	}
	return nil
}
