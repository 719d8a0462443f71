package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "LAGERPULS"

	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabaseDriver = "sqlite"
	defaultDatabaseDSN    = "lagerpuls.db"
	defaultPolicy         = "enrich"
	defaultEventName      = "ReceiveUpdate"
	defaultLogLevel       = "info"

	defaultNotifyChannel  = "beholdning_changes"
	defaultRequestTimeout = 5 * time.Second
	defaultMinReconnect   = 10 * time.Second
	defaultMaxReconnect   = time.Minute
)

// HubConfig captures runtime configuration for the hub server.
type HubConfig struct {
	HTTPAddress    string
	DatabaseDriver string
	DatabaseDSN    string
	Policy         string
	EventName      string
	LogLevel       string
}

// BridgeConfig captures runtime configuration for the change bridge.
type BridgeConfig struct {
	ListenDSN      string
	NotifyChannel  string
	IngestURL      string
	RequestTimeout time.Duration
	MinReconnect   time.Duration
	MaxReconnect   time.Duration
	LogLevel       string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("hub.policy", defaultPolicy)
	configViper.SetDefault("hub.event", defaultEventName)
	configViper.SetDefault("log.level", defaultLogLevel)

	configViper.SetDefault("bridge.channel", defaultNotifyChannel)
	configViper.SetDefault("bridge.request_timeout", defaultRequestTimeout)
	configViper.SetDefault("bridge.min_reconnect", defaultMinReconnect)
	configViper.SetDefault("bridge.max_reconnect", defaultMaxReconnect)
}

// LoadHub parses hub runtime configuration from viper.
func LoadHub(configViper *viper.Viper) (HubConfig, error) {
	cfg := HubConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabaseDriver: configViper.GetString("database.driver"),
		DatabaseDSN:    configViper.GetString("database.dsn"),
		Policy:         configViper.GetString("hub.policy"),
		EventName:      configViper.GetString("hub.event"),
		LogLevel:       configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return HubConfig{}, err
	}

	return cfg, nil
}

// LoadBridge parses bridge runtime configuration from viper.
func LoadBridge(configViper *viper.Viper) (BridgeConfig, error) {
	cfg := BridgeConfig{
		ListenDSN:      configViper.GetString("bridge.listen_dsn"),
		NotifyChannel:  configViper.GetString("bridge.channel"),
		IngestURL:      configViper.GetString("bridge.ingest_url"),
		RequestTimeout: configViper.GetDuration("bridge.request_timeout"),
		MinReconnect:   configViper.GetDuration("bridge.min_reconnect"),
		MaxReconnect:   configViper.GetDuration("bridge.max_reconnect"),
		LogLevel:       configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return BridgeConfig{}, err
	}

	return cfg, nil
}

func (c HubConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.Policy {
	case "enrich", "passthrough":
	default:
		return fmt.Errorf("hub.policy must be enrich or passthrough, got %q", c.Policy)
	}
	if strings.TrimSpace(c.EventName) == "" {
		return fmt.Errorf("hub.event is required")
	}
	return nil
}

func (c BridgeConfig) validate() error {
	if strings.TrimSpace(c.ListenDSN) == "" {
		return fmt.Errorf("bridge.listen_dsn is required")
	}
	if strings.TrimSpace(c.NotifyChannel) == "" {
		return fmt.Errorf("bridge.channel is required")
	}
	if strings.TrimSpace(c.IngestURL) == "" {
		return fmt.Errorf("bridge.ingest_url is required")
	}
	if c.MinReconnect <= 0 || c.MaxReconnect < c.MinReconnect {
		return fmt.Errorf("bridge reconnect intervals are invalid")
	}
	return nil
}
