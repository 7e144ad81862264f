package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/lnbridge/internal/core/domain"
	"github.com/vietddude/lnbridge/internal/dispatch"
)

// ErrInvalidConfig is returned when the configuration fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Load reads configuration from an optional YAML file, applies environment
// overrides and defaults, then validates the result. An empty path skips the
// file.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides file values with the process environment.
func applyEnv(cfg *AppConfig) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	setString("DATA_DIR", &cfg.Node.DataDir)
	setString("ESPLORA_SERVER_URL", &cfg.Node.EsploraURL)
	setString("MNEMONIC", &cfg.Node.Mnemonic)
	setString("API_ADDR", &cfg.API.Listen)
	setString("RABBITMQ_HOST", &cfg.Broker.Host)
	setString("RABBITMQ_USERNAME", &cfg.Broker.Username)
	setString("RABBITMQ_PASSWORD", &cfg.Broker.Password)
	setString("DATABASE_URL", &cfg.Database.URL)
	setString("REDIS_URL", &cfg.Redis.URL)

	if v := os.Getenv("RABBITMQ_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: RABBITMQ_PORT %q is not a number", ErrInvalidConfig, v)
		}
		cfg.Broker.Port = port
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Node.Network == "" {
		cfg.Node.Network = domain.NetworkRegtest
	}
	if cfg.Node.ListenAddr == "" {
		cfg.Node.ListenAddr = "0.0.0.0:9876"
	}
	if cfg.Node.PollInterval == 0 {
		cfg.Node.PollInterval = 100 * time.Millisecond
	}
	if cfg.Node.SimBalanceSats == 0 {
		cfg.Node.SimBalanceSats = 100_000_000
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = "0.0.0.0:3000"
	}
	if len(cfg.API.CORSOrigins) == 0 {
		cfg.API.CORSOrigins = []string{"*"}
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Broker.Enabled() && cfg.Broker.Port == 0 {
		cfg.Broker.Port = 5672
	}
	if cfg.Dispatch.SubscriberCapacity == 0 {
		cfg.Dispatch.SubscriberCapacity = dispatch.DefaultCapacity
	}
	if cfg.Dispatch.JournalCapacity == 0 {
		cfg.Dispatch.JournalCapacity = 1024
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate reports the first startup-fatal problem.
func (c *AppConfig) Validate() error {
	if c.Node.DataDir == "" {
		return fmt.Errorf("%w: node.data_dir (DATA_DIR) is required", ErrInvalidConfig)
	}
	if c.Node.EsploraURL == "" {
		return fmt.Errorf("%w: node.esplora_url (ESPLORA_SERVER_URL) is required", ErrInvalidConfig)
	}
	if _, err := domain.ParseNetwork(string(c.Node.Network)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Node.Mnemonic != "" {
		switch n := len(strings.Fields(c.Node.Mnemonic)); n {
		case 12, 15, 18, 21, 24:
		default:
			return fmt.Errorf("%w: mnemonic has %d words, expected 12, 15, 18, 21 or 24", ErrInvalidConfig, n)
		}
	}
	if _, err := domain.ParseSocketAddress(c.Node.ListenAddr); err != nil {
		return fmt.Errorf("%w: node.listen_addr: %v", ErrInvalidConfig, err)
	}
	if _, _, err := net.SplitHostPort(c.API.Listen); err != nil {
		return fmt.Errorf("%w: api.listen %q: %v", ErrInvalidConfig, c.API.Listen, err)
	}
	if c.Broker.Enabled() && c.Broker.Username == "" {
		return fmt.Errorf("%w: broker.username (RABBITMQ_USERNAME) is required when a broker host is set", ErrInvalidConfig)
	}
	if c.Dispatch.SubscriberCapacity < 0 {
		return fmt.Errorf("%w: dispatch.subscriber_capacity must be positive", ErrInvalidConfig)
	}
	return nil
}
