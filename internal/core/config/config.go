package config

import (
	"path/filepath"
	"time"

	"github.com/vietddude/lnbridge/internal/core/domain"
	"github.com/vietddude/lnbridge/internal/infra/broker"
	"github.com/vietddude/lnbridge/internal/infra/node"
	redisclient "github.com/vietddude/lnbridge/internal/infra/redis"
	"github.com/vietddude/lnbridge/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Node     NodeConfig         `yaml:"node"`
	API      APIConfig          `yaml:"api"`
	Server   ServerConfig       `yaml:"server"`
	Broker   broker.Config      `yaml:"broker"`
	Dispatch DispatchConfig     `yaml:"dispatch"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
	Logging  LoggingConfig      `yaml:"logging"`
}

// NodeConfig holds settings for the embedded node.
type NodeConfig struct {
	DataDir      string         `yaml:"data_dir"`
	EsploraURL   string         `yaml:"esplora_url"`
	Mnemonic     string         `yaml:"mnemonic"`
	Network      domain.Network `yaml:"network"`
	ListenAddr   string         `yaml:"listen_addr"`
	PollInterval time.Duration  `yaml:"poll_interval"`

	// Simulation settings, used by the in-process node only
	SimBalanceSats  uint64        `yaml:"sim_balance_sats"`
	SimConfirmDelay time.Duration `yaml:"sim_confirm_delay"`
}

// StorageDir is where the node keeps its state.
func (c NodeConfig) StorageDir() string {
	return filepath.Join(c.DataDir, "ldk_node")
}

// BuildConfig returns the node builder parameters.
func (c NodeConfig) BuildConfig(logLevel string) node.BuildConfig {
	return node.BuildConfig{
		Network:          c.Network,
		StorageDir:       c.StorageDir(),
		LogDir:           c.StorageDir(),
		ListeningAddress: domain.SocketAddress(c.ListenAddr),
		EsploraURL:       c.EsploraURL,
		Mnemonic:         c.Mnemonic,
		LogLevel:         logLevel,
	}
}

// APIConfig holds remote API settings.
type APIConfig struct {
	Listen      string   `yaml:"listen"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// ServerConfig holds health/metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DispatchConfig holds event distribution settings.
type DispatchConfig struct {
	SubscriberCapacity int           `yaml:"subscriber_capacity"`
	JournalCapacity    int           `yaml:"journal_capacity"`  // memory journal only
	JournalRetention   time.Duration `yaml:"journal_retention"` // 0 keeps everything
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // optional rotating log file
}
