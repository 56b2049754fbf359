package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// FeedSourceType selects where change events are consumed from
type FeedSourceType string

const (
	FeedNATS  FeedSourceType = "nats"  // NATS subject
	FeedKafka FeedSourceType = "kafka" // Kafka topic
)

// NATSConfiguration for the NATS change-event source
type NATSConfiguration struct {
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

// KafkaConfiguration for the Kafka change-event source
type KafkaConfiguration struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
	GroupID string   `toml:"group_id"`
}

// FeedConfiguration controls the change-event feed driving the match path
type FeedConfiguration struct {
	Enabled         bool               `toml:"enabled"`
	Source          FeedSourceType     `toml:"source"`
	Encoding        string             `toml:"encoding"` // "json" or "msgpack"
	RetryInitialMS  int                `toml:"retry_initial_ms"`
	RetryMaxMS      int                `toml:"retry_max_ms"`
	RetryMultiplier float64            `toml:"retry_multiplier"`
	NATS            NATSConfiguration  `toml:"nats"`
	Kafka           KafkaConfiguration `toml:"kafka"`
}

// CompilerConfiguration controls filter compilation
type CompilerConfiguration struct {
	TimeoutMS int `toml:"timeout_ms"` // Per-request compile deadline
	CacheSize int `toml:"cache_size"` // Compiled-filter LRU entries
}

// NotifyConfiguration controls signal delivery to connections
type NotifyConfiguration struct {
	BufferSize int `toml:"buffer_size"` // Per-subscriber channel buffer
}

// HTTPConfiguration controls the status/admin listener
type HTTPConfiguration struct {
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
}

// LoggingConfiguration controls log output
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration controls metrics exposure
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// Configuration is the main configuration structure
type Configuration struct {
	NodeID uint64 `toml:"node_id"`

	Feed       FeedConfiguration       `toml:"feed"`
	Compiler   CompilerConfiguration   `toml:"compiler"`
	Notify     NotifyConfiguration     `toml:"notify"`
	HTTP       HTTPConfiguration       `toml:"http"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	NodeIDFlag     = flag.Uint64("node-id", 0, "Node ID (overrides config, 0=auto)")
	HTTPPortFlag   = flag.Int("http-port", 0, "Status API port (overrides config)")
)

// Default configuration
var Config = &Configuration{
	NodeID: 0, // Auto-generate

	Feed: FeedConfiguration{
		Enabled:         true,
		Source:          FeedNATS,
		Encoding:        "json",
		RetryInitialMS:  100,
		RetryMaxMS:      30000,
		RetryMultiplier: 2.0,
		NATS: NATSConfiguration{
			URL:     "nats://127.0.0.1:4222",
			Subject: "subwave.changes",
		},
		Kafka: KafkaConfiguration{
			Brokers: []string{"127.0.0.1:9092"},
			Topic:   "subwave-changes",
			GroupID: "subwave",
		},
	},

	Compiler: CompilerConfiguration{
		TimeoutMS: 2000,
		CacheSize: 1024,
	},

	Notify: NotifyConfiguration{
		BufferSize: 16,
	},

	HTTP: HTTPConfiguration{
		BindAddress: "0.0.0.0",
		Port:        8390,
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
	},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *NodeIDFlag != 0 {
		Config.NodeID = *NodeIDFlag
	}
	if *HTTPPortFlag != 0 {
		Config.HTTP.Port = *HTTPPortFlag
	}

	// Auto-generate node ID if not set
	if Config.NodeID == 0 {
		var err error
		Config.NodeID, err = generateNodeID()
		if err != nil {
			return fmt.Errorf("failed to generate node ID: %w", err)
		}
		log.Info().Uint64("node_id", Config.NodeID).Msg("Auto-generated node ID")
	}

	return nil
}

// generateNodeID creates a unique node ID based on machine ID
func generateNodeID() (uint64, error) {
	id, err := machineid.ProtectedID("subwave")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.HTTP.Port < 1 || Config.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", Config.HTTP.Port)
	}

	switch Config.Feed.Source {
	case FeedNATS, FeedKafka:
	default:
		return fmt.Errorf("unknown feed source: %s", Config.Feed.Source)
	}

	switch Config.Feed.Encoding {
	case "json", "msgpack":
	default:
		return fmt.Errorf("unknown feed encoding: %s", Config.Feed.Encoding)
	}

	if Config.Feed.Source == FeedKafka && len(Config.Feed.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka feed requires at least one broker")
	}

	if Config.Compiler.TimeoutMS <= 0 {
		return fmt.Errorf("compiler timeout must be positive")
	}
	if Config.Compiler.CacheSize <= 0 {
		return fmt.Errorf("compiler cache size must be positive")
	}
	if Config.Notify.BufferSize <= 0 {
		return fmt.Errorf("notify buffer size must be positive")
	}

	return nil
}
