package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "FIFOBOOK_"

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Engine  EngineConfig
	Storage StorageConfig
	Kafka   KafkaConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	GRPCAddr string
	HTTPAddr string
}

// EngineConfig holds book parameters. PriceScale is the number of decimal
// places a tick represents at the HTTP edge.
type EngineConfig struct {
	PriceScale int32
	DepthLimit int
}

type StorageConfig struct {
	WALDir           string
	SegmentSize      int64
	SegmentDuration  time.Duration
	OutboxDir        string
	SnapshotDir      string
	SnapshotInterval time.Duration
}

type KafkaConfig struct {
	Brokers           []string
	MatchTopic        string
	QueryTopic        string
	ResultTopic       string
	GroupID           string
	PublishMatches    bool
	ConsumeQueries    bool
	BroadcastInterval time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads .env when present, then FIFOBOOK_* environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			GRPCAddr: getEnvString("GRPC_ADDR", ":50051"),
			HTTPAddr: getEnvString("HTTP_ADDR", ":8080"),
		},
		Engine: EngineConfig{
			PriceScale: int32(getEnvInt("PRICE_SCALE", 2)),
			DepthLimit: getEnvInt("DEPTH_LIMIT", 50),
		},
		Storage: StorageConfig{
			WALDir:           getEnvString("WAL_DIR", "./data/wal_entry"),
			SegmentSize:      int64(getEnvInt("WAL_SEGMENT_SIZE", 2*1024*1024)),
			SegmentDuration:  getEnvDuration("WAL_SEGMENT_DURATION", time.Minute),
			OutboxDir:        getEnvString("OUTBOX_DIR", "./data/outbox"),
			SnapshotDir:      getEnvString("SNAPSHOT_DIR", "./data/snapshot"),
			SnapshotInterval: getEnvDuration("SNAPSHOT_INTERVAL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			MatchTopic:        getEnvString("KAFKA_MATCH_TOPIC", "fifobook.matches"),
			QueryTopic:        getEnvString("KAFKA_QUERY_TOPIC", "fifobook.queries"),
			ResultTopic:       getEnvString("KAFKA_RESULT_TOPIC", "fifobook.results"),
			GroupID:           getEnvString("KAFKA_GROUP_ID", "fifobook"),
			PublishMatches:    getEnvBool("KAFKA_PUBLISH_MATCHES", false),
			ConsumeQueries:    getEnvBool("KAFKA_CONSUME_QUERIES", false),
			BroadcastInterval: getEnvDuration("KAFKA_BROADCAST_INTERVAL", 250*time.Millisecond),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
		},
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.GRPCAddr == "" && c.Server.HTTPAddr == "" {
		return fmt.Errorf("no listen address configured")
	}
	if c.Engine.PriceScale < 0 || c.Engine.PriceScale > 18 {
		return fmt.Errorf("invalid price scale: %d", c.Engine.PriceScale)
	}
	if c.Engine.DepthLimit < 0 {
		return fmt.Errorf("invalid depth limit: %d", c.Engine.DepthLimit)
	}
	if c.Storage.WALDir == "" {
		return fmt.Errorf("WAL dir required")
	}
	if c.Storage.SegmentSize <= 0 {
		return fmt.Errorf("invalid WAL segment size: %d", c.Storage.SegmentSize)
	}
	if c.Storage.SnapshotInterval < 0 {
		return fmt.Errorf("invalid snapshot interval: %s", c.Storage.SnapshotInterval)
	}
	if c.Kafka.PublishMatches || c.Kafka.ConsumeQueries {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers required")
		}
		if c.Kafka.PublishMatches && c.Storage.OutboxDir == "" {
			return fmt.Errorf("outbox dir required to publish matches")
		}
		if c.Kafka.BroadcastInterval <= 0 {
			return fmt.Errorf("invalid broadcast interval: %s", c.Kafka.BroadcastInterval)
		}
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Server{GRPC:%s, HTTP:%s}, Engine{Scale:%d}, Storage{WAL:%s, Outbox:%s, Snapshot:%s}, Kafka{Publish:%v, Consume:%v}",
		c.Server.GRPCAddr, c.Server.HTTPAddr, c.Engine.PriceScale,
		c.Storage.WALDir, c.Storage.OutboxDir, c.Storage.SnapshotDir,
		c.Kafka.PublishMatches, c.Kafka.ConsumeQueries,
	)
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(envPrefix + key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
		switch strings.ToLower(value) {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(envPrefix + key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
