package config

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"todo-sync/pkg/logger"
)

// Relay merge modes.
const (
	MergeModeMerge   = "merge"
	MergeModeReplace = "replace"
)

// Feed backends.
const (
	FeedBackendKafka = "kafka"
	FeedBackendLocal = "local"
)

// Config holds application configuration from environment.
type Config struct {
	HTTPPort          string   `yaml:"http_port"`
	RelayPort         string   `yaml:"relay_port"`
	DatabaseURL       string   `yaml:"database_url"`
	DBPoolSize        int      `yaml:"db_pool_size"`
	RedisURL          string   `yaml:"redis_url"`
	RedisPoolSize     int      `yaml:"redis_pool_size"`
	CacheTTL          int      `yaml:"cache_ttl_sec"` // seconds
	KafkaBrokers      []string `yaml:"kafka_brokers"`
	KafkaTopic        string   `yaml:"kafka_changes_topic"`
	KafkaPartitions   int      `yaml:"kafka_partitions"`
	FeedBackend       string   `yaml:"feed_backend"`
	FeedGroupID       string   `yaml:"feed_group_id"`
	JWTSecret         string   `yaml:"jwt_secret"`
	RelayMergeMode    string   `yaml:"relay_merge_mode"`
	RelayMsgRPS       float64  `yaml:"relay_msg_rps"`
	RelayMsgBurst     int      `yaml:"relay_msg_burst"`
	RelayURL          string   `yaml:"relay_url"`
	ServerURL         string   `yaml:"server_url"`
	AuthToken         string   `yaml:"auth_token"`
	LogLevel          string   `yaml:"log_level"`
	ReconnectInterval int      `yaml:"reconnect_interval_ms"`
}

var (
	cfg     *Config
	cfgOnce sync.Once
)

// Get returns the application config (loads once from CONFIG_FILE and env).
func Get() *Config {
	cfgOnce.Do(func() {
		cfg = Load()
	})
	return cfg
}

// loadFile overlays the YAML at path onto c. c is untouched on error.
func loadFile(path string, c *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	next := *c
	if err := yaml.Unmarshal(b, &next); err != nil {
		return err
	}
	*c = next
	return nil
}

// Load builds a config from defaults, then the optional YAML file named by
// CONFIG_FILE, then environment variables. Later sources win.
func Load() *Config {
	c := defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(path, c); err != nil {
			logger.Warn(context.Background(), "Config file ignored", "path", path, "error", err)
		}
	}
	c.HTTPPort = getEnv("HTTP_PORT", c.HTTPPort)
	c.RelayPort = getEnv("RELAY_PORT", c.RelayPort)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.DBPoolSize = getIntEnv("DB_POOL_SIZE", c.DBPoolSize)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.RedisPoolSize = getIntEnv("REDIS_POOL_SIZE", c.RedisPoolSize)
	c.CacheTTL = getIntEnv("CACHE_TTL_SEC", c.CacheTTL)
	c.KafkaBrokers = getSliceEnv("KAFKA_BROKERS", c.KafkaBrokers)
	c.KafkaTopic = getEnv("KAFKA_CHANGES_TOPIC", c.KafkaTopic)
	c.KafkaPartitions = getIntEnv("KAFKA_PARTITIONS", c.KafkaPartitions)
	c.FeedBackend = strings.ToLower(getEnv("FEED_BACKEND", c.FeedBackend))
	c.FeedGroupID = getEnv("FEED_GROUP_ID", c.FeedGroupID)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.RelayMergeMode = strings.ToLower(getEnv("RELAY_MERGE_MODE", c.RelayMergeMode))
	c.RelayMsgRPS = getFloatEnv("RELAY_MSG_RPS", c.RelayMsgRPS)
	c.RelayMsgBurst = getIntEnv("RELAY_MSG_BURST", c.RelayMsgBurst)
	c.RelayURL = getEnv("RELAY_URL", c.RelayURL)
	c.ServerURL = getEnv("SERVER_URL", c.ServerURL)
	c.AuthToken = getEnv("AUTH_TOKEN", c.AuthToken)
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))
	c.ReconnectInterval = getIntEnv("RECONNECT_INTERVAL_MS", c.ReconnectInterval)

	if c.RelayMergeMode != MergeModeReplace {
		c.RelayMergeMode = MergeModeMerge
	}
	if c.FeedBackend != FeedBackendKafka {
		c.FeedBackend = FeedBackendLocal
	}
	if c.FeedGroupID == "" {
		host, _ := os.Hostname()
		c.FeedGroupID = "todo-feed-" + host
	}
	return c
}

func defaults() *Config {
	return &Config{
		HTTPPort:          "8080",
		RelayPort:         "3001",
		DBPoolSize:        25,
		RedisURL:          "redis://localhost:6379/0",
		RedisPoolSize:     50,
		CacheTTL:          300,
		KafkaBrokers:      []string{"localhost:9092"},
		KafkaTopic:        "todo-changes",
		KafkaPartitions:   1,
		FeedBackend:       FeedBackendLocal,
		RelayMergeMode:    MergeModeMerge,
		RelayMsgRPS:       20,
		RelayMsgBurst:     40,
		RelayURL:          "ws://localhost:3001/ws",
		ServerURL:         "http://localhost:8080",
		LogLevel:          "info",
		ReconnectInterval: 2000,
	}
}

// ReconnectTimeout returns ReconnectInterval as a duration.
func (c *Config) ReconnectTimeout() time.Duration {
	return time.Duration(c.ReconnectInterval) * time.Millisecond
}

// CacheTTLDuration returns CacheTTL as a duration.
func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// GetJWTSecret returns JWT secret from config (for middleware that only has context).
func GetJWTSecret(ctx context.Context) string {
	return Get().JWTSecret
}

// LoadEnvFile reads a .env file and sets env vars (only if not already set).
func LoadEnvFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
			val = val[1 : len(val)-1]
		}
		if key != "" && os.Getenv(key) == "" {
			_ = os.Setenv(key, val)
		}
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return defaultVal
}

// getSliceEnv splits a comma separated value. An explicitly empty list is
// written as "-" (e.g. KAFKA_BROKERS=-) and disables the feature.
func getSliceEnv(key string, defaultVal []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	if v == "-" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
