package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"SignalDNA/pkg/util"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Host              string        `yaml:"host" default:"0.0.0.0"`
		Port              int           `yaml:"port" default:"8080"`
		ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" default:"10s"`
		ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowThreshold     time.Duration `yaml:"slow_threshold" default:"1s"`
		CORS              bool          `yaml:"cors" default:"true"`
	} `yaml:"server"`
	Finnhub struct {
		APIKey       string        `yaml:"api_key"`
		WebSocketURL string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
		Topics       []string      `yaml:"topics" default:"[\"general\"]"`
		PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
		Stream       struct {
			Enabled bool `yaml:"enabled" default:"true"`
		} `yaml:"stream"`
		Reconnect struct {
			Enabled     bool          `yaml:"enabled"`
			MinBackoff  time.Duration `yaml:"min_backoff" default:"1s"`
			MaxBackoff  time.Duration `yaml:"max_backoff" default:"30s"`
			MaxAttempts int           `yaml:"max_attempts"`
		} `yaml:"reconnect"`
		Webhook struct {
			Secret       string `yaml:"secret"`
			MaxBodyBytes int64  `yaml:"max_body_bytes" default:"1048576"`
		} `yaml:"webhook"`
	} `yaml:"finnhub"`
	Pipeline struct {
		RelayTimeout time.Duration `yaml:"relay_timeout" default:"2s"`
	} `yaml:"pipeline"`
	Hub struct {
		SendBuffer int           `yaml:"send_buffer" default:"64"`
		WriteWait  time.Duration `yaml:"write_wait" default:"10s"`
		PingPeriod time.Duration `yaml:"ping_period" default:"54s"`
	} `yaml:"hub"`
	RateLimit struct {
		Enabled      bool    `yaml:"enabled" default:"true"`
		Burst        float64 `yaml:"burst" default:"10"`
		RefillPerSec float64 `yaml:"refill_per_sec" default:"1"`
	} `yaml:"ratelimit"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		SignalsTopic string   `yaml:"signals_topic" default:"signaldna.signals"`
		NewsTopic    string   `yaml:"news_topic"`
		LogsTopic    string   `yaml:"logs_topic"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchSize    int           `yaml:"batch_size" default:"1"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID     string        `yaml:"group_id" default:"signaldna"`
			StartOffset string        `yaml:"start_offset" default:"latest"`
			Workers     int           `yaml:"workers" default:"4"`
			BufferSize  int           `yaml:"buffer_size" default:"256"`
			RetryMax    int           `yaml:"retry_max" default:"3"`
			BackoffMin  time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax  time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic    string        `yaml:"dlq_topic"`
			MinBytes    int           `yaml:"min_bytes" default:"1"`
			MaxBytes    int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled      bool   `yaml:"enabled"`
		Addr         string `yaml:"addr" default:"localhost:6379"`
		Password     string `yaml:"password"`
		DB           int    `yaml:"db"`
		PoolSize     int    `yaml:"pool_size" default:"10"`
		Prefix       string `yaml:"prefix" default:"signaldna"`
		RelayChannel string `yaml:"relay_channel" default:"signaldna:signals"`
	} `yaml:"redis"`
	Dedupe struct {
		Enabled bool          `yaml:"enabled"`
		TTL     time.Duration `yaml:"ttl" default:"10m"`
		// memory or redis
		Backend string `yaml:"backend" default:"memory"`
		MaxSize int    `yaml:"max_size" default:"10000"`
	} `yaml:"dedupe"`
	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
		// error aggregation window when Kafka is enabled
		CollectInterval time.Duration `yaml:"collect_interval" default:"1m"`
		CollectCount    int           `yaml:"collect_count" default:"100"`
	} `yaml:"log"`
	Tracing struct {
		Enabled     bool   `yaml:"enabled"`
		ServiceName string `yaml:"service_name" default:"signaldna"`
		PrettyPrint bool   `yaml:"pretty_print"`
	} `yaml:"tracing"`
}

// Default returns a config populated only from struct defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file over the defaults.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML, applies environment overrides and validates.
// A missing file is tolerated so the service can run from the environment alone.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		c, err = Default()
	}
	if err != nil {
		return nil, err
	}

	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides fields from the environment; lookup is os.LookupEnv outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	if v, ok := get("PORT"); ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT %q: %w", v, err)
		}
		c.Server.Port = p
	}
	if v, ok := get("FINNHUB_API_KEY"); ok {
		c.Finnhub.APIKey = v
	}
	if v, ok := get("FINNHUB_WEBHOOK_SECRET"); ok {
		c.Finnhub.Webhook.Secret = v
	}
	if v, ok := get("FINNHUB_WS_URL"); ok {
		c.Finnhub.WebSocketURL = v
	}
	if v, ok := get("KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = util.SplitCSV(v)
		c.Kafka.Enabled = true
	}
	if v, ok := get("REDIS_ADDR"); ok {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Finnhub.Stream.Enabled {
		if c.Finnhub.APIKey == "" {
			return fmt.Errorf("finnhub.api_key is required when the stream is enabled")
		}
		if len(c.Finnhub.Topics) == 0 {
			return fmt.Errorf("finnhub.topics cannot be empty")
		}
	}
	if c.Finnhub.Reconnect.Enabled && c.Finnhub.Reconnect.MaxBackoff < c.Finnhub.Reconnect.MinBackoff {
		return fmt.Errorf("finnhub.reconnect.max_backoff must be >= min_backoff")
	}
	if c.Finnhub.Webhook.MaxBodyBytes <= 0 {
		return fmt.Errorf("finnhub.webhook.max_body_bytes must be positive")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
		}
		if c.Kafka.SignalsTopic == "" {
			return fmt.Errorf("kafka.signals_topic is required when kafka is enabled")
		}
	}
	if c.Kafka.NewsTopic != "" && !c.Kafka.Enabled {
		return fmt.Errorf("kafka.news_topic requires kafka.enabled")
	}
	if c.Dedupe.Enabled {
		switch c.Dedupe.Backend {
		case "memory":
		case "redis":
			if !c.Redis.Enabled {
				return fmt.Errorf("dedupe.backend redis requires redis.enabled")
			}
		default:
			return fmt.Errorf("dedupe.backend must be 'memory' or 'redis', got '%s'", c.Dedupe.Backend)
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	return nil
}
