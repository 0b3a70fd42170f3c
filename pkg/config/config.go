package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"PivotScan/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment"`
	Logging     struct {
		Level   string `yaml:"level"`
		Format  string `yaml:"format"`
		Output  string `yaml:"output"`
		Summary struct {
			Enabled   bool          `yaml:"enabled"`
			Interval  time.Duration `yaml:"interval"`
			MaxUnique int           `yaml:"max_unique"`
			Topic     string        `yaml:"topic"`
		} `yaml:"summary"`
	} `yaml:"logging"`
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Pipeline struct {
		MaxRPS        int           `yaml:"max_rps"`
		BufferSize    int           `yaml:"buffer_size"`
		FlushInterval time.Duration `yaml:"flush_interval"`
	} `yaml:"pipeline"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		TickTopic    string   `yaml:"tick_topic"`
		SignalTopic  string   `yaml:"signal_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Feed struct {
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Instruments    []string      `yaml:"instruments"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"feed"`
	Engine struct {
		EvalInterval    time.Duration `yaml:"eval_interval"`
		Aggregation     time.Duration `yaml:"aggregation"`
		CoarseTimeframe string        `yaml:"coarse_timeframe"`
		BarHistory      int           `yaml:"bar_history"`
		MinBarHistory   int           `yaml:"min_bar_history"`
		FineWindow      int           `yaml:"fine_window"`
		MinFineBuckets  int           `yaml:"min_fine_buckets"`
		MicroLookback   time.Duration `yaml:"micro_lookback"`
		BarCacheTTL     time.Duration `yaml:"bar_cache_ttl"`
		Coarse          struct {
			Window    int     `yaml:"window"`
			RSIPeriod int     `yaml:"rsi_period"`
			RSIUpper  float64 `yaml:"rsi_upper"`
			RSILower  float64 `yaml:"rsi_lower"`
			Deviation float64 `yaml:"deviation"`
		} `yaml:"coarse"`
		Fine struct {
			RSIPeriod     int     `yaml:"rsi_period"`
			RSIUpper      float64 `yaml:"rsi_upper"`
			RSILower      float64 `yaml:"rsi_lower"`
			VWAPDeviation float64 `yaml:"vwap_deviation"`
			FireThreshold float64 `yaml:"fire_threshold"`
		} `yaml:"fine"`
		Fusion struct {
			CoarseWeight          float64 `yaml:"coarse_weight"`
			FineWeight            float64 `yaml:"fine_weight"`
			ConfirmationThreshold float64 `yaml:"confirmation_threshold"`
		} `yaml:"fusion"`
		Limiter struct {
			Cooldown     time.Duration `yaml:"cooldown"`
			MaxPerMinute int           `yaml:"max_per_minute"`
		} `yaml:"limiter"`
		Warmup struct {
			Enabled bool          `yaml:"enabled"`
			Window  time.Duration `yaml:"window"`
		} `yaml:"warmup"`
	} `yaml:"engine"`
}

// Load parses the YAML file at path and validates it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &c, nil
}

// LoadWithEnv loads the file, then lets a few environment variables win
// over it. Secrets and per-deployment addresses go through here.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("FEED_API_KEY"); v != "" {
		c.Feed.APIKey = v
	}
	if v := os.Getenv("INSTRUMENTS"); v != "" {
		c.Feed.Instruments = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}

	return c, nil
}

// Validate rejects configurations the process could not run on.
func (c *Config) Validate() error {
	switch {
	case c.Environment == "":
		return fmt.Errorf("environment not set")
	case len(c.Feed.Instruments) == 0:
		return fmt.Errorf("feed.instruments: at least one instrument needed")
	case c.Feed.APIKey == "":
		return fmt.Errorf("feed.api_key not set")
	case len(c.Kafka.Brokers) == 0:
		return fmt.Errorf("kafka.brokers: at least one broker needed")
	case c.Kafka.TickTopic == "":
		return fmt.Errorf("kafka.tick_topic not set")
	case c.ClickHouse.Host == "":
		return fmt.Errorf("clickhouse.host not set")
	case c.Logging.Summary.Enabled && c.Logging.Summary.Topic == "":
		return fmt.Errorf("logging.summary.topic needed when the summary feed is enabled")
	}
	return c.validateEngine()
}

// validateEngine rejects engine overrides that the detectors would refuse
// at construction time anyway. Zero values mean "use the package default".
func (c *Config) validateEngine() error {
	e := &c.Engine
	if e.EvalInterval < 0 || e.Aggregation < 0 {
		return fmt.Errorf("engine intervals must be positive")
	}
	switch e.CoarseTimeframe {
	case "", "1s", "1m", "5m":
	default:
		return fmt.Errorf("engine.coarse_timeframe must be one of 1s, 1m, 5m")
	}
	if e.Coarse.Window < 0 || e.FineWindow < 0 {
		return fmt.Errorf("engine windows must be positive")
	}
	if e.Coarse.RSIUpper != 0 && e.Coarse.RSIUpper <= e.Coarse.RSILower {
		return fmt.Errorf("engine.coarse: rsi_upper must exceed rsi_lower")
	}
	if e.Fine.RSIUpper != 0 && e.Fine.RSIUpper <= e.Fine.RSILower {
		return fmt.Errorf("engine.fine: rsi_upper must exceed rsi_lower")
	}
	if e.Fine.FireThreshold < 0 || e.Fine.FireThreshold > 1 {
		return fmt.Errorf("engine.fine.fire_threshold must be in (0, 1]")
	}
	if e.Fusion.CoarseWeight < 0 || e.Fusion.FineWeight < 0 {
		return fmt.Errorf("engine.fusion weights must be positive")
	}
	if e.Fusion.ConfirmationThreshold < 0 || e.Fusion.ConfirmationThreshold > 1 {
		return fmt.Errorf("engine.fusion.confirmation_threshold must be in (0, 1]")
	}
	if e.Limiter.Cooldown < 0 || e.Limiter.MaxPerMinute < 0 {
		return fmt.Errorf("engine.limiter values must be positive")
	}
	return nil
}
