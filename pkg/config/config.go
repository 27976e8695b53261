package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" validate:"required"`
	Log         LogConfig        `yaml:"log"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Market      MarketConfig     `yaml:"market"`
	Forecast    ForecastConfig   `yaml:"forecast"`
	Summary     SummaryConfig    `yaml:"summary"`
	Storage     StorageConfig    `yaml:"storage"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	Redis       RedisConfig      `yaml:"redis"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error fatal panic"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout"`
	// Collect ships aggregated warnings and errors to the Redis queue.
	Collect         bool          `yaml:"collect"`
	CollectInterval time.Duration `yaml:"collect_interval" default:"30s"`
	CollectTopic    string        `yaml:"collect_topic" default:"priceband.logs"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type MarketConfig struct {
	// Source is where daily bars come from: fmp or clickhouse.
	Source  string        `yaml:"source" default:"fmp" validate:"oneof=fmp clickhouse"`
	BaseURL string        `yaml:"base_url" default:"https://financialmodelingprep.com" validate:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout" default:"30s"`
	RPS     float64       `yaml:"rps" default:"5" validate:"gt=0"`
	Burst   int           `yaml:"burst" default:"5" validate:"gte=1"`
	// Breaker trips after this many consecutive provider failures.
	BreakerFailures uint32        `yaml:"breaker_failures" default:"5"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" default:"30s"`
}

type ForecastConfig struct {
	StartDate       Date          `yaml:"start_date"`
	EndDate         Date          `yaml:"end_date"`
	Tickers         []string      `yaml:"tickers" validate:"required,min=1,dive,required"`
	Horizons        []int         `yaml:"horizons" validate:"required,min=1,dive,gt=0"`
	Lookback        int           `yaml:"lookback" default:"100" validate:"gt=0"`
	LowWindow       int           `yaml:"low_window" default:"252" validate:"gt=0"`
	PriceColumn     string        `yaml:"price_column" default:"close" validate:"oneof=open high low close"`
	LowColumn       string        `yaml:"low_column" default:"low" validate:"oneof=open high low close"`
	ReuseCache      bool          `yaml:"reuse_cache" default:"true"`
	Workers         int           `yaml:"workers" default:"8" validate:"gte=1,lte=64"`
	TaskTimeout     time.Duration `yaml:"task_timeout" default:"60s"`
	ProjectInWorker bool          `yaml:"project_in_worker"`
	RefreshInterval time.Duration `yaml:"refresh_interval" default:"15m"`
}

type SummaryConfig struct {
	Mode      string `yaml:"mode" default:"latest" validate:"oneof=latest daily custom frequency"`
	Frequency string `yaml:"frequency" validate:"omitempty,oneof=weekly monthly quarterly semiannual annual"`
	StartDate Date   `yaml:"start_date"`
	EndDate   Date   `yaml:"end_date"`
}

type StorageConfig struct {
	SeriesDir  string `yaml:"series_dir" default:"Output/Tickers" validate:"required"`
	SummaryDir string `yaml:"summary_dir" default:"Output/Historical_Summaries" validate:"required"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"priceband"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic" default:"priceband.bands"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"10ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
}

type RedisConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Addr       string        `yaml:"addr" default:"localhost:6379"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	SummaryTTL time.Duration `yaml:"summary_ttl" default:"24h"`
	QueueKey   string        `yaml:"queue_key" default:"priceband:queue"`
	Workers    int           `yaml:"workers" default:"1" validate:"gte=1"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file, applies defaults and
// validates the result.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads config from YAML, overrides it with environment variables
// and validates the merged result.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Parse builds an unvalidated Config from YAML bytes with defaults applied.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

func read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// ApplyEnv overrides secrets and deployment settings from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("FMP_API_KEY"); v != "" {
		c.Market.APIKey = v
	}
	if v := getenv("TICKERS"); v != "" {
		c.Forecast.Tickers = splitList(v)
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Forecast.StartDate.IsZero() || c.Forecast.EndDate.IsZero() {
		return errors.New("forecast.start_date and forecast.end_date are required")
	}
	if c.Forecast.EndDate.Before(c.Forecast.StartDate.Time) {
		return fmt.Errorf("forecast.end_date %s is before start_date %s", c.Forecast.EndDate, c.Forecast.StartDate)
	}
	if c.Summary.Mode == "frequency" && c.Summary.Frequency == "" {
		return errors.New("summary.frequency is required when summary.mode is 'frequency'")
	}
	if c.Summary.Mode == "custom" || c.Summary.Mode == "frequency" {
		if !c.Summary.StartDate.IsZero() && !c.Summary.EndDate.IsZero() && c.Summary.EndDate.Before(c.Summary.StartDate.Time) {
			return fmt.Errorf("summary.end_date %s is before start_date %s", c.Summary.EndDate, c.Summary.StartDate)
		}
	}
	if c.Market.Source == "fmp" && c.Market.APIKey == "" {
		return errors.New("market.api_key is required for source 'fmp'")
	}
	if c.Market.Source == "clickhouse" && !c.ClickHouse.Enabled {
		return errors.New("market.source 'clickhouse' requires clickhouse.enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
