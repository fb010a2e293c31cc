package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// LINKSHELF_SERVER_ADDRESS for server.address
const EnvPrefix = "LINKSHELF"

// Config holds all application configuration
type Config struct {
	Server      Server      `mapstructure:"server"`
	Database    Database    `mapstructure:"database"`
	Attachments Attachments `mapstructure:"attachments"`
	Auth        Auth        `mapstructure:"auth"`
	Log         Log         `mapstructure:"log"`
	Queue       Queue       `mapstructure:"queue"`
	Worker      Worker      `mapstructure:"worker"`
	Enrichment  Enrichment  `mapstructure:"enrichment"`
	Telemetry   Telemetry   `mapstructure:"telemetry"`
}

type Server struct {
	Address string `mapstructure:"address"`
	BaseURL string `mapstructure:"base_url"`
}

type Database struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	URL    string `mapstructure:"url"`
}

// UsePostgres returns true if PostgreSQL should be used
func (d Database) UsePostgres() bool {
	return d.Driver == "postgres"
}

// Attachments configures where fetched preview images live
type Attachments struct {
	BasePath  string `mapstructure:"base_path"`
	MaxSizeMB int64  `mapstructure:"max_size_mb"`
}

// MaxBytes returns the attachment size limit in bytes
func (a Attachments) MaxBytes() int64 {
	return a.MaxSizeMB * 1024 * 1024
}

type Auth struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Queue selects and configures the enrichment job queue backend
type Queue struct {
	Driver       string `mapstructure:"driver"`
	BadgerPath   string `mapstructure:"badger_path"`
	RedisAddr    string `mapstructure:"redis_addr"`
	KafkaBrokers string `mapstructure:"kafka_brokers"`
	KafkaTopic   string `mapstructure:"kafka_topic"`
	MaxAttempts  int    `mapstructure:"max_attempts"`
}

type Worker struct {
	Embedded      bool          `mapstructure:"embedded"`
	Concurrency   int           `mapstructure:"concurrency"`
	PollSchedule  string        `mapstructure:"poll_schedule"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
	SweepAfter    time.Duration `mapstructure:"sweep_after"`
}

// Enrichment configures the preview strategies
type Enrichment struct {
	Preview               string        `mapstructure:"preview"`
	PreviewEndpoint       string        `mapstructure:"preview_endpoint"`
	PreviewKey            string        `mapstructure:"preview_key"`
	Snapshot              bool          `mapstructure:"snapshot"`
	ExplicitImageFallback bool          `mapstructure:"explicit_image_fallback"`
	FetchTimeout          time.Duration `mapstructure:"fetch_timeout"`
}

type Telemetry struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Environment string  `mapstructure:"environment"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.base_url", "http://localhost:8080")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "linkshelf.db")
	v.SetDefault("database.url", "")

	v.SetDefault("attachments.base_path", "./attachments")
	v.SetDefault("attachments.max_size_mb", 10)

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("queue.driver", "badger")
	v.SetDefault("queue.badger_path", "./queue")
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.kafka_brokers", "localhost:9092")
	v.SetDefault("queue.kafka_topic", "linkshelf.enrichment")
	v.SetDefault("queue.max_attempts", 5)

	v.SetDefault("worker.embedded", true)
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.poll_schedule", "@every 1s")
	v.SetDefault("worker.sweep_schedule", "@every 10m")
	v.SetDefault("worker.sweep_after", 15*time.Minute)

	v.SetDefault("enrichment.preview", "none")
	v.SetDefault("enrichment.preview_endpoint", "")
	v.SetDefault("enrichment.preview_key", "")
	v.SetDefault("enrichment.snapshot", true)
	v.SetDefault("enrichment.explicit_image_fallback", false)
	v.SetDefault("enrichment.fetch_timeout", 30*time.Second)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Load reads config.yaml from path (or CONFIG_PATH when path is empty) and
// applies LINKSHELF_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "./configs"
	}
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated values and cross-field requirements
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}

	switch c.Queue.Driver {
	case "badger", "redis", "kafka":
	default:
		return fmt.Errorf("unsupported queue.driver %q", c.Queue.Driver)
	}
	if c.Queue.MaxAttempts < 1 {
		return errors.New("queue.max_attempts must be at least 1")
	}

	if c.Worker.Concurrency < 1 {
		return errors.New("worker.concurrency must be at least 1")
	}

	switch c.Enrichment.Preview {
	case "none", "rod":
	case "embed":
		if c.Enrichment.PreviewEndpoint == "" {
			return errors.New("enrichment.preview_endpoint is required for the embed previewer")
		}
	default:
		return fmt.Errorf("unsupported enrichment.preview %q", c.Enrichment.Preview)
	}

	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	return nil
}
