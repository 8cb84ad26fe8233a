package config

import (
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

const envPrefix = "ISPOTTER_"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Sampler SamplerConfig `yaml:"sampler"`
	Bus     BusConfig     `yaml:"bus"`
	History HistoryConfig `yaml:"history"`
	Mock    MockConfig    `yaml:"mock"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// AutoStart begins streaming as soon as the server is up instead of
	// waiting for POST /api/stream/start.
	AutoStart bool `yaml:"autostart"`
}

type SamplerConfig struct {
	Rate             float64       `yaml:"rate"`
	IdleInterval     time.Duration `yaml:"idle_interval"`
	MaxIdleInterval  time.Duration `yaml:"max_idle_interval"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Sectors          int           `yaml:"sectors"`
	Processes        []string      `yaml:"processes"`
}

type BusConfig struct {
	QueueCapacity  int    `yaml:"queue_capacity"`
	MaxSubscribers int    `yaml:"max_subscribers"`
	OverrunPolicy  string `yaml:"overrun_policy"`
}

type HistoryConfig struct {
	Size int `yaml:"size"`
}

type MockConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Seed       int64         `yaml:"seed"`
	PitEvery   int           `yaml:"pit_every"`
	OfflineFor time.Duration `yaml:"offline_for"`
}

type LoggingConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 5000,
			Host: "0.0.0.0",
		},
		Sampler: SamplerConfig{
			Rate:             60,
			IdleInterval:     time.Second,
			MaxIdleInterval:  5 * time.Second,
			FailureThreshold: 60,
			Sectors:          9,
		},
		Bus: BusConfig{
			QueueCapacity: 120,
			OverrunPolicy: "drop_oldest",
		},
		History: HistoryConfig{
			Size: 600,
		},
		Mock: MockConfig{
			PitEvery: 8,
		},
		Logging: LoggingConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// Load reads path over the defaults, applies .env and ISPOTTER_* overrides
// and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Printf("config: %s not found, using defaults", path)
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := lookup("PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sPORT=%q", ErrInvalid, envPrefix, v)
		}
		c.Server.Port = n
	}
	if v, ok := lookup("HOST"); ok {
		c.Server.Host = v
	}
	if v, ok := lookup("SAMPLE_RATE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %sSAMPLE_RATE=%q", ErrInvalid, envPrefix, v)
		}
		c.Sampler.Rate = f
	}
	if v, ok := lookup("MOCK"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sMOCK=%q", ErrInvalid, envPrefix, v)
		}
		c.Mock.Enabled = b
	}
	if v, ok := lookup("LOG_FILE"); ok {
		c.Logging.File = v
	}
	return nil
}

func lookup(key string) (string, bool) {
	v := os.Getenv(envPrefix + key)
	return v, v != ""
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Sampler.Rate <= 0 || math.IsNaN(c.Sampler.Rate) || math.IsInf(c.Sampler.Rate, 0) {
		errs = append(errs, fmt.Errorf("sampler.rate %v must be positive", c.Sampler.Rate))
	}
	if c.Bus.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("bus.queue_capacity %d must be positive", c.Bus.QueueCapacity))
	}
	if c.Bus.MaxSubscribers < 0 {
		errs = append(errs, fmt.Errorf("bus.max_subscribers %d is negative", c.Bus.MaxSubscribers))
	}
	switch c.Bus.OverrunPolicy {
	case "", "drop_oldest", "drop-oldest", "disconnect":
	default:
		errs = append(errs, fmt.Errorf("bus.overrun_policy %q unknown", c.Bus.OverrunPolicy))
	}
	if c.History.Size < 0 {
		errs = append(errs, fmt.Errorf("history.size %d is negative", c.History.Size))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// RestartRequired lists the sections of next that differ from c and only
// take effect on restart. The bus section is applied live.
func (c *Config) RestartRequired(next *Config) []string {
	var changed []string
	sections := []struct {
		name      string
		cur, next any
	}{
		{"server", c.Server, next.Server},
		{"sampler", c.Sampler, next.Sampler},
		{"history", c.History, next.History},
		{"mock", c.Mock, next.Mock},
		{"logging", c.Logging, next.Logging},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.cur, s.next) {
			changed = append(changed, s.name)
		}
	}
	return changed
}
