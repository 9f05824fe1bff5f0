package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env  string `mapstructure:"env"`
	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`
	Database struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"database"`
	Store struct {
		Driver string `mapstructure:"driver"`
	} `mapstructure:"store"`
	Gateway struct {
		Token string `mapstructure:"token"`
	} `mapstructure:"gateway"`
	Scheduler struct {
		Enabled  bool          `mapstructure:"enabled"`
		Interval time.Duration `mapstructure:"interval"`
		Workers  int           `mapstructure:"workers"`
	} `mapstructure:"scheduler"`
	Sync struct {
		URL      string        `mapstructure:"url"`
		Token    string        `mapstructure:"token"`
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"sync"`
	R2 struct {
		AccountID       string `mapstructure:"account_id"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		AccessKeySecret string `mapstructure:"access_key_secret"`
		Bucket          string `mapstructure:"bucket"`
		CDNBaseURL      string `mapstructure:"cdn_base_url"`
	} `mapstructure:"r2"`
	CORS struct {
		AllowedOrigins string `mapstructure:"allowed_origins"`
	} `mapstructure:"cors"`
	Settings struct {
		SeedDefaults bool `mapstructure:"seed_defaults"`
	} `mapstructure:"settings"`
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

func (c *Config) Production() bool {
	return c.Env == "production"
}

func (c *Config) R2Enabled() bool {
	return c.R2.AccountID != "" && c.R2.Bucket != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("http.addr", ":5300")
	v.SetDefault("database.url", "")
	v.SetDefault("store.driver", DriverPostgres)
	v.SetDefault("gateway.token", "")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", time.Minute)
	v.SetDefault("scheduler.workers", 1)
	v.SetDefault("sync.url", "")
	v.SetDefault("sync.token", "")
	v.SetDefault("sync.interval", time.Minute)
	v.SetDefault("r2.account_id", "")
	v.SetDefault("r2.access_key_id", "")
	v.SetDefault("r2.access_key_secret", "")
	v.SetDefault("r2.bucket", "")
	v.SetDefault("r2.cdn_base_url", "")
	v.SetDefault("cors.allowed_origins", "http://localhost:5173")
	v.SetDefault("settings.seed_defaults", true)
}

// Load reads .env (if present), an optional config.yaml and the environment.
// Environment variables use upper case keys with dots replaced by underscores,
// e.g. DATABASE_URL or SCHEDULER_INTERVAL.
func Load(paths ...string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("database.url (DATABASE_URL) is required for the postgres store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Production() && c.Gateway.Token == "" {
		return errors.New("gateway.token (GATEWAY_TOKEN) is required in production")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive, got %s", c.Scheduler.Interval)
	}
	if c.Scheduler.Workers < 1 {
		c.Scheduler.Workers = 1
	}
	if c.Sync.URL != "" && c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive, got %s", c.Sync.Interval)
	}
	return nil
}

// AllowedOrigins returns the trimmed, comma separated CORS origins.
func (c *Config) AllowedOrigins() string {
	parts := strings.Split(c.CORS.AllowedOrigins, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}
