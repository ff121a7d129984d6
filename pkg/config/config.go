package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
)

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

type SchedulerConfig struct {
	// Interval between ticks. Ticks never overlap; a tick that outlives the
	// interval causes the next one to be skipped, not queued.
	Interval time.Duration `mapstructure:"interval"`
	// Lookahead window for expiring-soon reminders.
	Lookahead time.Duration `mapstructure:"lookahead"`
	// Workers bounds concurrent per-customer router operations.
	Workers int `mapstructure:"workers"`
}

type RouterConfig struct {
	// DialTimeout applies to reconciler operations, SetupTimeout to the
	// heavier provisioning run, StatusTimeout to the read-only status check.
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	SetupTimeout  time.Duration `mapstructure:"setup_timeout"`
	StatusTimeout time.Duration `mapstructure:"status_timeout"`
	// VerifyDelay is how long to wait before re-reading an address list
	// after an add. The device acks writes it has not yet applied.
	VerifyDelay time.Duration `mapstructure:"verify_delay"`
}

type PortalConfig struct {
	// URL the NAT redirect rules point at, e.g. "http://10.0.0.10:3000".
	// Fallback for provisioning requests that don't carry one.
	URL string `mapstructure:"url"`
}

type Env string

const (
	EnvDev  Env = "dev"
	EnvProd Env = "prod"
)

type Config struct {
	Env         Env             `mapstructure:"env"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DBConfig        `mapstructure:"database"`
	Scheduler   SchedulerConfig `mapstructure:"scheduler"`
	Router      RouterConfig    `mapstructure:"router"`
	Portal      PortalConfig    `mapstructure:"portal"`
	MetricsAddr string          `mapstructure:"metrics_addr"`
}

func New() (*Config, error) {
	v := viper.New()
	// Allow overriding config file via env:
	// - APP_CONFIG_FILE: absolute or relative file path (e.g., /etc/app/prod.yaml)
	// - APP_CONFIG_NAME: config base name without extension (default: "config")
	if file := os.Getenv("APP_CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
	} else {
		cfgName := os.Getenv("APP_CONFIG_NAME")
		if cfgName == "" {
			cfgName = "config"
		}
		v.SetConfigName(cfgName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("env", "dev")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8890)
	v.SetDefault("database.dsn", "billing:billing@tcp(localhost:3306)/billing?parseTime=true&charset=utf8mb4")
	v.SetDefault("metrics_addr", ":90")
	v.SetDefault("scheduler.interval", time.Hour)
	v.SetDefault("scheduler.lookahead", 48*time.Hour)
	v.SetDefault("scheduler.workers", 6)
	v.SetDefault("router.dial_timeout", 10*time.Second)
	v.SetDefault("router.setup_timeout", 15*time.Second)
	v.SetDefault("router.status_timeout", 3*time.Second)
	v.SetDefault("router.verify_delay", 1500*time.Millisecond)
	v.SetDefault("portal.url", "http://localhost:3000")

	if err := v.ReadInConfig(); err != nil {
		_ = err
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &c, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
