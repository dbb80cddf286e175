package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App         AppConfig        `mapstructure:"app"`
	Server      ServerConfig     `mapstructure:"server"`
	Log         LogConfig        `mapstructure:"log"`
	DB          DBConfig         `mapstructure:"db"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Cron        CronConfig       `mapstructure:"cron"`
	Ingest      IngestConfig     `mapstructure:"ingest"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	RateLimit   RateLimitConfig  `mapstructure:"rate_limit"`
	Audit       AuditConfig      `mapstructure:"audit"`
	Dispatch    DispatchConfig   `mapstructure:"dispatch"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// RedisConfig points at the shared rate-limit counting store. Leave Addr empty
// to fall back to the in-process store (single-node deployments, tests).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CronConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	MarketplaceCache string `mapstructure:"marketplace_cache"`
	StaleEntrySweep  string `mapstructure:"stale_entry_sweep"`
	CounterGC        string `mapstructure:"counter_gc"`
}

type IngestConfig struct {
	DefaultSource   string        `mapstructure:"default_source"`
	StaleEntryAge   time.Duration `mapstructure:"stale_entry_age"`
	DuplicateWindow time.Duration `mapstructure:"duplicate_window"`
}

type MarketplaceConfig struct {
	VisibilityWindowDays int           `mapstructure:"visibility_window_days"`
	CacheTTL             time.Duration `mapstructure:"cache_ttl"`
}

// RateLimitConfig carries the per-category fixed-window rules.
type RateLimitConfig struct {
	General     RateLimitRule `mapstructure:"general"`
	Auth        RateLimitRule `mapstructure:"auth"`
	Trading     RateLimitRule `mapstructure:"trading"`
	Marketplace RateLimitRule `mapstructure:"marketplace"`
	Export      RateLimitRule `mapstructure:"export"`
}

type RateLimitRule struct {
	Window time.Duration `mapstructure:"window"`
	Max    int           `mapstructure:"max"`
}

type AuditConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

type DispatchConfig struct {
	ConnBuffer int `mapstructure:"conn_buffer"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.marketplace_cache", "@every 1m")
	v.SetDefault("cron.stale_entry_sweep", "@every 1h")
	v.SetDefault("cron.counter_gc", "@every 5m")
	v.SetDefault("ingest.default_source", "tradingview_webhook")
	v.SetDefault("ingest.stale_entry_age", "48h")
	v.SetDefault("ingest.duplicate_window", "5s")
	v.SetDefault("marketplace.visibility_window_days", 30)
	v.SetDefault("marketplace.cache_ttl", "1m")
	v.SetDefault("rate_limit.general.window", "15m")
	v.SetDefault("rate_limit.general.max", 100)
	v.SetDefault("rate_limit.auth.window", "15m")
	v.SetDefault("rate_limit.auth.max", 5)
	v.SetDefault("rate_limit.trading.window", "1m")
	v.SetDefault("rate_limit.trading.max", 30)
	v.SetDefault("rate_limit.marketplace.window", "1m")
	v.SetDefault("rate_limit.marketplace.max", 20)
	v.SetDefault("rate_limit.export.window", "1h")
	v.SetDefault("rate_limit.export.max", 3)
	v.SetDefault("audit.queue_size", 1024)
	v.SetDefault("dispatch.conn_buffer", 64)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
