package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	AniList   AniListConfig   `mapstructure:"anilist"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Backup    BackupConfig    `mapstructure:"backup"`
	Log       LogConfig       `mapstructure:"log"`
}

// TelegramConfig configures the bot used for commands and delivery.
type TelegramConfig struct {
	BotToken    string `mapstructure:"bot_token"`
	AdminChatID int64  `mapstructure:"admin_chat_id"` // may run /check
	APIURL      string `mapstructure:"api_url"`
}

// DatabaseConfig selects the watch state store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite3 or postgres
	Path   string `mapstructure:"path"`   // sqlite file
	DSN    string `mapstructure:"dsn"`    // overrides path; required for postgres
}

// DataSource returns the driver DSN.
func (c DatabaseConfig) DataSource() string {
	if c.DSN != "" {
		return c.DSN
	}
	return c.Path
}

// LockPath is the file locked by a running daemon.
func (c DatabaseConfig) LockPath() string {
	if c.Driver == "postgres" || c.Path == "" {
		return "anime_notifier.lock"
	}
	return c.Path + ".lock"
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig configures the schedule cache.
type CacheConfig struct {
	Backend   string        `mapstructure:"backend"` // sql or redis
	Staleness time.Duration `mapstructure:"staleness"`
	RedisTTL  time.Duration `mapstructure:"redis_ttl"`
}

// ReconcileConfig configures the reconciliation scheduler.
type ReconcileConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	Window           time.Duration `mapstructure:"window"`
	RefreshAfterPass bool          `mapstructure:"refresh_after_pass"`
	RunOnStart       bool          `mapstructure:"run_on_start"`
}

type AniListConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	RequestInterval time.Duration `mapstructure:"request_interval"`
}

// HTTPConfig configures the admin API. An empty Addr disables it.
type HTTPConfig struct {
	Addr     string `mapstructure:"addr"`
	APIToken string `mapstructure:"api_token"`
}

type BackupConfig struct {
	Dir        string        `mapstructure:"dir"`
	Interval   time.Duration `mapstructure:"interval"` // zero disables backups
	MaxBackups int           `mapstructure:"max_backups"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console or auto
}

// legacyEnv maps config keys to the plain environment names used by existing
// deployments. NOTIFIER_-prefixed names work for every key.
var legacyEnv = map[string]string{
	"telegram.bot_token":     "TELEGRAM_BOT_TOKEN",
	"telegram.admin_chat_id": "TELEGRAM_CHAT_ID",
	"db.path":                "DB_PATH",
	"db.dsn":                 "DATABASE_URL",
	"redis.addr":             "REDIS_ADDR",
	"http.api_token":         "API_TOKEN",
	"backup.dir":             "BACKUP_DIR",
}

const envPrefix = "NOTIFIER"

// Load reads configuration from defaults, an optional config file and the
// environment, in increasing priority. An empty path searches ./config and .
// for config.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.admin_chat_id", 0)
	v.SetDefault("telegram.api_url", "https://api.telegram.org")

	v.SetDefault("db.driver", "sqlite3")
	v.SetDefault("db.path", "anime_notifier.db")
	v.SetDefault("db.dsn", "")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.backend", "sql")
	v.SetDefault("cache.staleness", "1h")
	v.SetDefault("cache.redis_ttl", "24h")

	v.SetDefault("reconcile.interval", "30m")
	v.SetDefault("reconcile.window", "2h")
	v.SetDefault("reconcile.refresh_after_pass", false)
	v.SetDefault("reconcile.run_on_start", true)

	v.SetDefault("anilist.base_url", "https://graphql.anilist.co")
	v.SetDefault("anilist.request_interval", "1s")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.api_token", "")

	v.SetDefault("backup.dir", "backups")
	v.SetDefault("backup.interval", "168h")
	v.SetDefault("backup.max_backups", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", legacy, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Bounds for reconcile.interval.
const (
	MinPassInterval = 5 * time.Minute
	MaxPassInterval = 30 * time.Minute
)

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Reconcile.Interval < MinPassInterval || c.Reconcile.Interval > MaxPassInterval {
		errs = append(errs, fmt.Errorf("reconcile.interval must be between %s and %s, got %s",
			MinPassInterval, MaxPassInterval, c.Reconcile.Interval))
	}
	if c.Reconcile.Window <= 0 {
		errs = append(errs, fmt.Errorf("reconcile.window must be positive, got %s", c.Reconcile.Window))
	}
	if c.Cache.Staleness <= 0 {
		errs = append(errs, fmt.Errorf("cache.staleness must be positive, got %s", c.Cache.Staleness))
	}
	if c.AniList.RequestInterval < time.Second {
		errs = append(errs, fmt.Errorf("anilist.request_interval must be at least 1s, got %s", c.AniList.RequestInterval))
	}

	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.DataSource() == "" {
			errs = append(errs, errors.New("db.path is required for sqlite3"))
		}
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("db.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("db.driver must be sqlite3 or postgres, got %q", c.Database.Driver))
	}

	switch c.Cache.Backend {
	case "sql":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis cache backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be sql or redis, got %q", c.Cache.Backend))
	}

	switch c.Log.Format {
	case "json", "console", "auto":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json, console or auto, got %q", c.Log.Format))
	}

	if c.Backup.Interval < 0 {
		errs = append(errs, fmt.Errorf("backup.interval must not be negative, got %s", c.Backup.Interval))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
