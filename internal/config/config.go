package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"shorturl-go/pkg/codegen"
	"shorturl-go/pkg/logging"
	"shorturl-go/pkg/qr"
)

// EnvPrefix 环境变量前缀，例如 SHORTURL_DB_DSN 覆盖 db.dsn
const EnvPrefix = "SHORTURL"

// Config 应用配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Codegen  codegen.Config `mapstructure:"codegen"`
	QR       qr.Options     `mapstructure:"qr"`
	ShortURL ShortURLConfig `mapstructure:"shorturl"`
	Routes   RoutesConfig   `mapstructure:"routes"`
	Auth     AuthConfig     `mapstructure:"auth"`
	I18n     I18nConfig     `mapstructure:"i18n"`
	Log      logging.Config `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	BaseURL         string        `mapstructure:"base_url"`
	Prefix          string        `mapstructure:"prefix"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Mode            string        `mapstructure:"mode"`
}

type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	TTL         time.Duration `mapstructure:"ttl"`
	NegativeTTL time.Duration `mapstructure:"negative_ttl"`
	MaxIdle     int           `mapstructure:"max_idle"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

type ShortURLConfig struct {
	EnableQR         bool          `mapstructure:"enable_qr"`
	EnableAnalytics  bool          `mapstructure:"enable_analytics"`
	ReuseExisting    bool          `mapstructure:"reuse_existing"`
	MaxRetries       int           `mapstructure:"max_retries"`
	AutoCleanup      bool          `mapstructure:"auto_cleanup"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
	AsyncAnalytics   bool          `mapstructure:"async_analytics"`
	AnalyticsBuffer  int           `mapstructure:"analytics_buffer"`
	AnalyticsWorkers int           `mapstructure:"analytics_workers"`
	AllowedDomains   []string      `mapstructure:"allowed_domains"`
}

// RoutesConfig 每个接口的开关
type RoutesConfig struct {
	Shorten      bool `mapstructure:"shorten"`
	Check        bool `mapstructure:"check"`
	Redirect     bool `mapstructure:"redirect"`
	Stats        bool `mapstructure:"stats"`
	List         bool `mapstructure:"list"`
	Update       bool `mapstructure:"update"`
	Delete       bool `mapstructure:"delete"`
	Health       bool `mapstructure:"health"`
	OverallStats bool `mapstructure:"overall_stats"`
}

type AuthConfig struct {
	APIKeys   []string `mapstructure:"api_keys"`
	JWTSecret string   `mapstructure:"jwt_secret"`
	JWTIssuer string   `mapstructure:"jwt_issuer"`
}

type I18nConfig struct {
	DefaultLang string `mapstructure:"default_lang"`
}

// SetDefaults 为所有配置项注册默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	// 没有默认值：短链地址必须显式配置，这里只注册键以便环境变量覆盖
	v.SetDefault("server.base_url", "")
	v.SetDefault("server.prefix", "/s")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.mode", "release")

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "shorturl.db")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", time.Hour)
	v.SetDefault("db.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", time.Hour)
	v.SetDefault("redis.negative_ttl", 5*time.Minute)
	v.SetDefault("redis.max_idle", 10)
	v.SetDefault("redis.idle_timeout", 240*time.Second)

	v.SetDefault("codegen.length", codegen.DefaultLength)
	v.SetDefault("codegen.charset", codegen.CharsetAlphanumeric)
	v.SetDefault("codegen.custom_charset", "")
	v.SetDefault("codegen.strategy", codegen.StrategyRandom)

	def := qr.DefaultOptions()
	v.SetDefault("qr.size", def.Size)
	v.SetDefault("qr.margin", def.Margin)
	v.SetDefault("qr.error_correction", def.ErrorCorrection)
	v.SetDefault("qr.foreground", def.Foreground)
	v.SetDefault("qr.background", def.Background)

	v.SetDefault("shorturl.enable_qr", true)
	v.SetDefault("shorturl.enable_analytics", true)
	v.SetDefault("shorturl.reuse_existing", false)
	v.SetDefault("shorturl.max_retries", 5)
	v.SetDefault("shorturl.auto_cleanup", false)
	v.SetDefault("shorturl.cleanup_interval", time.Hour)
	v.SetDefault("shorturl.async_analytics", false)
	v.SetDefault("shorturl.analytics_buffer", 1024)
	v.SetDefault("shorturl.analytics_workers", 4)
	v.SetDefault("shorturl.allowed_domains", []string{})

	for _, r := range []string{"shorten", "check", "redirect", "stats", "list", "update", "delete", "health", "overall_stats"} {
		v.SetDefault("routes."+r, true)
	}

	v.SetDefault("auth.api_keys", []string{})
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "")

	v.SetDefault("i18n.default_lang", "en")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "logs/shorturl.log")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 7)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.console_only", false)
}

// Load 读取配置文件并应用环境变量覆盖。
// path 为空时依次在 ./configs 与当前目录查找 config.yaml，找不到文件时仅使用默认值。
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// 环境变量中的逗号分隔列表
	cfg.Auth.APIKeys = splitList(strings.Join(cfg.Auth.APIKeys, ","))
	cfg.ShortURL.AllowedDomains = splitList(strings.Join(cfg.ShortURL.AllowedDomains, ","))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验必填项与数值范围
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.BaseURL) == "" {
		errs = append(errs, errors.New("server.base_url is required"))
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	if c.Server.Prefix != "" && !strings.HasPrefix(c.Server.Prefix, "/") {
		c.Server.Prefix = "/" + c.Server.Prefix
	}
	c.Server.Prefix = strings.TrimRight(c.Server.Prefix, "/")

	switch c.Server.Mode {
	case "", "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("server.mode %q is not supported", c.Server.Mode))
	}
	switch c.DB.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("db.driver %q is not supported", c.DB.Driver))
	}
	if c.DB.DSN == "" {
		errs = append(errs, errors.New("db.dsn is required"))
	}
	if c.ShortURL.MaxRetries < 1 {
		errs = append(errs, errors.New("shorturl.max_retries must be positive"))
	}
	if c.ShortURL.AutoCleanup && c.ShortURL.CleanupInterval < time.Second {
		errs = append(errs, errors.New("shorturl.cleanup_interval must be at least 1s"))
	}
	if c.ShortURL.AsyncAnalytics && (c.ShortURL.AnalyticsWorkers < 1 || c.ShortURL.AnalyticsBuffer < 1) {
		errs = append(errs, errors.New("shorturl.analytics_workers and analytics_buffer must be positive"))
	}
	if c.Codegen.Length < 1 {
		errs = append(errs, errors.New("codegen.length must be positive"))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	return errors.Join(errs...)
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
