package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultJWTExpiresIn    = "24h"
	DefaultPGHost          = "127.0.0.1"
	DefaultPGPort          = 5432
	DefaultPGUser          = "postgres"
	DefaultPGDatabase      = "plugbot"
	DefaultPGSSLMode       = "disable"
	DefaultEditEveryChars  = 20
	DefaultMaxFileBytes    = 15 * 1024 * 1024
	DefaultPlaceholder     = "…"
	DefaultDifyTimeout     = "30s"
	DefaultDifyHealthLimit = "5s"
	DefaultDifyStreamIdle  = "30s"
	DefaultStopTimeout     = "10s"
	DefaultHealthSchedule  = "@every 5m"
	DefaultLanguage        = "en"
	DefaultServiceName     = "plugbot"
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Admin     AdminConfig     `toml:"admin"`
	Auth      AuthConfig      `toml:"auth"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	Secrets   SecretsConfig   `toml:"secrets"`
	Mail      MailConfig      `toml:"mail"`
	Relay     RelayConfig     `toml:"relay"`
	Dify      DifyConfig      `toml:"dify"`
	Channel   ChannelConfig   `toml:"channel"`
	Health    HealthConfig    `toml:"health"`
	I18n      I18nConfig      `toml:"i18n"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type AdminConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
	// PasswordHash takes precedence over Password when set (bcrypt).
	PasswordHash string `toml:"password_hash"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// RedisConfig selects the session store. An empty Addr uses the in-process store.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type SecretsConfig struct {
	Key string `toml:"key"`
}

type MailConfig struct {
	Provider      string `toml:"provider"`
	From          string `toml:"from"`
	SMTPHost      string `toml:"smtp_host"`
	SMTPPort      int    `toml:"smtp_port"`
	SMTPUsername  string `toml:"smtp_username"`
	SMTPPassword  string `toml:"smtp_password"`
	SMTPSecurity  string `toml:"smtp_security"`
	MailgunDomain string `toml:"mailgun_domain"`
	MailgunAPIKey string `toml:"mailgun_api_key"`
	MailgunRegion string `toml:"mailgun_region"`
}

type RelayConfig struct {
	EditEveryChars int    `toml:"edit_every_chars"`
	MaxFileBytes   int64  `toml:"max_file_bytes"`
	Placeholder    string `toml:"placeholder"`
}

type DifyConfig struct {
	RequestTimeout string `toml:"request_timeout"`
	HealthTimeout  string `toml:"health_timeout"`
	StreamTimeout  string `toml:"stream_timeout"`
}

func (c DifyConfig) RequestTimeoutDuration() time.Duration {
	return parseDuration(c.RequestTimeout, 30*time.Second)
}

func (c DifyConfig) HealthTimeoutDuration() time.Duration {
	return parseDuration(c.HealthTimeout, 5*time.Second)
}

func (c DifyConfig) StreamTimeoutDuration() time.Duration {
	return parseDuration(c.StreamTimeout, 30*time.Second)
}

type ChannelConfig struct {
	StopTimeout string `toml:"stop_timeout"`
	AutoStart   bool   `toml:"auto_start"`
}

func (c ChannelConfig) StopTimeoutDuration() time.Duration {
	return parseDuration(c.StopTimeout, 10*time.Second)
}

type HealthConfig struct {
	Schedule string `toml:"schedule"`
}

type I18nConfig struct {
	DefaultLanguage string `toml:"default_language"`
}

type TelemetryConfig struct {
	OTLPEndpoint   string `toml:"otlp_endpoint"`
	ServiceName    string `toml:"service_name"`
	MetricsEnabled bool   `toml:"metrics_enabled"`
}

func (c AuthConfig) ExpiresIn() time.Duration {
	return parseDuration(c.JWTExpiresIn, 24*time.Hour)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Admin: AdminConfig{
			Username: "admin",
			Password: "change-your-password-here",
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Mail: MailConfig{
			Provider:      "smtp",
			SMTPPort:      587,
			SMTPSecurity:  "starttls",
			MailgunRegion: "us",
		},
		Relay: RelayConfig{
			EditEveryChars: DefaultEditEveryChars,
			MaxFileBytes:   DefaultMaxFileBytes,
			Placeholder:    DefaultPlaceholder,
		},
		Dify: DifyConfig{
			RequestTimeout: DefaultDifyTimeout,
			HealthTimeout:  DefaultDifyHealthLimit,
			StreamTimeout:  DefaultDifyStreamIdle,
		},
		Channel: ChannelConfig{
			StopTimeout: DefaultStopTimeout,
			AutoStart:   true,
		},
		Health: HealthConfig{
			Schedule: DefaultHealthSchedule,
		},
		I18n: I18nConfig{
			DefaultLanguage: DefaultLanguage,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    DefaultServiceName,
			MetricsEnabled: true,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv lets deployments inject secrets without writing them to the config file.
func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setString("PLUGBOT_JWT_SECRET", &cfg.Auth.JWTSecret)
	setString("PLUGBOT_SECRETS_KEY", &cfg.Secrets.Key)
	setString("PLUGBOT_ADMIN_PASSWORD", &cfg.Admin.Password)
	setString("PLUGBOT_PG_HOST", &cfg.Postgres.Host)
	setString("PLUGBOT_PG_USER", &cfg.Postgres.User)
	setString("PLUGBOT_PG_PASSWORD", &cfg.Postgres.Password)
	setString("PLUGBOT_PG_DATABASE", &cfg.Postgres.Database)
	setString("PLUGBOT_REDIS_ADDR", &cfg.Redis.Addr)
	setString("PLUGBOT_REDIS_PASSWORD", &cfg.Redis.Password)
	setString("PLUGBOT_SMTP_PASSWORD", &cfg.Mail.SMTPPassword)
	setString("PLUGBOT_MAILGUN_API_KEY", &cfg.Mail.MailgunAPIKey)
	if v, ok := os.LookupEnv("PLUGBOT_PG_PORT"); ok {
		if port, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && port > 0 {
			cfg.Postgres.Port = port
		}
	}
}
