package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const MiB = 1 << 20

type Config struct {
	Server    ServerConfig                `mapstructure:"server"`
	Database  DatabaseConfig              `mapstructure:"database"`
	Storage   StorageConfig               `mapstructure:"storage"`
	Redis     RedisConfig                 `mapstructure:"redis"`
	RateLimit RateLimitConfig             `mapstructure:"rate_limit"`
	Audit     AuditConfig                 `mapstructure:"audit"`
	Log       LogConfig                   `mapstructure:"log"`
	Admin     AdminConfig                 `mapstructure:"admin"`
	Uploads   map[string]UploadRuleConfig `mapstructure:"uploads"`
	JWTSecret string                      `mapstructure:"jwt_secret"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.IsSQLite() {
		return d.Path + "/" + d.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

type StorageConfig struct {
	Driver        string   `mapstructure:"driver"` // "local" or "s3"
	LocalPath     string   `mapstructure:"local_path"`
	DefaultBucket string   `mapstructure:"default_bucket"`
	S3            S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"` // set for S3-compatible stores
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"` // empty disables Redis
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RateLimitConfig struct {
	UploadsPerWindow int `mapstructure:"uploads_per_window"`
	WindowSeconds    int `mapstructure:"window_seconds"`
}

type AuditConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	RetentionDays   int  `mapstructure:"retention_days"`
	BufferSize      int  `mapstructure:"buffer_size"`
	FlushIntervalMs int  `mapstructure:"flush_interval_ms"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type AdminConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// UploadRuleConfig is the admission policy for one upload use case.
type UploadRuleConfig struct {
	AllowedMimeTypes []string `mapstructure:"allowed_mime_types"`
	MaxSizeBytes     int64    `mapstructure:"max_size_bytes"`
	Buckets          []string `mapstructure:"buckets"`
	Folder           string   `mapstructure:"folder"`
	DenyWhen         string   `mapstructure:"deny_when"`
}

// Load reads app.yaml from the working directory (or ../..) on top of the
// defaults. A missing file is not an error.
func Load() (*Config, error) {
	return load("")
}

// LoadFile reads the given config file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("app")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("../..")
	}

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "kitloop")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("jwt_secret", "changeme-secret")
	v.SetDefault("admin.email", "admin@kitloop.local")
	v.SetDefault("admin.password", "changeme")
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_path", "./uploads")
	v.SetDefault("storage.default_bucket", "gear-images")
	v.SetDefault("storage.s3.region", "eu-central-1")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("rate_limit.uploads_per_window", 30)
	v.SetDefault("rate_limit.window_seconds", 60)
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.retention_days", 30)
	v.SetDefault("audit.buffer_size", 500)
	v.SetDefault("audit.flush_interval_ms", 500)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("uploads.gear_image.allowed_mime_types", []string{"image/jpeg", "image/png", "image/webp", "image/gif"})
	v.SetDefault("uploads.gear_image.max_size_bytes", 5*MiB)
	v.SetDefault("uploads.gear_image.folder", "gear")
	v.SetDefault("uploads.avatar.allowed_mime_types", []string{"image/jpeg", "image/png", "image/webp"})
	v.SetDefault("uploads.avatar.max_size_bytes", 2*MiB)
	v.SetDefault("uploads.avatar.folder", "avatars")
	v.SetDefault("uploads.rental_document.allowed_mime_types", []string{"application/pdf", "image/jpeg", "image/png"})
	v.SetDefault("uploads.rental_document.max_size_bytes", 10*MiB)
	v.SetDefault("uploads.rental_document.folder", "documents")
}
