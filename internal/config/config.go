package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const defaultJWTSecret = "your-secret-key"

type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Redis     RedisConfig     `yaml:"redis" json:"redis"`
	Worker    WorkerConfig    `yaml:"worker" json:"worker"`
	Auth      AuthConfig      `yaml:"auth" json:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	LogLevel  string          `yaml:"log_level" env:"LOG_LEVEL" env-default:"INFO" json:"log_level"`
}

type ServerConfig struct {
	Host           string        `yaml:"host" env:"HOST" env-default:"0.0.0.0" json:"host"`
	Port           string        `yaml:"port" env:"PORT" env-default:"4000" json:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" env-default:"30s" json:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" env-default:"30s" json:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT" env-default:"60s" json:"idle_timeout"`
	Environment    string        `yaml:"environment" env:"ENVIRONMENT" env-default:"development" json:"environment"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"*" json:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DB_DRIVER" env-default:"postgres" json:"driver"`
	Host            string        `yaml:"host" env:"DB_HOST" env-default:"localhost" json:"host"`
	Port            string        `yaml:"port" env:"DB_PORT" env-default:"5432" json:"port"`
	User            string        `yaml:"user" env:"DB_USER" env-default:"postgres" json:"user"`
	Password        string        `yaml:"password" env:"DB_PASSWORD" json:"password"`
	Name            string        `yaml:"name" env:"DB_NAME" env-default:"taskhub" json:"name"`
	SSLMode         string        `yaml:"ssl_mode" env:"DB_SSL_MODE" env-default:"disable" json:"ssl_mode"`
	Path            string        `yaml:"path" env:"DB_PATH" env-default:"taskhub.db" json:"path"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"25" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"10" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"1h" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"DB_CONN_MAX_IDLE_TIME" env-default:"30m" json:"conn_max_idle_time"`
}

// RedisConfig is optional: an empty Host disables notifications and the
// cleanup queue.
type RedisConfig struct {
	Host         string        `yaml:"host" env:"REDIS_HOST" json:"host"`
	Port         string        `yaml:"port" env:"REDIS_PORT" env-default:"6379" json:"port"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD" json:"password"`
	DB           int           `yaml:"db" env:"REDIS_DB" env-default:"0" json:"db"`
	PoolSize     int           `yaml:"pool_size" env:"REDIS_POOL_SIZE" env-default:"10" json:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" env:"REDIS_MIN_IDLE_CONNS" env-default:"2" json:"min_idle_conns"`
	MaxRetries   int           `yaml:"max_retries" env:"REDIS_MAX_RETRIES" env-default:"3" json:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" env-default:"5s" json:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"REDIS_READ_TIMEOUT" env-default:"3s" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"REDIS_WRITE_TIMEOUT" env-default:"3s" json:"write_timeout"`
}

type WorkerConfig struct {
	Concurrency  int           `yaml:"concurrency" env:"WORKER_CONCURRENCY" env-default:"2" json:"concurrency"`
	PollInterval time.Duration `yaml:"poll_interval" env:"WORKER_POLL_INTERVAL" env-default:"5s" json:"poll_interval"`
	Queues       []string      `yaml:"queues" env:"WORKER_QUEUES" env-default:"attachments,retry_queue" json:"queues"`
	MaxTries     int           `yaml:"max_tries" env:"WORKER_MAX_TRIES" env-default:"3" json:"max_tries"`
}

type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"your-secret-key" json:"-"`
	Issuer          string        `yaml:"issuer" env:"JWT_ISSUER" env-default:"taskhub-backend" json:"issuer"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"24h" json:"access_token_ttl"`
	BCryptCost      int           `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"10" json:"bcrypt_cost"`
	AllowRoleSignup bool          `yaml:"allow_role_signup" env:"ALLOW_ROLE_SIGNUP" env-default:"true" json:"allow_role_signup"`
}

type RateLimitConfig struct {
	Enabled         bool          `yaml:"enabled" env:"RATE_LIMIT_ENABLED" env-default:"true" json:"enabled"`
	RequestsPerMin  int           `yaml:"requests_per_minute" env:"RATE_LIMIT_RPM" env-default:"100" json:"requests_per_minute"`
	BurstSize       int           `yaml:"burst_size" env:"RATE_LIMIT_BURST" env-default:"10" json:"burst_size"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"RATE_LIMIT_CLEANUP" env-default:"10m" json:"cleanup_interval"`
}

// StorageConfig selects the attachment backend. Backend "" picks s3 when a
// bucket is configured and local otherwise.
type StorageConfig struct {
	Backend        string `yaml:"backend" env:"STORAGE_BACKEND" json:"backend"`
	UploadDir      string `yaml:"upload_dir" env:"UPLOAD_DIR" env-default:"uploads" json:"upload_dir"`
	PublicPath     string `yaml:"public_path" env:"UPLOAD_PUBLIC_PATH" env-default:"/uploads" json:"public_path"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" env-default:"10485760" json:"max_upload_bytes"`
	Bucket         string `yaml:"bucket" env:"AWS_BUCKET_NAME" json:"bucket"`
	Region         string `yaml:"region" env:"AWS_REGION" env-default:"us-east-1" json:"region"`
	AccessKeyID    string `yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID" json:"-"`
	SecretKey      string `yaml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY" json:"-"`
	Endpoint       string `yaml:"endpoint" env:"AWS_ENDPOINT_URL" json:"endpoint"`
	PublicBaseURL  string `yaml:"public_base_url" env:"PUBLIC_BASE_URL" json:"public_base_url"`
	PublicRead     bool   `yaml:"public_read" env:"S3_PUBLIC_READ" env-default:"true" json:"public_read"`
}

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// LoadConfig reads .env (if present) and then the process environment.
func LoadConfig() (*Config, error) {
	return LoadConfigFile("")
}

// LoadConfigFile reads a YAML file when path is non-empty and falls back to
// the environment when the file does not exist.
func LoadConfigFile(path string) (*Config, error) {
	_ = godotenv.Load()

	var config Config
	if path == "" {
		if err := cleanenv.ReadEnv(&config); err != nil {
			return nil, fmt.Errorf("read env: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, &config); err != nil {
		var pe *os.PathError
		if !errors.As(err, &pe) {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := cleanenv.ReadEnv(&config); err != nil {
			return nil, fmt.Errorf("read env: %w", err)
		}
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if c.Database.Driver == "postgres" && c.Database.Password == "" && c.IsProduction() {
		return fmt.Errorf("database password is required in production")
	}

	if c.Auth.JWTSecret == defaultJWTSecret && c.IsProduction() {
		return fmt.Errorf("JWT secret must be set in production")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	switch c.StorageBackend() {
	case StorageLocal:
	case StorageS3:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("AWS_BUCKET_NAME is required for the s3 storage backend")
		}
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}
	return nil
}

// StorageBackend resolves the configured attachment backend name.
func (c *Config) StorageBackend() string {
	backend := strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if backend != "" {
		return backend
	}
	if c.Storage.Bucket != "" {
		return StorageS3
	}
	return StorageLocal
}

func (c *Config) GetDatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.Path
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
