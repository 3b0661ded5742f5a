package config

import (
	"fmt"
	"os"
	"strings"

	httpapi "github.com/jekabolt/grbpwr-tickets/internal/api/http"
	"github.com/jekabolt/grbpwr-tickets/internal/apisrv/tickets"
	"github.com/jekabolt/grbpwr-tickets/internal/auth/jwt"
	"github.com/jekabolt/grbpwr-tickets/internal/expirysweep"
	"github.com/jekabolt/grbpwr-tickets/internal/notify"
	"github.com/jekabolt/grbpwr-tickets/internal/ratelimit"
	"github.com/jekabolt/grbpwr-tickets/internal/reservation"
	"github.com/jekabolt/grbpwr-tickets/internal/scheduler"
	"github.com/jekabolt/grbpwr-tickets/internal/scheduler/redisq"
	"github.com/jekabolt/grbpwr-tickets/internal/store"
	"github.com/jekabolt/grbpwr-tickets/internal/store/bunt"
	"github.com/jekabolt/grbpwr-tickets/log"
	"github.com/spf13/viper"
)

const (
	StorageMySQL = "mysql"
	StorageBunt  = "bunt"

	SchedulerDB    = "db"
	SchedulerRedis = "redis"
)

// StorageConfig selects the repository implementation.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

// SchedulerConfig selects where deferred tasks are kept.
type SchedulerConfig struct {
	Backend          string `mapstructure:"backend"`
	scheduler.Config `mapstructure:",squash"`
}

// Config represents the global configuration for the service.
type Config struct {
	Storage   StorageConfig      `mapstructure:"storage"`
	DB        store.Config       `mapstructure:"mysql"`
	Bunt      bunt.Config        `mapstructure:"bunt"`
	Logger    log.Config         `mapstructure:"logger"`
	HTTP      httpapi.Config     `mapstructure:"http"`
	API       tickets.Config     `mapstructure:"api"`
	Auth      jwt.Config         `mapstructure:"auth"`
	Engine    reservation.Config `mapstructure:"engine"`
	Scheduler SchedulerConfig    `mapstructure:"scheduler"`
	Redis     redisq.Config      `mapstructure:"redis"`
	Notify    notify.Config      `mapstructure:"notify"`
	Sweep     expirysweep.Config `mapstructure:"sweep"`
	RateLimit ratelimit.Config   `mapstructure:"rate_limit"`
}

// Validate checks the backend selections.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageMySQL:
		if c.DB.DSN == "" {
			return fmt.Errorf("mysql.dsn is required for the mysql storage backend")
		}
	case StorageBunt:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Scheduler.Backend {
	case SchedulerDB:
	case SchedulerRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis scheduler backend")
		}
	default:
		return fmt.Errorf("unknown scheduler backend %q", c.Scheduler.Backend)
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	return nil
}

// LoadConfig loads the configuration from a file and/or environment variables.
// Environment variables take precedence over config file values.
// Env vars use underscores and uppercase, e.g., MYSQL_DSN, AUTH_JWT_SECRET
// Nested config keys use double underscore, e.g., MYSQL__DSN for mysql.dsn
func LoadConfig(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__", "-", "__"))
	bindEnvVars(v)

	v.SetDefault("storage.backend", StorageMySQL)
	v.SetDefault("scheduler.backend", SchedulerDB)
	v.SetDefault("notify.sinks", []string{notify.SinkLog})

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %v", err)
			}
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/config/grbpwr-tickets")
		v.AddConfigPath("/etc/grbpwr-tickets")
		// Try to read config, but don't fail if it doesn't exist
		_ = v.ReadInConfig()
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config into struct: %v", err)
	}

	// Handle MySQL DSN construction from individual env vars if DSN is not set
	if config.DB.DSN == "" {
		mysqlHost := os.Getenv("MYSQL_HOST")
		mysqlPort := os.Getenv("MYSQL_PORT")
		mysqlUser := os.Getenv("MYSQL_USER")
		mysqlPassword := os.Getenv("MYSQL_PASSWORD")
		mysqlDatabase := os.Getenv("MYSQL_DATABASE")

		if mysqlHost != "" {
			if mysqlPort == "" {
				mysqlPort = "3306"
			}
			if mysqlUser != "" && mysqlPassword != "" && mysqlDatabase != "" {
				config.DB.DSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true",
					mysqlUser, mysqlPassword, mysqlHost, mysqlPort, mysqlDatabase)
				if config.DB.TLSCAPath != "" {
					config.DB.DSN += "&tls=custom"
				}
			}
		}
	}

	return &config, nil
}

// bindEnvVars binds environment variables to config keys
// This allows using both nested keys (MYSQL__DSN) and flat keys (MYSQL_DSN)
func bindEnvVars(v *viper.Viper) {
	// Storage
	v.BindEnv("storage.backend", "STORAGE_BACKEND")
	v.BindEnv("bunt.path", "BUNT_PATH")

	// MySQL
	v.BindEnv("mysql.dsn", "MYSQL_DSN")
	v.BindEnv("mysql.automigrate", "MYSQL_AUTOMIGRATE")
	v.BindEnv("mysql.max_open_connections", "MYSQL_MAX_OPEN_CONNECTIONS")
	v.BindEnv("mysql.max_idle_connections", "MYSQL_MAX_IDLE_CONNECTIONS")
	v.BindEnv("mysql.tls_ca_path", "MYSQL_TLS_CA_PATH")
	v.BindEnv("mysql.tx_max_retries", "MYSQL_TX_MAX_RETRIES")
	v.BindEnv("mysql.tx_retry_backoff", "MYSQL_TX_RETRY_BACKOFF")

	// Logger
	v.BindEnv("logger.level", "LOG_LEVEL")
	v.BindEnv("logger.add_source", "LOG_ADD_SOURCE")

	// HTTP
	v.BindEnv("http.port", "HTTP_PORT")
	v.BindEnv("http.address", "HTTP_ADDRESS")
	v.BindEnv("http.allowed_origins", "HTTP_ALLOWED_ORIGINS")
	v.BindEnv("http.request_timeout", "HTTP_REQUEST_TIMEOUT")
	v.BindEnv("api.task_secret", "API_TASK_SECRET")

	// Auth
	v.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET")
	v.BindEnv("auth.jwt_ttl", "AUTH_JWT_TTL")

	// Engine
	v.BindEnv("engine.reservation_ttl", "ENGINE_RESERVATION_TTL")
	v.BindEnv("engine.claim_window", "ENGINE_CLAIM_WINDOW")
	v.BindEnv("engine.waitlist_batch_size", "ENGINE_WAITLIST_BATCH_SIZE")

	// Scheduler
	v.BindEnv("scheduler.backend", "SCHEDULER_BACKEND")
	v.BindEnv("scheduler.worker_interval", "SCHEDULER_WORKER_INTERVAL")
	v.BindEnv("scheduler.lease", "SCHEDULER_LEASE")
	v.BindEnv("scheduler.batch_size", "SCHEDULER_BATCH_SIZE")
	v.BindEnv("scheduler.max_attempts", "SCHEDULER_MAX_ATTEMPTS")
	v.BindEnv("scheduler.retry_backoff", "SCHEDULER_RETRY_BACKOFF")

	// Redis
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("redis.key", "REDIS_KEY")

	// Notify
	v.BindEnv("notify.sinks", "NOTIFY_SINKS")
	v.BindEnv("notify.mail.sendgrid_api_key", "MAILER_SENDGRID_API_KEY")
	v.BindEnv("notify.mail.from_email", "MAILER_FROM_EMAIL")
	v.BindEnv("notify.mail.from_email_name", "MAILER_FROM_EMAIL_NAME")
	v.BindEnv("notify.mail.reply_to", "MAILER_REPLY_TO")
	v.BindEnv("notify.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("notify.kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("notify.kafka.write_timeout", "KAFKA_WRITE_TIMEOUT")
	v.BindEnv("notify.amqp.url", "AMQP_URL")
	v.BindEnv("notify.amqp.exchange", "AMQP_EXCHANGE")

	// Expiry sweep
	v.BindEnv("sweep.worker_interval", "SWEEP_WORKER_INTERVAL")
	v.BindEnv("sweep.batch_size", "SWEEP_BATCH_SIZE")

	// Rate limit
	v.BindEnv("rate_limit.window", "RATE_LIMIT_WINDOW")
	v.BindEnv("rate_limit.max_per_user", "RATE_LIMIT_MAX_PER_USER")
	v.BindEnv("rate_limit.max_per_ip", "RATE_LIMIT_MAX_PER_IP")
}
