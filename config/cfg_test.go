package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
[storage]
backend = "bunt"

[auth]
jwt_secret = "secret"

[engine]
reservation_ttl = "5m"

[scheduler]
backend = "db"
max_attempts = 3
retry_backoff = "2s"

[notify]
sinks = ["log", "kafka"]

[notify.kafka]
brokers = ["k1:9092", "k2:9092"]
topic = "tickets"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, testConfig))
	require.NoError(t, err)

	assert.Equal(t, StorageBunt, cfg.Storage.Backend)
	assert.Equal(t, "secret", cfg.Auth.Secret)
	assert.Equal(t, 5*time.Minute, cfg.Engine.ReservationTTL)
	assert.Equal(t, SchedulerDB, cfg.Scheduler.Backend)
	assert.Equal(t, 3, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.RetryBackoff)
	assert.Equal(t, []string{"log", "kafka"}, cfg.Notify.Sinks)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.Kafka.Brokers)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "from-env")
	t.Setenv("ENGINE_CLAIM_WINDOW", "45m")
	t.Setenv("RATE_LIMIT_MAX_PER_USER", "3")

	cfg, err := LoadConfig(writeConfig(t, testConfig))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.Secret)
	assert.Equal(t, 45*time.Minute, cfg.Engine.ClaimWindow)
	assert.Equal(t, 3, cfg.RateLimit.MaxPerUser)
}

func TestLoadConfigBuildsDSN(t *testing.T) {
	t.Setenv("MYSQL_HOST", "db")
	t.Setenv("MYSQL_USER", "tickets")
	t.Setenv("MYSQL_PASSWORD", "pw")
	t.Setenv("MYSQL_DATABASE", "tickets")

	cfg, err := LoadConfig(writeConfig(t, `[auth]
jwt_secret = "secret"
`))
	require.NoError(t, err)
	assert.Equal(t, StorageMySQL, cfg.Storage.Backend)
	assert.Equal(t, "tickets:pw@tcp(db:3306)/tickets?charset=utf8mb4&parseTime=true", cfg.DB.DSN)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := &Config{}
		c.Storage.Backend = StorageBunt
		c.Scheduler.Backend = SchedulerDB
		c.Auth.Secret = "secret"
		return c
	}
	require.NoError(t, base().Validate())

	c := base()
	c.Storage.Backend = "postgres"
	assert.Error(t, c.Validate())

	c = base()
	c.Storage.Backend = StorageMySQL
	assert.Error(t, c.Validate())

	c = base()
	c.Scheduler.Backend = SchedulerRedis
	assert.Error(t, c.Validate())
	c.Redis.Addr = "localhost:6379"
	assert.NoError(t, c.Validate())

	c = base()
	c.Auth.Secret = ""
	assert.Error(t, c.Validate())
}
