// Package config loads process configuration from environment variables
// (and an optional .env file), following the original's struct-tag
// conventions.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every environment-sourced setting this service reads, split
// below into the domain collaborators/behavior named in SPEC_FULL.md §6 and
// the ambient process concerns (HTTP server, MQTT transport, Redis,
// Identity, logging, metrics, dispatch) the original lists as needed for a
// real deployable process.
type Config struct {
	// Outbound HTTP collaborators.
	BlockMgtURL       string `env:"BLOCK_MGT_URL,required"`
	FleetURL          string `env:"FLEET_URL,required"`
	GTFSStaticURL     string `env:"GTFS_STATIC_URL,required"`
	CCStaticURL       string `env:"CC_STATIC_URL,required"`
	TripManagementURL string `env:"TRIP_MANAGEMENT_URL,required"`

	// Deployment environment. "dev" substitutes BlockMgtAuthorization for a
	// real Identity-issued bearer token.
	Env                   string `env:"ENV" envDefault:"dev"`
	BlockMgtAuthorization string `env:"BLOCK_MGT_AUTHORIZATION"`

	Timezone string `env:"TIMEZONE" envDefault:"Pacific/Auckland"`

	TripDurationBuffer        time.Duration `env:"TRIP_DURATION_BUFFER" envDefault:"3600s"`
	SerialDataFilterThreshold time.Duration `env:"SERIAL_DATA_FILTER_THRESHOLD" envDefault:"900s"`
	AccuracyThreshold         float64       `env:"ACCURACY_THRESHOLD" envDefault:"50"`

	GodMode         bool `env:"GOD_MODE" envDefault:"false"`
	SmartrakGodMode bool `env:"SMARTRAK_GOD_MODE" envDefault:"false"`

	// Identity collaborator (client-credentials token acquisition used by
	// OAuthTokenSource outside of ENV=dev).
	IdentityTokenURL     string `env:"IDENTITY_TOKEN_URL"`
	IdentityClientID     string `env:"IDENTITY_CLIENT_ID"`
	IdentityClientSecret string `env:"IDENTITY_CLIENT_SECRET"`

	// HTTP server.
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"120s"`

	// Redis-backed KV store.
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// MQTT transport.
	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"realtime-transit-engine"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`

	DetectorInterval  time.Duration `env:"DETECTOR_INTERVAL" envDefault:"60s"`
	MetricsEnabled    bool          `env:"METRICS_ENABLED" envDefault:"true"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	WorkerConcurrency int           `env:"WORKER_CONCURRENCY" envDefault:"8"`
}

// Validate checks settings that cross-cut multiple fields and can't be
// expressed as a single struct tag.
func (c *Config) Validate() error {
	if c.MQTTBrokerURL == "" {
		return fmt.Errorf("MQTT_BROKER_URL must be set")
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.WorkerConcurrency)
	}
	return nil
}

// GodModeEnabled reports whether either god-mode toggle is set, matching
// the original's acceptance of either GOD_MODE or SMARTRAK_GOD_MODE.
func (c *Config) GodModeEnabled() bool {
	return c.GodMode || c.SmartrakGodMode
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	HTTPAddr      string
	LogLevel      string
	MQTTBrokerURL string
}

// Load reads configuration from .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file >
// struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.MQTTBrokerURL != "" {
		cfg.MQTTBrokerURL = overrides.MQTTBrokerURL
	}

	return cfg, nil
}
