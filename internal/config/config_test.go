package config

import (
	"os"
	"testing"
)

func requiredEnvs() map[string]string {
	return map[string]string{
		"BLOCK_MGT_URL":       "https://blockmgt.example/api",
		"FLEET_URL":           "https://fleet.example/api",
		"GTFS_STATIC_URL":     "https://gtfs-static.example/api",
		"CC_STATIC_URL":       "https://cc-static.example/api",
		"TRIP_MANAGEMENT_URL": "https://trip-mgt.example/api",
		"MQTT_BROKER_URL":     "tcp://localhost:1883",
	}
}

func TestLoad(t *testing.T) {
	cleanup := setEnvs(t, requiredEnvs())
	defer cleanup()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":8080" {
			t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
		if cfg.Timezone != "Pacific/Auckland" {
			t.Errorf("Timezone = %q, want Pacific/Auckland", cfg.Timezone)
		}
		if cfg.TripDurationBuffer.Seconds() != 3600 {
			t.Errorf("TripDurationBuffer = %v, want 3600s", cfg.TripDurationBuffer)
		}
		if cfg.SerialDataFilterThreshold.Seconds() != 900 {
			t.Errorf("SerialDataFilterThreshold = %v, want 900s", cfg.SerialDataFilterThreshold)
		}
		if cfg.WorkerConcurrency != 8 {
			t.Errorf("WorkerConcurrency = %d, want 8", cfg.WorkerConcurrency)
		}
		if cfg.GodModeEnabled() {
			t.Error("GodModeEnabled() = true, want false by default")
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		cfg, err := Load(Overrides{
			EnvFile:       "nonexistent.env",
			HTTPAddr:      ":9090",
			LogLevel:      "debug",
			MQTTBrokerURL: "tcp://override:1883",
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":9090" {
			t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.MQTTBrokerURL != "tcp://override:1883" {
			t.Errorf("MQTTBrokerURL = %q, want override", cfg.MQTTBrokerURL)
		}
	})

	t.Run("env_vars_read", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.BlockMgtURL != "https://blockmgt.example/api" {
			t.Errorf("BlockMgtURL = %q, want configured value", cfg.BlockMgtURL)
		}
		if cfg.MQTTBrokerURL != "tcp://localhost:1883" {
			t.Errorf("MQTTBrokerURL = %q, want tcp://localhost:1883", cfg.MQTTBrokerURL)
		}
	})
}

func TestGodModeEnabledAcceptsEitherToggle(t *testing.T) {
	cfg := &Config{GodMode: true}
	if !cfg.GodModeEnabled() {
		t.Error("GodModeEnabled() = false, want true when GOD_MODE set")
	}
	cfg = &Config{SmartrakGodMode: true}
	if !cfg.GodModeEnabled() {
		t.Error("GodModeEnabled() = false, want true when SMARTRAK_GOD_MODE set")
	}
}

func TestLoadMissingRequired(t *testing.T) {
	cleanup := setEnvs(t, requiredEnvs())
	defer cleanup()
	os.Unsetenv("BLOCK_MGT_URL")

	_, err := Load(Overrides{EnvFile: "nonexistent.env"})
	if err == nil {
		t.Error("expected error when a required env var is missing")
	}
}

func TestValidateRejectsMissingBroker(t *testing.T) {
	cfg := &Config{WorkerConcurrency: 1}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error when MQTT_BROKER_URL is unset")
	}
}

func TestValidateRejectsNonPositiveConcurrency(t *testing.T) {
	cfg := &Config{MQTTBrokerURL: "tcp://localhost:1883", WorkerConcurrency: 0}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error when WORKER_CONCURRENCY < 1")
	}
}

// setEnvs sets environment variables and returns a cleanup function.
func setEnvs(t *testing.T, envs map[string]string) func() {
	t.Helper()
	originals := make(map[string]string)
	unset := make([]string, 0)

	for k, v := range envs {
		if orig, ok := os.LookupEnv(k); ok {
			originals[k] = orig
		} else {
			unset = append(unset, k)
		}
		os.Setenv(k, v)
	}

	return func() {
		for k, v := range originals {
			os.Setenv(k, v)
		}
		for _, k := range unset {
			os.Unsetenv(k)
		}
	}
}
