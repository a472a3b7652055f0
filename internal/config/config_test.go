package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadSQLiteDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SENSOR_SERVICE_CONFIG", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8094" {
		t.Fatalf("expected default port, got %q", cfg.Port)
	}
	if cfg.BucketWidth != 10*time.Minute || cfg.SeriesWindow != 2*time.Hour || cfg.RangeDefault != 24*time.Hour {
		t.Fatalf("unexpected window defaults: %+v", cfg)
	}
	if cfg.QueryTimeout != 5*time.Second {
		t.Fatalf("expected 5s query timeout, got %v", cfg.QueryTimeout)
	}
	if cfg.TopicPrefix != "sensors/data/" {
		t.Fatalf("unexpected topic prefix %q", cfg.TopicPrefix)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadMQTTCredentials(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SENSOR_SERVICE_CONFIG", "")
	t.Setenv("MQTT_BROKER_URL", "mqtt://broker:1883")
	t.Setenv("MQTT_USERNAME", " esp ")
	t.Setenv("MQTT_PASSWORD", "secret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MQTTBrokerURL != "mqtt://broker:1883" || cfg.MQTTUsername != "esp" || cfg.MQTTPassword != "secret" {
		t.Fatalf("unexpected mqtt config %+v", cfg)
	}
}

func TestLoadPostgresRequiresEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("POSTGRES_USER", "")
	t.Setenv("SENSOR_SERVICE_CONFIG", "")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "POSTGRES_USER") {
		t.Fatalf("expected missing POSTGRES_USER, got %v", err)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SENSOR_SERVICE_CONFIG", "")
	t.Setenv("BUCKET_WIDTH", "0s")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "BUCKET_WIDTH") {
		t.Fatalf("expected bucket width error, got %v", err)
	}
}

func TestLoadConfigFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensor.yaml")
	body := "db_driver: sqlite\nsensor_service_port: \"9100\"\nbucket_width: 5m\ncors_allowed_origins: \"http://a.local, http://b.local\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SENSOR_SERVICE_CONFIG", path)
	t.Setenv("SENSOR_SERVICE_PORT", "9200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBDriver != "sqlite" || cfg.BucketWidth != 5*time.Minute {
		t.Fatalf("expected file values, got %+v", cfg)
	}
	if cfg.Port != "9200" {
		t.Fatalf("expected env to win, got %q", cfg.Port)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "http://b.local" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
}
