package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port         string
	LogLevel     string
	LogFormat    string
	DBDriver     string
	SQLiteDSN    string
	Postgres     DBConfig
	DefaultOwner string

	BucketWidth  time.Duration
	SeriesWindow time.Duration
	RangeDefault time.Duration
	QueryTimeout time.Duration

	MQTTBrokerURL string
	MQTTClientID  string
	MQTTUsername  string
	MQTTPassword  string
	TopicPrefix   string

	RedisAddr       string
	RedisPassword   string
	IngestRateRPS   int
	IngestRateBurst int

	CORSAllowedOrigins []string
	OTLPEndpoint       string
}

type DBConfig struct {
	User     string
	Password string
	DBName   string
	Host     string
	Port     string
	SSLMode  string
}

func defaults(v *viper.Viper) {
	v.SetDefault("SENSOR_SERVICE_PORT", "8094")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("SQLITE_DSN", "file:sensor-service.db?cache=shared")
	v.SetDefault("POSTGRES_SSLMODE", "disable")
	v.SetDefault("BUCKET_WIDTH", "10m")
	v.SetDefault("SERIES_WINDOW", "2h")
	v.SetDefault("RANGE_DEFAULT", "24h")
	v.SetDefault("QUERY_TIMEOUT", "5s")
	v.SetDefault("SENSOR_MQTT_CLIENT_ID", "sensor-service")
	v.SetDefault("SENSOR_TOPIC_PREFIX", "sensors/data/")
	v.SetDefault("INGEST_RATE_RPS", 20)
	v.SetDefault("INGEST_RATE_BURST", 40)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
}

// Load reads the environment, optionally layered over the YAML file named
// by SENSOR_SERVICE_CONFIG. Environment values win over the file.
func Load() (*Config, error) {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()
	if path := strings.TrimSpace(v.GetString("SENSOR_SERVICE_CONFIG")); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:         strings.TrimSpace(v.GetString("SENSOR_SERVICE_PORT")),
		LogLevel:     v.GetString("LOG_LEVEL"),
		LogFormat:    strings.ToLower(strings.TrimSpace(v.GetString("LOG_FORMAT"))),
		DBDriver:     strings.ToLower(strings.TrimSpace(v.GetString("DB_DRIVER"))),
		SQLiteDSN:    strings.TrimSpace(v.GetString("SQLITE_DSN")),
		DefaultOwner: strings.TrimSpace(v.GetString("DEFAULT_OWNER_USERNAME")),
		Postgres: DBConfig{
			User:     strings.TrimSpace(v.GetString("POSTGRES_USER")),
			Password: v.GetString("POSTGRES_PASSWORD"),
			DBName:   strings.TrimSpace(v.GetString("POSTGRES_DB")),
			Host:     strings.TrimSpace(v.GetString("POSTGRES_HOST")),
			Port:     strings.TrimSpace(v.GetString("POSTGRES_PORT")),
			SSLMode:  v.GetString("POSTGRES_SSLMODE"),
		},
		MQTTBrokerURL:   strings.TrimSpace(v.GetString("MQTT_BROKER_URL")),
		MQTTClientID:    v.GetString("SENSOR_MQTT_CLIENT_ID"),
		MQTTUsername:    strings.TrimSpace(v.GetString("MQTT_USERNAME")),
		MQTTPassword:    v.GetString("MQTT_PASSWORD"),
		TopicPrefix:     v.GetString("SENSOR_TOPIC_PREFIX"),
		RedisAddr:       strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:   v.GetString("REDIS_PASSWORD"),
		IngestRateRPS:   v.GetInt("INGEST_RATE_RPS"),
		IngestRateBurst: v.GetInt("INGEST_RATE_BURST"),
		OTLPEndpoint:    strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
	}
	for _, o := range strings.Split(v.GetString("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"BUCKET_WIDTH", &cfg.BucketWidth},
		{"SERIES_WINDOW", &cfg.SeriesWindow},
		{"RANGE_DEFAULT", &cfg.RangeDefault},
		{"QUERY_TIMEOUT", &cfg.QueryTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.key, v.GetString(d.key)); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	slog.Info("sensor-service config loaded", "port", cfg.Port, "db_driver", cfg.DBDriver, "mqtt", cfg.MQTTBrokerURL, "topic_prefix", cfg.TopicPrefix)
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
	}
	return d, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "sqlite":
		if c.SQLiteDSN == "" {
			return fmt.Errorf("missing required env SQLITE_DSN")
		}
	case "postgres":
		required := []struct{ key, val string }{
			{"POSTGRES_USER", c.Postgres.User},
			{"POSTGRES_DB", c.Postgres.DBName},
			{"POSTGRES_HOST", c.Postgres.Host},
			{"POSTGRES_PORT", c.Postgres.Port},
		}
		for _, r := range required {
			if r.val == "" {
				return fmt.Errorf("missing required env %s", r.key)
			}
		}
	default:
		return fmt.Errorf("invalid DB_DRIVER %q: use postgres or sqlite", c.DBDriver)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q: use text or json", c.LogFormat)
	}
	if c.Port == "" {
		return fmt.Errorf("missing required env SENSOR_SERVICE_PORT")
	}
	return nil
}
