package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sensor-service/internal/accounts"
	"sensor-service/internal/config"
	"sensor-service/internal/httpapi"
	"sensor-service/internal/ingest"
	"sensor-service/internal/mqtt"
	"sensor-service/internal/observability"
	"sensor-service/internal/ratelimit"
	"sensor-service/internal/store"
	"sensor-service/internal/telemetry"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel, cfg.LogFormat)

	db, err := openDB(cfg)
	if err != nil {
		slog.Error("db connect failed", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	repo, err := store.New(db)
	if err != nil {
		slog.Error("db migrate failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs, err := observability.Setup(ctx, observability.Options{ServiceName: "sensor-service", OTLPEndpoint: cfg.OTLPEndpoint})
	if err != nil {
		slog.Error("observability setup failed", "error", err)
		os.Exit(1)
	}

	tel := telemetry.NewFromRepo(repo, telemetry.Options{
		DefaultOwner: cfg.DefaultOwner,
		BucketWidth:  cfg.BucketWidth,
		SeriesWindow: cfg.SeriesWindow,
		RangeDefault: cfg.RangeDefault,
	})
	acc := accounts.New(repo, repo)

	var limiter *ratelimit.RateLimiter
	if rdb := connectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword); rdb != nil {
		defer rdb.Close()
		limiter = ratelimit.New(rdb, "sensor-service:ingest", ratelimit.LimiterConfig{RPS: cfg.IngestRateRPS, Burst: cfg.IngestRateBurst})
	}

	if cfg.MQTTBrokerURL != "" {
		mq, err := mqtt.Connect(mqtt.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
		})
		if err != nil {
			slog.Error("mqtt connect failed", "error", err)
			os.Exit(1)
		}
		defer mq.Close()

		ing := &ingest.Ingestor{Telemetry: tel, TopicPrefix: cfg.TopicPrefix}
		subTopic := ingest.SubscriptionTopic(cfg.TopicPrefix)
		if err := mq.Subscribe(ctx, subTopic, cfg.QueryTimeout, func(msgCtx context.Context, m mqtt.Message) {
			ing.HandleMessage(msgCtx, m)
		}); err != nil {
			slog.Error("mqtt subscribe failed", "topic", subTopic, "error", err)
			os.Exit(1)
		}
		slog.Info("sensor ingest subscribed", "topic", subTopic)
	} else {
		slog.Info("MQTT_BROKER_URL not set, mqtt ingest disabled")
	}

	srv := httpapi.New(tel, acc, httpapi.Options{
		QueryTimeout:       cfg.QueryTimeout,
		Tracer:             obs.Tracer,
		PromHandler:        obs.PromHandler,
		Limiter:            limiter,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("sensor-service listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		slog.Info("shutdown requested")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	if err := obs.Shutdown(shutdownCtx); err != nil {
		slog.Warn("observability shutdown failed", "error", err)
	}
	cancel()
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.DBDriver == "sqlite" {
		return store.OpenSQLite(cfg.SQLiteDSN)
	}
	return store.OpenPostgres(cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.DBName, cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.SSLMode)
}

// connectRedis returns nil when no address is configured or the server does
// not answer; ingest then runs without a rate limit.
func connectRedis(ctx context.Context, addr, password string) *redis.Client {
	if addr == "" {
		slog.Info("REDIS_ADDR not set, ingest rate limit disabled")
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unreachable, ingest rate limit disabled", "addr", addr, "error", err)
		_ = client.Close()
		return nil
	}
	slog.Info("connected to redis", "addr", addr)
	return client
}

func setupLogging(level, format string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if format == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}
