package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/klienn/swinetrack/internal/auth"
	"github.com/klienn/swinetrack/internal/config"
	"github.com/klienn/swinetrack/internal/database"
	"github.com/klienn/swinetrack/internal/evaluator"
	httpapi "github.com/klienn/swinetrack/internal/http"
	"github.com/klienn/swinetrack/internal/ingest"
	"github.com/klienn/swinetrack/internal/logger"
	"github.com/klienn/swinetrack/internal/realtime"
	"github.com/klienn/swinetrack/internal/repository"
	"github.com/klienn/swinetrack/internal/service"
	"github.com/klienn/swinetrack/internal/storage"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "swinetrack-server")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}

	devicesRepo := repository.NewPostgresDevicesRepo(db, log)
	readingsRepo := repository.NewPostgresReadingsRepo(db, log)
	alertsRepo := repository.NewPostgresAlertsRepo(db, log)
	snapshotsRepo := repository.NewPostgresSnapshotsRepo(db, log)

	// Realtime broker：默认 Redis Pub/Sub，可切 MQTT
	var broker realtime.Broker
	var redisClient *redis.Client
	var mqttBroker *realtime.MQTTBroker
	if cfg.MQTT.Enabled {
		mqttBroker, err = realtime.NewMQTTBroker(&cfg.MQTT, log)
		if err != nil {
			log.Fatal("mqtt broker connection failed", zap.Error(err))
		}
		broker = mqttBroker
	} else {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		broker = realtime.NewRedisBroker(redisClient, log)
	}
	publisher := realtime.NewPublisher(broker, log, cfg.Ingest.JoinTimeout)

	blobs := storage.NewObjectClient(&cfg.Storage, log)
	authenticator := auth.NewAuthenticator(devicesRepo, log)
	eval := evaluator.NewEvaluator(log)

	deps := ingest.Deps{
		Auth:      authenticator,
		Devices:   devicesRepo,
		Readings:  readingsRepo,
		Alerts:    alertsRepo,
		Snapshots: snapshotsRepo,
		Blobs:     blobs,
		Publisher: publisher,
		Evaluator: eval,
		Logger:    log,
		TopicFmt:  cfg.Ingest.FeverTopicFmt,
	}

	liveFrame := ingest.NewPipeline(deps, ingest.Options{
		RequireCam:      true,
		RequireThermal:  true,
		PersistCamFrame: true,
		PersistThermal:  true,
		CamBucket:       cfg.Storage.LiveBucket,
		ThermalBucket:   cfg.Storage.LiveBucket,
		CamPath: func(deviceID, _ string) string {
			return deviceID + "/current.jpg"
		},
		ThermalPath: func(deviceID, _ string) string {
			return deviceID + "/current.json"
		},
	})
	liveThermal := ingest.NewPipeline(deps, ingest.Options{
		RequireThermal: true,
		PersistThermal: true,
		ThermalBucket:  cfg.Storage.LiveBucket,
		ThermalPath: func(deviceID, _ string) string {
			return deviceID + "/current.json"
		},
	})
	snapshot := ingest.NewPipeline(deps, ingest.Options{
		RequireCam:      true,
		PersistCamFrame: true,
		PersistThermal:  true,
		CamBucket:       cfg.Storage.SnapshotBucket,
		ThermalBucket:   cfg.Storage.SnapshotBucket,
		CamPath: func(deviceID, stamp string) string {
			return deviceID + "/" + stamp + ".jpg"
		},
		ThermalPath: func(deviceID, stamp string) string {
			return deviceID + "/" + stamp + ".json"
		},
		Archival:     true,
		OverlayAlpha: cfg.Ingest.OverlayAlpha,
	})

	router := httpapi.NewRouter(log)
	router.RegisterIngestRoutes(httpapi.NewIngestHandler(
		liveFrame, liveThermal, snapshot,
		authenticator, devicesRepo, readingsRepo, cfg.Ingest.MaxBodyBytes, log))
	router.RegisterDeviceRoutes(httpapi.NewDeviceHandler(
		authenticator, devicesRepo, alertsRepo, publisher,
		cfg.Ingest.FeverTopicFmt, cfg.Ingest.MaxBodyBytes, log))
	router.RegisterLiveRoutes(httpapi.NewLiveHandler(blobs, cfg.Storage.LiveBucket, log))
	router.RegisterAdminRoutes(httpapi.NewExportHandler(alertsRepo, log))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Retention.Enabled {
		sweeper := service.NewRetentionSweeper(
			devicesRepo, readingsRepo, snapshotsRepo, blobs,
			cfg.Storage.SnapshotBucket, cfg.Retention.DefaultDays, cfg.Retention.Interval, log)
		go sweeper.Run(ctx)
	}

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case err := <-errCh:
		log.Error("HTTP server exited", zap.Error(err))
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)

	if redisClient != nil {
		_ = redisClient.Close()
	}
	if mqttBroker != nil {
		mqttBroker.Disconnect()
	}
	_ = db.Close()
}
