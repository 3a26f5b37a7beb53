package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/labkha-cpu/ai-Apply/config"
	"github.com/labkha-cpu/ai-Apply/internal/api/handlers"
	"github.com/labkha-cpu/ai-Apply/internal/api/middleware"
	"github.com/labkha-cpu/ai-Apply/internal/api/routes"
	"github.com/labkha-cpu/ai-Apply/internal/cache"
	"github.com/labkha-cpu/ai-Apply/internal/logger"
	"github.com/labkha-cpu/ai-Apply/internal/pipeline"
	"github.com/labkha-cpu/ai-Apply/internal/providers/cvision"
	"github.com/labkha-cpu/ai-Apply/internal/providers/managecv"
	mongorepo "github.com/labkha-cpu/ai-Apply/internal/repositories/mongo"
	pgrepo "github.com/labkha-cpu/ai-Apply/internal/repositories/postgres"
	"github.com/labkha-cpu/ai-Apply/internal/services"
	"github.com/labkha-cpu/ai-Apply/internal/storage"
	"github.com/labkha-cpu/ai-Apply/internal/workers"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config error")
	}

	// Init MongoDB
	if err := config.InitMongo(); err != nil {
		log.WithError(err).Fatal("MongoDB init error")
	}
	if err := config.EnsureMongoIndexes(cfg.MongoDB); err != nil {
		log.WithError(err).Fatal("MongoDB index error")
	}
	mdb, err := config.MongoDatabase(cfg.MongoDB)
	if err != nil {
		log.WithError(err).Fatal("MongoDB database error")
	}
	log.Info("MongoDB connected")

	// Init PostgreSQL
	if err := config.InitPostgres(); err != nil {
		log.WithError(err).Fatal("PostgreSQL init error")
	}
	log.Info("PostgreSQL connected")

	// Init Redis
	if err := config.InitRedis(); err != nil {
		log.WithError(err).Fatal("Redis init error")
	}
	log.Info("Redis connected")

	// poll loops and workers live until shutdown, not per request
	base, stopAll := context.WithCancel(context.Background())
	defer stopAll()

	var artifacts storage.ArtifactReader
	if cfg.GCSArtifactBucket != "" {
		gcs, err := storage.NewGCSArtifactStore(base, cfg.GCSArtifactBucket, cfg.GCSCredentials)
		if err != nil {
			log.WithError(err).Fatal("GCS init error")
		}
		defer gcs.Close()
		artifacts = gcs
	}

	var limiter *rate.Limiter
	if cfg.PollRatePerSec > 0 {
		burst := int(cfg.PollRatePerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.PollRatePerSec), burst)
	}

	profileAPI := cvision.NewClient(cfg.CVisionBaseURL, cfg.HTTPTimeout, log)
	trigger := managecv.NewClient(cfg.ManageCVBaseURL, cfg.HTTPTimeout)

	var profileStore cache.Cache = cache.NewRedisCache(config.RedisClient)
	if cfg.ProfileCache == "memory" {
		mem := cache.NewMemoryCache()
		go mem.Sweep(base, time.Minute)
		profileStore = mem
		log.Info("profile cache kept in memory")
	}
	profiles := services.NewProfileService(
		profileAPI,
		cache.NewProfileCache(profileStore, cfg.ProfileCacheTTL),
		artifacts,
		log,
	)
	reports := services.NewReportService(profiles, pgrepo.NewReportRepo(config.PostgresDB), log)
	events := services.NewEventSink(
		services.NewRedisEventBus(config.RedisClient),
		mongorepo.NewEventRepo(mdb, cfg.EventTTL),
		cfg.EventTTL,
		log,
	)

	stage2Loops := pipeline.NewRegistry()
	stage1Loops := pipeline.NewRegistry()
	stage2 := services.NewStage2Service(services.Stage2Config{
		Base:     base,
		Profiles: profiles,
		Trigger:  trigger,
		Reports:  reports,
		Events:   events,
		Registry: stage2Loops,
		Poll: pipeline.Options{
			Interval:    cfg.PollInterval,
			Timeout:     cfg.PollTimeout,
			MaxAttempts: cfg.PollMaxAttempts,
			Limiter:     limiter,
			Logger:      log.WithField("component", "stage2_poller"),
		},
		Logger: log,
	})
	stage1 := services.NewStage1Watcher(services.Stage1Config{
		Base:     base,
		Profiles: profiles,
		Reports:  reports,
		Events:   events,
		Registry: stage1Loops,
		Poll: pipeline.Options{
			Interval:    cfg.Stage1PollInterval,
			Timeout:     cfg.PollTimeout,
			MaxAttempts: cfg.Stage1PollMaxAttempts,
			Limiter:     limiter,
			Logger:      log.WithField("component", "stage1_poller"),
		},
		Logger: log,
	})

	pool := &workers.Stage2WorkerPool{
		Redis:      config.RedisClient,
		Stage2:     stage2,
		NumWorkers: cfg.Stage2Workers,
		Logger:     log,
		Stream:     cfg.Stage2Stream,
		Group:      cfg.Stage2Group,
	}
	if err := pool.Start(base); err != nil {
		log.WithError(err).Fatal("worker pool error")
	}

	enqueue := func(ctx context.Context, candidateID string) (string, error) {
		return workers.Enqueue(ctx, config.RedisClient, cfg.Stage2Stream, candidateID)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))
	routes.RegisterRoutes(r, routes.Deps{
		Candidate:    handlers.NewCandidateHandler(profiles, reports, stage1, stage2, enqueue),
		WS:           handlers.NewWSHandler(config.RedisClient, cfg.CORSAllowOrigins),
		AllowOrigins: cfg.CORSAllowOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		stage1Loops.StopAll()
		stage2Loops.StopAll()
		stopAll()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("server shutdown")
		}
		closeClients(log)
		close(idleConnsClosed)
	}()

	log.WithField("port", cfg.Port).Info("API server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server error")
	}

	<-idleConnsClosed
}

func closeClients(log *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if config.MongoClient != nil {
		if err := config.MongoClient.Disconnect(ctx); err != nil {
			log.WithError(err).Warn("mongo disconnect")
		}
	}
	if config.RedisClient != nil {
		if err := config.RedisClient.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			log.WithError(err).Warn("redis close")
		}
	}
}
