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
	"github.com/mmdatafocus/ims_backend/api"
	"github.com/mmdatafocus/ims_backend/config"
	"github.com/mmdatafocus/ims_backend/models"
	"github.com/mmdatafocus/ims_backend/syncer"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const syncLockKey = "lock:ims-sync"

func main() {
	settings := config.LoadSettings()
	logger := config.NewLogger(settings.LogLevel)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if settings.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.OpenDatabaseWithRetry(settings.DBDriver, settings.DBDSN, 0)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "database"}).Fatal(err.Error())
	}
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if err := models.MigrateTable(db); err != nil {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err.Error())
	}
	store := models.NewStore(db, logger)

	policy, err := syncer.ParseConflictPolicy(settings.SyncConflictPolicy)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "sync"}).Fatal(err.Error())
	}

	var transport syncer.Transport
	if settings.SyncServerURL != "" {
		client, err := syncer.NewClient(syncer.ClientConfig{
			BaseURL:   settings.SyncServerURL,
			APIKey:    settings.SyncAPIKey,
			JWTSecret: settings.SyncJWTSecret,
			SiteId:    settings.SyncSiteId,
			Timeout:   settings.SyncHTTPTimeout,
		})
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "sync"}).Fatal(err.Error())
		}
		transport = client
	} else {
		logger.WithFields(logrus.Fields{"field": "sync"}).Warn("SYNC_SERVER_URL not set; running offline only")
	}
	coordinator := syncer.NewCoordinator(store, transport, policy, logger)

	var rdb *redis.Client
	if settings.RedisAddress != "" {
		redisCtx, cancel := context.WithTimeout(sigCtx, time.Minute)
		client, locker, err := config.ConnectRedis(redisCtx, settings.RedisAddress, 5)
		cancel()
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "redis"}).Warn("redis unavailable; sync lock is process-local: " + err.Error())
		} else {
			rdb = client
			coordinator.UseRedisLock(locker, syncLockKey+":"+settings.SyncSiteId)
		}
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	if transport != nil {
		go coordinator.RunPeriodic(workerCtx, settings.SyncInterval)

		if settings.PubSubProjectId != "" && settings.SyncSubscriptionId != "" {
			psClient, err := config.NewPubSubClient(workerCtx, settings.PubSubProjectId)
			if err != nil {
				logger.WithFields(logrus.Fields{"field": "pubsub"}).Warn("pubsub trigger disabled: " + err.Error())
			} else {
				defer psClient.Close()
				sub, err := config.SyncSubscription(workerCtx, psClient, settings.SyncTopicId, settings.SyncSubscriptionId)
				if err != nil {
					config.LogError(logger, "server.go", "main", "SyncSubscription", settings.SyncSubscriptionId, err)
				} else {
					go func() {
						if err := coordinator.ListenPubSub(workerCtx, sub); err != nil && !errors.Is(err, context.Canceled) {
							config.LogError(logger, "server.go", "main", "ListenPubSub", settings.SyncSubscriptionId, err)
						}
					}()
				}
			}
		}
	}

	r := api.NewRouter(api.Config{
		Store:          store,
		Coordinator:    coordinator,
		Logger:         logger,
		Secret:         []byte(settings.APISecret),
		TokenLifespan:  settings.TokenLifespan,
		AuthRequired:   settings.APIAuthRequired,
		Production:     settings.IsProduction(),
		AllowedOrigins: settings.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:    ":" + settings.Port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	logger.WithFields(logrus.Fields{
		"info":   "Connection Established",
		"policy": policy,
	}).Info("listening on :", settings.Port)

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background sync first so no new cycle starts while draining.
	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb != nil {
		_ = rdb.Close()
	}
}
