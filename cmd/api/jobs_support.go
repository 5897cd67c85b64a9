package main

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/media-forge/internal/config"
	"github.com/yourusername/media-forge/internal/jobs"
	"github.com/yourusername/media-forge/internal/media"
	"github.com/yourusername/media-forge/internal/stats"
	"github.com/yourusername/media-forge/internal/storage"
)

func setupJobs(cfg *config.Config, mediaService *media.Service, statsService *stats.Service) (*jobs.Manager, error) {
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(opt)
	ttlMinutes := cfg.JobExpireMinutes
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	store := jobs.NewRedisStore(redisClient, time.Duration(ttlMinutes)*time.Minute)
	sink := jobs.NewRedisEventSink(redisClient, cfg.EventChannel, log.Default())

	manager, err := jobs.NewManager(cfg, mediaService, store, sink, statsService, log.Default())
	if err != nil {
		return nil, err
	}
	return manager, nil
}

// setupRoutes は API のルーティングを配線します。
func setupRoutes(router *gin.Engine, mediaService *media.Service, store *storage.Storage, manager *jobs.Manager, statsService *stats.Service) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	{
		api.GET("/capabilities", capabilitiesHandler(mediaService))
		api.GET("/stats", statsHandler(statsService))

		api.POST("/upload", uploadHandler(store, manager))
		api.POST("/convert", convertHandler(mediaService, store, manager))
		api.POST("/compress", compressHandler(mediaService, store, manager))

		jobRoutes := api.Group("/jobs")
		{
			jobRoutes.GET("/:id", jobStatusHandler(manager))
			jobRoutes.POST("/:id/cancel", jobCancelHandler(manager))
			jobRoutes.GET("/:id/download", jobDownloadHandler(manager))
		}
	}
}
