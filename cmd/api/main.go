// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/media-forge/internal/config"
	"github.com/yourusername/media-forge/internal/media"
	"github.com/yourusername/media-forge/internal/stats"
	"github.com/yourusername/media-forge/internal/storage"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()
	router.MaxMultipartMemory = 32 << 20

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
	}
	router.Use(cors.New(corsConfig))

	// ストレージとクリーンアップの初期化
	store, err := storage.NewStorage(cfg.UploadDir, cfg.OutputDir, cfg.MaxFileSize)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	sweeper := storage.NewSweeper(
		[]string{cfg.UploadDir, cfg.OutputDir},
		time.Duration(cfg.FileRetentionMinutes)*time.Minute,
		time.Duration(cfg.CleanupIntervalMinutes)*time.Minute,
		log.Default(),
	)
	sweeper.Start()
	defer sweeper.Stop()

	// 統計サービスの初期化
	statsService, err := stats.NewService(cfg.StatsPath)
	if err != nil {
		log.Fatalf("Failed to initialize stats: %v", err)
	}

	// メディア変換サービスの初期化
	mediaService := media.NewService(cfg.FFmpegPath, cfg.FFprobePath)

	// ジョブキューとワーカーの初期化
	manager, err := setupJobs(cfg, mediaService, statsService)
	if err != nil {
		log.Fatalf("Failed to initialize jobs: %v", err)
	}
	manager.StartWorkers()

	// ルーティングの設定
	setupRoutes(router, mediaService, store, manager, statsService)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// SIGINT / SIGTERM でHTTPサーバーを止め、実行中のワーカーをドレインしてから終了する
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if err := manager.Shutdown(shutdownCtx); err != nil {
			log.Printf("Worker shutdown error: %v", err)
		}
	}()

	// サーバーの起動
	log.Printf("Starting API server on %s (mode: %s)", server.Addr, cfg.GinMode)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "media-forge-api",
		"version": "0.1.0",
	})
}
