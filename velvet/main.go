package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"velvet/velvet/config"
	"velvet/velvet/controllers"
	"velvet/velvet/routes"
	"velvet/velvet/services/bcrp"
	"velvet/velvet/services/files"
	"velvet/velvet/services/llm"
	"velvet/velvet/services/rag"
	"velvet/velvet/sources/cache"
	"velvet/velvet/sources/psql"
	"velvet/velvet/sources/storage"
	"velvet/velvet/utils/logging"

	"go.uber.org/zap"
)

const version = "1.0.0"

// unavailable reports a dependency that failed to initialise.
type unavailable struct{}

func (unavailable) Health(ctx context.Context) string { return "unhealthy" }

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}
	logging.InitLogger(cfg.LogDir)
	defer logging.Sync()

	if err := cfg.Validate(); err != nil {
		logging.ErrorLogger.Error("invalid configuration", zap.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := psql.NewDatabase(ctx, cfg)
	if err != nil {
		logging.ErrorLogger.Error("database connection error", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	checks := map[string]controllers.HealthChecker{"database": db}

	// uploads are refused while object storage is down; chat keeps working
	var store storage.ObjectStore
	minioClient, err := storage.NewMinIOClient(ctx, cfg)
	if err != nil {
		logging.ErrorLogger.Error("minio connection error, uploads disabled", zap.Error(err))
		checks["storage"] = unavailable{}
	} else {
		store = minioClient
		checks["storage"] = minioClient
	}

	var seriesCache bcrp.Cache
	redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, "velvet:")
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		logging.ErrorLogger.Error("redis unavailable, BCRP responses will not be cached", zap.Error(err))
	} else {
		seriesCache = redisCache
	}
	checks["cache"] = redisCache

	bcrpClient := bcrp.NewClient(cfg.BCRPBaseURL, cfg.BCRPDefaultSeries, seriesCache, cfg.BCRPCacheTTL())
	ragService := rag.NewService(db.DB)
	generator := llm.NewVLLMClient(cfg.VLLMBaseURL, cfg.VLLMModel, cfg.LLMTimeout(), llm.LoadPrompts(cfg.PromptsFile), llm.DefaultOptions())
	processor := files.NewProcessor(db.DB, store, ragService, cfg.MaxUploadBytes())

	checks["llm"] = generator
	checks["rag"] = ragService
	checks["bcrp"] = bcrpClient

	authCtrl := controllers.NewAuthController(db.DB, cfg)
	chatCtrl := controllers.NewChatController(db.DB, generator, ragService, bcrpClient, cfg.HistoryWindow)
	healthCtrl := controllers.NewHealthController(checks)

	handler := routes.NewRouter(routes.Deps{
		Auth:    authCtrl,
		Chat:    chatCtrl,
		Health:  healthCtrl,
		Files:   processor,
		BCRP:    bcrpClient,
		Origins: cfg.Origins(),
		// a turn may wait the full generation timeout
		RequestTimeout: cfg.LLMTimeout() + time.Minute,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logging.AppLogger.Info("Velvet RAG API listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorLogger.Error("server listen error", zap.Error(err))
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.ErrorLogger.Error("server shutdown error", zap.Error(err))
	}
	logging.AppLogger.Info("server shutdown complete")
}
