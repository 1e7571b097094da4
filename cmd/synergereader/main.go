package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/liliang-cn/synergereader/internal/api"
	"github.com/liliang-cn/synergereader/internal/api/admin"
	"github.com/liliang-cn/synergereader/internal/api/reader"
	"github.com/liliang-cn/synergereader/internal/config"
	"github.com/liliang-cn/synergereader/internal/embedding"
	"github.com/liliang-cn/synergereader/internal/llm"
	"github.com/liliang-cn/synergereader/internal/repository"
	"github.com/liliang-cn/synergereader/internal/retrieval"
	"github.com/liliang-cn/synergereader/internal/service"
	"github.com/liliang-cn/synergereader/internal/watcher"
	"github.com/liliang-cn/synergereader/internal/websearch"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	// A missing .env is fine; the environment and config file still apply
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	documentRepo := repository.NewDocumentRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	knowledgeRepo := repository.NewKnowledgeRepository(db)
	userRepo := repository.NewUserRepository(db)

	embedder, err := embedding.NewClient(embedding.Options{
		BaseURL:     cfg.Ollama.BaseURL,
		Model:       cfg.Ollama.EmbeddingModel,
		Dimension:   cfg.Ollama.EmbeddingDim,
		Timeout:     cfg.Ollama.EmbeddingTimeout,
		Concurrency: cfg.Ollama.EmbedConcurrency,
	}, logger.Named("embedding"))
	if err != nil {
		logger.Fatal("Failed to create embedding client", zap.Error(err))
	}

	generator := llm.NewClient(cfg.Ollama.BaseURL, cfg.Ollama.GenerationModel, cfg.Ollama.HeaderTimeout, logger.Named("llm"))

	var searcher retrieval.Searcher
	if cfg.WebSearch.Enabled {
		searcher = websearch.NewClient(cfg.WebSearch.Endpoint, cfg.WebSearch.Timeout, logger.Named("websearch"))
	}

	gate := retrieval.NewGate(retrieval.GateOptions{
		Threshold: cfg.Retrieval.SimilarityThreshold,
		Limit:     cfg.Retrieval.TopK,
		Searcher:  searcher,
		Logger:    logger.Named("gate"),
	})

	var answered, failed atomic.Int64

	askService := service.NewAskService(service.AskOptions{
		TopK:           cfg.Retrieval.TopK,
		HistoryLimit:   cfg.Retrieval.HistoryLimit,
		KnowledgeLimit: cfg.Retrieval.KnowledgeLimit,
		RecentRows:     cfg.Retrieval.RecentRows,
		MaxTokens:      cfg.Ollama.MaxTokens,
		Temperature:    cfg.Ollama.Temperature,
		OnOutcome: func(o service.AskOutcome) {
			if o.Completed() {
				answered.Add(1)
			} else {
				failed.Add(1)
			}
		},
	}, service.AskDeps{
		Embedder:  embedder,
		Generator: generator,
		Chunks:    documentRepo,
		History:   historyRepo,
		Knowledge: knowledgeRepo,
		Users:     userRepo,
		Gate:      gate,
	}, logger.Named("ask"))

	ingestService := service.NewIngestService(documentRepo, embedder, cfg.Retrieval.ChunkSize, logger.Named("ingest"))
	historyService := service.NewHistoryService(historyRepo, userRepo, cfg.Retrieval.RecentRows, logger.Named("history"))
	knowledgeService := service.NewKnowledgeService(knowledgeRepo, historyRepo, logger.Named("knowledge"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if seed := cfg.Ingest.KnowledgeSeed; seed != "" {
		n, err := knowledgeService.ImportYAML(ctx, seed)
		if err != nil {
			logger.Error("Knowledge seed import failed", zap.String("path", seed), zap.Error(err))
		} else {
			logger.Info("Knowledge seed imported", zap.String("path", seed), zap.Int("added", n))
		}
	}

	if dir := cfg.Ingest.WatchDir; dir != "" {
		w, err := watcher.New(cfg.Ingest.Extensions, watcher.DefaultSettle, logger.Named("watcher"))
		if err != nil {
			logger.Fatal("Failed to create folder watcher", zap.Error(err))
		}
		defer w.Stop()

		events, err := w.Watch(ctx, dir)
		if err != nil {
			logger.Fatal("Failed to watch folder", zap.String("dir", dir), zap.Error(err))
		}
		go ingestService.Watch(ctx, events)
		logger.Info("Watching folder for documents", zap.String("dir", dir))
	}

	router := api.SetupRouter(api.Handlers{
		Reader: reader.NewHandler(askService, ingestService, historyService, knowledgeService, logger.Named("reader")),
		Admin:  admin.NewHandler(ingestService, knowledgeService),
	}, api.RouterConfig{
		APIKey:       cfg.Admin.APIKey,
		AllowOrigins: cfg.Server.AllowOrigins,
		Probe: func() gin.H {
			return gin.H{
				"embedding_model":      embedder.Model(),
				"generation_model":     generator.DefaultModel(),
				"similarity_threshold": cfg.Retrieval.SimilarityThreshold,
				"web_search":           cfg.WebSearch.Enabled,
				"answers_completed":    answered.Load(),
				"answers_failed":       failed.Load(),
			}
		},
		Logger: logger.Named("http"),
	})

	// No write timeout: answers stream for as long as generation runs
	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		printBanner()
		logger.Info("Starting SynergeReader server",
			zap.String("address", cfg.Address()),
			zap.String("base_url", cfg.Server.BaseURL),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	return zcfg.Build()
}

func printBanner() {
	banner := `
   ____                              ____                 __
  / __/_ _____  ___ _______ ____ _  / __ \___ ___ ____ __/ /__ ____
 _\ \/ // / _ \/ -_) __/ _ '/ -_) / /_/ / -_) _ '/ _  / -_) __/
/___/\_, /_//_/\__/_/  \_, /\__/  \____/\__/\_,_/\_,_/\__/_/
    /___/             /___/
`
	fmt.Println(banner)
}
