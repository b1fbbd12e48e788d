// Package vectorag provides the retrieval pipeline server implementation.
package vectorag

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/vectorag/internal/vectorag/biz"
	"github.com/kart-io/vectorag/internal/vectorag/handler"
	"github.com/kart-io/vectorag/internal/vectorag/router"
	"github.com/kart-io/vectorag/internal/vectorag/store"
	"github.com/kart-io/vectorag/pkg/app"
	"github.com/kart-io/vectorag/pkg/component/milvus"
	"github.com/kart-io/vectorag/pkg/component/redis"
	"github.com/kart-io/vectorag/pkg/llm"
	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/vectorag/pkg/llm/ollama"
	_ "github.com/kart-io/vectorag/pkg/llm/openai"
	"github.com/kart-io/vectorag/pkg/llm/resilience"
	cacheopts "github.com/kart-io/vectorag/pkg/options/cache"
	httpopts "github.com/kart-io/vectorag/pkg/options/http"
	llmopts "github.com/kart-io/vectorag/pkg/options/llm"
	logopts "github.com/kart-io/vectorag/pkg/options/logger"
	milvusopts "github.com/kart-io/vectorag/pkg/options/milvus"
	pipelineopts "github.com/kart-io/vectorag/pkg/options/pipeline"
	"github.com/kart-io/vectorag/pkg/pool"
)

// Name is the name of the application.
const Name = "vectorag"

// Config contains application-related configurations.
type Config struct {
	HTTPOptions      *httpopts.Options
	LogOptions       *logopts.Options
	MilvusOptions    *milvusopts.Options
	PipelineOptions  *pipelineopts.Options
	CacheOptions     *cacheopts.Options
	EmbeddingOptions *llmopts.ProviderOptions
	ChatOptions      *llmopts.ProviderOptions
	ShutdownTimeout  time.Duration
}

// Server represents the retrieval pipeline server.
type Server struct {
	httpSrv         *http.Server
	shutdownTimeout time.Duration
	vectorStore     store.VectorStore
	milvusClose     func()
	redisClose      func()
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(_ context.Context) (*Server, error) {
	printBanner(cfg)

	// 1. 初始化日志
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infow("Starting retrieval pipeline service...", "version", app.GetVersion())

	// 2. 初始化 Milvus 客户端与 Store 层
	milvusClient, err := milvus.New(cfg.MilvusOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize milvus: %w", err)
	}
	logger.Info("Milvus client initialized")

	var vectorStore store.VectorStore = store.NewMilvusStore(milvusClient)
	vectorStore = store.NewRetryStore(vectorStore, cfg.MilvusOptions.MaxRetries, cfg.MilvusOptions.RetryBackoff)
	logger.Infow("Vector store initialized",
		"max_retries", cfg.MilvusOptions.MaxRetries,
		"retry_backoff", cfg.MilvusOptions.RetryBackoff,
	)

	// 3. 初始化 Redis 客户端（查询缓存和嵌入缓存共用）
	redisClient, redisClose := newRedisClient(cfg.CacheOptions)

	var queryCache *biz.QueryCache
	if redisClient != nil {
		queryCache = biz.NewQueryCache(redisClient, &biz.QueryCacheConfig{
			Enabled:   true,
			TTL:       cfg.CacheOptions.TTL,
			KeyPrefix: cfg.CacheOptions.KeyPrefix,
		})
		logger.Infow("Query cache initialized",
			"ttl", cfg.CacheOptions.TTL,
			"key_prefix", cfg.CacheOptions.KeyPrefix,
		)
	}

	// 4. 初始化 LLM 供应商
	embedProvider, err := newEmbeddingProvider(cfg.EmbeddingOptions, redisClient)
	if err != nil {
		return nil, err
	}

	chatProvider, err := newChatProvider(cfg.ChatOptions)
	if err != nil {
		return nil, err
	}

	// 5. 初始化 Biz 层
	pl := cfg.PipelineOptions
	embedder := biz.NewEmbedder(embedProvider, &biz.EmbedderConfig{
		BatchSize: pl.EmbedBatchSize,
		Dimension: pl.EmbeddingDim,
	})
	synthesizer := biz.NewSynthesizer(chatProvider, &biz.SynthesizerConfig{
		SystemPrompt: pl.SystemPrompt,
	})
	service := biz.NewPipelineService(vectorStore, embedder, synthesizer, queryCache, &biz.ServiceConfig{
		ChunkerConfig: &biz.ChunkerConfig{
			ChunkSize:    pl.ChunkSize,
			ChunkOverlap: pl.ChunkOverlap,
		},
		Collection:   pl.Collection,
		EmbeddingDim: pl.EmbeddingDim,
		Metric:       pl.Metric,
		TopK:         pl.TopK,
	})
	logger.Infow("Pipeline service initialized",
		"collection", pl.Collection,
		"chunk_size", pl.ChunkSize,
		"chunk_overlap", pl.ChunkOverlap,
		"metric", pl.Metric,
		"synthesis_enabled", synthesizer.Enabled(),
	)

	// 6. 初始化协程池
	if err := pool.InitGlobal(); err != nil {
		return nil, fmt.Errorf("failed to initialize worker pools: %w", err)
	}
	logger.Info("Worker pools initialized")

	// 7. 初始化 Handler 层和路由
	gin.SetMode(cfg.HTTPOptions.Mode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	pipelineHandler := handler.NewPipelineHandler(service, &handler.Config{
		RequestTimeout: cfg.HTTPOptions.RequestTimeout,
		MaxUploadSize:  cfg.HTTPOptions.MaxUploadSize,
	})
	router.Register(engine, pipelineHandler)

	httpSrv := &http.Server{
		Addr:         cfg.HTTPOptions.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.HTTPOptions.ReadTimeout,
		WriteTimeout: cfg.HTTPOptions.WriteTimeout,
		IdleTimeout:  cfg.HTTPOptions.IdleTimeout,
	}

	logger.Info("Retrieval pipeline service is ready")
	return &Server{
		httpSrv:         httpSrv,
		shutdownTimeout: cfg.ShutdownTimeout,
		vectorStore:     vectorStore,
		milvusClose:     func() { _ = milvusClient.Close(context.Background()) },
		redisClose:      redisClose,
	}, nil
}

// Run starts the server and listens for termination signals.
func (s *Server) Run(_ context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		s.cleanup()
		return err
	case sig := <-quit:
		logger.Infow("Received shutdown signal", "signal", sig.String())
	}

	timeout := s.shutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		logger.Errorw("HTTP server shutdown failed", "error", err.Error())
	}
	s.cleanup()
	logger.Info("Server stopped")
	return nil
}

func (s *Server) cleanup() {
	if err := pool.CloseGlobalTimeout(5 * time.Second); err != nil {
		logger.Warnw("Worker pool shutdown failed", "error", err.Error())
	}
	if s.milvusClose != nil {
		s.milvusClose()
	}
	if s.redisClose != nil {
		s.redisClose()
	}
}

// newRedisClient 创建 Redis 客户端，连接失败时降级为无缓存运行。
func newRedisClient(opts *cacheopts.Options) (*goredis.Client, func()) {
	if opts == nil || !opts.Enabled {
		logger.Info("Cache is disabled")
		return nil, nil
	}
	if opts.Redis == nil {
		logger.Warn("Cache is enabled but no Redis configuration provided")
		return nil, nil
	}

	client, err := redis.New(opts.Redis)
	if err != nil {
		logger.Warnw("failed to connect to redis, cache will be disabled", "error", err.Error())
		return nil, nil
	}

	logger.Infow("Redis client initialized", "addr", opts.Redis.Addr())
	return client.Client(), func() { _ = client.Close() }
}

// newEmbeddingProvider 创建带重试、熔断和可选缓存的 Embedding 供应商。
func newEmbeddingProvider(opts *llmopts.ProviderOptions, redisClient *goredis.Client) (llm.EmbeddingProvider, error) {
	provider, err := llm.NewEmbeddingProvider(opts.Provider, opts.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}

	var wrapped llm.EmbeddingProvider = resilience.NewResilientEmbeddingProvider(provider, nil, nil)
	if redisClient != nil {
		wrapped = llm.NewCachedEmbeddingProvider(wrapped, redisClient, nil)
	}
	logger.Infow("Embedding provider initialized",
		"provider", opts.Provider,
		"model", opts.Model,
		"cached", redisClient != nil,
	)
	return wrapped, nil
}

// newChatProvider 创建 Chat 供应商。未启用时返回 nil，检索服务仅返回检索结果。
func newChatProvider(opts *llmopts.ProviderOptions) (llm.ChatProvider, error) {
	if opts == nil || !opts.Enabled {
		logger.Info("Chat provider is disabled, answer synthesis unavailable")
		return nil, nil
	}

	provider, err := llm.NewChatProvider(opts.Provider, opts.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	logger.Infow("Chat provider initialized", "provider", opts.Provider, "model", opts.Model)
	return resilience.NewResilientChatProvider(provider, nil, nil), nil
}

// requestLogger 记录每个 HTTP 请求的方法、路径、状态码和耗时。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Infow("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
			"client_ip", c.ClientIP(),
		)
	}
}

func printBanner(cfg *Config) {
	fmt.Printf("Starting %s...\n", Name)
	fmt.Printf("  HTTP: %s (%s mode)\n", cfg.HTTPOptions.Addr, cfg.HTTPOptions.Mode)
	fmt.Printf("  Embedding: %s (%s)\n", cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.Model)
	if cfg.ChatOptions != nil && cfg.ChatOptions.Enabled {
		fmt.Printf("  Chat: %s (%s)\n", cfg.ChatOptions.Provider, cfg.ChatOptions.Model)
	} else {
		fmt.Printf("  Chat: disabled\n")
	}
}
