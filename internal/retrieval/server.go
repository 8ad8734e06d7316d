// Package retrieval assembles the retrieval service: registry, vector
// indexes, embedding providers, cache, business logic and the HTTP
// server.
package retrieval

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/lumenkb/lumen/internal/model"
	"github.com/lumenkb/lumen/internal/retrieval/biz"
	"github.com/lumenkb/lumen/internal/retrieval/handler"
	"github.com/lumenkb/lumen/internal/retrieval/index"
	"github.com/lumenkb/lumen/internal/retrieval/router"
	"github.com/lumenkb/lumen/internal/retrieval/store"
	"github.com/lumenkb/lumen/pkg/embedding"
	"github.com/lumenkb/lumen/pkg/llm"
	cacheopts "github.com/lumenkb/lumen/pkg/options/cache"
	chatopts "github.com/lumenkb/lumen/pkg/options/chat"
	embedopts "github.com/lumenkb/lumen/pkg/options/embedding"
	httpopts "github.com/lumenkb/lumen/pkg/options/http"
	indexopts "github.com/lumenkb/lumen/pkg/options/index"
	loggeropts "github.com/lumenkb/lumen/pkg/options/logger"
	registryopts "github.com/lumenkb/lumen/pkg/options/registry"
	retrievalopts "github.com/lumenkb/lumen/pkg/options/retrieval"
	"github.com/lumenkb/lumen/pkg/pool"
)

// Config aggregates the retrieval server configuration.
type Config struct {
	Logger    *loggeropts.Options
	HTTP      *httpopts.Options
	Registry  *registryopts.Options
	Cache     *cacheopts.Options
	Embedding *embedopts.Options
	Chat      *chatopts.Options
	Index     *indexopts.Options
	Retrieval *retrievalopts.Options
}

// Server is the assembled retrieval server.
type Server struct {
	config  *Config
	service *biz.RetrievalService
	indexes *index.Manager
	redis   *goredis.Client
	http    *http.Server
}

// NewServer builds the server from configuration. Construction order
// matters: logging first, storage next, providers, then business logic
// and transport.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	if err := cfg.Logger.Init(); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := cfg.Registry.Open()
	if err != nil {
		return nil, err
	}
	registry, err := store.NewGormRegistry(db)
	if err != nil {
		return nil, fmt.Errorf("init registry: %w", err)
	}

	indexes, err := index.NewManager(cfg.indexConfig())
	if err != nil {
		return nil, fmt.Errorf("init vector indexes: %w", err)
	}
	logger.Infow("vector indexes ready",
		"backend", cfg.Index.Backend, "vectors", indexes.Len())

	embedRouter, err := cfg.buildRouter()
	if err != nil {
		return nil, err
	}

	var chatProvider llm.ChatProvider
	if cfg.Chat.Enabled {
		chatProvider, err = llm.New(cfg.Chat.Provider, cfg.Chat.ToConfigMap())
		if err != nil {
			return nil, fmt.Errorf("init chat provider: %w", err)
		}
	}

	redisClient, cache := cfg.buildCache(ctx)

	service, err := biz.NewRetrievalService(registry, indexes, embedRouter, chatProvider, cache, &biz.ServiceConfig{
		AssemblerConfig: &biz.AssemblerConfig{
			ExcerptLimit:     cfg.Retrieval.ExcerptLimit,
			DedupOverlapping: cfg.Retrieval.DedupOverlapping,
		},
		GeneratorConfig: &biz.GeneratorConfig{
			SystemPrompt: cfg.Retrieval.SystemPrompt,
		},
		PoolConfig: &pool.Config{
			Capacity:       cfg.Retrieval.WorkerPoolSize,
			ExpiryDuration: 10 * time.Second,
		},
		DefaultTopK: cfg.Retrieval.TopK,
	})
	if err != nil {
		return nil, fmt.Errorf("init retrieval service: %w", err)
	}

	gin.SetMode(cfg.HTTP.Mode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	router.Register(engine, handler.NewRetrievalHandler(service, cfg.Retrieval.QueryTimeout))

	return &Server{
		config:  cfg,
		service: service,
		indexes: indexes,
		redis:   redisClient,
		http: &http.Server{
			Addr:         cfg.HTTP.Addr(),
			Handler:      engine,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			IdleTimeout:  cfg.HTTP.IdleTimeout,
		},
	}, nil
}

// indexConfig converts the index options, skipping modalities with a
// zero dimension.
func (cfg *Config) indexConfig() *index.Config {
	dims := make(map[model.Modality]int)
	if cfg.Index.TextDim > 0 {
		dims[model.ModalityText] = cfg.Index.TextDim
	}
	if cfg.Index.ImageDim > 0 {
		dims[model.ModalityImage] = cfg.Index.ImageDim
	}
	if cfg.Index.AudioDim > 0 {
		dims[model.ModalityAudio] = cfg.Index.AudioDim
	}

	return &index.Config{
		Backend:     cfg.Index.Backend,
		Dims:        dims,
		SnapshotDir: cfg.Index.SnapshotDir,
		HNSW: index.HNSWConfig{
			M:              cfg.Index.HNSWM,
			EfConstruction: cfg.Index.HNSWEfConstruction,
			EfSearch:       cfg.Index.HNSWEfSearch,
		},
	}
}

// buildRouter binds the text provider and, when enabled, the
// multimodal encoder.
func (cfg *Config) buildRouter() (*embedding.Router, error) {
	embedRouter := embedding.NewRouter()

	textProvider, err := embedding.New(cfg.Embedding.Provider, cfg.Embedding.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("init embedding provider: %w", err)
	}
	embedRouter.Bind(textProvider)
	logger.Infow("embedding provider bound",
		"provider", textProvider.Name(), "modalities", textProvider.Modalities())

	if cfg.Embedding.EncoderEnabled {
		encoder, err := embedding.New(cfg.Embedding.EncoderName, cfg.Embedding.ToEncoderConfigMap())
		if err != nil {
			return nil, fmt.Errorf("init encoder provider: %w", err)
		}
		embedRouter.Bind(encoder)
		logger.Infow("encoder provider bound",
			"provider", encoder.Name(), "modalities", encoder.Modalities())
	}

	return embedRouter, nil
}

// buildCache connects to redis when the cache is enabled. An
// unreachable redis disables the cache instead of failing startup.
func (cfg *Config) buildCache(ctx context.Context) (*goredis.Client, *biz.QueryCache) {
	cacheConfig := &biz.QueryCacheConfig{
		Enabled:   cfg.Cache.Enabled,
		TTL:       cfg.Cache.TTL,
		KeyPrefix: cfg.Cache.KeyPrefix,
	}
	if !cfg.Cache.Enabled {
		return nil, biz.NewQueryCache(nil, cacheConfig)
	}

	client := cfg.Cache.NewClient()

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Cache.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warnw("redis unreachable, query cache disabled", "error", err.Error())
		_ = client.Close()
		cacheConfig.Enabled = false
		return nil, biz.NewQueryCache(nil, cacheConfig)
	}

	logger.Infow("query cache enabled", "ttl", cfg.Cache.TTL.String())
	return client, biz.NewQueryCache(client, cacheConfig)
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully and snapshots the indexes.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("retrieval server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down retrieval server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.HTTP.ShutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("http shutdown failed", "error", err.Error())
	}

	s.service.Close()
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if err := s.indexes.Close(); err != nil {
		return fmt.Errorf("snapshot indexes: %w", err)
	}

	logger.Info("retrieval server stopped")
	return nil
}
