package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"

	"github.com/fabfab/stakeholder-rag/boundary"
	"github.com/fabfab/stakeholder-rag/chat"
	"github.com/fabfab/stakeholder-rag/classifier"
	"github.com/fabfab/stakeholder-rag/config"
	"github.com/fabfab/stakeholder-rag/database"
	"github.com/fabfab/stakeholder-rag/embeddings"
	"github.com/fabfab/stakeholder-rag/entities"
	"github.com/fabfab/stakeholder-rag/inference"
	"github.com/fabfab/stakeholder-rag/ingestion"
	"github.com/fabfab/stakeholder-rag/knowledge"
	"github.com/fabfab/stakeholder-rag/llm"
	"github.com/fabfab/stakeholder-rag/profile"
	"github.com/fabfab/stakeholder-rag/retrieval"
	"github.com/fabfab/stakeholder-rag/router"
	"github.com/fabfab/stakeholder-rag/vectorstore"
)

type clearableStore interface {
	vectorstore.Store
	Clear(ctx context.Context) error
}

// app holds every component, built once per process.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	catalog   *profile.Catalog
	router    *router.Router
	validator *boundary.Validator
	retrieval *retrieval.Orchestrator
	chat      *chat.Service

	store clearableStore
	pool  *pgxpool.Pool
	graph neo4j.DriverWithContext
	cache *redis.Client
}

type appOptions struct {
	memoryStore bool
	noGraph     bool
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func loadCatalog(path string) (*profile.Catalog, error) {
	if path == "" {
		return profile.Default(), nil
	}
	c, err := profile.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profiles from %s: %w", path, err)
	}
	return c, nil
}

func newApp(ctx context.Context, cfg config.Config, opts appOptions, logger *slog.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close(ctx)
		}
	}()

	catalog, err := loadCatalog(cfg.ProfilesPath)
	if err != nil {
		return nil, err
	}
	a.catalog = catalog

	if err := a.openStore(ctx, opts.memoryStore); err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("embedder setup: %w", err)
	}
	if cfg.RedisAddr != "" {
		a.cache = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := a.cache.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, embedding cache disabled", "addr", cfg.RedisAddr, "error", err)
			_ = a.cache.Close()
			a.cache = nil
		} else {
			embedder = embeddings.NewCachedEmbedder(embedder, a.cache, cfg.Embeddings.Model, cfg.Embeddings.CacheTTL, logger)
		}
	}

	var sink retrieval.GraphSink
	if !opts.noGraph && cfg.Neo4jURI != "" {
		driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			logger.Warn("neo4j unavailable, graph sync disabled", "uri", cfg.Neo4jURI, "error", err)
		} else {
			a.graph = driver
			sink = knowledge.NewSink(driver, logger)
		}
	}

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("llm setup: %w", err)
	}

	splitter, err := ingestion.NewSplitter(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	models := inference.NewClient(inference.OptionsFromConfig(cfg.Inference))

	a.router = router.New(catalog, logger)
	a.validator = boundary.New(catalog, logger)
	a.retrieval, err = retrieval.New(retrieval.Deps{
		Extractor:  ingestion.NewExtractor(),
		Classifier: classifier.New(catalog, models, logger),
		Entities:   entities.New(models, logger),
		Splitter:   splitter,
		Embedder:   embedder,
		Store:      a.store,
		Graph:      sink,
	}, retrieval.Options{
		Namespace:    cfg.Retrieval.Namespace,
		TopK:         cfg.Retrieval.TopK,
		PreviewLimit: cfg.Retrieval.PreviewLimit,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.chat = chat.NewService(
		a.router,
		a.retrieval,
		a.validator,
		chat.NewAssembler(llmClient, catalog, cfg.LLM.Timeout, logger),
		logger,
	)

	ok = true
	return a, nil
}

func (a *app) openStore(ctx context.Context, memory bool) error {
	dim := a.cfg.Embeddings.Dimension
	if memory || a.cfg.PostgresDSN == "" {
		a.logger.Info("using in-memory vector store", "dimension", dim)
		a.store = vectorstore.NewMemoryStore(dim, 0)
		return nil
	}

	pool, err := database.NewPostgresPool(ctx, a.cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("postgres connection: %w", err)
	}
	a.pool = pool
	if err := database.EnsureVectorSchema(ctx, pool, dim); err != nil {
		return fmt.Errorf("ensure vector schema: %w", err)
	}
	a.store = vectorstore.NewPostgresStore(pool, dim)
	return nil
}

// clear removes every vector and, when connected, every graph node.
func (a *app) clear(ctx context.Context) error {
	if err := a.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear vector store: %w", err)
	}
	a.logger.Info("vector store cleared")

	if a.graph != nil {
		if err := knowledge.Purge(ctx, a.graph); err != nil {
			return err
		}
		a.logger.Info("graph cleared")
	}
	return nil
}

func (a *app) Close(ctx context.Context) {
	if a.graph != nil {
		_ = a.graph.Close(ctx)
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
