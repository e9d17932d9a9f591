package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/memtier/client"
	"github.com/aschepis/backscratcher/memtier/config"
	ctxpkg "github.com/aschepis/backscratcher/memtier/context"
	"github.com/aschepis/backscratcher/memtier/embedding"
	"github.com/aschepis/backscratcher/memtier/engine"
	memlogger "github.com/aschepis/backscratcher/memtier/logger"
	"github.com/aschepis/backscratcher/memtier/memory/sqlite"
	"github.com/aschepis/backscratcher/memtier/migrations"
	"github.com/aschepis/backscratcher/memtier/tools"
)

// app is a locally opened engine with its resources.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	db     *sql.DB
	cache  *embedding.Cache
	engine *engine.Engine
	tools  *tools.Registry
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	return cfg, nil
}

// commandLogger logs to the configured file, or to stderr so stdout stays
// clean for command output.
func commandLogger(cfg *config.Config) (zerolog.Logger, error) {
	if cfg.Log.File != "" {
		return memlogger.InitWithOptions(cfg.Log.File, false)
	}
	return memlogger.New(zerolog.ConsoleWriter{Out: os.Stderr}, memlogger.ParseLevel(os.Getenv("LOG_LEVEL"))), nil
}

func openApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	logger.Info().Str("path", cfg.Database.Path).Msg("Opening database")
	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a.db = db

	if cfg.Database.MigrationsPath != "" {
		err = migrations.RunMigrationsFromPath(db, cfg.Database.MigrationsPath, logger)
	} else {
		err = migrations.RunMigrations(db, logger)
	}
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a.cache, err = embedding.NewCache(cfg.Embedding.Config)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	embedder, err := config.NewEmbedder(cfg, a.cache, logger)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	if embedder == nil {
		logger.Info().Msg("Embeddings disabled; semantic search falls back to text search")
	}
	classifier, err := config.NewClassifier(cfg, logger)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	a.engine, err = engine.New(engine.Options{
		Repository: sqlite.NewStore(db, logger),
		Embedder:   embedder,
		Cache:      a.cache,
		Authorizer: ctxpkg.OwnerAuthorizer(),
		Classifier: classifier,
		Config:     cfg.EngineConfig(),
		Logger:     logger,
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	if err := a.engine.Initialize(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}

	a.tools = tools.NewRegistry(logger)
	a.tools.RegisterMemoryTools(a.engine)
	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.engine != nil {
		if err := a.engine.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Engine shutdown incomplete")
		}
	}
	if a.cache != nil {
		a.cache.Close()
	}
	if a.db != nil {
		_ = a.db.Close() //nolint:errcheck // No remedy for db close errors
	}
}

// invoker runs a memory tool locally or on a daemon.
type invoker interface {
	Invoke(ctx context.Context, tool string, args map[string]any) (any, error)
	Close(ctx context.Context)
}

type localInvoker struct{ app *app }

func (l localInvoker) Invoke(ctx context.Context, tool string, args map[string]any) (any, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return l.app.tools.Handle(ctx, tool, callerID, data)
}

func (l localInvoker) Close(ctx context.Context) { l.app.close(ctx) }

type remoteInvoker struct{ client *client.Client }

func (r remoteInvoker) Invoke(ctx context.Context, tool string, args map[string]any) (any, error) {
	return r.client.Call(ctx, tool, args)
}

func (r remoteInvoker) Close(context.Context) { _ = r.client.Close() }

func newInvoker(ctx context.Context) (invoker, error) {
	if remoteAddr != "" {
		c, err := client.Connect(remoteAddr, callerID)
		if err != nil {
			return nil, err
		}
		return remoteInvoker{client: c}, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := commandLogger(cfg)
	if err != nil {
		return nil, err
	}
	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return localInvoker{app: a}, nil
}
