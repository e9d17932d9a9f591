// Package engine is the memory orchestrator. It validates requests, checks
// authorization and composes the tiering, search and graph engines over one
// persistence adapter.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/memtier/embedding"
	"github.com/aschepis/backscratcher/memtier/graph"
	"github.com/aschepis/backscratcher/memtier/memory"
	"github.com/aschepis/backscratcher/memtier/search"
	"github.com/aschepis/backscratcher/memtier/tiering"
)

// Options are the engine's collaborators. Only Repository is required.
type Options struct {
	Repository memory.Repository
	// Embedder enables semantic search and embedding-based discovery.
	Embedder memory.Embedder
	// Cache is reported by GetHealth when set.
	Cache      *embedding.Cache
	Authorizer memory.Authorizer
	Classifier graph.Classifier
	Config     Config
	Clock      func() time.Time
	Logger     zerolog.Logger
}

// Engine is the single entry point for memory operations.
type Engine struct {
	repo       memory.Repository
	embedder   memory.Embedder
	cache      *embedding.Cache
	authorizer memory.Authorizer
	cfg        Config
	now        func() time.Time
	logger     zerolog.Logger

	tiers  *tiering.Engine
	search *search.Engine
	graph  *graph.Engine
	locks  *keyedMutex

	// base is cancelled by Shutdown; every operation's context follows it.
	base     context.Context
	stop     context.CancelFunc
	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup

	startedAt time.Time
	ready     bool
}

// New wires the sub-engines.
func New(opts Options) (*Engine, error) {
	if opts.Repository == nil {
		return nil, fmt.Errorf("engine: repository is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := opts.Logger.With().Str("component", "engine").Logger()

	e := &Engine{
		repo:       opts.Repository,
		embedder:   opts.Embedder,
		cache:      opts.Cache,
		authorizer: opts.Authorizer,
		cfg:        opts.Config,
		now:        opts.Clock,
		logger:     logger,
		locks:      newKeyedMutex(),
	}
	e.base, e.stop = context.WithCancel(context.Background())

	e.graph = graph.NewEngine(opts.Repository, opts.Config.Graph, opts.Logger)
	e.graph.SetClock(opts.Clock)
	if opts.Classifier != nil {
		e.graph.SetClassifier(opts.Classifier)
	}

	e.search = search.NewEngine(opts.Repository, opts.Embedder, opts.Config.Search, opts.Logger)
	e.search.SetClock(opts.Clock)

	e.tiers = tiering.NewEngine(opts.Repository, e.graph, opts.Config.Tiering, opts.Logger)
	e.tiers.SetClock(opts.Clock)
	e.tiers.SetLocker(e.locks)

	return e, nil
}

// Initialize checks the persistence adapter and marks the engine ready.
func (e *Engine) Initialize(ctx context.Context) error {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return err
	}
	defer done()

	if err := e.repo.Ping(ctx); err != nil {
		return memory.NewPersistenceError("persistence adapter unreachable", err)
	}
	counts, err := e.repo.CountMemories(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.ready = true
	e.startedAt = e.now()
	e.mu.Unlock()

	model := "none"
	if e.embedder != nil {
		model = e.embedder.Model()
	}
	e.logger.Info().
		Int("memories", counts.Total).
		Str("embeddingModel", model).
		Bool("authorizer", e.authorizer != nil).
		Msg("Memory engine initialized")
	return nil
}

// Shutdown cancels running batch passes and waits for in-flight operations
// until ctx expires. Later calls return a shutdown error.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return memory.NewShutdownError("engine already shut down")
	}
	e.closed = true
	e.mu.Unlock()

	e.logger.Info().Msg("Shutting down memory engine")
	e.stop()

	drained := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		e.logger.Info().Msg("Memory engine stopped")
		return nil
	case <-ctx.Done():
		e.logger.Warn().Err(ctx.Err()).Msg("Shutdown timed out waiting for operations")
		return ctx.Err()
	}
}

// enter registers an operation. The returned context is cancelled when
// either the caller's context ends or the engine shuts down.
func (e *Engine) enter(ctx context.Context) (context.Context, func(), error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, nil, memory.NewShutdownError("engine is shut down")
	}
	e.inflight.Add(1)
	e.mu.RUnlock()

	ctx, cancel := context.WithCancel(ctx)
	unhook := context.AfterFunc(e.base, cancel)
	return ctx, func() {
		unhook()
		cancel()
		e.inflight.Done()
	}, nil
}

func (e *Engine) authorize(ctx context.Context, action memory.Action, ownerID string) error {
	if e.authorizer == nil {
		return nil
	}
	if err := e.authorizer.Authorize(ctx, action, ownerID); err != nil {
		e.logger.Warn().
			Str("action", string(action)).
			Str("owner", ownerID).
			Err(err).
			Msg("Access denied")
		if memory.IsAccessDenied(err) {
			return err
		}
		return memory.NewAccessDeniedError(fmt.Sprintf("%s denied for owner %s", action, ownerID), err)
	}
	return nil
}

// owned loads a memory and authorizes action against its owner.
func (e *Engine) owned(ctx context.Context, id string, action memory.Action) (*memory.Entity, error) {
	if id == "" {
		return nil, memory.NewValidationError("memory id is required", nil)
	}
	m, err := e.repo.GetMemory(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, memory.NewNotFoundError(fmt.Sprintf("memory %s not found", id))
	}
	if err := e.authorize(ctx, action, m.OwnerID); err != nil {
		return nil, err
	}
	return m, nil
}
