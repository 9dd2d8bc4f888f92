// Package engine runs pipelines. It reads the input dataset, applies the
// column operations, dispatches the stages in dependency order and writes
// the intermediate, final and statistics outputs, recording everything in
// the state store.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/leapstack-labs/leapdq/internal/association"
	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/drift"
	"github.com/leapstack-labs/leapdq/internal/quality"
	"github.com/leapstack-labs/leapdq/internal/report"
	"github.com/leapstack-labs/leapdq/internal/stage"
	"github.com/leapstack-labs/leapdq/internal/state"
	"github.com/leapstack-labs/leapdq/internal/stats"
	"github.com/leapstack-labs/leapdq/internal/storage"
	"github.com/leapstack-labs/leapdq/internal/transform"
)

// Runner runs the named function of a stage.
type Runner interface {
	Run(ctx context.Context, name string, ds *dataset.Dataset, decode stage.Decoder) (stage.Result, error)
}

// Config holds engine configuration.
type Config struct {
	// StatePath is the SQLite state database. Ignored when Store is set.
	StatePath string
	// Store is an already opened state store. The engine does not close it.
	Store state.Store
	// Storage configures location resolution.
	Storage storage.Config
	// Objects serves s3:// locations (optional).
	Objects storage.ObjectStore
	// Workers bounds the goroutines used inside a stage. Zero uses GOMAXPROCS.
	Workers int
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
	// OnEvent receives progress and print_impact events (optional). Calls
	// are serialized.
	OnEvent func(Event)
}

// Engine runs pipelines.
type Engine struct {
	logger    *slog.Logger
	store     state.Store
	ownsStore bool
	resolver  *storage.Resolver
	workers   int

	stats       *stats.Generator
	quality     *quality.Checker
	association *association.Evaluator
	detector    *drift.Detector
	report      *report.Preprocessor
	transform   *transform.Transformer

	eventMu sync.Mutex
	onEvent func(Event)
}

// New creates an engine and opens its state store.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	store, owns := cfg.Store, false
	if store == nil {
		path := cfg.StatePath
		if path == "" {
			path = ":memory:"
		}
		s := state.NewSQLiteStore(logger)
		if err := s.Open(ctx, path); err != nil {
			return nil, fmt.Errorf("failed to open state store: %w", err)
		}
		store, owns = s, true
	}

	logger.Debug("initializing engine", "run_type", cfg.Storage.RunType, "workers", workers)

	resolver := storage.NewResolver(cfg.Storage, cfg.Objects, logger)
	return &Engine{
		logger:      logger,
		store:       store,
		ownsStore:   owns,
		resolver:    resolver,
		workers:     workers,
		stats:       stats.NewGenerator(logger, workers),
		quality:     quality.NewChecker(logger),
		association: association.NewEvaluator(logger),
		detector:    drift.NewDetector(logger),
		report:      report.NewPreprocessor(logger, resolver),
		transform:   transform.NewTransformer(logger, workers),
		onEvent:     cfg.OnEvent,
	}, nil
}

// Close releases the state store when the engine opened it.
func (e *Engine) Close() error {
	if e.ownsStore {
		return e.store.Close()
	}
	return nil
}

// Store returns the state store.
func (e *Engine) Store() state.Store {
	return e.store
}

func (e *Engine) emit(ev Event) {
	if e.onEvent == nil {
		return
	}
	e.eventMu.Lock()
	defer e.eventMu.Unlock()
	e.onEvent(ev)
}
