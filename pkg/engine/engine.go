// Package engine wires configuration, identity resolution, both bookmark
// stores and the coordinator into one application context.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/entrhq/waymark/pkg/config"
	"github.com/entrhq/waymark/pkg/coordinator"
	"github.com/entrhq/waymark/pkg/events"
	"github.com/entrhq/waymark/pkg/filemarks"
	"github.com/entrhq/waymark/pkg/identity"
	"github.com/entrhq/waymark/pkg/linemarks"
	"github.com/entrhq/waymark/pkg/logging"
	"github.com/entrhq/waymark/pkg/opener"
	"github.com/entrhq/waymark/pkg/pathmatch"
	"github.com/entrhq/waymark/pkg/scheduler"
	"github.com/entrhq/waymark/pkg/workspace"
)

// Options configures New.
type Options struct {
	// Config is required.
	Config *config.Config

	// WorkingDir is the directory identity is resolved for. Empty means
	// the process working directory.
	WorkingDir string

	// Scheduler is the loop every handler runs on. Required.
	Scheduler scheduler.Scheduler

	// Backend answers repository questions. Nil means git.
	Backend identity.Backend

	// Opener performs the open action. Nil means an opener for
	// Config.OpenAction printing to stdout.
	Opener filemarks.Opener

	// Logger defaults to a no-op logger.
	Logger *logging.Logger
}

// Engine is the bookmark engine.
type Engine struct {
	cfg    *config.Config
	logger *logging.Logger
	sched  scheduler.Scheduler

	Events      *events.Bus
	Cache       *identity.Cache
	Resolver    *identity.Resolver
	Workspace   *workspace.Workspace
	Files       *filemarks.Store
	Lines       *linemarks.Store
	Coordinator *coordinator.Coordinator

	exclude *pathmatch.Matcher
}

// New builds an engine and resolves the initial identity synchronously, so
// it must be called before the scheduler loop starts handling work.
func New(ctx context.Context, opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("engine: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if opts.Scheduler == nil {
		return nil, errors.New("engine: scheduler is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	dir := opts.WorkingDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("engine: failed to get working directory: %w", err)
		}
		dir = wd
	}

	exclude, err := pathmatch.New(cfg.Exclude)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	backend := opts.Backend
	if backend == nil {
		backend = identity.NewGitBackend(cfg.GitTimeout)
	}
	open := opts.Opener
	if open == nil {
		open = opener.New(cfg.OpenAction, os.Stdout)
	}

	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		sched:     opts.Scheduler,
		Events:    events.NewBus(),
		Cache:     identity.NewCache(cfg.BranchTTL),
		Workspace: workspace.New(),
		exclude:   exclude,
	}

	e.Resolver = identity.NewResolver(dir, backend, e.sched, e.Cache, identity.Options{
		Mode:             cfg.ScopeMode,
		SeparateByBranch: cfg.SeparateByBranch,
	}, logger.With("identity"))

	e.Files = filemarks.New(filemarks.Options{
		Dir:              filepath.Join(cfg.SavePath, "files"),
		SeparateByBranch: cfg.SeparateByBranch,
		Global:           cfg.Global(),
		RelativePath:     cfg.RelativePath,
		Exclude:          exclude,
	}, e.Resolver, open, e.Events, logger.With("filemarks"))

	e.Lines = linemarks.New(linemarks.Options{
		Dir:         filepath.Join(cfg.SavePath, "lines"),
		Debounce:    cfg.WriteDebounce,
		SortOnWrite: cfg.SortLineBookmarks,
	}, e.Resolver, e.Workspace, e.sched, e.Events, logger.With("linemarks"))

	e.Coordinator = coordinator.New(e.Resolver, e.Files, e.Lines, e.Workspace, e.sched, e.Events, exclude, logger.With("coordinator"))

	if cfg.SeparateByBranch && !cfg.Global() {
		if branch, ok := e.Resolver.ResolveNow(ctx); ok {
			logger.Debugf("starting on branch %s", branch)
		}
	}
	e.Files.LoadCacheFile()
	e.Coordinator.Init()

	logger.Infof("engine ready: scope %s, branch key %s", e.Resolver.ScopeKey(), e.Resolver.BranchKey())
	return e, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Start begins identity polling when configured.
func (e *Engine) Start(ctx context.Context) {
	e.Coordinator.Start(ctx, e.cfg.PollInterval)
}

// OpenDocument registers a document and loads its line bookmarks the first
// time it is seen. Excluded paths are registered but never loaded.
func (e *Engine) OpenDocument(path string, lines int) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("engine: resolving %s: %w", path, err)
	}

	doc, created := e.Workspace.Open(abs, lines)
	if e.exclude.Match(abs) {
		return doc.ID, nil
	}
	if created || !e.Lines.Loaded(doc.ID) {
		if err := e.Lines.Load(doc.ID); err != nil {
			return doc.ID, err
		}
	}
	return doc.ID, nil
}

// CloseDocument flushes the document's marks and forgets it.
func (e *Engine) CloseDocument(id string) error {
	err := e.Lines.Close(id)
	if cerr := e.Workspace.Close(id); cerr != nil {
		return cerr
	}
	return err
}

// Flush writes every pending line bookmark change.
func (e *Engine) Flush() error {
	var errs []error
	for _, id := range e.Lines.LoadedIDs() {
		if err := e.Lines.SyncNow(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes pending writes. The engine must not be used afterwards.
func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		e.logger.Errorf("flushing on close: %v", err)
		return err
	}
	return nil
}
