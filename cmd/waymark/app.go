package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/entrhq/waymark/pkg/config"
	"github.com/entrhq/waymark/pkg/engine"
	"github.com/entrhq/waymark/pkg/identity"
	"github.com/entrhq/waymark/pkg/logging"
	"github.com/entrhq/waymark/pkg/opener"
	"github.com/entrhq/waymark/pkg/scheduler"
)

// app holds the state shared by every command of one invocation.
type app struct {
	configPath string
	workDir    string
	out        io.Writer
	errOut     io.Writer

	cfg    *config.Config
	logger *logging.Logger
	loop   *scheduler.Loop
	engine *engine.Engine

	stopLoop context.CancelFunc
	loopDone chan struct{}

	// backend replaces git in tests.
	backend identity.Backend
}

func newApp(out, errOut io.Writer) *app {
	return &app{out: out, errOut: errOut}
}

// setup loads the configuration, starts the loop and builds the engine.
func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{Dir: cfg.LogDir, Component: "cli", Level: level})
	if err != nil {
		fmt.Fprintf(a.errOut, "Warning: %v\n", err)
	}
	a.logger = logger

	a.loop = scheduler.NewLoop()
	e, err := engine.New(ctx, engine.Options{
		Config:     cfg,
		WorkingDir: a.workDir,
		Scheduler:  a.loop,
		Backend:    a.backend,
		Opener:     opener.New(cfg.OpenAction, a.out),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	a.engine = e

	loopCtx, cancel := context.WithCancel(context.Background())
	a.stopLoop = cancel
	a.loopDone = make(chan struct{})
	go func() {
		defer close(a.loopDone)
		_ = a.loop.Run(loopCtx)
	}()
	return nil
}

// do runs fn on the loop and returns its error.
func (a *app) do(ctx context.Context, fn func() error) error {
	var err error
	if lerr := a.loop.Do(ctx, func() { err = fn() }); lerr != nil {
		return lerr
	}
	return err
}

// teardown flushes pending writes and stops the loop. It is safe to call
// when setup did not run or failed part way.
func (a *app) teardown(ctx context.Context) error {
	var err error
	if a.engine != nil {
		// An interrupt cancels ctx, but pending writes must still land.
		err = a.do(context.WithoutCancel(ctx), a.engine.Close)
		a.engine = nil
	}
	if a.stopLoop != nil {
		a.stopLoop()
		<-a.loopDone
		a.stopLoop = nil
	}
	if a.logger != nil {
		err = errors.Join(err, a.logger.Close())
		a.logger = nil
	}
	return err
}
