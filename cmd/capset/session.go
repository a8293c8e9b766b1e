package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"capset/internal/blobstore"
	"capset/internal/command"
	"capset/internal/config"
	"capset/internal/events"
	"capset/internal/format"
	"capset/internal/model"
	"capset/internal/store"
)

// session carries what every command needs. app is set while the shell
// keeps one model open across lines.
type session struct {
	cfg         *config.Config
	in          io.Reader
	out         io.Writer
	errOut      io.Writer
	jsonOutput  bool
	defaultJSON bool
	app         *app
}

// withApp runs fn against the shell's open model, or opens one for the
// duration of fn.
func (s *session) withApp(ctx context.Context, fn func(*app) error) error {
	if s.app != nil {
		return fn(s.app)
	}
	a, err := openApp(ctx, s.cfg, s.errOut, renderOptions{json: s.jsonOutput})
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

type renderOptions struct {
	json bool
	// failures renders failure events; one-shot commands print the
	// returned error instead.
	failures bool
}

// app is an open dataset: store, blob store, model and event renderer.
type app struct {
	store    *store.Store
	model    *model.Model
	registry *prometheus.Registry
	sub      *events.Subscription
	rendered chan struct{}

	// mu serializes writes from the renderer with command output.
	mu     sync.Mutex
	errOut io.Writer
}

func openApp(ctx context.Context, cfg *config.Config, errOut io.Writer, opts renderOptions) (*app, error) {
	timeout, err := cfg.OperationTimeout()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	blobs, err := blobstore.NewLocalCAS(cfg.BlobDir)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	m, err := model.New(st, model.Options{
		Registry:         command.DefaultRegistry(),
		Blobs:            blobs,
		Logger:           slog.Default(),
		Registerer:       registry,
		QueueSize:        cfg.Model.QueueSize,
		OperationTimeout: timeout,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	a := &app{
		store:    st,
		model:    m,
		registry: registry,
		sub:      m.Events().Subscribe(),
		rendered: make(chan struct{}),
		errOut:   errOut,
	}
	go a.render(opts)

	if _, err := m.Refresh(ctx).Wait(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) render(opts renderOptions) {
	defer close(a.rendered)
	for ev := range a.sub.Events() {
		if ev.Kind == events.KindFailure && !opts.failures {
			continue
		}
		a.mu.Lock()
		if opts.json {
			_ = writeJSON(a.errOut, format.Record(ev))
		} else {
			for _, line := range format.EventLines(ev) {
				fmt.Fprintln(a.errOut, line)
			}
		}
		a.mu.Unlock()
	}
}

// close finishes queued operations, flushes pending events and closes the
// store.
func (a *app) close() {
	a.model.Close()
	a.model.Events().Close()
	<-a.rendered
	_ = a.store.Close()
}

func (a *app) execute(ctx context.Context, cmd *command.Command) (model.Result, error) {
	return a.model.Execute(ctx, cmd).Wait(ctx)
}

func (a *app) state() *model.State {
	return a.model.State()
}
