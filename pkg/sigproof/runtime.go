// Package sigproof is the embedding surface for the correlation engine:
// it wires the default adapters (hardware signal sources, Postgres
// store, file journal, Prometheus observability) from a config file and
// exposes session lifecycle operations to host applications.
package sigproof

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veridrive/sigproof/internal/adapters/detect"
	"github.com/veridrive/sigproof/internal/adapters/observability"
	"github.com/veridrive/sigproof/internal/adapters/progress"
	"github.com/veridrive/sigproof/internal/adapters/queue"
	"github.com/veridrive/sigproof/internal/adapters/resultlog"
	"github.com/veridrive/sigproof/internal/adapters/store"
	"github.com/veridrive/sigproof/internal/app/config"
	"github.com/veridrive/sigproof/internal/domain"
	"github.com/veridrive/sigproof/internal/ports"
	"github.com/veridrive/sigproof/internal/session"
)

const resultQueueCapacity = 100_000

// Option customizes the dependencies used by Runtime.
type Option func(*overrides)

type overrides struct {
	adapters      []ports.SignalAdapter
	detections    ports.DetectionSource
	store         ports.ResultStore
	queue         ports.ResultQueue
	observability ports.Observability
	progress      ports.ProgressSink
	groundTruth   []*domain.GroundTruth
}

// WithAdapters replaces the config-built signal adapters (simulators,
// custom hardware, replay harnesses).
func WithAdapters(adapters ...ports.SignalAdapter) Option {
	return func(o *overrides) { o.adapters = adapters }
}

// WithDetectionSource replaces the NDJSON file replay with a custom
// detection stream, typically a live inference loop.
func WithDetectionSource(src ports.DetectionSource) Option {
	return func(o *overrides) { o.detections = src }
}

// WithStore replaces the Postgres result store.
func WithStore(s ports.ResultStore) Option {
	return func(o *overrides) { o.store = s }
}

// WithResultQueue injects a custom queue between consumer and flusher.
func WithResultQueue(q ports.ResultQueue) Option {
	return func(o *overrides) { o.queue = q }
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs ports.Observability) Option {
	return func(o *overrides) { o.observability = obs }
}

// WithProgressSink replaces the websocket hub as the snapshot receiver.
func WithProgressSink(sink ports.ProgressSink) Option {
	return func(o *overrides) { o.progress = sink }
}

// WithGroundTruth supplies annotations directly instead of loading them
// from the configured file.
func WithGroundTruth(gts []*domain.GroundTruth) Option {
	return func(o *overrides) { o.groundTruth = gts }
}

// Runtime owns the long-lived pieces shared across sessions: the store
// connection, observability, the metrics server, and the progress hub.
type Runtime struct {
	cfg *config.Config
	ovr overrides

	obs      ports.Observability
	store    ports.ResultStore
	progress ports.ProgressSink
	hub      *progress.Hub
	manager  *session.Manager

	db         *sql.DB
	metricsSrv *http.Server
}

// NewRuntime bootstraps the default adapters. Option values override any
// dependency; overridden dependencies are never constructed, so a test
// runtime with a fake store opens no database connection.
func NewRuntime(cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var ovr overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&ovr)
		}
	}

	obs := ovr.observability
	if obs == nil {
		obs = observability.NewPromObs(nil)
	}

	r := &Runtime{
		cfg:     cfg,
		ovr:     ovr,
		obs:     obs,
		manager: session.NewManager(),
	}

	if ovr.store != nil {
		r.store = ovr.store
	} else {
		db, err := sql.Open("postgres", cfg.Postgres.ConnString)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		r.db = db
		r.store = store.NewPostgresStore(db, cfg.Postgres.ResultsTable, cfg.Postgres.VerdictsTable)
	}

	if ovr.progress != nil {
		r.progress = ovr.progress
	} else {
		r.hub = progress.NewHub(obs)
		r.progress = r.hub
	}

	return r, nil
}

// Start launches the metrics endpoint (and the progress hub when one was
// not overridden). It returns immediately.
func (r *Runtime) Start() error {
	if r.metricsSrv != nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if r.hub != nil {
		mux.Handle("/progress", r.hub)
	}

	r.metricsSrv = &http.Server{
		Addr:    r.cfg.Metrics.Addr,
		Handler: mux,
	}
	go func() {
		if err := r.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("metrics_server_exited", err)
		}
	}()
	return nil
}

// StartSession builds the per-session dependencies (adapters, detection
// source, journal, queue) and starts a new validation session.
func (r *Runtime) StartSession() (string, error) {
	gts := r.ovr.groundTruth
	if gts == nil && r.cfg.Detections.GroundTruth != "" {
		loaded, err := detect.LoadGroundTruth(r.cfg.Detections.GroundTruth)
		if err != nil {
			return "", fmt.Errorf("load ground truth: %w", err)
		}
		gts = loaded
	}

	cfg := session.Config{
		Criteria:    r.cfg.Criteria,
		Policy:      r.cfg.Policy,
		GroundTruth: gts,
	}

	return r.manager.StartSessionFunc(cfg, func(sessionID string) (session.Deps, error) {
		adapters := r.ovr.adapters
		if adapters == nil {
			built, err := buildAdapters(r.cfg.Sources)
			if err != nil {
				return session.Deps{}, err
			}
			adapters = built
		}

		detections := r.ovr.detections
		if detections == nil {
			src, err := detect.NewFileSource(r.cfg.Detections.File)
			if err != nil {
				return session.Deps{}, fmt.Errorf("open detections: %w", err)
			}
			detections = src
		}

		journal, err := resultlog.NewFileLog(r.cfg.Journal.Dir, sessionID)
		if err != nil {
			return session.Deps{}, fmt.Errorf("open journal: %w", err)
		}

		q := r.ovr.queue
		if q == nil {
			q = queue.NewMemQueue(resultQueueCapacity)
		}

		return session.Deps{
			Adapters:        adapters,
			DetectionSource: detections,
			Store:           r.store,
			Journal:         journal,
			Queue:           q,
			Observability:   r.obs,
			Progress:        r.progress,
		}, nil
	})
}

// StopSession stops the session and returns its verdict; repeat calls
// return the identical verdict.
func (r *Runtime) StopSession(id string) (*domain.TestVerdict, error) {
	return r.manager.StopSession(id)
}

// CancelSession aborts the session without a verdict.
func (r *Runtime) CancelSession(id string) error {
	return r.manager.CancelSession(id)
}

// Progress reports the session's current counters.
func (r *Runtime) Progress(id string) (domain.ProgressSnapshot, error) {
	return r.manager.GetProgress(id)
}

// Faults returns the adapter faults recorded while starting the session.
func (r *Runtime) Faults(id string) ([]error, error) {
	s, err := r.manager.Get(id)
	if err != nil {
		return nil, err
	}
	return s.Faults(), nil
}

// Wait blocks until the session reaches a terminal state or ctx ends.
// A session whose detection stream hits EOF stops on its own, so Wait is
// how replay-driven runs are awaited.
func (r *Runtime) Wait(ctx context.Context, id string) error {
	s, err := r.manager.Get(id)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.State() == session.StateStopped || s.State() == session.StateCancelled {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Run starts the runtime, runs one session to completion, and returns
// its verdict. Cancelling ctx stops the session early; the verdict then
// covers what was correlated so far.
func (r *Runtime) Run(ctx context.Context) (*domain.TestVerdict, error) {
	if err := r.Start(); err != nil {
		return nil, err
	}

	id, err := r.StartSession()
	if err != nil {
		return nil, err
	}

	if err := r.Wait(ctx, id); err != nil && !errors.Is(err, context.Canceled) {
		return nil, err
	}
	return r.StopSession(id)
}

// Shutdown stops every live session, the metrics server, and the store
// connection.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	for _, id := range r.manager.List() {
		if _, err := r.manager.StopSession(id); err != nil &&
			!errors.Is(err, session.ErrNotRunning) &&
			domain.FaultKindOf(err) != domain.FaultSessionCancelled {
			errs = append(errs, err)
		}
	}

	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
		r.metricsSrv = nil
	}

	if r.hub != nil {
		if err := r.hub.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
