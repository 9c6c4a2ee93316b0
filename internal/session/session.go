package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/veridrive/sigproof/internal/correlate"
	"github.com/veridrive/sigproof/internal/criteria"
	"github.com/veridrive/sigproof/internal/domain"
	"github.com/veridrive/sigproof/internal/ports"
	"github.com/veridrive/sigproof/internal/timesync"
)

const (
	// startAttempts bounds adapter Start retries: the initial attempt
	// plus two backed-off retries.
	startAttempts = 3

	startBackoffInitial = 200 * time.Millisecond

	// recalibrateInterval is how often clock sources are re-pinged to
	// refresh the drift estimate.
	recalibrateInterval = 10 * time.Second
)

// ErrNotRunning is returned by Stop on a session that never ran.
var ErrNotRunning = errors.New("session: not running")

// Config assembles everything a session needs before any resource is
// opened. Criteria and adapter configs are validated eagerly; a session
// that cannot be constructed never reaches RUNNING.
type Config struct {
	SessionID string
	Criteria  domain.PassFailCriteria
	Policy    ports.Policy

	// GroundTruth labels are optional; without them TP/FP are derived
	// from signal confirmation alone (a matched detection counts as
	// confirmed) and recall degenerates to 1.
	GroundTruth []*domain.GroundTruth
}

func (c *Config) applyDefaults() {
	if c.Policy.ToleranceWindowMs <= 0 {
		c.Policy.ToleranceWindowMs = 5
	}
	if c.Policy.BufferCapacity <= 0 {
		c.Policy.BufferCapacity = 10_000
	}
	if c.Policy.SourceQueueLen <= 0 {
		c.Policy.SourceQueueLen = 1024
	}
	if c.Policy.MaxBatchSize <= 0 {
		c.Policy.MaxBatchSize = 500
	}
	if c.Policy.IdleSleep <= 0 {
		c.Policy.IdleSleep = 5 * time.Millisecond
	}
	if c.Policy.GracePeriod <= 0 {
		c.Policy.GracePeriod = 2 * time.Second
	}
	if c.Policy.ProgressInterval <= 0 {
		c.Policy.ProgressInterval = time.Second
	}
}

type taggedEvent struct {
	sig *domain.SignalEvent
	det *domain.Detection
}

// Session owns one validation run. The correlation engine is touched by
// exactly one consumer goroutine; adapters and the detection source only
// feed channels.
type Session struct {
	cfg Config

	adapters  []ports.SignalAdapter
	detSource ports.DetectionSource
	synchro   *timesync.Synchronizer
	clock     *timesync.Clock
	engine    *correlate.Engine
	store     ports.ResultStore
	journal   ports.ResultLog
	queue     ports.ResultQueue
	obs       ports.Observability
	progress  ports.ProgressSink

	state  atomic.Int32
	cancel context.CancelFunc

	central   chan taggedEvent
	sourceChs []chan *domain.SignalEvent
	live      []ports.SignalAdapter

	producersWG  sync.WaitGroup
	consumerDone chan struct{}
	flusherDone  chan struct{}
	tickersDone  chan struct{}

	eventsProcessed atomic.Uint64
	matchesFound    atomic.Uint64
	eventsDropped   atomic.Uint64
	startedAt       time.Time

	// Owned by the consumer goroutine until it exits.
	detections []*domain.Detection
	results    []*domain.LatencyResult

	finalize    sync.Once
	verdict     *domain.TestVerdict
	finalizeErr error

	adapterFaults []error
	faultsMu      sync.Mutex
}

// Deps are the collaborators a session is wired with.
type Deps struct {
	Adapters        []ports.SignalAdapter
	DetectionSource ports.DetectionSource
	Store           ports.ResultStore
	Journal         ports.ResultLog
	Queue           ports.ResultQueue
	Observability   ports.Observability
	Progress        ports.ProgressSink
}

func New(cfg Config, deps Deps) (*Session, error) {
	cfg.applyDefaults()

	if cfg.SessionID == "" {
		return nil, domain.NewFault(domain.FaultInvalidConfig, "", errors.New("session id is required"))
	}
	if err := criteria.Validate(cfg.Criteria); err != nil {
		return nil, domain.NewFault(domain.FaultInvalidConfig, "", err)
	}
	if len(deps.Adapters) == 0 {
		return nil, domain.NewFault(domain.FaultInvalidConfig, "", errors.New("at least one signal adapter is required"))
	}
	if deps.DetectionSource == nil {
		return nil, domain.NewFault(domain.FaultInvalidConfig, "", errors.New("detection source is required"))
	}
	if deps.Observability == nil {
		return nil, domain.NewFault(domain.FaultInvalidConfig, "", errors.New("observability is required"))
	}
	seen := make(map[string]bool, len(deps.Adapters))
	for _, a := range deps.Adapters {
		if seen[a.SourceID()] {
			return nil, domain.NewFault(domain.FaultInvalidConfig, a.SourceID(), errors.New("duplicate source id"))
		}
		seen[a.SourceID()] = true
	}

	s := &Session{
		cfg:       cfg,
		adapters:  deps.Adapters,
		detSource: deps.DetectionSource,
		synchro:   timesync.NewSynchronizer(),
		clock:     timesync.NewClock(),
		engine:    correlate.NewEngine(correlate.Options{
			ToleranceWindowMs: cfg.Policy.ToleranceWindowMs,
			BufferCapacity:    cfg.Policy.BufferCapacity,
			Exclusive:         cfg.Policy.ExclusiveMatching,
		}),
		store:    deps.Store,
		journal:  deps.Journal,
		queue:    deps.Queue,
		obs:      deps.Observability,
		progress: deps.Progress,
	}
	s.state.Store(int32(StateCreated))
	return s, nil
}

func (s *Session) ID() string { return s.cfg.SessionID }

func (s *Session) State() State { return State(s.state.Load()) }

// Start opens adapter resources and enters RUNNING. Adapters that fail
// all Start attempts are dropped from the run with an AdapterUnavailable
// fault; Start itself fails only when no source survives.
func (s *Session) Start() error {
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return fmt.Errorf("session %s: start from state %s", s.cfg.SessionID, s.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.startedAt = time.Now()
	s.central = make(chan taggedEvent, s.cfg.Policy.SourceQueueLen)
	s.consumerDone = make(chan struct{})
	s.flusherDone = make(chan struct{})
	s.tickersDone = make(chan struct{})

	for _, a := range s.adapters {
		ch := make(chan *domain.SignalEvent, s.cfg.Policy.SourceQueueLen)
		if err := s.startWithRetry(a, ch); err != nil {
			s.recordFault(err)
			s.obs.LogError("adapter_start_failed", err,
				ports.Field{Key: "source_id", Value: a.SourceID()})
			continue
		}
		s.calibrate(a)
		s.live = append(s.live, a)
		s.sourceChs = append(s.sourceChs, ch)

		s.producersWG.Add(1)
		go s.forward(ctx, ch)
	}

	if len(s.live) == 0 {
		s.state.Store(int32(StateCancelled))
		cancel()
		// No pipeline goroutine ever ran; release the journal here and
		// burn the finalizer so a later Stop cannot drain nothing.
		s.finalize.Do(s.closeJournal)
		return domain.NewFault(domain.FaultAdapterUnavailable, "", errors.New("no signal source could be started"))
	}

	s.producersWG.Add(1)
	go s.pumpDetections(ctx)

	go func() {
		s.producersWG.Wait()
		close(s.central)
	}()

	go s.consume()
	go s.flush(ctx)
	go s.tick(ctx)

	s.obs.SetGauge("sigproof_active_sessions", 1)
	s.obs.LogInfo("session_started",
		ports.Field{Key: "session_id", Value: s.cfg.SessionID},
		ports.Field{Key: "sources", Value: len(s.live)})
	return nil
}

func (s *Session) startWithRetry(a ports.SignalAdapter, ch chan *domain.SignalEvent) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = startBackoffInitial
	bo.MaxElapsedTime = 0

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		if err := a.Start(ch); err != nil {
			// Release anything a partial Start may have acquired.
			_ = a.Stop()
			if attempt < startAttempts {
				s.obs.IncCounter("sigproof_adapter_start_retries_total", 1)
			}
			return err
		}
		return nil
	}, backoff.WithMaxRetries(bo, startAttempts-1))
	if err != nil {
		return domain.NewFault(domain.FaultAdapterUnavailable, a.SourceID(), err)
	}
	return nil
}

// calibrate observes a reference ping for adapters that expose their
// stamping clock. Sources without one stay uncalibrated and degrade
// precision reporting downstream.
func (s *Session) calibrate(a ports.SignalAdapter) {
	cs, ok := a.(ports.ClockSource)
	if !ok {
		s.obs.LogInfo("calibration_unavailable",
			ports.Field{Key: "source_id", Value: a.SourceID()})
		return
	}
	raw, err := cs.RawNow()
	if err != nil {
		s.obs.LogError("calibration_ping_failed",
			domain.NewFault(domain.FaultCalibrationMissing, a.SourceID(), err))
		return
	}
	s.synchro.Observe(a.SourceID(), raw, s.clock.Now())
}

func (s *Session) forward(ctx context.Context, ch chan *domain.SignalEvent) {
	defer s.producersWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if s.cfg.Policy.OnQueueFull == "drop" {
				select {
				case s.central <- taggedEvent{sig: ev}:
				default:
					s.eventsDropped.Add(1)
					s.obs.RecordDrop(ev.SourceID, ev, "queue_full")
				}
				continue
			}
			// Default is backpressure: a full central queue stalls this
			// source until the consumer catches up.
			select {
			case s.central <- taggedEvent{sig: ev}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Session) pumpDetections(ctx context.Context) {
	defer s.producersWG.Done()
	for {
		det, err := s.detSource.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.obs.LogError("detection_stream_failed", err)
			}
			// Natural end of the detection stream winds the session
			// down unless a stop or cancel is already in flight.
			if errors.Is(err, io.EOF) && s.State() == StateRunning {
				go func() { _, _ = s.Stop() }()
			}
			return
		}
		select {
		case s.central <- taggedEvent{det: det}:
		case <-ctx.Done():
			return
		}
	}
}

// consume is the single goroutine that owns the correlation engine,
// guaranteeing one deterministic matching order.
func (s *Session) consume() {
	defer close(s.consumerDone)

	for ev := range s.central {
		switch {
		case ev.sig != nil:
			synced := s.synchro.Sync(ev.sig)
			before := s.engine.Stats()
			if !s.engine.AddSignal(synced) {
				s.eventsDropped.Add(1)
				s.obs.RecordDrop(synced.SourceID, synced, "disorder")
			} else if s.engine.Stats().DroppedOverflow > before.DroppedOverflow {
				s.eventsDropped.Add(1)
				s.obs.RecordDrop(synced.SourceID, synced, "overflow")
			}
			s.eventsProcessed.Add(1)
			s.obs.IncCounter("sigproof_signal_events_total", 1)

		case ev.det != nil:
			s.detections = append(s.detections, ev.det)
			s.obs.IncCounter("sigproof_detections_total", 1)

			start := time.Now()
			matches := s.engine.Correlate(ev.det)
			s.obs.ObserveLatency("sigproof_correlation_seconds", time.Since(start).Seconds())

			for _, r := range matches {
				s.results = append(s.results, r)
				s.matchesFound.Add(1)
				s.obs.IncCounter("sigproof_matches_total", 1)
				s.obs.ObserveLatency("sigproof_measured_latency_seconds", absMs(r.LatencyMs)/1000.0)
				s.journalResult(r)
			}
		}
	}
}

func (s *Session) journalResult(r *domain.LatencyResult) {
	var id ports.LogEntryID
	if s.journal != nil {
		var err error
		id, err = s.journal.Append(r)
		if err != nil {
			s.obs.LogCritical("journal_append_failed", err)
		}
	}
	if s.queue != nil && !s.queue.Enqueue(id, r) {
		// The flusher is behind; results stay in the journal and are
		// flushed from the watermark at finalization.
		s.obs.LogError("result_queue_full", domain.NewFault(domain.FaultBufferOverflow, r.SignalSourceID,
			fmt.Errorf("result %s not queued", r.DetectionID)))
	}
}

// flush drains the result queue into the store in batches, advancing the
// journal watermark only after a successful write. On context cancel any
// remaining queued results are left to journal replay.
func (s *Session) flush(ctx context.Context) {
	defer close(s.flusherDone)

	if s.queue == nil || s.store == nil {
		<-s.consumerDone
		return
	}

	for {
		batch := s.queue.DequeueBatch(s.cfg.Policy.MaxBatchSize)
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-s.consumerDone:
				if s.queue.Len() == 0 {
					return
				}
				// Consumer is gone but results remain queued; keep
				// draining without the idle wait.
				continue
			case <-time.After(s.cfg.Policy.IdleSleep):
			}
			continue
		}

		out := make([]*domain.LatencyResult, 0, len(batch))
		var maxID ports.LogEntryID
		for _, item := range batch {
			out = append(out, item.Result)
			if item.ID > maxID {
				maxID = item.ID
			}
		}

		if err := s.store.WriteResults(s.cfg.SessionID, out); err != nil {
			s.obs.LogError("store_write_failed", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.Policy.IdleSleep):
			}
			continue
		}
		s.obs.IncCounter("sigproof_results_flushed_total", float64(len(out)))

		if s.journal != nil {
			if err := s.journal.MarkFlushed(maxID); err != nil {
				s.obs.LogError("journal_mark_flushed_failed", err)
			}
		}
	}
}

// tick emits progress snapshots and refreshes clock calibration.
func (s *Session) tick(ctx context.Context) {
	defer close(s.tickersDone)

	progress := time.NewTicker(s.cfg.Policy.ProgressInterval)
	defer progress.Stop()
	recal := time.NewTicker(recalibrateInterval)
	defer recal.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-progress.C:
			if s.progress != nil {
				s.progress.Publish(s.Progress())
			}
			st := s.engine.Stats()
			s.obs.SetGauge("sigproof_buffered_signal_events", float64(st.BufferedEvents))
			if s.journal != nil {
				s.obs.SetGauge("sigproof_result_journal_bytes", float64(s.journal.Stats().SizeBytes))
			}
		case <-recal.C:
			for _, a := range s.live {
				s.calibrate(a)
			}
		}
	}
}

// Stop winds the session down: adapters stop in parallel, in-flight
// correlations get the configured grace period to resolve, then the
// verdict is computed exactly once and frozen. Calling Stop again
// returns the identical verdict without recomputation.
func (s *Session) Stop() (*domain.TestVerdict, error) {
	for {
		cur := s.State()
		switch cur {
		case StateCreated:
			return nil, ErrNotRunning
		case StateCancelled:
			return nil, domain.NewFault(domain.FaultSessionCancelled, "", nil)
		case StateStopped, StateStopping:
			// Fall through to the once-guarded finalizer; concurrent
			// and repeated stops converge on the same verdict.
			s.finalizeOnce()
			if s.State() == StateCancelled {
				return nil, domain.NewFault(domain.FaultSessionCancelled, "", nil)
			}
			return s.verdict, s.finalizeErr
		case StateRunning:
			if s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
				s.finalizeOnce()
				if s.State() == StateCancelled {
					return nil, domain.NewFault(domain.FaultSessionCancelled, "", nil)
				}
				return s.verdict, s.finalizeErr
			}
		}
	}
}

func (s *Session) finalizeOnce() {
	s.finalize.Do(func() {
		s.shutdownPipeline(false)

		// Claim the terminal state before computing anything. A Cancel
		// that flipped STOPPING to CANCELLED while the pipeline drained
		// wins: no verdict is produced or persisted.
		if !s.state.CompareAndSwap(int32(StateStopping), int32(StateStopped)) {
			s.closeJournal()
			s.obs.SetGauge("sigproof_active_sessions", 0)
			s.obs.LogInfo("session_cancelled",
				ports.Field{Key: "session_id", Value: s.cfg.SessionID})
			return
		}

		s.drainJournal()
		s.closeJournal()

		counts := s.deriveCounts()
		s.verdict = criteria.Evaluate(s.cfg.SessionID, s.cfg.Criteria, s.results, s.detections, counts)

		if s.store != nil {
			if err := s.store.SaveVerdict(s.verdict); err != nil {
				s.finalizeErr = fmt.Errorf("persist verdict: %w", err)
				s.obs.LogCritical("verdict_persist_failed", err)
			}
		}

		s.obs.SetGauge("sigproof_active_sessions", 0)
		s.obs.LogInfo("session_stopped",
			ports.Field{Key: "session_id", Value: s.cfg.SessionID},
			ports.Field{Key: "result", Value: string(s.verdict.Result)})
	})
}

// drainJournal replays journal records the flusher never stored, so
// results the queue rejected still reach the store before the verdict.
func (s *Session) drainJournal() {
	if s.journal == nil || s.store == nil {
		return
	}
	st := s.journal.Stats()
	if st.LatestAppended < st.OldestUnflushed {
		return
	}

	var pending []*domain.LatencyResult
	err := s.journal.Replay(st.OldestUnflushed, func(_ ports.LogEntryID, r *domain.LatencyResult) error {
		pending = append(pending, r)
		return nil
	})
	if err != nil {
		s.obs.LogError("journal_replay_failed", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	if err := s.store.WriteResults(s.cfg.SessionID, pending); err != nil {
		s.obs.LogError("store_write_failed", err)
		return
	}
	s.obs.IncCounter("sigproof_results_flushed_total", float64(len(pending)))
	if err := s.journal.MarkFlushed(st.LatestAppended); err != nil {
		s.obs.LogError("journal_mark_flushed_failed", err)
	}
}

func (s *Session) closeJournal() {
	if s.journal == nil {
		return
	}
	if err := s.journal.Close(); err != nil {
		s.obs.LogError("journal_close_failed", err)
	}
}

// shutdownPipeline stops producers and waits for the consumer and
// flusher to drain, bounded by the grace period.
func (s *Session) shutdownPipeline(cancelled bool) {
	if s.consumerDone == nil {
		// Never started; nothing to drain.
		return
	}

	// Unblock the detection pump first so no new detections arrive.
	_ = s.detSource.Close()

	var g errgroup.Group
	for _, a := range s.live {
		g.Go(a.Stop)
	}
	if err := g.Wait(); err != nil {
		s.obs.LogError("adapter_stop_failed", err)
	}

	// Adapters are fully stopped; their channels have no producers left.
	for _, ch := range s.sourceChs {
		close(ch)
	}

	done := make(chan struct{})
	go func() {
		<-s.consumerDone
		<-s.flusherDone
		close(done)
	}()

	grace := s.cfg.Policy.GracePeriod
	if cancelled {
		grace = 0
	}
	if grace > 0 {
		t := time.NewTimer(grace)
		select {
		case <-done:
		case <-t.C:
			s.obs.LogError("grace_period_exceeded",
				fmt.Errorf("in-flight work abandoned after %s", grace))
		}
		t.Stop()
	}

	// Force anything still in flight to bail out, then wait for the
	// consumer and flusher to observe the cancel.
	if s.cancel != nil {
		s.cancel()
	}
	<-done
	<-s.tickersDone
}

// deriveCounts labels the run. With annotations present, detections are
// matched against ground truth inside the tolerance window; without
// them, a signal-confirmed detection counts as a true positive and
// unmatched detections as false positives.
func (s *Session) deriveCounts() criteria.Counts {
	if len(s.cfg.GroundTruth) > 0 {
		return criteria.DeriveCounts(s.detections, s.cfg.GroundTruth, s.cfg.Policy.ToleranceWindowMs)
	}

	matched := make(map[string]bool, len(s.results))
	for _, r := range s.results {
		matched[r.DetectionID] = true
	}
	var c criteria.Counts
	for _, d := range s.detections {
		if matched[d.DetectionID] {
			c.TruePositives++
		} else {
			c.FalsePositives++
		}
	}
	return c
}

// Cancel aborts the session from any non-terminal state. No verdict is
// computed; partial results stay retrievable through Progress and the
// journal, flagged incomplete.
func (s *Session) Cancel() {
	for {
		cur := s.State()
		if cur.terminal() {
			return
		}
		if s.state.CompareAndSwap(int32(cur), int32(StateCancelled)) {
			break
		}
	}

	if s.cancel != nil {
		s.cancel()
	}
	// finalize is burned so a later Stop cannot compute a verdict.
	s.finalize.Do(func() {
		s.shutdownPipeline(true)
		s.closeJournal()
		s.obs.SetGauge("sigproof_active_sessions", 0)
		s.obs.LogInfo("session_cancelled",
			ports.Field{Key: "session_id", Value: s.cfg.SessionID})
	})
}

// Progress reports the externally visible counters. It is valid in
// every state, including after a fatal adapter fault on another source.
func (s *Session) Progress() domain.ProgressSnapshot {
	st := s.State()
	var elapsed int64
	if !s.startedAt.IsZero() {
		elapsed = time.Since(s.startedAt).Milliseconds()
	}
	return domain.ProgressSnapshot{
		SessionID:       s.cfg.SessionID,
		State:           st.String(),
		EventsProcessed: s.eventsProcessed.Load(),
		MatchesFound:    s.matchesFound.Load(),
		EventsDropped:   s.eventsDropped.Load(),
		ElapsedMs:       elapsed,
		Incomplete:      st == StateCancelled,
	}
}

// Faults returns adapter faults recorded during Start.
func (s *Session) Faults() []error {
	s.faultsMu.Lock()
	defer s.faultsMu.Unlock()
	out := make([]error, len(s.adapterFaults))
	copy(out, s.adapterFaults)
	return out
}

func (s *Session) recordFault(err error) {
	s.faultsMu.Lock()
	s.adapterFaults = append(s.adapterFaults, err)
	s.faultsMu.Unlock()
}

func absMs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
