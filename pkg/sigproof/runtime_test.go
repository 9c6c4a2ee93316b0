package sigproof

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/veridrive/sigproof/internal/adapters/detect"
	"github.com/veridrive/sigproof/internal/app/config"
	"github.com/veridrive/sigproof/internal/domain"
	"github.com/veridrive/sigproof/internal/ports"
)

type stubAdapter struct {
	id     string
	events []*domain.SignalEvent
}

func (a *stubAdapter) SourceID() string          { return a.id }
func (a *stubAdapter) Protocol() domain.Protocol { return domain.ProtocolNetwork }
func (a *stubAdapter) Stop() error               { return nil }

func (a *stubAdapter) Start(out chan<- *domain.SignalEvent) error {
	for _, ev := range a.events {
		out <- ev
	}
	return nil
}

type memStore struct {
	mu       sync.Mutex
	results  int
	verdicts []*domain.TestVerdict
}

func (m *memStore) WriteResults(sessionID string, rs []*domain.LatencyResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results += len(rs)
	return nil
}

func (m *memStore) SaveVerdict(v *domain.TestVerdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verdicts = append(m.verdicts, v)
	return nil
}

func (m *memStore) Name() string { return "mem" }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Policy: ports.Policy{
			ToleranceWindowMs: 500,
			BufferCapacity:    64,
			SourceQueueLen:    64,
			MaxBatchSize:      16,
			IdleSleep:         2 * time.Millisecond,
			GracePeriod:       2 * time.Second,
			ProgressInterval:  20 * time.Millisecond,
		},
		Criteria: domain.PassFailCriteria{
			MaxLatencyMs:         1000,
			MaxFalsePositiveRate: 1,
		},
		Metrics: config.MetricsConfig{Addr: "127.0.0.1:0"},
		Journal: config.JournalConfig{Dir: t.TempDir()},
	}
}

func waitProgress(t *testing.T, r *Runtime, id string, cond func(domain.ProgressSnapshot) bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		p, err := r.Progress(id)
		if err != nil {
			t.Fatalf("progress: %v", err)
		}
		if cond(p) {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("timed out waiting for progress condition")
}

func TestRuntimeRunsSessionToVerdict(t *testing.T) {
	st := &memStore{}
	src := detect.NewChanSource(8)

	r, err := NewRuntime(testConfig(t),
		WithStore(st),
		WithAdapters(&stubAdapter{
			id:     "net-0",
			events: []*domain.SignalEvent{{SourceID: "net-0", Timestamp: 10.25, Protocol: domain.ProtocolNetwork}},
		}),
		WithDetectionSource(src),
	)
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	defer r.Shutdown(context.Background())

	id, err := r.StartSession()
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	waitProgress(t, r, id, func(p domain.ProgressSnapshot) bool { return p.EventsProcessed == 1 })
	src.Push(&domain.Detection{DetectionID: "d1", Timestamp: 10.0, Confidence: 0.9})
	waitProgress(t, r, id, func(p domain.ProgressSnapshot) bool { return p.MatchesFound == 1 })
	src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.Wait(ctx, id); err != nil {
		t.Fatalf("wait: %v", err)
	}

	v, err := r.StopSession(id)
	if err != nil {
		t.Fatalf("stop session: %v", err)
	}
	if v.Result != domain.OutcomePass {
		t.Fatalf("expected PASS, got %s", v.Result)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.results != 1 || len(st.verdicts) != 1 {
		t.Fatalf("store state: %d results, %d verdicts", st.results, len(st.verdicts))
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	st := &memStore{}
	src := detect.NewChanSource(8)

	r, err := NewRuntime(testConfig(t),
		WithStore(st),
		WithAdapters(&stubAdapter{
			id:     "net-0",
			events: []*domain.SignalEvent{{SourceID: "net-0", Timestamp: 10.25, Protocol: domain.ProtocolNetwork}},
		}),
		WithDetectionSource(src),
	)
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	defer r.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	v, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if v == nil {
		t.Fatal("run must return a verdict on early stop")
	}
}

func TestNewRuntimeRequiresConfig(t *testing.T) {
	if _, err := NewRuntime(nil); err == nil {
		t.Fatal("nil config must be rejected")
	}
}

func TestRuntimeUnknownSession(t *testing.T) {
	r, err := NewRuntime(testConfig(t), WithStore(&memStore{}))
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	defer r.Shutdown(context.Background())

	if _, err := r.Progress("nope"); err != ErrUnknownSession {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
	if err := r.Wait(context.Background(), "nope"); err != ErrUnknownSession {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
}
