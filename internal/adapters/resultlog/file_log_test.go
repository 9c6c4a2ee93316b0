package resultlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/veridrive/sigproof/internal/domain"
	"github.com/veridrive/sigproof/internal/ports"
)

func TestAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFileLog(dir, "sess-1")
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	defer l.Close()

	r1 := &domain.LatencyResult{DetectionID: "d1", SignalSourceID: "gpio-0", LatencyMs: 3.0}
	r2 := &domain.LatencyResult{DetectionID: "d2", SignalSourceID: "can-0", LatencyMs: -2.0}

	id1, err := l.Append(r1)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	id2, err := l.Append(r2)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if id1 != 1 || id2 != 2 {
		t.Fatalf("unexpected ids %d, %d", id1, id2)
	}

	var got []*domain.LatencyResult
	err = l.Replay(1, func(id ports.LogEntryID, r *domain.LatencyResult) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(got) != 2 || got[0].DetectionID != "d1" || got[1].DetectionID != "d2" {
		t.Fatalf("unexpected replay: %+v", got)
	}
}

func TestAppendIsDurableBeforeClose(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFileLog(dir, "sess-1")
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	defer l.Close()

	if _, err := l.Append(&domain.LatencyResult{DetectionID: "d1"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "results-sess-1.log"))
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("appended record must be on disk before close")
	}
}

func TestReplayFromWatermark(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFileLog(dir, "sess-1")
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	defer l.Close()

	for i := 0; i < 5; i++ {
		if _, err := l.Append(&domain.LatencyResult{DetectionID: "d"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := l.MarkFlushed(3); err != nil {
		t.Fatalf("mark flushed: %v", err)
	}

	var count int
	err = l.Replay(l.Stats().OldestUnflushed, func(id ports.LogEntryID, r *domain.LatencyResult) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 unflushed entries, got %d", count)
	}
}

func TestReopenRecoversState(t *testing.T) {
	dir := t.TempDir()

	l, err := NewFileLog(dir, "sess-1")
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	if _, err := l.Append(&domain.LatencyResult{DetectionID: "d1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := l.Append(&domain.LatencyResult{DetectionID: "d2"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.MarkFlushed(1); err != nil {
		t.Fatalf("mark flushed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	re, err := NewFileLog(dir, "sess-1")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer re.Close()

	stats := re.Stats()
	if stats.LatestAppended != 2 || stats.OldestUnflushed != 2 {
		t.Fatalf("unexpected stats after reopen: %+v", stats)
	}

	id, err := re.Append(&domain.LatencyResult{DetectionID: "d3"})
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	if id != 3 {
		t.Fatalf("ids must continue after reopen, got %d", id)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	dir := t.TempDir()

	a, err := NewFileLog(dir, "sess-a")
	if err != nil {
		t.Fatalf("new log a: %v", err)
	}
	defer a.Close()
	b, err := NewFileLog(dir, "sess-b")
	if err != nil {
		t.Fatalf("new log b: %v", err)
	}
	defer b.Close()

	if _, err := a.Append(&domain.LatencyResult{DetectionID: "only-a"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if got := b.Stats().LatestAppended; got != 0 {
		t.Fatalf("session b journal must be empty, got %d", got)
	}
}
